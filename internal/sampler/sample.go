// Package sampler implements the 1 kHz real-time sampling loop: a pinned,
// priority-elevated thread that snapshots the pm_table blob every millisecond
// and pushes timestamped samples into a lock-free ring for the processor.
package sampler

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// MaxSensors is the upper bound on float values per sample. A 16 KiB
// pm_table holds at most 4096 floats; 2048 covers every known table layout.
const MaxSensors = 2048

// RawSample is the data packet produced by the sampling thread. Values is a
// fixed-capacity array so samples move through the SPSC ring by value with no
// per-sample allocation.
type RawSample struct {
	TimestampNS int64   // monotonic clock, strictly non-decreasing per producer
	WorkerPhase int32   // snapshot of the stimulus phase at the sample instant
	N           int32   // count of valid entries in Values
	Values      [MaxSensors]float32
}
