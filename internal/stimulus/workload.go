// Package stimulus imposes known busy/idle schedules on victim cores. Two
// shapes are provided: a duty-cycled burst on a single core whose rising
// edges trigger eye captures, and a pool of per-core square waves with
// pairwise incommensurate periods for the correlation sweep.
package stimulus

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"log/slog"
	"runtime"

	"golang.org/x/sys/unix"
)

// sink keeps the workload loops observable so the compiler cannot remove them.
var sink int64

// pinSelf locks the goroutine to its OS thread and binds it to coreID.
// Returns false when the affinity call fails; the caller keeps running
// unpinned in that case.
func pinSelf(coreID int) bool {
	runtime.LockOSThread()
	var set unix.CPUSet
	set.Zero()
	set.Set(coreID)
	if err := unix.SchedSetaffinity(unix.Gettid(), &set); err != nil {
		slog.Warn("failed to set worker thread affinity",
			slog.Int("core", coreID), slog.String("error", err.Error()))
		return false
	}
	return true
}

func unpinSelf() {
	runtime.UnlockOSThread()
}

// integerALUWorkload keeps the integer units busy for a fixed number of
// iterations.
func integerALUWorkload(iterations int64) {
	var a, b, c, d int64 = 0, 1, 2, 3
	for i := int64(0); i < iterations; i++ {
		a += i
		b += a
		c -= b
		d *= c | 1
	}
	sink = d
}

// floatWorkload keeps the floating-point units busy for a fixed number of
// iterations.
func floatWorkload(iterations int) {
	val := 1.2345
	for range iterations {
		val *= 1.00001
		val /= 1.000009
	}
	sink = int64(val)
}
