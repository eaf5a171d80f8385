package sampler

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"pmeye/internal/common"
	"pmeye/internal/membuf"
	"pmeye/internal/pmtable"
	"pmeye/internal/ring"
	"pmeye/internal/rtguard"
)

// Config holds the sampling loop parameters.
type Config struct {
	Core          int           // measurement core the loop is pinned to
	Priority      int           // SCHED_FIFO priority
	Period        time.Duration // sampling period
	SpinThreshold time.Duration // sleep/spin crossover before each deadline
}

// DefaultConfig returns the standard 1 kHz configuration: core 0, priority 98,
// 200 us spin window.
func DefaultConfig() Config {
	return Config{
		Core:          0,
		Priority:      98,
		Period:        time.Millisecond,
		SpinThreshold: 200 * time.Microsecond,
	}
}

// Sampler produces one RawSample per period into the SPSC ring until the
// shared run flag is cleared. It owns a locked read buffer and performs no
// allocation, locking or logging-per-sample once running.
type Sampler struct {
	cfg     Config
	rdr     *pmtable.Reader
	queue   *ring.SPSC[RawSample]
	jitter  *JitterMonitor
	buf     *membuf.Buffer
	scratch RawSample
}

// New validates the table size against the RawSample capacity and allocates
// the locked read buffer.
func New(cfg Config, rdr *pmtable.Reader, queue *ring.SPSC[RawSample], jitter *JitterMonitor) (*Sampler, error) {
	if rdr.FloatCount() > MaxSensors {
		return nil, fmt.Errorf("pm_table holds %d floats, exceeds sample capacity %d", rdr.FloatCount(), MaxSensors)
	}
	return &Sampler{
		cfg:    cfg,
		rdr:    rdr,
		queue:  queue,
		jitter: jitter,
		buf:    membuf.New(rdr.Size()),
	}, nil
}

// Run executes the sampling loop on the calling goroutine. It acquires the
// real-time guard, waits for flags.Start, then samples every cfg.Period until
// flags.Run is cleared. Blocking happens only in the hybrid deadline wait.
func (s *Sampler) Run(flags *common.Flags) {
	guard := rtguard.Acquire(s.cfg.Core, s.cfg.Priority, true)
	defer guard.Release()
	defer s.buf.Release()

	// polite spin until the rest of the pipeline is staged
	for !flags.Start.Load() {
		if flags.Terminate.Load() {
			return
		}
		runtime.Gosched()
	}

	slog.Info("sampler running",
		slog.Int("core", s.cfg.Core),
		slog.Int("sensors", s.rdr.FloatCount()),
		slog.Bool("buffer_locked", s.buf.Locked()),
		slog.Bool("rt_active", guard.Active()))

	periodNS := s.cfg.Period.Nanoseconds()
	spinNS := s.cfg.SpinThreshold.Nanoseconds()
	n := int32(s.rdr.FloatCount())
	raw := s.buf.Bytes()

	deadline := NowNanos()
	var lastTS int64

	for flags.Run.Load() {
		WaitUntil(deadline, spinNS)
		deadline += periodNS

		ts := NowNanos()
		if err := s.rdr.Read(raw); err != nil {
			// skip this sample but preserve cadence
			slog.Warn("pm_table under-read, sample skipped", slog.String("error", err.Error()))
			continue
		}

		s.scratch.TimestampNS = ts
		s.scratch.WorkerPhase = flags.Phase.Load()
		s.scratch.N = n
		pmtable.DecodeFloats(s.scratch.Values[:n], raw)

		// never drop: the processor falling behind is a temporary backlog
		for !s.queue.TryPush(s.scratch) {
			if !flags.Run.Load() {
				return
			}
			runtime.Gosched()
		}

		if lastTS != 0 {
			s.jitter.Record((ts - lastTS) / 1000)
		}
		lastTS = ts
	}
}
