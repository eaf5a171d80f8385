package correlate

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"log/slog"
	"math"
	"time"

	"pmeye/internal/common"
)

const strengthEpsilon = 1e-9

// SweepOptions parameterizes the sequential per-core baseline/active sweep.
type SweepOptions struct {
	Baseline       time.Duration // idle accumulation window per core
	Active         time.Duration // stressed accumulation window per core
	UpdateInterval time.Duration // incremental recomputation cadence
	// Progress, when set, receives per-core status updates.
	Progress func(coreID int, status string)
}

// DefaultSweepOptions returns the standard 1.5 s baseline / 2 s active sweep
// updating at roughly 60 Hz.
func DefaultSweepOptions() SweepOptions {
	return SweepOptions{
		Baseline:       1500 * time.Millisecond,
		Active:         2 * time.Second,
		UpdateInterval: time.Second / 60,
	}
}

// RunSweep stresses each core in turn and compares each sensor's stressed
// variability against its idle baseline. Strength for sensor i under core c
// is sqrt(max(0, (active-baseline)/(active+baseline+eps))) over history
// standard deviations; quality is 1 in this mode. Results accumulate across
// cores within one run and are cleared at the start of the next.
//
// The pool's per-core enabled states are captured first and restored when the
// sweep finishes. flags.Terminate aborts between phases.
func (e *Engine) RunSweep(pool StressController, flags *common.Flags, opts SweepOptions) {
	slog.Info("starting correlation sweep", slog.Int("cores", pool.CoreCount()))

	e.clearCorrelations()

	savedStates := pool.BusyStates()
	defer pool.RestoreBusyStates(savedStates)

	for core := range pool.CoreCount() {
		pool.SetBusy(core, false)
	}

	for core := range pool.CoreCount() {
		if flags.Terminate.Load() {
			slog.Info("correlation sweep aborted")
			return
		}
		if opts.Progress != nil {
			opts.Progress(core, "baseline")
		}
		slog.Info("measuring core", slog.Int("core", core))

		// baseline: everything idle
		e.clearHistories()
		sleepUnlessTerminated(flags, opts.Baseline)
		baseline := e.historyStdDevs()

		// active: only this core busy, recomputing as samples accumulate
		if opts.Progress != nil {
			opts.Progress(core, "stressing")
		}
		pool.SetBusy(core, true)
		e.clearHistories()

		activeStart := time.Now()
		for time.Since(activeStart) < opts.Active && !flags.Terminate.Load() {
			sleepUnlessTerminated(flags, opts.UpdateInterval)
			e.updateStrengths(core, baseline)
		}

		pool.SetBusy(core, false)
		if opts.Progress != nil {
			opts.Progress(core, "done")
		}
	}

	slog.Info("correlation sweep complete")
}

// historyStdDevs snapshots every cell's history standard deviation.
func (e *Engine) historyStdDevs() []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]float64, len(e.cells))
	for i, c := range e.cells {
		out[i] = c.HistoryStdDev()
	}
	return out
}

// updateStrengths recomputes each sensor's strength for the stressed core
// from the history gathered so far and folds it into the ranked list.
func (e *Engine) updateStrengths(core int, baseline []float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, c := range e.cells {
		if i >= len(baseline) {
			break
		}
		active := c.HistoryStdDev()
		raw := 0.0
		if denom := active + baseline[i] + strengthEpsilon; denom > 0 {
			raw = max(0, (active-baseline[i])/denom)
		}
		c.UpdateOrInsertCorrelation(core, math.Sqrt(raw), 1.0)
	}
}

func sleepUnlessTerminated(flags *common.Flags, d time.Duration) {
	const step = 10 * time.Millisecond
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if flags.Terminate.Load() {
			return
		}
		remaining := time.Until(deadline)
		if remaining > step {
			remaining = step
		}
		time.Sleep(remaining)
	}
}
