package stimulus

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"log/slog"
	"time"

	"pmeye/internal/common"
)

// BurstConfig parameterizes a Mode A duty-cycled burst.
type BurstConfig struct {
	CoreID      int // victim core the worker pins itself to
	PeriodMS    int
	DutyPercent int // busy fraction of each period, 10..90
	Cycles      int
}

// RunBurst executes cycles busy/idle iterations on the victim core, toggling
// the shared worker phase. Each iteration: phase=1, integer workload for the
// duty fraction of the period, phase=0, sleep the remainder. The phase is
// guaranteed to be 0 when RunBurst returns, on every exit path including
// panic unwinding. Terminate aborts between iterations.
func RunBurst(flags *common.Flags, cfg BurstConfig) {
	defer flags.Phase.Store(0)

	if pinSelf(cfg.CoreID) {
		defer unpinSelf()
	}

	period := time.Duration(cfg.PeriodMS) * time.Millisecond
	busy := period * time.Duration(cfg.DutyPercent) / 100
	idle := period - busy

	slog.Info("stimulus burst starting",
		slog.Int("core", cfg.CoreID),
		slog.Int("period_ms", cfg.PeriodMS),
		slog.Int("duty_percent", cfg.DutyPercent),
		slog.Int("cycles", cfg.Cycles))

	for range cfg.Cycles {
		if flags.Terminate.Load() {
			return
		}
		flags.Phase.Store(1)
		busyStart := time.Now()
		for time.Since(busyStart) < busy {
			integerALUWorkload(1000)
		}
		flags.Phase.Store(0)
		time.Sleep(idle)
	}
}
