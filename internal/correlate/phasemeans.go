package correlate

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"log/slog"
	"time"

	"pmeye/internal/common"
)

// PhaseMeansOptions parameterizes the known-schedule attribution pass.
type PhaseMeansOptions struct {
	// Accumulate is how long to gather history with all workers cycling
	// before partitioning. Zero skips the wait and analyzes the history
	// already gathered.
	Accumulate time.Duration
	// MinSamples is the on/off sample count at which confidence saturates.
	MinSamples int
}

// DefaultPhaseMeansOptions accumulates for 3 s and saturates confidence at
// 30 samples per phase.
func DefaultPhaseMeansOptions() PhaseMeansOptions {
	return PhaseMeansOptions{
		Accumulate: 3 * time.Second,
		MinSamples: 30,
	}
}

// RunPhaseMeans attributes sensors using the fully known Mode B schedule:
// each sample timestamp is classified on-phase or off-phase for each core
// from the worker's period (busy during the first third). The absolute
// difference of on/off means, normalized by the sensor's dynamic range,
// is the strength; quality combines a cross-core separation factor with a
// sample-count confidence factor.
func (e *Engine) RunPhaseMeans(pool StressController, flags *common.Flags, opts PhaseMeansOptions) {
	slog.Info("starting phase-means attribution", slog.Int("cores", pool.CoreCount()))

	e.clearCorrelations()
	if opts.Accumulate > 0 {
		e.clearHistories()
		sleepUnlessTerminated(flags, opts.Accumulate)
	}
	if flags.Terminate.Load() {
		return
	}

	startNS := pool.StartTime().UnixNano()
	periods := pool.Periods()
	coreCount := pool.CoreCount()
	if opts.MinSamples <= 0 {
		opts.MinSamples = 1
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	type phaseDiff struct {
		diff    float64
		onN     int
		offN    int
		skipped bool
	}

	for _, cell := range e.cells {
		sensorRange := cell.Range()

		diffs := make([]phaseDiff, coreCount)
		for core := range coreCount {
			if !pool.Busy(core) {
				diffs[core].skipped = true
				continue
			}
			period := periods[core].Nanoseconds()
			onThird := period / 3

			var onSum, offSum float64
			var onN, offN int
			for _, h := range cell.History {
				phaseInPeriod := (h.TimestampNS - startNS) % period
				if phaseInPeriod < 0 {
					phaseInPeriod += period
				}
				if phaseInPeriod < onThird {
					onSum += float64(h.Value)
					onN++
				} else {
					offSum += float64(h.Value)
					offN++
				}
			}
			if onN == 0 || offN == 0 {
				diffs[core].skipped = true
				continue
			}
			diffs[core] = phaseDiff{
				diff: abs(onSum/float64(onN) - offSum/float64(offN)),
				onN:  onN,
				offN: offN,
			}
		}

		// separation compares the best core's mean difference against the
		// runner-up, shared by every entry of this sensor
		best, second := -1.0, -1.0
		for _, d := range diffs {
			if d.skipped {
				continue
			}
			if d.diff > best {
				second = best
				best = d.diff
			} else if d.diff > second {
				second = d.diff
			}
		}
		separation := 1.0
		if best > 0 && second >= 0 {
			separation = clamp01(1 - second/best)
		}

		for core, d := range diffs {
			if d.skipped {
				continue
			}
			strength := 0.0
			if sensorRange > strengthEpsilon {
				strength = min(1, d.diff/sensorRange)
			}
			confidence := min(1, float64(min(d.onN, d.offN))/float64(opts.MinSamples))
			cell.UpdateOrInsertCorrelation(core, strength, separation*confidence)
		}
	}

	slog.Info("phase-means attribution complete")
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
