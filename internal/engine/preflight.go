package engine

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/casbin/govaluate"

	"pmeye/internal/membuf"
	"pmeye/internal/pmtable"
	"pmeye/internal/rtguard"
	"pmeye/internal/sampler"
	"pmeye/internal/stats"
)

// DefaultPreflightSamples is the number of 1 ms observations the preflight
// takes before judging which sensors move.
const DefaultPreflightSamples = 997

// varianceFloor separates truly constant sensors from float noise.
const varianceFloor = 1e-9

// SensorStat summarizes one sensor's preflight observation window.
type SensorStat struct {
	Index    int
	Min      float32
	Max      float32
	Mean     float64
	Variance float64
}

// Range returns the observed dynamic range.
func (s SensorStat) Range() float64 {
	return float64(s.Max) - float64(s.Min)
}

// Interesting reports whether the sensor moved during the window.
func (s SensorStat) Interesting() bool {
	return s.Variance > varianceFloor
}

// Preflight samples the table at the sampler cadence for sampleCount periods
// on the measurement core and aggregates per-sensor statistics. It reuses the
// sampler's hybrid wait and real-time guard with a sink-mode consumer: no
// ring, no processor.
func Preflight(rdr *pmtable.Reader, cfg sampler.Config, sampleCount int) ([]SensorStat, error) {
	n := rdr.FloatCount()
	if n > sampler.MaxSensors {
		return nil, fmt.Errorf("pm_table holds %d floats, exceeds sample capacity %d", n, sampler.MaxSensors)
	}

	guard := rtguard.Acquire(cfg.Core, cfg.Priority, false)
	defer guard.Release()

	buf := membuf.New(rdr.Size())
	defer buf.Release()
	raw := buf.Bytes()
	values := make([]float32, n)

	mins := make([]float32, n)
	maxs := make([]float32, n)
	aggs := make([]stats.Welford, n)
	for i := range n {
		mins[i] = float32(1e38)
		maxs[i] = float32(-1e38)
	}

	periodNS := cfg.Period.Nanoseconds()
	spinNS := cfg.SpinThreshold.Nanoseconds()
	deadline := sampler.NowNanos()

	slog.Info("preflight sampling", slog.Int("samples", sampleCount), slog.Int("sensors", n))
	start := time.Now()
	for range sampleCount {
		sampler.WaitUntil(deadline, spinNS)
		deadline += periodNS

		if err := rdr.Read(raw); err != nil {
			slog.Warn("pm_table under-read during preflight", slog.String("error", err.Error()))
			continue
		}
		pmtable.DecodeFloats(values, raw)
		for i, v := range values {
			if v < mins[i] {
				mins[i] = v
			}
			if v > maxs[i] {
				maxs[i] = v
			}
			aggs[i].Add(float64(v))
		}
	}
	slog.Info("preflight complete", slog.Duration("elapsed", time.Since(start)))

	out := make([]SensorStat, n)
	for i := range n {
		out[i] = SensorStat{
			Index:    i,
			Min:      mins[i],
			Max:      maxs[i],
			Mean:     aggs[i].Mean(),
			Variance: aggs[i].Variance(),
		}
	}
	return out, nil
}

// SelectSensors picks the interesting sensor indices from preflight stats.
// With an empty filter expression, sensors whose variance clears the noise
// floor are selected. A non-empty filter is evaluated per sensor with the
// parameters index, min, max, mean, variance and range; truthy results are
// selected.
func SelectSensors(sensorStats []SensorStat, filter string) ([]int, error) {
	var expr *govaluate.EvaluableExpression
	if filter != "" {
		var err error
		expr, err = govaluate.NewEvaluableExpression(filter)
		if err != nil {
			return nil, fmt.Errorf("invalid sensor filter expression: %v", err)
		}
	}

	var selected []int
	params := make(map[string]interface{}, 6)
	for _, st := range sensorStats {
		if expr == nil {
			if st.Interesting() {
				selected = append(selected, st.Index)
			}
			continue
		}
		params["index"] = float64(st.Index)
		params["min"] = float64(st.Min)
		params["max"] = float64(st.Max)
		params["mean"] = st.Mean
		params["variance"] = st.Variance
		params["range"] = st.Range()
		result, err := expr.Evaluate(params)
		if err != nil {
			return nil, fmt.Errorf("sensor filter evaluation failed for index %d: %v", st.Index, err)
		}
		if keep, ok := result.(bool); ok && keep {
			selected = append(selected, st.Index)
		}
	}
	return selected, nil
}
