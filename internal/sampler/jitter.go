package sampler

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"log/slog"
	"math"
	"slices"

	"pmeye/internal/stats"
)

// JitterStats is one reporting interval's aggregate, handed to the optional
// report hook (e.g., for Prometheus publication).
type JitterStats struct {
	Samples    int
	MeanUS     float64
	StdDevUS   float64
	MinUS      int64
	MaxUS      int64
	P1US       int64
	P50US      int64
	P99US      int64
	OverPeriod int
}

// JitterMonitor tracks the sampler's achieved period without allocating in
// the hot path. All buffers are sized at construction; the expensive work
// (sorting, logging) happens only once per reporting interval.
type JitterMonitor struct {
	targetUS       int64
	reportInterval int
	histRangeUS    int

	sampleCount int
	sumUS       float64
	sumSqUS     float64
	minUS       int64
	maxUS       int64
	overPeriod  int
	histogram   []int
	periodsUS   []int64

	// OnReport, when set, receives each interval's aggregate after it is
	// logged. Must not block.
	OnReport func(JitterStats)
}

// NewJitterMonitor creates a monitor centered on targetUS. reportInterval is
// the number of samples per report; histRangeUS is the +/- range of the
// deviation histogram.
func NewJitterMonitor(targetUS int64, reportInterval, histRangeUS int) *JitterMonitor {
	jm := &JitterMonitor{
		targetUS:       targetUS,
		reportInterval: reportInterval,
		histRangeUS:    histRangeUS,
		histogram:      make([]int, 2*histRangeUS+1),
		periodsUS:      make([]int64, reportInterval),
	}
	jm.reset()
	return jm
}

// Record folds one measured period into the monitor. Designed for the
// sampling hot path: index writes and arithmetic only.
func (jm *JitterMonitor) Record(periodUS int64) {
	if jm.sampleCount < jm.reportInterval {
		jm.periodsUS[jm.sampleCount] = periodUS
	}

	jm.sumUS += float64(periodUS)
	jm.sumSqUS += float64(periodUS) * float64(periodUS)
	if periodUS < jm.minUS {
		jm.minUS = periodUS
	}
	if periodUS > jm.maxUS {
		jm.maxUS = periodUS
	}
	if periodUS > jm.targetUS {
		jm.overPeriod++
	}

	deviation := periodUS - jm.targetUS
	if bin := int(deviation) + jm.histRangeUS; bin >= 0 && bin < len(jm.histogram) {
		jm.histogram[bin]++
	}

	jm.sampleCount++
	if jm.sampleCount >= jm.reportInterval {
		jm.reportAndReset()
	}
}

func (jm *JitterMonitor) reportAndReset() {
	if jm.sampleCount == 0 {
		return
	}
	n := float64(jm.sampleCount)
	mean := jm.sumUS / n
	variance := max(0, jm.sumSqUS/n-mean*mean)

	sorted := jm.periodsUS[:jm.sampleCount]
	slices.Sort(sorted)

	st := JitterStats{
		Samples:    jm.sampleCount,
		MeanUS:     mean,
		StdDevUS:   math.Sqrt(variance),
		MinUS:      jm.minUS,
		MaxUS:      jm.maxUS,
		P1US:       stats.PercentileInt64(sorted, 0.01),
		P50US:      stats.PercentileInt64(sorted, 0.50),
		P99US:      stats.PercentileInt64(sorted, 0.99),
		OverPeriod: jm.overPeriod,
	}

	slog.Info("sampler jitter report",
		slog.Int("samples", st.Samples),
		slog.Float64("mean_us", st.MeanUS),
		slog.Float64("stddev_us", st.StdDevUS),
		slog.Int64("min_us", st.MinUS),
		slog.Int64("max_us", st.MaxUS),
		slog.Int64("p1_us", st.P1US),
		slog.Int64("p50_us", st.P50US),
		slog.Int64("p99_us", st.P99US),
		slog.Int("over_period", st.OverPeriod))
	for bin, hits := range jm.histogram {
		if hits > 0 {
			slog.Debug("jitter histogram bin",
				slog.Int("deviation_us", bin-jm.histRangeUS),
				slog.Int("hits", hits))
		}
	}

	if jm.OnReport != nil {
		jm.OnReport(st)
	}
	jm.reset()
}

func (jm *JitterMonitor) reset() {
	jm.sampleCount = 0
	jm.sumUS = 0
	jm.sumSqUS = 0
	jm.minUS = int64(1) << 62
	jm.maxUS = 0
	jm.overPeriod = 0
	for i := range jm.histogram {
		jm.histogram[i] = 0
	}
}
