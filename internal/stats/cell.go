package stats

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"math"
	"slices"
)

const (
	// MaxTopCorrelations caps the ranked correlation list per sensor.
	MaxTopCorrelations = 4

	// historyCap bounds the per-sensor sample history. Covers a 2 s
	// correlation window at 1 kHz with headroom.
	historyCap = 4096
)

// HistoryPoint is one timestamped observation kept for correlation windows.
type HistoryPoint struct {
	TimestampNS int64
	Value       float32
}

// CorrelationInfo ranks one core's explanatory power for a sensor.
// Strength and Quality are both normalized to [0, 1].
type CorrelationInfo struct {
	CoreID   int
	Strength float64
	Quality  float64
}

// CellStats accumulates per-sensor statistics: running extremes, a Welford
// aggregate, a bounded timestamped history, and the ranked core correlation
// list. Synchronization is the owner's responsibility.
type CellStats struct {
	Min     float32
	Max     float32
	Current float32
	Agg     Welford

	History []HistoryPoint

	TopCorrelations []CorrelationInfo
}

// NewCellStats returns a CellStats with extremes primed for the first sample.
func NewCellStats() *CellStats {
	return &CellStats{
		Min:     math.MaxFloat32,
		Max:     -math.MaxFloat32,
		History: make([]HistoryPoint, 0, historyCap),
	}
}

// AddSample folds one observation into the cell.
func (c *CellStats) AddSample(v float32, tsNS int64) {
	c.Current = v
	if v < c.Min {
		c.Min = v
	}
	if v > c.Max {
		c.Max = v
	}
	c.Agg.Add(float64(v))

	if len(c.History) == historyCap {
		copy(c.History, c.History[1:])
		c.History = c.History[:historyCap-1]
	}
	c.History = append(c.History, HistoryPoint{TimestampNS: tsNS, Value: v})
}

// ClearHistory drops the sample history but keeps its capacity and the rest
// of the aggregates.
func (c *CellStats) ClearHistory() {
	c.History = c.History[:0]
}

// HistoryStdDev computes the sample standard deviation over the current
// history window.
func (c *CellStats) HistoryStdDev() float64 {
	var w Welford
	for _, h := range c.History {
		w.Add(float64(h.Value))
	}
	return w.StdDev()
}

// Range returns the observed dynamic range of the sensor.
func (c *CellStats) Range() float64 {
	if c.Max < c.Min {
		return 0
	}
	return float64(c.Max) - float64(c.Min)
}

// UpdateOrInsertCorrelation updates the entry for coreID in the top list or
// inserts a new one, then re-sorts descending by strength and truncates to
// MaxTopCorrelations.
func (c *CellStats) UpdateOrInsertCorrelation(coreID int, strength, quality float64) {
	found := false
	for i := range c.TopCorrelations {
		if c.TopCorrelations[i].CoreID == coreID {
			c.TopCorrelations[i].Strength = strength
			c.TopCorrelations[i].Quality = quality
			found = true
			break
		}
	}
	if !found {
		c.TopCorrelations = append(c.TopCorrelations, CorrelationInfo{CoreID: coreID, Strength: strength, Quality: quality})
	}
	slices.SortStableFunc(c.TopCorrelations, func(a, b CorrelationInfo) int {
		switch {
		case a.Strength > b.Strength:
			return -1
		case a.Strength < b.Strength:
			return 1
		default:
			return 0
		}
	})
	if len(c.TopCorrelations) > MaxTopCorrelations {
		c.TopCorrelations = c.TopCorrelations[:MaxTopCorrelations]
	}
}

// ClearCorrelations empties the ranked list, e.g., at the start of a new
// analysis run.
func (c *CellStats) ClearCorrelations() {
	c.TopCorrelations = c.TopCorrelations[:0]
}

// Reset clears everything back to the initial state.
func (c *CellStats) Reset() {
	c.Min = math.MaxFloat32
	c.Max = -math.MaxFloat32
	c.Current = 0
	c.Agg.Reset()
	c.ClearHistory()
	c.ClearCorrelations()
}
