// Package correlate attributes pm_table sensors to the logical cores whose
// activity moves them. It consumes the per-sensor statistics fed by the
// processor and drives the Mode B stimulus pool through sequential per-core
// stress protocols.
package correlate

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"sync"
	"time"

	"pmeye/internal/stats"
)

// StressController is the stimulus surface the engine drives: the Mode B
// worker pool. Abstracted so tests can substitute a synthetic schedule.
type StressController interface {
	CoreCount() int
	SetBusy(coreID int, busy bool)
	Busy(coreID int) bool
	BusyStates() []bool
	RestoreBusyStates(states []bool)
	Periods() []time.Duration
	StartTime() time.Time
}

// Engine maintains one CellStats per observed sensor. It implements the
// processor's CellSink on its hot path; everything else locks around the same
// mutex.
type Engine struct {
	mu    sync.Mutex
	cells []*stats.CellStats
}

// NewEngine returns an empty engine; cells are created on the first observed
// sample.
func NewEngine() *Engine {
	return &Engine{}
}

// Observe folds one sample's values into the per-sensor cells. Called from
// the processor goroutine for every consumed sample.
func (e *Engine) Observe(tsNS int64, values []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.cells) != len(values) {
		e.cells = make([]*stats.CellStats, len(values))
		for i := range e.cells {
			e.cells[i] = stats.NewCellStats()
		}
	}
	for i, v := range values {
		e.cells[i].AddSample(v, tsNS)
	}
}

// CellCount returns the number of observed sensors.
func (e *Engine) CellCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.cells)
}

// Snapshot returns a deep copy of all cells for reporting and display.
func (e *Engine) Snapshot() []stats.CellStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]stats.CellStats, len(e.cells))
	for i, c := range e.cells {
		out[i] = *c
		out[i].History = append([]stats.HistoryPoint(nil), c.History...)
		out[i].TopCorrelations = append([]stats.CorrelationInfo(nil), c.TopCorrelations...)
	}
	return out
}

// Reset clears every cell.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.cells {
		c.Reset()
	}
}

func (e *Engine) clearHistories() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.cells {
		c.ClearHistory()
	}
}

func (e *Engine) clearCorrelations() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.cells {
		c.ClearCorrelations()
	}
}
