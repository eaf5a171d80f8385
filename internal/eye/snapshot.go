package eye

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"sync/atomic"
)

// Snapshot is the render-ready view of one sensor's eye diagram. Only bins
// with at least one observation are emitted, so the four slices always have
// equal length. A published Snapshot is immutable until the publisher cycles
// back to it after at least one more publish.
type Snapshot struct {
	XMS   []int     // time relative to the trigger, in ms
	YMean []float32 // trimmed mean per bin
	YMin  []float32 // min envelope
	YMax  []float32 // max envelope

	AccumulationCount   int // depth of the center (trigger) bin
	WindowBeforeMS      int
	WindowAfterMS       int
	OriginalSensorIndex int
}

func (s *Snapshot) clearData() {
	s.XMS = s.XMS[:0]
	s.YMean = s.YMean[:0]
	s.YMin = s.YMin[:0]
	s.YMax = s.YMax[:0]
	s.AccumulationCount = 0
}

// doubleBuffer owns two permanently allocated Snapshot instances per tracked
// sensor plus one atomic publication pointer each. The processor writes the
// non-published side, publishes all sensors with release stores, then flips.
// Readers load the pointer with acquire semantics and read without copying.
type doubleBuffer struct {
	sideA     []*Snapshot
	sideB     []*Snapshot
	published []atomic.Pointer[Snapshot]
	writeToA  bool
}

func newDoubleBuffer(sel *Selection, windowBeforeMS, windowAfterMS int) *doubleBuffer {
	n := sel.Count()
	db := &doubleBuffer{
		sideA:     make([]*Snapshot, n),
		sideB:     make([]*Snapshot, n),
		published: make([]atomic.Pointer[Snapshot], n),
	}
	for i := range n {
		orig := sel.OriginalAt(i)
		db.sideA[i] = &Snapshot{WindowBeforeMS: windowBeforeMS, WindowAfterMS: windowAfterMS, OriginalSensorIndex: orig}
		db.sideB[i] = &Snapshot{WindowBeforeMS: windowBeforeMS, WindowAfterMS: windowAfterMS, OriginalSensorIndex: orig}
		// readers see an empty but valid snapshot before the first publish
		db.published[i].Store(db.sideA[i])
	}
	db.writeToA = false
	return db
}

// writeSide returns the side the processor may currently mutate.
func (db *doubleBuffer) writeSide() []*Snapshot {
	if db.writeToA {
		return db.sideA
	}
	return db.sideB
}

// publish stores the write side into every sensor's published pointer and
// makes the previously published side the next write side.
func (db *doubleBuffer) publish() {
	side := db.writeSide()
	for i := range side {
		db.published[i].Store(side[i])
	}
	db.writeToA = !db.writeToA
}

// Published returns the current readable snapshot for a storage index.
func (db *doubleBuffer) Published(storageIdx int) *Snapshot {
	return db.published[storageIdx].Load()
}
