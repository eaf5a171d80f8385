// Package eye contains the consumer side of the pipeline: the capture state
// machine that aligns samples to stimulus trigger edges, the per-sensor
// per-bin accumulators, and the atomically published render-ready snapshots.
package eye

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	mapset "github.com/deckarep/golang-set/v2"
)

// Selection is the ordered set of "interesting" original sensor indices and
// the derived original->storage index mapping. Immutable after construction.
type Selection struct {
	original  []int
	toStorage map[int]int
}

// NewSelection builds a selection from original sensor indices. Duplicates
// are dropped, first occurrence wins, order is preserved.
func NewSelection(indices []int) *Selection {
	seen := mapset.NewThreadUnsafeSet[int]()
	sel := &Selection{toStorage: make(map[int]int, len(indices))}
	for _, idx := range indices {
		if idx < 0 || seen.Contains(idx) {
			continue
		}
		seen.Add(idx)
		sel.toStorage[idx] = len(sel.original)
		sel.original = append(sel.original, idx)
	}
	return sel
}

// AllSensors returns a selection covering every index in [0, n).
func AllSensors(n int) *Selection {
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	return NewSelection(indices)
}

// Count returns the number of tracked sensors.
func (s *Selection) Count() int {
	return len(s.original)
}

// Original returns the tracked original indices in storage order. Callers
// must not mutate the returned slice.
func (s *Selection) Original() []int {
	return s.original
}

// OriginalAt returns the original index for a storage index.
func (s *Selection) OriginalAt(storageIdx int) int {
	return s.original[storageIdx]
}

// StorageIndex maps an original sensor index to its compact storage index.
func (s *Selection) StorageIndex(originalIdx int) (int, bool) {
	idx, ok := s.toStorage[originalIdx]
	return idx, ok
}
