package eye

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmeye/internal/sampler"
)

// synthSample builds a RawSample at the given millisecond with one sensor.
func synthSample(ms int64, phase int32, value float32) sampler.RawSample {
	var s sampler.RawSample
	s.TimestampNS = ms * int64(time.Millisecond)
	s.WorkerPhase = phase
	s.N = 1
	s.Values[0] = value
	return s
}

func newTestProcessor(windowBefore, windowAfter, maxAcc int) *Processor {
	cfg := DefaultProcessorConfig()
	cfg.WindowBeforeMS = windowBefore
	cfg.WindowAfterMS = windowAfter
	cfg.MaxAccumulations = maxAcc
	return NewProcessor(cfg, NewSelection([]int{0}), &CommandQueue{}, nil)
}

// singleEdgeStream is the S1 stimulus: 300 samples at 1 ms, phase raised for
// samples 100..199, sensor 0 follows the phase with values 0/10.
func singleEdgeStream() []sampler.RawSample {
	var stream []sampler.RawSample
	for i := range 300 {
		phase := int32(0)
		value := float32(0)
		if i >= 100 && i < 200 {
			phase = 1
			value = 10
		}
		stream = append(stream, synthSample(int64(i), phase, value))
	}
	return stream
}

func TestSingleEdgeCapture(t *testing.T) {
	p := newTestProcessor(10, 50, 4)
	for _, s := range singleEdgeStream() {
		s := s
		p.Process(&s)
	}

	snap := p.Published(0)
	require.NotNil(t, snap)
	assert.Equal(t, 0, snap.OriginalSensorIndex)
	assert.Equal(t, 1, snap.AccumulationCount)

	// every bin in [-10..49] observed exactly once
	require.Len(t, snap.XMS, 60)
	assert.Equal(t, -10, snap.XMS[0])
	assert.Equal(t, 49, snap.XMS[len(snap.XMS)-1])

	byX := map[int]int{}
	for k, x := range snap.XMS {
		byX[x] = k
	}
	assert.Equal(t, float32(0), snap.YMean[byX[-1]])
	assert.Equal(t, float32(10), snap.YMean[byX[0]])

	// single observation per bin: min == mean == max
	for k := range snap.XMS {
		assert.Equal(t, snap.YMean[k], snap.YMin[k])
		assert.Equal(t, snap.YMean[k], snap.YMax[k])
	}
}

// Feeding the same stream to a fresh processor must produce identical
// published snapshots.
func TestTriggerIdempotence(t *testing.T) {
	run := func() *Snapshot {
		p := newTestProcessor(10, 50, 4)
		for _, s := range singleEdgeStream() {
			s := s
			p.Process(&s)
		}
		return p.Published(0)
	}
	first, second := run(), run()
	assert.Equal(t, first.XMS, second.XMS)
	assert.Equal(t, first.YMean, second.YMean)
	assert.Equal(t, first.YMin, second.YMin)
	assert.Equal(t, first.YMax, second.YMax)
	assert.Equal(t, first.AccumulationCount, second.AccumulationCount)
}

// S2: repeated identical bursts with a small accumulation cap. Per-bin depth
// grows with each burst but never exceeds the cap, and statistics stay at the
// constant value.
func TestEvictionBound(t *testing.T) {
	const maxAcc = 3
	p := newTestProcessor(5, 20, maxAcc)

	ms := int64(0)
	feedIdle := func(n int) {
		for range n {
			s := synthSample(ms, 0, 7)
			p.Process(&s)
			ms++
		}
	}
	feedBurst := func() {
		for range 10 {
			s := synthSample(ms, 1, 7)
			p.Process(&s)
			ms++
		}
		feedIdle(30) // runs past the window and finalizes
	}

	feedIdle(20)
	for burst := 1; burst <= 10; burst++ {
		feedBurst()
		snap := p.Published(0)
		expectedDepth := min(burst, maxAcc)
		assert.Equal(t, expectedDepth, snap.AccumulationCount, "burst %d", burst)
		for b := 0; b < p.storage.NumBins(); b++ {
			assert.LessOrEqual(t, len(p.storage.Bin(0, b)), maxAcc)
		}
		for k := range snap.XMS {
			assert.Equal(t, float32(7), snap.YMean[k])
			assert.Equal(t, float32(7), snap.YMin[k])
			assert.Equal(t, float32(7), snap.YMax[k])
		}
	}
}

// A new rising edge before the open window ends abandons the interrupted
// capture and restarts from the new trigger.
func TestRetriggerRestartsCapture(t *testing.T) {
	p := newTestProcessor(5, 50, 4)

	ms := int64(0)
	feed := func(phase int32, n int) {
		for range n {
			s := synthSample(ms, phase, 1)
			p.Process(&s)
			ms++
		}
	}

	feed(0, 10)
	feed(1, 10) // first trigger, window stays open
	feed(0, 10)
	feed(1, 10) // re-trigger at ms=30, inside the first window
	assert.True(t, p.Capturing())

	feed(0, 60) // run past the second window
	assert.False(t, p.Capturing())

	// exactly one finalization, aligned to the second trigger
	assert.Equal(t, uint64(1), p.finalized)
}

// S6: a victim-core change clears bins, history and trace and resets the
// state machine.
func TestChangeVictimCoreClearsState(t *testing.T) {
	cmds := &CommandQueue{}
	cfg := DefaultProcessorConfig()
	cfg.WindowBeforeMS = 5
	cfg.WindowAfterMS = 50
	p := NewProcessor(cfg, NewSelection([]int{0}), cmds, nil)

	ms := int64(0)
	for range 10 {
		s := synthSample(ms, 0, 1)
		p.Process(&s)
		ms++
	}
	for range 5 {
		s := synthSample(ms, 1, 2)
		p.Process(&s)
		ms++
	}
	require.True(t, p.Capturing())
	require.NotZero(t, p.HistoryLen())
	require.NotZero(t, p.TraceLen())

	cmds.Push(ChangeVictimCore{CoreID: 3})
	p.DrainCommands()

	assert.False(t, p.Capturing())
	assert.Zero(t, p.HistoryLen())
	assert.Zero(t, p.TraceLen())
	for b := 0; b < p.storage.NumBins(); b++ {
		assert.Empty(t, p.storage.Bin(0, b))
	}
}

func TestChangeAccumulationsTrimsOnNextFinalize(t *testing.T) {
	cmds := &CommandQueue{}
	cfg := DefaultProcessorConfig()
	cfg.WindowBeforeMS = 2
	cfg.WindowAfterMS = 10
	cfg.MaxAccumulations = 10
	p := NewProcessor(cfg, NewSelection([]int{0}), cmds, nil)

	ms := int64(0)
	burst := func() {
		for range 5 {
			s := synthSample(ms, 1, 1)
			p.Process(&s)
			ms++
		}
		for range 20 {
			s := synthSample(ms, 0, 1)
			p.Process(&s)
			ms++
		}
	}
	for range 5 {
		burst()
	}
	assert.Equal(t, 5, p.Published(0).AccumulationCount)

	cmds.Push(ChangeAccumulations{Cap: 2})
	p.DrainCommands()
	burst()
	assert.Equal(t, 2, p.Published(0).AccumulationCount)
}

// Published snapshots must be internally consistent: equal vector lengths
// and min <= mean <= max everywhere.
func TestSnapshotConsistency(t *testing.T) {
	p := newTestProcessor(10, 50, 4)

	ms := int64(0)
	value := float32(0)
	for cycle := range 6 {
		for range 20 {
			s := synthSample(ms, 0, value)
			p.Process(&s)
			ms++
			value += 0.25
		}
		for range 15 {
			s := synthSample(ms, 1, value+float32(cycle))
			p.Process(&s)
			ms++
		}
		for range 60 {
			s := synthSample(ms, 0, value)
			p.Process(&s)
			ms++
		}
	}

	snap := p.Published(0)
	require.NotEmpty(t, snap.XMS)
	assert.Len(t, snap.YMean, len(snap.XMS))
	assert.Len(t, snap.YMin, len(snap.XMS))
	assert.Len(t, snap.YMax, len(snap.XMS))
	for k := range snap.XMS {
		assert.LessOrEqual(t, snap.YMin[k], snap.YMean[k])
		assert.LessOrEqual(t, snap.YMean[k], snap.YMax[k])
	}
}

// The publisher must alternate sides so a held reader snapshot survives one
// further publish untouched.
func TestDoubleBufferAlternatesSides(t *testing.T) {
	p := newTestProcessor(2, 10, 4)

	ms := int64(0)
	burst := func() {
		for range 3 {
			s := synthSample(ms, 1, 5)
			p.Process(&s)
			ms++
		}
		for range 20 {
			s := synthSample(ms, 0, 5)
			p.Process(&s)
			ms++
		}
	}

	burst()
	first := p.Published(0)
	burst()
	second := p.Published(0)
	assert.NotSame(t, first, second, "consecutive publishes must use different sides")
	burst()
	third := p.Published(0)
	assert.Same(t, first, third, "two publishes later the original side is reused")
}
