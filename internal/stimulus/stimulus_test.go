package stimulus

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmeye/internal/common"
)

func TestPrimePeriods(t *testing.T) {
	periods := primePeriods(6)
	expected := []time.Duration{
		22 * time.Millisecond, // 2*11
		26 * time.Millisecond, // 2*13
		34 * time.Millisecond, // 2*17
		38 * time.Millisecond, // 2*19
		46 * time.Millisecond, // 2*23
		58 * time.Millisecond, // 2*29
	}
	assert.Equal(t, expected, periods)

	// no two periods may sit in small-integer ratio
	for i := range periods {
		for j := i + 1; j < len(periods); j++ {
			a, b := periods[j], periods[i]
			assert.NotZero(t, a%b, "periods %v and %v are in integer ratio", a, b)
		}
	}
}

// Every Mode A burst must end with the shared phase at 0.
func TestBurstTerminalPhase(t *testing.T) {
	var flags common.Flags
	sawBusy := make(chan struct{}, 1)
	go func() {
		for flags.Phase.Load() == 0 {
			time.Sleep(100 * time.Microsecond)
		}
		sawBusy <- struct{}{}
	}()

	RunBurst(&flags, BurstConfig{CoreID: 0, PeriodMS: 10, DutyPercent: 50, Cycles: 3})

	select {
	case <-sawBusy:
	case <-time.After(time.Second):
		t.Fatal("burst never raised the worker phase")
	}
	assert.Equal(t, int32(0), flags.Phase.Load())
}

func TestBurstTerminateAborts(t *testing.T) {
	var flags common.Flags
	flags.Terminate.Store(true)

	start := time.Now()
	RunBurst(&flags, BurstConfig{CoreID: 0, PeriodMS: 100, DutyPercent: 50, Cycles: 1000})
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int32(0), flags.Phase.Load())
}

func TestPoolBusyStates(t *testing.T) {
	p := NewPool(4)
	for i := range 4 {
		assert.True(t, p.Busy(i), "workers default to enabled")
	}

	p.SetBusy(2, false)
	assert.False(t, p.Busy(2))

	states := p.BusyStates()
	assert.Equal(t, []bool{true, true, false, true}, states)

	p.SetBusy(2, true)
	p.RestoreBusyStates(states)
	assert.False(t, p.Busy(2))

	// out-of-range ids are ignored
	p.SetBusy(-1, true)
	p.SetBusy(99, true)
	assert.False(t, p.Busy(-1))
	assert.False(t, p.Busy(99))
}

func TestPoolStartStop(t *testing.T) {
	p := NewPool(2)
	started := make(chan int, 2)
	p.OnWorkerStart = func(coreID int) { started <- coreID }

	p.Start()
	require.False(t, p.StartTime().IsZero())
	cores := map[int]bool{}
	for range 2 {
		select {
		case id := <-started:
			cores[id] = true
		case <-time.After(2 * time.Second):
			t.Fatal("worker did not start")
		}
	}
	assert.Len(t, cores, 2)

	p.Start() // second start is a no-op
	p.Stop()
	p.Stop() // second stop is a no-op
}
