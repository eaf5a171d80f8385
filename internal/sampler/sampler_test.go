package sampler

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmeye/internal/common"
	"pmeye/internal/pmtable"
	"pmeye/internal/ring"
)

func writeTableFixture(t *testing.T, values []float32) string {
	t.Helper()
	dir := t.TempDir()
	blob := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pm_table"), blob, 0o644))
	sizeRaw := make([]byte, 8)
	binary.LittleEndian.PutUint64(sizeRaw, uint64(len(blob)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pm_table_size"), sizeRaw, 0o644))
	return dir
}

func TestWaitUntilReachesDeadline(t *testing.T) {
	spin := int64(200_000)
	for _, ahead := range []int64{0, 50_000, 2_000_000} {
		deadline := NowNanos() + ahead
		WaitUntil(deadline, spin)
		assert.GreaterOrEqual(t, NowNanos(), deadline)
	}
}

func TestWaitUntilPastDeadlineReturnsImmediately(t *testing.T) {
	start := time.Now()
	WaitUntil(NowNanos()-1_000_000, 200_000)
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestNewRejectsOversizedTable(t *testing.T) {
	// MaxSensors+1 floats exceeds the RawSample capacity but stays inside
	// the driver's 16 KiB sanity bound only if <= 4096; use 2049 floats.
	values := make([]float32, MaxSensors+1)
	dir := writeTableFixture(t, values)
	rdr, err := pmtable.Open(dir)
	require.NoError(t, err)
	defer rdr.Close()

	_, err = New(DefaultConfig(), rdr, ring.NewSPSC[RawSample](64), NewJitterMonitor(1000, 1000, 100))
	assert.Error(t, err)
}

// Run the full producer loop against a fixture table for a handful of
// periods and verify ordering, phase snapshots and values.
func TestSamplerProducesOrderedSamples(t *testing.T) {
	values := []float32{1.25, -2.5, 3.75, 0}
	dir := writeTableFixture(t, values)
	rdr, err := pmtable.Open(dir)
	require.NoError(t, err)
	defer rdr.Close()

	queue := ring.NewSPSC[RawSample](600)
	jm := NewJitterMonitor(1000, 100_000, 100) // effectively never reports
	cfg := DefaultConfig()
	cfg.Core = -1     // no pinning in tests
	cfg.Priority = 1  // elevation failure is tolerated
	smp, err := New(cfg, rdr, queue, jm)
	require.NoError(t, err)

	var flags common.Flags
	flags.Run.Store(true)
	flags.Phase.Store(1)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		smp.Run(&flags)
	}()
	flags.Start.Store(true)

	time.Sleep(50 * time.Millisecond)
	flags.Run.Store(false)
	wg.Wait()

	var got []RawSample
	for {
		s, ok := queue.TryPop()
		if !ok {
			break
		}
		got = append(got, s)
	}
	require.GreaterOrEqual(t, len(got), 10, "expected tens of samples in 50ms at 1kHz")

	var lastTS int64
	for _, s := range got {
		assert.GreaterOrEqual(t, s.TimestampNS, lastTS, "timestamps must be non-decreasing")
		lastTS = s.TimestampNS
		assert.Equal(t, int32(len(values)), s.N)
		assert.Equal(t, int32(1), s.WorkerPhase)
		assert.Equal(t, values, s.Values[:s.N])
	}
}

func TestJitterMonitorReport(t *testing.T) {
	var reported []JitterStats
	jm := NewJitterMonitor(1000, 5, 100)
	jm.OnReport = func(st JitterStats) { reported = append(reported, st) }

	for _, p := range []int64{990, 1000, 1010, 1005, 995} {
		jm.Record(p)
	}
	require.Len(t, reported, 1)
	st := reported[0]
	assert.Equal(t, 5, st.Samples)
	assert.InDelta(t, 1000.0, st.MeanUS, 1e-9)
	assert.Equal(t, int64(990), st.MinUS)
	assert.Equal(t, int64(1010), st.MaxUS)
	assert.Equal(t, int64(990), st.P1US)
	assert.Equal(t, int64(1000), st.P50US)
	assert.Equal(t, int64(1005), st.P99US)
	assert.Equal(t, 2, st.OverPeriod)

	// a second interval starts clean
	for _, p := range []int64{1000, 1000, 1000, 1000, 1000} {
		jm.Record(p)
	}
	require.Len(t, reported, 2)
	assert.Equal(t, 0, reported[1].OverPeriod)
	assert.Equal(t, 0.0, reported[1].StdDevUS)
}
