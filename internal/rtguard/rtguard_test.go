package rtguard

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// The guard must restore affinity exactly, whether or not the SCHED_FIFO
// elevation succeeded (it won't without CAP_SYS_NICE).
func TestAcquireReleaseRestoresAffinity(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	tid := unix.Gettid()

	var before unix.CPUSet
	require.NoError(t, unix.SchedGetaffinity(tid, &before))

	g := Acquire(0, 98, false)
	require.True(t, g.Active())

	var pinned unix.CPUSet
	require.NoError(t, unix.SchedGetaffinity(tid, &pinned))
	assert.Equal(t, 1, pinned.Count())
	assert.True(t, pinned.IsSet(0))

	g.Release()
	assert.False(t, g.Active())

	var after unix.CPUSet
	require.NoError(t, unix.SchedGetaffinity(tid, &after))
	assert.Equal(t, before, after)
}

func TestReleaseIsIdempotent(t *testing.T) {
	g := Acquire(-1, 50, false)
	g.Release()
	g.Release() // must be a no-op
	assert.False(t, g.Active())
}

func TestNegativeCoreSkipsAffinity(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	tid := unix.Gettid()

	var before unix.CPUSet
	require.NoError(t, unix.SchedGetaffinity(tid, &before))

	g := Acquire(-1, 10, false)
	var during unix.CPUSet
	require.NoError(t, unix.SchedGetaffinity(tid, &during))
	assert.Equal(t, before, during)
	g.Release()
}
