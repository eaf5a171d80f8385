// Package rtguard provides scoped acquisition of real-time scheduling for the
// calling goroutine's OS thread: pinned CPU affinity, SCHED_FIFO priority and
// optional memory locking. Everything captured at Acquire is restored by
// Release, in reverse order.
package rtguard

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"log/slog"
	"runtime"

	"golang.org/x/sys/unix"
)

// Guard holds the scheduling state saved from the calling thread. A Guard is
// bound to the OS thread it was acquired on; Release must be called from the
// same goroutine, typically via defer so restoration also happens on panic.
type Guard struct {
	active        bool
	coreID        int
	priority      int
	savedAttr     *unix.SchedAttr
	savedAffinity unix.CPUSet
	affinitySaved bool
	lockedMemory  bool
}

// Acquire locks the calling goroutine to its OS thread, saves the thread's
// scheduling policy, priority and CPU affinity, then pins it to coreID (if
// >= 0) and elevates it to SCHED_FIFO at the given priority (1..99). When
// lockMemory is set, current and future pages are locked into RAM if
// RLIMIT_MEMLOCK permits.
//
// Acquire is infallible at the API level: partial failures (typically a
// missing CAP_SYS_NICE) are logged only. Active reports true after every
// Acquire, whether or not pinning and elevation succeeded, so it does not tell
// a degraded guard from a fully elevated one. Release is always safe to call.
func Acquire(coreID, priority int, lockMemory bool) *Guard {
	runtime.LockOSThread()
	g := &Guard{coreID: coreID, priority: priority}
	tid := unix.Gettid()

	savedAttr, err := unix.SchedGetAttr(tid, 0)
	if err != nil {
		slog.Warn("failed to read thread scheduling attributes", slog.String("error", err.Error()))
	} else {
		g.savedAttr = savedAttr
	}

	if coreID >= 0 {
		if err := unix.SchedGetaffinity(tid, &g.savedAffinity); err != nil {
			slog.Warn("failed to read thread affinity", slog.String("error", err.Error()))
		} else {
			g.affinitySaved = true
		}
		var pinned unix.CPUSet
		pinned.Zero()
		pinned.Set(coreID)
		if err := unix.SchedSetaffinity(tid, &pinned); err != nil {
			slog.Warn("failed to pin thread", slog.Int("core", coreID), slog.String("error", err.Error()))
		}
	}

	elevated := true
	attr := &unix.SchedAttr{
		Size:     unix.SizeofSchedAttr,
		Policy:   unix.SCHED_FIFO,
		Priority: uint32(priority),
	}
	if err := unix.SchedSetAttr(tid, attr, 0); err != nil {
		slog.Warn("failed to set SCHED_FIFO, root or CAP_SYS_NICE may be required",
			slog.Int("priority", priority), slog.String("error", err.Error()))
		elevated = false
	}

	if lockMemory && memlockLimitNonZero() {
		if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
			slog.Warn("mlockall failed, continuing without locked memory", slog.String("error", err.Error()))
		} else {
			g.lockedMemory = true
		}
	}

	g.active = true
	if !elevated {
		slog.Warn("real-time guard active in degraded mode", slog.Int("core", coreID))
	}
	return g
}

// Active reports whether the guard holds saved state to restore.
func (g *Guard) Active() bool {
	return g.active
}

// Release restores the saved scheduling policy, priority and affinity, unlocks
// memory if it was locked, and unlocks the OS thread. No-op when the guard is
// not active.
func (g *Guard) Release() {
	if !g.active {
		return
	}
	g.active = false
	tid := unix.Gettid()

	if g.savedAttr != nil {
		if err := unix.SchedSetAttr(tid, g.savedAttr, 0); err != nil {
			slog.Warn("failed to restore thread scheduling", slog.String("error", err.Error()))
		}
	}
	if g.affinitySaved {
		if err := unix.SchedSetaffinity(tid, &g.savedAffinity); err != nil {
			slog.Warn("failed to restore thread affinity", slog.String("error", err.Error()))
		}
	}
	if g.lockedMemory {
		if err := unix.Munlockall(); err != nil {
			slog.Warn("munlockall failed", slog.String("error", err.Error()))
		}
		g.lockedMemory = false
	}
	runtime.UnlockOSThread()
}

func memlockLimitNonZero() bool {
	var limit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &limit); err != nil {
		return true
	}
	if limit.Cur == 0 {
		slog.Warn("RLIMIT_MEMLOCK is 0, skipping mlockall")
		return false
	}
	return true
}
