// Package membuf provides page-rounded, optionally RAM-locked backing stores
// for sample buffers used on the real-time path. Locking keeps the sampler
// from taking page faults mid-period; failure to lock is reported but not
// fatal.
package membuf

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"log/slog"
	"os"

	"golang.org/x/sys/unix"
)

// Buffer is a byte buffer backed by an anonymous mapping when possible, with
// a plain heap fallback. Release must be called when the buffer is no longer
// needed; after Release the buffer must not be used.
type Buffer struct {
	data   []byte
	length int
	mapped bool
	locked bool
}

// New allocates a buffer of at least the requested size. The mapping is
// rounded up to whole pages and locked into RAM if RLIMIT_MEMLOCK permits.
// New never fails: if the mapping cannot be created the buffer falls back to
// the heap, unlocked.
func New(bytes int) *Buffer {
	b := &Buffer{length: bytes}
	if bytes <= 0 {
		return b
	}

	pageSize := os.Getpagesize()
	rounded := (bytes + pageSize - 1) / pageSize * pageSize

	data, err := unix.Mmap(-1, 0, rounded, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		slog.Warn("mmap failed, falling back to heap allocation",
			slog.Int("bytes", rounded), slog.String("error", err.Error()))
		b.data = make([]byte, bytes)
		return b
	}
	b.data = data
	b.mapped = true

	if !memlockLimitAllows(rounded) {
		slog.Warn("RLIMIT_MEMLOCK too small, proceeding without locked memory",
			slog.Int("bytes", rounded))
		return b
	}
	if err := unix.Mlock(b.data); err != nil {
		slog.Warn("mlock failed, proceeding without locked memory",
			slog.Int("bytes", rounded), slog.String("error", err.Error()))
		return b
	}
	b.locked = true
	return b
}

// Bytes returns the usable slice, sized to the originally requested length.
func (b *Buffer) Bytes() []byte {
	if b.data == nil {
		return nil
	}
	return b.data[:b.length]
}

// Locked reports whether the buffer is locked into RAM.
func (b *Buffer) Locked() bool {
	return b.locked
}

// Release unlocks and unmaps (or frees) the backing store. Safe to call more
// than once.
func (b *Buffer) Release() {
	if b.data == nil {
		return
	}
	if b.mapped {
		if b.locked {
			if err := unix.Munlock(b.data); err != nil {
				slog.Warn("munlock failed", slog.String("error", err.Error()))
			}
		}
		if err := unix.Munmap(b.data); err != nil {
			slog.Warn("munmap failed", slog.String("error", err.Error()))
		}
	}
	b.data = nil
	b.locked = false
	b.mapped = false
}

// memlockLimitAllows checks RLIMIT_MEMLOCK before attempting to lock, to
// avoid mlock calls that are certain to fail.
func memlockLimitAllows(bytes int) bool {
	var limit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &limit); err != nil {
		// can't tell; let mlock decide
		return true
	}
	if limit.Cur == unix.RLIM_INFINITY {
		return true
	}
	return uint64(bytes) <= limit.Cur
}
