package membuf

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAndRelease(t *testing.T) {
	b := New(10000)
	assert.Len(t, b.Bytes(), 10000)

	// must be writable end to end
	data := b.Bytes()
	data[0] = 0xAA
	data[len(data)-1] = 0x55
	assert.Equal(t, byte(0xAA), b.Bytes()[0])
	assert.Equal(t, byte(0x55), b.Bytes()[len(data)-1])

	b.Release()
	assert.Nil(t, b.Bytes())
	b.Release() // second release is a no-op
}

func TestNewZero(t *testing.T) {
	b := New(0)
	assert.Nil(t, b.Bytes())
	assert.False(t, b.Locked())
	b.Release()
}

func TestMemlockLimitAllows(t *testing.T) {
	// whatever the environment's limit is, a zero-byte request always fits
	assert.True(t, memlockLimitAllows(0))
}
