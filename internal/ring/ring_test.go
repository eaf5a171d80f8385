package ring

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFOOrder(t *testing.T) {
	q := NewSPSC[int](8)
	for i := range 8 {
		require.True(t, q.TryPush(i))
	}
	assert.False(t, q.TryPush(99), "push into a full queue must fail")
	assert.Equal(t, 8, q.Len())

	for i := range 8 {
		v, ok := q.TryPop()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	_, ok := q.TryPop()
	assert.False(t, ok, "pop from an empty queue must fail")
}

func TestWrapAround(t *testing.T) {
	q := NewSPSC[int](4)
	next := 0
	for round := 0; round < 10; round++ {
		for range 3 {
			require.True(t, q.TryPush(next))
			next++
		}
		for i := next - 3; i < next; i++ {
			v, ok := q.TryPop()
			require.True(t, ok)
			assert.Equal(t, i, v)
		}
	}
}

func TestMinimumCapacity(t *testing.T) {
	q := NewSPSC[int](0)
	assert.Equal(t, 2, q.Cap())
}

// A producer pushing at full speed while the consumer stalls must not lose
// any sample: the producer spins on the full queue and all elements arrive in
// order once the consumer resumes.
func TestProducerSpinsOnFullConsumerStalled(t *testing.T) {
	const total = 5000
	q := NewSPSC[int](64)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range total {
			for !q.TryPush(i) {
				runtime.Gosched()
			}
		}
	}()

	// let the producer fill the queue and start spinning
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, q.Cap(), q.Len())

	received := 0
	for received < total {
		v, ok := q.TryPop()
		if !ok {
			runtime.Gosched()
			continue
		}
		require.Equal(t, received, v, "out-of-order element")
		received++
	}
	<-done
	assert.Equal(t, total, received)
}
