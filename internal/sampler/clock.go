package sampler

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"golang.org/x/sys/unix"
)

// NowNanos returns the CLOCK_MONOTONIC time in nanoseconds. Used instead of
// time.Now so deadlines can be handed to clock_nanosleep in absolute form.
func NowNanos() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return ts.Nano()
}

// WaitUntil blocks until the absolute CLOCK_MONOTONIC deadline using a hybrid
// sleep+spin: clock_nanosleep until deadline minus spinThreshold, then a busy
// spin for the remainder. The spin keeps the wakeup jitter in the
// low-microsecond range; the sleep keeps the core available for everyone else
// for the bulk of the period.
func WaitUntil(deadlineNS, spinThresholdNS int64) {
	now := NowNanos()
	if deadlineNS <= now {
		return
	}
	if deadlineNS-now > spinThresholdNS {
		ts := unix.NsecToTimespec(deadlineNS - spinThresholdNS)
		for {
			err := unix.ClockNanosleep(unix.CLOCK_MONOTONIC, unix.TIMER_ABSTIME, &ts, nil)
			if err != unix.EINTR {
				break
			}
		}
	}
	for NowNanos() < deadlineNS {
	}
}
