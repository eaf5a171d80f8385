package stimulus

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Pool runs one permanently-cycling worker per logical core for Mode B
// correlation sweeps. Each worker has period P_i drawn from doubled
// consecutive odd primes starting at 11 (22, 26, 34, ... ms); the doubling
// keeps no two periods in small-integer ratio, so cores never lock step.
// A worker spends the first third of its period busy when its is_busy flag
// is set, and always sleeps to the period boundary, so holding a worker at
// idle keeps it inside the same scheduling loop.
type Pool struct {
	coreCount int
	periods   []time.Duration

	mu      sync.Mutex
	running bool
	// persistent per-core enabled states; survive Stop/Start so a sweep can
	// restore what the operator had configured
	persistBusy []bool
	liveBusy    []*atomic.Bool
	stop        atomic.Bool
	wg          sync.WaitGroup
	startTime   time.Time

	// OnWorkerStart, when set, is invoked once by each worker on its own
	// goroutine before the first cycle, e.g., to apply a scheduling policy.
	OnWorkerStart func(coreID int)
}

// NewPool creates a pool for coreCount logical cores. All cores default to
// enabled.
func NewPool(coreCount int) *Pool {
	p := &Pool{
		coreCount:   coreCount,
		periods:     primePeriods(coreCount),
		persistBusy: make([]bool, coreCount),
		liveBusy:    make([]*atomic.Bool, coreCount),
	}
	for i := range p.persistBusy {
		p.persistBusy[i] = true
		p.liveBusy[i] = &atomic.Bool{}
	}
	return p
}

// Start launches one worker per core. No-op when already running.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	slog.Info("starting stress workers", slog.Int("cores", p.coreCount))
	p.stop.Store(false)
	p.startTime = time.Now()
	for i := range p.coreCount {
		p.liveBusy[i].Store(p.persistBusy[i])
		p.wg.Add(1)
		go p.worker(i)
		slog.Info("stress worker started",
			slog.Int("core", i),
			slog.Duration("period", p.periods[i]))
	}
	p.running = true
}

// Stop signals all workers and joins them. No-op when not running.
func (p *Pool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.stop.Store(true)
	p.wg.Wait()
	p.running = false
	slog.Info("all stress workers stopped")
}

// SetBusy changes a core's enabled state, both the persistent state and the
// live worker flag.
func (p *Pool) SetBusy(coreID int, busy bool) {
	if coreID < 0 || coreID >= p.coreCount {
		return
	}
	p.mu.Lock()
	p.persistBusy[coreID] = busy
	p.mu.Unlock()
	p.liveBusy[coreID].Store(busy)
}

// Busy returns a core's persistent enabled state.
func (p *Pool) Busy(coreID int) bool {
	if coreID < 0 || coreID >= p.coreCount {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.persistBusy[coreID]
}

// BusyStates returns a copy of the persistent per-core enabled states.
func (p *Pool) BusyStates() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	states := make([]bool, p.coreCount)
	copy(states, p.persistBusy)
	return states
}

// RestoreBusyStates re-applies a previously captured state vector.
func (p *Pool) RestoreBusyStates(states []bool) {
	for i, busy := range states {
		p.SetBusy(i, busy)
	}
}

// CoreCount returns the number of workers.
func (p *Pool) CoreCount() int {
	return p.coreCount
}

// Periods returns each worker's cycle period.
func (p *Pool) Periods() []time.Duration {
	return p.periods
}

// StartTime returns when the workers were launched; phase-known correlation
// partitions timestamps relative to it.
func (p *Pool) StartTime() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.startTime
}

func (p *Pool) worker(coreID int) {
	defer p.wg.Done()
	if pinSelf(coreID) {
		defer unpinSelf()
	}
	if p.OnWorkerStart != nil {
		p.OnWorkerStart(coreID)
	}

	period := p.periods[coreID]
	workDuration := period / 3
	busyFlag := p.liveBusy[coreID]

	for !p.stop.Load() {
		loopStart := time.Now()
		workEnd := loopStart.Add(workDuration)
		loopEnd := loopStart.Add(period)

		if busyFlag.Load() {
			for time.Now().Before(workEnd) {
				floatWorkload(500)
			}
		}
		if remaining := time.Until(loopEnd); remaining > 0 {
			time.Sleep(remaining)
		}
	}
}

// primePeriods generates n worker periods from consecutive odd primes
// starting at 11, doubled.
func primePeriods(n int) []time.Duration {
	periods := make([]time.Duration, 0, n)
	num := 11
	for len(periods) < n {
		if isPrime(num) {
			periods = append(periods, time.Duration(num*2)*time.Millisecond)
		}
		num += 2
	}
	return periods
}

func isPrime(num int) bool {
	for i := 2; i*i <= num; i++ {
		if num%i == 0 {
			return false
		}
	}
	return true
}
