// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

/*
Package progress provides the multi-line progress display used by the
correlation sweep: one animated row per core being measured, redrawn in
place on a terminal and reduced to status-change lines when output is
redirected.
*/
package progress

import (
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

var spinChars = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

type coreRow struct {
	coreID      int
	status      string
	statusIsNew bool
	spinIndex   int
}

// SweepDisplay renders one spinner row per core during a correlation sweep.
type SweepDisplay struct {
	mu       sync.Mutex
	rows     []coreRow
	ticker   *time.Ticker
	done     chan bool
	spinning bool
}

// NewSweepDisplay creates a display with one row per core, all pending.
func NewSweepDisplay(coreCount int) *SweepDisplay {
	d := &SweepDisplay{done: make(chan bool)}
	for i := range coreCount {
		d.rows = append(d.rows, coreRow{coreID: i, status: "pending"})
	}
	return d
}

// Start begins the redraw loop.
func (d *SweepDisplay) Start() {
	d.draw(true)
	d.ticker = time.NewTicker(250 * time.Millisecond)
	d.spinning = true
	go d.onTick()
}

// Finish stops the redraw loop and leaves the final state on screen.
func (d *SweepDisplay) Finish() {
	if d.spinning {
		d.ticker.Stop()
		d.done <- true
		d.draw(false)
		d.spinning = false
	}
}

// Status updates a core's status text. Safe from any goroutine.
func (d *SweepDisplay) Status(coreID int, status string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.rows {
		if d.rows[i].coreID == coreID {
			if status != d.rows[i].status {
				d.rows[i].status = status
				d.rows[i].statusIsNew = true
			}
			return
		}
	}
}

func (d *SweepDisplay) onTick() {
	for {
		select {
		case <-d.done:
			return
		case <-d.ticker.C:
			d.draw(true)
		}
	}
}

func (d *SweepDisplay) draw(goUp bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	onTerminal := term.IsTerminal(int(os.Stderr.Fd()))
	for i := range d.rows {
		// off-terminal, print only transitions so logs stay readable
		if !onTerminal && !d.rows[i].statusIsNew {
			continue
		}
		fmt.Fprintf(os.Stderr, "core %-3d  %s  %-40s\n", d.rows[i].coreID, spinChars[d.rows[i].spinIndex], d.rows[i].status)
		d.rows[i].statusIsNew = false
		d.rows[i].spinIndex = (d.rows[i].spinIndex + 1) % len(spinChars)
	}
	if goUp && onTerminal {
		for range d.rows {
			fmt.Fprintf(os.Stderr, "\x1b[1A")
		}
	}
}
