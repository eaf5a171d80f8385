// Package engine wires the pipeline: blob reader -> real-time sampler ->
// SPSC ring -> processor -> published snapshots, plus the preflight pass that
// finds the interesting sensors. It owns goroutine lifecycle and shutdown
// ordering.
package engine

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"log/slog"
	"sync"

	"pmeye/internal/common"
	"pmeye/internal/correlate"
	"pmeye/internal/eye"
	"pmeye/internal/pmtable"
	"pmeye/internal/ring"
	"pmeye/internal/sampler"
)

// Config holds the pipeline parameters shared by all subcommands.
type Config struct {
	SamplerConfig sampler.Config
	RingCapacity  int
	// JitterReportInterval is the number of samples per jitter report.
	JitterReportInterval int
	// OnJitterReport, when set, receives each jitter report aggregate.
	OnJitterReport func(sampler.JitterStats)
}

// DefaultConfig returns the standard configuration: 600-deep ring,
// one jitter report per 10 s of samples.
func DefaultConfig() Config {
	return Config{
		SamplerConfig:        sampler.DefaultConfig(),
		RingCapacity:         600,
		JitterReportInterval: 10000,
	}
}

// Engine owns the sampler and processor goroutines and the shared flag
// handle. External threads interact through Commands, the published
// snapshots and the Cells engine.
type Engine struct {
	Flags common.Flags

	cfg       Config
	rdr       *pmtable.Reader
	queue     *ring.SPSC[sampler.RawSample]
	smp       *sampler.Sampler
	processor *eye.Processor
	commands  *eye.CommandQueue
	cells     *correlate.Engine
	jitter    *sampler.JitterMonitor

	wg      sync.WaitGroup
	started bool
}

// New builds the pipeline around an open pm_table reader and a sensor
// selection for the eye processor. The correlation cell engine observes every
// sensor regardless of the selection.
func New(cfg Config, rdr *pmtable.Reader, sel *eye.Selection, procCfg eye.ProcessorConfig) (*Engine, error) {
	if cfg.RingCapacity < 64 {
		return nil, fmt.Errorf("ring capacity %d below minimum 64", cfg.RingCapacity)
	}
	e := &Engine{
		cfg:      cfg,
		rdr:      rdr,
		queue:    ring.NewSPSC[sampler.RawSample](cfg.RingCapacity),
		commands: &eye.CommandQueue{},
		cells:    correlate.NewEngine(),
		jitter:   sampler.NewJitterMonitor(cfg.SamplerConfig.Period.Microseconds(), cfg.JitterReportInterval, 100),
	}
	e.jitter.OnReport = cfg.OnJitterReport

	smp, err := sampler.New(cfg.SamplerConfig, rdr, e.queue, e.jitter)
	if err != nil {
		return nil, err
	}
	e.smp = smp
	e.processor = eye.NewProcessor(procCfg, sel, e.commands, e.cells)
	return e, nil
}

// Start launches the sampler and processor goroutines and releases the start
// flag. No-op when already started.
func (e *Engine) Start() {
	if e.started {
		return
	}
	e.started = true
	e.Flags.Terminate.Store(false)
	e.Flags.Start.Store(false)
	e.Flags.Run.Store(true)

	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		e.smp.Run(&e.Flags)
	}()
	go func() {
		defer e.wg.Done()
		e.processor.Run(&e.Flags, e.queue)
	}()

	e.Flags.Start.Store(true)
	slog.Info("pipeline started",
		slog.Int("sensors", e.rdr.FloatCount()),
		slog.Int("tracked", e.processor.Selection().Count()),
		slog.Int("ring_capacity", e.queue.Cap()))
}

// Stop requests shutdown and joins the goroutines: terminate stops the
// processor, clearing run stops the sampler. Stimulus workers are owned by
// the caller and must be stopped first.
func (e *Engine) Stop() {
	if !e.started {
		return
	}
	e.Flags.Terminate.Store(true)
	e.Flags.Run.Store(false)
	e.wg.Wait()
	e.started = false
	slog.Info("pipeline stopped")
}

// Commands returns the processor's command queue.
func (e *Engine) Commands() *eye.CommandQueue {
	return e.commands
}

// Processor returns the eye processor for snapshot reads.
func (e *Engine) Processor() *eye.Processor {
	return e.processor
}

// Cells returns the correlation cell engine.
func (e *Engine) Cells() *correlate.Engine {
	return e.cells
}
