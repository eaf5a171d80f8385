package eye

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"log/slog"
	"time"

	"pmeye/internal/common"
	"pmeye/internal/ring"
	"pmeye/internal/sampler"
	"pmeye/internal/stats"
)

const (
	// historyMarginMS extends the pre-trigger sample history past the
	// window so edge samples are never lost to eviction races.
	historyMarginMS = 10

	defaultIdleSleep = 5 * time.Millisecond
)

// ProcessorConfig parameterizes the capture state machine.
type ProcessorConfig struct {
	WindowBeforeMS   int
	WindowAfterMS    int
	MaxAccumulations int
	TrimPercent      float64
	IdleSleep        time.Duration
}

// DefaultProcessorConfig returns the standard 50 ms / 150 ms window with a
// 30-deep accumulation cap and 10% trimmed means.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		WindowBeforeMS:   50,
		WindowAfterMS:    150,
		MaxAccumulations: 30,
		TrimPercent:      10,
		IdleSleep:        defaultIdleSleep,
	}
}

// CellSink receives every consumed sample, e.g., to maintain per-sensor
// statistics for the correlation engine. Called from the processor goroutine.
type CellSink interface {
	Observe(tsNS int64, values []float32)
}

// Processor consumes RawSamples from the SPSC ring, detects stimulus rising
// edges, bins in-window samples into the eye storage and publishes
// render-ready snapshots through atomic double-buffering. It exclusively owns
// the storage and both buffer sides; external readers only ever see published
// snapshot pointers.
type Processor struct {
	cfg  ProcessorConfig
	sel  *Selection
	cmds *CommandQueue
	sink CellSink

	storage *Storage
	buffers *doubleBuffer
	maxAcc  int

	history    []sampler.RawSample // rolling pre-trigger window
	historyCap int
	pending    []sampler.RawSample // history captured at the trigger instant
	trace      []sampler.RawSample // in-window samples of the current capture

	capturing bool
	lastPhase int32
	triggerNS int64

	consumed  uint64
	finalized uint64
}

// NewProcessor creates a processor for the given selection. sink may be nil.
func NewProcessor(cfg ProcessorConfig, sel *Selection, cmds *CommandQueue, sink CellSink) *Processor {
	if cfg.IdleSleep == 0 {
		cfg.IdleSleep = defaultIdleSleep
	}
	historyCap := cfg.WindowBeforeMS + historyMarginMS
	return &Processor{
		cfg:        cfg,
		sel:        sel,
		cmds:       cmds,
		sink:       sink,
		storage:    NewStorage(sel.Count(), cfg.WindowBeforeMS, cfg.WindowAfterMS),
		buffers:    newDoubleBuffer(sel, cfg.WindowBeforeMS, cfg.WindowAfterMS),
		maxAcc:     cfg.MaxAccumulations,
		history:    make([]sampler.RawSample, 0, historyCap),
		historyCap: historyCap,
		pending:    make([]sampler.RawSample, 0, historyCap),
		trace:      make([]sampler.RawSample, 0, cfg.WindowAfterMS+historyMarginMS),
	}
}

// Run consumes the ring until flags.Terminate is set. Commands are drained
// once per outer iteration; when the ring is empty the processor sleeps
// briefly instead of spinning.
func (p *Processor) Run(flags *common.Flags, queue *ring.SPSC[sampler.RawSample]) {
	for !flags.Terminate.Load() {
		p.DrainCommands()

		workDone := false
		for {
			s, ok := queue.TryPop()
			if !ok {
				break
			}
			workDone = true
			p.Process(&s)
		}
		if !workDone {
			time.Sleep(p.cfg.IdleSleep)
		}
	}
	slog.Info("processor stopped",
		slog.Uint64("samples", p.consumed),
		slog.Uint64("captures", p.finalized))
}

// DrainCommands applies all queued commands in order.
func (p *Processor) DrainCommands() {
	for {
		cmd, ok := p.cmds.TryPop()
		if !ok {
			return
		}
		switch c := cmd.(type) {
		case ChangeVictimCore:
			slog.Info("victim core changed, clearing eye state", slog.Int("core", c.CoreID))
			p.storage.Clear()
			p.history = p.history[:0]
			p.pending = p.pending[:0]
			p.trace = p.trace[:0]
			p.capturing = false
		case ChangeAccumulations:
			slog.Info("accumulation depth changed", slog.Int("cap", c.Cap))
			p.maxAcc = c.Cap
		}
	}
}

// Process runs the capture state machine over one sample.
func (p *Processor) Process(s *sampler.RawSample) {
	p.consumed++

	// rolling history backs the pre-trigger window
	if len(p.history) == p.historyCap {
		copy(p.history, p.history[1:])
		p.history = p.history[:p.historyCap-1]
	}
	p.history = append(p.history, *s)

	// rising edge: start (or restart) a capture. A new edge inside an open
	// window abandons the interrupted capture.
	if s.WorkerPhase == 1 && p.lastPhase == 0 {
		p.capturing = true
		p.triggerNS = s.TimestampNS
		p.trace = p.trace[:0]
		p.pending = append(p.pending[:0], p.history...)
		p.storage.RecordEvent()
	}
	p.lastPhase = s.WorkerPhase

	if p.capturing {
		deltaMS := (s.TimestampNS - p.triggerNS) / int64(time.Millisecond)
		if deltaMS >= 0 && deltaMS < int64(p.cfg.WindowAfterMS) {
			p.trace = append(p.trace, *s)
		} else if deltaMS >= int64(p.cfg.WindowAfterMS) {
			p.capturing = false
			p.finalizeCapture()
		}
	}

	if p.sink != nil {
		p.sink.Observe(s.TimestampNS, s.Values[:s.N])
	}
}

// finalizeCapture bins the pre-trigger history and the captured trace, trims
// the queues to the accumulation cap, rebuilds the write-side snapshots and
// publishes them.
func (p *Processor) finalizeCapture() {
	p.finalized++

	// pending holds the history as of the trigger instant; only its strictly
	// pre-trigger part is binned, the trigger sample itself leads the trace
	for i := range p.pending {
		if p.pending[i].TimestampNS < p.triggerNS {
			p.binSample(&p.pending[i])
		}
	}
	for i := range p.trace {
		p.binSample(&p.trace[i])
	}
	p.storage.Trim(p.maxAcc)

	side := p.buffers.writeSide()
	for storageIdx, snap := range side {
		snap.clearData()
		snap.WindowBeforeMS = p.cfg.WindowBeforeMS
		snap.WindowAfterMS = p.cfg.WindowAfterMS
		snap.OriginalSensorIndex = p.sel.OriginalAt(storageIdx)
		snap.AccumulationCount = len(p.storage.Bin(storageIdx, p.cfg.WindowBeforeMS))

		for bin := 0; bin < p.storage.NumBins(); bin++ {
			values := p.storage.Bin(storageIdx, bin)
			if len(values) == 0 {
				continue
			}
			lo, hi := values[0], values[0]
			for _, v := range values[1:] {
				if v < lo {
					lo = v
				}
				if v > hi {
					hi = v
				}
			}
			snap.XMS = append(snap.XMS, bin-p.cfg.WindowBeforeMS)
			snap.YMean = append(snap.YMean, stats.TrimmedMean(values, p.cfg.TrimPercent))
			snap.YMin = append(snap.YMin, lo)
			snap.YMax = append(snap.YMax, hi)
		}
	}
	p.buffers.publish()
}

func (p *Processor) binSample(s *sampler.RawSample) {
	deltaMS := (s.TimestampNS - p.triggerNS) / int64(time.Millisecond)
	bin := int(deltaMS) + p.cfg.WindowBeforeMS
	if bin < 0 || bin >= p.storage.NumBins() {
		return
	}
	for storageIdx, orig := range p.sel.Original() {
		if orig < int(s.N) {
			p.storage.Add(storageIdx, bin, s.Values[orig])
		}
	}
}

// Published returns the currently published snapshot for a storage index.
// Wait-free; safe from any goroutine.
func (p *Processor) Published(storageIdx int) *Snapshot {
	return p.buffers.Published(storageIdx)
}

// Selection returns the tracked sensor selection.
func (p *Processor) Selection() *Selection {
	return p.sel
}

// Capturing reports whether a capture window is open. Test hook; not
// synchronized with Run.
func (p *Processor) Capturing() bool {
	return p.capturing
}

// HistoryLen reports the rolling history depth. Test hook.
func (p *Processor) HistoryLen() int {
	return len(p.history)
}

// TraceLen reports the open capture's sample count. Test hook.
func (p *Processor) TraceLen() int {
	return len(p.trace)
}
