// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package downlink collects the channel processing of one slot into a
// resource grid and hands the grid over once every channel is done.
package downlink

import (
	"sync"

	"github.com/omec-project/gnb/logger"
	"github.com/omec-project/gnb/phy/grid"
	"github.com/omec-project/gnb/phy/pdsch"
	"github.com/omec-project/gnb/support/slot"
	"github.com/omec-project/gnb/support/tracing"
	"github.com/pkg/errors"
)

// Gateway receives finished grids.
type Gateway interface {
	OnGridReady(sl slot.Point, g *grid.Grid)
}

type GatewayFunc func(sl slot.Point, g *grid.Grid)

func (f GatewayFunc) OnGridReady(sl slot.Point, g *grid.Grid) { f(sl, g) }

var ErrGridBusy = errors.New("resource grid of the previous slot is still being processed")

// Processor handles the downlink of one slot at a time.
type Processor struct {
	mu        sync.Mutex
	pdsch     pdsch.Processor
	gateway   Gateway
	tracer    tracing.Tracer
	slot      slot.Point
	grid      *grid.Grid
	pending   int
	finishing bool
	sent      bool
}

func NewProcessor(p pdsch.Processor, gw Gateway) *Processor {
	return &Processor{
		pdsch:   p,
		gateway: gw,
		tracer:  tracing.FileTracer{Tid: "downlink"},
		slot:    slot.Invalid,
		sent:    true,
	}
}

// ConfigureResourceGrid starts a new slot on grid g.
func (p *Processor) ConfigureResourceGrid(sl slot.Point, g *grid.Grid) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.sent {
		return errors.Wrapf(ErrGridBusy, "configuring slot %s while %s is active", sl, p.slot)
	}
	p.slot = sl
	p.grid = g
	p.pending = 0
	p.finishing = false
	p.sent = false
	g.Reset()
	return nil
}

// ProcessPdsch encodes one PDSCH into the configured grid. PDUs for another
// slot are dropped.
func (p *Processor) ProcessPdsch(tb []byte, pdu pdsch.PDU) bool {
	p.mu.Lock()
	if p.sent || p.finishing {
		p.mu.Unlock()
		logger.PhyLog.Warnf("PDSCH for slot %s dropped: no grid configured", pdu.Slot)
		return false
	}
	if pdu.Slot != p.slot {
		p.mu.Unlock()
		logger.PhyLog.Warnf("PDSCH for slot %s dropped: grid is configured for %s", pdu.Slot, p.slot)
		return false
	}
	p.pending++
	g := p.grid
	p.mu.Unlock()

	p.pdsch.Process(g, pdsch.NotifierFunc(p.onPdschFinished), [][]byte{tb}, pdu)
	return true
}

// FinishProcessingPdus marks the end of the slot. The grid is sent once
// every PDSCH notified its completion.
func (p *Processor) FinishProcessingPdus() {
	p.mu.Lock()
	if p.sent || p.finishing {
		p.mu.Unlock()
		return
	}
	p.finishing = true
	p.trySendLocked()
}

func (p *Processor) onPdschFinished() {
	p.mu.Lock()
	p.pending--
	p.trySendLocked()
}

// trySendLocked releases the lock.
func (p *Processor) trySendLocked() {
	if !p.finishing || p.pending > 0 || p.sent {
		p.mu.Unlock()
		return
	}
	p.sent = true
	sl, g := p.slot, p.grid
	p.mu.Unlock()

	p.tracer.Instant("grid_ready", tracing.ScopeThread)
	p.gateway.OnGridReady(sl, g)
}

// Pool hands out one processor per slot in round robin.
type Pool struct {
	processors []*Processor
}

func NewPool(processors []*Processor) *Pool {
	return &Pool{processors: processors}
}

func (p *Pool) Get(sl slot.Point) *Processor {
	return p.processors[int(sl.Count())%len(p.processors)]
}
