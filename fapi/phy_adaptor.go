// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package fapi

import (
	"sync"

	"github.com/omec-project/gnb/logger"
	"github.com/omec-project/gnb/mac"
	"github.com/omec-project/gnb/phy/downlink"
	"github.com/omec-project/gnb/phy/grid"
	"github.com/omec-project/gnb/phy/pdsch"
	"github.com/omec-project/gnb/support/slot"
)

// PhyAdaptor turns the MAC results of a cell into downlink processor calls.
// The calls are queued on the buffered gateway and run when the PHY reaches
// the slot.
type PhyAdaptor struct {
	gateway *BufferedGateway
	pool    *downlink.Pool
	grids   func(sl slot.Point) *grid.Grid

	mu      sync.Mutex
	pending map[uint32][]pdsch.PDU
}

func NewPhyAdaptor(gw *BufferedGateway, pool *downlink.Pool, grids func(sl slot.Point) *grid.Grid) *PhyAdaptor {
	return &PhyAdaptor{gateway: gw, pool: pool, grids: grids, pending: make(map[uint32][]pdsch.PDU)}
}

var _ mac.CellResultNotifier = (*PhyAdaptor)(nil)

func (a *PhyAdaptor) OnNewDownlinkSchedulerResults(res mac.DlSchedResult) {
	a.mu.Lock()
	a.pending[res.Slot.Count()] = res.Pdschs
	a.mu.Unlock()

	proc := a.pool.Get(res.Slot)
	a.gateway.SendMessage(Message{Slot: res.Slot, Deliver: func() {
		if err := proc.ConfigureResourceGrid(res.Slot, a.grids(res.Slot)); err != nil {
			logger.FapiLog.Errorf("slot %s: %+v", res.Slot, err)
		}
	}})
}

func (a *PhyAdaptor) OnNewDownlinkData(res mac.DlDataResult) {
	a.mu.Lock()
	pdus := a.pending[res.Slot.Count()]
	delete(a.pending, res.Slot.Count())
	a.mu.Unlock()

	if len(pdus) != len(res.Tbs) {
		logger.FapiLog.Errorf("slot %s: %d transport blocks for %d PDSCH grants", res.Slot, len(res.Tbs), len(pdus))
		return
	}
	proc := a.pool.Get(res.Slot)
	a.gateway.SendMessage(Message{Slot: res.Slot, Deliver: func() {
		for i, pdu := range pdus {
			proc.ProcessPdsch(res.Tbs[i], pdu)
		}
	}})
}

func (a *PhyAdaptor) OnNewUplinkSchedulerResults(res mac.UlSchedResult) {
	logger.FapiLog.Debugf("slot %s: %d PUSCH, %d PUCCH grants", res.Slot, res.NofPuschs, res.NofPucchs)
}

func (a *PhyAdaptor) OnCellResultsCompletion(sl slot.Point) {
	proc := a.pool.Get(sl)
	a.gateway.SendMessage(Message{Slot: sl, Deliver: proc.FinishProcessingPdus})
}
