// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package pdsch encodes transport blocks and maps them, together with their
// reference signals, onto the downlink resource grid.
package pdsch

import (
	"github.com/omec-project/gnb/phy/dmrs"
	"github.com/omec-project/gnb/phy/grid"
	"github.com/omec-project/gnb/phy/ldpc"
	"github.com/omec-project/gnb/phy/modulation"
	"github.com/omec-project/gnb/phy/pattern"
	"github.com/omec-project/gnb/phy/precoding"
	"github.com/omec-project/gnb/support/slot"
)

// Notifier is told once per Process call that every sample of the PDU is in
// the grid and the transport block is no longer used.
type Notifier interface {
	OnFinishProcessing()
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func()

func (f NotifierFunc) OnFinishProcessing() { f() }

// Processor encodes and maps one PDSCH transmission per Process call.
// Process may return before the work completes; the notifier signals the
// end. Processors accept concurrent calls for disjoint grid regions.
type Processor interface {
	Process(w grid.Writer, notifier Notifier, tbs [][]byte, pdu PDU)
}

type Codeword struct {
	Modulation modulation.Scheme
	Rv         int
	// TargetCodeRate is R x 1024, reported for information only.
	TargetCodeRate float32
	BaseGraph      ldpc.BaseGraph
	// TbsLbrmBytes is the transport block size for limited buffer rate
	// matching, 0 for an unlimited buffer.
	TbsLbrmBytes int
}

type PtrsConfig struct {
	TimeDensity int
	FreqDensity int
	ReOffset    int
	// DmrsPort is one of the DM-RS ports of the PDU.
	DmrsPort int
	// EpreRatioDb is the PT-RS to data EPRE ratio.
	EpreRatioDb float32
}

// PDU describes one PDSCH transmission.
type PDU struct {
	Slot       slot.Point
	Rnti       uint16
	BwpStartRb int
	BwpSizeRb  int
	// PrbMask selects the allocated blocks relative to the BWP start.
	PrbMask     []bool
	StartSymbol int
	NofSymbols  int

	DmrsSymbols             [slot.NofSymbolsPerSlot]bool
	DmrsType                dmrs.Type
	DmrsScramblingId        uint16
	NScid                   uint8
	NofCdmGroupsWithoutData int
	// Ports holds the DM-RS port of every layer.
	Ports []int

	// NId is the data scrambling identity, 0 to 1023.
	NId       uint16
	Codewords []Codeword
	Ptrs      *PtrsConfig
	Precoding precoding.Weights
	// Reserved holds REs that are not available for data.
	Reserved pattern.List

	RatioPdschDmrsToSssDb float32
	RatioPdschDataToSssDb float32
}

// crbMask returns the allocation indexed by common resource block.
func (p *PDU) crbMask() []bool {
	mask := make([]bool, p.BwpStartRb+len(p.PrbMask))
	copy(mask[p.BwpStartRb:], p.PrbMask)
	return mask
}

func (p *PDU) symbolMask() [slot.NofSymbolsPerSlot]bool {
	var symbols [slot.NofSymbolsPerSlot]bool
	for s := p.StartSymbol; s < p.StartSymbol+p.NofSymbols; s++ {
		symbols[s] = true
	}
	return symbols
}

// NofAllocatedPrbs counts the blocks set in the PRB mask.
func (p *PDU) NofAllocatedPrbs() int {
	n := 0
	for _, used := range p.PrbMask {
		if used {
			n++
		}
	}
	return n
}
