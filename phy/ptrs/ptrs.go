// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package ptrs generates the PDSCH phase tracking reference signals of
// TS 38.211 section 7.4.1.2.
package ptrs

import (
	"github.com/omec-project/gnb/phy/dmrs"
	"github.com/omec-project/gnb/phy/grid"
	"github.com/omec-project/gnb/phy/pattern"
	"github.com/omec-project/gnb/phy/precoding"
	"github.com/omec-project/gnb/phy/sequence"
	"github.com/omec-project/gnb/support/slot"
)

// Config describes the PT-RS of one PDSCH.
type Config struct {
	Slot         slot.Point
	Rnti         uint16
	DmrsType     dmrs.Type
	ScramblingId uint16
	NScid        uint8
	DmrsSymbols  [slot.NofSymbolsPerSlot]bool
	StartSymbol  int
	NofSymbols   int
	// PrbMask is indexed by common resource block.
	PrbMask []bool
	// TimeDensity is L_PT-RS in {1, 2, 4}.
	TimeDensity int
	// FreqDensity is K_PT-RS in {2, 4}.
	FreqDensity int
	// ReOffset selects the resource element offset, 0 to 3.
	ReOffset int
	// DmrsPort is the DM-RS port the PT-RS port is associated with.
	DmrsPort  int
	Amplitude float32
	// Precoding has a single layer.
	Precoding precoding.Weights
}

var reOffsetType1 = [4][4]int{
	{0, 2, 6, 8},
	{2, 4, 8, 10},
	{1, 3, 7, 9},
	{3, 5, 9, 11},
}

var reOffsetType2 = [6][4]int{
	{0, 1, 6, 7},
	{1, 6, 7, 0},
	{2, 3, 8, 9},
	{3, 8, 9, 2},
	{4, 5, 10, 11},
	{5, 10, 11, 4},
}

// SubcarrierOffset is k_ref within a resource block.
func SubcarrierOffset(t dmrs.Type, dmrsPort, reOffset int) int {
	if t == dmrs.Type1 {
		return reOffsetType1[dmrsPort][reOffset]
	}
	return reOffsetType2[dmrsPort][reOffset]
}

// TimePattern returns the PT-RS symbols of the allocation.
func TimePattern(cfg *Config) [slot.NofSymbolsPerSlot]bool {
	var symbols [slot.NofSymbolsPerSlot]bool
	l := cfg.TimeDensity
	i, lRef := 0, 0
	for lRef+i*l < cfg.NofSymbols {
		lo := max(lRef+(i-1)*l+1, lRef)
		hi := lRef + i*l
		overlap := -1
		for s := lo; s <= hi; s++ {
			if cfg.DmrsSymbols[cfg.StartSymbol+s] {
				overlap = s
			}
		}
		if overlap >= 0 {
			i, lRef = 1, overlap
			continue
		}
		symbols[cfg.StartSymbol+lRef+i*l] = true
		i++
	}
	return symbols
}

// Prbs returns the common resource blocks that carry PT-RS.
func Prbs(cfg *Config) []int {
	var allocated []int
	for rb, used := range cfg.PrbMask {
		if used {
			allocated = append(allocated, rb)
		}
	}
	nofRbs := len(allocated)
	if nofRbs == 0 {
		return nil
	}
	k := cfg.FreqDensity
	var rbRef int
	if nofRbs%k == 0 {
		rbRef = int(cfg.Rnti) % k
	} else {
		rbRef = int(cfg.Rnti) % (nofRbs % k)
	}
	var prbs []int
	for i := rbRef; i < nofRbs; i += k {
		prbs = append(prbs, allocated[i])
	}
	return prbs
}

// Pattern returns the REs occupied by PT-RS.
func Pattern(cfg *Config) pattern.RePattern {
	p := pattern.RePattern{Symbols: TimePattern(cfg), PrbMask: make([]bool, len(cfg.PrbMask))}
	for _, rb := range Prbs(cfg) {
		p.PrbMask[rb] = true
	}
	p.ReMask[SubcarrierOffset(cfg.DmrsType, cfg.DmrsPort, cfg.ReOffset)] = true
	return p
}

// sequenceIndex maps an absolute subcarrier of the associated DM-RS port to
// the DM-RS sequence element transmitted there.
func sequenceIndex(t dmrs.Type, port, k int) int {
	if t == dmrs.Type1 {
		delta := t.CdmGroup(port)
		return (k - delta) / 2
	}
	delta := 2 * t.CdmGroup(port)
	return 2*((k-delta)/6) + (k-delta)%6
}

// Generate writes the precoded PT-RS into the grid. The sequence is the
// DM-RS sequence of the first DM-RS symbol at the PT-RS subcarriers.
func Generate(w grid.Writer, cfg Config) {
	prbs := Prbs(&cfg)
	if len(prbs) == 0 {
		return
	}
	firstDmrs := -1
	for s, used := range cfg.DmrsSymbols {
		if used {
			firstDmrs = s
			break
		}
	}
	if firstDmrs < 0 {
		return
	}

	kRef := SubcarrierOffset(cfg.DmrsType, cfg.DmrsPort, cfg.ReOffset)
	last := prbs[len(prbs)-1]
	seq := make([]complex64, (last+1)*cfg.DmrsType.NofDmrsPerRb())
	gen := sequence.NewGold(dmrs.InitialState(cfg.Slot.SlotIndex(), firstDmrs, cfg.ScramblingId, cfg.NScid))
	gen.Qpsk(seq, cfg.Amplitude)

	values := make([]complex64, len(prbs))
	for i, rb := range prbs {
		values[i] = seq[sequenceIndex(cfg.DmrsType, cfg.DmrsPort, rb*grid.NofSubcarriersPerRb+kRef)]
	}

	var sample [1]complex64
	for symbol, used := range TimePattern(&cfg) {
		if !used {
			continue
		}
		for p := range cfg.Precoding.NofPorts() {
			weight := cfg.Precoding.Get(p, 0)
			for i, rb := range prbs {
				sample[0] = values[i] * weight
				w.Put(p, symbol, rb*grid.NofSubcarriersPerRb+kRef, sample[:])
			}
		}
	}
}
