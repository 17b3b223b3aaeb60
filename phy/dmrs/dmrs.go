// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package dmrs generates the PDSCH demodulation reference signals of
// TS 38.211 section 7.4.1.1 for single symbol DM-RS.
package dmrs

import (
	"github.com/omec-project/gnb/phy/grid"
	"github.com/omec-project/gnb/phy/pattern"
	"github.com/omec-project/gnb/phy/precoding"
	"github.com/omec-project/gnb/phy/sequence"
	"github.com/omec-project/gnb/support/slot"
)

type Type uint8

const (
	Type1 Type = 1
	Type2 Type = 2
)

func (t Type) Valid() bool { return t == Type1 || t == Type2 }

// NofDmrsPerRb is the number of sequence elements per resource block.
func (t Type) NofDmrsPerRb() int {
	if t == Type1 {
		return 6
	}
	return 4
}

func (t Type) NofCdmGroups() int {
	if t == Type1 {
		return 2
	}
	return 3
}

// MaxPorts is the number of single symbol DM-RS ports.
func (t Type) MaxPorts() int {
	if t == Type1 {
		return 4
	}
	return 6
}

// CdmGroup returns the CDM group of a port, counting ports from 1000.
func (t Type) CdmGroup(port int) int {
	return port / 2
}

// delta is the subcarrier offset of a port's CDM group.
func (t Type) delta(port int) int {
	if t == Type1 {
		return t.CdmGroup(port)
	}
	return 2 * t.CdmGroup(port)
}

// frequencyOcc is w_f(k') for a port.
func frequencyOcc(port, kPrime int) float32 {
	if port%2 == 1 && kPrime == 1 {
		return -1
	}
	return 1
}

// subcarrier returns k within a resource block for the sequence element idx
// of that block.
func (t Type) subcarrier(port, idx int) int {
	n, kPrime := idx/2, idx%2
	if t == Type1 {
		return 4*n + 2*kPrime + t.delta(port)
	}
	return 6*n + kPrime + t.delta(port)
}

// InitialState is c_init for a symbol of a slot.
func InitialState(slotIdx uint32, symbol int, nId uint16, nScid uint8) uint32 {
	v := (uint64(1) << 17) * uint64(slot.NofSymbolsPerSlot*uint64(slotIdx)+uint64(symbol)+1) * (2*uint64(nId) + 1)
	v += 2*uint64(nId) + uint64(nScid)
	return uint32(v % (1 << 31))
}

// Pattern returns the REs of the first nofCdmGroups CDM groups on the DM-RS
// symbols. PDSCH data is not mapped there.
func Pattern(t Type, prbMask []bool, symbols [slot.NofSymbolsPerSlot]bool, nofCdmGroups int) pattern.RePattern {
	p := pattern.RePattern{PrbMask: prbMask, Symbols: symbols}
	for group := range nofCdmGroups {
		for idx := range t.NofDmrsPerRb() {
			p.ReMask[t.subcarrier(2*group, idx)] = true
		}
	}
	return p
}

// Config describes the DM-RS transmission of one PDSCH.
type Config struct {
	Slot         slot.Point
	Type         Type
	ScramblingId uint16
	NScid        uint8
	Amplitude    float32
	Symbols      [slot.NofSymbolsPerSlot]bool
	// PrbMask is indexed by common resource block.
	PrbMask []bool
	// Ports holds the DM-RS port of each layer.
	Ports     []int
	Precoding precoding.Weights
}

func prbRange(mask []bool) (first, last int) {
	first, last = -1, -1
	for rb, used := range mask {
		if used {
			if first < 0 {
				first = rb
			}
			last = rb
		}
	}
	return first, last
}

// Generate writes the precoded DM-RS of every layer into the grid.
func Generate(w grid.Writer, cfg Config) {
	first, last := prbRange(cfg.PrbMask)
	if first < 0 {
		return
	}
	perRb := cfg.Type.NofDmrsPerRb()
	nofSubcarriers := (last + 1) * grid.NofSubcarriersPerRb
	nofLayers := len(cfg.Ports)

	layers := make([][]complex64, nofLayers)
	for l := range layers {
		layers[l] = make([]complex64, nofSubcarriers)
	}
	used := make([]bool, nofSubcarriers)
	for rb := first; rb <= last; rb++ {
		if !cfg.PrbMask[rb] {
			continue
		}
		for _, port := range cfg.Ports {
			for idx := range perRb {
				used[rb*grid.NofSubcarriersPerRb+cfg.Type.subcarrier(port, idx)] = true
			}
		}
	}

	seq := make([]complex64, (last-first+1)*perRb)
	out := make([]complex64, nofSubcarriers)
	gen := &sequence.Gold{}
	for symbol, isDmrs := range cfg.Symbols {
		if !isDmrs {
			continue
		}
		gen.Init(InitialState(cfg.Slot.SlotIndex(), symbol, cfg.ScramblingId, cfg.NScid))
		gen.Advance(2 * perRb * first)
		gen.Qpsk(seq, cfg.Amplitude)

		for l, port := range cfg.Ports {
			clear(layers[l])
			for rb := first; rb <= last; rb++ {
				if !cfg.PrbMask[rb] {
					continue
				}
				for idx := range perRb {
					k := rb*grid.NofSubcarriersPerRb + cfg.Type.subcarrier(port, idx)
					layers[l][k] = seq[(rb-first)*perRb+idx] * complex(frequencyOcc(port, idx%2), 0)
				}
			}
		}
		for p := range cfg.Precoding.NofPorts() {
			weights := cfg.Precoding.Port(p)
			for k := range out {
				var acc complex64
				for l := range nofLayers {
					acc += weights[l] * layers[l][k]
				}
				out[k] = acc
			}
			writeRuns(w, p, symbol, out, used)
		}
	}
}

// writeRuns writes the samples of values selected by mask, grouping
// consecutive subcarriers into a single write.
func writeRuns(w grid.Writer, port, symbol int, values []complex64, mask []bool) {
	for k := 0; k < len(mask); {
		if !mask[k] {
			k++
			continue
		}
		end := k
		for end < len(mask) && mask[end] {
			end++
		}
		w.Put(port, symbol, k, values[k:end])
		k = end
	}
}
