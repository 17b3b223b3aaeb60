// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package pattern describes sets of resource elements within a slot as the
// product of a resource block mask, a subcarrier mask within each block and a
// symbol mask.
package pattern

import (
	"github.com/omec-project/gnb/phy/grid"
	"github.com/omec-project/gnb/support/slot"
)

// RePattern selects the REs at (symbol, k) with Symbols[symbol] set,
// PrbMask[k/12] set and ReMask[k%12] set. The PRB mask is indexed by common
// resource block.
type RePattern struct {
	PrbMask []bool
	ReMask  [grid.NofSubcarriersPerRb]bool
	Symbols [slot.NofSymbolsPerSlot]bool
}

// AllRes is the subcarrier mask with every RE of a block selected.
var AllRes = [grid.NofSubcarriersPerRb]bool{true, true, true, true, true, true, true, true, true, true, true, true}

// Includes reports whether the RE at (symbol, k) belongs to the pattern.
func (p *RePattern) Includes(symbol, k int) bool {
	rb := k / grid.NofSubcarriersPerRb
	if symbol < 0 || symbol >= len(p.Symbols) || !p.Symbols[symbol] || rb >= len(p.PrbMask) {
		return false
	}
	return p.PrbMask[rb] && p.ReMask[k%grid.NofSubcarriersPerRb]
}

// Mask sets mask[k] for every subcarrier of symbol selected by the pattern.
func (p *RePattern) Mask(mask []bool, symbol int) {
	if symbol < 0 || symbol >= len(p.Symbols) || !p.Symbols[symbol] {
		return
	}
	for rb, used := range p.PrbMask {
		if !used {
			continue
		}
		base := rb * grid.NofSubcarriersPerRb
		for re, sel := range p.ReMask {
			if sel && base+re < len(mask) {
				mask[base+re] = true
			}
		}
	}
}

// NofRes counts the REs selected by the pattern.
func (p *RePattern) NofRes() int {
	nofRbs, nofRes, nofSymbols := 0, 0, 0
	for _, used := range p.PrbMask {
		if used {
			nofRbs++
		}
	}
	for _, sel := range p.ReMask {
		if sel {
			nofRes++
		}
	}
	for _, sel := range p.Symbols {
		if sel {
			nofSymbols++
		}
	}
	return nofRbs * nofRes * nofSymbols
}

// List is the union of several patterns.
type List []RePattern

// Merge adds a pattern to the union.
func (l *List) Merge(p RePattern) {
	*l = append(*l, p)
}

// Clone returns a copy that can be merged into without changing l.
func (l List) Clone() List {
	return append(List(nil), l...)
}

func (l List) Includes(symbol, k int) bool {
	for i := range l {
		if l[i].Includes(symbol, k) {
			return true
		}
	}
	return false
}

// Mask sets mask[k] for every subcarrier of symbol selected by any pattern.
func (l List) Mask(mask []bool, symbol int) {
	for i := range l {
		l[i].Mask(mask, symbol)
	}
}

// CountInside counts the REs of p that fall inside the union.
func (l List) CountInside(p RePattern, nofSubcarriers int) int {
	inner := make([]bool, nofSubcarriers)
	outer := make([]bool, nofSubcarriers)
	count := 0
	for symbol := range p.Symbols {
		if !p.Symbols[symbol] {
			continue
		}
		clear(inner)
		clear(outer)
		p.Mask(inner, symbol)
		l.Mask(outer, symbol)
		for k := range inner {
			if inner[k] && outer[k] {
				count++
			}
		}
	}
	return count
}
