// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package mapper places precoded PDSCH symbols onto the resource grid.
package mapper

import (
	"github.com/omec-project/gnb/phy/grid"
	"github.com/omec-project/gnb/phy/pattern"
	"github.com/omec-project/gnb/phy/precoding"
)

// Mapper keeps scratch buffers between calls and must not be shared between
// goroutines.
type Mapper struct {
	mask     []bool
	reserved []bool
	ports    [][]complex64
}

// Map writes layer-interleaved symbols onto the REs of alloc that are not
// in reserved, symbol by symbol and in increasing subcarrier order within a
// symbol. The first reOffset eligible REs are skipped. It returns the number
// of REs written per port.
func (m *Mapper) Map(w grid.Writer, symbols []complex64, alloc *pattern.RePattern, reserved pattern.List,
	weights precoding.Weights, reOffset int,
) int {
	nofLayers := weights.NofLayers()
	nofRe := len(symbols) / nofLayers
	nofSubcarriers := len(alloc.PrbMask) * grid.NofSubcarriersPerRb
	m.resize(nofSubcarriers, weights.NofPorts())

	skip := reOffset
	mapped := 0
	for symbol := range alloc.Symbols {
		if mapped == nofRe {
			break
		}
		if !alloc.Symbols[symbol] {
			continue
		}
		clear(m.mask)
		clear(m.reserved)
		alloc.Mask(m.mask, symbol)
		reserved.Mask(m.reserved, symbol)
		count := 0
		for k := range m.mask {
			m.mask[k] = m.mask[k] && !m.reserved[k]
			if m.mask[k] {
				count++
			}
		}
		if skip >= count {
			skip -= count
			continue
		}

		// Keep the eligible REs in [skip, skip+take).
		take := min(count-skip, nofRe-mapped)
		seen := 0
		for k := range m.mask {
			if !m.mask[k] {
				continue
			}
			if seen < skip || seen >= skip+take {
				m.mask[k] = false
			}
			seen++
		}
		skip = 0

		weights.Apply(m.ports, symbols[mapped*nofLayers:(mapped+take)*nofLayers], take)
		for p, values := range m.ports {
			writeRuns(w, p, symbol, values[:take], m.mask)
		}
		mapped += take
	}
	return mapped
}

func (m *Mapper) resize(nofSubcarriers, nofPorts int) {
	if len(m.mask) != nofSubcarriers {
		m.mask = make([]bool, nofSubcarriers)
		m.reserved = make([]bool, nofSubcarriers)
	}
	if len(m.ports) != nofPorts || len(m.ports[0]) < nofSubcarriers {
		m.ports = make([][]complex64, nofPorts)
		for p := range m.ports {
			m.ports[p] = make([]complex64, nofSubcarriers)
		}
	}
}

// writeRuns writes values, in order, onto the subcarriers selected by mask.
func writeRuns(w grid.Writer, port, symbol int, values []complex64, mask []bool) {
	next := 0
	for k := 0; k < len(mask); {
		if !mask[k] {
			k++
			continue
		}
		end := k
		for end < len(mask) && mask[end] {
			end++
		}
		w.Put(port, symbol, k, values[next:next+end-k])
		next += end - k
		k = end
	}
}

// CountRes counts the REs of alloc outside reserved.
func CountRes(alloc *pattern.RePattern, reserved pattern.List) int {
	return alloc.NofRes() - reserved.CountInside(*alloc, len(alloc.PrbMask)*grid.NofSubcarriersPerRb)
}
