// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package grid holds the per-slot downlink resource grid.
package grid

import "fmt"

// NofSubcarriersPerRb is the number of subcarriers in a resource block.
const NofSubcarriersPerRb = 12

// Writer stores complex samples into a grid. Concurrent writers are allowed
// as long as they target disjoint (port, symbol, subcarrier) triples.
type Writer interface {
	// Put writes values into consecutive subcarriers starting at subcarrier.
	Put(port, symbol, subcarrier int, values []complex64)
}

type Reader interface {
	Get(port, symbol, subcarrier int) complex64
}

// Grid is a dense ports x symbols x subcarriers sample buffer. Subcarrier 0
// is the first subcarrier of common resource block 0.
type Grid struct {
	nofPorts       int
	nofSymbols     int
	nofSubcarriers int
	data           []complex64
}

func New(nofPorts, nofSymbols, nofRbs int) *Grid {
	nofSubcarriers := nofRbs * NofSubcarriersPerRb
	return &Grid{
		nofPorts:       nofPorts,
		nofSymbols:     nofSymbols,
		nofSubcarriers: nofSubcarriers,
		data:           make([]complex64, nofPorts*nofSymbols*nofSubcarriers),
	}
}

func (g *Grid) NofPorts() int       { return g.nofPorts }
func (g *Grid) NofSymbols() int     { return g.nofSymbols }
func (g *Grid) NofSubcarriers() int { return g.nofSubcarriers }
func (g *Grid) NofRbs() int         { return g.nofSubcarriers / NofSubcarriersPerRb }

func (g *Grid) offset(port, symbol, subcarrier int) int {
	return (port*g.nofSymbols+symbol)*g.nofSubcarriers + subcarrier
}

func (g *Grid) Put(port, symbol, subcarrier int, values []complex64) {
	if port >= g.nofPorts || symbol >= g.nofSymbols || subcarrier+len(values) > g.nofSubcarriers {
		panic(fmt.Sprintf("grid write out of range: port=%d symbol=%d subcarriers=[%d, %d)",
			port, symbol, subcarrier, subcarrier+len(values)))
	}
	copy(g.data[g.offset(port, symbol, subcarrier):], values)
}

func (g *Grid) Get(port, symbol, subcarrier int) complex64 {
	return g.data[g.offset(port, symbol, subcarrier)]
}

// Symbol returns the samples of one OFDM symbol of a port.
func (g *Grid) Symbol(port, symbol int) []complex64 {
	start := g.offset(port, symbol, 0)
	return g.data[start : start+g.nofSubcarriers]
}

// Reset zeroes every sample.
func (g *Grid) Reset() {
	clear(g.data)
}

// Equal reports whether both grids have the same shape and samples.
func (g *Grid) Equal(o *Grid) bool {
	if g.nofPorts != o.nofPorts || g.nofSymbols != o.nofSymbols || g.nofSubcarriers != o.nofSubcarriers {
		return false
	}
	for i := range g.data {
		if g.data[i] != o.data[i] {
			return false
		}
	}
	return true
}
