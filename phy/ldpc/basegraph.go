// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package ldpc implements quasi-cyclic LDPC channel coding with the NR code
// dimensions: base graph sizes, lifting sizes, segmentation and rate
// matching.
package ldpc

import "fmt"

// BaseGraph selects one of the two NR base graphs.
type BaseGraph uint8

const (
	BG1 BaseGraph = 1
	BG2 BaseGraph = 2
)

// FillerBit marks filler positions in codeblocks and codewords.
const FillerBit uint8 = 0xfe

const (
	nofCoreRows = 4
	maxShift    = 384
)

func (bg BaseGraph) Valid() bool {
	return bg == BG1 || bg == BG2
}

func (bg BaseGraph) String() string {
	if !bg.Valid() {
		return "invalid"
	}
	return fmt.Sprintf("BG%d", uint8(bg))
}

// NofInfoCols is the number of systematic columns.
func (bg BaseGraph) NofInfoCols() int {
	if bg == BG1 {
		return 22
	}
	return 10
}

func (bg BaseGraph) NofRows() int {
	if bg == BG1 {
		return 46
	}
	return 42
}

func (bg BaseGraph) NofCols() int {
	return bg.NofInfoCols() + bg.NofRows()
}

// MaxSegmentLength is K_cb, the largest codeblock before segmentation.
func (bg BaseGraph) MaxSegmentLength() int {
	if bg == BG1 {
		return 8448
	}
	return 3840
}

// SegmentLength is K, the encoder input length for lifting size z.
func (bg BaseGraph) SegmentLength(z int) int {
	return bg.NofInfoCols() * z
}

// CodeblockLength is N, the encoder output length for lifting size z. The
// first two systematic columns are punctured.
func (bg BaseGraph) CodeblockLength(z int) int {
	return (bg.NofCols() - 2) * z
}

type edge struct {
	col   int
	shift int
}

type baseGraph struct {
	nofInfoCols int
	rows        [][]edge
}

var graphs = map[BaseGraph]*baseGraph{
	BG1: buildGraph(BG1),
	BG2: buildGraph(BG2),
}

func graphOf(bg BaseGraph) *baseGraph {
	g, ok := graphs[bg]
	if !ok {
		panic(fmt.Sprintf("invalid LDPC base graph %d", bg))
	}
	return g
}

// mix is a 64-bit finalizer used to lay out the graph edges.
func mix(v uint64) uint64 {
	v ^= v >> 33
	v *= 0xff51afd7ed558ccd
	v ^= v >> 33
	v *= 0xc4ceb9fe1a85ec53
	v ^= v >> 33
	return v
}

// buildGraph lays out the parity check structure. The four core rows form a
// double diagonal over the first four parity columns so they can be solved
// in sequence; every extension row has its own identity parity column.
func buildGraph(bg BaseGraph) *baseGraph {
	kb := bg.NofInfoCols()
	nofRows := bg.NofRows()
	g := &baseGraph{nofInfoCols: kb, rows: make([][]edge, nofRows)}

	for r := range nofRows {
		var row []edge
		for c := range kb {
			h := mix(uint64(bg)<<48 | uint64(r)<<24 | uint64(c))
			connected := h%8 != 0
			if r >= nofCoreRows {
				connected = h%5 == 0 || c == r%kb
			}
			if connected {
				row = append(row, edge{col: c, shift: int((h >> 16) % maxShift)})
			}
		}
		switch r {
		case 0:
			row = append(row, edge{col: kb, shift: 1}, edge{col: kb + 1})
		case 1:
			row = append(row, edge{col: kb + 1}, edge{col: kb + 2})
		case 2:
			row = append(row, edge{col: kb}, edge{col: kb + 2}, edge{col: kb + 3})
		case 3:
			row = append(row, edge{col: kb, shift: 1}, edge{col: kb + 3})
		default:
			for k := range nofCoreRows {
				h := mix(uint64(bg)<<48 | uint64(r)<<24 | uint64(kb+k))
				if h%3 == 0 {
					row = append(row, edge{col: kb + k, shift: int((h >> 16) % maxShift)})
				}
			}
			row = append(row, edge{col: kb + r})
		}
		g.rows[r] = row
	}
	return g
}

// rotateAdd accumulates the column block shifted by s into acc:
// acc[i] ^= col[(i+s) mod z].
func rotateAdd(acc, col []uint8, s int) {
	z := len(acc)
	s %= z
	for i := 0; i < z-s; i++ {
		acc[i] ^= col[i+s] & 1
	}
	for i := z - s; i < z; i++ {
		acc[i] ^= col[i+s-z] & 1
	}
}
