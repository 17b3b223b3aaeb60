// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package sequence generates the length-31 Gold pseudo-random sequence of
// TS 38.211 section 5.2.1.
package sequence

import "math"

const (
	// nc is the number of discarded initial outputs.
	nc = 1600

	// step is the largest number of outputs computed with one register update.
	step     = 28
	stepMask = 1<<step - 1
)

// Gold is a pseudo-random generator. Bit i of each register holds the
// sequence value at the current position plus i.
type Gold struct {
	x1 uint32
	x2 uint32
}

// NewGold returns a generator initialised with cInit and positioned at the
// first output c(0).
func NewGold(cInit uint32) *Gold {
	g := &Gold{}
	g.Init(cInit)
	return g
}

func (g *Gold) Init(cInit uint32) {
	g.x1 = 1
	g.x2 = cInit & 0x7fffffff
	g.Advance(nc)
}

func (g *Gold) next(n uint) uint32 {
	mask := uint32(1)<<n - 1
	out := (g.x1 ^ g.x2) & mask
	n1 := ((g.x1 >> 3) ^ g.x1) & mask
	n2 := ((g.x2 >> 3) ^ (g.x2 >> 2) ^ (g.x2 >> 1) ^ g.x2) & mask
	g.x1 = (g.x1 >> n) | (n1 << (31 - n))
	g.x2 = (g.x2 >> n) | (n2 << (31 - n))
	return out
}

// Advance skips n outputs.
func (g *Gold) Advance(n int) {
	for ; n >= step; n -= step {
		g.next(step)
	}
	if n > 0 {
		g.next(uint(n))
	}
}

// Bits writes the next len(out) outputs, one bit per byte.
func (g *Gold) Bits(out []uint8) {
	for i := 0; i < len(out); {
		n := min(step, len(out)-i)
		word := g.next(uint(n))
		for j := range n {
			out[i+j] = uint8(word>>j) & 1
		}
		i += n
	}
}

// XorBits scrambles in into out with the next len(in) outputs. Values other
// than 0 and 1 in the input are copied unchanged.
func (g *Gold) XorBits(out, in []uint8) {
	for i := 0; i < len(in); {
		n := min(step, len(in)-i)
		word := g.next(uint(n))
		for j := range n {
			b := in[i+j]
			if b <= 1 {
				b ^= uint8(word>>j) & 1
			}
			out[i+j] = b
		}
		i += n
	}
}

// Qpsk writes amplitude*((1-2c(2n)) + j(1-2c(2n+1)))/sqrt(2) for each
// element of out.
func (g *Gold) Qpsk(out []complex64, amplitude float32) {
	a := amplitude * float32(1/math.Sqrt2)
	bits := make([]uint8, 2*len(out))
	g.Bits(bits)
	for i := range out {
		re := a * float32(1-2*int(bits[2*i]))
		im := a * float32(1-2*int(bits[2*i+1]))
		out[i] = complex(re, im)
	}
}
