// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package ldpc

import "github.com/pkg/errors"

// Encoder computes LDPC codewords. An encoder keeps scratch buffers and
// must not be shared between goroutines.
type Encoder struct {
	full []uint8
}

// Encode encodes the K = SegmentLength(z) bits of msg into
// CodeblockLength(z) bits of out. Filler positions of msg count as zeros for
// the parity computation and are copied as FillerBit into out.
func (e *Encoder) Encode(out, msg []uint8, bg BaseGraph, z int) error {
	if !bg.Valid() {
		return errors.Errorf("invalid base graph %d", bg)
	}
	k := bg.SegmentLength(z)
	n := bg.CodeblockLength(z)
	if len(msg) != k {
		return errors.Errorf("message length %d, expected %d", len(msg), k)
	}
	if len(out) < n {
		return errors.Errorf("codeword buffer %d, expected %d", len(out), n)
	}

	g := graphOf(bg)
	total := bg.NofCols() * z
	if cap(e.full) < total {
		e.full = make([]uint8, total)
	}
	full := e.full[:total]
	clear(full[k:])
	for i, b := range msg {
		full[i] = b & 1
	}
	block := func(col int) []uint8 { return full[col*z : (col+1)*z] }

	kb := g.nofInfoCols
	lambda := make([][]uint8, nofCoreRows)
	for r := range nofCoreRows {
		lambda[r] = make([]uint8, z)
		for _, ed := range g.rows[r] {
			if ed.col < kb {
				rotateAdd(lambda[r], block(ed.col), ed.shift)
			}
		}
	}

	p0, p1, p2, p3 := block(kb), block(kb+1), block(kb+2), block(kb+3)
	for r := range nofCoreRows {
		for i := range z {
			p0[i] ^= lambda[r][i]
		}
	}
	shifted := make([]uint8, z)
	rotateAdd(shifted, p0, 1)
	for i := range z {
		p1[i] = lambda[0][i] ^ shifted[i]
		p2[i] = lambda[1][i] ^ p1[i]
		p3[i] = lambda[3][i] ^ shifted[i]
	}

	for r := nofCoreRows; r < len(g.rows); r++ {
		row := g.rows[r]
		parity := block(row[len(row)-1].col)
		for _, ed := range row[:len(row)-1] {
			rotateAdd(parity, block(ed.col), ed.shift)
		}
	}

	copy(out[:n], full[2*z:])
	for i := 2 * z; i < k; i++ {
		if msg[i] == FillerBit {
			out[i-2*z] = FillerBit
		}
	}
	return nil
}

// Check reports whether a full codeword, punctured columns included,
// satisfies every parity check.
func Check(codeword []uint8, bg BaseGraph, z int) bool {
	g := graphOf(bg)
	if len(codeword) != bg.NofCols()*z {
		return false
	}
	syndrome := make([]uint8, z)
	for _, row := range g.rows {
		clear(syndrome)
		for _, ed := range row {
			rotateAdd(syndrome, codeword[ed.col*z:(ed.col+1)*z], ed.shift)
		}
		for _, s := range syndrome {
			if s != 0 {
				return false
			}
		}
	}
	return true
}
