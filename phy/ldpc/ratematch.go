// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package ldpc

import "github.com/pkg/errors"

// RateMatchConfig parametrises the rate matching of one codeblock.
type RateMatchConfig struct {
	Rv         int
	BitsPerSym int
	// Nref is the limited buffer size, 0 for an unlimited buffer.
	Nref        int
	BaseGraph   BaseGraph
	LiftingSize int
}

// RateMatcher performs bit selection and bit interleaving. It keeps scratch
// buffers and must not be shared between goroutines.
type RateMatcher struct {
	selected []uint8
}

var k0Factors = map[BaseGraph][4]int{
	BG1: {0, 17, 33, 56},
	BG2: {0, 13, 25, 43},
}

// StartingPosition is k0 for a redundancy version and circular buffer
// length ncb.
func StartingPosition(bg BaseGraph, rv, ncb, z int) int {
	num := k0Factors[bg][rv]
	den := bg.CodeblockLength(z) / z
	return (num * ncb / (den * z)) * z
}

// Match selects len(out) bits from the codeword cw and interleaves them.
func (m *RateMatcher) Match(out, cw []uint8, cfg RateMatchConfig) error {
	if cfg.Rv < 0 || cfg.Rv > 3 {
		return errors.Errorf("invalid redundancy version %d", cfg.Rv)
	}
	e := len(out)
	if cfg.BitsPerSym <= 0 || e%cfg.BitsPerSym != 0 {
		return errors.Errorf("rate matching length %d is not a multiple of %d", e, cfg.BitsPerSym)
	}
	ncb := len(cw)
	if cfg.Nref > 0 {
		ncb = min(ncb, cfg.Nref)
	}
	k0 := StartingPosition(cfg.BaseGraph, cfg.Rv, ncb, cfg.LiftingSize)

	if cap(m.selected) < e {
		m.selected = make([]uint8, e)
	}
	sel := m.selected[:e]
	for k, j := 0, 0; k < e; j++ {
		b := cw[(k0+j)%ncb]
		if b == FillerBit {
			if j >= 2*ncb && k == 0 {
				return errors.New("circular buffer has no information bits")
			}
			continue
		}
		sel[k] = b
		k++
	}

	rows := cfg.BitsPerSym
	cols := e / rows
	for j := range cols {
		for i := range rows {
			out[i+j*rows] = sel[i*cols+j]
		}
	}
	return nil
}
