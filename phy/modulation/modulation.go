// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package modulation maps bits onto the NR constellations of TS 38.211
// section 5.1. Symbols are produced on the integer lattice; Scaling gives
// the factor that normalises them to unit average power.
package modulation

import (
	"fmt"
	"math"
)

// Scheme is identified by its number of bits per symbol.
type Scheme uint8

const (
	QPSK   Scheme = 2
	QAM16  Scheme = 4
	QAM64  Scheme = 6
	QAM256 Scheme = 8
)

func (s Scheme) Valid() bool {
	switch s {
	case QPSK, QAM16, QAM64, QAM256:
		return true
	}
	return false
}

func (s Scheme) BitsPerSymbol() int {
	return int(s)
}

func (s Scheme) String() string {
	switch s {
	case QPSK:
		return "QPSK"
	case QAM16:
		return "16QAM"
	case QAM64:
		return "64QAM"
	case QAM256:
		return "256QAM"
	}
	return fmt.Sprintf("invalid(%d)", uint8(s))
}

// Scaling normalises the integer constellation to unit average power.
func (s Scheme) Scaling() float32 {
	switch s {
	case QPSK:
		return float32(1 / math.Sqrt(2))
	case QAM16:
		return float32(1 / math.Sqrt(10))
	case QAM64:
		return float32(1 / math.Sqrt(42))
	case QAM256:
		return float32(1 / math.Sqrt(170))
	}
	return 0
}

// amplitude maps the bits of one axis, most significant first, to
// (1-2b0)(2^(m-1) - (1-2b1)(2^(m-2) - ...)).
func amplitude(bits []uint8) float32 {
	v := float32(1)
	for i := len(bits) - 1; i >= 1; i-- {
		v = float32(int(1)<<(len(bits)-i)) - float32(1-2*int(bits[i]&1))*v
	}
	return float32(1-2*int(bits[0]&1)) * v
}

// Modulate maps len(in)/BitsPerSymbol symbols into out. Even bits drive the
// in-phase axis and odd bits the quadrature axis.
func Modulate(out []complex64, in []uint8, s Scheme) {
	q := s.BitsPerSymbol()
	half := q / 2
	var re, im [4]uint8
	for i := range out {
		b := in[i*q : (i+1)*q]
		for j := range half {
			re[j] = b[2*j]
			im[j] = b[2*j+1]
		}
		out[i] = complex(amplitude(re[:half]), amplitude(im[:half]))
	}
}
