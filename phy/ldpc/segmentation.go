// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package ldpc

import "github.com/pkg/errors"

// LiftingSizes lists every lifting size Z_c in increasing order.
var LiftingSizes = []int{
	2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 18, 20, 22, 24, 26, 28, 30, 32, 36, 40,
	44, 48, 52, 56, 60, 64, 72, 80, 88, 96, 104, 112, 120, 128, 144, 160, 176, 192, 208, 224,
	240, 256, 288, 320, 352, 384,
}

const CbCrcLength = 24

// TbCrcLength is the transport block CRC size for tbs bits.
func TbCrcLength(tbs int) int {
	if tbs > 3824 {
		return 24
	}
	return 16
}

// NofCodeblocks is C for a transport block of b bits including its CRC.
func NofCodeblocks(b int, bg BaseGraph) int {
	kcb := bg.MaxSegmentLength()
	if b <= kcb {
		return 1
	}
	return (b + kcb - CbCrcLength - 1) / (kcb - CbCrcLength)
}

// nofSystematicCols is K_b, the number of columns the lifting size is
// selected for.
func nofSystematicCols(bg BaseGraph, b int) int {
	if bg == BG1 {
		return 22
	}
	switch {
	case b > 640:
		return 10
	case b > 560:
		return 9
	case b > 192:
		return 8
	default:
		return 6
	}
}

// SelectLiftingSize returns the smallest Z_c with K_b*Z_c >= kPrime, where b
// is the transport block length including its CRC.
func SelectLiftingSize(bg BaseGraph, b, kPrime int) (int, error) {
	kb := nofSystematicCols(bg, b)
	for _, z := range LiftingSizes {
		if kb*z >= kPrime {
			return z, nil
		}
	}
	return 0, errors.Errorf("no lifting size for %d bits with %s", kPrime, bg)
}
