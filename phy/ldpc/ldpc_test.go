// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package ldpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEncodedCodewordsSatisfyParityChecks(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		bg := BaseGraph(rapid.IntRange(1, 2).Draw(t, "bg"))
		z := rapid.SampledFrom(LiftingSizes[:30]).Draw(t, "z")
		k := bg.SegmentLength(z)
		msg := rapid.SliceOfN(rapid.Uint8Range(0, 1), k, k).Draw(t, "msg")

		enc := &Encoder{}
		out := make([]uint8, bg.CodeblockLength(z))
		require.NoError(t, enc.Encode(out, msg, bg, z))

		full := append(append([]uint8(nil), msg[:2*z]...), out...)
		if !Check(full, bg, z) {
			t.Fatalf("parity check failed for %s z=%d", bg, z)
		}
	})
}

func TestEncoderKeepsFillerMarkers(t *testing.T) {
	z := 8
	msg := make([]uint8, BG2.SegmentLength(z))
	for i := len(msg) - 5; i < len(msg); i++ {
		msg[i] = FillerBit
	}
	msg[20] = 1
	out := make([]uint8, BG2.CodeblockLength(z))
	require.NoError(t, (&Encoder{}).Encode(out, msg, BG2, z))
	assert.Equal(t, FillerBit, out[len(msg)-1-2*z])
	assert.Equal(t, uint8(1), out[20-2*z])

	assert.Error(t, (&Encoder{}).Encode(out, msg[:10], BG2, z))
}

func TestSegmentation(t *testing.T) {
	assert.Equal(t, 16, TbCrcLength(3824))
	assert.Equal(t, 24, TbCrcLength(3832))
	assert.Equal(t, 1, NofCodeblocks(8448, BG1))
	assert.Equal(t, 2, NofCodeblocks(8449, BG1))
	assert.Equal(t, 2, NofCodeblocks(3841, BG2))

	z, err := SelectLiftingSize(BG1, 8448, 8448)
	require.NoError(t, err)
	assert.Equal(t, 384, z)

	z, err = SelectLiftingSize(BG2, 100, 100)
	require.NoError(t, err)
	assert.Equal(t, 18, z, "K_b is 6 for short blocks")
}

func TestRateMatchSkipsFillerAndInterleaves(t *testing.T) {
	z := 2
	n := BG2.CodeblockLength(z)
	cw := make([]uint8, n)
	for i := range cw {
		cw[i] = uint8(i % 2)
	}
	cw[1] = FillerBit
	cw[3] = FillerBit

	out := make([]uint8, 8)
	m := &RateMatcher{}
	require.NoError(t, m.Match(out, cw, RateMatchConfig{Rv: 0, BitsPerSym: 2, BaseGraph: BG2, LiftingSize: z}))
	// Selected bits: 0 0 0 1 0 1 0 1, read column-wise into 2 rows of 4.
	assert.Equal(t, []uint8{0, 0, 0, 1, 0, 0, 1, 1}, out)

	assert.Error(t, m.Match(make([]uint8, 3), cw, RateMatchConfig{BitsPerSym: 2, BaseGraph: BG2, LiftingSize: z}))
}

func TestStartingPosition(t *testing.T) {
	z := 10
	ncb := BG1.CodeblockLength(z)
	assert.Equal(t, 0, StartingPosition(BG1, 0, ncb, z))
	assert.Equal(t, 17*z, StartingPosition(BG1, 1, ncb, z))
	assert.Equal(t, 56*z, StartingPosition(BG1, 3, ncb, z))
	assert.Equal(t, 25*z, StartingPosition(BG2, 2, BG2.CodeblockLength(z), z))
}
