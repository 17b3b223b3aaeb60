// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package sequence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

// reference steps the registers one output at a time.
func reference(cInit uint32, n int) []uint8 {
	x1 := make([]uint8, nc+n+31)
	x2 := make([]uint8, nc+n+31)
	x1[0] = 1
	for i := range 31 {
		x2[i] = uint8(cInit>>i) & 1
	}
	for i := 0; i < nc+n; i++ {
		x1[i+31] = x1[i+3] ^ x1[i]
		x2[i+31] = x2[i+3] ^ x2[i+2] ^ x2[i+1] ^ x2[i]
	}
	out := make([]uint8, n)
	for i := range out {
		out[i] = x1[i+nc] ^ x2[i+nc]
	}
	return out
}

func TestGoldMatchesBitwiseDefinition(t *testing.T) {
	for _, cInit := range []uint32{0, 1, 0x1234, 0x7fffffff} {
		want := reference(cInit, 300)
		got := make([]uint8, 300)
		NewGold(cInit).Bits(got)
		assert.Equal(t, want, got, "cInit=%#x", cInit)
	}
}

func TestGoldAdvance(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cInit := rapid.Uint32Range(0, 0x7fffffff).Draw(t, "cInit")
		offset := rapid.IntRange(0, 500).Draw(t, "offset")
		n := rapid.IntRange(1, 100).Draw(t, "n")

		want := reference(cInit, offset+n)[offset:]
		g := NewGold(cInit)
		g.Advance(offset)
		got := make([]uint8, n)
		g.Bits(got)
		if !assert.ObjectsAreEqual(want, got) {
			t.Fatalf("mismatch at offset %d", offset)
		}
	})
}

func TestXorBitsKeepsMarkers(t *testing.T) {
	in := []uint8{0, 1, 0xfe, 0, 1}
	out := make([]uint8, len(in))
	NewGold(7).XorBits(out, in)
	seq := reference(7, len(in))
	assert.Equal(t, seq[0], out[0])
	assert.Equal(t, 1^seq[1], out[1])
	assert.Equal(t, uint8(0xfe), out[2])
}
