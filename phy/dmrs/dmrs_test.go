// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package dmrs

import (
	"math"
	"testing"

	"github.com/omec-project/gnb/phy/grid"
	"github.com/omec-project/gnb/phy/precoding"
	"github.com/omec-project/gnb/support/slot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialState(t *testing.T) {
	// n_s = 0, l = 2, N_ID = 0, n_SCID = 0 gives 2^17 * 3.
	assert.Equal(t, uint32(3<<17), InitialState(0, 2, 0, 0))
	assert.Less(t, InitialState(159, 13, 65535, 1), uint32(1<<31))
}

func TestPatternCdmGroups(t *testing.T) {
	var symbols [slot.NofSymbolsPerSlot]bool
	symbols[2] = true
	p := Pattern(Type1, []bool{true}, symbols, 1)
	assert.Equal(t, 6, p.NofRes())
	assert.True(t, p.Includes(2, 0))
	assert.False(t, p.Includes(2, 1))

	p = Pattern(Type2, []bool{true}, symbols, 3)
	assert.Equal(t, 12, p.NofRes())
}

func TestGenerateWritesOnlyPortRes(t *testing.T) {
	prbMask := []bool{false, true, true, false}
	var symbols [slot.NofSymbolsPerSlot]bool
	symbols[2], symbols[11] = true, true
	cfg := Config{
		Slot:         slot.NewPoint(1, 3, 7),
		Type:         Type1,
		ScramblingId: 1,
		Amplitude:    1,
		Symbols:      symbols,
		PrbMask:      prbMask,
		Ports:        []int{0, 2},
		Precoding:    precoding.Identity(2),
	}
	g := grid.New(2, slot.NofSymbolsPerSlot, len(prbMask))
	spy := grid.NewSpy(g)
	Generate(spy, cfg)

	// Two layers in different CDM groups: every subcarrier of the allocated
	// blocks carries DM-RS on each port.
	assert.Equal(t, 2*2*2*24, spy.NofWrites())
	assert.Zero(t, spy.NofOverlaps())
	reserved := Pattern(Type1, prbMask, symbols, 2)
	for _, e := range spy.Entries() {
		require.True(t, reserved.Includes(e.Symbol, e.Subcarrier))
	}
	// Port 0 carries layer 0 only, CDM group 0 sits on even subcarriers.
	assert.Zero(t, g.Get(0, 2, 13))
	v := g.Get(0, 2, 12)
	assert.InDelta(t, 1/math.Sqrt2, math.Abs(float64(real(v))), 1e-6)
}

func TestGenerateIsReproducible(t *testing.T) {
	var symbols [slot.NofSymbolsPerSlot]bool
	symbols[3] = true
	cfg := Config{
		Slot: slot.NewPoint(0, 10, 0), Type: Type2, ScramblingId: 500, Amplitude: 1.41,
		Symbols: symbols, PrbMask: []bool{true, true}, Ports: []int{1}, Precoding: precoding.Identity(1),
	}
	a := grid.New(1, slot.NofSymbolsPerSlot, 2)
	b := grid.New(1, slot.NofSymbolsPerSlot, 2)
	Generate(a, cfg)
	Generate(b, cfg)
	assert.True(t, a.Equal(b))
	assert.NotZero(t, a.Get(0, 3, 0))
}
