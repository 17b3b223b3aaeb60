// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package ptrs

import (
	"testing"

	"github.com/omec-project/gnb/phy/dmrs"
	"github.com/omec-project/gnb/phy/grid"
	"github.com/omec-project/gnb/phy/precoding"
	"github.com/omec-project/gnb/support/slot"
	"github.com/stretchr/testify/assert"
)

func symbolsOf(mask [slot.NofSymbolsPerSlot]bool) []int {
	var out []int
	for s, used := range mask {
		if used {
			out = append(out, s)
		}
	}
	return out
}

func baseConfig() Config {
	cfg := Config{
		Slot:        slot.NewPoint(1, 0, 4),
		Rnti:        0x4601,
		DmrsType:    dmrs.Type1,
		StartSymbol: 0,
		NofSymbols:  14,
		PrbMask:     []bool{true, true, true, true, true, true},
		TimeDensity: 1,
		FreqDensity: 2,
		Amplitude:   1,
		Precoding:   precoding.Identity(1),
	}
	cfg.DmrsSymbols[2] = true
	return cfg
}

func TestTimePatternSkipsDmrsSymbols(t *testing.T) {
	cfg := baseConfig()
	assert.Equal(t, []int{0, 1, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13}, symbolsOf(TimePattern(&cfg)))

	cfg.TimeDensity = 2
	assert.Equal(t, []int{0, 4, 6, 8, 10, 12}, symbolsOf(TimePattern(&cfg)))

	cfg.TimeDensity = 4
	cfg.DmrsSymbols[11] = true
	assert.Equal(t, []int{0, 6, 10}, symbolsOf(TimePattern(&cfg)))
}

func TestPrbsFollowRnti(t *testing.T) {
	cfg := baseConfig()
	// 6 allocated blocks, K = 2: k_RB_ref = rnti mod 2 = 1.
	assert.Equal(t, []int{1, 3, 5}, Prbs(&cfg))

	cfg.PrbMask = []bool{false, true, true, true, true, true}
	// 5 allocated blocks, 5 mod 2 = 1: k_RB_ref = rnti mod 1 = 0.
	assert.Equal(t, []int{1, 3, 5}, Prbs(&cfg))
}

func TestGenerateMatchesPattern(t *testing.T) {
	cfg := baseConfig()
	cfg.ReOffset = 1
	spy := grid.NewSpy(grid.New(1, slot.NofSymbolsPerSlot, len(cfg.PrbMask)))
	Generate(spy, cfg)

	p := Pattern(&cfg)
	assert.Equal(t, p.NofRes(), spy.NofWrites())
	for _, e := range spy.Entries() {
		assert.True(t, p.Includes(e.Symbol, e.Subcarrier))
		assert.NotZero(t, e.Value)
		assert.Equal(t, 2, e.Subcarrier%grid.NofSubcarriersPerRb)
	}
}

func TestSequenceIndexType2(t *testing.T) {
	// Port 2 uses delta 2: subcarriers 2, 3, 8, 9 map to 0, 1, 2, 3.
	assert.Equal(t, 0, sequenceIndex(dmrs.Type2, 2, 2))
	assert.Equal(t, 1, sequenceIndex(dmrs.Type2, 2, 3))
	assert.Equal(t, 3, sequenceIndex(dmrs.Type2, 2, 9))
	assert.Equal(t, 5, sequenceIndex(dmrs.Type2, 2, 15))
}
