// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package pdsch

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/omec-project/gnb/factory"
	"github.com/omec-project/gnb/phy/grid"
	"github.com/omec-project/gnb/phy/ldpc"
	"github.com/omec-project/gnb/phy/modulation"
	"github.com/omec-project/gnb/support/executor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// goldenScale quantises grid samples; testdata holds one line
// "symbol subcarrier round(re*scale) round(im*scale)" per non-zero RE.
const goldenScale = 1 << 12

type reKey struct {
	symbol, subcarrier int
}

type quantised struct {
	re, im int64
}

// goldenTb fills a transport block from a 32-bit LCG seeded with its length.
func goldenTb(n int) []byte {
	tb := make([]byte, n)
	x := uint32(n)
	for i := range tb {
		x = x*1103515245 + 12345
		tb[i] = byte(x >> 16)
	}
	return tb
}

func loadGolden(t *testing.T, name string) map[reKey]quantised {
	t.Helper()
	f, err := os.Open(filepath.Join("testdata", name))
	require.NoError(t, err)
	defer f.Close()

	golden := make(map[reKey]quantised)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var k reKey
		var q quantised
		_, err := fmt.Sscanf(scanner.Text(), "%d %d %d %d", &k.symbol, &k.subcarrier, &q.re, &q.im)
		require.NoError(t, err, "line %q", scanner.Text())
		golden[k] = q
	}
	require.NoError(t, scanner.Err())
	require.NotEmpty(t, golden)
	return golden
}

func quantise(v complex64) quantised {
	return quantised{
		re: int64(math.Round(float64(real(v)) * goldenScale)),
		im: int64(math.Round(float64(imag(v)) * goldenScale)),
	}
}

// diffGolden returns the number of REs of port 0 that differ from golden and
// a description of the first one.
func diffGolden(g *grid.Grid, golden map[reKey]quantised) (int, string) {
	nofDiffs, first := 0, ""
	for symbol := range g.NofSymbols() {
		for k, v := range g.Symbol(0, symbol) {
			got, want := quantise(v), golden[reKey{symbol, k}]
			if got != want {
				if nofDiffs == 0 {
					first = fmt.Sprintf("symbol %d subcarrier %d: got %v, want %v", symbol, k, got, want)
				}
				nofDiffs++
			}
		}
	}
	return nofDiffs, first
}

func goldenCases() []struct {
	name string
	file string
	pdu  PDU
	tb   []byte
} {
	single := testPdu(1, false)
	single.Codewords = []Codeword{{Modulation: modulation.QPSK, BaseGraph: ldpc.BG2}}

	multi := testPdu(1, true)
	multi.Codewords = []Codeword{{Modulation: modulation.QAM64, BaseGraph: ldpc.BG1, Rv: 2}}
	multi.RatioPdschDataToSssDb = -3

	return []struct {
		name string
		file string
		pdu  PDU
		tb   []byte
	}{
		{"single cb qpsk", "single_cb_qpsk.txt", single, goldenTb(200)},
		{"two cb ptrs 64qam", "multi_cb_ptrs_64qam.txt", multi, goldenTb(2000)},
	}
}

func TestGridMatchesGoldenVector(t *testing.T) {
	pool := executor.NewWorkerPool("pdsch_golden", 16, 1024)
	defer pool.Stop()

	generic, err := NewProcessor(factory.PdschProcessorGeneric, nil, 0)
	require.NoError(t, err)
	concurrent, err := NewProcessor(factory.PdschProcessorConcurrent, pool, 16)
	require.NoError(t, err)

	for _, tc := range goldenCases() {
		t.Run(tc.name, func(t *testing.T) {
			golden := loadGolden(t, tc.file)
			j, err := newJob(nil, nil, [][]byte{tc.tb}, &tc.pdu)
			require.NoError(t, err)
			if tc.pdu.Ptrs != nil {
				assert.Greater(t, j.meta.nofCb, 1)
			} else {
				assert.Equal(t, 1, j.meta.nofCb)
			}

			for name, p := range map[string]Processor{"generic": generic, "concurrent": concurrent} {
				g := grid.New(1, 14, testNofRbs)
				processAndWait(t, p, g, tc.tb, tc.pdu)
				nofDiffs, first := diffGolden(g, golden)
				assert.Zero(t, nofDiffs, "%s processor: %s", name, first)
			}
		})
	}
}

func TestConcurrentCallsMatchGoldenVector(t *testing.T) {
	pool := executor.NewWorkerPool("pdsch_golden", 16, 1024)
	defer pool.Stop()
	proc, err := NewProcessor(factory.PdschProcessorConcurrent, pool, 16)
	require.NoError(t, err)

	for _, tc := range goldenCases() {
		t.Run(tc.name, func(t *testing.T) {
			golden := loadGolden(t, tc.file)

			grids := make([]*grid.Grid, 16)
			var wg sync.WaitGroup
			wg.Add(len(grids))
			for i := range grids {
				grids[i] = grid.New(1, 14, testNofRbs)
				proc.Process(grids[i], NotifierFunc(wg.Done), [][]byte{tc.tb}, tc.pdu)
			}
			wg.Wait()

			for i, g := range grids {
				nofDiffs, first := diffGolden(g, golden)
				assert.Zero(t, nofDiffs, "call %d: %s", i, first)
			}
		})
	}
}
