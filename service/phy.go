// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/omec-project/gnb/factory"
	"github.com/omec-project/gnb/fapi"
	"github.com/omec-project/gnb/logger"
	"github.com/omec-project/gnb/mac"
	"github.com/omec-project/gnb/phy/dmrs"
	"github.com/omec-project/gnb/phy/downlink"
	"github.com/omec-project/gnb/phy/grid"
	"github.com/omec-project/gnb/phy/ldpc"
	"github.com/omec-project/gnb/phy/modulation"
	"github.com/omec-project/gnb/phy/pdsch"
	"github.com/omec-project/gnb/phy/precoding"
	"github.com/omec-project/gnb/support/executor"
	"github.com/omec-project/gnb/support/slot"
	"github.com/pkg/errors"
)

const (
	benchNofRbs   = 52
	benchTbsBytes = 3000
)

// BenchReport summarizes a PDSCH benchmark run.
type BenchReport struct {
	ProcessorType string
	NofSlots      int
	NofPdschs     int
	Bits          int64
	Elapsed       time.Duration
	Dropped       int
	Violations    int
}

// Mbps is the encoded transport block throughput.
func (r BenchReport) Mbps() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Bits) / r.Elapsed.Seconds() / 1e6
}

// benchPdu is a full-band single-layer 64QAM allocation with two DM-RS
// symbols and PT-RS.
func benchPdu(sl slot.Point, rnti uint16) pdsch.PDU {
	pdu := pdsch.PDU{
		Slot:                    sl,
		Rnti:                    rnti,
		BwpSizeRb:               benchNofRbs,
		PrbMask:                 make([]bool, benchNofRbs),
		StartSymbol:             1,
		NofSymbols:              13,
		DmrsType:                dmrs.Type1,
		DmrsScramblingId:        1,
		NofCdmGroupsWithoutData: 2,
		Ports:                   []int{0},
		NId:                     1,
		Codewords: []pdsch.Codeword{{
			Modulation: modulation.QAM64,
			BaseGraph:  ldpc.BG1,
		}},
		Ptrs:                  &pdsch.PtrsConfig{TimeDensity: 2, FreqDensity: 2, ReOffset: 1},
		Precoding:             precoding.Identity(1),
		RatioPdschDmrsToSssDb: 3,
	}
	for rb := 2; rb < benchNofRbs-2; rb++ {
		pdu.PrbMask[rb] = true
	}
	pdu.DmrsSymbols[2], pdu.DmrsSymbols[11] = true, true
	return pdu
}

// phyChain is one cell's downlink path from the slot indication to the
// finished grid: FAPI slot decorator, MAC result checker, PHY adaptor and a
// pool of downlink processors.
type phyChain struct {
	exec       *executor.WorkerPool
	gateway    *fapi.BufferedGateway
	notifier   *fapi.BufferedSlotTimeNotifier
	checker    *mac.CellResultChecker
	numerology uint8
	l2Ahead    int
	nofProcs   int
	ready      chan slot.Point
}

func newPhyChain(cfg factory.PhyConfig) (*phyChain, error) {
	numerology, err := slot.NumerologyFromScs(cfg.ScsKhz)
	if err != nil {
		return nil, err
	}
	l2Ahead := cfg.L2NofSlotsAhead
	if l2Ahead <= 0 {
		l2Ahead = fapi.DefaultL2NofSlotsAhead(numerology)
	}

	exec := executor.NewWorkerPool("phy", cfg.NofThreads, cfg.TaskQueueSize)
	c := &phyChain{
		exec:       exec,
		gateway:    fapi.NewBufferedGateway(),
		numerology: numerology,
		l2Ahead:    l2Ahead,
		nofProcs:   l2Ahead + 2,
	}
	c.ready = make(chan slot.Point, 2*c.nofProcs)

	procs := make([]*downlink.Processor, c.nofProcs)
	grids := make([]*grid.Grid, c.nofProcs)
	for i := range procs {
		p, err := pdsch.NewProcessor(cfg.PdschProcessorType, exec, cfg.CbWorkerPoolSize)
		if err != nil {
			exec.Stop()
			return nil, err
		}
		procs[i] = downlink.NewProcessor(p, downlink.GatewayFunc(func(sl slot.Point, _ *grid.Grid) {
			c.ready <- sl
		}))
		grids[i] = grid.New(1, slot.NofSymbolsPerSlot, benchNofRbs)
	}
	adaptor := fapi.NewPhyAdaptor(c.gateway, downlink.NewPool(procs), func(sl slot.Point) *grid.Grid {
		return grids[int(sl.Count())%len(grids)]
	})
	c.checker = mac.NewCellResultChecker(0, adaptor)
	c.notifier = fapi.NewBufferedSlotTimeNotifier(l2Ahead, numerology, c.gateway)
	return c, nil
}

func (c *phyChain) stop() {
	c.exec.Stop()
}

// RunPdschBench pushes nofSlots slots, each carrying one PDSCH, through the
// downlink chain built from cfg and measures the processing time.
func RunPdschBench(ctx context.Context, cfg factory.PhyConfig, nofSlots int) (BenchReport, error) {
	report := BenchReport{ProcessorType: cfg.PdschProcessorType}
	if nofSlots < 1 {
		return report, errors.Errorf("invalid number of slots %d", nofSlots)
	}
	chain, err := newPhyChain(cfg)
	if err != nil {
		return report, errors.Wrap(err, "build downlink chain")
	}
	defer chain.stop()
	if limit := slot.NofSfns*int(slot.NofSlotsPerFrame(chain.numerology)) - chain.l2Ahead; nofSlots > limit {
		return report, errors.Errorf("at most %d slots per run", limit)
	}

	tb := make([]byte, benchTbsBytes)
	rand.New(rand.NewSource(1)).Read(tb)

	var scheduled atomic.Int64
	chain.notifier.SetSlotTimeNotifier(fapi.SlotTimeNotifierFunc(func(msg fapi.SlotIndication) {
		if scheduled.Load() >= int64(nofSlots) {
			return
		}
		scheduled.Add(1)
		sl := slot.NewPoint(chain.numerology, msg.Sfn, msg.Slot)
		chain.checker.OnNewDownlinkSchedulerResults(mac.DlSchedResult{
			Slot:   sl,
			Pdschs: []pdsch.PDU{benchPdu(sl, 0x4601)},
		})
		chain.checker.OnNewDownlinkData(mac.DlDataResult{Slot: sl, Tbs: [][]byte{tb}})
		chain.checker.OnNewUplinkSchedulerResults(mac.UlSchedResult{Slot: sl})
		chain.checker.OnCellResultsCompletion(sl)
	}))

	base := slot.NewPoint(chain.numerology, 0, 0)
	ready := make(map[uint32]bool, nofSlots)
	wait := func(done func() bool) error {
		for !done() {
			select {
			case sl := <-chain.ready:
				ready[sl.Count()] = true
			case <-ctx.Done():
				return errors.Wrapf(ctx.Err(), "%d of %d grids ready", len(ready), nofSlots)
			}
		}
		return nil
	}

	start := time.Now()
	for i := 0; i < nofSlots+chain.l2Ahead; i++ {
		// Slot i reuses the processor and grid of slot i - nofProcs.
		if prev := i - chain.nofProcs; prev >= chain.l2Ahead {
			prevSlot := base.Add(prev)
			if err := wait(func() bool { return ready[prevSlot.Count()] }); err != nil {
				return report, err
			}
		}
		chain.notifier.OnSlotIndication(fapi.NewSlotIndication(base.Add(i)))
	}
	if err := wait(func() bool { return len(ready) >= nofSlots }); err != nil {
		return report, err
	}
	report.Elapsed = time.Since(start)
	report.NofSlots = nofSlots
	report.NofPdschs = nofSlots
	report.Bits = int64(nofSlots) * benchTbsBytes * 8
	report.Dropped = chain.gateway.Dropped()
	report.Violations = chain.checker.Violations()
	logger.PhyLog.Infof("%s PDSCH processor: %d slots in %v, %.1f Mbps",
		report.ProcessorType, report.NofSlots, report.Elapsed, report.Mbps())
	return report, nil
}
