// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package pdsch

import (
	"math"

	"github.com/omec-project/gnb/phy/crc"
	"github.com/omec-project/gnb/phy/dmrs"
	"github.com/omec-project/gnb/phy/grid"
	"github.com/omec-project/gnb/phy/ldpc"
	"github.com/omec-project/gnb/phy/mapper"
	"github.com/omec-project/gnb/phy/modulation"
	"github.com/omec-project/gnb/phy/pattern"
	"github.com/omec-project/gnb/phy/precoding"
	"github.com/omec-project/gnb/phy/ptrs"
	"github.com/pkg/errors"
)

// cbMetadata holds the segmentation of one transport block.
type cbMetadata struct {
	baseGraph     ldpc.BaseGraph
	liftingSize   int
	segmentLength int
	fullCbSize    int
	nref          int
	rv            int
	modulation    modulation.Scheme

	tbs         int
	tbCrcLength int
	cbCrcLength int
	nofCb       int
	cbInfoBits  int
	zeroPad     int
	nofFiller   int

	nofLayers int
	nofRe     int
	cwLength  int
	cInit     uint32

	rmLength []int
	cwOffset []int
	reOffset []int
}

func dbToAmplitude(db float32) float32 {
	return float32(math.Pow(10, float64(db)/20))
}

// segment derives the codeblock layout of a transport block of tbs bits
// transmitted over nofRe REs per layer.
func segment(cw Codeword, tbs, nofRe, nofLayers int, rnti uint16, nId uint16) (*cbMetadata, error) {
	m := &cbMetadata{
		baseGraph:   cw.BaseGraph,
		rv:          cw.Rv,
		modulation:  cw.Modulation,
		tbs:         tbs,
		tbCrcLength: ldpc.TbCrcLength(tbs),
		nofLayers:   nofLayers,
		nofRe:       nofRe,
		cInit:       uint32(rnti)<<15 + uint32(nId),
	}
	b := tbs + m.tbCrcLength
	m.nofCb = ldpc.NofCodeblocks(b, cw.BaseGraph)
	if m.nofCb > 1 {
		m.cbCrcLength = ldpc.CbCrcLength
	}
	if nofRe < m.nofCb {
		return nil, errors.Errorf("%d REs cannot carry %d codeblocks", nofRe, m.nofCb)
	}

	nofTbBitsOut := tbs + m.tbCrcLength + m.nofCb*m.cbCrcLength
	kPrime := (nofTbBitsOut + m.nofCb - 1) / m.nofCb
	m.cbInfoBits = kPrime - m.cbCrcLength

	var err error
	m.liftingSize, err = ldpc.SelectLiftingSize(cw.BaseGraph, b, kPrime)
	if err != nil {
		return nil, err
	}
	m.segmentLength = cw.BaseGraph.SegmentLength(m.liftingSize)
	m.fullCbSize = cw.BaseGraph.CodeblockLength(m.liftingSize)
	m.zeroPad = kPrime*m.nofCb - nofTbBitsOut
	m.nofFiller = m.segmentLength - kPrime
	if cw.TbsLbrmBytes > 0 {
		m.nref = cw.TbsLbrmBytes * 8 * 3 / (2 * m.nofCb)
	}

	qm := cw.Modulation.BitsPerSymbol()
	m.cwLength = nofRe * nofLayers * qm
	nofShort := m.nofCb - nofRe%m.nofCb
	m.rmLength = make([]int, m.nofCb)
	m.cwOffset = make([]int, m.nofCb)
	m.reOffset = make([]int, m.nofCb)
	cwOffset, reOffset := 0, 0
	for i := range m.nofCb {
		rmRe := nofRe / m.nofCb
		if i >= nofShort {
			rmRe = (nofRe + m.nofCb - 1) / m.nofCb
		}
		m.rmLength[i] = rmRe * nofLayers * qm
		m.cwOffset[i] = cwOffset
		m.reOffset[i] = reOffset
		cwOffset += m.rmLength[i]
		reOffset += rmRe
	}
	return m, nil
}

// infoBits is the number of transport block bits carried by codeblock cb.
func (m *cbMetadata) infoBits(cb int) int {
	return min(m.cbInfoBits, m.tbs-m.cbInfoBits*cb)
}

// job holds everything one Process call derives from its inputs.
type job struct {
	writer   grid.Writer
	notifier Notifier
	tb       []byte
	tbCrc    []uint8

	meta        *cbMetadata
	alloc       pattern.RePattern
	reserved    pattern.List
	dataWeights precoding.Weights
	dmrs        dmrs.Config
	ptrs        *ptrs.Config
}

func newJob(w grid.Writer, notifier Notifier, tbs [][]byte, pdu *PDU) (*job, error) {
	if err := Validate(pdu); err != nil {
		return nil, err
	}
	if len(tbs) != len(pdu.Codewords) || len(tbs[0]) == 0 {
		return nil, errors.Errorf("%d transport blocks for %d codewords", len(tbs), len(pdu.Codewords))
	}
	tb := tbs[0]
	cw := pdu.Codewords[0]
	crbMask := pdu.crbMask()

	j := &job{writer: w, notifier: notifier, tb: tb}
	j.alloc = pattern.RePattern{PrbMask: crbMask, ReMask: pattern.AllRes, Symbols: pdu.symbolMask()}

	j.reserved = pdu.Reserved.Clone()
	j.reserved.Merge(dmrs.Pattern(pdu.DmrsType, crbMask, pdu.DmrsSymbols, pdu.NofCdmGroupsWithoutData))

	j.dmrs = dmrs.Config{
		Slot:         pdu.Slot,
		Type:         pdu.DmrsType,
		ScramblingId: pdu.DmrsScramblingId,
		NScid:        pdu.NScid,
		Amplitude:    dbToAmplitude(-pdu.RatioPdschDmrsToSssDb),
		Symbols:      pdu.DmrsSymbols,
		PrbMask:      crbMask,
		Ports:        pdu.Ports,
		Precoding:    pdu.Precoding,
	}

	if pt := pdu.Ptrs; pt != nil {
		layer := 0
		for l, port := range pdu.Ports {
			if port == pt.DmrsPort {
				layer = l
			}
		}
		j.ptrs = &ptrs.Config{
			Slot:         pdu.Slot,
			Rnti:         pdu.Rnti,
			DmrsType:     pdu.DmrsType,
			ScramblingId: pdu.DmrsScramblingId,
			NScid:        pdu.NScid,
			DmrsSymbols:  pdu.DmrsSymbols,
			StartSymbol:  pdu.StartSymbol,
			NofSymbols:   pdu.NofSymbols,
			PrbMask:      crbMask,
			TimeDensity:  pt.TimeDensity,
			FreqDensity:  pt.FreqDensity,
			ReOffset:     pt.ReOffset,
			DmrsPort:     pt.DmrsPort,
			Amplitude:    dbToAmplitude(pt.EpreRatioDb - pdu.RatioPdschDataToSssDb),
			Precoding:    pdu.Precoding.Layer(layer),
		}
		j.reserved.Merge(ptrs.Pattern(j.ptrs))
	}

	nofRe := mapper.CountRes(&j.alloc, j.reserved)
	meta, err := segment(cw, 8*len(tb), nofRe, pdu.Precoding.NofLayers(), pdu.Rnti, pdu.NId)
	if err != nil {
		return nil, err
	}
	j.meta = meta

	tbCrc := crc.Crc16
	if meta.tbCrcLength == 24 {
		tbCrc = crc.Crc24A
	}
	j.tbCrc = make([]uint8, meta.tbCrcLength)
	tbCrc.Unpack(j.tbCrc, tbCrc.Bytes(tb))

	scaling := dbToAmplitude(-pdu.RatioPdschDataToSssDb) * cw.Modulation.Scaling()
	j.dataWeights = pdu.Precoding.Scaled(scaling)
	return j, nil
}
