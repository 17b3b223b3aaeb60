// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package pdsch

import (
	"github.com/omec-project/gnb/logger"
	"github.com/omec-project/gnb/phy/crc"
	"github.com/omec-project/gnb/phy/ldpc"
	"github.com/omec-project/gnb/phy/mapper"
	"github.com/omec-project/gnb/phy/modulation"
	"github.com/omec-project/gnb/phy/sequence"
)

// cbProcessor runs the encode, rate match, scramble, modulate and map chain
// for one codeblock at a time.
type cbProcessor struct {
	encoder     ldpc.Encoder
	rateMatcher ldpc.RateMatcher
	mapper      mapper.Mapper
	scrambler   sequence.Gold

	msg     []uint8
	cw      []uint8
	rm      []uint8
	symbols []complex64
}

func grow[T any](buf []T, n int) []T {
	if cap(buf) < n {
		return make([]T, n)
	}
	return buf[:n]
}

// build writes the encoder input of codeblock cb: information bits, the
// transport block CRC and zero padding on the last block, the codeblock CRC
// when there are several blocks, then filler bits.
func (p *cbProcessor) build(j *job, cb int) []uint8 {
	m := j.meta
	msg := grow(p.msg, m.segmentLength)
	p.msg = msg

	info := m.infoBits(cb)
	first := cb * m.cbInfoBits
	for i := range info {
		bit := first + i
		msg[i] = (j.tb[bit/8] >> (7 - bit%8)) & 1
	}
	pos := info
	if cb == m.nofCb-1 {
		pos += copy(msg[pos:], j.tbCrc)
	}
	clear(msg[pos:m.cbInfoBits])
	pos = m.cbInfoBits
	if m.cbCrcLength > 0 {
		crc.Crc24B.Unpack(msg[pos:], crc.Crc24B.Bits(msg[:pos]))
		pos += m.cbCrcLength
	}
	for i := pos; i < len(msg); i++ {
		msg[i] = ldpc.FillerBit
	}
	return msg
}

func (p *cbProcessor) process(j *job, cb int) {
	m := j.meta
	msg := p.build(j, cb)

	p.cw = grow(p.cw, m.fullCbSize)
	if err := p.encoder.Encode(p.cw, msg, m.baseGraph, m.liftingSize); err != nil {
		panic(err)
	}

	p.rm = grow(p.rm, m.rmLength[cb])
	qm := m.modulation.BitsPerSymbol()
	err := p.rateMatcher.Match(p.rm, p.cw, ldpc.RateMatchConfig{
		Rv:          m.rv,
		BitsPerSym:  qm,
		Nref:        m.nref,
		BaseGraph:   m.baseGraph,
		LiftingSize: m.liftingSize,
	})
	if err != nil {
		panic(err)
	}

	p.scrambler.Init(m.cInit)
	p.scrambler.Advance(m.cwOffset[cb])
	p.scrambler.XorBits(p.rm, p.rm)

	p.symbols = grow(p.symbols, m.rmLength[cb]/qm)
	modulation.Modulate(p.symbols, p.rm, m.modulation)

	p.mapper.Map(j.writer, p.symbols, &j.alloc, j.reserved, j.dataWeights, m.reOffset[cb])

	if logger.DebugEnabled() {
		logger.PhyLog.Debugf("cb=%d/%d info=%d rm=%d cw_offset=%d re_offset=%d",
			cb, m.nofCb, m.infoBits(cb), m.rmLength[cb], m.cwOffset[cb], m.reOffset[cb])
	}
}

// cbProcessorPool bounds the number of codeblocks processed in parallel.
type cbProcessorPool struct {
	free chan *cbProcessor
}

func newCbProcessorPool(size int) *cbProcessorPool {
	pool := &cbProcessorPool{free: make(chan *cbProcessor, size)}
	for range size {
		pool.free <- &cbProcessor{}
	}
	return pool
}

func (p *cbProcessorPool) capacity() int {
	return cap(p.free)
}

func (p *cbProcessorPool) acquire() *cbProcessor {
	return <-p.free
}

func (p *cbProcessorPool) release(proc *cbProcessor) {
	p.free <- proc
}
