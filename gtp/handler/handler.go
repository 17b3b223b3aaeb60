// SPDX-FileCopyrightText: 2025 Intel Corporation
// Copyright 2019 free5GC.org
//
// SPDX-License-Identifier: Apache-2.0

// Package handler demultiplexes received GTP-U datagrams to the tunnel that
// owns their TEID.
package handler

import (
	"net"
	"sync"
	"sync/atomic"

	gtpMsg "github.com/omec-project/gnb/gtp/message"
	"github.com/omec-project/gnb/logger"
	"github.com/omec-project/gnb/support/executor"
	"github.com/omec-project/gnb/util"
	gtpv1Msg "github.com/wmnsk/go-gtp/gtpv1/message"
)

// RxHandler consumes the G-PDUs of one tunnel. It runs on the executor the
// tunnel was registered with.
type RxHandler interface {
	HandlePdu(pdu *gtpMsg.Packet, src net.Addr)
}

// RxHandlerFunc adapts a function to RxHandler.
type RxHandlerFunc func(pdu *gtpMsg.Packet, src net.Addr)

func (f RxHandlerFunc) HandlePdu(pdu *gtpMsg.Packet, src net.Addr) { f(pdu, src) }

// Sender transmits datagrams back to a peer, used for echo responses.
type Sender interface {
	Send(b []byte, dst net.Addr) error
}

type Config struct {
	// QueueLength is the number of PDUs allowed in flight between the socket
	// and the tunnel executors.
	QueueLength int
	// PoolThreshold is the in-flight occupancy in (0, 1] above which PDUs are
	// dropped.
	PoolThreshold float64
	WarnOnDrop    bool
}

type tunnel struct {
	gen     uint64
	exec    executor.TaskExecutor
	handler RxHandler
}

// Stats are the demux counters.
type Stats struct {
	Received    uint64
	Dispatched  uint64
	Dropped     uint64
	UnknownTeid uint64
	Malformed   uint64
}

type Demux struct {
	cfg      Config
	limit    int64
	mu       sync.RWMutex
	tunnels  map[uint32]tunnel
	gen      uint64
	inFlight atomic.Int64
	sender   Sender

	received    atomic.Uint64
	dispatched  atomic.Uint64
	dropped     atomic.Uint64
	unknownTeid atomic.Uint64
	malformed   atomic.Uint64
}

func NewDemux(cfg Config) *Demux {
	if cfg.QueueLength < 1 {
		cfg.QueueLength = 1
	}
	if cfg.PoolThreshold <= 0 || cfg.PoolThreshold > 1 {
		cfg.PoolThreshold = 1
	}
	limit := int64(cfg.PoolThreshold * float64(cfg.QueueLength))
	if limit < 1 {
		limit = 1
	}
	return &Demux{
		cfg:     cfg,
		limit:   limit,
		tunnels: make(map[uint32]tunnel),
	}
}

// SetSender installs the path used to answer echo requests.
func (d *Demux) SetSender(s Sender) {
	d.mu.Lock()
	d.sender = s
	d.mu.Unlock()
}

// AddTunnel registers handler for teid. It fails if the TEID is taken.
func (d *Demux) AddTunnel(teid uint32, exec executor.TaskExecutor, h RxHandler) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.tunnels[teid]; ok {
		logger.GtpuLog.Errorf("TEID %#x already registered", teid)
		return false
	}
	d.gen++
	d.tunnels[teid] = tunnel{gen: d.gen, exec: exec, handler: h}
	logger.GtpuLog.Debugf("registered TEID %#x", teid)
	return true
}

// RemoveTunnel deregisters teid. PDUs of the TEID still queued on the tunnel
// executor are discarded.
func (d *Demux) RemoveTunnel(teid uint32) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.tunnels[teid]; !ok {
		logger.GtpuLog.Warnf("TEID %#x not registered", teid)
		return false
	}
	delete(d.tunnels, teid)
	logger.GtpuLog.Debugf("removed TEID %#x", teid)
	return true
}

func (d *Demux) NofTunnels() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.tunnels)
}

func (d *Demux) lookup(teid uint32) (tunnel, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tunnels[teid]
	return t, ok
}

func (d *Demux) drop(format string, args ...interface{}) {
	d.dropped.Add(1)
	if d.cfg.WarnOnDrop {
		logger.GtpuLog.Warnf(format, args...)
	} else {
		logger.GtpuLog.Debugf(format, args...)
	}
}

// HandleDatagram parses one received datagram and dispatches it. b is not
// retained.
func (d *Demux) HandleDatagram(b []byte, src net.Addr) {
	defer util.RecoverWithLog(logger.GtpuLog)
	d.received.Add(1)

	msg, err := gtpMsg.Parse(b)
	if err != nil {
		d.malformed.Add(1)
		logger.GtpuLog.Warnf("discarding malformed datagram from %v: %+v", src, err)
		return
	}

	switch m := msg.(type) {
	case *gtpv1Msg.TPDU:
		d.handleTPDU(m, src)
	case *gtpv1Msg.EchoRequest:
		d.handleEchoRequest(m, src)
	default:
		logger.GtpuLog.Infof("ignoring GTP-U message type %d from %v", msg.MessageType(), src)
	}
}

func (d *Demux) handleEchoRequest(req *gtpv1Msg.EchoRequest, src net.Addr) {
	d.mu.RLock()
	sender := d.sender
	d.mu.RUnlock()
	if sender == nil {
		return
	}
	rsp, err := gtpMsg.BuildEchoResponse(req.Header.SequenceNumber)
	if err != nil {
		logger.GtpuLog.Errorf("build echo response: %+v", err)
		return
	}
	if err := sender.Send(rsp, src); err != nil {
		logger.GtpuLog.Errorf("send echo response to %v: %+v", src, err)
	}
}

func (d *Demux) handleTPDU(tpdu *gtpv1Msg.TPDU, src net.Addr) {
	teid := tpdu.TEID()
	t, ok := d.lookup(teid)
	if !ok {
		d.unknownTeid.Add(1)
		d.drop("no tunnel for TEID %#x from %v", teid, src)
		return
	}
	if d.inFlight.Add(1) > d.limit {
		d.inFlight.Add(-1)
		d.drop("GTP-U queue above threshold, dropping PDU of TEID %#x", teid)
		return
	}

	// the parsed message aliases the receive buffer
	payload := make([]byte, len(tpdu.Payload))
	copy(payload, tpdu.Payload)
	tpdu.Payload = payload
	for _, eh := range tpdu.ExtensionHeaders {
		content := make([]byte, len(eh.Content))
		copy(content, eh.Content)
		eh.Content = content
	}

	pdu := &gtpMsg.Packet{}
	if err := pdu.Unmarshal(tpdu); err != nil {
		d.inFlight.Add(-1)
		d.malformed.Add(1)
		logger.GtpuLog.Warnf("TEID %#x: %+v", teid, err)
		return
	}

	task := func() {
		defer d.inFlight.Add(-1)
		defer util.RecoverWithLog(logger.GtpuLog)
		// the tunnel may have been removed while the PDU was queued
		cur, ok := d.lookup(teid)
		if !ok || cur.gen != t.gen {
			d.drop("TEID %#x removed before delivery", teid)
			return
		}
		d.dispatched.Add(1)
		cur.handler.HandlePdu(pdu, src)
	}
	if !t.exec.Execute(task) {
		d.inFlight.Add(-1)
		d.drop("executor of TEID %#x is full", teid)
	}
}

func (d *Demux) Stats() Stats {
	return Stats{
		Received:    d.received.Load(),
		Dispatched:  d.dispatched.Load(),
		Dropped:     d.dropped.Load(),
		UnknownTeid: d.unknownTeid.Load(),
		Malformed:   d.malformed.Load(),
	}
}
