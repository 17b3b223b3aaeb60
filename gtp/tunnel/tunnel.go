// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package tunnel implements the N3 GTP-U tunnel endpoints of a PDU session:
// the receive side reorders G-PDUs by sequence number, the transmit side
// numbers and frames uplink SDUs towards the UPF.
package tunnel

import (
	"net"
	"time"

	"github.com/omec-project/gnb/gtp/handler"
	gtpMsg "github.com/omec-project/gnb/gtp/message"
	"github.com/omec-project/gnb/logger"
	"github.com/omec-project/gnb/support/timers"
	"go.uber.org/zap"
)

// RxSduNotifier receives the in-order downlink SDUs of the tunnel.
type RxSduNotifier interface {
	OnNewSdu(sdu []byte, qfi uint8)
}

type RxConfig struct {
	Teid uint32
	// TReordering bounds how long a hole in the sequence holds back later
	// PDUs. Zero disables reordering.
	TReordering time.Duration
	WarnOnDrop  bool
}

type rxEntry struct {
	sdu []byte
	qfi uint8
}

// Rx is the N3 receive entity. All methods, including the reordering timer
// expiry, run on the tunnel executor.
type Rx struct {
	log      *zap.SugaredLogger
	cfg      RxConfig
	notifier RxSduNotifier
	timer    *timers.UniqueTimer

	started bool
	rxDeliv uint16
	rxNext  uint16
	rxReord uint16
	buf     map[uint16]rxEntry
	dropped uint64
}

// seqLess compares SNs within half the 16 bit sequence space.
func seqLess(a, b uint16) bool {
	return int16(a-b) < 0
}

// NewRx builds the receive entity. timer is required when reordering is
// enabled.
func NewRx(cfg RxConfig, notifier RxSduNotifier, timer *timers.UniqueTimer) *Rx {
	r := &Rx{
		log:      logger.GtpuLog.With("teid", cfg.Teid),
		cfg:      cfg,
		notifier: notifier,
		timer:    timer,
		buf:      make(map[uint16]rxEntry),
	}
	if cfg.TReordering > 0 && timer != nil {
		timer.Set(cfg.TReordering, r.onReorderingTimeout)
	}
	return r
}

var _ handler.RxHandler = (*Rx)(nil)

func (r *Rx) reordering() bool {
	return r.cfg.TReordering > 0 && r.timer != nil
}

func (r *Rx) drop(reason string, sn uint16) {
	r.dropped++
	if r.cfg.WarnOnDrop {
		r.log.Warnf("dropped PDU SN=%d: %s", sn, reason)
	} else {
		r.log.Debugf("dropped PDU SN=%d: %s", sn, reason)
	}
}

// HandlePdu consumes one G-PDU from the demux.
func (r *Rx) HandlePdu(pdu *gtpMsg.Packet, _ net.Addr) {
	qfi, _ := pdu.GetQoSParameters()
	sn, hasSn := pdu.GetSequence()
	if !hasSn || !r.reordering() {
		r.notifier.OnNewSdu(pdu.GetPayload(), qfi)
		return
	}

	if !r.started {
		r.started = true
		r.rxDeliv, r.rxNext = sn, sn
	}
	if seqLess(sn, r.rxDeliv) {
		r.drop("outside of the reordering window", sn)
		return
	}
	if _, dup := r.buf[sn]; dup {
		r.drop("duplicate", sn)
		return
	}
	r.buf[sn] = rxEntry{sdu: pdu.GetPayload(), qfi: qfi}
	if !seqLess(sn, r.rxNext) {
		r.rxNext = sn + 1
	}
	if sn == r.rxDeliv {
		r.deliverConsecutive()
	}

	if r.timer.IsRunning() && !seqLess(r.rxDeliv, r.rxReord) {
		r.timer.Stop()
	}
	if !r.timer.IsRunning() && seqLess(r.rxDeliv, r.rxNext) {
		r.rxReord = r.rxNext
		r.timer.Run()
	}
}

func (r *Rx) deliverConsecutive() {
	for {
		e, ok := r.buf[r.rxDeliv]
		if !ok {
			return
		}
		delete(r.buf, r.rxDeliv)
		r.rxDeliv++
		r.notifier.OnNewSdu(e.sdu, e.qfi)
	}
}

func (r *Rx) onReorderingTimeout() {
	r.log.Debugf("t-Reordering expired, RX_DELIV=%d RX_REORD=%d", r.rxDeliv, r.rxReord)
	for seqLess(r.rxDeliv, r.rxReord) {
		if e, ok := r.buf[r.rxDeliv]; ok {
			delete(r.buf, r.rxDeliv)
			r.notifier.OnNewSdu(e.sdu, e.qfi)
		}
		r.rxDeliv++
	}
	r.deliverConsecutive()
	if seqLess(r.rxDeliv, r.rxNext) {
		r.rxReord = r.rxNext
		r.timer.Run()
	}
}

// NofBuffered returns how many PDUs wait for a hole to fill.
func (r *Rx) NofBuffered() int {
	return len(r.buf)
}

func (r *Rx) Dropped() uint64 {
	return r.dropped
}

// Stop cancels the reordering timer.
func (r *Rx) Stop() {
	if r.timer != nil {
		r.timer.Release()
	}
}

// Sender writes framed G-PDUs to the network.
type Sender interface {
	Send(b []byte, dst net.Addr) error
}

type TxConfig struct {
	PeerTeid uint32
	Peer     net.Addr
}

// Tx frames uplink SDUs with a PDU Session Container and a running sequence
// number.
type Tx struct {
	cfg    TxConfig
	sender Sender
	sn     uint16
}

func NewTx(cfg TxConfig, sender Sender) *Tx {
	return &Tx{cfg: cfg, sender: sender}
}

// HandleSdu sends one uplink SDU of QoS flow qfi.
func (t *Tx) HandleSdu(sdu []byte, qfi uint8) error {
	sn := t.sn
	b, err := gtpMsg.BuildQoSGTPPacket(t.cfg.PeerTeid, qfi, &sn, sdu)
	if err != nil {
		return err
	}
	t.sn++
	return t.sender.Send(b, t.cfg.Peer)
}
