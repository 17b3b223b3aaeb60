// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package cuup implements the CU-UP end of an F1-U bearer.
package cuup

import (
	"time"

	"github.com/omec-project/gnb/f1u"
	"github.com/omec-project/gnb/logger"
	"github.com/omec-project/gnb/nru"
	"github.com/omec-project/gnb/support/timers"
	"go.uber.org/zap"
)

// PdcpTxPdu is a PDCP PDU ready for transmission towards the DU.
type PdcpTxPdu struct {
	Buf    []byte
	PdcpSn uint32
}

// TxPduNotifier carries NR-U DL messages towards the DU.
type TxPduNotifier interface {
	OnNewPdu(msg nru.DlMessage)
}

// RxDeliveryNotifier receives the delivery status reported by the DU.
type RxDeliveryNotifier interface {
	OnTransmitNotification(highestSn uint32)
	OnDeliveryNotification(highestSn uint32)
	OnRetransmitNotification(highestSn uint32)
	OnDeliveryRetransmittedNotification(highestSn uint32)
}

// RxSduNotifier receives uplink PDCP PDUs.
type RxSduNotifier interface {
	OnNewSdu(sdu []byte)
}

// Disconnector removes the UL TEID of a bearer from the F1-U gateway.
type Disconnector interface {
	DisconnectCuBearer(ulTnl f1u.TunnelInfo)
}

// Bearer is the CU-UP side of one DRB on F1-U. All methods, the DL
// notification timer included, must run on the UE executor.
type Bearer struct {
	log          *zap.SugaredLogger
	ueIndex      uint32
	drbId        f1u.DrbId
	ulTnl        f1u.TunnelInfo
	tx           TxPduNotifier
	rxDelivery   RxDeliveryNotifier
	rxSdu        RxSduNotifier
	disconnector Disconnector

	dlNotifTimer  *timers.UniqueTimer
	discardBlocks []nru.DiscardBlock
	nruSn         uint32
	stopped       bool
}

// NewBearer builds the bearer and starts the DL notification timer. timer
// must run its callback on the UE executor. A non-positive dlNotifPeriod
// selects f1u.DefaultDlNotifPeriod.
func NewBearer(
	ueIndex uint32,
	drbId f1u.DrbId,
	ulTnl f1u.TunnelInfo,
	tx TxPduNotifier,
	rxDelivery RxDeliveryNotifier,
	rxSdu RxSduNotifier,
	timer *timers.UniqueTimer,
	disconnector Disconnector,
	dlNotifPeriod time.Duration,
) *Bearer {
	if dlNotifPeriod <= 0 {
		dlNotifPeriod = f1u.DefaultDlNotifPeriod
	}
	b := &Bearer{
		log:          logger.F1uLog.With("ue", ueIndex, "drb", drbId, "ul-teid", ulTnl.Teid),
		ueIndex:      ueIndex,
		drbId:        drbId,
		ulTnl:        ulTnl,
		tx:           tx,
		rxDelivery:   rxDelivery,
		rxSdu:        rxSdu,
		disconnector: disconnector,
		dlNotifTimer: timer,
	}
	timer.Set(dlNotifPeriod, b.onExpiredDlNotifTimer)
	timer.Run()
	b.log.Infof("F1-U bearer created, DL notification period %v", dlNotifPeriod)
	return b
}

func (b *Bearer) UeIndex() uint32 { return b.ueIndex }

func (b *Bearer) DrbId() f1u.DrbId { return b.drbId }

// UlTunnel returns the UL tunnel assigned at creation.
func (b *Bearer) UlTunnel() f1u.TunnelInfo { return b.ulTnl }

// HandleSdu forwards a PDCP PDU to the DU together with any pending discard
// blocks.
func (b *Bearer) HandleSdu(sdu PdcpTxPdu) {
	if b.stopped {
		return
	}
	b.log.Debugf("TX PDU PDCP SN=%d, %d bytes", sdu.PdcpSn, len(sdu.Buf))
	msg := nru.DlMessage{TPdu: sdu.Buf, PdcpSn: sdu.PdcpSn}
	b.fillDiscardBlocks(&msg)
	b.send(msg)
}

// DiscardSdu aggregates pdcpSn into the pending discard blocks. Nothing is
// sent until the next SDU or the DL notification timer. A repeated SN opens a
// new block, so both occurrences are reported.
func (b *Bearer) DiscardSdu(pdcpSn uint32) {
	if b.stopped {
		return
	}
	n := len(b.discardBlocks)
	if n > 0 {
		last := &b.discardBlocks[n-1]
		if last.StartSn+uint32(last.Size) == pdcpSn && last.Size < nru.MaxDiscardBlockSize {
			last.Size++
			b.log.Debugf("extended discard block, start SN=%d size=%d", last.StartSn, last.Size)
			return
		}
	}
	if n == nru.MaxNofDiscardBlocks {
		b.log.Debugf("discard blocks full, flushing before PDCP SN=%d", pdcpSn)
		b.flushDiscardBlocks()
	}
	b.discardBlocks = append(b.discardBlocks, nru.DiscardBlock{StartSn: pdcpSn, Size: 1})
	b.log.Debugf("new discard block, start SN=%d", pdcpSn)
}

// HandlePdu consumes an uplink NR-U message from the DU.
func (b *Bearer) HandlePdu(msg nru.UlMessage) {
	if b.stopped {
		return
	}
	if s := msg.DataDeliveryStatus; s != nil {
		if s.HighestTransmittedSn != nil {
			b.log.Debugf("highest transmitted PDCP SN=%d", *s.HighestTransmittedSn)
			b.rxDelivery.OnTransmitNotification(*s.HighestTransmittedSn)
		}
		if s.HighestDeliveredSn != nil {
			b.log.Debugf("highest delivered PDCP SN=%d", *s.HighestDeliveredSn)
			b.rxDelivery.OnDeliveryNotification(*s.HighestDeliveredSn)
		}
		if s.HighestRetransmitted != nil {
			b.rxDelivery.OnRetransmitNotification(*s.HighestRetransmitted)
		}
		if s.HighestDeliveredRetransmitted != nil {
			b.rxDelivery.OnDeliveryRetransmittedNotification(*s.HighestDeliveredRetransmitted)
		}
	}
	if msg.TPdu != nil {
		b.log.Debugf("RX SDU, %d bytes", len(msg.TPdu))
		b.rxSdu.OnNewSdu(msg.TPdu)
	}
}

func (b *Bearer) onExpiredDlNotifTimer() {
	if b.stopped {
		return
	}
	b.flushDiscardBlocks()
	b.dlNotifTimer.Run()
}

func (b *Bearer) fillDiscardBlocks(msg *nru.DlMessage) {
	if len(b.discardBlocks) == 0 {
		return
	}
	msg.UserData.DiscardBlocks = b.discardBlocks
	b.discardBlocks = nil
}

func (b *Bearer) flushDiscardBlocks() {
	if len(b.discardBlocks) == 0 {
		return
	}
	msg := nru.DlMessage{}
	b.fillDiscardBlocks(&msg)
	b.log.Debugf("TX discard notification, %d blocks", len(msg.UserData.DiscardBlocks))
	b.send(msg)
}

func (b *Bearer) send(msg nru.DlMessage) {
	msg.UserData.NruSn = b.nruSn
	b.nruSn = (b.nruSn + 1) & 0xffffff
	b.tx.OnNewPdu(msg)
}

// Stop deregisters the UL TEID and then releases the timer. Pending discard
// blocks are dropped.
func (b *Bearer) Stop() {
	if b.stopped {
		return
	}
	b.stopped = true
	b.disconnector.DisconnectCuBearer(b.ulTnl)
	b.dlNotifTimer.Release()
	b.discardBlocks = nil
	b.log.Infof("F1-U bearer removed")
}
