// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package du implements the DU end of an F1-U bearer.
package du

import (
	"github.com/omec-project/gnb/f1u"
	"github.com/omec-project/gnb/logger"
	"github.com/omec-project/gnb/nru"
	"go.uber.org/zap"
)

// RxSduNotifier is the RLC entity fed by the bearer.
type RxSduNotifier interface {
	OnNewSdu(sdu []byte, pdcpSn uint32)
	OnDiscardSdu(pdcpSn uint32)
}

// TxPduNotifier carries NR-U UL messages towards the CU-UP.
type TxPduNotifier interface {
	OnNewPdu(msg nru.UlMessage)
}

// Bearer is the DU side of one DRB on F1-U. All methods must run on the UE
// executor.
type Bearer struct {
	log     *zap.SugaredLogger
	ueIndex uint32
	drbId   f1u.DrbId
	dlTnl   f1u.TunnelInfo
	rx      RxSduNotifier
	tx      TxPduNotifier

	expectedNruSn uint32
	started       bool
	lostRanges    []nru.LostRange
}

func NewBearer(ueIndex uint32, drbId f1u.DrbId, dlTnl f1u.TunnelInfo, rx RxSduNotifier, tx TxPduNotifier) *Bearer {
	return &Bearer{
		log:     logger.F1uLog.With("ue", ueIndex, "drb", drbId, "dl-teid", dlTnl.Teid),
		ueIndex: ueIndex,
		drbId:   drbId,
		dlTnl:   dlTnl,
		rx:      rx,
		tx:      tx,
	}
}

func (b *Bearer) DlTunnel() f1u.TunnelInfo { return b.dlTnl }

// HandlePdu consumes a DL message from the CU-UP: discard blocks first, then
// the PDCP PDU.
func (b *Bearer) HandlePdu(msg nru.DlMessage) {
	sn := msg.UserData.NruSn
	if b.started && sn != b.expectedNruSn {
		b.log.Warnf("NR-U SN gap: expected %d, got %d", b.expectedNruSn, sn)
		b.lostRanges = append(b.lostRanges, nru.LostRange{Start: b.expectedNruSn, End: (sn - 1) & 0xffffff})
	}
	b.started = true
	b.expectedNruSn = (sn + 1) & 0xffffff

	if msg.UserData.DlDiscardSn != nil {
		b.log.Debugf("flush up to PDCP SN=%d", *msg.UserData.DlDiscardSn)
	}
	for _, blk := range msg.UserData.DiscardBlocks {
		for i := uint32(0); i < uint32(blk.Size); i++ {
			b.rx.OnDiscardSdu(blk.StartSn + i)
		}
	}
	if msg.TPdu != nil {
		b.rx.OnNewSdu(msg.TPdu, msg.PdcpSn)
	}
}

// HandleSdu sends an uplink PDCP PDU to the CU-UP.
func (b *Bearer) HandleSdu(sdu []byte) {
	b.tx.OnNewPdu(nru.UlMessage{TPdu: sdu})
}

// HandleTransmitNotification reports the highest PDCP SN handed to lower
// layers.
func (b *Bearer) HandleTransmitNotification(highestSn uint32) {
	b.sendStatus(&nru.DataDeliveryStatus{HighestTransmittedSn: &highestSn})
}

// HandleDeliveryNotification reports the highest PDCP SN delivered to the UE.
func (b *Bearer) HandleDeliveryNotification(highestSn uint32) {
	b.sendStatus(&nru.DataDeliveryStatus{HighestDeliveredSn: &highestSn})
}

func (b *Bearer) sendStatus(s *nru.DataDeliveryStatus) {
	if len(b.lostRanges) > 0 {
		n := len(b.lostRanges)
		if n > nru.MaxNofLostRanges {
			n = nru.MaxNofLostRanges
		}
		s.LostRanges = b.lostRanges[:n]
		b.lostRanges = b.lostRanges[n:]
	}
	b.tx.OnNewPdu(nru.UlMessage{DataDeliveryStatus: s})
}
