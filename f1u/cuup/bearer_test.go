// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package cuup

import (
	"testing"
	"time"

	"github.com/omec-project/gnb/f1u"
	"github.com/omec-project/gnb/nru"
	"github.com/omec-project/gnb/support/executor"
	"github.com/omec-project/gnb/support/timers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type txSpy struct {
	msgs []nru.DlMessage
}

func (s *txSpy) OnNewPdu(msg nru.DlMessage) { s.msgs = append(s.msgs, msg) }

type deliverySpy struct {
	transmitted, delivered, retransmitted, deliveredRetx []uint32
}

func (s *deliverySpy) OnTransmitNotification(sn uint32) { s.transmitted = append(s.transmitted, sn) }
func (s *deliverySpy) OnDeliveryNotification(sn uint32) { s.delivered = append(s.delivered, sn) }
func (s *deliverySpy) OnRetransmitNotification(sn uint32) {
	s.retransmitted = append(s.retransmitted, sn)
}

func (s *deliverySpy) OnDeliveryRetransmittedNotification(sn uint32) {
	s.deliveredRetx = append(s.deliveredRetx, sn)
}

type sduSpy struct {
	sdus [][]byte
}

func (s *sduSpy) OnNewSdu(sdu []byte) { s.sdus = append(s.sdus, sdu) }

type disconnectorSpy struct {
	disconnected []f1u.TunnelInfo
}

func (s *disconnectorSpy) DisconnectCuBearer(ulTnl f1u.TunnelInfo) {
	s.disconnected = append(s.disconnected, ulTnl)
}

type bearerEnv struct {
	timers       *timers.Manager
	tx           *txSpy
	delivery     *deliverySpy
	sdus         *sduSpy
	disconnector *disconnectorSpy
	bearer       *Bearer
}

var ulTnl = f1u.TunnelInfo{Addr: "127.0.2.1", Teid: 0x1}

func newBearerEnv() *bearerEnv {
	e := &bearerEnv{
		timers:       timers.NewManager(),
		tx:           &txSpy{},
		delivery:     &deliverySpy{},
		sdus:         &sduSpy{},
		disconnector: &disconnectorSpy{},
	}
	e.bearer = NewBearer(1, 1, ulTnl, e.tx, e.delivery, e.sdus,
		e.timers.Create(executor.Inline{}), e.disconnector, f1u.DefaultDlNotifPeriod)
	return e
}

func (e *bearerEnv) tick(d time.Duration) {
	for i := time.Duration(0); i < d; i += timers.TickPeriod {
		e.timers.Tick()
	}
}

func TestSduIsForwarded(t *testing.T) {
	e := newBearerEnv()
	e.bearer.HandleSdu(PdcpTxPdu{Buf: []byte{1, 2, 3}, PdcpSn: 7})
	e.bearer.HandleSdu(PdcpTxPdu{Buf: []byte{4}, PdcpSn: 8})

	require.Len(t, e.tx.msgs, 2)
	assert.Equal(t, []byte{1, 2, 3}, e.tx.msgs[0].TPdu)
	assert.Equal(t, uint32(7), e.tx.msgs[0].PdcpSn)
	assert.Empty(t, e.tx.msgs[0].UserData.DiscardBlocks)
	assert.Equal(t, uint32(0), e.tx.msgs[0].UserData.NruSn)
	assert.Equal(t, uint32(1), e.tx.msgs[1].UserData.NruSn)
}

func TestDiscardsRideOnNextSdu(t *testing.T) {
	e := newBearerEnv()
	for _, sn := range []uint32{5, 6, 7, 9} {
		e.bearer.DiscardSdu(sn)
	}
	assert.Empty(t, e.tx.msgs)

	e.bearer.HandleSdu(PdcpTxPdu{Buf: []byte{0}, PdcpSn: 10})
	e.bearer.HandleSdu(PdcpTxPdu{Buf: []byte{0}, PdcpSn: 11})
	require.Len(t, e.tx.msgs, 2)
	assert.Equal(t, []nru.DiscardBlock{{StartSn: 5, Size: 3}, {StartSn: 9, Size: 1}}, e.tx.msgs[0].UserData.DiscardBlocks)
	assert.Empty(t, e.tx.msgs[1].UserData.DiscardBlocks)

	// nothing left for the timer
	e.tick(f1u.DefaultDlNotifPeriod)
	assert.Len(t, e.tx.msgs, 2)
}

func TestTimerFlushesDiscards(t *testing.T) {
	e := newBearerEnv()
	e.bearer.DiscardSdu(1)
	e.tick(f1u.DefaultDlNotifPeriod - timers.TickPeriod)
	assert.Empty(t, e.tx.msgs)
	e.tick(timers.TickPeriod)
	require.Len(t, e.tx.msgs, 1)
	assert.Nil(t, e.tx.msgs[0].TPdu)
	assert.Equal(t, []nru.DiscardBlock{{StartSn: 1, Size: 1}}, e.tx.msgs[0].UserData.DiscardBlocks)

	// the timer is periodic
	e.bearer.DiscardSdu(2)
	e.tick(f1u.DefaultDlNotifPeriod)
	require.Len(t, e.tx.msgs, 2)
	assert.Equal(t, []nru.DiscardBlock{{StartSn: 2, Size: 1}}, e.tx.msgs[1].UserData.DiscardBlocks)
}

func TestTimerWithoutDiscardsSendsNothing(t *testing.T) {
	e := newBearerEnv()
	e.tick(5 * f1u.DefaultDlNotifPeriod)
	assert.Empty(t, e.tx.msgs)
}

func TestDuplicateDiscardIsReportedTwice(t *testing.T) {
	e := newBearerEnv()
	e.bearer.DiscardSdu(3)
	e.bearer.DiscardSdu(3)
	e.tick(f1u.DefaultDlNotifPeriod)
	require.Len(t, e.tx.msgs, 1)
	assert.Equal(t, []nru.DiscardBlock{{StartSn: 3, Size: 1}, {StartSn: 3, Size: 1}}, e.tx.msgs[0].UserData.DiscardBlocks)
}

func TestFullDiscardBlocksAreFlushed(t *testing.T) {
	e := newBearerEnv()
	for i := 0; i <= nru.MaxNofDiscardBlocks; i++ {
		e.bearer.DiscardSdu(uint32(2 * i))
	}
	require.Len(t, e.tx.msgs, 1)
	assert.Len(t, e.tx.msgs[0].UserData.DiscardBlocks, nru.MaxNofDiscardBlocks)

	e.tick(f1u.DefaultDlNotifPeriod)
	require.Len(t, e.tx.msgs, 2)
	assert.Equal(t, []nru.DiscardBlock{{StartSn: 2 * nru.MaxNofDiscardBlocks, Size: 1}}, e.tx.msgs[1].UserData.DiscardBlocks)
}

func TestDiscardBlockSizeIsCapped(t *testing.T) {
	e := newBearerEnv()
	for sn := uint32(0); sn < nru.MaxDiscardBlockSize+1; sn++ {
		e.bearer.DiscardSdu(sn)
	}
	e.tick(f1u.DefaultDlNotifPeriod)
	require.Len(t, e.tx.msgs, 1)
	assert.Equal(t, []nru.DiscardBlock{{StartSn: 0, Size: 255}, {StartSn: 255, Size: 1}}, e.tx.msgs[0].UserData.DiscardBlocks)
}

func TestUplinkPdu(t *testing.T) {
	e := newBearerEnv()
	tx, dl, retx, dlRetx := uint32(10), uint32(8), uint32(4), uint32(3)
	e.bearer.HandlePdu(nru.UlMessage{
		TPdu: []byte{9, 9},
		DataDeliveryStatus: &nru.DataDeliveryStatus{
			HighestTransmittedSn:          &tx,
			HighestDeliveredSn:            &dl,
			HighestRetransmitted:          &retx,
			HighestDeliveredRetransmitted: &dlRetx,
		},
	})
	assert.Equal(t, [][]byte{{9, 9}}, e.sdus.sdus)
	assert.Equal(t, []uint32{10}, e.delivery.transmitted)
	assert.Equal(t, []uint32{8}, e.delivery.delivered)
	assert.Equal(t, []uint32{4}, e.delivery.retransmitted)
	assert.Equal(t, []uint32{3}, e.delivery.deliveredRetx)

	e.bearer.HandlePdu(nru.UlMessage{TPdu: []byte{1}})
	assert.Len(t, e.sdus.sdus, 2)
	assert.Len(t, e.delivery.transmitted, 1)
}

func TestStopDisconnectsAndReleasesTimer(t *testing.T) {
	e := newBearerEnv()
	require.Equal(t, 1, e.timers.NofTimers())
	e.bearer.DiscardSdu(1)

	e.bearer.Stop()
	e.bearer.Stop()
	assert.Equal(t, []f1u.TunnelInfo{ulTnl}, e.disconnector.disconnected)
	assert.Zero(t, e.timers.NofTimers())

	e.tick(2 * f1u.DefaultDlNotifPeriod)
	e.bearer.HandleSdu(PdcpTxPdu{Buf: []byte{1}})
	assert.Empty(t, e.tx.msgs)
}

func TestTimerExpiryQueuedBeforeStopIsIgnored(t *testing.T) {
	m := timers.NewManager()
	exec := &executor.Manual{}
	tx := &txSpy{}
	d := &disconnectorSpy{}
	b := NewBearer(1, 2, ulTnl, tx, &deliverySpy{}, &sduSpy{}, m.Create(exec), d, time.Millisecond)
	b.DiscardSdu(4)
	m.Tick()
	require.True(t, exec.HasPending())
	b.Stop()
	exec.RunPending()
	assert.Empty(t, tx.msgs)
}

// Every discarded SN is reported exactly once and in order, however the
// discards are split between flushes, SDUs and timer expiries.
func TestDiscardsAreReportedInOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		e := newBearerEnv()
		var want []uint32
		steps := rapid.IntRange(1, 300).Draw(t, "steps")
		sn := uint32(0)
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 9).Draw(t, "op") {
			case 0:
				e.bearer.HandleSdu(PdcpTxPdu{Buf: []byte{0}, PdcpSn: sn})
			case 1:
				e.tick(f1u.DefaultDlNotifPeriod)
			default:
				sn += uint32(rapid.IntRange(0, 2).Draw(t, "gap"))
				e.bearer.DiscardSdu(sn)
				want = append(want, sn)
			}
		}
		e.tick(f1u.DefaultDlNotifPeriod)

		var got []uint32
		for _, msg := range e.tx.msgs {
			require.LessOrEqual(t, len(msg.UserData.DiscardBlocks), nru.MaxNofDiscardBlocks)
			for _, blk := range msg.UserData.DiscardBlocks {
				for k := uint32(0); k < uint32(blk.Size); k++ {
					got = append(got, blk.StartSn+k)
				}
			}
		}
		require.Equal(t, want, got)
	})
}
