// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package split

import (
	"net"
	"testing"

	"github.com/omec-project/gnb/f1u"
	"github.com/omec-project/gnb/f1u/cuup"
	"github.com/omec-project/gnb/gtp/handler"
	"github.com/omec-project/gnb/support/executor"
	"github.com/omec-project/gnb/support/timers"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wire hands datagrams straight to the receiving demux.
type wire struct {
	to   *handler.Demux
	dsts []net.Addr
}

func (w *wire) Send(b []byte, dst net.Addr) error {
	w.dsts = append(w.dsts, dst)
	w.to.HandleDatagram(b, dst)
	return nil
}

type cuSdus struct{ sdus [][]byte }

func (s *cuSdus) OnNewSdu(sdu []byte) { s.sdus = append(s.sdus, sdu) }

type cuDelivery struct{ transmitted []uint32 }

func (d *cuDelivery) OnTransmitNotification(sn uint32)           { d.transmitted = append(d.transmitted, sn) }
func (d *cuDelivery) OnDeliveryNotification(uint32)              {}
func (d *cuDelivery) OnRetransmitNotification(uint32)            {}
func (d *cuDelivery) OnDeliveryRetransmittedNotification(uint32) {}

type rlc struct {
	sdus      [][]byte
	discarded []uint32
}

func (r *rlc) OnNewSdu(sdu []byte, _ uint32) { r.sdus = append(r.sdus, sdu) }
func (r *rlc) OnDiscardSdu(sn uint32)        { r.discarded = append(r.discarded, sn) }

func TestSplitBearersOverGtpu(t *testing.T) {
	cfg := handler.Config{QueueLength: 64, PoolThreshold: 0.9}
	cuDemux, duDemux := handler.NewDemux(cfg), handler.NewDemux(cfg)
	toDu, toCu := &wire{to: duDemux}, &wire{to: cuDemux}
	cuGw := NewCuGateway(toDu, cuDemux, 2152)
	duGw := NewDuGateway(toCu, duDemux, 2152)

	ulTnl := f1u.TunnelInfo{Addr: "127.0.2.1", Teid: 0x11}
	dlTnl := f1u.TunnelInfo{Addr: "127.0.3.1", Teid: 0x22}
	tm := timers.NewManager()
	sdus, delivery, r := &cuSdus{}, &cuDelivery{}, &rlc{}

	cu, err := cuGw.CreateCuBearer(1, 1, ulTnl, delivery, sdus, executor.Inline{}, tm, f1u.DefaultDlNotifPeriod)
	require.NoError(t, err)
	duBearer, err := duGw.CreateDuBearer(1, 1, dlTnl, ulTnl, r, executor.Inline{})
	require.NoError(t, err)
	require.NoError(t, cuGw.AttachDlTeid(ulTnl, dlTnl))

	cu.DiscardSdu(3)
	cu.HandleSdu(cuup.PdcpTxPdu{Buf: []byte{0xaa, 0xbb}, PdcpSn: 4})
	assert.Equal(t, [][]byte{{0xaa, 0xbb}}, r.sdus)
	assert.Equal(t, []uint32{3}, r.discarded)
	require.NotEmpty(t, toDu.dsts)
	assert.Equal(t, "127.0.3.1:2152", toDu.dsts[0].String())

	duBearer.HandleSdu([]byte{0xcc})
	duBearer.HandleTransmitNotification(4)
	assert.Equal(t, [][]byte{{0xcc}}, sdus.sdus)
	assert.Equal(t, []uint32{4}, delivery.transmitted)

	cu.Stop()
	assert.Zero(t, cuDemux.NofTunnels())
	duGw.RemoveDuBearer(dlTnl)
	assert.Zero(t, duDemux.NofTunnels())
}

func TestSplitTeidCollision(t *testing.T) {
	demux := handler.NewDemux(handler.Config{QueueLength: 4, PoolThreshold: 1})
	gw := NewCuGateway(&wire{to: demux}, demux, 2152)
	tm := timers.NewManager()
	tnl := f1u.TunnelInfo{Addr: "127.0.0.1", Teid: 1}
	_, err := gw.CreateCuBearer(1, 1, tnl, &cuDelivery{}, &cuSdus{}, executor.Inline{}, tm, 0)
	require.NoError(t, err)
	_, err = gw.CreateCuBearer(2, 1, tnl, &cuDelivery{}, &cuSdus{}, executor.Inline{}, tm, 0)
	assert.Equal(t, ErrTeidInUse, errors.Cause(err))
	assert.Equal(t, 1, tm.NofTimers())
}
