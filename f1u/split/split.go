// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package split carries F1-U bearers over GTP-U/UDP between a CU-UP and a DU
// running in different processes. Received G-PDUs reach the bearers through
// the GTP-U demux.
package split

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/omec-project/gnb/f1u"
	"github.com/omec-project/gnb/f1u/cuup"
	"github.com/omec-project/gnb/f1u/du"
	"github.com/omec-project/gnb/gtp/handler"
	gtpMsg "github.com/omec-project/gnb/gtp/message"
	"github.com/omec-project/gnb/logger"
	"github.com/omec-project/gnb/nru"
	"github.com/omec-project/gnb/support/executor"
	"github.com/omec-project/gnb/support/timers"
	"github.com/pkg/errors"
)

var ErrTeidInUse = errors.New("TEID already registered in the demux")

// Transport sends datagrams to the peer F1-U endpoint.
type Transport interface {
	Send(b []byte, dst net.Addr) error
}

func peerAddr(tnl f1u.TunnelInfo, port int) (net.Addr, error) {
	addr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(tnl.Addr, strconv.Itoa(port)))
	if err != nil {
		return nil, errors.Wrapf(err, "resolve F1-U peer %v", tnl)
	}
	return addr, nil
}

func send(tr Transport, tnl f1u.TunnelInfo, port int, container, payload []byte) {
	dst, err := peerAddr(tnl, port)
	if err != nil {
		logger.F1uLog.Errorf("%+v", err)
		return
	}
	b, err := gtpMsg.BuildNrUPacket(tnl.Teid, container, payload)
	if err != nil {
		logger.F1uLog.Errorf("build F1-U G-PDU for %v: %+v", tnl, err)
		return
	}
	if err := tr.Send(b, dst); err != nil {
		logger.F1uLog.Errorf("send F1-U G-PDU: %+v", err)
	}
}

// CuGateway is the CU-UP side of the split connector.
type CuGateway struct {
	demux    *handler.Demux
	tr       Transport
	peerPort int

	mu     sync.Mutex
	dlTnls map[uint32]f1u.TunnelInfo
}

var _ cuup.Gateway = (*CuGateway)(nil)

func NewCuGateway(tr Transport, demux *handler.Demux, peerPort int) *CuGateway {
	return &CuGateway{demux: demux, tr: tr, peerPort: peerPort, dlTnls: make(map[uint32]f1u.TunnelInfo)}
}

type cuSender struct {
	g     *CuGateway
	ulTnl f1u.TunnelInfo
}

func (s cuSender) OnNewPdu(msg nru.DlMessage) {
	s.g.mu.Lock()
	dl, ok := s.g.dlTnls[s.ulTnl.Teid]
	s.g.mu.Unlock()
	if !ok {
		logger.F1uLog.Warnf("no DL tunnel attached to UL %v, dropping DL message", s.ulTnl)
		return
	}
	container, err := msg.UserData.Encode()
	if err != nil {
		logger.F1uLog.Errorf("encode DL user data: %+v", err)
		return
	}
	send(s.g.tr, dl, s.g.peerPort, container, msg.TPdu)
}

// decodeUl turns a G-PDU from the DU into an NR-U UL message.
func decodeUl(pdu *gtpMsg.Packet) (nru.UlMessage, error) {
	msg := nru.UlMessage{}
	if c := pdu.GetNrRanContainer(); c != nil {
		s, err := nru.DecodeDataDeliveryStatus(c)
		if err != nil {
			return msg, err
		}
		msg.DataDeliveryStatus = s
	}
	if p := pdu.GetPayload(); len(p) > 0 {
		msg.TPdu = p
	}
	return msg, nil
}

func (g *CuGateway) CreateCuBearer(
	ueIndex uint32,
	drbId f1u.DrbId,
	ulTnl f1u.TunnelInfo,
	rxDelivery cuup.RxDeliveryNotifier,
	rxSdu cuup.RxSduNotifier,
	exec executor.TaskExecutor,
	tm *timers.Manager,
	dlNotifPeriod time.Duration,
) (*cuup.Bearer, error) {
	timer := tm.Create(exec)
	b := cuup.NewBearer(ueIndex, drbId, ulTnl, cuSender{g: g, ulTnl: ulTnl}, rxDelivery, rxSdu, timer, g, dlNotifPeriod)
	rx := handler.RxHandlerFunc(func(pdu *gtpMsg.Packet, src net.Addr) {
		msg, err := decodeUl(pdu)
		if err != nil {
			logger.F1uLog.Warnf("UL %v: malformed NR-U frame from %v: %+v", ulTnl, src, err)
			return
		}
		b.HandlePdu(msg)
	})
	if !g.demux.AddTunnel(ulTnl.Teid, exec, rx) {
		timer.Release()
		return nil, errors.Wrapf(ErrTeidInUse, "UL %v", ulTnl)
	}
	return b, nil
}

func (g *CuGateway) AttachDlTeid(ulTnl, dlTnl f1u.TunnelInfo) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dlTnls[ulTnl.Teid] = dlTnl
	logger.F1uLog.Infof("attached DL %v to UL %v", dlTnl, ulTnl)
	return nil
}

func (g *CuGateway) DisconnectCuBearer(ulTnl f1u.TunnelInfo) {
	g.demux.RemoveTunnel(ulTnl.Teid)
	g.mu.Lock()
	delete(g.dlTnls, ulTnl.Teid)
	g.mu.Unlock()
}

// DuGateway is the DU side of the split connector.
type DuGateway struct {
	demux    *handler.Demux
	tr       Transport
	peerPort int
}

var _ du.Gateway = (*DuGateway)(nil)

func NewDuGateway(tr Transport, demux *handler.Demux, peerPort int) *DuGateway {
	return &DuGateway{demux: demux, tr: tr, peerPort: peerPort}
}

type duSender struct {
	g     *DuGateway
	ulTnl f1u.TunnelInfo
}

func (s duSender) OnNewPdu(msg nru.UlMessage) {
	var container []byte
	if msg.DataDeliveryStatus != nil {
		var err error
		if container, err = msg.DataDeliveryStatus.Encode(); err != nil {
			logger.F1uLog.Errorf("encode delivery status: %+v", err)
			return
		}
	}
	send(s.g.tr, s.ulTnl, s.g.peerPort, container, msg.TPdu)
}

func (g *DuGateway) CreateDuBearer(
	ueIndex uint32,
	drbId f1u.DrbId,
	dlTnl, ulTnl f1u.TunnelInfo,
	rx du.RxSduNotifier,
	exec executor.TaskExecutor,
) (*du.Bearer, error) {
	b := du.NewBearer(ueIndex, drbId, dlTnl, rx, duSender{g: g, ulTnl: ulTnl})
	h := handler.RxHandlerFunc(func(pdu *gtpMsg.Packet, src net.Addr) {
		c := pdu.GetNrRanContainer()
		if c == nil {
			logger.F1uLog.Warnf("DL %v: G-PDU from %v without NR RAN container", dlTnl, src)
			return
		}
		u, err := nru.DecodeDlUserData(c)
		if err != nil {
			logger.F1uLog.Warnf("DL %v: malformed NR-U frame: %+v", dlTnl, err)
			return
		}
		msg := nru.DlMessage{UserData: *u}
		if p := pdu.GetPayload(); len(p) > 0 {
			msg.TPdu = p
		}
		b.HandlePdu(msg)
	})
	if !g.demux.AddTunnel(dlTnl.Teid, exec, h) {
		return nil, errors.Wrapf(ErrTeidInUse, "DL %v", dlTnl)
	}
	return b, nil
}

func (g *DuGateway) RemoveDuBearer(dlTnl f1u.TunnelInfo) {
	if !g.demux.RemoveTunnel(dlTnl.Teid) {
		logger.F1uLog.Warnf("removal of unknown DL %v", dlTnl)
	}
}
