// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package cuup

import (
	"fmt"
	"time"

	"github.com/omec-project/gnb/e1ap"
	"github.com/omec-project/gnb/f1u"
	f1ucuup "github.com/omec-project/gnb/f1u/cuup"
	"github.com/omec-project/gnb/gtp/tunnel"
	"github.com/omec-project/gnb/logger"
	"github.com/omec-project/gnb/support/executor"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	// pdcpSnMask wraps the PDCP SN at 18 bits.
	pdcpSnMask = 1<<18 - 1

	releaseRetryMax = 50 * time.Millisecond
)

// bearerContext is the user plane of one UE. Its tunnels and bearers run on
// exec; the context itself is created and looked up on the CU-UP control
// executor.
type bearerContext struct {
	u        *CuUp
	log      *zap.SugaredLogger
	id       uint32
	cuCpId   uint32
	exec     *executor.WorkerPool
	security e1ap.SecurityInfo
	sessions map[uint8]*pduSession
}

type pduSession struct {
	bc       *bearerContext
	id       uint8
	dlTeid   uint32
	rx       *tunnel.Rx
	tx       *tunnel.Tx
	drbs     map[uint8]*drb
	qfiToDrb map[uint8]*drb
	// first DRB of the session, used for QoS flows no DRB maps.
	defaultDrb *drb
}

type drb struct {
	session    *pduSession
	id         uint8
	qosFlows   []uint8
	ulTnl      f1u.TunnelInfo
	bearer     *f1ucuup.Bearer
	pdcpTxNext uint32
}

func newBearerContext(u *CuUp, id, cuCpId uint32, security e1ap.SecurityInfo) *bearerContext {
	if tm := u.cfg.TestMode; tm.Enabled {
		security = e1ap.SecurityInfo{Key: security.Key}
		if tm.Ciphering {
			security.CipheringAlgo = tm.NeaAlgo
		}
		if tm.Integrity {
			security.IntegrityAlgo = tm.NiaAlgo
		}
	}
	bc := &bearerContext{
		u:        u,
		log:      logger.CuUpLog.With("ue", id),
		id:       id,
		cuCpId:   cuCpId,
		exec:     executor.NewTaskWorker(fmt.Sprintf("cu-up-ue-%d", id), ueTaskQueueSize),
		security: security,
		sessions: make(map[uint8]*pduSession),
	}
	bc.log.Debugf("NEA%d NIA%d", security.CipheringAlgo, security.IntegrityAlgo)
	return bc
}

// addPduSession opens the N3 tunnel and the F1-U bearers of a PDU session.
// Partially created resources are released on error.
func (bc *bearerContext) addPduSession(s e1ap.PduSessionToSetup) (e1ap.PduSessionSetup, error) {
	u := bc.u
	if _, dup := bc.sessions[s.PduSessionId]; dup {
		return e1ap.PduSessionSetup{}, errors.Errorf("duplicate PDU session %d", s.PduSessionId)
	}
	upf, err := u.upfAddr(s.NgUlUpTnlInfo)
	if err != nil {
		return e1ap.PduSessionSetup{}, err
	}
	dlTeid, err := u.allocateTeid(u.n3Teids)
	if err != nil {
		return e1ap.PduSessionSetup{}, err
	}

	ps := &pduSession{
		bc:       bc,
		id:       s.PduSessionId,
		dlTeid:   dlTeid,
		tx:       tunnel.NewTx(tunnel.TxConfig{PeerTeid: s.NgUlUpTnlInfo.Teid, Peer: upf}, u.deps.N3Sender),
		drbs:     make(map[uint8]*drb),
		qfiToDrb: make(map[uint8]*drb),
	}
	ps.rx = tunnel.NewRx(tunnel.RxConfig{
		Teid:        dlTeid,
		TReordering: u.cfg.N3ReorderTimer,
		WarnOnDrop:  u.cfg.WarnOnDrop,
	}, ps, u.deps.Timers.Create(bc.exec))
	if !u.deps.N3Demux.AddTunnel(dlTeid, bc.exec, ps.rx) {
		ps.rx.Stop()
		u.n3Teids.FreeID(int64(dlTeid))
		return e1ap.PduSessionSetup{}, errors.Errorf("N3 TEID %#x in use", dlTeid)
	}

	setup := e1ap.PduSessionSetup{
		PduSessionId:  s.PduSessionId,
		NgDlUpTnlInfo: e1ap.UpTnlInfo{Addr: u.deps.N3Addr, Port: uint16(u.cfg.N3.BindPort), Teid: dlTeid},
	}
	for _, d := range s.Drbs {
		ds, err := ps.addDrb(d)
		if err != nil {
			ps.release()
			return e1ap.PduSessionSetup{}, errors.Wrapf(err, "DRB %d", d.DrbId)
		}
		setup.Drbs = append(setup.Drbs, ds)
	}
	bc.sessions[ps.id] = ps
	bc.log.Infof("PDU session %d: N3 DL TEID %#x, UPF %v/%#x", ps.id, dlTeid, upf, s.NgUlUpTnlInfo.Teid)
	return setup, nil
}

func (ps *pduSession) addDrb(d e1ap.DrbToSetup) (e1ap.DrbSetup, error) {
	u := ps.bc.u
	if _, dup := ps.drbs[d.DrbId]; dup {
		return e1ap.DrbSetup{}, errors.New("duplicate DRB")
	}
	ulTeid, err := u.allocateTeid(u.f1uTeids)
	if err != nil {
		return e1ap.DrbSetup{}, err
	}
	r := &drb{session: ps, id: d.DrbId, qosFlows: d.QosFlows, ulTnl: f1u.TunnelInfo{Addr: u.deps.F1uAddr, Teid: ulTeid}}
	r.bearer, err = u.deps.F1u.CreateCuBearer(ps.bc.id, f1u.DrbId(d.DrbId), r.ulTnl, r, r, ps.bc.exec,
		u.deps.Timers, u.cfg.DlNotifPeriod)
	if err != nil {
		u.f1uTeids.FreeID(int64(ulTeid))
		return e1ap.DrbSetup{}, err
	}
	ps.drbs[r.id] = r
	for _, qfi := range d.QosFlows {
		ps.qfiToDrb[qfi] = r
	}
	if ps.defaultDrb == nil {
		ps.defaultDrb = r
	}
	u.nofDrbs.Add(1)
	return e1ap.DrbSetup{
		DrbId:       d.DrbId,
		UlUpTnlInfo: e1ap.UpTnlInfo{Addr: r.ulTnl.Addr, Port: uint16(u.cfg.F1u.BindPort), Teid: ulTeid},
		QosFlows:    d.QosFlows,
	}, nil
}

func (bc *bearerContext) findDrb(id uint8) *drb {
	for _, ps := range bc.sessions {
		if d, ok := ps.drbs[id]; ok {
			return d
		}
	}
	return nil
}

// attachDlTunnel connects a DRB to the F1-U tunnel of the DU.
func (bc *bearerContext) attachDlTunnel(m e1ap.DrbToModify) error {
	d := bc.findDrb(m.DrbId)
	if d == nil {
		return errors.New("unknown DRB")
	}
	return bc.u.deps.F1u.AttachDlTeid(d.ulTnl, f1u.TunnelInfo{Addr: m.DlUpTnlInfo.Addr, Teid: m.DlUpTnlInfo.Teid})
}

// OnNewSdu maps a DL SDU from the UPF to its DRB.
func (ps *pduSession) OnNewSdu(sdu []byte, qfi uint8) {
	d, ok := ps.qfiToDrb[qfi]
	if !ok {
		d = ps.defaultDrb
	}
	if d == nil {
		ps.bc.log.Warnf("PDU session %d: no DRB for QFI %d, dropping SDU", ps.id, qfi)
		return
	}
	d.sendSdu(sdu)
}

func (ps *pduSession) release() {
	u := ps.bc.u
	for _, d := range ps.drbs {
		d.bearer.Stop()
		u.f1uTeids.FreeID(int64(d.ulTnl.Teid))
		u.nofDrbs.Add(-1)
	}
	ps.drbs = nil
	u.deps.N3Demux.RemoveTunnel(ps.dlTeid)
	ps.rx.Stop()
	u.n3Teids.FreeID(int64(ps.dlTeid))
}

func (d *drb) sendSdu(sdu []byte) {
	sn := d.pdcpTxNext
	d.pdcpTxNext = (d.pdcpTxNext + 1) & pdcpSnMask
	d.session.bc.u.dlSdus.Add(1)
	d.bearer.HandleSdu(f1ucuup.PdcpTxPdu{Buf: sdu, PdcpSn: sn})
}

// OnNewSdu forwards an UL SDU from the DU to the UPF.
func (d *drb) OnNewSdu(sdu []byte) {
	var qfi uint8
	if len(d.qosFlows) > 0 {
		qfi = d.qosFlows[0]
	}
	d.session.bc.u.ulSdus.Add(1)
	if err := d.session.tx.HandleSdu(sdu, qfi); err != nil {
		d.session.bc.log.Warnf("DRB %d: send UL SDU to UPF: %+v", d.id, err)
	}
}

func (d *drb) OnTransmitNotification(highestSn uint32) {
	d.session.bc.log.Debugf("DRB %d: highest transmitted PDCP SN %d", d.id, highestSn)
}

func (d *drb) OnDeliveryNotification(highestSn uint32) {
	d.session.bc.log.Debugf("DRB %d: highest delivered PDCP SN %d", d.id, highestSn)
}

func (d *drb) OnRetransmitNotification(highestSn uint32) {
	d.session.bc.log.Debugf("DRB %d: highest retransmitted PDCP SN %d", d.id, highestSn)
}

func (d *drb) OnDeliveryRetransmittedNotification(highestSn uint32) {
	d.session.bc.log.Debugf("DRB %d: highest delivered retransmitted PDCP SN %d", d.id, highestSn)
}

func (bc *bearerContext) release() {
	bc.releaseThen(nil)
}

// releaseThen tears every session down on the UE executor, calls done and
// stops the executor. While the executor queue is full the caller waits, so
// the teardown never runs next to another task of the UE.
func (bc *bearerContext) releaseThen(done func()) {
	task := func() {
		for id, ps := range bc.sessions {
			ps.release()
			delete(bc.sessions, id)
		}
		bc.log.Infoln("bearer context released")
		if done != nil {
			done()
		}
		go bc.exec.Stop()
	}
	for delay := time.Millisecond; !bc.exec.Execute(task); delay = min(2*delay, releaseRetryMax) {
		if bc.exec.Stopped() {
			bc.log.Warnln("UE executor already stopped, release skipped")
			return
		}
		bc.log.Debugf("UE executor full, retrying release in %v", delay)
		time.Sleep(delay)
	}
}
