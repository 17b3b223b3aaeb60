// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package cuup implements the gNB user plane: E1 towards the CU-CP, bearer
// contexts whose DRBs are F1-U bearers towards the DU and whose PDU sessions
// are N3 tunnels towards the UPF.
package cuup

import (
	"context"
	"io"
	"math"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/omec-project/gnb/e1ap"
	f1ucuup "github.com/omec-project/gnb/f1u/cuup"
	"github.com/omec-project/gnb/factory"
	"github.com/omec-project/gnb/gateway"
	"github.com/omec-project/gnb/gtp/handler"
	"github.com/omec-project/gnb/gtp/tunnel"
	"github.com/omec-project/gnb/logger"
	"github.com/omec-project/gnb/support/executor"
	"github.com/omec-project/gnb/support/timers"
	"github.com/omec-project/gnb/support/transaction"
	"github.com/omec-project/util/idgenerator"
	"github.com/pkg/errors"
)

const (
	ctrlQueueSize   = 1024
	ueTaskQueueSize = 1024
	e1SetupTimeout  = 5 * time.Second
	maxE1apTransId  = 255
)

var (
	ErrE1SetupRejected = errors.New("E1 Setup rejected")
	ErrNotConnected    = errors.New("CU-UP not connected to a CU-CP")
)

// Metrics are the CU-UP counters.
type Metrics struct {
	NofBearerContexts int
	NofDrbs           int
	DlSdus            uint64
	UlSdus            uint64
	N3Dropped         uint64
}

// Dependencies are the user plane transports of a CU-UP.
type Dependencies struct {
	// F1u creates the CU-UP end of the F1-U bearers.
	F1u f1ucuup.Gateway
	// F1uAddr is the address announced for the UL F1-U tunnels.
	F1uAddr string
	// N3Demux receives the DL G-PDUs of the UPF.
	N3Demux *handler.Demux
	// N3Sender carries UL G-PDUs to the UPF.
	N3Sender tunnel.Sender
	// N3Addr is the address announced for the DL N3 tunnels.
	N3Addr string
	Timers *timers.Manager
}

type CuUp struct {
	cfg  factory.CuUpConfig
	deps Dependencies

	ctrl     *executor.WorkerPool
	f1uTeids *idgenerator.IDGenerator
	n3Teids  *idgenerator.IDGenerator
	e1Trans  *transaction.Manager[*e1ap.Pdu]

	mu   sync.Mutex
	e1Tx gateway.MessageNotifier[*e1ap.Pdu]

	// Owned by ctrl.
	contexts map[uint32]*bearerContext
	nextId   uint32

	assocId   atomic.Uint64
	connected atomic.Bool
	dlSdus    atomic.Uint64
	ulSdus    atomic.Uint64
	nofDrbs   atomic.Int64
	nofCtxs   atomic.Int64
	stopOnce  sync.Once
}

func New(cfg factory.CuUpConfig, deps Dependencies) *CuUp {
	return &CuUp{
		cfg:      cfg,
		deps:     deps,
		ctrl:     executor.NewTaskWorker("cu-up-ctrl", ctrlQueueSize),
		f1uTeids: idgenerator.NewGenerator(1, math.MaxUint32),
		n3Teids:  idgenerator.NewGenerator(1, math.MaxUint32),
		e1Trans:  transaction.NewManager[*e1ap.Pdu](maxE1apTransId),
		contexts: make(map[uint32]*bearerContext),
	}
}

// Start opens the E1 association and runs E1 Setup.
func (u *CuUp) Start(ctx context.Context, connector gateway.Connector[*e1ap.Pdu]) error {
	tx, err := connector.Connect(&e1Rx{u: u, id: u.assocId.Add(1)})
	if err != nil {
		return errors.Wrap(err, "connect to CU-CP")
	}
	u.mu.Lock()
	u.e1Tx = tx
	u.mu.Unlock()

	id, sink, err := u.e1Trans.Create()
	if err != nil {
		return err
	}
	logger.E1apLog.Infof("sending E1 Setup Request gNB-CU-UP-id=%d", u.cfg.CuUpId)
	tx.OnNewMessage(&e1ap.Pdu{GnbCuUpE1SetupRequest: &e1ap.GnbCuUpE1SetupRequest{
		TransactionId: uint8(id),
		GnbCuUpId:     u.cfg.CuUpId,
		GnbCuUpName:   u.cfg.CuUpName,
	}})

	pdu, err := sink.Wait(ctx, e1SetupTimeout)
	if err != nil {
		u.e1Trans.Release(id)
		u.disconnect(tx)
		return errors.Wrap(err, "E1 Setup")
	}
	if f := pdu.GnbCuUpE1SetupFailure; f != nil {
		u.disconnect(tx)
		return errors.Wrapf(ErrE1SetupRejected, "cause %s", f.Cause)
	}
	u.connected.Store(true)
	logger.E1apLog.Infof("E1 Setup complete with CU-CP %q", pdu.GnbCuUpE1SetupResponse.GnbCuCpName)
	return nil
}

// disconnect closes tx if it is still the current association.
func (u *CuUp) disconnect(tx gateway.MessageNotifier[*e1ap.Pdu]) {
	u.mu.Lock()
	if u.e1Tx == tx {
		u.e1Tx = nil
	}
	u.mu.Unlock()
	u.connected.Store(false)
	if closer, ok := tx.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			logger.E1apLog.Warnf("close E1 association: %+v", err)
		}
	}
}

func (u *CuUp) Connected() bool {
	return u.connected.Load()
}

func (u *CuUp) send(pdu *e1ap.Pdu) {
	u.mu.Lock()
	tx := u.e1Tx
	u.mu.Unlock()
	if tx == nil {
		logger.E1apLog.Warnf("no E1 association, dropping %s", pdu.Name())
		return
	}
	logger.E1apLog.Debugf("send %s", pdu.Name())
	tx.OnNewMessage(pdu)
}

type e1Rx struct {
	u  *CuUp
	id uint64
}

func (r *e1Rx) OnNewMessage(pdu *e1ap.Pdu) {
	u := r.u
	switch {
	case pdu.GnbCuUpE1SetupResponse != nil:
		u.e1Trans.Set(int(pdu.GnbCuUpE1SetupResponse.TransactionId), pdu)
	case pdu.GnbCuUpE1SetupFailure != nil:
		u.e1Trans.Set(int(pdu.GnbCuUpE1SetupFailure.TransactionId), pdu)
	default:
		u.ctrl.Execute(func() { u.handleE1apPdu(pdu) })
	}
}

func (r *e1Rx) OnConnectionLoss() {
	u := r.u
	if r.id != u.assocId.Load() {
		return
	}
	logger.E1apLog.Warnln("E1 association lost")
	u.connected.Store(false)
	u.mu.Lock()
	u.e1Tx = nil
	u.mu.Unlock()
	u.e1Trans.CancelAll()
	u.ctrl.Execute(u.releaseAll)
}

func (u *CuUp) handleE1apPdu(pdu *e1ap.Pdu) {
	logger.E1apLog.Debugf("received %s", pdu.Name())
	switch {
	case pdu.BearerContextSetupRequest != nil:
		u.handleBearerContextSetup(pdu.BearerContextSetupRequest)
	case pdu.BearerContextModificationRequest != nil:
		u.handleBearerContextModification(pdu.BearerContextModificationRequest)
	case pdu.BearerContextReleaseCommand != nil:
		u.handleBearerContextRelease(pdu.BearerContextReleaseCommand)
	default:
		logger.E1apLog.Warnf("unexpected %s", pdu.Name())
	}
}

// upfAddr resolves the N3 peer of a PDU session. The port announced over E1
// is used only when trusted, the configured UPF port otherwise.
func (u *CuUp) upfAddr(tnl e1ap.UpTnlInfo) (net.Addr, error) {
	port := u.cfg.UpfPort
	if u.cfg.TrustE1UpfPort && tnl.Port != 0 {
		port = int(tnl.Port)
	}
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(tnl.Addr, strconv.Itoa(port)))
	if err != nil {
		return nil, errors.Wrapf(err, "resolve UPF %s", tnl)
	}
	return addr, nil
}

func (u *CuUp) allocateTeid(gen *idgenerator.IDGenerator) (uint32, error) {
	teid, err := gen.Allocate()
	if err != nil {
		return 0, errors.Wrap(err, "allocate TEID")
	}
	return uint32(teid), nil
}

func (u *CuUp) handleBearerContextSetup(req *e1ap.BearerContextSetupRequest) {
	fail := func(cause e1ap.Cause, err error) {
		logger.CuUpLog.Warnf("gNB-CU-CP UE E1AP id %d: bearer context setup failed: %+v", req.GnbCuCpUeE1apId, err)
		u.send(&e1ap.Pdu{BearerContextSetupFailure: &e1ap.BearerContextSetupFailure{
			GnbCuCpUeE1apId: req.GnbCuCpUeE1apId,
			Cause:           cause,
		}})
	}
	if u.cfg.MaxNofBearers > 0 && int(u.nofDrbs.Load())+countDrbs(req.PduSessions) > u.cfg.MaxNofBearers {
		fail(e1ap.Cause{Group: e1ap.CauseMisc, Value: e1ap.CauseMiscUnspecified},
			errors.Errorf("bearer limit %d reached", u.cfg.MaxNofBearers))
		return
	}

	id := u.nextId
	u.nextId++
	bc := newBearerContext(u, id, req.GnbCuCpUeE1apId, req.Security)
	resp := &e1ap.BearerContextSetupResponse{GnbCuCpUeE1apId: req.GnbCuCpUeE1apId, GnbCuUpUeE1apId: id}
	for _, s := range req.PduSessions {
		setup, err := bc.addPduSession(s)
		if err != nil {
			logger.CuUpLog.Warnf("ue=%d: PDU session %d: %+v", id, s.PduSessionId, err)
			resp.FailedPduSessions = append(resp.FailedPduSessions, e1ap.PduSessionFailed{
				PduSessionId: s.PduSessionId,
				Cause:        e1ap.Cause{Group: e1ap.CauseTransport, Value: e1ap.CauseTransportResourceUnavail},
			})
			continue
		}
		resp.PduSessions = append(resp.PduSessions, setup)
	}
	if len(resp.PduSessions) == 0 && len(req.PduSessions) > 0 {
		bc.release()
		fail(e1ap.Cause{Group: e1ap.CauseTransport, Value: e1ap.CauseTransportResourceUnavail},
			errors.New("no PDU session could be set up"))
		return
	}

	u.contexts[id] = bc
	u.nofCtxs.Add(1)
	logger.CuUpLog.Infof("ue=%d: bearer context set up with %d PDU sessions", id, len(resp.PduSessions))
	u.send(&e1ap.Pdu{BearerContextSetupResponse: resp})
}

func countDrbs(sessions []e1ap.PduSessionToSetup) int {
	n := 0
	for _, s := range sessions {
		n += len(s.Drbs)
	}
	return n
}

func (u *CuUp) handleBearerContextModification(req *e1ap.BearerContextModificationRequest) {
	bc, ok := u.contexts[req.GnbCuUpUeE1apId]
	if !ok || bc.cuCpId != req.GnbCuCpUeE1apId {
		logger.CuUpLog.Warnf("modification for unknown gNB-CU-UP UE E1AP id %d", req.GnbCuUpUeE1apId)
		u.send(&e1ap.Pdu{BearerContextModificationFailure: &e1ap.BearerContextModificationFailure{
			GnbCuCpUeE1apId: req.GnbCuCpUeE1apId,
			GnbCuUpUeE1apId: req.GnbCuUpUeE1apId,
			Cause:           e1ap.Cause{Group: e1ap.CauseRadioNetwork, Value: e1ap.CauseRadioNetworkUnknownUeId},
		}})
		return
	}
	resp := &e1ap.BearerContextModificationResponse{
		GnbCuCpUeE1apId: req.GnbCuCpUeE1apId,
		GnbCuUpUeE1apId: req.GnbCuUpUeE1apId,
	}
	for _, d := range req.DrbsToModify {
		if err := bc.attachDlTunnel(d); err != nil {
			logger.CuUpLog.Warnf("ue=%d: DRB %d: %+v", bc.id, d.DrbId, err)
			continue
		}
		resp.DrbsModified = append(resp.DrbsModified, d.DrbId)
	}
	u.send(&e1ap.Pdu{BearerContextModificationResponse: resp})
}

func (u *CuUp) handleBearerContextRelease(cmd *e1ap.BearerContextReleaseCommand) {
	complete := &e1ap.Pdu{BearerContextReleaseComplete: &e1ap.BearerContextReleaseComplete{
		GnbCuCpUeE1apId: cmd.GnbCuCpUeE1apId,
		GnbCuUpUeE1apId: cmd.GnbCuUpUeE1apId,
	}}
	bc, ok := u.contexts[cmd.GnbCuUpUeE1apId]
	if !ok {
		logger.CuUpLog.Warnf("release of unknown gNB-CU-UP UE E1AP id %d", cmd.GnbCuUpUeE1apId)
		u.send(complete)
		return
	}
	delete(u.contexts, bc.id)
	u.nofCtxs.Add(-1)
	logger.CuUpLog.Infof("ue=%d: releasing bearer context, cause %s", bc.id, cmd.Cause)
	bc.releaseThen(func() { u.send(complete) })
}

func (u *CuUp) releaseAll() {
	for id, bc := range u.contexts {
		delete(u.contexts, id)
		u.nofCtxs.Add(-1)
		bc.releaseThen(nil)
	}
}

// HandleMetricsReportRequest snapshots the CU-UP counters.
func (u *CuUp) HandleMetricsReportRequest() Metrics {
	return Metrics{
		NofBearerContexts: int(u.nofCtxs.Load()),
		NofDrbs:           int(u.nofDrbs.Load()),
		DlSdus:            u.dlSdus.Load(),
		UlSdus:            u.ulSdus.Load(),
		N3Dropped:         u.deps.N3Demux.Stats().Dropped,
	}
}

// Stop releases every bearer context and closes the E1 association.
func (u *CuUp) Stop() {
	u.stopOnce.Do(func() {
		logger.CuUpLog.Infoln("stopping CU-UP")
		done := make(chan struct{})
		if u.ctrl.Execute(func() {
			defer close(done)
			u.releaseAll()
		}) {
			<-done
		}
		u.ctrl.Stop()
		u.e1Trans.CancelAll()
		u.mu.Lock()
		tx := u.e1Tx
		u.mu.Unlock()
		u.disconnect(tx)
	})
}
