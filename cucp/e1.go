// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package cucp

import (
	"context"

	gnb_context "github.com/omec-project/gnb/context"
	"github.com/omec-project/gnb/e1ap"
	"github.com/omec-project/gnb/gateway"
	"github.com/omec-project/gnb/logger"
	"github.com/omec-project/gnb/support/executor"
	"github.com/omec-project/gnb/support/transaction"
	"github.com/pkg/errors"
)

type e1Handler struct {
	c *CuCp
}

// E1Handler admits CU-UP associations.
func (c *CuCp) E1Handler() gateway.ConnectionHandler[*e1ap.Pdu] {
	return e1Handler{c: c}
}

func (h e1Handler) HandleNewConnection(tx gateway.MessageNotifier[*e1ap.Pdu]) gateway.RxNotifier[*e1ap.Pdu] {
	c := h.c
	var cuup *gnb_context.CuUpContext
	var err error
	if !c.runSync(func() {
		if c.stopping {
			err = ErrStopped
			return
		}
		cuup, err = c.ctx.CuUps.AddCuUp(tx)
	}) {
		return nil
	}
	if err != nil {
		logger.E1apLog.Warnf("refusing E1 association: %v", err)
		return nil
	}
	return &cuUpRx{c: c, cuup: cuup}
}

type cuUpRx struct {
	c    *CuCp
	cuup *gnb_context.CuUpContext
}

func (r *cuUpRx) live() bool {
	return r.c.ctx.CuUps.FindCuUp(r.cuup.Index) == r.cuup
}

func (r *cuUpRx) OnNewMessage(pdu *e1ap.Pdu) {
	r.c.ctrl.Execute(func() {
		if !r.live() {
			return
		}
		r.c.handleE1apPdu(r.cuup, pdu)
	})
}

func (r *cuUpRx) OnConnectionLoss() {
	r.c.ctrl.Execute(func() {
		if !r.live() {
			return
		}
		r.c.removeCuUp(r.cuup)
	})
}

func (c *CuCp) handleE1apPdu(cuup *gnb_context.CuUpContext, pdu *e1ap.Pdu) {
	logger.E1apLog.Debugf("CU-UP %d: received %s", cuup.Index, pdu.Name())
	switch {
	case pdu.GnbCuUpE1SetupRequest != nil:
		c.handleE1SetupRequest(cuup, pdu.GnbCuUpE1SetupRequest)
	case pdu.BearerContextSetupResponse != nil:
		c.completeE1Transaction(pdu.BearerContextSetupResponse.GnbCuCpUeE1apId, pdu)
	case pdu.BearerContextSetupFailure != nil:
		c.completeE1Transaction(pdu.BearerContextSetupFailure.GnbCuCpUeE1apId, pdu)
	case pdu.BearerContextModificationResponse != nil:
		c.completeE1Transaction(pdu.BearerContextModificationResponse.GnbCuCpUeE1apId, pdu)
	case pdu.BearerContextModificationFailure != nil:
		c.completeE1Transaction(pdu.BearerContextModificationFailure.GnbCuCpUeE1apId, pdu)
	case pdu.BearerContextReleaseComplete != nil:
		c.completeE1Transaction(pdu.BearerContextReleaseComplete.GnbCuCpUeE1apId, pdu)
	default:
		logger.E1apLog.Warnf("CU-UP %d: unexpected %s", cuup.Index, pdu.Name())
	}
}

func (c *CuCp) handleE1SetupRequest(cuup *gnb_context.CuUpContext, req *e1ap.GnbCuUpE1SetupRequest) {
	logger.E1apLog.Infof("CU-UP %d: E1 Setup Request gNB-CU-UP-id=%d name=%q", cuup.Index, req.GnbCuUpId, req.GnbCuUpName)

	fail := func(value uint8) {
		cause := e1ap.Cause{Group: e1ap.CauseRadioNetwork, Value: value}
		logger.E1apLog.Warnf("CU-UP %d: E1 Setup rejected, cause %s", cuup.Index, cause)
		cuup.Send(&e1ap.Pdu{GnbCuUpE1SetupFailure: &e1ap.GnbCuUpE1SetupFailure{
			TransactionId: req.TransactionId,
			Cause:         cause,
		}})
	}

	if !c.ctx.AmfConnected() {
		fail(e1ap.CauseRadioNetworkNgNotReady)
		return
	}
	if cuup.SetupDone {
		fail(e1ap.CauseRadioNetworkMultipleCuUp)
		return
	}

	cuup.Id = req.GnbCuUpId
	cuup.Name = req.GnbCuUpName
	cuup.SetupDone = true
	cuup.Send(&e1ap.Pdu{GnbCuUpE1SetupResponse: &e1ap.GnbCuUpE1SetupResponse{
		TransactionId: req.TransactionId,
		GnbCuCpName:   c.cfg.RanNodeName,
	}})
	logger.E1apLog.Infof("CU-UP %d: E1 Setup complete", cuup.Index)
}

func (c *CuCp) completeE1Transaction(cuCpUeE1apId uint32, pdu *e1ap.Pdu) {
	sink, ok := c.e1Pending[cuCpUeE1apId]
	if !ok {
		logger.E1apLog.Debugf("no E1 procedure waits for %s of gNB-CU-CP UE E1AP id %d", pdu.Name(), cuCpUeE1apId)
		return
	}
	delete(c.e1Pending, cuCpUeE1apId)
	sink.Set(pdu)
}

func (c *CuCp) removeCuUp(cuup *gnb_context.CuUpContext) {
	logger.E1apLog.Warnf("CU-UP %d: E1 association lost", cuup.Index)
	for _, ue := range c.ctx.Ues.Ues() {
		if ue.UpResources.CuUpIndex != cuup.Index {
			continue
		}
		if sink, ok := c.e1Pending[ue.CuUeF1apId]; ok {
			sink.Cancel()
			delete(c.e1Pending, ue.CuUeF1apId)
		}
		ue.UpResources.Clear()
	}
	c.ctx.CuUps.RemoveCuUp(cuup.Index)
}

func bearerContextReleaseCommand(ue *gnb_context.Ue) *e1ap.Pdu {
	return &e1ap.Pdu{BearerContextReleaseCommand: &e1ap.BearerContextReleaseCommand{
		GnbCuCpUeE1apId: ue.CuUeF1apId,
		GnbCuUpUeE1apId: ue.UpResources.CuUpUeE1apId,
		Cause:           e1ap.Cause{Group: e1ap.CauseRadioNetwork, Value: e1ap.CauseRadioNetworkNormalRelease},
	}}
}

// runOnUe runs proc on the task scheduler of the UE and waits for its
// result. ctx bounds the wait.
func runOnUe[T any](c *CuCp, ctx context.Context, idx gnb_context.UeIndex, proc func() (T, error)) (T, error) {
	var zero T
	var sched executor.TaskExecutor
	if !c.runSync(func() { sched = c.ctx.Ues.FindUeTaskScheduler(idx) }) {
		return zero, ErrStopped
	}
	if sched == nil {
		return zero, errors.Wrapf(gnb_context.ErrUnknownUe, "ue=%d", idx)
	}

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	if !sched.Execute(func() {
		v, err := proc()
		done <- result{v: v, err: err}
	}) {
		return zero, errors.Errorf("ue=%d: task scheduler rejected the procedure", idx)
	}
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return zero, transaction.ErrCancelled
	case <-c.stopCh:
		return zero, ErrStopped
	}
}

// e1Transaction sends the request built for the UE and waits for the
// matching response of the CU-UP. It runs on the UE task scheduler.
func (c *CuCp) e1Transaction(ctx context.Context, idx gnb_context.UeIndex,
	request func(ue *gnb_context.Ue) (*gnb_context.CuUpContext, *e1ap.Pdu, error),
) (*e1ap.Pdu, error) {
	var sink *transaction.Sink[*e1ap.Pdu]
	var id uint32
	var err error
	if !c.runSync(func() {
		ue := c.ctx.Ues.FindUe(idx)
		if ue == nil {
			err = errors.Wrapf(gnb_context.ErrUnknownUe, "ue=%d", idx)
			return
		}
		id = ue.CuUeF1apId
		if _, busy := c.e1Pending[id]; busy {
			err = ErrProcedureOngoing
			return
		}
		cuup, pdu, e := request(ue)
		if e != nil {
			err = e
			return
		}
		sink = transaction.NewSink[*e1ap.Pdu]()
		c.e1Pending[id] = sink
		cuup.Send(pdu)
	}) {
		return nil, ErrStopped
	}
	if err != nil {
		return nil, err
	}

	resp, err := sink.Wait(ctx, c.cfg.ProcedureTimeout)
	c.runSync(func() {
		if c.e1Pending[id] == sink {
			delete(c.e1Pending, id)
		}
	})
	return resp, err
}

// SetupBearerContext sets the user plane of a UE up on the first available
// CU-UP.
func (c *CuCp) SetupBearerContext(ctx context.Context, idx gnb_context.UeIndex,
	sessions []e1ap.PduSessionToSetup,
) (*e1ap.BearerContextSetupResponse, error) {
	return runOnUe(c, ctx, idx, func() (*e1ap.BearerContextSetupResponse, error) {
		return c.bearerContextSetup(ctx, idx, sessions)
	})
}

func (c *CuCp) bearerContextSetup(ctx context.Context, idx gnb_context.UeIndex,
	sessions []e1ap.PduSessionToSetup,
) (*e1ap.BearerContextSetupResponse, error) {
	pdu, err := c.e1Transaction(ctx, idx, func(ue *gnb_context.Ue) (*gnb_context.CuUpContext, *e1ap.Pdu, error) {
		if ue.UpResources.Active {
			return nil, nil, errors.Errorf("ue=%d: bearer context already set up", idx)
		}
		cuup := c.ctx.CuUps.SelectCuUp()
		if cuup == nil {
			return nil, nil, ErrNoCuUp
		}
		ue.UpResources.CuUpIndex = cuup.Index
		return cuup, &e1ap.Pdu{BearerContextSetupRequest: &e1ap.BearerContextSetupRequest{
			GnbCuCpUeE1apId: ue.CuUeF1apId,
			Security: e1ap.SecurityInfo{
				CipheringAlgo: ue.Security.CipheringAlgo,
				IntegrityAlgo: ue.Security.IntegrityAlgo,
				Key:           ue.Security.Key,
			},
			PduSessions: sessions,
		}}, nil
	})
	if errors.Is(err, ErrProcedureOngoing) {
		return nil, err
	}
	if err != nil {
		c.runSync(func() {
			if ue := c.ctx.Ues.FindUe(idx); ue != nil && !ue.UpResources.Active {
				ue.UpResources.Clear()
			}
		})
		return nil, err
	}

	if f := pdu.BearerContextSetupFailure; f != nil {
		c.runSync(func() {
			if ue := c.ctx.Ues.FindUe(idx); ue != nil {
				ue.UpResources.Clear()
			}
		})
		return nil, errors.Wrapf(ErrBearerContextFailed, "setup: cause %s", f.Cause)
	}
	resp := pdu.BearerContextSetupResponse
	if resp == nil {
		return nil, errors.Errorf("ue=%d: unexpected %s", idx, pdu.Name())
	}

	requested := make(map[uint8]e1ap.PduSessionToSetup, len(sessions))
	for _, s := range sessions {
		requested[s.PduSessionId] = s
	}
	c.runSync(func() {
		ue := c.ctx.Ues.FindUe(idx)
		if ue == nil {
			return
		}
		up := ue.UpResources
		up.CuUpUeE1apId = resp.GnbCuUpUeE1apId
		up.Active = true
		for _, s := range resp.PduSessions {
			session := &gnb_context.PduSession{
				Id:      s.PduSessionId,
				Snssai:  requested[s.PduSessionId].Snssai,
				UpfTnl:  requested[s.PduSessionId].NgUlUpTnlInfo,
				N3DlTnl: s.NgDlUpTnlInfo,
				Drbs:    make(map[uint8]*gnb_context.Drb),
			}
			for _, d := range s.Drbs {
				session.Drbs[d.DrbId] = &gnb_context.Drb{Id: d.DrbId, QosFlows: d.QosFlows, F1uUlTnl: d.UlUpTnlInfo}
			}
			up.PduSessions[s.PduSessionId] = session
		}
		logger.E1apLog.Infof("ue=%d: bearer context set up on CU-UP %d with %d DRBs", idx, up.CuUpIndex, up.NofDrbs())
	})
	for _, f := range resp.FailedPduSessions {
		logger.E1apLog.Warnf("ue=%d: PDU session %d failed, cause %s", idx, f.PduSessionId, f.Cause)
	}
	return resp, nil
}

// ModifyBearerContext hands the DU side F1-U tunnels of the DRBs to the
// CU-UP.
func (c *CuCp) ModifyBearerContext(ctx context.Context, idx gnb_context.UeIndex,
	drbs []e1ap.DrbToModify,
) (*e1ap.BearerContextModificationResponse, error) {
	return runOnUe(c, ctx, idx, func() (*e1ap.BearerContextModificationResponse, error) {
		pdu, err := c.e1Transaction(ctx, idx, func(ue *gnb_context.Ue) (*gnb_context.CuUpContext, *e1ap.Pdu, error) {
			if !ue.UpResources.Active {
				return nil, nil, errors.Errorf("ue=%d: no bearer context", idx)
			}
			cuup := c.ctx.CuUps.FindCuUp(ue.UpResources.CuUpIndex)
			if cuup == nil {
				return nil, nil, ErrNoCuUp
			}
			return cuup, &e1ap.Pdu{BearerContextModificationRequest: &e1ap.BearerContextModificationRequest{
				GnbCuCpUeE1apId: ue.CuUeF1apId,
				GnbCuUpUeE1apId: ue.UpResources.CuUpUeE1apId,
				DrbsToModify:    drbs,
			}}, nil
		})
		if err != nil {
			return nil, err
		}
		if f := pdu.BearerContextModificationFailure; f != nil {
			return nil, errors.Wrapf(ErrBearerContextFailed, "modification: cause %s", f.Cause)
		}
		resp := pdu.BearerContextModificationResponse
		if resp == nil {
			return nil, errors.Errorf("ue=%d: unexpected %s", idx, pdu.Name())
		}

		c.runSync(func() {
			ue := c.ctx.Ues.FindUe(idx)
			if ue == nil {
				return
			}
			modified := make(map[uint8]bool, len(resp.DrbsModified))
			for _, id := range resp.DrbsModified {
				modified[id] = true
			}
			for _, d := range drbs {
				if !modified[d.DrbId] {
					continue
				}
				for _, s := range ue.UpResources.PduSessions {
					if drb, ok := s.Drbs[d.DrbId]; ok {
						drb.F1uDlTnl = d.DlUpTnlInfo
					}
				}
			}
		})
		return resp, nil
	})
}

// ReleaseBearerContext removes the user plane of a UE from its CU-UP.
func (c *CuCp) ReleaseBearerContext(ctx context.Context, idx gnb_context.UeIndex) error {
	_, err := runOnUe(c, ctx, idx, func() (struct{}, error) {
		return struct{}{}, c.bearerContextRelease(ctx, idx)
	})
	return err
}

func (c *CuCp) bearerContextRelease(ctx context.Context, idx gnb_context.UeIndex) error {
	pdu, err := c.e1Transaction(ctx, idx, func(ue *gnb_context.Ue) (*gnb_context.CuUpContext, *e1ap.Pdu, error) {
		if !ue.UpResources.Active {
			return nil, nil, errors.Errorf("ue=%d: no bearer context", idx)
		}
		cuup := c.ctx.CuUps.FindCuUp(ue.UpResources.CuUpIndex)
		if cuup == nil {
			return nil, nil, ErrNoCuUp
		}
		return cuup, bearerContextReleaseCommand(ue), nil
	})
	c.runSync(func() {
		if ue := c.ctx.Ues.FindUe(idx); ue != nil {
			ue.UpResources.Clear()
		}
	})
	if err != nil {
		return err
	}
	if pdu.BearerContextReleaseComplete == nil {
		return errors.Errorf("ue=%d: unexpected %s", idx, pdu.Name())
	}
	logger.E1apLog.Infof("ue=%d: bearer context released", idx)
	return nil
}
