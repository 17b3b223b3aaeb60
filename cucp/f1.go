// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package cucp

import (
	"github.com/omec-project/aper"
	gnb_context "github.com/omec-project/gnb/context"
	"github.com/omec-project/gnb/f1ap"
	"github.com/omec-project/gnb/gateway"
	"github.com/omec-project/gnb/logger"
	ngap_message "github.com/omec-project/gnb/ngap/message"
	"github.com/omec-project/gnb/rrc"
	"github.com/omec-project/gnb/util"
	"github.com/omec-project/ngap/ngapType"
)

const gnbCuRrcVersion = 15

type f1cHandler struct {
	c *CuCp
}

// F1cHandler admits DU associations, whatever transport carries them.
func (c *CuCp) F1cHandler() gateway.ConnectionHandler[*f1ap.Pdu] {
	return f1cHandler{c: c}
}

func (h f1cHandler) HandleNewConnection(tx gateway.MessageNotifier[*f1ap.Pdu]) gateway.RxNotifier[*f1ap.Pdu] {
	c := h.c
	var du *gnb_context.DuContext
	var err error
	if !c.runSync(func() {
		if c.stopping {
			err = ErrStopped
			return
		}
		du, err = c.ctx.Dus.AddDu(tx)
	}) {
		return nil
	}
	if err != nil {
		logger.F1apLog.Warnf("refusing F1-C association: %v", err)
		return nil
	}
	return &duRx{c: c, du: du}
}

type duRx struct {
	c  *CuCp
	du *gnb_context.DuContext
}

func (r *duRx) live() bool {
	return r.c.ctx.Dus.FindDu(r.du.Index) == r.du
}

func (r *duRx) OnNewMessage(pdu *f1ap.Pdu) {
	r.c.ctrl.Execute(func() {
		if !r.live() {
			return
		}
		r.c.handleF1apPdu(r.du, pdu)
	})
}

func (r *duRx) OnConnectionLoss() {
	r.c.ctrl.Execute(func() {
		if !r.live() {
			return
		}
		r.c.removeDu(r.du)
	})
}

func (c *CuCp) handleF1apPdu(du *gnb_context.DuContext, pdu *f1ap.Pdu) {
	logger.F1apLog.Debugf("DU %d: received %s", du.Index, pdu.Name())
	switch {
	case pdu.F1SetupRequest != nil:
		c.handleF1SetupRequest(du, pdu.F1SetupRequest)
	case pdu.InitialUlRrcMessageTransfer != nil:
		c.handleInitialUlRrcMessageTransfer(du, pdu.InitialUlRrcMessageTransfer)
	case pdu.UlRrcMessageTransfer != nil:
		c.handleUlRrcMessageTransfer(du, pdu.UlRrcMessageTransfer)
	case pdu.UeContextReleaseComplete != nil:
		c.handleUeContextReleaseComplete(du, pdu.UeContextReleaseComplete)
	default:
		logger.F1apLog.Warnf("DU %d: unexpected %s", du.Index, pdu.Name())
	}
}

func (c *CuCp) handleF1SetupRequest(du *gnb_context.DuContext, req *f1ap.F1SetupRequest) {
	logger.F1apLog.Infof("DU %d: F1 Setup Request gNB-DU-id=%#x name=%q", du.Index, req.GnbDuId, req.GnbDuName)

	fail := func(group f1ap.CauseGroup, value uint8) {
		cause := f1ap.Cause{Group: group, Value: value}
		logger.F1apLog.Warnf("DU %d: F1 Setup rejected, cause %s", du.Index, cause)
		du.Send(&f1ap.Pdu{F1SetupFailure: &f1ap.F1SetupFailure{
			TransactionId: req.TransactionId,
			Cause:         cause,
		}})
	}

	if !c.ctx.AmfConnected() {
		fail(f1ap.CauseRadioNetwork, f1ap.CauseRadioNetworkNgNotConnected)
		return
	}
	id := gnb_context.GnbDuId(req.GnbDuId)
	if other := c.ctx.Dus.FindDuByGnbDuId(id); other != nil && other != du {
		fail(f1ap.CauseRadioNetwork, f1ap.CauseRadioNetworkDuplicateDuId)
		return
	}
	plmn := util.PlmnIdToBytes(c.cfg.Plmn)
	for _, cell := range req.ServedCells {
		if cell.NrCgi.Plmn != plmn {
			fail(f1ap.CauseRadioNetwork, f1ap.CauseRadioNetworkPlmnNotServed)
			return
		}
		if cell.NrCgi.GnbId(c.cfg.GnbIdBitLength) != c.cfg.GnbId {
			fail(f1ap.CauseRadioNetwork, f1ap.CauseRadioNetworkUnknownCell)
			return
		}
	}

	du.Id = id
	du.Name = req.GnbDuName
	du.Cells = append([]f1ap.ServedCell(nil), req.ServedCells...)

	resp := &f1ap.F1SetupResponse{
		TransactionId:   req.TransactionId,
		GnbCuName:       c.cfg.RanNodeName,
		GnbCuRrcVersion: gnbCuRrcVersion,
	}
	for _, cell := range du.Cells {
		resp.CellsToActivate = append(resp.CellsToActivate, cell.NrCgi)
	}
	du.Send(&f1ap.Pdu{F1SetupResponse: resp})
	logger.F1apLog.Infof("DU %d: F1 Setup complete with %d cells", du.Index, len(du.Cells))
}

func (c *CuCp) handleInitialUlRrcMessageTransfer(du *gnb_context.DuContext, msg *f1ap.InitialUlRrcMessageTransfer) {
	if !du.SetupDone() {
		logger.F1apLog.Warnf("DU %d: Initial UL RRC Message before F1 Setup", du.Index)
		return
	}
	cell := du.FindCell(msg.NrCgi)
	if cell == nil {
		logger.F1apLog.Warnf("DU %d: Initial UL RRC Message for unknown cell %s", du.Index, msg.NrCgi)
		return
	}
	if idx := c.ctx.Ues.GetUeIndex(cell.Pci, msg.CRnti); idx != gnb_context.InvalidUeIndex {
		logger.F1apLog.Warnf("DU %d: pci=%d rnti=%#x already used by ue=%d", du.Index, cell.Pci, msg.CRnti, idx)
		return
	}
	if c.ctx.Amf.Overloaded() {
		logger.F1apLog.Warnf("DU %d: AMF overloaded, not admitting rnti=%#x", du.Index, msg.CRnti)
		return
	}
	m, err := rrc.Decode(msg.RrcContainer)
	if err != nil {
		logger.F1apLog.Warnf("DU %d: invalid RRC container: %v", du.Index, err)
		return
	}
	setupRequest, ok := m.(*rrc.RrcSetupRequest)
	if !ok {
		logger.F1apLog.Warnf("DU %d: expected RRC Setup Request, got type %d", du.Index, m.Type())
		return
	}

	ue, err := c.ctx.Ues.AddUe(du.Index)
	if err != nil {
		logger.F1apLog.Warnf("DU %d: UE admission: %v", du.Index, err)
		return
	}
	if _, err := c.ctx.Ues.SetUeDuContext(ue.Index, du.Id, cell.Pci, msg.CRnti); err != nil {
		logger.F1apLog.Warnf("ue=%d: %v", ue.Index, err)
		c.ctx.Ues.RemoveUe(ue.Index)
		return
	}
	ue.DuUeF1apId = msg.GnbDuUeF1apId
	ue.EstablishmentCause = setupRequest.EstablishmentCause

	if c.ctx.CuUps.SelectCuUp() == nil || !c.ctx.AmfConnected() {
		c.rejectUe(du, ue)
		return
	}

	rrcSetup, err := rrc.Encode(&rrc.RrcSetup{
		TransactionId:   ue.NextRrcTransactionId(),
		MasterCellGroup: msg.DuToCuRrcContainer,
	})
	if err != nil {
		logger.F1apLog.Errorf("ue=%d: encode RRC Setup: %+v", ue.Index, err)
		c.rejectUe(du, ue)
		return
	}
	logger.F1apLog.Infof("ue=%d: RRC Setup pci=%d rnti=%#x", ue.Index, ue.Pci, ue.CRnti)
	du.Send(&f1ap.Pdu{DlRrcMessageTransfer: &f1ap.DlRrcMessageTransfer{
		GnbCuUeF1apId: ue.CuUeF1apId,
		GnbDuUeF1apId: ue.DuUeF1apId,
		SrbId:         f1ap.SrbId0,
		RrcContainer:  rrcSetup,
	}})
}

// rejectUe answers the RRC Setup Request with an RRC Reject carried in a
// UE Context Release Command. The UE is removed when the DU confirms.
func (c *CuCp) rejectUe(du *gnb_context.DuContext, ue *gnb_context.Ue) {
	logger.F1apLog.Infof("ue=%d: RRC Reject (CU-UP available: %t, AMF connected: %t)",
		ue.Index, c.ctx.CuUps.SelectCuUp() != nil, c.ctx.AmfConnected())
	rrcReject, err := rrc.Encode(&rrc.RrcReject{WaitTime: rrc.DefaultRejectWaitTime})
	if err != nil {
		logger.F1apLog.Errorf("ue=%d: encode RRC Reject: %+v", ue.Index, err)
	}
	ue.RelState = gnb_context.UeCtxRelStateRejected
	du.Send(&f1ap.Pdu{UeContextReleaseCommand: &f1ap.UeContextReleaseCommand{
		GnbCuUeF1apId: ue.CuUeF1apId,
		GnbDuUeF1apId: ue.DuUeF1apId,
		Cause:         f1ap.Cause{Group: f1ap.CauseMisc, Value: f1ap.CauseMiscNotEnoughUserPlaneRes},
		RrcContainer:  rrcReject,
		SrbId:         f1ap.SrbId0,
	}})
}

// duUe finds the UE a DU refers to with a gNB-CU UE F1AP id.
func (c *CuCp) duUe(du *gnb_context.DuContext, cuUeF1apId uint32) *gnb_context.Ue {
	ue := c.ctx.Ues.FindUeByCuUeF1apId(cuUeF1apId)
	if ue == nil || ue.DuIndex != du.Index {
		logger.F1apLog.Warnf("DU %d: unknown gNB-CU UE F1AP id %d", du.Index, cuUeF1apId)
		return nil
	}
	return ue
}

func (c *CuCp) userLocation(ue *gnb_context.Ue) ngap_message.UserLocation {
	loc := ngap_message.UserLocation{Plmn: c.cfg.Plmn, Tac: c.cfg.Tac}
	if du := c.ctx.Dus.FindDu(ue.DuIndex); du != nil {
		for _, cell := range du.Cells {
			if cell.Pci == ue.Pci {
				loc.NrCellId = cell.NrCgi.NrCellId
				loc.Tac = cell.Tac
				break
			}
		}
	}
	return loc
}

func (c *CuCp) handleUlRrcMessageTransfer(du *gnb_context.DuContext, msg *f1ap.UlRrcMessageTransfer) {
	ue := c.duUe(du, msg.GnbCuUeF1apId)
	if ue == nil {
		return
	}
	m, err := rrc.Decode(msg.RrcContainer)
	if err != nil {
		logger.F1apLog.Warnf("ue=%d: invalid RRC container on SRB%d: %v", ue.Index, msg.SrbId, err)
		return
	}

	switch m := m.(type) {
	case *rrc.RrcSetupComplete:
		if c.ngTx == nil || !c.ctx.AmfConnected() {
			logger.NgapLog.Warnf("ue=%d: no AMF, releasing", ue.Index)
			c.releaseUeOnDu(ue)
			return
		}
		ngap_message.SendInitialUEMessage(c.ngTx, ue.RanUeNgapId, m.DedicatedNasMessage, c.userLocation(ue),
			aper.Enumerated(ue.EstablishmentCause))
	case *rrc.UlInformationTransfer:
		if ue.AmfUeNgapId == nil || c.ngTx == nil {
			logger.NgapLog.Warnf("ue=%d: no UE-associated NG connection, dropping UL NAS", ue.Index)
			return
		}
		ngap_message.SendUplinkNASTransport(c.ngTx, *ue.AmfUeNgapId, ue.RanUeNgapId, m.DedicatedNasMessage,
			c.userLocation(ue))
	default:
		logger.F1apLog.Warnf("ue=%d: unexpected RRC message type %d", ue.Index, m.Type())
	}
}

func (c *CuCp) OnDownlinkNasTransport(ue *gnb_context.Ue, nasPdu []byte) {
	du := c.ctx.Dus.FindDu(ue.DuIndex)
	if du == nil || !ue.HasDuContext() {
		logger.F1apLog.Warnf("ue=%d: no DU context for DL NAS", ue.Index)
		return
	}
	container, err := rrc.Encode(&rrc.DlInformationTransfer{
		TransactionId:       ue.NextRrcTransactionId(),
		DedicatedNasMessage: nasPdu,
	})
	if err != nil {
		logger.F1apLog.Errorf("ue=%d: encode DL Information Transfer: %+v", ue.Index, err)
		return
	}
	du.Send(&f1ap.Pdu{DlRrcMessageTransfer: &f1ap.DlRrcMessageTransfer{
		GnbCuUeF1apId: ue.CuUeF1apId,
		GnbDuUeF1apId: ue.DuUeF1apId,
		SrbId:         f1ap.SrbId1,
		RrcContainer:  container,
	}})
}

func (c *CuCp) OnUeContextReleaseCommand(ue *gnb_context.Ue, cause *ngapType.Cause) {
	ue.RelState = gnb_context.UeCtxRelStateAmfCommanded
	if !ue.UpResources.Active {
		c.releaseUeOnDu(ue)
		return
	}
	idx := ue.Index
	if !ue.TaskScheduler.Execute(func() {
		if err := c.bearerContextRelease(c.runCtx, idx); err != nil {
			logger.E1apLog.Warnf("ue=%d: bearer context release: %v", idx, err)
		}
		c.runSync(func() {
			if ue := c.ctx.Ues.FindUe(idx); ue != nil {
				c.releaseUeOnDu(ue)
			}
		})
	}) {
		logger.E1apLog.Warnf("ue=%d: task scheduler full, skipping bearer context release", idx)
		ue.UpResources.Clear()
		c.releaseUeOnDu(ue)
	}
}

// releaseUeOnDu sends the RRC Release through a UE Context Release Command.
// The UE goes away when the DU confirms.
func (c *CuCp) releaseUeOnDu(ue *gnb_context.Ue) {
	du := c.ctx.Dus.FindDu(ue.DuIndex)
	if du == nil || !ue.HasDuContext() {
		c.completeUeRelease(ue)
		return
	}
	rrcRelease, err := rrc.Encode(&rrc.RrcRelease{TransactionId: ue.NextRrcTransactionId()})
	if err != nil {
		logger.F1apLog.Errorf("ue=%d: encode RRC Release: %+v", ue.Index, err)
	}
	du.Send(&f1ap.Pdu{UeContextReleaseCommand: &f1ap.UeContextReleaseCommand{
		GnbCuUeF1apId: ue.CuUeF1apId,
		GnbDuUeF1apId: ue.DuUeF1apId,
		Cause:         f1ap.Cause{Group: f1ap.CauseRadioNetwork, Value: f1ap.CauseRadioNetworkNormalRelease},
		RrcContainer:  rrcRelease,
		SrbId:         f1ap.SrbId1,
	}})
}

func (c *CuCp) handleUeContextReleaseComplete(du *gnb_context.DuContext, msg *f1ap.UeContextReleaseComplete) {
	ue := c.duUe(du, msg.GnbCuUeF1apId)
	if ue == nil {
		return
	}
	c.completeUeRelease(ue)
}

func (c *CuCp) completeUeRelease(ue *gnb_context.Ue) {
	if ue.RelState == gnb_context.UeCtxRelStateAmfCommanded && ue.AmfUeNgapId != nil && c.ngTx != nil {
		ngap_message.SendUEContextReleaseComplete(c.ngTx, *ue.AmfUeNgapId, ue.RanUeNgapId)
	}
	c.removeUe(ue.Index)
}

func (c *CuCp) removeUe(idx gnb_context.UeIndex) {
	if ue := c.ctx.Ues.FindUe(idx); ue != nil {
		if sink, ok := c.e1Pending[ue.CuUeF1apId]; ok {
			sink.Cancel()
			delete(c.e1Pending, ue.CuUeF1apId)
		}
	}
	c.ctx.Ues.RemoveUe(idx)
}

// removeDu reaps a DU whose association went down together with its UEs.
func (c *CuCp) removeDu(du *gnb_context.DuContext) {
	logger.F1apLog.Warnf("DU %d: F1-C association lost", du.Index)
	for _, idx := range c.ctx.Ues.DuUes(du.Index) {
		ue := c.ctx.Ues.FindUe(idx)
		if ue.AmfUeNgapId != nil && c.ngTx != nil && c.ctx.AmfConnected() {
			ngap_message.SendUEContextReleaseRequest(c.ngTx, *ue.AmfUeNgapId, ue.RanUeNgapId,
				ngap_message.BuildCause(ngapType.CausePresentRadioNetwork,
					ngapType.CauseRadioNetworkPresentRadioConnectionWithUeLost))
		}
		if ue.UpResources.Active {
			if cuup := c.ctx.CuUps.FindCuUp(ue.UpResources.CuUpIndex); cuup != nil {
				cuup.Send(bearerContextReleaseCommand(ue))
			}
		}
		c.removeUe(idx)
	}
	c.ctx.Dus.RemoveDu(du.Index)
}
