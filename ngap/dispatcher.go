// SPDX-FileCopyrightText: 2024 Intel Corporation
// Copyright 2019 free5GC.org
//
// SPDX-License-Identifier: Apache-2.0

package ngap

import (
	"github.com/omec-project/gnb/logger"
	"github.com/omec-project/gnb/ngap/handler"
	"github.com/omec-project/gnb/util"
	"github.com/omec-project/ngap/ngapType"
)

type handlerFunc func(*handler.Amf, *ngapType.NGAPPDU)

type procedureKey struct {
	present int
	code    int64
}

var procedures = map[procedureKey]handlerFunc{
	{ngapType.NGAPPDUPresentInitiatingMessage, ngapType.ProcedureCodeUEContextRelease}:     handler.HandleUEContextReleaseCommand,
	{ngapType.NGAPPDUPresentInitiatingMessage, ngapType.ProcedureCodeDownlinkNASTransport}: handler.HandleDownlinkNASTransport,
	{ngapType.NGAPPDUPresentInitiatingMessage, ngapType.ProcedureCodeErrorIndication}:      handler.HandleErrorIndication,
	{ngapType.NGAPPDUPresentInitiatingMessage, ngapType.ProcedureCodeOverloadStart}:        handler.HandleOverloadStart,
	{ngapType.NGAPPDUPresentInitiatingMessage, ngapType.ProcedureCodeOverloadStop}:         handler.HandleOverloadStop,
	{ngapType.NGAPPDUPresentSuccessfulOutcome, ngapType.ProcedureCodeNGSetup}:              handler.HandleNGSetupResponse,
	{ngapType.NGAPPDUPresentUnsuccessfulOutcome, ngapType.ProcedureCodeNGSetup}:            handler.HandleNGSetupFailure,
}

// procedureCode returns the procedure code carried by the PDU, false when
// the PDU has no message for its present type.
func procedureCode(pdu *ngapType.NGAPPDU) (int64, bool) {
	switch pdu.Present {
	case ngapType.NGAPPDUPresentInitiatingMessage:
		if pdu.InitiatingMessage != nil {
			return pdu.InitiatingMessage.ProcedureCode.Value, true
		}
	case ngapType.NGAPPDUPresentSuccessfulOutcome:
		if pdu.SuccessfulOutcome != nil {
			return pdu.SuccessfulOutcome.ProcedureCode.Value, true
		}
	case ngapType.NGAPPDUPresentUnsuccessfulOutcome:
		if pdu.UnsuccessfulOutcome != nil {
			return pdu.UnsuccessfulOutcome.ProcedureCode.Value, true
		}
	}
	return 0, false
}

// Dispatch routes a decoded NGAP PDU received from the AMF to its handler.
func Dispatch(amf *handler.Amf, pdu *ngapType.NGAPPDU) {
	defer util.RecoverWithLog(logger.NgapLog)

	if pdu == nil {
		logger.NgapLog.Errorln("NGAP message is nil")
		return
	}
	code, ok := procedureCode(pdu)
	if !ok {
		logger.NgapLog.Errorf("NGAP PDU (present %d) carries no message", pdu.Present)
		return
	}
	h, found := procedures[procedureKey{pdu.Present, code}]
	if !found {
		logger.NgapLog.Warnf("unhandled NGAP procedure %d (present %d)", code, pdu.Present)
		return
	}
	logger.NgapLog.Debugf("NGAP procedure %d (present %d)", code, pdu.Present)
	h(amf, pdu)
}
