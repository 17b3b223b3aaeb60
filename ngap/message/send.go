// SPDX-FileCopyrightText: 2024 Intel Corporation
// Copyright 2019 free5GC.org
//
// SPDX-License-Identifier: Apache-2.0

package message

import (
	"github.com/omec-project/aper"
	"github.com/omec-project/gnb/gateway"
	"github.com/omec-project/gnb/logger"
	"github.com/omec-project/ngap/ngapType"
)

// AmfTx sends NGAP PDUs to the AMF.
type AmfTx = gateway.MessageNotifier[*ngapType.NGAPPDU]

func SendToAmf(amf AmfTx, pdu *ngapType.NGAPPDU) {
	if amf == nil {
		logger.NgapLog.Errorln("AMF association is nil")
		return
	}
	amf.OnNewMessage(pdu)
}

func SendNGSetupRequest(amf AmfTx, params NgSetupParams) {
	logger.NgapLog.Infoln("send NG Setup Request")
	SendToAmf(amf, BuildNGSetupRequest(params))
}

func SendInitialUEMessage(amf AmfTx, ranUeNgapID int64, nasPdu []byte, loc UserLocation,
	establishmentCause aper.Enumerated,
) {
	logger.NgapLog.Infoln("send Initial UE Message")

	if len(nasPdu) == 0 {
		logger.NgapLog.Errorln("NAS Pdu is nil")
		return
	}

	SendToAmf(amf, BuildInitialUEMessage(ranUeNgapID, nasPdu, loc, establishmentCause))
}

func SendUplinkNASTransport(amf AmfTx, amfUeNgapID, ranUeNgapID int64, nasPdu []byte, loc UserLocation) {
	logger.NgapLog.Infoln("send Uplink NAS Transport")

	if len(nasPdu) == 0 {
		logger.NgapLog.Errorln("NAS Pdu is nil")
		return
	}

	SendToAmf(amf, BuildUplinkNASTransport(amfUeNgapID, ranUeNgapID, nasPdu, loc))
}

func SendUEContextReleaseRequest(amf AmfTx, amfUeNgapID, ranUeNgapID int64, cause *ngapType.Cause) {
	logger.NgapLog.Infoln("send UE Context Release Request")
	SendToAmf(amf, BuildUEContextReleaseRequest(amfUeNgapID, ranUeNgapID, cause))
}

func SendUEContextReleaseComplete(amf AmfTx, amfUeNgapID, ranUeNgapID int64) {
	logger.NgapLog.Infoln("send UE Context Release Complete")
	SendToAmf(amf, BuildUEContextReleaseComplete(amfUeNgapID, ranUeNgapID))
}

func SendErrorIndication(
	amf AmfTx,
	amfUENGAPID *int64,
	ranUENGAPID *int64,
	cause *ngapType.Cause,
	criticalityDiagnostics *ngapType.CriticalityDiagnostics,
) {
	logger.NgapLog.Infoln("send Error Indication")

	if (cause == nil) && (criticalityDiagnostics == nil) {
		logger.NgapLog.Errorln("both cause and criticality is nil. This message shall contain at least one of them.")
		return
	}

	SendToAmf(amf, BuildErrorIndication(amfUENGAPID, ranUENGAPID, cause, criticalityDiagnostics))
}
