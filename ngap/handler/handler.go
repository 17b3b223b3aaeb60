// SPDX-FileCopyrightText: 2024 Intel Corporation
// Copyright 2019 free5GC.org
//
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"fmt"
	"time"

	"github.com/omec-project/aper"
	"github.com/omec-project/gnb/context"
	"github.com/omec-project/gnb/gateway"
	"github.com/omec-project/gnb/logger"
	ngap_message "github.com/omec-project/gnb/ngap/message"
	"github.com/omec-project/ngap/ngapType"
)

// Notifier receives the outcome of the NGAP procedures. Its methods are
// called on the goroutine that dispatched the PDU.
type Notifier interface {
	OnNgSetupResponse()
	// OnNgSetupFailure reports a rejected NG Setup. timeToWait is zero when
	// the AMF did not ask for a backoff.
	OnNgSetupFailure(cause *ngapType.Cause, timeToWait time.Duration)
	OnDownlinkNasTransport(ue *context.Ue, nasPdu []byte)
	OnUeContextReleaseCommand(ue *context.Ue, cause *ngapType.Cause)
}

// Amf is the NG peer the handlers work on behalf of.
type Amf struct {
	Ctx      *context.CuCpContext
	Tx       gateway.MessageNotifier[*ngapType.NGAPPDU]
	Notifier Notifier
}

func HandleNGSetupResponse(amf *Amf, message *ngapType.NGAPPDU) {
	logger.NgapLog.Infoln("handle NG Setup Response")

	var amfName *ngapType.AMFName
	var servedGUAMIList *ngapType.ServedGUAMIList
	var relativeAMFCapacity *ngapType.RelativeAMFCapacity
	var plmnSupportList *ngapType.PLMNSupportList
	var criticalityDiagnostics *ngapType.CriticalityDiagnostics

	var iesCriticalityDiagnostics missingIes

	ngSetupResponse := successfulValue(message).NGSetupResponse
	if ngSetupResponse == nil {
		logger.NgapLog.Errorln("ngSetupResponse is nil")
		return
	}

	for _, ie := range ngSetupResponse.ProtocolIEs.List {
		switch ie.Id.Value {
		case ngapType.ProtocolIEIDAMFName:
			amfName = ie.Value.AMFName
			if amfName == nil {
				iesCriticalityDiagnostics.missing("AMFName", ie.Id.Value)
			}
		case ngapType.ProtocolIEIDServedGUAMIList:
			servedGUAMIList = ie.Value.ServedGUAMIList
			if servedGUAMIList == nil {
				iesCriticalityDiagnostics.missing("ServedGUAMIList", ie.Id.Value)
			}
		case ngapType.ProtocolIEIDRelativeAMFCapacity:
			relativeAMFCapacity = ie.Value.RelativeAMFCapacity
		case ngapType.ProtocolIEIDPLMNSupportList:
			plmnSupportList = ie.Value.PLMNSupportList
			if plmnSupportList == nil {
				iesCriticalityDiagnostics.missing("PLMNSupportList", ie.Id.Value)
			}
		case ngapType.ProtocolIEIDCriticalityDiagnostics:
			criticalityDiagnostics = ie.Value.CriticalityDiagnostics
		}
	}

	if len(iesCriticalityDiagnostics.List) != 0 {
		logger.NgapLog.Debugln("sending error indication to AMF, because some mandatory IEs were not included")

		cause := ngap_message.BuildCause(ngapType.CausePresentProtocol, ngapType.CauseProtocolPresentAbstractSyntaxErrorReject)

		criticalityDiagnostics := iesCriticalityDiagnostics.diagnostics(
			ngapType.ProcedureCodeNGSetup, ngapType.TriggeringMessagePresentSuccessfulOutcome, ngapType.CriticalityPresentReject)

		ngap_message.SendErrorIndication(amf.Tx, nil, nil, cause, &criticalityDiagnostics)
		amf.Notifier.OnNgSetupFailure(cause, 0)
		return
	}

	amfInfo := &context.AmfContext{
		AMFName:             amfName,
		ServedGUAMIList:     servedGUAMIList,
		RelativeAMFCapacity: relativeAMFCapacity,
		PLMNSupportList:     plmnSupportList,
	}
	amf.Ctx.Amf = amfInfo
	logger.NgapLog.Infof("connected to AMF %q", amfInfo.Name())

	if criticalityDiagnostics != nil {
		printCriticalityDiagnostics(criticalityDiagnostics)
	}

	amf.Notifier.OnNgSetupResponse()
}

func HandleNGSetupFailure(amf *Amf, message *ngapType.NGAPPDU) {
	logger.NgapLog.Infoln("handle NG Setup Failure")

	var cause *ngapType.Cause
	var timeToWait *ngapType.TimeToWait
	var criticalityDiagnostics *ngapType.CriticalityDiagnostics

	var iesCriticalityDiagnostics missingIes

	ngSetupFailure := unsuccessfulValue(message).NGSetupFailure
	if ngSetupFailure == nil {
		logger.NgapLog.Errorln("NGSetupFailure is nil")
		return
	}

	for _, ie := range ngSetupFailure.ProtocolIEs.List {
		switch ie.Id.Value {
		case ngapType.ProtocolIEIDCause:
			cause = ie.Value.Cause
			if cause == nil {
				iesCriticalityDiagnostics.missing("cause", ie.Id.Value)
			}
		case ngapType.ProtocolIEIDTimeToWait:
			timeToWait = ie.Value.TimeToWait
		case ngapType.ProtocolIEIDCriticalityDiagnostics:
			criticalityDiagnostics = ie.Value.CriticalityDiagnostics
		}
	}

	if len(iesCriticalityDiagnostics.List) > 0 {
		logger.NgapLog.Debugln("sending error indication to AMF, because some mandatory IEs were not included")

		cause = ngap_message.BuildCause(ngapType.CausePresentProtocol, ngapType.CauseProtocolPresentAbstractSyntaxErrorReject)

		criticalityDiagnostics := iesCriticalityDiagnostics.diagnostics(
			ngapType.ProcedureCodeNGSetup, ngapType.TriggeringMessagePresentUnsuccessfullOutcome, ngapType.CriticalityPresentReject)

		ngap_message.SendErrorIndication(amf.Tx, nil, nil, cause, &criticalityDiagnostics)
		amf.Notifier.OnNgSetupFailure(cause, 0)
		return
	}

	if cause != nil {
		printAndGetCause(cause)
	}

	if criticalityDiagnostics != nil {
		printCriticalityDiagnostics(criticalityDiagnostics)
	}

	var waitingTime int

	if timeToWait != nil {
		switch timeToWait.Value {
		case ngapType.TimeToWaitPresentV1s:
			waitingTime = 1
		case ngapType.TimeToWaitPresentV2s:
			waitingTime = 2
		case ngapType.TimeToWaitPresentV5s:
			waitingTime = 5
		case ngapType.TimeToWaitPresentV10s:
			waitingTime = 10
		case ngapType.TimeToWaitPresentV20s:
			waitingTime = 20
		case ngapType.TimeToWaitPresentV60s:
			waitingTime = 60
		}
	}

	if waitingTime != 0 {
		logger.NgapLog.Infof("wait at least %ds before retrying NG Setup", waitingTime)
	}
	amf.Notifier.OnNgSetupFailure(cause, time.Duration(waitingTime)*time.Second)
}

func HandleUEContextReleaseCommand(amf *Amf, message *ngapType.NGAPPDU) {
	logger.NgapLog.Infoln("handle UE Context Release Command")

	var ueNgapIDs *ngapType.UENGAPIDs
	var cause *ngapType.Cause
	var iesCriticalityDiagnostics missingIes

	var ue *context.Ue

	ueContextReleaseCommand := initiatingValue(message).UEContextReleaseCommand
	if ueContextReleaseCommand == nil {
		logger.NgapLog.Errorln("UEContextReleaseCommand is nil")
		return
	}

	for _, ie := range ueContextReleaseCommand.ProtocolIEs.List {
		switch ie.Id.Value {
		case ngapType.ProtocolIEIDUENGAPIDs:
			ueNgapIDs = ie.Value.UENGAPIDs
			if ueNgapIDs == nil {
				iesCriticalityDiagnostics.missing("UENGAPIDs", ie.Id.Value)
			}
		case ngapType.ProtocolIEIDCause:
			cause = ie.Value.Cause
		}
	}

	if ueNgapIDs == nil || len(iesCriticalityDiagnostics.List) > 0 {
		criticalityDiagnostics := iesCriticalityDiagnostics.diagnostics(
			ngapType.ProcedureCodeUEContextRelease, ngapType.TriggeringMessagePresentInitiatingMessage, ngapType.CriticalityPresentReject)
		ngap_message.SendErrorIndication(amf.Tx, nil, nil,
			ngap_message.BuildCause(ngapType.CausePresentProtocol, ngapType.CauseProtocolPresentAbstractSyntaxErrorReject),
			&criticalityDiagnostics)
		return
	}

	var amfUeNgapID, ranUeNgapID *int64
	switch ueNgapIDs.Present {
	case ngapType.UENGAPIDsPresentUENGAPIDPair:
		amfUeNgapID = &ueNgapIDs.UENGAPIDPair.AMFUENGAPID.Value
		ranUeNgapID = &ueNgapIDs.UENGAPIDPair.RANUENGAPID.Value
		ue = amf.Ctx.Ues.FindUeByRanUeNgapId(*ranUeNgapID)
		if ue == nil {
			ue = amf.Ctx.Ues.FindUeByAmfUeNgapId(*amfUeNgapID)
		}
	case ngapType.UENGAPIDsPresentAMFUENGAPID:
		amfUeNgapID = &ueNgapIDs.AMFUENGAPID.Value
		ue = amf.Ctx.Ues.FindUeByAmfUeNgapId(*amfUeNgapID)
	}

	if ue == nil {
		logger.NgapLog.Warnln("UE Context Release Command for an unknown UE")
		ngap_message.SendErrorIndication(amf.Tx, amfUeNgapID, ranUeNgapID,
			ngap_message.BuildCause(ngapType.CausePresentRadioNetwork, ngapType.CauseRadioNetworkPresentUnknownLocalUENGAPID),
			nil)
		return
	}

	if cause != nil {
		printAndGetCause(cause)
	}

	if ue.AmfUeNgapId == nil && amfUeNgapID != nil {
		id := *amfUeNgapID
		ue.AmfUeNgapId = &id
	}

	amf.Notifier.OnUeContextReleaseCommand(ue, cause)
}

func HandleDownlinkNASTransport(amf *Amf, message *ngapType.NGAPPDU) {
	logger.NgapLog.Infoln("handle Downlink NAS Transport")

	var amfUeNgapID *ngapType.AMFUENGAPID
	var ranUeNgapID *ngapType.RANUENGAPID
	var oldAMF *ngapType.AMFName
	var nasPDU *ngapType.NASPDU
	var iesCriticalityDiagnostics missingIes

	downlinkNASTransport := initiatingValue(message).DownlinkNASTransport
	if downlinkNASTransport == nil {
		logger.NgapLog.Errorln("DownlinkNASTransport is nil")
		return
	}

	for _, ie := range downlinkNASTransport.ProtocolIEs.List {
		switch ie.Id.Value {
		case ngapType.ProtocolIEIDAMFUENGAPID:
			amfUeNgapID = ie.Value.AMFUENGAPID
		case ngapType.ProtocolIEIDRANUENGAPID:
			ranUeNgapID = ie.Value.RANUENGAPID
		case ngapType.ProtocolIEIDOldAMF:
			oldAMF = ie.Value.OldAMF
		case ngapType.ProtocolIEIDNASPDU:
			nasPDU = ie.Value.NASPDU
		}
	}

	for id, present := range map[int64]bool{
		ngapType.ProtocolIEIDAMFUENGAPID: amfUeNgapID != nil,
		ngapType.ProtocolIEIDRANUENGAPID: ranUeNgapID != nil,
		ngapType.ProtocolIEIDNASPDU:      nasPDU != nil,
	} {
		if !present {
			iesCriticalityDiagnostics.missing(fmt.Sprintf("IE %d", id), id)
		}
	}

	if len(iesCriticalityDiagnostics.List) > 0 {
		criticalityDiagnostics := iesCriticalityDiagnostics.diagnostics(
			ngapType.ProcedureCodeDownlinkNASTransport, ngapType.TriggeringMessagePresentInitiatingMessage, ngapType.CriticalityPresentIgnore)
		ngap_message.SendErrorIndication(amf.Tx, nil, nil,
			ngap_message.BuildCause(ngapType.CausePresentProtocol, ngapType.CauseProtocolPresentAbstractSyntaxErrorReject),
			&criticalityDiagnostics)
		return
	}

	ue := amf.Ctx.Ues.FindUeByRanUeNgapId(ranUeNgapID.Value)
	if ue == nil {
		logger.NgapLog.Warnf("no UE Context[RanUeNgapID:%d]", ranUeNgapID.Value)
		ngap_message.SendErrorIndication(amf.Tx, &amfUeNgapID.Value, &ranUeNgapID.Value,
			ngap_message.BuildCause(ngapType.CausePresentRadioNetwork, ngapType.CauseRadioNetworkPresentUnknownLocalUENGAPID),
			nil)
		return
	}

	if ue.AmfUeNgapId == nil {
		logger.NgapLog.Debugln("create new logical UE-associated NG-connection")
		id := amfUeNgapID.Value
		ue.AmfUeNgapId = &id
	} else if *ue.AmfUeNgapId != amfUeNgapID.Value {
		logger.NgapLog.Warnln("AMFUENGAPID unmatched")
		ngap_message.SendErrorIndication(amf.Tx, &amfUeNgapID.Value, &ranUeNgapID.Value,
			ngap_message.BuildCause(ngapType.CausePresentRadioNetwork, ngapType.CauseRadioNetworkPresentInconsistentRemoteUENGAPID),
			nil)
		return
	}

	if oldAMF != nil {
		logger.NgapLog.Debugf("old AMF: %s", oldAMF.Value)
	}

	amf.Notifier.OnDownlinkNasTransport(ue, nasPDU.Value)
}

func HandleErrorIndication(amf *Amf, message *ngapType.NGAPPDU) {
	logger.NgapLog.Infoln("handle Error Indication")

	var aMFUENGAPID *ngapType.AMFUENGAPID
	var rANUENGAPID *ngapType.RANUENGAPID
	var cause *ngapType.Cause
	var criticalityDiagnostics *ngapType.CriticalityDiagnostics

	errorIndication := initiatingValue(message).ErrorIndication
	if errorIndication == nil {
		logger.NgapLog.Errorln("ErrorIndication is nil")
		return
	}

	for _, ie := range errorIndication.ProtocolIEs.List {
		switch ie.Id.Value {
		case ngapType.ProtocolIEIDAMFUENGAPID:
			aMFUENGAPID = ie.Value.AMFUENGAPID
		case ngapType.ProtocolIEIDRANUENGAPID:
			rANUENGAPID = ie.Value.RANUENGAPID
		case ngapType.ProtocolIEIDCause:
			cause = ie.Value.Cause
		case ngapType.ProtocolIEIDCriticalityDiagnostics:
			criticalityDiagnostics = ie.Value.CriticalityDiagnostics
		}
	}

	if cause == nil && criticalityDiagnostics == nil {
		logger.NgapLog.Errorln("both Cause IE and CriticalityDiagnostics IE are nil, should have at least one")
		return
	}

	if (aMFUENGAPID == nil) != (rANUENGAPID == nil) {
		logger.NgapLog.Errorln("one of UE NGAP ID is not included in this message")
		return
	}

	if (aMFUENGAPID != nil) && (rANUENGAPID != nil) {
		logger.NgapLog.Debugln("UE-associated procedure error")
		logger.NgapLog.Warnf("AMF UE NGAP ID is defined, value = %d", aMFUENGAPID.Value)
		logger.NgapLog.Warnf("RAN UE NGAP ID is defined, value = %d", rANUENGAPID.Value)
	}

	if cause != nil {
		printAndGetCause(cause)
	}

	if criticalityDiagnostics != nil {
		printCriticalityDiagnostics(criticalityDiagnostics)
	}
}

func HandleOverloadStart(amf *Amf, message *ngapType.NGAPPDU) {
	logger.NgapLog.Infoln("handle Overload Start")

	var aMFOverloadResponse *ngapType.OverloadResponse
	var aMFTrafficLoadReductionIndication *ngapType.TrafficLoadReductionIndication
	var overloadStartNSSAIList *ngapType.OverloadStartNSSAIList

	if amf.Ctx.Amf == nil {
		logger.NgapLog.Errorln("AMF Context is nil")
		return
	}

	overloadStart := initiatingValue(message).OverloadStart
	if overloadStart == nil {
		logger.NgapLog.Errorln("overloadStart is nil")
		return
	}

	for _, ie := range overloadStart.ProtocolIEs.List {
		switch ie.Id.Value {
		case ngapType.ProtocolIEIDAMFOverloadResponse:
			aMFOverloadResponse = ie.Value.AMFOverloadResponse
		case ngapType.ProtocolIEIDAMFTrafficLoadReductionIndication:
			aMFTrafficLoadReductionIndication = ie.Value.AMFTrafficLoadReductionIndication
		case ngapType.ProtocolIEIDOverloadStartNSSAIList:
			overloadStartNSSAIList = ie.Value.OverloadStartNSSAIList
		}
	}
	amf.Ctx.Amf.StartOverload(aMFOverloadResponse, aMFTrafficLoadReductionIndication, overloadStartNSSAIList)
}

func HandleOverloadStop(amf *Amf, message *ngapType.NGAPPDU) {
	logger.NgapLog.Infoln("handle Overload Stop")

	if amf.Ctx.Amf == nil {
		logger.NgapLog.Errorln("AMF Context is nil")
		return
	}
	amf.Ctx.Amf.StopOverload()
}

func initiatingValue(message *ngapType.NGAPPDU) (v ngapType.InitiatingMessageValue) {
	if message != nil && message.InitiatingMessage != nil {
		v = message.InitiatingMessage.Value
	}
	return v
}

func successfulValue(message *ngapType.NGAPPDU) (v ngapType.SuccessfulOutcomeValue) {
	if message != nil && message.SuccessfulOutcome != nil {
		v = message.SuccessfulOutcome.Value
	}
	return v
}

func unsuccessfulValue(message *ngapType.NGAPPDU) (v ngapType.UnsuccessfulOutcomeValue) {
	if message != nil && message.UnsuccessfulOutcome != nil {
		v = message.UnsuccessfulOutcome.Value
	}
	return v
}

// missingIes collects the mandatory IEs a received message lacks.
type missingIes struct {
	ngapType.CriticalityDiagnosticsIEList
}

func (m *missingIes) missing(name string, id int64) {
	logger.NgapLog.Errorf("%s is missing", name)
	m.List = append(m.List, ngapType.CriticalityDiagnosticsIEItem{
		IECriticality: ngapType.Criticality{Value: ngapType.CriticalityPresentReject},
		IEID:          ngapType.ProtocolIEID{Value: id},
		TypeOfError:   ngapType.TypeOfError{Value: ngapType.TypeOfErrorPresentMissing},
	})
}

// diagnostics reports the missing IEs of the given procedure message.
func (m *missingIes) diagnostics(procedureCode int64, triggeringMessage, procedureCriticality aper.Enumerated,
) (criticalityDiagnostics ngapType.CriticalityDiagnostics) {
	criticalityDiagnostics.ProcedureCode = &ngapType.ProcedureCode{Value: procedureCode}
	criticalityDiagnostics.TriggeringMessage = &ngapType.TriggeringMessage{Value: triggeringMessage}
	criticalityDiagnostics.ProcedureCriticality = &ngapType.Criticality{Value: procedureCriticality}
	if len(m.List) > 0 {
		criticalityDiagnostics.IEsCriticalityDiagnostics = &m.CriticalityDiagnosticsIEList
	}
	return criticalityDiagnostics
}

func printAndGetCause(cause *ngapType.Cause) (present int, value aper.Enumerated) {
	present = cause.Present
	switch cause.Present {
	case ngapType.CausePresentRadioNetwork:
		logger.NgapLog.Warnf("cause RadioNetwork[%d]", cause.RadioNetwork.Value)
		value = cause.RadioNetwork.Value
	case ngapType.CausePresentTransport:
		logger.NgapLog.Warnf("cause Transport[%d]", cause.Transport.Value)
		value = cause.Transport.Value
	case ngapType.CausePresentProtocol:
		logger.NgapLog.Warnf("cause Protocol[%d]", cause.Protocol.Value)
		value = cause.Protocol.Value
	case ngapType.CausePresentNas:
		logger.NgapLog.Warnf("cause Nas[%d]", cause.Nas.Value)
		value = cause.Nas.Value
	case ngapType.CausePresentMisc:
		logger.NgapLog.Warnf("cause Misc[%d]", cause.Misc.Value)
		value = cause.Misc.Value
	default:
		logger.NgapLog.Errorf("invalid Cause group[%d]", cause.Present)
	}
	return
}

func printCriticalityDiagnostics(criticalityDiagnostics *ngapType.CriticalityDiagnostics) {
	if criticalityDiagnostics == nil {
		return
	}
	iesCriticalityDiagnostics := criticalityDiagnostics.IEsCriticalityDiagnostics
	if iesCriticalityDiagnostics == nil {
		logger.NgapLog.Warnln("IEsCriticalityDiagnostics is nil")
		return
	}
	for index, item := range iesCriticalityDiagnostics.List {
		logger.NgapLog.Warnf("criticality IE item %d:", index+1)
		logger.NgapLog.Warnf("IE ID: %d", item.IEID.Value)

		switch item.IECriticality.Value {
		case ngapType.CriticalityPresentReject:
			logger.NgapLog.Warnln("IE Criticality: Reject")
		case ngapType.CriticalityPresentIgnore:
			logger.NgapLog.Warnln("IE Criticality: Ignore")
		case ngapType.CriticalityPresentNotify:
			logger.NgapLog.Warnln("IE Criticality: Notify")
		}

		switch item.TypeOfError.Value {
		case ngapType.TypeOfErrorPresentNotUnderstood:
			logger.NgapLog.Warnln("type of error: Not Understood")
		case ngapType.TypeOfErrorPresentMissing:
			logger.NgapLog.Warnln("type of error: Missing")
		}
	}
}
