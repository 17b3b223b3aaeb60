// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package message

import (
	"github.com/omec-project/aper"
	"github.com/omec-project/gnb/factory"
	"github.com/omec-project/gnb/util"
	"github.com/omec-project/ngap/ngapType"
)

// NgSetupParams is what the gNB announces in NG Setup Request.
type NgSetupParams struct {
	GnbId          uint32
	GnbIdBitLength uint8
	RanNodeName    string
	Plmn           factory.PlmnId
	Tac            uint32
	Slices         []factory.Snssai
}

func NgSetupParamsFromConfig(cfg factory.CuCpConfig) NgSetupParams {
	return NgSetupParams{
		GnbId:          cfg.GnbId,
		GnbIdBitLength: cfg.GnbIdBitLength,
		RanNodeName:    cfg.RanNodeName,
		Plmn:           cfg.Plmn,
		Tac:            cfg.Tac,
		Slices:         cfg.Slices,
	}
}

// UserLocation is the NR cell and tracking area a UE is served in.
type UserLocation struct {
	Plmn     factory.PlmnId
	NrCellId uint64
	Tac      uint32
}

func BuildCause(present int, value aper.Enumerated) (cause *ngapType.Cause) {
	cause = new(ngapType.Cause)
	cause.Present = present

	switch present {
	case ngapType.CausePresentRadioNetwork:
		cause.RadioNetwork = new(ngapType.CauseRadioNetwork)
		cause.RadioNetwork.Value = value
	case ngapType.CausePresentTransport:
		cause.Transport = new(ngapType.CauseTransport)
		cause.Transport.Value = value
	case ngapType.CausePresentNas:
		cause.Nas = new(ngapType.CauseNas)
		cause.Nas.Value = value
	case ngapType.CausePresentProtocol:
		cause.Protocol = new(ngapType.CauseProtocol)
		cause.Protocol.Value = value
	case ngapType.CausePresentMisc:
		cause.Misc = new(ngapType.CauseMisc)
		cause.Misc.Value = value
	default:
		return nil
	}

	return
}

func buildUserLocationInformation(loc UserLocation) *ngapType.UserLocationInformation {
	plmn := util.PlmnIdToNgap(loc.Plmn)
	return &ngapType.UserLocationInformation{
		Present: ngapType.UserLocationInformationPresentUserLocationInformationNR,
		UserLocationInformationNR: &ngapType.UserLocationInformationNR{
			NRCGI: ngapType.NRCGI{
				PLMNIdentity:   plmn,
				NRCellIdentity: util.NrCellIdToNgap(loc.NrCellId),
			},
			TAI: ngapType.TAI{
				PLMNIdentity: plmn,
				TAC:          util.TacToNgap(loc.Tac),
			},
		},
	}
}

func BuildNGSetupRequest(params NgSetupParams) *ngapType.NGAPPDU {
	pdu := ngapType.NGAPPDU{}
	pdu.Present = ngapType.NGAPPDUPresentInitiatingMessage
	pdu.InitiatingMessage = new(ngapType.InitiatingMessage)

	initiatingMessage := pdu.InitiatingMessage
	initiatingMessage.ProcedureCode.Value = ngapType.ProcedureCodeNGSetup
	initiatingMessage.Criticality.Value = ngapType.CriticalityPresentReject
	initiatingMessage.Value.Present = ngapType.InitiatingMessagePresentNGSetupRequest
	initiatingMessage.Value.NGSetupRequest = new(ngapType.NGSetupRequest)

	nGSetupRequest := initiatingMessage.Value.NGSetupRequest
	nGSetupRequestIEs := &nGSetupRequest.ProtocolIEs

	// GlobalRANNodeID
	ie := ngapType.NGSetupRequestIEs{}
	ie.Id.Value = ngapType.ProtocolIEIDGlobalRANNodeID
	ie.Criticality.Value = ngapType.CriticalityPresentReject
	ie.Value.Present = ngapType.NGSetupRequestIEsPresentGlobalRANNodeID
	ie.Value.GlobalRANNodeID = new(ngapType.GlobalRANNodeID)

	globalRANNodeID := ie.Value.GlobalRANNodeID
	globalRANNodeID.Present = ngapType.GlobalRANNodeIDPresentGlobalGNBID
	globalRANNodeID.GlobalGNBID = new(ngapType.GlobalGNBID)
	globalRANNodeID.GlobalGNBID.PLMNIdentity = util.PlmnIdToNgap(params.Plmn)
	globalRANNodeID.GlobalGNBID.GNBID.Present = ngapType.GNBIDPresentGNBID
	globalRANNodeID.GlobalGNBID.GNBID.GNBID = util.GnbIdToNgap(params.GnbId, params.GnbIdBitLength)
	nGSetupRequestIEs.List = append(nGSetupRequestIEs.List, ie)

	// RANNodeName
	if params.RanNodeName != "" {
		ie = ngapType.NGSetupRequestIEs{}
		ie.Id.Value = ngapType.ProtocolIEIDRANNodeName
		ie.Criticality.Value = ngapType.CriticalityPresentIgnore
		ie.Value.Present = ngapType.NGSetupRequestIEsPresentRANNodeName
		ie.Value.RANNodeName = &ngapType.RANNodeName{Value: params.RanNodeName}
		nGSetupRequestIEs.List = append(nGSetupRequestIEs.List, ie)
	}

	// SupportedTAList
	ie = ngapType.NGSetupRequestIEs{}
	ie.Id.Value = ngapType.ProtocolIEIDSupportedTAList
	ie.Criticality.Value = ngapType.CriticalityPresentReject
	ie.Value.Present = ngapType.NGSetupRequestIEsPresentSupportedTAList
	ie.Value.SupportedTAList = new(ngapType.SupportedTAList)

	broadcastPLMNItem := ngapType.BroadcastPLMNItem{PLMNIdentity: util.PlmnIdToNgap(params.Plmn)}
	for _, slice := range params.Slices {
		broadcastPLMNItem.TAISliceSupportList.List = append(broadcastPLMNItem.TAISliceSupportList.List,
			ngapType.SliceSupportItem{SNSSAI: util.SnssaiToNgap(slice)})
	}
	supportedTAItem := ngapType.SupportedTAItem{TAC: util.TacToNgap(params.Tac)}
	supportedTAItem.BroadcastPLMNList.List = append(supportedTAItem.BroadcastPLMNList.List, broadcastPLMNItem)
	ie.Value.SupportedTAList.List = append(ie.Value.SupportedTAList.List, supportedTAItem)
	nGSetupRequestIEs.List = append(nGSetupRequestIEs.List, ie)

	// PagingDRX
	ie = ngapType.NGSetupRequestIEs{}
	ie.Id.Value = ngapType.ProtocolIEIDDefaultPagingDRX
	ie.Criticality.Value = ngapType.CriticalityPresentIgnore
	ie.Value.Present = ngapType.NGSetupRequestIEsPresentDefaultPagingDRX
	ie.Value.DefaultPagingDRX = &ngapType.PagingDRX{Value: ngapType.PagingDRXPresentV128}
	nGSetupRequestIEs.List = append(nGSetupRequestIEs.List, ie)

	return &pdu
}

// BuildNGSetupResponse answers an NG Setup Request the way an AMF does.
func BuildNGSetupResponse(amfName string, plmn factory.PlmnId, slices []factory.Snssai) *ngapType.NGAPPDU {
	pdu := ngapType.NGAPPDU{}
	pdu.Present = ngapType.NGAPPDUPresentSuccessfulOutcome
	pdu.SuccessfulOutcome = new(ngapType.SuccessfulOutcome)

	successfulOutcome := pdu.SuccessfulOutcome
	successfulOutcome.ProcedureCode.Value = ngapType.ProcedureCodeNGSetup
	successfulOutcome.Criticality.Value = ngapType.CriticalityPresentReject
	successfulOutcome.Value.Present = ngapType.SuccessfulOutcomePresentNGSetupResponse
	successfulOutcome.Value.NGSetupResponse = new(ngapType.NGSetupResponse)

	nGSetupResponseIEs := &successfulOutcome.Value.NGSetupResponse.ProtocolIEs
	ngapPlmn := util.PlmnIdToNgap(plmn)

	// AMFName
	ie := ngapType.NGSetupResponseIEs{}
	ie.Id.Value = ngapType.ProtocolIEIDAMFName
	ie.Criticality.Value = ngapType.CriticalityPresentReject
	ie.Value.Present = ngapType.NGSetupResponseIEsPresentAMFName
	ie.Value.AMFName = &ngapType.AMFName{Value: amfName}
	nGSetupResponseIEs.List = append(nGSetupResponseIEs.List, ie)

	// ServedGUAMIList
	ie = ngapType.NGSetupResponseIEs{}
	ie.Id.Value = ngapType.ProtocolIEIDServedGUAMIList
	ie.Criticality.Value = ngapType.CriticalityPresentReject
	ie.Value.Present = ngapType.NGSetupResponseIEsPresentServedGUAMIList
	ie.Value.ServedGUAMIList = new(ngapType.ServedGUAMIList)
	servedGUAMIItem := ngapType.ServedGUAMIItem{}
	servedGUAMIItem.GUAMI.PLMNIdentity = ngapPlmn
	servedGUAMIItem.GUAMI.AMFRegionID.Value = aper.BitString{Bytes: []byte{0xca}, BitLength: 8}
	servedGUAMIItem.GUAMI.AMFSetID.Value = aper.BitString{Bytes: []byte{0xfe, 0x00}, BitLength: 10}
	servedGUAMIItem.GUAMI.AMFPointer.Value = aper.BitString{Bytes: []byte{0x00}, BitLength: 6}
	ie.Value.ServedGUAMIList.List = append(ie.Value.ServedGUAMIList.List, servedGUAMIItem)
	nGSetupResponseIEs.List = append(nGSetupResponseIEs.List, ie)

	// RelativeAMFCapacity
	ie = ngapType.NGSetupResponseIEs{}
	ie.Id.Value = ngapType.ProtocolIEIDRelativeAMFCapacity
	ie.Criticality.Value = ngapType.CriticalityPresentIgnore
	ie.Value.Present = ngapType.NGSetupResponseIEsPresentRelativeAMFCapacity
	ie.Value.RelativeAMFCapacity = &ngapType.RelativeAMFCapacity{Value: 255}
	nGSetupResponseIEs.List = append(nGSetupResponseIEs.List, ie)

	// PLMNSupportList
	ie = ngapType.NGSetupResponseIEs{}
	ie.Id.Value = ngapType.ProtocolIEIDPLMNSupportList
	ie.Criticality.Value = ngapType.CriticalityPresentReject
	ie.Value.Present = ngapType.NGSetupResponseIEsPresentPLMNSupportList
	ie.Value.PLMNSupportList = new(ngapType.PLMNSupportList)
	pLMNSupportItem := ngapType.PLMNSupportItem{PLMNIdentity: ngapPlmn}
	for _, slice := range slices {
		pLMNSupportItem.SliceSupportList.List = append(pLMNSupportItem.SliceSupportList.List,
			ngapType.SliceSupportItem{SNSSAI: util.SnssaiToNgap(slice)})
	}
	ie.Value.PLMNSupportList.List = append(ie.Value.PLMNSupportList.List, pLMNSupportItem)
	nGSetupResponseIEs.List = append(nGSetupResponseIEs.List, ie)

	return &pdu
}

// BuildNGSetupFailure rejects an NG Setup Request. timeToWait is omitted
// when nil.
func BuildNGSetupFailure(cause *ngapType.Cause, timeToWait *aper.Enumerated) *ngapType.NGAPPDU {
	pdu := ngapType.NGAPPDU{}
	pdu.Present = ngapType.NGAPPDUPresentUnsuccessfulOutcome
	pdu.UnsuccessfulOutcome = new(ngapType.UnsuccessfulOutcome)

	unsuccessfulOutcome := pdu.UnsuccessfulOutcome
	unsuccessfulOutcome.ProcedureCode.Value = ngapType.ProcedureCodeNGSetup
	unsuccessfulOutcome.Criticality.Value = ngapType.CriticalityPresentReject
	unsuccessfulOutcome.Value.Present = ngapType.UnsuccessfulOutcomePresentNGSetupFailure
	unsuccessfulOutcome.Value.NGSetupFailure = new(ngapType.NGSetupFailure)

	nGSetupFailureIEs := &unsuccessfulOutcome.Value.NGSetupFailure.ProtocolIEs

	ie := ngapType.NGSetupFailureIEs{}
	ie.Id.Value = ngapType.ProtocolIEIDCause
	ie.Criticality.Value = ngapType.CriticalityPresentIgnore
	ie.Value.Present = ngapType.NGSetupFailureIEsPresentCause
	ie.Value.Cause = cause
	nGSetupFailureIEs.List = append(nGSetupFailureIEs.List, ie)

	if timeToWait != nil {
		ie = ngapType.NGSetupFailureIEs{}
		ie.Id.Value = ngapType.ProtocolIEIDTimeToWait
		ie.Criticality.Value = ngapType.CriticalityPresentIgnore
		ie.Value.Present = ngapType.NGSetupFailureIEsPresentTimeToWait
		ie.Value.TimeToWait = &ngapType.TimeToWait{Value: *timeToWait}
		nGSetupFailureIEs.List = append(nGSetupFailureIEs.List, ie)
	}

	return &pdu
}

// BuildInitialUEMessage carries the first NAS message of a UE to the AMF.
func BuildInitialUEMessage(ranUeNgapID int64, nasPdu []byte, loc UserLocation,
	establishmentCause aper.Enumerated,
) *ngapType.NGAPPDU {
	pdu := ngapType.NGAPPDU{}
	pdu.Present = ngapType.NGAPPDUPresentInitiatingMessage
	pdu.InitiatingMessage = new(ngapType.InitiatingMessage)

	initiatingMessage := pdu.InitiatingMessage
	initiatingMessage.ProcedureCode.Value = ngapType.ProcedureCodeInitialUEMessage
	initiatingMessage.Criticality.Value = ngapType.CriticalityPresentIgnore
	initiatingMessage.Value.Present = ngapType.InitiatingMessagePresentInitialUEMessage
	initiatingMessage.Value.InitialUEMessage = new(ngapType.InitialUEMessage)

	initialUEMessageIEs := &initiatingMessage.Value.InitialUEMessage.ProtocolIEs

	// RAN UE NGAP ID
	ie := ngapType.InitialUEMessageIEs{}
	ie.Id.Value = ngapType.ProtocolIEIDRANUENGAPID
	ie.Criticality.Value = ngapType.CriticalityPresentReject
	ie.Value.Present = ngapType.InitialUEMessageIEsPresentRANUENGAPID
	ie.Value.RANUENGAPID = &ngapType.RANUENGAPID{Value: ranUeNgapID}
	initialUEMessageIEs.List = append(initialUEMessageIEs.List, ie)

	// NAS-PDU
	ie = ngapType.InitialUEMessageIEs{}
	ie.Id.Value = ngapType.ProtocolIEIDNASPDU
	ie.Criticality.Value = ngapType.CriticalityPresentReject
	ie.Value.Present = ngapType.InitialUEMessageIEsPresentNASPDU
	ie.Value.NASPDU = &ngapType.NASPDU{Value: nasPdu}
	initialUEMessageIEs.List = append(initialUEMessageIEs.List, ie)

	// User Location Information
	ie = ngapType.InitialUEMessageIEs{}
	ie.Id.Value = ngapType.ProtocolIEIDUserLocationInformation
	ie.Criticality.Value = ngapType.CriticalityPresentReject
	ie.Value.Present = ngapType.InitialUEMessageIEsPresentUserLocationInformation
	ie.Value.UserLocationInformation = buildUserLocationInformation(loc)
	initialUEMessageIEs.List = append(initialUEMessageIEs.List, ie)

	// RRC Establishment Cause
	ie = ngapType.InitialUEMessageIEs{}
	ie.Id.Value = ngapType.ProtocolIEIDRRCEstablishmentCause
	ie.Criticality.Value = ngapType.CriticalityPresentIgnore
	ie.Value.Present = ngapType.InitialUEMessageIEsPresentRRCEstablishmentCause
	ie.Value.RRCEstablishmentCause = &ngapType.RRCEstablishmentCause{Value: establishmentCause}
	initialUEMessageIEs.List = append(initialUEMessageIEs.List, ie)

	// UE Context Request
	ie = ngapType.InitialUEMessageIEs{}
	ie.Id.Value = ngapType.ProtocolIEIDUEContextRequest
	ie.Criticality.Value = ngapType.CriticalityPresentIgnore
	ie.Value.Present = ngapType.InitialUEMessageIEsPresentUEContextRequest
	ie.Value.UEContextRequest = &ngapType.UEContextRequest{Value: ngapType.UEContextRequestPresentRequested}
	initialUEMessageIEs.List = append(initialUEMessageIEs.List, ie)

	return &pdu
}

func BuildUplinkNASTransport(amfUeNgapID, ranUeNgapID int64, nasPdu []byte, loc UserLocation) *ngapType.NGAPPDU {
	pdu := ngapType.NGAPPDU{}
	pdu.Present = ngapType.NGAPPDUPresentInitiatingMessage
	pdu.InitiatingMessage = new(ngapType.InitiatingMessage)

	initiatingMessage := pdu.InitiatingMessage
	initiatingMessage.ProcedureCode.Value = ngapType.ProcedureCodeUplinkNASTransport
	initiatingMessage.Criticality.Value = ngapType.CriticalityPresentIgnore
	initiatingMessage.Value.Present = ngapType.InitiatingMessagePresentUplinkNASTransport
	initiatingMessage.Value.UplinkNASTransport = new(ngapType.UplinkNASTransport)

	uplinkNasTransportIEs := &initiatingMessage.Value.UplinkNASTransport.ProtocolIEs

	// AMF UE NGAP ID
	ie := ngapType.UplinkNASTransportIEs{}
	ie.Id.Value = ngapType.ProtocolIEIDAMFUENGAPID
	ie.Criticality.Value = ngapType.CriticalityPresentReject
	ie.Value.Present = ngapType.UplinkNASTransportIEsPresentAMFUENGAPID
	ie.Value.AMFUENGAPID = &ngapType.AMFUENGAPID{Value: amfUeNgapID}
	uplinkNasTransportIEs.List = append(uplinkNasTransportIEs.List, ie)

	// RAN UE NGAP ID
	ie = ngapType.UplinkNASTransportIEs{}
	ie.Id.Value = ngapType.ProtocolIEIDRANUENGAPID
	ie.Criticality.Value = ngapType.CriticalityPresentReject
	ie.Value.Present = ngapType.UplinkNASTransportIEsPresentRANUENGAPID
	ie.Value.RANUENGAPID = &ngapType.RANUENGAPID{Value: ranUeNgapID}
	uplinkNasTransportIEs.List = append(uplinkNasTransportIEs.List, ie)

	// NAS-PDU
	ie = ngapType.UplinkNASTransportIEs{}
	ie.Id.Value = ngapType.ProtocolIEIDNASPDU
	ie.Criticality.Value = ngapType.CriticalityPresentReject
	ie.Value.Present = ngapType.UplinkNASTransportIEsPresentNASPDU
	ie.Value.NASPDU = &ngapType.NASPDU{Value: nasPdu}
	uplinkNasTransportIEs.List = append(uplinkNasTransportIEs.List, ie)

	// User Location Information
	ie = ngapType.UplinkNASTransportIEs{}
	ie.Id.Value = ngapType.ProtocolIEIDUserLocationInformation
	ie.Criticality.Value = ngapType.CriticalityPresentIgnore
	ie.Value.Present = ngapType.UplinkNASTransportIEsPresentUserLocationInformation
	ie.Value.UserLocationInformation = buildUserLocationInformation(loc)
	uplinkNasTransportIEs.List = append(uplinkNasTransportIEs.List, ie)

	return &pdu
}

// BuildDownlinkNASTransport is sent by the AMF; the gNB decodes it.
func BuildDownlinkNASTransport(amfUeNgapID, ranUeNgapID int64, nasPdu []byte) *ngapType.NGAPPDU {
	pdu := ngapType.NGAPPDU{}
	pdu.Present = ngapType.NGAPPDUPresentInitiatingMessage
	pdu.InitiatingMessage = new(ngapType.InitiatingMessage)

	initiatingMessage := pdu.InitiatingMessage
	initiatingMessage.ProcedureCode.Value = ngapType.ProcedureCodeDownlinkNASTransport
	initiatingMessage.Criticality.Value = ngapType.CriticalityPresentIgnore
	initiatingMessage.Value.Present = ngapType.InitiatingMessagePresentDownlinkNASTransport
	initiatingMessage.Value.DownlinkNASTransport = new(ngapType.DownlinkNASTransport)

	downlinkNasTransportIEs := &initiatingMessage.Value.DownlinkNASTransport.ProtocolIEs

	ie := ngapType.DownlinkNASTransportIEs{}
	ie.Id.Value = ngapType.ProtocolIEIDAMFUENGAPID
	ie.Criticality.Value = ngapType.CriticalityPresentReject
	ie.Value.Present = ngapType.DownlinkNASTransportIEsPresentAMFUENGAPID
	ie.Value.AMFUENGAPID = &ngapType.AMFUENGAPID{Value: amfUeNgapID}
	downlinkNasTransportIEs.List = append(downlinkNasTransportIEs.List, ie)

	ie = ngapType.DownlinkNASTransportIEs{}
	ie.Id.Value = ngapType.ProtocolIEIDRANUENGAPID
	ie.Criticality.Value = ngapType.CriticalityPresentReject
	ie.Value.Present = ngapType.DownlinkNASTransportIEsPresentRANUENGAPID
	ie.Value.RANUENGAPID = &ngapType.RANUENGAPID{Value: ranUeNgapID}
	downlinkNasTransportIEs.List = append(downlinkNasTransportIEs.List, ie)

	ie = ngapType.DownlinkNASTransportIEs{}
	ie.Id.Value = ngapType.ProtocolIEIDNASPDU
	ie.Criticality.Value = ngapType.CriticalityPresentReject
	ie.Value.Present = ngapType.DownlinkNASTransportIEsPresentNASPDU
	ie.Value.NASPDU = &ngapType.NASPDU{Value: nasPdu}
	downlinkNasTransportIEs.List = append(downlinkNasTransportIEs.List, ie)

	return &pdu
}

// BuildUEContextReleaseCommand is sent by the AMF to release a UE.
func BuildUEContextReleaseCommand(amfUeNgapID, ranUeNgapID int64, cause *ngapType.Cause) *ngapType.NGAPPDU {
	pdu := ngapType.NGAPPDU{}
	pdu.Present = ngapType.NGAPPDUPresentInitiatingMessage
	pdu.InitiatingMessage = new(ngapType.InitiatingMessage)

	initiatingMessage := pdu.InitiatingMessage
	initiatingMessage.ProcedureCode.Value = ngapType.ProcedureCodeUEContextRelease
	initiatingMessage.Criticality.Value = ngapType.CriticalityPresentReject
	initiatingMessage.Value.Present = ngapType.InitiatingMessagePresentUEContextReleaseCommand
	initiatingMessage.Value.UEContextReleaseCommand = new(ngapType.UEContextReleaseCommand)

	ueContextReleaseCommandIEs := &initiatingMessage.Value.UEContextReleaseCommand.ProtocolIEs

	ie := ngapType.UEContextReleaseCommandIEs{}
	ie.Id.Value = ngapType.ProtocolIEIDUENGAPIDs
	ie.Criticality.Value = ngapType.CriticalityPresentReject
	ie.Value.Present = ngapType.UEContextReleaseCommandIEsPresentUENGAPIDs
	ie.Value.UENGAPIDs = &ngapType.UENGAPIDs{
		Present: ngapType.UENGAPIDsPresentUENGAPIDPair,
		UENGAPIDPair: &ngapType.UENGAPIDPair{
			AMFUENGAPID: ngapType.AMFUENGAPID{Value: amfUeNgapID},
			RANUENGAPID: ngapType.RANUENGAPID{Value: ranUeNgapID},
		},
	}
	ueContextReleaseCommandIEs.List = append(ueContextReleaseCommandIEs.List, ie)

	ie = ngapType.UEContextReleaseCommandIEs{}
	ie.Id.Value = ngapType.ProtocolIEIDCause
	ie.Criticality.Value = ngapType.CriticalityPresentIgnore
	ie.Value.Present = ngapType.UEContextReleaseCommandIEsPresentCause
	ie.Value.Cause = cause
	ueContextReleaseCommandIEs.List = append(ueContextReleaseCommandIEs.List, ie)

	return &pdu
}

func BuildUEContextReleaseComplete(amfUeNgapID, ranUeNgapID int64) *ngapType.NGAPPDU {
	pdu := ngapType.NGAPPDU{}
	pdu.Present = ngapType.NGAPPDUPresentSuccessfulOutcome
	pdu.SuccessfulOutcome = new(ngapType.SuccessfulOutcome)

	successfulOutcome := pdu.SuccessfulOutcome
	successfulOutcome.ProcedureCode.Value = ngapType.ProcedureCodeUEContextRelease
	successfulOutcome.Criticality.Value = ngapType.CriticalityPresentReject
	successfulOutcome.Value.Present = ngapType.SuccessfulOutcomePresentUEContextReleaseComplete
	successfulOutcome.Value.UEContextReleaseComplete = new(ngapType.UEContextReleaseComplete)

	ueContextReleaseCompleteIEs := &successfulOutcome.Value.UEContextReleaseComplete.ProtocolIEs

	ie := ngapType.UEContextReleaseCompleteIEs{}
	ie.Id.Value = ngapType.ProtocolIEIDAMFUENGAPID
	ie.Criticality.Value = ngapType.CriticalityPresentIgnore
	ie.Value.Present = ngapType.UEContextReleaseCompleteIEsPresentAMFUENGAPID
	ie.Value.AMFUENGAPID = &ngapType.AMFUENGAPID{Value: amfUeNgapID}
	ueContextReleaseCompleteIEs.List = append(ueContextReleaseCompleteIEs.List, ie)

	ie = ngapType.UEContextReleaseCompleteIEs{}
	ie.Id.Value = ngapType.ProtocolIEIDRANUENGAPID
	ie.Criticality.Value = ngapType.CriticalityPresentIgnore
	ie.Value.Present = ngapType.UEContextReleaseCompleteIEsPresentRANUENGAPID
	ie.Value.RANUENGAPID = &ngapType.RANUENGAPID{Value: ranUeNgapID}
	ueContextReleaseCompleteIEs.List = append(ueContextReleaseCompleteIEs.List, ie)

	return &pdu
}

func BuildErrorIndication(
	amfUeNgapID *int64,
	ranUeNgapID *int64,
	cause *ngapType.Cause,
	criticalityDiagnostics *ngapType.CriticalityDiagnostics,
) *ngapType.NGAPPDU {
	pdu := ngapType.NGAPPDU{}
	pdu.Present = ngapType.NGAPPDUPresentInitiatingMessage
	pdu.InitiatingMessage = new(ngapType.InitiatingMessage)

	initiatingMessage := pdu.InitiatingMessage
	initiatingMessage.ProcedureCode.Value = ngapType.ProcedureCodeErrorIndication
	initiatingMessage.Criticality.Value = ngapType.CriticalityPresentIgnore
	initiatingMessage.Value.Present = ngapType.InitiatingMessagePresentErrorIndication
	initiatingMessage.Value.ErrorIndication = new(ngapType.ErrorIndication)

	errorIndicationIEs := &initiatingMessage.Value.ErrorIndication.ProtocolIEs

	if amfUeNgapID != nil {
		ie := ngapType.ErrorIndicationIEs{}
		ie.Id.Value = ngapType.ProtocolIEIDAMFUENGAPID
		ie.Criticality.Value = ngapType.CriticalityPresentIgnore
		ie.Value.Present = ngapType.ErrorIndicationIEsPresentAMFUENGAPID
		ie.Value.AMFUENGAPID = &ngapType.AMFUENGAPID{Value: *amfUeNgapID}
		errorIndicationIEs.List = append(errorIndicationIEs.List, ie)
	}

	if ranUeNgapID != nil {
		ie := ngapType.ErrorIndicationIEs{}
		ie.Id.Value = ngapType.ProtocolIEIDRANUENGAPID
		ie.Criticality.Value = ngapType.CriticalityPresentIgnore
		ie.Value.Present = ngapType.ErrorIndicationIEsPresentRANUENGAPID
		ie.Value.RANUENGAPID = &ngapType.RANUENGAPID{Value: *ranUeNgapID}
		errorIndicationIEs.List = append(errorIndicationIEs.List, ie)
	}

	if cause != nil {
		ie := ngapType.ErrorIndicationIEs{}
		ie.Id.Value = ngapType.ProtocolIEIDCause
		ie.Criticality.Value = ngapType.CriticalityPresentIgnore
		ie.Value.Present = ngapType.ErrorIndicationIEsPresentCause
		ie.Value.Cause = cause
		errorIndicationIEs.List = append(errorIndicationIEs.List, ie)
	}

	if criticalityDiagnostics != nil {
		ie := ngapType.ErrorIndicationIEs{}
		ie.Id.Value = ngapType.ProtocolIEIDCriticalityDiagnostics
		ie.Criticality.Value = ngapType.CriticalityPresentIgnore
		ie.Value.Present = ngapType.ErrorIndicationIEsPresentCriticalityDiagnostics
		ie.Value.CriticalityDiagnostics = criticalityDiagnostics
		errorIndicationIEs.List = append(errorIndicationIEs.List, ie)
	}

	return &pdu
}

// BuildUEContextReleaseRequest asks the AMF to release a UE the gNB lost.
func BuildUEContextReleaseRequest(amfUeNgapID, ranUeNgapID int64, cause *ngapType.Cause) *ngapType.NGAPPDU {
	pdu := ngapType.NGAPPDU{}
	pdu.Present = ngapType.NGAPPDUPresentInitiatingMessage
	pdu.InitiatingMessage = new(ngapType.InitiatingMessage)

	initiatingMessage := pdu.InitiatingMessage
	initiatingMessage.ProcedureCode.Value = ngapType.ProcedureCodeUEContextReleaseRequest
	initiatingMessage.Criticality.Value = ngapType.CriticalityPresentIgnore
	initiatingMessage.Value.Present = ngapType.InitiatingMessagePresentUEContextReleaseRequest
	initiatingMessage.Value.UEContextReleaseRequest = new(ngapType.UEContextReleaseRequest)

	ueContextReleaseRequestIEs := &initiatingMessage.Value.UEContextReleaseRequest.ProtocolIEs

	ie := ngapType.UEContextReleaseRequestIEs{}
	ie.Id.Value = ngapType.ProtocolIEIDAMFUENGAPID
	ie.Criticality.Value = ngapType.CriticalityPresentReject
	ie.Value.Present = ngapType.UEContextReleaseRequestIEsPresentAMFUENGAPID
	ie.Value.AMFUENGAPID = &ngapType.AMFUENGAPID{Value: amfUeNgapID}
	ueContextReleaseRequestIEs.List = append(ueContextReleaseRequestIEs.List, ie)

	ie = ngapType.UEContextReleaseRequestIEs{}
	ie.Id.Value = ngapType.ProtocolIEIDRANUENGAPID
	ie.Criticality.Value = ngapType.CriticalityPresentReject
	ie.Value.Present = ngapType.UEContextReleaseRequestIEsPresentRANUENGAPID
	ie.Value.RANUENGAPID = &ngapType.RANUENGAPID{Value: ranUeNgapID}
	ueContextReleaseRequestIEs.List = append(ueContextReleaseRequestIEs.List, ie)

	ie = ngapType.UEContextReleaseRequestIEs{}
	ie.Id.Value = ngapType.ProtocolIEIDCause
	ie.Criticality.Value = ngapType.CriticalityPresentIgnore
	ie.Value.Present = ngapType.UEContextReleaseRequestIEsPresentCause
	ie.Value.Cause = cause
	ueContextReleaseRequestIEs.List = append(ueContextReleaseRequestIEs.List, ie)

	return &pdu
}
