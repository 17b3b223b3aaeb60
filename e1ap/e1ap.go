// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package e1ap holds the E1 application protocol messages exchanged between
// the CU-CP and the CU-UPs.
package e1ap

import (
	"fmt"
	"net"
	"strconv"
)

// PPID is the SCTP payload protocol identifier of E1AP.
const PPID uint32 = 64

type CauseGroup uint8

const (
	CauseRadioNetwork CauseGroup = iota
	CauseTransport
	CauseProtocol
	CauseMisc
)

const (
	CauseMiscUnspecified           uint8 = 0
	CauseRadioNetworkNormalRelease uint8 = 1
	CauseRadioNetworkUnknownUeId   uint8 = 2
	CauseRadioNetworkNgNotReady    uint8 = 3
	CauseRadioNetworkMultipleCuUp  uint8 = 4
	CauseTransportResourceUnavail  uint8 = 0
)

type Cause struct {
	Group CauseGroup
	Value uint8
}

func (c Cause) String() string {
	groups := [...]string{"radioNetwork", "transport", "protocol", "misc"}
	if int(c.Group) < len(groups) {
		return fmt.Sprintf("%s(%d)", groups[c.Group], c.Value)
	}
	return fmt.Sprintf("group%d(%d)", c.Group, c.Value)
}

// UpTnlInfo is a GTP-U tunnel endpoint. Port is zero when the peer did not
// announce one.
type UpTnlInfo struct {
	Addr string
	Port uint16
	Teid uint32
}

func (t UpTnlInfo) String() string {
	if t.Port == 0 {
		return fmt.Sprintf("%s/%#x", t.Addr, t.Teid)
	}
	return fmt.Sprintf("%s/%#x", net.JoinHostPort(t.Addr, strconv.Itoa(int(t.Port))), t.Teid)
}

type Snssai struct {
	Sst uint8
	Sd  uint32
}

type SecurityInfo struct {
	CipheringAlgo uint8
	IntegrityAlgo uint8
	Key           []byte
}

type GnbCuUpE1SetupRequest struct {
	TransactionId  uint8
	GnbCuUpId      uint64
	GnbCuUpName    string
	SupportedPlmns [][3]byte
}

type GnbCuUpE1SetupResponse struct {
	TransactionId uint8
	GnbCuCpName   string
}

type GnbCuUpE1SetupFailure struct {
	TransactionId uint8
	Cause         Cause
}

type DrbToSetup struct {
	DrbId    uint8
	QosFlows []uint8
}

type PduSessionToSetup struct {
	PduSessionId  uint8
	Snssai        Snssai
	NgUlUpTnlInfo UpTnlInfo
	Drbs          []DrbToSetup
}

type BearerContextSetupRequest struct {
	GnbCuCpUeE1apId uint32
	Security        SecurityInfo
	UeDlAmbr        uint64
	PduSessions     []PduSessionToSetup
}

type DrbSetup struct {
	DrbId       uint8
	UlUpTnlInfo UpTnlInfo
	QosFlows    []uint8
}

type PduSessionSetup struct {
	PduSessionId  uint8
	NgDlUpTnlInfo UpTnlInfo
	Drbs          []DrbSetup
}

type PduSessionFailed struct {
	PduSessionId uint8
	Cause        Cause
}

type BearerContextSetupResponse struct {
	GnbCuCpUeE1apId   uint32
	GnbCuUpUeE1apId   uint32
	PduSessions       []PduSessionSetup
	FailedPduSessions []PduSessionFailed
}

type BearerContextSetupFailure struct {
	GnbCuCpUeE1apId uint32
	GnbCuUpUeE1apId uint32
	Cause           Cause
}

type DrbToModify struct {
	DrbId       uint8
	DlUpTnlInfo UpTnlInfo
}

type BearerContextModificationRequest struct {
	GnbCuCpUeE1apId uint32
	GnbCuUpUeE1apId uint32
	DrbsToModify    []DrbToModify
}

type BearerContextModificationResponse struct {
	GnbCuCpUeE1apId uint32
	GnbCuUpUeE1apId uint32
	DrbsModified    []uint8
}

type BearerContextModificationFailure struct {
	GnbCuCpUeE1apId uint32
	GnbCuUpUeE1apId uint32
	Cause           Cause
}

type BearerContextReleaseCommand struct {
	GnbCuCpUeE1apId uint32
	GnbCuUpUeE1apId uint32
	Cause           Cause
}

type BearerContextReleaseComplete struct {
	GnbCuCpUeE1apId uint32
	GnbCuUpUeE1apId uint32
}

// Pdu carries exactly one E1AP message.
type Pdu struct {
	GnbCuUpE1SetupRequest             *GnbCuUpE1SetupRequest
	GnbCuUpE1SetupResponse            *GnbCuUpE1SetupResponse
	GnbCuUpE1SetupFailure             *GnbCuUpE1SetupFailure
	BearerContextSetupRequest         *BearerContextSetupRequest
	BearerContextSetupResponse        *BearerContextSetupResponse
	BearerContextSetupFailure         *BearerContextSetupFailure
	BearerContextModificationRequest  *BearerContextModificationRequest
	BearerContextModificationResponse *BearerContextModificationResponse
	BearerContextModificationFailure  *BearerContextModificationFailure
	BearerContextReleaseCommand       *BearerContextReleaseCommand
	BearerContextReleaseComplete      *BearerContextReleaseComplete
}

func (p *Pdu) Name() string {
	switch {
	case p == nil:
		return "empty"
	case p.GnbCuUpE1SetupRequest != nil:
		return "GNBCUUPE1SetupRequest"
	case p.GnbCuUpE1SetupResponse != nil:
		return "GNBCUUPE1SetupResponse"
	case p.GnbCuUpE1SetupFailure != nil:
		return "GNBCUUPE1SetupFailure"
	case p.BearerContextSetupRequest != nil:
		return "BearerContextSetupRequest"
	case p.BearerContextSetupResponse != nil:
		return "BearerContextSetupResponse"
	case p.BearerContextSetupFailure != nil:
		return "BearerContextSetupFailure"
	case p.BearerContextModificationRequest != nil:
		return "BearerContextModificationRequest"
	case p.BearerContextModificationResponse != nil:
		return "BearerContextModificationResponse"
	case p.BearerContextModificationFailure != nil:
		return "BearerContextModificationFailure"
	case p.BearerContextReleaseCommand != nil:
		return "BearerContextReleaseCommand"
	case p.BearerContextReleaseComplete != nil:
		return "BearerContextReleaseComplete"
	}
	return "empty"
}

func (p *Pdu) nofMessages() int {
	n := 0
	for _, set := range []bool{
		p.GnbCuUpE1SetupRequest != nil,
		p.GnbCuUpE1SetupResponse != nil,
		p.GnbCuUpE1SetupFailure != nil,
		p.BearerContextSetupRequest != nil,
		p.BearerContextSetupResponse != nil,
		p.BearerContextSetupFailure != nil,
		p.BearerContextModificationRequest != nil,
		p.BearerContextModificationResponse != nil,
		p.BearerContextModificationFailure != nil,
		p.BearerContextReleaseCommand != nil,
		p.BearerContextReleaseComplete != nil,
	} {
		if set {
			n++
		}
	}
	return n
}
