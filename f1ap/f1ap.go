// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package f1ap holds the F1 application protocol messages exchanged between
// the CU-CP and its DUs, and the codec that frames them for the F1-C
// association.
package f1ap

import (
	"fmt"
)

// PPID is the SCTP payload protocol identifier of F1AP.
const PPID uint32 = 62

const (
	// NrCellIdBitLength is the size of the NR cell identity.
	NrCellIdBitLength = 36

	SrbId0 uint8 = 0
	SrbId1 uint8 = 1
	SrbId2 uint8 = 2
)

type CauseGroup uint8

const (
	CauseRadioNetwork CauseGroup = iota
	CauseTransport
	CauseProtocol
	CauseMisc
)

const (
	CauseMiscUnspecified            uint8 = 0
	CauseMiscControlProcOverload    uint8 = 1
	CauseMiscNotEnoughUserPlaneRes  uint8 = 2
	CauseRadioNetworkUnspecified    uint8 = 0
	CauseRadioNetworkUnknownCell    uint8 = 9
	CauseRadioNetworkNormalRelease  uint8 = 10
	CauseRadioNetworkCellNotAvail   uint8 = 11
	CauseProtocolMsgNotCompatible   uint8 = 5
	CauseTransportResourceUnavail   uint8 = 0
	CauseRadioNetworkDuplicateDuId  uint8 = 12
	CauseRadioNetworkPlmnNotServed  uint8 = 13
	CauseRadioNetworkNgNotConnected uint8 = 14
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

// NrCgi is the NR cell global identity: a PLMN in its 3-byte BCD form and a
// 36-bit cell identity whose leading bits carry the gNB identity.
type NrCgi struct {
	Plmn     [3]byte
	NrCellId uint64
}

// GnbId extracts the gNB identity of the given bit length from the cell
// identity.
func (c NrCgi) GnbId(bitLength uint8) uint32 {
	return uint32(c.NrCellId >> (NrCellIdBitLength - uint64(bitLength)))
}

func (c NrCgi) String() string {
	return fmt.Sprintf("%x:%#x", c.Plmn, c.NrCellId)
}

type ServedCell struct {
	NrCgi NrCgi
	Pci   uint16
	Tac   uint32
}

type F1SetupRequest struct {
	TransactionId uint8
	GnbDuId       uint64
	GnbDuName     string
	ServedCells   []ServedCell
}

type F1SetupResponse struct {
	TransactionId   uint8
	GnbCuName       string
	CellsToActivate []NrCgi
	GnbCuRrcVersion uint8
}

type F1SetupFailure struct {
	TransactionId uint8
	Cause         Cause
	TimeToWait    uint8
}

type InitialUlRrcMessageTransfer struct {
	GnbDuUeF1apId      uint32
	NrCgi              NrCgi
	CRnti              uint16
	RrcContainer       []byte
	DuToCuRrcContainer []byte
}

type DlRrcMessageTransfer struct {
	GnbCuUeF1apId uint32
	GnbDuUeF1apId uint32
	SrbId         uint8
	RrcContainer  []byte
}

type UlRrcMessageTransfer struct {
	GnbCuUeF1apId uint32
	GnbDuUeF1apId uint32
	SrbId         uint8
	RrcContainer  []byte
}

type UeContextReleaseCommand struct {
	GnbCuUeF1apId uint32
	GnbDuUeF1apId uint32
	Cause         Cause
	RrcContainer  []byte
	SrbId         uint8
}

type UeContextReleaseComplete struct {
	GnbCuUeF1apId uint32
	GnbDuUeF1apId uint32
}

// Pdu carries exactly one F1AP message.
type Pdu struct {
	F1SetupRequest              *F1SetupRequest
	F1SetupResponse             *F1SetupResponse
	F1SetupFailure              *F1SetupFailure
	InitialUlRrcMessageTransfer *InitialUlRrcMessageTransfer
	DlRrcMessageTransfer        *DlRrcMessageTransfer
	UlRrcMessageTransfer        *UlRrcMessageTransfer
	UeContextReleaseCommand     *UeContextReleaseCommand
	UeContextReleaseComplete    *UeContextReleaseComplete
}

// Name returns the name of the carried message, or "empty".
func (p *Pdu) Name() string {
	switch {
	case p == nil:
		return "empty"
	case p.F1SetupRequest != nil:
		return "F1SetupRequest"
	case p.F1SetupResponse != nil:
		return "F1SetupResponse"
	case p.F1SetupFailure != nil:
		return "F1SetupFailure"
	case p.InitialUlRrcMessageTransfer != nil:
		return "InitialULRRCMessageTransfer"
	case p.DlRrcMessageTransfer != nil:
		return "DLRRCMessageTransfer"
	case p.UlRrcMessageTransfer != nil:
		return "ULRRCMessageTransfer"
	case p.UeContextReleaseCommand != nil:
		return "UEContextReleaseCommand"
	case p.UeContextReleaseComplete != nil:
		return "UEContextReleaseComplete"
	}
	return "empty"
}

func (p *Pdu) nofMessages() int {
	n := 0
	for _, set := range []bool{
		p.F1SetupRequest != nil,
		p.F1SetupResponse != nil,
		p.F1SetupFailure != nil,
		p.InitialUlRrcMessageTransfer != nil,
		p.DlRrcMessageTransfer != nil,
		p.UlRrcMessageTransfer != nil,
		p.UeContextReleaseCommand != nil,
		p.UeContextReleaseComplete != nil,
	} {
		if set {
			n++
		}
	}
	return n
}
