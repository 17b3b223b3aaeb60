// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"github.com/omec-project/gnb/e1ap"
	"github.com/omec-project/gnb/support/executor"
)

// UeCtxRelState tracks which release the UE is waiting for.
type UeCtxRelState uint8

const (
	UeCtxRelStateNone UeCtxRelState = iota
	// UeCtxRelStateRejected: RRC Reject sent, waiting for the DU.
	UeCtxRelStateRejected
	// UeCtxRelStateAmfCommanded: release ordered by the AMF.
	UeCtxRelStateAmfCommanded
)

// SecurityContext is the AS security configuration of a UE.
type SecurityContext struct {
	CipheringAlgo uint8
	IntegrityAlgo uint8
	Key           []byte
}

// Drb is a data radio bearer and its F1-U tunnels.
type Drb struct {
	Id       uint8
	QosFlows []uint8
	F1uUlTnl e1ap.UpTnlInfo
	F1uDlTnl e1ap.UpTnlInfo
}

type PduSession struct {
	Id      uint8
	Snssai  e1ap.Snssai
	UpfTnl  e1ap.UpTnlInfo
	N3DlTnl e1ap.UpTnlInfo
	Drbs    map[uint8]*Drb
}

// UpResources tracks the bearer context a UE holds in one CU-UP.
type UpResources struct {
	CuUpIndex    CuUpIndex
	CuUpUeE1apId uint32
	Active       bool
	PduSessions  map[uint8]*PduSession
}

func newUpResources() *UpResources {
	return &UpResources{CuUpIndex: InvalidCuUpIndex, PduSessions: make(map[uint8]*PduSession)}
}

// Clear drops every PDU session after a bearer context release.
func (r *UpResources) Clear() {
	r.CuUpIndex = InvalidCuUpIndex
	r.Active = false
	r.PduSessions = make(map[uint8]*PduSession)
}

func (r *UpResources) NofDrbs() int {
	n := 0
	for _, s := range r.PduSessions {
		n += len(s.Drbs)
	}
	return n
}

// Ue is the CU-CP record of one UE. It refers to its DU and CU-UP by index.
type Ue struct {
	Index   UeIndex
	DuIndex DuIndex
	GnbDuId GnbDuId
	Pci     uint16
	CRnti   uint16

	DuUeF1apId uint32
	CuUeF1apId uint32

	RanUeNgapId int64
	AmfUeNgapId *int64

	TaskScheduler executor.TaskExecutor
	UpResources   *UpResources
	Security      SecurityContext
	RelState      UeCtxRelState

	// RRC
	EstablishmentCause uint8
	RrcTransactionId   uint8
}

// PciRnti returns the UE's key in the (PCI, C-RNTI) index.
func (ue *Ue) PciRnti() PciRnti {
	return PciRnti{Pci: ue.Pci, CRnti: ue.CRnti}
}

// HasDuContext reports whether SetUeDuContext ran for the UE.
func (ue *Ue) HasDuContext() bool {
	return ue.GnbDuId != InvalidGnbDuId
}

// NextRrcTransactionId returns a fresh RRC transaction id (0..3).
func (ue *Ue) NextRrcTransactionId() uint8 {
	id := ue.RrcTransactionId
	ue.RrcTransactionId = (ue.RrcTransactionId + 1) % 4
	return id
}
