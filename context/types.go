// SPDX-FileCopyrightText: 2024 Intel Corporation
// Copyright 2019 free5GC.org
//
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"fmt"
	"math"

	"github.com/omec-project/gnb/factory"
	"github.com/pkg/errors"
)

// UeIndex identifies a UE inside the CU-CP. The DU index lives in the high
// bits and a per-DU slot in the low 16 bits.
type UeIndex uint64

// DuIndex is the slot of a DU association in the CU-CP.
type DuIndex uint32

// CuUpIndex is the slot of a CU-UP association in the CU-CP.
type CuUpIndex uint32

// GnbDuId is the identity announced by a DU during F1 Setup.
type GnbDuId uint64

const (
	InvalidUeIndex   UeIndex   = math.MaxUint64
	InvalidDuIndex   DuIndex   = math.MaxUint32
	InvalidCuUpIndex CuUpIndex = math.MaxUint32
	InvalidGnbDuId   GnbDuId   = math.MaxUint64

	ueSlotBits = 16
)

var (
	ErrAdmissionRejected = errors.New("admission rejected")
	ErrDuplicateUe       = errors.New("duplicate (PCI, C-RNTI)")
	ErrUnknownUe         = errors.New("unknown UE index")
	ErrUnknownDu         = errors.New("unknown DU index")
)

// GenerateUeIndex packs a DU index and a slot into a UE index.
func GenerateUeIndex(du DuIndex, slot uint32) UeIndex {
	if slot >= factory.MaxNofUesPerDu {
		return InvalidUeIndex
	}
	return UeIndex(du)<<ueSlotBits | UeIndex(slot)
}

func (u UeIndex) DuIndex() DuIndex {
	if u == InvalidUeIndex {
		return InvalidDuIndex
	}
	return DuIndex(u >> ueSlotBits)
}

func (u UeIndex) Slot() uint32 {
	return uint32(u & (1<<ueSlotBits - 1))
}

func (u UeIndex) String() string {
	if u == InvalidUeIndex {
		return "invalid"
	}
	return fmt.Sprintf("%d", uint64(u))
}

// PciRnti keys a UE by its serving cell and C-RNTI.
type PciRnti struct {
	Pci   uint16
	CRnti uint16
}

func (k PciRnti) String() string {
	return fmt.Sprintf("pci=%d c-rnti=%#x", k.Pci, k.CRnti)
}
