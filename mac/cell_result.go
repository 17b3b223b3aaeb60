// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package mac defines the per-cell results the MAC hands to the PHY.
package mac

import (
	"github.com/omec-project/gnb/phy/pdsch"
	"github.com/omec-project/gnb/support/slot"
)

// DlSchedResult carries the downlink grants of a slot.
type DlSchedResult struct {
	Slot   slot.Point
	Pdschs []pdsch.PDU
}

// DlDataResult carries one transport block per PDSCH grant, in grant order.
type DlDataResult struct {
	Slot slot.Point
	Tbs  [][]byte
}

type UlSchedResult struct {
	Slot       slot.Point
	NofPuschs  int
	NofPucchs  int
	NofPrachs  int
	NofSrsPdus int
}

// CellResultNotifier receives the results of one cell.
type CellResultNotifier interface {
	OnNewDownlinkSchedulerResults(res DlSchedResult)
	OnNewDownlinkData(res DlDataResult)
	OnNewUplinkSchedulerResults(res UlSchedResult)
	OnCellResultsCompletion(sl slot.Point)
}
