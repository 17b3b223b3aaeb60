// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package pdsch

import (
	"github.com/omec-project/gnb/phy/precoding"
	"github.com/pkg/errors"
)

const (
	maxNofPrbs  = 275
	maxNId      = 1023
	maxCodeword = 1
)

// Validate reports the first reason a PDU cannot be processed.
func Validate(pdu *PDU) error {
	if !pdu.Slot.Valid() {
		return errors.New("invalid slot")
	}
	if pdu.BwpSizeRb < 1 || pdu.BwpStartRb < 0 || pdu.BwpStartRb+pdu.BwpSizeRb > maxNofPrbs {
		return errors.Errorf("invalid BWP start %d size %d", pdu.BwpStartRb, pdu.BwpSizeRb)
	}
	if len(pdu.PrbMask) > pdu.BwpSizeRb {
		return errors.Errorf("allocation of %d blocks exceeds BWP size %d", len(pdu.PrbMask), pdu.BwpSizeRb)
	}
	if pdu.NofAllocatedPrbs() == 0 {
		return errors.New("empty frequency allocation")
	}
	if pdu.StartSymbol < 0 || pdu.NofSymbols < 1 || pdu.StartSymbol+pdu.NofSymbols > len(pdu.DmrsSymbols) {
		return errors.Errorf("invalid time allocation start %d length %d", pdu.StartSymbol, pdu.NofSymbols)
	}

	if !pdu.DmrsType.Valid() {
		return errors.Errorf("invalid DM-RS type %d", pdu.DmrsType)
	}
	nofDmrsSymbols := 0
	for s, used := range pdu.DmrsSymbols {
		if !used {
			continue
		}
		if s < pdu.StartSymbol || s >= pdu.StartSymbol+pdu.NofSymbols {
			return errors.Errorf("DM-RS symbol %d outside the allocation", s)
		}
		nofDmrsSymbols++
	}
	if nofDmrsSymbols == 0 {
		return errors.New("no DM-RS symbol")
	}
	if pdu.NofCdmGroupsWithoutData < 1 || pdu.NofCdmGroupsWithoutData > pdu.DmrsType.NofCdmGroups() {
		return errors.Errorf("invalid number of CDM groups without data %d", pdu.NofCdmGroupsWithoutData)
	}

	nofLayers := pdu.Precoding.NofLayers()
	if pdu.Precoding.IsZero() || nofLayers > precoding.MaxNofLayers {
		return errors.Errorf("invalid number of layers %d", nofLayers)
	}
	if len(pdu.Ports) != nofLayers {
		return errors.Errorf("%d DM-RS ports for %d layers", len(pdu.Ports), nofLayers)
	}
	seen := make(map[int]bool, len(pdu.Ports))
	for _, port := range pdu.Ports {
		if port < 0 || port >= pdu.DmrsType.MaxPorts() || seen[port] {
			return errors.Errorf("invalid DM-RS port %d", port)
		}
		if pdu.DmrsType.CdmGroup(port) >= pdu.NofCdmGroupsWithoutData {
			return errors.Errorf("DM-RS port %d in a CDM group with data", port)
		}
		seen[port] = true
	}

	if pdu.NId > maxNId {
		return errors.Errorf("invalid scrambling identity %d", pdu.NId)
	}
	if len(pdu.Codewords) == 0 || len(pdu.Codewords) > maxCodeword {
		return errors.Errorf("unsupported number of codewords %d", len(pdu.Codewords))
	}
	for i, cw := range pdu.Codewords {
		if !cw.Modulation.Valid() {
			return errors.Errorf("codeword %d: invalid modulation %d", i, cw.Modulation)
		}
		if cw.Rv < 0 || cw.Rv > 3 {
			return errors.Errorf("codeword %d: invalid redundancy version %d", i, cw.Rv)
		}
		if !cw.BaseGraph.Valid() {
			return errors.Errorf("codeword %d: invalid base graph %d", i, cw.BaseGraph)
		}
		if cw.TbsLbrmBytes < 0 {
			return errors.Errorf("codeword %d: negative TBS LBRM", i)
		}
	}

	if pt := pdu.Ptrs; pt != nil {
		if pt.TimeDensity != 1 && pt.TimeDensity != 2 && pt.TimeDensity != 4 {
			return errors.Errorf("invalid PT-RS time density %d", pt.TimeDensity)
		}
		if pt.FreqDensity != 2 && pt.FreqDensity != 4 {
			return errors.Errorf("invalid PT-RS frequency density %d", pt.FreqDensity)
		}
		if pt.ReOffset < 0 || pt.ReOffset > 3 {
			return errors.Errorf("invalid PT-RS RE offset %d", pt.ReOffset)
		}
		if !seen[pt.DmrsPort] {
			return errors.Errorf("PT-RS port associated with unused DM-RS port %d", pt.DmrsPort)
		}
	}
	return nil
}
