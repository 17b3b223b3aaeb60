// SPDX-FileCopyrightText: 2024 Intel Corporation
// Copyright 2019 free5GC.org
//
// SPDX-License-Identifier: Apache-2.0

package util

import (
	"encoding/binary"
	"encoding/hex"
	"strings"

	"github.com/omec-project/aper"
	"github.com/omec-project/gnb/factory"
	"github.com/omec-project/gnb/logger"
	"github.com/omec-project/ngap/ngapType"
)

// nrCellIdBitLength is the size of the NR cell identity [TS 38.413 9.3.1.7].
const nrCellIdBitLength = 36

// PlmnIdToBytes encodes a PLMN in the 3-octet BCD form.
func PlmnIdToBytes(plmnId factory.PlmnId) (b [3]byte) {
	var hexString string
	mcc := strings.Split(plmnId.Mcc, "")
	mnc := strings.Split(plmnId.Mnc, "")
	if len(mcc) != 3 || (len(mnc) != 2 && len(mnc) != 3) {
		logger.UtilLog.Errorf("invalid PLMN %s-%s", plmnId.Mcc, plmnId.Mnc)
		return
	}
	if len(plmnId.Mnc) == 2 {
		hexString = mcc[1] + mcc[0] + "f" + mcc[2] + mnc[1] + mnc[0]
	} else {
		hexString = mcc[1] + mcc[0] + mnc[0] + mcc[2] + mnc[2] + mnc[1]
	}
	if _, err := hex.Decode(b[:], []byte(hexString)); err != nil {
		logger.UtilLog.Errorf("decode string error: %+v", err)
	}
	return
}

func PlmnIdToNgap(plmnId factory.PlmnId) (ngapPlmnId ngapType.PLMNIdentity) {
	b := PlmnIdToBytes(plmnId)
	ngapPlmnId.Value = b[:]
	return
}

// GnbIdToNgap left-aligns a gNB identity of bitLength bits (22..32).
func GnbIdToNgap(gnbId uint32, bitLength uint8) (ngapGnbId *aper.BitString) {
	ngapGnbId = new(aper.BitString)
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, gnbId<<(32-uint32(bitLength)))
	ngapGnbId.Bytes = buf[:(int(bitLength)+7)/8]
	ngapGnbId.BitLength = uint64(bitLength)
	return
}

// NrCellIdToNgap encodes the 36-bit NR cell identity.
func NrCellIdToNgap(nrCellId uint64) (id ngapType.NRCellIdentity) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, nrCellId<<(64-nrCellIdBitLength))
	id.Value = aper.BitString{Bytes: buf[:5], BitLength: nrCellIdBitLength}
	return
}

// TacToNgap encodes a 24-bit tracking area code.
func TacToNgap(tac uint32) (ngapTac ngapType.TAC) {
	ngapTac.Value = aper.OctetString{byte(tac >> 16), byte(tac >> 8), byte(tac)}
	return
}

// SnssaiToNgap encodes a slice; Sd is a hex string of 6 digits when set.
func SnssaiToNgap(snssai factory.Snssai) (ngapSnssai ngapType.SNSSAI) {
	ngapSnssai.SST.Value = aper.OctetString{snssai.Sst}
	if snssai.Sd != "" {
		sd, err := hex.DecodeString(snssai.Sd)
		if err != nil || len(sd) != 3 {
			logger.UtilLog.Errorf("invalid SD %q", snssai.Sd)
			return
		}
		ngapSnssai.SD = &ngapType.SD{Value: sd}
	}
	return
}
