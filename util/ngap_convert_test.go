// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package util

import (
	"testing"

	"github.com/omec-project/aper"
	"github.com/omec-project/gnb/factory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlmnIdToNgap(t *testing.T) {
	assert.Equal(t, aper.OctetString{0x00, 0xf1, 0x10}, PlmnIdToNgap(factory.PlmnId{Mcc: "001", Mnc: "01"}).Value)
	assert.Equal(t, aper.OctetString{0x13, 0x40, 0x01}, PlmnIdToNgap(factory.PlmnId{Mcc: "310", Mnc: "410"}).Value)
	assert.Equal(t, [3]byte{}, PlmnIdToBytes(factory.PlmnId{Mcc: "1", Mnc: "01"}))
}

func TestGnbIdToNgap(t *testing.T) {
	id := GnbIdToNgap(411, 22)
	assert.Equal(t, uint64(22), id.BitLength)
	// 411 << 10 = 0x00066c00
	assert.Equal(t, []byte{0x00, 0x06, 0x6c}, id.Bytes)

	id = GnbIdToNgap(0xdeadbeef, 32)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, id.Bytes)
}

func TestNrCellIdToNgap(t *testing.T) {
	id := NrCellIdToNgap(0x123456789)
	assert.Equal(t, uint64(36), id.Value.BitLength)
	assert.Equal(t, []byte{0x12, 0x34, 0x56, 0x78, 0x90}, id.Value.Bytes)
}

func TestTacAndSnssai(t *testing.T) {
	assert.Equal(t, aper.OctetString{0x00, 0x00, 0x07}, TacToNgap(7).Value)

	s := SnssaiToNgap(factory.Snssai{Sst: 1, Sd: "010203"})
	assert.Equal(t, aper.OctetString{1}, s.SST.Value)
	require.NotNil(t, s.SD)
	assert.Equal(t, aper.OctetString{1, 2, 3}, s.SD.Value)
	assert.Nil(t, SnssaiToNgap(factory.Snssai{Sst: 1}).SD)
}
