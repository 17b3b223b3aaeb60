// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package f1ap

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecRoundTrip(t *testing.T) {
	pdus := []*Pdu{
		{F1SetupRequest: &F1SetupRequest{
			TransactionId: 3,
			GnbDuId:       0x55,
			GnbDuName:     "du-1",
			ServedCells: []ServedCell{{
				NrCgi: NrCgi{Plmn: [3]byte{0x00, 0xf1, 0x10}, NrCellId: 0x66c000},
				Pci:   1,
				Tac:   7,
			}},
		}},
		{F1SetupFailure: &F1SetupFailure{TransactionId: 3, Cause: Cause{Group: CauseMisc, Value: 1}}},
		{InitialUlRrcMessageTransfer: &InitialUlRrcMessageTransfer{
			GnbDuUeF1apId: 9,
			CRnti:         0x4601,
			RrcContainer:  []byte{1, 2, 3},
		}},
		{UeContextReleaseCommand: &UeContextReleaseCommand{
			GnbCuUeF1apId: 4,
			GnbDuUeF1apId: 9,
			RrcContainer:  []byte{3, 16},
			SrbId:         SrbId0,
		}},
		{UeContextReleaseComplete: &UeContextReleaseComplete{GnbCuUeF1apId: 4, GnbDuUeF1apId: 9}},
	}
	var c Codec
	for _, pdu := range pdus {
		t.Run(pdu.Name(), func(t *testing.T) {
			b, err := c.Encode(pdu)
			require.NoError(t, err)
			got, err := c.Decode(b)
			require.NoError(t, err)
			assert.Equal(t, pdu, got)
		})
	}
}

func TestCodecRejectsAmbiguousPdu(t *testing.T) {
	var c Codec
	_, err := c.Encode(&Pdu{})
	assert.Equal(t, ErrInvalidPdu, errors.Cause(err))

	_, err = c.Encode(&Pdu{
		F1SetupResponse: &F1SetupResponse{},
		F1SetupFailure:  &F1SetupFailure{},
	})
	assert.Equal(t, ErrInvalidPdu, errors.Cause(err))

	_, err = c.Decode([]byte{0xde, 0xad})
	assert.Error(t, err)
}

func TestNrCgiGnbId(t *testing.T) {
	// gNB id 411 with 22 bits followed by a 14-bit cell id of 5
	cgi := NrCgi{NrCellId: 411<<14 | 5}
	assert.Equal(t, uint32(411), cgi.GnbId(22))
	assert.Equal(t, uint32(411<<2), cgi.GnbId(24))
}
