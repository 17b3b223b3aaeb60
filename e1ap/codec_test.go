// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package e1ap

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecRoundTrip(t *testing.T) {
	req := &Pdu{BearerContextSetupRequest: &BearerContextSetupRequest{
		GnbCuCpUeE1apId: 12,
		Security:        SecurityInfo{CipheringAlgo: 2, IntegrityAlgo: 2, Key: []byte{1, 2}},
		PduSessions: []PduSessionToSetup{{
			PduSessionId:  1,
			Snssai:        Snssai{Sst: 1, Sd: 0x010203},
			NgUlUpTnlInfo: UpTnlInfo{Addr: "10.0.0.1", Port: 2152, Teid: 0x10},
			Drbs:          []DrbToSetup{{DrbId: 1, QosFlows: []uint8{9}}},
		}},
	}}
	var c Codec
	b, err := c.Encode(req)
	require.NoError(t, err)
	got, err := c.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, req, got)
	assert.Equal(t, "BearerContextSetupRequest", got.Name())
}

func TestCodecRejectsEmptyPdu(t *testing.T) {
	var c Codec
	_, err := c.Encode(&Pdu{})
	assert.Equal(t, ErrInvalidPdu, errors.Cause(err))
}

func TestUpTnlInfoString(t *testing.T) {
	assert.Equal(t, "10.0.0.1/0x10", UpTnlInfo{Addr: "10.0.0.1", Teid: 0x10}.String())
	assert.Equal(t, "10.0.0.1:2152/0x10", UpTnlInfo{Addr: "10.0.0.1", Port: 2152, Teid: 0x10}.String())
}
