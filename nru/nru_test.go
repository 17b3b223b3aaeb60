// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package nru

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func u32(v uint32) *uint32 { return &v }

func TestDlUserDataLayout(t *testing.T) {
	u := DlUserData{
		NruSn:         0x010203,
		DiscardBlocks: []DiscardBlock{{StartSn: 7, Size: 3}},
	}
	b, err := u.Encode()
	require.NoError(t, err)
	// header + SN + count + one block = 10 octets, padded to 4n-2
	assert.Equal(t, []byte{0x04, 0x00, 0x01, 0x02, 0x03, 0x01, 0x00, 0x00, 0x07, 0x03}, b)
	assert.Zero(t, (len(b)+2)%4)
}

func TestEncodedFramesArePadded(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		u := DlUserData{NruSn: rapid.Uint32Range(0, maxSn).Draw(t, "sn")}
		if rapid.Bool().Draw(t, "flush") {
			u.DlDiscardSn = u32(rapid.Uint32Range(0, maxSn).Draw(t, "flushSn"))
		}
		b, err := u.Encode()
		require.NoError(t, err)
		require.Zero(t, (len(b)+2)%4)
	})
}

func TestDlUserDataRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		u := DlUserData{
			NruSn:                       rapid.Uint32Range(0, maxSn).Draw(t, "sn"),
			ReportPolling:               rapid.Bool().Draw(t, "poll"),
			RequestOutOfSeqReport:       rapid.Bool().Draw(t, "oos"),
			UserDataExistence:           rapid.Bool().Draw(t, "exist"),
			AssistanceInfoReportPolling: rapid.Bool().Draw(t, "assist"),
			Retransmission:              rapid.Bool().Draw(t, "retx"),
		}
		n := rapid.IntRange(0, MaxNofDiscardBlocks).Draw(t, "nofBlocks")
		for i := 0; i < n; i++ {
			u.DiscardBlocks = append(u.DiscardBlocks, DiscardBlock{
				StartSn: rapid.Uint32Range(0, maxSn).Draw(t, "start"),
				Size:    rapid.Uint8Range(1, MaxDiscardBlockSize).Draw(t, "size"),
			})
		}
		if rapid.Bool().Draw(t, "report") {
			u.ReportDelivered = true
			u.DlReportSn = u32(rapid.Uint32Range(0, maxSn).Draw(t, "reportSn"))
		}

		b, err := u.Encode()
		require.NoError(t, err)
		got, err := DecodeDlUserData(b)
		require.NoError(t, err)
		assert.Equal(t, u, *got)
	})
}

func TestTooManyDiscardBlocks(t *testing.T) {
	u := DlUserData{DiscardBlocks: make([]DiscardBlock, MaxNofDiscardBlocks+1)}
	_, err := u.Encode()
	assert.Equal(t, ErrInvalidSize, errors.Cause(err))
}

func TestDataDeliveryStatusRoundTrip(t *testing.T) {
	cause := uint8(3)
	s := DataDeliveryStatus{
		FinalFrame:                    true,
		DesiredBufferSize:             100000,
		DesiredDataRate:               u32(5000),
		LostRanges:                    []LostRange{{Start: 3, End: 5}, {Start: 9, End: 9}},
		HighestDeliveredSn:            u32(42),
		HighestTransmittedSn:          u32(50),
		Cause:                         &cause,
		HighestDeliveredRetransmitted: u32(40),
		HighestRetransmitted:          u32(41),
	}
	b, err := s.Encode()
	require.NoError(t, err)
	require.Zero(t, (len(b)+2)%4)
	typ, err := PduType(b)
	require.NoError(t, err)
	assert.Equal(t, PduTypeDlDataDeliveryStatus, typ)

	got, err := DecodeDataDeliveryStatus(b)
	require.NoError(t, err)
	assert.Equal(t, s, *got)
}

func TestDecodeErrors(t *testing.T) {
	_, err := DecodeDlUserData([]byte{0x00, 0x00})
	assert.Equal(t, ErrTruncated, errors.Cause(err))

	// discard blocks flagged but missing
	_, err = DecodeDlUserData([]byte{0x04, 0x00, 0x00, 0x00, 0x01})
	assert.Equal(t, ErrTruncated, errors.Cause(err))

	s := DataDeliveryStatus{HighestDeliveredSn: u32(1)}
	b, err := s.Encode()
	require.NoError(t, err)
	_, err = DecodeDlUserData(b)
	assert.Equal(t, ErrPduType, errors.Cause(err))

	_, err = DecodeDataDeliveryStatus(b[:6])
	assert.Equal(t, ErrTruncated, errors.Cause(err))
}
