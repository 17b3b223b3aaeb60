// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package nru encodes and decodes the NR user plane protocol frames (TS 38.425)
// exchanged between CU-UP and DU inside the GTP-U NR RAN Container extension
// header.
package nru

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

const (
	PduTypeDlUserData           uint8 = 0
	PduTypeDlDataDeliveryStatus uint8 = 1

	// MaxNofDiscardBlocks bounds the discard blocks carried by one frame.
	MaxNofDiscardBlocks = 16
	// MaxDiscardBlockSize is the largest number of consecutive SNs in a block.
	MaxDiscardBlockSize = 255
	MaxNofLostRanges    = 255

	maxSn = 1<<24 - 1
)

var (
	ErrTruncated   = errors.New("truncated NR-U frame")
	ErrPduType     = errors.New("unexpected NR-U PDU type")
	ErrInvalidSize = errors.New("invalid NR-U field size")
)

// DiscardBlock is a run of Size consecutive PDCP SNs starting at StartSn.
type DiscardBlock struct {
	StartSn uint32
	Size    uint8
}

// DlUserData is the DL USER DATA frame (PDU type 0).
type DlUserData struct {
	NruSn                       uint32
	ReportPolling               bool
	RequestOutOfSeqReport       bool
	ReportDelivered             bool
	UserDataExistence           bool
	AssistanceInfoReportPolling bool
	Retransmission              bool
	DlDiscardSn                 *uint32 // DL flush
	DiscardBlocks               []DiscardBlock
	DlReportSn                  *uint32
}

// LostRange is an inclusive range of NR-U SNs reported lost by the DU.
type LostRange struct {
	Start uint32
	End   uint32
}

// DataDeliveryStatus is the DL DATA DELIVERY STATUS frame (PDU type 1).
type DataDeliveryStatus struct {
	FinalFrame                    bool
	DesiredBufferSize             uint32
	DesiredDataRate               *uint32
	LostRanges                    []LostRange
	HighestDeliveredSn            *uint32
	HighestTransmittedSn          *uint32
	Cause                         *uint8
	HighestDeliveredRetransmitted *uint32
	HighestRetransmitted          *uint32
}

// DlMessage is what the CU-UP sends towards the DU: an optional PDCP PDU plus
// the DL USER DATA frame.
type DlMessage struct {
	TPdu     []byte
	PdcpSn   uint32
	UserData DlUserData
}

// UlMessage is what the DU sends towards the CU-UP: an optional PDCP PDU and
// an optional delivery status report.
type UlMessage struct {
	TPdu               []byte
	DataDeliveryStatus *DataDeliveryStatus
}

func putSn(b []byte, sn uint32) []byte {
	return append(b, byte(sn>>16), byte(sn>>8), byte(sn))
}

func getSn(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// pad extends b so that the extension header holding it ends on a 4 octet
// boundary. The header adds one length octet and one next-type octet.
func pad(b []byte) []byte {
	for (len(b)+2)%4 != 0 {
		b = append(b, 0)
	}
	return b
}

func boolBit(v bool, bit byte) byte {
	if v {
		return bit
	}
	return 0
}

// Encode serializes the frame, padded for an extension header.
func (u *DlUserData) Encode() ([]byte, error) {
	if len(u.DiscardBlocks) > MaxNofDiscardBlocks {
		return nil, errors.Wrapf(ErrInvalidSize, "%d discard blocks", len(u.DiscardBlocks))
	}
	if u.NruSn > maxSn {
		return nil, errors.Wrapf(ErrInvalidSize, "NR-U SN %d", u.NruSn)
	}
	b := make([]byte, 0, 16+4*len(u.DiscardBlocks))
	b = append(b,
		PduTypeDlUserData<<4|
			boolBit(len(u.DiscardBlocks) > 0, 0x04)|
			boolBit(u.DlDiscardSn != nil, 0x02)|
			boolBit(u.ReportPolling, 0x01),
		boolBit(u.RequestOutOfSeqReport, 0x10)|
			boolBit(u.ReportDelivered, 0x08)|
			boolBit(u.UserDataExistence, 0x04)|
			boolBit(u.AssistanceInfoReportPolling, 0x02)|
			boolBit(u.Retransmission, 0x01))
	b = putSn(b, u.NruSn)
	if u.DlDiscardSn != nil {
		b = putSn(b, *u.DlDiscardSn)
	}
	if len(u.DiscardBlocks) > 0 {
		b = append(b, byte(len(u.DiscardBlocks)))
		for _, blk := range u.DiscardBlocks {
			if blk.Size == 0 {
				return nil, errors.Wrapf(ErrInvalidSize, "empty discard block at SN %d", blk.StartSn)
			}
			b = putSn(b, blk.StartSn)
			b = append(b, blk.Size)
		}
	}
	if u.ReportDelivered {
		var sn uint32
		if u.DlReportSn != nil {
			sn = *u.DlReportSn
		}
		b = putSn(b, sn)
	}
	return pad(b), nil
}

// DecodeDlUserData parses a DL USER DATA frame. Trailing padding is ignored.
func DecodeDlUserData(b []byte) (*DlUserData, error) {
	if len(b) < 5 {
		return nil, ErrTruncated
	}
	if t := b[0] >> 4; t != PduTypeDlUserData {
		return nil, errors.Wrapf(ErrPduType, "type %d", t)
	}
	u := &DlUserData{
		ReportPolling:               b[0]&0x01 != 0,
		RequestOutOfSeqReport:       b[1]&0x10 != 0,
		ReportDelivered:             b[1]&0x08 != 0,
		UserDataExistence:           b[1]&0x04 != 0,
		AssistanceInfoReportPolling: b[1]&0x02 != 0,
		Retransmission:              b[1]&0x01 != 0,
		NruSn:                       getSn(b[2:]),
	}
	hasBlocks, hasFlush := b[0]&0x04 != 0, b[0]&0x02 != 0
	rest := b[5:]
	if hasFlush {
		if len(rest) < 3 {
			return nil, errors.Wrap(ErrTruncated, "DL discard SN")
		}
		sn := getSn(rest)
		u.DlDiscardSn = &sn
		rest = rest[3:]
	}
	if hasBlocks {
		if len(rest) < 1 {
			return nil, errors.Wrap(ErrTruncated, "discard block count")
		}
		n := int(rest[0])
		rest = rest[1:]
		if n == 0 || n > MaxNofDiscardBlocks {
			return nil, errors.Wrapf(ErrInvalidSize, "%d discard blocks", n)
		}
		if len(rest) < 4*n {
			return nil, errors.Wrap(ErrTruncated, "discard blocks")
		}
		u.DiscardBlocks = make([]DiscardBlock, n)
		for i := range u.DiscardBlocks {
			u.DiscardBlocks[i] = DiscardBlock{StartSn: getSn(rest), Size: rest[3]}
			rest = rest[4:]
		}
	}
	if u.ReportDelivered {
		if len(rest) < 3 {
			return nil, errors.Wrap(ErrTruncated, "DL report SN")
		}
		sn := getSn(rest)
		u.DlReportSn = &sn
	}
	return u, nil
}

// Encode serializes the delivery status, padded for an extension header.
func (s *DataDeliveryStatus) Encode() ([]byte, error) {
	if len(s.LostRanges) > MaxNofLostRanges {
		return nil, errors.Wrapf(ErrInvalidSize, "%d lost ranges", len(s.LostRanges))
	}
	b := make([]byte, 0, 32+6*len(s.LostRanges))
	b = append(b,
		PduTypeDlDataDeliveryStatus<<4|
			boolBit(s.HighestTransmittedSn != nil, 0x08)|
			boolBit(s.HighestDeliveredSn != nil, 0x04)|
			boolBit(s.FinalFrame, 0x02)|
			boolBit(len(s.LostRanges) > 0, 0x01),
		boolBit(s.DesiredDataRate != nil, 0x10)|
			boolBit(s.HighestRetransmitted != nil, 0x08)|
			boolBit(s.HighestDeliveredRetransmitted != nil, 0x04)|
			boolBit(s.Cause != nil, 0x02))
	b = binary.BigEndian.AppendUint32(b, s.DesiredBufferSize)
	if s.DesiredDataRate != nil {
		b = binary.BigEndian.AppendUint32(b, *s.DesiredDataRate)
	}
	if len(s.LostRanges) > 0 {
		b = append(b, byte(len(s.LostRanges)))
		for _, r := range s.LostRanges {
			b = putSn(b, r.Start)
			b = putSn(b, r.End)
		}
	}
	if s.HighestDeliveredSn != nil {
		b = putSn(b, *s.HighestDeliveredSn)
	}
	if s.HighestTransmittedSn != nil {
		b = putSn(b, *s.HighestTransmittedSn)
	}
	if s.Cause != nil {
		b = append(b, *s.Cause)
	}
	if s.HighestDeliveredRetransmitted != nil {
		b = putSn(b, *s.HighestDeliveredRetransmitted)
	}
	if s.HighestRetransmitted != nil {
		b = putSn(b, *s.HighestRetransmitted)
	}
	return pad(b), nil
}

func takeSn(rest *[]byte, what string) (*uint32, error) {
	if len(*rest) < 3 {
		return nil, errors.Wrap(ErrTruncated, what)
	}
	sn := getSn(*rest)
	*rest = (*rest)[3:]
	return &sn, nil
}

// DecodeDataDeliveryStatus parses a DL DATA DELIVERY STATUS frame.
func DecodeDataDeliveryStatus(b []byte) (*DataDeliveryStatus, error) {
	if len(b) < 6 {
		return nil, ErrTruncated
	}
	if t := b[0] >> 4; t != PduTypeDlDataDeliveryStatus {
		return nil, errors.Wrapf(ErrPduType, "type %d", t)
	}
	s := &DataDeliveryStatus{
		FinalFrame:        b[0]&0x02 != 0,
		DesiredBufferSize: binary.BigEndian.Uint32(b[2:]),
	}
	rest := b[6:]
	var err error
	if b[1]&0x10 != 0 {
		if len(rest) < 4 {
			return nil, errors.Wrap(ErrTruncated, "desired data rate")
		}
		rate := binary.BigEndian.Uint32(rest)
		s.DesiredDataRate = &rate
		rest = rest[4:]
	}
	if b[0]&0x01 != 0 {
		if len(rest) < 1 {
			return nil, errors.Wrap(ErrTruncated, "lost range count")
		}
		n := int(rest[0])
		rest = rest[1:]
		if len(rest) < 6*n {
			return nil, errors.Wrap(ErrTruncated, "lost ranges")
		}
		s.LostRanges = make([]LostRange, n)
		for i := range s.LostRanges {
			s.LostRanges[i] = LostRange{Start: getSn(rest), End: getSn(rest[3:])}
			rest = rest[6:]
		}
	}
	if b[0]&0x04 != 0 {
		if s.HighestDeliveredSn, err = takeSn(&rest, "highest delivered SN"); err != nil {
			return nil, err
		}
	}
	if b[0]&0x08 != 0 {
		if s.HighestTransmittedSn, err = takeSn(&rest, "highest transmitted SN"); err != nil {
			return nil, err
		}
	}
	if b[1]&0x02 != 0 {
		if len(rest) < 1 {
			return nil, errors.Wrap(ErrTruncated, "cause")
		}
		cause := rest[0]
		s.Cause = &cause
		rest = rest[1:]
	}
	if b[1]&0x04 != 0 {
		if s.HighestDeliveredRetransmitted, err = takeSn(&rest, "highest delivered retransmitted SN"); err != nil {
			return nil, err
		}
	}
	if b[1]&0x08 != 0 {
		if s.HighestRetransmitted, err = takeSn(&rest, "highest retransmitted SN"); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// PduType returns the PDU type of an encoded frame.
func PduType(b []byte) (uint8, error) {
	if len(b) == 0 {
		return 0, ErrTruncated
	}
	return b[0] >> 4, nil
}
