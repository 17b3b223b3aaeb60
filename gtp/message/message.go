// SPDX-FileCopyrightText: 2025 Intel Corporation
// Copyright 2019 free5GC.org
//
// SPDX-License-Identifier: Apache-2.0

package message

import (
	"encoding/hex"

	"github.com/omec-project/gnb/logger"
	"github.com/pkg/errors"
	"github.com/wmnsk/go-gtp/gtpv1/ie"
	"github.com/wmnsk/go-gtp/gtpv1/message"
)

// [TS 38.415] 5.5.2 Frame format for the PDU Session user plane protocol
const (
	DL_PDU_SESSION_INFORMATION_TYPE = 0x00
	UL_PDU_SESSION_INFORMATION_TYPE = 0x10
)

// ExtHeaderTypeNrRanContainer carries NR user plane frames on F1-U
// [TS 29.281] 5.2.1.
const ExtHeaderTypeNrRanContainer uint8 = 0x84

const (
	flagsVersion1 = 0x30
	flagExtension = 0x04
	flagSequence  = 0x02
)

// Packet is a received G-PDU with the extension headers the gNB understands
// already decoded.
type Packet struct {
	tPDU           *message.TPDU
	qos            bool
	rqi            bool
	qfi            uint8
	nrRanContainer []byte
}

func (p *Packet) GetPayload() []byte {
	if p.tPDU == nil {
		return nil
	}
	return p.tPDU.Payload
}

func (p *Packet) GetTEID() uint32 {
	if p.tPDU == nil {
		return 0
	}
	return p.tPDU.TEID()
}

func (p *Packet) GetExtensionHeader() []*message.ExtensionHeader {
	if p.tPDU == nil {
		return nil
	}
	return p.tPDU.ExtensionHeaders
}

// GetSequence returns the GTP-U sequence number, if the sender set one.
func (p *Packet) GetSequence() (uint16, bool) {
	if p.tPDU == nil || p.tPDU.Header.Flags&flagSequence == 0 {
		return 0, false
	}
	return p.tPDU.Header.SequenceNumber, true
}

// HasQoS returns true if a PDU Session Container was present.
func (p *Packet) HasQoS() bool {
	return p.qos
}

// GetQoSParameters returns QFI and RQI values.
func (p *Packet) GetQoSParameters() (uint8, bool) {
	return p.qfi, p.rqi
}

// GetNrRanContainer returns the NR-U frame, nil if absent.
func (p *Packet) GetNrRanContainer() []byte {
	return p.nrRanContainer
}

// Unmarshal wraps the TPDU and decodes its extension headers.
func (p *Packet) Unmarshal(pdu *message.TPDU) error {
	if pdu == nil {
		return errors.New("unmarshal error: nil TPDU")
	}
	p.tPDU = pdu
	if !p.tPDU.HasExtensionHeader() {
		return nil
	}
	return p.unmarshalExtensionHeader()
}

func (p *Packet) unmarshalExtensionHeader() error {
	known := false
	for _, eh := range p.tPDU.ExtensionHeaders {
		switch eh.Type {
		case message.ExtHeaderTypePDUSessionContainer:
			if len(eh.Content) < 2 {
				logger.GtpuLog.Errorf("extension header too short: got %d bytes", len(eh.Content))
				continue
			}
			known = true
			p.qos = true
			p.rqi = ((eh.Content[1] >> 6) & 0x1) == 1
			p.qfi = eh.Content[1] & 0x3F
		case ExtHeaderTypeNrRanContainer:
			known = true
			p.nrRanContainer = eh.Content
		default:
			logger.GtpuLog.Warnf("unsupported Extension Header Field Value: %x", eh.Type)
			continue
		}
		if logger.DebugEnabled() {
			logger.GtpuLog.Debugf("parsed Extension Header: Type=%x, Len=%d, Next Type=%d, Content Dump: %s",
				eh.Type, eh.Length, eh.NextType, hex.Dump(eh.Content))
		}
	}
	if !known {
		return errors.New("unmarshalExtensionHeader error: no supported container in ExtensionHeaders")
	}
	return nil
}

// Parse decodes a datagram. Non T-PDU messages are returned as is.
func Parse(b []byte) (message.Message, error) {
	msg, err := message.Parse(b)
	if err != nil {
		return nil, errors.Wrap(err, "parse GTP-U")
	}
	return msg, nil
}

func marshal(header *message.Header) ([]byte, error) {
	b := make([]byte, header.MarshalLen())
	if err := header.MarshalTo(b); err != nil {
		logger.GtpuLog.Errorf("go-gtp MarshalTo error: %+v", err)
		return nil, err
	}
	return b, nil
}

// BuildQoSGTPPacket creates an uplink N3 G-PDU with a PDU Session Container.
// A non-nil seq adds the sequence number.
func BuildQoSGTPPacket(teid uint32, qfi uint8, seq *uint16, payload []byte) ([]byte, error) {
	flags := uint8(flagsVersion1 | flagExtension)
	var sn uint16
	if seq != nil {
		flags |= flagSequence
		sn = *seq
	}
	header := message.NewHeader(flags, message.MsgTypeTPDU, teid, sn, payload).WithExtensionHeaders(
		message.NewExtensionHeader(
			message.ExtHeaderTypePDUSessionContainer,
			[]byte{UL_PDU_SESSION_INFORMATION_TYPE, qfi},
			message.ExtHeaderTypeNoMoreExtensionHeaders,
		),
	)
	return marshal(header)
}

// BuildNrUPacket creates an F1-U G-PDU carrying the NR-U frame in an NR RAN
// Container. The payload may be empty for frames without user data and the
// container may be empty for plain uplink data.
func BuildNrUPacket(teid uint32, container, payload []byte) ([]byte, error) {
	if len(container) == 0 {
		return marshal(message.NewHeader(flagsVersion1, message.MsgTypeTPDU, teid, 0, payload))
	}
	if (len(container)+2)%4 != 0 {
		return nil, errors.Errorf("NR RAN container of %d bytes is not padded", len(container))
	}
	header := message.NewHeader(flagsVersion1|flagExtension, message.MsgTypeTPDU, teid, 0, payload).WithExtensionHeaders(
		message.NewExtensionHeader(
			ExtHeaderTypeNrRanContainer,
			container,
			message.ExtHeaderTypeNoMoreExtensionHeaders,
		),
	)
	return marshal(header)
}

// BuildEchoResponse answers a path management echo request.
func BuildEchoResponse(seq uint16) ([]byte, error) {
	rsp := message.NewEchoResponse(seq, ie.NewRecovery(0))
	b := make([]byte, rsp.MarshalLen())
	if err := rsp.MarshalTo(b); err != nil {
		return nil, errors.Wrap(err, "marshal echo response")
	}
	return b, nil
}
