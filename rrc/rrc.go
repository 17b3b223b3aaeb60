// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package rrc encodes the RRC messages the CU-CP originates or inspects
// during connection establishment and NAS transport.
package rrc

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

type MessageType uint8

const (
	TypeRrcSetupRequest MessageType = iota + 1
	TypeRrcSetup
	TypeRrcReject
	TypeRrcSetupComplete
	TypeDlInformationTransfer
	TypeUlInformationTransfer
	TypeRrcRelease
)

const (
	// UeIdentityBitLength bounds the random UE identity of an RRC Setup Request.
	UeIdentityBitLength = 39

	EstablishmentCauseEmergency    uint8 = 0
	EstablishmentCauseMtAccess     uint8 = 2
	EstablishmentCauseMoSignalling uint8 = 3
	EstablishmentCauseMoData       uint8 = 4
	DefaultRejectWaitTime          uint8 = 16
	maxOctetStringLength                 = 0xffff
	ueIdentityMask                       = 1<<UeIdentityBitLength - 1
)

var (
	ErrTruncated   = errors.New("RRC message truncated")
	ErrUnknownType = errors.New("unknown RRC message type")
	ErrTooLong     = errors.New("RRC octet string too long")
)

// Message is any RRC message this package can encode.
type Message interface {
	Type() MessageType
	encode(w *writer)
	decode(r *reader)
}

type RrcSetupRequest struct {
	UeIdentity         uint64
	EstablishmentCause uint8
}

type RrcSetup struct {
	TransactionId   uint8
	MasterCellGroup []byte
}

type RrcReject struct {
	WaitTime uint8
}

type RrcSetupComplete struct {
	TransactionId       uint8
	SelectedPlmnId      uint8
	DedicatedNasMessage []byte
}

type DlInformationTransfer struct {
	TransactionId       uint8
	DedicatedNasMessage []byte
}

type UlInformationTransfer struct {
	DedicatedNasMessage []byte
}

type RrcRelease struct {
	TransactionId uint8
}

func (*RrcSetupRequest) Type() MessageType       { return TypeRrcSetupRequest }
func (*RrcSetup) Type() MessageType              { return TypeRrcSetup }
func (*RrcReject) Type() MessageType             { return TypeRrcReject }
func (*RrcSetupComplete) Type() MessageType      { return TypeRrcSetupComplete }
func (*DlInformationTransfer) Type() MessageType { return TypeDlInformationTransfer }
func (*UlInformationTransfer) Type() MessageType { return TypeUlInformationTransfer }
func (*RrcRelease) Type() MessageType            { return TypeRrcRelease }

func (m *RrcSetupRequest) encode(w *writer) {
	w.uint64(m.UeIdentity & ueIdentityMask)
	w.uint8(m.EstablishmentCause)
}

func (m *RrcSetupRequest) decode(r *reader) {
	m.UeIdentity = r.uint64() & ueIdentityMask
	m.EstablishmentCause = r.uint8()
}

func (m *RrcSetup) encode(w *writer) {
	w.uint8(m.TransactionId)
	w.octets(m.MasterCellGroup)
}

func (m *RrcSetup) decode(r *reader) {
	m.TransactionId = r.uint8()
	m.MasterCellGroup = r.octets()
}

func (m *RrcReject) encode(w *writer) { w.uint8(m.WaitTime) }
func (m *RrcReject) decode(r *reader) { m.WaitTime = r.uint8() }

func (m *RrcSetupComplete) encode(w *writer) {
	w.uint8(m.TransactionId)
	w.uint8(m.SelectedPlmnId)
	w.octets(m.DedicatedNasMessage)
}

func (m *RrcSetupComplete) decode(r *reader) {
	m.TransactionId = r.uint8()
	m.SelectedPlmnId = r.uint8()
	m.DedicatedNasMessage = r.octets()
}

func (m *DlInformationTransfer) encode(w *writer) {
	w.uint8(m.TransactionId)
	w.octets(m.DedicatedNasMessage)
}

func (m *DlInformationTransfer) decode(r *reader) {
	m.TransactionId = r.uint8()
	m.DedicatedNasMessage = r.octets()
}

func (m *UlInformationTransfer) encode(w *writer) { w.octets(m.DedicatedNasMessage) }
func (m *UlInformationTransfer) decode(r *reader) { m.DedicatedNasMessage = r.octets() }

func (m *RrcRelease) encode(w *writer) { w.uint8(m.TransactionId) }
func (m *RrcRelease) decode(r *reader) { m.TransactionId = r.uint8() }

// Encode serializes m with a one-octet message type prefix.
func Encode(m Message) ([]byte, error) {
	w := &writer{buf: []byte{byte(m.Type())}}
	m.encode(w)
	if w.err != nil {
		return nil, errors.Wrapf(w.err, "encode RRC message type %d", m.Type())
	}
	return w.buf, nil
}

// Decode parses a message produced by Encode.
func Decode(b []byte) (Message, error) {
	if len(b) == 0 {
		return nil, ErrTruncated
	}
	var m Message
	switch MessageType(b[0]) {
	case TypeRrcSetupRequest:
		m = &RrcSetupRequest{}
	case TypeRrcSetup:
		m = &RrcSetup{}
	case TypeRrcReject:
		m = &RrcReject{}
	case TypeRrcSetupComplete:
		m = &RrcSetupComplete{}
	case TypeDlInformationTransfer:
		m = &DlInformationTransfer{}
	case TypeUlInformationTransfer:
		m = &UlInformationTransfer{}
	case TypeRrcRelease:
		m = &RrcRelease{}
	default:
		return nil, errors.Wrapf(ErrUnknownType, "type %d", b[0])
	}
	r := &reader{buf: b[1:]}
	m.decode(r)
	if r.err != nil {
		return nil, r.err
	}
	return m, nil
}

type writer struct {
	buf []byte
	err error
}

func (w *writer) uint8(v uint8) { w.buf = append(w.buf, v) }

func (w *writer) uint64(v uint64) { w.buf = binary.BigEndian.AppendUint64(w.buf, v) }

func (w *writer) octets(v []byte) {
	if len(v) > maxOctetStringLength {
		w.err = ErrTooLong
		return
	}
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(len(v)))
	w.buf = append(w.buf, v...)
}

type reader struct {
	buf []byte
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.buf) < n {
		r.err = ErrTruncated
		return nil
	}
	b := r.buf[:n]
	r.buf = r.buf[n:]
	return b
}

func (r *reader) uint8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) uint64() uint64 {
	if b := r.take(8); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

func (r *reader) octets() []byte {
	l := r.take(2)
	if l == nil {
		return nil
	}
	b := r.take(int(binary.BigEndian.Uint16(l)))
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
