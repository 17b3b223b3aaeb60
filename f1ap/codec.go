// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package f1ap

import (
	"bytes"
	"encoding/gob"

	"github.com/pkg/errors"
)

var ErrInvalidPdu = errors.New("F1AP PDU must carry exactly one message")

// Codec frames F1AP PDUs for the F1-C association.
type Codec struct{}

func (Codec) Encode(pdu *Pdu) ([]byte, error) {
	if pdu == nil || pdu.nofMessages() != 1 {
		return nil, ErrInvalidPdu
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(pdu); err != nil {
		return nil, errors.Wrapf(err, "encode %s", pdu.Name())
	}
	return buf.Bytes(), nil
}

func (Codec) Decode(b []byte) (*Pdu, error) {
	pdu := &Pdu{}
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(pdu); err != nil {
		return nil, errors.Wrap(err, "decode F1AP PDU")
	}
	if pdu.nofMessages() != 1 {
		return nil, ErrInvalidPdu
	}
	return pdu, nil
}

func (Codec) PPID() uint32 { return PPID }
