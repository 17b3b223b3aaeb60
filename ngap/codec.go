// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package ngap

import (
	libNgap "github.com/omec-project/ngap"
	"github.com/omec-project/ngap/ngapType"
	"github.com/pkg/errors"
)

// Codec frames NGAP PDUs for the SCTP gateway.
type Codec struct{}

func (Codec) Encode(pdu *ngapType.NGAPPDU) ([]byte, error) {
	if pdu == nil {
		return nil, errors.New("nil NGAP PDU")
	}
	b, err := libNgap.Encoder(*pdu)
	if err != nil {
		return nil, errors.Wrap(err, "NGAP encode")
	}
	return b, nil
}

func (Codec) Decode(b []byte) (*ngapType.NGAPPDU, error) {
	pdu, err := libNgap.Decoder(b)
	if err != nil {
		return nil, errors.Wrap(err, "NGAP decode")
	}
	return pdu, nil
}

func (Codec) PPID() uint32 { return libNgap.PPID }
