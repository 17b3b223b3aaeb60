// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package f1u holds the types shared by the CU-UP and DU ends of the F1-U
// user plane interface.
package f1u

import (
	"fmt"
	"time"
)

// DefaultDlNotifPeriod is the default aggregation period of PDCP discard
// notifications sent towards the DU.
const DefaultDlNotifPeriod = 10 * time.Millisecond

// TunnelInfo is an UP transport layer information: the transport address and
// TEID of one end of a GTP-U tunnel.
type TunnelInfo struct {
	Addr string
	Teid uint32
}

func (t TunnelInfo) String() string {
	return fmt.Sprintf("%s/%#x", t.Addr, t.Teid)
}

// DrbId identifies a data radio bearer of a UE (1..32).
type DrbId uint8
