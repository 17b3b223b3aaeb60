// SPDX-FileCopyrightText: 2024 Intel Corporation
// Copyright 2019 free5GC.org
//
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"sync/atomic"
)

// NgState is the state of the NG association towards the AMF.
type NgState int32

const (
	NgStateDisconnected NgState = iota
	NgStateConnecting
	NgStateConnected
	NgStateFailed
)

func (s NgState) String() string {
	switch s {
	case NgStateDisconnected:
		return "disconnected"
	case NgStateConnecting:
		return "connecting"
	case NgStateConnected:
		return "connected"
	case NgStateFailed:
		return "failed"
	}
	return "unknown"
}

// CuCpContext is the state of a CU-CP. Except for the NG state, which is
// readable from any goroutine, it is owned by the CU-CP control executor.
type CuCpContext struct {
	Amf     *AmfContext
	Dus     *DuRepository
	CuUps   *CuUpRepository
	Ues     *UeManager
	ngState atomic.Int32
}

func NewCuCpContext(maxNofDus, maxNofCuUps, maxNofUes, ueTaskQueueSize int) *CuCpContext {
	return &CuCpContext{
		Dus:   NewDuRepository(maxNofDus),
		CuUps: NewCuUpRepository(maxNofCuUps),
		Ues:   NewUeManager(maxNofUes, ueTaskQueueSize),
	}
}

func (c *CuCpContext) NgState() NgState {
	return NgState(c.ngState.Load())
}

func (c *CuCpContext) SetNgState(s NgState) {
	c.ngState.Store(int32(s))
}

// AmfConnected reports whether NG Setup succeeded and the association is up.
func (c *CuCpContext) AmfConnected() bool {
	return c.NgState() == NgStateConnected
}

// MetricsReport snapshots the DUs and UEs.
func (c *CuCpContext) MetricsReport() CuCpMetrics {
	return BuildMetricsReport(c.Dus, c.CuUps, c.Ues)
}
