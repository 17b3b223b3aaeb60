// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package local connects CU-UP and DU bearers living in the same process.
package local

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/omec-project/gnb/f1u"
	"github.com/omec-project/gnb/f1u/cuup"
	"github.com/omec-project/gnb/f1u/du"
	"github.com/omec-project/gnb/logger"
	"github.com/omec-project/gnb/nru"
	"github.com/omec-project/gnb/support/executor"
	"github.com/omec-project/gnb/support/timers"
	"github.com/pkg/errors"
)

var (
	ErrTeidInUse   = errors.New("TEID already in use")
	ErrUnknownTeid = errors.New("unknown TEID")
)

type cuEntry struct {
	bearer *cuup.Bearer
	exec   executor.TaskExecutor
	dlTeid uint32
	linked bool
}

type duEntry struct {
	bearer *du.Bearer
	exec   executor.TaskExecutor
	ulTeid uint32
}

// Connector is both the CU-UP and the DU F1-U gateway. Messages cross over
// on the executor of the receiving bearer.
type Connector struct {
	mu      sync.Mutex
	cus     map[uint32]*cuEntry
	dus     map[uint32]*duEntry
	dropped atomic.Uint64
}

var (
	_ cuup.Gateway = (*Connector)(nil)
	_ du.Gateway   = (*Connector)(nil)
)

func NewConnector() *Connector {
	return &Connector{
		cus: make(map[uint32]*cuEntry),
		dus: make(map[uint32]*duEntry),
	}
}

type cuTx struct {
	c      *Connector
	ulTeid uint32
}

func (t cuTx) OnNewPdu(msg nru.DlMessage) {
	t.c.mu.Lock()
	var target *duEntry
	if cu, ok := t.c.cus[t.ulTeid]; ok && cu.linked {
		target = t.c.dus[cu.dlTeid]
	}
	t.c.mu.Unlock()
	if target == nil {
		logger.F1uLog.Warnf("no DU bearer attached to UL TEID %#x, dropping DL message", t.ulTeid)
		return
	}
	t.c.deliver(target.exec, func() { target.bearer.HandlePdu(msg) }, "DL", t.ulTeid)
}

type duTx struct {
	c      *Connector
	ulTeid uint32
}

func (t duTx) OnNewPdu(msg nru.UlMessage) {
	t.c.mu.Lock()
	target := t.c.cus[t.ulTeid]
	t.c.mu.Unlock()
	if target == nil {
		logger.F1uLog.Warnf("no CU-UP bearer for UL TEID %#x, dropping UL message", t.ulTeid)
		return
	}
	t.c.deliver(target.exec, func() { target.bearer.HandlePdu(msg) }, "UL", t.ulTeid)
}

// deliver runs task on the receiving bearer's executor. A message the
// executor refuses is dropped: bearer methods run on their UE executor only.
func (c *Connector) deliver(exec executor.TaskExecutor, task executor.Task, dir string, ulTeid uint32) {
	if exec == nil {
		task()
		return
	}
	if !exec.Execute(task) {
		c.dropped.Add(1)
		logger.F1uLog.Warnf("executor of UL TEID %#x is full, dropping %s message", ulTeid, dir)
	}
}

// Dropped returns the number of messages dropped because the receiving
// bearer's executor was full.
func (c *Connector) Dropped() uint64 {
	return c.dropped.Load()
}

func (c *Connector) CreateCuBearer(
	ueIndex uint32,
	drbId f1u.DrbId,
	ulTnl f1u.TunnelInfo,
	rxDelivery cuup.RxDeliveryNotifier,
	rxSdu cuup.RxSduNotifier,
	exec executor.TaskExecutor,
	tm *timers.Manager,
	dlNotifPeriod time.Duration,
) (*cuup.Bearer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.cus[ulTnl.Teid]; ok {
		return nil, errors.Wrapf(ErrTeidInUse, "UL %v", ulTnl)
	}
	b := cuup.NewBearer(ueIndex, drbId, ulTnl, cuTx{c: c, ulTeid: ulTnl.Teid}, rxDelivery, rxSdu,
		tm.Create(exec), c, dlNotifPeriod)
	c.cus[ulTnl.Teid] = &cuEntry{bearer: b, exec: exec}
	logger.F1uLog.Infof("local CU-UP bearer created, UL %v", ulTnl)
	return b, nil
}

func (c *Connector) AttachDlTeid(ulTnl, dlTnl f1u.TunnelInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cu, ok := c.cus[ulTnl.Teid]
	if !ok {
		return errors.Wrapf(ErrUnknownTeid, "UL %v", ulTnl)
	}
	cu.dlTeid, cu.linked = dlTnl.Teid, true
	logger.F1uLog.Infof("attached DL %v to UL %v", dlTnl, ulTnl)
	return nil
}

func (c *Connector) DisconnectCuBearer(ulTnl f1u.TunnelInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.cus[ulTnl.Teid]; !ok {
		logger.F1uLog.Warnf("disconnect of unknown UL %v", ulTnl)
		return
	}
	delete(c.cus, ulTnl.Teid)
	logger.F1uLog.Infof("local CU-UP bearer disconnected, UL %v", ulTnl)
}

func (c *Connector) CreateDuBearer(
	ueIndex uint32,
	drbId f1u.DrbId,
	dlTnl, ulTnl f1u.TunnelInfo,
	rx du.RxSduNotifier,
	exec executor.TaskExecutor,
) (*du.Bearer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.dus[dlTnl.Teid]; ok {
		return nil, errors.Wrapf(ErrTeidInUse, "DL %v", dlTnl)
	}
	b := du.NewBearer(ueIndex, drbId, dlTnl, rx, duTx{c: c, ulTeid: ulTnl.Teid})
	c.dus[dlTnl.Teid] = &duEntry{bearer: b, exec: exec, ulTeid: ulTnl.Teid}
	logger.F1uLog.Infof("local DU bearer created, DL %v UL %v", dlTnl, ulTnl)
	return b, nil
}

func (c *Connector) RemoveDuBearer(dlTnl f1u.TunnelInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.dus[dlTnl.Teid]; !ok {
		logger.F1uLog.Warnf("removal of unknown DL %v", dlTnl)
		return
	}
	delete(c.dus, dlTnl.Teid)
}

// NofCuBearers returns the number of registered CU-UP bearers.
func (c *Connector) NofCuBearers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cus)
}
