// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package mac

import (
	"sync"

	"github.com/omec-project/gnb/logger"
	"github.com/omec-project/gnb/support/slot"
)

type resultKind int

const (
	kindDlSched resultKind = iota
	kindDlData
	kindUlSched
	kindCompletion
	nofResultKinds
)

var kindNames = [nofResultKinds]string{"DL scheduling", "DL data", "UL scheduling", "completion"}

// CellResultChecker forwards at most one result of each kind per slot to
// the next notifier. Repeated results are logged and dropped.
type CellResultChecker struct {
	mu         sync.Mutex
	cellIndex  int
	next       CellResultNotifier
	last       [nofResultKinds]slot.Point
	violations int
}

func NewCellResultChecker(cellIndex int, next CellResultNotifier) *CellResultChecker {
	c := &CellResultChecker{cellIndex: cellIndex, next: next}
	for i := range c.last {
		c.last[i] = slot.Invalid
	}
	return c
}

func (c *CellResultChecker) admit(kind resultKind, sl slot.Point) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last[kind] == sl {
		c.violations++
		logger.AppLog.Errorf("cell=%d slot=%s: %s result already notified", c.cellIndex, sl, kindNames[kind])
		return false
	}
	c.last[kind] = sl
	return true
}

// Violations counts the dropped results.
func (c *CellResultChecker) Violations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.violations
}

func (c *CellResultChecker) OnNewDownlinkSchedulerResults(res DlSchedResult) {
	if c.admit(kindDlSched, res.Slot) {
		c.next.OnNewDownlinkSchedulerResults(res)
	}
}

func (c *CellResultChecker) OnNewDownlinkData(res DlDataResult) {
	if c.admit(kindDlData, res.Slot) {
		c.next.OnNewDownlinkData(res)
	}
}

func (c *CellResultChecker) OnNewUplinkSchedulerResults(res UlSchedResult) {
	if c.admit(kindUlSched, res.Slot) {
		c.next.OnNewUplinkSchedulerResults(res)
	}
}

func (c *CellResultChecker) OnCellResultsCompletion(sl slot.Point) {
	if c.admit(kindCompletion, sl) {
		c.next.OnCellResultsCompletion(sl)
	}
}
