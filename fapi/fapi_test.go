// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package fapi

import (
	"testing"

	"github.com/omec-project/gnb/mac"
	"github.com/omec-project/gnb/phy/downlink"
	"github.com/omec-project/gnb/phy/grid"
	"github.com/omec-project/gnb/phy/pdsch"
	"github.com/omec-project/gnb/support/slot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotIndicationIsShiftedByL2Ahead(t *testing.T) {
	gw := NewBufferedGateway()
	d := NewBufferedSlotTimeNotifier(4, 1, gw)
	var got []SlotIndication
	d.SetSlotTimeNotifier(SlotTimeNotifierFunc(func(msg SlotIndication) { got = append(got, msg) }))

	d.OnSlotIndication(SlotIndication{Sfn: 10, Slot: 3})
	d.OnSlotIndication(SlotIndication{Sfn: 1023, Slot: 18})
	require.Len(t, got, 2)
	assert.Equal(t, SlotIndication{Sfn: 10, Slot: 7}, got[0])
	assert.Equal(t, SlotIndication{Sfn: 0, Slot: 2}, got[1], "wraps at the end of the SFN cycle")
}

func TestCachedMessagesForwardedOnTheirSlot(t *testing.T) {
	gw := NewBufferedGateway()
	d := NewBufferedSlotTimeNotifier(2, 0, gw)
	base := slot.NewPoint(0, 5, 0)

	var delivered []slot.Point
	for _, sl := range []slot.Point{base.Add(1), base.Add(2)} {
		gw.SendMessage(Message{Slot: sl, Deliver: func() { delivered = append(delivered, sl) }})
	}
	d.OnSlotIndication(NewSlotIndication(base))
	assert.Empty(t, delivered)
	d.OnSlotIndication(NewSlotIndication(base.Add(1)))
	assert.Equal(t, []slot.Point{base.Add(1)}, delivered)

	gw.SendMessage(Message{Slot: base, Deliver: func() { t.Fatal("late message delivered") }})
	assert.Equal(t, 1, gw.Dropped())
	d.OnSlotIndication(NewSlotIndication(base.Add(2)))
	assert.Len(t, delivered, 2)
	assert.Equal(t, 1, DefaultL2NofSlotsAhead(0))
	assert.Equal(t, 2, DefaultL2NofSlotsAhead(1))
}

type recordingPdsch struct {
	pdus []pdsch.PDU
}

func (r *recordingPdsch) Process(_ grid.Writer, n pdsch.Notifier, _ [][]byte, pdu pdsch.PDU) {
	r.pdus = append(r.pdus, pdu)
	n.OnFinishProcessing()
}

func TestPhyAdaptorRunsSlotThroughDownlinkProcessor(t *testing.T) {
	gw := NewBufferedGateway()
	d := NewBufferedSlotTimeNotifier(1, 1, gw)
	rec := &recordingPdsch{}
	var ready []slot.Point
	proc := downlink.NewProcessor(rec, downlink.GatewayFunc(func(sl slot.Point, _ *grid.Grid) { ready = append(ready, sl) }))
	adaptor := NewPhyAdaptor(gw, downlink.NewPool([]*downlink.Processor{proc}), func(slot.Point) *grid.Grid {
		return grid.New(1, 14, 10)
	})
	checker := mac.NewCellResultChecker(0, adaptor)

	sl := slot.NewPoint(1, 0, 1)
	checker.OnNewDownlinkSchedulerResults(mac.DlSchedResult{Slot: sl, Pdschs: []pdsch.PDU{{Slot: sl}}})
	checker.OnNewDownlinkData(mac.DlDataResult{Slot: sl, Tbs: [][]byte{{1, 2, 3}}})
	checker.OnCellResultsCompletion(sl)
	checker.OnCellResultsCompletion(sl)
	assert.Empty(t, ready, "nothing runs before the PHY reaches the slot")

	d.OnSlotIndication(NewSlotIndication(sl))
	assert.Len(t, rec.pdus, 1)
	assert.Equal(t, []slot.Point{sl}, ready)
	assert.Equal(t, 1, checker.Violations())
}
