// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package fapi

import (
	"sync"

	"github.com/omec-project/gnb/logger"
	"github.com/omec-project/gnb/support/slot"
)

// BufferedGateway holds slot messages until the PHY reaches their slot.
// Messages for slots that already passed are dropped.
type BufferedGateway struct {
	mu      sync.Mutex
	current slot.Point
	cached  map[uint32][]Message
	dropped int
}

func NewBufferedGateway() *BufferedGateway {
	return &BufferedGateway{current: slot.Invalid, cached: make(map[uint32][]Message)}
}

// SendMessage caches msg for its slot.
func (g *BufferedGateway) SendMessage(msg Message) {
	g.mu.Lock()
	if g.current.Valid() && msg.Slot.Before(g.current) {
		g.dropped++
		g.mu.Unlock()
		logger.FapiLog.Warnf("late message for slot %s dropped, current slot %s", msg.Slot, g.current)
		return
	}
	g.cached[msg.Slot.Count()] = append(g.cached[msg.Slot.Count()], msg)
	g.mu.Unlock()
}

func (g *BufferedGateway) UpdateCurrentSlot(sl slot.Point) {
	g.mu.Lock()
	g.current = sl
	g.mu.Unlock()
}

// ForwardCachedMessages delivers the messages of sl.
func (g *BufferedGateway) ForwardCachedMessages(sl slot.Point) {
	g.mu.Lock()
	msgs := g.cached[sl.Count()]
	delete(g.cached, sl.Count())
	g.mu.Unlock()
	for _, msg := range msgs {
		msg.Deliver()
	}
}

func (g *BufferedGateway) Dropped() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dropped
}

// BufferedSlotTimeNotifier tells the MAC about slot S + L2-ahead when the
// PHY indicates slot S, then releases the messages cached for S.
type BufferedSlotTimeNotifier struct {
	l2NofSlotsAhead int
	numerology      uint8
	gateway         *BufferedGateway

	mu       sync.RWMutex
	notifier SlotTimeNotifier
}

func NewBufferedSlotTimeNotifier(l2NofSlotsAhead int, numerology uint8, gw *BufferedGateway) *BufferedSlotTimeNotifier {
	return &BufferedSlotTimeNotifier{
		l2NofSlotsAhead: l2NofSlotsAhead,
		numerology:      numerology,
		gateway:         gw,
		notifier:        SlotTimeNotifierFunc(func(SlotIndication) {}),
	}
}

func (d *BufferedSlotTimeNotifier) SetSlotTimeNotifier(n SlotTimeNotifier) {
	d.mu.Lock()
	d.notifier = n
	d.mu.Unlock()
}

func (d *BufferedSlotTimeNotifier) OnSlotIndication(msg SlotIndication) {
	sl := slot.NewPoint(d.numerology, msg.Sfn, msg.Slot)

	d.gateway.UpdateCurrentSlot(sl)

	d.mu.RLock()
	n := d.notifier
	d.mu.RUnlock()
	n.OnSlotIndication(NewSlotIndication(sl.Add(d.l2NofSlotsAhead)))

	d.gateway.ForwardCachedMessages(sl)
}
