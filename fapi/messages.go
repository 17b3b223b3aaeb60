// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package fapi carries slot indications from the PHY to the MAC and slot
// messages from the MAC to the PHY.
package fapi

import "github.com/omec-project/gnb/support/slot"

type SlotIndication struct {
	Sfn  uint32
	Slot uint32
}

func NewSlotIndication(sl slot.Point) SlotIndication {
	return SlotIndication{Sfn: sl.Sfn(), Slot: sl.SlotIndex()}
}

// SlotTimeNotifier receives slot indications.
type SlotTimeNotifier interface {
	OnSlotIndication(msg SlotIndication)
}

type SlotTimeNotifierFunc func(msg SlotIndication)

func (f SlotTimeNotifierFunc) OnSlotIndication(msg SlotIndication) { f(msg) }

// Message is a slot message sent from the MAC to the PHY.
type Message struct {
	Slot slot.Point
	// Deliver hands the message to the PHY.
	Deliver func()
}

// DefaultL2NofSlotsAhead is one subframe worth of slots.
func DefaultL2NofSlotsAhead(numerology uint8) int {
	return int(slot.NofSlotsPerSubframe(numerology))
}
