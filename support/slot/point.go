// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package slot implements the NR slot clock: a slot is identified by the
// subcarrier spacing, the system frame number and the slot index in the frame.
package slot

import (
	"fmt"
)

const (
	NofSfns            = 1024
	NofSubframesFrame  = 10
	NofSymbolsPerSlot  = 14
	MaxNumerology      = 4
	invalidNumerology  = 0xff
	nofSlotsPerSfnBase = 10
)

// Point is a slot within the 1024 frame SFN cycle.
type Point struct {
	numerology uint8
	count      uint32
}

// Invalid is the zero value marker for an unset slot point.
var Invalid = Point{numerology: invalidNumerology}

// NofSlotsPerFrame returns the number of slots per 10 ms frame.
func NofSlotsPerFrame(numerology uint8) uint32 {
	return nofSlotsPerSfnBase << numerology
}

// NofSlotsPerSubframe returns the number of slots per 1 ms subframe.
func NofSlotsPerSubframe(numerology uint8) uint32 {
	return 1 << numerology
}

// NumerologyFromScs maps a subcarrier spacing in kHz to the numerology.
func NumerologyFromScs(scsKhz int) (uint8, error) {
	switch scsKhz {
	case 15:
		return 0, nil
	case 30:
		return 1, nil
	case 60:
		return 2, nil
	case 120:
		return 3, nil
	case 240:
		return 4, nil
	}
	return invalidNumerology, fmt.Errorf("invalid subcarrier spacing %d kHz", scsKhz)
}

// NewPoint builds a slot point. It panics on out-of-range arguments.
func NewPoint(numerology uint8, sfn, slotIndex uint32) Point {
	if numerology > MaxNumerology {
		panic(fmt.Sprintf("invalid numerology %d", numerology))
	}
	if sfn >= NofSfns || slotIndex >= NofSlotsPerFrame(numerology) {
		panic(fmt.Sprintf("invalid slot %d.%d for numerology %d", sfn, slotIndex, numerology))
	}
	return Point{numerology: numerology, count: sfn*NofSlotsPerFrame(numerology) + slotIndex}
}

// FromCount builds a slot point from a slot count modulo the SFN cycle.
func FromCount(numerology uint8, count uint64) Point {
	period := uint64(NofSfns) * uint64(NofSlotsPerFrame(numerology))
	return Point{numerology: numerology, count: uint32(count % period)}
}

func (p Point) Valid() bool { return p.numerology <= MaxNumerology }

func (p Point) Numerology() uint8 { return p.numerology }

// ScsKhz returns the subcarrier spacing in kHz.
func (p Point) ScsKhz() int { return 15 << p.numerology }

func (p Point) Sfn() uint32 { return p.count / NofSlotsPerFrame(p.numerology) }

// SlotIndex returns the slot index within the frame.
func (p Point) SlotIndex() uint32 { return p.count % NofSlotsPerFrame(p.numerology) }

// Subframe returns the subframe index within the frame.
func (p Point) Subframe() uint32 { return p.SlotIndex() / NofSlotsPerSubframe(p.numerology) }

// SubframeSlotIndex returns the slot index within the subframe.
func (p Point) SubframeSlotIndex() uint32 { return p.SlotIndex() % NofSlotsPerSubframe(p.numerology) }

// Count returns the slot count since SFN 0, slot 0.
func (p Point) Count() uint32 { return p.count }

func (p Point) period() int64 {
	return int64(NofSfns) * int64(NofSlotsPerFrame(p.numerology))
}

// Add returns the point n slots later (n may be negative).
func (p Point) Add(n int) Point {
	period := p.period()
	c := (int64(p.count) + int64(n)) % period
	if c < 0 {
		c += period
	}
	return Point{numerology: p.numerology, count: uint32(c)}
}

// Sub returns the signed distance p - o in slots, taking the shortest path
// around the SFN cycle.
func (p Point) Sub(o Point) int {
	if p.numerology != o.numerology {
		panic("slot points with different numerologies")
	}
	period := p.period()
	d := (int64(p.count) - int64(o.count)) % period
	if d < 0 {
		d += period
	}
	if d >= period/2 {
		d -= period
	}
	return int(d)
}

// Before reports whether p precedes o within half an SFN cycle.
func (p Point) Before(o Point) bool { return p.Sub(o) < 0 }

func (p Point) String() string {
	if !p.Valid() {
		return "invalid"
	}
	return fmt.Sprintf("%d.%d", p.Sfn(), p.SlotIndex())
}
