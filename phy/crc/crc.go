// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package crc computes the NR cyclic redundancy checks of TS 38.212
// section 5.1.
package crc

// Calculator computes a CRC of a fixed polynomial. The polynomial excludes
// the leading term.
type Calculator struct {
	poly  uint32
	order uint
	table [256]uint32
}

var (
	Crc24A = New(0x864cfb, 24)
	Crc24B = New(0x800063, 24)
	Crc16  = New(0x1021, 16)
)

func New(poly uint32, order uint) *Calculator {
	c := &Calculator{poly: poly, order: order}
	for b := range 256 {
		reg := uint32(b) << (order - 8)
		for range 8 {
			if reg&(1<<(order-1)) != 0 {
				reg = (reg << 1) ^ poly
			} else {
				reg <<= 1
			}
		}
		c.table[b] = reg & c.mask()
	}
	return c
}

func (c *Calculator) mask() uint32 {
	return 1<<c.order - 1
}

func (c *Calculator) Order() int {
	return int(c.order)
}

// Bytes computes the CRC of data, most significant bit first.
func (c *Calculator) Bytes(data []byte) uint32 {
	var reg uint32
	for _, b := range data {
		idx := uint8(reg>>(c.order-8)) ^ b
		reg = ((reg << 8) ^ c.table[idx]) & c.mask()
	}
	return reg
}

// Bits computes the CRC of unpacked bits, one per byte.
func (c *Calculator) Bits(bits []uint8) uint32 {
	var reg uint32
	top := uint32(1) << (c.order - 1)
	for _, b := range bits {
		fb := (reg&top != 0) != (b&1 != 0)
		reg = (reg << 1) & c.mask()
		if fb {
			reg ^= c.poly
		}
	}
	return reg
}

// Unpack writes the CRC value into out, most significant bit first.
func (c *Calculator) Unpack(out []uint8, value uint32) {
	for i := range c.order {
		out[i] = uint8(value>>(c.order-1-i)) & 1
	}
}
