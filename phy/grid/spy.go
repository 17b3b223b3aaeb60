// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package grid

import "sync"

// Entry is one sample recorded by a Spy.
type Entry struct {
	Port       int
	Symbol     int
	Subcarrier int
	Value      complex64
}

// Spy records every write and forwards it to an optional grid. It counts
// writes that hit an already written RE.
type Spy struct {
	mu         sync.Mutex
	next       Writer
	entries    []Entry
	written    map[[3]int]struct{}
	overlapped int
}

func NewSpy(next Writer) *Spy {
	return &Spy{next: next, written: make(map[[3]int]struct{})}
}

func (s *Spy) Put(port, symbol, subcarrier int, values []complex64) {
	s.mu.Lock()
	for i, v := range values {
		key := [3]int{port, symbol, subcarrier + i}
		if _, ok := s.written[key]; ok {
			s.overlapped++
		}
		s.written[key] = struct{}{}
		s.entries = append(s.entries, Entry{Port: port, Symbol: symbol, Subcarrier: subcarrier + i, Value: v})
	}
	s.mu.Unlock()
	if s.next != nil {
		s.next.Put(port, symbol, subcarrier, values)
	}
}

func (s *Spy) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...)
}

func (s *Spy) NofWrites() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// NofOverlaps is the number of writes to REs written before.
func (s *Spy) NofOverlaps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlapped
}

// Written reports whether the RE was written.
func (s *Spy) Written(port, symbol, subcarrier int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.written[[3]int{port, symbol, subcarrier}]
	return ok
}

func (s *Spy) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.written = make(map[[3]int]struct{})
	s.overlapped = 0
}
