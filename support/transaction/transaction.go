// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package transaction pairs outgoing requests with their responses. A
// procedure creates a transaction, sends its request and waits on the
// transaction until the response arrives, the timeout fires or the caller
// cancels.
package transaction

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrTimeout   = errors.New("transaction timed out")
	ErrCancelled = errors.New("transaction cancelled")
	ErrNoFreeId  = errors.New("no free transaction id")
)

// Sink receives exactly one outcome. Later outcomes are ignored.
type Sink[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

func NewSink[T any]() *Sink[T] {
	return &Sink[T]{done: make(chan struct{})}
}

// Set completes the sink with a response. It reports whether the value was
// accepted.
func (s *Sink[T]) Set(v T) bool {
	return s.complete(v, nil)
}

// Cancel completes the sink with ErrCancelled.
func (s *Sink[T]) Cancel() bool {
	var zero T
	return s.complete(zero, ErrCancelled)
}

func (s *Sink[T]) complete(v T, err error) bool {
	accepted := false
	s.once.Do(func() {
		s.value = v
		s.err = err
		accepted = true
		close(s.done)
	})
	return accepted
}

// Done is closed when the sink holds an outcome.
func (s *Sink[T]) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the sink completes, timeout elapses or ctx ends. A
// non-positive timeout waits without bound.
func (s *Sink[T]) Wait(ctx context.Context, timeout time.Duration) (T, error) {
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	var zero T
	select {
	case <-s.done:
		return s.value, s.err
	case <-timer:
		if s.complete(zero, ErrTimeout) {
			return zero, ErrTimeout
		}
		return s.value, s.err
	case <-ctx.Done():
		if s.complete(zero, ErrCancelled) {
			return zero, ErrCancelled
		}
		return s.value, s.err
	}
}

// Manager hands out transaction ids in [0, maxId] and routes responses to
// the matching sink.
type Manager[T any] struct {
	mu      sync.Mutex
	maxId   int
	next    int
	pending map[int]*Sink[T]
}

func NewManager[T any](maxId int) *Manager[T] {
	return &Manager[T]{maxId: maxId, pending: make(map[int]*Sink[T])}
}

// Create reserves the next free id.
func (m *Manager[T]) Create() (int, *Sink[T], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for range m.maxId + 1 {
		id := m.next
		m.next = (m.next + 1) % (m.maxId + 1)
		if _, busy := m.pending[id]; !busy {
			s := NewSink[T]()
			m.pending[id] = s
			return id, s, nil
		}
	}
	return 0, nil, ErrNoFreeId
}

// Set delivers a response and frees the id. It returns false if nobody waits
// for the id.
func (m *Manager[T]) Set(id int, v T) bool {
	m.mu.Lock()
	s, ok := m.pending[id]
	delete(m.pending, id)
	m.mu.Unlock()
	if !ok {
		return false
	}
	return s.Set(v)
}

// Release frees id without delivering a response, e.g. after a timeout.
func (m *Manager[T]) Release(id int) {
	m.mu.Lock()
	delete(m.pending, id)
	m.mu.Unlock()
}

// CancelAll cancels every pending transaction.
func (m *Manager[T]) CancelAll() {
	m.mu.Lock()
	pending := m.pending
	m.pending = make(map[int]*Sink[T])
	m.mu.Unlock()
	for _, s := range pending {
		s.Cancel()
	}
}

func (m *Manager[T]) NofPending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
