// SPDX-FileCopyrightText: 2025 Intel Corporation
// Copyright 2019 free5GC.org
//
// SPDX-License-Identifier: Apache-2.0

// Package timers implements millisecond tick driven timers whose expiry
// callbacks run on a caller chosen executor.
package timers

import (
	"context"
	"sync"
	"time"

	"github.com/omec-project/gnb/support/executor"
)

// TickPeriod is the duration of one Manager tick.
const TickPeriod = time.Millisecond

// Manager owns the timer wheel. Time advances only through Tick, either
// driven by Run or by a test.
type Manager struct {
	mu     sync.Mutex
	now    uint64
	timers map[uint64]*UniqueTimer
	nextID uint64
	cancel context.CancelFunc
}

func NewManager() *Manager {
	return &Manager{timers: make(map[uint64]*UniqueTimer)}
}

// Now returns the number of ticks elapsed.
func (m *Manager) Now() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Run ticks the manager every TickPeriod until ctx is cancelled or Stop is
// called.
func (m *Manager) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(TickPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Tick()
			}
		}
	}()
}

// Stop halts the ticking goroutine started by Run.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Tick advances time by one tick and dispatches every expired timer.
func (m *Manager) Tick() {
	type expiry struct {
		t     *UniqueTimer
		epoch uint64
	}
	var expired []expiry

	m.mu.Lock()
	m.now++
	for _, t := range m.timers {
		if t.running && t.deadline <= m.now {
			t.running = false
			expired = append(expired, expiry{t: t, epoch: t.epoch})
		}
	}
	m.mu.Unlock()

	for _, e := range expired {
		t, epoch := e.t, e.epoch
		if t.exec == nil {
			t.fire(epoch)
			continue
		}
		if !t.exec.Execute(func() { t.fire(epoch) }) {
			t.retry(epoch)
		}
	}
}

// retry re-arms an expiry the executor refused so it is offered again on the
// next tick. The callback never runs outside the timer's executor.
func (t *UniqueTimer) retry(epoch uint64) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.released || t.epoch != epoch {
		return
	}
	t.running = true
	t.deadline = t.m.now + 1
}

// Create returns a stopped timer whose callbacks run on exec.
func (m *Manager) Create(exec executor.TaskExecutor) *UniqueTimer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t := &UniqueTimer{m: m, id: m.nextID, exec: exec}
	m.timers[t.id] = t
	return t
}

// NofTimers returns the number of timers not yet released.
func (m *Manager) NofTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// UniqueTimer is a one-shot timer that can be re-armed.
type UniqueTimer struct {
	m        *Manager
	id       uint64
	exec     executor.TaskExecutor
	duration uint64
	callback func()
	running  bool
	released bool
	deadline uint64
	epoch    uint64
}

func toTicks(d time.Duration) uint64 {
	ticks := uint64((d + TickPeriod - 1) / TickPeriod)
	if ticks == 0 {
		ticks = 1
	}
	return ticks
}

// Set configures duration and callback. A running timer is restarted.
func (t *UniqueTimer) Set(d time.Duration, callback func()) {
	t.m.mu.Lock()
	t.duration = toTicks(d)
	t.callback = callback
	restart := t.running
	t.m.mu.Unlock()
	if restart {
		t.Run()
	}
}

// Duration returns the configured duration.
func (t *UniqueTimer) Duration() time.Duration {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	return time.Duration(t.duration) * TickPeriod
}

// Run (re)starts the timer.
func (t *UniqueTimer) Run() {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.released {
		return
	}
	t.epoch++
	t.running = true
	t.deadline = t.m.now + t.duration
}

// Stop cancels a pending expiry, including one already handed to the
// executor.
func (t *UniqueTimer) Stop() {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	t.epoch++
	t.running = false
}

// IsRunning reports whether the timer is armed.
func (t *UniqueTimer) IsRunning() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	return t.running
}

// Release stops the timer and detaches it from the manager.
func (t *UniqueTimer) Release() {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	t.epoch++
	t.running = false
	t.released = true
	delete(t.m.timers, t.id)
}

func (t *UniqueTimer) fire(epoch uint64) {
	t.m.mu.Lock()
	if t.released || t.epoch != epoch {
		t.m.mu.Unlock()
		return
	}
	cb := t.callback
	t.m.mu.Unlock()
	if cb != nil {
		cb()
	}
}
