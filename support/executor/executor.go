// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package executor provides the task executors the processing pipelines fan
// work out to.
package executor

import (
	"sync"
)

// Task is a unit of work handed to an executor.
type Task func()

// TaskExecutor runs tasks. Execute returns false when the task was not
// accepted; the caller then decides whether to run it inline.
type TaskExecutor interface {
	Execute(task Task) bool
}

// Inline runs every task on the caller's goroutine.
type Inline struct{}

func (Inline) Execute(task Task) bool {
	task()
	return true
}

// Reject refuses every task.
type Reject struct{}

func (Reject) Execute(Task) bool {
	return false
}

// ExecuteOrRun hands the task to exec and runs it inline if it was rejected.
// Only for tasks without executor affinity, such as PDSCH fan-out.
func ExecuteOrRun(exec TaskExecutor, task Task) {
	if exec == nil || !exec.Execute(task) {
		task()
	}
}

// Manual queues tasks until RunPending is called. Tests use it to control
// exactly when deferred work runs.
type Manual struct {
	mu    sync.Mutex
	tasks []Task
}

func (m *Manual) Execute(task Task) bool {
	m.mu.Lock()
	m.tasks = append(m.tasks, task)
	m.mu.Unlock()
	return true
}

// RunPending runs queued tasks, including tasks queued while running, and
// returns how many ran.
func (m *Manual) RunPending() int {
	n := 0
	for {
		m.mu.Lock()
		if len(m.tasks) == 0 {
			m.mu.Unlock()
			return n
		}
		task := m.tasks[0]
		m.tasks = m.tasks[1:]
		m.mu.Unlock()
		task()
		n++
	}
}

// HasPending reports whether tasks are queued.
func (m *Manual) HasPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks) > 0
}
