// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"sync"
	"sync/atomic"

	"github.com/golang-collections/go-datastructures/queue"
	"github.com/omec-project/gnb/logger"
	"github.com/omec-project/gnb/util"
)

// WorkerPool runs tasks on a fixed number of goroutines fed from a shared
// queue. Tasks beyond the queue size are rejected.
type WorkerPool struct {
	name      string
	queue     *queue.Queue
	queueSize int64
	pending   atomic.Int64
	nofWorker int
	wg        sync.WaitGroup
	stopOnce  sync.Once
	stopped   atomic.Bool
}

// NewWorkerPool starts nofWorkers goroutines. A single worker yields a
// sequential executor.
func NewWorkerPool(name string, nofWorkers, queueSize int) *WorkerPool {
	if nofWorkers < 1 {
		nofWorkers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	p := &WorkerPool{
		name:      name,
		queue:     queue.New(int64(queueSize)),
		queueSize: int64(queueSize),
		nofWorker: nofWorkers,
	}
	p.wg.Add(nofWorkers)
	for i := 0; i < nofWorkers; i++ {
		go p.run()
	}
	return p
}

// NewTaskWorker starts a single-goroutine executor that preserves task order.
func NewTaskWorker(name string, queueSize int) *WorkerPool {
	return NewWorkerPool(name, 1, queueSize)
}

func (p *WorkerPool) run() {
	defer p.wg.Done()
	for {
		items, err := p.queue.Get(1)
		if err != nil {
			// disposed
			return
		}
		for _, item := range items {
			p.pending.Add(-1)
			p.runTask(item.(Task))
		}
	}
}

func (p *WorkerPool) runTask(task Task) {
	defer util.RecoverWithLog(logger.UtilLog)
	task()
}

// Execute enqueues the task. It returns false when the queue is full or the
// pool was stopped.
func (p *WorkerPool) Execute(task Task) bool {
	if p.pending.Add(1) > p.queueSize {
		p.pending.Add(-1)
		return false
	}
	if err := p.queue.Put(task); err != nil {
		p.pending.Add(-1)
		return false
	}
	return true
}

// NofWorkers returns the number of goroutines serving the queue.
func (p *WorkerPool) NofWorkers() int {
	return p.nofWorker
}

// Pending returns the number of queued tasks not yet picked by a worker.
func (p *WorkerPool) Pending() int {
	return int(p.pending.Load())
}

// Stopped reports whether Stop was called.
func (p *WorkerPool) Stopped() bool {
	return p.stopped.Load()
}

// Stop discards queued tasks and waits for running ones to return.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() {
		p.stopped.Store(true)
		p.queue.Dispose()
		p.wg.Wait()
		logger.UtilLog.Debugf("worker pool %s stopped", p.name)
	})
}
