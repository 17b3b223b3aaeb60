// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package pdsch

import (
	"sync/atomic"

	"github.com/omec-project/gnb/logger"
	"github.com/omec-project/gnb/phy/dmrs"
	"github.com/omec-project/gnb/phy/grid"
	"github.com/omec-project/gnb/phy/ptrs"
	"github.com/omec-project/gnb/support/executor"
	"github.com/omec-project/gnb/support/tracing"
	"github.com/omec-project/gnb/util"
)

// Concurrent spreads the codeblocks of a transport block over a pool of
// codeblock processors and generates the reference signals in parallel.
// Tasks the executor rejects run on the calling goroutine.
type Concurrent struct {
	pool     *cbProcessorPool
	executor executor.TaskExecutor
	tracer   tracing.Tracer
}

func NewConcurrent(exec executor.TaskExecutor, cbPoolSize int) *Concurrent {
	return &Concurrent{
		pool:     newCbProcessorPool(max(cbPoolSize, 1)),
		executor: exec,
		tracer:   tracing.FileTracer{Tid: "pdsch"},
	}
}

// concurrentJob tracks the asynchronous tasks of one Process call.
type concurrentJob struct {
	*job
	asyncTaskCounter atomic.Int32
	cbTaskCounter    atomic.Int32
	cbCounter        atomic.Int32
}

func (c *Concurrent) Process(w grid.Writer, notifier Notifier, tbs [][]byte, pdu PDU) {
	base, err := newJob(w, notifier, tbs, &pdu)
	if err != nil {
		panic("invalid PDSCH PDU: " + err.Error())
	}
	j := &concurrentJob{job: base}

	// DM-RS and the codeblock batch always run; PT-RS only when configured.
	nofAsync := int32(2)
	if j.ptrs != nil {
		nofAsync++
	}
	j.asyncTaskCounter.Store(nofAsync)

	if j.ptrs != nil {
		task := func() { c.processPtrs(j) }
		if c.pool.capacity() > 1 {
			executor.ExecuteOrRun(c.executor, task)
		} else {
			task()
		}
	}
	executor.ExecuteOrRun(c.executor, func() { c.processDmrs(j) })
	c.forkCbBatches(j)
}

func (c *Concurrent) processPtrs(j *concurrentJob) {
	defer util.RecoverWithLog(logger.PhyLog)
	start := c.tracer.Now()
	ptrs.Generate(j.writer, *j.ptrs)
	c.tracer.Event("process_ptrs", start)
	c.finishTask(j)
}

func (c *Concurrent) processDmrs(j *concurrentJob) {
	defer util.RecoverWithLog(logger.PhyLog)
	start := c.tracer.Now()
	dmrs.Generate(j.writer, j.dmrs)
	c.tracer.Event("process_dmrs", start)
	c.finishTask(j)
}

func (c *Concurrent) forkCbBatches(j *concurrentJob) {
	nofCb := j.meta.nofCb
	nofTasks := min(c.pool.capacity(), nofCb)
	j.cbTaskCounter.Store(int32(nofTasks))

	if nofTasks <= 1 {
		c.processCbBatch(j)
		return
	}
	for range nofTasks {
		executor.ExecuteOrRun(c.executor, func() { c.processCbBatch(j) })
	}
}

// processCbBatch drains codeblocks until none is left, starting with the
// last codeblock, which carries the transport block CRC.
func (c *Concurrent) processCbBatch(j *concurrentJob) {
	defer util.RecoverWithLog(logger.PhyLog)
	proc := c.pool.acquire()
	nofCb := int32(j.meta.nofCb)
	for {
		start := c.tracer.Now()
		i := j.cbCounter.Add(1) - 1
		if i >= nofCb {
			break
		}
		cb := int(nofCb - 1 - i)
		proc.process(j.job, cb)
		if cb == int(nofCb)-1 {
			c.tracer.Event("Last CB", start)
		} else {
			c.tracer.Event("CB", start)
		}
	}
	c.pool.release(proc)

	if j.cbTaskCounter.Add(-1) == 0 {
		j.tb = nil
		c.finishTask(j)
	}
}

func (c *Concurrent) finishTask(j *concurrentJob) {
	if j.asyncTaskCounter.Add(-1) == 0 {
		j.notifier.OnFinishProcessing()
	}
}
