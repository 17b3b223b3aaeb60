// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package pdsch

import (
	"sync"

	"github.com/omec-project/gnb/phy/dmrs"
	"github.com/omec-project/gnb/phy/grid"
	"github.com/omec-project/gnb/phy/ptrs"
	"github.com/omec-project/gnb/support/tracing"
)

// Generic processes every codeblock in order on the calling goroutine and
// notifies before Process returns.
type Generic struct {
	mu     sync.Mutex
	cb     cbProcessor
	tracer tracing.Tracer
}

func NewGeneric() *Generic {
	return &Generic{tracer: tracing.FileTracer{Tid: "pdsch"}}
}

func (g *Generic) Process(w grid.Writer, notifier Notifier, tbs [][]byte, pdu PDU) {
	j, err := newJob(w, notifier, tbs, &pdu)
	if err != nil {
		panic("invalid PDSCH PDU: " + err.Error())
	}

	g.mu.Lock()
	start := g.tracer.Now()
	for cb := range j.meta.nofCb {
		g.cb.process(j, cb)
	}
	g.tracer.Event("CB", start)
	g.mu.Unlock()

	start = g.tracer.Now()
	dmrs.Generate(w, j.dmrs)
	g.tracer.Event("process_dmrs", start)
	if j.ptrs != nil {
		start = g.tracer.Now()
		ptrs.Generate(w, *j.ptrs)
		g.tracer.Event("process_ptrs", start)
	}
	notifier.OnFinishProcessing()
}
