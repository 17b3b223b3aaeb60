// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package pdsch

import (
	"github.com/omec-project/gnb/factory"
	"github.com/omec-project/gnb/logger"
	"github.com/omec-project/gnb/support/executor"
	"github.com/pkg/errors"
)

// NewProcessor builds the processor selected by kind. The concurrent
// processor runs its tasks on exec.
func NewProcessor(kind string, exec executor.TaskExecutor, cbPoolSize int) (Processor, error) {
	switch kind {
	case factory.PdschProcessorGeneric:
		logger.PhyLog.Infoln("using generic PDSCH processor")
		return NewGeneric(), nil
	case factory.PdschProcessorConcurrent:
		if cbPoolSize < 1 {
			return nil, errors.Errorf("invalid codeblock pool size %d", cbPoolSize)
		}
		logger.PhyLog.Infof("using concurrent PDSCH processor with %d codeblock processors", cbPoolSize)
		return NewConcurrent(exec, cbPoolSize), nil
	}
	return nil, errors.Errorf("unknown PDSCH processor type %q", kind)
}
