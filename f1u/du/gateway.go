// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package du

import (
	"github.com/omec-project/gnb/f1u"
	"github.com/omec-project/gnb/support/executor"
)

// Gateway creates DU bearers on top of an F1-U transport.
type Gateway interface {
	CreateDuBearer(
		ueIndex uint32,
		drbId f1u.DrbId,
		dlTnl, ulTnl f1u.TunnelInfo,
		rx RxSduNotifier,
		exec executor.TaskExecutor,
	) (*Bearer, error)
	RemoveDuBearer(dlTnl f1u.TunnelInfo)
}
