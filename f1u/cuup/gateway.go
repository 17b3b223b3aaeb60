// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package cuup

import (
	"time"

	"github.com/omec-project/gnb/f1u"
	"github.com/omec-project/gnb/support/executor"
	"github.com/omec-project/gnb/support/timers"
)

// Gateway creates CU-UP bearers on top of an F1-U transport.
type Gateway interface {
	Disconnector
	// CreateCuBearer registers ulTnl and returns a bearer whose DL messages
	// stay pending until AttachDlTeid names the DU end.
	CreateCuBearer(
		ueIndex uint32,
		drbId f1u.DrbId,
		ulTnl f1u.TunnelInfo,
		rxDelivery RxDeliveryNotifier,
		rxSdu RxSduNotifier,
		exec executor.TaskExecutor,
		tm *timers.Manager,
		dlNotifPeriod time.Duration,
	) (*Bearer, error)
	AttachDlTeid(ulTnl, dlTnl f1u.TunnelInfo) error
}
