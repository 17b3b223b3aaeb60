// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package cucp implements the gNB control plane: NG towards the AMF, F1-C
// towards the DUs and E1 towards the CU-UPs. All CU-CP state is owned by a
// single control executor; procedures that wait for a peer run on the task
// scheduler of the UE they belong to.
package cucp

import (
	"context"
	"io"
	"sync"
	"time"

	gnb_context "github.com/omec-project/gnb/context"
	"github.com/omec-project/gnb/e1ap"
	"github.com/omec-project/gnb/factory"
	"github.com/omec-project/gnb/gateway"
	"github.com/omec-project/gnb/logger"
	"github.com/omec-project/gnb/ngap"
	"github.com/omec-project/gnb/ngap/handler"
	ngap_message "github.com/omec-project/gnb/ngap/message"
	"github.com/omec-project/gnb/support/executor"
	"github.com/omec-project/gnb/support/transaction"
	"github.com/omec-project/gnb/util"
	"github.com/omec-project/ngap/ngapType"
	"github.com/pkg/errors"
)

const (
	ctrlQueueSize   = 8192
	ueTaskQueueSize = 64

	minReconnectBackoff = time.Second
	maxReconnectBackoff = 30 * time.Second
)

var (
	ErrStopped             = errors.New("CU-CP stopped")
	ErrNoCuUp              = errors.New("no CU-UP available")
	ErrBearerContextFailed = errors.New("bearer context procedure failed")
	ErrProcedureOngoing    = errors.New("another E1 procedure is ongoing for the UE")
)

type CuCp struct {
	cfg           factory.CuCpConfig
	ctx           *gnb_context.CuCpContext
	ctrl          *executor.WorkerPool
	ngSetupParams ngap_message.NgSetupParams

	ngConnector gateway.Connector[*ngapType.NGAPPDU]

	// Owned by ctrl.
	ngAssocId   uint64
	ngTx        gateway.MessageNotifier[*ngapType.NGAPPDU]
	amf         *handler.Amf
	ngSetupSink *transaction.Sink[bool]
	e1Pending   map[uint32]*transaction.Sink[*e1ap.Pdu]
	stopping    bool

	runCtx   context.Context
	cancel   context.CancelFunc
	stopCh   chan struct{}
	stopOnce sync.Once
}

func New(cfg factory.CuCpConfig, ngConnector gateway.Connector[*ngapType.NGAPPDU]) *CuCp {
	runCtx, cancel := context.WithCancel(context.Background())
	return &CuCp{
		cfg:           cfg,
		ctx:           gnb_context.NewCuCpContext(cfg.MaxNofDus, cfg.MaxNofCuUps, cfg.MaxNofUes, ueTaskQueueSize),
		ctrl:          executor.NewTaskWorker("cu-cp-ctrl", ctrlQueueSize),
		ngSetupParams: ngap_message.NgSetupParamsFromConfig(cfg),
		ngConnector:   ngConnector,
		e1Pending:     make(map[uint32]*transaction.Sink[*e1ap.Pdu]),
		runCtx:        runCtx,
		cancel:        cancel,
		stopCh:        make(chan struct{}),
	}
}

// runSync runs task on the control executor and waits for it. It must not
// be called from the control executor.
func (c *CuCp) runSync(task func()) bool {
	done := make(chan struct{})
	if !c.ctrl.Execute(func() {
		defer close(done)
		task()
	}) {
		logger.CtxLog.Errorln("CU-CP control executor rejected a task")
		return false
	}
	select {
	case <-done:
		return true
	case <-c.stopCh:
		return false
	}
}

// Start connects to the AMF and runs NG Setup. It returns once the AMF
// answered or the NG setup timeout expired, and reports whether the AMF
// accepted the gNB.
func (c *CuCp) Start(ctx context.Context) bool {
	logger.NgapLog.Infoln("starting CU-CP")
	return c.connectAmf(ctx)
}

// Run calls Start until the AMF accepts the gNB, ctx ends or an association
// exists. Rejections on a live association are retried after the Time to
// Wait the AMF indicated, and transport losses by the reconnect loop.
func (c *CuCp) Run(ctx context.Context) bool {
	backoff := minReconnectBackoff
	for {
		if c.Start(ctx) {
			return true
		}
		var associated bool
		if !c.runSync(func() { associated = c.ngTx != nil }) || associated {
			return false
		}
		logger.NgapLog.Infof("retry to connect to AMF after %v", backoff)
		select {
		case <-ctx.Done():
			return false
		case <-c.stopCh:
			return false
		case <-time.After(backoff):
		}
		backoff = min(2*backoff, maxReconnectBackoff)
	}
}

func (c *CuCp) AmfIsConnected() bool {
	return c.ctx.AmfConnected()
}

func (c *CuCp) connectAmf(ctx context.Context) bool {
	var rx *ngRx
	if !c.runSync(func() {
		c.ngAssocId++
		rx = &ngRx{c: c, id: c.ngAssocId}
		c.ctx.SetNgState(gnb_context.NgStateConnecting)
	}) {
		return false
	}

	tx, err := c.ngConnector.Connect(rx)
	if err != nil {
		logger.NgapLog.Errorf("connect to AMF: %+v", err)
		c.runSync(func() { c.ctx.SetNgState(gnb_context.NgStateFailed) })
		return false
	}

	sink := transaction.NewSink[bool]()
	if !c.runSync(func() {
		c.ngTx = tx
		c.amf = &handler.Amf{Ctx: c.ctx, Tx: tx, Notifier: c}
		c.ngSetupSink = sink
		ngap_message.SendNGSetupRequest(tx, c.ngSetupParams)
	}) {
		return false
	}

	accepted, err := sink.Wait(ctx, c.cfg.NgSetupTimeout)
	if err != nil {
		logger.NgapLog.Warnf("NG Setup: %v", err)
		c.runSync(func() {
			if c.ngSetupSink == sink {
				c.ngSetupSink = nil
				c.ctx.SetNgState(gnb_context.NgStateFailed)
			}
		})
		return false
	}
	return accepted
}

// reconnect retries the NG association with a bounded exponential backoff
// until it succeeds or the CU-CP stops.
func (c *CuCp) reconnect() {
	defer util.RecoverWithLog(logger.NgapLog)

	backoff := minReconnectBackoff
	for {
		select {
		case <-c.stopCh:
			return
		case <-time.After(backoff):
		}
		logger.NgapLog.Infof("reconnecting to AMF")
		if c.connectAmf(c.runCtx) {
			return
		}
		backoff = min(2*backoff, maxReconnectBackoff)
	}
}

// ngRx receives the PDUs of one NG association.
type ngRx struct {
	c  *CuCp
	id uint64
}

func (r *ngRx) OnNewMessage(pdu *ngapType.NGAPPDU) {
	c := r.c
	c.ctrl.Execute(func() {
		if r.id != c.ngAssocId || c.amf == nil {
			logger.NgapLog.Debugln("dropping NGAP PDU of a stale association")
			return
		}
		ngap.Dispatch(c.amf, pdu)
	})
}

func (r *ngRx) OnConnectionLoss() {
	c := r.c
	c.ctrl.Execute(func() {
		if r.id != c.ngAssocId {
			return
		}
		logger.NgapLog.Warnln("NG association lost")
		c.ngTx = nil
		c.amf = nil
		c.ctx.Amf = nil
		c.ctx.SetNgState(gnb_context.NgStateDisconnected)
		if c.ngSetupSink != nil {
			c.ngSetupSink.Set(false)
			c.ngSetupSink = nil
		}
		if !c.stopping {
			go c.reconnect()
		}
	})
}

func (c *CuCp) OnNgSetupResponse() {
	c.ctx.SetNgState(gnb_context.NgStateConnected)
	logger.NgapLog.Infof("NG Setup with AMF %q complete", c.ctx.Amf.Name())
	if !c.ctx.Amf.SupportsPLMN(util.PlmnIdToNgap(c.cfg.Plmn)) {
		logger.NgapLog.Warnf("AMF %q does not list PLMN %s%s", c.ctx.Amf.Name(), c.cfg.Plmn.Mcc, c.cfg.Plmn.Mnc)
	}
	if c.ngSetupSink != nil {
		c.ngSetupSink.Set(true)
		c.ngSetupSink = nil
	}
}

func (c *CuCp) OnNgSetupFailure(cause *ngapType.Cause, timeToWait time.Duration) {
	c.ctx.SetNgState(gnb_context.NgStateFailed)
	c.ctx.Amf = nil
	if c.ngSetupSink != nil {
		c.ngSetupSink.Set(false)
		c.ngSetupSink = nil
	}
	if timeToWait <= 0 || c.stopping {
		return
	}
	id := c.ngAssocId
	time.AfterFunc(timeToWait, func() {
		c.ctrl.Execute(func() {
			if id != c.ngAssocId || c.ngTx == nil || c.ctx.NgState() != gnb_context.NgStateFailed {
				return
			}
			c.ctx.SetNgState(gnb_context.NgStateConnecting)
			ngap_message.SendNGSetupRequest(c.ngTx, c.ngSetupParams)
		})
	})
}

// HandleMetricsReportRequest lists the DUs and UEs known to the CU-CP.
func (c *CuCp) HandleMetricsReportRequest() gnb_context.CuCpMetrics {
	var report gnb_context.CuCpMetrics
	c.runSync(func() { report = c.ctx.MetricsReport() })
	return report
}

// Stop cancels the pending procedures, closes the NG association and
// releases the executors.
func (c *CuCp) Stop() {
	c.stopOnce.Do(func() {
		logger.NgapLog.Infoln("stopping CU-CP")
		c.cancel()
		var ngTx gateway.MessageNotifier[*ngapType.NGAPPDU]
		c.runSync(func() {
			c.stopping = true
			if c.ngSetupSink != nil {
				c.ngSetupSink.Cancel()
				c.ngSetupSink = nil
			}
			for id, sink := range c.e1Pending {
				sink.Cancel()
				delete(c.e1Pending, id)
			}
			ngTx = c.ngTx
		})
		if closer, ok := ngTx.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				logger.NgapLog.Warnf("close NG association: %+v", err)
			}
		}
		close(c.stopCh)
		c.ctrl.Stop()
		c.ctx.Ues.Stop()
	})
}
