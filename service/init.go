// SPDX-FileCopyrightText: 2024 Intel Corporation
// Copyright 2019 free5GC.org
//
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	aperLogger "github.com/omec-project/aper/logger"
	"github.com/omec-project/gnb/cucp"
	"github.com/omec-project/gnb/cuup"
	"github.com/omec-project/gnb/e1ap"
	"github.com/omec-project/gnb/f1ap"
	"github.com/omec-project/gnb/f1u/split"
	"github.com/omec-project/gnb/factory"
	"github.com/omec-project/gnb/gateway"
	"github.com/omec-project/gnb/gtp/handler"
	gtpService "github.com/omec-project/gnb/gtp/service"
	"github.com/omec-project/gnb/logger"
	"github.com/omec-project/gnb/metrics"
	"github.com/omec-project/gnb/ngap"
	"github.com/omec-project/gnb/pcap"
	"github.com/omec-project/gnb/support/timers"
	"github.com/omec-project/gnb/support/tracing"
	"github.com/omec-project/gnb/util"
	ngapLogger "github.com/omec-project/ngap/logger"
	"github.com/omec-project/ngap/ngapType"
	utilLogger "github.com/omec-project/util/logger"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const e1RetryPeriod = 5 * time.Second

// GNB main struct
type GNB struct {
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	ngapPcap *pcap.Writer
	f1apPcap *pcap.Writer
	e1apPcap *pcap.Writer
	gtpuPcap *pcap.Writer

	cucp      *cucp.CuCp
	ngClient  *gateway.Client[*ngapType.NGAPPDU]
	f1cServer *gateway.Server[*f1ap.Pdu]
	e1Server  *gateway.Server[*e1ap.Pdu]

	cuup     *cuup.CuUp
	e1Client *gateway.Client[*e1ap.Pdu]
	n3       *gtpService.UdpGateway
	f1u      *gtpService.UdpGateway
	timers   *timers.Manager

	reporter *metrics.Reporter
}

// Config holds configuration file path
type Config struct {
	cfg string
}

var config Config

var gnbCli = []cli.Flag{
	cli.StringFlag{
		Name:  "cfg",
		Usage: "gnb config file",
	},
}

func (*GNB) GetCliCmd() (flags []cli.Flag) {
	return gnbCli
}

// Initialize loads config and sets log levels
func (gnb *GNB) Initialize(c *cli.Context) error {
	config = Config{cfg: c.String("cfg")}
	if config.cfg == "" {
		return errors.New("missing --cfg")
	}
	absPath, err := filepath.Abs(config.cfg)
	if err != nil {
		logger.CfgLog.Errorln(err)
		return err
	}
	if err := factory.InitConfigFactory(absPath); err != nil {
		return err
	}
	if err := factory.CheckConfigVersion(); err != nil {
		return err
	}
	gnb.setLogLevel()
	return nil
}

// setLogLevel configures log levels for all modules
func (gnb *GNB) setLogLevel() {
	cfgLogger := factory.GnbConfig.Logger
	if cfgLogger == nil {
		logger.InitLog.Warnln("gNB config without log level setting")
		return
	}
	setModuleLogLevel(cfgLogger.GNB, logger.InitLog, logger.SetLogLevel, "GNB")
	setModuleLogLevel(cfgLogger.NGAP, ngapLogger.NgapLog, ngapLogger.SetLogLevel, "NGAP")
	setModuleLogLevel(cfgLogger.Aper, aperLogger.AperLog, aperLogger.SetLogLevel, "Aper")
	setModuleLogLevel(cfgLogger.Util, utilLogger.UtilLog, utilLogger.SetLogLevel, "Util (idgenerator, etc.)")
}

// setModuleLogLevel is a helper to reduce repetition in log level setup
func setModuleLogLevel(moduleCfg *utilLogger.LogSetting, logObj *zap.SugaredLogger, setLevel func(zapcore.Level), moduleName string) {
	if moduleCfg == nil || moduleCfg.DebugLevel == "" {
		logObj.Warnf("%s Log level not set. Default set to [info] level", moduleName)
		setLevel(zap.InfoLevel)
		return
	}
	level, err := zapcore.ParseLevel(moduleCfg.DebugLevel)
	if err != nil {
		logObj.Warnf("%s Log level [%s] is invalid, set to [info] level", moduleName, moduleCfg.DebugLevel)
		setLevel(zap.InfoLevel)
		return
	}
	logObj.Infof("%s Log level is set to [%s] level", moduleName, level)
	setLevel(level)
}

// FilterCli returns CLI args for flags
func (gnb *GNB) FilterCli(c *cli.Context) (args []string) {
	for _, flag := range gnb.GetCliCmd() {
		name := flag.GetName()
		value := fmt.Sprint(c.Generic(name))
		if value == "" {
			continue
		}
		args = append(args, "--"+name, value)
	}
	return args
}

// Start launches all services and handles graceful shutdown
func (gnb *GNB) Start() {
	logger.InitLog.Infoln("server started")
	if err := gnb.Run(context.Background(), factory.GnbConfig.Configuration); err != nil {
		logger.InitLog.Errorf("start gNB failed: %+v", err)
		if gnb.cancel != nil {
			gnb.cancel()
		}
		gnb.stopServiceConn()
		return
	}

	signalChannel := make(chan os.Signal, 1)
	signal.Notify(signalChannel, os.Interrupt, syscall.SIGTERM)
	<-signalChannel
	gnb.cancel()
	gnb.WaitRoutineStopped()
}

// Run brings the configured units up and returns once every listener is
// bound. Cancelling ctx, or calling Stop, shuts them down.
func (gnb *GNB) Run(ctx context.Context, cfg *factory.Configuration) error {
	if !util.InitGnbContext(cfg) {
		return errors.New("initializing context failed")
	}
	gnb.ctx, gnb.cancel = context.WithCancel(ctx)

	if cfg.Tracing.Enable {
		if err := tracing.OpenTraceFile(cfg.Tracing.File); err != nil {
			return err
		}
	}
	if err := gnb.openPcaps(cfg.Pcap); err != nil {
		return err
	}
	if cfg.CuCp.Enable {
		if err := gnb.startCuCp(cfg.CuCp); err != nil {
			return errors.Wrap(err, "start CU-CP")
		}
		logger.InitLog.Infoln("CU-CP running")
	}
	if cfg.CuUp.Enable {
		if err := gnb.startCuUp(cfg.CuUp, cfg.CuCp.Enable); err != nil {
			return errors.Wrap(err, "start CU-UP")
		}
		logger.InitLog.Infoln("CU-UP running")
	}
	if cfg.Metrics.Enable {
		if err := gnb.startMetrics(cfg.Metrics); err != nil {
			return err
		}
	}

	gnb.wg.Add(1)
	go gnb.ListenShutdownEvent()
	logger.InitLog.Infoln("gNB running")
	return nil
}

func openPcap(enable bool, name, pattern string) (*pcap.Writer, error) {
	if !enable {
		return nil, nil
	}
	return pcap.Open(name, pattern)
}

func (gnb *GNB) openPcaps(cfg factory.PcapConfig) error {
	var err error
	if gnb.ngapPcap, err = openPcap(cfg.NgapEnable, "NGAP", cfg.NgapFile); err != nil {
		return err
	}
	if gnb.f1apPcap, err = openPcap(cfg.F1apEnable, "F1AP", cfg.F1apFile); err != nil {
		return err
	}
	if gnb.e1apPcap, err = openPcap(cfg.E1apEnable, "E1AP", cfg.E1apFile); err != nil {
		return err
	}
	gnb.gtpuPcap, err = openPcap(cfg.GtpuEnable, "GTP-U", cfg.GtpuFile)
	return err
}

func sctpConfig(name string, ep factory.SctpEndpoint, w *pcap.Writer) gateway.Config {
	return gateway.Config{Name: name, Addresses: ep.Addresses, Port: ep.Port, Streams: ep.Streams, Pcap: w}
}

func (gnb *GNB) startCuCp(cfg factory.CuCpConfig) error {
	gnb.ngClient = gateway.NewClient[*ngapType.NGAPPDU](
		sctpConfig("NG", cfg.NgBind, nil), sctpConfig("NG", cfg.Amf, gnb.ngapPcap), ngap.Codec{})
	gnb.cucp = cucp.New(cfg, gnb.ngClient)

	gnb.f1cServer = gateway.NewServer[*f1ap.Pdu](sctpConfig("F1-C", cfg.F1cBind, gnb.f1apPcap), f1ap.Codec{}, gnb.cucp.F1cHandler())
	if err := gnb.f1cServer.Listen(); err != nil {
		return err
	}
	gnb.e1Server = gateway.NewServer[*e1ap.Pdu](sctpConfig("E1", cfg.E1Bind, gnb.e1apPcap), e1ap.Codec{}, gnb.cucp.E1Handler())
	if err := gnb.e1Server.Listen(); err != nil {
		return err
	}
	for _, srv := range []interface{ Serve(context.Context) error }{gnb.f1cServer, gnb.e1Server} {
		gnb.wg.Add(1)
		go func() {
			defer gnb.wg.Done()
			if err := srv.Serve(gnb.ctx); err != nil {
				logger.InitLog.Errorf("%+v", err)
			}
		}()
	}

	gnb.wg.Add(1)
	go func() {
		defer gnb.wg.Done()
		defer util.RecoverWithLog(logger.NgapLog)
		if !gnb.cucp.Run(gnb.ctx) {
			logger.NgapLog.Warnln("AMF did not accept the gNB")
		}
	}()
	return nil
}

func newDemux(cfg factory.CuUpConfig, nic factory.NetworkInterfaceConfig) *handler.Demux {
	return handler.NewDemux(handler.Config{
		QueueLength:   cfg.GtpuQueueLength,
		PoolThreshold: nic.PoolThreshold,
		WarnOnDrop:    cfg.WarnOnDrop,
	})
}

func (gnb *GNB) startCuUp(cfg factory.CuUpConfig, localCuCp bool) error {
	gnb.timers = timers.NewManager()
	gnb.timers.Run(gnb.ctx)

	n3Demux := newDemux(cfg, cfg.N3)
	n3, err := gtpService.NewUdpGateway("N3", cfg.N3, n3Demux, gnb.gtpuPcap)
	if err != nil {
		return err
	}
	gnb.n3 = n3
	n3Demux.SetSender(n3)

	f1uDemux := newDemux(cfg, cfg.F1u)
	f1u, err := gtpService.NewUdpGateway("F1-U", cfg.F1u, f1uDemux, gnb.gtpuPcap)
	if err != nil {
		return err
	}
	gnb.f1u = f1u
	f1uDemux.SetSender(f1u)

	gnb.cuup = cuup.New(cfg, cuup.Dependencies{
		F1u:      split.NewCuGateway(f1u, f1uDemux, factory.GTPU_PORT),
		F1uAddr:  f1u.ExtAddress(),
		N3Demux:  n3Demux,
		N3Sender: n3,
		N3Addr:   n3.ExtAddress(),
		Timers:   gnb.timers,
	})
	n3.ListenAndServe(gnb.ctx)
	f1u.ListenAndServe(gnb.ctx)

	var connector gateway.Connector[*e1ap.Pdu]
	if localCuCp {
		connector = gateway.NewLocalConnector[*e1ap.Pdu](gnb.cucp.E1Handler())
	} else {
		gnb.e1Client = gateway.NewClient[*e1ap.Pdu](gateway.Config{}, sctpConfig("E1", cfg.CuCpE1, gnb.e1apPcap), e1ap.Codec{})
		connector = gnb.e1Client
	}

	gnb.wg.Add(1)
	go func() {
		defer gnb.wg.Done()
		defer util.RecoverWithLog(logger.CuUpLog)
		gnb.runE1Setup(connector, localCuCp)
	}()
	return nil
}

// runE1Setup retries E1 Setup until it succeeds. A co-located CU-CP only
// accepts CU-UPs once NG is up.
func (gnb *GNB) runE1Setup(connector gateway.Connector[*e1ap.Pdu], localCuCp bool) {
	for {
		if !localCuCp || gnb.cucp.AmfIsConnected() {
			err := gnb.cuup.Start(gnb.ctx, connector)
			if err == nil {
				return
			}
			logger.E1apLog.Warnf("E1 Setup: %+v", err)
		}
		select {
		case <-gnb.ctx.Done():
			return
		case <-time.After(e1RetryPeriod):
		}
	}
}

func (gnb *GNB) startMetrics(cfg factory.MetricsConfig) error {
	var cucpSrc metrics.CuCpSource
	if gnb.cucp != nil {
		cucpSrc = gnb.cucp
	}
	var cuupSrc metrics.CuUpSource
	if gnb.cuup != nil {
		cuupSrc = gnb.cuup
	}
	reporter, err := metrics.NewReporter(cfg, cucpSrc, cuupSrc)
	if err != nil {
		return err
	}
	gnb.reporter = reporter
	gnb.wg.Add(1)
	go func() {
		defer gnb.wg.Done()
		reporter.Run(gnb.ctx)
	}()
	return nil
}

// ListenShutdownEvent waits for shutdown and stops services
func (gnb *GNB) ListenShutdownEvent() {
	defer gnb.wg.Done()
	defer util.RecoverWithLog(logger.InitLog)
	<-gnb.ctx.Done()
	gnb.stopServiceConn()
}

// Stop cancels the run context and waits for every service to stop.
func (gnb *GNB) Stop() {
	if gnb.cancel != nil {
		gnb.cancel()
	}
	gnb.wg.Wait()
}

// WaitRoutineStopped waits for all goroutines and terminates
func (gnb *GNB) WaitRoutineStopped() {
	gnb.wg.Wait()
	time.Sleep(2 * time.Second)
	os.Exit(0)
}

// stopServiceConn stops all running services
func (gnb *GNB) stopServiceConn() {
	logger.InitLog.Infoln("stopping services created by gNB")
	if gnb.reporter != nil {
		gnb.reporter.Close()
	}
	if gnb.cuup != nil {
		gnb.cuup.Stop()
	}
	if gnb.e1Client != nil {
		gnb.e1Client.Close()
	}
	for _, g := range []*gtpService.UdpGateway{gnb.n3, gnb.f1u} {
		if g == nil {
			continue
		}
		if err := g.Close(); err != nil {
			logger.GtpuLog.Warnf("close GTP-U gateway: %+v", err)
		}
	}
	if gnb.timers != nil {
		gnb.timers.Stop()
	}
	if gnb.cucp != nil {
		gnb.cucp.Stop()
		gnb.ngClient.Close()
	}
	if gnb.f1cServer != nil {
		gnb.f1cServer.Close()
	}
	if gnb.e1Server != nil {
		gnb.e1Server.Close()
	}
	for _, w := range []*pcap.Writer{gnb.ngapPcap, gnb.f1apPcap, gnb.e1apPcap, gnb.gtpuPcap} {
		if w == nil {
			continue
		}
		if err := w.Close(); err != nil {
			logger.PcapLog.Warnf("close capture: %+v", err)
		}
	}
	tracing.CloseTraceFile()
}
