// SPDX-FileCopyrightText: 2024 Intel Corporation
// Copyright 2019 free5GC.org
//
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	log         *zap.Logger
	AppLog      *zap.SugaredLogger
	InitLog     *zap.SugaredLogger
	CfgLog      *zap.SugaredLogger
	CtxLog      *zap.SugaredLogger
	NgapLog     *zap.SugaredLogger
	F1apLog     *zap.SugaredLogger
	E1apLog     *zap.SugaredLogger
	F1uLog      *zap.SugaredLogger
	GtpuLog     *zap.SugaredLogger
	CuUpLog     *zap.SugaredLogger
	PhyLog      *zap.SugaredLogger
	FapiLog     *zap.SugaredLogger
	SctpLog     *zap.SugaredLogger
	PcapLog     *zap.SugaredLogger
	MetricsLog  *zap.SugaredLogger
	TraceLog    *zap.SugaredLogger
	UtilLog     *zap.SugaredLogger
	atomicLevel zap.AtomicLevel
)

func init() {
	atomicLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	config := zap.Config{
		Level:            atomicLevel,
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	encCfg := &config.EncoderConfig
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.LevelKey = "level"
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.CallerKey = "caller"
	encCfg.EncodeCaller = zapcore.ShortCallerEncoder
	encCfg.MessageKey = "message"
	encCfg.StacktraceKey = ""

	var err error
	log, err = config.Build()
	if err != nil {
		panic(err)
	}

	AppLog = log.Sugar().With("component", "GNB", "category", "App")
	InitLog = log.Sugar().With("component", "GNB", "category", "Init")
	CfgLog = log.Sugar().With("component", "GNB", "category", "CFG")
	CtxLog = log.Sugar().With("component", "GNB", "category", "Context")
	NgapLog = log.Sugar().With("component", "GNB", "category", "NGAP")
	F1apLog = log.Sugar().With("component", "GNB", "category", "F1AP")
	E1apLog = log.Sugar().With("component", "GNB", "category", "E1AP")
	F1uLog = log.Sugar().With("component", "GNB", "category", "F1U")
	GtpuLog = log.Sugar().With("component", "GNB", "category", "GTPU")
	CuUpLog = log.Sugar().With("component", "GNB", "category", "CUUP")
	PhyLog = log.Sugar().With("component", "GNB", "category", "PHY")
	FapiLog = log.Sugar().With("component", "GNB", "category", "FAPI")
	SctpLog = log.Sugar().With("component", "GNB", "category", "SCTP")
	PcapLog = log.Sugar().With("component", "GNB", "category", "PCAP")
	MetricsLog = log.Sugar().With("component", "GNB", "category", "Metrics")
	TraceLog = log.Sugar().With("component", "GNB", "category", "Trace")
	UtilLog = log.Sugar().With("component", "GNB", "category", "Util")
}

// GetLogger returns the base zap.Logger
func GetLogger() *zap.Logger {
	return log
}

// SetLogLevel sets the log level (panic|fatal|error|warn|info|debug)
func SetLogLevel(level zapcore.Level) {
	InitLog.Infoln("set log level:", level)
	atomicLevel.SetLevel(level)
}

// DebugEnabled reports whether debug records are emitted. Hot paths check it
// before building log arguments.
func DebugEnabled() bool {
	return atomicLevel.Enabled(zapcore.DebugLevel)
}
