// SPDX-FileCopyrightText: 2024 Intel Corporation
// Copyright 2019 free5GC.org
//
// SPDX-License-Identifier: Apache-2.0

package factory

import (
	"time"

	utilLogger "github.com/omec-project/util/logger"
)

const (
	GNB_EXPECTED_CONFIG_VERSION = "1.0.0"

	// GTPU_PORT is the registered UDP port of GTP-U.
	GTPU_PORT = 2152

	PdschProcessorGeneric    = "generic"
	PdschProcessorConcurrent = "concurrent"
)

type Config struct {
	Info          *Info          `yaml:"info"`
	Configuration *Configuration `yaml:"configuration"`
	Logger        *Logger        `yaml:"logger"`
}

type Info struct {
	Version     string `yaml:"version,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// Logger holds per-module log settings. The library modules reuse the omec
// LogSetting so their levels are set the same way as ours.
type Logger struct {
	GNB  *utilLogger.LogSetting `yaml:"GNB"`
	NGAP *utilLogger.LogSetting `yaml:"NGAP"`
	Aper *utilLogger.LogSetting `yaml:"Aper"`
	Util *utilLogger.LogSetting `yaml:"Util"`
}

type Configuration struct {
	CuCp    CuCpConfig    `yaml:"cuCp"`
	CuUp    CuUpConfig    `yaml:"cuUp"`
	Phy     PhyConfig     `yaml:"phy"`
	Pcap    PcapConfig    `yaml:"pcap"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

type PlmnId struct {
	Mcc string `yaml:"mcc"`
	Mnc string `yaml:"mnc"`
}

type Snssai struct {
	Sst uint8  `yaml:"sst"`
	Sd  string `yaml:"sd,omitempty"`
}

type SctpEndpoint struct {
	Addresses []string `yaml:"addresses"`
	Port      int      `yaml:"port"`
	Streams   uint16   `yaml:"streams,omitempty"`
}

type CuCpConfig struct {
	Enable           bool          `yaml:"enable"`
	GnbId            uint32        `yaml:"gnbId"`
	GnbIdBitLength   uint8         `yaml:"gnbIdBitLength"`
	RanNodeName      string        `yaml:"ranNodeName"`
	Plmn             PlmnId        `yaml:"plmn"`
	Tac              uint32        `yaml:"tac"`
	Slices           []Snssai      `yaml:"slices"`
	Amf              SctpEndpoint  `yaml:"amf"`
	NgBind           SctpEndpoint  `yaml:"ngBind"`
	F1cBind          SctpEndpoint  `yaml:"f1cBind"`
	E1Bind           SctpEndpoint  `yaml:"e1Bind"`
	MaxNofDus        int           `yaml:"maxNofDus"`
	MaxNofCuUps      int           `yaml:"maxNofCuUps"`
	MaxNofUes        int           `yaml:"maxNofUes"`
	NgSetupTimeout   time.Duration `yaml:"ngSetupTimeout"`
	ProcedureTimeout time.Duration `yaml:"procedureTimeout"`
}

// NetworkInterfaceConfig describes one GTP-U UDP endpoint.
type NetworkInterfaceConfig struct {
	BindAddress   string  `yaml:"bindAddress"`
	BindPort      int     `yaml:"bindPort"`
	BindInterface string  `yaml:"bindInterface"`
	ExtAddress    string  `yaml:"extAddress"`
	RxMaxMmsg     int     `yaml:"rxMaxMmsg"`
	PoolThreshold float64 `yaml:"poolThreshold"`
}

type CuUpTestModeConfig struct {
	Enabled    bool  `yaml:"enabled"`
	Integrity  bool  `yaml:"integrity"`
	Ciphering  bool  `yaml:"ciphering"`
	NeaAlgo    uint8 `yaml:"neaAlgo"`
	NiaAlgo    uint8 `yaml:"niaAlgo"`
	NofUes     int   `yaml:"nofUes,omitempty"`
	NofPduSess int   `yaml:"nofPduSessions,omitempty"`
}

type CuUpConfig struct {
	Enable          bool                   `yaml:"enable"`
	CuUpName        string                 `yaml:"cuUpName"`
	CuUpId          uint64                 `yaml:"cuUpId"`
	CuCpE1          SctpEndpoint           `yaml:"cuCpE1"`
	UpfPort         int                    `yaml:"upfPort"`
	N3              NetworkInterfaceConfig `yaml:"n3"`
	F1u             NetworkInterfaceConfig `yaml:"f1u"`
	N3ReorderTimer  time.Duration          `yaml:"n3ReorderingTimer"`
	WarnOnDrop      bool                   `yaml:"warnOnDrop"`
	DlNotifPeriod   time.Duration          `yaml:"f1uDlNotificationPeriod"`
	TestMode        CuUpTestModeConfig     `yaml:"testMode"`
	TrustE1UpfPort  bool                   `yaml:"trustE1UpfPort"`
	MaxNofBearers   int                    `yaml:"maxNofBearers,omitempty"`
	GtpuQueueLength int                    `yaml:"gtpuQueueLength,omitempty"`
}

type PhyConfig struct {
	Enable             bool   `yaml:"enable"`
	PdschProcessorType string `yaml:"pdschProcessorType"`
	CbWorkerPoolSize   int    `yaml:"cbWorkerPoolSize"`
	NofThreads         int    `yaml:"nofThreads"`
	TaskQueueSize      int    `yaml:"taskQueueSize"`
	L2NofSlotsAhead    int    `yaml:"l2NofSlotsAhead"`
	ScsKhz             int    `yaml:"scsKhz"`
}

type PcapConfig struct {
	NgapEnable bool   `yaml:"ngapEnable"`
	NgapFile   string `yaml:"ngapFile"`
	F1apEnable bool   `yaml:"f1apEnable"`
	F1apFile   string `yaml:"f1apFile"`
	E1apEnable bool   `yaml:"e1apEnable"`
	E1apFile   string `yaml:"e1apFile"`
	GtpuEnable bool   `yaml:"gtpuEnable"`
	GtpuFile   string `yaml:"gtpuFile"`
}

type MetricsConfig struct {
	Enable       bool          `yaml:"enable"`
	InfluxDBUrl  string        `yaml:"influxDBUrl"`
	InfluxToken  string        `yaml:"influxToken"`
	Organization string        `yaml:"organization"`
	Bucket       string        `yaml:"bucket"`
	Period       time.Duration `yaml:"period"`
}

type TracingConfig struct {
	Enable bool   `yaml:"enable"`
	File   string `yaml:"file"`
}

func (c *Config) getVersion() string {
	if c.Info != nil && c.Info.Version != "" {
		return c.Info.Version
	}
	return ""
}
