// SPDX-FileCopyrightText: 2024 Intel Corporation
// Copyright 2019 free5GC.org
//
// SPDX-License-Identifier: Apache-2.0

package factory

import (
	"fmt"
	"os"
	"time"

	"github.com/omec-project/gnb/logger"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

var GnbConfig Config

func InitConfigFactory(f string) error {
	content, err := os.ReadFile(f)
	if err != nil {
		return errors.Wrapf(err, "read config %s", f)
	}

	cfg, err := ParseConfig(content)
	if err != nil {
		return err
	}
	GnbConfig = *cfg
	return nil
}

// ParseConfig decodes a YAML document, fills in defaults and validates the
// result.
func ParseConfig(content []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(content, cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if cfg.Configuration == nil {
		cfg.Configuration = &Configuration{}
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func CheckConfigVersion() error {
	currentVersion := GnbConfig.getVersion()

	if currentVersion != GNB_EXPECTED_CONFIG_VERSION {
		return fmt.Errorf("config version is [%s], but expected is [%s]",
			currentVersion, GNB_EXPECTED_CONFIG_VERSION)
	}

	logger.CfgLog.Infof("config version [%s]", currentVersion)

	return nil
}

// SetDefaults fills every unset option with its default value.
func (c *Config) SetDefaults() {
	cucp := &c.Configuration.CuCp
	if cucp.GnbIdBitLength == 0 {
		cucp.GnbIdBitLength = 22
	}
	if cucp.RanNodeName == "" {
		cucp.RanNodeName = "gnb"
	}
	if cucp.Amf.Port == 0 {
		cucp.Amf.Port = 38412
	}
	if cucp.F1cBind.Port == 0 {
		cucp.F1cBind.Port = 38472
	}
	if len(cucp.F1cBind.Addresses) == 0 {
		cucp.F1cBind.Addresses = []string{"127.0.10.1"}
	}
	if cucp.E1Bind.Port == 0 {
		cucp.E1Bind.Port = 38462
	}
	if len(cucp.E1Bind.Addresses) == 0 {
		cucp.E1Bind.Addresses = []string{"127.0.10.2"}
	}
	for _, ep := range []*SctpEndpoint{&cucp.Amf, &cucp.NgBind, &cucp.F1cBind, &cucp.E1Bind} {
		if ep.Streams == 0 {
			ep.Streams = 2
		}
	}
	if cucp.MaxNofDus == 0 {
		cucp.MaxNofDus = 6
	}
	if cucp.MaxNofCuUps == 0 {
		cucp.MaxNofCuUps = 6
	}
	if cucp.MaxNofUes == 0 {
		cucp.MaxNofUes = 8192
	}
	if cucp.NgSetupTimeout == 0 {
		cucp.NgSetupTimeout = 5 * time.Second
	}
	if cucp.ProcedureTimeout == 0 {
		cucp.ProcedureTimeout = time.Second
	}

	cuup := &c.Configuration.CuUp
	if cuup.CuUpName == "" {
		cuup.CuUpName = "cu-up"
	}
	if cuup.UpfPort == 0 {
		cuup.UpfPort = GTPU_PORT
	}
	if cuup.CuCpE1.Port == 0 {
		cuup.CuCpE1.Port = cucp.E1Bind.Port
	}
	if len(cuup.CuCpE1.Addresses) == 0 {
		cuup.CuCpE1.Addresses = cucp.E1Bind.Addresses
	}
	setInterfaceDefaults(&cuup.N3, "127.0.1.1")
	setInterfaceDefaults(&cuup.F1u, "127.0.2.1")
	if cuup.DlNotifPeriod == 0 {
		cuup.DlNotifPeriod = 10 * time.Millisecond
	}
	if cuup.TestMode.Enabled {
		if cuup.TestMode.NeaAlgo == 0 {
			cuup.TestMode.NeaAlgo = 2
		}
		if cuup.TestMode.NiaAlgo == 0 {
			cuup.TestMode.NiaAlgo = 2
		}
	}
	if cuup.MaxNofBearers == 0 {
		cuup.MaxNofBearers = 8192
	}
	if cuup.GtpuQueueLength == 0 {
		cuup.GtpuQueueLength = 8192
	}

	phy := &c.Configuration.Phy
	if phy.PdschProcessorType == "" {
		phy.PdschProcessorType = PdschProcessorGeneric
	}
	if phy.CbWorkerPoolSize == 0 {
		phy.CbWorkerPoolSize = 4
	}
	if phy.NofThreads == 0 {
		phy.NofThreads = 4
	}
	if phy.TaskQueueSize == 0 {
		phy.TaskQueueSize = 128
	}
	if phy.ScsKhz == 0 {
		phy.ScsKhz = 30
	}

	pcap := &c.Configuration.Pcap
	for _, f := range []struct {
		file    *string
		pattern string
	}{
		{&pcap.NgapFile, "/tmp/gnb_ngap.pcap"},
		{&pcap.F1apFile, "/tmp/gnb_f1ap.pcap"},
		{&pcap.E1apFile, "/tmp/gnb_e1ap.pcap"},
		{&pcap.GtpuFile, "/tmp/gnb_gtpu.pcap"},
	} {
		if *f.file == "" {
			*f.file = f.pattern
		}
	}

	if c.Configuration.Metrics.Period == 0 {
		c.Configuration.Metrics.Period = time.Second
	}
	if c.Configuration.Tracing.File == "" {
		c.Configuration.Tracing.File = "/tmp/gnb_trace_%Y%m%d-%H%M%S.json"
	}
}

func setInterfaceDefaults(nic *NetworkInterfaceConfig, bindAddress string) {
	if nic.BindAddress == "" {
		nic.BindAddress = bindAddress
	}
	if nic.BindPort == 0 {
		nic.BindPort = GTPU_PORT
	}
	if nic.BindInterface == "" {
		nic.BindInterface = "auto"
	}
	if nic.ExtAddress == "" {
		nic.ExtAddress = "auto"
	}
	if nic.RxMaxMmsg == 0 {
		nic.RxMaxMmsg = 256
	}
	if nic.PoolThreshold == 0 {
		nic.PoolThreshold = 0.9
	}
}

// Validate rejects option values the gNB cannot run with.
func (c *Config) Validate() error {
	cucp := c.Configuration.CuCp
	if cucp.GnbIdBitLength < 22 || cucp.GnbIdBitLength > 32 {
		return errors.Errorf("gnbIdBitLength %d out of range [22, 32]", cucp.GnbIdBitLength)
	}
	if cucp.GnbIdBitLength < 32 && cucp.GnbId >= 1<<cucp.GnbIdBitLength {
		return errors.Errorf("gnbId %d does not fit in %d bits", cucp.GnbId, cucp.GnbIdBitLength)
	}
	if cucp.MaxNofDus < 0 || cucp.MaxNofCuUps < 0 || cucp.MaxNofUes < 0 {
		return errors.New("CU-CP capacity limits must be positive")
	}
	if cucp.MaxNofUes > MaxNofUesPerDu {
		return errors.Errorf("maxNofUes %d exceeds %d", cucp.MaxNofUes, MaxNofUesPerDu)
	}
	if cucp.Enable {
		if len(cucp.Plmn.Mcc) != 3 || (len(cucp.Plmn.Mnc) != 2 && len(cucp.Plmn.Mnc) != 3) {
			return errors.Errorf("invalid PLMN %s-%s", cucp.Plmn.Mcc, cucp.Plmn.Mnc)
		}
	}

	cuup := c.Configuration.CuUp
	for name, nic := range map[string]NetworkInterfaceConfig{"n3": cuup.N3, "f1u": cuup.F1u} {
		if nic.PoolThreshold <= 0 || nic.PoolThreshold > 1 {
			return errors.Errorf("%s poolThreshold %v out of range (0, 1]", name, nic.PoolThreshold)
		}
		if nic.RxMaxMmsg < 1 {
			return errors.Errorf("%s rxMaxMmsg must be positive", name)
		}
	}
	if cuup.TestMode.NeaAlgo > 3 || cuup.TestMode.NiaAlgo > 3 {
		return errors.Errorf("test mode NEA/NIA %d/%d out of range", cuup.TestMode.NeaAlgo, cuup.TestMode.NiaAlgo)
	}

	phy := c.Configuration.Phy
	switch phy.PdschProcessorType {
	case PdschProcessorGeneric, PdschProcessorConcurrent:
	default:
		return errors.Errorf("unknown PDSCH processor type %q", phy.PdschProcessorType)
	}
	if phy.CbWorkerPoolSize < 1 || phy.NofThreads < 1 {
		return errors.New("PHY worker pool sizes must be positive")
	}
	return nil
}

// MaxNofUesPerDu bounds the slot part of a UE index.
const MaxNofUesPerDu = 1 << 16
