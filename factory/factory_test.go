// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package factory

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
info:
  version: 1.0.0
  description: gNB test configuration
configuration:
  cuCp:
    enable: true
    gnbId: 411
    plmn:
      mcc: "001"
      mnc: "01"
    tac: 7
    slices:
      - sst: 1
    amf:
      addresses: ["127.0.0.5"]
  cuUp:
    enable: true
    n3:
      bindAddress: 127.0.1.10
    testMode:
      enabled: true
  phy:
    pdschProcessorType: concurrent
  metrics:
    period: 5s
logger:
  GNB:
    debugLevel: debug
`

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)
	c := cfg.Configuration

	assert.Equal(t, uint8(22), c.CuCp.GnbIdBitLength)
	assert.Equal(t, 38412, c.CuCp.Amf.Port)
	assert.Equal(t, uint16(2), c.CuCp.Amf.Streams)
	assert.Equal(t, []string{"127.0.10.2"}, c.CuUp.CuCpE1.Addresses, "CU-UP dials the CU-CP E1 bind address")
	assert.Equal(t, time.Second, c.CuCp.ProcedureTimeout)

	assert.Equal(t, "127.0.1.10", c.CuUp.N3.BindAddress)
	assert.Equal(t, GTPU_PORT, c.CuUp.N3.BindPort)
	assert.Equal(t, "auto", c.CuUp.N3.ExtAddress)
	assert.Equal(t, 0.9, c.CuUp.F1u.PoolThreshold)
	assert.Equal(t, 256, c.CuUp.F1u.RxMaxMmsg)
	assert.Equal(t, 10*time.Millisecond, c.CuUp.DlNotifPeriod)
	assert.Equal(t, uint8(2), c.CuUp.TestMode.NeaAlgo)
	assert.Equal(t, uint8(2), c.CuUp.TestMode.NiaAlgo)

	assert.Equal(t, PdschProcessorConcurrent, c.Phy.PdschProcessorType)
	assert.Equal(t, 5*time.Second, c.Metrics.Period)
	assert.Equal(t, "/tmp/gnb_gtpu.pcap", c.Pcap.GtpuFile)
	assert.Equal(t, "debug", cfg.Logger.GNB.DebugLevel)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Configuration){
		"gnb id length": func(c *Configuration) { c.CuCp.GnbIdBitLength = 21 },
		"gnb id size":   func(c *Configuration) { c.CuCp.GnbId = 1 << 22 },
		"plmn":          func(c *Configuration) { c.CuCp.Plmn.Mnc = "1" },
		"ues":           func(c *Configuration) { c.CuCp.MaxNofUes = MaxNofUesPerDu + 1 },
		"threshold":     func(c *Configuration) { c.CuUp.N3.PoolThreshold = 1.5 },
		"mmsg":          func(c *Configuration) { c.CuUp.F1u.RxMaxMmsg = -1 },
		"nea":           func(c *Configuration) { c.CuUp.TestMode.NeaAlgo = 4 },
		"processor":     func(c *Configuration) { c.Phy.PdschProcessorType = "fast" },
		"pool":          func(c *Configuration) { c.Phy.CbWorkerPoolSize = -2 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg, err := ParseConfig([]byte(sampleConfig))
			require.NoError(t, err)
			mutate(cfg.Configuration)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestInitConfigFactoryAndVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gnb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	require.NoError(t, InitConfigFactory(path))
	assert.NoError(t, CheckConfigVersion())
	assert.Equal(t, uint32(411), GnbConfig.Configuration.CuCp.GnbId)

	GnbConfig.Info.Version = "0.9.0"
	assert.Error(t, CheckConfigVersion())

	assert.Error(t, InitConfigFactory(filepath.Join(dir, "missing.yaml")))
	require.NoError(t, os.WriteFile(path, []byte("configuration: ["), 0o600))
	assert.Error(t, InitConfigFactory(path))
}
