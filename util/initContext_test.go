// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package util

import (
	"testing"

	"github.com/omec-project/gnb/factory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gnbConfiguration() *factory.Configuration {
	cfg := &factory.Configuration{}
	cfg.CuCp.Enable = true
	cfg.CuCp.Amf.Addresses = []string{"127.0.0.1"}
	cfg.CuCp.Tac = 7
	cfg.CuCp.Slices = []factory.Snssai{{Sst: 1, Sd: "102"}, {Sst: 2}}
	return cfg
}

func TestInitGnbContextPadsSd(t *testing.T) {
	cfg := gnbConfiguration()
	require.True(t, InitGnbContext(cfg))
	assert.Equal(t, "000102", cfg.CuCp.Slices[0].Sd)
	assert.Empty(t, cfg.CuCp.Slices[1].Sd)
}

func TestInitGnbContextRejects(t *testing.T) {
	cases := map[string]func(*factory.Configuration){
		"no amf":    func(c *factory.Configuration) { c.CuCp.Amf.Addresses = nil },
		"tac":       func(c *factory.Configuration) { c.CuCp.Tac = 1 << 24 },
		"sst":       func(c *factory.Configuration) { c.CuCp.Slices[1].Sst = 0 },
		"sd length": func(c *factory.Configuration) { c.CuCp.Slices[0].Sd = "0102030" },
		"interface": func(c *factory.Configuration) {
			c.CuUp.Enable = true
			c.CuUp.N3.BindInterface = "no-such-interface0"
			c.CuUp.F1u.BindInterface = "auto"
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := gnbConfiguration()
			mutate(cfg)
			assert.False(t, InitGnbContext(cfg))
		})
	}
	assert.False(t, InitGnbContext(nil))
}

func TestInterfaceNameOfLoopback(t *testing.T) {
	name, err := InterfaceName("127.0.0.1")
	if err != nil {
		t.Skipf("no loopback address on this host: %v", err)
	}
	assert.NotEmpty(t, name)
}
