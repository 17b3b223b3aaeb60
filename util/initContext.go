// SPDX-FileCopyrightText: 2024 Intel Corporation
// Copyright 2019 free5GC.org
//
// SPDX-License-Identifier: Apache-2.0

package util

import (
	"fmt"
	"net"
	"strings"

	"github.com/omec-project/gnb/factory"
	"github.com/omec-project/gnb/logger"
)

const (
	requiredSdLength = 6
	maxTac           = 1<<24 - 1
)

// InitGnbContext checks the parts of the configuration that need the host
// (address resolution, interface lookup) and normalizes the slice list.
func InitGnbContext(cfg *factory.Configuration) bool {
	if cfg == nil {
		logger.CtxLog.Errorln("no gNB configuration found")
		return false
	}

	if cfg.CuCp.Enable {
		cucp := &cfg.CuCp
		if len(cucp.Amf.Addresses) == 0 {
			logger.CtxLog.Errorln("no AMF specified")
			return false
		}
		for _, address := range cucp.Amf.Addresses {
			if _, err := net.ResolveIPAddr("ip", address); err != nil {
				logger.CtxLog.Errorf("resolve AMF IP address failed: %+v", err)
				return false
			}
		}
		if cucp.Tac > maxTac {
			logger.CtxLog.Errorf("tac %d does not fit in 24 bits", cucp.Tac)
			return false
		}
		if !formatSliceList(cucp.Slices) {
			return false
		}
	}

	if cfg.CuUp.Enable {
		for name, nic := range map[string]factory.NetworkInterfaceConfig{"n3": cfg.CuUp.N3, "f1u": cfg.CuUp.F1u} {
			if nic.BindInterface == "auto" {
				continue
			}
			if _, err := net.InterfaceByName(nic.BindInterface); err != nil {
				logger.CtxLog.Errorf("%s bind interface %s: %+v", name, nic.BindInterface, err)
				return false
			}
		}
	}
	return true
}

func formatSliceList(slices []factory.Snssai) bool {
	for i := range slices {
		s := &slices[i]
		if s.Sst == 0 {
			logger.CtxLog.Errorln("sst is mandatory")
			return false
		}
		if s.Sd == "" {
			logger.CtxLog.Infoln("Snssai does not include sd")
			continue
		}
		sdLength := len(s.Sd)
		if sdLength > requiredSdLength {
			logger.CtxLog.Errorf("detected configuration sd length > %d", requiredSdLength)
			return false
		}
		if sdLength < requiredSdLength {
			logger.CtxLog.Debugf("detected configuration sd length < %d", requiredSdLength)
			s.Sd = strings.Repeat("0", requiredSdLength-sdLength) + s.Sd
			logger.CtxLog.Debugf("change to %s", s.Sd)
		}
	}
	return true
}

// InterfaceName returns the name of the interface owning ipAddress.
func InterfaceName(ipAddress string) (string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}

	res, err := net.ResolveIPAddr("ip4", ipAddress)
	if err != nil {
		return "", fmt.Errorf("error resolving address '%s': %v", ipAddress, err)
	}
	ipAddress = res.String()

	for _, inter := range interfaces {
		addrs, err := inter.Addrs()
		if err != nil {
			return "", err
		}
		for _, addr := range addrs {
			s := addr.String()
			if i := strings.Index(s, "/"); i >= 0 {
				s = s[:i]
			}
			if ipAddress == s {
				return inter.Name, nil
			}
		}
	}
	return "", fmt.Errorf("cannot find interface name")
}
