// SPDX-FileCopyrightText: 2024 Intel Corporation
// Copyright 2019 free5GC.org
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/omec-project/gnb/factory"
	"github.com/omec-project/gnb/logger"
	"github.com/omec-project/gnb/service"
	"github.com/urfave/cli"
	"go.uber.org/zap"
)

var GNB = &service.GNB{}

var appLog *zap.SugaredLogger

func init() {
	appLog = logger.AppLog
}

func main() {
	app := cli.NewApp()
	app.Name = "gnb"
	appLog.Infoln(app.Name)
	app.Usage = "-cfg gnb configuration file"
	app.Action = action
	app.Flags = GNB.GetCliCmd()
	app.Commands = []cli.Command{
		{
			Name:   "bench",
			Usage:  "run the PDSCH processor over synthetic slots",
			Action: bench,
			Flags: []cli.Flag{
				cli.StringFlag{Name: "cfg", Usage: "gnb config file, the phy section selects the processor"},
				cli.StringFlag{Name: "processor", Usage: "generic or concurrent, overrides the config"},
				cli.IntFlag{Name: "slots", Value: 1000, Usage: "number of slots"},
				cli.DurationFlag{Name: "timeout", Value: time.Minute},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		appLog.Errorf("gNB run Error: %v", err)
	}
}

func action(c *cli.Context) error {
	if err := GNB.Initialize(c); err != nil {
		logger.CfgLog.Errorf("%+v", err)
		return fmt.Errorf("failed to initialize")
	}

	GNB.Start()

	return nil
}

func bench(c *cli.Context) error {
	cfg := &factory.Config{Configuration: &factory.Configuration{}}
	if path := c.String("cfg"); path != "" {
		if err := factory.InitConfigFactory(path); err != nil {
			logger.CfgLog.Errorf("%+v", err)
			return fmt.Errorf("failed to load config")
		}
		cfg = &factory.GnbConfig
	} else {
		cfg.SetDefaults()
	}
	phy := cfg.Configuration.Phy
	if kind := c.String("processor"); kind != "" {
		phy.PdschProcessorType = kind
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
	defer cancel()
	report, err := service.RunPdschBench(ctx, phy, c.Int("slots"))
	if err != nil {
		return err
	}
	fmt.Printf("%s processor: %d PDSCH in %v, %.1f Mbps, %d late messages\n",
		report.ProcessorType, report.NofPdschs, report.Elapsed, report.Mbps(), report.Dropped)
	return nil
}
