// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package metrics exports the CU-CP and CU-UP reports to InfluxDB.
package metrics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api/write"
	gnb_context "github.com/omec-project/gnb/context"
	"github.com/omec-project/gnb/cuup"
	"github.com/omec-project/gnb/factory"
	"github.com/omec-project/gnb/logger"
	"github.com/omec-project/gnb/util"
	"github.com/pkg/errors"
)

const writeTimeout = 2 * time.Second

// CuCpSource reports the CU-CP state.
type CuCpSource interface {
	HandleMetricsReportRequest() gnb_context.CuCpMetrics
}

// CuUpSource reports the CU-UP counters.
type CuUpSource interface {
	HandleMetricsReportRequest() cuup.Metrics
}

// PointWriter stores points, the InfluxDB blocking write API in production.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

type Reporter struct {
	period time.Duration
	cucp   CuCpSource
	cuup   CuUpSource
	writer PointWriter
	close  func()
}

// NewReporter connects to the configured InfluxDB. Either source may be nil.
func NewReporter(cfg factory.MetricsConfig, cucp CuCpSource, cuup CuUpSource) (*Reporter, error) {
	if cfg.InfluxDBUrl == "" {
		return nil, errors.New("metrics enabled without influxDBUrl")
	}
	client := influxdb2.NewClient(cfg.InfluxDBUrl, cfg.InfluxToken)
	r := NewReporterWithWriter(cfg.Period, cucp, cuup, client.WriteApiBlocking(cfg.Organization, cfg.Bucket))
	r.close = client.Close
	logger.MetricsLog.Infof("exporting metrics to %s, org %q bucket %q every %v",
		cfg.InfluxDBUrl, cfg.Organization, cfg.Bucket, cfg.Period)
	return r, nil
}

func NewReporterWithWriter(period time.Duration, cucp CuCpSource, cuup CuUpSource, w PointWriter) *Reporter {
	if period <= 0 {
		period = time.Second
	}
	return &Reporter{period: period, cucp: cucp, cuup: cuup, writer: w}
}

// Run reports every period until ctx ends.
func (r *Reporter) Run(ctx context.Context) {
	defer util.RecoverWithLog(logger.MetricsLog)
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := r.Report(ctx, now); err != nil {
				logger.MetricsLog.Warnf("write metrics: %+v", err)
			}
		}
	}
}

// Report writes one snapshot stamped with now.
func (r *Reporter) Report(ctx context.Context, now time.Time) error {
	points := r.Points(now)
	if len(points) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := r.writer.WritePoint(ctx, points...); err != nil {
		return errors.Wrapf(err, "write %d points", len(points))
	}
	logger.MetricsLog.Debugf("wrote %d points", len(points))
	return nil
}

// Points builds the InfluxDB points of one snapshot.
func (r *Reporter) Points(now time.Time) []*write.Point {
	var points []*write.Point
	if r.cucp != nil {
		report := r.cucp.HandleMetricsReportRequest()
		points = append(points, influxdb2.NewPointWithMeasurement("cu_cp").
			AddField("nof_dus", len(report.Dus)).
			AddField("nof_ues", len(report.Ues)).
			AddField("nof_cu_ups", report.NofCuUp).
			SetTime(now))
		for _, du := range report.Dus {
			id := "none"
			if du.Id != gnb_context.InvalidGnbDuId {
				id = fmt.Sprintf("%#x", uint64(du.Id))
			}
			points = append(points, influxdb2.NewPointWithMeasurement("du").
				AddTag("du_index", strconv.FormatUint(uint64(du.Index), 10)).
				AddTag("gnb_du_id", id).
				AddField("nof_cells", len(du.Cells)).
				SetTime(now))
		}
		for _, ue := range report.Ues {
			points = append(points, influxdb2.NewPointWithMeasurement("ue").
				AddTag("rnti", fmt.Sprintf("%#x", ue.Rnti)).
				AddTag("pci", strconv.Itoa(int(ue.Pci))).
				AddTag("gnb_du_id", fmt.Sprintf("%#x", uint64(ue.DuId))).
				AddField("ue_index", int64(ue.Index)).
				SetTime(now))
		}
	}
	if r.cuup != nil {
		m := r.cuup.HandleMetricsReportRequest()
		points = append(points, influxdb2.NewPointWithMeasurement("cu_up").
			AddField("nof_bearer_contexts", m.NofBearerContexts).
			AddField("nof_drbs", m.NofDrbs).
			AddField("dl_sdus", int64(m.DlSdus)).
			AddField("ul_sdus", int64(m.UlSdus)).
			AddField("n3_dropped", int64(m.N3Dropped)).
			SetTime(now))
	}
	return points
}

func (r *Reporter) Close() {
	if r.close != nil {
		r.close()
	}
}
