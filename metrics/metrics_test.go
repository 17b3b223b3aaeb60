// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/api/write"
	gnb_context "github.com/omec-project/gnb/context"
	"github.com/omec-project/gnb/cuup"
	"github.com/omec-project/gnb/factory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cuCpStub struct{ report gnb_context.CuCpMetrics }

func (s cuCpStub) HandleMetricsReportRequest() gnb_context.CuCpMetrics { return s.report }

type cuUpStub struct{ m cuup.Metrics }

func (s cuUpStub) HandleMetricsReportRequest() cuup.Metrics { return s.m }

type writerStub struct {
	points []*write.Point
	err    error
}

func (w *writerStub) WritePoint(_ context.Context, point ...*write.Point) error {
	w.points = append(w.points, point...)
	return w.err
}

func names(points []*write.Point) []string {
	var n []string
	for _, p := range points {
		n = append(n, p.Name())
	}
	return n
}

func TestReportWritesOnePointPerEntity(t *testing.T) {
	cucp := cuCpStub{report: gnb_context.CuCpMetrics{
		Dus: []gnb_context.DuMetrics{
			{Index: 0, Id: 0x55, Cells: []gnb_context.CellMetrics{{Pci: 1}}},
			{Index: 1, Id: gnb_context.InvalidGnbDuId},
		},
		Ues: []gnb_context.UeMetrics{{Rnti: 0x4601, DuId: 0x55, Pci: 1}},
	}}
	w := &writerStub{}
	r := NewReporterWithWriter(time.Second, cucp, cuUpStub{m: cuup.Metrics{NofDrbs: 2}}, w)

	require.NoError(t, r.Report(context.Background(), time.Now()))
	assert.Equal(t, []string{"cu_cp", "du", "du", "ue", "cu_up"}, names(w.points))
}

func TestReportWithoutSources(t *testing.T) {
	w := &writerStub{}
	r := NewReporterWithWriter(0, nil, nil, w)
	require.NoError(t, r.Report(context.Background(), time.Now()))
	assert.Empty(t, w.points)
}

func TestReportWrapsWriteErrors(t *testing.T) {
	w := &writerStub{err: errors.New("unreachable")}
	r := NewReporterWithWriter(time.Second, nil, cuUpStub{}, w)
	err := r.Report(context.Background(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
}

func TestRunStopsWithContext(t *testing.T) {
	w := &writerStub{}
	r := NewReporterWithWriter(time.Millisecond, nil, nil, w)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestNewReporterRequiresUrl(t *testing.T) {
	_, err := NewReporter(factory.MetricsConfig{Enable: true}, nil, nil)
	assert.Error(t, err)
}
