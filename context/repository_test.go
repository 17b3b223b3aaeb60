// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"testing"

	"github.com/omec-project/gnb/f1ap"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopF1Tx struct{}

func (nopF1Tx) OnNewMessage(*f1ap.Pdu) {}

func TestDuRepositoryCapAndChurn(t *testing.T) {
	r := NewDuRepository(2)
	a, err := r.AddDu(nopF1Tx{})
	require.NoError(t, err)
	b, err := r.AddDu(nopF1Tx{})
	require.NoError(t, err)
	assert.Equal(t, DuIndex(0), a.Index)
	assert.Equal(t, DuIndex(1), b.Index)
	assert.False(t, a.SetupDone())

	_, err = r.AddDu(nopF1Tx{})
	assert.Equal(t, ErrAdmissionRejected, errors.Cause(err))

	r.RemoveDu(a.Index)
	r.RemoveDu(a.Index)
	c, err := r.AddDu(nopF1Tx{})
	require.NoError(t, err)
	assert.Equal(t, DuIndex(0), c.Index)
}

func TestDuLookup(t *testing.T) {
	r := NewDuRepository(4)
	du, err := r.AddDu(nopF1Tx{})
	require.NoError(t, err)
	cgi := f1ap.NrCgi{Plmn: [3]byte{0x00, 0xf1, 0x10}, NrCellId: 0x66c000}
	du.Id = 0x55
	du.Cells = []f1ap.ServedCell{{NrCgi: cgi, Pci: 1}}

	assert.Same(t, du, r.FindDuByGnbDuId(0x55))
	assert.Nil(t, r.FindDuByGnbDuId(0x56))
	require.NotNil(t, du.FindCell(cgi))
	assert.Equal(t, uint16(1), du.FindCell(cgi).Pci)
	assert.Nil(t, du.FindCell(f1ap.NrCgi{}))
}

func TestMetricsReportListsAnonymousDus(t *testing.T) {
	c := NewCuCpContext(2, 1, 4, 4)
	defer c.Ues.Stop()
	_, err := c.Dus.AddDu(nopF1Tx{})
	require.NoError(t, err)
	ue, err := c.Ues.AddUe(0)
	require.NoError(t, err)
	_, err = c.Ues.SetUeDuContext(ue.Index, 0x55, 1, 0x4601)
	require.NoError(t, err)

	report := c.MetricsReport()
	require.Len(t, report.Dus, 1)
	assert.Equal(t, InvalidGnbDuId, report.Dus[0].Id)
	require.Len(t, report.Ues, 1)
	assert.Equal(t, UeMetrics{Rnti: 0x4601, DuId: 0x55, Pci: 1, Index: ue.Index}, report.Ues[0])
	assert.False(t, c.AmfConnected())
}
