// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"testing"

	"github.com/omec-project/gnb/factory"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newTestUeManager(t *testing.T, maxNofUes int) *UeManager {
	m := NewUeManager(maxNofUes, 16)
	t.Cleanup(m.Stop)
	return m
}

func TestUeIndexPacking(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		du := DuIndex(rapid.Uint32Range(0, 1<<16-1).Draw(t, "du"))
		slot := rapid.Uint32Range(0, factory.MaxNofUesPerDu-1).Draw(t, "slot")
		idx := GenerateUeIndex(du, slot)
		require.Equal(t, du, idx.DuIndex())
		require.Equal(t, slot, idx.Slot())
	})
	assert.Equal(t, InvalidUeIndex, GenerateUeIndex(0, factory.MaxNofUesPerDu))
	assert.Equal(t, InvalidDuIndex, InvalidUeIndex.DuIndex())
}

func TestUeIndexesOfDifferentDusDiffer(t *testing.T) {
	m := newTestUeManager(t, 4)
	a, err := m.AddUe(0)
	require.NoError(t, err)
	b, err := m.AddUe(1)
	require.NoError(t, err)
	assert.NotEqual(t, a.Index, b.Index)
	assert.Equal(t, DuIndex(1), b.Index.DuIndex())
	assert.Equal(t, uint32(0), b.Index.Slot())
}

func TestAddUeAllocatesLowestFreeSlot(t *testing.T) {
	m := newTestUeManager(t, 8)
	var idxs []UeIndex
	for range 3 {
		ue, err := m.AddUe(2)
		require.NoError(t, err)
		idxs = append(idxs, ue.Index)
	}
	assert.Equal(t, []UeIndex{GenerateUeIndex(2, 0), GenerateUeIndex(2, 1), GenerateUeIndex(2, 2)}, idxs)

	m.RemoveUe(idxs[1])
	ue, err := m.AddUe(2)
	require.NoError(t, err)
	assert.Equal(t, idxs[1], ue.Index)
	assert.NotNil(t, m.FindUeTaskScheduler(ue.Index))
}

func TestAddUeRespectsCap(t *testing.T) {
	m := newTestUeManager(t, 2)
	_, err := m.AddUe(0)
	require.NoError(t, err)
	_, err = m.AddUe(1)
	require.NoError(t, err)
	_, err = m.AddUe(0)
	assert.Equal(t, ErrAdmissionRejected, errors.Cause(err))
	assert.Equal(t, 2, m.GetNofUes())
}

func TestPciRntiRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := NewUeManager(64, 4)
		defer m.Stop()
		live := map[PciRnti]UeIndex{}
		n := rapid.IntRange(1, 32).Draw(t, "nofUes")
		for range n {
			key := PciRnti{
				Pci:   rapid.Uint16Range(0, 1007).Draw(t, "pci"),
				CRnti: rapid.Uint16Range(1, 0xffef).Draw(t, "crnti"),
			}
			du := DuIndex(rapid.Uint32Range(0, 3).Draw(t, "du"))
			ue, err := m.AddUe(du)
			require.NoError(t, err)
			_, err = m.SetUeDuContext(ue.Index, GnbDuId(du), key.Pci, key.CRnti)
			if _, dup := live[key]; dup {
				require.Equal(t, ErrDuplicateUe, errors.Cause(err))
				m.RemoveUe(ue.Index)
				continue
			}
			require.NoError(t, err)
			live[key] = ue.Index
		}
		for key, idx := range live {
			require.Equal(t, idx, m.GetUeIndex(key.Pci, key.CRnti))
			ue := m.FindDuUe(idx)
			require.NotNil(t, ue)
			require.Equal(t, key, ue.PciRnti())
		}
		require.Equal(t, len(live), m.GetNofUes())
	})
}

func TestRemoveUeIsIdempotent(t *testing.T) {
	m := newTestUeManager(t, 4)
	ue, err := m.AddUe(0)
	require.NoError(t, err)
	_, err = m.SetUeDuContext(ue.Index, 1, 1, 0x4601)
	require.NoError(t, err)

	m.RemoveUe(InvalidUeIndex)
	m.RemoveUe(GenerateUeIndex(3, 3))
	assert.Equal(t, 1, m.GetNofUes())

	m.RemoveUe(ue.Index)
	m.RemoveUe(ue.Index)
	assert.Zero(t, m.GetNofUes())
	assert.Equal(t, InvalidUeIndex, m.GetUeIndex(1, 0x4601))
	assert.Nil(t, m.FindUeTaskScheduler(ue.Index))
}

func TestSetUeDuContextMovesKey(t *testing.T) {
	m := newTestUeManager(t, 4)
	ue, err := m.AddUe(0)
	require.NoError(t, err)
	assert.Nil(t, m.FindDuUe(ue.Index))

	_, err = m.SetUeDuContext(ue.Index, 1, 1, 0x4601)
	require.NoError(t, err)
	_, err = m.SetUeDuContext(ue.Index, 1, 2, 0x4602)
	require.NoError(t, err)
	assert.Equal(t, InvalidUeIndex, m.GetUeIndex(1, 0x4601))
	assert.Equal(t, ue.Index, m.GetUeIndex(2, 0x4602))

	_, err = m.SetUeDuContext(GenerateUeIndex(0, 9), 1, 3, 3)
	assert.Equal(t, ErrUnknownUe, errors.Cause(err))
}

func TestGetNofDuUes(t *testing.T) {
	m := newTestUeManager(t, 8)
	for _, du := range []DuIndex{0, 0, 1, 2, 2, 2} {
		_, err := m.AddUe(du)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, m.GetNofDuUes(0))
	assert.Equal(t, 1, m.GetNofDuUes(1))
	assert.Equal(t, 3, m.GetNofDuUes(2))
	assert.Len(t, m.DuUes(2), 3)
	assert.Zero(t, m.GetNofDuUes(7))
}
