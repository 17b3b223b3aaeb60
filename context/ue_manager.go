// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"fmt"
	"sort"
	"sync"

	"github.com/omec-project/gnb/logger"
	"github.com/omec-project/gnb/support/executor"
	"github.com/pkg/errors"
)

// UeTaskSchedulerRegistry owns the per-UE sequential executors.
type UeTaskSchedulerRegistry struct {
	mu         sync.Mutex
	queueSize  int
	schedulers map[UeIndex]*executor.WorkerPool
}

func NewUeTaskSchedulerRegistry(queueSize int) *UeTaskSchedulerRegistry {
	return &UeTaskSchedulerRegistry{queueSize: queueSize, schedulers: make(map[UeIndex]*executor.WorkerPool)}
}

func (r *UeTaskSchedulerRegistry) Create(idx UeIndex) *executor.WorkerPool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.schedulers[idx]; ok {
		return s
	}
	s := executor.NewTaskWorker(fmt.Sprintf("ue-%d", idx), r.queueSize)
	r.schedulers[idx] = s
	return s
}

func (r *UeTaskSchedulerRegistry) Find(idx UeIndex) *executor.WorkerPool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.schedulers[idx]
}

// Remove stops the UE's executor in the background. Queued tasks are
// discarded.
func (r *UeTaskSchedulerRegistry) Remove(idx UeIndex) {
	r.mu.Lock()
	s, ok := r.schedulers[idx]
	delete(r.schedulers, idx)
	r.mu.Unlock()
	if ok {
		go s.Stop()
	}
}

func (r *UeTaskSchedulerRegistry) Stop() {
	r.mu.Lock()
	schedulers := r.schedulers
	r.schedulers = make(map[UeIndex]*executor.WorkerPool)
	r.mu.Unlock()
	for _, s := range schedulers {
		s.Stop()
	}
}

// UeManager owns the UE records. It must only be used from the CU-CP
// control executor.
type UeManager struct {
	maxNofUes  int
	ues        map[UeIndex]*Ue
	pciRntiIdx map[PciRnti]UeIndex
	schedulers *UeTaskSchedulerRegistry
}

func NewUeManager(maxNofUes, taskQueueSize int) *UeManager {
	return &UeManager{
		maxNofUes:  maxNofUes,
		ues:        make(map[UeIndex]*Ue),
		pciRntiIdx: make(map[PciRnti]UeIndex),
		schedulers: NewUeTaskSchedulerRegistry(taskQueueSize),
	}
}

// allocateUeIndex returns the first free index of the DU, or
// InvalidUeIndex when the DU already holds maxNofUes UEs.
func (m *UeManager) allocateUeIndex(du DuIndex) UeIndex {
	for i := 0; i < m.maxNofUes; i++ {
		idx := GenerateUeIndex(du, uint32(i))
		if _, used := m.ues[idx]; !used {
			return idx
		}
	}
	return InvalidUeIndex
}

// AddUe creates a UE on the DU together with its task scheduler.
func (m *UeManager) AddUe(du DuIndex) (*Ue, error) {
	if len(m.ues) >= m.maxNofUes {
		logger.CtxLog.Warnf("maximum number of UEs (%d) reached", m.maxNofUes)
		return nil, ErrAdmissionRejected
	}
	idx := m.allocateUeIndex(du)
	if idx == InvalidUeIndex {
		logger.CtxLog.Warnf("no free UE index on DU %d", du)
		return nil, ErrAdmissionRejected
	}
	ue := &Ue{
		Index:       idx,
		DuIndex:     du,
		GnbDuId:     InvalidGnbDuId,
		CuUeF1apId:  uint32(idx),
		RanUeNgapId: int64(idx),
		UpResources: newUpResources(),
	}
	ue.TaskScheduler = m.schedulers.Create(idx)
	m.ues[idx] = ue
	logger.CtxLog.Infof("ue=%d: created", idx)
	return ue, nil
}

// SetUeDuContext binds the UE to its serving DU cell. A (PCI, C-RNTI)
// already owned by another UE is rejected.
func (m *UeManager) SetUeDuContext(idx UeIndex, gnbDuId GnbDuId, pci, crnti uint16) (*Ue, error) {
	ue, ok := m.ues[idx]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownUe, "ue=%s", idx)
	}
	key := PciRnti{Pci: pci, CRnti: crnti}
	if owner, found := m.pciRntiIdx[key]; found && owner != idx {
		logger.CtxLog.Warnf("ue=%d: %s already used by ue=%d", idx, key, owner)
		return nil, errors.Wrapf(ErrDuplicateUe, "%s", key)
	}
	if ue.HasDuContext() {
		delete(m.pciRntiIdx, ue.PciRnti())
	}
	ue.GnbDuId = gnbDuId
	ue.Pci = pci
	ue.CRnti = crnti
	m.pciRntiIdx[key] = idx
	return ue, nil
}

// RemoveUe erases the UE from both indexes. Unknown indexes are ignored.
func (m *UeManager) RemoveUe(idx UeIndex) {
	if idx == InvalidUeIndex {
		logger.CtxLog.Warnln("remove UE: invalid index")
		return
	}
	ue, ok := m.ues[idx]
	if !ok {
		logger.CtxLog.Warnf("remove UE: ue=%d not found", idx)
		return
	}
	if ue.HasDuContext() {
		if owner, found := m.pciRntiIdx[ue.PciRnti()]; found && owner == idx {
			delete(m.pciRntiIdx, ue.PciRnti())
		}
	}
	delete(m.ues, idx)
	m.schedulers.Remove(idx)
	logger.CtxLog.Infof("ue=%d: removed", idx)
}

func (m *UeManager) FindUe(idx UeIndex) *Ue {
	return m.ues[idx]
}

// FindDuUe returns the UE only if it is bound to a DU cell.
func (m *UeManager) FindDuUe(idx UeIndex) *Ue {
	ue := m.ues[idx]
	if ue == nil || !ue.HasDuContext() {
		return nil
	}
	return ue
}

// GetUeIndex resolves a (PCI, C-RNTI) pair.
func (m *UeManager) GetUeIndex(pci, crnti uint16) UeIndex {
	if idx, ok := m.pciRntiIdx[PciRnti{Pci: pci, CRnti: crnti}]; ok {
		return idx
	}
	return InvalidUeIndex
}

// FindUeByCuUeF1apId maps the F1AP identity the CU-CP assigned back to a UE.
func (m *UeManager) FindUeByCuUeF1apId(id uint32) *Ue {
	for _, ue := range m.ues {
		if ue.CuUeF1apId == id {
			return ue
		}
	}
	return nil
}

// FindUeByRanUeNgapId maps the NGAP identity back to a UE.
func (m *UeManager) FindUeByRanUeNgapId(id int64) *Ue {
	if id < 0 {
		return nil
	}
	return m.ues[UeIndex(id)]
}

// FindUeByAmfUeNgapId returns the UE the AMF knows under id.
func (m *UeManager) FindUeByAmfUeNgapId(id int64) *Ue {
	for _, ue := range m.ues {
		if ue.AmfUeNgapId != nil && *ue.AmfUeNgapId == id {
			return ue
		}
	}
	return nil
}

func (m *UeManager) FindUeTaskScheduler(idx UeIndex) executor.TaskExecutor {
	if s := m.schedulers.Find(idx); s != nil {
		return s
	}
	return nil
}

func (m *UeManager) GetNofUes() int { return len(m.ues) }

// GetNofDuUes counts the UEs served by the DU.
func (m *UeManager) GetNofDuUes(du DuIndex) int {
	n := 0
	for _, ue := range m.ues {
		if ue.DuIndex == du {
			n++
		}
	}
	return n
}

// DuUes returns the indexes of the UEs served by the DU.
func (m *UeManager) DuUes(du DuIndex) []UeIndex {
	var idxs []UeIndex
	for idx, ue := range m.ues {
		if ue.DuIndex == du {
			idxs = append(idxs, idx)
		}
	}
	sort.Slice(idxs, func(i, j int) bool { return idxs[i] < idxs[j] })
	return idxs
}

// Ues returns every UE ordered by index.
func (m *UeManager) Ues() []*Ue {
	ues := make([]*Ue, 0, len(m.ues))
	for _, ue := range m.ues {
		ues = append(ues, ue)
	}
	sort.Slice(ues, func(i, j int) bool { return ues[i].Index < ues[j].Index })
	return ues
}

// Stop stops every UE task scheduler.
func (m *UeManager) Stop() {
	m.schedulers.Stop()
}
