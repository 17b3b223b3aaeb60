// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"sort"

	"github.com/omec-project/gnb/f1ap"
	"github.com/omec-project/gnb/gateway"
	"github.com/omec-project/gnb/logger"
)

// DuContext is one F1-C association. The DU stays anonymous until its F1
// Setup is accepted.
type DuContext struct {
	Index DuIndex
	Id    GnbDuId
	Name  string
	Cells []f1ap.ServedCell
	Tx    gateway.MessageNotifier[*f1ap.Pdu]
}

func (du *DuContext) SetupDone() bool { return du.Id != InvalidGnbDuId }

// FindCell returns the served cell with the given global identity.
func (du *DuContext) FindCell(cgi f1ap.NrCgi) *f1ap.ServedCell {
	for i := range du.Cells {
		if du.Cells[i].NrCgi == cgi {
			return &du.Cells[i]
		}
	}
	return nil
}

func (du *DuContext) Send(pdu *f1ap.Pdu) {
	logger.F1apLog.Debugf("DU %d: send %s", du.Index, pdu.Name())
	du.Tx.OnNewMessage(pdu)
}

// DuRepository holds at most maxNofDus DU associations.
type DuRepository struct {
	maxNofDus int
	dus       map[DuIndex]*DuContext
}

func NewDuRepository(maxNofDus int) *DuRepository {
	return &DuRepository{maxNofDus: maxNofDus, dus: make(map[DuIndex]*DuContext)}
}

// AddDu allocates the lowest free DU index for a new association.
func (r *DuRepository) AddDu(tx gateway.MessageNotifier[*f1ap.Pdu]) (*DuContext, error) {
	if len(r.dus) >= r.maxNofDus {
		logger.CtxLog.Warnf("maximum number of DUs (%d) reached", r.maxNofDus)
		return nil, ErrAdmissionRejected
	}
	idx := DuIndex(0)
	for ; ; idx++ {
		if _, used := r.dus[idx]; !used {
			break
		}
	}
	du := &DuContext{Index: idx, Id: InvalidGnbDuId, Tx: tx}
	r.dus[idx] = du
	logger.CtxLog.Infof("added DU %d", idx)
	return du, nil
}

func (r *DuRepository) RemoveDu(idx DuIndex) {
	if _, ok := r.dus[idx]; !ok {
		logger.CtxLog.Warnf("remove DU %d: not found", idx)
		return
	}
	delete(r.dus, idx)
	logger.CtxLog.Infof("removed DU %d", idx)
}

func (r *DuRepository) FindDu(idx DuIndex) *DuContext {
	return r.dus[idx]
}

// FindDuByGnbDuId returns the set-up DU with the given identity.
func (r *DuRepository) FindDuByGnbDuId(id GnbDuId) *DuContext {
	for _, du := range r.dus {
		if du.Id == id {
			return du
		}
	}
	return nil
}

func (r *DuRepository) NofDus() int { return len(r.dus) }

// Dus returns the associations ordered by index.
func (r *DuRepository) Dus() []*DuContext {
	dus := make([]*DuContext, 0, len(r.dus))
	for _, du := range r.dus {
		dus = append(dus, du)
	}
	sort.Slice(dus, func(i, j int) bool { return dus[i].Index < dus[j].Index })
	return dus
}
