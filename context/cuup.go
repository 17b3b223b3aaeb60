// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"sort"

	"github.com/omec-project/gnb/e1ap"
	"github.com/omec-project/gnb/gateway"
	"github.com/omec-project/gnb/logger"
)

// CuUpContext is one E1 association.
type CuUpContext struct {
	Index     CuUpIndex
	Id        uint64
	Name      string
	SetupDone bool
	Tx        gateway.MessageNotifier[*e1ap.Pdu]
}

func (cuup *CuUpContext) Send(pdu *e1ap.Pdu) {
	logger.E1apLog.Debugf("CU-UP %d: send %s", cuup.Index, pdu.Name())
	cuup.Tx.OnNewMessage(pdu)
}

// CuUpRepository holds at most maxNofCuUps E1 associations.
type CuUpRepository struct {
	maxNofCuUps int
	cuups       map[CuUpIndex]*CuUpContext
}

func NewCuUpRepository(maxNofCuUps int) *CuUpRepository {
	return &CuUpRepository{maxNofCuUps: maxNofCuUps, cuups: make(map[CuUpIndex]*CuUpContext)}
}

func (r *CuUpRepository) AddCuUp(tx gateway.MessageNotifier[*e1ap.Pdu]) (*CuUpContext, error) {
	if len(r.cuups) >= r.maxNofCuUps {
		logger.CtxLog.Warnf("maximum number of CU-UPs (%d) reached", r.maxNofCuUps)
		return nil, ErrAdmissionRejected
	}
	idx := CuUpIndex(0)
	for ; ; idx++ {
		if _, used := r.cuups[idx]; !used {
			break
		}
	}
	cuup := &CuUpContext{Index: idx, Tx: tx}
	r.cuups[idx] = cuup
	logger.CtxLog.Infof("added CU-UP %d", idx)
	return cuup, nil
}

func (r *CuUpRepository) RemoveCuUp(idx CuUpIndex) {
	if _, ok := r.cuups[idx]; !ok {
		logger.CtxLog.Warnf("remove CU-UP %d: not found", idx)
		return
	}
	delete(r.cuups, idx)
	logger.CtxLog.Infof("removed CU-UP %d", idx)
}

func (r *CuUpRepository) FindCuUp(idx CuUpIndex) *CuUpContext {
	return r.cuups[idx]
}

// SelectCuUp returns the set-up CU-UP with the lowest index, or nil.
func (r *CuUpRepository) SelectCuUp() *CuUpContext {
	var selected *CuUpContext
	for _, cuup := range r.cuups {
		if cuup.SetupDone && (selected == nil || cuup.Index < selected.Index) {
			selected = cuup
		}
	}
	return selected
}

func (r *CuUpRepository) NofCuUps() int { return len(r.cuups) }

func (r *CuUpRepository) CuUps() []*CuUpContext {
	cuups := make([]*CuUpContext, 0, len(r.cuups))
	for _, cuup := range r.cuups {
		cuups = append(cuups, cuup)
	}
	sort.Slice(cuups, func(i, j int) bool { return cuups[i].Index < cuups[j].Index })
	return cuups
}
