// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package context

type CellMetrics struct {
	Pci   uint16 `json:"pci"`
	NrCgi string `json:"nr_cgi"`
}

// DuMetrics describes a DU association. Id is InvalidGnbDuId until the
// DU completes F1 Setup.
type DuMetrics struct {
	Index DuIndex       `json:"index"`
	Id    GnbDuId       `json:"id"`
	Cells []CellMetrics `json:"cells"`
}

type UeMetrics struct {
	Rnti  uint16  `json:"rnti"`
	DuId  GnbDuId `json:"du_id"`
	Pci   uint16  `json:"pci"`
	Index UeIndex `json:"ue_index"`
}

type CuCpMetrics struct {
	Dus     []DuMetrics `json:"dus"`
	Ues     []UeMetrics `json:"ues"`
	NofCuUp int         `json:"nof_cu_ups"`
}

// BuildMetricsReport snapshots the DUs and UEs.
func BuildMetricsReport(dus *DuRepository, cuups *CuUpRepository, ues *UeManager) CuCpMetrics {
	report := CuCpMetrics{Dus: []DuMetrics{}, Ues: []UeMetrics{}, NofCuUp: cuups.NofCuUps()}
	for _, du := range dus.Dus() {
		m := DuMetrics{Index: du.Index, Id: du.Id, Cells: []CellMetrics{}}
		for _, cell := range du.Cells {
			m.Cells = append(m.Cells, CellMetrics{Pci: cell.Pci, NrCgi: cell.NrCgi.String()})
		}
		report.Dus = append(report.Dus, m)
	}
	for _, ue := range ues.Ues() {
		report.Ues = append(report.Ues, UeMetrics{Rnti: ue.CRnti, DuId: ue.GnbDuId, Pci: ue.Pci, Index: ue.Index})
	}
	return report
}
