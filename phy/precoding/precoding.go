// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package precoding maps transmission layers onto antenna ports.
package precoding

import "github.com/pkg/errors"

const MaxNofLayers = 4

// Weights is a ports x layers matrix. Coefficient (p, l) weights layer l
// on port p.
type Weights struct {
	nofLayers int
	nofPorts  int
	coef      []complex64
}

func New(nofLayers, nofPorts int) Weights {
	return Weights{nofLayers: nofLayers, nofPorts: nofPorts, coef: make([]complex64, nofLayers*nofPorts)}
}

// Identity maps layer i onto port i.
func Identity(nofLayers int) Weights {
	w := New(nofLayers, nofLayers)
	for i := range nofLayers {
		w.Set(i, i, 1)
	}
	return w
}

// FromRows builds weights from one row of layer coefficients per port.
func FromRows(rows [][]complex64) (Weights, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return Weights{}, errors.New("empty precoding matrix")
	}
	w := New(len(rows[0]), len(rows))
	for p, row := range rows {
		if len(row) != w.nofLayers {
			return Weights{}, errors.Errorf("port %d has %d coefficients, expected %d", p, len(row), w.nofLayers)
		}
		for l, c := range row {
			w.Set(p, l, c)
		}
	}
	return w, nil
}

func (w Weights) NofLayers() int { return w.nofLayers }
func (w Weights) NofPorts() int  { return w.nofPorts }
func (w Weights) IsZero() bool   { return w.nofLayers == 0 }

func (w Weights) Get(port, layer int) complex64 {
	return w.coef[port*w.nofLayers+layer]
}

func (w Weights) Set(port, layer int, c complex64) {
	w.coef[port*w.nofLayers+layer] = c
}

// Scaled returns a copy with every coefficient multiplied by s.
func (w Weights) Scaled(s float32) Weights {
	out := New(w.nofLayers, w.nofPorts)
	for i, c := range w.coef {
		out.coef[i] = c * complex(s, 0)
	}
	return out
}

// Port returns the weights of a port, one per layer.
func (w Weights) Port(port int) []complex64 {
	return w.coef[port*w.nofLayers : (port+1)*w.nofLayers]
}

// Apply precodes nofRe layer-interleaved symbols. in holds x_l(i) at
// in[i*nofLayers+l]; out[p] receives the nofRe samples of port p.
func (w Weights) Apply(out [][]complex64, in []complex64, nofRe int) {
	for p := range w.nofPorts {
		row := w.Port(p)
		dst := out[p][:nofRe]
		if w.nofLayers == 1 {
			c := row[0]
			for i := range dst {
				dst[i] = in[i] * c
			}
			continue
		}
		for i := range dst {
			var acc complex64
			x := in[i*w.nofLayers : (i+1)*w.nofLayers]
			for l, c := range row {
				acc += x[l] * c
			}
			dst[i] = acc
		}
	}
}

// Layer returns the single layer weights of one layer.
func (w Weights) Layer(layer int) Weights {
	out := New(1, w.nofPorts)
	for p := range w.nofPorts {
		out.Set(p, 0, w.Get(p, layer))
	}
	return out
}
