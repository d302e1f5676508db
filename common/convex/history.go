// Copyright 2024 phyg Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package convex

import (
	"gonum.org/v1/gonum/floats"
)

// history keeps the most recent L-BFGS correction pairs in a ring.
type history struct {
	s, y   [][]float64
	rho    []float64
	alpha  []float64
	ts, ty []float64
	head   int
	size   int
}

func newHistory(store int) *history {
	if store <= 0 {
		store = 10
	}
	return &history{
		s:     make([][]float64, store),
		y:     make([][]float64, store),
		rho:   make([]float64, store),
		alpha: make([]float64, store),
	}
}

func (h *history) len() int {
	return h.size
}

func (h *history) reset() {
	h.head = 0
	h.size = 0
}

// push stores the pair s = x1 - x0, y = g1 - g0 if it satisfies the curvature condition.
func (h *history) push(x1, x0, g1, g0 []float64) {
	h.ts = resize(h.ts, len(x1))
	h.ty = resize(h.ty, len(x1))
	floats.SubTo(h.ts, x1, x0)
	floats.SubTo(h.ty, g1, g0)
	sy := floats.Dot(h.ts, h.ty)
	if sy <= 0 || sy <= curvatureEps*floats.Dot(h.ty, h.ty) {
		return
	}
	slot := (h.head + h.size) % len(h.s)
	h.s[slot], h.ts = h.ts, h.s[slot]
	h.y[slot], h.ty = h.ty, h.y[slot]
	h.rho[slot] = 1 / sy
	if h.size == len(h.s) {
		h.head = (h.head + 1) % len(h.s)
	} else {
		h.size++
	}
}

// direction writes -H*g into d using the two-loop recursion.
func (h *history) direction(d, g []float64) {
	copy(d, g)
	n := len(h.s)
	for k := h.size - 1; k >= 0; k-- {
		i := (h.head + k) % n
		h.alpha[i] = h.rho[i] * floats.Dot(h.s[i], d)
		floats.AddScaled(d, -h.alpha[i], h.y[i])
	}
	if h.size > 0 {
		last := (h.head + h.size - 1) % n
		floats.Scale(1/(h.rho[last]*floats.Dot(h.y[last], h.y[last])), d)
	}
	for k := 0; k < h.size; k++ {
		i := (h.head + k) % n
		beta := h.rho[i] * floats.Dot(h.y[i], d)
		floats.AddScaled(d, h.alpha[i]-beta, h.s[i])
	}
	floats.Scale(-1, d)
}

func resize(x []float64, n int) []float64 {
	if cap(x) < n {
		return make([]float64, n)
	}
	return x[:n]
}
