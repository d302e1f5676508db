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

package phyg

import (
	"context"
	"math"

	"github.com/juju/errors"
	"github.com/phyg-io/phyg/base"
	"github.com/phyg-io/phyg/base/log"
	"github.com/phyg-io/phyg/common/convex"
	"github.com/phyg-io/phyg/common/parallel"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// WeightBound bounds every edge weight so that exp(w) stays finite.
const WeightBound = 80.0

// edgeStats are the sufficient statistics of the edge objective.
type edgeStats struct {
	z      []float64 // expected edge usage of observed transitions
	usage  []float64 // number of transitions leaving each song
	starts float64   // number of transitions leaving Start
}

func newEdgeStats(numSongs, numEdges int) *edgeStats {
	return &edgeStats{
		z:     make([]float64, numEdges),
		usage: make([]float64, numSongs),
	}
}

func (s *edgeStats) merge(other *edgeStats) {
	floats.Add(s.z, other.z)
	floats.Add(s.usage, other.usage)
	s.starts += other.starts
}

// inverseEdgeMass returns 1 / Σ_{j∈e} H[j,e]·exp(scores[j]) for every edge, up to a
// common factor. Edges without songs get 0.
func inverseEdgeMass(ht *base.Incidence, scores []float64) []float64 {
	lse := make([]float64, ht.NumRows())
	minLSE := math.Inf(1)
	buf := make([]float64, 0)
	for e := range lse {
		buf = buf[:0]
		ht.Row(e).ForEach(func(_, j int, v float64) {
			if v > 0 {
				buf = append(buf, scores[j]+math.Log(v))
			}
		})
		lse[e] = base.LogSumExp(buf)
		minLSE = math.Min(minLSE, lse[e])
	}
	inv := make([]float64, len(lse))
	for e := range lse {
		if !math.IsInf(lse[e], -1) {
			inv[e] = math.Exp(minLSE - lse[e])
		}
	}
	return inv
}

// collectEdgeStats computes the edge statistics of one user with item scores V·u + b.
func collectEdgeStats(h, ht *base.Incidence, bigrams []Bigram, scores []float64) *edgeStats {
	stats := newEdgeStats(h.NumRows(), h.NumCols())
	inv := inverseEdgeMass(ht, scores)
	for _, bg := range bigrams {
		Transition(h, bg, inv).ForEach(func(_, e int, p float64) {
			stats.z[e] += p
		})
		if bg.Prev == Start {
			stats.starts++
		} else {
			stats.usage[bg.Prev]++
		}
	}
	return stats
}

// EdgeObjective is the negative log-likelihood of transitions as a function of the
// edge weights w:
//
//	reg/2·‖w‖² − Z·w + Σ_s usage[s]·log Σ_e H[s,e]·exp(w_e) + starts·log Σ_e exp(w_e)
type EdgeObjective struct {
	h      *base.Incidence
	reg    float64
	z      []float64
	usage  []float64
	starts float64
}

func newEdgeObjective(h *base.Incidence, reg float64, stats *edgeStats) *EdgeObjective {
	return &EdgeObjective{h: h, reg: reg, z: stats.z, usage: stats.usage, starts: stats.starts}
}

// Func evaluates the objective at w.
func (obj *EdgeObjective) Func(w []float64) float64 {
	f := 0.5*obj.reg*floats.Dot(w, w) - floats.Dot(obj.z, w)
	buf := make([]float64, 0)
	for s, n := range obj.usage {
		if n == 0 || obj.h.Row(s).Len() == 0 {
			continue
		}
		f += n * obj.rowLSE(buf, s, w)
	}
	if obj.starts > 0 {
		f += obj.starts * base.LogSumExp(w)
	}
	return f
}

// Grad writes the gradient at w into grad.
func (obj *EdgeObjective) Grad(grad, w []float64) {
	for e := range w {
		grad[e] = obj.reg*w[e] - obj.z[e]
	}
	buf := make([]float64, 0)
	for s, n := range obj.usage {
		if n == 0 || obj.h.Row(s).Len() == 0 {
			continue
		}
		lse := obj.rowLSE(buf, s, w)
		obj.h.Row(s).ForEach(func(_, e int, v float64) {
			if v > 0 {
				grad[e] += n * math.Exp(math.Log(v)+w[e]-lse)
			}
		})
	}
	if obj.starts > 0 {
		lse := base.LogSumExp(w)
		for e := range w {
			grad[e] += obj.starts * math.Exp(w[e]-lse)
		}
	}
}

// Problem returns the objective in the form accepted by the convex solvers.
func (obj *EdgeObjective) Problem() optimize.Problem {
	return optimize.Problem{Func: obj.Func, Grad: obj.Grad}
}

// rowLSE computes log Σ_e H[s,e]·exp(w_e) over the positive entries of row s.
func (obj *EdgeObjective) rowLSE(buf []float64, s int, w []float64) float64 {
	buf = buf[:0]
	obj.h.Row(s).ForEach(func(_, e int, v float64) {
		if v > 0 {
			buf = append(buf, math.Log(v)+w[e])
		}
	})
	return base.LogSumExp(buf)
}

// edgeObjective gathers the statistics of all users with the current b, U and V.
func (m *PlaylistModel) edgeObjective(ctx context.Context, state *fitState) (*EdgeObjective, error) {
	partial, err := parallel.Map(ctx, len(state.bigrams), state.config.Jobs, func(_ context.Context, userIndex int) (*edgeStats, error) {
		scores := m.affinity(userIndex)
		floats.Add(scores, m.SongBias)
		return collectEdgeStats(state.h, state.ht, state.bigrams[userIndex], scores), nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	stats := newEdgeStats(state.h.NumRows(), state.h.NumCols())
	for _, s := range partial {
		stats.merge(s)
	}
	return newEdgeObjective(state.h, m.edgeReg, stats), nil
}

// fitEdges minimizes the edge objective over w within [-WeightBound, WeightBound].
func (m *PlaylistModel) fitEdges(ctx context.Context, state *fitState) error {
	if len(m.EdgeWeight) == 0 {
		return nil
	}
	obj, err := m.edgeObjective(ctx, state)
	if err != nil {
		return errors.Trace(err)
	}
	result, err := convex.MinimizeBounded(obj.Problem(), m.EdgeWeight, -WeightBound, WeightBound, convex.DefaultSettings())
	if err != nil {
		return errors.Annotate(err, "fit edge weights")
	}
	base.Clip(result.X, -WeightBound, WeightBound)
	copy(m.EdgeWeight, result.X)
	EdgeObjectiveValue.Set(result.F)
	log.Logger().Debug("fit edge weights",
		zap.Float64("objective", result.F),
		zap.Int("iterations", result.Iterations))
	return nil
}
