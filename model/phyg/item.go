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

	"github.com/juju/errors"
	"github.com/phyg-io/phyg/base/log"
	"github.com/phyg-io/phyg/common/convex"
	"github.com/phyg-io/phyg/common/parallel"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// songProblem is the local ADMM problem of the song factors touched by a user with
// factor u. A is the row-major flattening of the len(sp.Songs) x len(u) local copy:
//
//	ρ/2·‖A − target‖² + Σ ω_i·log(1 + exp(−y_i·(A[slot_i]·u + b[id_i])))
func songProblem(rho float64, u, b []float64, sp *Subproblem, target []float64) optimize.Problem {
	dim := len(u)
	return optimize.Problem{
		Func: func(a []float64) float64 {
			dist := floats.Distance(a, target, 2)
			f := 0.5 * rho * dist * dist
			for i, id := range sp.IDs {
				row := a[sp.Slots[i]*dim : (sp.Slots[i]+1)*dim]
				loss, _ := logistic(sp.Labels[i], sp.Weights[i], floats.Dot(row, u)+b[id])
				f += loss
			}
			return f
		},
		Grad: func(grad, a []float64) {
			floats.SubTo(grad, a, target)
			floats.Scale(rho, grad)
			for i, id := range sp.IDs {
				begin, end := sp.Slots[i]*dim, (sp.Slots[i]+1)*dim
				_, d := logistic(sp.Labels[i], sp.Weights[i], floats.Dot(a[begin:end], u)+b[id])
				floats.AddScaled(grad[begin:end], d, u)
			}
		},
	}
}

// personalizedSubproblems builds one subproblem per user, sampled with the personal
// scores V·u of the user.
func (m *PlaylistModel) personalizedSubproblems(ctx context.Context, state *fitState) ([]*Subproblem, error) {
	scoring := NewScoring(state.h, state.ht, m.EdgeWeight, m.nNeg)
	rngs := m.GetRandomGenerator().Spawn(len(state.bigrams))
	return parallel.Map(ctx, len(state.bigrams), state.config.Jobs, func(_ context.Context, userIndex int) (*Subproblem, error) {
		scores := m.SongBias
		if m.nFactors > 0 {
			scores = m.affinity(userIndex)
		}
		sp, err := BuildSubproblem(rngs[userIndex], scoring, state.bigrams[userIndex], scores)
		if err != nil {
			return nil, errors.Annotatef(err, "user %s", m.UserIndex.ToName(userIndex))
		}
		return sp, nil
	})
}

// fitSongs updates the song factors by ADMM over the subproblems of all users.
func (m *PlaylistModel) fitSongs(ctx context.Context, state *fitState) error {
	subproblems, err := m.personalizedSubproblems(ctx, state)
	if err != nil {
		return errors.Trace(err)
	}
	cfg := admmConfig{reg: m.songReg, maxIter: m.maxADMMIter, tol: m.admmTol, jobs: state.config.Jobs}
	factors, rounds, err := consensus(ctx, cfg, m.SongFactor, subproblems,
		func(_ context.Context, userIndex int, sp *Subproblem, target, start []float64) ([]float64, error) {
			problem := songProblem(admmPenalty, m.UserFactor[userIndex], m.SongBias, sp, target)
			result, err := convex.Minimize(problem, start, convex.DefaultSettings())
			if err != nil {
				return nil, errors.Annotatef(err, "fit song factors of user %s", m.UserIndex.ToName(userIndex))
			}
			return result.X, nil
		})
	if err != nil {
		return errors.Trace(err)
	}
	scatter(m.SongFactor, factors)
	admmRounds.WithLabelValues("songs").Observe(float64(rounds))
	log.Logger().Debug("fit song factors", zap.Int("admm_rounds", rounds))
	return nil
}
