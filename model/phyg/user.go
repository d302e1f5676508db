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
	"github.com/phyg-io/phyg/base"
	"github.com/phyg-io/phyg/common/convex"
	"github.com/phyg-io/phyg/common/parallel"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// logistic returns the weighted logistic loss softplus(-y·s)·ω and the derivative
// of the loss with respect to the score s.
func logistic(y, omega, s float64) (float64, float64) {
	return omega * base.Softplus(-y*s), -y * omega * base.Sigmoid(-y*s)
}

// userProblem is the regularized logistic regression of a user factor u:
//
//	reg/2·‖u‖² + Σ ω_i·log(1 + exp(−y_i·(V[id_i]·u + b[id_i])))
func userProblem(reg float64, v [][]float64, b []float64, sp *Subproblem) optimize.Problem {
	return optimize.Problem{
		Func: func(u []float64) float64 {
			f := 0.5 * reg * floats.Dot(u, u)
			for i, id := range sp.IDs {
				loss, _ := logistic(sp.Labels[i], sp.Weights[i], floats.Dot(v[id], u)+b[id])
				f += loss
			}
			return f
		},
		Grad: func(grad, u []float64) {
			copy(grad, u)
			floats.Scale(reg, grad)
			for i, id := range sp.IDs {
				_, d := logistic(sp.Labels[i], sp.Weights[i], floats.Dot(v[id], u)+b[id])
				floats.AddScaled(grad, d, v[id])
			}
		},
	}
}

// fitUsers solves every user factor independently. Subproblems are sampled with the
// song biases as scores.
func (m *PlaylistModel) fitUsers(ctx context.Context, state *fitState) error {
	scoring := NewScoring(state.h, state.ht, m.EdgeWeight, m.nNeg)
	rngs := m.GetRandomGenerator().Spawn(len(state.bigrams))
	factors, err := parallel.Map(ctx, len(state.bigrams), state.config.Jobs, func(_ context.Context, userIndex int) ([]float64, error) {
		sp, err := BuildSubproblem(rngs[userIndex], scoring, state.bigrams[userIndex], m.SongBias)
		if err != nil {
			return nil, errors.Annotatef(err, "user %s", m.UserIndex.ToName(userIndex))
		}
		result, err := convex.Minimize(userProblem(m.userReg, m.SongFactor, m.SongBias, sp), m.UserFactor[userIndex], convex.DefaultSettings())
		if err != nil {
			return nil, errors.Annotatef(err, "fit factor of user %s", m.UserIndex.ToName(userIndex))
		}
		return result.X, nil
	})
	if err != nil {
		return errors.Trace(err)
	}
	for userIndex, factor := range factors {
		copy(m.UserFactor[userIndex], factor)
	}
	return nil
}
