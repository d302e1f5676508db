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
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// biasTask is a subproblem together with the personal affinity u·V[id] of each
// example, zero without factors.
type biasTask struct {
	*Subproblem
	affinity []float64
}

// biasProblem is the local ADMM problem of the song biases touched by a subproblem:
//
//	ρ/2·‖c − target‖² + Σ ω_i·log(1 + exp(−y_i·(affinity_i + c[slot_i])))
func biasProblem(rho float64, task *biasTask, target []float64) optimize.Problem {
	return optimize.Problem{
		Func: func(c []float64) float64 {
			dist := floats.Distance(c, target, 2)
			f := 0.5 * rho * dist * dist
			for i := range task.IDs {
				loss, _ := logistic(task.Labels[i], task.Weights[i], task.affinity[i]+c[task.Slots[i]])
				f += loss
			}
			return f
		},
		Grad: func(grad, c []float64) {
			floats.SubTo(grad, c, target)
			floats.Scale(rho, grad)
			for i := range task.IDs {
				_, d := logistic(task.Labels[i], task.Weights[i], task.affinity[i]+c[task.Slots[i]])
				grad[task.Slots[i]] += d
			}
		},
	}
}

// fitBias updates the song biases by ADMM over the subproblems of all users.
func (m *PlaylistModel) fitBias(ctx context.Context, state *fitState) error {
	subproblems, err := m.personalizedSubproblems(ctx, state)
	if err != nil {
		return errors.Trace(err)
	}
	tasks := lo.Map(subproblems, func(sp *Subproblem, userIndex int) *biasTask {
		task := &biasTask{Subproblem: sp, affinity: make([]float64, sp.Len())}
		if m.nFactors > 0 {
			for i, id := range sp.IDs {
				task.affinity[i] = floats.Dot(m.UserFactor[userIndex], m.SongFactor[id])
			}
		}
		return task
	})
	column := lo.Map(m.SongBias, func(b float64, _ int) []float64 { return []float64{b} })
	cfg := admmConfig{reg: m.biasReg, maxIter: m.maxADMMIter, tol: m.admmTol, jobs: state.config.Jobs}
	biases, rounds, err := consensus(ctx, cfg, column, tasks,
		func(_ context.Context, userIndex int, task *biasTask, target, start []float64) ([]float64, error) {
			result, err := convex.Minimize(biasProblem(admmPenalty, task, target), start, convex.DefaultSettings())
			if err != nil {
				return nil, errors.Annotatef(err, "fit song biases of user %s", m.UserIndex.ToName(userIndex))
			}
			return result.X, nil
		})
	if err != nil {
		return errors.Trace(err)
	}
	for s := range m.SongBias {
		m.SongBias[s] = biases[s][0]
	}
	admmRounds.WithLabelValues("bias").Observe(float64(rounds))
	log.Logger().Debug("fit song biases", zap.Int("admm_rounds", rounds))
	return nil
}
