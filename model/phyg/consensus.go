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
	"github.com/phyg-io/phyg/common/convex"
	"github.com/phyg-io/phyg/common/parallel"
)

const (
	// admmPenalty is the augmented Lagrangian penalty ρ.
	admmPenalty = 1.0
	// maxADMMRounds caps ADMM when it runs to convergence.
	maxADMMRounds = 10000
)

type admmConfig struct {
	reg     float64
	maxIter int // negative runs until residuals are below tol
	tol     float64
	jobs    int
}

// consensusTask is a subproblem sharing the rows songIds() of the consensus variable.
type consensusTask interface {
	songIds() []int
}

// localSolver minimizes ρ/2·‖z − target‖² + loss(z) for the local copy z of the rows
// touched by a task, starting from start. Neither target nor start may be modified.
type localSolver[T consensusTask] func(ctx context.Context, taskId int, task T, target, start []float64) ([]float64, error)

// consensus runs ADMM for a variable x whose rows are shared by tasks. Every task keeps
// a local copy of its rows and a scaled dual. Each round solves all local problems in
// parallel, then averages local copies and duals into x and updates the duals. The
// final x and the number of rounds are returned. x is not modified.
func consensus[T consensusTask](ctx context.Context, cfg admmConfig, x [][]float64, tasks []T, local localSolver[T]) ([][]float64, int, error) {
	numRows := len(x)
	dim := 0
	if numRows > 0 {
		dim = len(x[0])
	}
	songs := make([][]int, len(tasks))
	mult := make([]float64, numRows)
	for i, task := range tasks {
		songs[i] = task.songIds()
		for _, s := range songs[i] {
			mult[s]++
		}
	}
	x = base.CopyMatrix(x)
	locals := make([][]float64, len(tasks))
	duals := make([][]float64, len(tasks))
	for i := range tasks {
		locals[i] = gather(nil, x, songs[i])
		duals[i] = make([]float64, len(locals[i]))
	}

	round := 0
	for ; cfg.maxIter < 0 || round < cfg.maxIter; round++ {
		if round >= maxADMMRounds {
			return x, round, errors.Annotatef(convex.ErrNotConverged, "ADMM residuals above %v after %d rounds", cfg.tol, round)
		}
		// local step
		next, err := parallel.Map(ctx, len(tasks), cfg.jobs, func(ctx context.Context, taskId int) ([]float64, error) {
			target := gather(nil, x, songs[taskId])
			for k := range target {
				target[k] -= duals[taskId][k]
			}
			return local(ctx, taskId, tasks[taskId], target, locals[taskId])
		})
		if err != nil {
			return x, round, errors.Trace(err)
		}
		locals = next
		// consensus step
		prev := x
		x = consensusStep(numRows, dim, songs, locals, duals, mult, cfg.reg/admmPenalty)
		// dual step
		primal := 0.0
		buf := make([]float64, 0)
		for i := range tasks {
			buf = gather(buf, x, songs[i])
			for k := range buf {
				r := locals[i][k] - buf[k]
				duals[i][k] += r
				primal += r * r
			}
		}
		if cfg.maxIter < 0 {
			dual := 0.0
			for s := range x {
				for d := range x[s] {
					diff := x[s][d] - prev[s][d]
					dual += mult[s] * diff * diff
				}
			}
			if math.Sqrt(primal) <= cfg.tol && admmPenalty*math.Sqrt(dual) <= cfg.tol {
				return x, round + 1, nil
			}
		}
	}
	return x, round, nil
}

// consensusStep computes x[s] = Σ (local + dual) / (mult[s] + ratio) over the tasks
// touching row s. Rows touched by no task are zero.
func consensusStep(numRows, dim int, songs [][]int, locals, duals [][]float64, mult []float64, ratio float64) [][]float64 {
	x := base.NewMatrix(numRows, dim)
	for i := range songs {
		for k, s := range songs[i] {
			for d := 0; d < dim; d++ {
				x[s][d] += locals[i][k*dim+d] + duals[i][k*dim+d]
			}
		}
	}
	for s := range x {
		if mult[s] == 0 {
			continue
		}
		for d := range x[s] {
			x[s][d] /= mult[s] + ratio
		}
	}
	return x
}

// gather flattens the rows of x selected by songs into dst.
func gather(dst []float64, x [][]float64, songs []int) []float64 {
	dst = dst[:0]
	for _, s := range songs {
		dst = append(dst, x[s]...)
	}
	return dst
}

// scatter writes x back into a matrix of shape (numRows, dim).
func scatter(dst [][]float64, x [][]float64) {
	for s := range dst {
		copy(dst[s], x[s])
	}
}
