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
	"math"

	"github.com/juju/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// ErrNotConverged is returned when a solver exhausts its iteration budget or its line
// search stalls away from a stationary point.
const ErrNotConverged = errors.ConstError("solver did not converge")

// Settings of the quasi-Newton solvers.
type Settings struct {
	// GradTol stops the solver once the infinity norm of the (projected) gradient is below it.
	GradTol float64
	// FuncTol stops the solver once the relative decrease of the objective is below it.
	FuncTol float64
	// MaxIter is the maximum number of major iterations.
	MaxIter int
	// Memory is the number of correction pairs kept by L-BFGS.
	Memory int
	// StallTol is the largest (projected) gradient infinity norm, relative to max(1, |F|),
	// at which a stalled line search is accepted as convergence.
	StallTol float64
}

func DefaultSettings() Settings {
	return Settings{
		GradTol: 1e-5,
		FuncTol: 1e-10,
		MaxIter:  15000,
		Memory:   10,
		StallTol: 1e-4,
	}
}

func (settings Settings) stalled(norm, f float64) bool {
	return norm <= settings.StallTol*math.Max(1, math.Abs(f))
}

// Result of a minimization.
type Result struct {
	X          []float64
	F          float64
	Iterations int
}

// Minimize minimizes an unconstrained smooth objective with L-BFGS starting from x0.
// x0 is not modified.
func Minimize(p optimize.Problem, x0 []float64, settings Settings) (*Result, error) {
	if len(x0) == 0 {
		return &Result{X: []float64{}, F: p.Func(x0)}, nil
	}
	result, err := optimize.Minimize(p, x0, &optimize.Settings{
		GradientThreshold: settings.GradTol,
		MajorIterations:   settings.MaxIter,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Relative:   settings.FuncTol,
			Iterations: 20,
		},
	}, &optimize.LBFGS{Store: settings.Memory})
	if result == nil {
		return nil, errors.Trace(err)
	}
	out := &Result{X: result.X, F: result.F, Iterations: result.MajorIterations}
	switch {
	case result.Status == optimize.IterationLimit:
		return out, errors.Annotatef(ErrNotConverged, "after %d iterations", result.MajorIterations)
	case err == nil:
		return out, nil
	case errors.Is(err, optimize.ErrNoProgress), errors.Is(err, optimize.ErrLinesearcherFailure):
		if math.IsInf(result.F, 0) || math.IsNaN(result.F) {
			return out, errors.Annotatef(ErrNotConverged, "%v at objective %v", err, result.F)
		}
		g := make([]float64, len(result.X))
		p.Grad(g, result.X)
		if norm := floats.Norm(g, math.Inf(1)); !settings.stalled(norm, result.F) {
			return out, errors.Annotatef(ErrNotConverged, "%v with gradient norm %v", err, norm)
		}
		return out, nil
	default:
		return nil, errors.Trace(err)
	}
}

const (
	armijo       = 1e-4
	maxBacktrack = 60
	curvatureEps = 1e-10
)

// MinimizeBounded minimizes a smooth objective subject to lower <= x_i <= upper with a
// projected L-BFGS method. Variables on an active bound are frozen for the quasi-Newton
// step and every trial point is projected back into the box. The objective never
// increases from the projection of x0.
func MinimizeBounded(p optimize.Problem, x0 []float64, lower, upper float64, settings Settings) (*Result, error) {
	if lower > upper {
		return nil, errors.NotValidf("bounds [%v, %v]", lower, upper)
	}
	n := len(x0)
	x := make([]float64, n)
	for i := range x0 {
		x[i] = clip(x0[i], lower, upper)
	}
	f := p.Func(x)
	if n == 0 {
		return &Result{X: x, F: f}, nil
	}
	g := make([]float64, n)
	p.Grad(g, x)

	memory := newHistory(settings.Memory)
	pg := make([]float64, n)
	d := make([]float64, n)
	xNew := make([]float64, n)
	gNew := make([]float64, n)
	for iter := 0; iter < settings.MaxIter; iter++ {
		norm := projectedGradient(pg, x, g, lower, upper)
		if norm < settings.GradTol {
			return &Result{X: x, F: f, Iterations: iter}, nil
		}
		// quasi-Newton direction on the free variables
		memory.direction(d, pg)
		for i := range d {
			if pg[i] == 0 {
				d[i] = 0
			}
		}
		fNew, ok := lineSearch(p, x, f, g, d, xNew, lower, upper, memory.len() == 0 && iter == 0)
		if !ok && memory.len() > 0 {
			// fall back to steepest descent
			memory.reset()
			for i := range d {
				d[i] = -pg[i]
			}
			fNew, ok = lineSearch(p, x, f, g, d, xNew, lower, upper, true)
		}
		if !ok {
			// no descent along the projected gradient
			if !settings.stalled(norm, f) {
				return &Result{X: x, F: f, Iterations: iter},
					errors.Annotatef(ErrNotConverged, "line search stalled with projected gradient norm %v", norm)
			}
			return &Result{X: x, F: f, Iterations: iter}, nil
		}
		p.Grad(gNew, xNew)
		memory.push(xNew, x, gNew, g)
		decrease := f - fNew
		scale := math.Max(math.Max(math.Abs(f), math.Abs(fNew)), 1)
		copy(x, xNew)
		copy(g, gNew)
		f = fNew
		if decrease <= settings.FuncTol*scale {
			return &Result{X: x, F: f, Iterations: iter + 1}, nil
		}
	}
	if projectedGradient(pg, x, g, lower, upper) < settings.GradTol {
		return &Result{X: x, F: f, Iterations: settings.MaxIter}, nil
	}
	return &Result{X: x, F: f, Iterations: settings.MaxIter},
		errors.Annotatef(ErrNotConverged, "after %d iterations", settings.MaxIter)
}

// lineSearch backtracks along the projected path x(t) = P(x + t*d) until the Armijo
// condition holds. The accepted point is written into xNew.
func lineSearch(p optimize.Problem, x []float64, f float64, g, d, xNew []float64, lower, upper float64, firstStep bool) (float64, bool) {
	step := 1.0
	if firstStep {
		norm := 0.0
		for _, v := range d {
			norm = math.Max(norm, math.Abs(v))
		}
		if norm > 1 {
			step = 1 / norm
		}
	}
	for k := 0; k < maxBacktrack; k++ {
		slope := 0.0
		moved := false
		for i := range x {
			xNew[i] = clip(x[i]+step*d[i], lower, upper)
			slope += g[i] * (xNew[i] - x[i])
			moved = moved || xNew[i] != x[i]
		}
		if !moved || slope >= 0 {
			return f, false
		}
		fNew := p.Func(xNew)
		if !math.IsNaN(fNew) && fNew <= f+armijo*slope {
			return fNew, true
		}
		step /= 2
	}
	return f, false
}

// projectedGradient writes the gradient with components pushing against an active bound
// zeroed and returns its infinity norm.
func projectedGradient(pg, x, g []float64, lower, upper float64) float64 {
	norm := 0.0
	for i := range g {
		pg[i] = g[i]
		if (x[i] <= lower && g[i] > 0) || (x[i] >= upper && g[i] < 0) {
			pg[i] = 0
		}
		norm = math.Max(norm, math.Abs(pg[i]))
	}
	return norm
}

func clip(x, lower, upper float64) float64 {
	return math.Min(math.Max(x, lower), upper)
}
