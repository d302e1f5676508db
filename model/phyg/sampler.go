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
	"math"

	"github.com/bits-and-blooms/bitset"
	"github.com/juju/errors"
	"github.com/phyg-io/phyg/base"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrSamplingExhausted is returned when fewer songs than requested can be sampled.
const ErrSamplingExhausted = errors.ConstError("not enough eligible songs to sample")

// SampleNegatives draws nNeg distinct songs outside forbidden. An edge is drawn from
// edgeDist first, then a song of the edge with probability proportional to its
// incidence value times exp(score). The forbidden set is not modified.
//
// ht is the edge-major incidence matrix. Edges without an eligible song are redrawn.
func SampleNegatives(rng base.RandomGenerator, nNeg int, ht *base.Incidence, edgeDist, scores []float64, forbidden *bitset.BitSet) ([]int, error) {
	if nNeg <= 0 {
		return nil, errors.NotValidf("number of negative samples %d", nNeg)
	}
	if len(edgeDist) != ht.NumRows() {
		return nil, errors.NotValidf("edge distribution of length %d for %d edges", len(edgeDist), ht.NumRows())
	}
	if forbidden == nil {
		forbidden = bitset.New(uint(len(scores)))
	}
	// item mass
	mass := make([]float64, len(scores))
	maxScore := math.Inf(-1)
	for j, s := range scores {
		if !forbidden.Test(uint(j)) {
			maxScore = math.Max(maxScore, s)
		}
	}
	for j, s := range scores {
		if !forbidden.Test(uint(j)) {
			mass[j] = math.Exp(s - maxScore)
		}
	}
	// eligible songs
	reachable := bitset.New(uint(len(scores)))
	for e, p := range edgeDist {
		if p <= 0 {
			continue
		}
		ht.Row(e).ForEach(func(_, j int, v float64) {
			if v > 0 && mass[j] > 0 {
				reachable.Set(uint(j))
			}
		})
	}
	if eligible := int(reachable.Count()); eligible < nNeg {
		return nil, errors.Annotatef(ErrSamplingExhausted, "%d eligible songs for %d negatives", eligible, nNeg)
	}

	edges := distuv.NewCategorical(edgeDist, rng.Source())
	negatives := make([]int, 0, nNeg)
	weights := make([]float64, 0)
	for len(negatives) < nNeg {
		row := ht.Row(int(edges.Rand()))
		weights = weights[:0]
		for k, j := range row.Indices {
			weights = append(weights, math.Max(row.Values[k], 0)*mass[j])
		}
		if len(weights) == 0 || floats.Sum(weights) <= 0 {
			continue
		}
		j := row.Indices[int(distuv.NewCategorical(weights, rng.Source()).Rand())]
		if mass[j] <= 0 {
			continue
		}
		negatives = append(negatives, j)
		mass[j] = 0
	}
	return negatives, nil
}
