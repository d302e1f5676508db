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
	"github.com/samber/lo"
	"gonum.org/v1/gonum/floats"
)

// Subproblem is a weighted binary classification instance over songs. Positive
// examples come first and negative examples after them.
type Subproblem struct {
	Labels      []float64 // +1 or -1
	Weights     []float64 // importance weights
	IDs         []int     // song of each example
	NumPositive int
	Songs       []int // distinct songs in first-seen order
	Slots       []int // position of the song of each example in Songs
}

// Len returns the number of examples.
func (sp *Subproblem) Len() int {
	return len(sp.IDs)
}

func (sp *Subproblem) songIds() []int {
	return sp.Songs
}

func (sp *Subproblem) indexSongs() {
	position := make(map[int]int, len(sp.IDs))
	sp.Songs = sp.Songs[:0]
	sp.Slots = make([]int, len(sp.IDs))
	for i, id := range sp.IDs {
		slot, exist := position[id]
		if !exist {
			slot = len(sp.Songs)
			position[id] = slot
			sp.Songs = append(sp.Songs, id)
		}
		sp.Slots[i] = slot
	}
}

// Scoring is the read-only snapshot of the hypergraph and edge weights that
// subproblems are built from.
type Scoring struct {
	H        *base.Incidence // songs x edges
	HT       *base.Incidence // edges x songs
	ExpW     []float64       // exp(w - max(w))
	EdgeDist []float64       // softmax(w)
	NNeg     int
}

// NewScoring snapshots the edge weights w.
func NewScoring(h, ht *base.Incidence, w []float64, nNeg int) *Scoring {
	scoring := &Scoring{
		H:        h,
		HT:       ht,
		ExpW:     make([]float64, len(w)),
		EdgeDist: base.Softmax(nil, w),
		NNeg:     nNeg,
	}
	if len(w) > 0 {
		maxW := floats.Max(w)
		for e := range w {
			scoring.ExpW[e] = math.Exp(w[e] - maxW)
		}
	}
	return scoring
}

// Transition returns the normalized distribution over the edges that explain a
// bigram, each edge weighted by weight[e]. A start bigram, or a bigram whose songs
// share no edge, is explained by the edges of its next song. The distribution is
// empty if the next song belongs to no edge.
func Transition(h *base.Incidence, bg Bigram, weight []float64) *base.SparseVector {
	dist := base.NewSparseVector()
	target := h.Row(bg.Next)
	if bg.Prev != Start {
		h.Row(bg.Prev).ForIntersection(target, func(e int, a, b float64) {
			dist.Add(e, a*b*weight[e])
		})
	}
	if dist.Len() == 0 {
		target.ForEach(func(_, e int, v float64) {
			dist.Add(e, v*weight[e])
		})
	}
	dist.Sorted = true
	total := dist.Sum()
	if total <= 0 || math.IsInf(total, 0) || math.IsNaN(total) {
		return base.NewSparseVector()
	}
	floats.Scale(1/total, dist.Values)
	return dist
}

// BuildSubproblem builds the classification instance of one user. Positives are the
// next songs of all bigrams, negatives are sampled by scores with positives
// forbidden. A negative is weighted by how much the transition distributions of the
// bigrams favor its edges.
func BuildSubproblem(rng base.RandomGenerator, scoring *Scoring, bigrams []Bigram, scores []float64) (*Subproblem, error) {
	numSongs := scoring.H.NumRows()
	if len(scores) != numSongs {
		return nil, errors.NotValidf("scores of length %d for %d songs", len(scores), numSongs)
	}
	positives := lo.Map(bigrams, func(bg Bigram, _ int) int { return bg.Next })
	forbidden := bitset.New(uint(numSongs))
	for _, id := range positives {
		forbidden.Set(uint(id))
	}
	negatives, err := SampleNegatives(rng, scoring.NNeg, scoring.HT, scoring.EdgeDist, scores, forbidden)
	if err != nil {
		return nil, errors.Trace(err)
	}

	// transition kernel summed over bigrams
	kernel := make([]float64, scoring.H.NumCols())
	for _, bg := range bigrams {
		Transition(scoring.H, bg, scoring.ExpW).ForEach(func(_, e int, p float64) {
			kernel[e] += p
		})
	}

	n := len(positives) + len(negatives)
	sp := &Subproblem{
		Labels:      make([]float64, 0, n),
		Weights:     make([]float64, 0, n),
		IDs:         make([]int, 0, n),
		NumPositive: len(positives),
	}
	for _, id := range positives {
		sp.Labels = append(sp.Labels, 1)
		sp.Weights = append(sp.Weights, 1)
		sp.IDs = append(sp.IDs, id)
	}
	for _, id := range negatives {
		sp.Labels = append(sp.Labels, -1)
		sp.Weights = append(sp.Weights, scoring.H.Row(id).Dot(kernel))
		sp.IDs = append(sp.IDs, id)
	}
	sp.indexSongs()
	return sp, nil
}
