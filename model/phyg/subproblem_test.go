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
	"testing"

	"github.com/juju/errors"
	"github.com/phyg-io/phyg/base"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition(t *testing.T) {
	h := newIncidence(t, 4, []int{0, 1}, []int{1, 2})
	weight := []float64{1, 3}
	// start of a playlist
	dist := Transition(h, Bigram{Start, 1}, weight)
	assert.Equal(t, []int{0, 1}, dist.Indices)
	assert.InDeltaSlice(t, []float64{0.25, 0.75}, dist.Values, 1e-12)
	// shared edge
	dist = Transition(h, Bigram{0, 1}, weight)
	assert.Equal(t, []int{0}, dist.Indices)
	assert.InDeltaSlice(t, []float64{1}, dist.Values, 1e-12)
	// no shared edge falls back to the next song
	dist = Transition(h, Bigram{0, 2}, weight)
	assert.Equal(t, []int{1}, dist.Indices)
	assert.InDeltaSlice(t, []float64{1}, dist.Values, 1e-12)
	// song without edges
	assert.Zero(t, Transition(h, Bigram{1, 3}, weight).Len())
	assert.Zero(t, Transition(h, Bigram{Start, 3}, weight).Len())
	// zero weights
	assert.Zero(t, Transition(h, Bigram{Start, 0}, []float64{0, 1}).Len())
}

func TestBuildSubproblem(t *testing.T) {
	h := newIncidence(t, 5, []int{0, 1, 2}, []int{2, 3, 4})
	scoring := NewScoring(h, h.Transpose(), []float64{0, 0}, 3)
	bigrams := []Bigram{{Start, 0}, {0, 1}}
	sp, err := BuildSubproblem(base.NewRandomGenerator(0), scoring, bigrams, make([]float64, 5))
	require.NoError(t, err)

	assert.Equal(t, 5, sp.Len())
	assert.Len(t, sp.Labels, sp.Len())
	assert.Len(t, sp.Weights, sp.Len())
	assert.Equal(t, 2, sp.NumPositive)
	assert.Equal(t, []float64{1, 1, -1, -1, -1}, sp.Labels)
	assert.Equal(t, []int{0, 1}, sp.IDs[:2])
	assert.ElementsMatch(t, []int{2, 3, 4}, sp.IDs[2:])
	// both transitions are explained by edge 0 only
	for i := range sp.IDs {
		switch sp.IDs[i] {
		case 0, 1:
			assert.Equal(t, 1.0, sp.Weights[i])
		case 2:
			assert.InDelta(t, 2.0, sp.Weights[i], 1e-12)
		default:
			assert.Zero(t, sp.Weights[i])
		}
	}
	// slots index distinct songs
	assert.Len(t, sp.Songs, 5)
	for i, id := range sp.IDs {
		assert.Equal(t, id, sp.Songs[sp.Slots[i]])
	}
}

func TestBuildSubproblem_Invariants(t *testing.T) {
	h := newIncidence(t, 12, []int{0, 1, 2, 3, 4}, []int{4, 5, 6, 7}, []int{7, 8, 9, 10, 11}, []int{0, 6, 11})
	scoring := NewScoring(h, h.Transpose(), []float64{0.3, -1, 2, 0}, 4)
	bigrams := []Bigram{{Start, 0}, {0, 1}, {1, 1}, {1, 6}, {Start, 11}, {11, 0}}
	scores := []float64{0, 0.5, 1, -1, 2, 0, 0.1, 0.2, -0.3, 1.5, 0, 0}
	for seed := uint64(0); seed < 20; seed++ {
		sp, err := BuildSubproblem(base.NewRandomGenerator(seed), scoring, bigrams, scores)
		require.NoError(t, err)
		assert.Equal(t, len(sp.Labels), len(sp.Weights))
		assert.Equal(t, len(sp.Labels), len(sp.IDs))
		assert.Equal(t, len(bigrams), sp.NumPositive)
		for i := range sp.Labels {
			if i < sp.NumPositive {
				assert.Equal(t, 1.0, sp.Labels[i])
				assert.Equal(t, 1.0, sp.Weights[i])
			} else {
				assert.Equal(t, -1.0, sp.Labels[i])
				assert.GreaterOrEqual(t, sp.Weights[i], 0.0)
				assert.NotContains(t, []int{0, 1, 6, 11}, sp.IDs[i])
			}
		}
		// positives keep duplicates, songs do not
		assert.Len(t, sp.Songs, len(sp.IDs)-2)
	}
}

func TestBuildSubproblem_Invalid(t *testing.T) {
	h := newIncidence(t, 3, []int{0, 1}, []int{1, 2})
	scoring := NewScoring(h, h.Transpose(), []float64{0, 0}, 1)
	_, err := BuildSubproblem(base.NewRandomGenerator(0), scoring, []Bigram{{Start, 0}}, make([]float64, 2))
	assert.True(t, errors.IsNotValid(err))
	// every song except the positives is required
	scoring.NNeg = 3
	_, err = BuildSubproblem(base.NewRandomGenerator(0), scoring, []Bigram{{Start, 0}}, make([]float64, 3))
	assert.ErrorIs(t, err, ErrSamplingExhausted)
}
