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

package base

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

const numEpsilon = 1e-12

func TestNewMatrix(t *testing.T) {
	m := NewMatrix(2, 3)
	assert.Len(t, m, 2)
	assert.Len(t, m[1], 3)
	m[0][1] = 5
	c := CopyMatrix(m)
	c[0][1] = 6
	assert.Equal(t, 5.0, m[0][1])
	assert.Equal(t, 6.0, c[0][1])
}

func TestSoftplus(t *testing.T) {
	assert.InDelta(t, math.Log(2), Softplus(0), numEpsilon)
	assert.InDelta(t, math.Log1p(math.Exp(3)), Softplus(3), numEpsilon)
	assert.InDelta(t, math.Log1p(math.Exp(-3)), Softplus(-3), numEpsilon)
	assert.Equal(t, 1000.0, Softplus(1000))
	assert.False(t, math.IsInf(Softplus(1000), 0))
	assert.Zero(t, Softplus(-1000))
}

func TestSigmoid(t *testing.T) {
	assert.Equal(t, 0.5, Sigmoid(0))
	assert.InDelta(t, 1/(1+math.Exp(-2)), Sigmoid(2), numEpsilon)
	assert.InDelta(t, 1/(1+math.Exp(2)), Sigmoid(-2), numEpsilon)
	assert.Equal(t, 1.0, Sigmoid(1000))
	assert.Zero(t, Sigmoid(-1000))
}

func TestLogSumExp(t *testing.T) {
	assert.True(t, math.IsInf(LogSumExp(nil), -1))
	assert.InDelta(t, math.Log(3), LogSumExp([]float64{0, 0, 0}), numEpsilon)
	assert.InDelta(t, 1000+math.Log(2), LogSumExp([]float64{1000, 1000}), numEpsilon)
}

func TestSoftmax(t *testing.T) {
	p := Softmax(nil, []float64{80, 80, -80})
	assert.InDelta(t, 0.5, p[0], numEpsilon)
	assert.InDelta(t, 0.5, p[1], numEpsilon)
	assert.InDelta(t, 1.0, p[0]+p[1]+p[2], numEpsilon)
	assert.Empty(t, Softmax(nil, nil))
}

func TestClip(t *testing.T) {
	x := []float64{-100, 0, 100}
	Clip(x, -80, 80)
	assert.Equal(t, []float64{-80, 0, 80}, x)
}
