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

	"gonum.org/v1/gonum/floats"
)

// NewMatrix creates a matrix.
func NewMatrix(row, col int) [][]float64 {
	ret := make([][]float64, row)
	for i := range ret {
		ret[i] = make([]float64, col)
	}
	return ret
}

// CopyMatrix returns a deep copy of a matrix.
func CopyMatrix(mat [][]float64) [][]float64 {
	ret := make([][]float64, len(mat))
	for i := range mat {
		ret[i] = append([]float64(nil), mat[i]...)
	}
	return ret
}

// Softplus computes log(1 + exp(x)) without overflow.
func Softplus(x float64) float64 {
	if x > 0 {
		return x + math.Log1p(math.Exp(-x))
	}
	return math.Log1p(math.Exp(x))
}

// Sigmoid computes 1 / (1 + exp(-x)) without overflow.
func Sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	z := math.Exp(x)
	return z / (1 + z)
}

// LogSumExp computes log(sum(exp(x))). It returns -Inf for an empty slice.
func LogSumExp(x []float64) float64 {
	if len(x) == 0 {
		return math.Inf(-1)
	}
	return floats.LogSumExp(x)
}

// Softmax writes exp(x) / sum(exp(x)) into dst and returns it.
func Softmax(dst, x []float64) []float64 {
	if dst == nil {
		dst = make([]float64, len(x))
	}
	if len(x) == 0 {
		return dst
	}
	maxVal := floats.Max(x)
	for i := range x {
		dst[i] = math.Exp(x[i] - maxVal)
	}
	floats.Scale(1/floats.Sum(dst), dst)
	return dst
}

// Clip limits every element of x into [low, high] in place.
func Clip(x []float64, low, high float64) {
	for i := range x {
		x[i] = math.Max(low, math.Min(high, x[i]))
	}
}
