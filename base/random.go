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
	"math/rand/v2"
)

// RandomGenerator is the random generator for phyg. It is not safe for concurrent
// use: every parallel task derives its own generator with Spawn.
type RandomGenerator struct {
	*rand.Rand
	src rand.Source
}

// NewRandomGenerator creates a RandomGenerator.
func NewRandomGenerator(seed uint64) RandomGenerator {
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	return RandomGenerator{Rand: rand.New(src), src: src}
}

// Source returns the underlying source, shared with distributions drawing from it.
func (rng RandomGenerator) Source() rand.Source {
	return rng.src
}

// Spawn creates n independent generators seeded from this one. Seeds are drawn
// sequentially so the result only depends on the state of the parent.
func (rng RandomGenerator) Spawn(n int) []RandomGenerator {
	children := make([]RandomGenerator, n)
	for i := range children {
		children[i] = NewRandomGenerator(rng.Uint64())
	}
	return children
}

// NormalVector makes a vec filled with normal random floats.
func (rng RandomGenerator) NormalVector(size int, mean, stdDev float64) []float64 {
	ret := make([]float64, size)
	for i := 0; i < len(ret); i++ {
		ret[i] = rng.NormFloat64()*stdDev + mean
	}
	return ret
}

// NormalMatrix makes a matrix filled with normal random floats.
func (rng RandomGenerator) NormalMatrix(row, col int, mean, stdDev float64) [][]float64 {
	ret := make([][]float64, row)
	for i := range ret {
		ret[i] = rng.NormalVector(col, mean, stdDev)
	}
	return ret
}
