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
	"sort"

	"github.com/juju/errors"
)

// SparseVector is the data structure for the sparse vector.
type SparseVector struct {
	Indices []int
	Values  []float64
	Sorted  bool
}

// NewSparseVector creates a SparseVector.
func NewSparseVector() *SparseVector {
	return &SparseVector{
		Indices: make([]int, 0),
		Values:  make([]float64, 0),
	}
}

// Add a new item.
func (vec *SparseVector) Add(index int, value float64) {
	vec.Indices = append(vec.Indices, index)
	vec.Values = append(vec.Values, value)
	vec.Sorted = false
}

// Len returns the number of items.
func (vec *SparseVector) Len() int {
	if vec == nil {
		return 0
	}
	return len(vec.Values)
}

// Less returns true if the index of i-th item is less than the index of j-th item.
func (vec *SparseVector) Less(i, j int) bool {
	return vec.Indices[i] < vec.Indices[j]
}

// Swap two items.
func (vec *SparseVector) Swap(i, j int) {
	vec.Indices[i], vec.Indices[j] = vec.Indices[j], vec.Indices[i]
	vec.Values[i], vec.Values[j] = vec.Values[j], vec.Values[i]
}

// ForEach iterates items in the sparse vector.
func (vec *SparseVector) ForEach(f func(i, index int, value float64)) {
	for i := range vec.Indices {
		f(i, vec.Indices[i], vec.Values[i])
	}
}

// Sum returns the sum of values.
func (vec *SparseVector) Sum() float64 {
	sum := 0.0
	for _, v := range vec.Values {
		sum += v
	}
	return sum
}

// Dot computes the inner product with a dense vector.
func (vec *SparseVector) Dot(dense []float64) float64 {
	sum := 0.0
	for i, index := range vec.Indices {
		sum += vec.Values[i] * dense[index]
	}
	return sum
}

// SortIndex sorts items by indices.
func (vec *SparseVector) SortIndex() {
	if !vec.Sorted {
		sort.Sort(vec)
		vec.Sorted = true
	}
}

// ForIntersection iterates items in the intersection of two vectors. Both vectors
// must be sorted by indices, then common indices are found in linear time.
func (vec *SparseVector) ForIntersection(other *SparseVector, f func(index int, a, b float64)) {
	i, j := 0, 0
	for i < vec.Len() && j < other.Len() {
		if vec.Indices[i] == other.Indices[j] {
			f(vec.Indices[i], vec.Values[i], other.Values[j])
			i++
			j++
		} else if vec.Indices[i] < other.Indices[j] {
			i++
		} else {
			j++
		}
	}
}

// Incidence is a read-only sparse matrix stored by rows. For a hypergraph, rows are
// songs and columns are edges: a non-zero entry (i, e) means song i participates in
// edge e.
type Incidence struct {
	rows    []*SparseVector
	numCols int
}

// NewIncidence builds an incidence matrix of shape (numRows, numCols) from
// coordinate triples. Values must be non-negative. Duplicated coordinates are summed
// and zero entries dropped.
func NewIncidence(numRows, numCols int, rowIndices, colIndices []int, values []float64) (*Incidence, error) {
	if len(rowIndices) != len(colIndices) || len(rowIndices) != len(values) {
		return nil, errors.NotValidf("incidence coordinates of length %d, %d and %d",
			len(rowIndices), len(colIndices), len(values))
	}
	merged := make([]map[int]float64, numRows)
	for k := range rowIndices {
		i, e := rowIndices[k], colIndices[k]
		if i < 0 || i >= numRows || e < 0 || e >= numCols {
			return nil, errors.NotValidf("incidence entry (%d, %d) out of shape (%d, %d)", i, e, numRows, numCols)
		}
		if !(values[k] >= 0) {
			return nil, errors.NotValidf("incidence value %v at (%d, %d)", values[k], i, e)
		}
		if merged[i] == nil {
			merged[i] = make(map[int]float64)
		}
		merged[i][e] += values[k]
	}
	h := &Incidence{rows: make([]*SparseVector, numRows), numCols: numCols}
	for i := range h.rows {
		h.rows[i] = NewSparseVector()
		for e, v := range merged[i] {
			if v != 0 {
				h.rows[i].Add(e, v)
			}
		}
		h.rows[i].SortIndex()
	}
	return h, nil
}

// NumRows returns the number of rows.
func (h *Incidence) NumRows() int {
	return len(h.rows)
}

// NumCols returns the number of columns.
func (h *Incidence) NumCols() int {
	return h.numCols
}

// Row returns the i-th row. The returned vector must not be modified.
func (h *Incidence) Row(i int) *SparseVector {
	return h.rows[i]
}

// NumNonZero returns the number of stored entries.
func (h *Incidence) NumNonZero() int {
	n := 0
	for _, row := range h.rows {
		n += row.Len()
	}
	return n
}

// Transpose returns the column-major view as a new incidence matrix.
func (h *Incidence) Transpose() *Incidence {
	t := &Incidence{rows: make([]*SparseVector, h.numCols), numCols: len(h.rows)}
	for e := range t.rows {
		t.rows[e] = NewSparseVector()
	}
	// rows are visited in order, so every transposed row is sorted
	for i, row := range h.rows {
		row.ForEach(func(_, e int, v float64) {
			t.rows[e].Add(i, v)
		})
	}
	for _, row := range t.rows {
		row.Sorted = true
	}
	return t
}

// MulVec computes h·x for a dense vector x of length NumCols.
func (h *Incidence) MulVec(x []float64) []float64 {
	y := make([]float64, len(h.rows))
	for i, row := range h.rows {
		y[i] = row.Dot(x)
	}
	return y
}
