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
	"encoding/binary"
	"io"

	"github.com/juju/errors"
	"github.com/phyg-io/phyg/base/encoding"
)

// Index manages the map between external user identifiers and dense row indices
// in the user factor matrix.
type Index struct {
	Numbers map[string]int // external ID -> dense index
	Names   []string       // dense index -> external ID
}

// NotId represents an ID doesn't exist.
const NotId = -1

// NewMapIndex creates an Index.
func NewMapIndex() *Index {
	return &Index{
		Numbers: make(map[string]int),
		Names:   make([]string, 0),
	}
}

// Len returns the number of indexed names.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.Names)
}

// Add adds a new name and returns its dense index.
func (idx *Index) Add(name string) int {
	if number, exist := idx.Numbers[name]; exist {
		return number
	}
	idx.Numbers[name] = len(idx.Names)
	idx.Names = append(idx.Names, name)
	return len(idx.Names) - 1
}

// ToNumber converts a name to a dense index, or NotId if the name is unknown.
func (idx *Index) ToNumber(name string) int {
	if idx == nil {
		return NotId
	}
	if number, exist := idx.Numbers[name]; exist {
		return number
	}
	return NotId
}

// ToName converts a dense index to a name.
func (idx *Index) ToName(index int) string {
	return idx.Names[index]
}

// Marshal index into byte stream.
func (idx *Index) Marshal(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, int64(len(idx.Names))); err != nil {
		return errors.Trace(err)
	}
	for _, s := range idx.Names {
		if err := encoding.WriteString(w, s); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// Unmarshal index from byte stream.
func (idx *Index) Unmarshal(r io.Reader) error {
	var n int64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return errors.Trace(err)
	}
	idx.Names = make([]string, 0, n)
	idx.Numbers = make(map[string]int, n)
	for i := int64(0); i < n; i++ {
		name, err := encoding.ReadString(r)
		if err != nil {
			return errors.Trace(err)
		}
		idx.Add(name)
	}
	return nil
}
