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
	"io"

	"github.com/juju/errors"
	"github.com/phyg-io/phyg/base"
	"github.com/phyg-io/phyg/base/encoding"
	"github.com/phyg-io/phyg/model"
)

const modelName = "phyg"

// Marshal model into byte stream.
func (m *PlaylistModel) Marshal(w io.Writer) error {
	// write params
	params := m.Params
	if params == nil {
		params = model.Params{}
	}
	if err := encoding.WriteGob(w, params); err != nil {
		return errors.Trace(err)
	}
	// write user index
	userIndex := m.UserIndex
	if userIndex == nil {
		userIndex = base.NewMapIndex()
	}
	if err := userIndex.Marshal(w); err != nil {
		return errors.Trace(err)
	}
	// write edge weights and song biases
	if err := encoding.WriteVector(w, m.EdgeWeight); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteVector(w, m.SongBias); err != nil {
		return errors.Trace(err)
	}
	// write latent factors
	if err := encoding.WriteMatrix(w, m.UserFactor); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteMatrix(w, m.SongFactor); err != nil {
		return errors.Trace(err)
	}
	return nil
}

// Unmarshal model from byte stream.
func (m *PlaylistModel) Unmarshal(r io.Reader) error {
	// read params
	if err := encoding.ReadGob(r, &m.Params); err != nil {
		return errors.Trace(err)
	}
	m.SetParams(m.Params)
	// read user index
	m.UserIndex = base.NewMapIndex()
	if err := m.UserIndex.Unmarshal(r); err != nil {
		return errors.Trace(err)
	}
	// read edge weights and song biases
	var err error
	if m.EdgeWeight, err = encoding.ReadVector(r); err != nil {
		return errors.Trace(err)
	}
	if m.SongBias, err = encoding.ReadVector(r); err != nil {
		return errors.Trace(err)
	}
	// read latent factors
	if m.UserFactor, err = encoding.ReadMatrix(r); err != nil {
		return errors.Trace(err)
	}
	if m.SongFactor, err = encoding.ReadMatrix(r); err != nil {
		return errors.Trace(err)
	}
	m.nFactors = 0
	if len(m.SongFactor) > 0 {
		m.nFactors = len(m.SongFactor[0])
	}
	if m.nFactors == 0 {
		m.UserFactor, m.SongFactor = nil, nil
	} else if len(m.UserFactor) != m.UserIndex.Len() || len(m.SongFactor) != len(m.SongBias) {
		return errors.NotValidf("latent factors of %d users and %d songs", len(m.UserFactor), len(m.SongFactor))
	}
	return nil
}

func MarshalModel(w io.Writer, m *PlaylistModel) error {
	if err := encoding.WriteString(w, modelName); err != nil {
		return errors.Trace(err)
	}
	if err := m.Marshal(w); err != nil {
		return errors.Trace(err)
	}
	return nil
}

func UnmarshalModel(r io.Reader) (*PlaylistModel, error) {
	name, err := encoding.ReadString(r)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if name != modelName {
		return nil, errors.NotValidf("model %v", name)
	}
	var m PlaylistModel
	if err := m.Unmarshal(r); err != nil {
		return nil, errors.Trace(err)
	}
	return &m, nil
}
