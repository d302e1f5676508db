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
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/juju/errors"
	"github.com/phyg-io/phyg/base"
	"github.com/phyg-io/phyg/base/encoding"
	"github.com/phyg-io/phyg/dataset"
	"github.com/phyg-io/phyg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestData(t *testing.T) (dataset.Playlists, *base.Incidence) {
	h := newIncidence(t, 10,
		[]int{0, 1, 2, 3},
		[]int{3, 4, 5},
		[]int{5, 6, 7, 8, 9},
		[]int{0, 2, 4, 6, 8})
	playlists := dataset.Playlists{
		"alice": {{0, 1, 2}, {3, 4}},
		"bob":   {{5, 6, 7}},
		"carol": {{8, 9}, {0, 2}},
		"dave":  {{4, 5}},
	}
	return playlists, h
}

func newTestParams() model.Params {
	return model.Params{
		model.NFactors:    2,
		model.NEpochs:     2,
		model.MaxADMMIter: 3,
		model.NNeg:        3,
		model.InitStdDev:  0.1,
		model.RandomState: 7,
	}
}

func assertFinite(t *testing.T, m *PlaylistModel) {
	for _, w := range m.EdgeWeight {
		assert.False(t, math.IsNaN(w) || math.IsInf(w, 0))
		assert.LessOrEqual(t, math.Abs(w), WeightBound)
	}
	for _, b := range m.SongBias {
		assert.False(t, math.IsNaN(b) || math.IsInf(b, 0))
	}
	for _, factors := range [][][]float64{m.UserFactor, m.SongFactor} {
		for _, row := range factors {
			for _, x := range row {
				assert.False(t, math.IsNaN(x) || math.IsInf(x, 0))
			}
		}
	}
}

func TestPlaylistModel_Fit(t *testing.T) {
	playlists, h := newTestData(t)
	m := NewPlaylistModel(newTestParams())
	require.NoError(t, m.Fit(context.Background(), playlists, h, NewFitConfig().SetJobs(2)))
	assert.Equal(t, []string{"alice", "bob", "carol", "dave"}, m.UserIndex.Names)
	assert.Len(t, m.EdgeWeight, 4)
	assert.Len(t, m.SongBias, 10)
	assert.Len(t, m.UserFactor, 4)
	assert.Len(t, m.SongFactor, 10)
	assert.Len(t, m.UserFactor[0], 2)
	assertFinite(t, m)

	score := m.Score("alice", 0)
	assert.InDelta(t, m.SongBias[0]+m.UserFactor[0][0]*m.SongFactor[0][0]+m.UserFactor[0][1]*m.SongFactor[0][1], score, 1e-12)
	assert.Equal(t, m.SongBias[1], m.Score("unknown", 1))
	assert.Zero(t, m.Score("alice", 100))
	assert.InDelta(t, 1.0, sum(m.EdgeDistribution()), 1e-12)

	// fit again from the current parameters
	require.NoError(t, m.Fit(context.Background(), playlists, h, nil))
	assertFinite(t, m)
}

func sum(x []float64) float64 {
	s := 0.0
	for _, v := range x {
		s += v
	}
	return s
}

func TestPlaylistModel_Jobs(t *testing.T) {
	playlists, h := newTestData(t)
	serial := NewPlaylistModel(newTestParams())
	require.NoError(t, serial.Fit(context.Background(), playlists, h, NewFitConfig().SetJobs(1)))
	parallel := NewPlaylistModel(newTestParams())
	require.NoError(t, parallel.Fit(context.Background(), playlists, h, NewFitConfig().SetJobs(4)))
	assert.Equal(t, serial.EdgeWeight, parallel.EdgeWeight)
	assert.Equal(t, serial.SongBias, parallel.SongBias)
	assert.Equal(t, serial.UserFactor, parallel.UserFactor)
	assert.Equal(t, serial.SongFactor, parallel.SongFactor)
}

func TestPlaylistModel_Unpersonalized(t *testing.T) {
	playlists, h := newTestData(t)
	params := newTestParams()
	params[model.NFactors] = 0
	m := NewPlaylistModel(params)
	require.NoError(t, m.Fit(context.Background(), playlists, h, nil))
	assert.Nil(t, m.UserFactor)
	assert.Nil(t, m.SongFactor)
	assertFinite(t, m)
	assert.NotEqual(t, make([]float64, 10), m.SongBias)
	assert.Equal(t, m.SongBias[3], m.Score("alice", 3))
}

func TestPlaylistModel_ConvergentADMM(t *testing.T) {
	playlists, h := newTestData(t)
	params := newTestParams()
	params[model.MaxADMMIter] = -1
	params[model.ADMMTol] = 1e-3
	params[model.NEpochs] = 1
	params[model.FitParams] = "bs"
	m := NewPlaylistModel(params)
	require.NoError(t, m.Fit(context.Background(), playlists, h, NewFitConfig().SetJobs(2)))
	assertFinite(t, m)
	assert.Zero(t, m.EdgeWeight[0])
}

func TestPlaylistModel_ZeroEpochs(t *testing.T) {
	playlists, h := newTestData(t)
	params := newTestParams()
	params[model.NEpochs] = 0
	m := NewPlaylistModel(params)
	w := []float64{0.5, -0.5, 1, 0}
	b := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	v := base.NewMatrix(10, 3)
	v[2][1] = 4
	m.SetInitialParams(w, b, nil, v)
	assert.Equal(t, 3, m.GetNumFactors())
	require.NoError(t, m.Fit(context.Background(), playlists, h, nil))
	assert.Equal(t, w, m.EdgeWeight)
	assert.Equal(t, b, m.SongBias)
	assert.Equal(t, v, m.SongFactor)
	assert.Len(t, m.UserFactor, 4)
	// seeded arrays are copied
	w[0] = 100
	assert.Equal(t, 0.5, m.EdgeWeight[0])

	m = NewPlaylistModel(model.Params{model.NEpochs: 0, model.NFactors: 2})
	require.NoError(t, m.Fit(context.Background(), playlists, h, nil))
	assert.Equal(t, make([]float64, 4), m.EdgeWeight)
	assert.Equal(t, make([]float64, 10), m.SongBias)
	assert.Equal(t, base.NewMatrix(4, 2), m.UserFactor)
	assert.Equal(t, base.NewMatrix(10, 2), m.SongFactor)
}

func TestPlaylistModel_InvalidParams(t *testing.T) {
	playlists, h := newTestData(t)
	for _, params := range []model.Params{
		{model.EdgeReg: 0.0},
		{model.BiasReg: -1.0},
		{model.UserReg: 0.0},
		{model.SongReg: 0.0},
		{model.NEpochs: -1},
		{model.MaxADMMIter: 0},
		{model.ADMMTol: 0.0},
		{model.NNeg: 0},
		{model.NFactors: -1},
		{model.FitParams: ""},
		{model.FitParams: "ebx"},
		{model.InitStdDev: -1.0},
	} {
		m := NewPlaylistModel(params)
		err := m.Fit(context.Background(), playlists, h, nil)
		assert.True(t, errors.IsNotValid(err), params)
		assert.Nil(t, m.EdgeWeight)
	}
	// valid again after resetting
	m := NewPlaylistModel(model.Params{model.EdgeReg: 0.0})
	m.SetParams(model.Params{model.NEpochs: 0})
	assert.NoError(t, m.Fit(context.Background(), playlists, h, nil))
}

func TestPlaylistModel_InvalidInput(t *testing.T) {
	playlists, h := newTestData(t)
	m := NewPlaylistModel(newTestParams())
	assert.True(t, errors.IsNotValid(m.Fit(context.Background(), playlists, nil, nil)))
	assert.True(t, errors.IsNotValid(m.Fit(context.Background(), dataset.Playlists{"eve": {{10}}}, h, nil)))

	m = NewPlaylistModel(newTestParams())
	m.SetInitialParams([]float64{0, 0}, nil, nil, nil)
	assert.True(t, errors.IsNotValid(m.Fit(context.Background(), playlists, h, nil)))
	m = NewPlaylistModel(newTestParams())
	m.SetInitialParams(nil, []float64{0}, nil, nil)
	assert.True(t, errors.IsNotValid(m.Fit(context.Background(), playlists, h, nil)))
	m = NewPlaylistModel(newTestParams())
	m.SetInitialParams(nil, nil, base.NewMatrix(3, 2), nil)
	assert.True(t, errors.IsNotValid(m.Fit(context.Background(), playlists, h, nil)))
	m = NewPlaylistModel(newTestParams())
	m.SetInitialParams(nil, nil, base.NewMatrix(4, 2), base.NewMatrix(10, 3))
	assert.True(t, errors.IsNotValid(m.Fit(context.Background(), playlists, h, nil)))
}

func TestPlaylistModel_SamplingExhausted(t *testing.T) {
	playlists, h := newTestData(t)
	params := newTestParams()
	params[model.NNeg] = 9
	m := NewPlaylistModel(params)
	err := m.Fit(context.Background(), playlists, h, nil)
	assert.ErrorIs(t, err, ErrSamplingExhausted)
}

func TestPlaylistModel_Cancel(t *testing.T) {
	playlists, h := newTestData(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewPlaylistModel(newTestParams())
	assert.ErrorIs(t, m.Fit(ctx, playlists, h, nil), context.Canceled)
}

func TestPlaylistModel_Marshal(t *testing.T) {
	playlists, h := newTestData(t)
	m := NewPlaylistModel(newTestParams())
	require.NoError(t, m.Fit(context.Background(), playlists, h, nil))

	buf := bytes.NewBuffer(nil)
	require.NoError(t, MarshalModel(buf, m))
	copied, err := UnmarshalModel(buf)
	require.NoError(t, err)
	assert.Equal(t, m.GetParams(), copied.GetParams())
	assert.Equal(t, m.UserIndex.Names, copied.UserIndex.Names)
	assert.Equal(t, m.EdgeWeight, copied.EdgeWeight)
	assert.Equal(t, m.SongBias, copied.SongBias)
	assert.Equal(t, m.UserFactor, copied.UserFactor)
	assert.Equal(t, m.SongFactor, copied.SongFactor)
	assert.Equal(t, 2, copied.GetNumFactors())
	assert.Equal(t, m.Score("bob", 6), copied.Score("bob", 6))

	// unpersonalized model
	m = NewPlaylistModel(model.Params{model.NFactors: 0, model.NEpochs: 1, model.FitParams: "e"})
	require.NoError(t, m.Fit(context.Background(), playlists, h, nil))
	buf.Reset()
	require.NoError(t, MarshalModel(buf, m))
	copied, err = UnmarshalModel(buf)
	require.NoError(t, err)
	assert.Equal(t, m.EdgeWeight, copied.EdgeWeight)
	assert.Nil(t, copied.SongFactor)
	assert.Zero(t, copied.GetNumFactors())

	// unknown model
	buf.Reset()
	require.NoError(t, encoding.WriteString(buf, "bpr"))
	_, err = UnmarshalModel(buf)
	assert.True(t, errors.IsNotValid(err))
}

func TestPlaylistModel_Clear(t *testing.T) {
	playlists, h := newTestData(t)
	var m model.Model = NewPlaylistModel(newTestParams())
	pm := m.(*PlaylistModel)
	require.NoError(t, pm.Fit(context.Background(), playlists, h, nil))
	assert.False(t, pm.Invalid())
	m.Clear()
	assert.True(t, pm.Invalid())
	assert.Nil(t, pm.SongFactor)
}
