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
	"context"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/go-playground/validator/v10"
	"github.com/juju/errors"
	"github.com/phyg-io/phyg/base"
	"github.com/phyg-io/phyg/base/log"
	"github.com/phyg-io/phyg/dataset"
	"github.com/phyg-io/phyg/model"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

// Parameter families selected by FitParams.
const (
	FitEdges = 'e'
	FitBias  = 'b'
	FitUsers = 'u'
	FitSongs = 's'
)

type FitConfig struct {
	Jobs    int
	Verbose int
}

func NewFitConfig() *FitConfig {
	return &FitConfig{
		Jobs:    1,
		Verbose: 1,
	}
}

func (config *FitConfig) SetVerbose(verbose int) *FitConfig {
	config.Verbose = verbose
	return config
}

func (config *FitConfig) SetJobs(jobs int) *FitConfig {
	config.Jobs = jobs
	return config
}

// hyperParams are the validated hyper-parameters of PlaylistModel.
type hyperParams struct {
	NFactors    int     `validate:"gte=0"`
	EdgeReg     float64 `validate:"gt=0"`
	BiasReg     float64 `validate:"gt=0"`
	UserReg     float64 `validate:"gt=0"`
	SongReg     float64 `validate:"gt=0"`
	NEpochs     int     `validate:"gte=0"`
	MaxADMMIter int     `validate:"ne=0"`
	ADMMTol     float64 `validate:"gt=0"`
	NNeg        int     `validate:"gt=0"`
	FitParams   string  `validate:"required,fitparams"`
	InitStdDev  float64 `validate:"gte=0"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		if err := validate.RegisterValidation("fitparams", func(fl validator.FieldLevel) bool {
			families := mapset.NewSet[rune](FitEdges, FitBias, FitUsers, FitSongs)
			return families.IsSuperset(mapset.NewSet([]rune(fl.Field().String())...))
		}); err != nil {
			log.Logger().Fatal("failed to register validation", zap.Error(err))
		}
	})
	return validate
}

// PlaylistModel is the personalized hypergraph playlist model. The score of song j
// for user u is
//
//	b_j + u·v_j
//
// and a transition (s, t) is explained by the edges containing both songs, weighted by
// exp(w). Parameters are fitted by block coordinate descent: edge weights by a bounded
// quasi-Newton method, user factors independently per user, song biases and song
// factors by consensus ADMM over users.
//
// Hyper-parameters:
//
//	NFactors    - The number of latent factors. Default is 8.
//	EdgeReg     - The regularization of edge weights. Default is 1.
//	BiasReg     - The regularization of song biases. Default is 1.
//	UserReg     - The regularization of user factors. Default is 1.
//	SongReg     - The regularization of song factors. Default is 1.
//	NEpochs     - The number of outer iterations. Default is 10.
//	MaxADMMIter - The number of ADMM rounds per pass, negative to run until the
//	              residuals are below ADMMTol. Default is 50.
//	ADMMTol     - The ADMM residual tolerance. Default is 1e-4.
//	NNeg        - The number of negative samples per user. Default is 64.
//	FitParams   - The parameter families to fit, a subset of "ebus". Default is "ebus".
//	InitStdDev  - The standard deviation of initial factors. Default is 0.
type PlaylistModel struct {
	model.BaseModel
	UserIndex  *base.Index
	EdgeWeight []float64
	SongBias   []float64
	UserFactor [][]float64
	SongFactor [][]float64
	// Hyper parameters
	nFactors    int
	edgeReg     float64
	biasReg     float64
	userReg     float64
	songReg     float64
	nEpochs     int
	maxADMMIter int
	admmTol     float64
	nNeg        int
	fitParams   mapset.Set[rune]
	initStdDev  float64
	paramsErr   error
}

// NewPlaylistModel creates a PlaylistModel.
func NewPlaylistModel(params model.Params) *PlaylistModel {
	m := new(PlaylistModel)
	m.SetParams(params)
	return m
}

// SetParams sets hyper-parameters. Invalid hyper-parameters are reported by Fit.
func (m *PlaylistModel) SetParams(params model.Params) {
	m.BaseModel.SetParams(params)
	hp := hyperParams{
		NFactors:    m.Params.GetInt(model.NFactors, 8),
		EdgeReg:     m.Params.GetFloat64(model.EdgeReg, 1),
		BiasReg:     m.Params.GetFloat64(model.BiasReg, 1),
		UserReg:     m.Params.GetFloat64(model.UserReg, 1),
		SongReg:     m.Params.GetFloat64(model.SongReg, 1),
		NEpochs:     m.Params.GetInt(model.NEpochs, 10),
		MaxADMMIter: m.Params.GetInt(model.MaxADMMIter, 50),
		ADMMTol:     m.Params.GetFloat64(model.ADMMTol, 1e-4),
		NNeg:        m.Params.GetInt(model.NNeg, 64),
		FitParams:   strings.ToLower(m.Params.GetString(model.FitParams, "ebus")),
		InitStdDev:  m.Params.GetFloat64(model.InitStdDev, 0),
	}
	m.paramsErr = nil
	if err := getValidator().Struct(&hp); err != nil {
		m.paramsErr = errors.NewNotValid(err, "hyper-parameters")
	}
	m.nFactors = hp.NFactors
	m.edgeReg = hp.EdgeReg
	m.biasReg = hp.BiasReg
	m.userReg = hp.UserReg
	m.songReg = hp.SongReg
	m.nEpochs = hp.NEpochs
	m.maxADMMIter = hp.MaxADMMIter
	m.admmTol = hp.ADMMTol
	m.nNeg = hp.NNeg
	m.fitParams = mapset.NewSet([]rune(hp.FitParams)...)
	m.initStdDev = hp.InitStdDev
}

// SetInitialParams pre-seeds parameters for the next fit. Nil arguments are left to
// the default initialization. Rows of u follow the sorted user ids. The number of
// factors is taken from u or v when given.
func (m *PlaylistModel) SetInitialParams(w, b []float64, u, v [][]float64) {
	if w != nil {
		m.EdgeWeight = append([]float64(nil), w...)
	}
	if b != nil {
		m.SongBias = append([]float64(nil), b...)
	}
	if u != nil {
		m.UserFactor = base.CopyMatrix(u)
		if len(u) > 0 {
			m.nFactors = len(u[0])
		}
	}
	if v != nil {
		m.SongFactor = base.CopyMatrix(v)
		if len(v) > 0 {
			m.nFactors = len(v[0])
		}
	}
}

// GetNumFactors returns the number of latent factors.
func (m *PlaylistModel) GetNumFactors() int {
	return m.nFactors
}

// fitState is the read-only input shared by the passes of a fit.
type fitState struct {
	h       *base.Incidence
	ht      *base.Incidence
	bigrams [][]Bigram
	config  *FitConfig
}

// init validates the input and initializes missing parameters.
func (m *PlaylistModel) init(playlists dataset.Playlists, h *base.Incidence, config *FitConfig) (*fitState, error) {
	if m.paramsErr != nil {
		return nil, m.paramsErr
	}
	if h == nil {
		return nil, errors.NotValidf("nil incidence matrix")
	}
	if err := playlists.Validate(h.NumRows()); err != nil {
		return nil, errors.Trace(err)
	}
	if config == nil {
		config = NewFitConfig()
	}
	numSongs, numEdges := h.NumRows(), h.NumCols()
	userIndex, bigrams := MakeBigrams(playlists)
	numUsers := userIndex.Len()

	if m.EdgeWeight == nil {
		m.EdgeWeight = make([]float64, numEdges)
	} else if len(m.EdgeWeight) != numEdges {
		return nil, errors.NotValidf("edge weights of length %d for %d edges", len(m.EdgeWeight), numEdges)
	}
	if m.SongBias == nil {
		m.SongBias = make([]float64, numSongs)
	} else if len(m.SongBias) != numSongs {
		return nil, errors.NotValidf("song biases of length %d for %d songs", len(m.SongBias), numSongs)
	}
	if m.nFactors > 0 {
		if m.UserFactor == nil {
			m.UserFactor = m.initFactors(numUsers)
		} else if err := checkShape("user factors", m.UserFactor, numUsers, m.nFactors); err != nil {
			return nil, err
		}
		if m.SongFactor == nil {
			m.SongFactor = m.initFactors(numSongs)
		} else if err := checkShape("song factors", m.SongFactor, numSongs, m.nFactors); err != nil {
			return nil, err
		}
	} else {
		m.UserFactor = nil
		m.SongFactor = nil
	}
	m.UserIndex = userIndex
	return &fitState{h: h, ht: h.Transpose(), bigrams: bigrams, config: config}, nil
}

func (m *PlaylistModel) initFactors(rows int) [][]float64 {
	if m.initStdDev == 0 {
		return base.NewMatrix(rows, m.nFactors)
	}
	return m.GetRandomGenerator().NormalMatrix(rows, m.nFactors, 0, m.initStdDev)
}

func checkShape(name string, x [][]float64, rows, cols int) error {
	if len(x) != rows {
		return errors.NotValidf("%s with %d rows, expect %d", name, len(x), rows)
	}
	for i := range x {
		if len(x[i]) != cols {
			return errors.NotValidf("%s with %d columns in row %d, expect %d", name, len(x[i]), i, cols)
		}
	}
	return nil
}

// Fit the model by block coordinate descent. Every outer iteration fits the selected
// families in the order edges, biases, users, songs. Parameters are initialized on
// the first fit and refined by later fits.
func (m *PlaylistModel) Fit(ctx context.Context, playlists dataset.Playlists, h *base.Incidence, config *FitConfig) error {
	state, err := m.init(playlists, h, config)
	if err != nil {
		return errors.Trace(err)
	}
	log.Logger().Info("fit phyg",
		zap.Int("n_users", m.UserIndex.Len()),
		zap.Int("n_songs", h.NumRows()),
		zap.Int("n_edges", h.NumCols()),
		zap.Int("n_transitions", playlists.CountTransitions()),
		zap.Any("params", m.GetParams()),
		zap.Any("config", state.config))
	passes := []struct {
		family  rune
		name    string
		factors bool
		fit     func(context.Context, *fitState) error
	}{
		{FitEdges, "edges", false, m.fitEdges},
		{FitBias, "bias", false, m.fitBias},
		{FitUsers, "users", true, m.fitUsers},
		{FitSongs, "songs", true, m.fitSongs},
	}
	for epoch := 1; epoch <= m.nEpochs; epoch++ {
		fitStart := time.Now()
		for _, pass := range passes {
			if !m.fitParams.Contains(pass.family) {
				continue
			}
			if pass.factors && m.nFactors == 0 {
				log.Logger().Debug("skip pass without latent factors", zap.String("pass", pass.name))
				continue
			}
			passStart := time.Now()
			if err = pass.fit(ctx, state); err != nil {
				return errors.Annotatef(err, "epoch %d", epoch)
			}
			FitPassSecondsVec.WithLabelValues(pass.name).Set(time.Since(passStart).Seconds())
		}
		FitEpochsTotal.Inc()
		if state.config.Verbose > 0 && epoch%state.config.Verbose == 0 {
			log.Logger().Info("fit phyg",
				zap.Int("epoch", epoch),
				zap.Int("n_epochs", m.nEpochs),
				zap.Duration("fit_time", time.Since(fitStart)))
		}
	}
	return nil
}

// EdgeObjective returns the edge objective for playlists under the current biases
// and factors. Missing parameters are initialized as in Fit.
func (m *PlaylistModel) EdgeObjective(ctx context.Context, playlists dataset.Playlists, h *base.Incidence, config *FitConfig) (*EdgeObjective, error) {
	state, err := m.init(playlists, h, config)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return m.edgeObjective(ctx, state)
}

// affinity returns V·u of a user, zeros without factors.
func (m *PlaylistModel) affinity(userIndex int) []float64 {
	scores := make([]float64, len(m.SongBias))
	if m.nFactors > 0 {
		for j := range scores {
			scores[j] = floats.Dot(m.SongFactor[j], m.UserFactor[userIndex])
		}
	}
	return scores
}

// Score returns the score of a song for a user. Unknown users get the song bias.
func (m *PlaylistModel) Score(userId string, song int) float64 {
	if song < 0 || song >= len(m.SongBias) {
		return 0
	}
	score := m.SongBias[song]
	if m.nFactors > 0 {
		if userIndex := m.UserIndex.ToNumber(userId); userIndex != base.NotId {
			score += floats.Dot(m.UserFactor[userIndex], m.SongFactor[song])
		}
	}
	return score
}

// EdgeDistribution returns softmax(w), the probability of each edge to start a playlist.
func (m *PlaylistModel) EdgeDistribution() []float64 {
	return base.Softmax(nil, m.EdgeWeight)
}

func (m *PlaylistModel) Clear() {
	m.UserIndex = nil
	m.EdgeWeight = nil
	m.SongBias = nil
	m.UserFactor = nil
	m.SongFactor = nil
}

func (m *PlaylistModel) Invalid() bool {
	return m == nil ||
		m.UserIndex == nil ||
		m.EdgeWeight == nil ||
		m.SongBias == nil
}
