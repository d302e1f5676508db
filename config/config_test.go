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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/phyg-io/phyg/model"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	config, err := LoadConfig("config.toml", nil)
	require.NoError(t, err)

	// [model]
	assert.Equal(t, 8, config.Model.NFactors)
	assert.Equal(t, 1.0, config.Model.EdgeReg)
	assert.Equal(t, 1.0, config.Model.SongReg)
	assert.Equal(t, 10, config.Model.NEpochs)
	assert.Equal(t, 50, config.Model.MaxADMMIter)
	assert.Equal(t, 1e-4, config.Model.ADMMTol)
	assert.Equal(t, 64, config.Model.NNeg)
	assert.Equal(t, "ebus", config.Model.FitParams)
	// [fit]
	assert.Equal(t, 4, config.Fit.Jobs)
	assert.Equal(t, 1, config.Fit.Verbose)
	// [input]
	assert.Equal(t, "data/hypergraph.csv", config.Input.Hypergraph)
	assert.Equal(t, "data/playlists.csv", config.Input.Playlists)
	// [output]
	assert.Equal(t, "phyg.model", config.Output.Model)
	assert.Equal(t, "edge_weights.csv", config.Output.EdgeWeights)
	// [metrics]
	assert.Equal(t, "127.0.0.1:8088", config.Metrics.Addr)
	assert.Equal(t, 10*time.Second, config.Metrics.ShutdownTimeout)
}

func TestSetDefault(t *testing.T) {
	config, err := LoadConfig("", nil)
	require.NoError(t, err)
	assert.Equal(t, GetDefaultConfig(), config)
}

func TestBindEnv(t *testing.T) {
	t.Setenv("PHYG_MODEL_N_FACTORS", "16")
	t.Setenv("PHYG_MODEL_FIT_PARAMS", "eb")
	t.Setenv("PHYG_JOBS", "3")
	t.Setenv("PHYG_RANDOM_STATE", "42")
	t.Setenv("PHYG_METRICS_ADDR", "localhost:9090")
	t.Setenv("PHYG_INPUT_PLAYLISTS", "<playlists>")

	config, err := LoadConfig("config.toml", nil)
	require.NoError(t, err)
	assert.Equal(t, 16, config.Model.NFactors)
	assert.Equal(t, "eb", config.Model.FitParams)
	assert.Equal(t, 3, config.Fit.Jobs)
	assert.Equal(t, int64(42), config.Model.RandomState)
	assert.Equal(t, "localhost:9090", config.Metrics.Addr)
	assert.Equal(t, "<playlists>", config.Input.Playlists)

	// check values from the file
	assert.Equal(t, "data/hypergraph.csv", config.Input.Hypergraph)
}

func TestBindFlags(t *testing.T) {
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(flagSet)
	require.NoError(t, flagSet.Parse([]string{"--playlists", "p.csv", "-o", "out.model", "-j", "8"}))

	config, err := LoadConfig("config.toml", flagSet)
	require.NoError(t, err)
	assert.Equal(t, "p.csv", config.Input.Playlists)
	assert.Equal(t, "out.model", config.Output.Model)
	assert.Equal(t, 8, config.Fit.Jobs)
	// unchanged flags do not override the file
	assert.Equal(t, "data/hypergraph.csv", config.Input.Hypergraph)
	assert.Equal(t, "127.0.0.1:8088", config.Metrics.Addr)
}

func TestLoadConfig_Invalid(t *testing.T) {
	dir := t.TempDir()
	for _, text := range []string{
		"[model]\nedge_reg = 0.0\n",
		"[model]\nmax_admm_iter = 0\n",
		"[model]\nn_neg = -1\n",
		"[model]\nfit_params = \"\"\n",
		"[fit]\njobs = 0\n",
		"[output]\nmodel = \"\"\n",
		"[metrics]\naddr = \"localhost\"\n",
	} {
		path := filepath.Join(dir, "config.toml")
		require.NoError(t, os.WriteFile(path, []byte(text), 0644))
		_, err := LoadConfig(path, nil)
		assert.True(t, errors.IsNotValid(err), text)
	}

	_, err := LoadConfig(filepath.Join(dir, "missing.toml"), nil)
	assert.Error(t, err)
}

func TestConfig_GetParams(t *testing.T) {
	config := GetDefaultConfig()
	config.Model.RandomState = 7
	params := config.Model.GetParams()
	assert.Equal(t, 8, params.GetInt(model.NFactors, 0))
	assert.Equal(t, "ebus", params.GetString(model.FitParams, ""))
	assert.Equal(t, int64(7), params.GetInt64(model.RandomState, 0))
	assert.Equal(t, 1e-4, params.GetFloat64(model.ADMMTol, 0))

	fitConfig := config.Fit.GetFitConfig()
	assert.Equal(t, 1, fitConfig.Jobs)
	assert.Equal(t, 1, fitConfig.Verbose)

	configMap, err := config.ToMap()
	require.NoError(t, err)
	assert.Contains(t, configMap, "model")
	assert.Contains(t, configMap, "metrics")
}
