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
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/juju/errors"
	"github.com/phyg-io/phyg/model"
	"github.com/phyg-io/phyg/model/phyg"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the configuration of a training run.
type Config struct {
	Model   ModelConfig   `mapstructure:"model"`
	Fit     FitConfig     `mapstructure:"fit"`
	Input   InputConfig   `mapstructure:"input"`
	Output  OutputConfig  `mapstructure:"output"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ModelConfig holds the hyper-parameters of the playlist model.
type ModelConfig struct {
	NFactors    int     `mapstructure:"n_factors" validate:"gte=0"`
	EdgeReg     float64 `mapstructure:"edge_reg" validate:"gt=0"`
	BiasReg     float64 `mapstructure:"bias_reg" validate:"gt=0"`
	UserReg     float64 `mapstructure:"user_reg" validate:"gt=0"`
	SongReg     float64 `mapstructure:"song_reg" validate:"gt=0"`
	NEpochs     int     `mapstructure:"n_epochs" validate:"gte=0"`
	MaxADMMIter int     `mapstructure:"max_admm_iter" validate:"ne=0"`
	ADMMTol     float64 `mapstructure:"admm_tol" validate:"gt=0"`
	NNeg        int     `mapstructure:"n_neg" validate:"gt=0"`
	FitParams   string  `mapstructure:"fit_params" validate:"required,max=4"`
	InitStdDev  float64 `mapstructure:"init_std_dev" validate:"gte=0"`
	RandomState int64   `mapstructure:"random_state"`
}

type FitConfig struct {
	Jobs    int `mapstructure:"jobs" validate:"gt=0"`
	Verbose int `mapstructure:"verbose" validate:"gt=0"`
}

type InputConfig struct {
	Hypergraph string `mapstructure:"hypergraph" validate:"required"`
	Playlists  string `mapstructure:"playlists" validate:"required"`
}

type OutputConfig struct {
	Model       string `mapstructure:"model" validate:"required"`
	EdgeWeights string `mapstructure:"edge_weights"`
}

// MetricsConfig configures the Prometheus endpoint. An empty address disables it.
type MetricsConfig struct {
	Addr            string        `mapstructure:"addr" validate:"omitempty,hostname_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
}

func GetDefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			NFactors:    8,
			EdgeReg:     1,
			BiasReg:     1,
			UserReg:     1,
			SongReg:     1,
			NEpochs:     10,
			MaxADMMIter: 50,
			ADMMTol:     1e-4,
			NNeg:        64,
			FitParams:   "ebus",
		},
		Fit: FitConfig{
			Jobs:    1,
			Verbose: 1,
		},
		Input: InputConfig{
			Hypergraph: "hypergraph.csv",
			Playlists:  "playlists.csv",
		},
		Output: OutputConfig{
			Model: "phyg.model",
		},
		Metrics: MetricsConfig{
			ShutdownTimeout: 5 * time.Second,
		},
	}
}

func setDefault(v *viper.Viper) {
	defaultConfig := GetDefaultConfig()
	// [model]
	v.SetDefault("model.n_factors", defaultConfig.Model.NFactors)
	v.SetDefault("model.edge_reg", defaultConfig.Model.EdgeReg)
	v.SetDefault("model.bias_reg", defaultConfig.Model.BiasReg)
	v.SetDefault("model.user_reg", defaultConfig.Model.UserReg)
	v.SetDefault("model.song_reg", defaultConfig.Model.SongReg)
	v.SetDefault("model.n_epochs", defaultConfig.Model.NEpochs)
	v.SetDefault("model.max_admm_iter", defaultConfig.Model.MaxADMMIter)
	v.SetDefault("model.admm_tol", defaultConfig.Model.ADMMTol)
	v.SetDefault("model.n_neg", defaultConfig.Model.NNeg)
	v.SetDefault("model.fit_params", defaultConfig.Model.FitParams)
	v.SetDefault("model.init_std_dev", defaultConfig.Model.InitStdDev)
	v.SetDefault("model.random_state", defaultConfig.Model.RandomState)
	// [fit]
	v.SetDefault("fit.jobs", defaultConfig.Fit.Jobs)
	v.SetDefault("fit.verbose", defaultConfig.Fit.Verbose)
	// [input]
	v.SetDefault("input.hypergraph", defaultConfig.Input.Hypergraph)
	v.SetDefault("input.playlists", defaultConfig.Input.Playlists)
	// [output]
	v.SetDefault("output.model", defaultConfig.Output.Model)
	v.SetDefault("output.edge_weights", defaultConfig.Output.EdgeWeights)
	// [metrics]
	v.SetDefault("metrics.addr", defaultConfig.Metrics.Addr)
	v.SetDefault("metrics.shutdown_timeout", defaultConfig.Metrics.ShutdownTimeout)
}

type configBinding struct {
	key string
	env string
}

// Every key can be overridden by PHYG_<SECTION>_<KEY>. These shorter names are
// accepted as well.
var envBindings = []configBinding{
	{"fit.jobs", "PHYG_JOBS"},
	{"model.random_state", "PHYG_RANDOM_STATE"},
	{"metrics.addr", "PHYG_METRICS_ADDR"},
}

// flagBindings map command line flags to configuration keys.
var flagBindings = []configBinding{
	{"input.hypergraph", "hypergraph"},
	{"input.playlists", "playlists"},
	{"output.model", "output"},
	{"output.edge_weights", "edge-weights"},
	{"fit.jobs", "jobs"},
	{"metrics.addr", "metrics-addr"},
}

// AddFlags registers the command line flags that override the configuration.
func AddFlags(flagSet *pflag.FlagSet) {
	defaultConfig := GetDefaultConfig()
	flagSet.String("hypergraph", defaultConfig.Input.Hypergraph, "song-edge incidence records")
	flagSet.String("playlists", defaultConfig.Input.Playlists, "user playlist records")
	flagSet.StringP("output", "o", defaultConfig.Output.Model, "path of the fitted model")
	flagSet.String("edge-weights", defaultConfig.Output.EdgeWeights, "path of the edge weight records")
	flagSet.IntP("jobs", "j", defaultConfig.Fit.Jobs, "number of working jobs")
	flagSet.String("metrics-addr", defaultConfig.Metrics.Addr, "address of the metrics endpoint")
}

// LoadConfig loads configuration from a TOML file, environment variables and the
// flags registered by AddFlags. An empty path skips the file and a nil flag set
// skips the flags.
func LoadConfig(path string, flagSet *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefault(v)

	// bind environment variables
	v.SetEnvPrefix("phyg")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, binding := range envBindings {
		if err := v.BindEnv(binding.key, binding.env); err != nil {
			return nil, errors.Trace(err)
		}
	}

	// bind flags
	if flagSet != nil {
		for _, binding := range flagBindings {
			if flag := flagSet.Lookup(binding.env); flag != nil {
				if err := v.BindPFlag(binding.key, flag); err != nil {
					return nil, errors.Trace(err)
				}
			}
		}
	}

	// load config file
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Annotatef(err, "read config %s", path)
		}
	}

	var conf Config
	if err := v.Unmarshal(&conf, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
	))); err != nil {
		return nil, errors.Trace(err)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the value of every field.
func (config *Config) Validate() error {
	if err := validate.Struct(config); err != nil {
		return errors.NewNotValid(err, "config")
	}
	return nil
}

// GetParams converts the model section to hyper-parameters.
func (config *ModelConfig) GetParams() model.Params {
	return model.Params{
		model.NFactors:    config.NFactors,
		model.EdgeReg:     config.EdgeReg,
		model.BiasReg:     config.BiasReg,
		model.UserReg:     config.UserReg,
		model.SongReg:     config.SongReg,
		model.NEpochs:     config.NEpochs,
		model.MaxADMMIter: config.MaxADMMIter,
		model.ADMMTol:     config.ADMMTol,
		model.NNeg:        config.NNeg,
		model.FitParams:   config.FitParams,
		model.InitStdDev:  config.InitStdDev,
		model.RandomState: config.RandomState,
	}
}

func (config *FitConfig) GetFitConfig() *phyg.FitConfig {
	return phyg.NewFitConfig().
		SetJobs(config.Jobs).
		SetVerbose(config.Verbose)
}

// ToMap flattens the configuration for logging.
func (config *Config) ToMap() (map[string]interface{}, error) {
	var configMap map[string]interface{}
	if err := mapstructure.Decode(config, &configMap); err != nil {
		return nil, errors.Trace(err)
	}
	return configMap, nil
}
