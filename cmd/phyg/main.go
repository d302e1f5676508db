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

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"time"

	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/phyg-io/phyg/base/log"
	"github.com/phyg-io/phyg/cmd/version"
	"github.com/phyg-io/phyg/config"
	"github.com/phyg-io/phyg/model/phyg"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCommand = &cobra.Command{
	Use:   "phyg",
	Short: "Personalized hypergraph playlist model.",
	Run: func(cmd *cobra.Command, args []string) {
		if showVersion, _ := cmd.Flags().GetBool("version"); showVersion {
			fmt.Println(version.BuildInfo())
			return
		}
		_ = cmd.Help()
	},
}

var fitCommand = &cobra.Command{
	Use:   "fit",
	Short: "Fit the model on a hypergraph and user playlists.",
	Run: func(cmd *cobra.Command, args []string) {
		log.SetLogger(cmd.Flags())

		// load config
		configPath, _ := cmd.Flags().GetString("config")
		log.Logger().Info("load config", zap.String("config", configPath))
		conf, err := config.LoadConfig(configPath, cmd.Flags())
		if err != nil {
			log.Logger().Fatal("failed to load config", zap.Error(err))
		}
		if configMap, err := conf.ToMap(); err == nil {
			log.Logger().Debug("config", zap.Any("config", configMap))
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if err = fit(ctx, conf); err != nil {
			log.Logger().Fatal("failed to fit", zap.Error(err))
		}
	},
}

func fit(ctx context.Context, conf *config.Config) error {
	if conf.Metrics.Addr != "" {
		server := serveMetrics(conf.Metrics.Addr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), conf.Metrics.ShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Logger().Error("failed to shutdown metrics server", zap.Error(err))
			}
		}()
	}

	d, h, err := loadDataset(&conf.Input)
	if err != nil {
		return err
	}
	m := phyg.NewPlaylistModel(conf.Model.GetParams())
	start := time.Now()
	if err = m.Fit(ctx, d.Playlists(), h, conf.Fit.GetFitConfig()); err != nil {
		return err
	}
	log.Logger().Info("fit model",
		zap.Int("n_users", m.UserIndex.Len()),
		zap.Int("n_factors", m.GetNumFactors()),
		zap.Duration("time", time.Since(start)))

	if err = saveModel(conf.Output.Model, m); err != nil {
		return err
	}
	log.Logger().Info("save model", zap.String("path", conf.Output.Model))
	if conf.Output.EdgeWeights != "" {
		if err = saveEdgeWeights(conf.Output.EdgeWeights, d, m.EdgeWeight); err != nil {
			return err
		}
		log.Logger().Info("save edge weights", zap.String("path", conf.Output.EdgeWeights))
	}
	return nil
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		log.Logger().Info("start metrics server", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Logger().Error("failed to serve metrics", zap.Error(err))
		}
	}()
	return server
}

var inspectCommand = &cobra.Command{
	Use:   "inspect MODEL",
	Short: "Print a summary of a fitted model.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := loadModel(args[0])
		if err != nil {
			return err
		}
		top, _ := cmd.Flags().GetInt("top")
		fmt.Printf("Users:\t\t %d\n", m.UserIndex.Len())
		fmt.Printf("Songs:\t\t %d\n", len(m.SongBias))
		fmt.Printf("Edges:\t\t %d\n", len(m.EdgeWeight))
		fmt.Printf("Factors:\t %d\n", m.GetNumFactors())
		fmt.Printf("Params:\t\t %s\n", m.GetParams().ToString())

		// edges by descending share of the start distribution
		dist := m.EdgeDistribution()
		edges := lo.Range(len(dist))
		sort.SliceStable(edges, func(i, j int) bool {
			return dist[edges[i]] > dist[edges[j]]
		})
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("edge", "weight", "share")
		if err = table.Bulk(lo.Map(lo.Slice(edges, 0, top), func(e int, _ int) []string {
			return []string{
				strconv.Itoa(e),
				strconv.FormatFloat(m.EdgeWeight[e], 'f', 4, 64),
				strconv.FormatFloat(dist[e], 'f', 4, 64),
			}
		})); err != nil {
			return errors.Trace(err)
		}
		return errors.Trace(table.Render())
	},
}

func init() {
	rootCommand.Flags().BoolP("version", "v", false, "phyg version")

	log.AddFlags(fitCommand.Flags())
	config.AddFlags(fitCommand.Flags())
	fitCommand.Flags().StringP("config", "c", "", "configuration file path")

	inspectCommand.Flags().Int("top", 10, "number of edges to print")

	rootCommand.AddCommand(fitCommand, inspectCommand)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		log.Logger().Fatal("failed to execute", zap.Error(err))
	}
}
