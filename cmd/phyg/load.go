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
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/juju/errors"
	"github.com/phyg-io/phyg/base"
	"github.com/phyg-io/phyg/base/log"
	"github.com/phyg-io/phyg/config"
	"github.com/phyg-io/phyg/dataset"
	"github.com/phyg-io/phyg/model/phyg"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

// loadFile feeds a file to load through a progress bar.
func loadFile(path, description string, load func(r io.Reader) error) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Trace(err)
	}
	defer file.Close()
	stat, err := file.Stat()
	if err != nil {
		return errors.Trace(err)
	}
	pbReader := progressbar.NewReader(file, progressbar.DefaultBytes(stat.Size(), description))
	defer pbReader.Close()
	return errors.Annotatef(load(&pbReader), "load %s", path)
}

// loadDataset reads the hypergraph and then the playlists.
func loadDataset(conf *config.InputConfig) (*dataset.Dataset, *base.Incidence, error) {
	d := dataset.NewDataset()
	if err := loadFile(conf.Hypergraph, "loading hypergraph", d.LoadHypergraph); err != nil {
		return nil, nil, err
	}
	if err := loadFile(conf.Playlists, "loading playlists", d.LoadPlaylists); err != nil {
		return nil, nil, err
	}
	h, err := d.Incidence()
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	log.Logger().Info("load dataset",
		zap.Int("n_songs", d.CountSongs()),
		zap.Int("n_edges", d.CountEdges()),
		zap.Int("n_users", d.CountUsers()),
		zap.Int("n_transitions", d.Playlists().CountTransitions()))
	return d, h, nil
}

func saveModel(path string, m *phyg.PlaylistModel) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Trace(err)
	}
	w := bufio.NewWriter(file)
	if err = phyg.MarshalModel(w, m); err != nil {
		_ = file.Close()
		return errors.Trace(err)
	}
	if err = w.Flush(); err != nil {
		_ = file.Close()
		return errors.Trace(err)
	}
	return errors.Trace(file.Close())
}

func loadModel(path string) (*phyg.PlaylistModel, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer file.Close()
	m, err := phyg.UnmarshalModel(bufio.NewReader(file))
	return m, errors.Annotatef(err, "load model %s", path)
}

// saveEdgeWeights writes records "edge,weight" in edge order.
func saveEdgeWeights(path string, d *dataset.Dataset, weights []float64) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Trace(err)
	}
	w := bufio.NewWriter(file)
	if _, err = fmt.Fprintln(w, "edge,weight"); err != nil {
		_ = file.Close()
		return errors.Trace(err)
	}
	for e, weight := range weights {
		if _, err = fmt.Fprintf(w, "%s,%v\n", base.Escape(d.EdgeName(e)), weight); err != nil {
			_ = file.Close()
			return errors.Trace(err)
		}
	}
	if err = w.Flush(); err != nil {
		_ = file.Close()
		return errors.Trace(err)
	}
	return errors.Trace(file.Close())
}
