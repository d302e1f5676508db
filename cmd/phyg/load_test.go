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
	"os"
	"path/filepath"
	"testing"

	"github.com/phyg-io/phyg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeInput(t *testing.T, dir string) *config.Config {
	hypergraph := filepath.Join(dir, "hypergraph.csv")
	require.NoError(t, os.WriteFile(hypergraph, []byte(`song,edge
s0,album:a
s1,album:a
s1,"artist:b,c"
s2,"artist:b,c"
s3,genre:d
s0,genre:d
`), 0644))
	playlists := filepath.Join(dir, "playlists.csv")
	require.NoError(t, os.WriteFile(playlists, []byte(`user,playlist,song
alice,p1,s0
alice,p1,s1
alice,p2,s3
bob,p3,s1
bob,p3,s2
`), 0644))

	conf := config.GetDefaultConfig()
	conf.Model.NFactors = 2
	conf.Model.NEpochs = 1
	conf.Model.MaxADMMIter = 2
	conf.Model.NNeg = 1
	conf.Input.Hypergraph = hypergraph
	conf.Input.Playlists = playlists
	conf.Output.Model = filepath.Join(dir, "phyg.model")
	conf.Output.EdgeWeights = filepath.Join(dir, "edge_weights.csv")
	return conf
}

func TestLoadDataset(t *testing.T) {
	conf := writeInput(t, t.TempDir())
	d, h, err := loadDataset(&conf.Input)
	require.NoError(t, err)
	assert.Equal(t, 4, h.NumRows())
	assert.Equal(t, 3, h.NumCols())
	assert.Equal(t, 2, d.CountUsers())

	conf.Input.Playlists = filepath.Join(t.TempDir(), "missing.csv")
	_, _, err = loadDataset(&conf.Input)
	assert.Error(t, err)
}

func TestFit(t *testing.T) {
	conf := writeInput(t, t.TempDir())
	require.NoError(t, fit(context.Background(), conf))

	m, err := loadModel(conf.Output.Model)
	require.NoError(t, err)
	assert.Len(t, m.EdgeWeight, 3)
	assert.Len(t, m.SongBias, 4)
	assert.Equal(t, 2, m.GetNumFactors())
	assert.Equal(t, []string{"alice", "bob"}, m.UserIndex.Names)

	data, err := os.ReadFile(conf.Output.EdgeWeights)
	require.NoError(t, err)
	assert.Contains(t, string(data), "edge,weight\n")
	assert.Contains(t, string(data), "\"artist:b,c\",")
}
