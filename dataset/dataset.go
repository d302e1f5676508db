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

package dataset

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"github.com/phyg-io/phyg/base"
	"github.com/samber/lo"
)

// Playlists maps an external user id to the playlists of the user. A playlist is an
// ordered sequence of song indices.
type Playlists map[string][][]int

// Validate checks that every song index lies in [0, numSongs).
func (p Playlists) Validate(numSongs int) error {
	for userId, playlists := range p {
		for i, playlist := range playlists {
			for _, song := range playlist {
				if song < 0 || song >= numSongs {
					return errors.NotValidf("song %d in playlist %d of user %s (%d songs)", song, i, userId, numSongs)
				}
			}
		}
	}
	return nil
}

// CountTransitions returns the number of transitions including playlist starts.
func (p Playlists) CountTransitions() int {
	return lo.SumBy(lo.Values(p), func(playlists [][]int) int {
		return lo.SumBy(playlists, func(playlist []int) int { return len(playlist) })
	})
}

// Dataset collects a hypergraph of songs and the playlists of users. Songs and edges
// are referenced by name in the input files and mapped to dense indices.
type Dataset struct {
	songs     *FreqDict
	edges     *FreqDict
	rows      []int
	cols      []int
	values    []float64
	playlists Playlists
	positions map[string]map[string]int
}

func NewDataset() *Dataset {
	return &Dataset{
		songs:     NewFreqDict(),
		edges:     NewFreqDict(),
		playlists: make(Playlists),
		positions: make(map[string]map[string]int),
	}
}

// LoadHypergraph reads incidence records "song,edge[,weight]". The weight defaults
// to 1. A header line starting with "song" is skipped.
func (d *Dataset) LoadHypergraph(r io.Reader) error {
	return base.ReadLines(bufio.NewScanner(r), ',', func(lineNo int, fields []string) error {
		if lineNo == 0 && strings.EqualFold(strings.TrimSpace(fields[0]), "song") {
			return nil
		}
		if len(fields) < 2 || len(fields) > 3 {
			return errors.NotValidf("hypergraph record at line %d with %d fields", lineNo+1, len(fields))
		}
		song, edge := strings.TrimSpace(fields[0]), strings.TrimSpace(fields[1])
		if err := base.ValidateId(song); err != nil {
			return errors.Annotatef(err, "line %d", lineNo+1)
		}
		if err := base.ValidateId(edge); err != nil {
			return errors.Annotatef(err, "line %d", lineNo+1)
		}
		weight := 1.0
		if len(fields) == 3 {
			var err error
			weight, err = strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
			if err != nil {
				return errors.NewNotValid(err, "weight at line "+strconv.Itoa(lineNo+1))
			}
			if weight < 0 {
				return errors.NotValidf("negative weight at line %d", lineNo+1)
			}
		}
		d.rows = append(d.rows, d.songs.Id(song))
		d.cols = append(d.cols, d.edges.Id(edge))
		d.values = append(d.values, weight)
		return nil
	})
}

// LoadPlaylists reads playlist records "user,playlist,song". Records of one playlist
// appear in play order. Songs missing from the hypergraph are added without edges.
func (d *Dataset) LoadPlaylists(r io.Reader) error {
	return base.ReadLines(bufio.NewScanner(r), ',', func(lineNo int, fields []string) error {
		if lineNo == 0 && strings.EqualFold(strings.TrimSpace(fields[0]), "user") {
			return nil
		}
		if len(fields) != 3 {
			return errors.NotValidf("playlist record at line %d with %d fields", lineNo+1, len(fields))
		}
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
			if err := base.ValidateId(fields[i]); err != nil {
				return errors.Annotatef(err, "line %d", lineNo+1)
			}
		}
		userId, playlistId, song := fields[0], fields[1], fields[2]
		if _, exist := d.positions[userId]; !exist {
			d.positions[userId] = make(map[string]int)
		}
		pos, exist := d.positions[userId][playlistId]
		if !exist {
			pos = len(d.playlists[userId])
			d.positions[userId][playlistId] = pos
			d.playlists[userId] = append(d.playlists[userId], nil)
		}
		d.playlists[userId][pos] = append(d.playlists[userId][pos], d.songs.NotCount(song))
		return nil
	})
}

func (d *Dataset) CountSongs() int {
	return d.songs.Count()
}

func (d *Dataset) CountEdges() int {
	return d.edges.Count()
}

func (d *Dataset) CountUsers() int {
	return len(d.playlists)
}

// Degree returns the number of incidence records of a song.
func (d *Dataset) Degree(song int) int {
	return d.songs.Freq(song)
}

func (d *Dataset) SongName(song int) string {
	name, _ := d.songs.String(song)
	return name
}

func (d *Dataset) EdgeName(edge int) string {
	name, _ := d.edges.String(edge)
	return name
}

// SongIndex returns the index of a song name.
func (d *Dataset) SongIndex(name string) (int, bool) {
	return d.songs.Lookup(name)
}

// Incidence builds the song-edge incidence matrix.
func (d *Dataset) Incidence() (*base.Incidence, error) {
	return base.NewIncidence(d.songs.Count(), d.edges.Count(), d.rows, d.cols, d.values)
}

func (d *Dataset) Playlists() Playlists {
	return d.playlists
}
