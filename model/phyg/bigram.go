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
	"slices"

	"github.com/phyg-io/phyg/base"
	"github.com/phyg-io/phyg/dataset"
	"github.com/samber/lo"
)

// Start is the previous song of the first transition of every playlist.
const Start = -1

// Bigram is a transition from Prev to Next.
type Bigram struct {
	Prev int
	Next int
}

// MakeBigrams assigns dense indices to users in sorted id order and returns the
// transitions of each user. A playlist of n songs yields n bigrams, the first one
// starting from Start.
func MakeBigrams(playlists dataset.Playlists) (*base.Index, [][]Bigram) {
	userIds := lo.Keys(playlists)
	slices.Sort(userIds)
	index := base.NewMapIndex()
	bigrams := make([][]Bigram, len(userIds))
	for _, userId := range userIds {
		userIndex := index.Add(userId)
		for _, playlist := range playlists[userId] {
			prev := Start
			for _, song := range playlist {
				bigrams[userIndex] = append(bigrams[userIndex], Bigram{Prev: prev, Next: song})
				prev = song
			}
		}
	}
	return index, bigrams
}
