// Copyright 2026 sorrel Project Authors
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

package logics

import (
	"slices"
	"sort"

	"github.com/juju/errors"

	"github.com/sorrel-io/sorrel/ratings"
	"github.com/sorrel-io/sorrel/similarity"
)

const (
	// UserBasedName selects neighborhoods of similar users.
	UserBasedName = "user_based"
	// ItemBasedName selects neighborhoods of similar items.
	ItemBasedName = "item_based"
)

// Neighbor is one entry of a neighborhood: an entity similar to the target,
// ordered by similarity desc, support desc, id asc.
type Neighbor struct {
	Id         int64
	Index      int32
	Similarity float32
	Support    int
}

func (n Neighbor) score() similarity.Score {
	return similarity.Score{Value: n.Similarity, Support: n.Support}
}

// Strategy resolves neighborhoods for one user's scoring pass. A scorer is
// built once per user so strategies can hoist work shared across candidates.
type Strategy interface {
	Name() string
	NewScorer(snapshot *ratings.Snapshot, userIndex int32) Scorer
}

// Scorer resolves the neighborhood for one candidate item. The second return
// is the base mean the centered predictor adds deviations back onto.
type Scorer interface {
	Neighbors(itemIndex int32) ([]RatedNeighbor, float64)
}

// NewStrategy creates a strategy from its configured name.
func NewStrategy(name string, metric similarity.Metric, k, minSupport int) (Strategy, error) {
	switch name {
	case UserBasedName:
		return UserBased{metric: metric, k: k, minSupport: minSupport}, nil
	case ItemBasedName:
		return ItemBased{metric: metric, k: k, minSupport: minSupport}, nil
	default:
		return nil, errors.NotSupportedf("strategy %q", name)
	}
}

// UserNeighbors returns the top k users most similar to the given user.
// Pairs sharing no items or fewer co-rated items than minSupport are left out.
func UserNeighbors(metric similarity.Metric, snapshot *ratings.Snapshot, userIndex int32, k, minSupport int) []Neighbor {
	vectors := snapshot.UserRatings()
	candidates := make([]int32, 0, len(vectors))
	for index := int32(0); index < int32(len(vectors)); index++ {
		if index != userIndex {
			candidates = append(candidates, index)
		}
	}
	return rankNeighbors(metric, vectors, snapshot.UserId, vectors[userIndex], candidates, k, minSupport)
}

// ItemNeighbors returns the top k items most similar to the given item.
func ItemNeighbors(metric similarity.Metric, snapshot *ratings.Snapshot, itemIndex int32, k, minSupport int) []Neighbor {
	vectors := snapshot.ItemRatings()
	candidates := make([]int32, 0, len(vectors))
	for index := int32(0); index < int32(len(vectors)); index++ {
		if index != itemIndex {
			candidates = append(candidates, index)
		}
	}
	return rankNeighbors(metric, vectors, snapshot.ItemId, vectors[itemIndex], candidates, k, minSupport)
}

// rankNeighbors scores the target vector against each candidate, drops pairs
// without enough common support, and keeps the top k in deterministic order.
func rankNeighbors(metric similarity.Metric, vectors []ratings.Vector, id func(int32) (int64, bool),
	target ratings.Vector, candidates []int32, k, minSupport int) []Neighbor {
	neighbors := make([]Neighbor, 0, len(candidates))
	for _, index := range candidates {
		score, ok := metric.Score(target, vectors[index])
		if !ok || score.Support < minSupport {
			continue
		}
		entityId, _ := id(index)
		neighbors = append(neighbors, Neighbor{
			Id:         entityId,
			Index:      index,
			Similarity: score.Value,
			Support:    score.Support,
		})
	}
	sort.Slice(neighbors, func(i, j int) bool {
		return similarity.Less(neighbors[i].Id, neighbors[j].Id, neighbors[i].score(), neighbors[j].score())
	})
	if len(neighbors) > k {
		neighbors = neighbors[:k]
	}
	return neighbors
}

// UserBased resolves neighborhoods from similar users. The similar-user list
// is computed once per scorer; each candidate item then keeps the neighbors
// who actually rated it.
type UserBased struct {
	metric     similarity.Metric
	k          int
	minSupport int
}

func (UserBased) Name() string {
	return UserBasedName
}

func (u UserBased) NewScorer(snapshot *ratings.Snapshot, userIndex int32) Scorer {
	return &userScorer{
		snapshot:  snapshot,
		neighbors: UserNeighbors(u.metric, snapshot, userIndex, u.k, u.minSupport),
		baseMean:  snapshot.UserMean(userIndex),
	}
}

type userScorer struct {
	snapshot  *ratings.Snapshot
	neighbors []Neighbor
	baseMean  float64
}

func (s *userScorer) Neighbors(itemIndex int32) ([]RatedNeighbor, float64) {
	vectors := s.snapshot.UserRatings()
	rated := make([]RatedNeighbor, 0, len(s.neighbors))
	for _, neighbor := range s.neighbors {
		value, ok := ratingOf(vectors[neighbor.Index], itemIndex)
		if !ok {
			continue
		}
		rated = append(rated, RatedNeighbor{
			Id:         neighbor.Id,
			Similarity: neighbor.Similarity,
			Rating:     value,
			Mean:       s.snapshot.UserMean(neighbor.Index),
		})
	}
	return rated, s.baseMean
}

// ItemBased resolves neighborhoods from items similar to the ones the user
// rated at or above their own mean. The neighbor's "rating" is the user's own
// rating of the profile item and the base mean is the candidate item's mean.
type ItemBased struct {
	metric     similarity.Metric
	k          int
	minSupport int
}

func (ItemBased) Name() string {
	return ItemBasedName
}

func (i ItemBased) NewScorer(snapshot *ratings.Snapshot, userIndex int32) Scorer {
	vector := snapshot.UserRatings()[userIndex]
	mean := snapshot.UserMean(userIndex)
	var profile ratings.Vector
	for position, index := range vector.Indices {
		if vector.Values[position] >= mean {
			profile.Indices = append(profile.Indices, index)
			profile.Values = append(profile.Values, vector.Values[position])
		}
	}
	return &itemScorer{
		snapshot:   snapshot,
		metric:     i.metric,
		k:          i.k,
		minSupport: i.minSupport,
		profile:    profile,
	}
}

type itemScorer struct {
	snapshot   *ratings.Snapshot
	metric     similarity.Metric
	k          int
	minSupport int
	profile    ratings.Vector
}

func (s *itemScorer) Neighbors(itemIndex int32) ([]RatedNeighbor, float64) {
	candidates := s.profile.Indices
	if position, found := slices.BinarySearch(candidates, itemIndex); found {
		// a rated target would match itself with similarity 1
		candidates = slices.Concat(candidates[:position], candidates[position+1:])
	}
	vectors := s.snapshot.ItemRatings()
	neighbors := rankNeighbors(s.metric, vectors, s.snapshot.ItemId, vectors[itemIndex], candidates, s.k, s.minSupport)
	rated := make([]RatedNeighbor, 0, len(neighbors))
	for _, neighbor := range neighbors {
		value, _ := ratingOf(s.profile, neighbor.Index)
		rated = append(rated, RatedNeighbor{
			Id:         neighbor.Id,
			Similarity: neighbor.Similarity,
			Rating:     value,
			Mean:       s.snapshot.ItemMean(neighbor.Index),
		})
	}
	return rated, s.snapshot.ItemMean(itemIndex)
}

// ratingOf looks up the value at index in a sorted sparse vector.
func ratingOf(v ratings.Vector, index int32) (float64, bool) {
	position, found := slices.BinarySearch(v.Indices, index)
	if !found {
		return 0, false
	}
	return v.Values[position], true
}
