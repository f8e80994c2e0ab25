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

// Package logics implements the collaborative filtering pipeline: neighborhood
// resolution, weighted-average prediction and ranked recommendation with a
// non-personalized fallback for cold starts.
package logics

import (
	"sort"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"github.com/samber/lo"

	"github.com/sorrel-io/sorrel/config"
	"github.com/sorrel-io/sorrel/ratings"
	"github.com/sorrel-io/sorrel/storage/cache"
)

// Recommender produces ranked recommendation lists for single users. One call
// works against one immutable snapshot, so a list is always internally
// consistent even while new ratings arrive.
type Recommender struct {
	strategy  Strategy
	predictor Predictor
	fallback  config.FallbackConfig
}

// NewRecommender wires a strategy and predictor together with the fallback
// policy. The fallback expressions are compiled once here so invalid
// configuration fails at startup, not inside a request.
func NewRecommender(strategy Strategy, predictor Predictor, fallback config.FallbackConfig) (*Recommender, error) {
	if _, err := NewNonPersonalized(fallback, 1, time.Time{}); err != nil {
		return nil, errors.Trace(err)
	}
	return &Recommender{
		strategy:  strategy,
		predictor: predictor,
		fallback:  fallback,
	}, nil
}

// Predict estimates the rating the user would give the item. ok is false for
// unknown users or items and when the neighborhood carries no signal, never
// an error.
func (r *Recommender) Predict(snapshot *ratings.Snapshot, userId, itemId int64) (Prediction, bool) {
	userIndex, ok := snapshot.UserIndex(userId)
	if !ok {
		return Prediction{}, false
	}
	itemIndex, ok := snapshot.ItemIndex(itemId)
	if !ok {
		return Prediction{}, false
	}
	neighbors, baseMean := r.strategy.NewScorer(snapshot, userIndex).Neighbors(itemIndex)
	value, confidence, ok := r.predictor.Predict(baseMean, neighbors)
	if !ok {
		return Prediction{}, false
	}
	return Prediction{UserId: userId, ItemId: itemId, Value: value, Confidence: confidence}, true
}

// Recommend returns the top n items for the user: every unrated catalog item
// is scored through the strategy's neighborhoods, candidates without enough
// neighborhood data are dropped rather than scored zero, and any shortfall is
// filled from the non-personalized fallback with the Fallback tag set. Items
// the user has rated never appear.
func (r *Recommender) Recommend(snapshot *ratings.Snapshot, userId int64, n int, timestamp time.Time) []cache.Score {
	if n <= 0 {
		return nil
	}
	var recommended []cache.Score
	excluded := mapset.NewThreadUnsafeSet[int64]()
	if userIndex, known := snapshot.UserIndex(userId); known {
		recommended = r.personalized(snapshot, userIndex, n, timestamp)
		for _, index := range snapshot.UserRatings()[userIndex].Indices {
			itemId, _ := snapshot.ItemId(index)
			excluded.Add(itemId)
		}
		for _, score := range recommended {
			excluded.Add(score.Id)
		}
	}
	if len(recommended) < n {
		recommended = append(recommended, r.fallbackScores(snapshot, excluded, n-len(recommended), timestamp)...)
	}
	return recommended
}

type candidate struct {
	id    int64
	index int32
	value float64
}

func (r *Recommender) personalized(snapshot *ratings.Snapshot, userIndex int32, n int, timestamp time.Time) []cache.Score {
	scores := RankItems(snapshot, userIndex, r.strategy.NewScorer(snapshot, userIndex), r.predictor, n)
	for i := range scores {
		scores[i].Timestamp = timestamp
	}
	return scores
}

// RankItems scores every item the user has not rated and returns the top n by
// predicted value, item popularity, then item id. Candidates whose
// neighborhoods carry no signal are left out rather than scored zero.
func RankItems(snapshot *ratings.Snapshot, userIndex int32, scorer Scorer, predictor Predictor, n int) []cache.Score {
	rated := snapshot.UserRatings()[userIndex]
	candidates := make([]candidate, 0, snapshot.CountItems()-rated.Len())
	for itemIndex := int32(0); itemIndex < int32(snapshot.CountItems()); itemIndex++ {
		if _, exist := ratingOf(rated, itemIndex); exist {
			continue
		}
		neighbors, baseMean := scorer.Neighbors(itemIndex)
		value, _, ok := predictor.Predict(baseMean, neighbors)
		if !ok {
			continue
		}
		itemId, _ := snapshot.ItemId(itemIndex)
		candidates = append(candidates, candidate{id: itemId, index: itemIndex, value: value})
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.value != b.value {
			return a.value > b.value
		}
		popularityA, popularityB := snapshot.Popularity(a.index), snapshot.Popularity(b.index)
		if popularityA != popularityB {
			return popularityA > popularityB
		}
		return a.id < b.id
	})
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return lo.Map(candidates, func(c candidate, _ int) cache.Score {
		return cache.Score{Id: c.id, Score: c.value}
	})
}

func (r *Recommender) fallbackScores(snapshot *ratings.Snapshot, excluded mapset.Set[int64], n int, timestamp time.Time) []cache.Score {
	// expressions were validated in NewRecommender, the same config cannot
	// fail to compile here
	ranker := lo.Must(NewNonPersonalized(r.fallback, n, timestamp))
	itemRatings := snapshot.ItemRatings()
	for itemIndex := int32(0); itemIndex < int32(len(itemRatings)); itemIndex++ {
		itemId, _ := snapshot.ItemId(itemIndex)
		if excluded.Contains(itemId) {
			continue
		}
		ranker.Push(Item{Id: itemId, Raters: snapshot.Popularity(itemIndex)}, itemRatings[itemIndex].Values)
	}
	scores := ranker.PopAll()
	for i := range scores {
		scores[i].Fallback = true
	}
	return scores
}
