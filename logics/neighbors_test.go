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
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"

	"github.com/sorrel-io/sorrel/ratings"
	"github.com/sorrel-io/sorrel/similarity"
)

// exampleSnapshot builds a small movie-style matrix: users 1 and 2 rate in
// near-identical patterns, user 3 is the only full rater of item 4 and user 4
// bridges both camps through items 2, 3 and 5.
func exampleSnapshot(t *testing.T) *ratings.Snapshot {
	store := ratings.NewStore(ratings.NewScale(1, 5))
	timestamp := time.Now()
	for _, r := range []ratings.Rating{
		{UserId: 1, ItemId: 1, Value: 5},
		{UserId: 1, ItemId: 2, Value: 4},
		{UserId: 1, ItemId: 3, Value: 1},
		{UserId: 2, ItemId: 1, Value: 4.5},
		{UserId: 2, ItemId: 2, Value: 4.5},
		{UserId: 2, ItemId: 4, Value: 2},
		{UserId: 3, ItemId: 3, Value: 5},
		{UserId: 3, ItemId: 4, Value: 4},
		{UserId: 3, ItemId: 5, Value: 3},
		{UserId: 4, ItemId: 2, Value: 5},
		{UserId: 4, ItemId: 3, Value: 1.5},
		{UserId: 4, ItemId: 5, Value: 4.5},
	} {
		assert.NoError(t, store.Put(r.UserId, r.ItemId, r.Value, timestamp))
	}
	return store.Snapshot()
}

func neighborIds(neighbors []Neighbor) []int64 {
	return lo.Map(neighbors, func(n Neighbor, _ int) int64 { return n.Id })
}

func TestNewStrategy(t *testing.T) {
	userBased, err := NewStrategy(UserBasedName, similarity.Cosine{}, 3, 1)
	assert.NoError(t, err)
	assert.Equal(t, UserBasedName, userBased.Name())
	itemBased, err := NewStrategy(ItemBasedName, similarity.Cosine{}, 3, 1)
	assert.NoError(t, err)
	assert.Equal(t, ItemBasedName, itemBased.Name())
	_, err = NewStrategy("unknown", similarity.Cosine{}, 3, 1)
	assert.True(t, errors.Is(err, errors.NotSupported))
}

func TestUserNeighbors(t *testing.T) {
	snapshot := exampleSnapshot(t)
	userIndex, ok := snapshot.UserIndex(1)
	assert.True(t, ok)

	// user 3 matches perfectly over one item, users 4 and 2 follow closely
	neighbors := UserNeighbors(similarity.Cosine{}, snapshot, userIndex, 3, 1)
	assert.Equal(t, []int64{3, 4, 2}, neighborIds(neighbors))
	assert.InDelta(t, 1, neighbors[0].Similarity, 1e-4)
	assert.InDelta(t, 0.99888, neighbors[1].Similarity, 1e-4)
	assert.InDelta(t, 0.99388, neighbors[2].Similarity, 1e-4)
	assert.Equal(t, 1, neighbors[0].Support)
	assert.Equal(t, 2, neighbors[1].Support)
	assert.Equal(t, 2, neighbors[2].Support)

	// a higher support floor drops the single-item match
	neighbors = UserNeighbors(similarity.Cosine{}, snapshot, userIndex, 3, 2)
	assert.Equal(t, []int64{4, 2}, neighborIds(neighbors))

	// truncation keeps the best ranked entry
	neighbors = UserNeighbors(similarity.Cosine{}, snapshot, userIndex, 1, 1)
	assert.Equal(t, []int64{3}, neighborIds(neighbors))
}

func TestItemNeighbors(t *testing.T) {
	snapshot := exampleSnapshot(t)
	itemIndex, ok := snapshot.ItemIndex(3)
	assert.True(t, ok)

	// items 1 and 4 tie at similarity 1 with equal support, the smaller id wins
	neighbors := ItemNeighbors(similarity.Cosine{}, snapshot, itemIndex, 4, 1)
	assert.Equal(t, []int64{1, 4, 2, 5}, neighborIds(neighbors))

	neighbors = ItemNeighbors(similarity.Cosine{}, snapshot, itemIndex, 4, 2)
	assert.Equal(t, []int64{2, 5}, neighborIds(neighbors))
}

func TestUserBasedScorer(t *testing.T) {
	snapshot := exampleSnapshot(t)
	userIndex, _ := snapshot.UserIndex(1)
	itemIndex, _ := snapshot.ItemIndex(5)
	scorer := UserBased{metric: similarity.Cosine{}, k: 3, minSupport: 1}.NewScorer(snapshot, userIndex)

	// of the three similar users only 3 and 4 rated item 5
	neighbors, baseMean := scorer.Neighbors(itemIndex)
	assert.InDelta(t, 10.0/3, baseMean, 1e-6)
	assert.Len(t, neighbors, 2)
	assert.Equal(t, int64(3), neighbors[0].Id)
	assert.Equal(t, 3.0, neighbors[0].Rating)
	assert.InDelta(t, 4, neighbors[0].Mean, 1e-6)
	assert.Equal(t, int64(4), neighbors[1].Id)
	assert.Equal(t, 4.5, neighbors[1].Rating)
	assert.InDelta(t, 11.0/3, neighbors[1].Mean, 1e-6)
}

func TestItemBasedScorer(t *testing.T) {
	snapshot := exampleSnapshot(t)
	userIndex, _ := snapshot.UserIndex(1)
	scorer := ItemBased{metric: similarity.Cosine{}, k: 3, minSupport: 1}.NewScorer(snapshot, userIndex)

	// user 1 liked items 1 and 2; only item 2 shares a rater with item 5
	itemIndex, _ := snapshot.ItemIndex(5)
	neighbors, baseMean := scorer.Neighbors(itemIndex)
	assert.InDelta(t, 3.75, baseMean, 1e-6)
	assert.Len(t, neighbors, 1)
	assert.Equal(t, int64(2), neighbors[0].Id)
	assert.InDelta(t, 1, neighbors[0].Similarity, 1e-4)
	assert.Equal(t, 4.0, neighbors[0].Rating)
	assert.InDelta(t, 4.5, neighbors[0].Mean, 1e-6)

	// both liked items reach item 4 through user 2
	itemIndex, _ = snapshot.ItemIndex(4)
	neighbors, baseMean = scorer.Neighbors(itemIndex)
	assert.InDelta(t, 3, baseMean, 1e-6)
	assert.Len(t, neighbors, 2)
	assert.Equal(t, int64(1), neighbors[0].Id)
	assert.Equal(t, 5.0, neighbors[0].Rating)
	assert.Equal(t, int64(2), neighbors[1].Id)
	assert.Equal(t, 4.0, neighbors[1].Rating)

	// a liked item never neighbors itself
	itemIndex, _ = snapshot.ItemIndex(2)
	neighbors, _ = scorer.Neighbors(itemIndex)
	for _, neighbor := range neighbors {
		assert.NotEqual(t, int64(2), neighbor.Id)
	}
	assert.Len(t, neighbors, 1)
	assert.Equal(t, int64(1), neighbors[0].Id)
}

func TestRatingOf(t *testing.T) {
	vector := ratings.Vector{Indices: []int32{0, 2, 5}, Values: []float64{1, 2, 3}}
	value, ok := ratingOf(vector, 2)
	assert.True(t, ok)
	assert.Equal(t, 2.0, value)
	_, ok = ratingOf(vector, 3)
	assert.False(t, ok)
}
