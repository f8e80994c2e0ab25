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

// Package ratings owns the sparse user-item rating matrix. The store is the
// only component allowed to mutate the matrix; every other component reads it
// through point lookups or immutable snapshots.
package ratings

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/juju/errors"
)

// ErrInvalidRating is returned when a rating value falls outside the
// configured scale. Out-of-scale values are rejected, never clamped.
var ErrInvalidRating = errors.NotValidf("rating")

// Rating is a single user-item-value tuple. The timestamp is optional and
// only consulted by temporal holdout splits.
type Rating struct {
	UserId    int64
	ItemId    int64
	Value     float64
	Timestamp time.Time
}

// Scale is the closed interval of permitted rating values.
type Scale struct {
	Min float64
	Max float64
}

func NewScale(min, max float64) Scale {
	return Scale{Min: min, Max: max}
}

func (s Scale) Valid(v float64) bool {
	return !math.IsNaN(v) && v >= s.Min && v <= s.Max
}

func (s Scale) Clamp(v float64) float64 {
	if v < s.Min {
		return s.Min
	}
	if v > s.Max {
		return s.Max
	}
	return v
}

func (s Scale) Range() float64 {
	return s.Max - s.Min
}

type entry struct {
	value float64
	time  time.Time
}

// Store keeps ratings under a single-writer multiple-reader discipline.
// Point reads run against the live maps under a read lock. Computation flows
// (similarity, prediction, evaluation, batch scoring) call Snapshot and work
// against an immutable view, so an in-progress write can never leak a
// partially updated matrix into a running computation.
type Store struct {
	mu       sync.RWMutex
	scale    Scale
	userDict *Dict
	itemDict *Dict
	matrix   []map[int32]entry    // user index -> item index -> rating
	columns  []map[int32]struct{} // item index -> raters
	count    int

	generation int64
	updateTime time.Time
	snapshot   *Snapshot
}

func NewStore(scale Scale) *Store {
	return &Store{
		scale:    scale,
		userDict: NewDict(),
		itemDict: NewDict(),
	}
}

// Put inserts or overwrites the rating for (userId, itemId). Values outside
// the scale fail with ErrInvalidRating.
func (s *Store) Put(userId, itemId int64, value float64, timestamp time.Time) error {
	if !s.scale.Valid(value) {
		return errors.Annotatef(ErrInvalidRating, "%v outside scale [%v, %v]", value, s.scale.Min, s.scale.Max)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	userIndex := s.userDict.NotCount(userId)
	itemIndex := s.itemDict.NotCount(itemId)
	for int(userIndex) >= len(s.matrix) {
		s.matrix = append(s.matrix, make(map[int32]entry))
	}
	for int(itemIndex) >= len(s.columns) {
		s.columns = append(s.columns, make(map[int32]struct{}))
	}
	if _, exist := s.matrix[userIndex][itemIndex]; !exist {
		// count frequencies for new pairs only, overwrites keep popularity intact
		s.userDict.Id(userId)
		s.itemDict.Id(itemId)
		s.columns[itemIndex][userIndex] = struct{}{}
		s.count++
	}
	s.matrix[userIndex][itemIndex] = entry{value: value, time: timestamp}
	s.generation++
	s.updateTime = time.Now()
	return nil
}

// GetRatings returns a copy of the user's rating map. Unknown users yield an
// empty map, not an error.
func (s *Store) GetRatings(userId int64) map[int64]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(map[int64]float64)
	userIndex, ok := s.userDict.Index(userId)
	if !ok {
		return result
	}
	for itemIndex, e := range s.matrix[userIndex] {
		itemId, _ := s.itemDict.Value(itemIndex)
		result[itemId] = e.value
	}
	return result
}

// CommonItems returns the items rated by both users, sorted by item id.
func (s *Store) CommonItems(userA, userB int64) []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, okA := s.userDict.Index(userA)
	b, okB := s.userDict.Index(userB)
	if !okA || !okB {
		return nil
	}
	small, large := s.matrix[a], s.matrix[b]
	if len(small) > len(large) {
		small, large = large, small
	}
	var common []int64
	for itemIndex := range small {
		if _, exist := large[itemIndex]; exist {
			itemId, _ := s.itemDict.Value(itemIndex)
			common = append(common, itemId)
		}
	}
	sort.Slice(common, func(i, j int) bool { return common[i] < common[j] })
	return common
}

// ItemRaters returns the users who rated the item, sorted by user id.
func (s *Store) ItemRaters(itemId int64) []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	itemIndex, ok := s.itemDict.Index(itemId)
	if !ok {
		return nil
	}
	raters := make([]int64, 0, len(s.columns[itemIndex]))
	for userIndex := range s.columns[itemIndex] {
		userId, _ := s.userDict.Value(userIndex)
		raters = append(raters, userId)
	}
	sort.Slice(raters, func(i, j int) bool { return raters[i] < raters[j] })
	return raters
}

// All returns every rating ordered by user index then item index.
func (s *Store) All() []Rating {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]Rating, 0, s.count)
	for userIndex, row := range s.matrix {
		itemIndices := make([]int32, 0, len(row))
		for itemIndex := range row {
			itemIndices = append(itemIndices, itemIndex)
		}
		sort.Slice(itemIndices, func(i, j int) bool { return itemIndices[i] < itemIndices[j] })
		userId, _ := s.userDict.Value(int32(userIndex))
		for _, itemIndex := range itemIndices {
			itemId, _ := s.itemDict.Value(itemIndex)
			e := row[itemIndex]
			all = append(all, Rating{UserId: userId, ItemId: itemId, Value: e.value, Timestamp: e.time})
		}
	}
	return all
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

func (s *Store) CountUsers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userDict.Count()
}

func (s *Store) CountItems() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.itemDict.Count()
}

// Users returns all known user ids, sorted.
func (s *Store) Users() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]int64, s.userDict.Count())
	copy(users, s.userDict.Values())
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users
}

// Items returns all known item ids, sorted.
func (s *Store) Items() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]int64, s.itemDict.Count())
	copy(items, s.itemDict.Values())
	sort.Slice(items, func(i, j int) bool { return items[i] < items[j] })
	return items
}

func (s *Store) Scale() Scale {
	return s.scale
}

// Generation returns the write counter. Cached results produced from an older
// generation must be treated as misses.
func (s *Store) Generation() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

func (s *Store) UpdateTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updateTime
}

// Snapshot returns an immutable view of the matrix. The view is rebuilt only
// when a write happened since the last build, so concurrent readers of an
// unchanged store share one snapshot.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	snapshot := s.snapshot
	generation := s.generation
	s.mu.RUnlock()
	if snapshot != nil && snapshot.generation == generation {
		return snapshot
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot == nil || s.snapshot.generation != s.generation {
		s.snapshot = s.buildSnapshot()
	}
	return s.snapshot
}

func (s *Store) buildSnapshot() *Snapshot {
	userDict := s.userDict.clone()
	itemDict := s.itemDict.clone()
	userRatings := make([]Vector, userDict.Count())
	itemRatings := make([]Vector, itemDict.Count())
	userMeans := make([]float64, userDict.Count())
	itemMeans := make([]float64, itemDict.Count())
	var total float64
	for userIndex, row := range s.matrix {
		vector := Vector{
			Indices: make([]int32, 0, len(row)),
			Values:  make([]float64, 0, len(row)),
		}
		for itemIndex := range row {
			vector.Indices = append(vector.Indices, itemIndex)
		}
		sort.Slice(vector.Indices, func(i, j int) bool { return vector.Indices[i] < vector.Indices[j] })
		var sum float64
		for _, itemIndex := range vector.Indices {
			value := row[itemIndex].value
			vector.Values = append(vector.Values, value)
			sum += value
		}
		userRatings[userIndex] = vector
		if len(row) > 0 {
			userMeans[userIndex] = sum / float64(len(row))
		}
		total += sum
	}
	// user indices ascend, so item vectors come out sorted by user index
	for userIndex, vector := range userRatings {
		for position, itemIndex := range vector.Indices {
			itemRatings[itemIndex].Indices = append(itemRatings[itemIndex].Indices, int32(userIndex))
			itemRatings[itemIndex].Values = append(itemRatings[itemIndex].Values, vector.Values[position])
		}
	}
	for itemIndex, vector := range itemRatings {
		var sum float64
		for _, value := range vector.Values {
			sum += value
		}
		if len(vector.Values) > 0 {
			itemMeans[itemIndex] = sum / float64(len(vector.Values))
		}
	}
	var globalMean float64
	if s.count > 0 {
		globalMean = total / float64(s.count)
	}
	return &Snapshot{
		generation:  s.generation,
		timestamp:   s.updateTime,
		scale:       s.scale,
		userDict:    userDict,
		itemDict:    itemDict,
		userRatings: userRatings,
		itemRatings: itemRatings,
		userMeans:   userMeans,
		itemMeans:   itemMeans,
		globalMean:  globalMean,
	}
}
