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

package ratings

import "time"

// Vector is a sparse rating vector sorted by index. Sorted indices let the
// similarity metrics intersect two vectors with a single merge pass.
type Vector struct {
	Indices []int32
	Values  []float64
}

func (v Vector) Len() int {
	return len(v.Indices)
}

// Snapshot is an immutable dense-indexed view of the rating matrix. All
// fields are frozen at build time; holders may read without locks.
type Snapshot struct {
	generation  int64
	timestamp   time.Time
	scale       Scale
	userDict    *Dict
	itemDict    *Dict
	userRatings []Vector
	itemRatings []Vector
	userMeans   []float64
	itemMeans   []float64
	globalMean  float64
}

func (s *Snapshot) Generation() int64 {
	return s.generation
}

func (s *Snapshot) Timestamp() time.Time {
	return s.timestamp
}

func (s *Snapshot) Scale() Scale {
	return s.scale
}

func (s *Snapshot) CountUsers() int {
	return s.userDict.Count()
}

func (s *Snapshot) CountItems() int {
	return s.itemDict.Count()
}

func (s *Snapshot) UserIndex(userId int64) (int32, bool) {
	return s.userDict.Index(userId)
}

func (s *Snapshot) ItemIndex(itemId int64) (int32, bool) {
	return s.itemDict.Index(itemId)
}

func (s *Snapshot) UserId(userIndex int32) (int64, bool) {
	return s.userDict.Value(userIndex)
}

func (s *Snapshot) ItemId(itemIndex int32) (int64, bool) {
	return s.itemDict.Value(itemIndex)
}

// UserRatings returns per-user rating vectors over item indices.
func (s *Snapshot) UserRatings() []Vector {
	return s.userRatings
}

// ItemRatings returns per-item rating vectors over user indices.
func (s *Snapshot) ItemRatings() []Vector {
	return s.itemRatings
}

func (s *Snapshot) UserMean(userIndex int32) float64 {
	return s.userMeans[userIndex]
}

func (s *Snapshot) ItemMean(itemIndex int32) float64 {
	return s.itemMeans[itemIndex]
}

func (s *Snapshot) GlobalMean() float64 {
	return s.globalMean
}

// Popularity returns the number of users who rated the item.
func (s *Snapshot) Popularity(itemIndex int32) int {
	return s.itemDict.Freq(itemIndex)
}
