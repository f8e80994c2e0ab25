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

package eval

import (
	"math/rand"
	"sort"

	"github.com/juju/errors"

	"github.com/sorrel-io/sorrel/ratings"
)

// SplitConfig controls how ratings are held out. A temporal split reserves
// the most recent ratings for testing; otherwise a seeded shuffle picks them.
type SplitConfig struct {
	TestFraction float64
	Seed         int64
	Temporal     bool
}

// Split partitions a store into train and test stores. Every rating lands on
// exactly one side, so the two sides never share a (user, item) pair. Runs
// with the same seed produce the same partition.
func Split(store *ratings.Store, cfg SplitConfig) (*ratings.Store, *ratings.Store, error) {
	if cfg.TestFraction <= 0 || cfg.TestFraction >= 1 {
		return nil, nil, errors.NotValidf("test fraction %v", cfg.TestFraction)
	}
	all := store.All()
	testSize := int(float64(len(all)) * cfg.TestFraction)
	var train, test []ratings.Rating
	if cfg.Temporal {
		sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })
		cut := len(all) - testSize
		train, test = all[:cut], all[cut:]
	} else {
		rng := rand.New(rand.NewSource(cfg.Seed))
		perm := rng.Perm(len(all))
		test = make([]ratings.Rating, 0, testSize)
		for _, index := range perm[:testSize] {
			test = append(test, all[index])
		}
		train = make([]ratings.Rating, 0, len(all)-testSize)
		for _, index := range perm[testSize:] {
			train = append(train, all[index])
		}
	}
	trainStore := ratings.NewStore(store.Scale())
	for _, r := range train {
		if err := trainStore.Put(r.UserId, r.ItemId, r.Value, r.Timestamp); err != nil {
			return nil, nil, errors.Trace(err)
		}
	}
	testStore := ratings.NewStore(store.Scale())
	for _, r := range test {
		if err := testStore.Put(r.UserId, r.ItemId, r.Value, r.Timestamp); err != nil {
			return nil, nil, errors.Trace(err)
		}
	}
	return trainStore, testStore, nil
}
