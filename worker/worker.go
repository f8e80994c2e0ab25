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

// Package worker drives offline computation of recommendation lists across
// many users and writes the results through the cache.
package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"modernc.org/mathutil"

	"github.com/sorrel-io/sorrel/base/log"
	"github.com/sorrel-io/sorrel/common/parallel"
	"github.com/sorrel-io/sorrel/common/util"
	"github.com/sorrel-io/sorrel/eval"
	"github.com/sorrel-io/sorrel/logics"
	"github.com/sorrel-io/sorrel/ratings"
	"github.com/sorrel-io/sorrel/similarity"
	"github.com/sorrel-io/sorrel/storage/cache"
)

const completedChanSize = 1000

// Worker refreshes cached recommendation lists for batches of users. One
// refresh works against one snapshot of the rating store; every list written
// by a refresh carries that snapshot's generation, so serving layers can tell
// a fresh list from one computed before the latest ratings arrived.
type Worker struct {
	store       *ratings.Store
	cacheClient cache.Database
	recommender *logics.Recommender
	metric      similarity.Metric

	workerName string
	neighborK  int
	minSupport int
	jobs       int
	cacheSize  int
}

// NewWorker creates a worker over a store, a cache backend and a configured
// recommender. metric, neighborK and minSupport shape the precomputed
// neighborhoods; jobs bounds the fan-out, cacheSize is the length of each
// cached recommendation list.
func NewWorker(store *ratings.Store, cacheClient cache.Database, recommender *logics.Recommender,
	metric similarity.Metric, neighborK, minSupport, jobs, cacheSize int) *Worker {
	return &Worker{
		store:       store,
		cacheClient: cacheClient,
		recommender: recommender,
		metric:      metric,
		workerName:  uuid.New().String(),
		neighborK:   neighborK,
		minSupport:  minSupport,
		jobs:        jobs,
		cacheSize:   cacheSize,
	}
}

// Refresh computes and caches recommendation lists for the given users, then
// precomputes user and item neighborhoods for the whole snapshot. An empty
// user slice refreshes every user known to the store. Subsets whose cached
// list is already at the current generation are skipped. Cancellation is
// observed between entities, never inside one computation, so a partially
// ranked list is never written.
func (w *Worker) Refresh(ctx context.Context, users []int64) error {
	if len(users) == 0 {
		users = w.store.Users()
	}
	if len(users) == 0 {
		return errors.Trace(eval.ErrEmptyUserBase)
	}
	snapshot := w.store.Snapshot()
	if snapshot.CountItems() == 0 {
		return errors.Trace(eval.ErrEmptyCatalog)
	}
	generation := snapshot.Generation()
	startTime := time.Now()
	log.Logger().Info("start refreshing recommendations",
		zap.String("worker_name", w.workerName),
		zap.Int("n_working_users", len(users)),
		zap.Int("n_jobs", w.jobs),
		zap.Int("cache_size", w.cacheSize),
		zap.Int64("generation", generation))

	// progress tracker
	completed := make(chan struct{}, mathutil.Min(len(users), completedChanSize))
	go func() {
		defer util.CheckPanic()
		completedCount, previousCount := 0, 0
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case _, ok := <-completed:
				if !ok {
					return
				}
				completedCount++
			case <-ticker.C:
				throughput := completedCount - previousCount
				previousCount = completedCount
				if throughput > 0 {
					log.Logger().Info("refreshing recommendations",
						zap.Int("n_complete_users", completedCount),
						zap.Int("n_working_users", len(users)),
						zap.Int("throughput", throughput))
				}
			}
		}
	}()

	var (
		updateUserCount  atomic.Float64
		recommendSeconds atomic.Float64
	)
	err := parallel.Parallel(ctx, len(users), w.jobs, func(workerId, jobId int) error {
		defer func() {
			completed <- struct{}{}
		}()
		userId := users[jobId]
		if !w.needsRefresh(ctx, cache.Recommend, cache.Id(userId), generation) {
			return nil
		}
		localStartTime := time.Now()
		scores := w.recommender.Recommend(snapshot, userId, w.cacheSize, localStartTime)
		subset := cache.Id(userId)
		if err := w.cacheClient.SetScores(ctx, cache.Recommend, subset, scores); err != nil {
			return errors.Trace(err)
		}
		if err := w.cacheClient.Set(ctx,
			cache.Int64(cache.Key(cache.Generation, cache.Recommend, subset), generation),
			cache.Time(cache.Key(cache.UpdateTime, cache.Recommend, subset), localStartTime)); err != nil {
			return errors.Trace(err)
		}
		updateUserCount.Add(1)
		recommendSeconds.Add(time.Since(localStartTime).Seconds())
		return nil
	})
	close(completed)
	if err != nil {
		log.Logger().Error("failed to refresh recommendations", zap.Error(err))
		return errors.Trace(err)
	}
	neighborsStartTime := time.Now()
	if err := w.refreshNeighbors(ctx, snapshot, generation); err != nil {
		log.Logger().Error("failed to refresh neighborhoods", zap.Error(err))
		return errors.Trace(err)
	}
	UpdateUserRecommendTotal.Set(updateUserCount.Load())
	RefreshStepSecondsVec.WithLabelValues("recommend").Set(recommendSeconds.Load())
	RefreshStepSecondsVec.WithLabelValues("neighbors").Set(time.Since(neighborsStartTime).Seconds())
	RefreshTotalSeconds.Set(time.Since(startTime).Seconds())
	log.Logger().Info("complete refreshing recommendations",
		zap.String("worker_name", w.workerName),
		zap.Int("n_updated_users", int(updateUserCount.Load())),
		zap.Int("n_working_users", len(users)),
		zap.Duration("used_time", time.Since(startTime)))
	return nil
}

// refreshNeighbors precomputes the neighborhood of every user and item in the
// snapshot and writes them under the neighbors collections. Entities whose
// cached list is already at the snapshot generation are skipped.
func (w *Worker) refreshNeighbors(ctx context.Context, snapshot *ratings.Snapshot, generation int64) error {
	nUsers, nItems := snapshot.CountUsers(), snapshot.CountItems()
	timestamp := time.Now()
	return errors.Trace(parallel.Parallel(ctx, nUsers+nItems, w.jobs, func(workerId, jobId int) error {
		var collection string
		var entityId int64
		var neighbors []logics.Neighbor
		if jobId < nUsers {
			userIndex := int32(jobId)
			collection = cache.UserNeighbors
			entityId, _ = snapshot.UserId(userIndex)
			if !w.needsRefresh(ctx, collection, cache.Id(entityId), generation) {
				return nil
			}
			neighbors = logics.UserNeighbors(w.metric, snapshot, userIndex, w.neighborK, w.minSupport)
		} else {
			itemIndex := int32(jobId - nUsers)
			collection = cache.ItemNeighbors
			entityId, _ = snapshot.ItemId(itemIndex)
			if !w.needsRefresh(ctx, collection, cache.Id(entityId), generation) {
				return nil
			}
			neighbors = logics.ItemNeighbors(w.metric, snapshot, itemIndex, w.neighborK, w.minSupport)
		}
		scores := lo.Map(neighbors, func(neighbor logics.Neighbor, _ int) cache.Score {
			return cache.Score{Id: neighbor.Id, Score: float64(neighbor.Similarity), Timestamp: timestamp}
		})
		subset := cache.Id(entityId)
		if err := w.cacheClient.SetScores(ctx, collection, subset, scores); err != nil {
			return errors.Trace(err)
		}
		return errors.Trace(w.cacheClient.Set(ctx,
			cache.Int64(cache.Key(cache.Generation, collection, subset), generation),
			cache.Time(cache.Key(cache.UpdateTime, collection, subset), timestamp)))
	}))
}

// needsRefresh reports whether the subset's cached list predates the given
// generation. Absent entries and cache read failures count as stale, so a
// broken cache degrades to recomputation instead of stale serving.
func (w *Worker) needsRefresh(ctx context.Context, collection, subset string, generation int64) bool {
	cachedGeneration, err := w.cacheClient.Get(ctx,
		cache.Key(cache.Generation, collection, subset)).Int64()
	if err != nil {
		if !errors.Is(err, cache.ErrObjectNotExist) && !errors.Is(err, cache.ErrNoDatabase) {
			log.Logger().Error("failed to read cached generation",
				zap.String("key", cache.Key(collection, subset)), zap.Error(err))
		}
		return true
	}
	if cachedGeneration < generation {
		cache.StaleTimes.Inc()
		return true
	}
	return false
}
