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

// Package engine is the boundary of the recommendation core. External
// collaborators feed normalized ratings in, read ranked lists out and trigger
// offline evaluation and batch refreshes; everything behind this facade works
// on snapshots and typed results only.
package engine

import (
	"context"
	"time"

	"github.com/juju/errors"
	"go.uber.org/zap"
	"modernc.org/mathutil"

	"github.com/sorrel-io/sorrel/base/log"
	"github.com/sorrel-io/sorrel/config"
	"github.com/sorrel-io/sorrel/eval"
	"github.com/sorrel-io/sorrel/logics"
	"github.com/sorrel-io/sorrel/ratings"
	"github.com/sorrel-io/sorrel/similarity"
	"github.com/sorrel-io/sorrel/storage/cache"
	"github.com/sorrel-io/sorrel/worker"
)

// Engine wires the rating store, similarity metric, recommendation pipeline,
// result cache and batch worker behind the three boundary operations:
// IngestRating, GetRecommendations and Evaluate.
type Engine struct {
	cfg          *config.Config
	store        *ratings.Store
	cacheClient  cache.Database
	metric       similarity.Metric
	strategy     logics.Strategy
	predictor    logics.Predictor
	recommender  *logics.Recommender
	recommenders map[string]*logics.Recommender
	worker       *worker.Worker
}

// New builds an engine from a validated configuration. Invalid similarity,
// strategy, predictor or fallback settings fail here, before any request.
func New(cfg *config.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	scale := ratings.NewScale(cfg.Recommend.Scale.Min, cfg.Recommend.Scale.Max)
	store := ratings.NewStore(scale)
	metric, err := similarity.New(cfg.Recommend.Similarity)
	if err != nil {
		return nil, errors.Trace(err)
	}
	predictor, err := logics.NewPredictor(cfg.Recommend.Predictor, scale, cfg.Recommend.Neighbors)
	if err != nil {
		return nil, errors.Trace(err)
	}
	// one recommender per mode, so a request may override the configured one
	strategies := make(map[string]logics.Strategy)
	recommenders := make(map[string]*logics.Recommender)
	for _, mode := range []string{logics.UserBasedName, logics.ItemBasedName} {
		strategy, err := logics.NewStrategy(mode, metric, cfg.Recommend.Neighbors, cfg.Recommend.MinSupport)
		if err != nil {
			return nil, errors.Trace(err)
		}
		recommender, err := logics.NewRecommender(strategy, predictor, cfg.Recommend.Fallback)
		if err != nil {
			return nil, errors.Trace(err)
		}
		strategies[mode] = strategy
		recommenders[mode] = recommender
	}
	strategy, ok := strategies[cfg.Recommend.Mode]
	if !ok {
		return nil, errors.NotSupportedf("recommendation mode %q", cfg.Recommend.Mode)
	}
	log.Logger().Info("connect cache store",
		zap.String("database", log.RedactDBURL(cfg.Database.CacheStore)))
	cacheClient, err := cache.Open(cfg.Database.CacheStore, cache.WithTTL(cfg.Database.CacheTTL))
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err = cacheClient.Init(); err != nil && !errors.Is(err, cache.ErrNoDatabase) {
		return nil, errors.Trace(err)
	}
	recommender := recommenders[cfg.Recommend.Mode]
	return &Engine{
		cfg:          cfg,
		store:        store,
		cacheClient:  cacheClient,
		metric:       metric,
		strategy:     strategy,
		predictor:    predictor,
		recommender:  recommender,
		recommenders: recommenders,
		worker: worker.NewWorker(store, cacheClient, recommender, metric,
			cfg.Recommend.Neighbors, cfg.Recommend.MinSupport, cfg.Worker.Jobs, cfg.Recommend.CacheSize),
	}, nil
}

// Store exposes the rating store for read access by collaborators.
func (e *Engine) Store() *ratings.Store {
	return e.store
}

// IngestRating records one rating, overwriting any earlier rating for the
// same (user, item) pair. Out-of-scale values are rejected, never clamped.
func (e *Engine) IngestRating(userId, itemId int64, value float64, timestamp time.Time) error {
	return errors.Trace(e.store.Put(userId, itemId, value, timestamp))
}

// GetRecommendations returns the top n recommendations for a user. mode
// overrides the configured recommendation mode for this call; the empty
// string keeps the configured one. Cached lists are served only for the
// configured mode, and only when their generation matches the store's
// current generation and they are long enough; anything else is a miss and
// triggers recomputation with write-back.
func (e *Engine) GetRecommendations(ctx context.Context, userId int64, n int, mode string) ([]cache.Score, error) {
	if n <= 0 {
		return nil, errors.NotValidf("count %d", n)
	}
	if mode != "" && mode != e.cfg.Recommend.Mode {
		recommender, ok := e.recommenders[mode]
		if !ok {
			return nil, errors.NotSupportedf("recommendation mode %q", mode)
		}
		// cached lists belong to the configured mode, compute fresh
		scores := recommender.Recommend(e.store.Snapshot(), userId, n, time.Now())
		return scores, nil
	}
	generation := e.store.Generation()
	subset := cache.Id(userId)
	cachedGeneration, err := e.cacheClient.Get(ctx, cache.Key(cache.Generation, cache.Recommend, subset)).Int64()
	if err == nil && cachedGeneration >= generation {
		scores, err := e.cacheClient.GetScores(ctx, cache.Recommend, subset)
		if err == nil && len(scores) >= n {
			cache.HitTimes.Inc()
			return scores[:n], nil
		}
	} else if err == nil {
		cache.StaleTimes.Inc()
	}
	cache.MissTimes.Inc()

	snapshot := e.store.Snapshot()
	scores := e.recommender.Recommend(snapshot, userId,
		mathutil.Max(n, e.cfg.Recommend.CacheSize), time.Now())
	if err = e.writeBack(ctx, subset, snapshot.Generation(), scores); err != nil {
		return nil, errors.Trace(err)
	}
	if len(scores) > n {
		scores = scores[:n]
	}
	return scores, nil
}

// writeBack stores a freshly computed list with its generation markers. A
// missing cache backend is not an error, the engine just serves uncached.
func (e *Engine) writeBack(ctx context.Context, subset string, generation int64, scores []cache.Score) error {
	err := e.cacheClient.SetScores(ctx, cache.Recommend, subset, scores)
	if errors.Is(err, cache.ErrNoDatabase) {
		return nil
	}
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(e.cacheClient.Set(ctx,
		cache.Int64(cache.Key(cache.Generation, cache.Recommend, subset), generation),
		cache.Time(cache.Key(cache.UpdateTime, cache.Recommend, subset), time.Now())))
}

// Evaluate holds out part of the current ratings and measures the configured
// pipeline on them. The split and the report are one-shot; nothing about the
// serving state changes.
func (e *Engine) Evaluate(ctx context.Context, splitCfg eval.SplitConfig) (eval.Report, error) {
	train, test, err := eval.Split(e.store, splitCfg)
	if err != nil {
		return eval.Report{}, errors.Trace(err)
	}
	scale := e.store.Scale()
	report, err := eval.Evaluate(ctx, train, test, eval.Config{
		Strategy:  e.strategy,
		Predictor: e.predictor,
		Metric:    e.metric,
		TopK:      e.cfg.Eval.TopK,
		Relevance: scale.Min + e.cfg.Eval.RelevanceFraction*scale.Range(),
		Jobs:      e.cfg.Worker.Jobs,
	})
	return report, errors.Trace(err)
}

// Refresh recomputes cached lists for the given users, or for every known
// user when none are named. Delegates to the batch worker.
func (e *Engine) Refresh(ctx context.Context, users ...int64) error {
	return errors.Trace(e.worker.Refresh(ctx, users))
}

// Close releases the cache connection.
func (e *Engine) Close() error {
	if err := e.cacheClient.Close(); err != nil && !errors.Is(err, cache.ErrNoDatabase) {
		return errors.Trace(err)
	}
	return nil
}
