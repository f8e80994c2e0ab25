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

// Package eval measures prediction accuracy and ranking quality on held-out
// ratings. Pairs the predictor cannot score are counted, never guessed, so a
// report always states how much of the test set it covers.
package eval

import (
	"context"
	"math"

	"github.com/bits-and-blooms/bitset"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"

	"github.com/sorrel-io/sorrel/common/parallel"
	"github.com/sorrel-io/sorrel/logics"
	"github.com/sorrel-io/sorrel/ratings"
	"github.com/sorrel-io/sorrel/similarity"
	"github.com/sorrel-io/sorrel/storage/cache"
)

const (
	// ErrEmptyCatalog reports an evaluation or batch run against a store
	// without items.
	ErrEmptyCatalog = errors.ConstError("empty catalog")
	// ErrEmptyUserBase reports an evaluation or batch run against a store
	// without users.
	ErrEmptyUserBase = errors.ConstError("empty user base")
)

// Config selects the pipeline under evaluation. Relevance is the absolute
// rating threshold a test item must reach to count for precision and recall.
type Config struct {
	Strategy  logics.Strategy
	Predictor logics.Predictor
	Metric    similarity.Metric
	TopK      int
	Relevance float64
	Jobs      int
}

func (config Config) validate() error {
	if config.Strategy == nil || config.Predictor == nil || config.Metric == nil {
		return errors.NotValidf("evaluation config")
	}
	if config.TopK <= 0 {
		return errors.NotValidf("top k %d", config.TopK)
	}
	if config.Jobs <= 0 {
		return errors.NotValidf("jobs %d", config.Jobs)
	}
	return nil
}

// Report is the outcome of one evaluation run, immutable once produced.
// Accuracy covers the evaluated pairs only; the skipped count makes the
// fallback territory explicit.
type Report struct {
	MAE            float64
	RMSE           float64
	Precision      float64
	Recall         float64
	Coverage       float64
	Diversity      float64
	PairsEvaluated int
	PairsSkipped   int
	// UsersEvaluated counts users that contributed at least one evaluated
	// pair or ranked list; users skipped wholesale are excluded.
	UsersEvaluated int
}

// partial accumulates one worker's share of the report, merged after fan-in.
type partial struct {
	absSum         float64
	sqSum          float64
	pairs          int
	skipped        int
	precisionSum   float64
	recallSum      float64
	rankedUsers    int
	diversitySum   float64
	diversityUsers int
	users          int
	covered        *bitset.BitSet
}

// Evaluate scores the configured pipeline on test ratings, predicting from
// the train store only. Users are processed in parallel; cancellation is
// observed between users, never inside one user's computation.
func Evaluate(ctx context.Context, train, test *ratings.Store, cfg Config) (Report, error) {
	if err := cfg.validate(); err != nil {
		return Report{}, errors.Trace(err)
	}
	snapshot := train.Snapshot()
	if snapshot.CountItems() == 0 {
		return Report{}, errors.Trace(ErrEmptyCatalog)
	}
	if snapshot.CountUsers() == 0 {
		return Report{}, errors.Trace(ErrEmptyUserBase)
	}
	users := test.Users()
	partials := make([]partial, cfg.Jobs)
	for i := range partials {
		partials[i].covered = bitset.New(uint(snapshot.CountItems()))
	}
	err := parallel.Parallel(ctx, len(users), cfg.Jobs, func(workerId, jobId int) error {
		part := &partials[workerId]
		userId := users[jobId]
		testRatings := test.GetRatings(userId)
		userIndex, known := snapshot.UserIndex(userId)
		if !known {
			// user unseen in training, every pair is fallback territory
			part.skipped += len(testRatings)
			return nil
		}
		scorer := cfg.Strategy.NewScorer(snapshot, userIndex)
		pairsBefore := part.pairs
		for itemId, actual := range testRatings {
			itemIndex, ok := snapshot.ItemIndex(itemId)
			if !ok {
				part.skipped++
				continue
			}
			neighbors, baseMean := scorer.Neighbors(itemIndex)
			value, _, ok := cfg.Predictor.Predict(baseMean, neighbors)
			if !ok {
				part.skipped++
				continue
			}
			diff := value - actual
			part.absSum += math.Abs(diff)
			part.sqSum += diff * diff
			part.pairs++
		}
		ranked := logics.RankItems(snapshot, userIndex, scorer, cfg.Predictor, cfg.TopK)
		for _, score := range ranked {
			if itemIndex, ok := snapshot.ItemIndex(score.Id); ok {
				part.covered.Set(uint(itemIndex))
			}
		}
		relevant := mapset.NewThreadUnsafeSet[int64]()
		for itemId, actual := range testRatings {
			if actual >= cfg.Relevance {
				relevant.Add(itemId)
			}
		}
		if relevant.Cardinality() > 0 {
			hits := 0
			for _, score := range ranked {
				if relevant.Contains(score.Id) {
					hits++
				}
			}
			part.precisionSum += float64(hits) / float64(cfg.TopK)
			part.recallSum += float64(hits) / float64(relevant.Cardinality())
			part.rankedUsers++
		}
		if len(ranked) >= 2 {
			part.diversitySum += listDiversity(cfg.Metric, snapshot, ranked)
			part.diversityUsers++
		}
		if part.pairs > pairsBefore || relevant.Cardinality() > 0 {
			part.users++
		}
		return nil
	})
	if err != nil {
		return Report{}, errors.Trace(err)
	}
	// fan in
	var report Report
	covered := bitset.New(uint(snapshot.CountItems()))
	var absSum, sqSum, precisionSum, recallSum, diversitySum float64
	var rankedUsers, diversityUsers int
	for i := range partials {
		report.PairsEvaluated += partials[i].pairs
		report.PairsSkipped += partials[i].skipped
		report.UsersEvaluated += partials[i].users
		absSum += partials[i].absSum
		sqSum += partials[i].sqSum
		precisionSum += partials[i].precisionSum
		recallSum += partials[i].recallSum
		rankedUsers += partials[i].rankedUsers
		diversitySum += partials[i].diversitySum
		diversityUsers += partials[i].diversityUsers
		covered.InPlaceUnion(partials[i].covered)
	}
	if report.PairsEvaluated > 0 {
		report.MAE = absSum / float64(report.PairsEvaluated)
		report.RMSE = math.Sqrt(sqSum / float64(report.PairsEvaluated))
	}
	if rankedUsers > 0 {
		report.Precision = precisionSum / float64(rankedUsers)
		report.Recall = recallSum / float64(rankedUsers)
	}
	if diversityUsers > 0 {
		report.Diversity = diversitySum / float64(diversityUsers)
	}
	report.Coverage = float64(covered.Count()) / float64(snapshot.CountItems())
	return report, nil
}

// listDiversity is the mean pairwise dissimilarity within one ranked list.
// Pairs without common support count as similarity 0, maximally dissimilar.
func listDiversity(metric similarity.Metric, snapshot *ratings.Snapshot, ranked []cache.Score) float64 {
	vectors := snapshot.ItemRatings()
	var sum float64
	var pairs int
	for i := 0; i < len(ranked); i++ {
		a, _ := snapshot.ItemIndex(ranked[i].Id)
		for j := i + 1; j < len(ranked); j++ {
			b, _ := snapshot.ItemIndex(ranked[j].Id)
			var sim float64
			if score, ok := metric.Score(vectors[a], vectors[b]); ok {
				sim = float64(score.Value)
			}
			sum += 1 - sim
			pairs++
		}
	}
	return sum / float64(pairs)
}
