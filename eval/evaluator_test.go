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
	"context"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"

	"github.com/sorrel-io/sorrel/logics"
	"github.com/sorrel-io/sorrel/ratings"
	"github.com/sorrel-io/sorrel/similarity"
)

func userBasedConfig(t *testing.T, scale ratings.Scale) Config {
	strategy, err := logics.NewStrategy(logics.UserBasedName, similarity.Cosine{}, 3, 1)
	assert.NoError(t, err)
	predictor, err := logics.NewPredictor(logics.WeightedName, scale, 3)
	assert.NoError(t, err)
	return Config{
		Strategy:  strategy,
		Predictor: predictor,
		Metric:    similarity.Cosine{},
		TopK:      2,
		Relevance: 4,
		Jobs:      2,
	}
}

func TestEvaluate(t *testing.T) {
	train := exampleStore(t)
	test := ratings.NewStore(train.Scale())
	assert.NoError(t, test.Put(1, 5, 4, time.Now()))
	assert.NoError(t, test.Put(99, 1, 5, time.Now()))

	report, err := Evaluate(context.Background(), train, test, userBasedConfig(t, train.Scale()))
	assert.NoError(t, err)
	// user 1's held-out rating of item 5 predicts to 3.74958, user 99 is
	// unseen in training, skips entirely and does not count as evaluated
	assert.Equal(t, 1, report.PairsEvaluated)
	assert.Equal(t, 1, report.PairsSkipped)
	assert.Equal(t, 1, report.UsersEvaluated)
	assert.InDelta(t, 0.2504, report.MAE, 0.001)
	assert.InDelta(t, 0.2504, report.RMSE, 0.001)
	// user 1's top 2 is [5, 4], hitting 1 of 1 relevant test items
	assert.InDelta(t, 0.5, report.Precision, 1e-6)
	assert.InDelta(t, 1.0, report.Recall, 1e-6)
	assert.InDelta(t, 0.4, report.Coverage, 1e-6)
	// items 4 and 5 share a single co-rater, so they look identical
	assert.InDelta(t, 0.0, report.Diversity, 1e-6)
}

func TestEvaluateSkippedUsersNotCounted(t *testing.T) {
	train := exampleStore(t)
	test := ratings.NewStore(train.Scale())
	// only users unseen in training, and a known user whose single test item
	// is unknown, so nobody contributes a pair or a ranked list
	assert.NoError(t, test.Put(99, 1, 5, time.Now()))
	assert.NoError(t, test.Put(100, 2, 3, time.Now()))
	assert.NoError(t, test.Put(1, 77, 3, time.Now()))

	report, err := Evaluate(context.Background(), train, test, userBasedConfig(t, train.Scale()))
	assert.NoError(t, err)
	assert.Equal(t, 0, report.PairsEvaluated)
	assert.Equal(t, 3, report.PairsSkipped)
	assert.Equal(t, 0, report.UsersEvaluated)
}

func TestEvaluateItemBased(t *testing.T) {
	train := exampleStore(t)
	test := ratings.NewStore(train.Scale())
	assert.NoError(t, test.Put(1, 5, 4, time.Now()))
	assert.NoError(t, test.Put(99, 1, 5, time.Now()))

	cfg := userBasedConfig(t, train.Scale())
	strategy, err := logics.NewStrategy(logics.ItemBasedName, similarity.Cosine{}, 3, 1)
	assert.NoError(t, err)
	cfg.Strategy = strategy
	report, err := Evaluate(context.Background(), train, test, cfg)
	assert.NoError(t, err)
	// item 5 scores exactly 4.0 from the single profile neighbor item 2
	assert.Equal(t, 1, report.PairsEvaluated)
	assert.Equal(t, 1, report.PairsSkipped)
	assert.InDelta(t, 0.0, report.MAE, 1e-9)
	assert.InDelta(t, 0.0, report.RMSE, 1e-9)
	assert.InDelta(t, 0.5, report.Precision, 1e-6)
	assert.InDelta(t, 1.0, report.Recall, 1e-6)
	assert.InDelta(t, 0.4, report.Coverage, 1e-6)
}

func TestEvaluateEmpty(t *testing.T) {
	train := ratings.NewStore(ratings.NewScale(1, 5))
	test := ratings.NewStore(ratings.NewScale(1, 5))
	_, err := Evaluate(context.Background(), train, test, userBasedConfig(t, train.Scale()))
	assert.True(t, errors.Is(err, ErrEmptyCatalog))
}

func TestEvaluateInvalidConfig(t *testing.T) {
	train := exampleStore(t)
	test := ratings.NewStore(train.Scale())

	cfg := userBasedConfig(t, train.Scale())
	cfg.Strategy = nil
	_, err := Evaluate(context.Background(), train, test, cfg)
	assert.True(t, errors.Is(err, errors.NotValid))

	cfg = userBasedConfig(t, train.Scale())
	cfg.TopK = 0
	_, err = Evaluate(context.Background(), train, test, cfg)
	assert.True(t, errors.Is(err, errors.NotValid))

	cfg = userBasedConfig(t, train.Scale())
	cfg.Jobs = -1
	_, err = Evaluate(context.Background(), train, test, cfg)
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestEvaluateLargerSplit(t *testing.T) {
	store := ratings.NewStore(ratings.NewScale(1, 5))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for u := int64(1); u <= 30; u++ {
		for i := int64(1); i <= 20; i++ {
			if (u+i)%2 == 0 {
				value := 1 + float64((u*7+i*3)%9)/2
				assert.NoError(t, store.Put(u, i, value, base.Add(time.Duration(u*20+i)*time.Minute)))
			}
		}
	}
	train, test, err := Split(store, SplitConfig{TestFraction: 0.2, Seed: 7})
	assert.NoError(t, err)

	strategy, err := logics.NewStrategy(logics.UserBasedName, similarity.Cosine{}, 10, 1)
	assert.NoError(t, err)
	predictor, err := logics.NewPredictor(logics.CenteredName, train.Scale(), 10)
	assert.NoError(t, err)
	report, err := Evaluate(context.Background(), train, test, Config{
		Strategy:  strategy,
		Predictor: predictor,
		Metric:    similarity.Cosine{},
		TopK:      5,
		Relevance: 3.5,
		Jobs:      4,
	})
	assert.NoError(t, err)
	assert.Equal(t, test.Count(), report.PairsEvaluated+report.PairsSkipped)
	assert.Positive(t, report.PairsEvaluated)
	assert.Positive(t, report.UsersEvaluated)
	assert.LessOrEqual(t, report.UsersEvaluated, len(test.Users()))
	assert.Positive(t, report.MAE)
	assert.GreaterOrEqual(t, report.RMSE, report.MAE)
	assert.GreaterOrEqual(t, report.Coverage, 0.0)
	assert.LessOrEqual(t, report.Coverage, 1.0)
	assert.GreaterOrEqual(t, report.Precision, 0.0)
	assert.LessOrEqual(t, report.Precision, 1.0)
	assert.GreaterOrEqual(t, report.Recall, 0.0)
	assert.LessOrEqual(t, report.Recall, 1.0)
}

func TestEvaluateCancel(t *testing.T) {
	train := exampleStore(t)
	test := ratings.NewStore(train.Scale())
	assert.NoError(t, test.Put(1, 5, 4, time.Now()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Evaluate(ctx, train, test, userBasedConfig(t, train.Scale()))
	assert.ErrorIs(t, err, context.Canceled)
}
