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

package cache

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SetScoresSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sorrel",
		Subsystem: "cache",
		Name:      "set_scores_seconds",
	})
	GetScoresSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sorrel",
		Subsystem: "cache",
		Name:      "get_scores_seconds",
	})
	DeleteScoresSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sorrel",
		Subsystem: "cache",
		Name:      "delete_scores_seconds",
	})

	HitTimes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sorrel",
		Subsystem: "cache",
		Name:      "hit_times",
	})
	MissTimes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sorrel",
		Subsystem: "cache",
		Name:      "miss_times",
	})
	StaleTimes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sorrel",
		Subsystem: "cache",
		Name:      "stale_times",
	})
)

// timedDatabase reports score list latencies to the histograms above. Open
// wraps every backend with it.
type timedDatabase struct {
	Database
}

func (t timedDatabase) SetScores(ctx context.Context, collection, subset string, scores []Score) error {
	start := time.Now()
	defer func() {
		SetScoresSeconds.Observe(time.Since(start).Seconds())
	}()
	return t.Database.SetScores(ctx, collection, subset, scores)
}

func (t timedDatabase) GetScores(ctx context.Context, collection, subset string) ([]Score, error) {
	start := time.Now()
	defer func() {
		GetScoresSeconds.Observe(time.Since(start).Seconds())
	}()
	return t.Database.GetScores(ctx, collection, subset)
}

func (t timedDatabase) DeleteScores(ctx context.Context, collection string, subsets ...string) error {
	start := time.Now()
	defer func() {
		DeleteScoresSeconds.Observe(time.Since(start).Seconds())
	}()
	return t.Database.DeleteScores(ctx, collection, subsets...)
}
