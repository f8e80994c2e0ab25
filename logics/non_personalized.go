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
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/sorrel-io/sorrel/base/log"
	"github.com/sorrel-io/sorrel/common/heap"
	"github.com/sorrel-io/sorrel/config"
	"github.com/sorrel-io/sorrel/storage/cache"
)

// Item is the view of a catalog item exposed to ranking expressions.
type Item struct {
	Id     int64
	Raters int
}

// NonPersonalized ranks catalog items by a configurable expression over the
// ratings each item has received. It backs the cold-start fallback: scores
// here come from the whole population, not from any single user's neighbors.
type NonPersonalized struct {
	sync.Mutex
	name       string
	timestamp  time.Time
	scoreFunc  *vm.Program
	filterFunc *vm.Program
	heap       *heap.TopKFilter[int64, float64]
}

func NewNonPersonalized(cfg config.FallbackConfig, n int, timestamp time.Time) (*NonPersonalized, error) {
	// Compile score expression
	scoreFunc, err := expr.Compile(cfg.Score, expr.Env(map[string]any{
		"item":   Item{},
		"values": []float64{},
	}))
	if err != nil {
		return nil, err
	}
	switch scoreFunc.Node().Type().Kind() {
	case reflect.Float64, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
	default:
		return nil, errors.New("score expression must return a number")
	}
	// Compile filter expression
	var filterFunc *vm.Program
	if cfg.Filter != "" {
		filterFunc, err = expr.Compile(cfg.Filter, expr.Env(map[string]any{
			"item":   Item{},
			"values": []float64{},
		}))
		if err != nil {
			return nil, err
		}
		if filterFunc.Node().Type().Kind() != reflect.Bool {
			return nil, errors.New("filter expression must return bool")
		}
	}
	return &NonPersonalized{
		name:       cfg.Name,
		timestamp:  timestamp,
		scoreFunc:  scoreFunc,
		filterFunc: filterFunc,
		heap:       heap.NewTopKFilter[int64, float64](n),
	}, nil
}

// NewBestRated ranks by average rating among items with at least minRaters
// raters, the default fallback policy.
func NewBestRated(minRaters, n int, timestamp time.Time) *NonPersonalized {
	return lo.Must(NewNonPersonalized(config.FallbackConfig{
		Name:   "best_rated",
		Score:  "mean(values)",
		Filter: fmt.Sprintf("len(values) >= %d", minRaters),
	}, n, timestamp))
}

// NewMostRated ranks by rater count alone.
func NewMostRated(n int, timestamp time.Time) *NonPersonalized {
	return lo.Must(NewNonPersonalized(config.FallbackConfig{
		Name:  "most_rated",
		Score: "len(values)",
	}, n, timestamp))
}

// Push submits one item and the rating values it has received. Items rejected
// by the filter are skipped; a failing expression drops the item with a log
// entry instead of aborting the whole pass.
func (l *NonPersonalized) Push(item Item, values []float64) {
	// Evaluate filter expression
	if l.filterFunc != nil {
		result, err := expr.Run(l.filterFunc, map[string]any{
			"item":   item,
			"values": values,
		})
		if err != nil {
			log.Logger().Error("evaluate filter expression", zap.Error(err), zap.Int64("item_id", item.Id))
			return
		}
		if !result.(bool) {
			return
		}
	}
	// Evaluate score expression
	result, err := expr.Run(l.scoreFunc, map[string]any{
		"item":   item,
		"values": values,
	})
	if err != nil {
		log.Logger().Error("evaluate score expression", zap.Error(err), zap.Int64("item_id", item.Id))
		return
	}
	var score float64
	switch typed := result.(type) {
	case float64:
		score = typed
	case int:
		score = float64(typed)
	case int8:
		score = float64(typed)
	case int16:
		score = float64(typed)
	case int32:
		score = float64(typed)
	case int64:
		score = float64(typed)
	default:
		log.Logger().Error("score expression must return a number", zap.Any("result", result))
		return
	}
	// Add to heap
	l.Lock()
	defer l.Unlock()
	l.heap.Push(item.Id, score)
}

// PopAll returns the ranked items, best first. Ties break toward the smaller
// item id so repeated runs produce identical lists.
func (l *NonPersonalized) PopAll() []cache.Score {
	l.Lock()
	defer l.Unlock()
	ids, values := l.heap.PopAll()
	result := lo.Map(ids, func(id int64, i int) cache.Score {
		return cache.Score{
			Id:        id,
			Score:     values[i],
			Timestamp: l.timestamp,
		}
	})
	sort.Slice(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			return result[i].Score > result[j].Score
		}
		return result[i].Id < result[j].Id
	})
	return result
}

func (l *NonPersonalized) Name() string {
	return l.name
}

func (l *NonPersonalized) Timestamp() time.Time {
	return l.timestamp
}
