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
	"slices"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/juju/errors"
)

// Memory is an in-process backend on ttlcache. It is the default for
// single-node deployments and for tests.
type Memory struct {
	values    *ttlcache.Cache[string, string]
	documents *ttlcache.Cache[string, []Score]
}

// NewMemory creates an in-memory cache. Entries expire after ttl, or never
// when ttl is zero.
func NewMemory(ttl time.Duration) *Memory {
	var valueOpts []ttlcache.Option[string, string]
	var documentOpts []ttlcache.Option[string, []Score]
	if ttl > 0 {
		valueOpts = append(valueOpts, ttlcache.WithTTL[string, string](ttl))
		documentOpts = append(documentOpts, ttlcache.WithTTL[string, []Score](ttl))
	}
	m := &Memory{
		values:    ttlcache.New(valueOpts...),
		documents: ttlcache.New(documentOpts...),
	}
	go m.values.Start()
	go m.documents.Start()
	return m
}

func (m *Memory) Init() error {
	return nil
}

func (m *Memory) Ping() error {
	return nil
}

func (m *Memory) Close() error {
	m.values.Stop()
	m.documents.Stop()
	return nil
}

func (m *Memory) Purge() error {
	m.values.DeleteAll()
	m.documents.DeleteAll()
	return nil
}

func (m *Memory) Set(_ context.Context, values ...Value) error {
	for _, value := range values {
		m.values.Set(value.name, value.value, ttlcache.DefaultTTL)
	}
	return nil
}

func (m *Memory) Get(_ context.Context, name string) *ReturnValue {
	item := m.values.Get(name)
	if item == nil {
		return &ReturnValue{err: errors.Annotate(ErrObjectNotExist, name)}
	}
	return &ReturnValue{value: item.Value()}
}

func (m *Memory) Delete(_ context.Context, names ...string) error {
	for _, name := range names {
		m.values.Delete(name)
	}
	return nil
}

func (m *Memory) SetScores(_ context.Context, collection, subset string, scores []Score) error {
	cloned := slices.Clone(scores)
	if cloned == nil {
		// an explicitly written empty list must read back as empty, not as a miss
		cloned = []Score{}
	}
	m.documents.Set(Key(collection, subset), cloned, ttlcache.DefaultTTL)
	return nil
}

func (m *Memory) GetScores(_ context.Context, collection, subset string) ([]Score, error) {
	item := m.documents.Get(Key(collection, subset))
	if item == nil {
		return nil, errors.Annotate(ErrObjectNotExist, Key(collection, subset))
	}
	return slices.Clone(item.Value()), nil
}

func (m *Memory) DeleteScores(_ context.Context, collection string, subsets ...string) error {
	if len(subsets) == 0 {
		prefix := collection + "/"
		var stale []string
		m.documents.Range(func(item *ttlcache.Item[string, []Score]) bool {
			if strings.HasPrefix(item.Key(), prefix) {
				stale = append(stale, item.Key())
			}
			return true
		})
		for _, key := range stale {
			m.documents.Delete(key)
		}
		return nil
	}
	for _, subset := range subsets {
		m.documents.Delete(Key(collection, subset))
	}
	return nil
}
