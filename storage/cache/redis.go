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
	"encoding/json"
	"time"

	"github.com/juju/errors"
	"github.com/redis/go-redis/v9"
)

// Redis cache storage. Each subset is stored as one JSON document, with a
// set per collection tracking its subsets for collection-wide deletes.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func (r *Redis) documentKey(collection, subset string) string {
	return "documents/" + Key(collection, subset)
}

func (r *Redis) collectionKey(collection string) string {
	return "collections/" + collection
}

// Init nothing.
func (r *Redis) Init() error {
	return nil
}

func (r *Redis) Ping() error {
	return r.client.Ping(context.Background()).Err()
}

// Close redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Purge the whole redis database.
func (r *Redis) Purge() error {
	return r.client.FlushDB(context.Background()).Err()
}

func (r *Redis) Set(ctx context.Context, values ...Value) error {
	if len(values) == 0 {
		return nil
	}
	p := r.client.Pipeline()
	for _, v := range values {
		p.Set(ctx, v.name, v.value, r.ttl)
	}
	_, err := p.Exec(ctx)
	return errors.Trace(err)
}

// Get returns a value from Redis.
func (r *Redis) Get(ctx context.Context, name string) *ReturnValue {
	val, err := r.client.Get(ctx, name).Result()
	if err != nil {
		if err == redis.Nil {
			return &ReturnValue{err: errors.Annotate(ErrObjectNotExist, name)}
		}
		return &ReturnValue{err: errors.Trace(err)}
	}
	return &ReturnValue{value: val}
}

// Delete objects from Redis.
func (r *Redis) Delete(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	return r.client.Del(ctx, names...).Err()
}

// SetScores overrides a subset with a new list.
func (r *Redis) SetScores(ctx context.Context, collection, subset string, scores []Score) error {
	data, err := json.Marshal(scores)
	if err != nil {
		return errors.Trace(err)
	}
	p := r.client.Pipeline()
	p.Set(ctx, r.documentKey(collection, subset), data, r.ttl)
	p.SAdd(ctx, r.collectionKey(collection), subset)
	_, err = p.Exec(ctx)
	return errors.Trace(err)
}

// GetScores returns a subset in its written order.
func (r *Redis) GetScores(ctx context.Context, collection, subset string) ([]Score, error) {
	data, err := r.client.Get(ctx, r.documentKey(collection, subset)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, errors.Annotate(ErrObjectNotExist, Key(collection, subset))
		}
		return nil, errors.Trace(err)
	}
	var scores []Score
	if err = json.Unmarshal(data, &scores); err != nil {
		return nil, errors.Trace(err)
	}
	if scores == nil {
		// a written nil list marshals as "null" but still means empty, not a miss
		scores = []Score{}
	}
	return scores, nil
}

// DeleteScores removes subsets, or the whole collection when no subset is given.
func (r *Redis) DeleteScores(ctx context.Context, collection string, subsets ...string) error {
	if len(subsets) == 0 {
		var err error
		subsets, err = r.client.SMembers(ctx, r.collectionKey(collection)).Result()
		if err != nil {
			return errors.Trace(err)
		}
	}
	if len(subsets) == 0 {
		return nil
	}
	p := r.client.Pipeline()
	for _, subset := range subsets {
		p.Del(ctx, r.documentKey(collection, subset))
		p.SRem(ctx, r.collectionKey(collection), subset)
	}
	_, err := p.Exec(ctx)
	return errors.Trace(err)
}
