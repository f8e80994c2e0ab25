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

// Package cache stores computed recommendation lists and the bookkeeping
// values that tie each list to the rating store generation it was computed
// from. A cached list whose generation is older than the store's current
// generation is treated as a miss by callers.
package cache

import (
	"context"
	"database/sql"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/cenkalti/backoff/v5"
	"github.com/juju/errors"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	// Recommend is the collection of ranked recommendation lists, one subset per user.
	Recommend = "recommend"
	// UserNeighbors is the collection of user neighborhoods, one subset per user.
	UserNeighbors = "neighbors/users"
	// ItemNeighbors is the collection of item neighborhoods, one subset per item.
	ItemNeighbors = "neighbors/items"

	// Generation is the store generation a subset was computed from.
	Generation = "generation"
	// UpdateTime is the wall clock time a subset was written.
	UpdateTime = "update_time"
)

var (
	// ErrObjectNotExist is returned by Get and GetScores when the entry is absent.
	ErrObjectNotExist = errors.NotFoundf("object")
	// ErrNoDatabase is returned by every call on NoDatabase.
	ErrNoDatabase = errors.NotAssignedf("database")
)

// Score is one entry of a cached recommendation or neighborhood list. Lists
// keep the order they were written in. Fallback marks entries that were
// filled from item popularity instead of personalized prediction.
type Score struct {
	Id        int64     `json:"id" bson:"id"`
	Score     float64   `json:"score" bson:"score"`
	Fallback  bool      `json:"fallback" bson:"fallback"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// Key builds a cache key from fields joined by "/".
func Key(keys ...string) string {
	if len(keys) == 0 {
		return ""
	}
	var builder strings.Builder
	builder.WriteString(keys[0])
	for _, key := range keys[1:] {
		builder.WriteRune('/')
		builder.WriteString(key)
	}
	return builder.String()
}

// Id converts an identifier to its key field representation.
func Id(v int64) string {
	return strconv.FormatInt(v, 10)
}

// Value is a named value to write.
type Value struct {
	name  string
	value string
}

// String returns a string value.
func String(name, value string) Value {
	return Value{name: name, value: value}
}

// Integer returns an integer value.
func Integer(name string, value int) Value {
	return Value{name: name, value: strconv.Itoa(value)}
}

// Int64 returns a 64-bit integer value.
func Int64(name string, value int64) Value {
	return Value{name: name, value: strconv.FormatInt(value, 10)}
}

// Time returns a time value.
func Time(name string, value time.Time) Value {
	return Value{name: name, value: value.UTC().Format(time.RFC3339Nano)}
}

// ReturnValue is the result of a Get.
type ReturnValue struct {
	value string
	err   error
}

// String returns the value as a string.
func (r *ReturnValue) String() (string, error) {
	return r.value, r.err
}

// Integer returns the value as an integer.
func (r *ReturnValue) Integer() (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	val, err := strconv.Atoi(r.value)
	if err != nil {
		return 0, errors.Trace(err)
	}
	return val, nil
}

// Int64 returns the value as a 64-bit integer.
func (r *ReturnValue) Int64() (int64, error) {
	if r.err != nil {
		return 0, r.err
	}
	val, err := strconv.ParseInt(r.value, 10, 64)
	if err != nil {
		return 0, errors.Trace(err)
	}
	return val, nil
}

// Time returns the value as a time.
func (r *ReturnValue) Time() (time.Time, error) {
	if r.err != nil {
		return time.Time{}, r.err
	}
	tm, err := dateparse.ParseAny(r.value)
	if err != nil {
		return time.Time{}, errors.Trace(err)
	}
	return tm, nil
}

// Database stores computed results. SetScores replaces a whole subset so
// readers never observe a partially written list.
type Database interface {
	Init() error
	Ping() error
	Close() error
	Purge() error
	Set(ctx context.Context, values ...Value) error
	Get(ctx context.Context, name string) *ReturnValue
	Delete(ctx context.Context, names ...string) error
	SetScores(ctx context.Context, collection, subset string, scores []Score) error
	GetScores(ctx context.Context, collection, subset string) ([]Score, error)
	DeleteScores(ctx context.Context, collection string, subsets ...string) error
}

const (
	MemoryPrefix   = "memory://"
	RedisPrefix    = "redis://"
	MongoPrefix    = "mongodb://"
	MongoSrvPrefix = "mongodb+srv://"
	MySQLPrefix    = "mysql://"
	PostgresPrefix = "postgres://"
)

// Open a connection to the backend addressed by path, for example:
//
//	memory://
//	redis://<user>:<password>@<host>:<port>/<db_number>
//	mongodb://<user>:<password>@<host>:<port>/<db_name>
//	mysql://<username>:<password>@tcp(<host>:<port>)/<database>?parseTime=true
//	postgres://<username>:<password>@<host>:<port>/<database>
//
// An empty path returns NoDatabase, which rejects every call. The first ping
// is retried with exponential backoff so callers may start before their
// backend finishes booting. Open does not create the schema, call Init.
func Open(path string, opts ...Option) (Database, error) {
	if path == "" {
		return &NoDatabase{}, nil
	}
	opt := newOptions(opts...)
	var database Database
	switch {
	case strings.HasPrefix(path, MemoryPrefix):
		return timedDatabase{NewMemory(opt.TTL)}, nil
	case strings.HasPrefix(path, RedisPrefix):
		redisOpt, err := redis.ParseURL(path)
		if err != nil {
			return nil, errors.Trace(err)
		}
		database = &Redis{client: redis.NewClient(redisOpt), ttl: opt.TTL}
	case strings.HasPrefix(path, MongoPrefix), strings.HasPrefix(path, MongoSrvPrefix):
		uri, err := url.Parse(path)
		if err != nil {
			return nil, errors.Trace(err)
		}
		dbName := strings.TrimPrefix(uri.Path, "/")
		if dbName == "" {
			return nil, errors.NotValidf("mongodb database name in %q", path)
		}
		ctx, cancel := context.WithTimeout(context.Background(), opt.ConnectTimeout)
		defer cancel()
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(path))
		if err != nil {
			return nil, errors.Trace(err)
		}
		database = &MongoDB{client: client, dbName: dbName}
	case strings.HasPrefix(path, MySQLPrefix):
		client, err := sql.Open("mysql", path[len(MySQLPrefix):])
		if err != nil {
			return nil, errors.Trace(err)
		}
		database = &SQLDatabase{client: client, driver: MySQL}
	case strings.HasPrefix(path, PostgresPrefix):
		client, err := sql.Open("postgres", path)
		if err != nil {
			return nil, errors.Trace(err)
		}
		database = &SQLDatabase{client: client, driver: Postgres}
	default:
		return nil, errors.NotSupportedf("database %q", path)
	}
	// wait for the backend to accept connections
	if _, err := backoff.Retry(context.Background(), func() (any, error) {
		return nil, database.Ping()
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(opt.ConnectTimeout)); err != nil {
		_ = database.Close()
		return nil, errors.Trace(err)
	}
	return timedDatabase{database}, nil
}

// Options tune backend behavior that is not part of the DSN.
type Options struct {
	TTL            time.Duration
	ConnectTimeout time.Duration
}

type Option func(*Options)

// WithTTL expires entries after d where the backend supports expiry. Zero
// keeps entries until the next overwrite or delete.
func WithTTL(d time.Duration) Option {
	return func(o *Options) {
		o.TTL = d
	}
}

// WithConnectTimeout bounds the initial connection retry in Open.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.ConnectTimeout = d
	}
}

func newOptions(opts ...Option) Options {
	opt := Options{
		ConnectTimeout: 30 * time.Second,
	}
	for _, o := range opts {
		o(&opt)
	}
	return opt
}
