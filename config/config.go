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

// Package config loads and validates the engine configuration from TOML,
// environment variables and built-in defaults.
package config

import (
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/juju/errors"
	"github.com/spf13/viper"
)

// Config is the configuration for the engine.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Recommend RecommendConfig `mapstructure:"recommend"`
	Eval      EvalConfig      `mapstructure:"eval"`
	Worker    WorkerConfig    `mapstructure:"worker"`
}

// DatabaseConfig is the configuration for the cache store.
type DatabaseConfig struct {
	// CacheStore is the DSN of the result cache. Supported schemes are
	// memory://, redis://, mongodb://, mysql:// and postgres://; an empty
	// string disables caching.
	CacheStore string `mapstructure:"cache_store"`
	// CacheTTL expires cached results even when no rating invalidated them.
	// Zero keeps entries until the next write.
	CacheTTL time.Duration `mapstructure:"cache_ttl" validate:"min=0"`
}

// RecommendConfig is the configuration for the recommendation pipeline.
type RecommendConfig struct {
	CacheSize  int            `mapstructure:"cache_size" validate:"gt=0"`
	Mode       string         `mapstructure:"mode" validate:"oneof=user_based item_based"`
	Similarity string         `mapstructure:"similarity" validate:"oneof=cosine pearson"`
	Predictor  string         `mapstructure:"predictor" validate:"oneof=weighted centered"`
	Neighbors  int            `mapstructure:"neighbors" validate:"gt=0"`
	MinSupport int            `mapstructure:"min_support" validate:"gte=1"`
	Scale      ScaleConfig    `mapstructure:"scale"`
	Fallback   FallbackConfig `mapstructure:"fallback"`
}

// ScaleConfig is the closed interval of permitted rating values.
type ScaleConfig struct {
	Min float64 `mapstructure:"min"`
	Max float64 `mapstructure:"max" validate:"gtfield=Min"`
}

// FallbackConfig is the cold-start ranking policy. Score and Filter are
// expressions over an item and the rating values it has received.
type FallbackConfig struct {
	Name   string `mapstructure:"name"`
	Score  string `mapstructure:"score" validate:"required"`
	Filter string `mapstructure:"filter"`
}

// EvalConfig is the configuration for offline evaluation.
type EvalConfig struct {
	TopK int `mapstructure:"top_k" validate:"gt=0"`
	// TestFraction is the share of ratings held out by a random split.
	TestFraction float64 `mapstructure:"test_fraction" validate:"gt=0,lt=1"`
	// RelevanceFraction positions the relevance threshold inside the scale:
	// a test rating of at least min + fraction*(max-min) counts as relevant.
	RelevanceFraction float64 `mapstructure:"relevance_fraction" validate:"gte=0,lte=1"`
	Seed              int64   `mapstructure:"seed"`
}

// WorkerConfig is the configuration for batch refreshes.
type WorkerConfig struct {
	Jobs int `mapstructure:"jobs" validate:"gt=0"`
}

// GetDefaultConfig returns the default configuration.
func GetDefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			CacheStore: "memory://",
		},
		Recommend: RecommendConfig{
			CacheSize:  100,
			Mode:       "user_based",
			Similarity: "cosine",
			Predictor:  "centered",
			Neighbors:  10,
			MinSupport: 3,
			Scale:      ScaleConfig{Min: 1, Max: 5},
			Fallback: FallbackConfig{
				Name:   "best_rated",
				Score:  "mean(values)",
				Filter: "len(values) >= 3",
			},
		},
		Eval: EvalConfig{
			TopK:              10,
			TestFraction:      0.2,
			RelevanceFraction: 0.8,
		},
		Worker: WorkerConfig{
			Jobs: runtime.NumCPU(),
		},
	}
}

func setDefault() {
	defaultConfig := GetDefaultConfig()
	// [database]
	viper.SetDefault("database.cache_store", defaultConfig.Database.CacheStore)
	viper.SetDefault("database.cache_ttl", defaultConfig.Database.CacheTTL)
	// [recommend]
	viper.SetDefault("recommend.cache_size", defaultConfig.Recommend.CacheSize)
	viper.SetDefault("recommend.mode", defaultConfig.Recommend.Mode)
	viper.SetDefault("recommend.similarity", defaultConfig.Recommend.Similarity)
	viper.SetDefault("recommend.predictor", defaultConfig.Recommend.Predictor)
	viper.SetDefault("recommend.neighbors", defaultConfig.Recommend.Neighbors)
	viper.SetDefault("recommend.min_support", defaultConfig.Recommend.MinSupport)
	// [recommend.scale]
	viper.SetDefault("recommend.scale.min", defaultConfig.Recommend.Scale.Min)
	viper.SetDefault("recommend.scale.max", defaultConfig.Recommend.Scale.Max)
	// [recommend.fallback]
	viper.SetDefault("recommend.fallback.name", defaultConfig.Recommend.Fallback.Name)
	viper.SetDefault("recommend.fallback.score", defaultConfig.Recommend.Fallback.Score)
	viper.SetDefault("recommend.fallback.filter", defaultConfig.Recommend.Fallback.Filter)
	// [eval]
	viper.SetDefault("eval.top_k", defaultConfig.Eval.TopK)
	viper.SetDefault("eval.test_fraction", defaultConfig.Eval.TestFraction)
	viper.SetDefault("eval.relevance_fraction", defaultConfig.Eval.RelevanceFraction)
	viper.SetDefault("eval.seed", defaultConfig.Eval.Seed)
	// [worker]
	viper.SetDefault("worker.jobs", defaultConfig.Worker.Jobs)
}

type binding struct {
	key string
	env string
}

// LoadConfig loads the configuration from a TOML file. Environment variables
// override file values, file values override defaults.
func LoadConfig(path string) (*Config, error) {
	setDefault()
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return nil, errors.Trace(err)
	}
	// bind environment variables
	bindings := []binding{
		{"database.cache_store", "SORREL_CACHE_STORE"},
		{"database.cache_ttl", "SORREL_CACHE_TTL"},
		{"recommend.mode", "SORREL_RECOMMEND_MODE"},
		{"recommend.similarity", "SORREL_RECOMMEND_SIMILARITY"},
		{"recommend.predictor", "SORREL_RECOMMEND_PREDICTOR"},
		{"worker.jobs", "SORREL_WORKER_JOBS"},
	}
	for _, b := range bindings {
		if err := viper.BindEnv(b.key, b.env); err != nil {
			return nil, errors.Trace(err)
		}
	}
	var conf Config
	if err := viper.Unmarshal(&conf); err != nil {
		return nil, errors.Trace(err)
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &conf, nil
}

// Validate checks field ranges and cross-field constraints.
func (config *Config) Validate() error {
	return errors.Trace(validator.New().Struct(config))
}
