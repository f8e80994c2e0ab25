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

package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestUnmarshal(t *testing.T) {
	data, err := os.ReadFile("config.toml.template")
	assert.NoError(t, err)
	viper.SetConfigType("toml")
	err = viper.ReadConfig(strings.NewReader(string(data)))
	assert.NoError(t, err)
	var config Config
	err = viper.Unmarshal(&config)
	assert.NoError(t, err)

	// [database]
	assert.Equal(t, "redis://localhost:6379/0", config.Database.CacheStore)
	assert.Equal(t, 24*time.Hour, config.Database.CacheTTL)
	// [recommend]
	assert.Equal(t, 100, config.Recommend.CacheSize)
	assert.Equal(t, "user_based", config.Recommend.Mode)
	assert.Equal(t, "cosine", config.Recommend.Similarity)
	assert.Equal(t, "centered", config.Recommend.Predictor)
	assert.Equal(t, 10, config.Recommend.Neighbors)
	assert.Equal(t, 3, config.Recommend.MinSupport)
	// [recommend.scale]
	assert.Equal(t, 1.0, config.Recommend.Scale.Min)
	assert.Equal(t, 5.0, config.Recommend.Scale.Max)
	// [recommend.fallback]
	assert.Equal(t, "best_rated", config.Recommend.Fallback.Name)
	assert.Equal(t, "mean(values)", config.Recommend.Fallback.Score)
	assert.Equal(t, "len(values) >= 3", config.Recommend.Fallback.Filter)
	// [eval]
	assert.Equal(t, 10, config.Eval.TopK)
	assert.Equal(t, 0.2, config.Eval.TestFraction)
	assert.Equal(t, 0.8, config.Eval.RelevanceFraction)
	assert.Equal(t, int64(0), config.Eval.Seed)
	// [worker]
	assert.Equal(t, 1, config.Worker.Jobs)
}

func TestSetDefault(t *testing.T) {
	setDefault()
	viper.SetConfigType("toml")
	err := viper.ReadConfig(strings.NewReader(""))
	assert.NoError(t, err)
	var config Config
	err = viper.Unmarshal(&config)
	assert.NoError(t, err)
	assert.Equal(t, GetDefaultConfig(), &config)
}

func TestBindEnv(t *testing.T) {
	t.Setenv("SORREL_CACHE_STORE", "memory://")
	t.Setenv("SORREL_RECOMMEND_MODE", "item_based")
	t.Setenv("SORREL_RECOMMEND_SIMILARITY", "pearson")
	t.Setenv("SORREL_WORKER_JOBS", "7")

	config, err := LoadConfig("config.toml.template")
	assert.NoError(t, err)
	assert.Equal(t, "memory://", config.Database.CacheStore)
	assert.Equal(t, "item_based", config.Recommend.Mode)
	assert.Equal(t, "pearson", config.Recommend.Similarity)
	assert.Equal(t, 7, config.Worker.Jobs)

	// values without an override keep the file values
	assert.Equal(t, 100, config.Recommend.CacheSize)
	assert.Equal(t, "centered", config.Recommend.Predictor)
}

func TestValidate(t *testing.T) {
	config := GetDefaultConfig()
	assert.NoError(t, config.Validate())

	config = GetDefaultConfig()
	config.Recommend.Mode = "unknown"
	assert.Error(t, config.Validate())

	config = GetDefaultConfig()
	config.Recommend.Scale = ScaleConfig{Min: 5, Max: 1}
	assert.Error(t, config.Validate())

	config = GetDefaultConfig()
	config.Recommend.CacheSize = 0
	assert.Error(t, config.Validate())

	config = GetDefaultConfig()
	config.Recommend.Fallback.Score = ""
	assert.Error(t, config.Validate())

	config = GetDefaultConfig()
	config.Eval.TestFraction = 1
	assert.Error(t, config.Validate())

	config = GetDefaultConfig()
	config.Worker.Jobs = -1
	assert.Error(t, config.Validate())
}
