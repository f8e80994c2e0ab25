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
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"

	"github.com/sorrel-io/sorrel/ratings"
)

func TestNewPredictor(t *testing.T) {
	scale := ratings.NewScale(1, 5)
	weighted, err := NewPredictor(WeightedName, scale, 10)
	assert.NoError(t, err)
	assert.Equal(t, WeightedName, weighted.Name())
	centered, err := NewPredictor(CenteredName, scale, 10)
	assert.NoError(t, err)
	assert.Equal(t, CenteredName, centered.Name())
	_, err = NewPredictor("unknown", scale, 10)
	assert.True(t, errors.Is(err, errors.NotSupported))
}

func TestWeighted(t *testing.T) {
	predictor := Weighted{scale: ratings.NewScale(1, 5), k: 10}
	value, confidence, ok := predictor.Predict(0, []RatedNeighbor{
		{Id: 1, Similarity: 1, Rating: 4},
		{Id: 2, Similarity: 0.5, Rating: 2},
	})
	assert.True(t, ok)
	assert.InDelta(t, 10.0/3, value, 1e-6)
	assert.InDelta(t, 0.15, confidence, 1e-6)
}

func TestWeightedNegativeSimilarity(t *testing.T) {
	// the denominator uses absolute similarities so a negative correlation
	// pulls the estimate down instead of flipping its sign
	predictor := Weighted{scale: ratings.NewScale(1, 5), k: 10}
	value, _, ok := predictor.Predict(0, []RatedNeighbor{
		{Id: 1, Similarity: 1, Rating: 5},
		{Id: 2, Similarity: -1, Rating: 1},
	})
	assert.True(t, ok)
	assert.InDelta(t, 2, value, 1e-6)
}

func TestWeightedClamp(t *testing.T) {
	predictor := Weighted{scale: ratings.NewScale(1, 5), k: 10}
	value, _, ok := predictor.Predict(0, []RatedNeighbor{
		{Id: 1, Similarity: 0.1, Rating: 5},
		{Id: 2, Similarity: -1, Rating: 1},
	})
	assert.True(t, ok)
	assert.Equal(t, 1.0, value)
}

func TestWeightedNoSignal(t *testing.T) {
	predictor := Weighted{scale: ratings.NewScale(1, 5), k: 10}
	_, confidence, ok := predictor.Predict(0, nil)
	assert.False(t, ok)
	assert.Zero(t, confidence)
	_, _, ok = predictor.Predict(0, []RatedNeighbor{{Id: 1, Similarity: 0, Rating: 3}})
	assert.False(t, ok)
}

func TestCentered(t *testing.T) {
	predictor := Centered{scale: ratings.NewScale(1, 5), k: 10}
	value, _, ok := predictor.Predict(10.0/3, []RatedNeighbor{
		{Id: 3, Similarity: 1, Rating: 3, Mean: 4},
		{Id: 4, Similarity: 0.99888, Rating: 4.5, Mean: 11.0 / 3},
	})
	assert.True(t, ok)
	assert.InDelta(t, 3.2495, value, 1e-3)
}

func TestCenteredClamp(t *testing.T) {
	// adding deviations back onto the base mean can leave the scale even when
	// every rating is in range
	predictor := Centered{scale: ratings.NewScale(1, 5), k: 10}
	value, _, ok := predictor.Predict(4.8, []RatedNeighbor{
		{Id: 1, Similarity: 1, Rating: 5, Mean: 3},
	})
	assert.True(t, ok)
	assert.Equal(t, 5.0, value)
}

func TestCenteredNoSignal(t *testing.T) {
	predictor := Centered{scale: ratings.NewScale(1, 5), k: 10}
	_, _, ok := predictor.Predict(3, nil)
	assert.False(t, ok)
}

func TestConfidence(t *testing.T) {
	// full neighborhood of perfect matches saturates at 1
	full := make([]RatedNeighbor, 2)
	for i := range full {
		full[i] = RatedNeighbor{Id: int64(i), Similarity: 1, Rating: 3}
	}
	assert.Equal(t, 1.0, confidence(full, 2))
	// an overfull neighborhood does not push confidence past 1
	assert.Equal(t, 1.0, confidence(full, 1))
	// half-empty neighborhood halves the mean similarity
	assert.InDelta(t, 0.5, confidence(full[:1], 2), 1e-6)
	assert.Zero(t, confidence(nil, 2))
}
