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
	"math"

	"github.com/juju/errors"

	"github.com/sorrel-io/sorrel/ratings"
)

const (
	// WeightedName selects the plain weighted average predictor.
	WeightedName = "weighted"
	// CenteredName selects the mean-centered predictor.
	CenteredName = "centered"
)

// RatedNeighbor is one member of a resolved neighborhood: a similar entity
// together with its rating for the target item and its own mean rating.
type RatedNeighbor struct {
	Id         int64
	Similarity float32
	Rating     float64
	Mean       float64
}

// Prediction is a single rating estimate. Produced per request and never
// persisted.
type Prediction struct {
	UserId     int64
	ItemId     int64
	Value      float64
	Confidence float64
}

// Predictor turns a resolved neighborhood into a rating estimate. ok is false
// when the neighborhood carries no usable signal, which routes the caller to
// the fallback path rather than an error.
type Predictor interface {
	Name() string
	Predict(baseMean float64, neighbors []RatedNeighbor) (value, confidence float64, ok bool)
}

// NewPredictor creates a predictor from its configured name. k is the
// neighborhood size the confidence estimate is normalized against.
func NewPredictor(name string, scale ratings.Scale, k int) (Predictor, error) {
	switch name {
	case WeightedName:
		return Weighted{scale: scale, k: k}, nil
	case CenteredName:
		return Centered{scale: scale, k: k}, nil
	default:
		return nil, errors.NotSupportedf("predictor %q", name)
	}
}

// Weighted averages the neighbors' ratings weighted by similarity:
// sum(sim*rating) / sum(|sim|). The absolute denominator keeps negative
// correlations from flipping the weighting sign.
type Weighted struct {
	scale ratings.Scale
	k     int
}

func (Weighted) Name() string {
	return WeightedName
}

func (p Weighted) Predict(_ float64, neighbors []RatedNeighbor) (float64, float64, bool) {
	var numerator, denominator float64
	for _, neighbor := range neighbors {
		weight := float64(neighbor.Similarity)
		numerator += weight * neighbor.Rating
		denominator += math.Abs(weight)
	}
	if denominator == 0 {
		return 0, 0, false
	}
	return p.scale.Clamp(numerator / denominator), confidence(neighbors, p.k), true
}

// Centered predicts the deviation from each neighbor's own mean and adds the
// base mean back: baseMean + sum(sim*(rating-mean)) / sum(|sim|). Centering
// corrects for entities that rate systematically high or low, so averages of
// in-range ratings can land outside the scale and need the final clamp.
type Centered struct {
	scale ratings.Scale
	k     int
}

func (Centered) Name() string {
	return CenteredName
}

func (p Centered) Predict(baseMean float64, neighbors []RatedNeighbor) (float64, float64, bool) {
	var numerator, denominator float64
	for _, neighbor := range neighbors {
		weight := float64(neighbor.Similarity)
		numerator += weight * (neighbor.Rating - neighbor.Mean)
		denominator += math.Abs(weight)
	}
	if denominator == 0 {
		return 0, 0, false
	}
	return p.scale.Clamp(baseMean + numerator/denominator), confidence(neighbors, p.k), true
}

// confidence is the mean absolute similarity scaled by how full the
// neighborhood is relative to k, clamped to [0, 1].
func confidence(neighbors []RatedNeighbor, k int) float64 {
	if len(neighbors) == 0 || k <= 0 {
		return 0
	}
	var sum float64
	for _, neighbor := range neighbors {
		sum += math.Abs(float64(neighbor.Similarity))
	}
	c := sum / float64(len(neighbors)) * math.Min(1, float64(len(neighbors))/float64(k))
	return math.Min(1, math.Max(0, c))
}
