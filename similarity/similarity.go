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

// Package similarity scores pairs of sparse rating vectors over their
// co-rated support. Metrics are computed lazily per query; precomputing a
// full matrix is the batch worker's business.
package similarity

import (
	"github.com/chewxy/math32"
	"github.com/juju/errors"

	"github.com/sorrel-io/sorrel/ratings"
)

const (
	// CosineName selects cosine similarity.
	CosineName = "cosine"
	// PearsonName selects Pearson correlation.
	PearsonName = "pearson"

	// varianceEpsilon treats centered squared sums below this bound as zero
	// variance under float32 rounding.
	varianceEpsilon = 1e-6
)

// Score is a similarity value in [-1, 1] together with the size of the
// co-rated support it was computed from.
type Score struct {
	Value   float32
	Support int
}

// Metric computes the similarity of two sparse vectors restricted to their
// common support. The second return is false when the vectors share nothing,
// which is a normal outcome rather than an error.
type Metric interface {
	Name() string
	Score(a, b ratings.Vector) (Score, bool)
}

// New creates a metric from its configured name.
func New(name string) (Metric, error) {
	switch name {
	case CosineName:
		return Cosine{}, nil
	case PearsonName:
		return Pearson{}, nil
	default:
		return nil, errors.NotSupportedf("similarity %q", name)
	}
}

// Less reports whether candidate A outranks candidate B in a neighborhood.
// Ties on the score fall back to support size, then to the smaller id, so
// neighborhoods come out in a reproducible order.
func Less(idA, idB int64, a, b Score) bool {
	if a.Value != b.Value {
		return a.Value > b.Value
	}
	if a.Support != b.Support {
		return a.Support > b.Support
	}
	return idA < idB
}

// Cosine is dot(a,b) / (|a|*|b|) over the co-rated subset.
type Cosine struct{}

func (Cosine) Name() string {
	return CosineName
}

func (Cosine) Score(a, b ratings.Vector) (Score, bool) {
	var dot, normA, normB float32
	support := 0
	forIntersection(a, b, func(x, y float64) {
		fx, fy := float32(x), float32(y)
		dot += fx * fy
		normA += fx * fx
		normB += fy * fy
		support++
	})
	if support == 0 {
		return Score{}, false
	}
	if normA == 0 || normB == 0 {
		// only possible with implicit zero ratings
		return Score{Support: support}, true
	}
	return Score{Value: clamp(dot / (math32.Sqrt(normA) * math32.Sqrt(normB))), Support: support}, true
}

// Pearson mean-centers both sides over the co-rated subset before the
// cosine-style correlation, correcting for users who rate systematically
// high or low.
type Pearson struct{}

func (Pearson) Name() string {
	return PearsonName
}

func (Pearson) Score(a, b ratings.Vector) (Score, bool) {
	var sumA, sumB float32
	support := 0
	forIntersection(a, b, func(x, y float64) {
		sumA += float32(x)
		sumB += float32(y)
		support++
	})
	if support == 0 {
		return Score{}, false
	}
	meanA := sumA / float32(support)
	meanB := sumB / float32(support)
	var dot, varA, varB float32
	forIntersection(a, b, func(x, y float64) {
		cx := float32(x) - meanA
		cy := float32(y) - meanB
		dot += cx * cy
		varA += cx * cx
		varB += cy * cy
	})
	if varA < varianceEpsilon || varB < varianceEpsilon {
		// constant ratings on either side carry no correlation signal
		return Score{Support: support}, true
	}
	return Score{Value: clamp(dot / (math32.Sqrt(varA) * math32.Sqrt(varB))), Support: support}, true
}

// forIntersection visits the co-rated subset of two vectors with one merge
// pass over their sorted indices.
func forIntersection(a, b ratings.Vector, f func(x, y float64)) {
	i, j := 0, 0
	for i < len(a.Indices) && j < len(b.Indices) {
		switch {
		case a.Indices[i] == b.Indices[j]:
			f(a.Values[i], b.Values[j])
			i++
			j++
		case a.Indices[i] < b.Indices[j]:
			i++
		default:
			j++
		}
	}
}

func clamp(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
