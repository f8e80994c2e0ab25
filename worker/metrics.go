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

package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const LabelStep = "step"

var (
	UpdateUserRecommendTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sorrel",
		Subsystem: "worker",
		Name:      "update_user_recommend_total",
	})
	RefreshStepSecondsVec = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sorrel",
		Subsystem: "worker",
		Name:      "refresh_step_seconds",
	}, []string{LabelStep})
	RefreshTotalSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sorrel",
		Subsystem: "worker",
		Name:      "refresh_total_seconds",
	})
)
