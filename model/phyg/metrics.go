// Copyright 2024 phyg Project Authors
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

package phyg

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FitEpochsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "phyg",
		Subsystem: "fit",
		Name:      "epochs_total",
	})
	FitPassSecondsVec = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "phyg",
		Subsystem: "fit",
		Name:      "pass_seconds",
	}, []string{"pass"})
	EdgeObjectiveValue = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "phyg",
		Subsystem: "fit",
		Name:      "edge_objective",
	})
	admmRounds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "phyg",
		Subsystem: "fit",
		Name:      "admm_rounds",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
	}, []string{"pass"})
)
