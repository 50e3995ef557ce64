// Copyright 2025 The Kubernetes Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package deploy

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	applies       *prometheus.CounterVec
	retries       prometheus.Counter
	readinessWait prometheus.Histogram
	duration      prometheus.Histogram
}

// newMetrics registers the engine's instruments on reg. A nil reg
// yields metrics that record into unregistered collectors.
func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		applies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kro_sdk",
			Subsystem: "deploy",
			Name:      "applies_total",
			Help:      "Apply attempts partitioned by outcome.",
		}, []string{"result"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kro_sdk",
			Subsystem: "deploy",
			Name:      "apply_retries_total",
			Help:      "Apply attempts retried after a transient failure.",
		}),
		readinessWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kro_sdk",
			Subsystem: "deploy",
			Name:      "readiness_wait_seconds",
			Help:      "Time spent waiting for a resource to become ready.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kro_sdk",
			Subsystem: "deploy",
			Name:      "duration_seconds",
			Help:      "End-to-end deployment duration.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.applies, m.retries, m.readinessWait, m.duration)
	}
	return m
}
