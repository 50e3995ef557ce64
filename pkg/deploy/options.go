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
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// RetryPolicy bounds retries of transient apply failures. Delays grow
// geometrically from InitialDelay by BackoffMultiplier, capped at
// MaxDelay.
type RetryPolicy struct {
	MaxRetries        int
	InitialDelay      time.Duration
	BackoffMultiplier float64
	MaxDelay          time.Duration
}

// DelayFor returns the backoff delay preceding the given retry attempt,
// counted from 1.
func (p RetryPolicy) DelayFor(attempt int) time.Duration {
	d := p.InitialDelay
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * p.BackoffMultiplier)
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Options configures one Deploy call. The zero value is usable.
type Options struct {
	// Namespace is the default namespace for namespaced objects whose
	// templates do not set one.
	Namespace string

	// SchemaValues parameterizes the graph: expressions over the
	// instance schema read from this map (keyed the way the schema
	// spec lays fields out, e.g. SchemaValues["spec"]["replicas"]).
	SchemaValues map[string]interface{}

	// ExternalValues seeds live objects for the graph's external
	// references, keyed by the referenced id. External references are
	// resolved best-effort: ids absent from this map fail only the
	// expressions that read them.
	ExternalValues map[string]*unstructured.Unstructured

	// NoWait disables the readiness loop. Resources are reported
	// Applied with no verdict and dependents proceed once their
	// dependencies are Applied.
	NoWait bool

	// Timeout bounds the whole deployment. Zero means no bound beyond
	// the caller's context.
	Timeout time.Duration

	// ReadinessTimeout bounds the per-resource readiness loop.
	ReadinessTimeout time.Duration

	// PollInterval is the delay between readiness polls.
	PollInterval time.Duration

	Retry RetryPolicy

	// ContinueOnFailure lets branches that do not transitively depend
	// on a failed resource keep deploying. Off, no later level starts
	// once a failure is recorded.
	ContinueOnFailure bool

	// RollbackOnFailure deletes applied resources in reverse level
	// order when the deployment does not succeed. Best-effort: its
	// outcome is reported in the result, never as the call's error.
	RollbackOnFailure bool

	// Instance is an instance object to create alongside the emitted
	// definition. Used by the control-loop engine only; the direct
	// engine parameterizes through SchemaValues instead.
	Instance *unstructured.Unstructured

	// OnEvent receives the progress event stream.
	OnEvent EventSink
}

func (o *Options) applyDefaults() {
	if o.ReadinessTimeout <= 0 {
		o.ReadinessTimeout = 5 * time.Minute
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.Retry.MaxRetries <= 0 {
		o.Retry.MaxRetries = 5
	}
	if o.Retry.InitialDelay <= 0 {
		o.Retry.InitialDelay = 500 * time.Millisecond
	}
	if o.Retry.BackoffMultiplier <= 1 {
		o.Retry.BackoffMultiplier = 2
	}
	if o.Retry.MaxDelay <= 0 {
		o.Retry.MaxDelay = 30 * time.Second
	}
}
