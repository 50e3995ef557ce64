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

import "time"

// EventType discriminates progress events emitted during a deployment.
type EventType string

const (
	// EventStarted is emitted once, before the first level is dispatched.
	EventStarted EventType = "started"
	// EventProgress is emitted when a dependency level begins.
	EventProgress EventType = "progress"
	// EventResourceStatus carries a non-ready readiness verdict for one
	// resource. It repeats on every poll until the resource is ready.
	EventResourceStatus EventType = "resource-status"
	// EventResourceReady is emitted once per resource that becomes ready.
	EventResourceReady EventType = "resource-ready"
	// EventResourceWarning carries a recoverable problem: a transient
	// apply failure about to be retried, an evaluator invocation error,
	// or a resource skipped because of its dependencies.
	EventResourceWarning EventType = "resource-warning"
	// EventCompleted terminates the stream when at least one resource
	// became ready.
	EventCompleted EventType = "completed"
	// EventFailed terminates the stream when nothing became ready.
	EventFailed EventType = "failed"
	// EventRollback is emitted per resource deleted during rollback.
	EventRollback EventType = "rollback"
)

// Event is one entry in a deployment's progress stream. Exactly one
// terminal event (completed or failed) closes every stream.
type Event struct {
	Type EventType

	// ResourceID names the resource the event concerns; empty for
	// deployment-scoped events.
	ResourceID string

	// Level is the dependency level being processed, when relevant.
	Level int

	Message string

	// Details carries verdict details for resource-status events.
	Details map[string]interface{}

	Time time.Time
}

// EventSink receives progress events. Sinks must not block: they are
// invoked inline, serialized across the deployment's goroutines.
type EventSink func(Event)
