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

// ResourceState is the lifecycle state of one resource in a deployment.
type ResourceState string

const (
	StatePending  ResourceState = "Pending"
	StateApplying ResourceState = "Applying"
	StateApplied  ResourceState = "Applied"
	StateReady    ResourceState = "Ready"
	StateFailed   ResourceState = "Failed"
	// StateSkipped covers resources excluded by their includeWhen
	// conditions and resources never attempted because a dependency
	// failed.
	StateSkipped ResourceState = "Skipped"
)

// DeployedResource is the per-resource outcome of a deployment.
type DeployedResource struct {
	ID    string
	State ResourceState
	Level int

	// Object is the live object as last observed, nil when the
	// resource was never applied.
	Object *unstructured.Unstructured

	// Err is the terminal error for Failed and dependency-skipped
	// resources.
	Err error
}

// Status is the overall outcome of a deployment.
type Status string

const (
	// StatusSuccess means every non-skipped resource reached its
	// terminal success state.
	StatusSuccess Status = "success"
	// StatusPartial means some resources succeeded and some did not,
	// including cancellation mid-deploy.
	StatusPartial Status = "partial"
	// StatusFailed means no resource reached its success state.
	StatusFailed Status = "failed"
)

// ResourceError is one accumulated failure, stamped with the phase in
// which it occurred.
type ResourceError struct {
	ResourceID string
	// Phase is the resource state during which the error occurred.
	Phase ResourceState
	Time  time.Time
	Err   error
}

// DeploymentResult is the outcome of a Deploy call.
type DeploymentResult struct {
	// DeploymentID uniquely identifies this deployment run. Applied
	// objects carry it as a label.
	DeploymentID string

	Status   Status
	Duration time.Duration

	// Resources maps resource id to its outcome.
	Resources map[string]*DeployedResource

	// InstanceStatus is the evaluated status projection, when the graph
	// carries one and enough resources became ready to evaluate it.
	InstanceStatus map[string]interface{}

	// Errors accumulates every failure observed during the run.
	Errors []ResourceError

	// Rollback is the sub-result of the best-effort rollback, when one
	// ran.
	Rollback *RollbackResult
}

// RollbackResult reports the outcome of reverse-order deletion.
type RollbackResult struct {
	// Deleted lists resource ids whose objects were removed.
	Deleted []string
	// Skipped lists resource ids whose live objects were left alone
	// because this deployment does not own them.
	Skipped []string
	Err     *RollbackError
}
