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
	"errors"
	"fmt"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// ApplyError wraps a failure to create or patch a resource. Transient
// failures are retried per the deployment's retry policy; permanent
// ones mark the resource Failed immediately.
type ApplyError struct {
	ResourceID string
	// StatusCode is the HTTP status returned by the API server, or 0
	// for transport-level failures.
	StatusCode int
	Transient  bool
	Err        error
}

func (e *ApplyError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("applying %q: %s failure: %v", e.ResourceID, kind, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// ReadinessTimeoutError indicates the readiness poll loop exceeded its
// bound. LastMessage carries the final verdict observed before giving up.
type ReadinessTimeoutError struct {
	ResourceID  string
	Timeout     time.Duration
	LastMessage string
}

func (e *ReadinessTimeoutError) Error() string {
	if e.LastMessage == "" {
		return fmt.Sprintf("resource %q not ready after %s", e.ResourceID, e.Timeout)
	}
	return fmt.Sprintf("resource %q not ready after %s: %s", e.ResourceID, e.Timeout, e.LastMessage)
}

// DependencyFailedError marks a resource that was never attempted
// because a resource it transitively depends on failed.
type DependencyFailedError struct {
	ResourceID string
	// Dependency is the failed resource responsible.
	Dependency string
}

func (e *DependencyFailedError) Error() string {
	return fmt.Sprintf("resource %q skipped: dependency %q failed", e.ResourceID, e.Dependency)
}

// ResolutionError indicates an embedded reference could not be
// substituted with a live value before apply. Unresolvable references
// are hard errors, never silent nulls.
type ResolutionError struct {
	ResourceID string
	Expression string
	Err        error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resource %q: resolving %q: %v", e.ResourceID, e.Expression, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// RollbackError aggregates deletion failures from a best-effort
// rollback. It is reported in the rollback sub-result only and never
// propagates past the deploy call.
type RollbackError struct {
	Errs []error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("rollback completed with %d failures: %v", len(e.Errs), errors.Join(e.Errs...))
}

// classifyApplyErr decides whether an apply failure is worth retrying.
// Transport errors and throttling/server-side codes are transient;
// anything the API server rejected as a client error is permanent.
func classifyApplyErr(resourceID string, err error) *ApplyError {
	code := 0
	var status apierrors.APIStatus
	if errors.As(err, &status) {
		code = int(status.Status().Code)
	}
	transient := code == 0 || code == 429 || code >= 500
	return &ApplyError{ResourceID: resourceID, StatusCode: code, Transient: transient, Err: err}
}

// IsTransient reports whether err is a retriable apply failure.
func IsTransient(err error) bool {
	var ae *ApplyError
	return errors.As(err, &ae) && ae.Transient
}
