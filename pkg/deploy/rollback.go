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
	"context"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/kubernetes-sigs/kro-sdk-go/pkg/metadata"
)

// rollback deletes every object this run applied, in reverse level
// order. Objects whose live copy no longer carries this run's
// deployment id are left alone. Failures accumulate into the
// sub-result and never abort the remaining deletions.
func (r *engineRun) rollback(ctx context.Context) *RollbackResult {
	res := &RollbackResult{}
	var errs []error

	for i := len(r.graph.Levels) - 1; i >= 0; i-- {
		for _, id := range r.graph.Levels[i] {
			st := r.states[id]
			if st.Object == nil {
				continue
			}
			switch st.State {
			case StateApplied, StateReady, StateFailed:
			default:
				continue
			}

			node := r.graph.Nodes[id]
			client := r.clientFor(node, st.Object)
			name := st.Object.GetName()

			live, err := client.Get(ctx, name, metav1.GetOptions{})
			if apierrors.IsNotFound(err) {
				continue
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("rollback %q: %w", id, err))
				continue
			}
			if live.GetLabels()[metadata.DeploymentIDLabel] != r.id {
				res.Skipped = append(res.Skipped, id)
				r.emit(Event{Type: EventRollback, ResourceID: id,
					Message: "kept: live object is not owned by this deployment"})
				continue
			}

			if err := client.Delete(ctx, name, metav1.DeleteOptions{}); err != nil && !apierrors.IsNotFound(err) {
				errs = append(errs, fmt.Errorf("rollback %q: %w", id, err))
				continue
			}
			res.Deleted = append(res.Deleted, id)
			r.emit(Event{Type: EventRollback, ResourceID: id, Message: fmt.Sprintf("deleted %s", name)})
		}
	}

	if len(errs) > 0 {
		res.Err = &RollbackError{Errs: errs}
	}
	return res
}
