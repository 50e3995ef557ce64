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

package metadata

import metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

// Sometimes we need to search for resources that belong to a given deploy
// run or graph node. This is helpful for garbage collection of resources
// that are no longer needed, or got orphaned due to graph evolutions.

// NewOwnedSelector returns a selector matching every resource applied by
// the SDK, regardless of which deploy run created it.
func NewOwnedSelector() metav1.LabelSelector {
	return metav1.LabelSelector{
		MatchLabels: map[string]string{
			OwnedLabel: "true",
		},
	}
}

// NewDeploymentSelector returns a selector matching resources applied by
// a single deploy run.
func NewDeploymentSelector(deploymentID string) metav1.LabelSelector {
	return metav1.LabelSelector{
		MatchLabels: map[string]string{
			DeploymentIDLabel: deploymentID,
		},
	}
}

// NewNodeSelector returns a selector matching the resources a single
// graph node produced within a deploy run.
func NewNodeSelector(deploymentID, nodeID string) metav1.LabelSelector {
	return metav1.LabelSelector{
		MatchLabels: map[string]string{
			DeploymentIDLabel: deploymentID,
			NodeIDLabel:       nodeLabelValue(nodeID),
		},
	}
}
