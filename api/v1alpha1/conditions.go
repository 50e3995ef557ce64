// Copyright 2025 The Kubernetes Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License"). You may
// not use this file except in compliance with the License. A copy of the
// License is located at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// or in the "license" file accompanying this file. This file is distributed
// on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either
// express or implied. See the License for the specific language governing
// permissions and limitations under the License.

package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// ConditionType is a type of condition for a resource.
type ConditionType string

const (
	// ResourceGraphDefinitionConditionTypeGraphVerified indicates the state of the
	// directed acyclic graph (DAG) that the control loop uses to manage the
	// resources in a ResourceGraphDefinition.
	ResourceGraphDefinitionConditionTypeGraphVerified ConditionType = "GraphVerified"
	// ResourceGraphDefinitionConditionTypeCustomResourceDefinitionSynced indicates
	// the state of the CustomResourceDefinition (CRD) generated for a
	// ResourceGraphDefinition.
	ResourceGraphDefinitionConditionTypeCustomResourceDefinitionSynced ConditionType = "CustomResourceDefinitionSynced"
	// ResourceGraphDefinitionConditionTypeReconcilerReady indicates the state of
	// the reconciler spun up for the ResourceGraphDefinition.
	ResourceGraphDefinitionConditionTypeReconcilerReady ConditionType = "ReconcilerReady"
)

// Condition is the common struct used by all conditions on a
// ResourceGraphDefinition.
type Condition struct {
	// Type of the condition.
	Type string `json:"type"`
	// Status of the condition, one of True, False, Unknown.
	Status metav1.ConditionStatus `json:"status"`
	// The generation observed by the controller.
	// +optional
	ObservedGeneration int64 `json:"observedGeneration,omitempty"`
	// Last time the condition transitioned from one status to another.
	// +optional
	LastTransitionTime metav1.Time `json:"lastTransitionTime,omitempty"`
	// The reason for the condition's last transition.
	// +optional
	Reason string `json:"reason,omitempty"`
	// A human readable message indicating details about the transition.
	// +optional
	Message string `json:"message,omitempty"`
}

// NewCondition returns a new Condition instance.
func NewCondition(t ConditionType, og int64, status metav1.ConditionStatus, reason, message string) Condition {
	return Condition{
		Type:               string(t),
		ObservedGeneration: og,
		Status:             status,
		LastTransitionTime: metav1.Time{Time: metav1.Now().Time},
		Reason:             reason,
		Message:            message,
	}
}
