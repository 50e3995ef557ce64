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
	"k8s.io/apimachinery/pkg/runtime"
)

// ResourceGraphDefinitionSpec defines the desired state of ResourceGraphDefinition.
// It contains the schema for instances and the list of Kubernetes resources that
// make up the graph.
type ResourceGraphDefinitionSpec struct {
	// Schema defines the structure of instances created from this ResourceGraphDefinition.
	//
	// +kubebuilder:validation:Required
	Schema *Schema `json:"schema,omitempty"`
	// Resources is the list of Kubernetes resources that will be created and managed
	// for each instance. Resources can reference each other using CEL expressions,
	// creating a dependency graph that determines creation order.
	//
	// +kubebuilder:validation:Optional
	Resources []*Resource `json:"resources,omitempty"`
	// Functions is a list of custom CEL functions that can be called from
	// expressions anywhere in this ResourceGraphDefinition.
	//
	// +kubebuilder:validation:Optional
	Functions []FunctionDefinition `json:"functions,omitempty"`
}

// Schema defines the structure of instances created from a ResourceGraphDefinition.
// It specifies the API group, version, and kind for the generated CRD, along with
// the spec schema and the status projection expressions.
type Schema struct {
	// Kind is the name of the custom resource type that will be created.
	//
	// +kubebuilder:validation:Required
	// +kubebuilder:validation:Pattern=`^[A-Z][a-zA-Z0-9]{0,62}$`
	Kind string `json:"kind,omitempty"`
	// APIVersion is the version identifier for the generated CRD.
	//
	// +kubebuilder:validation:Required
	// +kubebuilder:validation:Pattern=`^v[0-9]+(alpha[0-9]+|beta[0-9]+)?$`
	APIVersion string `json:"apiVersion,omitempty"`
	// Group is the API group for the generated CRD. Defaults to "kro.run".
	//
	// +kubebuilder:validation:Optional
	// +kubebuilder:default="kro.run"
	Group string `json:"group,omitempty"`
	// Spec defines the schema for the instance's spec section.
	Spec runtime.RawExtension `json:"spec,omitempty"`
	// Types defines reusable named types (in simple schema notation) that the
	// spec section can reference.
	//
	// +kubebuilder:validation:Optional
	Types runtime.RawExtension `json:"types,omitempty"`
	// Status defines the status projection for instances. Status fields use CEL
	// expressions (${...} syntax) to project values from underlying resources.
	// Example: {"endpoint": "${resources.service.status.loadBalancer.ingress[0].hostname}"}
	Status runtime.RawExtension `json:"status,omitempty"`
}

// Resource represents a Kubernetes resource that is part of the ResourceGraphDefinition.
// Resources can depend on each other through CEL expressions, creating a dependency
// graph that the control loop reconciles in order.
type Resource struct {
	// ID is a unique identifier for this resource within the ResourceGraphDefinition.
	// It is used to reference this resource in CEL expressions from other resources.
	//
	// +kubebuilder:validation:Required
	ID string `json:"id,omitempty"`
	// Template is the Kubernetes resource manifest to create. It can contain CEL
	// expressions (using ${...} syntax) that reference other resources.
	//
	// +kubebuilder:validation:Required
	Template runtime.RawExtension `json:"template,omitempty"`
	// ReadyWhen is a list of CEL expressions that determine when this resource is
	// considered ready. All expressions must evaluate to true.
	//
	// +kubebuilder:validation:Optional
	ReadyWhen []string `json:"readyWhen,omitempty"`
	// IncludeWhen is a list of CEL expressions that determine whether this resource
	// should be created.
	//
	// +kubebuilder:validation:Optional
	IncludeWhen []string `json:"includeWhen,omitempty"`
}

// ResourceGraphDefinitionStatus defines the observed state of ResourceGraphDefinition.
type ResourceGraphDefinitionStatus struct {
	// State is the state of the resource graph definition.
	State ResourceGraphDefinitionState `json:"state,omitempty"`
	// TopologicalOrder is the topological order of the resource graph definition.
	TopologicalOrder []string `json:"topologicalOrder,omitempty"`
	// Conditions represent the latest available observations of an object's state.
	Conditions []Condition `json:"conditions,omitempty"`
}

// ResourceGraphDefinitionState defines the lifecycle state of a ResourceGraphDefinition
// as reported by the control loop.
type ResourceGraphDefinitionState string

const (
	// ResourceGraphDefinitionStateActive indicates the control loop accepted the
	// definition and is reconciling instances.
	ResourceGraphDefinitionStateActive ResourceGraphDefinitionState = "Active"
	// ResourceGraphDefinitionStateInactive indicates the definition failed
	// processing and is not being reconciled.
	ResourceGraphDefinitionStateInactive ResourceGraphDefinitionState = "Inactive"
)

// ResourceGraphDefinition is the schema for the control-loop deployment target.
// The SDK emits this object when delegating a graph to the kro controller.
type ResourceGraphDefinition struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   ResourceGraphDefinitionSpec   `json:"spec,omitempty"`
	Status ResourceGraphDefinitionStatus `json:"status,omitempty"`
}

// ResourceGraphDefinitionList contains a list of ResourceGraphDefinition.
type ResourceGraphDefinitionList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []ResourceGraphDefinition `json:"items"`
}
