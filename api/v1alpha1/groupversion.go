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

// Package v1alpha1 contains the kro.run/v1alpha1 API types used when a graph
// is deployed through the kro control loop.
package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

const (
	// KRODomainName is the domain kro claims for API groups and label keys.
	KRODomainName = "kro.run"
	// KroGroup is the API group served by the kro controller.
	KroGroup = KRODomainName
	// KroInstanceGroup is the default API group for instance CRDs generated
	// from a ResourceGraphDefinition schema.
	KroInstanceGroup = "kro.run"
)

var (
	// GroupVersion is the group version used to register these objects.
	GroupVersion = schema.GroupVersion{Group: KroGroup, Version: "v1alpha1"}

	// SchemeBuilder collects functions that add the types in this group
	// version to a scheme.
	SchemeBuilder = runtime.NewSchemeBuilder(addKnownTypes)

	// AddToScheme adds the types in this group version to the given scheme.
	AddToScheme = SchemeBuilder.AddToScheme
)

// ResourceGraphDefinitionGVR is the GroupVersionResource for
// ResourceGraphDefinition objects, used with dynamic clients.
var ResourceGraphDefinitionGVR = schema.GroupVersionResource{
	Group:    KroGroup,
	Version:  "v1alpha1",
	Resource: "resourcegraphdefinitions",
}

func addKnownTypes(scheme *runtime.Scheme) error {
	scheme.AddKnownTypes(GroupVersion,
		&ResourceGraphDefinition{},
		&ResourceGraphDefinitionList{},
	)
	metav1.AddToGroupVersion(scheme, GroupVersion)
	return nil
}

// DeepCopyObject implements runtime.Object.
func (in *ResourceGraphDefinition) DeepCopyObject() runtime.Object {
	if in == nil {
		return nil
	}
	out := new(ResourceGraphDefinition)
	out.TypeMeta = in.TypeMeta
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	in.Spec.DeepCopyInto(&out.Spec)
	in.Status.DeepCopyInto(&out.Status)
	return out
}

// DeepCopy returns a deep copy of the definition.
func (in *ResourceGraphDefinition) DeepCopy() *ResourceGraphDefinition {
	if in == nil {
		return nil
	}
	return in.DeepCopyObject().(*ResourceGraphDefinition)
}

// DeepCopyObject implements runtime.Object.
func (in *ResourceGraphDefinitionList) DeepCopyObject() runtime.Object {
	if in == nil {
		return nil
	}
	out := new(ResourceGraphDefinitionList)
	out.TypeMeta = in.TypeMeta
	in.ListMeta.DeepCopyInto(&out.ListMeta)
	if in.Items != nil {
		out.Items = make([]ResourceGraphDefinition, len(in.Items))
		for i := range in.Items {
			item := in.Items[i].DeepCopyObject().(*ResourceGraphDefinition)
			out.Items[i] = *item
		}
	}
	return out
}

// DeepCopy returns a deep copy of the schema.
func (in *Schema) DeepCopy() *Schema {
	if in == nil {
		return nil
	}
	out := new(Schema)
	*out = *in
	in.Spec.DeepCopyInto(&out.Spec)
	in.Types.DeepCopyInto(&out.Types)
	in.Status.DeepCopyInto(&out.Status)
	return out
}

// DeepCopyInto copies the receiver into out.
func (in *ResourceGraphDefinitionSpec) DeepCopyInto(out *ResourceGraphDefinitionSpec) {
	*out = *in
	if in.Schema != nil {
		out.Schema = new(Schema)
		*out.Schema = *in.Schema
		in.Schema.Spec.DeepCopyInto(&out.Schema.Spec)
		in.Schema.Types.DeepCopyInto(&out.Schema.Types)
		in.Schema.Status.DeepCopyInto(&out.Schema.Status)
	}
	if in.Functions != nil {
		out.Functions = make([]FunctionDefinition, len(in.Functions))
		for i, fn := range in.Functions {
			cp := fn
			cp.Inputs = append([]FunctionInput(nil), fn.Inputs...)
			out.Functions[i] = cp
		}
	}
	if in.Resources != nil {
		out.Resources = make([]*Resource, len(in.Resources))
		for i, r := range in.Resources {
			if r == nil {
				continue
			}
			cp := new(Resource)
			cp.ID = r.ID
			r.Template.DeepCopyInto(&cp.Template)
			cp.ReadyWhen = append([]string(nil), r.ReadyWhen...)
			cp.IncludeWhen = append([]string(nil), r.IncludeWhen...)
			out.Resources[i] = cp
		}
	}
}

// DeepCopyInto copies the receiver into out.
func (in *ResourceGraphDefinitionStatus) DeepCopyInto(out *ResourceGraphDefinitionStatus) {
	*out = *in
	out.TopologicalOrder = append([]string(nil), in.TopologicalOrder...)
	if in.Conditions != nil {
		out.Conditions = make([]Condition, len(in.Conditions))
		copy(out.Conditions, in.Conditions)
	}
}
