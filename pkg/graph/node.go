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

package graph

import (
	"slices"

	extv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	krocel "github.com/kubernetes-sigs/kro-sdk-go/pkg/cel"
	"github.com/kubernetes-sigs/kro-sdk-go/pkg/deploy/readiness"
	"github.com/kubernetes-sigs/kro-sdk-go/pkg/graph/variable"
)

// Well-known node/variable identifiers used in CEL expressions.
const (
	// SchemaVarName is the variable name for accessing instance spec in CEL.
	SchemaVarName = "schema"
	// ResourcesVarName is the root variable for the resources-qualified
	// reference form (resources.<id>.<path>). Both the bare-id form and the
	// resources-qualified form resolve to the same node.
	ResourcesVarName = "resources"
	// InstanceNodeID is the ID of the instance node (same as SchemaVarName since
	// that's how it's accessed in CEL expressions).
	InstanceNodeID = SchemaVarName
)

// often used field paths in resource templates.
const (
	// MetadataNamePath is the path to the resource name field.
	MetadataNamePath = "metadata.name"
	// MetadataNamespacePath is the path to the resource namespace field.
	MetadataNamespacePath = "metadata.namespace"
	// ReservedStatusFieldState is the status field reserved by the instance
	// controller for lifecycle state tracking.
	ReservedStatusFieldState = "state"
	// ReservedStatusFieldConditions is the status field reserved by the
	// instance controller for condition reporting.
	ReservedStatusFieldConditions = "conditions"
)

// NodeType identifies the kind of node in the resource graph.
type NodeType int

const (
	// NodeTypeResource is a regular managed resource.
	NodeTypeResource NodeType = iota
	// NodeTypeExternal is an externally managed resource referenced by the
	// graph but never applied by it.
	NodeTypeExternal
	// NodeTypeInstance is the instance node (ID: "schema").
	NodeTypeInstance
)

// String returns a human-readable string for the node type.
func (t NodeType) String() string {
	switch t {
	case NodeTypeResource:
		return "Resource"
	case NodeTypeExternal:
		return "External"
	case NodeTypeInstance:
		return "Instance"
	default:
		return "Unknown"
	}
}

// NodeMeta contains the parse-stage metadata about a node: what the author
// declared, before any API identity is resolved.
type NodeMeta struct {
	// ID is the unique identifier of the node within the graph.
	ID string
	// Index is the position of this node in the original resource list.
	// Used to preserve user-defined ordering when building the dependency graph.
	Index int
	// Type identifies the kind of node (Resource, External, Instance).
	Type NodeType
	// Template is the decoded resource template with CEL expressions intact.
	Template map[string]interface{}
}

// NodeIdentity extends NodeMeta with the resolved API identity of the node.
// It is produced by the resolver stage.
type NodeIdentity struct {
	NodeMeta
	// GVK is the GroupVersionKind declared by the template.
	GVK schema.GroupVersionKind
	// GVR is the GroupVersionResource this node's objects are served under.
	GVR schema.GroupVersionResource
	// Namespaced indicates if the resource is namespace-scoped.
	Namespaced bool
}

// IdentityFrom extracts the NodeIdentity from a resolved node.
func IdentityFrom(r *ResolvedNode) NodeIdentity {
	return NodeIdentity{
		NodeMeta:   r.NodeMeta,
		GVK:        r.GVK,
		GVR:        r.GVR,
		Namespaced: r.Namespaced,
	}
}

// InstanceMeta describes the instance node: the schema of the graph's own
// input spec and the status projection template.
type InstanceMeta struct {
	// Group/APIVersion/Kind identify the instance API served by the control loop.
	Group      string
	APIVersion string
	Kind       string
	// SpecSchema is the OpenAPI schema generated from the simple-schema spec.
	SpecSchema *extv1.JSONSchemaProps
	// CustomTypes holds the named simple-schema types the spec may reference.
	CustomTypes map[string]interface{}
	// StatusTemplate is the raw status projection with expressions intact.
	StatusTemplate map[string]interface{}
}

// Node is the immutable node spec produced by graph compilation.
// It contains the template, compiled variables, and conditions for a resource.
type Node struct {
	// NodeIdentity carries ID, declared template, and resolved API identity.
	NodeIdentity

	// Dependencies lists the IDs of graph nodes this node depends on.
	Dependencies []string

	// ExternalDependencies lists referenced resource IDs that are not part of
	// the graph. They never contribute dependency edges; their values are
	// resolved opportunistically at deploy time.
	ExternalDependencies []string

	// Template is the resource template with CEL expressions.
	// This is the same object as NodeMeta.Template, wrapped for clients
	// that operate on unstructured objects.
	Template *unstructured.Unstructured

	// Variables holds the CEL expression fields found in the template.
	Variables []*variable.ResourceField

	// IncludeWhen are compiled CEL expressions that must all evaluate to true
	// for this resource to be included. Empty means always include.
	IncludeWhen []*krocel.Expression

	// ReadyWhen are compiled CEL expressions that must all evaluate to true
	// for this resource to be considered ready.
	ReadyWhen []*krocel.Expression

	// Readiness is an optional bespoke readiness evaluator attached at build
	// time. When nil, and no ReadyWhen expressions are present, deploy engines
	// fall back to their kind-keyed registry.
	Readiness readiness.Evaluator
}

// DeepCopy creates a deep copy of the Node.
// Compiled programs and the readiness evaluator are immutable and shared;
// slices and template maps are cloned so runtimes never alias each other.
func (n *Node) DeepCopy() *Node {
	if n == nil {
		return nil
	}

	cp := &Node{
		NodeIdentity:         n.NodeIdentity,
		Dependencies:         slices.Clone(n.Dependencies),
		ExternalDependencies: slices.Clone(n.ExternalDependencies),
		IncludeWhen:          slices.Clone(n.IncludeWhen),
		ReadyWhen:            slices.Clone(n.ReadyWhen),
		Readiness:            n.Readiness,
	}

	if n.Template != nil {
		cp.Template = n.Template.DeepCopy()
		cp.NodeMeta.Template = cp.Template.Object
	}

	if n.Variables != nil {
		cp.Variables = make([]*variable.ResourceField, len(n.Variables))
		for i, v := range n.Variables {
			copyVar := *v
			copyVar.Expressions = slices.Clone(v.Expressions)
			cp.Variables[i] = &copyVar
		}
	}

	return cp
}
