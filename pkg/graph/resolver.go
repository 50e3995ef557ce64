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
	"fmt"
	"strings"

	"github.com/gobuffalo/flect"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/util/sets"

	kmetadata "github.com/kubernetes-sigs/kro-sdk-go/pkg/metadata"
)

// ResolvedNode is a parsed node enriched with API identity.
type ResolvedNode struct {
	ParsedNode
	GVK        schema.GroupVersionKind
	GVR        schema.GroupVersionResource
	Namespaced bool
}

// ResolvedRGD is the resolver-stage output consumed by the linker.
type ResolvedRGD struct {
	Instance *ParsedInstance
	Nodes    []*ResolvedNode
}

// clusterScopedKinds lists the built-in kinds the pluralization fallback
// treats as cluster-scoped. A RESTMapper, when injected, is authoritative.
var clusterScopedKinds = sets.NewString(
	"Namespace", "Node", "PersistentVolume", "StorageClass",
	"ClusterRole", "ClusterRoleBinding", "CustomResourceDefinition",
	"PriorityClass", "IngressClass", "RuntimeClass",
	"ValidatingWebhookConfiguration", "MutatingWebhookConfiguration",
	"APIService", "CSIDriver", "CSINode", "VolumeAttachment",
)

// resolver maps each node's declared GVK to a GVR and scope. When a
// RESTMapper is available it is consulted first; otherwise identity is
// derived offline by pluralizing the kind. The offline path keeps graph
// compilation cluster-independent, which is all the control-loop strategy
// needs; Direct deploys against exotic APIs should inject a mapper.
type resolver struct {
	restMapper meta.RESTMapper
}

func newResolver(rm meta.RESTMapper) *resolver {
	return &resolver{restMapper: rm}
}

// Resolve takes ParsedRGD, enriches each resource with GVK/GVR/scope, returns ResolvedRGD.
func (r *resolver) Resolve(parsed *ParsedRGD) (*ResolvedRGD, error) {
	resolved := make([]*ResolvedNode, 0, len(parsed.Nodes))
	for _, pn := range parsed.Nodes {
		rn, err := r.resolveNode(pn)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, rn)
	}
	return &ResolvedRGD{
		Instance: parsed.Instance,
		Nodes:    resolved,
	}, nil
}

func (r *resolver) resolveNode(pr *ParsedNode) (*ResolvedNode, error) {
	gvk, err := kmetadata.ExtractGVKFromUnstructured(pr.Template)
	if err != nil {
		return nil, terminalf("resolver", "resource %q: extract GVK: %v", pr.ID, err)
	}

	gvr, namespaced, err := r.mapGVK(gvk)
	if err != nil {
		return nil, retriable("resolver", fmt.Errorf("resource %q: REST mapping for %s: %w", pr.ID, gvk, err))
	}

	// Scope-dependent validation
	if !namespaced {
		if _, found, _ := unstructured.NestedFieldNoCopy(pr.Template, "metadata", "namespace"); found {
			return nil, terminalf("resolver", "resource %q: cluster-scoped and must not set metadata.namespace", pr.ID)
		}
	}

	return &ResolvedNode{
		ParsedNode: *pr,
		GVK:        gvk,
		GVR:        gvr,
		Namespaced: namespaced,
	}, nil
}

func (r *resolver) mapGVK(gvk schema.GroupVersionKind) (schema.GroupVersionResource, bool, error) {
	if r.restMapper != nil {
		mapping, err := r.restMapper.RESTMapping(gvk.GroupKind(), gvk.Version)
		if err != nil {
			return schema.GroupVersionResource{}, false, err
		}
		return mapping.Resource, mapping.Scope.Name() == meta.RESTScopeNameNamespace, nil
	}
	return PluralizeGVK(gvk), !clusterScopedKinds.Has(gvk.Kind), nil
}

// PluralizeGVK derives the GroupVersionResource for a kind by lowercasing
// and pluralizing it, the same convention CRD registration uses.
func PluralizeGVK(gvk schema.GroupVersionKind) schema.GroupVersionResource {
	return schema.GroupVersionResource{
		Group:    gvk.Group,
		Version:  gvk.Version,
		Resource: flect.Pluralize(strings.ToLower(gvk.Kind)),
	}
}
