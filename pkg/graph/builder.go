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
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"

	"github.com/kubernetes-sigs/kro-sdk-go/api/v1alpha1"
	"github.com/kubernetes-sigs/kro-sdk-go/pkg/deploy/readiness"
	"github.com/kubernetes-sigs/kro-sdk-go/pkg/graph/expr"
)

// Resource is one node handed to the Builder: a manifest plus its
// readiness and inclusion conditions.
//
// Object may be a map[string]interface{}, an *unstructured.Unstructured,
// or a pointer to a typed Kubernetes object. Field references (expr
// nodes or their serialized markers) are accepted anywhere inside map
// and unstructured templates; typed objects must be reference-free
// because their fields cannot hold expression placeholders.
type Resource struct {
	// ID names the resource inside the graph. Other resources address
	// it by this id in their references.
	ID string

	// Object is the manifest template.
	Object interface{}

	// ReadyWhen are boolean expressions over this resource's own live
	// state. All must hold for the resource to count as ready.
	ReadyWhen []expr.Node

	// IncludeWhen are boolean expressions over the instance schema that
	// gate whether the resource is created at all.
	IncludeWhen []expr.Node

	// Readiness optionally overrides kind-based readiness evaluation
	// for this resource during direct deployment.
	Readiness readiness.Evaluator
}

// BuilderOptions configures a Builder. The zero value is usable.
type BuilderOptions struct {
	// Logger receives construction progress and advisory diagnostics.
	Logger logr.Logger

	// Name is the name given to the assembled ResourceGraphDefinition.
	// Defaults to the lowercased schema kind, or "resource-graph" when
	// no schema is set.
	Name string

	// Schema describes the instance custom resource, when the graph is
	// parameterized by one.
	Schema *v1alpha1.Schema

	// RESTMapper, when set, resolves GVK to GVR through discovery data
	// instead of offline pluralization.
	RESTMapper meta.RESTMapper

	// MaxDepth bounds the reference scan of typed objects.
	MaxDepth int

	// Strict upgrades advisory diagnostics (unprovable boolean
	// conditions, readiness gates reading spec fields) to errors.
	Strict bool
}

func (o *BuilderOptions) applyDefaults() {
	if o.Logger.GetSink() == nil {
		o.Logger = logr.Discard()
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = expr.DefaultMaxDepth
	}
	if o.Name == "" {
		o.Name = "resource-graph"
		if o.Schema != nil && o.Schema.Kind != "" {
			o.Name = strings.ToLower(o.Schema.Kind)
		}
	}
}

// Builder assembles typed resources into a compiled Graph. It lowers
// every embedded reference to its interpolation form, wraps the result
// in an in-memory ResourceGraphDefinition, and runs it through the
// standard compilation pipeline, so a built graph and a parsed RGD are
// indistinguishable downstream.
type Builder struct {
	opts BuilderOptions
	log  logr.Logger
}

// NewBuilder returns a Builder with defaults applied.
func NewBuilder(opts BuilderOptions) *Builder {
	opts.applyDefaults()
	return &Builder{opts: opts, log: opts.Logger.WithName("graph-builder")}
}

// Build compiles the given resources and status projection into a
// Graph. References to resource ids not present in resources are
// recorded as external references: they never contribute dependency
// edges or levels, and deploy engines resolve them best-effort.
//
// Errors are terminal: the inputs must change for Build to succeed.
func (b *Builder) Build(resources []Resource, statusProjection map[string]interface{}) (*Graph, error) {
	if len(resources) == 0 {
		return nil, terminalf("builder", "at least one resource is required")
	}

	declared := make(map[string]struct{}, len(resources))
	for _, r := range resources {
		if r.ID == "" {
			return nil, terminalf("builder", "resource with empty id")
		}
		if _, dup := declared[r.ID]; dup {
			return nil, terminalf("builder", "duplicate resource id %q", r.ID)
		}
		declared[r.ID] = struct{}{}
	}

	referenced := map[string]struct{}{}
	specResources := make([]*v1alpha1.Resource, 0, len(resources))
	for _, r := range resources {
		spec, refs, err := b.buildResource(r)
		if err != nil {
			return nil, err
		}
		for _, id := range refs {
			referenced[id] = struct{}{}
		}
		specResources = append(specResources, spec)
	}

	schema, statusRefs, err := b.buildSchema(statusProjection)
	if err != nil {
		return nil, err
	}
	for _, id := range statusRefs {
		referenced[id] = struct{}{}
	}

	var external []string
	for id := range referenced {
		if _, ok := declared[id]; !ok {
			external = append(external, id)
		}
	}
	slices.Sort(external)
	if len(external) > 0 {
		b.log.V(1).Info("recorded external references", "ids", external)
	}

	rgd := &v1alpha1.ResourceGraphDefinition{
		TypeMeta: metav1.TypeMeta{
			APIVersion: v1alpha1.GroupVersion.String(),
			Kind:       "ResourceGraphDefinition",
		},
		ObjectMeta: metav1.ObjectMeta{Name: b.opts.Name},
		Spec: v1alpha1.ResourceGraphDefinitionSpec{
			Schema:    schema,
			Resources: specResources,
		},
	}

	compiler, err := NewCompiler(
		WithRESTMapper(b.opts.RESTMapper),
		WithLinker(&linker{externalIDs: external}),
	)
	if err != nil {
		return nil, err
	}
	g, err := compiler.Compile(rgd)
	if err != nil {
		return nil, err
	}

	for _, r := range resources {
		if r.Readiness != nil {
			g.Nodes[r.ID].Readiness = r.Readiness
		}
	}

	b.log.V(1).Info("built graph",
		"resources", len(g.Nodes), "levels", len(g.Levels), "external", len(g.ExternalReferences))
	return g, nil
}

// buildResource lowers one Resource into its RGD form, returning the
// resource ids its template and conditions reference.
func (b *Builder) buildResource(r Resource) (*v1alpha1.Resource, []string, error) {
	template, refs, err := b.lowerTemplate(r)
	if err != nil {
		return nil, nil, err
	}
	if slices.Contains(refs, r.ID) {
		return nil, nil, terminalf("builder", "resource %q cannot reference itself", r.ID)
	}

	readyWhen, readyRefs, err := b.lowerConditions(r.ID, "readyWhen", r.ReadyWhen)
	if err != nil {
		return nil, nil, err
	}
	includeWhen, includeRefs, err := b.lowerConditions(r.ID, "includeWhen", r.IncludeWhen)
	if err != nil {
		return nil, nil, err
	}

	raw, err := json.Marshal(template)
	if err != nil {
		return nil, nil, terminalf("builder", "resource %q: marshaling template: %v", r.ID, err)
	}

	refs = append(refs, readyRefs...)
	refs = append(refs, includeRefs...)
	return &v1alpha1.Resource{
		ID:          r.ID,
		Template:    runtime.RawExtension{Raw: raw},
		ReadyWhen:   readyWhen,
		IncludeWhen: includeWhen,
	}, refs, nil
}

// lowerTemplate converts a Resource's Object into a plain map with every
// embedded reference replaced by its interpolation string.
func (b *Builder) lowerTemplate(r Resource) (map[string]interface{}, []string, error) {
	switch obj := r.Object.(type) {
	case nil:
		return nil, nil, terminalf("builder", "resource %q has no object", r.ID)

	case map[string]interface{}:
		return b.lowerMap(r.ID, obj)

	case *unstructured.Unstructured:
		if obj == nil || obj.Object == nil {
			return nil, nil, terminalf("builder", "resource %q has no object", r.ID)
		}
		return b.lowerMap(r.ID, obj.Object)

	default:
		det, err := expr.DetectDepth(obj, b.opts.MaxDepth)
		if err != nil {
			return nil, nil, terminalf("builder", "resource %q: %v", r.ID, err)
		}
		if det.HasReferences {
			return nil, nil, terminalf("builder",
				"resource %q: typed objects cannot carry field references, pass the template as a map or unstructured object", r.ID)
		}
		converted, err := runtime.DefaultUnstructuredConverter.ToUnstructured(obj)
		if err != nil {
			return nil, nil, terminalf("builder", "resource %q: converting typed object: %v", r.ID, err)
		}
		return converted, nil, nil
	}
}

func (b *Builder) lowerMap(id string, template map[string]interface{}) (map[string]interface{}, []string, error) {
	res, err := expr.CompileValue(template)
	if err != nil {
		return nil, nil, terminal("builder", fmt.Errorf("resource %q: %w", id, err))
	}
	b.logDiagnostics(id, res.Diagnostics)
	out, ok := res.Value.(map[string]interface{})
	if !ok {
		return nil, nil, terminalf("builder", "resource %q: template must be an object, got %T", id, res.Value)
	}
	return out, res.ReferencedIDs, nil
}

// lowerConditions compiles condition expressions to their interpolated
// form, enforcing that each one is usable where a boolean is required.
func (b *Builder) lowerConditions(id, field string, nodes []expr.Node) ([]string, []string, error) {
	if len(nodes) == 0 {
		return nil, nil, nil
	}
	vopts := expr.ValidationOptions{Strict: b.opts.Strict}
	out := make([]string, 0, len(nodes))
	var refs []string
	for i, n := range nodes {
		c, err := expr.Compile(n)
		if err != nil {
			return nil, nil, terminal("builder", fmt.Errorf("resource %q: %s[%d]: %w", id, field, i, err))
		}
		diags := append(c.Diagnostics, expr.ValidateBooleanContext(c, vopts)...)
		if field == "readyWhen" {
			diags = append(diags, expr.StatusReferenceAdvisories(n, vopts)...)
		}
		if expr.Blocking(diags) {
			return nil, nil, terminalf("builder", "resource %q: %s[%d]: %s", id, field, i, firstError(diags))
		}
		b.logDiagnostics(id, diags)
		out = append(out, c.Interpolated())
		refs = append(refs, c.ReferencedIDs...)
	}
	return out, refs, nil
}

// buildSchema folds the status projection into the configured instance
// schema. With neither a schema nor a projection the graph has no
// instance surface at all.
func (b *Builder) buildSchema(statusProjection map[string]interface{}) (*v1alpha1.Schema, []string, error) {
	var schema *v1alpha1.Schema
	if b.opts.Schema != nil {
		schema = b.opts.Schema.DeepCopy()
		if schema.Kind != "" && schema.Group == "" {
			schema.Group = v1alpha1.KRODomainName
		}
	}
	if len(statusProjection) == 0 {
		return schema, nil, nil
	}

	res, err := expr.CompileValue(statusProjection)
	if err != nil {
		return nil, nil, terminal("builder", fmt.Errorf("status projection: %w", err))
	}
	b.logDiagnostics("status", res.Diagnostics)
	raw, err := json.Marshal(res.Value)
	if err != nil {
		return nil, nil, terminalf("builder", "marshaling status projection: %v", err)
	}
	if schema == nil {
		schema = &v1alpha1.Schema{}
	}
	schema.Status = runtime.RawExtension{Raw: raw}
	return schema, res.ReferencedIDs, nil
}

func (b *Builder) logDiagnostics(id string, diags []expr.Diagnostic) {
	for _, d := range diags {
		b.log.V(1).Info("expression diagnostic", "resource", id, "diagnostic", d.String())
	}
}

func firstError(diags []expr.Diagnostic) string {
	for _, d := range diags {
		if d.Severity == expr.SeverityError {
			return d.Message
		}
	}
	return ""
}
