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
	"slices"

	krocel "github.com/kubernetes-sigs/kro-sdk-go/pkg/cel"
	"github.com/kubernetes-sigs/kro-sdk-go/pkg/cel/ast"
	"github.com/kubernetes-sigs/kro-sdk-go/pkg/graph/dag"
	"github.com/kubernetes-sigs/kro-sdk-go/pkg/graph/fieldpath"
)

// FieldKind classifies a linked field by what its expressions reference.
type FieldKind int

const (
	// FieldStatic references only the instance schema or literals.
	FieldStatic FieldKind = iota
	// FieldDynamic references other resources in the graph.
	FieldDynamic
)

// LinkedExpr is a parsed expression annotated with referenced identifiers.
type LinkedExpr struct {
	Raw string
	// References lists the root identifiers the expression reads. These are
	// the activation keys runtime evaluation must provide ("schema",
	// "resources", or bare node ids).
	References []string
}

// LinkedField is a field with linked expressions and field-kind classification.
type LinkedField struct {
	Path       string
	Standalone bool
	Kind       FieldKind
	Exprs      []*LinkedExpr
}

// LinkedNode is a resolved node annotated with expression links and dependencies.
type LinkedNode struct {
	NodeIdentity
	Dependencies []string
	External     []string
	Fields       []*LinkedField
	ReadyWhen    []*LinkedExpr
	IncludeWhen  []*LinkedExpr
}

// LinkedInstance is the linked representation of instance status fields.
type LinkedInstance struct {
	InstanceMeta
	StatusFields []*LinkedField
	Dependencies []string
	External     []string
}

// LinkedRGD is the linker-stage output including dependency graph order.
type LinkedRGD struct {
	Instance         *LinkedInstance
	Nodes            []*LinkedNode
	DAG              *dag.DirectedAcyclicGraph[string]
	TopologicalOrder []string
}

// linker resolves expression references into dependency edges. Expressions
// may address a node either by its bare id (web.status.host) or through the
// resources root (resources.web.status.host); both resolve to the same edge.
// Identifiers listed in externalIDs are accepted without an edge: they name
// resources outside the graph, resolved best-effort at deploy time.
type linker struct {
	externalIDs []string
}

func newLinker() Linker { return &linker{} }

type scopeRule struct {
	condType    string
	raws        []*RawExpr
	allowedRefs []string
}

// exprLink is the per-expression linking result.
type exprLink struct {
	expr     *LinkedExpr
	deps     []string // node ids this expression depends on
	external []string // referenced ids outside the graph
	scopeIDs []string // logical ids for scope validation, includes "schema"
}

// Link takes ResolvedRGD and returns LinkedRGD with dependency DAG,
// classified variables, and validated scope rules.
func (l *linker) Link(resolved *ResolvedRGD) (*LinkedRGD, error) {
	// Collect identifiers
	nodeIDs := make([]string, 0, len(resolved.Nodes))
	for _, n := range resolved.Nodes {
		nodeIDs = append(nodeIDs, n.ID)
	}
	allIDs := append(slices.Clone(nodeIDs), SchemaVarName, ResourcesVarName)
	allIDs = append(allIDs, l.externalIDs...)

	env, err := krocel.DefaultEnvironment(krocel.WithResourceIDs(allIDs))
	if err != nil {
		return nil, terminalf("linker", "inspector env: %v", err)
	}
	inspector := ast.NewInspectorWithEnv(env, allIDs)

	// Build DAG
	d := dag.NewDirectedAcyclicGraph[string]()
	for _, n := range resolved.Nodes {
		if err := d.AddVertex(n.ID, n.Index); err != nil {
			return nil, terminalf("linker", "vertex %q: %v", n.ID, err)
		}
	}

	// Link each node
	linkedNodes := make([]*LinkedNode, 0, len(resolved.Nodes))
	for _, n := range resolved.Nodes {
		ln, err := l.linkNode(n, nodeIDs, inspector)
		if err != nil {
			return nil, terminal("linker", err)
		}
		if err := d.AddDependencies(ln.ID, ln.Dependencies); err != nil {
			return nil, terminal("linker", err)
		}
		linkedNodes = append(linkedNodes, ln)
	}

	order, err := d.TopologicalSort()
	if err != nil {
		return nil, terminal("linker", err)
	}

	// Link instance status fields
	linkedInstance, err := l.linkInstance(resolved.Instance, inspector, nodeIDs)
	if err != nil {
		return nil, terminal("linker", err)
	}

	return &LinkedRGD{
		Instance:         linkedInstance,
		Nodes:            linkedNodes,
		DAG:              d,
		TopologicalOrder: order,
	}, nil
}

func (l *linker) linkNode(r *ResolvedNode, nodeIDs []string, inspector *ast.Inspector) (*LinkedNode, error) {
	var allDeps, allExternal []string
	addAll := func(dst *[]string, values []string) {
		for _, v := range values {
			if !slices.Contains(*dst, v) {
				*dst = append(*dst, v)
			}
		}
	}

	// Link template fields -> LinkedField
	linkedFields := make([]*LinkedField, 0, len(r.Fields))
	for _, f := range r.Fields {
		lf, links, err := l.linkField(f, nodeIDs, inspector)
		if err != nil {
			return nil, fmt.Errorf("resource %q path %q: %w", r.ID, f.Path, err)
		}
		linkedFields = append(linkedFields, lf)
		for _, link := range links {
			if slices.Contains(link.deps, r.ID) {
				return nil, fmt.Errorf("resource %q path %q: resource cannot reference itself", r.ID, f.Path)
			}
			addAll(&allDeps, link.deps)
			addAll(&allExternal, link.external)
		}
	}

	// Link + scope-validate includeWhen/readyWhen.
	linkedInclude, err := l.linkAndValidateScopeRule(r.ID, nodeIDs, inspector, scopeRule{
		condType:    "includeWhen",
		raws:        r.IncludeWhen,
		allowedRefs: []string{SchemaVarName},
	})
	if err != nil {
		return nil, err
	}
	linkedReady, err := l.linkAndValidateScopeRule(r.ID, nodeIDs, inspector, scopeRule{
		condType:    "readyWhen",
		raws:        r.ReadyWhen,
		allowedRefs: []string{r.ID},
	})
	if err != nil {
		return nil, err
	}

	return &LinkedNode{
		NodeIdentity: IdentityFrom(r),
		Dependencies: allDeps,
		External:     allExternal,
		Fields:       linkedFields,
		ReadyWhen:    linkedReady,
		IncludeWhen:  linkedInclude,
	}, nil
}

func (l *linker) linkInstance(inst *ParsedInstance, inspector *ast.Inspector, nodeIDs []string) (*LinkedInstance, error) {
	linkedStatus := make([]*LinkedField, 0, len(inst.StatusFields))
	var allDeps, allExternal []string
	for _, f := range inst.StatusFields {
		linkedExprs := make([]*LinkedExpr, 0, len(f.Exprs))
		fieldHasResourceReference := false
		for _, expr := range f.Exprs {
			link, err := l.linkExpr(inspector, expr, nodeIDs)
			if err != nil {
				return nil, fmt.Errorf("status %q: %w", f.Path, err)
			}
			if slices.Contains(link.scopeIDs, SchemaVarName) {
				return nil, fmt.Errorf("status %q: cannot reference schema", f.Path)
			}
			if len(link.deps) > 0 || len(link.external) > 0 {
				fieldHasResourceReference = true
			}
			for _, dep := range link.deps {
				if !slices.Contains(allDeps, dep) {
					allDeps = append(allDeps, dep)
				}
			}
			for _, ext := range link.external {
				if !slices.Contains(allExternal, ext) {
					allExternal = append(allExternal, ext)
				}
			}
			linkedExprs = append(linkedExprs, link.expr)
		}
		if !fieldHasResourceReference {
			return nil, fmt.Errorf("status %q: must reference at least one resource", f.Path)
		}
		linkedStatus = append(linkedStatus, &LinkedField{
			Path:       f.Path,
			Standalone: f.Standalone,
			Kind:       FieldDynamic,
			Exprs:      linkedExprs,
		})
	}
	return &LinkedInstance{
		InstanceMeta: inst.InstanceMeta,
		StatusFields: linkedStatus,
		Dependencies: allDeps,
		External:     allExternal,
	}, nil
}

// linkField converts a RawField -> LinkedField and returns the per-expression
// links. Field kind is classified here: FieldDynamic if any expression depends
// on a resource node or external resource, FieldStatic otherwise.
func (l *linker) linkField(f *RawField, nodeIDs []string, inspector *ast.Inspector) (*LinkedField, []*exprLink, error) {
	linkedExprs := make([]*LinkedExpr, 0, len(f.Exprs))
	links := make([]*exprLink, 0, len(f.Exprs))
	dynamic := false

	for _, expr := range f.Exprs {
		link, err := l.linkExpr(inspector, expr, nodeIDs)
		if err != nil {
			return nil, nil, err
		}
		linkedExprs = append(linkedExprs, link.expr)
		links = append(links, link)
		if len(link.deps) > 0 || len(link.external) > 0 {
			dynamic = true
		}
	}

	kind := FieldStatic
	if dynamic {
		kind = FieldDynamic
	}

	return &LinkedField{
		Path:       f.Path,
		Standalone: f.Standalone,
		Kind:       kind,
		Exprs:      linkedExprs,
	}, links, nil
}

// linkExpr inspects a raw expression and classifies every identifier it reads.
func (l *linker) linkExpr(inspector *ast.Inspector, raw *RawExpr, nodeIDs []string) (*exprLink, error) {
	result, err := inspector.Inspect(raw.Raw)
	if err != nil {
		return nil, fmt.Errorf("inspect %q: %w", raw.Raw, err)
	}

	link := &exprLink{expr: &LinkedExpr{Raw: raw.Raw}}
	addRef := func(root string) {
		if !slices.Contains(link.expr.References, root) {
			link.expr.References = append(link.expr.References, root)
		}
	}
	record := func(id string) error {
		if !slices.Contains(link.scopeIDs, id) {
			link.scopeIDs = append(link.scopeIDs, id)
		}
		switch {
		case id == SchemaVarName:
			return nil
		case slices.Contains(nodeIDs, id):
			if !slices.Contains(link.deps, id) {
				link.deps = append(link.deps, id)
			}
		case slices.Contains(l.externalIDs, id):
			if !slices.Contains(link.external, id) {
				link.external = append(link.external, id)
			}
		default:
			return fmt.Errorf("references unknown identifiers: [%s]", id)
		}
		return nil
	}

	for _, dep := range result.ResourceDependencies {
		addRef(dep.ID)
		if dep.ID != ResourcesVarName {
			if err := record(dep.ID); err != nil {
				return nil, err
			}
			continue
		}
		// resources.<id>.<path> form: the dependency is the second segment.
		id, err := resourcesRootID(dep.Path)
		if err != nil {
			return nil, fmt.Errorf("inspect %q: %w", raw.Raw, err)
		}
		if err := record(id); err != nil {
			return nil, err
		}
	}

	for _, unk := range result.UnknownResources {
		return nil, fmt.Errorf("references unknown identifiers: [%s]", unk.ID)
	}

	if len(result.UnknownFunctions) > 0 {
		names := make([]string, 0, len(result.UnknownFunctions))
		for _, fn := range result.UnknownFunctions {
			names = append(names, fn)
		}
		return nil, fmt.Errorf("unknown functions: %v", names)
	}

	return link, nil
}

// resourcesRootID extracts the node id from a resources-rooted access path.
func resourcesRootID(path string) (string, error) {
	segments, err := fieldpath.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parse path %q: %w", path, err)
	}
	if len(segments) < 2 || segments[1].Index >= 0 {
		return "", fmt.Errorf("%q must address a resource as resources.<id>.<path>", path)
	}
	return segments[1].Name, nil
}

func (l *linker) linkAndValidateScopeRule(resourceID string, nodeIDs []string, inspector *ast.Inspector, rule scopeRule) ([]*LinkedExpr, error) {
	out := make([]*LinkedExpr, 0, len(rule.raws))
	for _, raw := range rule.raws {
		link, err := l.linkExpr(inspector, raw, nodeIDs)
		if err != nil {
			return nil, fmt.Errorf("resource %q %s: %w", resourceID, rule.condType, err)
		}
		var unknown []string
		for _, id := range link.scopeIDs {
			if !slices.Contains(rule.allowedRefs, id) {
				unknown = append(unknown, id)
			}
		}
		if len(unknown) > 0 {
			return nil, fmt.Errorf("resource %q %s: references unknown identifiers: %v", resourceID, rule.condType, unknown)
		}
		out = append(out, link.expr)
	}
	return out, nil
}
