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
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/decls"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	krocel "github.com/kubernetes-sigs/kro-sdk-go/pkg/cel"
	"github.com/kubernetes-sigs/kro-sdk-go/pkg/graph/dag"
	"github.com/kubernetes-sigs/kro-sdk-go/pkg/graph/variable"
)

// CompiledInstance is the executable representation of the instance node.
type CompiledInstance struct {
	InstanceMeta
	StatusFields []*variable.ResourceField
	Dependencies []string
	External     []string
}

// CompiledRGD is the program-generator-stage output consumed by the assembler.
type CompiledRGD struct {
	Instance         *CompiledInstance
	Nodes            []*Node
	DAG              *dag.DirectedAcyclicGraph[string]
	TopologicalOrder []string
}

type programGenerator struct{}

func newProgramGenerator() ProgramGenerator { return &programGenerator{} }

// Generate compiles every linked expression into a cel.Program and returns
// the executable nodes. All programs share one environment declaring the
// node ids, the schema and resources roots, external ids, and any custom
// functions defined on the RGD.
func (g *programGenerator) Generate(linked *LinkedRGD, fns []*decls.FunctionDecl) (*CompiledRGD, error) {
	env, err := g.buildEnv(linked, fns)
	if err != nil {
		return nil, terminal("compiler", err)
	}

	compiled := make([]*Node, 0, len(linked.Nodes))
	for _, ln := range linked.Nodes {
		node, err := g.generateNode(ln, env)
		if err != nil {
			return nil, terminal("compiler", err)
		}
		compiled = append(compiled, node)
	}

	inst, err := g.generateInstance(linked.Instance, env)
	if err != nil {
		return nil, terminal("compiler", err)
	}

	return &CompiledRGD{
		Instance:         inst,
		Nodes:            compiled,
		DAG:              linked.DAG,
		TopologicalOrder: linked.TopologicalOrder,
	}, nil
}

func (g *programGenerator) buildEnv(linked *LinkedRGD, fns []*decls.FunctionDecl) (*cel.Env, error) {
	ids := []string{SchemaVarName, ResourcesVarName}
	for _, ln := range linked.Nodes {
		ids = append(ids, ln.ID)
		for _, ext := range ln.External {
			if !slices.Contains(ids, ext) {
				ids = append(ids, ext)
			}
		}
	}
	for _, ext := range linked.Instance.External {
		if !slices.Contains(ids, ext) {
			ids = append(ids, ext)
		}
	}

	opts := []krocel.EnvOption{krocel.WithResourceIDs(ids)}
	if len(fns) > 0 {
		opts = append(opts, krocel.WithCustomDeclarations([]cel.EnvOption{cel.FunctionDecls(fns...)}))
	}
	env, err := krocel.DefaultEnvironment(opts...)
	if err != nil {
		return nil, fmt.Errorf("build env: %w", err)
	}
	return env, nil
}

func (g *programGenerator) generateNode(ln *LinkedNode, env *cel.Env) (*Node, error) {
	fields, err := compileFields(ln.Fields, env, ln.ID)
	if err != nil {
		return nil, err
	}

	readyWhen, err := compileConditions(ln.ReadyWhen, env, ln.ID, "readyWhen")
	if err != nil {
		return nil, err
	}

	includeWhen, err := compileConditions(ln.IncludeWhen, env, ln.ID, "includeWhen")
	if err != nil {
		return nil, err
	}

	return &Node{
		NodeIdentity:         ln.NodeIdentity,
		Dependencies:         ln.Dependencies,
		ExternalDependencies: ln.External,
		Template:             &unstructured.Unstructured{Object: ln.NodeMeta.Template},
		Variables:            fields,
		ReadyWhen:            readyWhen,
		IncludeWhen:          includeWhen,
	}, nil
}

func (g *programGenerator) generateInstance(li *LinkedInstance, env *cel.Env) (*CompiledInstance, error) {
	fields, err := compileFields(li.StatusFields, env, "status")
	if err != nil {
		return nil, err
	}
	return &CompiledInstance{
		InstanceMeta: li.InstanceMeta,
		StatusFields: fields,
		Dependencies: li.Dependencies,
		External:     li.External,
	}, nil
}

func compileFields(linked []*LinkedField, env *cel.Env, resourceID string) ([]*variable.ResourceField, error) {
	out := make([]*variable.ResourceField, 0, len(linked))
	for _, lf := range linked {
		exprs, err := compileExprs(lf.Exprs, env, resourceID, lf.Path)
		if err != nil {
			return nil, err
		}
		kind := variable.ResourceVariableKindStatic
		if lf.Kind == FieldDynamic {
			kind = variable.ResourceVariableKindDynamic
		}
		out = append(out, &variable.ResourceField{
			FieldDescriptor: variable.FieldDescriptor{
				Path:                 lf.Path,
				Expressions:          exprs,
				StandaloneExpression: lf.Standalone,
			},
			Kind: kind,
		})
	}
	return out, nil
}

func compileExprs(linked []*LinkedExpr, env *cel.Env, resourceID, context string) ([]*krocel.Expression, error) {
	out := make([]*krocel.Expression, 0, len(linked))
	for _, le := range linked {
		ce, err := compileExpr(env, le)
		if err != nil {
			return nil, fmt.Errorf("resource %q %s: %w", resourceID, context, err)
		}
		out = append(out, ce)
	}
	return out, nil
}

// compileConditions is compileExprs for readyWhen/includeWhen, which must
// produce booleans. The output type is checked at compile time so a graph
// with a non-boolean condition fails Build instead of Deploy.
func compileConditions(linked []*LinkedExpr, env *cel.Env, resourceID, context string) ([]*krocel.Expression, error) {
	out, err := compileExprs(linked, env, resourceID, context)
	if err != nil {
		return nil, err
	}
	for _, ce := range out {
		// Dyn-typed expressions (schema and resource field accesses) can
		// still produce a bool at runtime, so only statically-known
		// non-boolean types are rejected here.
		if krocel.IsBoolOrOptionalBool(ce.OutputType) || ce.OutputType.IsAssignableType(cel.BoolType) {
			continue
		}
		return nil, fmt.Errorf("resource %q %s: expression %q must evaluate to bool, got %s",
			resourceID, context, ce.Original, ce.OutputType)
	}
	return out, nil
}

func compileExpr(env *cel.Env, le *LinkedExpr) (*krocel.Expression, error) {
	start := time.Now()
	checked, iss := env.Compile(le.Raw)
	if iss != nil && iss.Err() != nil {
		krocel.Metrics.ObserveCompilation(time.Since(start).Seconds(), iss.Err())
		return nil, fmt.Errorf("compile %q: %w", le.Raw, iss.Err())
	}
	prog, err := env.Program(checked, krocel.WithCostTracking(krocel.PerCallLimit)...)
	krocel.Metrics.ObserveCompilation(time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", le.Raw, err)
	}
	return &krocel.Expression{
		Original:   le.Raw,
		References: slices.Clone(le.References),
		Program:    prog,
		OutputType: checked.OutputType(),
	}, nil
}
