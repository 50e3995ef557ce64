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

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/kubernetes-sigs/kro-sdk-go/pkg/graph/variable"
	"github.com/kubernetes-sigs/kro-sdk-go/pkg/metadata"
)

type assembler struct{}

func newAssembler() Assembler { return &assembler{} }

// Assemble takes a CompiledRGD and produces the final Graph.
func (a *assembler) Assemble(compiled *CompiledRGD) (*Graph, error) {
	levels, err := compiled.DAG.TopologicalSortLevels()
	if err != nil {
		return nil, terminal("assembler", err)
	}

	instanceNode := a.buildInstanceNode(compiled)

	nodes := make(map[string]*Node, len(compiled.Nodes))
	external := slices.Clone(compiled.Instance.External)
	for _, n := range compiled.Nodes {
		nodes[n.ID] = n
		for _, ext := range n.ExternalDependencies {
			if !slices.Contains(external, ext) {
				external = append(external, ext)
			}
		}
	}
	slices.Sort(external)

	return &Graph{
		Instance:           instanceNode,
		SpecSchema:         compiled.Instance.SpecSchema,
		Nodes:              nodes,
		DAG:                compiled.DAG,
		TopologicalOrder:   compiled.TopologicalOrder,
		Levels:             levels,
		ExternalReferences: external,
	}, nil
}

// buildInstanceNode turns the compiled status projection into the instance
// node. Its dependencies are every resource any status field reads, so the
// projection can only be evaluated after those nodes are ready.
func (a *assembler) buildInstanceNode(compiled *CompiledRGD) *Node {
	inst := compiled.Instance

	gvr := metadata.GetResourceGraphDefinitionInstanceGVR(inst.Group, inst.APIVersion, inst.Kind)

	// Prefix status field paths under the instance status block.
	fields := make([]*variable.ResourceField, len(inst.StatusFields))
	for i, f := range inst.StatusFields {
		fields[i] = &variable.ResourceField{
			FieldDescriptor: variable.FieldDescriptor{
				Path:                 "status." + f.Path,
				Expressions:          f.Expressions,
				StandaloneExpression: f.StandaloneExpression,
			},
			Kind: variable.ResourceVariableKindDynamic,
		}
	}
	deps := slices.Clone(inst.Dependencies)
	slices.Sort(deps)

	template := map[string]interface{}{
		"status": inst.StatusTemplate,
	}

	return &Node{
		NodeIdentity: NodeIdentity{
			NodeMeta: NodeMeta{
				ID:       InstanceNodeID,
				Type:     NodeTypeInstance,
				Template: template,
			},
			GVR:        gvr,
			Namespaced: true,
		},
		Dependencies:         deps,
		ExternalDependencies: slices.Clone(inst.External),
		Template:             &unstructured.Unstructured{Object: template},
		Variables:            fields,
	}
}

