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

	extv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	"sigs.k8s.io/yaml"

	"github.com/kubernetes-sigs/kro-sdk-go/api/v1alpha1"
	"github.com/kubernetes-sigs/kro-sdk-go/pkg/graph/dag"
)

// Graph represents a compiled resource graph: the dependency DAG plus the
// immutable node specs the deploy engines execute.
type Graph struct {
	// Definition is the ResourceGraphDefinition the graph was compiled from.
	// Deploy engines targeting the control loop apply it verbatim.
	Definition *v1alpha1.ResourceGraphDefinition

	// DAG is the directed acyclic graph of node dependencies.
	DAG *dag.DirectedAcyclicGraph[string]

	// Instance is the instance node carrying the status projection.
	Instance *Node

	// SpecSchema is the OpenAPI schema of the instance spec, with simple
	// schema defaults folded in. The direct engine uses it to default
	// missing schema values; the control loop gets it via Definition.
	SpecSchema *extv1.JSONSchemaProps

	// Nodes maps node ID to immutable node spec.
	Nodes map[string]*Node

	// TopologicalOrder is the sorted order of node IDs for processing.
	// This excludes the instance node.
	TopologicalOrder []string

	// Levels partitions TopologicalOrder into dependency levels: level 0
	// holds nodes without dependencies, level n+1 holds nodes whose deepest
	// dependency sits at level n. Nodes in the same level have no ordering
	// constraint between them.
	Levels [][]string

	// ExternalReferences lists referenced resource IDs that are not nodes of
	// this graph, sorted. They carry no level and are resolved best-effort at
	// deploy time.
	ExternalReferences []string
}

// NodeLevel returns the dependency level of the given node ID,
// or -1 when the ID is not part of the graph.
func (g *Graph) NodeLevel(id string) int {
	for i, level := range g.Levels {
		for _, nodeID := range level {
			if nodeID == id {
				return i
			}
		}
	}
	return -1
}

// MarshalDefinition renders the graph's ResourceGraphDefinition as a YAML
// manifest, with every cross-resource reference already compiled to its
// `${...}` interpolation form. The output can be applied out-of-band with
// kubectl; ControlLoopEngine applies the same definition directly.
func (g *Graph) MarshalDefinition() ([]byte, error) {
	if g.Definition == nil {
		return nil, fmt.Errorf("graph has no definition")
	}
	def := g.Definition.DeepCopy()
	def.APIVersion = v1alpha1.GroupVersion.String()
	def.Kind = "ResourceGraphDefinition"
	out, err := yaml.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("marshal definition: %w", err)
	}
	return out, nil
}

// OrderedNodes returns the graph's nodes in topological order.
func (g *Graph) OrderedNodes() []*Node {
	out := make([]*Node, 0, len(g.TopologicalOrder))
	for _, id := range g.TopologicalOrder {
		out = append(out, g.Nodes[id])
	}
	return out
}
