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

// Package dag implements a directed acyclic graph with deterministic
// topological ordering. Vertices carry an insertion order which is used to
// keep the output stable: independent vertices are emitted in the order they
// were added.
package dag

import (
	"cmp"
	"errors"
	"fmt"
	"sort"
)

// Vertex is a node in the graph.
type Vertex[T cmp.Ordered] struct {
	// ID is the unique identifier of the vertex.
	ID T
	// Order records the insertion position, used for stable sorting.
	Order int
	// DependsOn is the set of vertices this vertex depends on.
	DependsOn map[T]struct{}
}

// DirectedAcyclicGraph holds the vertices and their dependency edges.
// Edges are rejected at insertion time if they would introduce a cycle.
type DirectedAcyclicGraph[T cmp.Ordered] struct {
	// Vertices maps the id of the vertex to the vertex itself.
	Vertices map[T]*Vertex[T]
}

// NewDirectedAcyclicGraph creates a new empty graph.
func NewDirectedAcyclicGraph[T cmp.Ordered]() *DirectedAcyclicGraph[T] {
	return &DirectedAcyclicGraph[T]{
		Vertices: make(map[T]*Vertex[T]),
	}
}

// AddVertex adds a new vertex to the graph. The order is used to preserve
// the original declaration order when sorting independent vertices.
func (d *DirectedAcyclicGraph[T]) AddVertex(id T, order int) error {
	if _, exists := d.Vertices[id]; exists {
		return fmt.Errorf("node %v already exists", id)
	}
	d.Vertices[id] = &Vertex[T]{
		ID:        id,
		Order:     order,
		DependsOn: make(map[T]struct{}),
	}
	return nil
}

// CycleError is returned when an operation would introduce or encounters a
// cycle in the graph.
type CycleError[T cmp.Ordered] struct {
	Cycle []T
}

func (e *CycleError[T]) Error() string {
	return fmt.Sprintf("graph contains a cycle: %v", formatCycle(e.Cycle))
}

// AsCycleError returns the CycleError wrapped in err, or nil.
func AsCycleError[T cmp.Ordered](err error) *CycleError[T] {
	cycleError := &CycleError[T]{}
	if errors.As(err, &cycleError) {
		return cycleError
	}
	return nil
}

func formatCycle[T cmp.Ordered](cycle []T) string {
	s := ""
	for i, id := range cycle {
		if i > 0 {
			s += " -> "
		}
		s += fmt.Sprintf("%v", id)
	}
	return s
}

// AddDependencies records that "from" depends on each vertex in dependencies.
// Self references, unknown vertices and edges that would close a cycle are
// rejected; on rejection the graph is left unchanged.
func (d *DirectedAcyclicGraph[T]) AddDependencies(from T, dependencies []T) error {
	fromVertex, ok := d.Vertices[from]
	if !ok {
		return fmt.Errorf("node %v does not exist", from)
	}

	added := make([]T, 0, len(dependencies))
	rollback := func() {
		for _, dep := range added {
			delete(fromVertex.DependsOn, dep)
		}
	}

	for _, dependency := range dependencies {
		if dependency == from {
			rollback()
			return fmt.Errorf("self references are not allowed: %v", from)
		}
		if _, ok := d.Vertices[dependency]; !ok {
			rollback()
			return fmt.Errorf("node %v does not exist", dependency)
		}
		if _, exists := fromVertex.DependsOn[dependency]; exists {
			continue
		}
		fromVertex.DependsOn[dependency] = struct{}{}
		added = append(added, dependency)
	}

	if cyclic, cycle := d.hasCycle(); cyclic {
		rollback()
		return &CycleError[T]{Cycle: cycle}
	}
	return nil
}

// orderedVertices returns the ids of all vertices sorted by insertion order.
func (d *DirectedAcyclicGraph[T]) orderedVertices() []T {
	ids := make([]T, 0, len(d.Vertices))
	for id := range d.Vertices {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return d.Vertices[ids[i]].Order < d.Vertices[ids[j]].Order
	})
	return ids
}

// TopologicalSort returns the vertices in dependency order. Vertices are
// emitted as soon as their dependencies are satisfied, scanning repeatedly in
// insertion order, which keeps independent vertices in their declared order.
func (d *DirectedAcyclicGraph[T]) TopologicalSort() ([]T, error) {
	ids := d.orderedVertices()
	emitted := make(map[T]struct{}, len(ids))
	order := make([]T, 0, len(ids))

	for len(order) < len(ids) {
		progressed := false
		for _, id := range ids {
			if _, done := emitted[id]; done {
				continue
			}
			ready := true
			for dep := range d.Vertices[id].DependsOn {
				if _, done := emitted[dep]; !done {
					ready = false
					break
				}
			}
			if ready {
				emitted[id] = struct{}{}
				order = append(order, id)
				progressed = true
			}
		}
		if !progressed {
			_, cycle := d.hasCycle()
			return nil, &CycleError[T]{Cycle: cycle}
		}
	}
	return order, nil
}

// TopologicalSortLevels groups the vertices into levels: every vertex's
// dependencies live in strictly earlier levels, so all vertices within one
// level are mutually independent. Within a level vertices keep their
// declared order.
func (d *DirectedAcyclicGraph[T]) TopologicalSortLevels() ([][]T, error) {
	ids := d.orderedVertices()
	placed := make(map[T]struct{}, len(ids))
	var levels [][]T

	for len(placed) < len(ids) {
		var level []T
		for _, id := range ids {
			if _, done := placed[id]; done {
				continue
			}
			ready := true
			for dep := range d.Vertices[id].DependsOn {
				if _, done := placed[dep]; !done {
					ready = false
					break
				}
			}
			if ready {
				level = append(level, id)
			}
		}
		if len(level) == 0 {
			_, cycle := d.hasCycle()
			return nil, &CycleError[T]{Cycle: cycle}
		}
		for _, id := range level {
			placed[id] = struct{}{}
		}
		levels = append(levels, level)
	}
	return levels, nil
}

// hasCycle reports whether the graph contains a cycle, returning one such
// cycle when found.
func (d *DirectedAcyclicGraph[T]) hasCycle() (bool, []T) {
	visited := make(map[T]struct{})
	inStack := make(map[T]struct{})
	var stack []T
	var cycle []T

	var visit func(id T) bool
	visit = func(id T) bool {
		visited[id] = struct{}{}
		inStack[id] = struct{}{}
		stack = append(stack, id)

		for dep := range d.Vertices[id].DependsOn {
			if _, ok := inStack[dep]; ok {
				// Found a cycle; slice the stack from the first occurrence.
				for i, node := range stack {
					if node == dep {
						cycle = append(append([]T{}, stack[i:]...), dep)
						break
					}
				}
				return true
			}
			if _, ok := visited[dep]; !ok {
				if visit(dep) {
					return true
				}
			}
		}

		stack = stack[:len(stack)-1]
		delete(inStack, id)
		return false
	}

	for _, id := range d.orderedVertices() {
		if _, ok := visited[id]; !ok {
			if visit(id) {
				return true, cycle
			}
		}
	}
	return false, nil
}
