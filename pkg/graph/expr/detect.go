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

package expr

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
)

// markerKey is the reserved map key used for the serialized form of a
// reference. A manifest is not allowed to use it for its own data.
const markerKey = "$kroRef"

// DefaultMaxDepth bounds the structural walk performed by Detect.
const DefaultMaxDepth = 64

// DetectedReference is a reference found inside a scanned value,
// together with the location it was found at.
type DetectedReference struct {
	Reference

	// Location is the fieldpath within the scanned value where the
	// reference (or the expression node containing it) sits.
	Location string
}

// DetectionResult reports all references reachable from a value.
type DetectionResult struct {
	HasReferences bool
	References    []DetectedReference
}

// Detect walks an arbitrary value tree and collects every embedded
// reference: FieldRef nodes, expression nodes containing them, and
// marker-map encodings left by a serialization round trip. The walk is
// pure, depth-bounded, and guarded against cyclic object graphs, so
// calling it twice on the same value yields the same result.
//
// A map key colliding with the reserved marker key is an error naming
// the offending path.
func Detect(value any) (DetectionResult, error) {
	return DetectDepth(value, DefaultMaxDepth)
}

// DetectDepth is Detect with an explicit depth bound.
func DetectDepth(value any, maxDepth int) (DetectionResult, error) {
	d := &detector{maxDepth: maxDepth, visited: map[uintptr]struct{}{}}
	if err := d.walk(value, "", 0); err != nil {
		return DetectionResult{}, err
	}
	return DetectionResult{
		HasReferences: len(d.refs) > 0,
		References:    d.refs,
	}, nil
}

type detector struct {
	maxDepth int
	visited  map[uintptr]struct{}
	refs     []DetectedReference
}

func (d *detector) walk(value any, path string, depth int) error {
	if depth > d.maxDepth {
		return fmt.Errorf("maximum detection depth %d exceeded at %q", d.maxDepth, path)
	}
	switch v := value.(type) {
	case nil:
		return nil
	case Node:
		d.collectNode(v, path)
		return nil
	case map[string]any:
		return d.walkMap(v, path, depth)
	case []any:
		for i, item := range v {
			if err := d.walk(item, path+"["+strconv.Itoa(i)+"]", depth+1); err != nil {
				return err
			}
		}
		return nil
	default:
		return d.walkReflect(value, path, depth)
	}
}

func (d *detector) walkMap(m map[string]any, path string, depth int) error {
	if raw, ok := m[markerKey]; ok {
		ref, ok := decodeMarker(raw)
		if !ok || len(m) != 1 {
			return fmt.Errorf("key %q at %q collides with the reserved reference marker", markerKey, joinPath(path, markerKey))
		}
		d.refs = append(d.refs, DetectedReference{Reference: ref, Location: path})
		return nil
	}
	if !d.enter(m) {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := d.walk(m[k], joinPath(path, k), depth+1); err != nil {
			return err
		}
	}
	return nil
}

// walkReflect covers the container shapes a typed manifest may still
// carry (map[string]string, []string, pointers to structs). Scalars
// fall out of the switch untouched.
func (d *detector) walkReflect(value any, path string, depth int) error {
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String || !d.enter(value) {
			return nil
		}
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		for _, k := range keys {
			if k == markerKey {
				return fmt.Errorf("key %q at %q collides with the reserved reference marker", markerKey, joinPath(path, markerKey))
			}
			item := rv.MapIndex(reflect.ValueOf(k)).Interface()
			if err := d.walk(item, joinPath(path, k), depth+1); err != nil {
				return err
			}
		}
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && !d.enter(value) {
			return nil
		}
		for i := 0; i < rv.Len(); i++ {
			if err := d.walk(rv.Index(i).Interface(), path+"["+strconv.Itoa(i)+"]", depth+1); err != nil {
				return err
			}
		}
	case reflect.Pointer, reflect.Interface:
		if !rv.IsNil() {
			return d.walk(rv.Elem().Interface(), path, depth+1)
		}
	}
	return nil
}

func (d *detector) collectNode(n Node, path string) {
	for _, ref := range References(n) {
		d.refs = append(d.refs, DetectedReference{Reference: ref, Location: path})
	}
}

// enter marks a container as visited and reports whether it was new.
// Cyclic object graphs are silently truncated instead of looping.
func (d *detector) enter(container any) bool {
	rv := reflect.ValueOf(container)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer:
		p := rv.Pointer()
		if _, seen := d.visited[p]; seen {
			return false
		}
		d.visited[p] = struct{}{}
	}
	return true
}

func joinPath(base, key string) string {
	if needsQuoting(key) {
		return base + `["` + key + `"]`
	}
	if base == "" {
		return key
	}
	return base + "." + key
}

func markerBody(r Reference) map[string]any {
	body := map[string]any{
		"resource": r.ResourceID,
		"path":     r.Path,
	}
	if r.Type != "" {
		body["type"] = r.Type
	}
	return body
}

func decodeMarker(raw any) (Reference, bool) {
	body, ok := raw.(map[string]any)
	if !ok {
		return Reference{}, false
	}
	id, ok := body["resource"].(string)
	if !ok || id == "" {
		return Reference{}, false
	}
	path, ok := body["path"].(string)
	if !ok {
		return Reference{}, false
	}
	ref := Reference{ResourceID: id, Path: path}
	if t, ok := body["type"].(string); ok {
		ref.Type = t
	}
	return ref, true
}
