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
	"sort"
	"strconv"
)

// ValueResult is the outcome of compiling an arbitrary author value for
// the control-loop target.
type ValueResult struct {
	// Value is the original value when RequiresConversion is false,
	// otherwise a deep copy with every embedded reference or
	// expression replaced by its ${...} interpolation string.
	Value any

	// RequiresConversion reports whether any reference was found.
	RequiresConversion bool

	// ReferencedIDs lists the distinct resource ids read anywhere in
	// the value, sorted.
	ReferencedIDs []string

	// Diagnostics accumulates non-fatal findings from the embedded
	// expression compilations.
	Diagnostics []Diagnostic
}

// CompileValue prepares an author value for embedding in an emitted
// manifest. Values free of references are returned unchanged; values
// holding references (expression nodes or serialized markers, at any
// depth) are deep-copied with each reference-bearing site replaced by
// its interpolation string. The original value is never mutated, so the
// Direct strategy can keep resolving the same tree at apply time.
func CompileValue(v any) (ValueResult, error) {
	det, err := Detect(v)
	if err != nil {
		return ValueResult{}, err
	}
	if _, isNode := v.(Node); !isNode && !det.HasReferences {
		return ValueResult{Value: v}, nil
	}

	c := &valueConverter{refs: map[string]struct{}{}}
	out, err := c.convert(v, "")
	if err != nil {
		return ValueResult{}, err
	}
	res := ValueResult{
		Value:              out,
		RequiresConversion: true,
		Diagnostics:        c.diags,
	}
	for id := range c.refs {
		res.ReferencedIDs = append(res.ReferencedIDs, id)
	}
	sort.Strings(res.ReferencedIDs)
	return res, nil
}

type valueConverter struct {
	refs  map[string]struct{}
	diags []Diagnostic
}

func (c *valueConverter) convert(v any, path string) (any, error) {
	switch t := v.(type) {
	case Node:
		compiled, err := Compile(t)
		if err != nil {
			if ce, ok := err.(*CompileError); ok && ce.Path == "" {
				ce.Path = path
			}
			return nil, err
		}
		for _, id := range compiled.ReferencedIDs {
			c.refs[id] = struct{}{}
		}
		c.diags = append(c.diags, compiled.Diagnostics...)
		return compiled.Interpolated(), nil

	case map[string]any:
		if raw, ok := t[markerKey]; ok && len(t) == 1 {
			if ref, ok := decodeMarker(raw); ok {
				return c.convert(&FieldRef{Ref: ref}, path)
			}
		}
		out := make(map[string]any, len(t))
		for k, item := range t {
			conv, err := c.convert(item, joinPath(path, k))
			if err != nil {
				return nil, err
			}
			out[k] = conv
		}
		return out, nil

	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			conv, err := c.convert(item, path+"["+strconv.Itoa(i)+"]")
			if err != nil {
				return nil, err
			}
			out[i] = conv
		}
		return out, nil

	default:
		return v, nil
	}
}
