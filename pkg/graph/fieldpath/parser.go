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

// Package fieldpath parses and builds dot/bracket field paths used to address
// values inside unstructured Kubernetes objects, e.g
// "spec.containers[0].image" or `metadata.annotations["kro.run/owned"]`.
package fieldpath

import (
	"fmt"
	"strconv"
	"strings"
)

// Segment is one step in a field path. Exactly one of Name or Index is
// meaningful: Index is -1 for named fields, and Name is empty for array
// indices.
type Segment struct {
	Name  string
	Index int
}

// Named returns a Segment addressing a map field.
func Named(name string) Segment {
	return Segment{Name: name, Index: -1}
}

// Indexed returns a Segment addressing an array element.
func Indexed(i int) Segment {
	return Segment{Index: i}
}

// Parse splits a field path into its segments.
//
// Supported syntax:
//   - dot separated field names: spec.replicas
//   - array indices: spec.containers[0]
//   - quoted bracket fields for names containing dots: annotations["a.b/c"]
func Parse(path string) ([]Segment, error) {
	if path == "" {
		return nil, fmt.Errorf("empty path")
	}

	var segments []Segment
	i := 0
	expectField := true

	for i < len(path) {
		switch {
		case path[i] == '.':
			if expectField {
				return nil, fmt.Errorf("unexpected '.' at position %d", i)
			}
			i++
			expectField = true
		case path[i] == '[':
			end := matchBracket(path, i)
			if end < 0 {
				return nil, fmt.Errorf("unterminated '[' at position %d", i)
			}
			inner := path[i+1 : end]
			seg, err := parseBracket(inner, i)
			if err != nil {
				return nil, err
			}
			segments = append(segments, seg)
			i = end + 1
			expectField = false
		default:
			end := i
			for end < len(path) && path[end] != '.' && path[end] != '[' {
				end++
			}
			if !expectField {
				return nil, fmt.Errorf("unexpected field name at position %d", i)
			}
			segments = append(segments, Named(path[i:end]))
			i = end
			expectField = false
		}
	}

	if expectField && len(segments) > 0 {
		return nil, fmt.Errorf("path ends with '.'")
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("empty path")
	}
	return segments, nil
}

// matchBracket returns the index of the ']' closing the '[' at start, honoring
// quoted strings inside, or -1 when unterminated.
func matchBracket(path string, start int) int {
	inQuote := false
	for i := start + 1; i < len(path); i++ {
		switch path[i] {
		case '"':
			if i > 0 && path[i-1] == '\\' {
				continue
			}
			inQuote = !inQuote
		case ']':
			if !inQuote {
				return i
			}
		}
	}
	return -1
}

func parseBracket(inner string, pos int) (Segment, error) {
	if inner == "" {
		return Segment{}, fmt.Errorf("empty brackets at position %d", pos)
	}
	if strings.HasPrefix(inner, `"`) {
		name, err := strconv.Unquote(inner)
		if err != nil {
			return Segment{}, fmt.Errorf("invalid quoted field at position %d: %v", pos, err)
		}
		return Named(name), nil
	}
	idx, err := strconv.Atoi(inner)
	if err != nil || idx < 0 {
		return Segment{}, fmt.Errorf("invalid array index %q at position %d", inner, pos)
	}
	return Indexed(idx), nil
}
