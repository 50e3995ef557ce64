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
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		expected []DetectedReference
	}{
		{
			name:  "scalar",
			value: "plain string",
		},
		{
			name: "reference-free manifest",
			value: map[string]any{
				"apiVersion": "apps/v1",
				"kind":       "Deployment",
				"spec":       map[string]any{"replicas": int64(3)},
			},
		},
		{
			name:  "bare reference",
			value: Ref("db", "status.endpoint"),
			expected: []DetectedReference{
				{Reference: Reference{ResourceID: "db", Path: "status.endpoint"}},
			},
		},
		{
			name: "reference nested in a manifest",
			value: map[string]any{
				"spec": map[string]any{
					"env": []any{
						map[string]any{"name": "HOST", "value": Ref("db", "status.endpoint")},
					},
				},
			},
			expected: []DetectedReference{
				{
					Reference: Reference{ResourceID: "db", Path: "status.endpoint"},
					Location:  "spec.env[0].value",
				},
			},
		},
		{
			name: "references inside an expression node",
			value: map[string]any{
				"ready": And(
					Gt(Ref("web", "status.readyReplicas"), 0),
					Eq(Ref("db", "status.phase"), "Ready"),
				),
			},
			expected: []DetectedReference{
				{Reference: Reference{ResourceID: "web", Path: "status.readyReplicas"}, Location: "ready"},
				{Reference: Reference{ResourceID: "db", Path: "status.phase"}, Location: "ready"},
			},
		},
		{
			name: "schema sentinel",
			value: map[string]any{
				"replicas": Schema("spec.replicas"),
			},
			expected: []DetectedReference{
				{Reference: Reference{ResourceID: SchemaID, Path: "spec.replicas"}, Location: "replicas"},
			},
		},
		{
			name: "serialized marker form",
			value: map[string]any{
				"value": map[string]any{
					markerKey: map[string]any{"resource": "db", "path": "status.port", "type": "int"},
				},
			},
			expected: []DetectedReference{
				{Reference: Reference{ResourceID: "db", Path: "status.port", Type: "int"}, Location: "value"},
			},
		},
		{
			name: "typed containers",
			value: map[string]any{
				"labels": map[string]string{"app": "web"},
				"args":   []string{"--verbose"},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Detect(tc.value)
			if err != nil {
				t.Fatalf("Detect() error: %v", err)
			}
			if res.HasReferences != (len(tc.expected) > 0) {
				t.Errorf("HasReferences = %v, want %v", res.HasReferences, len(tc.expected) > 0)
			}
			if !reflect.DeepEqual(res.References, tc.expected) {
				t.Errorf("References mismatch:\n  got:  %+v\n  want: %+v", res.References, tc.expected)
			}
		})
	}
}

func TestDetectIdempotent(t *testing.T) {
	value := map[string]any{
		"b": Ref("b", "status.x"),
		"a": Ref("a", "status.y"),
		"c": map[string]any{"nested": Schema("spec.z")},
	}
	first, err := Detect(value)
	if err != nil {
		t.Fatalf("Detect() error: %v", err)
	}
	second, err := Detect(value)
	if err != nil {
		t.Fatalf("Detect() error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("two detections of the same value differ:\n  first:  %+v\n  second: %+v", first, second)
	}
}

func TestDetectMarkerRoundTrip(t *testing.T) {
	data, err := json.Marshal(map[string]any{"value": Ref("db", "status.endpoint")})
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}

	res, err := Detect(decoded)
	if err != nil {
		t.Fatalf("Detect() error: %v", err)
	}
	want := []DetectedReference{
		{Reference: Reference{ResourceID: "db", Path: "status.endpoint"}, Location: "value"},
	}
	if !reflect.DeepEqual(res.References, want) {
		t.Errorf("References = %+v, want %+v", res.References, want)
	}
}

func TestDetectMarkerCollision(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{
			name:  "marker key with arbitrary data",
			value: map[string]any{"spec": map[string]any{markerKey: "oops"}},
		},
		{
			name: "marker key next to other keys",
			value: map[string]any{
				markerKey: map[string]any{"resource": "db", "path": "status.x"},
				"extra":   true,
			},
		},
		{
			name:  "marker key in a typed map",
			value: map[string]any{"data": map[string]string{markerKey: "oops"}},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Detect(tc.value)
			if err == nil {
				t.Fatal("Detect() succeeded, want collision error")
			}
			if !strings.Contains(err.Error(), markerKey) {
				t.Errorf("error %q does not name the marker key", err.Error())
			}
		})
	}
}

func TestDetectDepthBound(t *testing.T) {
	deep := any(Ref("db", "status.x"))
	for i := 0; i < DefaultMaxDepth+2; i++ {
		deep = map[string]any{"nested": deep}
	}
	if _, err := Detect(deep); err == nil {
		t.Fatal("Detect() succeeded on a value deeper than the bound")
	}
	if _, err := DetectDepth(deep, DefaultMaxDepth+10); err != nil {
		t.Fatalf("DetectDepth() with a larger bound failed: %v", err)
	}
}

func TestDetectCyclicValue(t *testing.T) {
	cyclic := map[string]any{"ref": Ref("db", "status.x")}
	cyclic["self"] = cyclic

	res, err := Detect(cyclic)
	if err != nil {
		t.Fatalf("Detect() error on a cyclic value: %v", err)
	}
	if len(res.References) != 1 {
		t.Errorf("expected exactly one reference, got %d", len(res.References))
	}
}
