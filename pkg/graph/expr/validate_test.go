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
	"testing"
)

func TestValidateBooleanContext(t *testing.T) {
	tests := []struct {
		name       string
		node       Node
		strict     bool
		severities []Severity
	}{
		{
			name: "comparison is boolean",
			node: Gt(Ref("web", "status.readyReplicas"), 0),
		},
		{
			name:       "bare reference is unprovable",
			node:       Ref("web", "status.ready"),
			severities: []Severity{SeverityAdvisory},
		},
		{
			name:       "bare reference under strict",
			node:       Ref("web", "status.ready"),
			strict:     true,
			severities: []Severity{SeverityError},
		},
		{
			name:       "string template is never boolean",
			node:       Template("ready-", Schema("spec.name")),
			severities: []Severity{SeverityError},
		},
		{
			name:       "arithmetic on dynamic fields is unprovable",
			node:       Add(Ref("a", "status.x"), Ref("b", "status.y")),
			severities: []Severity{SeverityAdvisory},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, err := Compile(tc.node)
			if err != nil {
				t.Fatalf("Compile() error: %v", err)
			}
			diags := ValidateBooleanContext(c, ValidationOptions{Strict: tc.strict})
			if len(diags) != len(tc.severities) {
				t.Fatalf("got %d diagnostics (%v), want %d", len(diags), diags, len(tc.severities))
			}
			for i, want := range tc.severities {
				if diags[i].Severity != want {
					t.Errorf("diagnostic %d severity = %s, want %s", i, diags[i].Severity, want)
				}
			}
		})
	}
}

func TestStatusReferenceAdvisories(t *testing.T) {
	node := And(
		Gt(Ref("web", "status.readyReplicas"), 0),
		Eq(Ref("web", "spec.replicas"), Schema("spec.replicas")),
	)

	diags := StatusReferenceAdvisories(node, ValidationOptions{})
	if len(diags) != 1 {
		t.Fatalf("got %d diagnostics (%v), want 1", len(diags), diags)
	}
	if diags[0].Severity != SeverityAdvisory {
		t.Errorf("severity = %s, want advisory", diags[0].Severity)
	}
	if Blocking(diags) {
		t.Error("advisories must not block")
	}

	strict := StatusReferenceAdvisories(node, ValidationOptions{Strict: true})
	if !Blocking(strict) {
		t.Error("strict mode must upgrade advisories to errors")
	}
}
