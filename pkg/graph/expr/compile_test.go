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
	"reflect"
	"strings"
	"testing"
)

func TestCompileExpressions(t *testing.T) {
	tests := []struct {
		name       string
		node       Node
		expected   string
		outputType string
		refIDs     []string
	}{
		{
			name:       "status comparison",
			node:       Gt(Ref("web", "status.readyReplicas"), 0),
			expected:   "resources.web.status.readyReplicas > 0",
			outputType: "bool",
			refIDs:     []string{"web"},
		},
		{
			name:       "schema sentinel",
			node:       Schema("spec.replicas"),
			expected:   "schema.spec.replicas",
			outputType: "dyn",
		},
		{
			name:       "composed path",
			node:       Ref("web", "status").Field("loadBalancer").Field("ingress").Index(0).Field("host.name"),
			expected:   `resources.web.status.loadBalancer.ingress[0]["host.name"]`,
			outputType: "dyn",
			refIDs:     []string{"web"},
		},
		{
			name: "nested boolean operands are parenthesized",
			node: And(
				Gt(Ref("db", "status.readyReplicas"), 0),
				Lt(Ref("cache", "status.usedBytes"), 1000),
			),
			expected:   "(resources.db.status.readyReplicas > 0) && (resources.cache.status.usedBytes < 1000)",
			outputType: "bool",
			refIDs:     []string{"cache", "db"},
		},
		{
			name:       "arithmetic nesting",
			node:       Mul(Add(Schema("spec.min"), Schema("spec.max")), 2),
			expected:   "(schema.spec.min + schema.spec.max) * 2",
			outputType: "dyn",
		},
		{
			name:       "ternary",
			node:       Cond(Eq(Schema("spec.env"), "prod"), 3, 1),
			expected:   `(schema.spec.env == "prod") ? 3 : 1`,
			outputType: "int",
		},
		{
			name:       "not",
			node:       Not(Eq(Ref("job", "status.succeeded"), 0)),
			expected:   "!(resources.job.status.succeeded == 0)",
			outputType: "bool",
			refIDs:     []string{"job"},
		},
		{
			name:       "negation",
			node:       Neg(Ref("meter", "status.delta")),
			expected:   "-resources.meter.status.delta",
			outputType: "dyn",
			refIDs:     []string{"meter"},
		},
		{
			name:       "index with computed key",
			node:       At(Ref("cm", "data"), Schema("spec.key")),
			expected:   "resources.cm.data[schema.spec.key]",
			outputType: "dyn",
			refIDs:     []string{"cm"},
		},
		{
			name:       "member method",
			node:       Call(Ref("web", "status.url"), "startsWith", "https://"),
			expected:   `resources.web.status.url.startsWith("https://")`,
			outputType: "bool",
			refIDs:     []string{"web"},
		},
		{
			name:       "len is emitted as size",
			node:       Gt(Call(Ref("svc", "status.loadBalancer.ingress"), "len"), 0),
			expected:   "size(resources.svc.status.loadBalancer.ingress) > 0",
			outputType: "bool",
			refIDs:     []string{"svc"},
		},
		{
			name:       "string conversion",
			node:       Call(Schema("spec.port"), "string"),
			expected:   "string(schema.spec.port)",
			outputType: "string",
		},
		{
			name: "comprehension",
			node: Call(Ref("deploy", "status.conditions"), "exists",
				Var("c"), Eq(At(Var("c"), "type"), "Available")),
			expected:   `resources.deploy.status.conditions.exists(c, c["type"] == "Available")`,
			outputType: "bool",
			refIDs:     []string{"deploy"},
		},
		{
			name:       "filter",
			node:       Call(Ref("svc", "spec.ports"), "filter", Var("p"), Gt(At(Var("p"), "port"), 1024)),
			expected:   `resources.svc.spec.ports.filter(p, p["port"] > 1024)`,
			outputType: "list",
			refIDs:     []string{"svc"},
		},
		{
			name:       "optional chain",
			node:       Opt(Opt(Ref("svc", "status"), "loadBalancer"), "ingress"),
			expected:   "resources.svc.status.?loadBalancer.?ingress",
			outputType: "optional",
			refIDs:     []string{"svc"},
		},
		{
			name:       "optional index",
			node:       OptAt(Ref("svc", "status.loadBalancer.ingress"), 0),
			expected:   "resources.svc.status.loadBalancer.ingress[?0]",
			outputType: "optional",
			refIDs:     []string{"svc"},
		},
		{
			name:       "fallback on optional chain",
			node:       Coalesce(Opt(Ref("svc", "status"), "hostname"), "pending"),
			expected:   `resources.svc.status.?hostname.orValue("pending")`,
			outputType: "string",
			refIDs:     []string{"svc"},
		},
		{
			name:       "fallback optionalizes a plain reference",
			node:       Coalesce(Ref("svc", "status.loadBalancer.ingress[0].hostname"), "pending"),
			expected:   `resources.svc.?status.?loadBalancer.?ingress[?0].?hostname.orValue("pending")`,
			outputType: "string",
			refIDs:     []string{"svc"},
		},
		{
			name:       "fallback on computed value",
			node:       Coalesce(At(Ref("cm", "data"), "region"), "us-west-2"),
			expected:   `(resources.cm.data["region"] != null ? resources.cm.data["region"] : "us-west-2")`,
			outputType: "string",
			refIDs:     []string{"cm"},
		},
		{
			name:       "list literal",
			node:       Eq(Schema("spec.zones"), []any{"a", "b"}),
			expected:   `schema.spec.zones == ["a", "b"]`,
			outputType: "bool",
		},
		{
			name:       "map literal with sorted keys",
			node:       Eq(Schema("spec.labels"), map[string]any{"b": 2, "a": 1}),
			expected:   `schema.spec.labels == {"a": 1, "b": 2}`,
			outputType: "bool",
		},
		{
			name:       "uint literal",
			node:       Eq(Schema("spec.mask"), uint64(42)),
			expected:   "schema.spec.mask == 42u",
			outputType: "bool",
		},
		{
			name:       "raw text",
			node:       Raw("resources.web.status.readyReplicas > 0"),
			expected:   "resources.web.status.readyReplicas > 0",
			outputType: "dyn",
			refIDs:     []string{"web"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, err := Compile(tc.node)
			if err != nil {
				t.Fatalf("Compile() error: %v", err)
			}
			if c.Expression != tc.expected {
				t.Errorf("Expression mismatch:\n  got:  %s\n  want: %s", c.Expression, tc.expected)
			}
			if c.OutputType != tc.outputType {
				t.Errorf("OutputType = %q, want %q", c.OutputType, tc.outputType)
			}
			if !reflect.DeepEqual(c.ReferencedIDs, tc.refIDs) {
				t.Errorf("ReferencedIDs = %v, want %v", c.ReferencedIDs, tc.refIDs)
			}
			if err := Verify(c); err != nil {
				t.Errorf("Verify() rejected the compiled expression: %v", err)
			}
		})
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name     string
		node     Node
		contains string
	}{
		{
			name:     "unknown method",
			node:     Call(Ref("web", "status.url"), "reverse"),
			contains: `method "reverse" is not in the supported set`,
		},
		{
			name:     "wrong arity",
			node:     Call(Ref("web", "status.url"), "contains"),
			contains: `takes 1 to 1 arguments`,
		},
		{
			name:     "undeclared iteration variable",
			node:     Gt(Var("i"), 0),
			contains: `identifier "i" is not declared`,
		},
		{
			name:     "macro without iteration variable",
			node:     Call(Ref("svc", "spec.ports"), "filter", 1, 2),
			contains: "requires an iteration variable",
		},
		{
			name:     "boolean fallback",
			node:     Coalesce(Gt(Ref("web", "status.readyReplicas"), 0), true),
			contains: "fallback on a boolean left operand",
		},
		{
			name:     "boolean fallback via typed reference",
			node:     Coalesce(Ref("web", "status.ready").Typed("bool"), false),
			contains: "fallback on a boolean left operand",
		},
		{
			name:     "or mixed with fallback",
			node:     Or(Coalesce(Ref("a", "status.x"), 1), true),
			contains: "use Coalesce",
		},
		{
			name:     "raw text with unknown identifier",
			node:     Raw("bogus.spec.x > 0"),
			contains: `unknown identifier "bogus"`,
		},
		{
			name:     "unsupported literal",
			node:     &Literal{Value: struct{}{}},
			contains: "unsupported literal type",
		},
		{
			name:     "nil expression",
			node:     nil,
			contains: "nil expression",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compile(tc.node)
			if err == nil {
				t.Fatal("Compile() succeeded, want error")
			}
			if !IsCompileError(err) {
				t.Errorf("error is not a CompileError: %v", err)
			}
			if !strings.Contains(err.Error(), tc.contains) {
				t.Errorf("error %q does not contain %q", err.Error(), tc.contains)
			}
		})
	}
}

func TestCompileTemplates(t *testing.T) {
	tests := []struct {
		name         string
		node         *TemplateExpr
		expression   string
		interpolated string
		refIDs       []string
	}{
		{
			name:         "literal and reference",
			node:         Template("https://", Ref("svc", "status.loadBalancer.ingress[0].hostname"), "/api"),
			expression:   `"https://" + resources.svc.status.loadBalancer.ingress[0].hostname + "/api"`,
			interpolated: "https://${resources.svc.status.loadBalancer.ingress[0].hostname}/api",
			refIDs:       []string{"svc"},
		},
		{
			name:         "non-string part is converted",
			node:         Template("port-", Schema("spec.port")),
			expression:   `"port-" + string(schema.spec.port)`,
			interpolated: "port-${schema.spec.port}",
		},
		{
			name:         "string-typed call part",
			node:         Template("name-", Call(Schema("spec.suffix"), "lowerAscii")),
			expression:   `"name-" + schema.spec.suffix.lowerAscii()`,
			interpolated: "name-${schema.spec.suffix.lowerAscii()}",
		},
		{
			name:         "two references",
			node:         Template(Schema("spec.name"), "-", Ref("db", "metadata.name")),
			expression:   `string(schema.spec.name) + "-" + string(resources.db.metadata.name)`,
			interpolated: "${schema.spec.name}-${resources.db.metadata.name}",
			refIDs:       []string{"db"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, err := Compile(tc.node)
			if err != nil {
				t.Fatalf("Compile() error: %v", err)
			}
			if c.Expression != tc.expression {
				t.Errorf("Expression mismatch:\n  got:  %s\n  want: %s", c.Expression, tc.expression)
			}
			if got := c.Interpolated(); got != tc.interpolated {
				t.Errorf("Interpolated mismatch:\n  got:  %s\n  want: %s", got, tc.interpolated)
			}
			if c.OutputType != "string" {
				t.Errorf("OutputType = %q, want string", c.OutputType)
			}
			if !reflect.DeepEqual(c.ReferencedIDs, tc.refIDs) {
				t.Errorf("ReferencedIDs = %v, want %v", c.ReferencedIDs, tc.refIDs)
			}
			if err := Verify(c); err != nil {
				t.Errorf("Verify() rejected the compiled expression: %v", err)
			}
		})
	}
}

func TestCompileSourceMap(t *testing.T) {
	c, err := Compile(Gt(Ref("web", "status.readyReplicas"), Schema("spec.minReplicas")))
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	if len(c.SourceMap) == 0 {
		t.Fatal("expected a non-empty source map")
	}
	for _, entry := range c.SourceMap {
		if entry.Start < 0 || entry.End > len(c.Expression) || entry.Start > entry.End {
			t.Errorf("entry %q has offsets outside the expression: [%d, %d)", entry.Fragment, entry.Start, entry.End)
		}
		if c.Expression[entry.Start:entry.End] != entry.Fragment {
			t.Errorf("entry fragment %q does not match expression slice %q", entry.Fragment, c.Expression[entry.Start:entry.End])
		}
	}
}

func TestCompileValue(t *testing.T) {
	t.Run("reference-free value is returned unchanged", func(t *testing.T) {
		manifest := map[string]any{
			"apiVersion": "v1",
			"kind":       "ConfigMap",
			"data":       map[string]any{"region": "us-west-2"},
		}
		res, err := CompileValue(manifest)
		if err != nil {
			t.Fatalf("CompileValue() error: %v", err)
		}
		if res.RequiresConversion {
			t.Error("RequiresConversion = true for a reference-free value")
		}
		if !reflect.DeepEqual(res.Value, manifest) {
			t.Error("value was altered")
		}
	})

	t.Run("embedded references become interpolation strings", func(t *testing.T) {
		manifest := map[string]any{
			"spec": map[string]any{
				"replicas": Schema("spec.replicas"),
				"env": []any{
					map[string]any{
						"name":  "DB_HOST",
						"value": Ref("db", "status.endpoint"),
					},
				},
			},
		}
		res, err := CompileValue(manifest)
		if err != nil {
			t.Fatalf("CompileValue() error: %v", err)
		}
		if !res.RequiresConversion {
			t.Fatal("RequiresConversion = false, want true")
		}
		out := res.Value.(map[string]any)
		spec := out["spec"].(map[string]any)
		if got := spec["replicas"]; got != "${schema.spec.replicas}" {
			t.Errorf("replicas = %v, want ${schema.spec.replicas}", got)
		}
		envEntry := spec["env"].([]any)[0].(map[string]any)
		if got := envEntry["value"]; got != "${resources.db.status.endpoint}" {
			t.Errorf("value = %v, want ${resources.db.status.endpoint}", got)
		}
		if !reflect.DeepEqual(res.ReferencedIDs, []string{"db"}) {
			t.Errorf("ReferencedIDs = %v, want [db]", res.ReferencedIDs)
		}
	})

	t.Run("original tree is not mutated", func(t *testing.T) {
		ref := Ref("db", "status.endpoint")
		manifest := map[string]any{"value": ref}
		if _, err := CompileValue(manifest); err != nil {
			t.Fatalf("CompileValue() error: %v", err)
		}
		if manifest["value"] != ref {
			t.Error("original manifest was mutated")
		}
	})

	t.Run("expression node value", func(t *testing.T) {
		res, err := CompileValue(Gt(Ref("web", "status.readyReplicas"), 0))
		if err != nil {
			t.Fatalf("CompileValue() error: %v", err)
		}
		if res.Value != "${resources.web.status.readyReplicas > 0}" {
			t.Errorf("Value = %v", res.Value)
		}
	})
}
