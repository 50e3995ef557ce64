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
	"fmt"
	"strconv"
	"strings"
)

// SchemaID is the sentinel resource id standing for the graph's own
// instance spec. A reference carrying this id compiles to the "schema"
// variable that the controller exposes to every expression; every other
// id compiles under the "resources" root.
const SchemaID = "schema"

// Reference identifies a single field of a resource in the graph. It is
// created at construction time and never mutated.
type Reference struct {
	// ResourceID is the graph-local id of the referenced resource, or
	// SchemaID for the instance spec.
	ResourceID string

	// Path locates the field within the resource, using the fieldpath
	// grammar: dot-separated names, [n] for list indices, and
	// bracket-quoted names for keys containing dots.
	Path string

	// Type is an optional hint about the referenced value's type
	// ("string", "int", "bool", ...). Empty means unknown.
	Type string
}

func (r Reference) String() string {
	if r.Path == "" {
		return r.ResourceID
	}
	return r.ResourceID + "." + r.Path
}

// Node is a single fragment of an author expression. Expressions are
// explicit trees of these nodes, assembled by the builder functions in
// this package or decoded from a textual form; there is no field
// interception anywhere.
type Node interface {
	isNode()
}

// Literal wraps a plain Go value: strings, booleans, integers, floats,
// nil, and nested []any / map[string]any trees of those.
type Literal struct {
	Value any
}

// FieldRef is the reference marker node. Reading a field of a resource
// accessor yields one of these instead of a real value; Field and Index
// compose longer paths without ever failing.
type FieldRef struct {
	Ref Reference
}

// Field returns a new reference one level deeper. Names containing
// characters outside [a-zA-Z0-9_] are bracket-quoted so the resulting
// path stays parseable.
func (f *FieldRef) Field(name string) *FieldRef {
	ref := f.Ref
	if needsQuoting(name) {
		ref.Path += `["` + name + `"]`
	} else if ref.Path == "" {
		ref.Path = name
	} else {
		ref.Path += "." + name
	}
	ref.Type = ""
	return &FieldRef{Ref: ref}
}

// Index returns a new reference addressing the i-th element of the
// referenced list.
func (f *FieldRef) Index(i int) *FieldRef {
	ref := f.Ref
	ref.Path += "[" + strconv.Itoa(i) + "]"
	ref.Type = ""
	return &FieldRef{Ref: ref}
}

// Typed returns a copy of the reference annotated with a value type
// hint. The hint only sharpens compile-time type inference; it is never
// enforced at runtime.
func (f *FieldRef) Typed(t string) *FieldRef {
	ref := f.Ref
	ref.Type = t
	return &FieldRef{Ref: ref}
}

// MarshalJSON serializes the reference in its marker-map form so that a
// manifest holding references survives a JSON or YAML round trip. Detect
// recognizes the marker form and decodes it back into a Reference.
func (f *FieldRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		markerKey: markerBody(f.Ref),
	})
}

func needsQuoting(name string) bool {
	if name == "" {
		return true
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return true
		}
	}
	return false
}

// BinaryOp is the operator of a BinaryExpr. The constants mirror the
// target syntax exactly, so emission is a direct lookup.
type BinaryOp string

const (
	OpAdd BinaryOp = "+"
	OpSub BinaryOp = "-"
	OpMul BinaryOp = "*"
	OpDiv BinaryOp = "/"
	OpMod BinaryOp = "%"
	OpEq  BinaryOp = "=="
	OpNe  BinaryOp = "!="
	OpLt  BinaryOp = "<"
	OpLe  BinaryOp = "<="
	OpGt  BinaryOp = ">"
	OpGe  BinaryOp = ">="
	OpAnd BinaryOp = "&&"
	OpOr  BinaryOp = "||"
)

// BinaryExpr combines two operands with an arithmetic, comparison, or
// logical operator.
type BinaryExpr struct {
	Op    BinaryOp
	Left  Node
	Right Node
}

// NotExpr is logical negation.
type NotExpr struct {
	Operand Node
}

// NegateExpr is arithmetic negation.
type NegateExpr struct {
	Operand Node
}

// CondExpr is a ternary conditional.
type CondExpr struct {
	Cond Node
	Then Node
	Else Node
}

// IndexExpr addresses an element of a list or map with a computed key.
type IndexExpr struct {
	Target Node
	Key    Node
}

// CallExpr invokes one of the whitelisted methods on a target value.
// Unknown method names are a compile-time error, never a pass-through.
// For the comprehension methods (filter, map, exists, all) the first
// argument must be an Ident declaring the iteration variable and the
// second the body expression.
type CallExpr struct {
	Target Node
	Name   string
	Args   []Node
}

// OptSelectExpr is safe-navigation field access: it yields an optional
// that is empty when the field is absent instead of failing.
type OptSelectExpr struct {
	Target Node
	Name   string
}

// OptIndexExpr is safe-navigation index access.
type OptIndexExpr struct {
	Target Node
	Key    Node
}

// FallbackExpr yields Left when it resolves to a present, non-null
// value and Right otherwise. A Left operand that is itself a boolean
// expression is rejected at compile time as an unsupported pattern.
type FallbackExpr struct {
	Left  Node
	Right Node
}

// TemplateExpr is a string template. Parts alternate between Literal
// string fragments and arbitrary expression nodes; non-string parts are
// converted during emission.
type TemplateExpr struct {
	Parts []Node
}

// Ident names an iteration variable inside a comprehension body. It is
// only valid under a filter/map/exists/all call that declares it.
type Ident struct {
	Name string
}

// RawExpr carries a textual expression verbatim. It is validated and
// its referenced identifiers recovered by parsing it through the same
// environment the controller uses.
type RawExpr struct {
	Text string
}

func (*Literal) isNode()       {}
func (*FieldRef) isNode()      {}
func (*BinaryExpr) isNode()    {}
func (*NotExpr) isNode()       {}
func (*NegateExpr) isNode()    {}
func (*CondExpr) isNode()      {}
func (*IndexExpr) isNode()     {}
func (*CallExpr) isNode()      {}
func (*OptSelectExpr) isNode() {}
func (*OptIndexExpr) isNode()  {}
func (*FallbackExpr) isNode()  {}
func (*TemplateExpr) isNode()  {}
func (*Ident) isNode()         {}
func (*RawExpr) isNode()       {}

// Walk calls fn for n and every node reachable from it, parents before
// children. Traversal stops early when fn returns false.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	switch t := n.(type) {
	case *BinaryExpr:
		Walk(t.Left, fn)
		Walk(t.Right, fn)
	case *NotExpr:
		Walk(t.Operand, fn)
	case *NegateExpr:
		Walk(t.Operand, fn)
	case *CondExpr:
		Walk(t.Cond, fn)
		Walk(t.Then, fn)
		Walk(t.Else, fn)
	case *IndexExpr:
		Walk(t.Target, fn)
		Walk(t.Key, fn)
	case *CallExpr:
		Walk(t.Target, fn)
		for _, a := range t.Args {
			Walk(a, fn)
		}
	case *OptSelectExpr:
		Walk(t.Target, fn)
	case *OptIndexExpr:
		Walk(t.Target, fn)
		Walk(t.Key, fn)
	case *FallbackExpr:
		Walk(t.Left, fn)
		Walk(t.Right, fn)
	case *TemplateExpr:
		for _, p := range t.Parts {
			Walk(p, fn)
		}
	}
}

// References returns every FieldRef reachable from n, in traversal
// order, without deduplication.
func References(n Node) []Reference {
	var out []Reference
	Walk(n, func(c Node) bool {
		if f, ok := c.(*FieldRef); ok {
			out = append(out, f.Ref)
		}
		return true
	})
	return out
}

func nodeKind(n Node) string {
	switch n.(type) {
	case *Literal:
		return "literal"
	case *FieldRef:
		return "ref"
	case *BinaryExpr:
		return "binary"
	case *NotExpr:
		return "not"
	case *NegateExpr:
		return "negate"
	case *CondExpr:
		return "conditional"
	case *IndexExpr:
		return "index"
	case *CallExpr:
		return "call"
	case *OptSelectExpr:
		return "optional-select"
	case *OptIndexExpr:
		return "optional-index"
	case *FallbackExpr:
		return "fallback"
	case *TemplateExpr:
		return "template"
	case *Ident:
		return "ident"
	case *RawExpr:
		return "raw"
	default:
		return fmt.Sprintf("%T", n)
	}
}

// rootPath emits the CEL root for a reference: the schema variable for
// the sentinel id, resources.<id> otherwise.
func refRoot(r Reference) string {
	if r.ResourceID == SchemaID {
		return SchemaID
	}
	return "resources." + r.ResourceID
}

func refText(r Reference) string {
	root := refRoot(r)
	if r.Path == "" {
		return root
	}
	if strings.HasPrefix(r.Path, "[") {
		return root + r.Path
	}
	return root + "." + r.Path
}
