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

// Ref creates a reference to a field of another resource in the graph.
func Ref(resourceID, path string) *FieldRef {
	return &FieldRef{Ref: Reference{ResourceID: resourceID, Path: path}}
}

// Schema creates a reference into the graph's own instance spec.
func Schema(path string) *FieldRef {
	return &FieldRef{Ref: Reference{ResourceID: SchemaID, Path: path}}
}

// Value lifts v into an expression node. Nodes pass through unchanged,
// everything else becomes a Literal.
func Value(v any) Node {
	if n, ok := v.(Node); ok {
		return n
	}
	return &Literal{Value: v}
}

// Raw wraps a textual expression. The text is validated when compiled.
func Raw(text string) *RawExpr {
	return &RawExpr{Text: text}
}

func binary(op BinaryOp, left, right any) *BinaryExpr {
	return &BinaryExpr{Op: op, Left: Value(left), Right: Value(right)}
}

// Eq compares two operands for equality.
func Eq(left, right any) *BinaryExpr { return binary(OpEq, left, right) }

// Ne compares two operands for inequality.
func Ne(left, right any) *BinaryExpr { return binary(OpNe, left, right) }

// Lt is the less-than comparison.
func Lt(left, right any) *BinaryExpr { return binary(OpLt, left, right) }

// Le is the less-than-or-equal comparison.
func Le(left, right any) *BinaryExpr { return binary(OpLe, left, right) }

// Gt is the greater-than comparison.
func Gt(left, right any) *BinaryExpr { return binary(OpGt, left, right) }

// Ge is the greater-than-or-equal comparison.
func Ge(left, right any) *BinaryExpr { return binary(OpGe, left, right) }

// Add is arithmetic addition (also string concatenation).
func Add(left, right any) *BinaryExpr { return binary(OpAdd, left, right) }

// Sub is arithmetic subtraction.
func Sub(left, right any) *BinaryExpr { return binary(OpSub, left, right) }

// Mul is arithmetic multiplication.
func Mul(left, right any) *BinaryExpr { return binary(OpMul, left, right) }

// Div is arithmetic division.
func Div(left, right any) *BinaryExpr { return binary(OpDiv, left, right) }

// Mod is the arithmetic remainder.
func Mod(left, right any) *BinaryExpr { return binary(OpMod, left, right) }

// And is boolean conjunction.
func And(left, right any) *BinaryExpr { return binary(OpAnd, left, right) }

// Or is boolean disjunction. For a value fallback use Coalesce.
func Or(left, right any) *BinaryExpr { return binary(OpOr, left, right) }

// Not is boolean negation.
func Not(operand any) *NotExpr {
	return &NotExpr{Operand: Value(operand)}
}

// Neg is arithmetic negation.
func Neg(operand any) *NegateExpr {
	return &NegateExpr{Operand: Value(operand)}
}

// Cond is the ternary conditional: cond ? then : els.
func Cond(cond, then, els any) *CondExpr {
	return &CondExpr{Cond: Value(cond), Then: Value(then), Else: Value(els)}
}

// At indexes target with a computed key.
func At(target, key any) *IndexExpr {
	return &IndexExpr{Target: Value(target), Key: Value(key)}
}

// Call invokes a whitelisted method on target. For filter, map, exists,
// and all the first argument must be Var(...) naming the iteration
// variable and the second the body expression.
func Call(target any, name string, args ...any) *CallExpr {
	c := &CallExpr{Target: Value(target), Name: name}
	for _, a := range args {
		c.Args = append(c.Args, Value(a))
	}
	return c
}

// Opt is safe-navigation field access: empty instead of an error when
// the field is absent.
func Opt(target any, name string) *OptSelectExpr {
	return &OptSelectExpr{Target: Value(target), Name: name}
}

// OptAt is safe-navigation index access.
func OptAt(target, key any) *OptIndexExpr {
	return &OptIndexExpr{Target: Value(target), Key: Value(key)}
}

// Coalesce yields left when it is present and non-null, right
// otherwise. Left operands that read as booleans are rejected at
// compile time.
func Coalesce(left, right any) *FallbackExpr {
	return &FallbackExpr{Left: Value(left), Right: Value(right)}
}

// Template builds a string template from alternating literal strings
// and expression parts. Plain strings become literal fragments, nodes
// become interpolated expressions.
func Template(parts ...any) *TemplateExpr {
	t := &TemplateExpr{}
	for _, p := range parts {
		t.Parts = append(t.Parts, Value(p))
	}
	return t
}

// Var names an iteration variable for the comprehension methods.
func Var(name string) *Ident {
	return &Ident{Name: name}
}
