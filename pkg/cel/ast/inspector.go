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

// Package ast inspects parsed CEL expressions to extract the resource
// references and function calls they contain. The inspection happens on the
// parsed (unchecked) AST, so expressions referencing undeclared identifiers
// can still be analyzed and reported as unknown.
package ast

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/cel-go/cel"
	celast "github.com/google/cel-go/common/ast"
	"github.com/google/cel-go/common/operators"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// ResourceDependency is a single reference to a declared resource found in an
// expression. Path is the full access path starting at the resource id, e.g
// "eksCluster.status.state". Each occurrence is reported - callers that need
// a deduplicated view must dedupe themselves.
type ResourceDependency struct {
	// ID is the identifier of the resource being referenced.
	ID string
	// Path is the full dotted access path, including the resource id.
	Path string
}

// FunctionCall is a call to a declared (or synthesized) function found in an
// expression. For global calls Arguments holds the textual form of each
// argument. For member-style calls only Name is populated.
type FunctionCall struct {
	// Name of the function being called. Member calls are qualified with the
	// textual form of their target, e.g `"%s:%s".format`.
	Name string
	// Arguments in textual form, in call order.
	Arguments []string
}

// UnknownResource is an identifier that is neither a declared resource, a
// declared function namespace, nor a comprehension loop variable.
type UnknownResource struct {
	ID   string
	Path string
}

// InspectionResult holds everything interesting found in one expression.
type InspectionResult struct {
	// ResourceDependencies are references to declared resources, one entry
	// per occurrence.
	ResourceDependencies []ResourceDependency
	// FunctionCalls are calls to declared functions, member-style calls, and
	// synthesized calls for comprehensions ("filter") and list literals
	// ("createList").
	FunctionCalls []FunctionCall
	// UnknownResources are identifiers that could not be attributed to any
	// declared resource, deduplicated by id.
	UnknownResources []UnknownResource
	// UnknownFunctions are global calls to functions that are neither
	// declared nor CEL builtins, deduplicated by name.
	UnknownFunctions []string
}

// Inspector analyzes CEL expressions against a set of declared resource ids
// and function names.
type Inspector struct {
	env       *cel.Env
	resources map[string]struct{}
	functions map[string]struct{}
	loopVars  map[string]struct{}
}

// NewInspectorWithEnv creates an Inspector that parses expressions with the
// given environment and attributes identifiers to the given resource ids.
func NewInspectorWithEnv(env *cel.Env, resourceIDs []string) *Inspector {
	resources := make(map[string]struct{}, len(resourceIDs))
	for _, id := range resourceIDs {
		resources[id] = struct{}{}
	}
	return &Inspector{
		env:       env,
		resources: resources,
		functions: make(map[string]struct{}),
		loopVars:  make(map[string]struct{}),
	}
}

// Inspect parses the expression and walks the AST collecting resource
// dependencies, function calls and unknown identifiers.
func (i *Inspector) Inspect(expression string) (InspectionResult, error) {
	parsed, issues := i.env.Parse(expression)
	if issues != nil && issues.Err() != nil {
		return InspectionResult{}, fmt.Errorf("failed to parse expression: %w", issues.Err())
	}

	w := &walker{
		inspector:        i,
		unknownResources: make(map[string]struct{}),
		unknownFunctions: make(map[string]struct{}),
	}
	w.walk(parsed.NativeRep().Expr(), i.loopVars)
	return w.result, nil
}

// walker carries the mutable state of one Inspect call.
type walker struct {
	inspector        *Inspector
	result           InspectionResult
	unknownResources map[string]struct{}
	unknownFunctions map[string]struct{}
}

// celBuiltins are receiverless functions provided by the CEL standard library
// and its extensions. Calls to these are not reported.
var celBuiltins = map[string]struct{}{
	"size":      {},
	"has":       {},
	"dyn":       {},
	"type":      {},
	"duration":  {},
	"timestamp": {},
	"string":    {},
	"int":       {},
	"uint":      {},
	"double":    {},
	"bool":      {},
	"bytes":     {},
	"matches":   {},
	"map":       {},
	"filter":    {},
	"all":       {},
	"exists":    {},
}

func (w *walker) walk(e celast.Expr, shadows map[string]struct{}) {
	if e == nil {
		return
	}
	switch e.Kind() {
	case celast.IdentKind:
		w.recordIdent(e.AsIdent(), shadows)
	case celast.SelectKind:
		w.walkSelect(e, shadows)
	case celast.CallKind:
		w.walkCall(e, shadows)
	case celast.ListKind:
		w.result.FunctionCalls = append(w.result.FunctionCalls, FunctionCall{
			Name:      "createList",
			Arguments: []string{unparse(e)},
		})
		for _, elem := range e.AsList().Elements() {
			w.walk(elem, shadows)
		}
	case celast.MapKind:
		for _, entry := range e.AsMap().Entries() {
			me := entry.AsMapEntry()
			w.walk(me.Key(), shadows)
			w.walk(me.Value(), shadows)
		}
	case celast.StructKind:
		for _, field := range e.AsStruct().Fields() {
			w.walk(field.AsStructField().Value(), shadows)
		}
	case celast.ComprehensionKind:
		w.walkComprehension(e, shadows)
	}
}

// walkSelect records a dependency for pure select chains (idents and selects
// only). Chains broken by calls or indexing fall back to walking the operand.
func (w *walker) walkSelect(e celast.Expr, shadows map[string]struct{}) {
	root, path, pure := selectChain(e)
	if !pure {
		w.walk(e.AsSelect().Operand(), shadows)
		return
	}
	if _, shadowed := shadows[root]; shadowed {
		return
	}
	if isAccumulator(root) {
		return
	}
	if _, ok := w.inspector.resources[root]; ok {
		w.result.ResourceDependencies = append(w.result.ResourceDependencies, ResourceDependency{
			ID:   root,
			Path: path,
		})
		return
	}
	w.recordUnknownResource(root)
}

func (w *walker) walkCall(e celast.Expr, shadows map[string]struct{}) {
	call := e.AsCall()
	fn := call.FunctionName()

	if isOperator(fn) {
		if call.Target() != nil {
			w.walk(call.Target(), shadows)
		}
		for _, arg := range call.Args() {
			w.walk(arg, shadows)
		}
		return
	}

	if call.IsMemberFunction() {
		qualified := unparse(call.Target()) + "." + fn
		w.result.FunctionCalls = append(w.result.FunctionCalls, FunctionCall{Name: qualified})
		if _, declared := w.inspector.functions[qualified]; !declared {
			w.walk(call.Target(), shadows)
		}
		for _, arg := range call.Args() {
			w.walk(arg, shadows)
		}
		return
	}

	if _, declared := w.inspector.functions[fn]; declared {
		args := make([]string, len(call.Args()))
		for i, arg := range call.Args() {
			args[i] = unparse(arg)
		}
		w.result.FunctionCalls = append(w.result.FunctionCalls, FunctionCall{Name: fn, Arguments: args})
	} else if _, builtin := celBuiltins[fn]; !builtin {
		w.recordUnknownFunction(fn)
	}
	for _, arg := range call.Args() {
		w.walk(arg, shadows)
	}
}

// walkComprehension reports macro-expanded comprehensions (filter, all,
// exists, map in receiver position) uniformly as "filter" calls carrying the
// iteration range, the loop step and the result in textual form. The
// accumulator initializer and loop condition are synthetic and not walked.
func (w *walker) walkComprehension(e celast.Expr, shadows map[string]struct{}) {
	comp := e.AsComprehension()
	w.result.FunctionCalls = append(w.result.FunctionCalls, FunctionCall{
		Name: "filter",
		Arguments: []string{
			unparse(comp.IterRange()),
			unparse(comp.LoopStep()),
			unparse(comp.Result()),
		},
	})

	w.walk(comp.IterRange(), shadows)

	inner := make(map[string]struct{}, len(shadows)+3)
	for k := range shadows {
		inner[k] = struct{}{}
	}
	if v := comp.IterVar(); v != "" {
		inner[v] = struct{}{}
	}
	if v := comp.IterVar2(); v != "" {
		inner[v] = struct{}{}
	}
	if v := comp.AccuVar(); v != "" {
		inner[v] = struct{}{}
	}
	w.walk(comp.LoopStep(), inner)
	w.walk(comp.Result(), inner)
}

func (w *walker) recordIdent(name string, shadows map[string]struct{}) {
	if _, shadowed := shadows[name]; shadowed {
		return
	}
	if isAccumulator(name) {
		return
	}
	if _, ok := w.inspector.resources[name]; ok {
		w.result.ResourceDependencies = append(w.result.ResourceDependencies, ResourceDependency{
			ID:   name,
			Path: name,
		})
		return
	}
	w.recordUnknownResource(name)
}

func (w *walker) recordUnknownResource(id string) {
	if _, seen := w.unknownResources[id]; seen {
		return
	}
	w.unknownResources[id] = struct{}{}
	w.result.UnknownResources = append(w.result.UnknownResources, UnknownResource{ID: id, Path: id})
}

func (w *walker) recordUnknownFunction(name string) {
	if _, seen := w.unknownFunctions[name]; seen {
		return
	}
	w.unknownFunctions[name] = struct{}{}
	w.result.UnknownFunctions = append(w.result.UnknownFunctions, name)
}

// selectChain resolves a select expression down to its root identifier.
// It returns the root ident name, the full dotted path and whether the chain
// consists purely of selects over an identifier.
func selectChain(e celast.Expr) (root, path string, pure bool) {
	var fields []string
	cur := e
	for cur.Kind() == celast.SelectKind {
		sel := cur.AsSelect()
		fields = append(fields, sel.FieldName())
		cur = sel.Operand()
	}
	if cur.Kind() != celast.IdentKind {
		return "", "", false
	}
	root = cur.AsIdent()
	var sb strings.Builder
	sb.WriteString(root)
	for i := len(fields) - 1; i >= 0; i-- {
		sb.WriteByte('.')
		sb.WriteString(fields[i])
	}
	return root, sb.String(), true
}

func isAccumulator(name string) bool {
	return name == "__result__" || strings.HasPrefix(name, "@")
}

var binaryOperators = map[string]string{
	operators.LogicalAnd:    "&&",
	operators.LogicalOr:     "||",
	operators.Equals:        "==",
	operators.NotEquals:     "!=",
	operators.Less:          "<",
	operators.LessEquals:    "<=",
	operators.Greater:       ">",
	operators.GreaterEquals: ">=",
	operators.Add:           "+",
	operators.Subtract:      "-",
	operators.Multiply:      "*",
	operators.Divide:        "/",
	operators.Modulo:        "%",
	operators.In:            "in",
}

func isOperator(fn string) bool {
	if _, ok := binaryOperators[fn]; ok {
		return true
	}
	switch fn {
	case operators.LogicalNot, operators.Negate, operators.Conditional,
		operators.Index, operators.OptIndex, operators.OptSelect,
		operators.NotStrictlyFalse:
		return true
	}
	return false
}

// unparse renders an expression back to CEL source text. Binary and ternary
// operations are always parenthesized so nesting is unambiguous, and the
// comprehension accumulator renders as "@result".
func unparse(e celast.Expr) string {
	if e == nil {
		return ""
	}
	switch e.Kind() {
	case celast.IdentKind:
		name := e.AsIdent()
		if name == "__result__" {
			return "@result"
		}
		return name
	case celast.LiteralKind:
		return unparseLiteral(e.AsLiteral())
	case celast.SelectKind:
		sel := e.AsSelect()
		return unparse(sel.Operand()) + "." + sel.FieldName()
	case celast.CallKind:
		return unparseCall(e)
	case celast.ListKind:
		elems := e.AsList().Elements()
		parts := make([]string, len(elems))
		for i, elem := range elems {
			parts[i] = unparse(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case celast.MapKind:
		entries := e.AsMap().Entries()
		parts := make([]string, len(entries))
		for i, entry := range entries {
			me := entry.AsMapEntry()
			parts[i] = unparse(me.Key()) + ": " + unparse(me.Value())
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case celast.StructKind:
		st := e.AsStruct()
		fields := st.Fields()
		parts := make([]string, len(fields))
		for i, field := range fields {
			sf := field.AsStructField()
			parts[i] = sf.Name() + ": " + unparse(sf.Value())
		}
		return st.TypeName() + "{" + strings.Join(parts, ", ") + "}"
	case celast.ComprehensionKind:
		comp := e.AsComprehension()
		return "filter(" + unparse(comp.IterRange()) + ", " +
			unparse(comp.LoopStep()) + ", " + unparse(comp.Result()) + ")"
	}
	return ""
}

func unparseCall(e celast.Expr) string {
	call := e.AsCall()
	fn := call.FunctionName()
	args := call.Args()

	if sym, ok := binaryOperators[fn]; ok && len(args) == 2 {
		return "(" + unparse(args[0]) + " " + sym + " " + unparse(args[1]) + ")"
	}
	switch fn {
	case operators.LogicalNot:
		return "!" + unparse(args[0])
	case operators.Negate:
		return "-" + unparse(args[0])
	case operators.Conditional:
		return "(" + unparse(args[0]) + " ? " + unparse(args[1]) + " : " + unparse(args[2]) + ")"
	case operators.Index:
		return unparse(args[0]) + "[" + unparse(args[1]) + "]"
	case operators.OptIndex:
		return unparse(args[0]) + "[?" + unparse(args[1]) + "]"
	}

	rendered := make([]string, len(args))
	for i, arg := range args {
		rendered[i] = unparse(arg)
	}
	if call.IsMemberFunction() {
		return unparse(call.Target()) + "." + fn + "(" + strings.Join(rendered, ", ") + ")"
	}
	return fn + "(" + strings.Join(rendered, ", ") + ")"
}

func unparseLiteral(v ref.Val) string {
	switch v.Type() {
	case types.StringType:
		return strconv.Quote(v.Value().(string))
	case types.BytesType:
		var sb strings.Builder
		sb.WriteString(`b"`)
		for _, b := range v.Value().([]byte) {
			fmt.Fprintf(&sb, `\%03o`, b)
		}
		sb.WriteString(`"`)
		return sb.String()
	case types.IntType:
		return strconv.FormatInt(v.Value().(int64), 10)
	case types.UintType:
		return strconv.FormatUint(v.Value().(uint64), 10) + "u"
	case types.DoubleType:
		return strconv.FormatFloat(v.Value().(float64), 'g', -1, 64)
	case types.BoolType:
		return strconv.FormatBool(v.Value().(bool))
	case types.NullType:
		return "null"
	}
	return fmt.Sprintf("%v", v.Value())
}
