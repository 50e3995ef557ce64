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
	"sort"
	"strconv"
	"strings"

	krocelast "github.com/kubernetes-sigs/kro-sdk-go/pkg/cel/ast"
	"github.com/kubernetes-sigs/kro-sdk-go/pkg/graph/fieldpath"
)

// Severity classifies a diagnostic.
type Severity string

const (
	SeverityError    Severity = "error"
	SeverityWarning  Severity = "warning"
	SeverityAdvisory Severity = "advisory"
)

// Diagnostic is a single finding produced during compilation or
// context validation.
type Diagnostic struct {
	Severity Severity
	Message  string

	// Path locates the finding within the compiled node tree or the
	// scanned value, when known.
	Path string
}

func (d Diagnostic) String() string {
	if d.Path != "" {
		return fmt.Sprintf("%s: %s: %s", d.Severity, d.Path, d.Message)
	}
	return fmt.Sprintf("%s: %s", d.Severity, d.Message)
}

// SourceEntry links one sub-expression to the fragment it produced in
// the emitted text. Start and End are byte offsets into Expression.
type SourceEntry struct {
	Kind     string
	Fragment string
	Start    int
	End      int
}

// CompiledExpression is the target-syntax form of an author expression.
// Once produced it is opaque to this package: the controller evaluates
// Expression against live cluster state.
type CompiledExpression struct {
	// Expression is the emitted text, valid standalone (for readyWhen
	// and includeWhen style fields).
	Expression string

	// OutputType is the inferred result type, or "dyn" when it cannot
	// be proven.
	OutputType string

	// ReferencedIDs lists the distinct resource ids the expression
	// reads from, sorted. The schema sentinel is not a resource and is
	// omitted.
	ReferencedIDs []string

	// Diagnostics collects non-fatal findings. Fatal problems are
	// returned as errors from Compile instead.
	Diagnostics []Diagnostic

	// SourceMap links sub-expressions to emitted fragments.
	SourceMap []SourceEntry

	parts []templatePart
}

// templatePart is one fragment of the interpolated form: either a
// literal run or an expression to wrap in ${...}.
type templatePart struct {
	literal string
	expr    string
}

// Interpolated returns the manifest-embedding form: the expression
// wrapped in ${...} delimiters, with template literal runs emitted
// verbatim between interpolations. This is the exact contract the
// controller's parser expects.
func (c *CompiledExpression) Interpolated() string {
	var b strings.Builder
	for _, p := range c.parts {
		if p.expr != "" {
			b.WriteString("${")
			b.WriteString(p.expr)
			b.WriteString("}")
		} else {
			b.WriteString(p.literal)
		}
	}
	return b.String()
}

// methodKind partitions the call whitelist by emission shape.
type methodKind int

const (
	methodGlobal methodKind = iota // name(target, args...)
	methodMember                   // target.name(args...)
	methodMacro                    // target.name(var, body)
)

// callWhitelist is the fixed set of methods an author expression may
// invoke. Anything else is a compile-time error.
var callWhitelist = map[string]struct {
	kind    methodKind
	celName string
	outType string
	minArgs int
	maxArgs int
}{
	"size":       {methodGlobal, "size", "int", 0, 0},
	"len":        {methodGlobal, "size", "int", 0, 0},
	"string":     {methodGlobal, "string", "string", 0, 0},
	"int":        {methodGlobal, "int", "int", 0, 0},
	"contains":   {methodMember, "contains", "bool", 1, 1},
	"startsWith": {methodMember, "startsWith", "bool", 1, 1},
	"endsWith":   {methodMember, "endsWith", "bool", 1, 1},
	"lowerAscii": {methodMember, "lowerAscii", "string", 0, 0},
	"upperAscii": {methodMember, "upperAscii", "string", 0, 0},
	"trim":       {methodMember, "trim", "string", 0, 0},
	"split":      {methodMember, "split", "list", 1, 2},
	"join":       {methodMember, "join", "string", 0, 1},
	"filter":     {methodMacro, "filter", "list", 2, 2},
	"map":        {methodMacro, "map", "list", 2, 2},
	"exists":     {methodMacro, "exists", "bool", 2, 2},
	"all":        {methodMacro, "all", "bool", 2, 2},
}

// Compile lowers an expression tree into the controller's syntax.
// Emission is bottom-up over the node kinds; unrepresentable constructs
// return a *CompileError rather than a best-effort string.
func Compile(n Node) (*CompiledExpression, error) {
	if n == nil {
		return nil, &CompileError{Message: "cannot compile a nil expression"}
	}
	e := &emitter{refs: map[string]struct{}{}, scope: map[string]struct{}{}}
	c := &CompiledExpression{}

	if t, ok := n.(*TemplateExpr); ok {
		typ, err := e.emitTemplate(c, t)
		if err != nil {
			return nil, err
		}
		c.OutputType = typ
	} else {
		typ, err := e.emit(n)
		if err != nil {
			return nil, err
		}
		c.Expression = e.buf.String()
		c.OutputType = typ
		c.parts = []templatePart{{expr: c.Expression}}
		c.SourceMap = e.srcmap
	}

	for id := range e.refs {
		c.ReferencedIDs = append(c.ReferencedIDs, id)
	}
	sort.Strings(c.ReferencedIDs)
	c.Diagnostics = e.diags
	return c, nil
}

type emitter struct {
	buf    strings.Builder
	refs   map[string]struct{}
	diags  []Diagnostic
	srcmap []SourceEntry

	// scope holds the iteration variables currently declared by
	// enclosing comprehension calls.
	scope map[string]struct{}
}

// emitOperand emits n, parenthesized when it is itself an operator
// expression, so nesting never changes meaning.
func (e *emitter) emitOperand(n Node) (string, error) {
	if isCompound(n) {
		e.buf.WriteString("(")
		typ, err := e.emit(n)
		if err != nil {
			return "", err
		}
		e.buf.WriteString(")")
		return typ, nil
	}
	return e.emit(n)
}

func isCompound(n Node) bool {
	switch n.(type) {
	case *BinaryExpr, *CondExpr, *RawExpr:
		return true
	}
	return false
}

// emit writes the fragment for n and returns its inferred type.
func (e *emitter) emit(n Node) (string, error) {
	start := e.buf.Len()
	typ, err := e.emitNode(n)
	if err != nil {
		return "", err
	}
	end := e.buf.Len()
	e.srcmap = append(e.srcmap, SourceEntry{
		Kind:     nodeKind(n),
		Fragment: e.buf.String()[start:end],
		Start:    start,
		End:      end,
	})
	return typ, nil
}

func (e *emitter) emitNode(n Node) (string, error) {
	switch t := n.(type) {
	case *Literal:
		return e.emitLiteral(t.Value)

	case *FieldRef:
		e.recordRef(t.Ref)
		e.buf.WriteString(refText(t.Ref))
		if t.Ref.Type != "" {
			return t.Ref.Type, nil
		}
		return "dyn", nil

	case *Ident:
		if _, ok := e.scope[t.Name]; !ok {
			return "", &CompileError{Message: fmt.Sprintf("identifier %q is not declared by an enclosing comprehension", t.Name)}
		}
		e.buf.WriteString(t.Name)
		return "dyn", nil

	case *BinaryExpr:
		return e.emitBinary(t)

	case *NotExpr:
		e.buf.WriteString("!")
		if _, err := e.emitOperand(t.Operand); err != nil {
			return "", err
		}
		return "bool", nil

	case *NegateExpr:
		e.buf.WriteString("-")
		typ, err := e.emitOperand(t.Operand)
		if err != nil {
			return "", err
		}
		return typ, nil

	case *CondExpr:
		if _, err := e.emitOperand(t.Cond); err != nil {
			return "", err
		}
		e.buf.WriteString(" ? ")
		thenType, err := e.emitOperand(t.Then)
		if err != nil {
			return "", err
		}
		e.buf.WriteString(" : ")
		elseType, err := e.emitOperand(t.Else)
		if err != nil {
			return "", err
		}
		if thenType == elseType {
			return thenType, nil
		}
		return "dyn", nil

	case *IndexExpr:
		if _, err := e.emitOperand(t.Target); err != nil {
			return "", err
		}
		e.buf.WriteString("[")
		if _, err := e.emit(t.Key); err != nil {
			return "", err
		}
		e.buf.WriteString("]")
		return "dyn", nil

	case *CallExpr:
		return e.emitCall(t)

	case *OptSelectExpr:
		if _, err := e.emitOperand(t.Target); err != nil {
			return "", err
		}
		e.buf.WriteString(".?")
		e.buf.WriteString(t.Name)
		return "optional", nil

	case *OptIndexExpr:
		if _, err := e.emitOperand(t.Target); err != nil {
			return "", err
		}
		e.buf.WriteString("[?")
		if _, err := e.emit(t.Key); err != nil {
			return "", err
		}
		e.buf.WriteString("]")
		return "optional", nil

	case *FallbackExpr:
		return e.emitFallback(t)

	case *RawExpr:
		return e.emitRaw(t)

	case *TemplateExpr:
		// A template nested inside another expression compiles to
		// plain string concatenation.
		return e.emitNestedTemplate(t)

	default:
		return "", &CompileError{Message: fmt.Sprintf("unsupported expression node %s", nodeKind(n))}
	}
}

func (e *emitter) emitBinary(t *BinaryExpr) (string, error) {
	if t.Op == OpOr {
		// Disallow the value-fallback reading of || here: Or is
		// boolean disjunction, Coalesce is the fallback.
		for _, side := range []Node{t.Left, t.Right} {
			if _, ok := side.(*FallbackExpr); ok {
				return "", &CompileError{Message: "mixing || with a fallback operand is not supported; use Coalesce"}
			}
		}
	}
	leftType, err := e.emitOperand(t.Left)
	if err != nil {
		return "", err
	}
	e.buf.WriteString(" ")
	e.buf.WriteString(string(t.Op))
	e.buf.WriteString(" ")
	rightType, err := e.emitOperand(t.Right)
	if err != nil {
		return "", err
	}

	switch t.Op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe, OpAnd, OpOr:
		return "bool", nil
	default:
		if leftType == rightType {
			return leftType, nil
		}
		return "dyn", nil
	}
}

func (e *emitter) emitCall(t *CallExpr) (string, error) {
	m, ok := callWhitelist[t.Name]
	if !ok {
		return "", &CompileError{Message: fmt.Sprintf("method %q is not in the supported set", t.Name)}
	}
	if len(t.Args) < m.minArgs || len(t.Args) > m.maxArgs {
		return "", &CompileError{Message: fmt.Sprintf("method %q takes %d to %d arguments, got %d", t.Name, m.minArgs, m.maxArgs, len(t.Args))}
	}

	switch m.kind {
	case methodGlobal:
		e.buf.WriteString(m.celName)
		e.buf.WriteString("(")
		if _, err := e.emit(t.Target); err != nil {
			return "", err
		}
		e.buf.WriteString(")")

	case methodMember:
		if _, err := e.emitOperand(t.Target); err != nil {
			return "", err
		}
		e.buf.WriteString(".")
		e.buf.WriteString(m.celName)
		e.buf.WriteString("(")
		for i, a := range t.Args {
			if i > 0 {
				e.buf.WriteString(", ")
			}
			if _, err := e.emit(a); err != nil {
				return "", err
			}
		}
		e.buf.WriteString(")")

	case methodMacro:
		iter, ok := t.Args[0].(*Ident)
		if !ok {
			return "", &CompileError{Message: fmt.Sprintf("method %q requires an iteration variable as its first argument", t.Name)}
		}
		if _, err := e.emitOperand(t.Target); err != nil {
			return "", err
		}
		e.buf.WriteString(".")
		e.buf.WriteString(m.celName)
		e.buf.WriteString("(")
		e.buf.WriteString(iter.Name)
		e.buf.WriteString(", ")
		_, shadowed := e.scope[iter.Name]
		e.scope[iter.Name] = struct{}{}
		_, err := e.emit(t.Args[1])
		if !shadowed {
			delete(e.scope, iter.Name)
		}
		if err != nil {
			return "", err
		}
		e.buf.WriteString(")")
	}
	return m.outType, nil
}

// emitFallback lowers Coalesce. An optional-access left operand maps
// onto orValue directly; a plain reference is optionalized on its last
// step; anything that reads as a boolean is rejected, since a boolean
// fallback is ambiguous between "false" and "absent".
func (e *emitter) emitFallback(t *FallbackExpr) (string, error) {
	if isBooleanNode(t.Left) {
		return "", &CompileError{Message: "fallback on a boolean left operand is not supported; use a ternary with an explicit condition"}
	}

	switch left := t.Left.(type) {
	case *OptSelectExpr, *OptIndexExpr:
		if _, err := e.emit(left); err != nil {
			return "", err
		}
	case *FieldRef:
		e.recordRef(left.Ref)
		opt, err := optionalRefText(left.Ref)
		if err != nil {
			return "", err
		}
		start := e.buf.Len()
		e.buf.WriteString(opt)
		e.srcmap = append(e.srcmap, SourceEntry{Kind: "ref", Fragment: opt, Start: start, End: e.buf.Len()})
	default:
		// Generic null-check form for computed left operands.
		e.buf.WriteString("(")
		if _, err := e.emitOperand(t.Left); err != nil {
			return "", err
		}
		e.buf.WriteString(" != null ? ")
		if _, err := e.emitOperand(t.Left); err != nil {
			return "", err
		}
		e.buf.WriteString(" : ")
		typ, err := e.emitOperand(t.Right)
		if err != nil {
			return "", err
		}
		e.buf.WriteString(")")
		return typ, nil
	}

	e.buf.WriteString(".orValue(")
	typ, err := e.emit(t.Right)
	if err != nil {
		return "", err
	}
	e.buf.WriteString(")")
	return typ, nil
}

func (e *emitter) emitRaw(t *RawExpr) (string, error) {
	res, err := inspectText(t.Text)
	if err != nil {
		return "", &CompileError{Message: fmt.Sprintf("invalid expression text: %v", err)}
	}
	for _, u := range res.UnknownResources {
		return "", &CompileError{Message: fmt.Sprintf("unknown identifier %q in expression text", u.ID)}
	}
	for _, fn := range res.UnknownFunctions {
		return "", &CompileError{Message: fmt.Sprintf("unknown function %q in expression text", fn)}
	}
	for _, dep := range res.ResourceDependencies {
		if ref, ok := referenceFromPath(dep.Path); ok {
			e.recordRef(ref)
		}
	}
	e.buf.WriteString(t.Text)
	return "dyn", nil
}

// emitTemplate handles a top-level string template: each expression
// part is compiled standalone so Interpolated can wrap it in its own
// ${...} while literal runs pass through verbatim.
func (e *emitter) emitTemplate(c *CompiledExpression, t *TemplateExpr) (string, error) {
	var cel []string
	for _, p := range t.Parts {
		if lit, ok := p.(*Literal); ok {
			if s, ok := lit.Value.(string); ok {
				c.parts = append(c.parts, templatePart{literal: s})
				cel = append(cel, strconv.Quote(s))
				continue
			}
		}
		sub := &emitter{refs: e.refs, scope: e.scope}
		typ, err := sub.emit(p)
		if err != nil {
			return "", err
		}
		frag := sub.buf.String()
		e.diags = append(e.diags, sub.diags...)
		c.parts = append(c.parts, templatePart{expr: frag})
		switch {
		case typ != "string":
			cel = append(cel, "string("+frag+")")
		case isCompound(p):
			cel = append(cel, "("+frag+")")
		default:
			cel = append(cel, frag)
		}
	}
	c.Expression = strings.Join(cel, " + ")
	c.SourceMap = append(c.SourceMap, SourceEntry{Kind: "template", Fragment: c.Expression, Start: 0, End: len(c.Expression)})
	return "string", nil
}

func (e *emitter) emitNestedTemplate(t *TemplateExpr) (string, error) {
	for i, p := range t.Parts {
		if i > 0 {
			e.buf.WriteString(" + ")
		}
		if lit, ok := p.(*Literal); ok {
			if s, ok := lit.Value.(string); ok {
				e.buf.WriteString(strconv.Quote(s))
				continue
			}
		}
		sub := &emitter{refs: e.refs, scope: e.scope}
		typ, err := sub.emit(p)
		if err != nil {
			return "", err
		}
		e.diags = append(e.diags, sub.diags...)
		switch {
		case typ != "string":
			e.buf.WriteString("string(" + sub.buf.String() + ")")
		case isCompound(p):
			e.buf.WriteString("(" + sub.buf.String() + ")")
		default:
			e.buf.WriteString(sub.buf.String())
		}
	}
	return "string", nil
}

func (e *emitter) emitLiteral(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		e.buf.WriteString("null")
		return "null", nil
	case bool:
		e.buf.WriteString(strconv.FormatBool(t))
		return "bool", nil
	case string:
		e.buf.WriteString(strconv.Quote(t))
		return "string", nil
	case int:
		e.buf.WriteString(strconv.Itoa(t))
		return "int", nil
	case int32:
		e.buf.WriteString(strconv.FormatInt(int64(t), 10))
		return "int", nil
	case int64:
		e.buf.WriteString(strconv.FormatInt(t, 10))
		return "int", nil
	case uint:
		e.buf.WriteString(strconv.FormatUint(uint64(t), 10) + "u")
		return "uint", nil
	case uint64:
		e.buf.WriteString(strconv.FormatUint(t, 10) + "u")
		return "uint", nil
	case float32:
		e.buf.WriteString(strconv.FormatFloat(float64(t), 'g', -1, 32))
		return "double", nil
	case float64:
		e.buf.WriteString(strconv.FormatFloat(t, 'g', -1, 64))
		return "double", nil
	case []any:
		e.buf.WriteString("[")
		for i, item := range t {
			if i > 0 {
				e.buf.WriteString(", ")
			}
			if _, err := e.emit(Value(item)); err != nil {
				return "", err
			}
		}
		e.buf.WriteString("]")
		return "list", nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		e.buf.WriteString("{")
		for i, k := range keys {
			if i > 0 {
				e.buf.WriteString(", ")
			}
			e.buf.WriteString(strconv.Quote(k))
			e.buf.WriteString(": ")
			if _, err := e.emit(Value(t[k])); err != nil {
				return "", err
			}
		}
		e.buf.WriteString("}")
		return "map", nil
	default:
		return "", &CompileError{Message: fmt.Sprintf("unsupported literal type %T", v)}
	}
}

func (e *emitter) recordRef(r Reference) {
	if r.ResourceID != SchemaID {
		e.refs[r.ResourceID] = struct{}{}
	}
}

// isBooleanNode reports whether a node provably reads as a boolean.
func isBooleanNode(n Node) bool {
	switch t := n.(type) {
	case *NotExpr:
		return true
	case *BinaryExpr:
		switch t.Op {
		case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe, OpAnd, OpOr:
			return true
		}
	case *Literal:
		_, ok := t.Value.(bool)
		return ok
	case *FieldRef:
		return t.Ref.Type == "bool"
	case *CallExpr:
		if m, ok := callWhitelist[t.Name]; ok {
			return m.outType == "bool"
		}
	}
	return false
}

// optionalRefText renders a reference with optional access on every
// step past the root, so a missing field anywhere along the path yields
// an empty optional instead of an evaluation error.
func optionalRefText(r Reference) (string, error) {
	segs, err := fieldpath.Parse(r.Path)
	if err != nil {
		return "", &CompileError{Message: fmt.Sprintf("invalid reference path %q: %v", r.Path, err)}
	}
	var b strings.Builder
	b.WriteString(refRoot(r))
	for _, s := range segs {
		switch {
		case s.Index >= 0:
			b.WriteString("[?")
			b.WriteString(strconv.Itoa(s.Index))
			b.WriteString("]")
		case needsQuoting(s.Name):
			b.WriteString("[?")
			b.WriteString(strconv.Quote(s.Name))
			b.WriteString("]")
		default:
			b.WriteString(".?")
			b.WriteString(s.Name)
		}
	}
	return b.String(), nil
}

// referenceFromPath recovers a Reference from an inspected select chain
// rooted at schema or resources.
func referenceFromPath(path string) (Reference, bool) {
	if path == SchemaID || strings.HasPrefix(path, SchemaID+".") || strings.HasPrefix(path, SchemaID+"[") {
		return Reference{ResourceID: SchemaID, Path: strings.TrimPrefix(strings.TrimPrefix(path, SchemaID), ".")}, true
	}
	rest, ok := strings.CutPrefix(path, "resources.")
	if !ok {
		return Reference{}, false
	}
	id, fieldPath, _ := strings.Cut(rest, ".")
	if i := strings.IndexByte(id, '['); i >= 0 {
		fieldPath = id[i:] + "." + fieldPath
		id = id[:i]
	}
	if id == "" {
		return Reference{}, false
	}
	return Reference{ResourceID: id, Path: fieldPath}, true
}

func inspectText(text string) (krocelast.InspectionResult, error) {
	env, err := compileEnv()
	if err != nil {
		return krocelast.InspectionResult{}, err
	}
	return krocelast.NewInspectorWithEnv(env, []string{SchemaID, "resources"}).Inspect(text)
}
