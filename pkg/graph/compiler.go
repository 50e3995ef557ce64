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

package graph

import (
	"github.com/google/cel-go/common/decls"
	"k8s.io/apimachinery/pkg/api/meta"

	"github.com/kubernetes-sigs/kro-sdk-go/api/v1alpha1"
)

// Parser converts a ResourceGraphDefinition into the internal parsed form.
// It is responsible for schema-agnostic decoding/normalization.
type Parser interface {
	// Parse decodes templates/status payloads and condition expressions into
	// ParsedRGD, including schemaless resource/status field extraction.
	// Parse is schema-agnostic: it does not do API discovery or type checking.
	Parse(*v1alpha1.ResourceGraphDefinition) (*ParsedRGD, error)
}

// Validator enforces structural and semantic invariants on parsed data.
type Validator interface {
	// Validate returns an error when ParsedRGD violates shape, naming, or CEL
	// usage rules that can be checked without cluster access.
	Validate(*ParsedRGD) error
}

// Resolver enriches parsed nodes with API identity (GVK, GVR, scope).
type Resolver interface {
	// Resolve maps parsed resources to concrete GVK/GVR identity and returns
	// a ResolvedRGD that is ready for reference linking.
	Resolve(*ParsedRGD) (*ResolvedRGD, error)
}

// Linker resolves expression references and computes dependency edges.
// It produces a linked graph annotated with dependency ordering data.
type Linker interface {
	// Link validates reference scopes, records node dependencies, and produces
	// DAG/topological-order data for downstream stages.
	Link(*ResolvedRGD) (*LinkedRGD, error)
}

// ProgramGenerator turns linked expressions into executable CEL programs.
// It preserves graph metadata needed by runtime evaluation.
type ProgramGenerator interface {
	// Generate emits CompiledRGD with executable programs and runtime metadata.
	// Custom function declarations, when present, extend the shared environment.
	Generate(*LinkedRGD, []*decls.FunctionDecl) (*CompiledRGD, error)
}

// Assembler materializes the final Graph from compiled artifacts.
type Assembler interface {
	// Assemble materializes the final Graph, including the instance node,
	// node indexes, and the level partition consumed by deploy engines.
	Assemble(*CompiledRGD) (*Graph, error)
}

// Compiler compiles a ResourceGraphDefinition into an executable graph.
type Compiler interface {
	Compile(*v1alpha1.ResourceGraphDefinition) (*Graph, error)
}

// GraphCompiler orchestrates the graph compilation pipeline end-to-end.
// Each stage can be replaced through options for testing or custom behavior.
type GraphCompiler struct {
	parser           Parser
	validator        Validator
	resolver         Resolver
	linker           Linker
	programGenerator ProgramGenerator
	assembler        Assembler
	restMapper       meta.RESTMapper
}

// Option mutates GraphCompiler stage wiring before defaults are applied.
// Use options to inject custom implementations for any stage.
type Option func(*GraphCompiler)

// WithParser overrides the parser stage implementation.
func WithParser(p Parser) Option { return func(b *GraphCompiler) { b.parser = p } }

// WithValidator overrides the validator stage implementation.
func WithValidator(v Validator) Option { return func(b *GraphCompiler) { b.validator = v } }

// WithResolver overrides the resolver stage implementation.
func WithResolver(r Resolver) Option { return func(b *GraphCompiler) { b.resolver = r } }

// WithRESTMapper supplies a RESTMapper for the default resolver. Without
// one, GVRs are derived offline by pluralizing kinds.
func WithRESTMapper(rm meta.RESTMapper) Option {
	return func(b *GraphCompiler) { b.restMapper = rm }
}

// WithLinker overrides the linker stage implementation.
func WithLinker(l Linker) Option { return func(b *GraphCompiler) { b.linker = l } }

// WithProgramGenerator overrides the program-generator stage implementation.
func WithProgramGenerator(pg ProgramGenerator) Option {
	return func(b *GraphCompiler) { b.programGenerator = pg }
}

// WithAssembler overrides the assembler stage implementation.
func WithAssembler(a Assembler) Option { return func(b *GraphCompiler) { b.assembler = a } }

// NewCompiler constructs a GraphCompiler pipeline.
//
// Configuration flow:
// 1. Apply opts to inject custom stages.
// 2. Fill any nil stage with the package default implementation.
func NewCompiler(opts ...Option) (*GraphCompiler, error) {
	b := &GraphCompiler{}
	for _, opt := range opts {
		opt(b)
	}

	// Fill defaults only for stages not explicitly provided by options.
	if b.parser == nil {
		b.parser = newParser()
	}
	if b.validator == nil {
		b.validator = newValidator()
	}
	if b.resolver == nil {
		b.resolver = newResolver(b.restMapper)
	}
	if b.linker == nil {
		b.linker = newLinker()
	}
	if b.programGenerator == nil {
		b.programGenerator = newProgramGenerator()
	}
	if b.assembler == nil {
		b.assembler = newAssembler()
	}

	return b, nil
}

// Compile compiles a ResourceGraphDefinition into a Graph.
//
//	Parse -> Validate -> Resolve -> Link -> Generate -> Assemble
func (b *GraphCompiler) Compile(rgd *v1alpha1.ResourceGraphDefinition) (*Graph, error) {
	parsed, err := b.parser.Parse(rgd)
	if err != nil {
		return nil, err
	}
	if err := b.validator.Validate(parsed); err != nil {
		return nil, err
	}
	resolved, err := b.resolver.Resolve(parsed)
	if err != nil {
		return nil, err
	}
	linked, err := b.linker.Link(resolved)
	if err != nil {
		return nil, err
	}
	fns, err := buildFunctions(rgd.Spec.Functions)
	if err != nil {
		return nil, terminal("compiler", err)
	}
	compiled, err := b.programGenerator.Generate(linked, fns)
	if err != nil {
		return nil, err
	}
	g, err := b.assembler.Assemble(compiled)
	if err != nil {
		return nil, err
	}
	g.Definition = rgd
	return g, nil
}
