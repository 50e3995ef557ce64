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

// Package graph builds an executable resource graph either from a
// v1alpha1.ResourceGraphDefinition or from typed resources handed to
// the Builder.
//
// The GraphCompiler runs a fixed multi-stage pipeline:
//
//	Parse -> Validate -> Resolve -> Link -> Generate -> Assemble
//
// Each stage produces a more explicit representation:
//
//   - Parse: v1alpha1.ResourceGraphDefinition -> ParsedRGD
//   - Resolve: ParsedRGD -> ResolvedRGD
//   - Link: ResolvedRGD -> LinkedRGD
//   - Generate: LinkedRGD -> CompiledRGD
//   - Assemble: CompiledRGD -> Graph (final output)
//
// Stage contract:
//   - Stage inputs are treated as immutable.
//   - Each stage returns a distinct output type consumed by the next stage.
//
// Phase responsibilities:
//
//   - Parse:
//     Decodes RawExtension payloads, extracts CEL strings schemalessly, parses
//     conditions, and creates normalized node/instance metadata.
//
//   - Validate:
//     Enforces static invariants (naming, reserved words, object structure,
//     label prefixes, CRD expression constraints).
//
//   - Resolve:
//     Resolves node identity (GVK/GVR/scope), through the REST mapper when one
//     is configured and through offline pluralization otherwise. This is the
//     only stage that may depend on API server discovery state.
//
//   - Link:
//     Inspects CEL references, validates expression scope, classifies field
//     kinds (static/dynamic), records external references, and builds the
//     dependency DAG + topological order.
//
//   - Generate:
//     Compiles every expression into a reusable cel.Program in one shared
//     environment declaring the schema, the resource ids, and any custom
//     functions.
//
//   - Assemble:
//     Partitions the topological order into dependency levels, creates the
//     instance node, collects external references, and emits the final Graph.
//
// The Builder is the typed front door over the same pipeline: it lowers
// expression trees embedded in manifests to their ${...} interpolation
// form, wraps them in an in-memory definition, and compiles that.
//
// Error model:
//
//   - TerminalError: user/actionable input issue (do not retry until the
//     input changes).
//   - RetriableError: transient external issue (safe to retry, e.g. discovery
//     timing).
//
// Helpers IsTerminal and IsRetriable can be used by callers/controllers to
// decide reconciliation behavior.
package graph
