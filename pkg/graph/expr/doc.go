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

// Package expr models author expressions over not-yet-resolved resource
// fields and compiles them into the controller's CEL syntax.
//
// The central value is the reference: Ref("web", "status.readyReplicas")
// stands for a field of another resource in the same graph, and
// Schema("spec.replicas") for a field of the graph's own instance spec.
// References compose into larger expressions through explicit builder
// functions (Eq, Gt, Cond, Template, ...) forming a tagged node tree;
// there is no field interception or runtime magic of any kind.
//
// Detect finds references embedded anywhere in an arbitrary value tree.
// Compile lowers a node tree into an expression string, and CompileValue
// converts a whole manifest for the control-loop target, replacing each
// reference-bearing site with its ${...} interpolation string. The
// Direct deployment strategy skips compilation entirely and substitutes
// live values into the original tree at apply time.
package expr
