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

// Package deploy executes compiled resource graphs against a cluster.
//
// Two engines implement the Deployer interface. Engine applies
// resources itself: level by level, substituting cross-resource
// references with live values, retrying transient apply failures, and
// polling readiness per resource. ControlLoopEngine delegates instead:
// it applies the graph's ResourceGraphDefinition and lets the kro
// controller reconcile, waiting only for the definition to be accepted.
//
// Both engines report through the same DeploymentResult and emit the
// same discriminated event stream via Options.OnEvent.
package deploy
