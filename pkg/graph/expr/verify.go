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
	"sync"

	"github.com/google/cel-go/cel"

	krocel "github.com/kubernetes-sigs/kro-sdk-go/pkg/cel"
	krocelast "github.com/kubernetes-sigs/kro-sdk-go/pkg/cel/ast"
)

var (
	envOnce sync.Once
	env     *cel.Env
	envErr  error
)

// compileEnv is the environment the emitted text must parse under: the
// controller's default environment with the schema sentinel and the
// resources root declared.
func compileEnv() (*cel.Env, error) {
	envOnce.Do(func() {
		env, envErr = krocel.DefaultEnvironment(
			krocel.WithResourceIDs([]string{SchemaID, "resources"}),
		)
	})
	return env, envErr
}

// Verify re-parses a compiled expression through the controller's
// environment and cross-checks the identifiers it reads against the
// compiler's own accounting. A verification failure means the emitted
// text would be rejected or misread by the controller.
func Verify(c *CompiledExpression) error {
	e, err := compileEnv()
	if err != nil {
		return fmt.Errorf("building verification environment: %w", err)
	}
	if _, iss := e.Compile(c.Expression); iss != nil && iss.Err() != nil {
		return fmt.Errorf("compiled expression does not parse: %w", iss.Err())
	}

	res, err := krocelast.NewInspectorWithEnv(e, []string{SchemaID, "resources"}).Inspect(c.Expression)
	if err != nil {
		return fmt.Errorf("inspecting compiled expression: %w", err)
	}
	if len(res.UnknownResources) > 0 {
		return fmt.Errorf("compiled expression reads undeclared identifier %q", res.UnknownResources[0].ID)
	}

	seen := map[string]struct{}{}
	for _, dep := range res.ResourceDependencies {
		ref, ok := referenceFromPath(dep.Path)
		if !ok || ref.ResourceID == SchemaID {
			continue
		}
		seen[ref.ResourceID] = struct{}{}
	}
	declared := map[string]struct{}{}
	for _, id := range c.ReferencedIDs {
		declared[id] = struct{}{}
	}
	for id := range seen {
		if _, ok := declared[id]; !ok {
			return fmt.Errorf("compiled expression reads resource %q not present in ReferencedIDs", id)
		}
	}
	return nil
}
