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
	"strings"
)

// ValidationOptions controls context validation. Strict upgrades every
// advisory to a blocking error.
type ValidationOptions struct {
	Strict bool
}

// ValidateBooleanContext checks that a compiled expression is usable
// where a boolean is required (readyWhen, includeWhen). A provably
// non-boolean type is always an error; an unprovable one is an advisory
// unless strict.
func ValidateBooleanContext(c *CompiledExpression, opts ValidationOptions) []Diagnostic {
	var diags []Diagnostic
	switch c.OutputType {
	case "bool":
	case "dyn", "optional", "":
		diags = append(diags, Diagnostic{
			Severity: SeverityAdvisory,
			Message:  fmt.Sprintf("cannot prove the expression yields a boolean (inferred %q)", c.OutputType),
		})
	default:
		diags = append(diags, Diagnostic{
			Severity: SeverityError,
			Message:  fmt.Sprintf("expression yields %q where a boolean is required", c.OutputType),
		})
	}
	return applyStrict(diags, opts)
}

// StatusReferenceAdvisories flags readiness-style references that read
// a dependency's spec instead of its status. Spec fields are known at
// construction time, so gating readiness on them is usually a mistake.
func StatusReferenceAdvisories(n Node, opts ValidationOptions) []Diagnostic {
	var diags []Diagnostic
	for _, ref := range References(n) {
		if ref.ResourceID == SchemaID {
			continue
		}
		if ref.Path == "status" || strings.HasPrefix(ref.Path, "status.") || strings.HasPrefix(ref.Path, "status[") {
			continue
		}
		diags = append(diags, Diagnostic{
			Severity: SeverityAdvisory,
			Message:  fmt.Sprintf("reference %s does not read a status field; its value never changes after creation", ref),
		})
	}
	return applyStrict(diags, opts)
}

// Blocking reports whether any diagnostic is an error.
func Blocking(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

func applyStrict(diags []Diagnostic, opts ValidationOptions) []Diagnostic {
	if !opts.Strict {
		return diags
	}
	for i := range diags {
		if diags[i].Severity == SeverityAdvisory {
			diags[i].Severity = SeverityError
		}
	}
	return diags
}
