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

package parser

import (
	"fmt"
	"strings"
)

// extractExpressions returns the CEL expressions embedded in a string as
// ${...} interpolations, in order of appearance. Braces inside string
// literals within an expression do not terminate it.
func extractExpressions(s string) ([]string, error) {
	var expressions []string
	for i := 0; i < len(s); i++ {
		if s[i] != '$' || i+1 >= len(s) || s[i+1] != '{' {
			continue
		}
		end, err := matchExpressionEnd(s, i+2)
		if err != nil {
			return nil, err
		}
		expr := strings.TrimSpace(s[i+2 : end])
		if expr == "" {
			return nil, fmt.Errorf("empty expression at position %d", i)
		}
		expressions = append(expressions, expr)
		i = end
	}
	return expressions, nil
}

// matchExpressionEnd scans from start for the '}' closing a ${ opener,
// tracking nested braces and skipping quoted string literals.
func matchExpressionEnd(s string, start int) (int, error) {
	depth := 1
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '\'', '"':
			quote := s[i]
			i++
			for i < len(s) && s[i] != quote {
				if s[i] == '\\' {
					i++
				}
				i++
			}
			if i >= len(s) {
				return 0, fmt.Errorf("unterminated string literal in expression")
			}
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("unmatched '${' in %q", s)
}

// isStandaloneExpression reports whether the whole string is exactly one
// ${...} expression with nothing around it.
func isStandaloneExpression(s string) (bool, error) {
	if !strings.HasPrefix(s, "${") {
		return false, nil
	}
	end, err := matchExpressionEnd(s, 2)
	if err != nil {
		return false, err
	}
	return end == len(s)-1, nil
}

// joinPathAndFieldName appends a map key to a field path, bracket-quoting
// keys that would be ambiguous in dotted notation.
func joinPathAndFieldName(path, field string) string {
	if field == "" || strings.ContainsAny(field, ".[]\"") {
		return fmt.Sprintf("%s[%q]", path, field)
	}
	if path == "" {
		return field
	}
	return path + "." + field
}
