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

import "errors"

// CompileError reports an author expression that cannot be represented
// in the target syntax. It is synchronous and never retried.
type CompileError struct {
	// Message describes the unrepresentable construct.
	Message string

	// Path locates the construct within a scanned value, when the
	// compilation was driven by a manifest walk.
	Path string
}

func (e *CompileError) Error() string {
	if e.Path != "" {
		return "compile error at " + e.Path + ": " + e.Message
	}
	return "compile error: " + e.Message
}

// IsCompileError reports whether err is (or wraps) a CompileError.
func IsCompileError(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce)
}
