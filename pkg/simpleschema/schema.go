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

package simpleschema

import (
	"fmt"

	extv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
)

// ToOpenAPISpec converts a simple-schema object, plus optional named custom
// types, into an OpenAPI JSONSchemaProps.
func ToOpenAPISpec(obj, customTypes map[string]interface{}) (*extv1.JSONSchemaProps, error) {
	tf := newTransformer()
	if len(customTypes) > 0 {
		if err := tf.loadPreDefinedTypes(customTypes); err != nil {
			return nil, fmt.Errorf("load custom types: %w", err)
		}
	}
	return tf.buildOpenAPISchema(obj)
}
