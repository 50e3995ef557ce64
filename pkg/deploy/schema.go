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

package deploy

import (
	"encoding/json"

	extv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
)

// schemaWithDefaults merges the instance schema's declared defaults into
// the caller-supplied schema values. With the control loop the API server
// defaults instance specs from the generated CRD; the direct engine has no
// server in the path, so it applies the same defaults itself. Caller
// values always win; defaults fill only absent fields.
func schemaWithDefaults(spec *extv1.JSONSchemaProps, values map[string]interface{}) map[string]interface{} {
	out := deepCopyValues(values)
	if out == nil {
		out = map[string]interface{}{}
	}
	if spec == nil {
		return out
	}
	specBlock, ok := out["spec"].(map[string]interface{})
	if !ok {
		if _, exists := out["spec"]; exists {
			return out
		}
		specBlock = map[string]interface{}{}
	}
	applyDefaultsInto(spec, specBlock)
	if len(specBlock) > 0 {
		out["spec"] = specBlock
	}
	return out
}

func applyDefaultsInto(props *extv1.JSONSchemaProps, values map[string]interface{}) {
	for name, prop := range props.Properties {
		cur, present := values[name]
		if !present {
			if prop.Default == nil {
				continue
			}
			var v interface{}
			if err := json.Unmarshal(prop.Default.Raw, &v); err != nil {
				continue
			}
			values[name] = v
			cur = v
		}
		// Descend into object properties so nested defaults fill in
		// around caller-supplied siblings, and below object defaults
		// that start out empty.
		if nested, ok := cur.(map[string]interface{}); ok && len(prop.Properties) > 0 {
			p := prop
			applyDefaultsInto(&p, nested)
		}
	}
}

func deepCopyValues(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		if m, ok := v.(map[string]interface{}); ok {
			out[k] = deepCopyValues(m)
			continue
		}
		out[k] = v
	}
	return out
}
