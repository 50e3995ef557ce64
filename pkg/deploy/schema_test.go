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
	"testing"

	"github.com/stretchr/testify/require"
	extv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
)

func specProps(props map[string]extv1.JSONSchemaProps) *extv1.JSONSchemaProps {
	return &extv1.JSONSchemaProps{Type: "object", Properties: props}
}

func withDefault(typ, raw string) extv1.JSONSchemaProps {
	return extv1.JSONSchemaProps{Type: typ, Default: &extv1.JSON{Raw: []byte(raw)}}
}

func TestSchemaWithDefaults(t *testing.T) {
	tests := []struct {
		name   string
		spec   *extv1.JSONSchemaProps
		values map[string]interface{}
		want   map[string]interface{}
	}{
		{
			name: "defaults fill absent fields",
			spec: specProps(map[string]extv1.JSONSchemaProps{
				"name":     withDefault("string", `"app"`),
				"replicas": withDefault("integer", `3`),
			}),
			values: nil,
			want: map[string]interface{}{
				"spec": map[string]interface{}{"name": "app", "replicas": float64(3)},
			},
		},
		{
			name: "caller values win over defaults",
			spec: specProps(map[string]extv1.JSONSchemaProps{
				"name":     withDefault("string", `"app"`),
				"replicas": withDefault("integer", `3`),
			}),
			values: map[string]interface{}{
				"spec": map[string]interface{}{"name": "frontend"},
			},
			want: map[string]interface{}{
				"spec": map[string]interface{}{"name": "frontend", "replicas": float64(3)},
			},
		},
		{
			name: "nested object defaults fill around siblings",
			spec: specProps(map[string]extv1.JSONSchemaProps{
				"image": {Type: "object", Properties: map[string]extv1.JSONSchemaProps{
					"repo": {Type: "string"},
					"tag":  withDefault("string", `"latest"`),
				}},
			}),
			values: map[string]interface{}{
				"spec": map[string]interface{}{
					"image": map[string]interface{}{"repo": "nginx"},
				},
			},
			want: map[string]interface{}{
				"spec": map[string]interface{}{
					"image": map[string]interface{}{"repo": "nginx", "tag": "latest"},
				},
			},
		},
		{
			name: "object default seeds nested defaults",
			spec: specProps(map[string]extv1.JSONSchemaProps{
				"image": {
					Type:    "object",
					Default: &extv1.JSON{Raw: []byte(`{}`)},
					Properties: map[string]extv1.JSONSchemaProps{
						"tag": withDefault("string", `"latest"`),
					},
				},
			}),
			values: nil,
			want: map[string]interface{}{
				"spec": map[string]interface{}{
					"image": map[string]interface{}{"tag": "latest"},
				},
			},
		},
		{
			name:   "nil schema passes values through",
			spec:   nil,
			values: map[string]interface{}{"spec": map[string]interface{}{"name": "x"}},
			want:   map[string]interface{}{"spec": map[string]interface{}{"name": "x"}},
		},
		{
			name:   "no defaults and no values yields empty schema",
			spec:   specProps(map[string]extv1.JSONSchemaProps{"name": {Type: "string"}}),
			values: nil,
			want:   map[string]interface{}{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := schemaWithDefaults(tt.spec, tt.values)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestSchemaWithDefaults_DoesNotMutateInput(t *testing.T) {
	values := map[string]interface{}{"spec": map[string]interface{}{"name": "x"}}
	spec := specProps(map[string]extv1.JSONSchemaProps{
		"replicas": withDefault("integer", `3`),
	})
	_ = schemaWithDefaults(spec, values)
	require.Equal(t, map[string]interface{}{"spec": map[string]interface{}{"name": "x"}}, values)
}
