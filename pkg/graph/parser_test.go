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

package graph

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	k8sruntime "k8s.io/apimachinery/pkg/runtime"

	"github.com/kubernetes-sigs/kro-sdk-go/api/v1alpha1"
)

// parserTestRaw wraps raw JSON text, or marshals any other value, into
// a RawExtension.
func parserTestRaw(raw any) k8sruntime.RawExtension {
	if s, ok := raw.(string); ok {
		return k8sruntime.RawExtension{Raw: []byte(s)}
	}
	b, err := json.Marshal(raw)
	if err != nil {
		panic(err)
	}
	return k8sruntime.RawExtension{Raw: b}
}

func TestParser_parseInstance_Cases(t *testing.T) {
	tests := []struct {
		name    string
		schema  *v1alpha1.Schema
		wantErr string
		assert  func(*testing.T, *ParsedInstance)
	}{
		{
			name:   "nil schema yields an empty instance",
			schema: nil,
			assert: func(t *testing.T, got *ParsedInstance) {
				t.Helper()
				require.Empty(t, got.Kind)
				require.Empty(t, got.StatusFields)
			},
		},
		{
			name: "invalid spec YAML",
			schema: &v1alpha1.Schema{
				Spec: parserTestRaw(`[1]`),
			},
			wantErr: "unmarshal spec",
		},
		{
			name: "invalid types YAML",
			schema: &v1alpha1.Schema{
				Spec:  parserTestRaw(`{"name":"string"}`),
				Types: parserTestRaw(`[1]`),
			},
			wantErr: "unmarshal types",
		},
		{
			name: "invalid status YAML",
			schema: &v1alpha1.Schema{
				Spec:   parserTestRaw(`{"name":"string"}`),
				Status: parserTestRaw(`[1]`),
			},
			wantErr: "unmarshal status",
		},
		{
			name: "status expression parsing failure",
			schema: &v1alpha1.Schema{
				Spec:   parserTestRaw(`{"name":"string"}`),
				Status: parserTestRaw(`{"value":"${outer(${inner})}"}`),
			},
			wantErr: "status expressions",
		},
		{
			name: "plain status fields are rejected",
			schema: &v1alpha1.Schema{
				Spec:   parserTestRaw(`{"name":"string"}`),
				Status: parserTestRaw(`{"phase":"Running"}`),
			},
			wantErr: "status fields without expressions are not supported",
		},
		{
			name: "success with custom types and status projection",
			schema: &v1alpha1.Schema{
				Group:      "demo.kro.run",
				APIVersion: "v1alpha1",
				Kind:       "Demo",
				Spec:       parserTestRaw(`{"name":"string"}`),
				Types:      parserTestRaw(`{}`),
				Status:     parserTestRaw(`{"observed":"${svc.status.value}"}`),
			},
			assert: func(t *testing.T, got *ParsedInstance) {
				t.Helper()
				require.Equal(t, "demo.kro.run", got.Group)
				require.Equal(t, "v1alpha1", got.APIVersion)
				require.Equal(t, "Demo", got.Kind)
				require.NotNil(t, got.SpecSchema)
				require.Equal(t, map[string]interface{}{}, got.CustomTypes)
				require.Equal(t, map[string]interface{}{"observed": "${svc.status.value}"}, got.StatusTemplate)
				require.Len(t, got.StatusFields, 1)
				require.Equal(t, "observed", got.StatusFields[0].Path)
				require.True(t, got.StatusFields[0].Standalone)
				require.Len(t, got.StatusFields[0].Exprs, 1)
				require.Equal(t, "svc.status.value", got.StatusFields[0].Exprs[0].Raw)
			},
		},
	}

	p := &parser{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.parseInstance(tt.schema)
			if tt.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tt.wantErr)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, got)
			if tt.assert != nil {
				tt.assert(t, got)
			}
		})
	}
}

func TestParser_parseNode_Cases(t *testing.T) {
	tests := []struct {
		name    string
		node    *v1alpha1.Resource
		index   int
		wantErr string
		assert  func(*testing.T, *ParsedNode)
	}{
		{
			name:    "missing template",
			node:    &v1alpha1.Resource{ID: "cfg"},
			wantErr: "must have a template",
		},
		{
			name: "template unmarshal failure",
			node: &v1alpha1.Resource{
				ID:       "cfg",
				Template: parserTestRaw(`[1]`),
			},
			wantErr: "unmarshal",
		},
		{
			name: "template expression extraction failure",
			node: &v1alpha1.Resource{
				ID: "cfg",
				Template: parserTestRaw(`{
					"apiVersion":"v1",
					"kind":"ConfigMap",
					"metadata":{"name":"${outer(${inner})}"}
				}`),
			},
			wantErr: "extract expressions",
		},
		{
			name: "invalid readyWhen expression",
			node: &v1alpha1.Resource{
				ID:        "cfg",
				Template:  parserTestRaw(`{"apiVersion":"v1","kind":"ConfigMap","metadata":{"name":"cfg"}}`),
				ReadyWhen: []string{"schema.spec.enabled"},
			},
			wantErr: "failed to parse readyWhen expressions",
		},
		{
			name: "invalid includeWhen expression",
			node: &v1alpha1.Resource{
				ID:          "cfg",
				Template:    parserTestRaw(`{"apiVersion":"v1","kind":"ConfigMap","metadata":{"name":"cfg"}}`),
				IncludeWhen: []string{"schema.spec.enabled"},
			},
			wantErr: "failed to parse includeWhen expressions",
		},
		{
			name: "template fields and conditions are extracted",
			node: &v1alpha1.Resource{
				ID: "cfg",
				Template: parserTestRaw(`{
					"apiVersion":"v1",
					"kind":"ConfigMap",
					"metadata":{"name":"cfg"},
					"data":{"value":"${schema.spec.name}"}
				}`),
				ReadyWhen:   []string{"${cfg.metadata.name == \"cfg\"}"},
				IncludeWhen: []string{"${schema.spec.enabled}"},
			},
			index: 2,
			assert: func(t *testing.T, got *ParsedNode) {
				t.Helper()
				require.Equal(t, "cfg", got.ID)
				require.Equal(t, 2, got.Index)
				require.Equal(t, NodeTypeResource, got.Type)
				require.Len(t, got.Fields, 1)
				require.Equal(t, "data.value", got.Fields[0].Path)
				require.True(t, got.Fields[0].Standalone)
				require.Equal(t, "schema.spec.name", got.Fields[0].Exprs[0].Raw)
				require.Len(t, got.ReadyWhen, 1)
				require.Equal(t, `cfg.metadata.name == "cfg"`, got.ReadyWhen[0].Raw)
				require.Len(t, got.IncludeWhen, 1)
				require.Equal(t, "schema.spec.enabled", got.IncludeWhen[0].Raw)
			},
		},
		{
			name: "string template embeds multiple expressions",
			node: &v1alpha1.Resource{
				ID: "cfg",
				Template: parserTestRaw(`{
					"apiVersion":"v1",
					"kind":"ConfigMap",
					"metadata":{"name":"cfg"},
					"data":{"greeting":"hello ${schema.spec.first} ${schema.spec.last}"}
				}`),
			},
			assert: func(t *testing.T, got *ParsedNode) {
				t.Helper()
				require.Len(t, got.Fields, 1)
				require.False(t, got.Fields[0].Standalone)
				require.Len(t, got.Fields[0].Exprs, 2)
				require.Equal(t, "schema.spec.first", got.Fields[0].Exprs[0].Raw)
				require.Equal(t, "schema.spec.last", got.Fields[0].Exprs[1].Raw)
			},
		},
	}

	p := &parser{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.parseNode(tt.node, tt.index)
			if tt.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tt.wantErr)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, got)
			if tt.assert != nil {
				tt.assert(t, got)
			}
		})
	}
}

func TestParser_Parse_WrapsResourceErrors(t *testing.T) {
	p := &parser{}
	_, err := p.Parse(&v1alpha1.ResourceGraphDefinition{
		Spec: v1alpha1.ResourceGraphDefinitionSpec{
			Resources: []*v1alpha1.Resource{{ID: "broken"}},
		},
	})
	require.Error(t, err)
	require.True(t, IsTerminal(err))
	require.Contains(t, err.Error(), `resource "broken"`)
}
