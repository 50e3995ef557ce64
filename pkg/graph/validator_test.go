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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kubernetes-sigs/kro-sdk-go/pkg/metadata"
)

func validatorTestNode(id string, template map[string]interface{}) *ParsedNode {
	return &ParsedNode{
		NodeMeta: NodeMeta{ID: id, Type: NodeTypeResource, Template: template},
	}
}

func validObjectTemplate(kind string) map[string]interface{} {
	return map[string]interface{}{
		"apiVersion": "v1",
		"kind":       kind,
		"metadata":   map[string]interface{}{"name": "x"},
	}
}

func TestValidateInstance(t *testing.T) {
	tests := []struct {
		name    string
		inst    *ParsedInstance
		wantErr string
	}{
		{
			name: "empty schema is allowed",
			inst: &ParsedInstance{},
		},
		{
			name:    "lowercase kind rejected",
			inst:    &ParsedInstance{InstanceMeta: InstanceMeta{Kind: "demo", APIVersion: "v1"}},
			wantErr: "not a valid KRO kind name",
		},
		{
			name:    "invalid apiVersion rejected",
			inst:    &ParsedInstance{InstanceMeta: InstanceMeta{Kind: "Demo", APIVersion: "1.0"}},
			wantErr: "is not valid",
		},
		{
			name: "valid kind and version",
			inst: &ParsedInstance{InstanceMeta: InstanceMeta{Kind: "Demo", APIVersion: "v1alpha1"}},
		},
		{
			name: "beta version accepted",
			inst: &ParsedInstance{InstanceMeta: InstanceMeta{Kind: "Demo", APIVersion: "v2beta3"}},
		},
	}

	v := &validator{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.validateInstance(tt.inst)
			if tt.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestValidateNodeID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr string
	}{
		{name: "lowerCamelCase ok", id: "webServer"},
		{name: "single letter ok", id: "a"},
		{name: "UpperCamelCase rejected", id: "WebServer", wantErr: "lowerCamelCase"},
		{name: "underscore rejected", id: "web_server", wantErr: "lowerCamelCase"},
		{name: "dash rejected", id: "web-server", wantErr: "lowerCamelCase"},
		{name: "kro reserved word rejected", id: "schema", wantErr: "reserved word"},
		{name: "resources reserved", id: "resources", wantErr: "reserved word"},
		{name: "cel keyword rejected", id: "true", wantErr: "reserved word"},
		{name: "empty rejected", id: "", wantErr: "lowerCamelCase"},
	}

	v := &validator{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.validateNodeID(tt.id, map[string]struct{}{})
			if tt.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}

	t.Run("duplicate id rejected", func(t *testing.T) {
		err := v.validateNodeID("web", map[string]struct{}{"web": {}})
		require.Error(t, err)
		require.Contains(t, err.Error(), "duplicate resource IDs")
	})
}

func TestValidateObjectStructure(t *testing.T) {
	tests := []struct {
		name    string
		obj     map[string]interface{}
		wantErr string
	}{
		{
			name: "valid object",
			obj:  validObjectTemplate("ConfigMap"),
		},
		{
			name:    "missing apiVersion",
			obj:     map[string]interface{}{"kind": "ConfigMap", "metadata": map[string]interface{}{}},
			wantErr: "missing apiVersion",
		},
		{
			name: "non-string apiVersion",
			obj: map[string]interface{}{
				"apiVersion": 1, "kind": "ConfigMap", "metadata": map[string]interface{}{},
			},
			wantErr: "apiVersion must be string",
		},
		{
			name:    "missing kind",
			obj:     map[string]interface{}{"apiVersion": "v1", "metadata": map[string]interface{}{}},
			wantErr: "missing kind",
		},
		{
			name:    "missing metadata",
			obj:     map[string]interface{}{"apiVersion": "v1", "kind": "ConfigMap"},
			wantErr: "metadata field not found",
		},
		{
			name: "metadata must be a map",
			obj: map[string]interface{}{
				"apiVersion": "v1", "kind": "ConfigMap", "metadata": "nope",
			},
			wantErr: "metadata must be map",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateObjectStructure(tt.obj)
			if tt.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestValidateNoKROLabels(t *testing.T) {
	obj := validObjectTemplate("ConfigMap")
	obj["metadata"].(map[string]interface{})["labels"] = map[string]interface{}{
		metadata.LabelKROPrefix + "node-id": "x",
	}
	err := validateNoKROLabels("cfg", obj)
	require.Error(t, err)
	require.Contains(t, err.Error(), "reserved")

	require.NoError(t, validateNoKROLabels("cfg", validObjectTemplate("ConfigMap")))
}

func TestValidateCRDExpressions(t *testing.T) {
	crd := map[string]interface{}{
		"apiVersion": "apiextensions.k8s.io/v1",
		"kind":       "CustomResourceDefinition",
		"metadata":   map[string]interface{}{"name": "widgets.example.com"},
	}

	t.Run("metadata expressions allowed", func(t *testing.T) {
		node := validatorTestNode("crd", crd)
		node.Fields = []*RawField{{Path: "metadata.labels.team", Exprs: []*RawExpr{{Raw: "schema.spec.team"}}}}
		require.NoError(t, validateCRDExpressions(node))
	})

	t.Run("spec expressions rejected", func(t *testing.T) {
		node := validatorTestNode("crd", crd)
		node.Fields = []*RawField{{Path: "spec.group", Exprs: []*RawExpr{{Raw: "schema.spec.group"}}}}
		err := validateCRDExpressions(node)
		require.Error(t, err)
		require.Contains(t, err.Error(), "only supported for metadata fields")
	})

	t.Run("non-CRD resources unaffected", func(t *testing.T) {
		node := validatorTestNode("cfg", validObjectTemplate("ConfigMap"))
		node.Fields = []*RawField{{Path: "data.value", Exprs: []*RawExpr{{Raw: "schema.spec.v"}}}}
		require.NoError(t, validateCRDExpressions(node))
	})
}

func TestValidate_EndToEnd(t *testing.T) {
	v := &validator{}

	t.Run("valid graph passes", func(t *testing.T) {
		parsed := &ParsedRGD{
			Instance: &ParsedInstance{InstanceMeta: InstanceMeta{Kind: "Demo", APIVersion: "v1alpha1"}},
			Nodes: []*ParsedNode{
				validatorTestNode("cfg", validObjectTemplate("ConfigMap")),
				validatorTestNode("svc", validObjectTemplate("Service")),
			},
		}
		require.NoError(t, v.Validate(parsed))
	})

	t.Run("errors are terminal", func(t *testing.T) {
		parsed := &ParsedRGD{
			Instance: &ParsedInstance{},
			Nodes: []*ParsedNode{
				validatorTestNode("Bad", validObjectTemplate("ConfigMap")),
			},
		}
		err := v.Validate(parsed)
		require.Error(t, err)
		require.True(t, IsTerminal(err))
	})
}
