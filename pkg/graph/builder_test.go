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
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/yaml"

	"github.com/kubernetes-sigs/kro-sdk-go/api/v1alpha1"
	"github.com/kubernetes-sigs/kro-sdk-go/pkg/deploy/readiness"
	"github.com/kubernetes-sigs/kro-sdk-go/pkg/graph/expr"
)

func builderTestSchema() *v1alpha1.Schema {
	return &v1alpha1.Schema{
		APIVersion: "v1alpha1",
		Kind:       "WebApp",
		Spec: parserTestRaw(map[string]interface{}{
			"name":     "string | default=app",
			"replicas": "integer | default=1",
		}),
	}
}

func builderTestConfigMap() map[string]interface{} {
	return map[string]interface{}{
		"apiVersion": "v1",
		"kind":       "ConfigMap",
		"metadata": map[string]interface{}{
			"name": expr.Schema("spec.name"),
		},
		"data": map[string]interface{}{
			"replicas": expr.Call(expr.Schema("spec.replicas"), "string"),
		},
	}
}

func builderTestDeployment() map[string]interface{} {
	return map[string]interface{}{
		"apiVersion": "apps/v1",
		"kind":       "Deployment",
		"metadata": map[string]interface{}{
			"name": expr.Schema("spec.name"),
		},
		"spec": map[string]interface{}{
			"replicas": expr.Schema("spec.replicas"),
			"template": map[string]interface{}{
				"spec": map[string]interface{}{
					"volumes": []interface{}{
						map[string]interface{}{
							"name": "config",
							"configMap": map[string]interface{}{
								"name": expr.Ref("cfg", "metadata.name"),
							},
						},
					},
				},
			},
		},
	}
}

func builderTestConfigMapPlain(name string) map[string]interface{} {
	return map[string]interface{}{
		"apiVersion": "v1",
		"kind":       "ConfigMap",
		"metadata":   map[string]interface{}{"name": name},
	}
}

func TestBuilder_Build_DependencyGraph(t *testing.T) {
	b := NewBuilder(BuilderOptions{Schema: builderTestSchema()})

	g, err := b.Build([]Resource{
		{ID: "cfg", Object: builderTestConfigMap()},
		{ID: "web", Object: builderTestDeployment()},
	}, map[string]interface{}{
		"configName": expr.Ref("cfg", "metadata.name"),
	})
	require.NoError(t, err)

	require.Len(t, g.Nodes, 2)
	require.Equal(t, []string{"cfg", "web"}, g.TopologicalOrder)
	require.Equal(t, [][]string{{"cfg"}, {"web"}}, g.Levels)
	require.Equal(t, []string{"cfg"}, g.Nodes["web"].Dependencies)
	require.Empty(t, g.ExternalReferences)

	// The built graph carries its definition for control-loop delegation.
	require.NotNil(t, g.Definition)
	require.Equal(t, "webapp", g.Definition.Name)
	require.Len(t, g.Definition.Spec.Resources, 2)
	require.Contains(t, string(g.Definition.Spec.Resources[0].Template.Raw), "${schema.spec.name}")
	require.Contains(t, string(g.Definition.Spec.Resources[1].Template.Raw), "${resources.cfg.metadata.name}")

	require.NotNil(t, g.Instance)
	require.Len(t, g.Instance.Variables, 1)
	require.Equal(t, "status.configName", g.Instance.Variables[0].Path)
	require.Equal(t, "webapps", g.Instance.GVR.Resource)
}

func TestBuilder_Build_ExternalReferences(t *testing.T) {
	// References to ids not declared in the graph are external: recorded,
	// but never a dependency edge.
	b := NewBuilder(BuilderOptions{})

	g, err := b.Build([]Resource{
		{
			ID: "subnet",
			Object: map[string]interface{}{
				"apiVersion": "ec2.services.k8s.aws/v1alpha1",
				"kind":       "Subnet",
				"metadata":   map[string]interface{}{"name": "subnet-a"},
				"spec": map[string]interface{}{
					"vpcID": expr.Ref("vpc", "status.vpcID"),
				},
			},
		},
	}, nil)
	require.NoError(t, err)

	require.Equal(t, []string{"vpc"}, g.ExternalReferences)
	require.Empty(t, g.Nodes["subnet"].Dependencies)
	require.Equal(t, []string{"vpc"}, g.Nodes["subnet"].ExternalDependencies)
	require.Equal(t, [][]string{{"subnet"}}, g.Levels)
}

func TestBuilder_Build_Conditions(t *testing.T) {
	b := NewBuilder(BuilderOptions{})

	g, err := b.Build([]Resource{
		{
			ID:     "cfg",
			Object: builderTestConfigMapPlain("a"),
		},
		{
			ID:     "job",
			Object: builderTestConfigMapPlain("b"),
			ReadyWhen: []expr.Node{
				expr.Ne(expr.Ref("job", "metadata.name"), ""),
			},
			IncludeWhen: []expr.Node{
				expr.Eq(expr.Schema("spec.enabled"), true),
			},
		},
	}, nil)
	require.NoError(t, err)

	job := g.Nodes["job"]
	require.Len(t, job.ReadyWhen, 1)
	require.Len(t, job.IncludeWhen, 1)
	// Conditions never create dependency edges.
	require.Empty(t, job.Dependencies)
}

func TestBuilder_Build_ReadinessEvaluatorAttached(t *testing.T) {
	called := false
	eval := readiness.Evaluator(func(obj *unstructured.Unstructured) readiness.Verdict {
		called = true
		return readiness.Verdict{Ready: true}
	})

	b := NewBuilder(BuilderOptions{})
	g, err := b.Build([]Resource{
		{ID: "cfg", Object: builderTestConfigMapPlain("a"), Readiness: eval},
	}, nil)
	require.NoError(t, err)

	require.NotNil(t, g.Nodes["cfg"].Readiness)
	g.Nodes["cfg"].Readiness(&unstructured.Unstructured{})
	require.True(t, called)
}

func TestBuilder_Build_TypedObjects(t *testing.T) {
	t.Run("reference-free typed object is converted", func(t *testing.T) {
		b := NewBuilder(BuilderOptions{})
		g, err := b.Build([]Resource{
			{
				ID: "cfg",
				Object: &corev1.ConfigMap{
					TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: "ConfigMap"},
					ObjectMeta: metav1.ObjectMeta{Name: "typed"},
					Data:       map[string]string{"key": "value"},
				},
			},
		}, nil)
		require.NoError(t, err)
		require.Equal(t, "typed", g.Nodes["cfg"].Template.GetName())
		require.Equal(t, "configmaps", g.Nodes["cfg"].GVR.Resource)
	})

	t.Run("typed object carrying references is rejected", func(t *testing.T) {
		type holder struct {
			Name any
		}
		b := NewBuilder(BuilderOptions{})
		_, err := b.Build([]Resource{
			{ID: "cfg", Object: &holder{Name: expr.Schema("spec.name")}},
		}, nil)
		require.Error(t, err)
		require.Contains(t, err.Error(), "typed objects cannot carry field references")
		require.True(t, IsTerminal(err))
	})

	t.Run("unstructured objects are accepted", func(t *testing.T) {
		b := NewBuilder(BuilderOptions{})
		g, err := b.Build([]Resource{
			{ID: "cfg", Object: &unstructured.Unstructured{Object: builderTestConfigMapPlain("u")}},
		}, nil)
		require.NoError(t, err)
		require.Equal(t, "u", g.Nodes["cfg"].Template.GetName())
	})
}

func TestBuilder_Build_Errors(t *testing.T) {
	tests := []struct {
		name      string
		resources []Resource
		wantErr   string
	}{
		{
			name:    "no resources",
			wantErr: "at least one resource",
		},
		{
			name: "empty id",
			resources: []Resource{
				{ID: "", Object: builderTestConfigMapPlain("a")},
			},
			wantErr: "empty id",
		},
		{
			name: "duplicate id",
			resources: []Resource{
				{ID: "cfg", Object: builderTestConfigMapPlain("a")},
				{ID: "cfg", Object: builderTestConfigMapPlain("b")},
			},
			wantErr: `duplicate resource id "cfg"`,
		},
		{
			name: "nil object",
			resources: []Resource{
				{ID: "cfg", Object: nil},
			},
			wantErr: "has no object",
		},
		{
			name: "self reference",
			resources: []Resource{
				{
					ID: "cfg",
					Object: map[string]interface{}{
						"apiVersion": "v1",
						"kind":       "ConfigMap",
						"metadata": map[string]interface{}{
							"name": expr.Ref("cfg", "metadata.name"),
						},
					},
				},
			},
			wantErr: `resource "cfg" cannot reference itself`,
		},
		{
			name: "cycle",
			resources: []Resource{
				{
					ID: "a",
					Object: map[string]interface{}{
						"apiVersion": "v1",
						"kind":       "ConfigMap",
						"metadata":   map[string]interface{}{"name": expr.Ref("b", "metadata.name")},
					},
				},
				{
					ID: "b",
					Object: map[string]interface{}{
						"apiVersion": "v1",
						"kind":       "ConfigMap",
						"metadata":   map[string]interface{}{"name": expr.Ref("a", "metadata.name")},
					},
				},
			},
			wantErr: "cycle",
		},
		{
			name: "non-boolean includeWhen",
			resources: []Resource{
				{
					ID:          "cfg",
					Object:      builderTestConfigMapPlain("a"),
					IncludeWhen: []expr.Node{expr.Value(42)},
				},
			},
			wantErr: "includeWhen[0]",
		},
	}

	b := NewBuilder(BuilderOptions{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Build(tt.resources, nil)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
			require.True(t, IsTerminal(err))
		})
	}
}

func TestBuilder_Build_StrictMode(t *testing.T) {
	// A readiness gate reading spec fields is advisory by default and an
	// error under Strict.
	resources := []Resource{
		{
			ID:     "web",
			Object: builderTestConfigMapPlain("a"),
			ReadyWhen: []expr.Node{
				expr.Gt(expr.Ref("web", "spec.replicas"), 0),
			},
		},
	}

	g, err := NewBuilder(BuilderOptions{}).Build(resources, nil)
	require.NoError(t, err)
	require.Len(t, g.Nodes["web"].ReadyWhen, 1)

	_, err = NewBuilder(BuilderOptions{Strict: true}).Build(resources, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "readyWhen[0]")
	require.True(t, IsTerminal(err))
}

func TestBuilder_Build_InstanceLess(t *testing.T) {
	// No schema and no status projection: the graph has no instance surface.
	b := NewBuilder(BuilderOptions{})
	g, err := b.Build([]Resource{
		{ID: "cfg", Object: builderTestConfigMapPlain("a")},
	}, nil)
	require.NoError(t, err)
	require.NotNil(t, g.Instance)
	require.Empty(t, g.Instance.Variables)
	require.Nil(t, g.Definition.Spec.Schema)
}

func TestBuilderOptions_Defaults(t *testing.T) {
	t.Run("name from schema kind", func(t *testing.T) {
		o := BuilderOptions{Schema: &v1alpha1.Schema{Kind: "WebApp", APIVersion: "v1alpha1"}}
		o.applyDefaults()
		require.Equal(t, "webapp", o.Name)
	})

	t.Run("fallback name", func(t *testing.T) {
		o := BuilderOptions{}
		o.applyDefaults()
		require.Equal(t, "resource-graph", o.Name)
		require.Equal(t, expr.DefaultMaxDepth, o.MaxDepth)
	})

	t.Run("explicit name kept", func(t *testing.T) {
		o := BuilderOptions{Name: "my-graph"}
		o.applyDefaults()
		require.Equal(t, "my-graph", o.Name)
	})
}

func TestGraph_MarshalDefinition(t *testing.T) {
	b := NewBuilder(BuilderOptions{Schema: builderTestSchema(), Name: "web-app"})
	g, err := b.Build([]Resource{
		{ID: "cfg", Object: builderTestConfigMap()},
		{ID: "web", Object: builderTestDeployment()},
	}, nil)
	require.NoError(t, err)

	out, err := g.MarshalDefinition()
	require.NoError(t, err)

	manifest := string(out)
	require.Contains(t, manifest, "apiVersion: kro.run/v1alpha1")
	require.Contains(t, manifest, "kind: ResourceGraphDefinition")
	require.Contains(t, manifest, "${schema.spec.name}")

	var rt v1alpha1.ResourceGraphDefinition
	require.NoError(t, yaml.Unmarshal(out, &rt))
	require.Len(t, rt.Spec.Resources, 2)

	_, err = (&Graph{}).MarshalDefinition()
	require.Error(t, err)
}
