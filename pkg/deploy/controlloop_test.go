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
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	k8sruntime "k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	kubescheme "k8s.io/client-go/kubernetes/scheme"
	k8stesting "k8s.io/client-go/testing"

	"github.com/kubernetes-sigs/kro-sdk-go/api/v1alpha1"
	"github.com/kubernetes-sigs/kro-sdk-go/pkg/graph"
)

var webAppGVR = schema.GroupVersionResource{Group: "kro.run", Version: "v1alpha1", Resource: "webapps"}

func controlLoopClient() *dynamicfake.FakeDynamicClient {
	return dynamicfake.NewSimpleDynamicClientWithCustomListKinds(kubescheme.Scheme,
		map[schema.GroupVersionResource]string{
			rgdGVR:    "ResourceGraphDefinitionList",
			webAppGVR: "WebAppList",
		})
}

func controlLoopGraph(t *testing.T) *graph.Graph {
	t.Helper()
	return engineTestGraph(t, graph.BuilderOptions{
		Schema: &v1alpha1.Schema{
			Group:      "kro.run",
			APIVersion: "v1alpha1",
			Kind:       "WebApp",
			Spec:       k8sruntime.RawExtension{Raw: []byte(`{"name": "string | default=app"}`)},
		},
	}, []graph.Resource{
		{ID: "cfg", Object: engineTestConfigMap("cfg-cm", nil)},
	}, nil)
}

// rgdWithState serves the controller's view of the applied definition:
// the first get falls through so apply sees not-found and creates, every
// later get reports the given state.
func rgdWithState(client *dynamicfake.FakeDynamicClient, name, state string, conditions ...interface{}) {
	obj := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": v1alpha1.GroupVersion.String(),
		"kind":       "ResourceGraphDefinition",
		"metadata":   map[string]interface{}{"name": name},
		"status": map[string]interface{}{
			"state": state,
		},
	}}
	if len(conditions) > 0 {
		obj.Object["status"].(map[string]interface{})["conditions"] = conditions
	}

	var mu sync.Mutex
	first := true
	client.PrependReactor("get", "resourcegraphdefinitions", func(k8stesting.Action) (bool, k8sruntime.Object, error) {
		mu.Lock()
		defer mu.Unlock()
		if first {
			first = false
			return false, nil, nil
		}
		return true, obj.DeepCopy(), nil
	})
}

func TestControlLoopEngine_Deploy_DefinitionActive(t *testing.T) {
	g := controlLoopGraph(t)
	require.NotNil(t, g.Definition)

	client := controlLoopClient()
	rgdWithState(client, "webapp", string(v1alpha1.ResourceGraphDefinitionStateActive))

	var created []string
	client.PrependReactor("create", "resourcegraphdefinitions", func(action k8stesting.Action) (bool, k8sruntime.Object, error) {
		created = append(created, action.(k8stesting.CreateAction).GetObject().(*unstructured.Unstructured).GetName())
		return false, nil, nil
	})

	var events []Event
	res, err := NewControlLoopEngine(client, EngineOptions{}).Deploy(context.Background(), g, Options{
		OnEvent: func(ev Event) { events = append(events, ev) },
	})
	require.NoError(t, err)

	require.Equal(t, StatusSuccess, res.Status)
	require.Empty(t, res.Errors)
	require.Equal(t, []string{"webapp"}, created)

	require.NotEmpty(t, events)
	require.Equal(t, EventCompleted, events[len(events)-1].Type)
	require.Contains(t, events[len(events)-1].Message, "active")
}

func TestControlLoopEngine_Deploy_DefinitionRejected(t *testing.T) {
	g := controlLoopGraph(t)

	client := controlLoopClient()
	rgdWithState(client, "webapp", string(v1alpha1.ResourceGraphDefinitionStateInactive),
		map[string]interface{}{
			"type":    "ReconcilerReady",
			"status":  "False",
			"message": "schema invalid",
		})

	res, err := NewControlLoopEngine(client, EngineOptions{}).Deploy(context.Background(), g, Options{})
	require.NoError(t, err)

	require.Equal(t, StatusFailed, res.Status)
	require.Len(t, res.Errors, 1)
	require.ErrorContains(t, res.Errors[0].Err, `rejected: schema invalid`)
}

func TestControlLoopEngine_Deploy_AcceptanceTimeout(t *testing.T) {
	g := controlLoopGraph(t)

	client := controlLoopClient()
	rgdWithState(client, "webapp", "")

	res, err := NewControlLoopEngine(client, EngineOptions{}).Deploy(context.Background(), g, Options{
		ReadinessTimeout: time.Millisecond,
		PollInterval:     20 * time.Millisecond,
	})
	require.NoError(t, err)

	require.Equal(t, StatusFailed, res.Status)
	require.Len(t, res.Errors, 1)
	var rte *ReadinessTimeoutError
	require.ErrorAs(t, res.Errors[0].Err, &rte)
}

func TestControlLoopEngine_Deploy_Instance(t *testing.T) {
	instance := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "kro.run/v1alpha1",
		"kind":       "WebApp",
		"metadata":   map[string]interface{}{"name": "my-app"},
		"spec":       map[string]interface{}{"name": "frontend"},
	}}

	t.Run("created once the definition is active", func(t *testing.T) {
		g := controlLoopGraph(t)
		client := controlLoopClient()
		rgdWithState(client, "webapp", string(v1alpha1.ResourceGraphDefinitionStateActive))

		res, err := NewControlLoopEngine(client, EngineOptions{}).Deploy(context.Background(), g, Options{
			Instance: instance,
		})
		require.NoError(t, err)
		require.Equal(t, StatusSuccess, res.Status)

		live, err := client.Resource(webAppGVR).Namespace("default").Get(context.Background(), "my-app", metav1.GetOptions{})
		require.NoError(t, err)
		name, _, _ := unstructured.NestedString(live.Object, "spec", "name")
		require.Equal(t, "frontend", name)
	})

	t.Run("instance failure is partial", func(t *testing.T) {
		g := controlLoopGraph(t)
		client := controlLoopClient()
		rgdWithState(client, "webapp", string(v1alpha1.ResourceGraphDefinitionStateActive))
		client.PrependReactor("create", "webapps", func(k8stesting.Action) (bool, k8sruntime.Object, error) {
			return true, nil, apierrors.NewBadRequest("schema mismatch")
		})

		res, err := NewControlLoopEngine(client, EngineOptions{}).Deploy(context.Background(), g, Options{
			Instance: instance,
		})
		require.NoError(t, err)
		require.Equal(t, StatusPartial, res.Status)
		require.Len(t, res.Errors, 1)
		require.ErrorContains(t, res.Errors[0].Err, `applying instance "my-app"`)
	})
}

func TestControlLoopEngine_Deploy_RequiresDefinition(t *testing.T) {
	eng := NewControlLoopEngine(controlLoopClient(), EngineOptions{})

	_, err := eng.Deploy(context.Background(), nil, Options{})
	require.Error(t, err)

	_, err = eng.Deploy(context.Background(), &graph.Graph{}, Options{})
	require.ErrorContains(t, err, "no definition")
}
