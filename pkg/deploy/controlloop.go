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
	"fmt"

	"github.com/go-logr/logr"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	"k8s.io/utils/clock"

	"github.com/kubernetes-sigs/kro-sdk-go/api/v1alpha1"
	"github.com/kubernetes-sigs/kro-sdk-go/pkg/graph"
)

var rgdGVR = schema.GroupVersionResource{
	Group:    v1alpha1.KroGroup,
	Version:  v1alpha1.GroupVersion.Version,
	Resource: "resourcegraphdefinitions",
}

// ControlLoopEngine delegates deployment to the kro controller: it
// applies the graph's ResourceGraphDefinition, waits until the
// controller accepts it, then optionally creates an instance object.
// Per-resource orchestration happens in the control loop, not here.
type ControlLoopEngine struct {
	client dynamic.Interface
	log    logr.Logger
	clock  clock.Clock
}

var _ Deployer = (*ControlLoopEngine)(nil)

// NewControlLoopEngine returns a control-loop deployment engine.
func NewControlLoopEngine(client dynamic.Interface, opts EngineOptions) *ControlLoopEngine {
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	return &ControlLoopEngine{
		client: client,
		log:    opts.Logger.WithName("controlloop-engine"),
		clock:  opts.Clock,
	}
}

// Deploy applies the graph's definition and waits for the controller to
// mark it active. Readiness of the individual resources is owned by the
// controller afterwards.
func (e *ControlLoopEngine) Deploy(ctx context.Context, g *graph.Graph, opts Options) (*DeploymentResult, error) {
	if g == nil || g.Definition == nil {
		return nil, fmt.Errorf("graph carries no definition to delegate")
	}
	opts.applyDefaults()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	emit := func(ev Event) {
		if opts.OnEvent != nil {
			ev.Time = e.clock.Now()
			opts.OnEvent(ev)
		}
	}

	res := &DeploymentResult{Resources: map[string]*DeployedResource{}}
	start := e.clock.Now()
	defer func() { res.Duration = e.clock.Since(start) }()

	name := g.Definition.GetName()
	emit(Event{Type: EventStarted, Message: fmt.Sprintf("delegating %q to the control loop", name)})

	obj, err := runtime.DefaultUnstructuredConverter.ToUnstructured(g.Definition)
	if err != nil {
		return nil, fmt.Errorf("converting definition: %w", err)
	}
	rgd := &unstructured.Unstructured{Object: obj}
	rgd.SetAPIVersion(v1alpha1.GroupVersion.String())
	rgd.SetKind("ResourceGraphDefinition")
	unstructured.RemoveNestedField(rgd.Object, "status")

	if _, err := createOrPatch(ctx, e.client.Resource(rgdGVR), rgd); err != nil {
		res.Status = StatusFailed
		res.Errors = append(res.Errors, ResourceError{Phase: StateApplying, Time: e.clock.Now(), Err: err})
		emit(Event{Type: EventFailed, Message: fmt.Sprintf("applying definition: %v", err)})
		return res, nil
	}
	emit(Event{Type: EventProgress, Message: fmt.Sprintf("definition %q applied, waiting for acceptance", name)})

	if err := e.awaitAcceptance(ctx, name, opts, emit); err != nil {
		res.Status = StatusFailed
		res.Errors = append(res.Errors, ResourceError{Phase: StateApplied, Time: e.clock.Now(), Err: err})
		emit(Event{Type: EventFailed, Message: err.Error()})
		return res, nil
	}

	if opts.Instance != nil {
		if err := e.applyInstance(ctx, g, opts); err != nil {
			res.Status = StatusPartial
			res.Errors = append(res.Errors, ResourceError{Phase: StateApplying, Time: e.clock.Now(), Err: err})
			emit(Event{Type: EventCompleted, Message: fmt.Sprintf("definition active, instance failed: %v", err)})
			return res, nil
		}
	}

	res.Status = StatusSuccess
	emit(Event{Type: EventCompleted, Message: fmt.Sprintf("definition %q active", name)})
	return res, nil
}

// awaitAcceptance polls the applied definition until the controller
// reports it Active. An Inactive state is terminal and surfaces the
// failing condition's message.
func (e *ControlLoopEngine) awaitAcceptance(ctx context.Context, name string, opts Options, emit func(Event)) error {
	deadline := e.clock.Now().Add(opts.ReadinessTimeout)
	lastMessage := ""

	for {
		live, err := e.client.Resource(rgdGVR).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			lastMessage = fmt.Sprintf("reading definition: %v", err)
		} else {
			state, _, _ := unstructured.NestedString(live.Object, "status", "state")
			switch v1alpha1.ResourceGraphDefinitionState(state) {
			case v1alpha1.ResourceGraphDefinitionStateActive:
				return nil
			case v1alpha1.ResourceGraphDefinitionStateInactive:
				return fmt.Errorf("definition %q rejected: %s", name, conditionSummary(live))
			default:
				lastMessage = fmt.Sprintf("definition %q state %q", name, state)
			}
			emit(Event{Type: EventResourceStatus, Message: lastMessage})
		}

		if !e.clock.Now().Add(opts.PollInterval).Before(deadline) {
			return &ReadinessTimeoutError{ResourceID: name, Timeout: opts.ReadinessTimeout, LastMessage: lastMessage}
		}
		t := e.clock.NewTimer(opts.PollInterval)
		select {
		case <-t.C():
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
}

func (e *ControlLoopEngine) applyInstance(ctx context.Context, g *graph.Graph, opts Options) error {
	inst := opts.Instance.DeepCopy()
	gvr := g.Instance.GVR
	ns := inst.GetNamespace()
	if ns == "" {
		ns = opts.Namespace
	}
	if ns == "" {
		ns = "default"
	}
	_, err := createOrPatch(ctx, e.client.Resource(gvr).Namespace(ns), inst)
	if err != nil {
		return fmt.Errorf("applying instance %q: %w", inst.GetName(), err)
	}
	return nil
}

// conditionSummary flattens the definition's false conditions into one
// message.
func conditionSummary(rgd *unstructured.Unstructured) string {
	conditions, _, _ := unstructured.NestedSlice(rgd.Object, "status", "conditions")
	for _, c := range conditions {
		cond, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		if status, _ := cond["status"].(string); status == "False" {
			msg, _ := cond["message"].(string)
			reason, _ := cond["reason"].(string)
			if msg != "" {
				return msg
			}
			return reason
		}
	}
	return "no failing condition reported"
}
