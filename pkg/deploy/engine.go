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
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/dynamic"
	"k8s.io/utils/clock"

	"github.com/kubernetes-sigs/kro-sdk-go/pkg/deploy/readiness"
	"github.com/kubernetes-sigs/kro-sdk-go/pkg/graph"
	"github.com/kubernetes-sigs/kro-sdk-go/pkg/graph/variable"
	"github.com/kubernetes-sigs/kro-sdk-go/pkg/metadata"
	"github.com/kubernetes-sigs/kro-sdk-go/pkg/runtime/resolver"
)

// Deployer deploys a compiled graph to a cluster.
type Deployer interface {
	Deploy(ctx context.Context, g *graph.Graph, opts Options) (*DeploymentResult, error)
}

// EngineOptions configures an Engine. The zero value is usable.
type EngineOptions struct {
	Logger logr.Logger

	// Registry resolves kind-based readiness evaluators. Defaults to
	// the builtin registry.
	Registry *readiness.Registry

	// Clock drives retry backoff and readiness polling. Injected for
	// tests; defaults to the real clock.
	Clock clock.Clock

	// Registerer receives the engine's Prometheus instruments. Nil
	// leaves them unregistered.
	Registerer prometheus.Registerer
}

// Engine deploys graphs directly: it applies each resource itself,
// level by level, substituting references with live values as it goes.
type Engine struct {
	client   dynamic.Interface
	log      logr.Logger
	registry *readiness.Registry
	clock    clock.Clock
	metrics  *metrics
}

var _ Deployer = (*Engine)(nil)

// NewEngine returns a direct deployment engine backed by the given
// dynamic client.
func NewEngine(client dynamic.Interface, opts EngineOptions) *Engine {
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}
	if opts.Registry == nil {
		opts.Registry = readiness.DefaultRegistry()
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	return &Engine{
		client:   client,
		log:      opts.Logger.WithName("deploy-engine"),
		registry: opts.Registry,
		clock:    opts.Clock,
		metrics:  newMetrics(opts.Registerer),
	}
}

// Deploy applies the graph level by level and waits for readiness.
// Resources sharing a level are dispatched concurrently; a resource is
// never applied before all its dependencies are ready. The returned
// result is always non-nil; the error covers only invalid input.
func (e *Engine) Deploy(ctx context.Context, g *graph.Graph, opts Options) (*DeploymentResult, error) {
	if g == nil {
		return nil, fmt.Errorf("nil graph")
	}
	opts.applyDefaults()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	run := &engineRun{
		Engine: e,
		graph:  g,
		opts:   opts,
		id:     uuid.NewString(),
		schema: schemaWithDefaults(g.SpecSchema, opts.SchemaValues),
		states: make(map[string]*DeployedResource, len(g.Nodes)),
		live:   make(map[string]interface{}, len(g.Nodes)),
	}
	for id := range g.Nodes {
		run.states[id] = &DeployedResource{ID: id, State: StatePending, Level: g.NodeLevel(id)}
	}
	for id, obj := range opts.ExternalValues {
		run.live[id] = obj.Object
	}

	start := e.clock.Now()
	result := run.execute(ctx)
	result.Duration = e.clock.Since(start)
	e.metrics.duration.Observe(result.Duration.Seconds())
	return result, nil
}

// engineRun is the mutable state of one Deploy call. The states and
// live maps are written by the currently-executing level only.
type engineRun struct {
	*Engine
	graph  *graph.Graph
	opts   Options
	id     string
	schema map[string]interface{}

	mu     sync.Mutex
	states map[string]*DeployedResource
	live   map[string]interface{}
	errs   []ResourceError

	emitMu sync.Mutex

	cancelled bool
}

func (r *engineRun) emit(ev Event) {
	if r.opts.OnEvent == nil {
		return
	}
	ev.Time = r.clock.Now()
	r.emitMu.Lock()
	defer r.emitMu.Unlock()
	r.opts.OnEvent(ev)
}

func (r *engineRun) recordError(id string, phase ResourceState, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, ResourceError{ResourceID: id, Phase: phase, Time: r.clock.Now(), Err: err})
}

func (r *engineRun) setState(id string, s ResourceState, obj *unstructured.Unstructured, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.states[id]
	st.State = s
	if obj != nil {
		st.Object = obj
		r.live[id] = obj.Object
	}
	if err != nil {
		st.Err = err
	}
}

func (r *engineRun) stateOf(id string) (ResourceState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.states[id]
	return st.State, st.Err
}

func (r *engineRun) execute(ctx context.Context) *DeploymentResult {
	r.emit(Event{Type: EventStarted, Message: fmt.Sprintf("deploying %d resources in %d levels", len(r.graph.Nodes), len(r.graph.Levels))})

	for levelIdx, level := range r.graph.Levels {
		if ctx.Err() != nil {
			r.cancelled = true
			break
		}
		if r.hasFailure() && !r.opts.ContinueOnFailure {
			break
		}

		r.emit(Event{Type: EventProgress, Level: levelIdx, Message: fmt.Sprintf("level %d: %d resources", levelIdx, len(level))})

		var eg errgroup.Group
		for _, id := range level {
			node := r.graph.Nodes[id]
			if !r.gate(node) {
				continue
			}
			eg.Go(func() error {
				r.deployNode(ctx, node)
				return nil
			})
		}
		// Siblings run to completion even when one of them fails.
		_ = eg.Wait()
	}

	r.markAbandoned()
	return r.finish(ctx)
}

// gate decides whether a node may start, marking it Skipped when a
// dependency failed or was excluded. Returns true to dispatch.
func (r *engineRun) gate(node *graph.Node) bool {
	for _, dep := range node.Dependencies {
		state, depErr := r.stateOf(dep)
		switch {
		case state == StateFailed:
			err := &DependencyFailedError{ResourceID: node.ID, Dependency: dep}
			r.setState(node.ID, StateSkipped, nil, err)
			r.recordError(node.ID, StateSkipped, err)
			r.emit(Event{Type: EventResourceWarning, ResourceID: node.ID, Message: err.Error()})
			return false
		case state == StateSkipped && depErr != nil:
			// Propagate the original failure, not the intermediate skip.
			root := dep
			var dfe *DependencyFailedError
			if errors.As(depErr, &dfe) {
				root = dfe.Dependency
			}
			err := &DependencyFailedError{ResourceID: node.ID, Dependency: root}
			r.setState(node.ID, StateSkipped, nil, err)
			r.recordError(node.ID, StateSkipped, err)
			r.emit(Event{Type: EventResourceWarning, ResourceID: node.ID, Message: err.Error()})
			return false
		case state == StateSkipped:
			// Excluded dependency: the reference can never resolve.
			r.setState(node.ID, StateSkipped, nil, nil)
			r.emit(Event{Type: EventResourceWarning, ResourceID: node.ID,
				Message: fmt.Sprintf("skipped: dependency %q excluded by its conditions", dep)})
			return false
		}
	}
	return true
}

func (r *engineRun) hasFailure() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, st := range r.states {
		if st.State == StateFailed || (st.State == StateSkipped && st.Err != nil) {
			return true
		}
	}
	return false
}

// markAbandoned stamps every untouched transitive dependent of a failed
// resource with a dependency failure, so results never show a silently
// pending dependent.
func (r *engineRun) markAbandoned() {
	for _, id := range r.graph.TopologicalOrder {
		state, _ := r.stateOf(id)
		if state != StatePending {
			continue
		}
		node := r.graph.Nodes[id]
		for _, dep := range node.Dependencies {
			depState, depErr := r.stateOf(dep)
			if depState == StateFailed || (depState == StateSkipped && depErr != nil) {
				root := dep
				var dfe *DependencyFailedError
				if errors.As(depErr, &dfe) {
					root = dfe.Dependency
				}
				err := &DependencyFailedError{ResourceID: id, Dependency: root}
				r.setState(id, StateSkipped, nil, err)
				r.recordError(id, StateSkipped, err)
				break
			}
		}
	}
}

func (r *engineRun) finish(ctx context.Context) *DeploymentResult {
	res := &DeploymentResult{
		DeploymentID: r.id,
		Resources:    r.states,
		Errors:       r.errs,
	}

	var succeeded, failed int
	for _, st := range r.states {
		switch {
		case st.State == StateReady, st.State == StateApplied && r.opts.NoWait:
			succeeded++
		case st.State == StateFailed, st.State == StateSkipped && st.Err != nil:
			failed++
		case st.State == StatePending, st.State == StateApplying, st.State == StateApplied:
			// Interrupted by cancellation or an earlier failure.
			failed++
		}
	}
	switch {
	case failed == 0 && !r.cancelled:
		res.Status = StatusSuccess
	case succeeded > 0:
		res.Status = StatusPartial
	default:
		res.Status = StatusFailed
	}

	if res.Status == StatusSuccess || succeeded > 0 {
		res.InstanceStatus = r.projectStatus()
	}

	if r.opts.RollbackOnFailure && res.Status != StatusSuccess {
		res.Rollback = r.rollback(ctx)
	}

	if res.Status == StatusFailed {
		r.emit(Event{Type: EventFailed, Message: fmt.Sprintf("deployment failed: %d errors", len(r.errs))})
	} else {
		r.emit(Event{Type: EventCompleted, Message: fmt.Sprintf("deployment %s: %d/%d resources", res.Status, succeeded, len(r.states))})
	}
	return res
}

// deployNode runs one resource through its full lifecycle. Failures are
// recorded on the run, never returned, so siblings keep going.
func (r *engineRun) deployNode(ctx context.Context, node *graph.Node) {
	log := r.log.WithValues("resource", node.ID)

	included, err := r.evalIncludeWhen(node)
	if err != nil {
		r.fail(node.ID, StatePending, err)
		return
	}
	if !included {
		r.setState(node.ID, StateSkipped, nil, nil)
		r.emit(Event{Type: EventResourceWarning, ResourceID: node.ID, Message: "excluded by includeWhen conditions"})
		return
	}

	r.setState(node.ID, StateApplying, nil, nil)
	desired, err := r.resolveTemplate(node)
	if err != nil {
		r.fail(node.ID, StateApplying, err)
		return
	}

	applied, err := r.applyWithRetry(ctx, node, desired)
	if err != nil {
		r.fail(node.ID, StateApplying, err)
		return
	}
	r.setState(node.ID, StateApplied, applied, nil)
	log.V(1).Info("applied", "name", applied.GetName(), "namespace", applied.GetNamespace())

	if r.opts.NoWait {
		return
	}

	waitStart := r.clock.Now()
	final, err := r.awaitReadiness(ctx, node, applied)
	if err != nil {
		r.fail(node.ID, StateApplied, err)
		return
	}
	r.metrics.readinessWait.Observe(r.clock.Since(waitStart).Seconds())
	r.setState(node.ID, StateReady, final, nil)
	r.emit(Event{Type: EventResourceReady, ResourceID: node.ID, Message: fmt.Sprintf("%s is ready", node.ID)})
}

func (r *engineRun) fail(id string, phase ResourceState, err error) {
	r.setState(id, StateFailed, nil, err)
	r.recordError(id, phase, err)
	r.log.Error(err, "resource failed", "resource", id)
}

// activation is the evaluation context shared by every expression in
// this deploy: the schema values, the live objects under "resources",
// and each resource id bound directly for bare-id references.
func (r *engineRun) activation() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()

	resources := make(map[string]interface{}, len(r.live))
	ctx := make(map[string]any, len(r.live)+2)
	for id, obj := range r.live {
		resources[id] = obj
		ctx[id] = obj
	}
	ctx[graph.SchemaVarName] = r.schema
	ctx[graph.ResourcesVarName] = resources
	return ctx
}

func (r *engineRun) evalIncludeWhen(node *graph.Node) (bool, error) {
	env := r.activation()
	for _, expr := range node.IncludeWhen {
		out, err := expr.Eval(env)
		if err != nil {
			return false, fmt.Errorf("resource %q: includeWhen: %w", node.ID, err)
		}
		ok, isBool := out.(bool)
		if !isBool {
			return false, fmt.Errorf("resource %q: includeWhen %q yielded %T, want bool", node.ID, expr.Original, out)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// resolveTemplate substitutes every expression in the node's template
// with its evaluated value. A reference that cannot resolve is a hard
// error, never a silent null.
func (r *engineRun) resolveTemplate(node *graph.Node) (*unstructured.Unstructured, error) {
	env := r.activation()
	data := make(map[string]interface{})
	fields := make([]variable.FieldDescriptor, 0, len(node.Variables))
	for _, v := range node.Variables {
		fields = append(fields, v.FieldDescriptor)
		for _, expr := range v.Expressions {
			if _, done := data[expr.Original]; done {
				continue
			}
			out, err := expr.Eval(env)
			if err != nil {
				return nil, &ResolutionError{ResourceID: node.ID, Expression: expr.Original, Err: err}
			}
			data[expr.Original] = out
		}
	}

	desired := node.Template.DeepCopy()
	summary := resolver.NewResolver(desired.Object, data).Resolve(fields)
	if len(summary.Errors) > 0 {
		return nil, &ResolutionError{ResourceID: node.ID, Expression: "", Err: summary.Errors[0]}
	}

	r.label(desired, node.ID)
	if desired.GetName() == "" {
		return nil, fmt.Errorf("resource %q: resolved template has no metadata.name", node.ID)
	}
	return desired, nil
}

func (r *engineRun) label(obj *unstructured.Unstructured, nodeID string) {
	metadata.NewKROMetaLabeler().ApplyLabels(obj)
	metadata.NewDeploymentLabeler(r.id, nodeID).ApplyLabels(obj)
}

// applyWithRetry performs idempotent create-or-update, retrying
// transient failures per the retry policy.
func (r *engineRun) applyWithRetry(ctx context.Context, node *graph.Node, desired *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	var lastErr *ApplyError
	for attempt := 0; attempt <= r.opts.Retry.MaxRetries; attempt++ {
		if attempt > 0 {
			r.metrics.retries.Inc()
			r.emit(Event{Type: EventResourceWarning, ResourceID: node.ID,
				Message: fmt.Sprintf("retrying apply (attempt %d/%d): %v", attempt, r.opts.Retry.MaxRetries, lastErr.Err)})
			if err := r.sleep(ctx, r.opts.Retry.DelayFor(attempt)); err != nil {
				return nil, lastErr
			}
		}
		obj, err := r.applyOnce(ctx, node, desired)
		if err == nil {
			r.metrics.applies.WithLabelValues("success").Inc()
			return obj, nil
		}
		lastErr = classifyApplyErr(node.ID, err)
		if !lastErr.Transient {
			r.metrics.applies.WithLabelValues("permanent_error").Inc()
			return nil, lastErr
		}
		r.metrics.applies.WithLabelValues("transient_error").Inc()
	}
	return nil, lastErr
}

func (r *engineRun) applyOnce(ctx context.Context, node *graph.Node, desired *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	return createOrPatch(ctx, r.clientFor(node, desired), desired)
}

// createOrPatch is the idempotent apply primitive: read, then create
// when absent or merge-patch when present.
func createOrPatch(ctx context.Context, client dynamic.ResourceInterface, desired *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	_, err := client.Get(ctx, desired.GetName(), metav1.GetOptions{})
	switch {
	case apierrors.IsNotFound(err):
		return client.Create(ctx, desired, metav1.CreateOptions{})
	case err != nil:
		return nil, err
	}

	patch, err := json.Marshal(desired.Object)
	if err != nil {
		return nil, err
	}
	return client.Patch(ctx, desired.GetName(), types.MergePatchType, patch, metav1.PatchOptions{})
}

func (r *engineRun) clientFor(node *graph.Node, obj *unstructured.Unstructured) dynamic.ResourceInterface {
	if !node.Namespaced {
		return r.client.Resource(node.GVR)
	}
	ns := obj.GetNamespace()
	if ns == "" {
		ns = r.opts.Namespace
	}
	if ns == "" {
		ns = metav1.NamespaceDefault
	}
	return r.client.Resource(node.GVR).Namespace(ns)
}

// awaitReadiness polls the live object until it is ready or the
// readiness timeout elapses. Evaluator invocation errors are reported
// as transient status events until the timeout.
func (r *engineRun) awaitReadiness(ctx context.Context, node *graph.Node, applied *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	deadline := r.clock.Now().Add(r.opts.ReadinessTimeout)
	lastMessage := ""

	for {
		live, err := r.clientFor(node, applied).Get(ctx, applied.GetName(), metav1.GetOptions{})
		if err != nil {
			lastMessage = fmt.Sprintf("reading live object: %v", err)
			r.emit(Event{Type: EventResourceStatus, ResourceID: node.ID, Message: lastMessage})
		} else {
			verdict, verr := r.verdict(node, live)
			switch {
			case verr != nil:
				lastMessage = fmt.Sprintf("readiness check: %v", verr)
				r.emit(Event{Type: EventResourceStatus, ResourceID: node.ID, Message: lastMessage})
			case verdict.Ready:
				return live, nil
			default:
				lastMessage = verdict.Message
				if lastMessage == "" {
					lastMessage = verdict.Reason
				}
				r.emit(Event{Type: EventResourceStatus, ResourceID: node.ID, Message: lastMessage, Details: verdict.Details})
			}
		}

		if !r.clock.Now().Add(r.opts.PollInterval).Before(deadline) {
			return nil, &ReadinessTimeoutError{ResourceID: node.ID, Timeout: r.opts.ReadinessTimeout, LastMessage: lastMessage}
		}
		if err := r.sleep(ctx, r.opts.PollInterval); err != nil {
			return nil, &ReadinessTimeoutError{ResourceID: node.ID, Timeout: r.opts.ReadinessTimeout, LastMessage: lastMessage}
		}
	}
}

// verdict evaluates readiness with the configured precedence: readyWhen
// expressions, then the per-resource evaluator, then the kind registry.
func (r *engineRun) verdict(node *graph.Node, live *unstructured.Unstructured) (readiness.Verdict, error) {
	if len(node.ReadyWhen) > 0 {
		return r.evalReadyWhen(node, live)
	}
	if node.Readiness != nil {
		return node.Readiness(live), nil
	}
	return r.registry.Evaluate(live), nil
}

func (r *engineRun) evalReadyWhen(node *graph.Node, live *unstructured.Unstructured) (readiness.Verdict, error) {
	env := r.activation()
	env[node.ID] = live.Object
	resources, _ := env[graph.ResourcesVarName].(map[string]interface{})
	resources[node.ID] = live.Object

	for _, expr := range node.ReadyWhen {
		out, err := expr.Eval(env)
		if err != nil {
			return readiness.Verdict{}, err
		}
		ok, isBool := out.(bool)
		if !isBool {
			return readiness.Verdict{}, fmt.Errorf("readyWhen %q yielded %T, want bool", expr.Original, out)
		}
		if !ok {
			return readiness.Verdict{
				Ready:   false,
				Reason:  "ConditionNotMet",
				Message: fmt.Sprintf("readyWhen %q is false", expr.Original),
			}, nil
		}
	}
	return readiness.Verdict{Ready: true, Reason: "ConditionsMet"}, nil
}

// projectStatus evaluates the instance status projection against the
// live objects. Best-effort: fields whose dependencies never became
// ready are left out.
func (r *engineRun) projectStatus() map[string]interface{} {
	inst := r.graph.Instance
	if inst == nil || len(inst.Variables) == 0 {
		return nil
	}

	env := r.activation()
	data := make(map[string]interface{})
	fields := make([]variable.FieldDescriptor, 0, len(inst.Variables))
	for _, v := range inst.Variables {
		resolvable := true
		for _, expr := range v.Expressions {
			out, err := expr.Eval(env)
			if err != nil {
				r.log.V(1).Info("status field unresolved", "path", v.Path, "error", err.Error())
				resolvable = false
				break
			}
			data[expr.Original] = out
		}
		if resolvable {
			fields = append(fields, v.FieldDescriptor)
		}
	}
	if len(fields) == 0 {
		return nil
	}

	tmpl := inst.Template.DeepCopy()
	resolver.NewResolver(tmpl.Object, data).Resolve(fields)
	status, _, _ := unstructured.NestedMap(tmpl.Object, "status")
	return status
}

// sleep waits d on the engine clock, aborting early on context
// cancellation.
func (r *engineRun) sleep(ctx context.Context, d time.Duration) error {
	t := r.clock.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
