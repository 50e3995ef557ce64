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

// Package readiness maps observed live objects to ready/not-ready verdicts.
// Evaluators are pure functions keyed by resource kind; deploy engines
// resolve them at apply time so readiness policy stays decoupled from the
// resource data itself.
package readiness

import (
	"fmt"
	"strings"
	"sync"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// Verdict is the structured outcome of a readiness evaluation.
// It is deterministic for a given observed object.
type Verdict struct {
	// Ready reports whether the resource satisfies its kind's notion of ready.
	Ready bool
	// Reason is a short machine-friendly token, e.g. "ReplicasReady".
	Reason string
	// Message is a human-readable explanation of the verdict.
	Message string
	// Details carries observed values backing the verdict, e.g. replica counts.
	Details map[string]interface{}
}

// Evaluator maps an observed live object to a Verdict. Implementations must
// be pure: no I/O, no mutation of the object.
type Evaluator func(obj *unstructured.Unstructured) Verdict

// Registry resolves an Evaluator for a resource kind. Kinds without a
// bespoke evaluator fall back to the default existence check.
type Registry struct {
	mu       sync.RWMutex
	kinds    map[string]Evaluator
	fallback Evaluator
}

// NewRegistry returns an empty registry with the default fallback evaluator.
func NewRegistry() *Registry {
	return &Registry{
		kinds:    map[string]Evaluator{},
		fallback: ExistsAndNotFailed,
	}
}

// DefaultRegistry returns a registry preloaded with the built-in evaluators.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("Deployment", Deployment)
	r.Register("StatefulSet", StatefulSet)
	r.Register("Service", Service)
	r.Register("CronJob", CronJob)
	r.Register("Job", Job)
	r.Register("PersistentVolumeClaim", PersistentVolumeClaim)
	r.Register("Pod", Pod)
	return r
}

// Register installs an evaluator for a kind, replacing any existing one.
func (r *Registry) Register(kind string, e Evaluator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[kind] = e
}

// SetFallback replaces the evaluator used for kinds without a registration.
func (r *Registry) SetFallback(e Evaluator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = e
}

// ForKind returns the evaluator registered for the kind, or the fallback.
func (r *Registry) ForKind(kind string) Evaluator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.kinds[kind]; ok {
		return e
	}
	return r.fallback
}

// Evaluate resolves the evaluator for the object's kind and applies it.
func (r *Registry) Evaluate(obj *unstructured.Unstructured) Verdict {
	return r.ForKind(obj.GetKind())(obj)
}

func ready(reason, message string, details map[string]interface{}) Verdict {
	return Verdict{Ready: true, Reason: reason, Message: message, Details: details}
}

func notReady(reason, message string, details map[string]interface{}) Verdict {
	return Verdict{Ready: false, Reason: reason, Message: message, Details: details}
}

func nestedInt(obj map[string]interface{}, fields ...string) int64 {
	v, found, err := unstructured.NestedInt64(obj, fields...)
	if !found || err != nil {
		return 0
	}
	return v
}

// conditionStatus returns the status value of the named condition, or ""
// when the condition is absent or malformed.
func conditionStatus(obj *unstructured.Unstructured, condType string) string {
	conditions, found, err := unstructured.NestedSlice(obj.Object, "status", "conditions")
	if !found || err != nil {
		return ""
	}
	for _, c := range conditions {
		cond, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		if t, _ := cond["type"].(string); t == condType {
			s, _ := cond["status"].(string)
			return s
		}
	}
	return ""
}

// Deployment is ready when both readyReplicas and availableReplicas equal
// the desired replica count (spec.replicas, defaulting to 1).
func Deployment(obj *unstructured.Unstructured) Verdict {
	desired := int64(1)
	if v, found, err := unstructured.NestedInt64(obj.Object, "spec", "replicas"); found && err == nil {
		desired = v
	}
	readyReplicas := nestedInt(obj.Object, "status", "readyReplicas")
	available := nestedInt(obj.Object, "status", "availableReplicas")

	details := map[string]interface{}{
		"desiredReplicas":   desired,
		"readyReplicas":     readyReplicas,
		"availableReplicas": available,
	}
	if readyReplicas == desired && available == desired {
		return ready("ReplicasReady", fmt.Sprintf("%d/%d replicas ready", readyReplicas, desired), details)
	}
	return notReady("ReplicasNotReady",
		fmt.Sprintf("%d/%d replicas ready, %d/%d available", readyReplicas, desired, available, desired),
		details)
}

// StatefulSet is ready when readyReplicas equals the desired replica count.
func StatefulSet(obj *unstructured.Unstructured) Verdict {
	desired := int64(1)
	if v, found, err := unstructured.NestedInt64(obj.Object, "spec", "replicas"); found && err == nil {
		desired = v
	}
	readyReplicas := nestedInt(obj.Object, "status", "readyReplicas")
	details := map[string]interface{}{
		"desiredReplicas": desired,
		"readyReplicas":   readyReplicas,
	}
	if readyReplicas == desired {
		return ready("ReplicasReady", fmt.Sprintf("%d/%d replicas ready", readyReplicas, desired), details)
	}
	return notReady("ReplicasNotReady", fmt.Sprintf("%d/%d replicas ready", readyReplicas, desired), details)
}

// Service is immediately ready for ClusterIP/NodePort services; LoadBalancer
// services become ready once an ingress address is assigned.
func Service(obj *unstructured.Unstructured) Verdict {
	svcType, _, _ := unstructured.NestedString(obj.Object, "spec", "type")
	if svcType != "LoadBalancer" {
		return ready("ServiceExists", "service is ready", nil)
	}

	ingress, found, err := unstructured.NestedSlice(obj.Object, "status", "loadBalancer", "ingress")
	if err == nil && found {
		for _, i := range ingress {
			entry, ok := i.(map[string]interface{})
			if !ok {
				continue
			}
			ip, _ := entry["ip"].(string)
			hostname, _ := entry["hostname"].(string)
			if ip != "" || hostname != "" {
				address := ip
				if address == "" {
					address = hostname
				}
				return ready("LoadBalancerAssigned",
					fmt.Sprintf("load balancer address %s assigned", address),
					map[string]interface{}{"address": address})
			}
		}
	}
	return notReady("LoadBalancerPending", "waiting for load balancer address", nil)
}

// CronJob is ready when suspended, or once it has been scheduled at least
// once. The number of currently active runs does not matter.
func CronJob(obj *unstructured.Unstructured) Verdict {
	if suspended, found, err := unstructured.NestedBool(obj.Object, "spec", "suspend"); found && err == nil && suspended {
		return ready("Suspended", "cron job is suspended", nil)
	}
	if last, found, err := unstructured.NestedString(obj.Object, "status", "lastScheduleTime"); found && err == nil && last != "" {
		return ready("Scheduled", "cron job has been scheduled",
			map[string]interface{}{"lastScheduleTime": last})
	}
	return notReady("NeverScheduled", "cron job has not been scheduled yet", nil)
}

// Job is ready once its Complete condition is true. A true Failed condition
// is reported as a non-ready verdict with the failure reason.
func Job(obj *unstructured.Unstructured) Verdict {
	if conditionStatus(obj, "Complete") == "True" {
		return ready("Complete", "job completed", nil)
	}
	if conditionStatus(obj, "Failed") == "True" {
		return notReady("Failed", "job failed", nil)
	}
	active := nestedInt(obj.Object, "status", "active")
	return notReady("Running", fmt.Sprintf("job has %d active pods", active),
		map[string]interface{}{"active": active})
}

// PersistentVolumeClaim is ready once it is bound to a volume.
func PersistentVolumeClaim(obj *unstructured.Unstructured) Verdict {
	phase, _, _ := unstructured.NestedString(obj.Object, "status", "phase")
	details := map[string]interface{}{"phase": phase}
	if phase == "Bound" {
		return ready("Bound", "claim is bound", details)
	}
	return notReady("NotBound", fmt.Sprintf("claim phase is %q", phase), details)
}

// Pod is ready once its Ready condition is true.
func Pod(obj *unstructured.Unstructured) Verdict {
	if conditionStatus(obj, "Ready") == "True" {
		return ready("PodReady", "pod is ready", nil)
	}
	phase, _, _ := unstructured.NestedString(obj.Object, "status", "phase")
	return notReady("PodNotReady", fmt.Sprintf("pod phase is %q", phase),
		map[string]interface{}{"phase": phase})
}

// ExistsAndNotFailed is the fallback for kinds without a bespoke evaluator:
// the object exists and carries no true *Failure/*Failed status condition.
func ExistsAndNotFailed(obj *unstructured.Unstructured) Verdict {
	conditions, found, err := unstructured.NestedSlice(obj.Object, "status", "conditions")
	if err == nil && found {
		for _, c := range conditions {
			cond, ok := c.(map[string]interface{})
			if !ok {
				continue
			}
			t, _ := cond["type"].(string)
			s, _ := cond["status"].(string)
			if s == "True" && isFatalConditionType(t) {
				msg, _ := cond["message"].(string)
				return notReady(t, msg, nil)
			}
		}
	}
	return ready("Exists", "resource exists", nil)
}

func isFatalConditionType(t string) bool {
	return strings.HasSuffix(t, "Failure") || strings.HasSuffix(t, "Failed")
}
