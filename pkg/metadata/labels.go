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

package metadata

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/validation"
	"sigs.k8s.io/release-utils/version"

	"github.com/kubernetes-sigs/kro-sdk-go/api/v1alpha1"
)

const (
	// LabelKROPrefix is the label key prefix used to identify KRO owned resources.
	LabelKROPrefix = v1alpha1.KRODomainName + "/"
)

const (
	// NodeIDLabel records which graph node an applied object was rendered from.
	NodeIDLabel = LabelKROPrefix + "node-id"

	// DeploymentIDLabel ties an applied object to the deploy run that
	// created it. Rollback refuses to delete objects carrying a
	// different deployment id.
	DeploymentIDLabel = LabelKROPrefix + "deployment-id"

	OwnedLabel      = LabelKROPrefix + "owned"
	KROVersionLabel = LabelKROPrefix + "kro-version"
)

// IsKROOwned returns true if the resource is owned by KRO.
func IsKROOwned(meta metav1.Object) bool {
	v, ok := meta.GetLabels()[OwnedLabel]
	return ok && booleanFromString(v)
}

// SetKROOwned sets the OwnedLabel to true on the resource.
func SetKROOwned(meta metav1.Object) {
	setLabel(meta, OwnedLabel, stringFromBoolean(true))
}

// SetKROUnowned sets the OwnedLabel to false on the resource.
func SetKROUnowned(meta metav1.Object) {
	setLabel(meta, OwnedLabel, stringFromBoolean(false))
}

var (
	ErrDuplicatedLabels = errors.New("duplicate labels")
)

var _ Labeler = GenericLabeler{}

// Labeler is an interface that defines a set of labels that can be
// applied to a resource.
type Labeler interface {
	Labels() map[string]string
	ApplyLabels(metav1.Object)
	Merge(Labeler) (Labeler, error)
}

// GenericLabeler is a map of labels that can be applied to a resource.
// It implements the Labeler interface.
type GenericLabeler map[string]string

// Labels returns the labels.
func (gl GenericLabeler) Labels() map[string]string {
	return gl
}

// ApplyLabels applies the labels to the resource.
func (gl GenericLabeler) ApplyLabels(meta metav1.Object) {
	for k, v := range gl {
		setLabel(meta, k, v)
	}
}

// Merge merges the labels from the other labeler into the current
// labeler. If there are any duplicate keys, an error is returned.
func (gl GenericLabeler) Merge(other Labeler) (Labeler, error) {
	newLabels := gl.Copy()
	for k, v := range other.Labels() {
		if _, ok := newLabels[k]; ok {
			return nil, fmt.Errorf("%v: found key '%s' in both maps", ErrDuplicatedLabels, k)
		}
		newLabels[k] = v
	}
	return GenericLabeler(newLabels), nil
}

// Copy returns a copy of the labels.
func (gl GenericLabeler) Copy() map[string]string {
	newGenericLabeler := map[string]string{}
	for k, v := range gl {
		newGenericLabeler[k] = v
	}
	return newGenericLabeler
}

// NewDeploymentLabeler returns a labeler stamping the deploy-run id and
// originating node id on an applied object.
func NewDeploymentLabeler(deploymentID, nodeID string) GenericLabeler {
	return map[string]string{
		DeploymentIDLabel: deploymentID,
		NodeIDLabel:       nodeLabelValue(nodeID),
	}
}

// nodeLabelValue is the node id as stamped on objects: verbatim when it
// is already a legal label value, hashed otherwise.
func nodeLabelValue(nodeID string) string {
	if validation.IsValidLabelValue(nodeID) == nil {
		return nodeID
	}
	return SafeNodeID(nodeID)
}

// NewKROMetaLabeler returns a new labeler that sets the OwnedLabel and
// KROVersion labels on a resource.
func NewKROMetaLabeler() GenericLabeler {
	return map[string]string{
		OwnedLabel:      "true",
		KROVersionLabel: safeVersion(version.GetVersionInfo().GitVersion),
	}
}

// SafeNodeID maps an arbitrary node id to a deterministic value that is
// always usable as a label value. Node ids are CEL identifiers and can
// exceed the 63 character label limit.
func SafeNodeID(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:8])
}

func safeVersion(version string) string {
	if validation.IsValidLabelValue(version) == nil {
		return version
	}
	// The script we use might add '+dirty' to development branches,
	// so let's try replacing '+' with '-'.
	return strings.ReplaceAll(version, "+", "-")
}

func booleanFromString(s string) bool {
	// for the sake of simplicity we'll avoid doing any kind
	// of parsing here. Since those labels are set by the engine
	// it self. We'll expect the same values back.
	return s == "true"
}

func stringFromBoolean(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// Helper function to set a label
func setLabel(meta metav1.Object, key, value string) {
	labels := meta.GetLabels()
	if labels == nil {
		labels = make(map[string]string)
	}
	labels[key] = value
	meta.SetLabels(labels)
}
