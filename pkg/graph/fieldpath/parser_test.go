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

package fieldpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		want    []Segment
		wantErr bool
	}{
		{
			name: "simple dotted path",
			path: "spec.replicas",
			want: []Segment{Named("spec"), Named("replicas")},
		},
		{
			name: "array index",
			path: "spec.containers[0].image",
			want: []Segment{Named("spec"), Named("containers"), Indexed(0), Named("image")},
		},
		{
			name: "quoted field with dots",
			path: `metadata.annotations["kro.run/owned"]`,
			want: []Segment{Named("metadata"), Named("annotations"), Named("kro.run/owned")},
		},
		{
			name: "nested indices",
			path: "a[0][1].b",
			want: []Segment{Named("a"), Indexed(0), Indexed(1), Named("b")},
		},
		{
			name: "single field",
			path: "status",
			want: []Segment{Named("status")},
		},
		{
			name:    "empty path",
			path:    "",
			wantErr: true,
		},
		{
			name:    "trailing dot",
			path:    "spec.",
			wantErr: true,
		},
		{
			name:    "double dot",
			path:    "spec..replicas",
			wantErr: true,
		},
		{
			name:    "negative index",
			path:    "spec.containers[-1]",
			wantErr: true,
		},
		{
			name:    "unterminated bracket",
			path:    "spec.containers[0",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.path)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildRoundTrip(t *testing.T) {
	paths := []string{
		"spec.replicas",
		"spec.containers[0].image",
		`metadata.annotations["kro.run/owned"]`,
	}
	for _, path := range paths {
		segments, err := Parse(path)
		require.NoError(t, err)
		assert.Equal(t, path, Build(segments))
	}
}
