// Copyright 2025 The Kubernetes Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License"). You may
// not use this file except in compliance with the License. A copy of the
// License is located at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// or in the "license" file accompanying this file. This file is distributed
// on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either
// express or implied. See the License for the specific language governing
// permissions and limitations under the License.

package v1alpha1

import (
	"fmt"
	"strings"
)

// FunctionInput defines an input parameter for a custom function.
type FunctionInput struct {
	// Name is the name of the input parameter. It can be used as a variable
	// in the function's CEL expression.
	//
	// +kubebuilder:validation:Required
	// +kubebuilder:validation:Pattern=`^[a-zA-Z_][a-zA-Z0-9_]*$`
	Name string `json:"name"`

	// Type is the expected CEL type of the input parameter.
	// Examples: "string", "int", "bool".
	//
	// +kubebuilder:validation:Required
	Type string `json:"type"`
}

// FunctionDefinition defines a callable CEL function that can be used within
// expressions of a ResourceGraphDefinition. A function is uniquely identified
// by its signature: the combination of name, input types, and return type.
type FunctionDefinition struct {
	// Name is used to call the function in CEL expressions.
	//
	// +kubebuilder:validation:Required
	// +kubebuilder:validation:Pattern=`^[a-zA-Z_][a-zA-Z0-9_]*$`
	Name string `json:"name"`

	// Inputs defines the list of input parameters for the function.
	//
	// +kubebuilder:validation:Optional
	Inputs []FunctionInput `json:"inputs,omitempty"`

	// ReturnType specifies the expected CEL type of the function's output.
	// Optional, but when set the compiled expression must produce it.
	//
	// +kubebuilder:validation:Optional
	ReturnType string `json:"returnType,omitempty"`

	// Description is a human-readable description of the function.
	//
	// +kubebuilder:validation:Optional
	Description string `json:"description,omitempty"`

	// CELExpression provides the body of the function.
	//
	// +kubebuilder:validation:Required
	CELExpression string `json:"celExpression,omitempty"`
}

// Signature returns the unique "name(inputTypes) -> returnType" identifier
// for the function overload.
func (fd FunctionDefinition) Signature() string {
	types := make([]string, len(fd.Inputs))
	for i, input := range fd.Inputs {
		types[i] = input.Type
	}
	return fmt.Sprintf("%s(%s) -> %s", fd.Name, strings.Join(types, ", "), fd.ReturnType)
}
