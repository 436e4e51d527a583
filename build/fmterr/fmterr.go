// Copyright 2025 Google LLC
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

// Package fmterr defines the errors returned by the compiler passes and
// helpers to accumulate them.
package fmterr

import "fmt"

// Kind of a compiler error.
type Kind int

// Kinds of errors a pass can return.
const (
	// Internal is a bug in the compiler.
	Internal Kind = iota
	// TypeInference is returned when the type of an expression cannot be resolved.
	TypeInference
	// UnknownOperatorShape is returned when an operator has no shape rule.
	UnknownOperatorShape
	// Arity is returned when the number of arguments or the index of a
	// tuple projection does not match the callee or the tuple.
	Arity
	// UnknownOperator is returned when an operator is not in the registry.
	UnknownOperator
	// NoGradientRule is returned when differentiating an operator without gradient rule.
	NoGradientRule
	// DeviceConflict is returned when an expression is constrained to two devices.
	DeviceConflict
	// FusionCycle is returned when a fusion group would create a cycle
	// or cross an effect boundary.
	FusionCycle
	// LivenessViolation is returned when a buffer is used after it has been
	// freed or shared by two live tensors.
	LivenessViolation
	// Partition is returned when annotated regions are inconsistent.
	Partition
)

var kindNames = map[Kind]string{
	Internal:             "internal error",
	TypeInference:        "type inference error",
	UnknownOperatorShape: "unknown operator shape",
	Arity:                "arity error",
	UnknownOperator:      "unknown operator",
	NoGradientRule:       "no gradient rule",
	DeviceConflict:       "device conflict",
	FusionCycle:          "fusion cycle",
	LivenessViolation:    "liveness violation",
	Partition:            "partition error",
}

// Parent returns the kind a kind refines.
// UnknownOperatorShape and Arity are type inference errors.
func (k Kind) Parent() (Kind, bool) {
	switch k {
	case UnknownOperatorShape, Arity:
		return TypeInference, true
	}
	return k, false
}

func (k Kind) String() string {
	s, ok := kindNames[k]
	if !ok {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return s
}

// PrefixWith returns a function to prefix errors with a formatted string.
func PrefixWith(s string, o ...any) func(err error) error {
	return func(err error) error {
		return fmt.Errorf("%s%w", fmt.Sprintf(s, o...), err)
	}
}
