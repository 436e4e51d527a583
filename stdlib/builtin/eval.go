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

package builtin

import (
	"github.com/gx-org/backend/shape"
	"github.com/gx-org/graphc/build/ir"
	"github.com/gx-org/graphc/build/ops"
	"github.com/gx-org/graphc/golang/backend/kernels"
	"github.com/pkg/errors"
)

// Value returns an argument value given its expected type.
func Value[T ir.Value](args []ir.Value, i int) (T, error) {
	v, ok := args[i].(T)
	if !ok {
		var zero T
		return zero, errors.Errorf("argument %d: expected a %T value but got %T", i, zero, args[i])
	}
	return v, nil
}

// Array returns the array of a tensor argument value.
func Array(args []ir.Value, i int) (kernels.Array, error) {
	v, err := Value[*ir.TensorValue](args, i)
	if err != nil {
		return nil, err
	}
	return v.Array, nil
}

// Ints returns the integers of an attribute argument value.
func Ints(args []ir.Value, i int) ([]int, error) {
	v, err := Value[*ir.IntsValue](args, i)
	if err != nil {
		return nil, err
	}
	return v.Vals, nil
}

// EvalUnary returns a constant evaluator for a unary kernel.
func EvalUnary(op kernels.UnaryOp) ops.ConstEval {
	return func(args []ir.Value) (ir.Value, error) {
		x, err := Array(args, 0)
		if err != nil {
			return nil, err
		}
		kernel, _, err := x.Factory().UnaryOp(op, x.Shape())
		if err != nil {
			return nil, err
		}
		return applyUnary(kernel, x)
	}
}

// EvalBinary returns a constant evaluator for a binary kernel.
func EvalBinary(op kernels.BinaryOp) ops.ConstEval {
	return func(args []ir.Value) (ir.Value, error) {
		x, err := Array(args, 0)
		if err != nil {
			return nil, err
		}
		y, err := Array(args, 1)
		if err != nil {
			return nil, err
		}
		if x.Shape().DType != y.Shape().DType {
			return nil, errors.Errorf("mismatched data types %s and %s", ir.DTypeName(x.Shape().DType), ir.DTypeName(y.Shape().DType))
		}
		kernel, _, err := x.Factory().BinaryOp(op, x.Shape(), y.Shape())
		if err != nil {
			return nil, err
		}
		out, err := kernel(x, y)
		if err != nil {
			return nil, err
		}
		return ir.NewTensor(out), nil
	}
}

// ShapeKernel builds a kernel changing the shape of an array,
// like kernels.Factory.Reshape.
type ShapeKernel func(f kernels.Factory, x *shape.Shape, dims []int) (kernels.Unary, *shape.Shape, error)

// EvalShape returns a constant evaluator applying a shape kernel to its first
// argument. dims computes the target dimensions from all the arguments.
func EvalShape(build ShapeKernel, dims func([]ir.Value) ([]int, error)) ops.ConstEval {
	return func(args []ir.Value) (ir.Value, error) {
		x, err := Array(args, 0)
		if err != nil {
			return nil, err
		}
		target, err := dims(args)
		if err != nil {
			return nil, err
		}
		kernel, _, err := build(x.Factory(), x.Shape(), target)
		if err != nil {
			return nil, err
		}
		return applyUnary(kernel, x)
	}
}

// IntsAt returns a function returning the integers of the ith argument.
func IntsAt(i int) func([]ir.Value) ([]int, error) {
	return func(args []ir.Value) ([]int, error) {
		return Ints(args, i)
	}
}

// ShapeAt returns a function returning the dimensions of the ith argument.
func ShapeAt(i int) func([]ir.Value) ([]int, error) {
	return func(args []ir.Value) ([]int, error) {
		a, err := Array(args, i)
		if err != nil {
			return nil, err
		}
		return a.Shape().AxisLengths, nil
	}
}

func applyUnary(kernel kernels.Unary, x kernels.Array) (ir.Value, error) {
	out, err := kernel(x)
	if err != nil {
		return nil, err
	}
	return ir.NewTensor(out), nil
}

// EvalIdentity returns its first argument.
func EvalIdentity(args []ir.Value) (ir.Value, error) {
	return args[0], nil
}
