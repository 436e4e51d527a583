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

// Package irhelper provides helper functions to build IR programmatically.
package irhelper

import (
	"fmt"

	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/graphc/build/ir"
	"github.com/gx-org/graphc/golang/backend/kernels"
)

// F32 returns a float32 tensor type.
func F32(dims ...int) *ir.TensorType {
	return ir.Tensor(dtype.Float32, dims...)
}

// F64 returns a float64 tensor type.
func F64(dims ...int) *ir.TensorType {
	return ir.Tensor(dtype.Float64, dims...)
}

// Param returns a function parameter with a type annotation.
func Param(name string, typ ir.Type) *ir.Var {
	return ir.NewVar(name, typ)
}

// Array returns an array given its values and dimensions.
// It panics if the number of values does not match the dimensions.
func Array[T float32 | float64 | int32 | int64 | bool](values []T, dims ...int) kernels.Array {
	a, err := kernels.ToArray(values, dims)
	if err != nil {
		panic(fmt.Sprintf("irhelper: %v", err))
	}
	return a
}

// TensorValue returns a tensor value.
func TensorValue[T float32 | float64 | int32 | int64 | bool](values []T, dims ...int) *ir.TensorValue {
	return ir.NewTensor(Array(values, dims...))
}

// Tensor returns a constant tensor expression.
func Tensor[T float32 | float64 | int32 | int64 | bool](values []T, dims ...int) *ir.Constant {
	return ir.Const(TensorValue(values, dims...))
}

// Scalar returns a constant scalar expression.
func Scalar[T float32 | float64 | int32 | int64 | bool](v T) *ir.Constant {
	return ir.Const(ir.NewTensor(kernels.Scalar(v)))
}

// Ints returns a constant integer list attribute.
func Ints(vals ...int) *ir.Constant {
	return ir.Const(ir.Ints(vals...))
}

// Device returns a constant device attribute.
func Device(dev ir.Device) *ir.Constant {
	return ir.Const(&ir.DeviceValue{Device: dev})
}

// Call returns a call to an operator.
func Call(op string, args ...ir.Expr) *ir.Call {
	return ir.CallOp(op, args...)
}

// Body builds the body of a function in A-normal form.
type Body struct {
	ll ir.LetList
}

// Let binds a value to a new variable.
func (b *Body) Let(name string, value ir.Expr) *ir.Var {
	return b.ll.Push(name, value)
}

// Return returns the body with the given result.
func (b *Body) Return(result ir.Expr) ir.Expr {
	return b.ll.Wrap(result)
}

// Func returns a function given its parameters and a function building its body.
func Func(params []*ir.Var, build func(b *Body) ir.Expr) *ir.Function {
	var b Body
	return ir.NewFunc(params, build(&b))
}

// Module returns a module with a single entry function.
func Module(params []*ir.Var, build func(b *Body) ir.Expr) *ir.Module {
	return ir.FromFunc(Func(params, build))
}
