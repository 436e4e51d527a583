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

// Package math provides the element-wise operators.
package math

import (
	"slices"

	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/graphc/build/ir"
	"github.com/gx-org/graphc/build/ops"
	"github.com/gx-org/graphc/golang/backend/kernels"
	"github.com/gx-org/graphc/stdlib/builtin"
)

// Package description of the math operators.
var Package = builtin.PackageBuilder{
	FullPath: "math",
	Builders: slices.Concat(
		builtin.BuildOps(
			binary(ops.Add, kernels.Add, gradAdd),
			binary(ops.Subtract, kernels.Sub, gradSubtract),
			binary(ops.Multiply, kernels.Mul, gradMultiply),
			binary(ops.Divide, kernels.Div, gradDivide),
			binary(ops.Maximum, kernels.Max, gradMaximum),
			binary(ops.ReluDx, kernels.ReluGrad, nil),
			compare(ops.Equal, kernels.Eq),
			compare(ops.Less, kernels.Less),
		),
		builtin.BuildOps(
			unary(ops.Negative, kernels.Neg, gradNegative),
			unary(ops.Exp, kernels.Exp, gradExp),
			unary(ops.Log, kernels.Log, gradLog),
			unary(ops.Tanh, kernels.Tanh, gradTanh),
			unary(ops.Sigmoid, kernels.Sigmoid, gradSigmoid),
			unary(ops.Sqrt, kernels.Sqrt, gradSqrt),
			unary(ops.Relu, kernels.Relu, gradRelu),
			unary(ops.Copy, kernels.Copy, gradCopy),
		),
	),
}

func unary(name string, op kernels.UnaryOp, grad ops.GradRule) *ops.Meta {
	return &ops.Meta{
		Name:    name,
		Arity:   1,
		Pattern: ops.ElemWise,
		Pure:    true,
		Infer:   unaryType,
		Eval:    builtin.EvalUnary(op),
		Grad:    grad,
	}
}

func binary(name string, op kernels.BinaryOp, grad ops.GradRule) *ops.Meta {
	return &ops.Meta{
		Name:    name,
		Arity:   2,
		Pattern: ops.Broadcast,
		Pure:    true,
		Infer:   binaryType,
		Eval:    builtin.EvalBinary(op),
		Grad:    grad,
	}
}

func compare(name string, op kernels.BinaryOp) *ops.Meta {
	return &ops.Meta{
		Name:              name,
		Arity:             2,
		Pattern:           ops.Broadcast,
		Pure:              true,
		NonDifferentiable: true,
		Infer:             compareType,
		Eval:              builtin.EvalBinary(op),
	}
}

func unaryType(args ops.ShapeArgs) (ir.Type, error) {
	return builtin.TensorArg(args, 0)
}

func broadcast(args ops.ShapeArgs) (*ir.TensorType, error) {
	tts, err := builtin.TensorArgs(args)
	if err != nil {
		return nil, err
	}
	dims, ok := builtin.BroadcastDims(tts[0].Dims, tts[1].Dims)
	if !ok {
		return nil, args.Errorf("cannot broadcast %s and %s", tts[0], tts[1])
	}
	return ir.TensorDims(tts[0].DType, dims...), nil
}

func binaryType(args ops.ShapeArgs) (ir.Type, error) {
	return broadcast(args)
}

func compareType(args ops.ShapeArgs) (ir.Type, error) {
	tt, err := broadcast(args)
	if err != nil {
		return nil, err
	}
	return ir.TensorDims(dtype.Bool, tt.Dims...), nil
}
