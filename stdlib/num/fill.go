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

package num

import (
	"github.com/gx-org/graphc/build/ir"
	"github.com/gx-org/graphc/build/ops"
	"github.com/gx-org/graphc/golang/backend/kernels"
	"github.com/gx-org/graphc/stdlib/builtin"
)

// fillOp returns an operator creating a tensor filled with a value:
//
//	zeros(shape, dtype)
func fillOp(name string, v float64) *ops.Meta {
	return &ops.Meta{
		Name:              name,
		Arity:             2,
		Pattern:           ops.ElemWise,
		Pure:              true,
		NonDifferentiable: true,
		Infer: func(args ops.ShapeArgs) (ir.Type, error) {
			dims, err := builtin.IntsArg(args, 0)
			if err != nil {
				return nil, err
			}
			dt, err := builtin.AttrArg[*ir.DTypeValue](args, 1)
			if err != nil {
				return nil, err
			}
			return ir.Tensor(dt.DType, dims...), nil
		},
		Eval: func(args []ir.Value) (ir.Value, error) {
			dims, err := builtin.Ints(args, 0)
			if err != nil {
				return nil, err
			}
			dt, err := builtin.Value[*ir.DTypeValue](args, 1)
			if err != nil {
				return nil, err
			}
			factory, err := kernels.FactoryFor(dt.DType)
			if err != nil {
				return nil, err
			}
			return ir.NewTensor(factory.Fill(dims, v)), nil
		},
	}
}

// fillLikeOp returns an operator creating a tensor filled with a value
// with the type of its argument:
//
//	zeros_like(x)
func fillLikeOp(name string, v float64) *ops.Meta {
	return &ops.Meta{
		Name:              name,
		Arity:             1,
		Pattern:           ops.ElemWise,
		Pure:              true,
		NonDifferentiable: true,
		Infer: func(args ops.ShapeArgs) (ir.Type, error) {
			return builtin.TensorArg(args, 0)
		},
		Eval: func(args []ir.Value) (ir.Value, error) {
			x, err := builtin.Array(args, 0)
			if err != nil {
				return nil, err
			}
			return ir.NewTensor(x.Factory().Fill(x.Shape().AxisLengths, v)), nil
		},
	}
}
