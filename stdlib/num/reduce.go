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
	"github.com/gx-org/graphc/build/fmterr"
	"github.com/gx-org/graphc/build/ir"
	"github.com/gx-org/graphc/build/ops"
	"github.com/gx-org/graphc/golang/backend/kernels"
	"github.com/gx-org/graphc/stdlib/builtin"
)

// sum reduces all the axes of a tensor.
var sum = &ops.Meta{
	Name:    ops.Sum,
	Arity:   1,
	Pattern: ops.Reduce,
	Pure:    true,
	Infer:   reduceType,
	Eval: func(args []ir.Value) (ir.Value, error) {
		x, err := builtin.Array(args, 0)
		if err != nil {
			return nil, err
		}
		out, err := sumAll(x)
		if err != nil {
			return nil, err
		}
		return ir.NewTensor(out), nil
	},
	Grad: func(g *ops.GradArgs) ([]ir.Expr, error) {
		return []ir.Expr{g.Bind(ops.BroadcastToLike, g.DOut, g.Arg(0))}, nil
	},
}

// mean computes the average of all the elements of a tensor.
var mean = &ops.Meta{
	Name:    ops.Mean,
	Arity:   1,
	Pattern: ops.Reduce,
	Pure:    true,
	Infer:   reduceType,
	Eval: func(args []ir.Value) (ir.Value, error) {
		x, err := builtin.Array(args, 0)
		if err != nil {
			return nil, err
		}
		total, err := sumAll(x)
		if err != nil {
			return nil, err
		}
		n := x.Factory().Fill(nil, float64(x.Shape().Size()))
		div, _, err := x.Factory().BinaryOp(kernels.Div, total.Shape(), n.Shape())
		if err != nil {
			return nil, err
		}
		out, err := div(total, n)
		if err != nil {
			return nil, err
		}
		return ir.NewTensor(out), nil
	},
	Grad: func(g *ops.GradArgs) ([]ir.Expr, error) {
		x := g.ArgTypes[0].(*ir.TensorType)
		sh, ok := x.Shape()
		if !ok {
			return nil, fmterr.Errorf(fmterr.TypeInference, g.Call, "cannot differentiate %s of %s: unresolved dimensions", ops.Mean, x)
		}
		factory, err := kernels.FactoryFor(x.DType)
		if err != nil {
			return nil, err
		}
		n := ir.Const(ir.NewTensor(factory.Fill(nil, float64(sh.Size()))))
		spread := g.Bind(ops.BroadcastToLike, g.DOut, g.Arg(0))
		return []ir.Expr{g.Bind(ops.Divide, spread, n)}, nil
	},
}

func reduceType(args ops.ShapeArgs) (ir.Type, error) {
	x, err := builtin.TensorArg(args, 0)
	if err != nil {
		return nil, err
	}
	return ir.TensorDims(x.DType), nil
}

func sumAll(x kernels.Array) (kernels.Array, error) {
	kernel, _, err := x.Factory().SumTo(x.Shape(), nil)
	if err != nil {
		return nil, err
	}
	return kernel(x)
}
