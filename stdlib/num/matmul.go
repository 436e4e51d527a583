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
	"github.com/gx-org/graphc/stdlib/builtin"
)

// matmulOp returns a matrix multiplication operator.
// transX and transY transpose the left and right operands.
func matmulOp(name string, transX, transY bool, grad ops.GradRule) *ops.Meta {
	return &ops.Meta{
		Name:    name,
		Arity:   2,
		Pattern: ops.OutEWiseFusable,
		Pure:    true,
		Infer: func(args ops.ShapeArgs) (ir.Type, error) {
			return matmulType(args, transX, transY)
		},
		Eval: func(args []ir.Value) (ir.Value, error) {
			x, err := builtin.Array(args, 0)
			if err != nil {
				return nil, err
			}
			y, err := builtin.Array(args, 1)
			if err != nil {
				return nil, err
			}
			kernel, _, err := x.Factory().MatMul(x.Shape(), y.Shape(), transX, transY)
			if err != nil {
				return nil, err
			}
			out, err := kernel(x, y)
			if err != nil {
				return nil, err
			}
			return ir.NewTensor(out), nil
		},
		Grad: grad,
	}
}

func matrixDims(args ops.ShapeArgs, tt *ir.TensorType, trans bool) (rows, cols ir.Dim, err error) {
	if tt.Rank() != 2 {
		return rows, cols, args.Errorf("%s is not a matrix", tt)
	}
	rows, cols = tt.Dims[0], tt.Dims[1]
	if trans {
		rows, cols = cols, rows
	}
	return rows, cols, nil
}

func matmulType(args ops.ShapeArgs, transX, transY bool) (ir.Type, error) {
	tts, err := builtin.TensorArgs(args)
	if err != nil {
		return nil, err
	}
	m, kx, err := matrixDims(args, tts[0], transX)
	if err != nil {
		return nil, err
	}
	ky, n, err := matrixDims(args, tts[1], transY)
	if err != nil {
		return nil, err
	}
	if !kx.Equal(ky) {
		return nil, args.Errorf("left argument %s not compatible with right argument %s", tts[0], tts[1])
	}
	return ir.TensorDims(tts[0].DType, m, n), nil
}

// x[m,k] y[k,n]: dx = dout y^T, dy = x^T dout
func gradMatMul(g *ops.GradArgs) ([]ir.Expr, error) {
	return []ir.Expr{
		g.Bind(ops.MatMulNT, g.DOut, g.Arg(1)),
		g.Bind(ops.MatMulTN, g.Arg(0), g.DOut),
	}, nil
}

// x[m,k] y[n,k]: dx = dout y, dy = dout^T x
func gradMatMulNT(g *ops.GradArgs) ([]ir.Expr, error) {
	return []ir.Expr{
		g.Bind(ops.MatMul, g.DOut, g.Arg(1)),
		g.Bind(ops.MatMulTN, g.DOut, g.Arg(0)),
	}, nil
}

// x[k,m] y[k,n]: dx = y dout^T, dy = x dout
func gradMatMulTN(g *ops.GradArgs) ([]ir.Expr, error) {
	return []ir.Expr{
		g.Bind(ops.MatMulNT, g.Arg(1), g.DOut),
		g.Bind(ops.MatMul, g.Arg(0), g.DOut),
	}, nil
}
