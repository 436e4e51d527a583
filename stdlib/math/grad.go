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

package math

import (
	"github.com/gx-org/graphc/build/ir"
	"github.com/gx-org/graphc/build/ops"
	"github.com/gx-org/graphc/stdlib/builtin"
)

func gradAdd(g *ops.GradArgs) ([]ir.Expr, error) {
	return []ir.Expr{
		builtin.Unbroadcast(g, g.DOut, 0),
		builtin.Unbroadcast(g, g.DOut, 1),
	}, nil
}

func gradSubtract(g *ops.GradArgs) ([]ir.Expr, error) {
	neg := g.Bind(ops.Negative, g.DOut)
	return []ir.Expr{
		builtin.Unbroadcast(g, g.DOut, 0),
		builtin.Unbroadcast(g, neg, 1),
	}, nil
}

func gradMultiply(g *ops.GradArgs) ([]ir.Expr, error) {
	dx := g.Bind(ops.Multiply, g.DOut, g.Arg(1))
	dy := g.Bind(ops.Multiply, g.DOut, g.Arg(0))
	return []ir.Expr{
		builtin.Unbroadcast(g, dx, 0),
		builtin.Unbroadcast(g, dy, 1),
	}, nil
}

// d(x/y)/dy = -x/y^2 = -(x/y)/y
func gradDivide(g *ops.GradArgs) ([]ir.Expr, error) {
	dx := g.Bind(ops.Divide, g.DOut, g.Arg(1))
	prod := g.Bind(ops.Multiply, g.DOut, g.Out)
	quo := g.Bind(ops.Divide, prod, g.Arg(1))
	dy := g.Bind(ops.Negative, quo)
	return []ir.Expr{
		builtin.Unbroadcast(g, dx, 0),
		builtin.Unbroadcast(g, dy, 1),
	}, nil
}

// The gradient flows to the strictly greater argument. Ties get no gradient.
func gradMaximum(g *ops.GradArgs) ([]ir.Expr, error) {
	xy := g.Bind(ops.Subtract, g.Arg(0), g.Arg(1))
	dx := g.Bind(ops.ReluDx, xy, g.DOut)
	yx := g.Bind(ops.Subtract, g.Arg(1), g.Arg(0))
	dy := g.Bind(ops.ReluDx, yx, g.DOut)
	return []ir.Expr{
		builtin.Unbroadcast(g, dx, 0),
		builtin.Unbroadcast(g, dy, 1),
	}, nil
}

func gradNegative(g *ops.GradArgs) ([]ir.Expr, error) {
	return []ir.Expr{g.Bind(ops.Negative, g.DOut)}, nil
}

func gradExp(g *ops.GradArgs) ([]ir.Expr, error) {
	return []ir.Expr{g.Bind(ops.Multiply, g.DOut, g.Out)}, nil
}

func gradLog(g *ops.GradArgs) ([]ir.Expr, error) {
	return []ir.Expr{g.Bind(ops.Divide, g.DOut, g.Arg(0))}, nil
}

// tanh'(x) = 1 - tanh(x)^2
func gradTanh(g *ops.GradArgs) ([]ir.Expr, error) {
	one := g.Bind(ops.OnesLike, g.Out)
	sq := g.Bind(ops.Multiply, g.Out, g.Out)
	d := g.Bind(ops.Subtract, one, sq)
	return []ir.Expr{g.Bind(ops.Multiply, g.DOut, d)}, nil
}

// sigmoid'(x) = sigmoid(x) * (1 - sigmoid(x))
func gradSigmoid(g *ops.GradArgs) ([]ir.Expr, error) {
	one := g.Bind(ops.OnesLike, g.Out)
	rest := g.Bind(ops.Subtract, one, g.Out)
	d := g.Bind(ops.Multiply, g.Out, rest)
	return []ir.Expr{g.Bind(ops.Multiply, g.DOut, d)}, nil
}

// sqrt'(x) = 1 / (2 sqrt(x))
func gradSqrt(g *ops.GradArgs) ([]ir.Expr, error) {
	twice := g.Bind(ops.Add, g.Out, g.Out)
	return []ir.Expr{g.Bind(ops.Divide, g.DOut, twice)}, nil
}

func gradRelu(g *ops.GradArgs) ([]ir.Expr, error) {
	return []ir.Expr{g.Bind(ops.ReluDx, g.Arg(0), g.DOut)}, nil
}

func gradCopy(g *ops.GradArgs) ([]ir.Expr, error) {
	return []ir.Expr{g.DOut}, nil
}
