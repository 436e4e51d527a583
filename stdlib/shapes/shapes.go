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

// Package shapes provides the operators changing the shape of tensors.
//
// Operators with a _like suffix take their target shape from a reference
// tensor instead of an integer list attribute.
package shapes

import (
	"github.com/gx-org/graphc/build/ir"
	"github.com/gx-org/graphc/build/ops"
	"github.com/gx-org/graphc/golang/backend/kernels"
	"github.com/gx-org/graphc/internal/canonical"
	"github.com/gx-org/graphc/stdlib/builtin"
	"github.com/pkg/errors"
)

// Package description of the shapes operators.
var Package = builtin.PackageBuilder{
	FullPath: "shapes",
	Builders: builtin.BuildOps(
		&ops.Meta{
			Name:    ops.Reshape,
			Arity:   2,
			Pattern: ops.Injective,
			Pure:    true,
			Infer:   attrTarget(reshapeType),
			Eval:    builtin.EvalShape(kernels.Factory.Reshape, builtin.IntsAt(1)),
			Grad:    gradReshape,
		},
		&ops.Meta{
			Name:    ops.ReshapeLike,
			Arity:   2,
			Pattern: ops.Injective,
			Pure:    true,
			Infer:   likeTarget(reshapeType),
			Eval:    builtin.EvalShape(kernels.Factory.Reshape, builtin.ShapeAt(1)),
			Grad:    gradReshape,
		},
		&ops.Meta{
			Name:    ops.BatchFlatten,
			Arity:   1,
			Pattern: ops.Injective,
			Pure:    true,
			Infer:   batchFlattenType,
			Eval:    builtin.EvalShape(kernels.Factory.Reshape, batchFlattenDims),
			Grad:    gradReshape,
		},
		&ops.Meta{
			Name:    ops.BroadcastTo,
			Arity:   2,
			Pattern: ops.Broadcast,
			Pure:    true,
			Infer:   attrTarget(broadcastToType),
			Eval:    builtin.EvalShape(kernels.Factory.BroadcastTo, builtin.IntsAt(1)),
			Grad:    gradBroadcastTo,
		},
		&ops.Meta{
			Name:    ops.BroadcastToLike,
			Arity:   2,
			Pattern: ops.Broadcast,
			Pure:    true,
			Infer:   likeTarget(broadcastToType),
			Eval:    builtin.EvalShape(kernels.Factory.BroadcastTo, builtin.ShapeAt(1)),
			Grad:    gradBroadcastTo,
		},
		&ops.Meta{
			Name:    ops.CollapseSumTo,
			Arity:   2,
			Pattern: ops.Reduce,
			Pure:    true,
			Infer:   attrTarget(collapseSumType),
			Eval:    builtin.EvalShape(kernels.Factory.SumTo, builtin.IntsAt(1)),
			Grad:    gradCollapseSum,
		},
		&ops.Meta{
			Name:    ops.CollapseSumLike,
			Arity:   2,
			Pattern: ops.Reduce,
			Pure:    true,
			Infer:   likeTarget(collapseSumType),
			Eval:    builtin.EvalShape(kernels.Factory.SumTo, builtin.ShapeAt(1)),
			Grad:    gradCollapseSum,
		},
	),
}

// targetRule computes the type of an operator given the type of its input and target dimensions.
type targetRule func(args ops.ShapeArgs, x *ir.TensorType, target []ir.Dim) (ir.Type, error)

// attrTarget reads the target dimensions from an integer list attribute.
func attrTarget(rule targetRule) ops.ShapeRule {
	return func(args ops.ShapeArgs) (ir.Type, error) {
		x, err := builtin.TensorArg(args, 0)
		if err != nil {
			return nil, err
		}
		target, err := builtin.IntsArg(args, 1)
		if err != nil {
			return nil, err
		}
		return rule(args, x, builtin.Dims(target))
	}
}

// likeTarget reads the target dimensions from the type of a reference tensor.
func likeTarget(rule targetRule) ops.ShapeRule {
	return func(args ops.ShapeArgs) (ir.Type, error) {
		x, err := builtin.TensorArg(args, 0)
		if err != nil {
			return nil, err
		}
		ref, err := builtin.TensorArg(args, 1)
		if err != nil {
			return nil, err
		}
		return rule(args, x, ref.Dims)
	}
}

func reshapeType(args ops.ShapeArgs, x *ir.TensorType, target []ir.Dim) (ir.Type, error) {
	out := append([]ir.Dim{}, target...)
	inferred := -1
	var known []ir.Dim
	for i, d := range out {
		if v, ok := d.Value(); ok && v == -1 {
			if inferred >= 0 {
				return nil, args.Errorf("cannot reshape %s to %v: more than one axis to infer", x, target)
			}
			inferred = i
			continue
		}
		known = append(known, d)
	}
	total := ir.MulDims(x.Dims...)
	if inferred >= 0 {
		out[inferred] = divDims(total, ir.MulDims(known...))
	}
	if mismatch(total, ir.MulDims(out...), inferred >= 0) {
		return nil, args.Errorf("cannot reshape %s to %v: number of elements mismatch", x, target)
	}
	return ir.TensorDims(x.DType, out...), nil
}

// mismatch returns true if two numbers of elements are different.
// Symbolic numbers of elements are only compared if no axis has been inferred.
func mismatch(want, got ir.Dim, inferred bool) bool {
	wantV, wantOk := want.Value()
	gotV, gotOk := got.Value()
	if wantOk && gotOk {
		return wantV != gotV
	}
	return !inferred && !want.Equal(got)
}

func divDims(total, known ir.Dim) ir.Dim {
	if total.IsAny() || known.IsAny() {
		return ir.AnyDim()
	}
	return ir.DimFromExpr(canonical.FloorDiv(total.Expr(), known.Expr()))
}

func broadcastToType(args ops.ShapeArgs, x *ir.TensorType, target []ir.Dim) (ir.Type, error) {
	if !builtin.CanBroadcastTo(x.Dims, target) {
		return nil, args.Errorf("cannot broadcast %s to %v", x, target)
	}
	return ir.TensorDims(x.DType, target...), nil
}

func collapseSumType(args ops.ShapeArgs, x *ir.TensorType, target []ir.Dim) (ir.Type, error) {
	if !builtin.CanBroadcastTo(target, x.Dims) {
		return nil, args.Errorf("cannot sum %s to %v", x, target)
	}
	return ir.TensorDims(x.DType, target...), nil
}

// batchFlattenType flattens all the axes but the first: (d0, d1*...*dn).
func batchFlattenType(args ops.ShapeArgs) (ir.Type, error) {
	x, err := builtin.TensorArg(args, 0)
	if err != nil {
		return nil, err
	}
	if x.Rank() == 0 {
		return nil, args.Errorf("cannot flatten scalar %s", x)
	}
	return ir.TensorDims(x.DType, x.Dims[0], ir.MulDims(x.Dims[1:]...)), nil
}

func batchFlattenDims(args []ir.Value) ([]int, error) {
	x, err := builtin.Array(args, 0)
	if err != nil {
		return nil, err
	}
	dims := x.Shape().AxisLengths
	if len(dims) == 0 {
		return nil, errors.Errorf("cannot flatten a scalar")
	}
	return []int{dims[0], -1}, nil
}

func gradReshape(g *ops.GradArgs) ([]ir.Expr, error) {
	grads := make([]ir.Expr, len(g.Call.Args))
	grads[0] = g.Bind(ops.ReshapeLike, g.DOut, g.Arg(0))
	return grads, nil
}

func gradBroadcastTo(g *ops.GradArgs) ([]ir.Expr, error) {
	return []ir.Expr{g.Bind(ops.CollapseSumLike, g.DOut, g.Arg(0)), nil}, nil
}

func gradCollapseSum(g *ops.GradArgs) ([]ir.Expr, error) {
	return []ir.Expr{g.Bind(ops.BroadcastToLike, g.DOut, g.Arg(0)), nil}, nil
}
