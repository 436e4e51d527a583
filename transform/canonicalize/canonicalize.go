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

// Package canonicalize rewrites operators into the canonical forms expected by
// the later passes of the compiler.
package canonicalize

import (
	"github.com/gx-org/graphc/build/ir"
	"github.com/gx-org/graphc/build/ops"
	"github.com/gx-org/graphc/internal/funcpass"
)

// likeOps maps operators taking a reference tensor to the same operator taking
// the shape of the reference as an attribute.
var likeOps = map[string]string{
	ops.ReshapeLike:     ops.Reshape,
	ops.BroadcastToLike: ops.BroadcastTo,
	ops.CollapseSumLike: ops.CollapseSumTo,
}

// fillOps maps operators creating a tensor of the type of their argument
// to the operator taking a shape and a data type.
var fillOps = map[string]string{
	ops.ZerosLike: ops.Zeros,
	ops.OnesLike:  ops.Ones,
}

// CanonicalizeOps replaces operators depending on the type of a reference
// tensor by their equivalent taking static shape attributes.
// Calls whose reference type is unknown or not static are left unchanged.
// The module must have been typed by InferType.
func CanonicalizeOps(mod *ir.Module, opts ...funcpass.Option) (*ir.Module, error) {
	return funcpass.Run(mod, func(_ string, fn *ir.Function) (*ir.Function, error) {
		return Function(mod, fn)
	}, opts...)
}

// Function canonicalizes the operators of a function.
// Types of expressions are read from mod.
func Function(mod *ir.Module, fn *ir.Function) (*ir.Function, error) {
	r := ir.Rewriter{
		Post: func(orig, rebuilt ir.Expr) (ir.Expr, error) {
			name, ok := ir.OpName(orig)
			if !ok {
				return rebuilt, nil
			}
			out := canonical(mod, name, orig.(*ir.Call), rebuilt.(*ir.Call))
			if out == nil {
				return rebuilt, nil
			}
			return out, nil
		},
	}
	out, err := r.Rewrite(fn)
	if err != nil {
		return nil, err
	}
	return out.(*ir.Function), nil
}

// staticType returns the type of an expression if its shape is static.
func staticType(mod *ir.Module, e ir.Expr) (*ir.TensorType, []int, bool) {
	typ, ok := mod.TypeOf(e)
	if !ok {
		return nil, nil, false
	}
	tensor, ok := typ.(*ir.TensorType)
	if !ok {
		return nil, nil, false
	}
	dims, ok := tensor.Static()
	if !ok {
		return nil, nil, false
	}
	return tensor, dims, true
}

// canonical returns the canonical form of a call or nil if the call is already canonical.
func canonical(mod *ir.Module, name string, orig, rebuilt *ir.Call) ir.Expr {
	switch {
	case likeOps[name] != "":
		if len(orig.Args) != 2 {
			return nil
		}
		_, dims, ok := staticType(mod, orig.Args[1])
		if !ok {
			return nil
		}
		return ir.CallOp(likeOps[name], rebuilt.Args[0], ir.Const(ir.Ints(dims...)))
	case fillOps[name] != "":
		if len(orig.Args) != 1 {
			return nil
		}
		typ, dims, ok := staticType(mod, orig.Args[0])
		if !ok {
			return nil
		}
		return ir.CallOp(fillOps[name],
			ir.Const(ir.Ints(dims...)),
			ir.Const(&ir.DTypeValue{DType: typ.DType}),
		)
	case name == ops.BatchFlatten:
		if len(orig.Args) != 1 {
			return nil
		}
		_, dims, ok := staticType(mod, orig.Args[0])
		if !ok || len(dims) == 0 {
			return nil
		}
		rest := 1
		for _, d := range dims[1:] {
			rest *= d
		}
		return ir.CallOp(ops.Reshape, rebuilt.Args[0], ir.Const(ir.Ints(dims[0], rest)))
	}
	return nil
}
