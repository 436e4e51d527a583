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

// Package vm provides the operators of the explicit memory form of programs
// and the operator creating closures of lifted functions.
package vm

import (
	"github.com/gx-org/graphc/build/ir"
	"github.com/gx-org/graphc/build/ops"
	"github.com/gx-org/graphc/stdlib/builtin"
)

// Package description of the vm operators.
var Package = builtin.PackageBuilder{
	FullPath: "vm",
	Builders: builtin.BuildOps(
		allocStorage,
		allocTensor,
		invokeOp,
		free,
		makeClosure,
	),
}

// allocStorage allocates a buffer on a device:
//
//	alloc_storage(size, alignment, device, dtype)
var allocStorage = &ops.Meta{
	Name:    ops.AllocStorage,
	Arity:   4,
	Pattern: ops.Opaque,
	Infer: func(args ops.ShapeArgs) (ir.Type, error) {
		for _, i := range []int{0, 1} {
			vals, err := builtin.IntsArg(args, i)
			if err != nil {
				return nil, err
			}
			if len(vals) != 1 || vals[0] < 0 {
				return nil, args.Errorf("argument %d: invalid value %v", i, vals)
			}
		}
		if _, err := builtin.AttrArg[*ir.DeviceValue](args, 2); err != nil {
			return nil, err
		}
		if _, err := builtin.AttrArg[*ir.DTypeValue](args, 3); err != nil {
			return nil, err
		}
		return ir.Opaque(ir.StorageTypeName), nil
	},
}

// allocTensor creates a tensor in a storage:
//
//	alloc_tensor(storage, offset, shape, dtype)
var allocTensor = &ops.Meta{
	Name:    ops.AllocTensor,
	Arity:   4,
	Pattern: ops.Opaque,
	Infer: func(args ops.ShapeArgs) (ir.Type, error) {
		if err := builtin.CheckOpaqueArg(args, 0, ir.StorageTypeName); err != nil {
			return nil, err
		}
		if _, err := builtin.IntsArg(args, 1); err != nil {
			return nil, err
		}
		dims, err := builtin.IntsArg(args, 2)
		if err != nil {
			return nil, err
		}
		dt, err := builtin.AttrArg[*ir.DTypeValue](args, 3)
		if err != nil {
			return nil, err
		}
		return ir.Tensor(dt.DType, dims...), nil
	},
}

// invokeOp calls a function writing its results in preallocated tensors:
//
//	invoke_op(callee, (inputs...), (outputs...))
//
// It returns the output tuple.
var invokeOp = &ops.Meta{
	Name:    ops.InvokeOp,
	Arity:   3,
	Pattern: ops.Opaque,
	Infer: func(args ops.ShapeArgs) (ir.Type, error) {
		for _, i := range []int{1, 2} {
			if _, ok := args.Types[i].(*ir.TupleType); !ok {
				return nil, args.Errorf("argument %d: expected a tuple but got %s", i, args.Types[i])
			}
		}
		return args.Types[2], nil
	},
}

// free releases a storage.
var free = &ops.Meta{
	Name:    ops.Free,
	Arity:   1,
	Pattern: ops.Opaque,
	Infer: func(args ops.ShapeArgs) (ir.Type, error) {
		if err := builtin.CheckOpaqueArg(args, 0, ir.StorageTypeName); err != nil {
			return nil, err
		}
		return &ir.TupleType{}, nil
	},
}

// makeClosure binds the trailing parameters of a global function to captured values:
//
//	make_closure(@f, (captures...))
var makeClosure = &ops.Meta{
	Name:    ops.MakeClosure,
	Arity:   2,
	Pattern: ops.Opaque,
	Pure:    true,
	Infer: func(args ops.ShapeArgs) (ir.Type, error) {
		fn, ok := args.Types[0].(*ir.FuncType)
		if !ok {
			return nil, args.Errorf("argument 0: expected a function but got %s", args.Types[0])
		}
		env, ok := args.Types[1].(*ir.TupleType)
		if !ok {
			return nil, args.Errorf("argument 1: expected a tuple but got %s", args.Types[1])
		}
		free := len(fn.Params) - len(env.Fields)
		if free < 0 {
			return nil, args.Errorf("cannot capture %d values in a function with %d parameters", len(env.Fields), len(fn.Params))
		}
		if !(&ir.TupleType{Fields: fn.Params[free:]}).Equal(env) {
			return nil, args.Errorf("captured values %s do not match parameters %s", env, fn)
		}
		return &ir.FuncType{Params: fn.Params[:free], Result: fn.Result}, nil
	},
}
