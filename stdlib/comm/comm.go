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

// Package comm provides the collective communication operators.
// Communication is performed by the runtime: the operators are effectful
// and evaluate as the identity on a single process.
package comm

import (
	"github.com/gx-org/graphc/build/ir"
	"github.com/gx-org/graphc/build/ops"
	"github.com/gx-org/graphc/stdlib/builtin"
)

// Package description of the communication operators.
var Package = builtin.PackageBuilder{
	FullPath: "comm",
	Builders: builtin.BuildOps(allReduce),
}

// allReduce sums tensors across all the workers:
//
//	_allreduce(x1, ..., xn)
//
// The result is a tuple with the reduced tensors.
var allReduce = &ops.Meta{
	Name:    ops.AllReduce,
	Arity:   ops.Variadic,
	Pattern: ops.Opaque,
	Infer: func(args ops.ShapeArgs) (ir.Type, error) {
		if len(args.Types) == 0 {
			return nil, args.Errorf("%s requires at least one tensor", ops.AllReduce)
		}
		fields := make([]ir.Type, len(args.Types))
		for i := range args.Types {
			tt, err := builtin.TensorArg(args, i)
			if err != nil {
				return nil, err
			}
			fields[i] = tt
		}
		return &ir.TupleType{Fields: fields}, nil
	},
	Eval: func(args []ir.Value) (ir.Value, error) {
		return &ir.TupleValue{Fields: append([]ir.Value{}, args...)}, nil
	},
	Grad: func(g *ops.GradArgs) ([]ir.Expr, error) {
		n := len(g.Call.Args)
		fields := make([]ir.Expr, n)
		for i := range n {
			fields[i] = g.Lets.Push("g", &ir.TupleGetItem{Tuple: g.DOut, Index: i})
		}
		reduced := g.Bind(ops.AllReduce, fields...)
		grads := make([]ir.Expr, n)
		for i := range n {
			grads[i] = g.Lets.Push("g", &ir.TupleGetItem{Tuple: reduced, Index: i})
		}
		return grads, nil
	},
}
