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

// Package annotation provides the operators marking regions of a program
// compiled by an external compiler.
package annotation

import (
	"github.com/gx-org/graphc/build/ir"
	"github.com/gx-org/graphc/build/ops"
	"github.com/gx-org/graphc/stdlib/builtin"
)

// Package description of the annotation operators.
var Package = builtin.PackageBuilder{
	FullPath: "annotation",
	Builders: builtin.BuildOps(
		annotationOp(ops.CompilerBegin),
		annotationOp(ops.CompilerEnd),
	),
}

// annotationOp returns an operator marking a region boundary:
//
//	compiler_begin(x, target)
func annotationOp(name string) *ops.Meta {
	return &ops.Meta{
		Name:    name,
		Arity:   2,
		Pattern: ops.Opaque,
		Pure:    true,
		Infer: func(args ops.ShapeArgs) (ir.Type, error) {
			if _, err := builtin.AttrArg[*ir.StringValue](args, 1); err != nil {
				return nil, err
			}
			return args.Types[0], nil
		},
		Eval: builtin.EvalIdentity,
		Grad: func(g *ops.GradArgs) ([]ir.Expr, error) {
			return []ir.Expr{g.DOut, nil}, nil
		},
	}
}

// Target returns the target of an annotation call.
// It returns false if the expression is not an annotation of the given kind.
func Target(e ir.Expr, name string) (string, bool) {
	if !ir.IsOpCall(e, name) {
		return "", false
	}
	call := e.(*ir.Call)
	if len(call.Args) != 2 {
		return "", false
	}
	c, ok := call.Args[1].(*ir.Constant)
	if !ok {
		return "", false
	}
	s, ok := c.Value.(*ir.StringValue)
	if !ok {
		return "", false
	}
	return s.Val, true
}

// Begin returns a call marking x as an input of a region compiled for target.
func Begin(x ir.Expr, target string) *ir.Call {
	return ir.CallOp(ops.CompilerBegin, x, ir.Const(&ir.StringValue{Val: target}))
}

// End returns a call marking x as an output of a region compiled for target.
func End(x ir.Expr, target string) *ir.Call {
	return ir.CallOp(ops.CompilerEnd, x, ir.Const(&ir.StringValue{Val: target}))
}
