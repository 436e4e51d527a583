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

package lambdalift_test

import (
	"testing"

	"github.com/gx-org/graphc/build/infer"
	"github.com/gx-org/graphc/build/ir"
	ih "github.com/gx-org/graphc/build/ir/irhelper"
	"github.com/gx-org/graphc/build/ops"
	"github.com/gx-org/graphc/interp"
	"github.com/gx-org/graphc/stdlib"
	"github.com/gx-org/graphc/transform/autodiff"
	"github.com/gx-org/graphc/transform/lambdalift"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"
)

func TestLiftBackward(t *testing.T) {
	reg := must.M1(stdlib.Default())
	x := ih.Param("x", ih.F32(3))
	y := ih.Param("y", ih.F32(3))
	mod := ih.Module([]*ir.Var{x, y}, func(b *ih.Body) ir.Expr {
		return b.Return(b.Let("s", ih.Call(ops.Add, x, y)))
	})
	grad := must.M1(autodiff.AutoDiff(reg, must.M1(infer.InferType(reg, mod)), nil))
	typed, err := infer.InferType(reg, grad)
	require.NoError(t, err)
	lifted, err := lambdalift.LambdaLift(typed)
	require.NoError(t, err)
	if got, want := lifted.Len(), 2; got != want {
		t.Fatalf("got %d functions but want %d:\n%s", got, want, lifted)
	}
	require.NoError(t, lambdalift.Check(lifted))
	if _, err := infer.InferType(reg, lifted); err != nil {
		t.Errorf("lifted module cannot be typed:\n%+v", err)
	}

	itp := interp.New(reg, lifted)
	out := must.M1(itp.Run(
		ih.TensorValue([]float32{1, 2, 3}, 3),
		ih.TensorValue([]float32{4, 5, 6}, 3),
	))
	pair, ok := out.(*ir.TupleValue)
	require.True(t, ok, "result %s is not a tuple", out)
	dy := ih.TensorValue([]float32{0.5, -1, 2}, 3)
	grads, err := itp.Apply(pair.Fields[1], dy)
	require.NoError(t, err)
	tpl, ok := grads.(*ir.TupleValue)
	require.True(t, ok, "gradients %s are not a tuple", grads)
	require.Len(t, tpl.Fields, 2)
	for i, g := range tpl.Fields {
		if !g.Equal(dy) {
			t.Errorf("gradient %d: got %s but want %s", i, g, dy)
		}
	}
}

// literals counts the function literals in the bodies of the functions of a module.
func literals(mod *ir.Module) int {
	n := 0
	for _, fn := range mod.Funcs() {
		ir.Walk(fn.Body, func(e ir.Expr) bool {
			if _, ok := e.(*ir.Function); ok {
				n++
			}
			return true
		})
	}
	return n
}

func TestLambdaLift(t *testing.T) {
	reg := must.M1(stdlib.Default())
	x := ih.Param("x", ih.F32(3))
	tests := []struct {
		desc     string
		body     func(b *ih.Body) ir.Expr
		numFuncs int
	}{
		{
			desc: "direct call to a closure",
			body: func(b *ih.Body) ir.Expr {
				y := ih.Param("y", ih.F32(3))
				a := b.Let("a", ih.Call(ops.Exp, x))
				f := b.Let("f", ih.Func([]*ir.Var{y}, func(b *ih.Body) ir.Expr {
					return b.Return(b.Let("m", ih.Call(ops.Multiply, y, a)))
				}))
				return b.Return(b.Let("r", &ir.Call{Op: f, Args: []ir.Expr{x}}))
			},
			numFuncs: 2,
		},
		{
			desc: "nested closures",
			body: func(b *ih.Body) ir.Expr {
				y := ih.Param("y", ih.F32(3))
				z := ih.Param("z", ih.F32(3))
				f := b.Let("f", ih.Func([]*ir.Var{y}, func(b *ih.Body) ir.Expr {
					g := b.Let("g", ih.Func([]*ir.Var{z}, func(b *ih.Body) ir.Expr {
						return b.Return(b.Let("s", ih.Call(ops.Add, z, x)))
					}))
					return b.Return(g)
				}))
				h := b.Let("h", &ir.Call{Op: f, Args: []ir.Expr{x}})
				return b.Return(b.Let("r", &ir.Call{Op: h, Args: []ir.Expr{x}}))
			},
			numFuncs: 3,
		},
		{
			desc: "closed literal",
			body: func(b *ih.Body) ir.Expr {
				y := ih.Param("y", ih.F32(3))
				f := b.Let("f", ih.Func([]*ir.Var{y}, func(b *ih.Body) ir.Expr {
					return b.Return(b.Let("n", ih.Call(ops.Negative, y)))
				}))
				return b.Return(b.Let("r", &ir.Call{Op: f, Args: []ir.Expr{x}}))
			},
			numFuncs: 2,
		},
	}
	arg := ih.TensorValue([]float32{1, -2, 0.5}, 3)
	for i, test := range tests {
		mod := ih.Module([]*ir.Var{x}, test.body)
		typed, err := infer.InferType(reg, mod)
		if err != nil {
			t.Errorf("test %d: %s:\n%+v", i, test.desc, err)
			continue
		}
		got, err := lambdalift.LambdaLift(typed)
		if err != nil {
			t.Errorf("test %d: %s:\n%+v", i, test.desc, err)
			continue
		}
		if got.Len() != test.numFuncs {
			t.Errorf("test %d: %s: got %d functions but want %d:\n%s", i, test.desc, got.Len(), test.numFuncs, got)
		}
		if n := literals(got); n != 0 {
			t.Errorf("test %d: %s: %d function literals left:\n%s", i, test.desc, n, got)
		}
		if err := lambdalift.Check(got); err != nil {
			t.Errorf("test %d: %s:\n%+v", i, test.desc, err)
		}
		want := must.M1(interp.New(reg, mod).Run(arg))
		gotV, err := interp.New(reg, got).Run(arg)
		if err != nil {
			t.Errorf("test %d: %s:\n%+v", i, test.desc, err)
			continue
		}
		if !gotV.Equal(want) {
			t.Errorf("test %d: %s: got %v but want %v", i, test.desc, gotV, want)
		}
	}
}

func TestCheck(t *testing.T) {
	x := ih.Param("x", ih.F32(3))
	mod := ih.Module([]*ir.Var{x}, func(b *ih.Body) ir.Expr {
		f := b.Let("f", ih.Func(nil, func(b *ih.Body) ir.Expr {
			return b.Return(b.Let("n", ih.Call(ops.Negative, x)))
		}))
		return b.Return(b.Let("r", &ir.Call{Op: f}))
	})
	if err := lambdalift.Check(mod); err == nil {
		t.Errorf("expected an error for a module with a closure:\n%s", mod)
	}
}
