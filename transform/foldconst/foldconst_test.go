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

package foldconst_test

import (
	"testing"

	"github.com/gx-org/graphc/build/ir"
	ih "github.com/gx-org/graphc/build/ir/irhelper"
	"github.com/gx-org/graphc/build/ops"
	"github.com/gx-org/graphc/interp"
	"github.com/gx-org/graphc/stdlib"
	"github.com/gx-org/graphc/transform/foldconst"
	"github.com/janpfeifer/must"
)

func params() (x, c1, c2 *ir.Var) {
	return ih.Param("x", ih.F32(2, 2)), ih.Param("c1", ih.F32(2, 2)), ih.Param("c2", ih.F32(2, 2))
}

func TestMatMulChain(t *testing.T) {
	reg := must.M1(stdlib.Default())
	x, c1, c2 := params()
	mod := ih.Module([]*ir.Var{x, c1, c2}, func(b *ih.Body) ir.Expr {
		a := b.Let("a", ih.Call(ops.MatMul, c1, c2))
		xa := b.Let("xa", ih.Call(ops.MatMul, x, a))
		return b.Return(b.Let("out", ih.Call(ops.MatMul, xa, c2)))
	})
	c1v := ih.TensorValue([]float32{1, 2, 3, 4}, 2, 2)
	c2v := ih.TensorValue([]float32{0, 1, 1, 0}, 2, 2)
	bound, err := foldconst.BindEntry(mod, []ir.Value{nil, c1v, c2v})
	if err != nil {
		t.Fatalf("\n%+v", err)
	}
	got, err := foldconst.FoldConstant(reg, bound)
	if err != nil {
		t.Fatalf("\n%+v", err)
	}

	wx, wc1, wc2 := params()
	want := ih.Module([]*ir.Var{wx, wc1, wc2}, func(b *ih.Body) ir.Expr {
		a := ih.Tensor([]float32{2, 1, 4, 3}, 2, 2)
		xa := b.Let("xa", ih.Call(ops.MatMul, wx, a))
		return b.Return(b.Let("out", ih.Call(ops.MatMul, xa, ir.Const(c2v))))
	})
	if !ir.ModuleEqual(got, want) {
		t.Errorf("got:\n%s\nbut want:\n%s", got, want)
	}

	xv := ih.TensorValue([]float32{1, -1, 2, 0.5}, 2, 2)
	wantV := must.M1(interp.New(reg, mod).Run(xv, c1v, c2v))
	gotV := must.M1(interp.New(reg, got).Run(xv, c1v, c2v))
	if !gotV.Equal(wantV) {
		t.Errorf("got %s but want %s", gotV, wantV)
	}
}

func TestFoldConstant(t *testing.T) {
	reg := must.M1(stdlib.Default())
	x := ih.Param("x", ih.F32())
	tests := []struct {
		desc string
		body func(b *ih.Body) ir.Expr
		// Number of bindings left after folding.
		want int
	}{
		{
			desc: "tuple of constants",
			body: func(b *ih.Body) ir.Expr {
				tpl := b.Let("tpl", &ir.Tuple{Fields: []ir.Expr{ih.Scalar[float32](2), ih.Scalar[float32](3)}})
				two := b.Let("two", &ir.TupleGetItem{Tuple: tpl, Index: 0})
				return b.Return(b.Let("out", ih.Call(ops.Multiply, x, two)))
			},
			want: 1,
		},
		{
			desc: "side effects",
			body: func(b *ih.Body) ir.Expr {
				one := b.Let("one", ih.Call(ops.Exp, ih.Scalar[float32](0)))
				cp := b.Let("cp", ih.Call(ops.DeviceCopy, one, ih.Device(ir.CPU(0)), ih.Device(ir.CUDA(0))))
				return b.Return(b.Let("out", ih.Call(ops.Add, x, cp)))
			},
			want: 2,
		},
		{
			desc: "constant condition",
			body: func(b *ih.Body) ir.Expr {
				cond := b.Let("cond", ih.Call(ops.Less, ih.Scalar[float32](0), ih.Scalar[float32](1)))
				var then ih.Body
				neg := then.Let("neg", ih.Call(ops.Negative, x))
				return b.Return(b.Let("out", &ir.If{
					Cond: cond,
					Then: then.Return(neg),
					Else: x,
				}))
			},
			want: 1,
		},
	}
	for i, test := range tests {
		mod := ih.Module([]*ir.Var{x}, test.body)
		got, err := foldconst.FoldConstant(reg, mod)
		if err != nil {
			t.Errorf("test %d: %s:\n%+v", i, test.desc, err)
			continue
		}
		bindings, _ := ir.Bindings(got.Main().Body)
		if len(bindings) != test.want {
			t.Errorf("test %d: %s: got %d bindings but want %d:\n%s", i, test.desc, len(bindings), test.want, got)
		}
		xv := ih.TensorValue([]float32{5})
		wantV := must.M1(interp.New(reg, mod).Run(xv))
		gotV := must.M1(interp.New(reg, got).Run(xv))
		if !gotV.Equal(wantV) {
			t.Errorf("test %d: %s: got %s but want %s", i, test.desc, gotV, wantV)
		}
	}
}

func TestIsConstant(t *testing.T) {
	x := ih.Param("x", ih.F32())
	tests := []struct {
		expr ir.Expr
		want bool
	}{
		{expr: ih.Scalar[float32](1), want: true},
		{expr: &ir.Tuple{Fields: []ir.Expr{ih.Scalar[float32](1), ih.Ints(2)}}, want: true},
		{expr: &ir.Tuple{Fields: []ir.Expr{ih.Scalar[float32](1), x}}, want: false},
		{expr: x, want: false},
	}
	for i, test := range tests {
		if got := foldconst.IsConstant(test.expr); got != test.want {
			t.Errorf("test %d: IsConstant(%s): got %t but want %t", i, test.expr, got, test.want)
		}
	}
}

func TestBindParamErrors(t *testing.T) {
	x := ih.Param("x", ih.F32(2))
	fn := ir.NewFunc([]*ir.Var{x}, x)
	if _, err := foldconst.BindParam(fn, []ir.Value{ih.TensorValue([]float32{1, 2, 3}, 3)}); err == nil {
		t.Errorf("expected an error when binding a value of the wrong type")
	}
	if _, err := foldconst.BindParam(fn, []ir.Value{nil, nil}); err == nil {
		t.Errorf("expected an error when binding too many values")
	}
}
