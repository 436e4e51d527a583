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

package ir_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/graphc/build/ir"
	"github.com/gx-org/graphc/build/ir/irhelper"
)

func addTwice(xName, yName, tName string) *ir.Function {
	x := irhelper.Param(xName, irhelper.F32(3))
	y := irhelper.Param(yName, irhelper.F32(3))
	return irhelper.Func([]*ir.Var{x, y}, func(b *irhelper.Body) ir.Expr {
		t := b.Let(tName, irhelper.Call("add", x, y))
		return b.Return(irhelper.Call("multiply", t, x))
	})
}

func TestStructuralEqual(t *testing.T) {
	tests := []struct {
		x, y ir.Expr
		want bool
	}{
		{
			x:    addTwice("x", "y", "t"),
			y:    addTwice("a", "b", "c"),
			want: true,
		},
		{
			x: addTwice("x", "y", "t"),
			y: func() ir.Expr {
				x := irhelper.Param("x", irhelper.F32(3))
				y := irhelper.Param("y", irhelper.F32(3))
				return irhelper.Func([]*ir.Var{x, y}, func(b *irhelper.Body) ir.Expr {
					t := b.Let("t", irhelper.Call("add", x, y))
					// y instead of x.
					return b.Return(irhelper.Call("multiply", t, y))
				})
			}(),
			want: false,
		},
		{
			x:    irhelper.Tensor([]float32{1, 2}, 2),
			y:    irhelper.Tensor([]float32{1, 2}, 2),
			want: true,
		},
		{
			x:    irhelper.Tensor([]float32{1, 2}, 2),
			y:    irhelper.Tensor([]float32{1, 3}, 2),
			want: false,
		},
		{
			x:    &ir.TupleGetItem{Tuple: &ir.Tuple{Fields: []ir.Expr{ir.Global("f")}}, Index: 0},
			y:    &ir.TupleGetItem{Tuple: &ir.Tuple{Fields: []ir.Expr{ir.Global("f")}}, Index: 1},
			want: false,
		},
	}
	for i, test := range tests {
		got := ir.StructuralEqual(test.x, test.y)
		if got != test.want {
			t.Errorf("test %d: got %v but want %v\nx:\n%s\ny:\n%s", i, got, test.want, test.x, test.y)
		}
		if test.want && ir.StructuralHash(test.x) != ir.StructuralHash(test.y) {
			t.Errorf("test %d: equal expressions have different hashes", i)
		}
	}
}

func TestFreeVars(t *testing.T) {
	a := ir.NewVar("a", nil)
	b := ir.NewVar("b", nil)
	p := ir.NewVar("p", nil)
	body := (&ir.LetList{})
	v := body.Push("v", ir.CallOp("add", b, p))
	fn := ir.Closure([]*ir.Var{p}, body.Wrap(ir.CallOp("multiply", v, a)))
	got := names(fn.Captures)
	want := []string{"b", "a"}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("unexpected free variables:\n%s", diff)
	}
	if !fn.IsClosure() {
		t.Errorf("function capturing variables is not a closure")
	}
}

func names(vs []*ir.Var) []string {
	ss := make([]string, len(vs))
	for i, v := range vs {
		ss[i] = v.Name
	}
	return ss
}

func TestRewriterSharesUnchanged(t *testing.T) {
	fn := addTwice("x", "y", "t")
	let := fn.Body.(*ir.Let)
	r := ir.Rewriter{
		Post: func(orig, rebuilt ir.Expr) (ir.Expr, error) {
			if ir.IsOpCall(rebuilt, "multiply") {
				call := rebuilt.(*ir.Call)
				return ir.CallOp("divide", call.Args...), nil
			}
			return rebuilt, nil
		},
	}
	got, err := r.Rewrite(fn)
	if err != nil {
		t.Fatal(err)
	}
	gotFn := got.(*ir.Function)
	if gotFn == fn {
		t.Fatalf("rewritten function should be a new node")
	}
	gotLet := gotFn.Body.(*ir.Let)
	if gotLet.Value != let.Value {
		t.Errorf("unchanged call add(x, y) should be shared")
	}
	if !ir.IsOpCall(gotLet.Body, "divide") {
		t.Errorf("got body %s but want a call to divide", gotLet.Body)
	}
	// The input function is unchanged.
	if !ir.IsOpCall(let.Body, "multiply") {
		t.Errorf("input function has been modified")
	}
}

func TestSubstitute(t *testing.T) {
	fn := addTwice("x", "y", "t")
	x := fn.Params[0]
	c := irhelper.Tensor([]float32{1, 2, 3}, 3)
	got := ir.Substitute(fn.Body, map[*ir.Var]ir.Expr{x: c})
	want := `let %t = add(const<float32[3]>, %y);
multiply(%t, const<float32[3]>)`
	if got.String() != want {
		t.Errorf("got:\n%s\nwant:\n%s", got.String(), want)
	}
}

func TestString(t *testing.T) {
	fn := addTwice("x", "y", "t")
	fused := addTwice("a", "b", "c")
	fused.Attrs.Primitive = true
	want := strings.TrimSpace(`
def @main(%x: float32[3], %y: float32[3]) {
	let %t = add(%x, %y);
	multiply(%t, %x)
}

def @fused_0[primitive](%a: float32[3], %b: float32[3]) {
	let %c = add(%a, %b);
	multiply(%c, %a)
}
`)
	mod := ir.FromFunc(fn)
	mod.Add("fused_0", fused)
	if diff := cmp.Diff(mod.String(), want); diff != "" {
		t.Errorf("unexpected module string:\n%s", diff)
	}
	if got := fn.String(); !strings.HasPrefix(got, "fn (%x: float32[3], %y: float32[3]) {") {
		t.Errorf("unexpected function literal string:\n%s", got)
	}
}

func TestModuleClone(t *testing.T) {
	mod := ir.FromFunc(addTwice("x", "y", "t"))
	clone := mod.Clone()
	clone.Add("other", addTwice("a", "b", "c"))
	if mod.Len() != 1 || clone.Len() != 2 {
		t.Errorf("got %d and %d functions but want 1 and 2", mod.Len(), clone.Len())
	}
	if ir.ModuleEqual(mod, clone) {
		t.Errorf("modules with different functions are equal")
	}
	clone.Remove("other")
	if !ir.ModuleEqual(mod, clone) {
		t.Errorf("modules should be equal after removing the extra function")
	}
}

func TestTypes(t *testing.T) {
	n := ir.SymDim("n")
	tests := []struct {
		x, y ir.Type
		want bool
		str  string
	}{
		{
			x:    ir.TensorDims(dtype.Float32, n, ir.IntDim(3)),
			y:    ir.TensorDims(dtype.Float32, n, ir.IntDim(3)),
			want: true,
			str:  "float32[n, 3]",
		},
		{
			x:    ir.TensorDims(dtype.Float32, ir.AnyDim()),
			y:    ir.Tensor(dtype.Float32, 4),
			want: true,
			str:  "float32[?]",
		},
		{
			x:    ir.Tensor(dtype.Float32, 4),
			y:    ir.Tensor(dtype.Float64, 4),
			want: false,
			str:  "float32[4]",
		},
		{
			x:    &ir.TupleType{Fields: []ir.Type{ir.Tensor(dtype.Int32), ir.Opaque(ir.StorageTypeName)}},
			y:    &ir.TupleType{Fields: []ir.Type{ir.Tensor(dtype.Int32), ir.Opaque(ir.StorageTypeName)}},
			want: true,
			str:  "(int32[], storage)",
		},
	}
	for i, test := range tests {
		if got := test.x.Equal(test.y); got != test.want {
			t.Errorf("test %d: %s == %s: got %v but want %v", i, test.x, test.y, got, test.want)
		}
		if got := test.x.String(); got != test.str {
			t.Errorf("test %d: got %q but want %q", i, got, test.str)
		}
	}
	size, ok := ir.Tensor(dtype.Float32, 2, 3).ByteSize()
	if !ok || size != 24 {
		t.Errorf("got byte size %d, %v but want 24, true", size, ok)
	}
	if _, ok := ir.TensorDims(dtype.Float32, n).ByteSize(); ok {
		t.Errorf("symbolic tensor cannot have a static byte size")
	}
}

func TestParseDevice(t *testing.T) {
	tests := []struct {
		s    string
		want ir.Device
	}{
		{s: "cpu", want: ir.CPU(0)},
		{s: "cuda(1)", want: ir.CUDA(1)},
		{s: "GPU", want: ir.CUDA(0)},
	}
	for i, test := range tests {
		got, err := ir.ParseDevice(test.s)
		if err != nil {
			t.Errorf("test %d: %v", i, err)
			continue
		}
		if got != test.want {
			t.Errorf("test %d: got %s but want %s", i, got, test.want)
		}
	}
	if _, err := ir.ParseDevice("tpu"); err == nil {
		t.Errorf("expected an error for an unknown device")
	}
}
