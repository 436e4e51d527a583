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

package fuse_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gx-org/graphc/build/infer"
	"github.com/gx-org/graphc/build/ir"
	ih "github.com/gx-org/graphc/build/ir/irhelper"
	"github.com/gx-org/graphc/build/ops"
	"github.com/gx-org/graphc/interp"
	"github.com/gx-org/graphc/stdlib"
	"github.com/gx-org/graphc/transform/fuse"
	"github.com/janpfeifer/must"
)

// callees returns the operators and fused operators called by the bindings of the entry function.
func callees(t *testing.T, mod *ir.Module) [][]string {
	t.Helper()
	bindings, _ := ir.Bindings(mod.Main().Body)
	var out [][]string
	for _, b := range bindings {
		call, ok := b.Value.(*ir.Call)
		if !ok {
			continue
		}
		switch op := call.Op.(type) {
		case *ir.OpRef:
			out = append(out, []string{op.Name})
		case *ir.GlobalVar:
			fn, ok := mod.Lookup(op.Name)
			if !ok {
				t.Fatalf("undefined function @%s", op.Name)
			}
			if !fn.Attrs.Primitive {
				t.Errorf("function @%s is not primitive", op.Name)
			}
			out = append(out, fn.Attrs.FusedOps)
		}
	}
	return out
}

func TestFuseOps(t *testing.T) {
	reg := must.M1(stdlib.Default())
	x := ih.Param("x", ih.F32(2, 3))
	y := ih.Param("y", ih.F32(3))
	w := ih.Param("w", ih.F32(3, 3))
	tests := []struct {
		desc    string
		body    func(b *ih.Body) ir.Expr
		maxSize int
		want    [][]string
		// Number of functions in the fused module.
		numFuncs int
	}{
		{
			desc: "element-wise chain",
			body: func(b *ih.Body) ir.Expr {
				e := b.Let("e", ih.Call(ops.Exp, x))
				n := b.Let("n", ih.Call(ops.Negative, e))
				return b.Return(b.Let("s", ih.Call(ops.Add, n, y)))
			},
			want:     [][]string{{ops.Exp, ops.Negative, ops.Add}},
			numFuncs: 2,
		},
		{
			desc: "matmul with bias and activation",
			body: func(b *ih.Body) ir.Expr {
				h := b.Let("h", ih.Call(ops.MatMul, x, w))
				biased := b.Let("biased", ih.Call(ops.Add, h, y))
				return b.Return(b.Let("r", ih.Call(ops.Relu, biased)))
			},
			want:     [][]string{{ops.MatMul, ops.Add, ops.Relu}},
			numFuncs: 2,
		},
		{
			desc: "no fusion into the input of matmul",
			body: func(b *ih.Body) ir.Expr {
				e := b.Let("e", ih.Call(ops.Exp, x))
				return b.Return(b.Let("h", ih.Call(ops.MatMul, e, w)))
			},
			want:     [][]string{{ops.Exp}, {ops.MatMul}},
			numFuncs: 1,
		},
		{
			desc: "side effects split groups",
			body: func(b *ih.Body) ir.Expr {
				e := b.Let("e", ih.Call(ops.Exp, x))
				c := b.Let("c", ih.Call(ops.DeviceCopy, e, ih.Device(ir.CPU(0)), ih.Device(ir.CUDA(0))))
				n := b.Let("n", ih.Call(ops.Negative, c))
				return b.Return(b.Let("th", ih.Call(ops.Tanh, n)))
			},
			want:     [][]string{{ops.Exp}, {ops.DeviceCopy}, {ops.Negative, ops.Tanh}},
			numFuncs: 2,
		},
		{
			desc: "producer used outside of the group",
			body: func(b *ih.Body) ir.Expr {
				e := b.Let("e", ih.Call(ops.Exp, x))
				n := b.Let("n", ih.Call(ops.Negative, e))
				m := b.Let("m", ih.Call(ops.Tanh, n))
				return b.Return(&ir.Tuple{Fields: []ir.Expr{m, e}})
			},
			want:     [][]string{{ops.Exp}, {ops.Negative, ops.Tanh}},
			numFuncs: 2,
		},
		{
			desc: "single reduction",
			body: func(b *ih.Body) ir.Expr {
				m := b.Let("m", ih.Call(ops.Mean, x))
				d := b.Let("d", ih.Call(ops.Multiply, x, m))
				e := b.Let("e", ih.Call(ops.Exp, d))
				s := b.Let("s", ih.Call(ops.Sum, e))
				return b.Return(b.Let("out", ih.Call(ops.Sqrt, s)))
			},
			want:     [][]string{{ops.Mean}, {ops.Multiply, ops.Exp, ops.Sum, ops.Sqrt}},
			numFuncs: 2,
		},
		{
			desc: "shared fused functions",
			body: func(b *ih.Body) ir.Expr {
				e1 := b.Let("e1", ih.Call(ops.Exp, x))
				n1 := b.Let("n1", ih.Call(ops.Negative, e1))
				e2 := b.Let("e2", ih.Call(ops.Exp, n1))
				c := b.Let("c", ih.Call(ops.DeviceCopy, e2, ih.Device(ir.CPU(0)), ih.Device(ir.CPU(0))))
				e3 := b.Let("e3", ih.Call(ops.Exp, c))
				n3 := b.Let("n3", ih.Call(ops.Negative, e3))
				return b.Return(b.Let("e4", ih.Call(ops.Exp, n3)))
			},
			want: [][]string{
				{ops.Exp, ops.Negative, ops.Exp},
				{ops.DeviceCopy},
				{ops.Exp, ops.Negative, ops.Exp},
			},
			numFuncs: 2,
		},
		{
			desc: "maximum group size",
			body: func(b *ih.Body) ir.Expr {
				e := b.Let("e", ih.Call(ops.Exp, x))
				n := b.Let("n", ih.Call(ops.Negative, e))
				return b.Return(b.Let("th", ih.Call(ops.Tanh, n)))
			},
			maxSize:  2,
			want:     [][]string{{ops.Exp}, {ops.Negative, ops.Tanh}},
			numFuncs: 2,
		},
	}
	args := []ir.Value{
		ih.TensorValue([]float32{0.1, -0.2, 0.3, 0.4, -0.5, 0.6}, 2, 3),
		ih.TensorValue([]float32{1, 2, 3}, 3),
		ih.TensorValue([]float32{1, 0, 0, 0, 2, 0, 0, 0, -1}, 3, 3),
	}
	for i, test := range tests {
		mod := ih.Module([]*ir.Var{x, y, w}, test.body)
		typed, err := infer.InferType(reg, mod)
		if err != nil {
			t.Fatalf("test %d: %s:\n%+v", i, test.desc, err)
		}
		maxSize := test.maxSize
		if maxSize == 0 {
			maxSize = fuse.DefaultMaxSize
		}
		got, err := fuse.FuseOps(reg, typed, fuse.DefaultTable(maxSize))
		if err != nil {
			t.Errorf("test %d: %s:\n%+v", i, test.desc, err)
			continue
		}
		if diff := cmp.Diff(test.want, callees(t, got)); diff != "" {
			t.Errorf("test %d: %s: unexpected calls (-want +got):\n%s\n%s", i, test.desc, diff, got)
		}
		if got.Len() != test.numFuncs {
			t.Errorf("test %d: %s: got %d functions but want %d:\n%s", i, test.desc, got.Len(), test.numFuncs, got)
		}
		if _, err := infer.InferType(reg, got); err != nil {
			t.Errorf("test %d: %s: fused module cannot be typed:\n%+v", i, test.desc, err)
			continue
		}
		want := must.M1(interp.New(reg, mod).Run(args...))
		gotV, err := interp.New(reg, got).Run(args...)
		if err != nil {
			t.Errorf("test %d: %s:\n%+v", i, test.desc, err)
			continue
		}
		if !gotV.Equal(want) {
			t.Errorf("test %d: %s: got %s but want %s", i, test.desc, gotV, want)
		}
	}
}

func TestTable(t *testing.T) {
	table := fuse.DefaultTable(0)
	tests := []struct {
		group, producer ops.PatternKind
		want            ops.PatternKind
		ok              bool
	}{
		{group: ops.ElemWise, producer: ops.ElemWise, want: ops.ElemWise, ok: true},
		{group: ops.ElemWise, producer: ops.Injective, want: ops.Injective, ok: true},
		{group: ops.Broadcast, producer: ops.Reduce, want: ops.Reduce, ok: true},
		{group: ops.Reduce, producer: ops.ElemWise, want: ops.Reduce, ok: true},
		{group: ops.Reduce, producer: ops.Reduce},
		{group: ops.ElemWise, producer: ops.OutEWiseFusable, want: ops.OutEWiseFusable, ok: true},
		{group: ops.Injective, producer: ops.OutEWiseFusable},
		{group: ops.OutEWiseFusable, producer: ops.ElemWise},
		{group: ops.ElemWise, producer: ops.Opaque},
	}
	for i, test := range tests {
		got, ok := table.Admit(test.group, test.producer)
		if ok != test.ok || (ok && got != test.want) {
			t.Errorf("test %d: Admit(%s, %s): got %s, %t but want %s, %t", i, test.group, test.producer, got, ok, test.want, test.ok)
		}
	}
}
