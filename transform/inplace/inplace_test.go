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

package inplace_test

import (
	"testing"

	"github.com/gx-org/graphc/build/infer"
	"github.com/gx-org/graphc/build/ir"
	ih "github.com/gx-org/graphc/build/ir/irhelper"
	"github.com/gx-org/graphc/build/ops"
	"github.com/gx-org/graphc/interp"
	"github.com/gx-org/graphc/stdlib"
	"github.com/gx-org/graphc/transform/fuse"
	"github.com/gx-org/graphc/transform/inplace"
	"github.com/gx-org/graphc/transform/manifest"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"
)

func count(mod *ir.Module, op string) int {
	n := 0
	ir.Walk(mod.Main().Body, func(e ir.Expr) bool {
		if ir.IsOpCall(e, op) {
			n++
		}
		return true
	})
	return n
}

func TestInplaceUpdate(t *testing.T) {
	reg := must.M1(stdlib.Default())
	x := ih.Param("x", ih.F32(2, 2))
	y := ih.Param("y", ih.F32(2))
	tests := []struct {
		desc          string
		fuse          bool
		body          func(b *ih.Body) ir.Expr
		allocs, frees int
	}{
		{
			desc: "element-wise chain",
			body: func(b *ih.Body) ir.Expr {
				e := b.Let("e", ih.Call(ops.Exp, x))
				n := b.Let("n", ih.Call(ops.Negative, e))
				return b.Return(b.Let("m", ih.Call(ops.Multiply, n, x)))
			},
			allocs: 1,
			frees:  0,
		},
		{
			desc: "input used after the kernel",
			body: func(b *ih.Body) ir.Expr {
				e := b.Let("e", ih.Call(ops.Exp, x))
				n := b.Let("n", ih.Call(ops.Negative, e))
				return b.Return(b.Let("m", ih.Call(ops.Multiply, n, e)))
			},
			allocs: 2,
			frees:  1,
		},
		{
			desc: "broadcast input",
			body: func(b *ih.Body) ir.Expr {
				e := b.Let("e", ih.Call(ops.Exp, y))
				a := b.Let("a", ih.Call(ops.Add, x, e))
				return b.Return(b.Let("th", ih.Call(ops.Tanh, a)))
			},
			allocs: 2,
			frees:  1,
		},
		{
			desc: "matrix multiplication",
			body: func(b *ih.Body) ir.Expr {
				e := b.Let("e", ih.Call(ops.Exp, x))
				return b.Return(b.Let("m", ih.Call(ops.MatMul, e, e)))
			},
			allocs: 2,
			frees:  1,
		},
		{
			desc: "fused kernels",
			fuse: true,
			body: func(b *ih.Body) ir.Expr {
				e := b.Let("e", ih.Call(ops.Exp, x))
				r := b.Let("r", ih.Call(ops.AllReduce, e))
				g := b.Let("g", &ir.TupleGetItem{Tuple: r, Index: 0})
				n := b.Let("n", ih.Call(ops.Negative, g))
				return b.Return(b.Let("th", ih.Call(ops.Tanh, n)))
			},
			allocs: 2,
			frees:  1,
		},
	}
	args := []ir.Value{
		ih.TensorValue([]float32{1, -2, 0.5, 0}, 2, 2),
		ih.TensorValue([]float32{3, -1}, 2),
	}
	for i, test := range tests {
		mod := ih.Module([]*ir.Var{x, y}, test.body)
		typed := must.M1(infer.InferType(reg, mod))
		if test.fuse {
			fused, err := fuse.FuseOps(reg, typed, fuse.DefaultTable(fuse.DefaultMaxSize))
			require.NoError(t, err)
			typed = must.M1(infer.InferType(reg, fused))
		}
		manifested, err := manifest.ManifestAlloc(reg, typed, nil, ir.CPU(0))
		require.NoError(t, err)
		updated, err := inplace.InplaceUpdate(reg, manifested)
		if err != nil {
			t.Errorf("test %d: %s:\n%+v", i, test.desc, err)
			continue
		}
		if got := count(updated, ops.AllocStorage); got != test.allocs {
			t.Errorf("test %d: %s: got %d storages but want %d:\n%s", i, test.desc, got, test.allocs, updated)
		}
		if got := count(updated, ops.Free); got != test.frees {
			t.Errorf("test %d: %s: got %d frees but want %d:\n%s", i, test.desc, got, test.frees, updated)
		}
		if err := manifest.Analyze(updated.Main().Body).Verify(); err != nil {
			t.Errorf("test %d: %s: invalid allocations:\n%+v", i, test.desc, err)
		}
		if _, err := infer.InferType(reg, updated); err != nil {
			t.Errorf("test %d: %s: cannot infer the types of\n%s\n%+v", i, test.desc, updated, err)
		}
		want := must.M1(interp.New(reg, mod).Run(args...))
		got, err := interp.New(reg, updated).Run(args...)
		if err != nil {
			t.Errorf("test %d: %s:\n%+v", i, test.desc, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("test %d: %s: got %v but want %v", i, test.desc, got, want)
		}
	}
}
