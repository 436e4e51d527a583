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

package canonicalize_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/graphc/build/infer"
	"github.com/gx-org/graphc/build/ir"
	ih "github.com/gx-org/graphc/build/ir/irhelper"
	"github.com/gx-org/graphc/build/ops"
	"github.com/gx-org/graphc/interp"
	"github.com/gx-org/graphc/stdlib"
	"github.com/gx-org/graphc/transform/canonicalize"
	"github.com/gx-org/graphc/transform/rename"
	"github.com/janpfeifer/must"
)

func boundOps(e ir.Expr) []string {
	var names []string
	bindings, _ := ir.Bindings(e)
	for _, b := range bindings {
		if name, ok := ir.OpName(b.Value); ok {
			names = append(names, name)
		}
	}
	return names
}

func TestCanonicalizeOps(t *testing.T) {
	reg := must.M1(stdlib.Default())
	x := ih.Param("x", ih.F32(2, 3))
	y := ih.Param("y", ih.F32(3, 2))
	mod := ih.Module([]*ir.Var{x, y}, func(b *ih.Body) ir.Expr {
		z := b.Let("z", ih.Call(ops.ZerosLike, x))
		o := b.Let("o", ih.Call(ops.OnesLike, x))
		r := b.Let("r", ih.Call(ops.ReshapeLike, y, x))
		s := b.Let("s", ih.Call(ops.Add, z, o))
		s = b.Let("s", ih.Call(ops.Add, s, r))
		f := b.Let("f", ih.Call(ops.BatchFlatten, s))
		return b.Return(f)
	})
	typed := must.M1(infer.InferType(reg, mod))
	got, err := canonicalize.CanonicalizeOps(typed)
	if err != nil {
		t.Fatalf("\n%+v", err)
	}
	want := []string{ops.Zeros, ops.Ones, ops.Reshape, ops.Add, ops.Add, ops.Reshape}
	if diff := cmp.Diff(want, boundOps(got.Main().Body)); diff != "" {
		t.Errorf("unexpected operators (-want +got):\n%s", diff)
	}
	if _, err := infer.InferType(reg, got); err != nil {
		t.Fatalf("\n%+v", err)
	}
	args := []ir.Value{
		ih.TensorValue([]float32{1, 2, 3, 4, 5, 6}, 2, 3),
		ih.TensorValue([]float32{6, 5, 4, 3, 2, 1}, 3, 2),
	}
	wantV := must.M1(interp.New(reg, mod).Run(args...))
	gotV := must.M1(interp.New(reg, got).Run(args...))
	if !gotV.Equal(wantV) {
		t.Errorf("got %s but want %s", gotV, wantV)
	}
}

func TestSymbolicShapesAreKept(t *testing.T) {
	reg := must.M1(stdlib.Default())
	x := ih.Param("x", ir.TensorDims(dtype.Float32, ir.SymDim("n"), ir.IntDim(3)))
	mod := ih.Module([]*ir.Var{x}, func(b *ih.Body) ir.Expr {
		z := b.Let("z", ih.Call(ops.ZerosLike, x))
		f := b.Let("f", ih.Call(ops.BatchFlatten, z))
		return b.Return(f)
	})
	typed := must.M1(infer.InferType(reg, mod))
	got := must.M1(canonicalize.CanonicalizeOps(typed))
	want := []string{ops.ZerosLike, ops.BatchFlatten}
	if diff := cmp.Diff(want, boundOps(got.Main().Body)); diff != "" {
		t.Errorf("unexpected operators (-want +got):\n%s", diff)
	}
}

func TestIdempotent(t *testing.T) {
	reg := must.M1(stdlib.Default())
	x := ih.Param("x", ih.F32(2, 3))
	n := ih.Param("n", ir.TensorDims(dtype.Float32, ir.SymDim("n"), ir.IntDim(3)))
	mod := ih.Module([]*ir.Var{x, n}, func(b *ih.Body) ir.Expr {
		z := b.Let("z", ih.Call(ops.ZerosLike, x))
		s := b.Let("s", ih.Call(ops.Add, z, x))
		f := b.Let("f", ih.Call(ops.BatchFlatten, s))
		o := b.Let("o", ih.Call(ops.OnesLike, n))
		return b.Return(&ir.Tuple{Fields: []ir.Expr{f, o}})
	})
	once := must.M1(canonicalize.CanonicalizeOps(must.M1(infer.InferType(reg, mod))))
	twice := must.M1(canonicalize.CanonicalizeOps(must.M1(infer.InferType(reg, once))))
	got, want := must.M1(rename.RenameVars(twice)), must.M1(rename.RenameVars(once))
	if !ir.ModuleEqual(got, want) {
		t.Errorf("second run changed the module:\n%s\nwant:\n%s", got, want)
	}
}
