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

package rename_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gx-org/graphc/build/ir"
	ih "github.com/gx-org/graphc/build/ir/irhelper"
	"github.com/gx-org/graphc/build/ops"
	"github.com/gx-org/graphc/transform/rename"
)

func names(fn *ir.Function) []string {
	var ns []string
	for _, v := range ir.BoundVars(fn) {
		ns = append(ns, v.Name)
	}
	return ns
}

func TestRenameVars(t *testing.T) {
	x := ih.Param("x", ih.F32(2))
	dy := ih.Param("dy", ih.F32(2))
	mod := ih.Module([]*ir.Var{x}, func(b *ih.Body) ir.Expr {
		e := b.Let("e", ih.Call(ops.Exp, x))
		bwd := b.Let("bwd", ir.Closure([]*ir.Var{dy}, (&ih.Body{}).Return(
			ih.Call(ops.Multiply, dy, e),
		)))
		return b.Return(&ir.Tuple{Fields: []ir.Expr{e, bwd}})
	})
	x2 := ih.Param("x", ih.F32(2))
	mod.Add("other", ih.Func([]*ir.Var{x2}, func(b *ih.Body) ir.Expr {
		n := b.Let("e", ih.Call(ops.Negative, x2))
		return b.Return(n)
	}))
	got, err := rename.RenameVars(mod)
	if err != nil {
		t.Fatalf("\n%+v", err)
	}
	if !ir.ModuleEqual(mod, got) {
		t.Errorf("renamed module not equal to the original:\n%s\nwant:\n%s", got, mod)
	}
	tests := []struct {
		fn   string
		want []string
	}{
		{fn: ir.DefaultEntry, want: []string{"x", "a1", "a2", "dy"}},
		{fn: "other", want: []string{"x1", "a3"}},
	}
	for i, test := range tests {
		fn, _ := got.Lookup(test.fn)
		if diff := cmp.Diff(test.want, names(fn)); diff != "" {
			t.Errorf("test %d: unexpected names (-want +got):\n%s", i, diff)
		}
	}
}

func TestRenameIsStable(t *testing.T) {
	x := ih.Param("x", ih.F32(2))
	mod := ih.Module([]*ir.Var{x}, func(b *ih.Body) ir.Expr {
		e := b.Let("weird name", ih.Call(ops.Exp, x))
		return b.Return(e)
	})
	once, err := rename.RenameVars(mod)
	if err != nil {
		t.Fatalf("\n%+v", err)
	}
	twice, err := rename.RenameVars(once)
	if err != nil {
		t.Fatalf("\n%+v", err)
	}
	if got, want := twice.String(), once.String(); got != want {
		t.Errorf("got:\n%s\nbut want:\n%s", got, want)
	}
}
