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

package dataparallel_test

import (
	"slices"
	"testing"

	"github.com/gx-org/graphc/build/infer"
	"github.com/gx-org/graphc/build/ir"
	ih "github.com/gx-org/graphc/build/ir/irhelper"
	"github.com/gx-org/graphc/build/ops"
	"github.com/gx-org/graphc/interp"
	"github.com/gx-org/graphc/stdlib"
	"github.com/gx-org/graphc/transform/autodiff"
	"github.com/gx-org/graphc/transform/dataparallel"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"
)

// allReduces returns the number of arguments of each _allreduce call of a module.
func allReduces(mod *ir.Module) []int {
	var arities []int
	ir.Walk(mod.Main().Body, func(e ir.Expr) bool {
		if ir.IsOpCall(e, ops.AllReduce) {
			arities = append(arities, len(e.(*ir.Call).Args))
		}
		return true
	})
	return arities
}

// backward runs a differentiated module and returns the gradients given dy.
func backward(t *testing.T, mod *ir.Module, dy ir.Value, args ...ir.Value) []ir.Value {
	t.Helper()
	reg := must.M1(stdlib.Default())
	itp := interp.New(reg, mod)
	out, err := itp.Run(args...)
	require.NoError(t, err)
	pair, ok := out.(*ir.TupleValue)
	require.True(t, ok, "result %s is not a tuple", out)
	grads, err := itp.Apply(pair.Fields[1], dy)
	require.NoError(t, err)
	tpl, ok := grads.(*ir.TupleValue)
	require.True(t, ok, "gradients %s are not a tuple", grads)
	return tpl.Fields
}

func TestAutoDataParallel(t *testing.T) {
	reg := must.M1(stdlib.Default())
	x := ih.Param("x", ih.F32(3))
	y := ih.Param("y", ih.F32(3))
	tests := []struct {
		desc    string
		wrt     []string
		body    func(b *ih.Body) ir.Expr
		arities []int
	}{
		{
			desc: "all parameters",
			body: func(b *ih.Body) ir.Expr {
				m := b.Let("m", ih.Call(ops.Multiply, x, y))
				return b.Return(b.Let("e", ih.Call(ops.Exp, m)))
			},
			arities: []int{2},
		},
		{
			desc: "subset of the parameters",
			wrt:  []string{"y"},
			body: func(b *ih.Body) ir.Expr {
				return b.Return(b.Let("s", ih.Call(ops.Subtract, x, y)))
			},
			arities: []int{1},
		},
	}
	args := []ir.Value{
		ih.TensorValue([]float32{1, 2, 3}, 3),
		ih.TensorValue([]float32{-1, 0.5, 2}, 3),
	}
	dy := ih.TensorValue([]float32{1, 1, 0.5}, 3)
	for i, test := range tests {
		mod := ih.Module([]*ir.Var{x, y}, test.body)
		typed := must.M1(infer.InferType(reg, mod))
		grad := must.M1(infer.InferType(reg, must.M1(autodiff.AutoDiff(reg, typed, test.wrt))))
		reduced, err := dataparallel.AutoDataParallel(grad)
		if err != nil {
			t.Errorf("test %d: %s:\n%+v", i, test.desc, err)
			continue
		}
		if _, err := infer.InferType(reg, reduced); err != nil {
			t.Errorf("test %d: %s: cannot infer the types of\n%s\n%+v", i, test.desc, reduced, err)
			continue
		}
		if got := allReduces(reduced); !slices.Equal(got, test.arities) {
			t.Errorf("test %d: %s: got _allreduce arities %v but want %v:\n%s", i, test.desc, got, test.arities, reduced)
		}
		want := backward(t, grad, dy, args...)
		got := backward(t, reduced, dy, args...)
		require.Len(t, got, len(want))
		for j := range want {
			if !got[j].Equal(want[j]) {
				t.Errorf("test %d: %s: gradient %d: got %s but want %s", i, test.desc, j, got[j], want[j])
			}
		}
	}
}

func TestAutoDataParallelErrors(t *testing.T) {
	reg := must.M1(stdlib.Default())
	x := ih.Param("x", ih.F32(3))
	mod := ih.Module([]*ir.Var{x}, func(b *ih.Body) ir.Expr {
		return b.Return(b.Let("e", ih.Call(ops.Exp, x)))
	})
	typed := must.M1(infer.InferType(reg, mod))
	if _, err := dataparallel.AutoDataParallel(typed); err == nil {
		t.Errorf("expected an error for a module without backward function:\n%s", typed)
	}
	if _, err := dataparallel.AutoDataParallel(mod); err == nil {
		t.Errorf("expected an error for an untyped module:\n%s", mod)
	}
}
