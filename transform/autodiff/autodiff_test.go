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

package autodiff_test

import (
	"math"
	"strings"
	"testing"

	"github.com/gx-org/graphc/build/fmterr"
	"github.com/gx-org/graphc/build/infer"
	"github.com/gx-org/graphc/build/ir"
	ih "github.com/gx-org/graphc/build/ir/irhelper"
	"github.com/gx-org/graphc/build/ops"
	"github.com/gx-org/graphc/interp"
	"github.com/gx-org/graphc/stdlib"
	"github.com/gx-org/graphc/transform/autodiff"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"
)

// gradients runs a differentiated module and returns its result and the
// gradients given the gradient of the result.
func gradients(t *testing.T, mod *ir.Module, wrt []string, dy ir.Value, args ...ir.Value) (ir.Value, []ir.Value) {
	t.Helper()
	reg := must.M1(stdlib.Default())
	typed, err := infer.InferType(reg, mod)
	require.NoError(t, err)
	grad, err := autodiff.AutoDiff(reg, typed, wrt)
	require.NoError(t, err)
	_, err = infer.InferType(reg, grad)
	require.NoError(t, err)
	itp := interp.New(reg, grad)
	out, err := itp.Run(args...)
	require.NoError(t, err)
	pair, ok := out.(*ir.TupleValue)
	require.True(t, ok, "result %s is not a tuple", out)
	require.Len(t, pair.Fields, 2)
	grads, err := itp.Apply(pair.Fields[1], dy)
	require.NoError(t, err)
	tpl, ok := grads.(*ir.TupleValue)
	require.True(t, ok, "gradients %s are not a tuple", grads)
	return pair.Fields[0], tpl.Fields
}

func TestAddGradient(t *testing.T) {
	x := ih.Param("x", ih.F32(3))
	y := ih.Param("y", ih.F32(3))
	mod := ih.Module([]*ir.Var{x, y}, func(b *ih.Body) ir.Expr {
		return b.Return(b.Let("s", ih.Call(ops.Add, x, y)))
	})
	dy := ih.TensorValue([]float32{1, 2, 3}, 3)
	out, grads := gradients(t, mod, nil, dy,
		ih.TensorValue([]float32{1, 1, 1}, 3),
		ih.TensorValue([]float32{2, 2, 2}, 3),
	)
	if want := ih.TensorValue([]float32{3, 3, 3}, 3); !out.Equal(want) {
		t.Errorf("got %s but want %s", out, want)
	}
	require.Len(t, grads, 2)
	for i, grad := range grads {
		if !grad.Equal(dy) {
			t.Errorf("gradient %d: got %s but want %s", i, grad, dy)
		}
	}
}

func scalar(t *testing.T, v ir.Value) float64 {
	t.Helper()
	tv, ok := v.(*ir.TensorValue)
	require.True(t, ok, "%s is not a tensor", v)
	vals := tv.Array.Float64s()
	require.Len(t, vals, 1)
	return vals[0]
}

// numericGradient estimates the gradient of a scalar function with central differences.
func numericGradient(t *testing.T, mod *ir.Module, args []ir.Value, i int) []float64 {
	const eps = 1e-6
	reg := must.M1(stdlib.Default())
	itp := interp.New(reg, mod)
	arg := args[i].(*ir.TensorValue)
	dims := arg.Array.Shape().AxisLengths
	vals := arg.Array.Float64s()
	grad := make([]float64, len(vals))
	eval := func(j int, delta float64) float64 {
		perturbed := append([]float64{}, vals...)
		perturbed[j] += delta
		shifted := append([]ir.Value{}, args...)
		shifted[i] = ih.TensorValue(perturbed, dims...)
		return scalar(t, must.M1(itp.Run(shifted...)))
	}
	for j := range vals {
		grad[j] = (eval(j, eps) - eval(j, -eps)) / (2 * eps)
	}
	return grad
}

func TestFiniteDifferences(t *testing.T) {
	x := ih.Param("x", ih.F64(2, 3))
	y := ih.Param("y", ih.F64(3))
	w := ih.Param("w", ih.F64(3, 2))
	xv := ih.TensorValue([]float64{0.1, 0.7, 1.3, 0.4, 2.1, 0.9}, 2, 3)
	yv := ih.TensorValue([]float64{0.3, -0.2, 1.5}, 3)
	wv := ih.TensorValue([]float64{0.5, -1.2, 0.8, 0.1, -0.3, 0.6}, 3, 2)
	tests := []struct {
		desc   string
		params []*ir.Var
		args   []ir.Value
		body   func(b *ih.Body) ir.Expr
	}{
		{
			desc:   "broadcast",
			params: []*ir.Var{x, y},
			args:   []ir.Value{xv, yv},
			body: func(b *ih.Body) ir.Expr {
				th := b.Let("th", ih.Call(ops.Tanh, x))
				ey := b.Let("ey", ih.Call(ops.Exp, y))
				m := b.Let("m", ih.Call(ops.Multiply, th, ey))
				return b.Return(b.Let("s", ih.Call(ops.Sum, m)))
			},
		},
		{
			desc:   "matmul",
			params: []*ir.Var{x, w},
			args:   []ir.Value{xv, wv},
			body: func(b *ih.Body) ir.Expr {
				h := b.Let("h", ih.Call(ops.MatMul, x, w))
				sig := b.Let("sig", ih.Call(ops.Sigmoid, h))
				return b.Return(b.Let("s", ih.Call(ops.Mean, sig)))
			},
		},
		{
			desc:   "division and reuse",
			params: []*ir.Var{x, y},
			args:   []ir.Value{xv, yv},
			body: func(b *ih.Body) ir.Expr {
				sq := b.Let("sq", ih.Call(ops.Sqrt, x))
				ex := b.Let("ex", ih.Call(ops.Exp, y))
				d := b.Let("d", ih.Call(ops.Divide, sq, ex))
				l := b.Let("l", ih.Call(ops.Log, x))
				p := b.Let("p", ih.Call(ops.Multiply, d, l))
				p = b.Let("p", ih.Call(ops.Subtract, p, x))
				return b.Return(b.Let("s", ih.Call(ops.Sum, p)))
			},
		},
		{
			desc:   "maximum and relu",
			params: []*ir.Var{x, y},
			args:   []ir.Value{xv, yv},
			body: func(b *ih.Body) ir.Expr {
				neg := b.Let("neg", ih.Call(ops.Negative, y))
				m := b.Let("m", ih.Call(ops.Maximum, x, neg))
				r := b.Let("r", ih.Call(ops.Relu, y))
				s := b.Let("s", ih.Call(ops.Add, m, r))
				return b.Return(b.Let("s", ih.Call(ops.Sum, s)))
			},
		},
		{
			desc:   "reshape",
			params: []*ir.Var{x, w},
			args:   []ir.Value{xv, wv},
			body: func(b *ih.Body) ir.Expr {
				r := b.Let("r", ih.Call(ops.Reshape, x, ih.Ints(3, 2)))
				m := b.Let("m", ih.Call(ops.Multiply, r, w))
				c := b.Let("c", ih.Call(ops.Copy, m))
				return b.Return(b.Let("s", ih.Call(ops.Sum, c)))
			},
		},
	}
	for i, test := range tests {
		mod := ih.Module(test.params, test.body)
		_, grads := gradients(t, mod, nil, ih.TensorValue([]float64{1}), test.args...)
		require.Len(t, grads, len(test.params))
		for p, grad := range grads {
			want := numericGradient(t, mod, test.args, p)
			got := grad.(*ir.TensorValue).Array.Float64s()
			require.Len(t, got, len(want))
			for j := range want {
				if math.Abs(got[j]-want[j]) > 1e-5*max(1, math.Abs(want[j])) {
					t.Errorf("test %d: %s: d/d%s[%d]: got %g but want %g", i, test.desc, test.params[p].Name, j, got[j], want[j])
				}
			}
		}
	}
}

func TestTupleGradient(t *testing.T) {
	x := ih.Param("x", ih.F32(2))
	mod := ih.Module([]*ir.Var{x}, func(b *ih.Body) ir.Expr {
		e := b.Let("e", ih.Call(ops.Exp, x))
		tpl := b.Let("tpl", &ir.Tuple{Fields: []ir.Expr{e, x}})
		first := b.Let("first", &ir.TupleGetItem{Tuple: tpl, Index: 0})
		second := b.Let("second", &ir.TupleGetItem{Tuple: tpl, Index: 1})
		return b.Return(b.Let("s", ih.Call(ops.Add, first, second)))
	})
	dy := ih.TensorValue([]float32{1, 1}, 2)
	xv := ih.TensorValue([]float32{0, 0}, 2)
	_, grads := gradients(t, mod, []string{"x"}, dy, xv)
	want := ih.TensorValue([]float32{2, 2}, 2)
	if !grads[0].Equal(want) {
		t.Errorf("got %s but want %s", grads[0], want)
	}
}

func TestNonDifferentiable(t *testing.T) {
	x := ih.Param("x", ih.F32(2))
	y := ih.Param("y", ih.F32(2))
	mod := ih.Module([]*ir.Var{x, y}, func(b *ih.Body) ir.Expr {
		ones := b.Let("ones", ih.Call(ops.OnesLike, x))
		s := b.Let("s", ih.Call(ops.Add, x, ones))
		return b.Return(s)
	})
	dy := ih.TensorValue([]float32{5, 6}, 2)
	xv := ih.TensorValue([]float32{1, 2}, 2)
	_, grads := gradients(t, mod, []string{"y", "x"}, dy, xv, xv)
	wants := []ir.Value{ih.TensorValue([]float32{0, 0}, 2), dy}
	for i, want := range wants {
		if !grads[i].Equal(want) {
			t.Errorf("gradient %d: got %s but want %s", i, grads[i], want)
		}
	}
}

func TestErrors(t *testing.T) {
	reg := must.M1(stdlib.Default())
	x := ih.Param("x", ih.F64(1, 1, 3, 3))
	w := ih.Param("w", ih.F64(1, 1, 2, 2))
	mod := ih.Module([]*ir.Var{x, w}, func(b *ih.Body) ir.Expr {
		c := b.Let("c", ih.Call(ops.Conv2D, x, w, ih.Ints(1, 1), ih.Ints(0, 0), ih.Ints(1, 1)))
		return b.Return(b.Let("s", ih.Call(ops.Sum, c)))
	})
	typed := must.M1(infer.InferType(reg, mod))
	_, err := autodiff.AutoDiff(reg, typed, nil)
	if !fmterr.Is(err, fmterr.NoGradientRule) {
		t.Fatalf("got error %v but want a no gradient rule error", err)
	}
	if !strings.Contains(err.Error(), ops.Conv2D) {
		t.Errorf("error %q does not name the operator %s", err, ops.Conv2D)
	}
	if _, err := autodiff.AutoDiff(reg, typed, []string{"z"}); err == nil {
		t.Errorf("expected an error for an unknown parameter")
	}
}
