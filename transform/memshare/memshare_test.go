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

package memshare_test

import (
	"testing"

	"github.com/gx-org/graphc/build/infer"
	"github.com/gx-org/graphc/build/ir"
	ih "github.com/gx-org/graphc/build/ir/irhelper"
	"github.com/gx-org/graphc/build/ops"
	"github.com/gx-org/graphc/interp"
	"github.com/gx-org/graphc/stdlib"
	"github.com/gx-org/graphc/transform/manifest"
	"github.com/gx-org/graphc/transform/memshare"
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

func TestMemShare(t *testing.T) {
	reg := must.M1(stdlib.Default())
	x := ih.Param("x", ih.F32(2, 2))
	y := ih.Param("y", ih.F32(2))
	tests := []struct {
		desc          string
		body          func(b *ih.Body) ir.Expr
		before, after int
	}{
		{
			desc: "element-wise chain",
			body: func(b *ih.Body) ir.Expr {
				e := b.Let("e", ih.Call(ops.Exp, x))
				n := b.Let("n", ih.Call(ops.Negative, e))
				th := b.Let("th", ih.Call(ops.Tanh, n))
				return b.Return(b.Let("m", ih.Call(ops.Multiply, th, x)))
			},
			before: 4,
			after:  2,
		},
		{
			desc: "smaller storages are not reused",
			body: func(b *ih.Body) ir.Expr {
				e := b.Let("e", ih.Call(ops.Exp, y))
				n := b.Let("n", ih.Call(ops.Negative, e))
				m := b.Let("m", ih.Call(ops.Add, x, n))
				return b.Return(b.Let("th", ih.Call(ops.Tanh, m)))
			},
			before: 4,
			after:  4,
		},
	}
	args := []ir.Value{
		ih.TensorValue([]float32{1, -2, 0.5, 0}, 2, 2),
		ih.TensorValue([]float32{3, -1}, 2),
	}
	for i, test := range tests {
		mod := ih.Module([]*ir.Var{x, y}, test.body)
		typed := must.M1(infer.InferType(reg, mod))
		manifested, err := manifest.ManifestAlloc(reg, typed, nil, ir.CPU(0))
		require.NoError(t, err)
		if got := count(manifested, ops.AllocStorage); got != test.before {
			t.Errorf("test %d: %s: got %d storages before sharing but want %d:\n%s", i, test.desc, got, test.before, manifested)
		}
		shared, err := memshare.MemShare(manifested)
		if err != nil {
			t.Errorf("test %d: %s:\n%+v", i, test.desc, err)
			continue
		}
		if got := count(shared, ops.AllocStorage); got != test.after {
			t.Errorf("test %d: %s: got %d storages after sharing but want %d:\n%s", i, test.desc, got, test.after, shared)
		}
		if before, after := memshare.PeakBytes(manifested), memshare.PeakBytes(shared); after > before {
			t.Errorf("test %d: %s: peak allocation increased from %d to %d", i, test.desc, before, after)
		}
		if err := manifest.Analyze(shared.Main().Body).Verify(); err != nil {
			t.Errorf("test %d: %s: invalid allocations:\n%+v", i, test.desc, err)
		}
		want := must.M1(interp.New(reg, mod).Run(args...))
		got, err := interp.New(reg, shared).Run(args...)
		if err != nil {
			t.Errorf("test %d: %s:\n%+v", i, test.desc, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("test %d: %s: got %v but want %v", i, test.desc, got, want)
		}
	}
}

func TestPeakBytes(t *testing.T) {
	reg := must.M1(stdlib.Default())
	x := ih.Param("x", ih.F32(4))
	mod := ih.Module([]*ir.Var{x}, func(b *ih.Body) ir.Expr {
		e := b.Let("e", ih.Call(ops.Exp, x))
		return b.Return(b.Let("n", ih.Call(ops.Negative, e)))
	})
	typed := must.M1(infer.InferType(reg, mod))
	manifested := must.M1(manifest.ManifestAlloc(reg, typed, nil, ir.CPU(0)))
	if got, want := memshare.PeakBytes(manifested), uint64(32); got != want {
		t.Errorf("got a peak of %d bytes but want %d:\n%s", got, want, manifested)
	}
}
