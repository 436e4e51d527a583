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

package fromrelay_test

import (
	"strings"
	"testing"

	"github.com/gx-org/graphc/build/fmterr"
	"github.com/gx-org/graphc/build/infer"
	"github.com/gx-org/graphc/build/ir"
	ih "github.com/gx-org/graphc/build/ir/irhelper"
	"github.com/gx-org/graphc/interp"
	"github.com/gx-org/graphc/stdlib"
	"github.com/gx-org/graphc/transform/devctx"
	"github.com/gx-org/graphc/transform/fromrelay"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"
)

const deviceCopyGraph = `
params:
  - name: x
    type: float32[2]
  - name: y
    type: float32[2]
nodes:
  - name: sum
    op: add
    inputs: [x, y]
  - name: copied
    op: device_copy
    inputs: [sum]
    attrs:
      - device: cpu(0)
      - device: cuda(0)
  - name: prod
    op: multiply
    inputs: [copied, copied]
  - name: scaled
    op: multiply
    inputs: [prod]
    attrs:
      - tensor: {dtype: float32, dims: [2], values: [2, 3]}
outputs: [scaled]
`

func TestDeviceCopy(t *testing.T) {
	reg := must.M1(stdlib.Default())
	g, err := fromrelay.Load(strings.NewReader(deviceCopyGraph))
	require.NoError(t, err)
	mod, err := fromrelay.FromRelay(reg, g)
	require.NoError(t, err)
	if _, err := infer.InferType(reg, mod); err != nil {
		t.Fatalf("imported module cannot be typed:\n%+v", err)
	}
	devices, err := devctx.ContextAnalysis(mod, ir.CUDA(0))
	require.NoError(t, err)
	want := map[string]ir.Device{
		"x":      ir.CPU(0),
		"y":      ir.CPU(0),
		"sum":    ir.CPU(0),
		"copied": ir.CUDA(0),
		"prod":   ir.CUDA(0),
		"scaled": ir.CUDA(0),
	}
	main := mod.Main()
	vars := append([]*ir.Var{}, main.Params...)
	bindings, _ := ir.Bindings(main.Body)
	for _, b := range bindings {
		vars = append(vars, b.Var)
	}
	for _, v := range vars {
		got, ok := devices.Device(v)
		if !ok {
			t.Errorf("no device for %s", v)
			continue
		}
		if got != want[v.Name] {
			t.Errorf("%s: got %s but want %s", v, got, want[v.Name])
		}
	}
	out, err := interp.New(reg, mod).Run(
		ih.TensorValue([]float32{1, 2}, 2),
		ih.TensorValue([]float32{0, 1}, 2),
	)
	require.NoError(t, err)
	if wantV := ih.TensorValue([]float32{2, 27}, 2); !out.Equal(wantV) {
		t.Errorf("got %s but want %s", out, wantV)
	}
}

func TestParseType(t *testing.T) {
	tests := []struct {
		in   string
		want string
		err  bool
	}{
		{in: "float32[2, 3]", want: "float32[2, 3]"},
		{in: "float64", want: "float64[]"},
		{in: "int32[n, ?]", want: "int32[n, ?]"},
		{in: "float32[2", err: true},
		{in: "complex[2]", err: true},
		{in: "float32[2, ]", err: true},
	}
	for i, test := range tests {
		got, err := fromrelay.ParseType(test.in)
		if test.err {
			if err == nil {
				t.Errorf("test %d: %q: expected an error but got %s", i, test.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("test %d: %q: %v", i, test.in, err)
			continue
		}
		if got.String() != test.want {
			t.Errorf("test %d: got %s but want %s", i, got, test.want)
		}
	}
}

func TestErrors(t *testing.T) {
	reg := must.M1(stdlib.Default())
	tests := []struct {
		desc  string
		graph string
		kind  fmterr.Kind
	}{
		{
			desc: "unknown operator",
			graph: `
params: [{name: x, type: "float32[2]"}]
nodes: [{name: a, op: frobnicate, inputs: [x]}]
outputs: [a]
`,
			kind: fmterr.UnknownOperator,
		},
		{
			desc: "arity",
			graph: `
params: [{name: x, type: "float32[2]"}]
nodes: [{name: a, op: add, inputs: [x]}]
outputs: [a]
`,
			kind: fmterr.Arity,
		},
	}
	for i, test := range tests {
		g := must.M1(fromrelay.Load(strings.NewReader(test.graph)))
		_, err := fromrelay.FromRelay(reg, g)
		if !fmterr.Is(err, test.kind) {
			t.Errorf("test %d: %s: got error %v but want %s", i, test.desc, err, test.kind)
		}
	}
	for i, graph := range []string{
		"params: [{name: x, type: \"float32[2]\"}]\nnodes: [{name: a, op: exp, inputs: [z]}]\noutputs: [a]\n",
		"params: [{name: x, type: \"float32[2]\"}]\noutputs: []\n",
		"params: [{name: x, type: \"float32[2]\"}, {name: x, type: \"float32[2]\"}]\noutputs: [x]\n",
	} {
		g := must.M1(fromrelay.Load(strings.NewReader(graph)))
		if _, err := fromrelay.FromRelay(reg, g); err == nil {
			t.Errorf("test %d: expected an error", i)
		}
	}
	if _, err := fromrelay.Load(strings.NewReader("unknown: 1\n")); err == nil {
		t.Errorf("expected an error for an unknown field")
	}
}
