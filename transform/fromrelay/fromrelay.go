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

// Package fromrelay imports programs written in graph normal form.
//
// A graph lists typed parameters, nodes applying an operator to previous
// nodes or parameters, and the outputs of the program. Attributes of a node
// are passed to the operator after its inputs.
package fromrelay

import (
	"strconv"
	"strings"

	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/graphc/build/fmterr"
	"github.com/gx-org/graphc/build/ir"
	"github.com/gx-org/graphc/build/ops"
	"github.com/gx-org/graphc/golang/backend/kernels"
	"github.com/pkg/errors"
)

type (
	// Graph is a program in graph normal form.
	Graph struct {
		Params  []Param  `yaml:"params"`
		Nodes   []Node   `yaml:"nodes"`
		Outputs []string `yaml:"outputs"`
	}

	// Param is a parameter of the program.
	Param struct {
		Name string `yaml:"name"`
		// Type of the parameter, for example float32[2, 3] or float32[n, ?].
		Type string `yaml:"type"`
	}

	// Node applies an operator.
	Node struct {
		Name   string   `yaml:"name"`
		Op     string   `yaml:"op"`
		Inputs []string `yaml:"inputs"`
		Attrs  []Attr   `yaml:"attrs"`
	}

	// Attr is a constant argument of an operator.
	// Exactly one field is set.
	Attr struct {
		Ints   []int       `yaml:"ints,omitempty"`
		String *string     `yaml:"string,omitempty"`
		Device string      `yaml:"device,omitempty"`
		DType  string      `yaml:"dtype,omitempty"`
		Tensor *TensorAttr `yaml:"tensor,omitempty"`
	}

	// TensorAttr is a constant tensor.
	TensorAttr struct {
		DType  string    `yaml:"dtype"`
		Dims   []int     `yaml:"dims"`
		Values []float64 `yaml:"values"`
	}
)

// FromRelay converts a graph into a module with a single entry function in A-normal form.
func FromRelay(reg *ops.Registry, g *Graph) (*ir.Module, error) {
	env := make(map[string]*ir.Var)
	define := func(name string, v *ir.Var) error {
		if name == "" {
			return errors.Errorf("missing name")
		}
		if _, defined := env[name]; defined {
			return errors.Errorf("%s defined more than once", name)
		}
		env[name] = v
		return nil
	}
	params := make([]*ir.Var, len(g.Params))
	for i, p := range g.Params {
		typ, err := ParseType(p.Type)
		if err != nil {
			return nil, errors.WithMessagef(err, "parameter %s", p.Name)
		}
		params[i] = ir.NewVar(p.Name, typ)
		if err := define(p.Name, params[i]); err != nil {
			return nil, err
		}
	}
	var lets ir.LetList
	for _, node := range g.Nodes {
		meta, err := reg.Lookup(node.Op)
		if err != nil {
			return nil, err
		}
		args := make([]ir.Expr, 0, len(node.Inputs)+len(node.Attrs))
		for _, input := range node.Inputs {
			v, ok := env[input]
			if !ok {
				return nil, errors.Errorf("node %s: undefined input %s", node.Name, input)
			}
			args = append(args, v)
		}
		for i, attr := range node.Attrs {
			c, err := attr.Const()
			if err != nil {
				return nil, errors.WithMessagef(err, "node %s: attribute %d", node.Name, i)
			}
			args = append(args, c)
		}
		call := ir.CallOp(node.Op, args...)
		if err := meta.CheckArity(call, len(args)); err != nil {
			return nil, err
		}
		if err := define(node.Name, lets.Push(node.Name, call)); err != nil {
			return nil, errors.WithMessagef(err, "node %s", node.Op)
		}
	}
	outs := make([]ir.Expr, len(g.Outputs))
	for i, name := range g.Outputs {
		v, ok := env[name]
		if !ok {
			return nil, errors.Errorf("undefined output %s", name)
		}
		outs[i] = v
	}
	var result ir.Expr
	switch len(outs) {
	case 0:
		return nil, errors.Errorf("graph has no output")
	case 1:
		result = outs[0]
	default:
		result = &ir.Tuple{Fields: outs}
	}
	return ir.FromFunc(ir.NewFunc(params, lets.Wrap(result))), nil
}

// Const returns the constant of an attribute.
func (a *Attr) Const() (*ir.Constant, error) {
	switch {
	case a.Ints != nil:
		return ir.Const(ir.Ints(a.Ints...)), nil
	case a.String != nil:
		return ir.Const(&ir.StringValue{Val: *a.String}), nil
	case a.Device != "":
		dev, err := ir.ParseDevice(a.Device)
		if err != nil {
			return nil, err
		}
		return ir.Const(&ir.DeviceValue{Device: dev}), nil
	case a.DType != "":
		dt, err := ir.ParseDType(a.DType)
		if err != nil {
			return nil, err
		}
		return ir.Const(&ir.DTypeValue{DType: dt}), nil
	case a.Tensor != nil:
		return a.Tensor.Const()
	}
	return nil, errors.Errorf("empty attribute")
}

func toArray[T float32 | float64 | int32 | int64](vals []float64, dims []int) (kernels.Array, error) {
	cast := make([]T, len(vals))
	for i, v := range vals {
		cast[i] = T(v)
	}
	return kernels.ToArray(cast, dims)
}

// Const returns a constant tensor.
func (t *TensorAttr) Const() (*ir.Constant, error) {
	dt, err := ir.ParseDType(t.DType)
	if err != nil {
		return nil, err
	}
	var a kernels.Array
	switch dt {
	case dtype.Float32:
		a, err = toArray[float32](t.Values, t.Dims)
	case dtype.Float64:
		a, err = toArray[float64](t.Values, t.Dims)
	case dtype.Int32:
		a, err = toArray[int32](t.Values, t.Dims)
	case dtype.Int64:
		a, err = toArray[int64](t.Values, t.Dims)
	default:
		return nil, fmterr.Errorf(fmterr.TypeInference, nil, "tensor constants of type %s not supported", t.DType)
	}
	if err != nil {
		return nil, err
	}
	return ir.Const(ir.NewTensor(a)), nil
}

// ParseType parses the type of a tensor, for example float32[2, 3].
// A dimension is an integer, a symbol, or ? for an unresolved dimension.
// The type of a scalar is written without dimensions, for example float32.
func ParseType(s string) (*ir.TensorType, error) {
	s = strings.TrimSpace(s)
	name, dimsStr, hasDims := strings.Cut(s, "[")
	dt, err := ir.ParseDType(strings.TrimSpace(name))
	if err != nil {
		return nil, err
	}
	if !hasDims {
		return ir.TensorDims(dt), nil
	}
	dimsStr, ok := strings.CutSuffix(dimsStr, "]")
	if !ok {
		return nil, errors.Errorf("invalid type %q: missing ]", s)
	}
	if strings.TrimSpace(dimsStr) == "" {
		return ir.TensorDims(dt), nil
	}
	var dims []ir.Dim
	for _, d := range strings.Split(dimsStr, ",") {
		d = strings.TrimSpace(d)
		if d == "?" {
			dims = append(dims, ir.AnyDim())
			continue
		}
		if n, err := strconv.Atoi(d); err == nil {
			if n < 0 {
				return nil, errors.Errorf("invalid type %q: negative dimension %d", s, n)
			}
			dims = append(dims, ir.IntDim(n))
			continue
		}
		if d == "" {
			return nil, errors.Errorf("invalid type %q: empty dimension", s)
		}
		dims = append(dims, ir.SymDim(d))
	}
	return ir.TensorDims(dt, dims...), nil
}
