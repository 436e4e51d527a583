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

// Package autodiff computes the gradient of functions by reverse-mode
// automatic differentiation.
//
// The entry function of a module
//
//	fn (params) { bindings; y }
//
// is rewritten into
//
//	fn (params) { bindings; let bwd = fn (dy) { ...; (dparam0, dparam1, ...) }; (y, bwd) }
//
// The backward closure captures the intermediate results of the forward
// computation. LambdaLift turns it into a global function.
package autodiff

import (
	"slices"

	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/graphc/build/fmterr"
	"github.com/gx-org/graphc/build/ir"
	"github.com/gx-org/graphc/build/ops"
	"github.com/pkg/errors"
)

// AutoDiff differentiates the entry function of a module with respect to
// the parameters named in wrt. All the parameters are used if wrt is empty.
// The module needs to be in A-normal form and typed by InferType.
func AutoDiff(reg *ops.Registry, mod *ir.Module, wrt []string) (*ir.Module, error) {
	fn := mod.Main()
	if fn == nil {
		return nil, errors.Errorf("module has no entry function %q", mod.Entry)
	}
	if mod.Types() == nil {
		return nil, fmterr.Internalf(fn, "cannot differentiate an untyped module")
	}
	params, err := selectParams(fn, wrt)
	if err != nil {
		return nil, err
	}
	grad, err := Function(reg, mod, fn, params)
	if err != nil {
		return nil, err
	}
	out := mod.WithTypes(nil)
	out.Add(mod.Entry, grad)
	return out, nil
}

func selectParams(fn *ir.Function, wrt []string) ([]*ir.Var, error) {
	if len(wrt) == 0 {
		return fn.Params, nil
	}
	params := make([]*ir.Var, len(wrt))
	for i, name := range wrt {
		j := slices.IndexFunc(fn.Params, func(p *ir.Var) bool {
			return p.Name == name
		})
		if j < 0 {
			return nil, errors.Errorf("cannot differentiate with respect to %q: no such parameter", name)
		}
		params[i] = fn.Params[j]
	}
	return params, nil
}

// Function returns a function computing the result of fn and a closure
// computing the gradient of params given the gradient of the result.
// Types are read from mod.
func Function(reg *ops.Registry, mod *ir.Module, fn *ir.Function, params []*ir.Var) (*ir.Function, error) {
	d := &differ{
		reg: reg,
		mod: mod,
		adj: make(map[*ir.Var]ir.Expr),
	}
	bindings, result := ir.Bindings(fn.Body)
	outType, err := d.typeOf(result)
	if err != nil {
		return nil, err
	}
	dy := ir.NewVar("dy", outType)
	if err := d.seed(result, dy); err != nil {
		return nil, err
	}
	for _, b := range slices.Backward(bindings) {
		if err := d.binding(b); err != nil {
			return nil, err
		}
	}
	grads := make([]ir.Expr, len(params))
	for i, param := range params {
		grad, ok := d.adj[param]
		if !ok {
			grad = d.lets.Push("g", ir.CallOp(ops.ZerosLike, param))
		}
		grads[i] = grad
	}
	bwd := ir.Closure([]*ir.Var{dy}, d.lets.Wrap(&ir.Tuple{Fields: grads}))

	var fwd ir.LetList
	for _, b := range bindings {
		fwd.PushVar(b.Var, b.Value)
	}
	bwdVar := fwd.Push("bwd", bwd)
	return &ir.Function{
		Params: fn.Params,
		Body:   fwd.Wrap(&ir.Tuple{Fields: []ir.Expr{result, bwdVar}}),
		Attrs:  fn.Attrs,
	}, nil
}

type differ struct {
	reg *ops.Registry
	mod *ir.Module

	// lets are the bindings of the backward function.
	lets ir.LetList
	// adj maps variables of the forward function to their gradient (adjoint).
	adj map[*ir.Var]ir.Expr
}

func (d *differ) typeOf(e ir.Expr) (ir.Type, error) {
	typ, ok := d.mod.TypeOf(e)
	if !ok {
		return nil, fmterr.Internalf(e, "expression %s has no type", e)
	}
	return typ, nil
}

func isFloat(dt dtype.DataType) bool {
	return dt == dtype.Float32 || dt == dtype.Float64
}

// differentiable returns true if a value of a given type can have a non-zero gradient.
func differentiable(typ ir.Type) bool {
	switch typT := typ.(type) {
	case *ir.TensorType:
		return isFloat(typT.DType)
	case *ir.TupleType:
		return slices.ContainsFunc(typT.Fields, differentiable)
	}
	return false
}

func (d *differ) bind(value ir.Expr) *ir.Var {
	return d.lets.Push("g", value)
}

// seed sets the gradient of the result of the function.
func (d *differ) seed(result, dy ir.Expr) error {
	switch resultT := result.(type) {
	case *ir.Var:
		return d.accumulate(resultT, dy)
	case *ir.Tuple:
		for i, field := range resultT.Fields {
			if err := d.seed(field, d.bind(&ir.TupleGetItem{Tuple: dy, Index: i})); err != nil {
				return err
			}
		}
	}
	return nil
}

// accumulate adds a contribution to the gradient of a variable.
func (d *differ) accumulate(v *ir.Var, grad ir.Expr) error {
	typ, err := d.typeOf(v)
	if err != nil {
		return err
	}
	if !differentiable(typ) {
		return nil
	}
	prev, ok := d.adj[v]
	if !ok {
		d.adj[v] = grad
		return nil
	}
	sum, err := d.add(v, typ, prev, grad)
	if err != nil {
		return err
	}
	d.adj[v] = sum
	return nil
}

// add sums two gradients. Tuples are summed field-wise.
func (d *differ) add(v *ir.Var, typ ir.Type, x, y ir.Expr) (ir.Expr, error) {
	switch typT := typ.(type) {
	case *ir.TensorType:
		return d.bind(ir.CallOp(ops.Add, x, y)), nil
	case *ir.TupleType:
		fields := make([]ir.Expr, len(typT.Fields))
		for i, fieldType := range typT.Fields {
			xi := d.bind(&ir.TupleGetItem{Tuple: x, Index: i})
			if !differentiable(fieldType) {
				fields[i] = xi
				continue
			}
			yi := d.bind(&ir.TupleGetItem{Tuple: y, Index: i})
			sum, err := d.add(v, fieldType, xi, yi)
			if err != nil {
				return nil, err
			}
			fields[i] = sum
		}
		return d.bind(&ir.Tuple{Fields: fields}), nil
	}
	return nil, fmterr.Internalf(v, "cannot accumulate gradients of type %s", typ)
}

// zeros returns a gradient of zeros for a value of a given type.
func (d *differ) zeros(node, value ir.Expr, typ ir.Type) (ir.Expr, error) {
	switch typT := typ.(type) {
	case *ir.TensorType:
		return d.bind(ir.CallOp(ops.ZerosLike, value)), nil
	case *ir.TupleType:
		fields := make([]ir.Expr, len(typT.Fields))
		for i, fieldType := range typT.Fields {
			field := d.bind(&ir.TupleGetItem{Tuple: value, Index: i})
			zero, err := d.zeros(node, field, fieldType)
			if err != nil {
				return nil, err
			}
			fields[i] = zero
		}
		return d.bind(&ir.Tuple{Fields: fields}), nil
	}
	return nil, fmterr.Errorf(fmterr.NoGradientRule, node, "cannot build a zero gradient of type %s", typ)
}

// binding propagates the gradient of a variable to the variables its value depends on.
func (d *differ) binding(b ir.Binding) error {
	grad, ok := d.adj[b.Var]
	if !ok {
		return nil
	}
	switch valueT := b.Value.(type) {
	case *ir.Var:
		return d.accumulate(valueT, grad)
	case *ir.Constant, *ir.OpRef, *ir.GlobalVar:
		return nil
	case *ir.Tuple:
		return d.tuple(valueT, grad)
	case *ir.TupleGetItem:
		return d.tupleGetItem(valueT, grad)
	case *ir.Call:
		return d.call(b.Var, valueT, grad)
	}
	return fmterr.Errorf(fmterr.NoGradientRule, b.Value, "cannot differentiate %s", b.Value)
}

func (d *differ) tuple(tpl *ir.Tuple, grad ir.Expr) error {
	for i, field := range tpl.Fields {
		v, ok := field.(*ir.Var)
		if !ok {
			continue
		}
		typ, err := d.typeOf(v)
		if err != nil {
			return err
		}
		if !differentiable(typ) {
			continue
		}
		if err := d.accumulate(v, d.bind(&ir.TupleGetItem{Tuple: grad, Index: i})); err != nil {
			return err
		}
	}
	return nil
}

// tupleGetItem propagates the gradient of a field to its tuple.
// The other fields of the tuple get a zero gradient.
func (d *differ) tupleGetItem(item *ir.TupleGetItem, grad ir.Expr) error {
	tpl, ok := item.Tuple.(*ir.Var)
	if !ok {
		return nil
	}
	typ, err := d.typeOf(tpl)
	if err != nil {
		return err
	}
	tplType, ok := typ.(*ir.TupleType)
	if !ok {
		return fmterr.Internalf(item, "%s is not a tuple", tpl)
	}
	fields := make([]ir.Expr, len(tplType.Fields))
	for i, fieldType := range tplType.Fields {
		if i == item.Index {
			fields[i] = grad
			continue
		}
		field := d.bind(&ir.TupleGetItem{Tuple: tpl, Index: i})
		if fields[i], err = d.zeros(item, field, fieldType); err != nil {
			return err
		}
	}
	return d.accumulate(tpl, d.bind(&ir.Tuple{Fields: fields}))
}

func (d *differ) call(out *ir.Var, call *ir.Call, grad ir.Expr) error {
	op, ok := call.Op.(*ir.OpRef)
	if !ok {
		return fmterr.Errorf(fmterr.NoGradientRule, call, "cannot differentiate a call to %s", call.Op)
	}
	meta, err := d.reg.Lookup(op.Name)
	if err != nil {
		return fmterr.Wrap(fmterr.UnknownOperator, call, err)
	}
	outType, err := d.typeOf(out)
	if err != nil {
		return err
	}
	if meta.NonDifferentiable || !differentiable(outType) {
		return nil
	}
	if meta.Grad == nil {
		return fmterr.Errorf(fmterr.NoGradientRule, call, "operator %s has no gradient rule", op.Name)
	}
	argTypes := make([]ir.Type, len(call.Args))
	for i, arg := range call.Args {
		if argTypes[i], err = d.typeOf(arg); err != nil {
			return err
		}
	}
	grads, err := meta.Grad(&ops.GradArgs{
		Call:     call,
		Out:      out,
		DOut:     grad,
		ArgTypes: argTypes,
		OutType:  outType,
		Lets:     &d.lets,
	})
	if err != nil {
		return err
	}
	if len(grads) != len(call.Args) {
		return fmterr.Internalf(call, "gradient rule of %s returned %d gradients for %d arguments", op.Name, len(grads), len(call.Args))
	}
	for i, argGrad := range grads {
		if argGrad == nil {
			continue
		}
		arg, ok := call.Args[i].(*ir.Var)
		if !ok {
			continue
		}
		if err := d.accumulate(arg, argGrad); err != nil {
			return err
		}
	}
	return nil
}
