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

// Package devctx computes the device on which each expression of a module runs.
//
// Devices are resolved by unification: the arguments and the result of an
// operator call are on the same device, a parameter is on the device of the
// arguments given at all call sites, and tuples propagate devices field by
// field. device_copy is the only operator with arguments and result on
// different devices. Expressions without constraint are placed on the
// default device.
package devctx

import (
	"iter"

	"github.com/gx-org/graphc/base/ordered"
	"github.com/gx-org/graphc/build/fmterr"
	"github.com/gx-org/graphc/build/ir"
	"github.com/gx-org/graphc/build/ops"
	"github.com/gx-org/graphc/stdlib/device"
)

// Result maps expressions to devices.
type Result struct {
	devices *ordered.Map[ir.Expr, ir.Device]
}

// Device returns the device of an expression.
func (r *Result) Device(e ir.Expr) (ir.Device, bool) {
	return r.devices.Load(e)
}

// All iterates over all the expressions in the order they have been analyzed.
func (r *Result) All() iter.Seq2[ir.Expr, ir.Device] {
	return r.devices.Iter()
}

// Len returns the number of expressions with a device.
func (r *Result) Len() int {
	return r.devices.Size()
}

// ContextAnalysis returns the device of every expression of a module.
// Functions are analyzed in the order of the module.
func ContextAnalysis(mod *ir.Module, defaultDevice ir.Device) (*Result, error) {
	a := &analyzer{
		mod:     mod,
		exprs:   ordered.NewMap[ir.Expr, *domain](),
		vars:    make(map[*ir.Var]*domain),
		globals: make(map[string]*domain),
	}
	for name := range mod.Funcs() {
		if _, err := a.global(name, nil); err != nil {
			return nil, err
		}
	}
	res := &Result{devices: ordered.NewMap[ir.Expr, ir.Device]()}
	for e, d := range a.exprs.Iter() {
		res.devices.Store(e, d.resolve(defaultDevice))
	}
	return res, nil
}

// domain is a set of expressions that are on the same device.
// Domains are merged with a union-find structure.
type domain struct {
	parent *domain
	device *ir.Device
	// fields of a tuple. nil if the domain is not structured.
	fields []*domain
	// fn is set for function values.
	fn *funcDomain
}

type funcDomain struct {
	params []*domain
	result *domain
}

func newDomain() *domain {
	return &domain{}
}

func fixed(dev ir.Device) *domain {
	return &domain{device: &dev}
}

func (d *domain) root() *domain {
	for d.parent != nil {
		if d.parent.parent != nil {
			d.parent = d.parent.parent
		}
		d = d.parent
	}
	return d
}

// resolve returns the device of a domain, fixing it to the default device if unknown.
func (d *domain) resolve(defaultDevice ir.Device) ir.Device {
	r := d.root()
	if r.device != nil {
		return *r.device
	}
	switch {
	case len(r.fields) > 0:
		return r.fields[0].resolve(defaultDevice)
	case r.fn != nil:
		return r.fn.result.resolve(defaultDevice)
	}
	r.device = &defaultDevice
	return defaultDevice
}

// field returns the domain of the ith field of a tuple.
// Fields of an unstructured domain are on the device of the domain.
func (d *domain) field(i int) *domain {
	r := d.root()
	if i < len(r.fields) {
		return r.fields[i]
	}
	return r
}

// function returns the function structure of a domain, creating it if needed.
func (d *domain) function(numParams int) *funcDomain {
	r := d.root()
	if r.fn == nil {
		r.fn = &funcDomain{result: newDomain()}
		for range numParams {
			r.fn.params = append(r.fn.params, newDomain())
		}
	}
	return r.fn
}

type analyzer struct {
	mod     *ir.Module
	exprs   *ordered.Map[ir.Expr, *domain]
	vars    map[*ir.Var]*domain
	globals map[string]*domain
}

func unify(node ir.Expr, x, y *domain) error {
	rx, ry := x.root(), y.root()
	if rx == ry {
		return nil
	}
	if rx.device != nil && ry.device != nil && *rx.device != *ry.device {
		return fmterr.Errorf(fmterr.DeviceConflict, node, "cannot place %s on both %s and %s", node, *rx.device, *ry.device)
	}
	ry.parent = rx
	if rx.device == nil {
		rx.device = ry.device
	}
	switch {
	case rx.fields == nil:
		rx.fields = ry.fields
	case ry.fields != nil:
		if len(rx.fields) != len(ry.fields) {
			return fmterr.Internalf(node, "cannot unify tuples of %d and %d fields", len(rx.fields), len(ry.fields))
		}
		for i := range rx.fields {
			if err := unify(node, rx.fields[i], ry.fields[i]); err != nil {
				return err
			}
		}
	}
	switch {
	case rx.fn == nil:
		rx.fn = ry.fn
	case ry.fn != nil:
		if err := unifyFuncs(node, rx.fn, ry.fn); err != nil {
			return err
		}
	}
	return nil
}

func unifyFuncs(node ir.Expr, x, y *funcDomain) error {
	if len(x.params) != len(y.params) {
		return fmterr.Errorf(fmterr.Arity, node, "cannot unify functions with %d and %d parameters", len(x.params), len(y.params))
	}
	for i := range x.params {
		if err := unify(node, x.params[i], y.params[i]); err != nil {
			return err
		}
	}
	return unify(node, x.result, y.result)
}

// global returns the domain of a global function.
func (a *analyzer) global(name string, ref ir.Expr) (*domain, error) {
	if d, ok := a.globals[name]; ok {
		return d, nil
	}
	fn, ok := a.mod.Lookup(name)
	if !ok {
		return nil, fmterr.Errorf(fmterr.TypeInference, ref, "undefined global function @%s", name)
	}
	// The domain is registered before the body is analyzed to support recursion.
	d := newDomain()
	a.globals[name] = d
	fd, err := a.function(fn)
	if err != nil {
		return nil, err
	}
	if err := unify(fn, d, fd); err != nil {
		return nil, err
	}
	return d, nil
}

func (a *analyzer) param(v *ir.Var) *domain {
	d := newDomain()
	a.vars[v] = d
	a.exprs.Store(v, d)
	return d
}

func (a *analyzer) function(fn *ir.Function) (*domain, error) {
	if d, ok := a.exprs.Load(fn); ok {
		return d, nil
	}
	fd := &funcDomain{}
	for _, p := range fn.Params {
		fd.params = append(fd.params, a.param(p))
	}
	d := &domain{fn: fd}
	a.exprs.Store(fn, d)
	result, err := a.expr(fn.Body)
	if err != nil {
		return nil, err
	}
	fd.result = result
	return d, nil
}

func (a *analyzer) expr(e ir.Expr) (*domain, error) {
	if d, ok := a.exprs.Load(e); ok {
		return d, nil
	}
	d, err := a.analyze(e)
	if err != nil {
		return nil, err
	}
	a.exprs.Store(e, d)
	return d, nil
}

func (a *analyzer) analyze(e ir.Expr) (*domain, error) {
	switch eT := e.(type) {
	case *ir.Var:
		if d, ok := a.vars[eT]; ok {
			return d, nil
		}
		return nil, fmterr.Errorf(fmterr.TypeInference, e, "undefined variable %s", eT)
	case *ir.GlobalVar:
		return a.global(eT.Name, eT)
	case *ir.OpRef, *ir.Constant:
		return newDomain(), nil
	case *ir.Function:
		return a.function(eT)
	case *ir.Let:
		return a.let(eT)
	case *ir.Tuple:
		d := newDomain()
		for _, field := range eT.Fields {
			fd, err := a.expr(field)
			if err != nil {
				return nil, err
			}
			d.fields = append(d.fields, fd)
		}
		return d, nil
	case *ir.TupleGetItem:
		tpl, err := a.expr(eT.Tuple)
		if err != nil {
			return nil, err
		}
		return tpl.field(eT.Index), nil
	case *ir.If:
		if _, err := a.expr(eT.Cond); err != nil {
			return nil, err
		}
		then, err := a.expr(eT.Then)
		if err != nil {
			return nil, err
		}
		els, err := a.expr(eT.Else)
		if err != nil {
			return nil, err
		}
		if err := unify(e, then, els); err != nil {
			return nil, err
		}
		return then, nil
	case *ir.Call:
		return a.call(eT)
	}
	return nil, fmterr.Internalf(e, "expression type %T not supported", e)
}

func (a *analyzer) let(let *ir.Let) (*domain, error) {
	var e ir.Expr = let
	for {
		l, ok := e.(*ir.Let)
		if !ok {
			break
		}
		value, err := a.expr(l.Value)
		if err != nil {
			return nil, err
		}
		a.vars[l.Var] = value
		a.exprs.Store(l.Var, value)
		e = l.Body
	}
	return a.expr(e)
}

func (a *analyzer) call(call *ir.Call) (*domain, error) {
	args := make([]*domain, len(call.Args))
	for i, arg := range call.Args {
		var err error
		if args[i], err = a.expr(arg); err != nil {
			return nil, err
		}
	}
	if _, isOp := call.Op.(*ir.OpRef); isOp {
		return a.opCall(call, args)
	}
	callee, err := a.expr(call.Op)
	if err != nil {
		return nil, err
	}
	fd := callee.function(len(args))
	if len(fd.params) != len(args) {
		return nil, fmterr.Errorf(fmterr.Arity, call, "%s expects %d arguments but got %d", call.Op, len(fd.params), len(args))
	}
	for i, arg := range args {
		if err := unify(call.Args[i], fd.params[i], arg); err != nil {
			return nil, err
		}
	}
	return fd.result, nil
}

func (a *analyzer) opCall(call *ir.Call, args []*domain) (*domain, error) {
	if src, dst, ok := device.Devices(call); ok {
		if err := unify(call.Args[0], args[0], fixed(src)); err != nil {
			return nil, err
		}
		out := fixed(dst)
		for _, attr := range args[1:] {
			if err := unify(call, out, attr); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	out := newDomain()
	if ir.IsOpCall(call, ops.AllocStorage) && len(call.Args) > 2 {
		if c, ok := call.Args[2].(*ir.Constant); ok {
			if dv, ok := c.Value.(*ir.DeviceValue); ok {
				out = fixed(dv.Device)
			}
		}
	}
	for i, arg := range args {
		if err := unify(call.Args[i], out, arg); err != nil {
			return nil, err
		}
	}
	return out, nil
}
