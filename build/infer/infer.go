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

// Package infer computes the type of every expression of a module.
//
// Types are stored in a side-table keyed by expression identity and attached
// to a copy of the module. Passes that rebuild expressions run the inference
// again instead of updating the table.
package infer

import (
	"github.com/gx-org/graphc/build/fmterr"
	"github.com/gx-org/graphc/build/ir"
	"github.com/gx-org/graphc/build/ops"
)

// OpTypeName is the name of the type of an operator referenced as a value.
const OpTypeName = "op"

type inferer struct {
	reg   *ops.Registry
	mod   *ir.Module
	types *ir.TypeMap

	globals    map[string]*ir.FuncType
	inProgress map[string]bool
}

// InferType returns a copy of a module with the type of all its expressions.
// Function parameters need a type annotation.
func InferType(reg *ops.Registry, mod *ir.Module) (*ir.Module, error) {
	inf := &inferer{
		reg:        reg,
		mod:        mod,
		types:      ir.NewTypeMap(),
		globals:    make(map[string]*ir.FuncType),
		inProgress: make(map[string]bool),
	}
	for name := range mod.Funcs() {
		if _, err := inf.global(name, nil); err != nil {
			return nil, err
		}
	}
	return mod.WithTypes(inf.types), nil
}

// FuncType returns the type of a global function of a typed module.
func FuncType(mod *ir.Module, name string) (*ir.FuncType, bool) {
	fn, ok := mod.Lookup(name)
	if !ok {
		return nil, false
	}
	typ, ok := mod.TypeOf(fn)
	if !ok {
		return nil, false
	}
	ft, ok := typ.(*ir.FuncType)
	return ft, ok
}

// global returns the type of a global function.
// ref is the expression referencing the function, nil for the module itself.
func (inf *inferer) global(name string, ref ir.Expr) (*ir.FuncType, error) {
	if ft, ok := inf.globals[name]; ok {
		return ft, nil
	}
	node := ref
	if inf.inProgress[name] {
		return nil, fmterr.Errorf(fmterr.TypeInference, node, "cannot infer the type of recursive function @%s", name)
	}
	fn, ok := inf.mod.Lookup(name)
	if !ok {
		return nil, fmterr.Errorf(fmterr.TypeInference, node, "undefined global function @%s", name)
	}
	inf.inProgress[name] = true
	defer delete(inf.inProgress, name)
	typ, err := inf.expr(fn)
	if err != nil {
		return nil, err
	}
	ft := typ.(*ir.FuncType)
	inf.globals[name] = ft
	return ft, nil
}

func (inf *inferer) expr(e ir.Expr) (ir.Type, error) {
	if typ, ok := inf.types.Get(e); ok {
		return typ, nil
	}
	typ, err := inf.infer(e)
	if err != nil {
		return nil, err
	}
	inf.types.Set(e, typ)
	return typ, nil
}

func (inf *inferer) exprs(es []ir.Expr) ([]ir.Type, error) {
	types := make([]ir.Type, len(es))
	for i, e := range es {
		typ, err := inf.expr(e)
		if err != nil {
			return nil, err
		}
		types[i] = typ
	}
	return types, nil
}

func (inf *inferer) infer(e ir.Expr) (ir.Type, error) {
	switch eT := e.(type) {
	case *ir.Var:
		if eT.Annot != nil {
			return eT.Annot, nil
		}
		return nil, fmterr.Errorf(fmterr.TypeInference, e, "undefined variable %s", eT)
	case *ir.GlobalVar:
		return inf.global(eT.Name, eT)
	case *ir.OpRef:
		if _, err := inf.reg.Lookup(eT.Name); err != nil {
			return nil, fmterr.Wrap(fmterr.UnknownOperator, e, err)
		}
		return ir.Opaque(OpTypeName), nil
	case *ir.Constant:
		return eT.Value.Type(), nil
	case *ir.Call:
		return inf.call(eT)
	case *ir.Function:
		return inf.function(eT)
	case *ir.Let:
		return inf.let(eT)
	case *ir.Tuple:
		fields, err := inf.exprs(eT.Fields)
		if err != nil {
			return nil, err
		}
		return &ir.TupleType{Fields: fields}, nil
	case *ir.TupleGetItem:
		return inf.tupleGetItem(eT)
	case *ir.If:
		return inf.ifExpr(eT)
	}
	return nil, fmterr.Internalf(e, "expression type %T not supported", e)
}

func (inf *inferer) call(call *ir.Call) (ir.Type, error) {
	args, err := inf.exprs(call.Args)
	if err != nil {
		return nil, err
	}
	if op, ok := call.Op.(*ir.OpRef); ok {
		return inf.opCall(call, op, args)
	}
	callee, err := inf.expr(call.Op)
	if err != nil {
		return nil, err
	}
	ft, ok := callee.(*ir.FuncType)
	if !ok {
		return nil, fmterr.Errorf(fmterr.TypeInference, call, "cannot call %s of type %s", call.Op, callee)
	}
	if len(ft.Params) != len(args) {
		return nil, fmterr.Errorf(fmterr.Arity, call, "%s expects %d arguments but got %d", call.Op, len(ft.Params), len(args))
	}
	for i, param := range ft.Params {
		if !param.Equal(args[i]) {
			return nil, fmterr.Errorf(fmterr.TypeInference, call, "cannot use %s as argument %d of type %s", args[i], i, param)
		}
	}
	return ft.Result, nil
}

func (inf *inferer) opCall(call *ir.Call, op *ir.OpRef, args []ir.Type) (ir.Type, error) {
	meta, err := inf.reg.Lookup(op.Name)
	if err != nil {
		return nil, fmterr.Wrap(fmterr.UnknownOperator, call, err)
	}
	inf.types.Set(op, ir.Opaque(OpTypeName))
	if err := meta.CheckArity(call, len(args)); err != nil {
		return nil, err
	}
	if meta.Infer == nil {
		return nil, fmterr.Errorf(fmterr.UnknownOperatorShape, call, "operator %s has no shape rule", op.Name)
	}
	values := make([]ir.Value, len(call.Args))
	for i, arg := range call.Args {
		if c, ok := arg.(*ir.Constant); ok {
			values[i] = c.Value
		}
	}
	return meta.Infer(ops.ShapeArgs{Call: call, Types: args, Values: values})
}

func (inf *inferer) function(fn *ir.Function) (ir.Type, error) {
	params := make([]ir.Type, len(fn.Params))
	for i, param := range fn.Params {
		if param.Annot == nil {
			return nil, fmterr.Errorf(fmterr.TypeInference, fn, "parameter %s has no type", param)
		}
		params[i] = param.Annot
		inf.types.Set(param, param.Annot)
	}
	for _, capture := range fn.Captures {
		if _, err := inf.expr(capture); err != nil {
			return nil, err
		}
	}
	result, err := inf.expr(fn.Body)
	if err != nil {
		return nil, err
	}
	return &ir.FuncType{Params: params, Result: result}, nil
}

func (inf *inferer) let(let *ir.Let) (ir.Type, error) {
	// Let chains are iterated to avoid a deep recursion on long programs.
	var chain []*ir.Let
	var body ir.Expr = let
	for {
		l, ok := body.(*ir.Let)
		if !ok {
			break
		}
		if _, done := inf.types.Get(l); done {
			break
		}
		value, err := inf.expr(l.Value)
		if err != nil {
			return nil, err
		}
		if err := inf.bind(l.Var, value); err != nil {
			return nil, err
		}
		chain = append(chain, l)
		body = l.Body
	}
	result, err := inf.expr(body)
	if err != nil {
		return nil, err
	}
	for _, l := range chain[1:] {
		inf.types.Set(l, result)
	}
	return result, nil
}

func (inf *inferer) bind(v *ir.Var, value ir.Type) error {
	if v.Annot != nil && !v.Annot.Equal(value) {
		return fmterr.Errorf(fmterr.TypeInference, v, "cannot assign a value of type %s to %s of type %s", value, v, v.Annot)
	}
	inf.types.Set(v, value)
	return nil
}

func (inf *inferer) tupleGetItem(e *ir.TupleGetItem) (ir.Type, error) {
	typ, err := inf.expr(e.Tuple)
	if err != nil {
		return nil, err
	}
	tt, ok := typ.(*ir.TupleType)
	if !ok {
		return nil, fmterr.Errorf(fmterr.TypeInference, e, "cannot project %s of type %s", e.Tuple, typ)
	}
	if e.Index < 0 || e.Index >= len(tt.Fields) {
		return nil, fmterr.Errorf(fmterr.Arity, e, "index %d out of range for tuple %s", e.Index, tt)
	}
	return tt.Fields[e.Index], nil
}

func (inf *inferer) ifExpr(e *ir.If) (ir.Type, error) {
	cond, err := inf.expr(e.Cond)
	if err != nil {
		return nil, err
	}
	if ct, ok := cond.(*ir.TensorType); !ok || ct.Rank() != 0 {
		return nil, fmterr.Errorf(fmterr.TypeInference, e, "condition %s is not a scalar: got %s", e.Cond, cond)
	}
	thenT, err := inf.expr(e.Then)
	if err != nil {
		return nil, err
	}
	elseT, err := inf.expr(e.Else)
	if err != nil {
		return nil, err
	}
	if !thenT.Equal(elseT) {
		return nil, fmterr.Errorf(fmterr.TypeInference, e, "branches have different types %s and %s", thenT, elseT)
	}
	return thenT, nil
}
