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

// Package foldconst binds parameters to values and evaluates at compile time
// the parts of a program that only depend on constants.
package foldconst

import (
	"github.com/gx-org/graphc/build/fmterr"
	"github.com/gx-org/graphc/build/ir"
	"github.com/gx-org/graphc/build/ops"
	"github.com/gx-org/graphc/internal/funcpass"
	"github.com/pkg/errors"
)

// BindParam replaces the references to the parameters of a function by constants.
// values[i] is bound to the ith parameter. A nil value leaves the parameter free.
// The parameter list of the function is unchanged.
func BindParam(fn *ir.Function, values []ir.Value) (*ir.Function, error) {
	if len(values) > len(fn.Params) {
		return nil, errors.Errorf("cannot bind %d values to a function with %d parameters", len(values), len(fn.Params))
	}
	subst := make(map[*ir.Var]ir.Expr)
	for i, value := range values {
		if value == nil {
			continue
		}
		param := fn.Params[i]
		if param.Annot != nil && !param.Annot.Equal(value.Type()) {
			return nil, fmterr.Errorf(fmterr.TypeInference, param, "cannot bind a value of type %s to parameter %s of type %s", value.Type(), param, param.Annot)
		}
		subst[param] = ir.Const(value)
	}
	return fn.WithBody(ir.Substitute(fn.Body, subst)), nil
}

// BindEntry binds values to the parameters of the entry function of a module.
func BindEntry(mod *ir.Module, values []ir.Value) (*ir.Module, error) {
	fn := mod.Main()
	if fn == nil {
		return nil, errors.Errorf("module has no entry function %q", mod.Entry)
	}
	bound, err := BindParam(fn, values)
	if err != nil {
		return nil, err
	}
	out := mod.WithTypes(nil)
	out.Add(mod.Entry, bound)
	return out, nil
}

// IsConstant returns true if an expression is a constant or a tuple of constants.
func IsConstant(e ir.Expr) bool {
	switch eT := e.(type) {
	case *ir.Constant:
		return true
	case *ir.Tuple:
		for _, field := range eT.Fields {
			if !IsConstant(field) {
				return false
			}
		}
		return true
	}
	return false
}

// FoldConstant replaces calls to pure operators with constant arguments by
// their result. Bindings of folded values are removed.
// Operators with side effects are never evaluated.
func FoldConstant(reg *ops.Registry, mod *ir.Module, opts ...funcpass.Option) (*ir.Module, error) {
	return funcpass.Run(mod, func(_ string, fn *ir.Function) (*ir.Function, error) {
		return Function(reg, fn)
	}, opts...)
}

// Function folds the constants of a function.
func Function(reg *ops.Registry, fn *ir.Function) (*ir.Function, error) {
	f := &folder{reg: reg, subst: make(map[*ir.Var]ir.Expr)}
	body, err := f.block(fn.Body)
	if err != nil {
		return nil, err
	}
	return fn.WithBody(body), nil
}

type folder struct {
	reg   *ops.Registry
	subst map[*ir.Var]ir.Expr
}

func (f *folder) block(e ir.Expr) (ir.Expr, error) {
	var kept ir.LetList
	result, err := f.chain(&kept, e)
	if err != nil {
		return nil, err
	}
	return kept.Wrap(result), nil
}

// chain folds the bindings of a let-chain, appends the bindings that
// remain to kept, and returns the folded result.
func (f *folder) chain(kept *ir.LetList, e ir.Expr) (ir.Expr, error) {
	bindings, result := ir.Bindings(e)
	for _, b := range bindings {
		value, err := f.expr(kept, b.Value)
		if err != nil {
			return nil, err
		}
		if ir.IsAtomic(value) {
			f.subst[b.Var] = value
			continue
		}
		kept.PushVar(b.Var, value)
	}
	return f.expr(kept, result)
}

// expr folds an expression. Branches of conditionals with a constant
// condition are spliced into kept.
func (f *folder) expr(kept *ir.LetList, e ir.Expr) (ir.Expr, error) {
	switch eT := e.(type) {
	case *ir.Let:
		return f.chain(kept, eT)
	case *ir.Function:
		body, err := f.block(eT.Body)
		if err != nil {
			return nil, err
		}
		return eT.WithBody(body), nil
	case *ir.If:
		cond := ir.Substitute(eT.Cond, f.subst)
		if c, ok := cond.(*ir.Constant); ok {
			return f.branch(kept, eT, c)
		}
		then, err := f.block(eT.Then)
		if err != nil {
			return nil, err
		}
		els, err := f.block(eT.Else)
		if err != nil {
			return nil, err
		}
		return &ir.If{Cond: cond, Then: then, Else: els}, nil
	case *ir.Tuple:
		fields := make([]ir.Expr, len(eT.Fields))
		for i, field := range eT.Fields {
			var err error
			if fields[i], err = f.expr(kept, field); err != nil {
				return nil, err
			}
		}
		return foldTuple(&ir.Tuple{Fields: fields}), nil
	case *ir.TupleGetItem:
		tpl, err := f.expr(kept, eT.Tuple)
		if err != nil {
			return nil, err
		}
		if c, ok := tpl.(*ir.Constant); ok {
			if tv, ok := c.Value.(*ir.TupleValue); ok && eT.Index >= 0 && eT.Index < len(tv.Fields) {
				return ir.Const(tv.Fields[eT.Index]), nil
			}
		}
		return &ir.TupleGetItem{Tuple: tpl, Index: eT.Index}, nil
	case *ir.Call:
		return f.call(kept, eT)
	}
	return ir.Substitute(e, f.subst), nil
}

func (f *folder) branch(kept *ir.LetList, e *ir.If, cond *ir.Constant) (ir.Expr, error) {
	tv, ok := cond.Value.(*ir.TensorValue)
	if !ok {
		return nil, fmterr.Errorf(fmterr.TypeInference, e, "condition %s is not a tensor", cond)
	}
	atom, err := tv.Array.ToAtom()
	if err != nil {
		return nil, fmterr.Wrap(fmterr.TypeInference, e, err)
	}
	taken := e.Else
	if truth(atom) {
		taken = e.Then
	}
	return f.chain(kept, taken)
}

func truth(atom any) bool {
	switch v := atom.(type) {
	case bool:
		return v
	case float32:
		return v != 0
	case float64:
		return v != 0
	case int32:
		return v != 0
	case int64:
		return v != 0
	}
	return false
}

func (f *folder) call(kept *ir.LetList, call *ir.Call) (ir.Expr, error) {
	callee, err := f.expr(kept, call.Op)
	if err != nil {
		return nil, err
	}
	args := make([]ir.Expr, len(call.Args))
	for i, arg := range call.Args {
		if args[i], err = f.expr(kept, arg); err != nil {
			return nil, err
		}
	}
	folded := &ir.Call{Op: callee, Args: args}
	op, ok := callee.(*ir.OpRef)
	if !ok {
		return folded, nil
	}
	meta, err := f.reg.Lookup(op.Name)
	if err != nil {
		return nil, fmterr.Wrap(fmterr.UnknownOperator, call, err)
	}
	if !meta.Pure || meta.Eval == nil {
		return folded, nil
	}
	values := make([]ir.Value, len(args))
	for i, arg := range args {
		c, ok := arg.(*ir.Constant)
		if !ok {
			return folded, nil
		}
		values[i] = c.Value
	}
	if err := meta.CheckArity(call, len(values)); err != nil {
		return nil, err
	}
	out, err := meta.Eval(values)
	if err != nil {
		return nil, fmterr.Wrap(fmterr.TypeInference, call, err)
	}
	return ir.Const(out), nil
}

// foldTuple returns a constant if all the fields of a tuple are constants.
func foldTuple(tpl *ir.Tuple) ir.Expr {
	values := make([]ir.Value, len(tpl.Fields))
	for i, field := range tpl.Fields {
		c, ok := field.(*ir.Constant)
		if !ok {
			return tpl
		}
		values[i] = c.Value
	}
	return ir.Const(&ir.TupleValue{Fields: values})
}
