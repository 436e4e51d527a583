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

// Package lambdalift moves the function literals of a program to global functions.
package lambdalift

import (
	"github.com/gx-org/graphc/base/uname"
	"github.com/gx-org/graphc/build/fmterr"
	"github.com/gx-org/graphc/build/ir"
	"github.com/gx-org/graphc/build/ops"
	"go.uber.org/multierr"
)

// LiftedPrefix is the prefix of the names of lifted functions.
const LiftedPrefix = "lifted"

// LambdaLift replaces every function literal by a global function.
// The parameters of a lifted function are the parameters of the literal
// followed by the variables it captures. A literal without captures becomes
// a reference to the global function and a literal with captures becomes
// make_closure(@lifted, (captures...)). Calls to a variable bound to
// make_closure pass the captures explicitly.
//
// Literals are lifted innermost first. Captured variables without type
// annotation are typed from the types of the module.
// The returned module has no types.
func LambdaLift(mod *ir.Module) (*ir.Module, error) {
	l := &lifter{
		mod:   mod,
		names: uname.New(),
		funcs: make(map[string]*ir.Function),
	}
	for _, name := range mod.Names() {
		l.names.Register(name)
	}
	l.root = l.names.Root(LiftedPrefix)
	out := mod.WithTypes(nil)
	for name, fn := range mod.Funcs() {
		lifted, err := l.function(fn)
		if err != nil {
			return nil, err
		}
		out.Add(name, lifted)
	}
	for _, name := range l.order {
		out.Add(name, l.funcs[name])
	}
	for name, fn := range out.Funcs() {
		out.Add(name, directCalls(fn))
	}
	return out, nil
}

type lifter struct {
	mod   *ir.Module
	names *uname.Unique
	root  *uname.Root

	funcs map[string]*ir.Function
	order []string
}

func (l *lifter) function(fn *ir.Function) (*ir.Function, error) {
	r := ir.Rewriter{Post: l.lift}
	body, err := r.Rewrite(fn.Body)
	if err != nil {
		return nil, err
	}
	if body == fn.Body {
		return fn, nil
	}
	return fn.WithBody(body), nil
}

// lift replaces a function literal, whose nested literals have already been
// lifted, by a reference to a new global function.
func (l *lifter) lift(_, rebuilt ir.Expr) (ir.Expr, error) {
	lit, ok := rebuilt.(*ir.Function)
	if !ok {
		return rebuilt, nil
	}
	captures := ir.FreeVars(lit)
	params := append([]*ir.Var{}, lit.Params...)
	subst := make(map[*ir.Var]ir.Expr, len(captures))
	fields := make([]ir.Expr, len(captures))
	for i, c := range captures {
		typ := c.Annot
		if typ == nil {
			var ok bool
			if typ, ok = l.mod.TypeOf(c); !ok {
				return nil, fmterr.Internalf(c, "captured variable %s has no type", c)
			}
		}
		param := ir.NewVar(c.Name, typ)
		params = append(params, param)
		subst[c] = param
		fields[i] = c
	}
	name := l.root.Next()
	l.funcs[name] = &ir.Function{
		Params: params,
		Body:   ir.Substitute(lit.Body, subst),
		Attrs:  lit.Attrs,
	}
	l.order = append(l.order, name)
	if len(captures) == 0 {
		return ir.Global(name), nil
	}
	return ir.CallOp(ops.MakeClosure, ir.Global(name), &ir.Tuple{Fields: fields}), nil
}

// closureOf returns the global function and the captures of a make_closure call.
func closureOf(e ir.Expr) (*ir.GlobalVar, *ir.Tuple, bool) {
	if !ir.IsOpCall(e, ops.MakeClosure) {
		return nil, nil, false
	}
	call := e.(*ir.Call)
	g, ok := call.Args[0].(*ir.GlobalVar)
	if !ok {
		return nil, nil, false
	}
	env, ok := call.Args[1].(*ir.Tuple)
	if !ok {
		return nil, nil, false
	}
	return g, env, true
}

// directCalls rewrites calls to variables bound to make_closure into calls
// to global functions. Closures that are not used anymore are removed.
func directCalls(fn *ir.Function) *ir.Function {
	closures := make(map[*ir.Var]ir.Expr)
	ir.Walk(fn.Body, func(e ir.Expr) bool {
		if let, ok := e.(*ir.Let); ok {
			if _, _, ok := closureOf(let.Value); ok {
				closures[let.Var] = let.Value
			}
		}
		return true
	})
	if len(closures) == 0 {
		return fn
	}
	calls := ir.Rewriter{Post: func(_, rebuilt ir.Expr) (ir.Expr, error) {
		call, ok := rebuilt.(*ir.Call)
		if !ok {
			return rebuilt, nil
		}
		v, ok := call.Op.(*ir.Var)
		if !ok {
			return rebuilt, nil
		}
		closure, ok := closures[v]
		if !ok {
			return rebuilt, nil
		}
		g, env, _ := closureOf(closure)
		args := append(append([]ir.Expr{}, call.Args...), env.Fields...)
		return &ir.Call{Op: g, Args: args}, nil
	}}
	body, _ := calls.Rewrite(fn.Body)
	refs := ir.CountRefs(body)
	unused := ir.Rewriter{Post: func(_, rebuilt ir.Expr) (ir.Expr, error) {
		let, ok := rebuilt.(*ir.Let)
		if !ok {
			return rebuilt, nil
		}
		if _, isClosure := closures[let.Var]; isClosure && refs[let.Var] == 0 {
			return let.Body, nil
		}
		return rebuilt, nil
	}}
	body, _ = unused.Rewrite(body)
	if body == fn.Body {
		return fn
	}
	return fn.WithBody(body)
}

// Check returns an error for each function of a module that is not closed.
func Check(mod *ir.Module) error {
	var errs []error
	for name, fn := range mod.Funcs() {
		if len(fn.Captures) > 0 {
			errs = append(errs, fmterr.Internalf(fn, "global function @%s captures %v", name, fn.Captures))
			continue
		}
		if free := ir.FreeVars(fn); len(free) > 0 {
			errs = append(errs, fmterr.Internalf(fn, "global function @%s references undefined variables %v", name, free))
			continue
		}
		var lit *ir.Function
		ir.Walk(fn.Body, func(e ir.Expr) bool {
			if f, ok := e.(*ir.Function); ok && lit == nil && len(ir.FreeVars(f)) > 0 {
				lit = f
			}
			return lit == nil
		})
		if lit != nil {
			errs = append(errs, fmterr.Internalf(lit, "function @%s contains a closure", name))
		}
	}
	return multierr.Combine(errs...)
}
