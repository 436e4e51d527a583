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

package ir

import "slices"

// Rewriter rebuilds an expression bottom-up.
// Sub-expressions that have not changed keep their identity, and an
// expression shared by several parents is rewritten once.
type Rewriter struct {
	// Pre is called before the children of an expression are visited.
	// If it returns a non-nil expression, that expression replaces the
	// original one and the children are not visited.
	Pre func(Expr) (Expr, error)

	// Post is called after the children of an expression have been rewritten.
	// rebuilt is the same pointer as orig if none of the children changed.
	Post func(orig, rebuilt Expr) (Expr, error)

	// Binder maps variables. It is called once per variable, at its
	// definition or at its first reference, and its result replaces the
	// variable everywhere.
	Binder func(*Var) *Var

	memo  map[Expr]Expr
	binds map[*Var]*Var
}

// Rewrite an expression.
func (r *Rewriter) Rewrite(e Expr) (Expr, error) {
	if r.memo == nil {
		r.memo = make(map[Expr]Expr)
	}
	if done, ok := r.memo[e]; ok {
		return done, nil
	}
	if r.Pre != nil {
		out, err := r.Pre(e)
		if err != nil {
			return nil, err
		}
		if out != nil {
			r.memo[e] = out
			return out, nil
		}
	}
	rebuilt, err := r.rebuild(e)
	if err != nil {
		return nil, err
	}
	out := rebuilt
	if r.Post != nil {
		if out, err = r.Post(e, rebuilt); err != nil {
			return nil, err
		}
	}
	r.memo[e] = out
	return out, nil
}

func (r *Rewriter) bind(v *Var) *Var {
	if r.Binder == nil {
		return v
	}
	if r.binds == nil {
		r.binds = make(map[*Var]*Var)
	}
	if nv, ok := r.binds[v]; ok {
		return nv
	}
	nv := r.Binder(v)
	r.binds[v] = nv
	return nv
}

func (r *Rewriter) rewriteAll(es []Expr) ([]Expr, bool, error) {
	changed := false
	out := make([]Expr, len(es))
	for i, e := range es {
		ne, err := r.Rewrite(e)
		if err != nil {
			return nil, false, err
		}
		out[i] = ne
		changed = changed || ne != e
	}
	return out, changed, nil
}

func (r *Rewriter) rebuild(e Expr) (Expr, error) {
	switch eT := e.(type) {
	case *Var:
		return r.bind(eT), nil
	case *GlobalVar, *OpRef, *Constant:
		return e, nil
	case *Call:
		op, err := r.Rewrite(eT.Op)
		if err != nil {
			return nil, err
		}
		args, changed, err := r.rewriteAll(eT.Args)
		if err != nil {
			return nil, err
		}
		if !changed && op == eT.Op {
			return e, nil
		}
		return &Call{Op: op, Args: args}, nil
	case *Function:
		params := make([]*Var, len(eT.Params))
		changed := false
		for i, p := range eT.Params {
			params[i] = r.bind(p)
			changed = changed || params[i] != p
		}
		body, err := r.Rewrite(eT.Body)
		if err != nil {
			return nil, err
		}
		if !changed && body == eT.Body {
			for _, c := range eT.Captures {
				if r.bind(c) != c {
					changed = true
				}
			}
			if !changed {
				return e, nil
			}
		}
		fn := &Function{Params: params, Body: body, Attrs: eT.Attrs}
		if eT.IsClosure() {
			fn.Captures = FreeVars(fn)
		}
		return fn, nil
	case *Let:
		v := r.bind(eT.Var)
		value, err := r.Rewrite(eT.Value)
		if err != nil {
			return nil, err
		}
		body, err := r.Rewrite(eT.Body)
		if err != nil {
			return nil, err
		}
		if v == eT.Var && value == eT.Value && body == eT.Body {
			return e, nil
		}
		return &Let{Var: v, Value: value, Body: body}, nil
	case *Tuple:
		fields, changed, err := r.rewriteAll(eT.Fields)
		if err != nil {
			return nil, err
		}
		if !changed {
			return e, nil
		}
		return &Tuple{Fields: fields}, nil
	case *TupleGetItem:
		tpl, err := r.Rewrite(eT.Tuple)
		if err != nil {
			return nil, err
		}
		if tpl == eT.Tuple {
			return e, nil
		}
		return &TupleGetItem{Tuple: tpl, Index: eT.Index}, nil
	case *If:
		parts, changed, err := r.rewriteAll([]Expr{eT.Cond, eT.Then, eT.Else})
		if err != nil {
			return nil, err
		}
		if !changed {
			return e, nil
		}
		return &If{Cond: parts[0], Then: parts[1], Else: parts[2]}, nil
	}
	return e, nil
}

// Walk traverses an expression in pre-order. Children are not visited if f returns false.
// Binders (Let variables and function parameters) are not visited.
// A sub-expression shared by several parents is visited once per parent.
func Walk(e Expr, f func(Expr) bool) {
	if !f(e) {
		return
	}
	switch eT := e.(type) {
	case *Call:
		Walk(eT.Op, f)
		for _, arg := range eT.Args {
			Walk(arg, f)
		}
	case *Function:
		Walk(eT.Body, f)
	case *Let:
		Walk(eT.Value, f)
		Walk(eT.Body, f)
	case *Tuple:
		for _, field := range eT.Fields {
			Walk(field, f)
		}
	case *TupleGetItem:
		Walk(eT.Tuple, f)
	case *If:
		Walk(eT.Cond, f)
		Walk(eT.Then, f)
		Walk(eT.Else, f)
	}
}

// FreeVars returns the variables referenced by an expression but not defined
// in it, in order of first reference.
func FreeVars(e Expr) []*Var {
	fv := freeVars{
		bound: make(map[*Var]int),
		seen:  make(map[*Var]bool),
	}
	fv.visit(e)
	return fv.vars
}

type freeVars struct {
	bound map[*Var]int
	seen  map[*Var]bool
	vars  []*Var
}

func (fv *freeVars) visit(e Expr) {
	switch eT := e.(type) {
	case *Var:
		if fv.bound[eT] > 0 || fv.seen[eT] {
			return
		}
		fv.seen[eT] = true
		fv.vars = append(fv.vars, eT)
	case *Call:
		fv.visit(eT.Op)
		for _, arg := range eT.Args {
			fv.visit(arg)
		}
	case *Function:
		for _, p := range eT.Params {
			fv.bound[p]++
		}
		fv.visit(eT.Body)
		for _, p := range eT.Params {
			fv.bound[p]--
		}
	case *Let:
		fv.visit(eT.Value)
		fv.bound[eT.Var]++
		fv.visit(eT.Body)
		fv.bound[eT.Var]--
	case *Tuple:
		for _, field := range eT.Fields {
			fv.visit(field)
		}
	case *TupleGetItem:
		fv.visit(eT.Tuple)
	case *If:
		fv.visit(eT.Cond)
		fv.visit(eT.Then)
		fv.visit(eT.Else)
	}
}

// BoundVars returns the variables defined in an expression
// (function parameters and let variables) in definition order.
func BoundVars(e Expr) []*Var {
	var vars []*Var
	Walk(e, func(e Expr) bool {
		switch eT := e.(type) {
		case *Function:
			vars = append(vars, eT.Params...)
		case *Let:
			vars = append(vars, eT.Var)
		}
		return true
	})
	return vars
}

// Substitute replaces references to variables.
// Variables at their definition are not replaced.
func Substitute(e Expr, subst map[*Var]Expr) Expr {
	if len(subst) == 0 {
		return e
	}
	r := Rewriter{
		Post: func(orig, rebuilt Expr) (Expr, error) {
			v, ok := orig.(*Var)
			if !ok {
				return rebuilt, nil
			}
			if with, ok := subst[v]; ok {
				return with, nil
			}
			return rebuilt, nil
		},
	}
	// The rewriter only returns the errors of Pre and Post.
	out, _ := r.Rewrite(e)
	return out
}

// CountRefs returns the number of references to each variable in an expression.
func CountRefs(e Expr) map[*Var]int {
	refs := make(map[*Var]int)
	Walk(e, func(e Expr) bool {
		if v, ok := e.(*Var); ok {
			refs[v]++
		}
		return true
	})
	return refs
}

// Binding is a variable bound to a value by a Let.
type Binding struct {
	Var   *Var
	Value Expr
}

// Bindings flattens a chain of Let expressions.
// It returns the bindings in program order and the body of the innermost Let.
func Bindings(e Expr) ([]Binding, Expr) {
	var bindings []Binding
	for {
		let, ok := e.(*Let)
		if !ok {
			return bindings, e
		}
		bindings = append(bindings, Binding{Var: let.Var, Value: let.Value})
		e = let.Body
	}
}

// Rebuild builds a chain of Let expressions from bindings and a result.
func Rebuild(bindings []Binding, result Expr) Expr {
	body := result
	for _, b := range slices.Backward(bindings) {
		body = &Let{Var: b.Var, Value: b.Value, Body: body}
	}
	return body
}

// LetList accumulates bindings to build a chain of Let expressions.
type LetList struct {
	bindings []Binding
}

// Push binds a value to a new variable and returns the variable.
func (l *LetList) Push(name string, value Expr) *Var {
	return l.PushVar(NewVar(name, nil), value)
}

// PushVar binds a value to an existing variable.
func (l *LetList) PushVar(v *Var, value Expr) *Var {
	l.bindings = append(l.bindings, Binding{Var: v, Value: value})
	return v
}

// Bindings returns the bindings accumulated so far.
func (l *LetList) Bindings() []Binding {
	return l.bindings
}

// Len returns the number of bindings.
func (l *LetList) Len() int {
	return len(l.bindings)
}

// Wrap returns the bindings wrapped around a body.
func (l *LetList) Wrap(body Expr) Expr {
	return Rebuild(l.bindings, body)
}
