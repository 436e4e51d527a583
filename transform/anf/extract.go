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

// Package anf converts function bodies between the nested form, where
// call arguments can be any expression, and A-normal form (ANF), where every
// intermediate result is bound by a let to a variable.
package anf

import (
	"github.com/gx-org/graphc/build/ir"
	"github.com/gx-org/graphc/internal/funcpass"
)

// ExtractBinding converts the body of all the functions of a module to ANF.
// A sub-expression shared by several parents is bound once per scope.
// Function bodies and branches of conditionals are separate scopes.
func ExtractBinding(mod *ir.Module, opts ...funcpass.Option) (*ir.Module, error) {
	return funcpass.Run(mod, func(_ string, fn *ir.Function) (*ir.Function, error) {
		return Function(fn), nil
	}, opts...)
}

// Function returns a function with a body in ANF.
func Function(fn *ir.Function) *ir.Function {
	return (*scope)(nil).function(fn)
}

// Expr converts an expression to ANF.
func Expr(e ir.Expr) ir.Expr {
	return newScope(nil).block(e)
}

type scope struct {
	parent *scope
	lets   ir.LetList
	memo   map[ir.Expr]ir.Expr
}

func newScope(parent *scope) *scope {
	return &scope{parent: parent, memo: make(map[ir.Expr]ir.Expr)}
}

func (s *scope) lookup(e ir.Expr) (ir.Expr, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if v, ok := sc.memo[e]; ok {
			return v, true
		}
	}
	return nil, false
}

// block converts an expression evaluated in a new scope.
func (s *scope) block(e ir.Expr) ir.Expr {
	sub := newScope(s)
	result := sub.atom(e)
	return sub.lets.Wrap(result)
}

// function converts the body of a function.
// Bindings of the enclosing scopes are not reused in the body
// so that the captures of the function do not change.
func (s *scope) function(fn *ir.Function) *ir.Function {
	return fn.WithBody(newScope(nil).block(fn.Body))
}

// atom returns an atomic expression computing e, binding what needs to be.
func (s *scope) atom(e ir.Expr) ir.Expr {
	if ir.IsAtomic(e) {
		return e
	}
	if v, ok := s.lookup(e); ok {
		return v
	}
	if let, ok := e.(*ir.Let); ok {
		s.bindLet(let)
		return s.atom(let.Body)
	}
	v := s.lets.Push("x", s.compound(e))
	s.memo[e] = v
	return v
}

// bindLet adds the bindings of a let-chain to the scope.
func (s *scope) bindLet(let *ir.Let) {
	s.lets.PushVar(let.Var, s.compound(let.Value))
	if !ir.IsAtomic(let.Value) {
		s.memo[let.Value] = let.Var
	}
}

// compound returns an expression computing e where all the sub-expressions are atomic.
func (s *scope) compound(e ir.Expr) ir.Expr {
	switch eT := e.(type) {
	case *ir.Let:
		s.bindLet(eT)
		return s.compound(eT.Body)
	case *ir.Call:
		op := eT.Op
		if !ir.IsAtomic(op) {
			op = s.atom(op)
		}
		return &ir.Call{Op: op, Args: s.atoms(eT.Args)}
	case *ir.Tuple:
		return &ir.Tuple{Fields: s.atoms(eT.Fields)}
	case *ir.TupleGetItem:
		return &ir.TupleGetItem{Tuple: s.atom(eT.Tuple), Index: eT.Index}
	case *ir.If:
		return &ir.If{
			Cond: s.atom(eT.Cond),
			Then: s.block(eT.Then),
			Else: s.block(eT.Else),
		}
	case *ir.Function:
		return s.function(eT)
	}
	return e
}

func (s *scope) atoms(es []ir.Expr) []ir.Expr {
	out := make([]ir.Expr, len(es))
	for i, e := range es {
		out[i] = s.atom(e)
	}
	return out
}
