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

package anf

import (
	"github.com/gx-org/graphc/build/ir"
	"github.com/gx-org/graphc/build/ops"
	"github.com/gx-org/graphc/internal/funcpass"
)

// InlineLet converts the body of all the functions of a module back to a nested form.
// A binding is removed when its value is atomic or when its value is pure and
// referenced exactly once outside of a function body or a branch of a conditional.
// Bindings with side effects are always kept.
func InlineLet(reg *ops.Registry, mod *ir.Module, opts ...funcpass.Option) (*ir.Module, error) {
	return funcpass.Run(mod, func(_ string, fn *ir.Function) (*ir.Function, error) {
		return Inline(reg, fn), nil
	}, opts...)
}

// Inline the bindings of a function.
func Inline(reg *ops.Registry, fn *ir.Function) *ir.Function {
	in := &inliner{reg: reg, subst: make(map[*ir.Var]ir.Expr)}
	return in.function(fn)
}

type inliner struct {
	reg   *ops.Registry
	subst map[*ir.Var]ir.Expr
}

func (in *inliner) function(fn *ir.Function) *ir.Function {
	return fn.WithBody(in.block(fn.Body))
}

func (in *inliner) block(e ir.Expr) ir.Expr {
	bindings, result := ir.Bindings(e)
	refs := ir.CountRefs(e)
	guarded := guardedRefs(e)
	var kept []ir.Binding
	for _, b := range bindings {
		value := in.expr(b.Value)
		if ir.IsAtomic(value) {
			in.subst[b.Var] = value
			continue
		}
		if refs[b.Var] == 1 && !guarded[b.Var] && in.reg.IsPure(value) {
			in.subst[b.Var] = value
			continue
		}
		kept = append(kept, ir.Binding{Var: b.Var, Value: value})
	}
	return ir.Rebuild(kept, in.expr(result))
}

func (in *inliner) expr(e ir.Expr) ir.Expr {
	switch eT := e.(type) {
	case *ir.Let:
		return in.block(eT)
	case *ir.Function:
		return in.function(eT)
	case *ir.If:
		return &ir.If{
			Cond: ir.Substitute(eT.Cond, in.subst),
			Then: in.block(eT.Then),
			Else: in.block(eT.Else),
		}
	}
	return ir.Substitute(e, in.subst)
}

// guardedRefs returns the variables referenced in a function body or in a branch.
// Inlining into these positions would change how many times a value is computed.
func guardedRefs(e ir.Expr) map[*ir.Var]bool {
	guarded := make(map[*ir.Var]bool)
	mark := func(e ir.Expr) {
		ir.Walk(e, func(e ir.Expr) bool {
			if v, ok := e.(*ir.Var); ok {
				guarded[v] = true
			}
			return true
		})
	}
	ir.Walk(e, func(e ir.Expr) bool {
		switch eT := e.(type) {
		case *ir.Function:
			mark(eT.Body)
			return false
		case *ir.If:
			mark(eT.Then)
			mark(eT.Else)
			return false
		}
		return true
	})
	return guarded
}
