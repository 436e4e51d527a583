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

// Package dce removes the bindings of a program that do not contribute to its result.
package dce

import (
	"slices"

	"github.com/gx-org/graphc/build/ir"
	"github.com/gx-org/graphc/build/ops"
	"github.com/gx-org/graphc/internal/funcpass"
)

// DeadCodeElimination removes pure bindings whose variable is never referenced.
// Calls with side effects and calls to functions are always kept.
// The result is a fixed point: running the pass again does not change the module.
func DeadCodeElimination(reg *ops.Registry, mod *ir.Module, opts ...funcpass.Option) (*ir.Module, error) {
	return funcpass.Run(mod, func(_ string, fn *ir.Function) (*ir.Function, error) {
		return Function(reg, fn), nil
	}, opts...)
}

// Function removes the dead bindings of a function.
func Function(reg *ops.Registry, fn *ir.Function) *ir.Function {
	body := block(reg, fn.Body)
	if body == fn.Body {
		return fn
	}
	return fn.WithBody(body)
}

// block removes the dead bindings of a let-chain.
// Bindings are visited backward so that a binding only used by dead
// bindings is also removed.
func block(reg *ops.Registry, e ir.Expr) ir.Expr {
	bindings, result := ir.Bindings(e)
	result = nested(reg, result)
	live := make(map[*ir.Var]bool)
	markLive(live, result)
	var kept []ir.Binding
	changed := false
	for _, b := range slices.Backward(bindings) {
		if !live[b.Var] && reg.IsPure(b.Value) {
			changed = true
			continue
		}
		value := nested(reg, b.Value)
		changed = changed || value != b.Value
		markLive(live, value)
		kept = append(kept, ir.Binding{Var: b.Var, Value: value})
	}
	if !changed && result == resultOf(e) {
		return e
	}
	slices.Reverse(kept)
	return ir.Rebuild(kept, result)
}

func resultOf(e ir.Expr) ir.Expr {
	_, result := ir.Bindings(e)
	return result
}

// nested removes the dead bindings of the scopes nested in an expression.
func nested(reg *ops.Registry, e ir.Expr) ir.Expr {
	switch eT := e.(type) {
	case *ir.Let:
		return block(reg, eT)
	case *ir.Function:
		return Function(reg, eT)
	case *ir.If:
		then, els := block(reg, eT.Then), block(reg, eT.Else)
		if then == eT.Then && els == eT.Else {
			return e
		}
		return &ir.If{Cond: eT.Cond, Then: then, Else: els}
	case *ir.Call:
		// Function literals can be called or passed as arguments.
		op := nested(reg, eT.Op)
		args := make([]ir.Expr, len(eT.Args))
		changed := op != eT.Op
		for i, arg := range eT.Args {
			args[i] = nested(reg, arg)
			changed = changed || args[i] != arg
		}
		if !changed {
			return e
		}
		return &ir.Call{Op: op, Args: args}
	case *ir.Tuple:
		fields := make([]ir.Expr, len(eT.Fields))
		changed := false
		for i, field := range eT.Fields {
			fields[i] = nested(reg, field)
			changed = changed || fields[i] != field
		}
		if !changed {
			return e
		}
		return &ir.Tuple{Fields: fields}
	case *ir.TupleGetItem:
		tpl := nested(reg, eT.Tuple)
		if tpl == eT.Tuple {
			return e
		}
		return &ir.TupleGetItem{Tuple: tpl, Index: eT.Index}
	}
	return e
}

func markLive(live map[*ir.Var]bool, e ir.Expr) {
	for _, v := range ir.FreeVars(e) {
		live[v] = true
	}
}
