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

// Package rename gives readable and unique names to the variables of a module.
package rename

import (
	"github.com/gx-org/graphc/base/uname"
	"github.com/gx-org/graphc/build/ir"
)

// LetPrefix is the prefix of the names given to let-bound variables.
const LetPrefix = "a"

// RenameVars returns a module where every variable has a unique name.
// Parameters keep their names, with a suffix when the name is already used.
// Let-bound variables are named a1, a2, ... in the order they are defined.
// The types of the module are dropped.
func RenameVars(mod *ir.Module) (*ir.Module, error) {
	names := uname.New()
	lets := names.RootFrom(LetPrefix, 1)
	out := ir.NewModule()
	out.Entry = mod.Entry
	for name, fn := range mod.Funcs() {
		renamed, err := renameFunc(names, lets, fn)
		if err != nil {
			return nil, err
		}
		out.Add(name, renamed)
	}
	return out, nil
}

func renameFunc(names *uname.Unique, lets *uname.Root, fn *ir.Function) (*ir.Function, error) {
	letVars := make(map[*ir.Var]bool)
	ir.Walk(fn, func(e ir.Expr) bool {
		if let, ok := e.(*ir.Let); ok {
			letVars[let.Var] = true
		}
		return true
	})
	r := ir.Rewriter{
		Binder: func(v *ir.Var) *ir.Var {
			if letVars[v] {
				return ir.NewVar(lets.Next(), v.Annot)
			}
			return ir.NewVar(names.Name(v.Name), v.Annot)
		},
	}
	out, err := r.Rewrite(fn)
	if err != nil {
		return nil, err
	}
	return out.(*ir.Function), nil
}
