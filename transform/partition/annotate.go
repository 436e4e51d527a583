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

package partition

import (
	"github.com/gx-org/graphc/build/ir"
	"github.com/gx-org/graphc/build/ops"
	"github.com/gx-org/graphc/stdlib/annotation"
)

type annotator struct {
	reg     *ops.Registry
	targets []Target
}

// AnnotateTarget annotates the operator calls of a module with the first
// target supporting them. Operators with side effects and operators not
// supported by any target are annotated with DefaultTarget.
// The returned module has no types.
func AnnotateTarget(reg *ops.Registry, mod *ir.Module, targets []Target) (*ir.Module, error) {
	a := &annotator{reg: reg, targets: targets}
	out := mod.WithTypes(nil)
	for name, fn := range mod.Funcs() {
		if !transformable(fn) {
			continue
		}
		body, err := a.block(fn.Body)
		if err != nil {
			return nil, err
		}
		out.Add(name, fn.WithBody(body))
	}
	return out, nil
}

func (a *annotator) target(op string) (string, error) {
	meta, err := a.reg.Lookup(op)
	if err != nil {
		return "", err
	}
	if !meta.Pure {
		return DefaultTarget, nil
	}
	for _, target := range a.targets {
		if target.Supported(op) {
			return target.Name, nil
		}
	}
	return DefaultTarget, nil
}

// block annotates the bindings of a let-chain.
// The uses of an annotated call are replaced by the output annotation.
func (a *annotator) block(e ir.Expr) (ir.Expr, error) {
	bindings, result := ir.Bindings(e)
	subst := make(map[*ir.Var]ir.Expr)
	var lets ir.LetList
	for _, b := range bindings {
		value := ir.Substitute(b.Value, subst)
		name, ok := ir.OpName(value)
		if !ok || name == ops.CompilerBegin || name == ops.CompilerEnd {
			lets.PushVar(b.Var, value)
			continue
		}
		target, err := a.target(name)
		if err != nil {
			return nil, err
		}
		call := value.(*ir.Call)
		args := make([]ir.Expr, len(call.Args))
		for i, arg := range call.Args {
			if _, isVar := arg.(*ir.Var); !isVar {
				args[i] = arg
				continue
			}
			args[i] = lets.Push("begin", annotation.Begin(arg, target))
		}
		lets.PushVar(b.Var, &ir.Call{Op: call.Op, Args: args})
		subst[b.Var] = lets.Push("end", annotation.End(b.Var, target))
	}
	return lets.Wrap(ir.Substitute(result, subst)), nil
}
