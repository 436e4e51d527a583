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

// Package dataparallel synchronizes the gradients of a differentiated
// module across the processes of a data parallel training.
//
// The backward closure returned by AutoDiff
//
//	fn (dy) { ...; (g0, g1, ...) }
//
// is rewritten into
//
//	fn (dy) { ...; let r = _allreduce(g0, g1, ...); (r.0, r.1, ...) }
//
// so that each process gets the sum of the gradients of all the processes.
package dataparallel

import (
	"github.com/gx-org/graphc/build/fmterr"
	"github.com/gx-org/graphc/build/ir"
	"github.com/gx-org/graphc/build/ops"
	"github.com/pkg/errors"
)

// AutoDataParallel reduces the gradients computed by the backward closure
// of the entry function with a single _allreduce. Fields of the gradient
// that are not tensors are left unchanged.
// The module needs to be the typed output of AutoDiff.
func AutoDataParallel(mod *ir.Module) (*ir.Module, error) {
	fn := mod.Main()
	if fn == nil {
		return nil, errors.Errorf("module has no entry function %q", mod.Entry)
	}
	if mod.Types() == nil {
		return nil, fmterr.Internalf(fn, "cannot synchronize the gradients of an untyped module")
	}
	bindings, result := ir.Bindings(fn.Body)
	i, bwd, err := backward(bindings, result)
	if err != nil {
		return nil, errors.Wrapf(err, "entry function %q", mod.Entry)
	}
	reduced, err := reduce(mod, bwd)
	if err != nil {
		return nil, err
	}
	rewritten := make([]ir.Binding, len(bindings))
	copy(rewritten, bindings)
	rewritten[i] = ir.Binding{Var: bindings[i].Var, Value: reduced}
	out := mod.WithTypes(nil)
	out.Add(mod.Entry, fn.WithBody(ir.Rebuild(rewritten, result)))
	return out, nil
}

// backward returns the index of the binding of the backward closure in the
// result (y, bwd) of a differentiated function.
func backward(bindings []ir.Binding, result ir.Expr) (int, *ir.Function, error) {
	pair, ok := result.(*ir.Tuple)
	if !ok || len(pair.Fields) != 2 {
		return 0, nil, errors.Errorf("result %s is not a (value, backward) pair", result)
	}
	v, ok := pair.Fields[1].(*ir.Var)
	if !ok {
		return 0, nil, errors.Errorf("backward function %s is not bound to a variable", pair.Fields[1])
	}
	for i, b := range bindings {
		if b.Var != v {
			continue
		}
		bwd, ok := b.Value.(*ir.Function)
		if !ok {
			return 0, nil, errors.Errorf("%s is bound to %s instead of a closure", v, b.Value)
		}
		return i, bwd, nil
	}
	return 0, nil, errors.Errorf("backward function %s is not bound in the function", v)
}

func reduce(mod *ir.Module, bwd *ir.Function) (*ir.Function, error) {
	bindings, result := ir.Bindings(bwd.Body)
	typ, ok := mod.TypeOf(result)
	if !ok {
		return nil, fmterr.Internalf(result, "gradient %s has no type", result)
	}
	tt, ok := typ.(*ir.TupleType)
	if !ok {
		return nil, fmterr.Errorf(fmterr.TypeInference, result, "gradient %s has type %s instead of a tuple", result, typ)
	}
	var lets ir.LetList
	for _, b := range bindings {
		lets.PushVar(b.Var, b.Value)
	}
	grads := make([]ir.Expr, len(tt.Fields))
	if tpl, ok := result.(*ir.Tuple); ok {
		copy(grads, tpl.Fields)
	} else {
		for i := range grads {
			grads[i] = lets.Push("g", &ir.TupleGetItem{Tuple: result, Index: i})
		}
	}
	var tensors []ir.Expr
	var pos []int
	for i, field := range tt.Fields {
		if _, ok := field.(*ir.TensorType); !ok {
			continue
		}
		tensors = append(tensors, grads[i])
		pos = append(pos, i)
	}
	if len(tensors) == 0 {
		return bwd, nil
	}
	red := lets.Push("reduced", ir.CallOp(ops.AllReduce, tensors...))
	for k, i := range pos {
		grads[i] = lets.Push("g", &ir.TupleGetItem{Tuple: red, Index: k})
	}
	return bwd.WithBody(lets.Wrap(&ir.Tuple{Fields: grads})), nil
}
