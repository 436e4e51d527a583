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

// Package inplace writes the result of element-wise kernels into the
// storage of one of their inputs.
//
// After ManifestAlloc, a kernel whose input storage is dead after the call
//
//	let %s1 = alloc_storage(...);
//	let %t1 = alloc_tensor(%s1, [0], [dims...], dtype);
//	let %res = invoke_op(negative, (%x), (%t1));
//	free(%s0);
//
// where %x is the only tensor of %s0 and has the same layout as %t1, is
// rewritten to update %x in place:
//
//	let %res = invoke_op(negative, (%x), (%x_tensor));
//
// The storage %s0 then takes over the lifetime of %s1.
package inplace

import (
	"github.com/gx-org/graphc/build/ir"
	"github.com/gx-org/graphc/build/ops"
	"github.com/gx-org/graphc/transform/manifest"
	"k8s.io/klog/v2"
)

// InplaceUpdate removes the allocation of the output of element-wise
// kernels when an input can be updated in place.
// The resulting allocations are verified.
func InplaceUpdate(reg *ops.Registry, mod *ir.Module) (*ir.Module, error) {
	u := &updater{reg: reg, mod: mod}
	out := mod.WithTypes(nil)
	for name, fn := range mod.Funcs() {
		if fn.Attrs.Primitive || fn.Attrs.Compiler != "" {
			continue
		}
		body, err := u.block(fn.Body)
		if err != nil {
			return nil, err
		}
		out.Add(name, fn.WithBody(body))
	}
	klog.V(1).Infof("in-place update: %d kernels", u.updates)
	return out, nil
}

type updater struct {
	reg     *ops.Registry
	mod     *ir.Module
	updates int
}

func (u *updater) block(e ir.Expr) (ir.Expr, error) {
	bindings, result := ir.Bindings(e)
	nestedBindings := make([]ir.Binding, len(bindings))
	changed := false
	for i, b := range bindings {
		value, err := u.nested(b.Value)
		if err != nil {
			return nil, err
		}
		changed = changed || value != b.Value
		nestedBindings[i] = ir.Binding{Var: b.Var, Value: value}
	}
	if changed {
		e = ir.Rebuild(nestedBindings, result)
	}
	updated := false
	for {
		next, ok := u.update(manifest.Analyze(e))
		if !ok {
			break
		}
		e, updated = next, true
		u.updates++
	}
	if !updated {
		return e, nil
	}
	if err := manifest.Analyze(e).Verify(); err != nil {
		return nil, err
	}
	return e, nil
}

func (u *updater) nested(e ir.Expr) (ir.Expr, error) {
	switch eT := e.(type) {
	case *ir.Function:
		body, err := u.block(eT.Body)
		if err != nil {
			return nil, err
		}
		if body == eT.Body {
			return e, nil
		}
		return eT.WithBody(body), nil
	case *ir.If:
		then, err := u.block(eT.Then)
		if err != nil {
			return nil, err
		}
		els, err := u.block(eT.Else)
		if err != nil {
			return nil, err
		}
		return &ir.If{Cond: eT.Cond, Then: then, Else: els}, nil
	}
	return e, nil
}

// elementwise returns true if each element of the output of a callee only
// depends on the elements at the same position of its inputs of the same shape.
func (u *updater) elementwise(callee ir.Expr) bool {
	switch calleeT := callee.(type) {
	case *ir.OpRef:
		meta, err := u.reg.Lookup(calleeT.Name)
		return err == nil && meta.Pure && meta.Pattern <= ops.Broadcast
	case *ir.GlobalVar:
		fn, ok := u.mod.Lookup(calleeT.Name)
		if !ok || !fn.Attrs.Primitive || len(fn.Attrs.FusedOps) == 0 {
			return false
		}
		for _, name := range fn.Attrs.FusedOps {
			if !u.elementwise(ir.Op(name)) {
				return false
			}
		}
		return true
	}
	return false
}

// update rewrites the first kernel of a let-chain that can update one of
// its inputs in place. It returns false if there is none.
func (u *updater) update(l *manifest.Liveness) (ir.Expr, bool) {
	defs := make(map[*ir.Var]int, len(l.Bindings))
	for i, b := range l.Bindings {
		defs[b.Var] = i
	}
	tuple := func(e ir.Expr) (int, []ir.Expr, bool) {
		v, ok := e.(*ir.Var)
		if !ok {
			return 0, nil, false
		}
		i, ok := defs[v]
		if !ok {
			return 0, nil, false
		}
		tpl, ok := l.Bindings[i].Value.(*ir.Tuple)
		if !ok {
			return 0, nil, false
		}
		return i, tpl.Fields, true
	}
	refs := ir.CountRefs(ir.Rebuild(l.Bindings, l.Result))
	for i, b := range l.Bindings {
		if !ir.IsOpCall(b.Value, ops.InvokeOp) {
			continue
		}
		call := b.Value.(*ir.Call)
		if !u.elementwise(call.Args[0]) {
			continue
		}
		_, ins, ok := tuple(call.Args[1])
		if !ok {
			continue
		}
		outsAt, outs, ok := tuple(call.Args[2])
		if !ok || len(outs) != 1 {
			continue
		}
		out, ok := target(l, refs, outs[0])
		if !ok {
			continue
		}
		for _, in := range ins {
			donor, ok := source(l, i, in, out)
			if !ok || donor.Alloc > outsAt {
				continue
			}
			return rewrite(l, donor, out), true
		}
	}
	return nil, false
}

// target returns the output tensor of a kernel if it is the only use of its storage.
func target(l *manifest.Liveness, refs map[*ir.Var]int, e ir.Expr) (*manifest.Tensor, bool) {
	v, ok := e.(*ir.Var)
	if !ok {
		return nil, false
	}
	t, ok := l.Tensor(v)
	if !ok || t.Offset != 0 {
		return nil, false
	}
	s, ok := l.Storage(t.Storage)
	if !ok || len(s.Tensors) != 1 || len(s.Frees) > 1 {
		return nil, false
	}
	return t, refs[s.Var] == 1+len(s.Frees)
}

// source returns the tensor referenced by an input of the kernel bound at
// index i if its storage can be reused by the output tensor out.
func source(l *manifest.Liveness, i int, e ir.Expr, out *manifest.Tensor) (*manifest.Tensor, bool) {
	v, ok := e.(*ir.Var)
	if !ok {
		return nil, false
	}
	aliases := l.Aliases(v)
	if len(aliases) != 1 {
		return nil, false
	}
	t, ok := l.Tensor(aliases[0])
	if !ok || t.Offset != 0 || t.Storage == out.Storage {
		return nil, false
	}
	s, ok := l.Storage(t.Storage)
	if !ok || len(s.Tensors) != 1 || len(s.Frees) > 1 || l.Escapes(s) || l.LastUse(s) != i {
		return nil, false
	}
	so, _ := l.Storage(out.Storage)
	if s.Device != so.Device || s.Size < so.Size {
		return nil, false
	}
	return t, sameLayout(l.Bindings[t.Alloc].Value, l.Bindings[out.Alloc].Value)
}

// sameLayout returns true if two alloc_tensor calls have the same shape and data type.
func sameLayout(x, y ir.Expr) bool {
	cx, cy := x.(*ir.Call), y.(*ir.Call)
	return ir.StructuralEqual(cx.Args[2], cy.Args[2]) && ir.StructuralEqual(cx.Args[3], cy.Args[3])
}

// rewrite replaces the output tensor by the input tensor. The storage of
// the input is released where the storage of the output was.
func rewrite(l *manifest.Liveness, in, out *manifest.Tensor) ir.Expr {
	sIn, _ := l.Storage(in.Storage)
	sOut, _ := l.Storage(out.Storage)
	drop := map[int]bool{sOut.Alloc: true, out.Alloc: true}
	for _, i := range sIn.Frees {
		drop[i] = true
	}
	subst := map[*ir.Var]ir.Expr{
		out.Var:  in.Var,
		sOut.Var: sIn.Var,
	}
	var kept []ir.Binding
	for i, b := range l.Bindings {
		if drop[i] {
			continue
		}
		kept = append(kept, ir.Binding{Var: b.Var, Value: ir.Substitute(b.Value, subst)})
	}
	return ir.Rebuild(kept, ir.Substitute(l.Result, subst))
}
