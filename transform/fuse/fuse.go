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

// Package fuse groups calls to compatible operators into primitive functions
// compiled as a single kernel.
//
// Groups are grown from a root call, the last operator of the group, by
// adding the producers of the group. A producer is added when the table
// admits its pattern kind, when all its uses are in the group, and when no
// operator with side effects is called between the producer and the root.
// Each group becomes a global function marked as primitive, and the root is
// replaced by a call to that function.
package fuse

import (
	"strings"

	"github.com/gx-org/graphc/base/uname"
	"github.com/gx-org/graphc/build/fmterr"
	"github.com/gx-org/graphc/build/ir"
	"github.com/gx-org/graphc/build/ops"
	"github.com/gx-org/graphc/internal/schedule"
)

// FusedPrefix is the prefix of the names of fused functions.
const FusedPrefix = "fused_"

// FuseOps fuses the operators of all the functions of a typed module in A-normal form.
// Structurally equal fused functions are shared.
func FuseOps(reg *ops.Registry, mod *ir.Module, table *Table) (*ir.Module, error) {
	if mod.Types() == nil {
		return nil, fmterr.Internalf(nil, "cannot fuse the operators of an untyped module")
	}
	f := &fuser{
		reg:    reg,
		mod:    mod,
		table:  table,
		names:  uname.New(),
		hashes: make(map[uint64][]string),
		fused:  make(map[string]*ir.Function),
	}
	for _, name := range mod.Names() {
		f.names.Register(name)
	}
	out := mod.WithTypes(nil)
	for name, fn := range mod.Funcs() {
		if fn.Attrs.Primitive {
			continue
		}
		body, err := f.block(fn.Body)
		if err != nil {
			return nil, err
		}
		out.Add(name, fn.WithBody(body))
	}
	for _, name := range f.order {
		out.Add(name, f.fused[name])
	}
	return out, nil
}

type fuser struct {
	reg   *ops.Registry
	mod   *ir.Module
	table *Table
	names *uname.Unique

	hashes map[uint64][]string
	fused  map[string]*ir.Function
	order  []string
}

// kindOf returns the pattern kind of a binding if it can be fused.
func (f *fuser) kindOf(b ir.Binding) (ops.PatternKind, bool) {
	name, ok := ir.OpName(b.Value)
	if !ok {
		return 0, false
	}
	meta, err := f.reg.Lookup(name)
	if err != nil || !meta.Pure || meta.Pattern == ops.Opaque {
		return 0, false
	}
	return meta.Pattern, true
}

// effectful returns true if a binding has side effects.
// Calls to fused functions have none.
func (f *fuser) effectful(b ir.Binding) bool {
	if call, ok := b.Value.(*ir.Call); ok {
		if g, ok := call.Op.(*ir.GlobalVar); ok {
			_, isFused := f.fused[g.Name]
			return !isFused
		}
	}
	return !f.reg.IsPure(b.Value)
}

// nested fuses the operators in the scopes nested in a value.
func (f *fuser) nested(e ir.Expr) (ir.Expr, error) {
	switch eT := e.(type) {
	case *ir.Function:
		body, err := f.block(eT.Body)
		if err != nil {
			return nil, err
		}
		return eT.WithBody(body), nil
	case *ir.If:
		then, err := f.block(eT.Then)
		if err != nil {
			return nil, err
		}
		els, err := f.block(eT.Else)
		if err != nil {
			return nil, err
		}
		return &ir.If{Cond: eT.Cond, Then: then, Else: els}, nil
	}
	return e, nil
}

func (f *fuser) block(e ir.Expr) (ir.Expr, error) {
	bindings, result := ir.Bindings(e)
	totalRefs := ir.CountRefs(e)
	for i, b := range bindings {
		value, err := f.nested(b.Value)
		if err != nil {
			return nil, err
		}
		bindings[i].Value = value
	}
	// effects[i] is the number of bindings with side effects before i.
	effects := make([]int, len(bindings)+1)
	index := make(map[*ir.Var]int, len(bindings))
	for i, b := range bindings {
		index[b.Var] = i
		effects[i+1] = effects[i]
		if f.effectful(b) {
			effects[i+1]++
		}
	}

	groups := make(map[int][]int)
	root := make([]int, len(bindings))
	for i := range root {
		root[i] = -1
	}
	for r := len(bindings) - 1; r >= 0; r-- {
		if root[r] >= 0 {
			continue
		}
		kind, ok := f.kindOf(bindings[r])
		if !ok {
			continue
		}
		members := []int{r}
		groupRefs := ir.CountRefs(bindings[r].Value)
		for p := r - 1; p >= 0 && !f.table.full(len(members)); p-- {
			v := bindings[p].Var
			if root[p] >= 0 || groupRefs[v] == 0 || groupRefs[v] != totalRefs[v] {
				continue
			}
			if effects[r]-effects[p+1] > 0 {
				continue
			}
			producer, ok := f.kindOf(bindings[p])
			if !ok {
				continue
			}
			next, ok := f.table.Admit(kind, producer)
			if !ok {
				continue
			}
			kind = next
			root[p] = r
			members = append(members, p)
			for v, n := range ir.CountRefs(bindings[p].Value) {
				groupRefs[v] += n
			}
		}
		if len(members) < 2 {
			continue
		}
		root[r] = r
		groups[r] = members
	}

	var out []ir.Binding
	for i, b := range bindings {
		switch root[i] {
		case -1:
			out = append(out, b)
		case i:
			call, err := f.fuse(bindings, groups[i])
			if err != nil {
				return nil, err
			}
			out = append(out, ir.Binding{Var: b.Var, Value: call})
		}
	}
	ordered, err := schedule.Bindings(out, f.effectful)
	if err != nil {
		return nil, fmterr.Wrap(fmterr.FusionCycle, e, err)
	}
	return ir.Rebuild(ordered, result), nil
}

// fuse builds the primitive function of a group and returns the call replacing its root.
// members are the indices of the bindings of the group, root first.
func (f *fuser) fuse(bindings []ir.Binding, members []int) (*ir.Call, error) {
	inGroup := make(map[*ir.Var]bool, len(members))
	for _, m := range members {
		inGroup[bindings[m].Var] = true
	}
	mapping := make(map[*ir.Var]ir.Expr)
	var params []*ir.Var
	var inputs []ir.Expr
	var lets ir.LetList
	var opNames []string
	var body ir.Expr
	for k := len(members) - 1; k >= 0; k-- {
		b := bindings[members[k]]
		for _, v := range ir.FreeVars(b.Value) {
			if _, done := mapping[v]; done || inGroup[v] {
				continue
			}
			typ, ok := f.mod.TypeOf(v)
			if !ok {
				return nil, fmterr.Internalf(v, "variable %s has no type", v)
			}
			param := ir.NewVar(v.Name, typ)
			mapping[v] = param
			params = append(params, param)
			inputs = append(inputs, v)
		}
		opName, _ := ir.OpName(b.Value)
		opNames = append(opNames, opName)
		value := ir.Substitute(b.Value, mapping)
		if k == 0 {
			body = lets.Wrap(value)
			break
		}
		mapping[b.Var] = lets.Push(b.Var.Name, value)
	}
	fn := &ir.Function{
		Params: params,
		Body:   body,
		Attrs:  ir.FuncAttrs{Primitive: true, FusedOps: opNames},
	}
	return &ir.Call{Op: ir.Global(f.register(fn)), Args: inputs}, nil
}

// register adds a fused function to the module and returns its name.
// The name of a structurally equal function is returned if it has already been registered.
func (f *fuser) register(fn *ir.Function) string {
	hash := ir.StructuralHash(fn)
	for _, name := range f.hashes[hash] {
		if ir.StructuralEqual(f.fused[name], fn) {
			return name
		}
	}
	name := f.names.Name(FusedPrefix + strings.Join(fn.Attrs.FusedOps, "_"))
	f.hashes[hash] = append(f.hashes[hash], name)
	f.fused[name] = fn
	f.order = append(f.order, name)
	return name
}
