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
	"github.com/gx-org/graphc/base/uname"
	"github.com/gx-org/graphc/build/fmterr"
	"github.com/gx-org/graphc/build/ir"
	"github.com/gx-org/graphc/build/ops"
	"github.com/gx-org/graphc/internal/schedule"
)

// PartitionGraph extracts each region of operators annotated with a target
// other than DefaultTarget into a global function compiled by the target.
// Functions are named after their target: <target>_0, <target>_1, ...
// The remaining annotations are removed.
// The module needs to be typed. The returned module has no types.
func PartitionGraph(reg *ops.Registry, mod *ir.Module) (*ir.Module, error) {
	if mod.Types() == nil {
		return nil, fmterr.Internalf(nil, "cannot partition an untyped module")
	}
	p := &partitioner{
		reg:   reg,
		mod:   mod,
		names: uname.New(),
		roots: make(map[string]*uname.Root),
		funcs: make(map[string]*ir.Function),
	}
	for _, name := range mod.Names() {
		p.names.Register(name)
	}
	out := mod.WithTypes(nil)
	for name, fn := range mod.Funcs() {
		if !transformable(fn) {
			continue
		}
		body, err := p.block(fn.Body)
		if err != nil {
			return nil, err
		}
		out.Add(name, fn.WithBody(body))
	}
	for _, name := range p.order {
		out.Add(name, p.funcs[name])
	}
	return out, nil
}

type partitioner struct {
	reg   *ops.Registry
	mod   *ir.Module
	names *uname.Unique
	roots map[string]*uname.Root

	funcs map[string]*ir.Function
	order []string
}

// region is an extracted region.
type region struct {
	// bindings replacing the operators of the region.
	bindings []ir.Binding
	// subst maps the outputs of the region and their annotations to the
	// values computed by the call to the extracted function.
	subst map[*ir.Var]ir.Expr
}

func (p *partitioner) effectful(b ir.Binding) bool {
	if call, ok := b.Value.(*ir.Call); ok {
		if g, ok := call.Op.(*ir.GlobalVar); ok {
			_, extracted := p.funcs[g.Name]
			return !extracted
		}
	}
	return !p.reg.IsPure(b.Value)
}

func (p *partitioner) block(e ir.Expr) (ir.Expr, error) {
	c := newChain(e)
	targets, err := c.targets()
	if err != nil {
		return nil, err
	}
	uf := newUnionFind(len(c.bindings))
	for j, b := range c.bindings {
		if !c.isCall(j) {
			continue
		}
		for _, v := range ir.FreeVars(b.Value) {
			if i, ok := c.index[v]; ok && c.isCall(i) {
				uf.union(i, j)
			}
		}
	}
	var roots []int
	members := make(map[int][]int)
	regionTarget := make(map[int]string)
	for j := range c.bindings {
		if !c.isCall(j) {
			continue
		}
		r := uf.find(j)
		if _, ok := members[r]; !ok {
			roots = append(roots, r)
		}
		members[r] = append(members[r], j)
		target, ok := targets[j]
		if !ok {
			continue
		}
		if prev, ok := regionTarget[r]; ok && prev != target {
			return nil, fmterr.Errorf(fmterr.Partition, c.bindings[j].Value, "region annotated for both %s and %s", prev, target)
		}
		regionTarget[r] = target
	}

	subst := make(map[*ir.Var]ir.Expr)
	drop := make([]bool, len(c.bindings))
	replace := make(map[int][]ir.Binding)
	for _, r := range roots {
		target := regionTarget[r]
		if target == "" || target == DefaultTarget {
			continue
		}
		extracted, err := p.extract(c, members[r], target)
		if err != nil {
			return nil, err
		}
		for _, m := range members[r] {
			drop[m] = true
		}
		replace[members[r][len(members[r])-1]] = extracted.bindings
		for v, with := range extracted.subst {
			subst[v] = with
		}
	}
	// Remove the remaining annotations.
	for i, b := range c.bindings {
		m, ok := c.markers[b.Var]
		if !ok {
			continue
		}
		drop[i] = true
		if _, done := subst[b.Var]; !done {
			subst[b.Var] = m.arg
		}
	}
	for v, with := range subst {
		subst[v] = resolve(subst, with)
	}

	var out []ir.Binding
	for i, b := range c.bindings {
		out = append(out, replace[i]...)
		if !drop[i] {
			out = append(out, b)
		}
	}
	for i := range out {
		out[i].Value = ir.Substitute(out[i].Value, subst)
	}
	result := ir.Substitute(c.result, subst)
	ordered, err := schedule.Bindings(out, p.effectful)
	if err != nil {
		return nil, fmterr.Wrap(fmterr.Partition, e, err)
	}
	return ir.Rebuild(ordered, result), nil
}

// resolve follows the substitutions of variables.
func resolve(subst map[*ir.Var]ir.Expr, e ir.Expr) ir.Expr {
	for {
		v, ok := e.(*ir.Var)
		if !ok {
			return e
		}
		with, ok := subst[v]
		if !ok {
			return e
		}
		e = with
	}
}

// strip returns the value annotated by a chain of annotations.
func (c *chain) strip(e ir.Expr) ir.Expr {
	for {
		v, ok := e.(*ir.Var)
		if !ok {
			return e
		}
		m, ok := c.markers[v]
		if !ok {
			return e
		}
		e = m.arg
	}
}

// extract moves the operators of a region into a global function.
// members are the indices of the bindings of the region in program order.
func (p *partitioner) extract(c *chain, members []int, target string) (*region, error) {
	inRegion := make(map[*ir.Var]bool, len(members))
	for _, m := range members {
		inRegion[c.bindings[m].Var] = true
	}
	mapping := make(map[*ir.Var]ir.Expr)
	paramOf := make(map[ir.Expr]*ir.Var)
	var params []*ir.Var
	var inputs []ir.Expr
	var lets ir.LetList
	for _, m := range members {
		b := c.bindings[m]
		for _, v := range ir.FreeVars(b.Value) {
			if _, done := mapping[v]; done || inRegion[v] {
				continue
			}
			src := c.strip(v)
			if param, ok := paramOf[src]; ok {
				mapping[v] = param
				continue
			}
			typ, ok := p.mod.TypeOf(v)
			if !ok {
				return nil, fmterr.Internalf(v, "variable %s has no type", v)
			}
			name := v.Name
			if srcVar, ok := src.(*ir.Var); ok {
				name = srcVar.Name
			}
			param := ir.NewVar(name, typ)
			paramOf[src] = param
			mapping[v] = param
			params = append(params, param)
			inputs = append(inputs, v)
		}
		mapping[b.Var] = lets.Push(b.Var.Name, ir.Substitute(b.Value, mapping))
	}

	// Outputs are the values of the region used outside of the region.
	var outputs []*ir.Var
	uses := make(map[*ir.Var][]*ir.Var)
	resultVars := make(map[*ir.Var]bool)
	for _, v := range ir.FreeVars(c.result) {
		resultVars[v] = true
	}
	for _, m := range members {
		v := c.bindings[m].Var
		used := resultVars[v]
		for _, u := range c.users[v] {
			if inRegion[c.bindings[u].Var] {
				continue
			}
			used = true
			if marker, isMarker := c.markers[c.bindings[u].Var]; isMarker && !marker.begin {
				uses[v] = append(uses[v], c.bindings[u].Var)
			}
		}
		if used {
			outputs = append(outputs, v)
		}
	}
	var body ir.Expr
	if len(outputs) == 1 {
		body = lets.Wrap(mapping[outputs[0]])
	} else {
		fields := make([]ir.Expr, len(outputs))
		for k, out := range outputs {
			fields[k] = mapping[out]
		}
		body = lets.Wrap(&ir.Tuple{Fields: fields})
	}
	fn := &ir.Function{
		Params: params,
		Body:   body,
		Attrs:  ir.FuncAttrs{Compiler: target},
	}
	name := p.root(target).Next()
	p.funcs[name] = fn
	p.order = append(p.order, name)

	call := ir.NewVar(target, nil)
	out := &region{
		bindings: []ir.Binding{{Var: call, Value: &ir.Call{Op: ir.Global(name), Args: inputs}}},
		subst:    make(map[*ir.Var]ir.Expr),
	}
	for k, output := range outputs {
		var value ir.Expr = call
		if len(outputs) > 1 {
			field := ir.NewVar(output.Name, nil)
			out.bindings = append(out.bindings, ir.Binding{
				Var:   field,
				Value: &ir.TupleGetItem{Tuple: call, Index: k},
			})
			value = field
		}
		out.subst[output] = value
		for _, end := range uses[output] {
			out.subst[end] = value
		}
	}
	return out, nil
}

func (p *partitioner) root(target string) *uname.Root {
	root, ok := p.roots[target]
	if !ok {
		root = p.names.Root(target + "_")
		p.roots[target] = root
	}
	return root
}
