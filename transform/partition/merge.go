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
	"slices"

	"github.com/gx-org/graphc/build/ir"
)

// MergeCompilerRegions removes the annotations between two operators
// annotated with the same target. Regions are not merged when the result
// would depend on itself through an operator outside the region.
// Regions of DefaultTarget are never merged.
// The returned module has no types.
func MergeCompilerRegions(mod *ir.Module) (*ir.Module, error) {
	out := mod.WithTypes(nil)
	for name, fn := range mod.Funcs() {
		if !transformable(fn) {
			continue
		}
		body, err := merge(fn.Body)
		if err != nil {
			return nil, err
		}
		out.Add(name, fn.WithBody(body))
	}
	return out, nil
}

func merge(e ir.Expr) (ir.Expr, error) {
	c := newChain(e)
	targets, err := c.targets()
	if err != nil {
		return nil, err
	}
	succs := c.successors()
	uf := newUnionFind(len(c.bindings))
	bindings := slices.Clone(c.bindings)
	for j := range c.bindings {
		target, ok := targets[j]
		if !ok || target == DefaultTarget {
			continue
		}
		subst := make(map[*ir.Var]ir.Expr)
		for _, arg := range c.bindings[j].Value.(*ir.Call).Args {
			src, i, ok := c.boundary(arg, target)
			if !ok || targets[i] != target {
				continue
			}
			if uf.find(i) != uf.find(j) {
				if createsCycle(succs, uf, i, j) {
					continue
				}
				uf.union(i, j)
			}
			subst[arg.(*ir.Var)] = src
		}
		bindings[j].Value = ir.Substitute(bindings[j].Value, subst)
	}
	return prune(c, bindings), nil
}

// boundary returns the call producing an argument when the argument is the
// end of a region followed by the beginning of another region of the same target.
func (c *chain) boundary(arg ir.Expr, target string) (*ir.Var, int, bool) {
	v, ok := arg.(*ir.Var)
	if !ok {
		return nil, -1, false
	}
	begin, ok := c.markers[v]
	if !ok || !begin.begin || begin.target != target {
		return nil, -1, false
	}
	endVar, ok := begin.arg.(*ir.Var)
	if !ok {
		return nil, -1, false
	}
	end, ok := c.markers[endVar]
	if !ok || end.begin || end.target != target {
		return nil, -1, false
	}
	src, ok := end.arg.(*ir.Var)
	if !ok {
		return nil, -1, false
	}
	i, ok := c.index[src]
	if !ok || !c.isCall(i) {
		return nil, -1, false
	}
	return src, i, true
}

// createsCycle returns true if merging the regions of i and j would create
// a path leaving the merged region and coming back into it.
func createsCycle(succs [][]int, uf unionFind, i, j int) bool {
	ri, rj := uf.find(i), uf.find(j)
	inside := func(k int) bool {
		r := uf.find(k)
		return r == ri || r == rj
	}
	visited := make([]bool, len(succs))
	var queue []int
	for k := range succs {
		if !inside(k) {
			continue
		}
		for _, s := range succs[k] {
			if !inside(s) && !visited[s] {
				visited[s] = true
				queue = append(queue, s)
			}
		}
	}
	for len(queue) > 0 {
		k := queue[0]
		queue = queue[1:]
		for _, s := range succs[k] {
			if inside(s) {
				return true
			}
			if !visited[s] {
				visited[s] = true
				queue = append(queue, s)
			}
		}
	}
	return false
}

// prune removes the annotations that are not used anymore.
func prune(c *chain, bindings []ir.Binding) ir.Expr {
	live := make(map[*ir.Var]bool)
	for _, v := range ir.FreeVars(c.result) {
		live[v] = true
	}
	var kept []ir.Binding
	for _, b := range slices.Backward(bindings) {
		if _, isMarker := c.markers[b.Var]; isMarker && !live[b.Var] {
			continue
		}
		for _, v := range ir.FreeVars(b.Value) {
			live[v] = true
		}
		kept = append(kept, b)
	}
	slices.Reverse(kept)
	return ir.Rebuild(kept, c.result)
}
