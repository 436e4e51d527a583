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

// Package partition extracts the regions of a program supported by external
// compilers into separate functions.
//
// The transformation runs in three steps:
//   - AnnotateTarget wraps the inputs of every operator call with
//     compiler_begin and its output with compiler_end, both tagged with the
//     target supporting the operator,
//   - MergeCompilerRegions removes the annotations between operators of the
//     same target when it does not create a dependency cycle,
//   - PartitionGraph moves each connected region into a global function
//     compiled by the target and removes the remaining annotations.
package partition

import (
	"slices"

	"github.com/gx-org/graphc/build/fmterr"
	"github.com/gx-org/graphc/build/ir"
	"github.com/gx-org/graphc/build/ops"
	"github.com/gx-org/graphc/stdlib/annotation"
)

// DefaultTarget is the target of the operators not supported by any external compiler.
// Regions of the default target are not extracted.
const DefaultTarget = "default"

// Target is an external compiler.
type Target struct {
	Name string
	// Supported returns true if the compiler supports an operator.
	Supported func(op string) bool
}

// OpSet returns a function supporting a fixed set of operators.
func OpSet(names ...string) func(string) bool {
	return func(op string) bool {
		return slices.Contains(names, op)
	}
}

// marker is a compiler_begin or compiler_end annotation.
type marker struct {
	arg    ir.Expr
	target string
	begin  bool
}

// chain is the let-chain of a function body with its annotations.
type chain struct {
	bindings []ir.Binding
	result   ir.Expr
	index    map[*ir.Var]int
	markers  map[*ir.Var]marker
	users    map[*ir.Var][]int
}

func newChain(e ir.Expr) *chain {
	bindings, result := ir.Bindings(e)
	c := &chain{
		bindings: bindings,
		result:   result,
		index:    make(map[*ir.Var]int, len(bindings)),
		markers:  make(map[*ir.Var]marker),
		users:    make(map[*ir.Var][]int),
	}
	for i, b := range bindings {
		c.index[b.Var] = i
		for _, v := range ir.FreeVars(b.Value) {
			c.users[v] = append(c.users[v], i)
		}
		if target, ok := annotation.Target(b.Value, ops.CompilerBegin); ok {
			c.markers[b.Var] = marker{arg: b.Value.(*ir.Call).Args[0], target: target, begin: true}
		}
		if target, ok := annotation.Target(b.Value, ops.CompilerEnd); ok {
			c.markers[b.Var] = marker{arg: b.Value.(*ir.Call).Args[0], target: target}
		}
	}
	return c
}

// isCall returns true if a binding is a call to an operator other than an annotation.
func (c *chain) isCall(i int) bool {
	if _, isMarker := c.markers[c.bindings[i].Var]; isMarker {
		return false
	}
	_, ok := ir.OpName(c.bindings[i].Value)
	return ok
}

// source returns the index of the binding computing a variable, looking
// through annotations. It returns -1 if the variable is not bound in the chain.
func (c *chain) source(v *ir.Var) int {
	for {
		m, ok := c.markers[v]
		if !ok {
			break
		}
		arg, ok := m.arg.(*ir.Var)
		if !ok {
			return -1
		}
		v = arg
	}
	i, ok := c.index[v]
	if !ok {
		return -1
	}
	return i
}

// successors returns, for each binding which is not an annotation, the
// bindings using its result, looking through annotations.
func (c *chain) successors() [][]int {
	succs := make([][]int, len(c.bindings))
	for j, b := range c.bindings {
		if _, isMarker := c.markers[b.Var]; isMarker {
			continue
		}
		for _, v := range ir.FreeVars(b.Value) {
			i := c.source(v)
			if i < 0 || slices.Contains(succs[i], j) {
				continue
			}
			succs[i] = append(succs[i], j)
		}
	}
	return succs
}

// targets returns the target of the operator calls given by their annotations.
// Calls without annotation are not in the map.
func (c *chain) targets() (map[int]string, error) {
	targets := make(map[int]string)
	set := func(i int, target string) error {
		if prev, ok := targets[i]; ok && prev != target {
			return fmterr.Errorf(fmterr.Partition, c.bindings[i].Value, "operator annotated for both %s and %s", prev, target)
		}
		targets[i] = target
		return nil
	}
	for i, b := range c.bindings {
		m, ok := c.markers[b.Var]
		if !ok {
			continue
		}
		if !m.begin {
			if src, ok := m.arg.(*ir.Var); ok {
				if j, ok := c.index[src]; ok && c.isCall(j) {
					if err := set(j, m.target); err != nil {
						return nil, err
					}
				}
			}
			continue
		}
		for _, j := range c.users[c.bindings[i].Var] {
			if !c.isCall(j) {
				continue
			}
			if err := set(j, m.target); err != nil {
				return nil, err
			}
		}
	}
	return targets, nil
}

// unionFind groups operator calls into regions.
type unionFind []int

func newUnionFind(n int) unionFind {
	uf := make(unionFind, n)
	for i := range uf {
		uf[i] = i
	}
	return uf
}

func (uf unionFind) find(i int) int {
	for uf[i] != i {
		uf[i] = uf[uf[i]]
		i = uf[i]
	}
	return i
}

func (uf unionFind) union(i, j int) {
	uf[uf.find(j)] = uf.find(i)
}

// transformable returns true if the operators of a function can be annotated.
func transformable(fn *ir.Function) bool {
	return !fn.Attrs.Primitive && fn.Attrs.Compiler == ""
}
