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

// Package schedule orders the bindings of a let-chain.
package schedule

import (
	"container/heap"

	"github.com/gx-org/graphc/build/ir"
	"github.com/pkg/errors"
)

// indexHeap is a min-heap of binding indices.
type indexHeap []int

func (h indexHeap) Len() int           { return len(h) }
func (h indexHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *indexHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *indexHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Bindings orders bindings such that every binding comes after the bindings
// defining the variables it references. Bindings for which effectful returns
// true keep their relative order. Among the bindings that can be scheduled,
// the binding with the lowest input index is scheduled first: bindings that
// are already ordered are returned unchanged.
//
// An error is returned if the dependencies between bindings form a cycle.
func Bindings(bindings []ir.Binding, effectful func(ir.Binding) bool) ([]ir.Binding, error) {
	index := make(map[*ir.Var]int, len(bindings))
	for i, b := range bindings {
		index[b.Var] = i
	}
	users := make([][]int, len(bindings))
	deps := make([]int, len(bindings))
	addEdge := func(from, to int) {
		users[from] = append(users[from], to)
		deps[to]++
	}
	lastEffect := -1
	for i, b := range bindings {
		seen := make(map[int]bool)
		for _, v := range ir.FreeVars(b.Value) {
			j, ok := index[v]
			if !ok || seen[j] {
				continue
			}
			seen[j] = true
			addEdge(j, i)
		}
		if effectful != nil && effectful(b) {
			if lastEffect >= 0 && !seen[lastEffect] {
				addEdge(lastEffect, i)
			}
			lastEffect = i
		}
	}
	ready := &indexHeap{}
	for i, n := range deps {
		if n == 0 {
			*ready = append(*ready, i)
		}
	}
	heap.Init(ready)
	out := make([]ir.Binding, 0, len(bindings))
	for ready.Len() > 0 {
		i := heap.Pop(ready).(int)
		out = append(out, bindings[i])
		for _, user := range users[i] {
			deps[user]--
			if deps[user] == 0 {
				heap.Push(ready, user)
			}
		}
	}
	if len(out) != len(bindings) {
		var cycle []*ir.Var
		for i, n := range deps {
			if n > 0 {
				cycle = append(cycle, bindings[i].Var)
			}
		}
		return nil, errors.Errorf("cyclic dependencies between %v", cycle)
	}
	return out, nil
}

// Rebuild orders the bindings of a let-chain and rebuilds it.
func Rebuild(e ir.Expr, effectful func(ir.Binding) bool) (ir.Expr, error) {
	bindings, result := ir.Bindings(e)
	ordered, err := Bindings(bindings, effectful)
	if err != nil {
		return nil, err
	}
	return ir.Rebuild(ordered, result), nil
}
