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

// Package uname provides unique names.
package uname

import "fmt"

// Unique generates unique names.
//
// Unique is not safe for concurrent use.
type Unique struct {
	names map[string]int
}

// New name generator.
func New() *Unique {
	return &Unique{names: make(map[string]int)}
}

// Register a name as being used. Names generated later will not collide with it.
func (n *Unique) Register(name string) {
	if _, ok := n.names[name]; ok {
		return
	}
	n.names[name] = 1
}

// Used returns true if a name has already been returned or registered.
func (n *Unique) Used(name string) bool {
	_, ok := n.names[name]
	return ok
}

// Name returns a unique name given a desired base name.
// If the base name is available, it is returned directly. Else, a unique suffix is appended.
func (n *Unique) Name(root string) string {
	nextIndex, ok := n.names[root]
	if !ok {
		n.names[root] = 1
		return root
	}
	for {
		name := fmt.Sprintf("%s%d", root, nextIndex)
		nextIndex++
		if _, used := n.names[name]; used {
			continue
		}
		n.names[root] = nextIndex
		n.names[name] = 1
		return name
	}
}

// Root generates numbered names sharing the same prefix.
type Root struct {
	unique *Unique
	prefix string
	next   int
}

// Root returns a generator of names prefix0, prefix1, ...
// A name already used gets a _k suffix.
func (n *Unique) Root(prefix string) *Root {
	return &Root{unique: n, prefix: prefix}
}

// RootFrom returns a generator starting its numbering at start.
func (n *Unique) RootFrom(prefix string, start int) *Root {
	return &Root{unique: n, prefix: prefix, next: start}
}

// Prefix returns the prefix shared by all the names of the root.
func (r *Root) Prefix() string {
	return r.prefix
}

// Next returns the next unique name of the root.
func (r *Root) Next() string {
	name := fmt.Sprintf("%s%d", r.prefix, r.next)
	r.next++
	if !r.unique.Used(name) {
		r.unique.Register(name)
		return name
	}
	for k := 1; ; k++ {
		cand := fmt.Sprintf("%s_%d", name, k)
		if !r.unique.Used(cand) {
			r.unique.Register(cand)
			return cand
		}
	}
}
