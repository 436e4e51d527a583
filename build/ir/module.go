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

package ir

import (
	"iter"
	"slices"

	"github.com/gx-org/graphc/base/ordered"
)

// DefaultEntry is the name of the entry function of a module.
const DefaultEntry = "main"

// Module is a set of global functions with an entry point.
// A module is treated as immutable once it has been handed to a pass:
// passes call Clone and modify the copy.
type Module struct {
	funcs *ordered.Map[string, *Function]
	types *TypeMap

	// Entry is the name of the function called to run the module.
	Entry string
}

// NewModule returns an empty module.
func NewModule() *Module {
	return &Module{
		funcs: ordered.NewMap[string, *Function](),
		Entry: DefaultEntry,
	}
}

// FromFunc returns a module with a single entry function.
func FromFunc(fn *Function) *Module {
	mod := NewModule()
	mod.Add(DefaultEntry, fn)
	return mod
}

// Add a function to the module. An existing function with the same name is replaced.
func (m *Module) Add(name string, fn *Function) {
	m.funcs.Store(name, fn)
}

// Remove a function from the module.
func (m *Module) Remove(name string) {
	m.funcs.Delete(name)
}

// Lookup returns a function given its name.
func (m *Module) Lookup(name string) (*Function, bool) {
	return m.funcs.Load(name)
}

// Main returns the entry function.
func (m *Module) Main() *Function {
	fn, _ := m.funcs.Load(m.Entry)
	return fn
}

// Funcs iterates over the functions of the module in the order they have been added.
func (m *Module) Funcs() iter.Seq2[string, *Function] {
	return m.funcs.Iter()
}

// Names returns the names of the functions in the module.
func (m *Module) Names() []string {
	return slices.Collect(m.funcs.Keys())
}

// Len returns the number of functions in the module.
func (m *Module) Len() int {
	return m.funcs.Size()
}

// Clone returns a shallow copy of the module.
// Functions are shared, the type table is kept.
func (m *Module) Clone() *Module {
	return &Module{
		funcs: m.funcs.Clone(),
		types: m.types,
		Entry: m.Entry,
	}
}

// WithTypes returns a copy of the module with a type table.
func (m *Module) WithTypes(types *TypeMap) *Module {
	c := m.Clone()
	c.types = types
	return c
}

// Types returns the type table of the module or nil if types have not been inferred.
func (m *Module) Types() *TypeMap {
	return m.types
}

// TypeOf returns the inferred type of an expression.
func (m *Module) TypeOf(e Expr) (Type, bool) {
	if m.types == nil {
		return nil, false
	}
	return m.types.Get(e)
}

// TypeMap stores the type of expressions, keyed by node identity.
type TypeMap struct {
	types map[Expr]Type
}

// NewTypeMap returns an empty type map.
func NewTypeMap() *TypeMap {
	return &TypeMap{types: make(map[Expr]Type)}
}

// Set the type of an expression.
func (tm *TypeMap) Set(e Expr, t Type) {
	tm.types[e] = t
}

// Get returns the type of an expression.
func (tm *TypeMap) Get(e Expr) (Type, bool) {
	t, ok := tm.types[e]
	return t, ok
}

// Len returns the number of typed expressions.
func (tm *TypeMap) Len() int {
	return len(tm.types)
}
