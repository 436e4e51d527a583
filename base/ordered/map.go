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

// Package ordered provides maps iterating in insertion order.
package ordered

import (
	"iter"
	"slices"
)

type entry[K comparable, V any] struct {
	key K
	val V
}

// Map is a map iterating over its entries in the order their keys were first stored.
type Map[K comparable, V any] struct {
	entries []entry[K, V]
	index   map[K]int
}

// NewMap returns an empty map.
func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{index: make(map[K]int)}
}

// Store a value. Storing an existing key replaces its value but keeps its position.
func (m *Map[K, V]) Store(k K, v V) {
	if i, ok := m.index[k]; ok {
		m.entries[i].val = v
		return
	}
	m.index[k] = len(m.entries)
	m.entries = append(m.entries, entry[K, V]{key: k, val: v})
}

// Load the value of a key.
func (m *Map[K, V]) Load(k K) (V, bool) {
	i, ok := m.index[k]
	if !ok {
		var zero V
		return zero, false
	}
	return m.entries[i].val, true
}

// Delete a key. Deleting a missing key does nothing.
func (m *Map[K, V]) Delete(k K) {
	i, ok := m.index[k]
	if !ok {
		return
	}
	delete(m.index, k)
	m.entries = slices.Delete(m.entries, i, i+1)
	for j := i; j < len(m.entries); j++ {
		m.index[m.entries[j].key] = j
	}
}

// Iter ranges over the keys and values.
func (m *Map[K, V]) Iter() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for _, e := range m.entries {
			if !yield(e.key, e.val) {
				return
			}
		}
	}
}

// Keys ranges over the keys.
func (m *Map[K, V]) Keys() iter.Seq[K] {
	return func(yield func(K) bool) {
		for _, e := range m.entries {
			if !yield(e.key) {
				return
			}
		}
	}
}

// Clone returns a shallow copy of the map.
func (m *Map[K, V]) Clone() *Map[K, V] {
	c := &Map[K, V]{
		entries: slices.Clone(m.entries),
		index:   make(map[K]int, len(m.index)),
	}
	for k, i := range m.index {
		c.index[k] = i
	}
	return c
}

// Size returns the number of keys.
func (m *Map[K, V]) Size() int {
	return len(m.entries)
}
