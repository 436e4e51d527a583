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

package ordered_test

import (
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gx-org/graphc/base/ordered"
)

type entry struct {
	K string
	V int
}

func entries(m *ordered.Map[string, int]) []entry {
	var out []entry
	for k, v := range m.Iter() {
		out = append(out, entry{K: k, V: v})
	}
	return out
}

func TestStore(t *testing.T) {
	tests := []struct {
		stores []entry
		want   []entry
	}{
		{
			stores: []entry{{"a", 1}, {"b", 2}, {"c", 3}},
			want:   []entry{{"a", 1}, {"b", 2}, {"c", 3}},
		},
		{
			stores: []entry{{"b", 1}, {"a", 2}, {"b", 3}},
			want:   []entry{{"b", 3}, {"a", 2}},
		},
		{
			stores: []entry{{"a", 1}, {"a", 2}, {"a", 3}},
			want:   []entry{{"a", 3}},
		},
	}
	for i, test := range tests {
		m := ordered.NewMap[string, int]()
		for _, e := range test.stores {
			m.Store(e.K, e.V)
		}
		if diff := cmp.Diff(entries(m.Clone()), test.want); diff != "" {
			t.Errorf("test %d: unexpected entries:\n%s", i, diff)
		}
		keys := slices.Collect(m.Keys())
		for j, e := range test.want {
			if keys[j] != e.K {
				t.Errorf("test %d: key %d: got %s but want %s", i, j, keys[j], e.K)
			}
			if v, ok := m.Load(e.K); !ok || v != e.V {
				t.Errorf("test %d: load %s: got %d,%v but want %d,true", i, e.K, v, ok, e.V)
			}
		}
	}
}

func TestDelete(t *testing.T) {
	m := ordered.NewMap[string, int]()
	for i, k := range []string{"a", "b", "c", "d"} {
		m.Store(k, i)
	}
	m.Delete("b")
	m.Delete("z")
	c := m.Clone()
	c.Delete("a")
	c.Store("e", 4)
	if diff := cmp.Diff(entries(m), []entry{{"a", 0}, {"c", 2}, {"d", 3}}); diff != "" {
		t.Errorf("unexpected entries after deletion:\n%s", diff)
	}
	if diff := cmp.Diff(entries(c), []entry{{"c", 2}, {"d", 3}, {"e", 4}}); diff != "" {
		t.Errorf("unexpected entries in the clone:\n%s", diff)
	}
	if v, ok := c.Load("d"); !ok || v != 3 {
		t.Errorf("got %d,%v but want 3,true", v, ok)
	}
	if _, ok := m.Load("b"); ok {
		t.Errorf("deleted key b can still be loaded")
	}
}
