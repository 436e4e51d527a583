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

package canonical_test

import (
	"testing"

	"github.com/gx-org/graphc/internal/canonical"
)

func TestCanonical(t *testing.T) {
	n := canonical.Symbol("n")
	m := canonical.Symbol("m")
	tests := []struct {
		x, y  canonical.Expr
		equal bool
		want  string
	}{
		{
			x:     canonical.Mul(n, m),
			y:     canonical.Mul(m, n),
			equal: true,
			want:  "(* m n)",
		},
		{
			x:     canonical.Mul(canonical.Int(2), n, canonical.Int(3)),
			y:     canonical.Mul(n, canonical.Int(6)),
			equal: true,
			want:  "(* 6 n)",
		},
		{
			x:     canonical.Mul(canonical.Mul(n, canonical.Int(1)), m),
			y:     canonical.Mul(n, m),
			equal: true,
			want:  "(* m n)",
		},
		{
			x:     canonical.Add(n, canonical.Int(2), canonical.Int(-2)),
			y:     n,
			equal: true,
			want:  "n",
		},
		{
			x:     canonical.Sub(n, m),
			y:     canonical.Sub(m, n),
			equal: false,
			want:  "(+ (* -1 m) n)",
		},
		{
			x:     canonical.FloorDiv(canonical.Int(7), canonical.Int(2)),
			y:     canonical.Int(3),
			equal: true,
			want:  "3",
		},
		{
			x:     canonical.FloorDiv(n, canonical.Int(2)),
			y:     canonical.FloorDiv(canonical.Int(2), n),
			equal: false,
			want:  "(/ n 2)",
		},
	}
	for i, test := range tests {
		if got := test.x.Compare(test.y); got != test.equal {
			t.Errorf("test %d: %s == %s: got %v but want %v", i, test.x, test.y, got, test.equal)
		}
		if got := test.x.String(); got != test.want {
			t.Errorf("test %d: got %s but want %s", i, got, test.want)
		}
	}
}

func TestValue(t *testing.T) {
	if v, ok := canonical.Mul(canonical.Int(3), canonical.Int(4)).Value(); !ok || v != 12 {
		t.Errorf("got %d, %v but want 12, true", v, ok)
	}
	if _, ok := canonical.Add(canonical.Symbol("n"), canonical.Int(1)).Value(); ok {
		t.Errorf("an expression depending on a symbol cannot have a value")
	}
	if got := canonical.Symbols(canonical.Mul(canonical.Symbol("n"), canonical.Symbol("b"))); len(got) != 2 {
		t.Errorf("got symbols %v but want 2 symbols", got)
	}
}
