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

package fuse

import "github.com/gx-org/graphc/build/ops"

// DefaultMaxSize is the default maximum number of operators in a fused function.
const DefaultMaxSize = 32

// Rule admits a producer of kind Producer into a group of kind Group.
// The kind of the group becomes Result.
type Rule struct {
	Group, Producer, Result ops.PatternKind
}

// Table decides which operators can be fused together.
type Table struct {
	// MaxSize is the maximum number of operators in a group. Groups are not limited if MaxSize is not positive.
	MaxSize int

	rules map[[2]ops.PatternKind]ops.PatternKind
}

// NewTable returns a table given its rules.
func NewTable(maxSize int, rules []Rule) *Table {
	t := &Table{
		MaxSize: maxSize,
		rules:   make(map[[2]ops.PatternKind]ops.PatternKind, len(rules)),
	}
	for _, r := range rules {
		t.rules[[2]ops.PatternKind{r.Group, r.Producer}] = r.Result
	}
	return t
}

// DefaultTable returns the table built from DefaultRules.
func DefaultTable(maxSize int) *Table {
	return NewTable(maxSize, DefaultRules())
}

var injective = []ops.PatternKind{ops.ElemWise, ops.Broadcast, ops.Injective}

// DefaultRules returns the default fusion rules:
//   - element-wise, broadcast and injective operators fuse with each other,
//   - a group can contain a single reduction. Injective producers of the
//     reduction are fused into it and injective consumers form its epilogue,
//   - operators fusable with their element-wise outputs (matmul, conv2d)
//     take element-wise and broadcast consumers. Their producers are not fused,
//   - opaque operators are never fused.
func DefaultRules() []Rule {
	var rules []Rule
	for _, group := range injective {
		for _, producer := range injective {
			rules = append(rules, Rule{Group: group, Producer: producer, Result: max(group, producer)})
		}
		rules = append(rules,
			Rule{Group: ops.Reduce, Producer: group, Result: ops.Reduce},
			Rule{Group: group, Producer: ops.Reduce, Result: ops.Reduce},
		)
	}
	for _, group := range []ops.PatternKind{ops.ElemWise, ops.Broadcast} {
		rules = append(rules, Rule{Group: group, Producer: ops.OutEWiseFusable, Result: ops.OutEWiseFusable})
	}
	return rules
}

// Admit returns the kind of a group after a producer has been fused into it.
// It returns false if the producer cannot be fused.
func (t *Table) Admit(group, producer ops.PatternKind) (ops.PatternKind, bool) {
	kind, ok := t.rules[[2]ops.PatternKind{group, producer}]
	return kind, ok
}

func (t *Table) full(size int) bool {
	return t.MaxSize > 0 && size >= t.MaxSize
}
