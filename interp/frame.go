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

package interp

import "github.com/gx-org/graphc/build/ir"

type frame struct {
	parent *frame
	vars   map[*ir.Var]ir.Value
}

func newFrame(parent *frame) *frame {
	return &frame{parent: parent, vars: make(map[*ir.Var]ir.Value)}
}

func (fr *frame) define(v *ir.Var, val ir.Value) {
	fr.vars[v] = val
}

func (fr *frame) find(v *ir.Var) (ir.Value, bool) {
	for f := fr; f != nil; f = f.parent {
		if val, ok := f.vars[v]; ok {
			return val, true
		}
	}
	return nil, false
}
