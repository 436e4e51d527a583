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

import (
	"fmt"

	"github.com/gx-org/graphc/build/ir"
)

// FuncValue is a function value: a function literal or a global function,
// the frame in which it has been created, and values bound to its trailing
// parameters by make_closure.
type FuncValue struct {
	Fn *ir.Function
	// Name of the global function. Empty for function literals.
	Name  string
	Env   *frame
	Bound []ir.Value
}

var _ ir.Value = (*FuncValue)(nil)

// Type returns the type of the function.
// Parameters bound by make_closure are not included.
func (f *FuncValue) Type() ir.Type {
	var params []ir.Type
	for _, p := range f.Fn.Params[:len(f.Fn.Params)-len(f.Bound)] {
		params = append(params, p.Annot)
	}
	return &ir.FuncType{Params: params, Result: ir.Opaque("?")}
}

// Equal returns true if other is the same function value.
func (f *FuncValue) Equal(other ir.Value) bool {
	return f == other
}

func (f *FuncValue) String() string {
	if f.Name != "" {
		return "@" + f.Name
	}
	return fmt.Sprintf("closure(%d params)", len(f.Fn.Params))
}
