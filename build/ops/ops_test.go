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

package ops_test

import (
	"testing"

	"github.com/gx-org/graphc/build/fmterr"
	"github.com/gx-org/graphc/build/ir"
	"github.com/gx-org/graphc/build/ops"
)

func TestRegistry(t *testing.T) {
	reg := ops.NewRegistry()
	if err := reg.Register(
		&ops.Meta{Name: "add", Arity: 2, Pattern: ops.Broadcast, Pure: true},
		&ops.Meta{Name: "print", Arity: 1, Pattern: ops.Opaque},
	); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(&ops.Meta{Name: "add"}); err == nil {
		t.Errorf("expected an error when registering add twice")
	}
	_, err := reg.Lookup("foo")
	if !fmterr.Is(err, fmterr.UnknownOperator) {
		t.Errorf("got error %v but want an unknown operator error", err)
	}
	add, err := reg.Lookup("add")
	if err != nil {
		t.Fatal(err)
	}
	if err := add.CheckArity(nil, 3); !fmterr.Is(err, fmterr.Arity) {
		t.Errorf("got error %v but want an arity error", err)
	}
	x := ir.NewVar("x", nil)
	tests := []struct {
		e    ir.Expr
		want bool
	}{
		{e: ir.CallOp("add", x, x), want: true},
		{e: ir.CallOp("print", x), want: false},
		{e: &ir.Tuple{Fields: []ir.Expr{ir.CallOp("add", x, ir.CallOp("print", x))}}, want: false},
		{e: &ir.Call{Op: ir.Global("f"), Args: []ir.Expr{x}}, want: false},
		{e: ir.NewFunc([]*ir.Var{x}, ir.CallOp("print", x)), want: true},
		{e: ir.CallOp("unknown", x), want: false},
	}
	for i, test := range tests {
		if got := reg.IsPure(test.e); got != test.want {
			t.Errorf("test %d: IsPure(%s) = %v but want %v", i, test.e, got, test.want)
		}
	}
	if got := reg.Names(); len(got) != 2 || got[0] != "add" {
		t.Errorf("got names %v but want [add print]", got)
	}
}
