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

package funcpass_test

import (
	"fmt"
	"testing"

	"github.com/gx-org/graphc/build/fmterr"
	"github.com/gx-org/graphc/build/ir"
	ih "github.com/gx-org/graphc/build/ir/irhelper"
	"github.com/gx-org/graphc/internal/funcpass"
	"go.uber.org/multierr"
)

func module(n int) *ir.Module {
	mod := ir.NewModule()
	for i := range n {
		x := ih.Param("x", ih.F32())
		mod.Add(fmt.Sprintf("f%d", i), ir.NewFunc([]*ir.Var{x}, x))
	}
	return mod
}

func TestRun(t *testing.T) {
	mod := module(10)
	out, err := funcpass.Run(mod, func(name string, fn *ir.Function) (*ir.Function, error) {
		return fn.WithBody(&ir.Tuple{Fields: []ir.Expr{fn.Body}}), nil
	}, funcpass.Workers(3))
	if err != nil {
		t.Fatal(err)
	}
	if got, want := out.Names(), mod.Names(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("got functions %v but want %v", got, want)
	}
	for name, fn := range out.Funcs() {
		if _, ok := fn.Body.(*ir.Tuple); !ok {
			t.Errorf("function %s has not been rewritten", name)
		}
		orig, _ := mod.Lookup(name)
		if _, ok := orig.Body.(*ir.Var); !ok {
			t.Errorf("function %s of the input module has been modified", name)
		}
	}
}

func TestErrors(t *testing.T) {
	mod := module(5)
	_, err := funcpass.Run(mod, func(name string, fn *ir.Function) (*ir.Function, error) {
		if name == "f1" || name == "f3" {
			return nil, fmterr.Errorf(fmterr.TypeInference, fn, "error in %s", name)
		}
		return fn, nil
	})
	errs := multierr.Errors(err)
	if len(errs) != 2 {
		t.Fatalf("got %d errors but want 2: %v", len(errs), err)
	}
	for i, name := range []string{"f1", "f3"} {
		want := fmt.Sprintf("error in %s", name)
		cErr, ok := errs[i].(*fmterr.Error)
		if !ok || cErr.Err.Error() != want {
			t.Errorf("error %d: got %v but want %q", i, errs[i], want)
		}
	}
	if !fmterr.Is(err, fmterr.TypeInference) {
		t.Errorf("got %v but want a type inference error", err)
	}
}
