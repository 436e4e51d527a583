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

package builtin

import (
	"github.com/gx-org/graphc/build/ir"
	"github.com/gx-org/graphc/build/ops"
)

// Unbroadcast returns the gradient of the ith argument of a broadcasting
// operator given a gradient with the shape of the result.
// Axes that have been broadcast are summed.
func Unbroadcast(g *ops.GradArgs, grad ir.Expr, i int) ir.Expr {
	if SameShape(g.ArgTypes[i], g.OutType) {
		return grad
	}
	return g.Bind(ops.CollapseSumLike, grad, g.Arg(i))
}
