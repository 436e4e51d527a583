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

// Package stream provides the operators synchronizing execution streams.
//
// The operators take a tensor and a stream tag and return the tensor.
// They are effectful: their order relative to other effectful operators is preserved.
package stream

import (
	"github.com/gx-org/graphc/build/ir"
	"github.com/gx-org/graphc/build/ops"
	"github.com/gx-org/graphc/stdlib/builtin"
)

// Package description of the stream operators.
var Package = builtin.PackageBuilder{
	FullPath: "stream",
	Builders: builtin.BuildOps(
		streamOp(ops.StreamStart),
		streamOp(ops.StreamEnd),
		streamOp(ops.StreamWait),
		streamOp(ops.StreamSync),
	),
}

func streamOp(name string) *ops.Meta {
	return &ops.Meta{
		Name:    name,
		Arity:   2,
		Pattern: ops.Opaque,
		Infer: func(args ops.ShapeArgs) (ir.Type, error) {
			if _, err := builtin.IntsArg(args, 1); err != nil {
				return nil, err
			}
			return args.Types[0], nil
		},
		Eval: builtin.EvalIdentity,
	}
}
