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

// Package num provides the linear algebra, reduction and fill operators.
package num

import (
	"github.com/gx-org/graphc/build/ops"
	"github.com/gx-org/graphc/stdlib/builtin"
)

// Package description of the num operators.
var Package = builtin.PackageBuilder{
	FullPath: "num",
	Builders: builtin.BuildOps(
		matmulOp(ops.MatMul, false, false, gradMatMul),
		matmulOp(ops.MatMulNT, false, true, gradMatMulNT),
		matmulOp(ops.MatMulTN, true, false, gradMatMulTN),
		conv2D,
		sum,
		mean,
		fillOp(ops.Zeros, 0),
		fillOp(ops.Ones, 1),
		fillLikeOp(ops.ZerosLike, 0),
		fillLikeOp(ops.OnesLike, 1),
	),
}
