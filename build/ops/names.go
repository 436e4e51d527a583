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

package ops

// Names of the standard operators that passes generate or recognize.
const (
	Add             = "add"
	Subtract        = "subtract"
	Multiply        = "multiply"
	Divide          = "divide"
	Maximum         = "maximum"
	Equal           = "equal"
	Less            = "less"
	Negative        = "negative"
	Exp             = "exp"
	Log             = "log"
	Tanh            = "tanh"
	Sigmoid         = "sigmoid"
	Sqrt            = "sqrt"
	Relu            = "relu"
	ReluDx          = "relu_dx"
	Copy            = "copy"
	MatMul          = "matmul"
	MatMulNT        = "matmul_nt"
	MatMulTN        = "matmul_tn"
	Conv2D          = "conv2d"
	Sum             = "sum"
	Mean            = "mean"
	Reshape         = "reshape"
	ReshapeLike     = "reshape_like"
	BatchFlatten    = "batch_flatten"
	BroadcastTo     = "broadcast_to"
	BroadcastToLike = "broadcast_to_like"
	CollapseSumTo   = "collapse_sum_to"
	CollapseSumLike = "collapse_sum_like"
	Zeros           = "zeros"
	ZerosLike       = "zeros_like"
	Ones            = "ones"
	OnesLike        = "ones_like"

	DeviceCopy = "device_copy"

	AllReduce = "_allreduce"

	StreamStart = "stream_start"
	StreamEnd   = "stream_end"
	StreamWait  = "stream_wait"
	StreamSync  = "stream_sync"

	AllocStorage = "alloc_storage"
	AllocTensor  = "alloc_tensor"
	InvokeOp     = "invoke_op"
	Free         = "free"
	MakeClosure  = "make_closure"

	CompilerBegin = "compiler_begin"
	CompilerEnd   = "compiler_end"
)
