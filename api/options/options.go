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

// Package options specifies the options of the compilation pipeline.
package options

import (
	"runtime"

	"github.com/gx-org/graphc/build/ir"
	"github.com/gx-org/graphc/transform/fuse"
	"github.com/gx-org/graphc/transform/partition"
)

// Options selects the passes run by the pipeline and their parameters.
type Options struct {
	// DefaultDevice is the device of expressions without device constraint.
	DefaultDevice ir.Device

	// AutoDiff replaces the entry function by its forward and backward pass.
	AutoDiff bool
	// Wrt lists the names of the parameters to differentiate with respect to.
	// All the parameters are used if empty.
	Wrt []string
	// DataParallel sums the gradients of all the processes with _allreduce.
	// It requires AutoDiff.
	DataParallel bool

	// Bind are values bound to the leading parameters of the entry function
	// before constant folding. A nil value leaves the parameter free.
	Bind []ir.Value

	// Fuse groups operators into primitive functions.
	Fuse bool
	// MaxFuseSize is the maximum number of operators in a fused group.
	MaxFuseSize int

	// Targets are the external compilers to which regions are offloaded.
	// Partitioning is skipped if empty.
	Targets []partition.Target

	// Inplace writes the results of element-wise kernels into the storage
	// of a dead input.
	Inplace bool
	// MemShare reuses the storages of dead tensors.
	MemShare bool

	// Workers is the number of goroutines processing functions in parallel.
	Workers int
}

// Default returns the default options.
func Default() Options {
	return Options{
		DefaultDevice: ir.CPU(0),
		Fuse:          true,
		MaxFuseSize:   fuse.DefaultMaxSize,
		Inplace:       true,
		MemShare:      true,
		Workers:       runtime.GOMAXPROCS(0),
	}
}
