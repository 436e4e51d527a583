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

// Package stdlib provides the standard operators.
package stdlib

import (
	"maps"
	"slices"
	"sync"

	"github.com/gx-org/graphc/build/ops"
	"github.com/gx-org/graphc/stdlib/annotation"
	"github.com/gx-org/graphc/stdlib/builtin"
	"github.com/gx-org/graphc/stdlib/comm"
	"github.com/gx-org/graphc/stdlib/device"
	"github.com/gx-org/graphc/stdlib/math"
	"github.com/gx-org/graphc/stdlib/num"
	"github.com/gx-org/graphc/stdlib/shapes"
	"github.com/gx-org/graphc/stdlib/stream"
	"github.com/gx-org/graphc/stdlib/vm"
	"github.com/pkg/errors"
)

var packages = []builtin.PackageBuilder{
	annotation.Package,
	comm.Package,
	device.Package,
	math.Package,
	num.Package,
	shapes.Package,
	stream.Package,
	vm.Package,
}

// Build registers the operators of the standard library packages in a registry.
func Build(reg *ops.Registry, paths ...string) error {
	libs := make(map[string]builtin.PackageBuilder)
	for _, pkg := range packages {
		libs[pkg.FullPath] = pkg
	}
	if len(paths) == 0 {
		paths = Paths()
	}
	for _, path := range paths {
		pkg, ok := libs[path]
		if !ok {
			return errors.Errorf("package %s is not in std", path)
		}
		if err := builtin.Build(reg, pkg); err != nil {
			return err
		}
	}
	return nil
}

// Registry returns a new registry with all the standard operators.
func Registry() (*ops.Registry, error) {
	reg := ops.NewRegistry()
	if err := Build(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

var defaultRegistry = sync.OnceValues(Registry)

// Default returns a registry with all the standard operators shared by all callers.
// The registry must not be modified.
func Default() (*ops.Registry, error) {
	return defaultRegistry()
}

// Paths returns all the paths in the standard library
// (alphabetically ordered).
func Paths() []string {
	paths := make(map[string]bool)
	for _, pkg := range packages {
		paths[pkg.FullPath] = true
	}
	return slices.Sorted(maps.Keys(paths))
}
