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

// Package builtin defines interfaces and helper methods to provide builtin operators.
package builtin

import (
	"github.com/gx-org/graphc/build/ops"
	"github.com/pkg/errors"
)

type (
	// Builder registers operators of a builtin package.
	Builder interface {
		// Name of the builder (for debugging purpose only).
		Name() string
		// Build registers the operators in the registry.
		Build(*ops.Registry) error
	}

	// PackageBuilder builds a builtin package, that is a set of operators.
	PackageBuilder struct {
		// FullPath is the full path to the package, including its path and its name.
		FullPath string
		// Builders are the steps required to build the package.
		Builders []Builder
	}
)

// Build a package from its description.
func Build(reg *ops.Registry, pkgBuilder PackageBuilder) error {
	for _, builder := range pkgBuilder.Builders {
		if err := builder.Build(reg); err != nil {
			return errors.Wrapf(err, "cannot build %s in package %s", builder.Name(), pkgBuilder.FullPath)
		}
	}
	return nil
}

type opBuilder struct {
	meta *ops.Meta
}

// BuildOp returns a builder registering an operator.
func BuildOp(meta *ops.Meta) Builder {
	return opBuilder{meta: meta}
}

func (b opBuilder) Name() string {
	return b.meta.Name
}

func (b opBuilder) Build(reg *ops.Registry) error {
	return reg.Register(b.meta)
}

// BuildOps returns builders registering a list of operators.
func BuildOps(metas ...*ops.Meta) []Builder {
	builders := make([]Builder, len(metas))
	for i, meta := range metas {
		builders[i] = BuildOp(meta)
	}
	return builders
}
