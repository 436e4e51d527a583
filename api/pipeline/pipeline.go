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

// Package pipeline runs the passes lowering a module to its executable form.
//
// The passes run in this order:
//
//	ExtractBinding, InferType, CanonicalizeOps
//	AutoDiff, AutoDataParallel (optional)
//	BindParam and FoldConstant (optional), DeadCodeElimination
//	FuseOps (optional)
//	AnnotateTarget, MergeCompilerRegions, PartitionGraph (optional)
//	ContextAnalysis, ManifestAlloc, InplaceUpdate and MemShare (optional)
//	LambdaLift
//
// The module is typed again after each pass invalidating the types.
package pipeline

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gx-org/graphc/api/options"
	"github.com/gx-org/graphc/build/infer"
	"github.com/gx-org/graphc/build/ir"
	"github.com/gx-org/graphc/build/ops"
	"github.com/gx-org/graphc/internal/funcpass"
	"github.com/gx-org/graphc/transform/anf"
	"github.com/gx-org/graphc/transform/autodiff"
	"github.com/gx-org/graphc/transform/canonicalize"
	"github.com/gx-org/graphc/transform/dataparallel"
	"github.com/gx-org/graphc/transform/dce"
	"github.com/gx-org/graphc/transform/devctx"
	"github.com/gx-org/graphc/transform/foldconst"
	"github.com/gx-org/graphc/transform/fuse"
	"github.com/gx-org/graphc/transform/inplace"
	"github.com/gx-org/graphc/transform/lambdalift"
	"github.com/gx-org/graphc/transform/manifest"
	"github.com/gx-org/graphc/transform/memshare"
	"github.com/gx-org/graphc/transform/partition"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Result of the compilation of a module.
type Result struct {
	// Module is the typed module in its executable form.
	Module *ir.Module
	// Devices are the devices of the expressions before memory planning.
	Devices *devctx.Result
	// PeakBytes is the maximum number of bytes allocated at once.
	PeakBytes uint64
}

type runner struct {
	reg  *ops.Registry
	opts options.Options
	mod  *ir.Module
}

type pass func(*ir.Module) (*ir.Module, error)

func (r *runner) run(name string, p pass) error {
	start := time.Now()
	mod, err := p(r.mod)
	if err != nil {
		klog.V(1).Infof("%s failed after %s", name, time.Since(start))
		return err
	}
	klog.V(1).Infof("%s: %d functions in %s", name, mod.Len(), time.Since(start))
	if klog.V(2).Enabled() {
		klog.Infof("module after %s:\n%s", name, mod)
	}
	r.mod = mod
	return nil
}

func (r *runner) infer() error {
	return r.run("InferType", func(mod *ir.Module) (*ir.Module, error) {
		return infer.InferType(r.reg, mod)
	})
}

func (r *runner) sequence(passes ...func() error) error {
	for _, p := range passes {
		if err := p(); err != nil {
			return err
		}
	}
	return nil
}

func (r *runner) workers() funcpass.Option {
	return funcpass.Workers(r.opts.Workers)
}

func (r *runner) canonicalize() error {
	return r.sequence(
		func() error {
			return r.run("CanonicalizeOps", func(mod *ir.Module) (*ir.Module, error) {
				return canonicalize.CanonicalizeOps(mod, r.workers())
			})
		},
		r.infer,
	)
}

func (r *runner) frontend() error {
	return r.sequence(
		func() error {
			return r.run("ExtractBinding", func(mod *ir.Module) (*ir.Module, error) {
				return anf.ExtractBinding(mod, r.workers())
			})
		},
		r.infer,
		r.canonicalize,
	)
}

func (r *runner) autodiff() error {
	if !r.opts.AutoDiff {
		if r.opts.DataParallel {
			return errors.Errorf("data parallelism requires automatic differentiation")
		}
		return nil
	}
	passes := []func() error{
		func() error {
			return r.run("AutoDiff", func(mod *ir.Module) (*ir.Module, error) {
				return autodiff.AutoDiff(r.reg, mod, r.opts.Wrt)
			})
		},
		r.infer,
	}
	if r.opts.DataParallel {
		passes = append(passes,
			func() error {
				return r.run("AutoDataParallel", dataparallel.AutoDataParallel)
			},
			r.infer,
		)
	}
	return r.sequence(append(passes, r.canonicalize)...)
}

func (r *runner) simplify() error {
	var passes []func() error
	if len(r.opts.Bind) > 0 {
		passes = append(passes,
			func() error {
				return r.run("BindParam", func(mod *ir.Module) (*ir.Module, error) {
					return foldconst.BindEntry(mod, r.opts.Bind)
				})
			},
			func() error {
				return r.run("FoldConstant", func(mod *ir.Module) (*ir.Module, error) {
					return foldconst.FoldConstant(r.reg, mod, r.workers())
				})
			},
		)
	}
	passes = append(passes,
		func() error {
			return r.run("DeadCodeElimination", func(mod *ir.Module) (*ir.Module, error) {
				return dce.DeadCodeElimination(r.reg, mod, r.workers())
			})
		},
		r.infer,
	)
	return r.sequence(passes...)
}

func (r *runner) fuse() error {
	if !r.opts.Fuse {
		return nil
	}
	table := fuse.DefaultTable(r.opts.MaxFuseSize)
	return r.sequence(
		func() error {
			return r.run("FuseOps", func(mod *ir.Module) (*ir.Module, error) {
				return fuse.FuseOps(r.reg, mod, table)
			})
		},
		r.infer,
	)
}

func (r *runner) partition() error {
	if len(r.opts.Targets) == 0 {
		return nil
	}
	return r.sequence(
		func() error {
			return r.run("AnnotateTarget", func(mod *ir.Module) (*ir.Module, error) {
				return partition.AnnotateTarget(r.reg, mod, r.opts.Targets)
			})
		},
		func() error {
			return r.run("MergeCompilerRegions", partition.MergeCompilerRegions)
		},
		r.infer,
		func() error {
			return r.run("PartitionGraph", func(mod *ir.Module) (*ir.Module, error) {
				return partition.PartitionGraph(r.reg, mod)
			})
		},
		r.infer,
	)
}

func (r *runner) memory(res *Result) error {
	start := time.Now()
	devices, err := devctx.ContextAnalysis(r.mod, r.opts.DefaultDevice)
	if err != nil {
		return err
	}
	klog.V(1).Infof("ContextAnalysis: %d expressions in %s", devices.Len(), time.Since(start))
	res.Devices = devices
	passes := []func() error{
		func() error {
			return r.run("ManifestAlloc", func(mod *ir.Module) (*ir.Module, error) {
				return manifest.ManifestAlloc(r.reg, mod, devices, r.opts.DefaultDevice)
			})
		},
	}
	if r.opts.Inplace {
		passes = append(passes, func() error {
			return r.run("InplaceUpdate", func(mod *ir.Module) (*ir.Module, error) {
				return inplace.InplaceUpdate(r.reg, mod)
			})
		})
	}
	if r.opts.MemShare {
		passes = append(passes, func() error {
			return r.run("MemShare", memshare.MemShare)
		})
	}
	return r.sequence(append(passes, r.infer)...)
}

func (r *runner) lift() error {
	return r.sequence(
		func() error {
			return r.run("LambdaLift", lambdalift.LambdaLift)
		},
		r.infer,
		func() error {
			return lambdalift.Check(r.mod)
		},
	)
}

// Run compiles a module. The first error returned by a pass is returned unchanged.
func Run(reg *ops.Registry, mod *ir.Module, opts options.Options) (*Result, error) {
	r := &runner{reg: reg, opts: opts, mod: mod}
	res := &Result{}
	if err := r.sequence(
		r.frontend,
		r.autodiff,
		r.simplify,
		r.fuse,
		r.partition,
		func() error { return r.memory(res) },
		r.lift,
	); err != nil {
		return nil, err
	}
	res.Module = r.mod
	res.PeakBytes = memshare.PeakBytes(r.mod)
	klog.V(1).Infof("peak memory: %s", humanize.Bytes(res.PeakBytes))
	return res, nil
}
