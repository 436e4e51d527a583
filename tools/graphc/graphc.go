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

// Command graphc compiles a dataflow graph described in YAML.
//
// The graph is converted to a module, lowered by the compilation pipeline,
// and the resulting module is printed. With --run, the compiled module is
// evaluated with all its parameters set to one.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gx-org/graphc/api/options"
	"github.com/gx-org/graphc/api/pipeline"
	"github.com/gx-org/graphc/build/ir"
	"github.com/gx-org/graphc/build/ops"
	"github.com/gx-org/graphc/interp"
	"github.com/gx-org/graphc/stdlib"
	"github.com/gx-org/graphc/tools/graphcflag"
	"github.com/gx-org/graphc/transform/fromrelay"
	"github.com/gx-org/graphc/transform/fuse"
	"github.com/gx-org/graphc/transform/partition"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	input       = flag.String("input", "", "YAML file describing the graph to compile")
	output      = flag.String("output", "", "file where the compiled module is written (standard output if empty)")
	printModule = flag.Bool("print", true, "print the compiled module")
	run         = flag.Bool("run", false, "evaluate the compiled module with all parameters set to one")

	device       = graphcflag.Device("device", ir.CPU(0), "default device, for example cpu(0) or cuda(0)")
	fuseOps      = flag.Bool("fuse", true, "fuse operators into primitive functions")
	maxFuseSize  = flag.Int("max_fuse_size", fuse.DefaultMaxSize, "maximum number of operators in a fused function")
	memShare     = flag.Bool("memshare", true, "reuse the storages of dead tensors")
	inplace      = flag.Bool("inplace", true, "write the results of element-wise kernels into dead inputs")
	dataParallel = flag.Bool("data_parallel", false, "sum the gradients of all the processes (requires --autodiff)")
	autoDiff     = flag.Bool("autodiff", false, "replace the entry function by its forward and backward pass")
	wrt          = graphcflag.StringList("wrt", "parameters to differentiate with respect to (all if empty)")
	target       = flag.String("target", "", "name of an external compiler to offload regions to")
	targetOps    = graphcflag.StringList("target_ops", "operators supported by the external compiler")
	workers      = flag.Int("workers", 0, "number of goroutines processing functions (number of CPUs if 0)")
)

func buildOptions() (options.Options, error) {
	opts := options.Default()
	opts.DefaultDevice = *device
	opts.Fuse = *fuseOps
	opts.MaxFuseSize = *maxFuseSize
	opts.MemShare = *memShare
	opts.AutoDiff = *autoDiff
	opts.DataParallel = *dataParallel
	opts.Inplace = *inplace
	opts.Wrt = *wrt
	if *workers > 0 {
		opts.Workers = *workers
	}
	if *target == "" {
		if len(*targetOps) > 0 {
			return opts, errors.Errorf("--target_ops requires --target")
		}
		return opts, nil
	}
	if *target == partition.DefaultTarget {
		return opts, errors.Errorf("%q is reserved for the operators not offloaded", *target)
	}
	opts.Targets = []partition.Target{{
		Name:      *target,
		Supported: partition.OpSet(*targetOps...),
	}}
	return opts, nil
}

// ones returns tensors filled with ones for all the parameters of the entry function.
func ones(reg *ops.Registry, mod *ir.Module) ([]ir.Value, error) {
	fill, err := reg.Lookup(ops.Ones)
	if err != nil {
		return nil, err
	}
	fn := mod.Main()
	args := make([]ir.Value, len(fn.Params))
	for i, param := range fn.Params {
		paramType, _ := mod.TypeOf(param)
		typ, ok := paramType.(*ir.TensorType)
		if !ok {
			return nil, errors.Errorf("cannot create a value for parameter %s of type %v", param.Name, paramType)
		}
		dims, ok := typ.Static()
		if !ok {
			return nil, errors.Errorf("cannot create a value for parameter %s: shape %s is not static", param.Name, typ)
		}
		if args[i], err = fill.Eval([]ir.Value{&ir.IntsValue{Vals: dims}, &ir.DTypeValue{DType: typ.DType}}); err != nil {
			return nil, err
		}
	}
	return args, nil
}

func compile() error {
	if *input == "" {
		return errors.Errorf("no input specified: please use --input to specify a YAML graph")
	}
	opts, err := buildOptions()
	if err != nil {
		return err
	}
	reg, err := stdlib.Default()
	if err != nil {
		return err
	}
	graph, err := fromrelay.LoadFile(*input)
	if err != nil {
		return err
	}
	mod, err := fromrelay.FromRelay(reg, graph)
	if err != nil {
		return err
	}
	res, err := pipeline.Run(reg, mod, opts)
	if err != nil {
		return err
	}
	if err := write(res.Module); err != nil {
		return err
	}
	if !*run {
		return nil
	}
	args, err := ones(reg, res.Module)
	if err != nil {
		return err
	}
	val, err := interp.New(reg, res.Module).Run(args...)
	if err != nil {
		return err
	}
	fmt.Println(val)
	return nil
}

func write(mod *ir.Module) error {
	if !*printModule {
		return nil
	}
	out := os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			return errors.Errorf("cannot create output file: %v", err)
		}
		defer f.Close()
		out = f
	}
	_, err := fmt.Fprintln(out, mod)
	return err
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	err := compile()
	klog.Flush()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}
