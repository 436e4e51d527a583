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

package num

import (
	"github.com/gx-org/graphc/build/ir"
	"github.com/gx-org/graphc/build/ops"
	"github.com/gx-org/graphc/golang/backend/kernels"
	"github.com/gx-org/graphc/internal/canonical"
	"github.com/gx-org/graphc/stdlib/builtin"
)

// conv2D is a 2D convolution of a NCHW input with a OIHW kernel:
//
//	conv2d(x, w, stride, padding, dilation)
//
// where stride, padding and dilation are pairs of integers (height, width).
var conv2D = &ops.Meta{
	Name:    ops.Conv2D,
	Arity:   5,
	Pattern: ops.OutEWiseFusable,
	Pure:    true,
	Infer:   conv2DType,
	Eval:    evalConv2D,
}

func pairArg(args ops.ShapeArgs, i int) ([2]int, error) {
	vals, err := builtin.IntsArg(args, i)
	if err != nil {
		return [2]int{}, err
	}
	if len(vals) != 2 {
		return [2]int{}, args.Errorf("argument %d: expected 2 integers but got %v", i, vals)
	}
	return [2]int{vals[0], vals[1]}, nil
}

func convConfig(args ops.ShapeArgs) (cfg kernels.ConvConfig, err error) {
	if cfg.Stride, err = pairArg(args, 2); err != nil {
		return
	}
	if cfg.Padding, err = pairArg(args, 3); err != nil {
		return
	}
	if cfg.Dilation, err = pairArg(args, 4); err != nil {
		return
	}
	for i := range 2 {
		if cfg.Stride[i] <= 0 || cfg.Dilation[i] <= 0 || cfg.Padding[i] < 0 {
			return cfg, args.Errorf("invalid convolution configuration %+v", cfg)
		}
	}
	return cfg, nil
}

// convDim returns (in + 2*padding - dilation*(kernel-1) - 1)/stride + 1.
func convDim(in, kernel ir.Dim, stride, padding, dilation int) ir.Dim {
	if in.IsAny() || kernel.IsAny() {
		return ir.AnyDim()
	}
	inV, inOk := in.Value()
	kernelV, kernelOk := kernel.Value()
	if inOk && kernelOk {
		return ir.IntDim(kernels.ConvOutDim(inV, kernelV, stride, padding, dilation))
	}
	span := canonical.Add(
		canonical.Mul(canonical.Int(dilation), canonical.Sub(kernel.Expr(), canonical.Int(1))),
		canonical.Int(1),
	)
	num := canonical.Sub(canonical.Add(in.Expr(), canonical.Int(2*padding)), span)
	return ir.DimFromExpr(canonical.Add(canonical.FloorDiv(num, canonical.Int(stride)), canonical.Int(1)))
}

func conv2DType(args ops.ShapeArgs) (ir.Type, error) {
	x, err := builtin.TensorArg(args, 0)
	if err != nil {
		return nil, err
	}
	w, err := builtin.TensorArg(args, 1)
	if err != nil {
		return nil, err
	}
	if x.DType != w.DType {
		return nil, args.Errorf("mismatched data types %s and %s", ir.DTypeName(x.DType), ir.DTypeName(w.DType))
	}
	if x.Rank() != 4 || w.Rank() != 4 {
		return nil, args.Errorf("expected 4-axis input and kernel but got %s and %s", x, w)
	}
	if !x.Dims[1].Equal(w.Dims[1]) {
		return nil, args.Errorf("input channels of %s do not match kernel %s", x, w)
	}
	cfg, err := convConfig(args)
	if err != nil {
		return nil, err
	}
	return ir.TensorDims(x.DType,
		x.Dims[0],
		w.Dims[0],
		convDim(x.Dims[2], w.Dims[2], cfg.Stride[0], cfg.Padding[0], cfg.Dilation[0]),
		convDim(x.Dims[3], w.Dims[3], cfg.Stride[1], cfg.Padding[1], cfg.Dilation[1]),
	), nil
}

func evalConv2D(args []ir.Value) (ir.Value, error) {
	x, err := builtin.Array(args, 0)
	if err != nil {
		return nil, err
	}
	w, err := builtin.Array(args, 1)
	if err != nil {
		return nil, err
	}
	var cfg kernels.ConvConfig
	for i, dst := range []*[2]int{&cfg.Stride, &cfg.Padding, &cfg.Dilation} {
		vals, err := builtin.Ints(args, i+2)
		if err != nil {
			return nil, err
		}
		copy(dst[:], vals)
	}
	kernel, _, err := x.Factory().Conv2D(x.Shape(), w.Shape(), cfg)
	if err != nil {
		return nil, err
	}
	out, err := kernel(x, w)
	if err != nil {
		return nil, err
	}
	return ir.NewTensor(out), nil
}
