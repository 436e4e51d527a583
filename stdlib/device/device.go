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

// Package device provides the operator copying tensors across devices.
package device

import (
	"github.com/gx-org/graphc/build/ir"
	"github.com/gx-org/graphc/build/ops"
	"github.com/gx-org/graphc/stdlib/builtin"
)

// Package description of the device operators.
var Package = builtin.PackageBuilder{
	FullPath: "device",
	Builders: builtin.BuildOps(deviceCopy),
}

// deviceCopy copies a tensor from a source device to a destination device:
//
//	device_copy(x, src, dst)
//
// It is the only operator whose result may live on a different device than its argument.
var deviceCopy = &ops.Meta{
	Name:    ops.DeviceCopy,
	Arity:   3,
	Pattern: ops.Opaque,
	Infer: func(args ops.ShapeArgs) (ir.Type, error) {
		for i := 1; i <= 2; i++ {
			if _, err := builtin.AttrArg[*ir.DeviceValue](args, i); err != nil {
				return nil, err
			}
		}
		return builtin.TensorArg(args, 0)
	},
	Eval: builtin.EvalIdentity,
	Grad: func(g *ops.GradArgs) ([]ir.Expr, error) {
		return []ir.Expr{g.Bind(ops.DeviceCopy, g.DOut, g.Arg(2), g.Arg(1)), nil, nil}, nil
	},
}

// Devices returns the source and destination devices of a call to device_copy.
// It returns false if the call is not a device copy with constant devices.
func Devices(call *ir.Call) (src, dst ir.Device, ok bool) {
	if !ir.IsOpCall(call, ops.DeviceCopy) || len(call.Args) != 3 {
		return src, dst, false
	}
	srcV, srcOk := constDevice(call.Args[1])
	dstV, dstOk := constDevice(call.Args[2])
	return srcV, dstV, srcOk && dstOk
}

func constDevice(e ir.Expr) (ir.Device, bool) {
	c, ok := e.(*ir.Constant)
	if !ok {
		return ir.Device{}, false
	}
	dv, ok := c.Value.(*ir.DeviceValue)
	if !ok {
		return ir.Device{}, false
	}
	return dv.Device, true
}
