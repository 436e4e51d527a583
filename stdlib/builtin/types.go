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

package builtin

import (
	"github.com/gx-org/graphc/build/ir"
	"github.com/gx-org/graphc/build/ops"
)

// TensorArg returns the type of an argument that has to be a tensor.
func TensorArg(args ops.ShapeArgs, i int) (*ir.TensorType, error) {
	tt, ok := args.Types[i].(*ir.TensorType)
	if !ok {
		return nil, args.Errorf("argument %d: expected a tensor but got %s", i, args.Types[i])
	}
	return tt, nil
}

// TensorArgs returns the types of all the arguments, checking that they are
// tensors of the same data type.
func TensorArgs(args ops.ShapeArgs) ([]*ir.TensorType, error) {
	tts := make([]*ir.TensorType, len(args.Types))
	for i := range args.Types {
		tt, err := TensorArg(args, i)
		if err != nil {
			return nil, err
		}
		if i > 0 && tt.DType != tts[0].DType {
			return nil, args.Errorf("mismatched data types %s and %s", ir.DTypeName(tts[0].DType), ir.DTypeName(tt.DType))
		}
		tts[i] = tt
	}
	return tts, nil
}

// AttrArg returns the value of an attribute argument.
// Attributes are constants known at compile time.
func AttrArg[T ir.Value](args ops.ShapeArgs, i int) (T, error) {
	var zero T
	if args.Values == nil || args.Values[i] == nil {
		return zero, args.Errorf("argument %d: expected a constant %T attribute", i, zero)
	}
	v, ok := args.Values[i].(T)
	if !ok {
		return zero, args.Errorf("argument %d: expected a %T attribute but got %s", i, zero, args.Values[i].Type())
	}
	return v, nil
}

// IntsArg returns the integers of an attribute argument.
func IntsArg(args ops.ShapeArgs, i int) ([]int, error) {
	v, err := AttrArg[*ir.IntsValue](args, i)
	if err != nil {
		return nil, err
	}
	return v.Vals, nil
}

// CheckOpaqueArg checks that an argument has a given opaque type.
func CheckOpaqueArg(args ops.ShapeArgs, i int, name string) error {
	if !args.Types[i].Equal(ir.Opaque(name)) {
		return args.Errorf("argument %d: expected %s but got %s", i, name, args.Types[i])
	}
	return nil
}

// Dims returns dimensions of known length.
func Dims(lengths []int) []ir.Dim {
	dims := make([]ir.Dim, len(lengths))
	for i, l := range lengths {
		dims[i] = ir.IntDim(l)
	}
	return dims
}

func isOne(d ir.Dim) bool {
	v, ok := d.Value()
	return ok && v == 1
}

// BroadcastDims returns the dimensions of the result of broadcasting two tensors.
// Axes are aligned on the right. An axis of length 1 is broadcast to the other.
// An unresolved axis is assumed to be compatible with the other axis.
func BroadcastDims(x, y []ir.Dim) ([]ir.Dim, bool) {
	if len(x) < len(y) {
		x, y = y, x
	}
	out := append([]ir.Dim{}, x...)
	offset := len(x) - len(y)
	for i, yd := range y {
		xd := x[offset+i]
		switch {
		case isOne(xd):
			out[offset+i] = yd
		case isOne(yd):
			out[offset+i] = xd
		case xd.IsAny():
			out[offset+i] = yd
		case yd.IsAny():
			out[offset+i] = xd
		case xd.Equal(yd):
			out[offset+i] = xd
		default:
			return nil, false
		}
	}
	return out, true
}

// CanBroadcastTo returns true if a tensor with dimensions from can be broadcast to dimensions to.
func CanBroadcastTo(from, to []ir.Dim) bool {
	if len(from) > len(to) {
		return false
	}
	offset := len(to) - len(from)
	for i, fd := range from {
		if !isOne(fd) && !fd.Equal(to[offset+i]) {
			return false
		}
	}
	return true
}

// SameShape returns true if two types are tensors with the same resolved dimensions.
func SameShape(x, y ir.Type) bool {
	xt, xOk := x.(*ir.TensorType)
	yt, yOk := y.(*ir.TensorType)
	if !xOk || !yOk || xt.Rank() != yt.Rank() {
		return false
	}
	for i, xd := range xt.Dims {
		yd := yt.Dims[i]
		if xd.IsAny() || yd.IsAny() || !xd.Equal(yd) {
			return false
		}
	}
	return true
}

// FirstArgType returns the type of the first argument.
func FirstArgType(args ops.ShapeArgs) (ir.Type, error) {
	return args.Types[0], nil
}
