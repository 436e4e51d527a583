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

package ir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/graphc/golang/backend/kernels"
)

type (
	// Value is the value of a constant or the result of an evaluation.
	Value interface {
		fmt.Stringer
		// Type of the value.
		Type() Type
		// Equal returns true if two values are equal.
		Equal(Value) bool
	}

	// TensorValue is a tensor stored on the host.
	TensorValue struct {
		Array kernels.Array
	}

	// TupleValue is a tuple of values.
	TupleValue struct {
		Fields []Value
	}

	// IntsValue is a list of integers, like a shape or axes attribute.
	IntsValue struct {
		Vals []int
	}

	// StringValue is a string attribute.
	StringValue struct {
		Val string
	}

	// DeviceValue is a device attribute.
	DeviceValue struct {
		Device Device
	}

	// DTypeValue is a data type attribute.
	DTypeValue struct {
		DType dtype.DataType
	}
)

// NewTensor returns a tensor value from an array.
func NewTensor(a kernels.Array) *TensorValue {
	return &TensorValue{Array: a}
}

// Type of the tensor.
func (v *TensorValue) Type() Type {
	return TensorFromShape(v.Array.Shape())
}

// Equal returns true if other is a tensor with the same shape and content.
func (v *TensorValue) Equal(other Value) bool {
	o, ok := other.(*TensorValue)
	return ok && kernels.Equal(v.Array, o.Array)
}

func (v *TensorValue) String() string {
	return v.Array.String()
}

// Type of the tuple.
func (v *TupleValue) Type() Type {
	fields := make([]Type, len(v.Fields))
	for i, f := range v.Fields {
		fields[i] = f.Type()
	}
	return &TupleType{Fields: fields}
}

// Equal returns true if other is a tuple with equal fields.
func (v *TupleValue) Equal(other Value) bool {
	o, ok := other.(*TupleValue)
	if !ok || len(o.Fields) != len(v.Fields) {
		return false
	}
	for i, f := range v.Fields {
		if !f.Equal(o.Fields[i]) {
			return false
		}
	}
	return true
}

func (v *TupleValue) String() string {
	ss := make([]string, len(v.Fields))
	for i, f := range v.Fields {
		ss[i] = f.String()
	}
	return "(" + strings.Join(ss, ", ") + ")"
}

// Ints returns an attribute value storing integers.
func Ints(vals ...int) *IntsValue {
	return &IntsValue{Vals: vals}
}

// Type of the attribute.
func (v *IntsValue) Type() Type {
	return Opaque(IntsTypeName)
}

// Equal returns true if other stores the same integers.
func (v *IntsValue) Equal(other Value) bool {
	o, ok := other.(*IntsValue)
	if !ok || len(o.Vals) != len(v.Vals) {
		return false
	}
	for i, x := range v.Vals {
		if o.Vals[i] != x {
			return false
		}
	}
	return true
}

func (v *IntsValue) String() string {
	ss := make([]string, len(v.Vals))
	for i, x := range v.Vals {
		ss[i] = strconv.Itoa(x)
	}
	return "[" + strings.Join(ss, ", ") + "]"
}

// Type of the attribute.
func (v *StringValue) Type() Type {
	return Opaque(StringTypeName)
}

// Equal returns true if other is the same string.
func (v *StringValue) Equal(other Value) bool {
	o, ok := other.(*StringValue)
	return ok && o.Val == v.Val
}

func (v *StringValue) String() string {
	return strconv.Quote(v.Val)
}

// Type of the attribute.
func (v *DeviceValue) Type() Type {
	return Opaque(DeviceTypeName)
}

// Equal returns true if other is the same device.
func (v *DeviceValue) Equal(other Value) bool {
	o, ok := other.(*DeviceValue)
	return ok && o.Device == v.Device
}

func (v *DeviceValue) String() string {
	return v.Device.String()
}

// Type of the attribute.
func (v *DTypeValue) Type() Type {
	return Opaque(DTypeTypeName)
}

// Equal returns true if other is the same data type.
func (v *DTypeValue) Equal(other Value) bool {
	o, ok := other.(*DTypeValue)
	return ok && o.DType == v.DType
}

func (v *DTypeValue) String() string {
	return DTypeName(v.DType)
}
