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
	"strings"

	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/backend/shape"
	"github.com/gx-org/graphc/internal/canonical"
	"github.com/pkg/errors"
)

// ----------------------------------------------------------------------------
// Types definition.
type (
	// Type of an expression.
	Type interface {
		Node
		fmt.Stringer
		typ()

		// Equal returns true if other is the same type.
		// Unresolved dimensions are equal to any dimension.
		Equal(other Type) bool
	}

	// TensorType is the type of a tensor.
	TensorType struct {
		DType dtype.DataType
		Dims  []Dim
	}

	// TupleType is the type of a tuple.
	TupleType struct {
		Fields []Type
	}

	// FuncType is the type of a function.
	FuncType struct {
		Params []Type
		Result Type
	}

	// OpaqueType is the type of values that are not tensors,
	// like storage buffers or operator attributes.
	OpaqueType struct {
		Name string
	}
)

// Names of opaque types.
const (
	StorageTypeName = "storage"
	IntsTypeName    = "ints"
	StringTypeName  = "str"
	DeviceTypeName  = "device"
	DTypeTypeName   = "dtype"
)

func (*TensorType) node() {}
func (*TensorType) typ()  {}
func (*TupleType) node()  {}
func (*TupleType) typ()   {}
func (*FuncType) node()   {}
func (*FuncType) typ()    {}
func (*OpaqueType) node() {}
func (*OpaqueType) typ()  {}

// Dim is the length of an axis of a tensor.
// The length is either known, symbolic, or unresolved.
type Dim struct {
	expr canonical.Expr
}

// IntDim returns a dimension of known length.
func IntDim(n int) Dim {
	return Dim{expr: canonical.Int(n)}
}

// SymDim returns a symbolic dimension.
func SymDim(name string) Dim {
	return Dim{expr: canonical.Symbol(name)}
}

// AnyDim returns an unresolved dimension.
func AnyDim() Dim {
	return Dim{}
}

// DimFromExpr returns a dimension given a canonical expression.
func DimFromExpr(expr canonical.Expr) Dim {
	return Dim{expr: expr}
}

// IsAny returns true if the dimension is unresolved.
func (d Dim) IsAny() bool {
	return d.expr == nil
}

// Expr returns the canonical expression of the dimension.
// It returns nil for unresolved dimensions.
func (d Dim) Expr() canonical.Expr {
	return d.expr
}

// Value returns the length of the axis if it is known.
func (d Dim) Value() (int, bool) {
	if d.expr == nil {
		return 0, false
	}
	return d.expr.Value()
}

// Equal returns true if two dimensions are equal.
// Unresolved dimensions are equal to any other dimension.
func (d Dim) Equal(o Dim) bool {
	if d.IsAny() || o.IsAny() {
		return true
	}
	return d.expr.Compare(o.expr)
}

func (d Dim) String() string {
	if d.expr == nil {
		return "?"
	}
	return d.expr.String()
}

// MulDims returns the product of dimensions.
func MulDims(ds ...Dim) Dim {
	exprs := make([]canonical.Expr, len(ds))
	for i, d := range ds {
		if d.IsAny() {
			return AnyDim()
		}
		exprs[i] = d.expr
	}
	return Dim{expr: canonical.Mul(exprs...)}
}

// Tensor returns a tensor type with known dimensions.
func Tensor(dt dtype.DataType, dims ...int) *TensorType {
	ds := make([]Dim, len(dims))
	for i, d := range dims {
		ds[i] = IntDim(d)
	}
	return &TensorType{DType: dt, Dims: ds}
}

// TensorDims returns a tensor type given its dimensions.
func TensorDims(dt dtype.DataType, dims ...Dim) *TensorType {
	return &TensorType{DType: dt, Dims: dims}
}

// TensorFromShape returns the type of a tensor given its shape.
func TensorFromShape(sh *shape.Shape) *TensorType {
	return Tensor(sh.DType, sh.AxisLengths...)
}

// Opaque returns an opaque type.
func Opaque(name string) *OpaqueType {
	return &OpaqueType{Name: name}
}

// Rank returns the number of axes of the tensor.
func (t *TensorType) Rank() int {
	return len(t.Dims)
}

// Static returns the lengths of the axes if they are all known.
func (t *TensorType) Static() ([]int, bool) {
	dims := make([]int, len(t.Dims))
	for i, d := range t.Dims {
		v, ok := d.Value()
		if !ok {
			return nil, false
		}
		dims[i] = v
	}
	return dims, true
}

// Shape returns the shape of the tensor if all its dimensions are known.
func (t *TensorType) Shape() (*shape.Shape, bool) {
	dims, ok := t.Static()
	if !ok {
		return nil, false
	}
	return &shape.Shape{DType: t.DType, AxisLengths: dims}, true
}

// ByteSize returns the number of bytes of the tensor if its shape is known.
func (t *TensorType) ByteSize() (int, bool) {
	sh, ok := t.Shape()
	if !ok {
		return 0, false
	}
	return sh.ByteSize(), true
}

// Equal returns true if other is a tensor type with the same data type and dimensions.
func (t *TensorType) Equal(other Type) bool {
	o, ok := other.(*TensorType)
	if !ok || o.DType != t.DType || len(o.Dims) != len(t.Dims) {
		return false
	}
	for i, d := range t.Dims {
		if !d.Equal(o.Dims[i]) {
			return false
		}
	}
	return true
}

func (t *TensorType) String() string {
	dims := make([]string, len(t.Dims))
	for i, d := range t.Dims {
		dims[i] = d.String()
	}
	return fmt.Sprintf("%s[%s]", DTypeName(t.DType), strings.Join(dims, ", "))
}

// Equal returns true if other is a tuple type with equal fields.
func (t *TupleType) Equal(other Type) bool {
	o, ok := other.(*TupleType)
	if !ok {
		return false
	}
	return typesEqual(t.Fields, o.Fields)
}

func (t *TupleType) String() string {
	return "(" + typesString(t.Fields) + ")"
}

// Equal returns true if other is a function type with the same signature.
func (t *FuncType) Equal(other Type) bool {
	o, ok := other.(*FuncType)
	if !ok {
		return false
	}
	return typesEqual(t.Params, o.Params) && t.Result.Equal(o.Result)
}

func (t *FuncType) String() string {
	return fmt.Sprintf("fn(%s) -> %s", typesString(t.Params), t.Result.String())
}

// Equal returns true if other is an opaque type with the same name.
func (t *OpaqueType) Equal(other Type) bool {
	o, ok := other.(*OpaqueType)
	return ok && o.Name == t.Name
}

func (t *OpaqueType) String() string {
	return t.Name
}

func typesEqual(xs, ys []Type) bool {
	if len(xs) != len(ys) {
		return false
	}
	for i, x := range xs {
		if !x.Equal(ys[i]) {
			return false
		}
	}
	return true
}

func typesString(ts []Type) string {
	ss := make([]string, len(ts))
	for i, t := range ts {
		ss[i] = t.String()
	}
	return strings.Join(ss, ", ")
}

// TensorLeaves returns the tensor types of a type, flattening tuples.
// It returns false if the type contains a non-tensor type.
func TensorLeaves(t Type) ([]*TensorType, bool) {
	switch tT := t.(type) {
	case *TensorType:
		return []*TensorType{tT}, true
	case *TupleType:
		var all []*TensorType
		for _, f := range tT.Fields {
			leaves, ok := TensorLeaves(f)
			if !ok {
				return nil, false
			}
			all = append(all, leaves...)
		}
		return all, true
	}
	return nil, false
}

var dtypeNames = map[dtype.DataType]string{
	dtype.Bool:    "bool",
	dtype.Float32: "float32",
	dtype.Float64: "float64",
	dtype.Int32:   "int32",
	dtype.Int64:   "int64",
	dtype.Uint32:  "uint32",
	dtype.Uint64:  "uint64",
}

// DTypeName returns the name of a data type as printed in the IR.
func DTypeName(dt dtype.DataType) string {
	if name, ok := dtypeNames[dt]; ok {
		return name
	}
	return dt.String()
}

// ParseDType returns a data type given its name.
func ParseDType(name string) (dtype.DataType, error) {
	for dt, dtName := range dtypeNames {
		if dtName == name {
			return dt, nil
		}
	}
	return dtype.Invalid, errors.Errorf("unknown data type %q", name)
}
