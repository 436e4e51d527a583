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

// Package kernels implement Go reference kernels used to evaluate operators
// at compile time and to interpret programs.
package kernels

import (
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/backend/shape"
	"github.com/pkg/errors"
)

type (
	// Array is a multi-dimensional array managed by Go.
	Array interface {
		// Factory returns the kernels available for the array.
		Factory() Factory

		// Shape returns the shape of the array.
		Shape() *shape.Shape

		// Buffer returns the data of the array as a generic []uint8 buffer.
		Buffer() []byte

		// ToAtom returns the atomic value contained in the array.
		// It returns an error if the array contains more than one value.
		ToAtom() (any, error)

		// Float64s returns the values of the array converted to float64.
		Float64s() []float64

		// String representation of the array.
		String() string
	}

	// Unary like - or reshape.
	Unary func(Array) (Array, error)

	// Binary like +, -, *, /.
	Binary func(Array, Array) (Array, error)

	// Factory creates kernels for arrays of a given data type.
	Factory interface {
		// DType returns the data type of the arrays created by the factory.
		DType() dtype.DataType

		// Fill returns an array of a given shape where all elements are v.
		Fill(dims []int, v float64) Array

		UnaryOp(UnaryOp, *shape.Shape) (Unary, *shape.Shape, error)

		BinaryOp(BinaryOp, *shape.Shape, *shape.Shape) (Binary, *shape.Shape, error)

		Reshape(*shape.Shape, []int) (Unary, *shape.Shape, error)

		// BroadcastTo repeats the elements of an array along broadcast axes.
		BroadcastTo(*shape.Shape, []int) (Unary, *shape.Shape, error)

		// SumTo sums the elements of an array along the axes that have been
		// broadcast from the target dimensions.
		SumTo(*shape.Shape, []int) (Unary, *shape.Shape, error)

		// MatMul multiplies two matrices, optionally transposing them first.
		MatMul(x, y *shape.Shape, transX, transY bool) (Binary, *shape.Shape, error)

		// Conv2D computes a NCHW/OIHW 2D convolution.
		Conv2D(x, w *shape.Shape, cfg ConvConfig) (Binary, *shape.Shape, error)
	}

	// element are the Go types supported by the kernels.
	element interface {
		number | bool
	}

	number interface {
		float32 | float64 | int32 | int64
	}
)

// UnaryOp is a unary operator.
type UnaryOp int

// Unary operators.
const (
	Copy UnaryOp = iota
	Neg
	Exp
	Log
	Tanh
	Sigmoid
	Sqrt
	Relu
)

// BinaryOp is a binary operator.
type BinaryOp int

// Binary operators.
const (
	Add BinaryOp = iota
	Sub
	Mul
	Div
	Max
	Eq
	Less
	// ReluGrad returns its second operand where its first operand is positive, 0 elsewhere.
	ReluGrad
)

// ConvConfig is the configuration of a 2D convolution.
type ConvConfig struct {
	Stride, Padding, Dilation [2]int
}

// FactoryFor returns a factory given a data type.
func FactoryFor(dt dtype.DataType) (Factory, error) {
	switch dt {
	case dtype.Bool:
		return boolFactory{}, nil
	case dtype.Float32:
		return algebraFactory[float32]{dt: dt}, nil
	case dtype.Float64:
		return algebraFactory[float64]{dt: dt}, nil
	case dtype.Int32:
		return algebraFactory[int32]{dt: dt}, nil
	case dtype.Int64:
		return algebraFactory[int64]{dt: dt}, nil
	default:
		return nil, errors.Errorf("no kernels for data type %s", dt.String())
	}
}

func dtypeOf[T element]() dtype.DataType {
	switch any(*new(T)).(type) {
	case bool:
		return dtype.Bool
	case float32:
		return dtype.Float32
	case float64:
		return dtype.Float64
	case int32:
		return dtype.Int32
	case int64:
		return dtype.Int64
	}
	return dtype.Invalid
}

func factoryOf[T element]() Factory {
	f, err := FactoryFor(dtypeOf[T]())
	if err != nil {
		// Cannot happen: all element types have a factory.
		panic(err)
	}
	return f
}

// ToArray returns an array given its flat values and its axis lengths.
func ToArray[T element](values []T, dims []int) (Array, error) {
	sh := shape.Shape{DType: dtypeOf[T](), AxisLengths: append([]int{}, dims...)}
	if sh.Size() != len(values) {
		return nil, errors.Errorf("got %d values but shape %s requires %d", len(values), sh.String(), sh.Size())
	}
	return &arrayT[T]{
		shape:   sh,
		values:  append([]T{}, values...),
		factory: factoryOf[T](),
	}, nil
}

// Scalar returns an atomic array.
func Scalar[T element](v T) Array {
	return &arrayT[T]{
		shape:   shape.Shape{DType: dtypeOf[T]()},
		values:  []T{v},
		factory: factoryOf[T](),
	}
}

// Zeros returns an array of zeros given a shape.
func Zeros(sh *shape.Shape) (Array, error) {
	f, err := FactoryFor(sh.DType)
	if err != nil {
		return nil, err
	}
	return f.Fill(sh.AxisLengths, 0), nil
}

// Equal returns true if two arrays have the same shape and the same bytes.
func Equal(x, y Array) bool {
	xs, ys := x.Shape(), y.Shape()
	if xs.DType != ys.DType || len(xs.AxisLengths) != len(ys.AxisLengths) {
		return false
	}
	for i, d := range xs.AxisLengths {
		if ys.AxisLengths[i] != d {
			return false
		}
	}
	xb, yb := x.Buffer(), y.Buffer()
	if len(xb) != len(yb) {
		return false
	}
	for i := range xb {
		if xb[i] != yb[i] {
			return false
		}
	}
	return true
}
