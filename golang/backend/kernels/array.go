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

package kernels

import (
	"unsafe"

	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/backend/shape"
	"github.com/pkg/errors"
)

// arrayT is a multi-dimensional array stored by the host.
type arrayT[T element] struct {
	shape   shape.Shape
	values  []T
	factory Factory
}

var _ Array = (*arrayT[int32])(nil)

func toArray[T element](a Array) *arrayT[T] {
	return a.(*arrayT[T])
}

func newArrayT[T element](f Factory, dims []int, values []T) *arrayT[T] {
	return &arrayT[T]{
		shape: shape.Shape{
			DType:       f.DType(),
			AxisLengths: dims,
		},
		values:  values,
		factory: f,
	}
}

// Shape of the array.
func (a *arrayT[T]) Shape() *shape.Shape {
	return &a.shape
}

// Flat values of the array.
func (a *arrayT[T]) Flat() []T {
	return a.values
}

// String representation of the array.
func (a *arrayT[T]) String() string {
	return format(a.values, a.shape.AxisLengths)
}

// Buffer returns the data of the array as a generic []byte buffer.
func (a *arrayT[T]) Buffer() []byte {
	if len(a.values) == 0 {
		return nil
	}
	ptr := unsafe.Pointer(&(a.values[0]))
	return unsafe.Slice((*byte)(ptr), len(a.values)*dtype.Sizeof(a.shape.DType))
}

// Factory available for arrays.
func (a *arrayT[T]) Factory() Factory {
	return a.factory
}

// ToAtom returns the atomic value contained in the array.
// It returns an error if the value is not atomic, that is if the array
// contains more than one value.
func (a *arrayT[T]) ToAtom() (any, error) {
	if len(a.values) != 1 {
		return nil, errors.Errorf("%s not atomic", a.shape.String())
	}
	return a.values[0], nil
}

// Float64s returns the values converted to float64.
func (a *arrayT[T]) Float64s() []float64 {
	r := make([]float64, len(a.values))
	for i, v := range a.values {
		r[i] = toFloat64(v)
	}
	return r
}

func toFloat64[T element](v T) float64 {
	switch vT := any(v).(type) {
	case bool:
		if vT {
			return 1
		}
		return 0
	case float32:
		return float64(vT)
	case float64:
		return vT
	case int32:
		return float64(vT)
	case int64:
		return float64(vT)
	}
	return 0
}

func fromFloat64[T number](v float64) T {
	return T(v)
}

func sameDims(x, y []int) bool {
	if len(x) != len(y) {
		return false
	}
	for i, d := range x {
		if y[i] != d {
			return false
		}
	}
	return true
}

func size(dims []int) int {
	n := 1
	for _, d := range dims {
		n *= d
	}
	return n
}

// reshape is shared by all factories: the order of the elements does not change.
func reshape[T element](f Factory, x *shape.Shape, dims []int) (Unary, *shape.Shape, error) {
	out, err := inferReshape(x.AxisLengths, dims)
	if err != nil {
		return nil, nil, err
	}
	shapeOut := &shape.Shape{DType: x.DType, AxisLengths: out}
	return func(a Array) (Array, error) {
		aT := toArray[T](a)
		return newArrayT(f, out, append([]T{}, aT.values...)), nil
	}, shapeOut, nil
}

// inferReshape resolves a -1 axis in the target dimensions.
func inferReshape(from, to []int) ([]int, error) {
	total := size(from)
	out := append([]int{}, to...)
	inferred := -1
	known := 1
	for i, d := range out {
		if d == -1 {
			if inferred >= 0 {
				return nil, errors.Errorf("cannot reshape %v to %v: more than one axis to infer", from, to)
			}
			inferred = i
			continue
		}
		known *= d
	}
	if inferred >= 0 {
		if known == 0 || total%known != 0 {
			return nil, errors.Errorf("cannot reshape %v to %v", from, to)
		}
		out[inferred] = total / known
	}
	if size(out) != total {
		return nil, errors.Errorf("cannot reshape %v (%d elements) to %v", from, total, to)
	}
	return out, nil
}

func broadcastTo[T element](f Factory, x *shape.Shape, dims []int) (Unary, *shape.Shape, error) {
	index, err := broadcastIndex(x.AxisLengths, dims)
	if err != nil {
		return nil, nil, err
	}
	out := append([]int{}, dims...)
	shapeOut := &shape.Shape{DType: x.DType, AxisLengths: out}
	return func(a Array) (Array, error) {
		aT := toArray[T](a)
		values := make([]T, len(index))
		for i, j := range index {
			values[i] = aT.values[j]
		}
		return newArrayT(f, out, values), nil
	}, shapeOut, nil
}
