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
	"math"

	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/backend/shape"
	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

type algebraFactory[T number] struct {
	dt dtype.DataType
}

var _ Factory = algebraFactory[float32]{}

func (f algebraFactory[T]) DType() dtype.DataType {
	return f.dt
}

func (f algebraFactory[T]) isFloat() bool {
	return f.dt == dtype.Float32 || f.dt == dtype.Float64
}

func (f algebraFactory[T]) Fill(dims []int, v float64) Array {
	values := make([]T, size(dims))
	val := fromFloat64[T](v)
	for i := range values {
		values[i] = val
	}
	return newArrayT(f, append([]int{}, dims...), values)
}

func maxOf[T constraints.Ordered](x, y T) T {
	if x > y {
		return x
	}
	return y
}

func floatFunc[T number](op UnaryOp) func(T) T {
	var fn func(float64) float64
	switch op {
	case Exp:
		fn = math.Exp
	case Log:
		fn = math.Log
	case Tanh:
		fn = math.Tanh
	case Sqrt:
		fn = math.Sqrt
	case Sigmoid:
		fn = func(x float64) float64 { return 1 / (1 + math.Exp(-x)) }
	default:
		return nil
	}
	return func(x T) T { return T(fn(float64(x))) }
}

func (f algebraFactory[T]) UnaryOp(op UnaryOp, x *shape.Shape) (Unary, *shape.Shape, error) {
	var fn func(T) T
	switch op {
	case Copy:
		fn = func(x T) T { return x }
	case Neg:
		fn = func(x T) T { return -x }
	case Relu:
		fn = func(x T) T { return maxOf(x, 0) }
	default:
		if !f.isFloat() {
			return nil, nil, errors.Errorf("unary operator %d not supported for %s", op, f.dt.String())
		}
		fn = floatFunc[T](op)
		if fn == nil {
			return nil, nil, errors.Errorf("unary operator %d not supported", op)
		}
	}
	out := append([]int{}, x.AxisLengths...)
	return func(a Array) (Array, error) {
		aT := toArray[T](a)
		values := make([]T, len(aT.values))
		for i, v := range aT.values {
			values[i] = fn(v)
		}
		return newArrayT(f, out, values), nil
	}, &shape.Shape{DType: f.dt, AxisLengths: out}, nil
}

func binaryNumeric[T number](f Factory, out []int, xIndex, yIndex []int, fn func(T, T) (T, error)) Binary {
	return func(x, y Array) (Array, error) {
		xT, yT := toArray[T](x), toArray[T](y)
		values := make([]T, len(xIndex))
		for i := range values {
			v, err := fn(xT.values[xIndex[i]], yT.values[yIndex[i]])
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		return newArrayT(f, out, values), nil
	}
}

func binaryCompare[T number](out []int, xIndex, yIndex []int, fn func(T, T) bool) Binary {
	return func(x, y Array) (Array, error) {
		xT, yT := toArray[T](x), toArray[T](y)
		values := make([]bool, len(xIndex))
		for i := range values {
			values[i] = fn(xT.values[xIndex[i]], yT.values[yIndex[i]])
		}
		return newArrayT[bool](boolFactory{}, out, values), nil
	}
}

func (f algebraFactory[T]) BinaryOp(op BinaryOp, x, y *shape.Shape) (Binary, *shape.Shape, error) {
	if x.DType != y.DType {
		return nil, nil, errors.Errorf("cannot apply a binary operator to %s and %s", x.DType.String(), y.DType.String())
	}
	out, err := BroadcastDims(x.AxisLengths, y.AxisLengths)
	if err != nil {
		return nil, nil, err
	}
	xIndex, err := broadcastIndex(x.AxisLengths, out)
	if err != nil {
		return nil, nil, err
	}
	yIndex, err := broadcastIndex(y.AxisLengths, out)
	if err != nil {
		return nil, nil, err
	}
	shapeOut := &shape.Shape{DType: f.dt, AxisLengths: out}
	switch op {
	case Eq:
		shapeOut.DType = dtype.Bool
		return binaryCompare[T](out, xIndex, yIndex, func(x, y T) bool { return x == y }), shapeOut, nil
	case Less:
		shapeOut.DType = dtype.Bool
		return binaryCompare[T](out, xIndex, yIndex, func(x, y T) bool { return x < y }), shapeOut, nil
	}
	var fn func(T, T) (T, error)
	switch op {
	case Add:
		fn = func(x, y T) (T, error) { return x + y, nil }
	case Sub:
		fn = func(x, y T) (T, error) { return x - y, nil }
	case Mul:
		fn = func(x, y T) (T, error) { return x * y, nil }
	case Div:
		isFloat := f.isFloat()
		fn = func(x, y T) (T, error) {
			if !isFloat && y == 0 {
				return 0, errors.Errorf("integer division by zero")
			}
			return x / y, nil
		}
	case Max:
		fn = func(x, y T) (T, error) { return maxOf(x, y), nil }
	case ReluGrad:
		fn = func(y, dy T) (T, error) {
			if y > 0 {
				return dy, nil
			}
			return 0, nil
		}
	default:
		return nil, nil, errors.Errorf("binary operator %d not supported", op)
	}
	return binaryNumeric(f, out, xIndex, yIndex, fn), shapeOut, nil
}

func (f algebraFactory[T]) Reshape(x *shape.Shape, dims []int) (Unary, *shape.Shape, error) {
	return reshape[T](f, x, dims)
}

func (f algebraFactory[T]) BroadcastTo(x *shape.Shape, dims []int) (Unary, *shape.Shape, error) {
	return broadcastTo[T](f, x, dims)
}

func (f algebraFactory[T]) SumTo(x *shape.Shape, dims []int) (Unary, *shape.Shape, error) {
	index, err := broadcastIndex(dims, x.AxisLengths)
	if err != nil {
		return nil, nil, errors.Errorf("cannot sum %v to %v: %v", x.AxisLengths, dims, err)
	}
	out := append([]int{}, dims...)
	total := size(out)
	return func(a Array) (Array, error) {
		aT := toArray[T](a)
		values := make([]T, total)
		for i, j := range index {
			values[j] += aT.values[i]
		}
		return newArrayT(f, out, values), nil
	}, &shape.Shape{DType: f.dt, AxisLengths: out}, nil
}
