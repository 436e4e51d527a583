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
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/backend/shape"
	"github.com/pkg/errors"
)

type boolFactory struct{}

var _ Factory = boolFactory{}

func (boolFactory) DType() dtype.DataType {
	return dtype.Bool
}

func (f boolFactory) Fill(dims []int, v float64) Array {
	values := make([]bool, size(dims))
	for i := range values {
		values[i] = v != 0
	}
	return newArrayT(f, append([]int{}, dims...), values)
}

func (f boolFactory) UnaryOp(op UnaryOp, x *shape.Shape) (Unary, *shape.Shape, error) {
	if op != Copy {
		return nil, nil, errors.Errorf("unary operator %d not supported for booleans", op)
	}
	out := append([]int{}, x.AxisLengths...)
	return func(a Array) (Array, error) {
		return newArrayT(f, out, append([]bool{}, toArray[bool](a).values...)), nil
	}, &shape.Shape{DType: dtype.Bool, AxisLengths: out}, nil
}

func (f boolFactory) BinaryOp(op BinaryOp, x, y *shape.Shape) (Binary, *shape.Shape, error) {
	if op != Eq {
		return nil, nil, errors.Errorf("binary operator %d not supported for booleans", op)
	}
	if x.DType != y.DType {
		return nil, nil, errors.Errorf("cannot compare %s and %s", x.DType.String(), y.DType.String())
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
	return func(x, y Array) (Array, error) {
		xT, yT := toArray[bool](x), toArray[bool](y)
		values := make([]bool, len(xIndex))
		for i := range values {
			values[i] = xT.values[xIndex[i]] == yT.values[yIndex[i]]
		}
		return newArrayT(f, out, values), nil
	}, &shape.Shape{DType: dtype.Bool, AxisLengths: out}, nil
}

func (f boolFactory) Reshape(x *shape.Shape, dims []int) (Unary, *shape.Shape, error) {
	return reshape[bool](f, x, dims)
}

func (f boolFactory) BroadcastTo(x *shape.Shape, dims []int) (Unary, *shape.Shape, error) {
	return broadcastTo[bool](f, x, dims)
}

func (boolFactory) SumTo(*shape.Shape, []int) (Unary, *shape.Shape, error) {
	return nil, nil, errors.Errorf("cannot sum booleans")
}

func (boolFactory) MatMul(x, y *shape.Shape, transX, transY bool) (Binary, *shape.Shape, error) {
	return nil, nil, errors.Errorf("cannot multiply boolean matrices")
}

func (boolFactory) Conv2D(x, w *shape.Shape, cfg ConvConfig) (Binary, *shape.Shape, error) {
	return nil, nil, errors.Errorf("cannot convolve booleans")
}
