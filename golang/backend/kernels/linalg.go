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
	"github.com/gx-org/backend/shape"
	"github.com/pkg/errors"
)

func (f algebraFactory[T]) MatMul(x, y *shape.Shape, transX, transY bool) (Binary, *shape.Shape, error) {
	if len(x.AxisLengths) != 2 || len(y.AxisLengths) != 2 {
		return nil, nil, errors.Errorf("matmul requires matrices: got %v and %v", x.AxisLengths, y.AxisLengths)
	}
	m, kx := x.AxisLengths[0], x.AxisLengths[1]
	if transX {
		m, kx = kx, m
	}
	ky, n := y.AxisLengths[0], y.AxisLengths[1]
	if transY {
		ky, n = n, ky
	}
	if kx != ky {
		return nil, nil, errors.Errorf("matmul contracting dimensions mismatch: %v and %v", x.AxisLengths, y.AxisLengths)
	}
	k := kx
	xCols, yCols := x.AxisLengths[1], y.AxisLengths[1]
	xAt := func(i, l int) int { return i*xCols + l }
	if transX {
		xAt = func(i, l int) int { return l*xCols + i }
	}
	yAt := func(l, j int) int { return l*yCols + j }
	if transY {
		yAt = func(l, j int) int { return j*yCols + l }
	}
	out := []int{m, n}
	return func(a, b Array) (Array, error) {
		aT, bT := toArray[T](a), toArray[T](b)
		values := make([]T, m*n)
		for i := range m {
			for j := range n {
				var acc T
				for l := range k {
					acc += aT.values[xAt(i, l)] * bT.values[yAt(l, j)]
				}
				values[i*n+j] = acc
			}
		}
		return newArrayT(f, out, values), nil
	}, &shape.Shape{DType: f.dt, AxisLengths: out}, nil
}

// ConvOutDim returns the length of a spatial output axis of a convolution.
func ConvOutDim(in, kernel, stride, padding, dilation int) int {
	return (in+2*padding-dilation*(kernel-1)-1)/stride + 1
}

func (f algebraFactory[T]) Conv2D(x, w *shape.Shape, cfg ConvConfig) (Binary, *shape.Shape, error) {
	if len(x.AxisLengths) != 4 || len(w.AxisLengths) != 4 {
		return nil, nil, errors.Errorf("conv2d requires NCHW inputs and OIHW weights: got %v and %v", x.AxisLengths, w.AxisLengths)
	}
	batch, channels, height, width := x.AxisLengths[0], x.AxisLengths[1], x.AxisLengths[2], x.AxisLengths[3]
	outC, inC, kh, kw := w.AxisLengths[0], w.AxisLengths[1], w.AxisLengths[2], w.AxisLengths[3]
	if channels != inC {
		return nil, nil, errors.Errorf("conv2d channel mismatch: input has %d channels but weights expect %d", channels, inC)
	}
	for i := range 2 {
		if cfg.Stride[i] <= 0 || cfg.Dilation[i] <= 0 {
			return nil, nil, errors.Errorf("conv2d stride and dilation must be positive: got %v and %v", cfg.Stride, cfg.Dilation)
		}
	}
	oh := ConvOutDim(height, kh, cfg.Stride[0], cfg.Padding[0], cfg.Dilation[0])
	ow := ConvOutDim(width, kw, cfg.Stride[1], cfg.Padding[1], cfg.Dilation[1])
	if oh <= 0 || ow <= 0 {
		return nil, nil, errors.Errorf("conv2d output is empty for input %v and weights %v", x.AxisLengths, w.AxisLengths)
	}
	out := []int{batch, outC, oh, ow}
	return func(a, b Array) (Array, error) {
		aT, bT := toArray[T](a), toArray[T](b)
		values := make([]T, size(out))
		for n := range batch {
			for o := range outC {
				for i := range oh {
					for j := range ow {
						var acc T
						for c := range channels {
							for p := range kh {
								y := i*cfg.Stride[0] - cfg.Padding[0] + p*cfg.Dilation[0]
								if y < 0 || y >= height {
									continue
								}
								for q := range kw {
									xx := j*cfg.Stride[1] - cfg.Padding[1] + q*cfg.Dilation[1]
									if xx < 0 || xx >= width {
										continue
									}
									in := aT.values[((n*channels+c)*height+y)*width+xx]
									wt := bT.values[((o*inC+c)*kh+p)*kw+q]
									acc += in * wt
								}
							}
						}
						values[((n*outC+o)*oh+i)*ow+j] = acc
					}
				}
			}
		}
		return newArrayT(f, out, values), nil
	}, &shape.Shape{DType: f.dt, AxisLengths: out}, nil
}
