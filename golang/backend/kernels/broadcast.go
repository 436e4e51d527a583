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

import "github.com/pkg/errors"

// BroadcastDims returns the dimensions of the result of a binary operator
// following numpy broadcasting rules.
func BroadcastDims(x, y []int) ([]int, error) {
	rank := max(len(x), len(y))
	out := make([]int, rank)
	for i := range rank {
		dx, dy := 1, 1
		if j := len(x) - rank + i; j >= 0 {
			dx = x[j]
		}
		if j := len(y) - rank + i; j >= 0 {
			dy = y[j]
		}
		switch {
		case dx == dy:
			out[i] = dx
		case dx == 1:
			out[i] = dy
		case dy == 1:
			out[i] = dx
		default:
			return nil, errors.Errorf("cannot broadcast %v with %v", x, y)
		}
	}
	return out, nil
}

// broadcastIndex returns, for each flat index of an array of dimensions to,
// the flat index of the element of the array of dimensions from it is read from.
func broadcastIndex(from, to []int) ([]int, error) {
	if len(from) > len(to) {
		return nil, errors.Errorf("cannot broadcast %v to %v: rank mismatch", from, to)
	}
	offset := len(to) - len(from)
	strides := make([]int, len(to))
	stride := 1
	for i := len(from) - 1; i >= 0; i-- {
		switch from[i] {
		case to[i+offset]:
			strides[i+offset] = stride
		case 1:
			strides[i+offset] = 0
		default:
			return nil, errors.Errorf("cannot broadcast %v to %v", from, to)
		}
		stride *= from[i]
	}
	total := size(to)
	index := make([]int, total)
	coords := make([]int, len(to))
	for flat := range total {
		src := 0
		for axis, c := range coords {
			src += c * strides[axis]
		}
		index[flat] = src
		// Increment the coordinates.
		for axis := len(to) - 1; axis >= 0; axis-- {
			coords[axis]++
			if coords[axis] < to[axis] {
				break
			}
			coords[axis] = 0
		}
	}
	return index, nil
}
