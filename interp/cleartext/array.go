// Copyright 2024 Google LLC
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

package cleartext

import (
	"slices"

	"github.com/gx-org/backend/shape"
	"github.com/gx-org/fhelinalg/build/ir"
	"github.com/gx-org/fhelinalg/fmt/fmtarray"
	"github.com/pkg/errors"
)

// Array is a dense tensor of integers. Encrypted integers are represented
// by their cleartext value.
type Array struct {
	tp      ir.Type
	shape   *shape.Shape
	strides []int
	data    []int64
}

// NewArray returns a new array of a given type.
// The data is stored in row-major order.
func NewArray(tp ir.Type, data []int64) (*Array, error) {
	sh := tp.BackendShape()
	if len(data) != sh.Size() {
		return nil, errors.Errorf("cannot create an array %s with %d values", tp, len(data))
	}
	return &Array{
		tp:      tp.WithElem(tp.Elem),
		shape:   sh,
		strides: fmtarray.Strides(sh.AxisLengths),
		data:    slices.Clone(data),
	}, nil
}

// Zeros returns an array filled with zeros.
func Zeros(tp ir.Type) *Array {
	a, _ := NewArray(tp, make([]int64, tp.BackendShape().Size()))
	return a
}

// Scalar returns an array of rank 0.
func Scalar(el ir.ElementType, v int64) *Array {
	a, _ := NewArray(ir.Scalar(el), []int64{v})
	return a
}

// Type of the array.
func (a *Array) Type() ir.Type {
	return a.tp
}

// Shape of the array for a backend.
func (a *Array) Shape() *shape.Shape {
	return a.shape
}

// Data returns the values of the array in row-major order.
func (a *Array) Data() []int64 {
	return a.data
}

func (a *Array) index(pos []int) (int, error) {
	axes := a.shape.AxisLengths
	if len(pos) != len(axes) {
		return 0, errors.Errorf("cannot index array %s with %d indices", a.tp, len(pos))
	}
	for i, p := range pos {
		if p < 0 || p >= axes[i] {
			return 0, errors.Errorf("index %v out of bounds of %s", pos, a.tp)
		}
	}
	return fmtarray.Index(a.strides, pos), nil
}

// At returns the value at a given position.
func (a *Array) At(pos ...int) (int64, error) {
	i, err := a.index(pos)
	if err != nil {
		return 0, err
	}
	return a.data[i], nil
}

// Set the value at a given position.
func (a *Array) Set(v int64, pos ...int) error {
	i, err := a.index(pos)
	if err != nil {
		return err
	}
	a.data[i] = v
	return nil
}

// Clone returns a copy of the array.
func (a *Array) Clone() *Array {
	cl, _ := NewArray(a.tp, a.data)
	return cl
}

func (a *Array) String() string {
	return fmtarray.Sprint(a.data, a.tp)
}

// forEach calls f for every position in a shape in row-major order.
func forEach(dims []int, f func(pos []int) error) error {
	for _, d := range dims {
		if d == 0 {
			return nil
		}
	}
	pos := make([]int, len(dims))
	for {
		if err := f(pos); err != nil {
			return err
		}
		i := len(dims) - 1
		for ; i >= 0; i-- {
			pos[i]++
			if pos[i] < dims[i] {
				break
			}
			pos[i] = 0
		}
		if i < 0 {
			return nil
		}
	}
}
