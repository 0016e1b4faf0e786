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

// Package fmtarray formats arrays of integers into string.
package fmtarray

import (
	"fmt"
	"strings"

	"github.com/gx-org/fhelinalg/build/ir"
	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

// Strides returns the offset in a row-major buffer between two consecutive
// elements along each axis.
func Strides(axes []int) []int {
	strides := make([]int, len(axes))
	for i := range strides {
		strides[i] = 1
		for _, d := range axes[i+1:] {
			strides[i] *= d
		}
	}
	return strides
}

// Index returns the position in a row-major buffer of an element given its coordinates.
func Index(strides []int, p []int) int {
	var index int
	for i, v := range p {
		index += strides[i] * v
	}
	return index
}

type builder[T constraints.Integer] struct {
	w       *strings.Builder
	data    []T
	axes    []int
	strides []int
}

func newBuilder[T constraints.Integer](data []T, axes []int) (*builder[T], error) {
	b := &builder[T]{
		w:       &strings.Builder{},
		data:    data,
		axes:    axes,
		strides: Strides(axes),
	}
	total := 1
	for _, size := range b.axes {
		total *= size
	}
	if total != len(data) {
		return b, errors.Errorf("len(data)=%d does not match axes %v=%d", len(data), axes, total)
	}
	return b, nil
}

func (b *builder[T]) printScalar() {
	fmt.Fprintf(b.w, "(%d)", b.data[0])
}

func (b *builder[T]) printVector(p []int) {
	fullPos := make([]int, len(b.axes))
	copy(fullPos, p)
	vecSize := b.axes[len(b.axes)-1]
	vec := make([]string, vecSize)
	for i := range vecSize {
		fullPos[len(fullPos)-1] = i
		vec[i] = fmt.Sprint(b.data[Index(b.strides, fullPos)])
	}
	fmt.Fprintf(b.w, "{%s}", strings.Join(vec, ", "))
}

func toPosition(parentPosition []int) []int {
	position := append([]int{}, parentPosition...)
	return append(position, 0)
}

const tab = "\t"

func (b *builder[T]) printMatrix(indent string, parentPosition []int) {
	numRows := b.axes[len(b.axes)-2]
	position := toPosition(parentPosition)
	b.w.WriteString("{\n")
	for i := range numRows {
		b.w.WriteString(indent + tab)
		position[len(position)-1] = i
		b.printVector(position)
		b.w.WriteString(",\n")
	}
	b.w.WriteString(indent + "}")
}

func (b *builder[T]) printRec(indent string, parentPosition []int) {
	if len(b.axes)-len(parentPosition) == 2 {
		b.printMatrix(indent, parentPosition)
		return
	}
	b.w.WriteString("{\n")
	position := toPosition(parentPosition)
	for i := range b.axes[len(parentPosition)] {
		position[len(position)-1] = i
		b.w.WriteString(indent + tab)
		b.printRec(indent+tab, position)
		b.w.WriteString(",\n")
	}
	b.w.WriteString(indent + "}")
}

func (b *builder[T]) printType(el ir.ElementType) {
	for _, size := range b.axes {
		fmt.Fprintf(b.w, "[%d]", size)
	}
	b.w.WriteString(el.String())
}

func (b *builder[T]) printData() {
	switch len(b.axes) {
	case 0:
		b.printScalar()
	case 1:
		b.printVector(nil)
	default:
		b.printRec("", nil)
	}
}

// SDataPrint returns a string representation of the content of an array without the type.
func SDataPrint[T constraints.Integer](data []T, axes []int) string {
	b, err := newBuilder(data, axes)
	if err != nil {
		return err.Error()
	}
	b.printData()
	return b.w.String()
}

// Sprint returns a string representation of an array of a given type.
func Sprint[T constraints.Integer](data []T, tp ir.Type) string {
	b, err := newBuilder(data, tp.Shape)
	if err != nil {
		return err.Error()
	}
	b.printType(tp.Elem)
	b.printData()
	return b.w.String()
}
