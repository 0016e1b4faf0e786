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

// Package ir is the intermediate representation (IR) of programs computing on
// encrypted tensors.
//
// A program is a set of functions. A function is a flat list of instructions
// in static single assignment form: every value is produced by exactly one
// instruction (or is an argument of the function) and consumed by zero or
// more instructions. Instructions refer to their operands by identifier, so
// that rewriting an instruction never touches the instructions consuming its
// results.
package ir

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/backend/shape"
)

// ----------------------------------------------------------------------------
// Element types.
type (
	// ElementType is the type of the scalar elements of a tensor.
	ElementType interface {
		elementType()

		// Equal returns true if other is the same element type.
		Equal(other ElementType) bool

		// DType returns the data type used to store an element on the host.
		DType() dtype.DataType

		// String representation of the type.
		String() string
	}

	// ParamToken carries backend-specific lattice parameters.
	// The lowering of tensor operations never inspects it.
	ParamToken string

	// PlainType is a cleartext integer of a given bit width.
	PlainType struct {
		Width int
	}

	// EncryptedType is an encrypted integer with a given precision in bits.
	EncryptedType struct {
		Precision int
		Params    ParamToken
	}

	// CiphertextType is the backend representation of an encrypted integer:
	// an LWE ciphertext of a given dimension.
	CiphertextType struct {
		Dimension int
		Precision int
		Params    ParamToken
	}

	// IndexType is the type of indices computed at runtime.
	IndexType struct{}
)

var (
	_ ElementType = PlainType{}
	_ ElementType = EncryptedType{}
	_ ElementType = CiphertextType{}
	_ ElementType = IndexType{}
)

func (PlainType) elementType() {}

// Equal returns true if other is a plain type of the same width.
func (t PlainType) Equal(other ElementType) bool {
	o, ok := other.(PlainType)
	return ok && o == t
}

// DType returns the smallest signed integer data type able to store the type.
func (t PlainType) DType() dtype.DataType {
	if t.Width <= 32 {
		return dtype.Int32
	}
	return dtype.Int64
}

func (t PlainType) String() string {
	return fmt.Sprintf("i%d", t.Width)
}

func (EncryptedType) elementType() {}

// Equal returns true if other is an encrypted type with the same precision and parameters.
func (t EncryptedType) Equal(other ElementType) bool {
	o, ok := other.(EncryptedType)
	return ok && o == t
}

// DType of the host storage of an encrypted value.
func (t EncryptedType) DType() dtype.DataType {
	return dtype.Uint64
}

func (t EncryptedType) String() string {
	if t.Params == "" {
		return fmt.Sprintf("eint<%d>", t.Precision)
	}
	return fmt.Sprintf("eint<%d,%s>", t.Precision, t.Params)
}

func (CiphertextType) elementType() {}

// Equal returns true if other is the same ciphertext type.
func (t CiphertextType) Equal(other ElementType) bool {
	o, ok := other.(CiphertextType)
	return ok && o == t
}

// DType of the ciphertext coefficients.
func (t CiphertextType) DType() dtype.DataType {
	return dtype.Uint64
}

func (t CiphertextType) String() string {
	if t.Params == "" {
		return fmt.Sprintf("lwe<%d,%d>", t.Dimension, t.Precision)
	}
	return fmt.Sprintf("lwe<%d,%d,%s>", t.Dimension, t.Precision, t.Params)
}

func (IndexType) elementType() {}

// Equal returns true if other is the index type.
func (IndexType) Equal(other ElementType) bool {
	_, ok := other.(IndexType)
	return ok
}

// DType of an index.
func (IndexType) DType() dtype.DataType {
	return dtype.Int64
}

func (IndexType) String() string {
	return "index"
}

// IsEncrypted returns true if the element type holds an encrypted value,
// either before or after lowering to the backend representation.
func IsEncrypted(el ElementType) bool {
	switch el.(type) {
	case EncryptedType, CiphertextType:
		return true
	}
	return false
}

// ----------------------------------------------------------------------------
// Tensor types.

// Type of a value: a tensor of a given shape. A rank of zero is a scalar.
type Type struct {
	Shape []int
	Elem  ElementType
}

// Scalar returns the type of a scalar.
func Scalar(el ElementType) Type {
	return Type{Elem: el}
}

// Tensor returns a tensor type.
func Tensor(el ElementType, dims ...int) Type {
	return Type{Shape: dims, Elem: el}
}

// Rank of the type.
func (t Type) Rank() int {
	return len(t.Shape)
}

// IsScalar returns true if the type is a scalar.
func (t Type) IsScalar() bool {
	return len(t.Shape) == 0
}

// Size returns the number of elements in a value of the type.
func (t Type) Size() int {
	return shape.Size(t.Shape)
}

// Equal returns true if other is the same type.
func (t Type) Equal(other Type) bool {
	if !slices.Equal(t.Shape, other.Shape) {
		return false
	}
	if t.Elem == nil || other.Elem == nil {
		return t.Elem == nil && other.Elem == nil
	}
	return t.Elem.Equal(other.Elem)
}

// WithElem returns the same shape with a different element type.
func (t Type) WithElem(el ElementType) Type {
	return Type{Shape: slices.Clone(t.Shape), Elem: el}
}

// BackendShape returns the shape of the type for a backend.
func (t Type) BackendShape() *shape.Shape {
	dt := dtype.Invalid
	if t.Elem != nil {
		dt = t.Elem.DType()
	}
	return &shape.Shape{
		DType:       dt,
		AxisLengths: slices.Clone(t.Shape),
	}
}

func (t Type) String() string {
	el := "<nil>"
	if t.Elem != nil {
		el = t.Elem.String()
	}
	if t.IsScalar() {
		return el
	}
	var s strings.Builder
	s.WriteString("tensor<")
	for _, d := range t.Shape {
		fmt.Fprintf(&s, "%dx", d)
	}
	s.WriteString(el)
	s.WriteString(">")
	return s.String()
}

// ----------------------------------------------------------------------------
// Type conversion.
type (
	// TypeConverter returns a replacement for a type.
	// The second result is false if the type is already final.
	TypeConverter func(Type) (Type, bool)

	// ElementConverter returns a replacement for an element type.
	// The second result is false if the type is already final.
	ElementConverter func(ElementType) (ElementType, bool)
)

// Types returns a type converter applying the element converter
// to the element type of tensors, keeping their shape.
func (conv ElementConverter) Types() TypeConverter {
	return func(tp Type) (Type, bool) {
		if tp.Elem == nil {
			return tp, false
		}
		el, ok := conv(tp.Elem)
		if !ok {
			return tp, false
		}
		return tp.WithElem(el), true
	}
}

// IsLegal returns true if the type is a fixed point of the converter.
// Any type is legal for a nil converter.
func (conv TypeConverter) IsLegal(tp Type) bool {
	if conv == nil {
		return true
	}
	nw, ok := conv(tp)
	return !ok || nw.Equal(tp)
}

// Convert returns the converted type or the type itself if no conversion applies.
func (conv TypeConverter) Convert(tp Type) Type {
	if conv == nil {
		return tp
	}
	nw, ok := conv(tp)
	if !ok {
		return tp
	}
	return nw
}
