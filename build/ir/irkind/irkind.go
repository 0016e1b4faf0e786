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

// Package irkind defines the kinds of instruction of the FHE tensor intermediate representation (IR).
package irkind

import (
	"fmt"
	"strings"
)

// Kind of an instruction.
type Kind uint

// Kind of instructions supported by the IR.
const (
	Invalid Kind = iota

	// Source tensor-operation vocabulary.
	Dot
	AddEintEint
	AddEintPlain
	SubPlainEint
	MulEintPlain
	Negate
	MatMulEintPlain
	MatMulPlainEint
	ApplyLookupTable
	ApplyMultiLookupTable
	ApplyMappedLookupTable
	ZeroFill

	// Elementary scalar primitives of the backend.
	AddEint
	AddEintInt
	SubIntEint
	MulEintInt
	NegEint
	Lookup
	ZeroEint

	// Structural instructions of the target vocabulary.
	Generic
	InitTensor
	FromElements
	Extract
	Constant

	// Max value for a Kind constant.
	Max
)

var names = [...]string{
	Invalid:                "invalid",
	Dot:                    "fhelinalg.dot_eint_int",
	AddEintEint:            "fhelinalg.add_eint",
	AddEintPlain:           "fhelinalg.add_eint_int",
	SubPlainEint:           "fhelinalg.sub_int_eint",
	MulEintPlain:           "fhelinalg.mul_eint_int",
	Negate:                 "fhelinalg.neg_eint",
	MatMulEintPlain:        "fhelinalg.matmul_eint_int",
	MatMulPlainEint:        "fhelinalg.matmul_int_eint",
	ApplyLookupTable:       "fhelinalg.apply_lookup_table",
	ApplyMultiLookupTable:  "fhelinalg.apply_multi_lookup_table",
	ApplyMappedLookupTable: "fhelinalg.apply_mapped_lookup_table",
	ZeroFill:               "fhelinalg.zero",
	AddEint:                "fhe.add_eint",
	AddEintInt:             "fhe.add_eint_int",
	SubIntEint:             "fhe.sub_int_eint",
	MulEintInt:             "fhe.mul_eint_int",
	NegEint:                "fhe.neg_eint",
	Lookup:                 "fhe.apply_lookup_table",
	ZeroEint:               "fhe.zero",
	Generic:                "linalg.generic",
	InitTensor:             "linalg.init_tensor",
	FromElements:           "tensor.from_elements",
	Extract:                "tensor.extract",
	Constant:               "arith.constant",
}

// String returns the mnemonic of the kind as printed in the IR.
func (k Kind) String() string {
	if k >= Max {
		return fmt.Sprintf("kind(%d)", uint(k))
	}
	return names[k]
}

// Dialect returns the dialect prefix of the mnemonic.
func (k Kind) Dialect() string {
	dialect, _, _ := strings.Cut(k.String(), ".")
	return dialect
}

// IsSource returns true if the kind belongs to the source tensor-operation vocabulary.
// Instructions of these kinds are never legal after lowering.
func (k Kind) IsSource() bool {
	return k >= Dot && k <= ZeroFill
}

// IsScalarPrimitive returns true if the kind is an elementary scalar primitive of the backend.
func (k Kind) IsScalarPrimitive() bool {
	return k >= AddEint && k <= ZeroEint
}

// IsStructural returns true for the structural kinds of the target vocabulary.
func (k Kind) IsStructural() bool {
	return k >= Generic && k <= Constant
}

// NumOperands returns the number of operands of a scalar primitive
// or -1 if the kind has a variable number of operands.
func (k Kind) NumOperands() int {
	switch k {
	case ZeroEint, ZeroFill, Constant, InitTensor:
		return 0
	case NegEint, Negate:
		return 1
	case AddEint, AddEintInt, SubIntEint, MulEintInt, Lookup,
		Dot, AddEintEint, AddEintPlain, SubPlainEint, MulEintPlain,
		MatMulEintPlain, MatMulPlainEint, ApplyLookupTable, ApplyMultiLookupTable:
		return 2
	case ApplyMappedLookupTable:
		return 3
	}
	return -1
}

var byName = func() map[string]Kind {
	m := make(map[string]Kind, int(Max))
	for k := Invalid + 1; k < Max; k++ {
		m[names[k]] = k
	}
	return m
}()

// FromString returns a kind given its mnemonic.
// The dialect prefix can be omitted if the name is not ambiguous.
func FromString(s string) (Kind, bool) {
	if k, ok := byName[s]; ok {
		return k, true
	}
	var found Kind
	for k := Invalid + 1; k < Max; k++ {
		_, short, _ := strings.Cut(names[k], ".")
		if short != s {
			continue
		}
		if found != Invalid {
			return Invalid, false
		}
		found = k
	}
	return found, found != Invalid
}

// Set is a set of kinds.
type Set struct {
	bits [Max]bool
}

// NewSet returns a set with the given kinds.
func NewSet(kinds ...Kind) *Set {
	s := &Set{}
	s.Add(kinds...)
	return s
}

// Add kinds to the set.
func (s *Set) Add(kinds ...Kind) {
	for _, k := range kinds {
		if k < Max {
			s.bits[k] = true
		}
	}
}

// AddIf adds all the kinds for which f returns true.
func (s *Set) AddIf(f func(Kind) bool) {
	for k := Invalid + 1; k < Max; k++ {
		if f(k) {
			s.bits[k] = true
		}
	}
}

// Has returns true if k is in the set.
func (s *Set) Has(k Kind) bool {
	return k < Max && s.bits[k]
}

// Kinds returns the kinds in the set in increasing order.
func (s *Set) Kinds() []Kind {
	var kinds []Kind
	for k := Invalid + 1; k < Max; k++ {
		if s.bits[k] {
			kinds = append(kinds, k)
		}
	}
	return kinds
}
