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

package driver

import (
	"github.com/gx-org/fhelinalg/build/ir"
	"github.com/gx-org/fhelinalg/build/ir/irkind"
	"github.com/gx-org/fhelinalg/build/lower/typerewrite"
)

// Target decides which instructions are legal at the end of a pass.
type Target struct {
	legal *irkind.Set
	// Converter of the types. Legal instructions only have types
	// which are fixed points of the converter. A nil converter accepts all types.
	Converter ir.TypeConverter
}

// NewTarget returns a target accepting instructions of the given kinds.
func NewTarget(conv ir.TypeConverter, kinds ...irkind.Kind) *Target {
	return &Target{legal: irkind.NewSet(kinds...), Converter: conv}
}

// LinalgTarget returns the target of the lowering of tensor operations:
// generic loop nests over scalar primitives and the structural instructions
// to build tensors.
func LinalgTarget() *Target {
	t := &Target{legal: irkind.NewSet()}
	t.legal.AddIf(func(k irkind.Kind) bool {
		return k.IsScalarPrimitive() || k.IsStructural()
	})
	return t
}

// AnyKindTarget returns a target accepting instructions of any kind
// as long as their types are legal for the converter.
func AnyKindTarget(conv ir.TypeConverter) *Target {
	t := &Target{legal: irkind.NewSet(), Converter: conv}
	t.legal.AddIf(func(irkind.Kind) bool { return true })
	return t
}

// WithConverter returns a copy of the target with a different type converter.
func (t *Target) WithConverter(conv ir.TypeConverter) *Target {
	return &Target{legal: t.legal, Converter: conv}
}

// IsLegal returns true if the instruction needs no rewriting.
func (t *Target) IsLegal(inst *ir.Instruction) bool {
	if !t.legal.Has(inst.Kind) {
		return false
	}
	return typerewrite.IsLegal(inst, t.Converter)
}

// LegalKinds returns the kinds accepted by the target.
func (t *Target) LegalKinds() []irkind.Kind {
	return t.legal.Kinds()
}
