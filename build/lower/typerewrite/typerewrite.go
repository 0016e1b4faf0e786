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

// Package typerewrite patches the types of instructions given a type converter.
//
// Patching never changes the kind, the operands or the attributes of an
// instruction other than the types they declare. The instruction given as
// input is never modified: a new instruction is returned.
package typerewrite

import (
	"github.com/gx-org/fhelinalg/build/ir"
)

type patcher struct {
	conv    ir.TypeConverter
	changed bool
}

func (p *patcher) typ(tp ir.Type) ir.Type {
	if p.conv.IsLegal(tp) {
		return tp
	}
	p.changed = true
	return p.conv.Convert(tp)
}

func (p *patcher) elem(el ir.ElementType) ir.ElementType {
	return p.typ(ir.Scalar(el)).Elem
}

func (p *patcher) slots(slots []ir.Slot) {
	for i, s := range slots {
		slots[i].Type = p.typ(s.Type)
	}
}

func (p *patcher) nest(nest *ir.LoopNest) {
	nest.Acc.Type = p.typ(nest.Acc.Type)
	if nest.Acc.Init != nil {
		nest.Acc.Init = ir.MapTypes(nest.Acc.Init, p.elem)
	}
	nest.Body = ir.MapTypes(nest.Body, p.elem)
}

// Patch returns a copy of an instruction where the types of operands and
// results, as well as the scalar types declared in a loop nest, have been
// converted. The second result is true if at least one type changed.
func Patch(inst *ir.Instruction, conv ir.TypeConverter) (*ir.Instruction, bool) {
	nw := inst.Clone()
	if conv == nil {
		return nw, false
	}
	p := &patcher{conv: conv}
	p.slots(nw.Operands)
	p.slots(nw.Results)
	if nest := nw.LoopNest(); nest != nil {
		p.nest(nest)
	}
	return nw, p.changed
}

// IsLegal returns true if all the types of an instruction are fixed points of the converter.
func IsLegal(inst *ir.Instruction, conv ir.TypeConverter) bool {
	_, changed := Patch(inst, conv)
	return !changed
}

// PatchFunction returns a copy of a function where the types of the arguments
// and of all the instructions have been converted.
func PatchFunction(fn *ir.Function, conv ir.TypeConverter) (*ir.Function, bool) {
	nw := fn.Clone()
	if conv == nil {
		return nw, false
	}
	p := &patcher{conv: conv}
	p.slots(nw.Args)
	for i, inst := range nw.Insts {
		patched, changed := Patch(inst, conv)
		nw.Insts[i] = patched
		p.changed = p.changed || changed
	}
	return nw, p.changed
}
