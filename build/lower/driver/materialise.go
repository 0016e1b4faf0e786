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
	"github.com/gx-org/fhelinalg/build/fmterr"
	"github.com/gx-org/fhelinalg/build/ir"
	"github.com/gx-org/fhelinalg/build/ir/irkind"
)

// materialiser builds the instructions implementing a loop nest.
type materialiser struct {
	fn    *ir.Function
	src   *ir.Instruction
	types map[ir.ValueID]ir.Type
	out   []*ir.Instruction
}

// materialise returns the instructions replacing src given the loop nest
// computing its result. The last instruction defines the result of src
// with the same identifier so that the instructions using the result of
// src are not modified.
func materialise(fn *ir.Function, src *ir.Instruction, nest *ir.LoopNest) ([]*ir.Instruction, error) {
	m := &materialiser{
		fn:    fn,
		src:   src,
		types: make(map[ir.ValueID]ir.Type, len(src.Operands)),
	}
	for _, op := range src.Operands {
		m.types[op.ID] = op.Type
	}
	result := src.Result()
	if got := nest.ResultType(); !got.Equal(result.Type) {
		return nil, fmterr.Internalf(src.Loc, "loop nest lowering %s computes %s instead of %s", src.Kind, got, result.Type)
	}
	init, err := m.initAcc(nest.Acc)
	if err != nil {
		return nil, err
	}
	operands, err := m.operands(nest, init)
	if err != nil {
		return nil, err
	}
	generic := nest.Clone()
	generic.Extract = nil
	if nest.Extract == nil {
		m.emitAs(result.ID, irkind.Generic, operands, nest.Acc.Type, generic)
		return m.out, nil
	}
	acc := m.emit(irkind.Generic, operands, nest.Acc.Type, generic)
	m.emitAs(result.ID, irkind.Extract, []ir.Slot{acc}, result.Type, ir.Indices{Values: nest.Extract})
	return m.out, nil
}

func (m *materialiser) emitAs(id ir.ValueID, kind irkind.Kind, operands []ir.Slot, tp ir.Type, attr ir.Attribute) ir.Slot {
	res := ir.Slot{ID: id, Type: tp}
	m.out = append(m.out, &ir.Instruction{
		Kind:     kind,
		Operands: operands,
		Results:  []ir.Slot{res},
		Attr:     attr,
		Loc:      m.src.Loc,
	})
	return res
}

func (m *materialiser) emit(kind irkind.Kind, operands []ir.Slot, tp ir.Type, attr ir.Attribute) ir.Slot {
	return m.emitAs(m.fn.NewValue(), kind, operands, tp, attr)
}

func (m *materialiser) slot(id ir.ValueID) (ir.Slot, error) {
	tp, ok := m.types[id]
	if !ok {
		return ir.Slot{}, fmterr.Internalf(m.src.Loc, "loop nest lowering %s refers to %s which is not an operand", m.src.Kind, id)
	}
	return ir.Slot{ID: id, Type: tp}, nil
}

// operands returns the operands of the generic instruction:
// the bound inputs, the captured values, and the accumulator initial value.
func (m *materialiser) operands(nest *ir.LoopNest, init ir.Slot) ([]ir.Slot, error) {
	operands := make([]ir.Slot, 0, nest.NumOperands())
	for _, b := range nest.Inputs {
		s, err := m.slot(b.Value)
		if err != nil {
			return nil, err
		}
		operands = append(operands, s)
	}
	for _, c := range nest.Captures {
		s, err := m.slot(c)
		if err != nil {
			return nil, err
		}
		operands = append(operands, s)
	}
	return append(operands, init), nil
}

// initAcc emits the instructions computing the initial value of the accumulator.
func (m *materialiser) initAcc(acc ir.Accumulator) (ir.Slot, error) {
	if acc.Init == nil {
		if acc.Mode == ir.FoldInit {
			return ir.Slot{}, fmterr.Internalf(m.src.Loc, "loop nest lowering %s folds into an accumulator without initial value", m.src.Kind)
		}
		return m.emit(irkind.InitTensor, nil, acc.Type, nil), nil
	}
	switch acc.Mode {
	case ir.BroadcastInit:
		return m.broadcastInit(acc)
	case ir.FoldInit:
		return m.foldInit(acc)
	}
	return ir.Slot{}, fmterr.Internalf(m.src.Loc, "accumulator mode %d not supported", acc.Mode)
}

// broadcastInit fills the accumulator with a value computed at every position.
// The tensor is computed by a tensor operation itself lowered in the next round.
func (m *materialiser) broadcastInit(acc ir.Accumulator) (ir.Slot, error) {
	op, ok := acc.Init.(*ir.Op)
	if !ok || op.Kind != irkind.ZeroEint || len(op.Args) != 0 {
		return ir.Slot{}, fmterr.Internalf(m.src.Loc, "cannot fill an accumulator with %s", acc.Init)
	}
	return m.emit(irkind.ZeroFill, nil, acc.Type, nil), nil
}

// foldInit computes the initial value once and builds the accumulator from it.
func (m *materialiser) foldInit(acc ir.Accumulator) (ir.Slot, error) {
	if acc.Type.Rank() != 1 {
		return ir.Slot{}, fmterr.Internalf(m.src.Loc, "cannot fold into an accumulator of type %s", acc.Type)
	}
	scalar, err := m.scalar(acc.Init)
	if err != nil {
		return ir.Slot{}, err
	}
	elements := make([]ir.Slot, acc.Type.Size())
	for i := range elements {
		elements[i] = scalar
	}
	return m.emit(irkind.FromElements, elements, acc.Type, nil), nil
}

// scalar emits the instructions computing a scalar expression
// of primitives without inputs.
func (m *materialiser) scalar(e ir.Expr) (ir.Slot, error) {
	op, ok := e.(*ir.Op)
	if !ok || !op.Kind.IsScalarPrimitive() {
		return ir.Slot{}, fmterr.Internalf(m.src.Loc, "cannot compute %s outside of a loop nest", e)
	}
	args := make([]ir.Slot, len(op.Args))
	for i, arg := range op.Args {
		var err error
		if args[i], err = m.scalar(arg); err != nil {
			return ir.Slot{}, err
		}
	}
	return m.emit(op.Kind, args, ir.Scalar(op.Type), nil), nil
}
