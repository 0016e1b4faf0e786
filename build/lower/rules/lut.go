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

package rules

import (
	"github.com/gx-org/fhelinalg/build/ir"
	"github.com/gx-org/fhelinalg/build/ir/irkind"
	"github.com/gx-org/fhelinalg/build/lower/broadcast"
	"github.com/gx-org/fhelinalg/build/lower/itspace"
	"github.com/pkg/errors"
)

// LookupTable applies the same table to every element of an encrypted tensor.
// The table is captured whole by the loop nest.
func LookupTable(inst *ir.Instruction) (*ir.LoopNest, error) {
	if err := checkArity(inst); err != nil {
		return nil, err
	}
	if err := checkCipher(inst, 0, true); err != nil {
		return nil, err
	}
	if err := checkCipher(inst, 1, false); err != nil {
		return nil, err
	}
	table := inst.Operands[1]
	if table.Type.Rank() != 1 {
		return nil, errors.Errorf("%s: lookup table %s is not a vector", inst.Kind, table.Type)
	}
	space, err := itspace.Build(inst)
	if err != nil {
		return nil, err
	}
	result := inst.Result().Type
	inputs, err := bind(result, inst.Operands[0])
	if err != nil {
		return nil, err
	}
	return &ir.LoopNest{
		Space:    space,
		Inputs:   inputs,
		Captures: []ir.ValueID{table.ID},
		Acc:      outputAcc(result, nil),
		Body:     ir.NewOp(irkind.Lookup, result.Elem, ir.Arg{Index: 0}, ir.Capture{Index: 0}),
	}, nil
}

// MultiLookupTable applies a different table at every position. The tables
// are stored along the last dimension of the second operand, the other
// dimensions being broadcast to the result. The table of a position is
// reassembled from one binding per table element.
func MultiLookupTable(inst *ir.Instruction) (*ir.LoopNest, error) {
	if err := checkArity(inst); err != nil {
		return nil, err
	}
	if err := checkCipher(inst, 0, true); err != nil {
		return nil, err
	}
	if err := checkCipher(inst, 1, false); err != nil {
		return nil, err
	}
	luts := inst.Operands[1]
	if luts.Type.Rank() == 0 {
		return nil, errors.Errorf("%s: lookup tables %s have no table dimension", inst.Kind, luts.Type)
	}
	space, err := itspace.Build(inst)
	if err != nil {
		return nil, err
	}
	result := inst.Result().Type
	inputs, err := bind(result, inst.Operands[0])
	if err != nil {
		return nil, err
	}
	tableSize := luts.Type.Shape[luts.Type.Rank()-1]
	elements := make([]ir.Expr, tableSize)
	for k := range tableSize {
		m, err := broadcast.Resolve(result.Shape, luts.Type.Shape, broadcast.ExcludeTrailing(k))
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, ir.Binding{Value: luts.ID, Map: m})
		elements[k] = ir.Arg{Index: k + 1}
	}
	table := ir.NewOp(irkind.FromElements, luts.Type.Elem, elements...)
	return &ir.LoopNest{
		Space:  space,
		Inputs: inputs,
		Acc:    outputAcc(result, nil),
		Body:   ir.NewOp(irkind.Lookup, result.Elem, ir.Arg{Index: 0}, table),
	}, nil
}

// MappedLookupTable applies at every position the row of a table of
// lookup tables selected by an index map.
// Operands are ordered (input, lookup tables, index map). The input and
// the index map are both broadcast to the result.
func MappedLookupTable(inst *ir.Instruction) (*ir.LoopNest, error) {
	if err := checkArity(inst); err != nil {
		return nil, err
	}
	for i, cipher := range []bool{true, false, false} {
		if err := checkCipher(inst, i, cipher); err != nil {
			return nil, err
		}
	}
	t, luts, rows := inst.Operands[0], inst.Operands[1], inst.Operands[2]
	if luts.Type.Rank() != 2 {
		return nil, errors.Errorf("%s: lookup tables %s is not a matrix", inst.Kind, luts.Type)
	}
	space, err := itspace.Build(inst)
	if err != nil {
		return nil, err
	}
	result := inst.Result().Type
	inputs, err := bind(result, t, rows)
	if err != nil {
		return nil, err
	}
	tableSize := luts.Type.Shape[1]
	elements := make([]ir.Expr, tableSize)
	for k := range tableSize {
		elements[k] = ir.NewOp(irkind.Extract, luts.Type.Elem, ir.Capture{Index: 0}, ir.Arg{Index: 1}, ir.IndexConst{Value: k})
	}
	table := ir.NewOp(irkind.FromElements, luts.Type.Elem, elements...)
	return &ir.LoopNest{
		Space:    space,
		Inputs:   inputs,
		Captures: []ir.ValueID{luts.ID},
		Acc:      outputAcc(result, nil),
		Body:     ir.NewOp(irkind.Lookup, result.Elem, ir.Arg{Index: 0}, table),
	}, nil
}
