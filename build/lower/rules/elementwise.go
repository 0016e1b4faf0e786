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
)

// bind returns the bindings reading every operand with broadcasting
// to the shape of the result.
func bind(result ir.Type, operands ...ir.Slot) ([]ir.Binding, error) {
	bindings := make([]ir.Binding, len(operands))
	for i, op := range operands {
		m, err := broadcast.Resolve(result.Shape, op.Type.Shape)
		if err != nil {
			return nil, err
		}
		bindings[i] = ir.Binding{Value: op.ID, Map: m}
	}
	return bindings, nil
}

// Elementwise returns a rule applying a binary scalar primitive at every
// position of the result. lhsCipher and rhsCipher specify which operands
// are expected to be encrypted.
func Elementwise(prim irkind.Kind, lhsCipher, rhsCipher bool) Rule {
	return func(inst *ir.Instruction) (*ir.LoopNest, error) {
		if err := checkArity(inst); err != nil {
			return nil, err
		}
		if err := checkCipher(inst, 0, lhsCipher); err != nil {
			return nil, err
		}
		if err := checkCipher(inst, 1, rhsCipher); err != nil {
			return nil, err
		}
		return parallel(inst, func(res ir.ElementType) ir.Expr {
			return ir.NewOp(prim, res, ir.Arg{Index: 0}, ir.Arg{Index: 1})
		})
	}
}

// Negate applies the negation primitive at every position of the result.
func Negate(inst *ir.Instruction) (*ir.LoopNest, error) {
	if err := checkArity(inst); err != nil {
		return nil, err
	}
	if err := checkCipher(inst, 0, true); err != nil {
		return nil, err
	}
	return parallel(inst, func(res ir.ElementType) ir.Expr {
		return ir.NewOp(irkind.NegEint, res, ir.Arg{Index: 0})
	})
}

// parallel builds a parallel loop nest over the result reading all the
// operands of the instruction at the current position.
func parallel(inst *ir.Instruction, body func(ir.ElementType) ir.Expr) (*ir.LoopNest, error) {
	space, err := itspace.Build(inst)
	if err != nil {
		return nil, err
	}
	result := inst.Result().Type
	inputs, err := bind(result, inst.Operands...)
	if err != nil {
		return nil, err
	}
	return &ir.LoopNest{
		Space:  space,
		Inputs: inputs,
		Acc:    outputAcc(result, nil),
		Body:   body(result.Elem),
	}, nil
}

// ZeroFill writes an encrypted zero at every position of the result.
func ZeroFill(inst *ir.Instruction) (*ir.LoopNest, error) {
	if err := checkArity(inst); err != nil {
		return nil, err
	}
	return parallel(inst, func(res ir.ElementType) ir.Expr {
		return ir.NewOp(irkind.ZeroEint, res)
	})
}
