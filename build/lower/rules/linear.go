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
	"github.com/gx-org/fhelinalg/build/lower/itspace"
	"github.com/pkg/errors"
)

// cipherFirst returns the position of the encrypted and plain operands of a
// binary instruction. Exactly one of the operand needs to be encrypted.
func cipherFirst(inst *ir.Instruction) (cipher, plain int, err error) {
	lhs := ir.IsEncrypted(inst.Operands[0].Type.Elem)
	rhs := ir.IsEncrypted(inst.Operands[1].Type.Elem)
	switch {
	case lhs && !rhs:
		return 0, 1, nil
	case !lhs && rhs:
		return 1, 0, nil
	}
	return 0, 0, errors.Errorf("%s requires exactly one encrypted operand but got %s and %s", inst.Kind, inst.Operands[0].Type, inst.Operands[1].Type)
}

// Dot computes the dot product of two vectors with a reduction into a
// single position accumulator seeded with an encrypted zero.
func Dot(inst *ir.Instruction) (*ir.LoopNest, error) {
	if err := checkArity(inst); err != nil {
		return nil, err
	}
	space, err := itspace.Build(inst)
	if err != nil {
		return nil, err
	}
	cipher, plain, err := cipherFirst(inst)
	if err != nil {
		return nil, err
	}
	el := inst.Result().Type.Elem
	mul := ir.NewOp(irkind.MulEintInt, el, ir.Arg{Index: cipher}, ir.Arg{Index: plain})
	return &ir.LoopNest{
		Space: space,
		Inputs: []ir.Binding{
			{Value: inst.Operands[0].ID, Map: ir.IdentityMap(1)},
			{Value: inst.Operands[1].ID, Map: ir.IdentityMap(1)},
		},
		Acc: ir.Accumulator{
			Mode: ir.FoldInit,
			Init: ir.NewOp(irkind.ZeroEint, el),
			Map:  ir.IndexMap{ir.Const(0)},
			Type: ir.Tensor(el, 1),
		},
		Body:    ir.NewOp(irkind.AddEint, el, mul, ir.Acc{}),
		Extract: []int{0},
	}, nil
}

// MatMul computes the product of two matrices, one of them encrypted.
// Every position of the result is seeded with an encrypted zero.
func MatMul(inst *ir.Instruction) (*ir.LoopNest, error) {
	if err := checkArity(inst); err != nil {
		return nil, err
	}
	lhsCipher := inst.Kind == irkind.MatMulEintPlain
	if err := checkCipher(inst, 0, lhsCipher); err != nil {
		return nil, err
	}
	if err := checkCipher(inst, 1, !lhsCipher); err != nil {
		return nil, err
	}
	space, err := itspace.Build(inst)
	if err != nil {
		return nil, err
	}
	cipher, plain := 0, 1
	if !lhsCipher {
		cipher, plain = 1, 0
	}
	result := inst.Result().Type
	el := result.Elem
	mul := ir.NewOp(irkind.MulEintInt, el, ir.Arg{Index: cipher}, ir.Arg{Index: plain})
	return &ir.LoopNest{
		Space: space,
		Inputs: []ir.Binding{
			{Value: inst.Operands[0].ID, Map: ir.IndexMap{ir.IterVar(0), ir.IterVar(2)}},
			{Value: inst.Operands[1].ID, Map: ir.IndexMap{ir.IterVar(2), ir.IterVar(1)}},
		},
		Acc:  outputAcc(result, ir.NewOp(irkind.ZeroEint, el)),
		Body: ir.NewOp(irkind.AddEint, el, ir.Acc{}, mul),
	}, nil
}
