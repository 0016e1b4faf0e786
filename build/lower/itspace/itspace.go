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

// Package itspace builds the iteration space of the loop nest implementing
// a tensor operation.
package itspace

import (
	"github.com/gx-org/fhelinalg/build/ir"
	"github.com/gx-org/fhelinalg/build/ir/irkind"
	"github.com/gx-org/fhelinalg/build/lower/broadcast"
	"github.com/pkg/errors"
)

// Build returns the iteration space of a source instruction.
func Build(inst *ir.Instruction) (ir.IterationSpace, error) {
	if len(inst.Results) != 1 {
		return nil, errors.Errorf("%s has %d results instead of 1", inst.Kind, len(inst.Results))
	}
	if want := inst.Kind.NumOperands(); want >= 0 && len(inst.Operands) != want {
		return nil, errors.Errorf("%s has %d operands but requires %d", inst.Kind, len(inst.Operands), want)
	}
	switch inst.Kind {
	case irkind.Dot:
		return dot(inst)
	case irkind.MatMulEintPlain, irkind.MatMulPlainEint:
		return matmul(inst)
	case irkind.AddEintEint, irkind.AddEintPlain, irkind.SubPlainEint, irkind.MulEintPlain,
		irkind.Negate,
		irkind.ApplyLookupTable, irkind.ApplyMultiLookupTable, irkind.ApplyMappedLookupTable,
		irkind.ZeroFill:
		return Parallel(inst.Result().Type.Shape), nil
	}
	return nil, errors.Errorf("no iteration space for %s", inst.Kind)
}

// Parallel returns an iteration space with a parallel dimension
// for every dimension of a result.
func Parallel(result []int) ir.IterationSpace {
	return ir.ParallelSpace(result)
}

// Dot returns the iteration space of the dot product of two vectors of size n.
func Dot(n int) ir.IterationSpace {
	return ir.IterationSpace{{Size: n, Kind: ir.Reduction}}
}

// MatMul returns the iteration space of the product of a MxP matrix by a PxN matrix.
func MatMul(m, n, p int) ir.IterationSpace {
	return ir.IterationSpace{
		{Size: m, Kind: ir.Parallel},
		{Size: n, Kind: ir.Parallel},
		{Size: p, Kind: ir.Reduction},
	}
}

func dot(inst *ir.Instruction) (ir.IterationSpace, error) {
	lhs, rhs := inst.Operands[0].Type.Shape, inst.Operands[1].Type.Shape
	if len(lhs) != 1 {
		return nil, &broadcast.ShapeError{Op: inst.Kind.String(), Dim: -1, Expected: 1, Got: len(lhs)}
	}
	if len(rhs) != 1 {
		return nil, &broadcast.ShapeError{Op: inst.Kind.String(), Dim: -1, Expected: 1, Got: len(rhs)}
	}
	if lhs[0] != rhs[0] {
		return nil, &broadcast.ShapeError{Op: inst.Kind.String(), Dim: 0, Expected: lhs[0], Got: rhs[0]}
	}
	return Dot(lhs[0]), nil
}

func matmul(inst *ir.Instruction) (ir.IterationSpace, error) {
	lhs, rhs := inst.Operands[0].Type.Shape, inst.Operands[1].Type.Shape
	if len(lhs) != 2 {
		return nil, &broadcast.ShapeError{Op: inst.Kind.String(), Dim: -1, Expected: 2, Got: len(lhs)}
	}
	if len(rhs) != 2 {
		return nil, &broadcast.ShapeError{Op: inst.Kind.String(), Dim: -1, Expected: 2, Got: len(rhs)}
	}
	if lhs[1] != rhs[0] {
		return nil, &broadcast.ShapeError{Op: inst.Kind.String(), Dim: 0, Expected: lhs[1], Got: rhs[0]}
	}
	res := inst.Result().Type.Shape
	if len(res) != 2 || res[0] != lhs[0] || res[1] != rhs[1] {
		return nil, errors.Errorf("%s of %s by %s cannot return %s", inst.Kind, inst.Operands[0].Type, inst.Operands[1].Type, inst.Result().Type)
	}
	return MatMul(lhs[0], rhs[1], lhs[1]), nil
}
