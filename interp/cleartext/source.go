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

package cleartext

import (
	"github.com/gx-org/fhelinalg/build/ir"
	"github.com/gx-org/fhelinalg/build/ir/irkind"
	"github.com/pkg/errors"
)

// broadcastPos returns the position in an operand of shape dims of the
// element read at position pos of the result.
func broadcastPos(pos []int, dims []int) []int {
	delta := len(pos) - len(dims)
	opPos := make([]int, len(dims))
	for i, d := range dims {
		if d != 1 {
			opPos[i] = pos[i+delta]
		}
	}
	return opPos
}

var binaryPrimitive = map[irkind.Kind]irkind.Kind{
	irkind.AddEintEint:  irkind.AddEint,
	irkind.AddEintPlain: irkind.AddEintInt,
	irkind.SubPlainEint: irkind.SubIntEint,
	irkind.MulEintPlain: irkind.MulEintInt,
}

// evalSource computes a tensor operation of the source vocabulary.
func evalSource(inst *ir.Instruction, operands []*Array) (*Array, error) {
	result := inst.Result().Type
	out := Zeros(result)
	if want := inst.Kind.NumOperands(); want >= 0 && len(operands) != want {
		return nil, errors.Errorf("%s requires %d operands but got %d", inst.Kind, want, len(operands))
	}
	switch inst.Kind {
	case irkind.AddEintEint, irkind.AddEintPlain, irkind.SubPlainEint, irkind.MulEintPlain, irkind.Negate:
		return out, elementwise(inst.Kind, out, operands)
	case irkind.ZeroFill:
		return out, nil
	case irkind.Dot:
		return dot(out, operands[0], operands[1])
	case irkind.MatMulEintPlain, irkind.MatMulPlainEint:
		return out, matmul(out, operands[0], operands[1])
	case irkind.ApplyLookupTable:
		return out, forEach(result.Shape, func(pos []int) error {
			x, err := operands[0].At(broadcastPos(pos, operands[0].Type().Shape)...)
			if err != nil {
				return err
			}
			v, err := lookup(x, operands[1].Data())
			if err != nil {
				return err
			}
			return out.Set(v, pos...)
		})
	case irkind.ApplyMultiLookupTable:
		return out, multiLookup(out, operands[0], operands[1])
	case irkind.ApplyMappedLookupTable:
		return out, mappedLookup(out, operands[0], operands[1], operands[2])
	}
	return nil, errors.Errorf("tensor operation not supported")
}

func elementwise(kind irkind.Kind, out *Array, operands []*Array) error {
	prim, ok := binaryPrimitive[kind]
	if kind == irkind.Negate {
		prim, ok = irkind.NegEint, true
	}
	if !ok {
		return errors.Errorf("no primitive for %s", kind)
	}
	return forEach(out.Type().Shape, func(pos []int) error {
		args := make([]int64, len(operands))
		for i, op := range operands {
			var err error
			if args[i], err = op.At(broadcastPos(pos, op.Type().Shape)...); err != nil {
				return err
			}
		}
		v, err := apply(prim, args)
		if err != nil {
			return err
		}
		return out.Set(v, pos...)
	})
}

func dot(out, a, b *Array) (*Array, error) {
	if len(a.Data()) != len(b.Data()) {
		return nil, errors.Errorf("dot product of %s and %s", a.Type(), b.Type())
	}
	var sum int64
	for i, x := range a.Data() {
		sum += x * b.Data()[i]
	}
	return out, out.Set(sum)
}

func matmul(out, a, b *Array) error {
	inner := a.Type().Shape[1]
	return forEach(out.Type().Shape, func(pos []int) error {
		var sum int64
		for p := range inner {
			x, err := a.At(pos[0], p)
			if err != nil {
				return err
			}
			y, err := b.At(p, pos[1])
			if err != nil {
				return err
			}
			sum += x * y
		}
		return out.Set(sum, pos...)
	})
}

func multiLookup(out, t, luts *Array) error {
	lutsDims := luts.Type().Shape
	tableSize := lutsDims[len(lutsDims)-1]
	return forEach(out.Type().Shape, func(pos []int) error {
		x, err := t.At(broadcastPos(pos, t.Type().Shape)...)
		if err != nil {
			return err
		}
		row := append(broadcastPos(pos, lutsDims[:len(lutsDims)-1]), 0)
		table := make([]int64, tableSize)
		for k := range tableSize {
			row[len(row)-1] = k
			if table[k], err = luts.At(row...); err != nil {
				return err
			}
		}
		v, err := lookup(x, table)
		if err != nil {
			return err
		}
		return out.Set(v, pos...)
	})
}

func mappedLookup(out, t, luts, rows *Array) error {
	tableSize := luts.Type().Shape[1]
	return forEach(out.Type().Shape, func(pos []int) error {
		x, err := t.At(broadcastPos(pos, t.Type().Shape)...)
		if err != nil {
			return err
		}
		row, err := rows.At(broadcastPos(pos, rows.Type().Shape)...)
		if err != nil {
			return err
		}
		table := make([]int64, tableSize)
		for k := range tableSize {
			if table[k], err = luts.At(int(row), k); err != nil {
				return err
			}
		}
		v, err := lookup(x, table)
		if err != nil {
			return err
		}
		return out.Set(v, pos...)
	})
}
