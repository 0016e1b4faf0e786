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

type (
	// value of a node of the body of a loop nest:
	// either a scalar or a whole tensor.
	value struct {
		scalar int64
		array  *Array
	}

	// point evaluates the body of a loop nest at a point of its iteration space.
	point struct {
		nest     *ir.LoopNest
		pos      []int
		inputs   []*Array
		captures []*Array
		acc      *Array
		cache    map[*ir.Op]value
	}
)

func (e *evaluator) evalGeneric(inst *ir.Instruction, operands []*Array) (*Array, error) {
	nest := inst.LoopNest()
	if nest == nil {
		return nil, errors.Errorf("generic instruction without loop nest")
	}
	if len(operands) != nest.NumOperands() {
		return nil, errors.Errorf("loop nest requires %d operands but got %d", nest.NumOperands(), len(operands))
	}
	numInputs := len(nest.Inputs)
	p := &point{
		nest:     nest,
		inputs:   operands[:numInputs],
		captures: operands[numInputs : numInputs+len(nest.Captures)],
		acc:      operands[len(operands)-1].Clone(),
	}
	err := forEach(nest.Space.Sizes(), func(pos []int) error {
		p.pos = e.visitOrder(nest.Space, pos)
		p.cache = make(map[*ir.Op]value)
		v, err := p.eval(nest.Body)
		if err != nil {
			return err
		}
		if v.array != nil {
			return errors.Errorf("body of the loop nest computes a tensor")
		}
		return p.acc.Set(v.scalar, nest.Acc.Map.Apply(p.pos)...)
	})
	if err != nil {
		return nil, err
	}
	if nest.Extract == nil {
		return p.acc, nil
	}
	v, err := p.acc.At(nest.Extract...)
	if err != nil {
		return nil, err
	}
	return Scalar(nest.Acc.Type.Elem, v), nil
}

// visitOrder maps a position of the odometer to the point visited.
func (e *evaluator) visitOrder(space ir.IterationSpace, pos []int) []int {
	if !e.reverseReductions {
		return pos
	}
	visited := make([]int, len(pos))
	for i, d := range space {
		visited[i] = pos[i]
		if d.Kind == ir.Reduction {
			visited[i] = d.Size - 1 - pos[i]
		}
	}
	return visited
}

func (p *point) eval(e ir.Expr) (value, error) {
	switch eT := e.(type) {
	case ir.Arg:
		b := p.nest.Inputs[eT.Index]
		v, err := p.inputs[eT.Index].At(b.Map.Apply(p.pos)...)
		return value{scalar: v}, err
	case ir.Capture:
		return value{array: p.captures[eT.Index]}, nil
	case ir.Acc:
		v, err := p.acc.At(p.nest.Acc.Map.Apply(p.pos)...)
		return value{scalar: v}, err
	case ir.IndexConst:
		return value{scalar: int64(eT.Value)}, nil
	case *ir.Op:
		if v, ok := p.cache[eT]; ok {
			return v, nil
		}
		v, err := p.evalOp(eT)
		if err != nil {
			return value{}, err
		}
		p.cache[eT] = v
		return v, nil
	}
	return value{}, errors.Errorf("expression %T not supported", e)
}

func (p *point) evalOp(op *ir.Op) (value, error) {
	args := make([]value, len(op.Args))
	for i, arg := range op.Args {
		var err error
		if args[i], err = p.eval(arg); err != nil {
			return value{}, err
		}
	}
	switch op.Kind {
	case irkind.FromElements:
		data := make([]int64, len(args))
		for i, arg := range args {
			data[i] = arg.scalar
		}
		table, err := NewArray(ir.Tensor(op.Type, len(data)), data)
		return value{array: table}, err
	case irkind.Extract:
		if len(args) == 0 || args[0].array == nil {
			return value{}, errors.Errorf("%s requires a tensor", op)
		}
		pos := make([]int, len(args)-1)
		for i, arg := range args[1:] {
			pos[i] = int(arg.scalar)
		}
		v, err := args[0].array.At(pos...)
		return value{scalar: v}, err
	case irkind.Lookup:
		if len(args) != 2 || args[1].array == nil {
			return value{}, errors.Errorf("%s requires a table", op)
		}
		v, err := lookup(args[0].scalar, args[1].array.Data())
		return value{scalar: v}, err
	}
	scalars := make([]int64, len(args))
	for i, arg := range args {
		scalars[i] = arg.scalar
	}
	v, err := apply(op.Kind, scalars)
	return value{scalar: v}, err
}
