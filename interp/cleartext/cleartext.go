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

// Package cleartext evaluates functions on cleartext integers.
//
// Encrypted integers are represented by their cleartext value and the
// scalar primitives of the backend by the integer operation they compute
// homomorphically. The evaluator supports both the tensor operations of the
// source vocabulary, computed directly with broadcasting, and the loop nests
// they are lowered into. It is used to check that a lowering preserves the
// value computed by a function.
package cleartext

import (
	"github.com/gx-org/fhelinalg/build/fmterr"
	"github.com/gx-org/fhelinalg/build/ir"
	"github.com/gx-org/fhelinalg/build/ir/irkind"
	"github.com/pkg/errors"
)

type (
	// Option of the evaluator.
	Option func(*evaluator)

	evaluator struct {
		fn                *ir.Function
		values            map[ir.ValueID]*Array
		reverseReductions bool
	}
)

// ReverseReductions visits the points of the reduction dimensions of
// loop nests in decreasing order.
func ReverseReductions() Option {
	return func(e *evaluator) {
		e.reverseReductions = true
	}
}

// Eval evaluates a function given its arguments.
func Eval(fn *ir.Function, args []*Array, opts ...Option) ([]*Array, error) {
	e := &evaluator{fn: fn, values: make(map[ir.ValueID]*Array)}
	for _, opt := range opts {
		opt(e)
	}
	if len(args) != len(fn.Args) {
		return nil, errors.Errorf("function %s requires %d arguments but got %d", fn.Name, len(fn.Args), len(args))
	}
	for i, arg := range fn.Args {
		if got := args[i].Type(); !sameShape(got, arg.Type) {
			return nil, errors.Errorf("argument %d of %s: got %s but want %s", i, fn.Name, got, arg.Type)
		}
		e.values[arg.ID] = args[i]
	}
	for _, inst := range fn.Insts {
		if err := e.eval(inst); err != nil {
			return nil, fmterr.Position(inst.Loc, errors.Wrapf(err, "cannot evaluate %s", inst.Kind))
		}
	}
	rets := make([]*Array, len(fn.Returns))
	for i, id := range fn.Returns {
		val, ok := e.values[id]
		if !ok {
			return nil, errors.Errorf("function %s returns undefined value %s", fn.Name, id)
		}
		rets[i] = val
	}
	return rets, nil
}

func sameShape(a, b ir.Type) bool {
	return a.WithElem(nil).Equal(b.WithElem(nil))
}

func (e *evaluator) eval(inst *ir.Instruction) error {
	operands := make([]*Array, len(inst.Operands))
	for i, op := range inst.Operands {
		val, ok := e.values[op.ID]
		if !ok {
			return errors.Errorf("value %s undefined", op.ID)
		}
		operands[i] = val
	}
	if len(inst.Results) != 1 {
		return errors.Errorf("%d results not supported", len(inst.Results))
	}
	var res *Array
	var err error
	switch {
	case inst.Kind.IsSource():
		res, err = evalSource(inst, operands)
	case inst.Kind.IsScalarPrimitive():
		res, err = evalPrimitive(inst, operands)
	default:
		res, err = e.evalStructural(inst, operands)
	}
	if err != nil {
		return err
	}
	if !sameShape(res.Type(), inst.Result().Type) {
		return errors.Errorf("computed a value of type %s but the instruction declares %s", res.Type(), inst.Result().Type)
	}
	e.values[inst.Result().ID] = res
	return nil
}

// apply computes a scalar primitive.
func apply(kind irkind.Kind, args []int64) (int64, error) {
	if want := kind.NumOperands(); want >= 0 && len(args) != want {
		return 0, errors.Errorf("%s requires %d arguments but got %d", kind, want, len(args))
	}
	switch kind {
	case irkind.AddEint, irkind.AddEintInt:
		return args[0] + args[1], nil
	case irkind.SubIntEint:
		return args[0] - args[1], nil
	case irkind.MulEintInt:
		return args[0] * args[1], nil
	case irkind.NegEint:
		return -args[0], nil
	case irkind.ZeroEint:
		return 0, nil
	}
	return 0, errors.Errorf("%s is not an arithmetic primitive", kind)
}

func lookup(x int64, table []int64) (int64, error) {
	if x < 0 || x >= int64(len(table)) {
		return 0, errors.Errorf("lookup of %d in a table of size %d", x, len(table))
	}
	return table[x], nil
}

func evalPrimitive(inst *ir.Instruction, operands []*Array) (*Array, error) {
	if inst.Kind == irkind.Lookup {
		if len(operands) != 2 {
			return nil, errors.Errorf("lookup requires 2 operands")
		}
		v, err := lookup(operands[0].Data()[0], operands[1].Data())
		if err != nil {
			return nil, err
		}
		return Scalar(inst.Result().Type.Elem, v), nil
	}
	args := make([]int64, len(operands))
	for i, op := range operands {
		if !op.Type().IsScalar() {
			return nil, errors.Errorf("operand %d is not a scalar: %s", i, op.Type())
		}
		args[i] = op.Data()[0]
	}
	v, err := apply(inst.Kind, args)
	if err != nil {
		return nil, err
	}
	return Scalar(inst.Result().Type.Elem, v), nil
}

func (e *evaluator) evalStructural(inst *ir.Instruction, operands []*Array) (*Array, error) {
	result := inst.Result().Type
	switch inst.Kind {
	case irkind.InitTensor:
		return Zeros(result), nil
	case irkind.Constant:
		cst, ok := inst.Attr.(ir.Constant)
		if !ok {
			return nil, errors.Errorf("constant without value")
		}
		return NewArray(result, cst.Values)
	case irkind.FromElements:
		data := make([]int64, len(operands))
		for i, op := range operands {
			data[i] = op.Data()[0]
		}
		return NewArray(result, data)
	case irkind.Extract:
		idx, ok := inst.Attr.(ir.Indices)
		if !ok {
			return nil, errors.Errorf("extraction without indices")
		}
		v, err := operands[0].At(idx.Values...)
		if err != nil {
			return nil, err
		}
		return Scalar(result.Elem, v), nil
	case irkind.Generic:
		return e.evalGeneric(inst, operands)
	}
	return nil, errors.Errorf("instruction not supported")
}
