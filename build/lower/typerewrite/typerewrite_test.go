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

package typerewrite_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gx-org/fhelinalg/build/ir"
	"github.com/gx-org/fhelinalg/build/ir/irkind"
	"github.com/gx-org/fhelinalg/build/lower/rules"
	"github.com/gx-org/fhelinalg/build/lower/typerewrite"
)

var (
	eint = ir.EncryptedType{Precision: 7}
	i8   = ir.PlainType{Width: 8}
	lwe  = ir.CiphertextType{Dimension: 1024, Precision: 7}
)

func toLWE(el ir.ElementType) (ir.ElementType, bool) {
	enc, ok := el.(ir.EncryptedType)
	if !ok {
		return nil, false
	}
	return ir.CiphertextType{Dimension: 1024, Precision: enc.Precision, Params: enc.Params}, true
}

func widen(el ir.ElementType) (ir.ElementType, bool) {
	plain, ok := el.(ir.PlainType)
	if !ok || plain.Width >= 64 {
		return nil, false
	}
	return ir.PlainType{Width: 64}, true
}

func instructions(t *testing.T) []*ir.Instruction {
	fn := ir.NewFunction("test")
	a := fn.AddArg(ir.Tensor(eint, 3))
	b := fn.AddArg(ir.Tensor(i8, 3))
	add := fn.Append(irkind.AddEintPlain, []ir.Slot{a, b}, []ir.Type{ir.Tensor(eint, 3)}, nil, ir.Loc{})
	dot := fn.Append(irkind.Dot, []ir.Slot{a, b}, []ir.Type{ir.Scalar(eint)}, nil, ir.Loc{})
	nest, err := rules.Default().Lower(dot)
	if err != nil {
		t.Fatal(err)
	}
	init := fn.Append(irkind.FromElements, nil, []ir.Type{nest.Acc.Type}, nil, ir.Loc{})
	gen := fn.Append(irkind.Generic, []ir.Slot{a, b, init.Result()}, []ir.Type{nest.Acc.Type}, nest, ir.Loc{})
	cst := fn.Append(irkind.Constant, nil, []ir.Type{ir.Tensor(i8, 2)}, ir.Constant{Values: []int64{1, 2}}, ir.Loc{})
	return []*ir.Instruction{add, dot, init, gen, cst}
}

func TestPatchIdempotent(t *testing.T) {
	converters := map[string]ir.TypeConverter{
		"lwe":   ir.ElementConverter(toLWE).Types(),
		"widen": ir.ElementConverter(widen).Types(),
		"nil":   nil,
	}
	for name, conv := range converters {
		for _, inst := range instructions(t) {
			once, _ := typerewrite.Patch(inst, conv)
			twice, changed := typerewrite.Patch(once, conv)
			if changed {
				t.Errorf("%s: patching %s twice changed it again", name, inst.Kind)
			}
			if once.String() != twice.String() {
				t.Errorf("%s: patch is not idempotent:\n%s\n%s", name, once, twice)
			}
		}
	}
}

func TestPatchDoesNotModifyInput(t *testing.T) {
	for _, inst := range instructions(t) {
		before := inst.String()
		patched, _ := typerewrite.Patch(inst, ir.ElementConverter(toLWE).Types())
		if inst.String() != before {
			t.Errorf("patch modified its input:\nbefore: %s\nafter:  %s", before, inst)
		}
		if patched.Kind != inst.Kind {
			t.Errorf("patch changed the kind from %s to %s", inst.Kind, patched.Kind)
		}
		for i, op := range patched.Operands {
			if op.ID != inst.Operands[i].ID {
				t.Errorf("patch changed operand %d from %s to %s", i, inst.Operands[i].ID, op.ID)
			}
		}
	}
}

func TestPatchTypes(t *testing.T) {
	insts := instructions(t)
	conv := ir.ElementConverter(toLWE).Types()
	add, changed := typerewrite.Patch(insts[0], conv)
	if !changed {
		t.Errorf("addition with encrypted operands not patched")
	}
	wantOperands := []ir.Slot{
		{ID: 0, Type: ir.Tensor(lwe, 3)},
		{ID: 1, Type: ir.Tensor(i8, 3)},
	}
	if diff := cmp.Diff(add.Operands, wantOperands); diff != "" {
		t.Errorf("unexpected operands:\n%s", diff)
	}
	if got := add.Result().Type; !got.Equal(ir.Tensor(lwe, 3)) {
		t.Errorf("got result type %s but want %s", got, ir.Tensor(lwe, 3))
	}

	gen, _ := typerewrite.Patch(insts[3], conv)
	nest := gen.LoopNest()
	if !nest.Acc.Type.Equal(ir.Tensor(lwe, 1)) {
		t.Errorf("got accumulator type %s but want %s", nest.Acc.Type, ir.Tensor(lwe, 1))
	}
	ir.Walk(nest.Body, func(e ir.Expr) {
		if op, ok := e.(*ir.Op); ok && !op.Type.Equal(lwe) {
			t.Errorf("operation %s not patched", op)
		}
	})
	if insts[3].LoopNest().Acc.Type.Equal(nest.Acc.Type) {
		t.Errorf("patch modified the loop nest of its input")
	}

	if !typerewrite.IsLegal(insts[4], conv) {
		t.Errorf("plain constant should be legal")
	}
	if typerewrite.IsLegal(insts[0], conv) {
		t.Errorf("encrypted addition should not be legal")
	}
}

func TestPatchFunction(t *testing.T) {
	fn := ir.NewFunction("neg")
	a := fn.AddArg(ir.Tensor(eint, 2))
	neg := fn.Append(irkind.Negate, []ir.Slot{a}, []ir.Type{ir.Tensor(eint, 2)}, nil, ir.Loc{})
	fn.Return(neg.Result())
	got, changed := typerewrite.PatchFunction(fn, ir.ElementConverter(toLWE).Types())
	if !changed {
		t.Fatalf("function not patched")
	}
	if err := got.Verify(); err != nil {
		t.Fatalf("patched function is invalid: %v\n%s", err, got)
	}
	if !got.Args[0].Type.Equal(ir.Tensor(lwe, 2)) {
		t.Errorf("got argument type %s but want %s", got.Args[0].Type, ir.Tensor(lwe, 2))
	}
	if !fn.Args[0].Type.Equal(ir.Tensor(eint, 2)) {
		t.Errorf("patch modified the input function")
	}
}
