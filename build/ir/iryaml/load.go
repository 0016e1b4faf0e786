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

package iryaml

import (
	"bytes"
	"io"
	"os"
	"slices"

	"github.com/gx-org/fhelinalg/build/fmterr"
	"github.com/gx-org/fhelinalg/build/ir"
	"github.com/gx-org/fhelinalg/build/ir/irkind"
	"github.com/gx-org/fhelinalg/build/lower/broadcast"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// LoadFile reads a program from a YAML file.
func LoadFile(path string) (*ir.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read program")
	}
	prog, err := Load(bytes.NewReader(data))
	if err != nil {
		return nil, errors.WithMessagef(err, "%s", path)
	}
	return prog, nil
}

// Load reads a program in YAML.
// Unknown fields are rejected.
func Load(r io.Reader) (*ir.Program, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f file
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, errors.Errorf("empty program")
		}
		return nil, errors.Wrapf(err, "cannot parse program")
	}
	if err := checkVersion(f.Version); err != nil {
		return nil, err
	}
	errs := &fmterr.Errors{}
	app := fmterr.NewAppender(errs)
	prog := &ir.Program{}
	for _, fnY := range f.Functions {
		if fnY.Name == "" {
			app.Append(errors.Errorf("function without a name"))
			continue
		}
		if prog.Function(fnY.Name) != nil {
			app.Append(errors.Errorf("function %s defined more than once", fnY.Name))
			continue
		}
		app.Push(fmterr.PrefixWith("function %s: ", fnY.Name))
		fn, err := loadFunction(fnY)
		app.Append(err)
		app.Pop()
		if err == nil {
			prog.Functions = append(prog.Functions, fn)
		}
	}
	return prog, errs.ToError()
}

type loader struct {
	fn    *ir.Function
	slots map[string]ir.Slot
}

func loadFunction(fnY function) (*ir.Function, error) {
	loc, err := ParseLoc(fnY.Loc)
	if err != nil {
		return nil, err
	}
	ld := &loader{
		fn:    ir.NewFunction(fnY.Name),
		slots: make(map[string]ir.Slot),
	}
	ld.fn.Loc = loc
	for _, arg := range fnY.Args {
		tp, err := ir.ParseType(arg.Type)
		if err != nil {
			return nil, fmterr.Position(loc, errors.WithMessagef(err, "argument %s", arg.Name))
		}
		if err := ld.define(loc, arg.Name, ld.fn.AddArg(tp)); err != nil {
			return nil, err
		}
	}
	for _, instY := range fnY.Body {
		if err := ld.instruction(instY); err != nil {
			return nil, err
		}
	}
	var rets []ir.Slot
	for _, name := range fnY.Return {
		slot, ok := ld.slots[name]
		if !ok {
			return nil, fmterr.Errorf(loc, "return value %s undefined", name)
		}
		rets = append(rets, slot)
	}
	ld.fn.Return(rets...)
	if err := ld.fn.Verify(); err != nil {
		return nil, err
	}
	return ld.fn, nil
}

func (ld *loader) define(loc ir.Loc, name string, slot ir.Slot) error {
	if name == "" {
		return fmterr.Errorf(loc, "value %s has no name", slot.ID)
	}
	if _, dup := ld.slots[name]; dup {
		return fmterr.Errorf(loc, "value %s defined more than once", name)
	}
	ld.slots[name] = slot
	return nil
}

func (ld *loader) instruction(instY instruction) error {
	loc, err := ParseLoc(instY.Loc)
	if err != nil {
		return err
	}
	kind, ok := irkind.FromString(instY.Op)
	if !ok {
		return fmterr.Errorf(loc, "unknown operation %q", instY.Op)
	}
	if kind == irkind.Generic {
		return fmterr.Errorf(loc, "%s cannot be loaded", kind)
	}
	if want := kind.NumOperands(); want >= 0 && want != len(instY.Operands) {
		return fmterr.Errorf(loc, "%s: got %d operands but want %d", kind, len(instY.Operands), want)
	}
	operands := make([]ir.Slot, len(instY.Operands))
	for i, name := range instY.Operands {
		if operands[i], ok = ld.slots[name]; !ok {
			return fmterr.Errorf(loc, "%s: operand %s undefined", kind, name)
		}
	}
	if len(instY.Results) == 0 {
		return fmterr.Errorf(loc, "%s has no result", kind)
	}
	results := make([]ir.Type, len(instY.Results))
	for i, res := range instY.Results {
		if results[i], err = ir.ParseType(res.Type); err != nil {
			return fmterr.Position(loc, errors.WithMessagef(err, "%s result %s", kind, res.Name))
		}
	}
	attr, err := attribute(kind, instY)
	if err != nil {
		return fmterr.Position(loc, err)
	}
	if err := checkShapes(kind, operands, results); err != nil {
		return fmterr.Position(loc, err)
	}
	inst := ld.fn.Append(kind, operands, results, attr, loc)
	for i, res := range instY.Results {
		if err := ld.define(loc, res.Name, inst.Results[i]); err != nil {
			return err
		}
	}
	return nil
}

func attribute(kind irkind.Kind, instY instruction) (ir.Attribute, error) {
	switch kind {
	case irkind.Constant:
		if len(instY.Indices) > 0 {
			return nil, errors.Errorf("%s does not take indices", kind)
		}
		return ir.Constant{Values: slices.Clone(instY.Values)}, nil
	case irkind.Extract:
		if len(instY.Values) > 0 {
			return nil, errors.Errorf("%s does not take values", kind)
		}
		if len(instY.Indices) == 0 {
			return nil, nil
		}
		return ir.Indices{Values: slices.Clone(instY.Indices)}, nil
	}
	if len(instY.Values) > 0 || len(instY.Indices) > 0 {
		return nil, errors.Errorf("%s does not take values or indices", kind)
	}
	return nil, nil
}

func checkShapes(kind irkind.Kind, operands []ir.Slot, results []ir.Type) error {
	switch kind {
	case irkind.AddEintEint, irkind.AddEintPlain, irkind.SubPlainEint, irkind.MulEintPlain:
	default:
		return nil
	}
	want, err := broadcast.ResultShape(operands[0].Type.Shape, operands[1].Type.Shape)
	if err != nil {
		return errors.WithMessagef(err, "%s", kind)
	}
	if len(results) != 1 || !slices.Equal(results[0].Shape, want) {
		return errors.Errorf("%s: result %s does not have the broadcast shape %v", kind, results[0], want)
	}
	return nil
}
