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

package ir

import (
	"fmt"
	"slices"

	"github.com/gx-org/fhelinalg/build/ir/irkind"
	"github.com/pkg/errors"
)

type (
	// Loc is the location in the source program of an instruction.
	Loc struct {
		File      string
		Line, Col int
	}

	// ValueID identifies a value in a function.
	ValueID int

	// Slot is an operand or a result of an instruction.
	// It binds a value to the type declared by the instruction for that value.
	Slot struct {
		ID   ValueID
		Type Type
	}

	// Attribute of an instruction.
	Attribute interface {
		attribute()
		String() string
	}

	// Constant is a dense tensor of plain integers.
	Constant struct {
		Values []int64
	}

	// Indices is a static position in a tensor.
	Indices struct {
		Values []int
	}

	// Instruction of a function.
	// Instructions are tagged by their kind. Attributes depend on the kind:
	// Generic instructions carry a *LoopNest, Constant instructions a Constant,
	// and Extract instructions Indices.
	Instruction struct {
		Kind     irkind.Kind
		Operands []Slot
		Results  []Slot
		Attr     Attribute
		Loc      Loc
	}

	// Function is a unit of compilation.
	Function struct {
		Name    string
		Args    []Slot
		Insts   []*Instruction
		Returns []ValueID
		Loc     Loc

		nextID ValueID
	}

	// Program is a set of functions.
	Program struct {
		Functions []*Function
	}
)

var (
	_ Attribute = Constant{}
	_ Attribute = Indices{}
	_ Attribute = (*LoopNest)(nil)
)

// IsValid returns true if the location points to a source file.
func (l Loc) IsValid() bool {
	return l.File != "" || l.Line > 0
}

func (l Loc) String() string {
	if !l.IsValid() {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Col)
}

func (id ValueID) String() string {
	return fmt.Sprintf("%%%d", int(id))
}

func (Constant) attribute() {}

func (c Constant) String() string {
	return fmt.Sprintf("{value = %v}", c.Values)
}

func (Indices) attribute() {}

func (c Indices) String() string {
	return fmt.Sprintf("{indices = %v}", c.Values)
}

func cloneSlots(slots []Slot) []Slot {
	if slots == nil {
		return nil
	}
	cl := make([]Slot, len(slots))
	for i, s := range slots {
		cl[i] = Slot{ID: s.ID, Type: s.Type.WithElem(s.Type.Elem)}
	}
	return cl
}

// Clone returns a copy of the instruction.
// Attributes are shared except loop nests which are deep copied.
func (inst *Instruction) Clone() *Instruction {
	attr := inst.Attr
	if nest, ok := attr.(*LoopNest); ok {
		attr = nest.Clone()
	}
	return &Instruction{
		Kind:     inst.Kind,
		Operands: cloneSlots(inst.Operands),
		Results:  cloneSlots(inst.Results),
		Attr:     attr,
		Loc:      inst.Loc,
	}
}

// Result returns the first result of the instruction.
func (inst *Instruction) Result() Slot {
	return inst.Results[0]
}

// LoopNest returns the loop nest of a generic instruction or nil.
func (inst *Instruction) LoopNest() *LoopNest {
	nest, _ := inst.Attr.(*LoopNest)
	return nest
}

// NewFunction returns a new empty function.
func NewFunction(name string) *Function {
	return &Function{Name: name}
}

// NewValue allocates a new value identifier in the function.
func (fn *Function) NewValue() ValueID {
	id := fn.nextID
	fn.nextID++
	return id
}

func (fn *Function) reserve(id ValueID) {
	if id >= fn.nextID {
		fn.nextID = id + 1
	}
}

// AddArg adds an argument to the function.
func (fn *Function) AddArg(tp Type) Slot {
	s := Slot{ID: fn.NewValue(), Type: tp}
	fn.Args = append(fn.Args, s)
	return s
}

// Append a new instruction at the end of the function.
// New values are allocated for the results.
func (fn *Function) Append(kind irkind.Kind, operands []Slot, results []Type, attr Attribute, loc Loc) *Instruction {
	inst := &Instruction{
		Kind:     kind,
		Operands: operands,
		Attr:     attr,
		Loc:      loc,
	}
	for _, tp := range results {
		inst.Results = append(inst.Results, Slot{ID: fn.NewValue(), Type: tp})
	}
	fn.Insts = append(fn.Insts, inst)
	return inst
}

// Return sets the values returned by the function.
func (fn *Function) Return(slots ...Slot) {
	fn.Returns = fn.Returns[:0]
	for _, s := range slots {
		fn.Returns = append(fn.Returns, s.ID)
	}
}

// Clone returns a deep copy of the function.
func (fn *Function) Clone() *Function {
	cl := &Function{
		Name:    fn.Name,
		Args:    cloneSlots(fn.Args),
		Insts:   make([]*Instruction, len(fn.Insts)),
		Returns: slices.Clone(fn.Returns),
		Loc:     fn.Loc,
		nextID:  fn.nextID,
	}
	for i, inst := range fn.Insts {
		cl.Insts[i] = inst.Clone()
	}
	cl.updateNextID()
	return cl
}

func (fn *Function) updateNextID() {
	for _, arg := range fn.Args {
		fn.reserve(arg.ID)
	}
	for _, inst := range fn.Insts {
		for _, res := range inst.Results {
			fn.reserve(res.ID)
		}
	}
}

// Types returns the type of all the values defined in the function,
// as declared by the argument or the instruction producing each value.
func (fn *Function) Types() map[ValueID]Type {
	types := make(map[ValueID]Type)
	for _, arg := range fn.Args {
		types[arg.ID] = arg.Type
	}
	for _, inst := range fn.Insts {
		for _, res := range inst.Results {
			types[res.ID] = res.Type
		}
	}
	return types
}

// ReturnTypes returns the types of the values returned by the function.
func (fn *Function) ReturnTypes() []Type {
	types := fn.Types()
	rets := make([]Type, len(fn.Returns))
	for i, id := range fn.Returns {
		rets[i] = types[id]
	}
	return rets
}

// Producer returns the instruction producing a value or nil if the value
// is an argument of the function or is not defined.
func (fn *Function) Producer(id ValueID) *Instruction {
	for _, inst := range fn.Insts {
		for _, res := range inst.Results {
			if res.ID == id {
				return inst
			}
		}
	}
	return nil
}

// Verify checks that the function is well-formed: every value is defined once
// before being used and operand slots declare the type of the value they refer to.
func (fn *Function) Verify() error {
	defined := make(map[ValueID]Type)
	define := func(s Slot) error {
		if _, dup := defined[s.ID]; dup {
			return errors.Errorf("value %s defined more than once", s.ID)
		}
		if s.Type.Elem == nil {
			return errors.Errorf("value %s has no element type", s.ID)
		}
		defined[s.ID] = s.Type
		return nil
	}
	for _, arg := range fn.Args {
		if err := define(arg); err != nil {
			return errors.Wrapf(err, "function %s", fn.Name)
		}
	}
	for i, inst := range fn.Insts {
		for _, op := range inst.Operands {
			tp, ok := defined[op.ID]
			if !ok {
				return errors.Errorf("function %s: instruction %d (%s) at %s: operand %s used before being defined", fn.Name, i, inst.Kind, inst.Loc, op.ID)
			}
			if !tp.Equal(op.Type) {
				return errors.Errorf("function %s: instruction %d (%s) at %s: operand %s declared as %s but defined as %s", fn.Name, i, inst.Kind, inst.Loc, op.ID, op.Type, tp)
			}
		}
		if nest := inst.LoopNest(); nest != nil {
			if err := nest.VerifyInstruction(inst); err != nil {
				return errors.Wrapf(err, "function %s: instruction %d (%s) at %s", fn.Name, i, inst.Kind, inst.Loc)
			}
		}
		for _, res := range inst.Results {
			if err := define(res); err != nil {
				return errors.Wrapf(err, "function %s: instruction %d (%s) at %s", fn.Name, i, inst.Kind, inst.Loc)
			}
		}
	}
	for _, id := range fn.Returns {
		if _, ok := defined[id]; !ok {
			return errors.Errorf("function %s returns undefined value %s", fn.Name, id)
		}
	}
	return nil
}

// Function returns a function given its name or nil if no such function exists.
func (p *Program) Function(name string) *Function {
	for _, fn := range p.Functions {
		if fn.Name == name {
			return fn
		}
	}
	return nil
}

// Clone returns a deep copy of the program.
func (p *Program) Clone() *Program {
	cl := &Program{Functions: make([]*Function, len(p.Functions))}
	for i, fn := range p.Functions {
		cl.Functions[i] = fn.Clone()
	}
	return cl
}
