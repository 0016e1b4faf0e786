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

// Package rules defines how each tensor operation of the source vocabulary is
// expressed as a generic loop nest over scalar primitives.
//
// A rule is a pure function: it reads the kind, operand types and result type of an
// instruction and returns a loop nest descriptor. It never modifies the
// instruction or the function. Materialising the descriptor into
// instructions is done by the driver.
package rules

import (
	"slices"

	"github.com/gx-org/fhelinalg/build/ir"
	"github.com/gx-org/fhelinalg/build/ir/irkind"
	"github.com/pkg/errors"
)

// Rule lowers an instruction into a loop nest.
type Rule func(inst *ir.Instruction) (*ir.LoopNest, error)

// Registry maps kinds of the source vocabulary to their rule.
type Registry struct {
	rules map[irkind.Kind]Rule
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{rules: make(map[irkind.Kind]Rule)}
}

// Register the rule lowering a kind.
// Only one rule can be registered per kind.
func (r *Registry) Register(kind irkind.Kind, rule Rule) error {
	if !kind.IsSource() {
		return errors.Errorf("cannot register a rule for %s: not a tensor operation", kind)
	}
	if _, ok := r.rules[kind]; ok {
		return errors.Errorf("a rule has already been registered for %s", kind)
	}
	r.rules[kind] = rule
	return nil
}

// Rule returns the rule registered for a kind.
func (r *Registry) Rule(kind irkind.Kind) (Rule, bool) {
	if r == nil {
		return nil, false
	}
	rule, ok := r.rules[kind]
	return rule, ok
}

// Kinds returns the kinds with a registered rule in increasing order.
func (r *Registry) Kinds() []irkind.Kind {
	if r == nil {
		return nil
	}
	kinds := make([]irkind.Kind, 0, len(r.rules))
	for k := range r.rules {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// Lower applies the rule registered for the kind of an instruction.
func (r *Registry) Lower(inst *ir.Instruction) (*ir.LoopNest, error) {
	rule, ok := r.Rule(inst.Kind)
	if !ok {
		return nil, errors.Errorf("no rule to lower %s", inst.Kind)
	}
	return rule(inst)
}

// elementwiseBinaries maps an elementwise binary tensor operation to the
// scalar primitive applied at every position.
var elementwiseBinaries = []struct {
	src, prim            irkind.Kind
	lhsCipher, rhsCipher bool
}{
	{src: irkind.AddEintEint, prim: irkind.AddEint, lhsCipher: true, rhsCipher: true},
	{src: irkind.AddEintPlain, prim: irkind.AddEintInt, lhsCipher: true},
	{src: irkind.SubPlainEint, prim: irkind.SubIntEint, rhsCipher: true},
	{src: irkind.MulEintPlain, prim: irkind.MulEintInt, lhsCipher: true},
}

// Default returns a registry with a rule for every kind of the source vocabulary.
func Default() *Registry {
	r := NewRegistry()
	must := func(kind irkind.Kind, rule Rule) {
		if err := r.Register(kind, rule); err != nil {
			panic(err)
		}
	}
	for _, bin := range elementwiseBinaries {
		must(bin.src, Elementwise(bin.prim, bin.lhsCipher, bin.rhsCipher))
	}
	must(irkind.Negate, Negate)
	must(irkind.Dot, Dot)
	must(irkind.MatMulEintPlain, MatMul)
	must(irkind.MatMulPlainEint, MatMul)
	must(irkind.ApplyLookupTable, LookupTable)
	must(irkind.ApplyMultiLookupTable, MultiLookupTable)
	must(irkind.ApplyMappedLookupTable, MappedLookupTable)
	must(irkind.ZeroFill, ZeroFill)
	return r
}

// ----------------------------------------------------------------------------
// Helpers shared by the rules.

func checkArity(inst *ir.Instruction) error {
	if len(inst.Results) != 1 {
		return errors.Errorf("%s has %d results instead of 1", inst.Kind, len(inst.Results))
	}
	if want := inst.Kind.NumOperands(); want >= 0 && len(inst.Operands) != want {
		return errors.Errorf("%s has %d operands but requires %d", inst.Kind, len(inst.Operands), want)
	}
	return nil
}

func checkCipher(inst *ir.Instruction, i int, want bool) error {
	el := inst.Operands[i].Type.Elem
	if el == nil {
		return errors.Errorf("operand %d of %s has no element type", i, inst.Kind)
	}
	if got := ir.IsEncrypted(el); got != want {
		what := "a plain integer"
		if want {
			what = "encrypted"
		}
		return errors.Errorf("operand %d of %s should be %s but has type %s", i, inst.Kind, what, inst.Operands[i].Type)
	}
	return nil
}

// outputAcc returns an accumulator writing every position of the result once.
func outputAcc(result ir.Type, init ir.Expr) ir.Accumulator {
	return ir.Accumulator{
		Mode: ir.BroadcastInit,
		Init: init,
		Map:  ir.IdentityMap(result.Rank()),
		Type: result,
	}
}
