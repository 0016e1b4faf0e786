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

// Package driver rewrites the instructions of a function until all of them
// are legal for a target.
//
// Every round visits the instructions of the function in order. An illegal
// instruction with a rule is replaced by the instructions materialising the
// loop nest returned by the rule. Other illegal instructions have their types
// patched with the converter of the target. Rounds are repeated until the
// function does not change anymore.
package driver

import (
	"fmt"

	"github.com/gx-org/fhelinalg/api/options"
	"github.com/gx-org/fhelinalg/build/fmterr"
	"github.com/gx-org/fhelinalg/build/ir"
	"github.com/gx-org/fhelinalg/build/ir/irkind"
	"github.com/gx-org/fhelinalg/build/lower/rules"
	"github.com/gx-org/fhelinalg/build/lower/typerewrite"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// LoweringError is returned when an instruction is still illegal
// after the last round.
type LoweringError struct {
	Func string
	Kind irkind.Kind
	Loc  ir.Loc
}

func (err *LoweringError) Error() string {
	return fmt.Sprintf("%sfunction %s: operation %s remains illegal", fmterr.PosString(err.Loc), err.Func, err.Kind)
}

// Stats about a lowering.
type Stats struct {
	// Rounds is the number of rounds run.
	Rounds int
	// Rewrites is the number of instructions replaced by a rule.
	Rewrites int
	// Patches is the number of instructions and arguments with patched types.
	Patches int
}

func (s *Stats) add(other *Stats) {
	s.Rounds = max(s.Rounds, other.Rounds)
	s.Rewrites += other.Rewrites
	s.Patches += other.Patches
}

func (s Stats) String() string {
	return fmt.Sprintf("rounds=%d rewrites=%d patches=%d", s.Rounds, s.Rewrites, s.Patches)
}

type driver struct {
	cfg    *Config
	reg    *rules.Registry
	target *Target
	fn     *ir.Function
	stats  Stats
	log    *logrus.Entry
}

// Lower rewrites a function until all its instructions are legal for the target.
// The function given as input is not modified.
func Lower(fn *ir.Function, reg *rules.Registry, target *Target, opts ...options.PassOption) (*ir.Function, *Stats, error) {
	cfg, err := NewConfig(PassName, opts)
	if err != nil {
		return nil, nil, err
	}
	return Run(fn, reg, target, cfg)
}

// Run rewrites a function given a configuration.
func Run(fn *ir.Function, reg *rules.Registry, target *Target, cfg *Config) (*ir.Function, *Stats, error) {
	d := &driver{
		cfg:    cfg,
		reg:    reg,
		target: target,
		fn:     fn.Clone(),
		log:    cfg.Logger.WithField("func", fn.Name),
	}
	if err := d.run(); err != nil {
		return nil, &d.stats, err
	}
	return d.fn, &d.stats, nil
}

func (d *driver) run() error {
	d.patchArgs()
	for round := 1; round <= d.cfg.MaxRounds; round++ {
		d.stats.Rounds = round
		before := d.fn.Fingerprint()
		if err := d.round(round); err != nil {
			return err
		}
		if d.cfg.VerifyNests {
			if err := d.fn.Verify(); err != nil {
				return fmterr.Internal(errors.Wrapf(err, "round %d produced an invalid function", round))
			}
		}
		if d.fn.Fingerprint() == before {
			d.log.WithField("round", round).Debug("fixpoint reached")
			break
		}
	}
	return d.checkLegal()
}

func (d *driver) patchArgs() {
	conv := d.target.Converter
	for i, arg := range d.fn.Args {
		if conv.IsLegal(arg.Type) {
			continue
		}
		d.fn.Args[i].Type = conv.Convert(arg.Type)
		d.stats.Patches++
	}
}

func (d *driver) round(round int) error {
	insts := make([]*ir.Instruction, 0, len(d.fn.Insts))
	for _, inst := range d.fn.Insts {
		if d.target.IsLegal(inst) {
			insts = append(insts, inst)
			continue
		}
		log := d.log.WithFields(logrus.Fields{
			"round": round,
			"kind":  inst.Kind.String(),
		})
		if rule, ok := d.reg.Rule(inst.Kind); ok {
			nest, err := rule(inst)
			if err != nil {
				return fmterr.Position(inst.Loc, errors.Wrapf(err, "cannot lower %s", inst.Kind))
			}
			repl, err := materialise(d.fn, inst, nest)
			if err != nil {
				return err
			}
			log.WithField("size", len(repl)).Debug("rewrite")
			insts = append(insts, repl...)
			d.stats.Rewrites++
			continue
		}
		patched, changed := typerewrite.Patch(inst, d.target.Converter)
		if changed {
			log.Debug("patch")
			d.stats.Patches++
		}
		insts = append(insts, patched)
	}
	d.fn.Insts = insts
	return nil
}

func (d *driver) checkLegal() error {
	errs := &fmterr.Errors{}
	for _, inst := range d.fn.Insts {
		if d.target.IsLegal(inst) {
			continue
		}
		errs.Append(&LoweringError{Func: d.fn.Name, Kind: inst.Kind, Loc: inst.Loc})
	}
	return errs.ToError()
}
