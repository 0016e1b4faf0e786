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

// Package fhetotfhe lowers encrypted integers to LWE ciphertexts.
//
// The pass only rewrites types: every encrypted integer becomes a
// ciphertext whose dimension is given by the parameters associated with
// the parameter token of its type. Instructions are otherwise unchanged.
package fhetotfhe

import (
	"github.com/gx-org/fhelinalg/api/options"
	"github.com/gx-org/fhelinalg/build/fmterr"
	"github.com/gx-org/fhelinalg/build/ir"
	"github.com/gx-org/fhelinalg/build/lower/driver"
	"github.com/gx-org/fhelinalg/build/lower/rules"
	"github.com/pkg/errors"
)

// DefaultLWEDimension is the dimension of ciphertexts for types without parameters.
const DefaultLWEDimension = 1160

// Params of the ciphertexts for a parameter token.
type Params struct {
	LWEDimension int
}

// Parameters maps parameter tokens to ciphertext parameters.
type Parameters struct {
	// Tokens are the parameters for each token.
	Tokens map[ir.ParamToken]Params
	// Default parameters for tokens not in the map.
	// If nil, unknown tokens are an error.
	Default *Params
}

// DefaultParameters returns parameters for which all encrypted integers
// become ciphertexts of dimension DefaultLWEDimension.
func DefaultParameters() Parameters {
	return Parameters{
		Tokens:  make(map[ir.ParamToken]Params),
		Default: &Params{LWEDimension: DefaultLWEDimension},
	}
}

func (p Parameters) lookup(tok ir.ParamToken) (Params, bool) {
	if params, ok := p.Tokens[tok]; ok {
		return params, true
	}
	if p.Default != nil {
		return *p.Default, true
	}
	return Params{}, false
}

// Converter returns the type converter from encrypted integers to ciphertexts.
// Encrypted integers with an unknown token are left unchanged.
func (p Parameters) Converter() ir.TypeConverter {
	return ir.ElementConverter(func(el ir.ElementType) (ir.ElementType, bool) {
		enc, ok := el.(ir.EncryptedType)
		if !ok {
			return nil, false
		}
		params, ok := p.lookup(enc.Params)
		if !ok {
			return nil, false
		}
		return ir.CiphertextType{
			Dimension: params.LWEDimension,
			Precision: enc.Precision,
			Params:    enc.Params,
		}, true
	}).Types()
}

// withOptions returns the parameters updated with the options of the pass
// and the options for the driver.
func (p Parameters) withOptions(opts []options.PassOption) (Parameters, []options.PassOption, error) {
	nw := Parameters{Tokens: make(map[ir.ParamToken]Params, len(p.Tokens)), Default: p.Default}
	for tok, params := range p.Tokens {
		nw.Tokens[tok] = params
	}
	var rest []options.PassOption
	for _, opt := range opts {
		optT, ok := opt.(options.TFHEParameters)
		if !ok {
			rest = append(rest, opt)
			continue
		}
		if optT.LWEDimension <= 0 {
			return nw, nil, errors.Errorf("invalid LWE dimension %d for token %q", optT.LWEDimension, optT.Token)
		}
		params := Params{LWEDimension: optT.LWEDimension}
		if optT.Token == "" {
			nw.Default = &params
			continue
		}
		nw.Tokens[ir.ParamToken(optT.Token)] = params
	}
	return nw, rest, nil
}

// check returns an error for every encrypted type without parameters.
func (p Parameters) check(prog *ir.Program) error {
	errs := &fmterr.Errors{}
	app := fmterr.NewAppender(errs)
	checkSlot := func(loc ir.Loc, s ir.Slot) {
		enc, ok := s.Type.Elem.(ir.EncryptedType)
		if !ok {
			return
		}
		if _, ok := p.lookup(enc.Params); !ok {
			app.Appendf(loc, "no parameters for %s with token %q", s.Type, enc.Params)
		}
	}
	for _, fn := range prog.Functions {
		app.Push(fmterr.PrefixWith("function %s: ", fn.Name))
		for _, arg := range fn.Args {
			checkSlot(fn.Loc, arg)
		}
		for _, inst := range fn.Insts {
			for _, s := range inst.Results {
				checkSlot(inst.Loc, s)
			}
		}
		app.Pop()
	}
	return errs.ToError()
}

// Lower converts all the encrypted integers of a program into ciphertexts.
func Lower(prog *ir.Program, params Parameters, opts ...options.PassOption) (*ir.Program, *driver.ProgramStats, error) {
	params, rest, err := params.withOptions(opts)
	if err != nil {
		return nil, nil, err
	}
	if err := params.check(prog); err != nil {
		return nil, nil, err
	}
	cfg, err := driver.NewConfig(options.TFHEPass, rest)
	if err != nil {
		return nil, nil, err
	}
	target := driver.AnyKindTarget(params.Converter())
	return driver.RunProgram(prog, rules.NewRegistry(), target, cfg)
}
