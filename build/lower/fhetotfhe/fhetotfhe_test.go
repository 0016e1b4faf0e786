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

package fhetotfhe_test

import (
	"strings"
	"testing"

	"github.com/gx-org/fhelinalg/api/options"
	"github.com/gx-org/fhelinalg/build/ir"
	"github.com/gx-org/fhelinalg/build/ir/irkind"
	"github.com/gx-org/fhelinalg/build/lower/driver"
	"github.com/gx-org/fhelinalg/build/lower/fhetotfhe"
	"github.com/gx-org/fhelinalg/build/lower/rules"
	"github.com/gx-org/fhelinalg/interp/cleartext"
	"github.com/stretchr/testify/require"
)

func dotProgram(t *testing.T, el ir.EncryptedType) *ir.Program {
	fn := ir.NewFunction("dot")
	a := fn.AddArg(ir.Tensor(el, 3))
	b := fn.AddArg(ir.Tensor(ir.PlainType{Width: 8}, 3))
	dot := fn.Append(irkind.Dot, []ir.Slot{a, b}, []ir.Type{ir.Scalar(el)}, nil, ir.Loc{File: "dot.mlir", Line: 2})
	fn.Return(dot.Result())
	prog, _, err := driver.LowerProgram(&ir.Program{Functions: []*ir.Function{fn}}, rules.Default(), driver.LinalgTarget())
	require.NoError(t, err)
	return prog
}

func encryptedTypes(fn *ir.Function) []string {
	var found []string
	check := func(s ir.Slot) {
		if _, ok := s.Type.Elem.(ir.EncryptedType); ok {
			found = append(found, s.Type.String())
		}
	}
	for _, arg := range fn.Args {
		check(arg)
	}
	for _, inst := range fn.Insts {
		for _, s := range inst.Results {
			check(s)
		}
		if nest := inst.LoopNest(); nest != nil {
			ir.Walk(nest.Body, func(e ir.Expr) {
				if op, ok := e.(*ir.Op); ok {
					if _, enc := op.Type.(ir.EncryptedType); enc {
						found = append(found, op.String())
					}
				}
			})
		}
	}
	return found
}

func TestLower(t *testing.T) {
	prog := dotProgram(t, ir.EncryptedType{Precision: 7})
	lowered, stats, err := fhetotfhe.Lower(prog, fhetotfhe.DefaultParameters())
	require.NoError(t, err)
	fn := lowered.Functions[0]
	require.NoError(t, fn.Verify())
	require.Empty(t, encryptedTypes(fn))
	require.Equal(t, "lwe<1160,7>", fn.ReturnTypes()[0].String())
	require.Positive(t, stats.Patches)
	require.Zero(t, stats.Rewrites)

	a, err := cleartext.NewArray(fn.Args[0].Type, []int64{1, 2, 3})
	require.NoError(t, err)
	b, err := cleartext.NewArray(fn.Args[1].Type, []int64{4, 5, 6})
	require.NoError(t, err)
	out, err := cleartext.Eval(fn, []*cleartext.Array{a, b})
	require.NoError(t, err)
	require.Equal(t, []int64{32}, out[0].Data())

	again, stats, err := fhetotfhe.Lower(lowered, fhetotfhe.DefaultParameters())
	require.NoError(t, err)
	require.Zero(t, stats.Patches)
	require.Equal(t, lowered.Fingerprint(), again.Fingerprint())
}

func TestParameterTokens(t *testing.T) {
	prog := dotProgram(t, ir.EncryptedType{Precision: 3, Params: "small"})
	_, _, err := fhetotfhe.Lower(prog, fhetotfhe.Parameters{})
	require.ErrorContains(t, err, "dot.mlir:2:0")
	require.True(t, strings.Contains(err.Error(), `token "small"`), err.Error())

	params := fhetotfhe.Parameters{Tokens: map[ir.ParamToken]fhetotfhe.Params{
		"small": {LWEDimension: 630},
	}}
	lowered, _, err := fhetotfhe.Lower(prog, params)
	require.NoError(t, err)
	require.Equal(t, "lwe<630,3,small>", lowered.Functions[0].ReturnTypes()[0].String())

	lowered, _, err = fhetotfhe.Lower(prog, params, options.TFHEParameters{Token: "small", LWEDimension: 742})
	require.NoError(t, err)
	require.Equal(t, "lwe<742,3,small>", lowered.Functions[0].ReturnTypes()[0].String())
	require.Equal(t, 630, params.Tokens["small"].LWEDimension)

	_, _, err = fhetotfhe.Lower(prog, params, options.TFHEParameters{LWEDimension: -1})
	require.Error(t, err)
}
