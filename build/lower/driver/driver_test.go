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

package driver_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gx-org/fhelinalg/api/options"
	"github.com/gx-org/fhelinalg/build/fmterr"
	"github.com/gx-org/fhelinalg/build/ir"
	"github.com/gx-org/fhelinalg/build/ir/irkind"
	"github.com/gx-org/fhelinalg/build/lower/broadcast"
	"github.com/gx-org/fhelinalg/build/lower/driver"
	"github.com/gx-org/fhelinalg/build/lower/rules"
	"github.com/gx-org/fhelinalg/interp/cleartext"
	"github.com/pkg/errors"
	"github.com/sebdah/goldie/v2"
	"go.uber.org/multierr"
)

var (
	eint = ir.EncryptedType{Precision: 7}
	i8   = ir.PlainType{Width: 8}
)

type (
	arg struct {
		tp   ir.Type
		data []int64
	}

	testCase struct {
		name   string
		args   []arg
		build  func(fn *ir.Function, args []ir.Slot) ir.Slot
		want   []int64
		rounds int
	}
)

func binary(kind irkind.Kind, result ir.Type) func(*ir.Function, []ir.Slot) ir.Slot {
	return func(fn *ir.Function, args []ir.Slot) ir.Slot {
		return fn.Append(kind, args, []ir.Type{result}, nil, ir.Loc{File: "test.mlir", Line: 1}).Result()
	}
}

func seq(n int, scale int64) []int64 {
	data := make([]int64, n)
	for i := range data {
		data[i] = int64(i) * scale
	}
	return data
}

func (tc *testCase) function() (*ir.Function, []*cleartext.Array, error) {
	fn := ir.NewFunction(tc.name)
	var slots []ir.Slot
	var arrays []*cleartext.Array
	for _, a := range tc.args {
		slots = append(slots, fn.AddArg(a.tp))
		array, err := cleartext.NewArray(a.tp, a.data)
		if err != nil {
			return nil, nil, err
		}
		arrays = append(arrays, array)
	}
	fn.Return(tc.build(fn, slots))
	return fn, arrays, nil
}

var testCases = []testCase{
	{
		name: "broadcast",
		args: []arg{
			{tp: ir.Tensor(eint, 2, 1, 3), data: seq(6, 1)},
			{tp: ir.Tensor(eint, 1, 4, 3), data: seq(12, 10)},
		},
		build: binary(irkind.AddEintEint, ir.Tensor(eint, 2, 4, 3)),
		want: []int64{
			0, 11, 22, 30, 41, 52, 60, 71, 82, 90, 101, 112,
			3, 14, 25, 33, 44, 55, 63, 74, 85, 93, 104, 115,
		},
		rounds: 2,
	},
	{
		name: "dot",
		args: []arg{
			{tp: ir.Tensor(eint, 3), data: []int64{1, 2, 3}},
			{tp: ir.Tensor(i8, 3), data: []int64{4, 5, 6}},
		},
		build:  binary(irkind.Dot, ir.Scalar(eint)),
		want:   []int64{32},
		rounds: 2,
	},
	{
		name: "dot1",
		args: []arg{
			{tp: ir.Tensor(eint, 1), data: []int64{5}},
			{tp: ir.Tensor(i8, 1), data: []int64{7}},
		},
		build:  binary(irkind.Dot, ir.Scalar(eint)),
		want:   []int64{35},
		rounds: 2,
	},
	{
		name: "dotPlainFirst",
		args: []arg{
			{tp: ir.Tensor(i8, 3), data: []int64{4, 5, 6}},
			{tp: ir.Tensor(eint, 3), data: []int64{1, 2, 3}},
		},
		build:  binary(irkind.Dot, ir.Scalar(eint)),
		want:   []int64{32},
		rounds: 2,
	},
	{
		name: "matmulEintInt",
		args: []arg{
			{tp: ir.Tensor(eint, 2, 2), data: []int64{1, 2, 3, 4}},
			{tp: ir.Tensor(i8, 2, 2), data: []int64{5, 6, 7, 8}},
		},
		build:  binary(irkind.MatMulEintPlain, ir.Tensor(eint, 2, 2)),
		want:   []int64{19, 22, 43, 50},
		rounds: 3,
	},
	{
		name: "matmulIntEint",
		args: []arg{
			{tp: ir.Tensor(i8, 2, 2), data: []int64{1, 2, 3, 4}},
			{tp: ir.Tensor(eint, 2, 2), data: []int64{5, 6, 7, 8}},
		},
		build:  binary(irkind.MatMulPlainEint, ir.Tensor(eint, 2, 2)),
		want:   []int64{19, 22, 43, 50},
		rounds: 3,
	},
	{
		name: "multiLookupTable",
		args: []arg{
			{tp: ir.Tensor(eint, 2), data: []int64{2, 1}},
			{tp: ir.Tensor(i8, 2, 4), data: []int64{10, 11, 12, 13, 20, 21, 22, 23}},
		},
		build:  binary(irkind.ApplyMultiLookupTable, ir.Tensor(eint, 2)),
		want:   []int64{12, 21},
		rounds: 2,
	},
	{
		name: "mappedLookupTable",
		args: []arg{
			{tp: ir.Tensor(eint, 2), data: []int64{1, 0}},
			{tp: ir.Tensor(i8, 3, 2), data: []int64{1, 2, 3, 4, 5, 6}},
			{tp: ir.Tensor(i8, 2), data: []int64{2, 0}},
		},
		build:  binary(irkind.ApplyMappedLookupTable, ir.Tensor(eint, 2)),
		want:   []int64{6, 1},
		rounds: 2,
	},
	{
		name: "mappedLookupTableBroadcastMap",
		args: []arg{
			{tp: ir.Tensor(eint, 2, 2), data: []int64{1, 0, 0, 1}},
			{tp: ir.Tensor(i8, 3, 2), data: []int64{1, 2, 3, 4, 5, 6}},
			{tp: ir.Tensor(i8, 1, 2), data: []int64{2, 0}},
		},
		build:  binary(irkind.ApplyMappedLookupTable, ir.Tensor(eint, 2, 2)),
		want:   []int64{6, 1, 5, 2},
		rounds: 2,
	},
	{
		name: "composite",
		args: []arg{
			{tp: ir.Tensor(eint, 2, 3), data: []int64{1, 0, 1, 0, 1, 1}},
			{tp: ir.Tensor(i8, 3, 2), data: []int64{1, 2, 0, 1, 1, 0}},
			{tp: ir.Tensor(i8, 1, 2), data: []int64{3, 0}},
			{tp: ir.Tensor(i8, 8), data: []int64{7, 6, 5, 4, 3, 2, 1, 0}},
		},
		build: func(fn *ir.Function, args []ir.Slot) ir.Slot {
			mm := fn.Append(irkind.MatMulEintPlain, args[:2], []ir.Type{ir.Tensor(eint, 2, 2)}, nil, ir.Loc{}).Result()
			sum := fn.Append(irkind.AddEintPlain, []ir.Slot{mm, args[2]}, []ir.Type{ir.Tensor(eint, 2, 2)}, nil, ir.Loc{}).Result()
			return fn.Append(irkind.ApplyLookupTable, []ir.Slot{sum, args[3]}, []ir.Type{ir.Tensor(eint, 2, 2)}, nil, ir.Loc{}).Result()
		},
		// [[1,0,1],[0,1,1]] x [[1,2],[0,1],[1,0]] = [[2,2],[1,1]], + [3,0] = [[5,2],[4,1]]
		want:   []int64{2, 5, 3, 6},
		rounds: 3,
	},
}

func TestLowerPreservesValues(t *testing.T) {
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fn, args, err := tc.function()
			if err != nil {
				t.Fatal(err)
			}
			target := driver.LinalgTarget()
			lowered, stats, err := driver.Lower(fn, rules.Default(), target, options.VerifyNests{})
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if stats.Rounds != tc.rounds {
				t.Errorf("lowered in %d rounds but want %d:\n%s", stats.Rounds, tc.rounds, lowered)
			}
			for _, inst := range lowered.Insts {
				if !target.IsLegal(inst) {
					t.Errorf("instruction %s is not legal", inst)
				}
			}
			if err := lowered.Verify(); err != nil {
				t.Fatalf("invalid lowered function: %+v\n%s", err, lowered)
			}
			if got, want := lowered.ReturnTypes(), fn.ReturnTypes(); !cmp.Equal(got, want) {
				t.Errorf("lowered function returns %v but want %v", got, want)
			}
			ref, err := cleartext.Eval(fn, args)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if diff := cmp.Diff(ref[0].Data(), tc.want); diff != "" {
				t.Errorf("unexpected reference value:\n%s", diff)
			}
			for _, evalOpts := range [][]cleartext.Option{nil, {cleartext.ReverseReductions()}} {
				got, err := cleartext.Eval(lowered, args, evalOpts...)
				if err != nil {
					t.Fatalf("%+v\n%s", err, lowered)
				}
				if diff := cmp.Diff(got[0].Data(), tc.want); diff != "" {
					t.Errorf("lowered function computes a different value:\n%s\n%s", diff, lowered)
				}
			}
		})
	}
}

func TestFixpointIdempotence(t *testing.T) {
	for _, tc := range testCases {
		fn, _, err := tc.function()
		if err != nil {
			t.Fatal(err)
		}
		once, _, err := driver.Lower(fn, rules.Default(), driver.LinalgTarget())
		if err != nil {
			t.Fatalf("%s: %+v", tc.name, err)
		}
		twice, stats, err := driver.Lower(once, rules.Default(), driver.LinalgTarget())
		if err != nil {
			t.Fatalf("%s: %+v", tc.name, err)
		}
		if stats.Rewrites != 0 || stats.Patches != 0 || stats.Rounds != 1 {
			t.Errorf("%s: lowering a lowered function changed it: %s", tc.name, stats)
		}
		if once.Fingerprint() != twice.Fingerprint() {
			t.Errorf("%s: got:\n%s\nbut want:\n%s", tc.name, twice, once)
		}
	}
}

func TestLowerDoesNotModifyInput(t *testing.T) {
	fn, _, err := testCases[0].function()
	if err != nil {
		t.Fatal(err)
	}
	before := fn.String()
	if _, _, err := driver.Lower(fn, rules.Default(), driver.LinalgTarget()); err != nil {
		t.Fatal(err)
	}
	if fn.String() != before {
		t.Errorf("input function modified:\n%s", fn)
	}
}

func TestGolden(t *testing.T) {
	fn := ir.NewFunction("dot")
	a := fn.AddArg(ir.Tensor(eint, 3))
	b := fn.AddArg(ir.Tensor(i8, 3))
	dot := fn.Append(irkind.Dot, []ir.Slot{a, b}, []ir.Type{ir.Scalar(eint)}, nil, ir.Loc{File: "dot.mlir", Line: 3, Col: 10})
	fn.Return(dot.Result())
	lowered, _, err := driver.Lower(fn, rules.Default(), driver.LinalgTarget())
	if err != nil {
		t.Fatal(err)
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "dot", []byte(lowered.String()))
}

func TestShapeErrorIsPositioned(t *testing.T) {
	fn := ir.NewFunction("bad")
	a := fn.AddArg(ir.Tensor(eint, 2, 3))
	b := fn.AddArg(ir.Tensor(eint, 4, 3))
	loc := ir.Loc{File: "bad.mlir", Line: 7, Col: 3}
	add := fn.Append(irkind.AddEintEint, []ir.Slot{a, b}, []ir.Type{ir.Tensor(eint, 4, 3)}, nil, loc)
	fn.Return(add.Result())
	_, _, err := driver.Lower(fn, rules.Default(), driver.LinalgTarget())
	var shapeErr *broadcast.ShapeError
	if !errors.As(err, &shapeErr) {
		t.Fatalf("got error %v but want a shape error", err)
	}
	if diff := cmp.Diff(*shapeErr, broadcast.ShapeError{Dim: 0, Expected: 4, Got: 2}); diff != "" {
		t.Errorf("unexpected shape error:\n%s", diff)
	}
	var pos fmterr.ErrorWithPos
	if !errors.As(err, &pos) || pos.Loc() != loc {
		t.Errorf("error %v not positioned at %s", err, loc)
	}
}

func TestIllegalOperationRemains(t *testing.T) {
	fn := ir.NewFunction("neg")
	a := fn.AddArg(ir.Tensor(eint, 2))
	loc := ir.Loc{File: "neg.mlir", Line: 2, Col: 5}
	neg := fn.Append(irkind.Negate, []ir.Slot{a}, []ir.Type{ir.Tensor(eint, 2)}, nil, loc)
	dot := fn.Append(irkind.Dot, []ir.Slot{neg.Result(), a}, []ir.Type{ir.Scalar(eint)}, nil, loc)
	fn.Return(dot.Result())
	reg := rules.NewRegistry()
	if err := reg.Register(irkind.Dot, rules.Dot); err != nil {
		t.Fatal(err)
	}
	_, _, err := driver.Lower(fn, reg, driver.LinalgTarget())
	// The dot product has two encrypted operands: its rule fails first.
	if err == nil {
		t.Fatalf("expected an error")
	}

	fn = ir.NewFunction("neg")
	a = fn.AddArg(ir.Tensor(eint, 2))
	neg = fn.Append(irkind.Negate, []ir.Slot{a}, []ir.Type{ir.Tensor(eint, 2)}, nil, loc)
	fn.Return(neg.Result())
	_, _, err = driver.Lower(fn, reg, driver.LinalgTarget())
	var lowErr *driver.LoweringError
	if !errors.As(err, &lowErr) {
		t.Fatalf("got error %v but want a lowering error", err)
	}
	if lowErr.Kind != irkind.Negate || lowErr.Loc != loc {
		t.Errorf("got %s at %s but want %s at %s", lowErr.Kind, lowErr.Loc, irkind.Negate, loc)
	}
	if !strings.Contains(err.Error(), "remains illegal") {
		t.Errorf("unexpected error message: %s", err)
	}
}

func TestMaxRounds(t *testing.T) {
	fn, _, err := testCases[4].function()
	if err != nil {
		t.Fatal(err)
	}
	// The accumulator of a matrix product is lowered in a second round.
	_, _, err = driver.Lower(fn, rules.Default(), driver.LinalgTarget(), options.MaxRounds{N: 1})
	var lowErr *driver.LoweringError
	if !errors.As(err, &lowErr) {
		t.Fatalf("got error %v but want a lowering error", err)
	}
	if lowErr.Kind != irkind.ZeroFill {
		t.Errorf("got %s remaining but want %s", lowErr.Kind, irkind.ZeroFill)
	}
	if _, _, err := driver.Lower(fn, rules.Default(), driver.LinalgTarget(), options.MaxRounds{N: 0}); err == nil {
		t.Errorf("expected an error for an invalid number of rounds")
	}
}

func TestLowerProgram(t *testing.T) {
	prog := &ir.Program{}
	for _, tc := range testCases {
		fn, _, err := tc.function()
		if err != nil {
			t.Fatal(err)
		}
		prog.Functions = append(prog.Functions, fn)
	}
	bad := ir.NewFunction("bad")
	a := bad.AddArg(ir.Tensor(eint, 2, 3))
	b := bad.AddArg(ir.Tensor(eint, 4, 3))
	add := bad.Append(irkind.AddEintEint, []ir.Slot{a, b}, []ir.Type{ir.Tensor(eint, 4, 3)}, nil, ir.Loc{})
	bad.Return(add.Result())
	prog.Functions = append(prog.Functions, bad)

	for _, opts := range [][]options.PassOption{nil, {options.Parallel{Workers: 3}}} {
		lowered, stats, err := driver.LowerProgram(prog, rules.Default(), driver.LinalgTarget(), opts...)
		if errs := multierr.Errors(err); len(errs) != 1 {
			t.Fatalf("got errors %v but want one error", errs)
		}
		if !strings.HasPrefix(err.Error(), "function bad: ") {
			t.Errorf("error not prefixed with the function name: %v", err)
		}
		if len(lowered.Functions) != len(prog.Functions) {
			t.Fatalf("got %d functions but want %d", len(lowered.Functions), len(prog.Functions))
		}
		for i, fn := range lowered.Functions[:len(testCases)] {
			want, _, err := driver.Lower(prog.Functions[i], rules.Default(), driver.LinalgTarget())
			if err != nil {
				t.Fatal(err)
			}
			if fn.Fingerprint() != want.Fingerprint() {
				t.Errorf("function %s lowered differently in a program:\n%s\n%s", fn.Name, fn, want)
			}
		}
		if got := lowered.Functions[len(testCases)].Fingerprint(); got != bad.Fingerprint() {
			t.Errorf("function failing to lower has been modified")
		}
		if len(stats.Functions) != len(prog.Functions) {
			t.Errorf("got stats for %d functions but want %d", len(stats.Functions), len(prog.Functions))
		}
		if stats.Rewrites == 0 {
			t.Errorf("no rewrite reported in %s", stats)
		}
	}
}
