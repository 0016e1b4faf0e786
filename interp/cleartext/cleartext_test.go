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

package cleartext_test

import (
	"testing"

	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/fhelinalg/build/ir"
	"github.com/gx-org/fhelinalg/build/ir/irkind"
	"github.com/gx-org/fhelinalg/interp/cleartext"
	"github.com/stretchr/testify/require"
)

var (
	eint = ir.EncryptedType{Precision: 6}
	i8   = ir.PlainType{Width: 8}
)

func array(t *testing.T, tp ir.Type, data ...int64) *cleartext.Array {
	a, err := cleartext.NewArray(tp, data)
	require.NoError(t, err)
	return a
}

func TestArray(t *testing.T) {
	a := array(t, ir.Tensor(eint, 2, 3), 0, 1, 2, 3, 4, 5)
	v, err := a.At(1, 2)
	require.NoError(t, err)
	require.Equal(t, int64(5), v)
	require.NoError(t, a.Set(42, 0, 1))
	require.Equal(t, []int64{0, 42, 2, 3, 4, 5}, a.Data())
	_, err = a.At(2, 0)
	require.Error(t, err)
	require.Equal(t, dtype.Uint64, a.Shape().DType)
	require.Equal(t, []int{2, 3}, a.Shape().AxisLengths)
	require.Equal(t, 48, a.Shape().ByteSize())
	require.Equal(t, "[2][3]eint<6>{\n\t{0, 42, 2},\n\t{3, 4, 5},\n}", a.String())
	_, err = cleartext.NewArray(ir.Tensor(eint, 2), []int64{1})
	require.Error(t, err)
}

func evalOne(t *testing.T, kind irkind.Kind, result ir.Type, args ...*cleartext.Array) *cleartext.Array {
	fn := ir.NewFunction(kind.String())
	var slots []ir.Slot
	for _, arg := range args {
		slots = append(slots, fn.AddArg(arg.Type()))
	}
	inst := fn.Append(kind, slots, []ir.Type{result}, nil, ir.Loc{})
	fn.Return(inst.Result())
	out, err := cleartext.Eval(fn, args)
	require.NoError(t, err)
	require.Len(t, out, 1)
	return out[0]
}

func TestSourceOperations(t *testing.T) {
	a := array(t, ir.Tensor(eint, 3), 1, 2, 3)
	b := array(t, ir.Tensor(i8, 3), 4, 5, 6)
	require.Equal(t, []int64{32}, evalOne(t, irkind.Dot, ir.Scalar(eint), a, b).Data())
	require.Equal(t, []int64{5, 7, 9}, evalOne(t, irkind.AddEintPlain, ir.Tensor(eint, 3), a, b).Data())
	require.Equal(t, []int64{3, 3, 3}, evalOne(t, irkind.SubPlainEint, ir.Tensor(eint, 3), b, a).Data())
	require.Equal(t, []int64{-1, -2, -3}, evalOne(t, irkind.Negate, ir.Tensor(eint, 3), a).Data())

	col := array(t, ir.Tensor(eint, 2, 1), 10, 20)
	row := array(t, ir.Tensor(eint, 1, 3), 1, 2, 3)
	require.Equal(t, []int64{11, 12, 13, 21, 22, 23}, evalOne(t, irkind.AddEintEint, ir.Tensor(eint, 2, 3), col, row).Data())

	m := array(t, ir.Tensor(eint, 2, 2), 1, 2, 3, 4)
	n := array(t, ir.Tensor(i8, 2, 2), 5, 6, 7, 8)
	require.Equal(t, []int64{19, 22, 43, 50}, evalOne(t, irkind.MatMulEintPlain, ir.Tensor(eint, 2, 2), m, n).Data())
}

func TestLookupTables(t *testing.T) {
	x := array(t, ir.Tensor(eint, 2), 1, 3)
	table := array(t, ir.Tensor(i8, 4), 7, 8, 9, 10)
	require.Equal(t, []int64{8, 10}, evalOne(t, irkind.ApplyLookupTable, ir.Tensor(eint, 2), x, table).Data())

	luts := array(t, ir.Tensor(i8, 2, 4), 10, 11, 12, 13, 20, 21, 22, 23)
	require.Equal(t, []int64{11, 23}, evalOne(t, irkind.ApplyMultiLookupTable, ir.Tensor(eint, 2), x, luts).Data())

	mapped := array(t, ir.Tensor(i8, 3, 2), 1, 2, 3, 4, 5, 6)
	rows := array(t, ir.Tensor(i8, 2), 2, 0)
	t2 := array(t, ir.Tensor(eint, 2), 0, 1)
	require.Equal(t, []int64{5, 2}, evalOne(t, irkind.ApplyMappedLookupTable, ir.Tensor(eint, 2), t2, mapped, rows).Data())

	x22 := array(t, ir.Tensor(eint, 2, 2), 1, 0, 0, 1)
	rows12 := array(t, ir.Tensor(i8, 1, 2), 2, 0)
	require.Equal(t, []int64{6, 1, 5, 2}, evalOne(t, irkind.ApplyMappedLookupTable, ir.Tensor(eint, 2, 2), x22, mapped, rows12).Data())
}

func TestEvalErrors(t *testing.T) {
	fn := ir.NewFunction("lut")
	x := fn.AddArg(ir.Tensor(eint, 1))
	tbl := fn.AddArg(ir.Tensor(i8, 2))
	inst := fn.Append(irkind.ApplyLookupTable, []ir.Slot{x, tbl}, []ir.Type{ir.Tensor(eint, 1)}, nil, ir.Loc{File: "lut.mlir", Line: 3})
	fn.Return(inst.Result())
	_, err := cleartext.Eval(fn, []*cleartext.Array{
		array(t, ir.Tensor(eint, 1), 5),
		array(t, ir.Tensor(i8, 2), 0, 1),
	})
	require.ErrorContains(t, err, "lut.mlir:3:0")
	_, err = cleartext.Eval(fn, []*cleartext.Array{array(t, ir.Tensor(eint, 1), 0)})
	require.Error(t, err)
}
