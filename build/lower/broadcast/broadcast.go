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

// Package broadcast computes the index maps reading broadcast operands
// of tensor operations.
package broadcast

import (
	"fmt"

	"github.com/gx-org/fhelinalg/build/ir"
)

// ShapeError is returned when the shape of an operand is not compatible
// with the shape of a result. Dim is the dimension of the operand where
// the mismatch occurs, or -1 if the rank of the operand is wrong.
// Op is set when the operand is contracted by an operation instead of
// being broadcast.
type ShapeError struct {
	Op       string
	Dim      int
	Expected int
	Got      int
}

func (err *ShapeError) Error() string {
	if err.Op != "" {
		if err.Dim < 0 {
			return fmt.Sprintf("%s requires operands of rank %d but got rank %d", err.Op, err.Expected, err.Got)
		}
		return fmt.Sprintf("%s: contracted dimension %d: expected %d but got %d", err.Op, err.Dim, err.Expected, err.Got)
	}
	if err.Dim < 0 {
		return fmt.Sprintf("operand of rank %d cannot be broadcast to a result of rank %d", err.Got, err.Expected)
	}
	return fmt.Sprintf("incompatible dimension %d: expected %d or 1 but got %d", err.Dim, err.Expected, err.Got)
}

type (
	// Option of the resolver.
	Option interface {
		apply(*config)
	}

	config struct {
		excludeTrailing bool
		trailing        int
	}

	excludeTrailing int
)

func (k excludeTrailing) apply(cfg *config) {
	cfg.excludeTrailing = true
	cfg.trailing = int(k)
}

// ExcludeTrailing excludes the last dimension of the operand from the
// broadcast. The map reads the operand at index k along that dimension.
func ExcludeTrailing(k int) Option {
	return excludeTrailing(k)
}

// Resolve returns the index map reading an operand of shape operand at
// every position of a result of shape result.
//
// Dimensions are aligned on the right. A dimension of size 1 in the operand
// is broadcast along a dimension of a different size in the result.
func Resolve(result, operand []int, opts ...Option) (ir.IndexMap, error) {
	var cfg config
	for _, opt := range opts {
		opt.apply(&cfg)
	}
	broadcastRank := len(operand)
	if cfg.excludeTrailing {
		broadcastRank--
		if broadcastRank < 0 {
			return nil, &ShapeError{Dim: -1, Expected: len(result), Got: len(operand)}
		}
		if last := operand[len(operand)-1]; cfg.trailing < 0 || cfg.trailing >= last {
			return nil, &ShapeError{Dim: len(operand) - 1, Expected: cfg.trailing + 1, Got: last}
		}
	}
	delta := len(result) - broadcastRank
	if delta < 0 {
		return nil, &ShapeError{Dim: -1, Expected: len(result), Got: len(operand)}
	}
	m := make(ir.IndexMap, 0, len(operand))
	for i := range broadcastRank {
		opDim, resDim := operand[i], result[i+delta]
		switch {
		case opDim == 1 && resDim != 1:
			m = append(m, ir.Const(0))
		case opDim == resDim:
			m = append(m, ir.IterVar(i+delta))
		default:
			return nil, &ShapeError{Dim: i, Expected: resDim, Got: opDim}
		}
	}
	if cfg.excludeTrailing {
		m = append(m, ir.Const(cfg.trailing))
	}
	return m, nil
}

// ResultShape returns the shape of the result of an elementwise operation
// broadcasting two operands.
func ResultShape(a, b []int) ([]int, error) {
	if len(a) < len(b) {
		a, b = b, a
	}
	delta := len(a) - len(b)
	res := append([]int{}, a...)
	for i, bDim := range b {
		aDim := a[i+delta]
		switch {
		case aDim == bDim || bDim == 1:
		case aDim == 1:
			res[i+delta] = bDim
		default:
			return nil, &ShapeError{Dim: i + delta, Expected: aDim, Got: bDim}
		}
	}
	return res, nil
}
