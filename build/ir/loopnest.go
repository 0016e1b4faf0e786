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
	"strings"

	"github.com/gx-org/fhelinalg/build/ir/irkind"
	"github.com/pkg/errors"
)

// ----------------------------------------------------------------------------
// Iteration space.
type (
	// IteratorKind specifies how a dimension of an iteration space is traversed.
	IteratorKind int

	// Dim is a dimension of an iteration space.
	Dim struct {
		Size int
		Kind IteratorKind
	}

	// IterationSpace is the ordered list of dimensions of a loop nest.
	IterationSpace []Dim
)

const (
	// Parallel dimensions produce independent outputs.
	Parallel IteratorKind = iota
	// Reduction dimensions fold values into the accumulator.
	Reduction
)

func (k IteratorKind) String() string {
	if k == Reduction {
		return "reduction"
	}
	return "parallel"
}

// ParallelSpace returns an iteration space with one parallel dimension per axis.
func ParallelSpace(dims []int) IterationSpace {
	space := make(IterationSpace, len(dims))
	for i, d := range dims {
		space[i] = Dim{Size: d, Kind: Parallel}
	}
	return space
}

// Rank of the iteration space.
func (s IterationSpace) Rank() int {
	return len(s)
}

// NumReductions returns the number of reduction dimensions.
func (s IterationSpace) NumReductions() int {
	n := 0
	for _, d := range s {
		if d.Kind == Reduction {
			n++
		}
	}
	return n
}

// Sizes returns the size of each dimension.
func (s IterationSpace) Sizes() []int {
	sizes := make([]int, len(s))
	for i, d := range s {
		sizes[i] = d.Size
	}
	return sizes
}

// NumPoints returns the number of points in the iteration space.
func (s IterationSpace) NumPoints() int {
	n := 1
	for _, d := range s {
		n *= d.Size
	}
	return n
}

func (s IterationSpace) String() string {
	dims := make([]string, len(s))
	for i, d := range s {
		dims[i] = fmt.Sprintf("%d:%s", d.Size, d.Kind)
	}
	return "[" + strings.Join(dims, ", ") + "]"
}

// ----------------------------------------------------------------------------
// Index maps.
type (
	// SelectorKind is the kind of a selector.
	SelectorKind int

	// Selector computes one coordinate of an operand from a point of an iteration space.
	Selector struct {
		Kind SelectorKind
		N    int
	}

	// IndexMap maps a point of an iteration space to the coordinates of an element in an operand.
	// It has one selector per dimension of the operand.
	IndexMap []Selector
)

const (
	// IterVarSelector selects a variable of the iteration space.
	IterVarSelector SelectorKind = iota
	// ConstSelector selects a constant coordinate.
	ConstSelector
)

// IterVar returns a selector for the k-th variable of the iteration space.
func IterVar(k int) Selector {
	return Selector{Kind: IterVarSelector, N: k}
}

// Const returns a selector for a constant coordinate.
func Const(n int) Selector {
	return Selector{Kind: ConstSelector, N: n}
}

// IdentityMap returns the identity map for a given rank.
func IdentityMap(rank int) IndexMap {
	m := make(IndexMap, rank)
	for i := range m {
		m[i] = IterVar(i)
	}
	return m
}

func (s Selector) String() string {
	if s.Kind == ConstSelector {
		return fmt.Sprint(s.N)
	}
	return fmt.Sprintf("d%d", s.N)
}

// Apply returns the coordinates in the operand of a point in the iteration space.
func (m IndexMap) Apply(point []int) []int {
	coords := make([]int, len(m))
	for i, s := range m {
		if s.Kind == ConstSelector {
			coords[i] = s.N
		} else {
			coords[i] = point[s.N]
		}
	}
	return coords
}

func (m IndexMap) String() string {
	sels := make([]string, len(m))
	for i, s := range m {
		sels[i] = s.String()
	}
	return "(" + strings.Join(sels, ", ") + ")"
}

// checkBounds checks that the map yields coordinates in bounds of shape
// for all the points of the iteration space.
func (m IndexMap) checkBounds(space IterationSpace, shape []int) error {
	if len(m) != len(shape) {
		return errors.Errorf("index map %s has %d selectors but the operand has rank %d", m, len(m), len(shape))
	}
	if space.NumPoints() == 0 {
		return nil
	}
	for i, s := range m {
		switch s.Kind {
		case ConstSelector:
			if s.N < 0 || s.N >= shape[i] {
				return errors.Errorf("index map %s: constant %d out of bounds of dimension %d of size %d", m, s.N, i, shape[i])
			}
		case IterVarSelector:
			if s.N < 0 || s.N >= len(space) {
				return errors.Errorf("index map %s: d%d out of the iteration space of rank %d", m, s.N, len(space))
			}
			if space[s.N].Size > shape[i] {
				return errors.Errorf("index map %s: d%d iterates over %d elements but dimension %d has size %d", m, s.N, space[s.N].Size, i, shape[i])
			}
		default:
			return errors.Errorf("index map %s: invalid selector kind %d", m, s.Kind)
		}
	}
	return nil
}

// ----------------------------------------------------------------------------
// Body of a loop nest.
type (
	// Expr is a node of the scalar expression evaluated at every point of a loop nest.
	Expr interface {
		expr()
		String() string
	}

	// Arg is the scalar of a bound input at the current point.
	Arg struct {
		Index int
	}

	// Capture is a captured operand, shared as a whole by all the points.
	Capture struct {
		Index int
	}

	// Acc is the current value of the accumulator.
	Acc struct{}

	// IndexConst is a constant index.
	IndexConst struct {
		Value int
	}

	// Op applies a scalar primitive or a table helper.
	// Type is the element type of the result. FromElements returns
	// a rank-1 tensor of Type with one element per argument.
	// Extract takes a tensor followed by one index per dimension.
	Op struct {
		Kind irkind.Kind
		Args []Expr
		Type ElementType
	}
)

var (
	_ Expr = Arg{}
	_ Expr = Capture{}
	_ Expr = Acc{}
	_ Expr = IndexConst{}
	_ Expr = (*Op)(nil)
)

func (Arg) expr() {}

func (e Arg) String() string { return fmt.Sprintf("arg%d", e.Index) }

func (Capture) expr() {}

func (e Capture) String() string { return fmt.Sprintf("cap%d", e.Index) }

func (Acc) expr() {}

func (Acc) String() string { return "acc" }

func (IndexConst) expr() {}

func (e IndexConst) String() string { return fmt.Sprint(e.Value) }

func (*Op) expr() {}

// NewOp returns a new operation in the body of a loop nest.
func NewOp(kind irkind.Kind, tp ElementType, args ...Expr) *Op {
	return &Op{Kind: kind, Args: args, Type: tp}
}

func (e *Op) String() string {
	args := make([]string, len(e.Args))
	for i, arg := range e.Args {
		args[i] = arg.String()
	}
	tp := "<nil>"
	if e.Type != nil {
		tp = e.Type.String()
	}
	return fmt.Sprintf("%s(%s):%s", e.Kind, strings.Join(args, ", "), tp)
}

// Walk calls f for every node of an expression in depth-first order.
// Nodes shared in the DAG are visited once.
func Walk(e Expr, f func(Expr)) {
	visited := make(map[*Op]bool)
	var walk func(Expr)
	walk = func(e Expr) {
		if e == nil {
			return
		}
		if op, ok := e.(*Op); ok {
			if visited[op] {
				return
			}
			visited[op] = true
			for _, arg := range op.Args {
				walk(arg)
			}
		}
		f(e)
	}
	walk(e)
}

// MapTypes returns a copy of an expression where the type of every operation
// has been transformed by f. Sharing in the DAG is preserved.
func MapTypes(e Expr, f func(ElementType) ElementType) Expr {
	done := make(map[*Op]*Op)
	var rec func(Expr) Expr
	rec = func(e Expr) Expr {
		op, ok := e.(*Op)
		if !ok {
			return e
		}
		if nw, ok := done[op]; ok {
			return nw
		}
		nw := &Op{Kind: op.Kind, Type: op.Type, Args: make([]Expr, len(op.Args))}
		if op.Type != nil {
			nw.Type = f(op.Type)
		}
		for i, arg := range op.Args {
			nw.Args[i] = rec(arg)
		}
		done[op] = nw
		return nw
	}
	if e == nil {
		return nil
	}
	return rec(e)
}

// ----------------------------------------------------------------------------
// Loop nest.
type (
	// AccumulatorMode specifies how the accumulator of a loop nest is initialised.
	AccumulatorMode int

	// Accumulator of a loop nest.
	Accumulator struct {
		// Mode of initialisation.
		Mode AccumulatorMode
		// Init is evaluated to seed the accumulator. With BroadcastInit, it is
		// evaluated once per position of the accumulator. With FoldInit, it is
		// evaluated once and the same value seeds every position.
		// A nil Init with BroadcastInit leaves the output uninitialised:
		// every position is then written exactly once by the body.
		Init Expr
		// Map from a point of the iteration space to a position in the accumulator.
		Map IndexMap
		// Type of the accumulator.
		Type Type
	}

	// Binding binds an input value to the loop nest.
	Binding struct {
		Value ValueID
		Map   IndexMap
	}

	// LoopNest is a generic parallel/reduction loop nest.
	// The body is evaluated once per point of the iteration space and its
	// result stored in the accumulator. Combinations of values across
	// reduction dimensions must be associative and commutative because the
	// order in which the points of the reduction dimensions are visited is
	// unspecified.
	LoopNest struct {
		Space    IterationSpace
		Inputs   []Binding
		Captures []ValueID
		Acc      Accumulator
		Body     Expr
		// Extract is the position in the accumulator of the final result,
		// or nil if the result is the accumulator itself.
		Extract []int
	}
)

const (
	// BroadcastInit writes every position of the accumulator independently.
	BroadcastInit AccumulatorMode = iota
	// FoldInit seeds all the positions with a single value folded across reduction dimensions.
	FoldInit
)

func (m AccumulatorMode) String() string {
	if m == FoldInit {
		return "fold"
	}
	return "broadcast"
}

// Clone returns a deep copy of the loop nest.
// The body is shared since expressions are never mutated.
func (n *LoopNest) Clone() *LoopNest {
	cl := &LoopNest{
		Space:    slices.Clone(n.Space),
		Inputs:   make([]Binding, len(n.Inputs)),
		Captures: slices.Clone(n.Captures),
		Acc: Accumulator{
			Mode: n.Acc.Mode,
			Init: n.Acc.Init,
			Map:  slices.Clone(n.Acc.Map),
			Type: n.Acc.Type.WithElem(n.Acc.Type.Elem),
		},
		Body:    n.Body,
		Extract: slices.Clone(n.Extract),
	}
	for i, b := range n.Inputs {
		cl.Inputs[i] = Binding{Value: b.Value, Map: slices.Clone(b.Map)}
	}
	return cl
}

// ResultType returns the type of the value computed by the loop nest.
func (n *LoopNest) ResultType() Type {
	if n.Extract != nil {
		return Scalar(n.Acc.Type.Elem)
	}
	return n.Acc.Type
}

// NumOperands returns the number of operands of a generic instruction
// implementing the loop nest: the inputs, the captured values, and the
// accumulator initial value.
func (n *LoopNest) NumOperands() int {
	return len(n.Inputs) + len(n.Captures) + 1
}

// Verify checks, from shapes alone, that the loop nest only accesses elements in bounds
// of its operands and that every position of the result is computed exactly once.
// typeOf returns the type of the values bound or captured by the loop nest.
func (n *LoopNest) Verify(typeOf func(ValueID) (Type, bool)) error {
	for i, d := range n.Space {
		if d.Size < 0 {
			return errors.Errorf("dimension %d of the iteration space has a negative size %d", i, d.Size)
		}
	}
	for i, b := range n.Inputs {
		tp, ok := typeOf(b.Value)
		if !ok {
			return errors.Errorf("input %d: value %s not defined", i, b.Value)
		}
		if err := b.Map.checkBounds(n.Space, tp.Shape); err != nil {
			return errors.Wrapf(err, "input %d", i)
		}
	}
	for i, c := range n.Captures {
		if _, ok := typeOf(c); !ok {
			return errors.Errorf("capture %d: value %s not defined", i, c)
		}
	}
	if err := n.verifyAccumulator(); err != nil {
		return err
	}
	return n.verifyBody()
}

func (n *LoopNest) verifyAccumulator() error {
	if err := n.Acc.Map.checkBounds(n.Space, n.Acc.Type.Shape); err != nil {
		return errors.Wrap(err, "accumulator")
	}
	written := make([]int, len(n.Space))
	for _, s := range n.Acc.Map {
		if s.Kind != IterVarSelector {
			continue
		}
		if n.Space[s.N].Kind == Reduction {
			return errors.Errorf("accumulator map %s indexed by reduction dimension d%d", n.Acc.Map, s.N)
		}
		written[s.N]++
	}
	numParallel := 0
	for i, d := range n.Space {
		if d.Kind != Parallel {
			continue
		}
		numParallel++
		if written[i] != 1 {
			return errors.Errorf("accumulator map %s: parallel dimension d%d selected %d times instead of once", n.Acc.Map, i, written[i])
		}
	}
	if numParallel > n.Acc.Type.Rank() {
		return errors.Errorf("accumulator %s too small for %d parallel dimensions", n.Acc.Type, numParallel)
	}
	if n.Extract != nil {
		if len(n.Extract) != n.Acc.Type.Rank() {
			return errors.Errorf("extraction at %v from an accumulator of rank %d", n.Extract, n.Acc.Type.Rank())
		}
		for i, x := range n.Extract {
			if x < 0 || x >= n.Acc.Type.Shape[i] {
				return errors.Errorf("extraction at %v out of bounds of %s", n.Extract, n.Acc.Type)
			}
		}
	}
	if n.Space.NumReductions() > 0 && n.Acc.Init == nil {
		return errors.Errorf("reduction over %s requires an initialised accumulator", n.Space)
	}
	return nil
}

func (n *LoopNest) verifyBody() error {
	if n.Body == nil {
		return errors.Errorf("loop nest has no body")
	}
	var err error
	usesAcc := false
	check := func(e Expr) {
		if err != nil {
			return
		}
		switch eT := e.(type) {
		case Arg:
			if eT.Index < 0 || eT.Index >= len(n.Inputs) {
				err = errors.Errorf("body refers to %s but the loop nest has %d inputs", eT, len(n.Inputs))
			}
		case Capture:
			if eT.Index < 0 || eT.Index >= len(n.Captures) {
				err = errors.Errorf("body refers to %s but the loop nest has %d captured values", eT, len(n.Captures))
			}
		case Acc:
			usesAcc = true
		case *Op:
			if eT.Type == nil {
				err = errors.Errorf("operation %s has no type", eT.Kind)
			}
			if !eT.Kind.IsScalarPrimitive() && eT.Kind != irkind.FromElements && eT.Kind != irkind.Extract {
				err = errors.Errorf("operation %s not supported in the body of a loop nest", eT.Kind)
			}
		}
	}
	Walk(n.Body, check)
	if n.Acc.Init != nil {
		Walk(n.Acc.Init, check)
	}
	if err != nil {
		return err
	}
	if usesAcc && n.Acc.Init == nil {
		return errors.Errorf("body reads an uninitialised accumulator")
	}
	if n.Space.NumReductions() > 0 && !usesAcc {
		return errors.Errorf("reduction over %s does not combine values with the accumulator", n.Space)
	}
	return nil
}

// VerifyInstruction checks that a generic instruction is consistent with its loop nest.
func (n *LoopNest) VerifyInstruction(inst *Instruction) error {
	if len(inst.Operands) != n.NumOperands() {
		return errors.Errorf("generic instruction has %d operands but its loop nest requires %d", len(inst.Operands), n.NumOperands())
	}
	if len(inst.Results) != 1 {
		return errors.Errorf("generic instruction has %d results instead of 1", len(inst.Results))
	}
	types := make(map[ValueID]Type, len(inst.Operands))
	for i, b := range n.Inputs {
		if inst.Operands[i].ID != b.Value {
			return errors.Errorf("operand %d is %s but input %d of the loop nest is %s", i, inst.Operands[i].ID, i, b.Value)
		}
	}
	for i, c := range n.Captures {
		op := inst.Operands[len(n.Inputs)+i]
		if op.ID != c {
			return errors.Errorf("operand %d is %s but capture %d of the loop nest is %s", len(n.Inputs)+i, op.ID, i, c)
		}
	}
	for _, op := range inst.Operands {
		types[op.ID] = op.Type
	}
	init := inst.Operands[len(inst.Operands)-1]
	if !init.Type.Equal(n.Acc.Type) {
		return errors.Errorf("accumulator declared as %s but initialised with %s", n.Acc.Type, init.Type)
	}
	if !inst.Results[0].Type.Equal(n.Acc.Type) {
		return errors.Errorf("generic instruction returns %s but its accumulator is %s", inst.Results[0].Type, n.Acc.Type)
	}
	return n.Verify(func(id ValueID) (Type, bool) {
		tp, ok := types[id]
		return tp, ok
	})
}

func (n *LoopNest) attribute() {}

func (n *LoopNest) String() string {
	var s strings.Builder
	fmt.Fprintf(&s, "{space = %s", n.Space)
	maps := make([]string, len(n.Inputs))
	for i, b := range n.Inputs {
		maps[i] = b.Map.String()
	}
	fmt.Fprintf(&s, ", maps = [%s]", strings.Join(maps, ", "))
	if len(n.Captures) > 0 {
		fmt.Fprintf(&s, ", captures = %d", len(n.Captures))
	}
	s.WriteString(", acc = ")
	s.WriteString(n.Acc.Mode.String())
	if n.Acc.Init != nil {
		fmt.Fprintf(&s, "(%s)", n.Acc.Init)
	}
	fmt.Fprintf(&s, " %s", n.Acc.Map)
	fmt.Fprintf(&s, ", body = %s", n.Body)
	if n.Extract != nil {
		fmt.Fprintf(&s, ", extract = %v", n.Extract)
	}
	s.WriteString("}")
	return s.String()
}
