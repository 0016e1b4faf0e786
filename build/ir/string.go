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
	"strings"

	gxfmt "github.com/gx-org/fhelinalg/base/fmt"
)

func join[T fmt.Stringer](xs []T) string {
	strs := make([]string, len(xs))
	for i, x := range xs {
		strs[i] = x.String()
	}
	return strings.Join(strs, ", ")
}

func slotTypes(slots []Slot) string {
	types := make([]string, len(slots))
	for i, s := range slots {
		types[i] = s.Type.String()
	}
	return strings.Join(types, ", ")
}

func slotIDs(slots []Slot) string {
	ids := make([]string, len(slots))
	for i, s := range slots {
		ids[i] = s.ID.String()
	}
	return strings.Join(ids, ", ")
}

func (inst *Instruction) String() string {
	var s strings.Builder
	if len(inst.Results) > 0 {
		fmt.Fprintf(&s, "%s = ", slotIDs(inst.Results))
	}
	fmt.Fprintf(&s, "%s(%s)", inst.Kind, slotIDs(inst.Operands))
	if inst.Attr != nil {
		fmt.Fprintf(&s, " %s", inst.Attr)
	}
	results := slotTypes(inst.Results)
	if len(inst.Results) != 1 {
		results = "(" + results + ")"
	}
	fmt.Fprintf(&s, " : (%s) -> %s", slotTypes(inst.Operands), results)
	if inst.Loc.IsValid() {
		fmt.Fprintf(&s, " loc(%s)", inst.Loc)
	}
	return s.String()
}

func (fn *Function) String() string {
	var s strings.Builder
	args := make([]string, len(fn.Args))
	for i, arg := range fn.Args {
		args[i] = fmt.Sprintf("%s: %s", arg.ID, arg.Type)
	}
	rets := join(fn.ReturnTypes())
	fmt.Fprintf(&s, "func @%s(%s) -> (%s) {\n", fn.Name, strings.Join(args, ", "), rets)
	var body strings.Builder
	for _, inst := range fn.Insts {
		body.WriteString(inst.String())
		body.WriteString("\n")
	}
	fmt.Fprintf(&body, "return %s\n", join(fn.Returns))
	s.WriteString(gxfmt.Indent(body.String()))
	s.WriteString("}\n")
	return s.String()
}

func (p *Program) String() string {
	fns := make([]string, len(p.Functions))
	for i, fn := range p.Functions {
		fns[i] = fn.String()
	}
	return strings.Join(fns, "\n")
}
