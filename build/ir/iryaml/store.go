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

package iryaml

import (
	"bytes"
	"io"
	"os"
	"strings"

	"github.com/gx-org/fhelinalg/base/uname"
	"github.com/gx-org/fhelinalg/build/fmterr"
	"github.com/gx-org/fhelinalg/build/ir"
	"github.com/gx-org/fhelinalg/build/ir/irkind"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// StoreFile writes a program into a YAML file.
func StoreFile(path string, prog *ir.Program) error {
	var buf bytes.Buffer
	if err := Store(&buf, prog); err != nil {
		return err
	}
	return errors.WithStack(os.WriteFile(path, buf.Bytes(), 0o644))
}

// Store writes a program in YAML.
// Values are named after the operation producing them.
func Store(w io.Writer, prog *ir.Program) error {
	f := file{Version: Version}
	for _, fn := range prog.Functions {
		fnY, err := storeFunction(fn)
		if err != nil {
			return errors.WithMessagef(err, "function %s", fn.Name)
		}
		f.Functions = append(f.Functions, fnY)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&f); err != nil {
		return errors.Wrapf(err, "cannot encode program")
	}
	return errors.WithStack(enc.Close())
}

func valueRoot(kind irkind.Kind) string {
	_, name, _ := strings.Cut(kind.String(), ".")
	return name
}

func storeFunction(fn *ir.Function) (function, error) {
	fnY := function{Name: fn.Name, Loc: formatLoc(fn.Loc)}
	unames := uname.New()
	names := make(map[ir.ValueID]string)
	for _, arg := range fn.Args {
		names[arg.ID] = unames.Name("arg")
		fnY.Args = append(fnY.Args, value{Name: names[arg.ID], Type: arg.Type.String()})
	}
	for _, inst := range fn.Insts {
		if inst.Kind == irkind.Generic {
			return fnY, fmterr.Errorf(inst.Loc, "%s cannot be stored", inst.Kind)
		}
		instY := instruction{Op: inst.Kind.String(), Loc: formatLoc(inst.Loc)}
		for _, op := range inst.Operands {
			instY.Operands = append(instY.Operands, names[op.ID])
		}
		for _, res := range inst.Results {
			names[res.ID] = unames.Name(valueRoot(inst.Kind))
			instY.Results = append(instY.Results, value{Name: names[res.ID], Type: res.Type.String()})
		}
		switch attr := inst.Attr.(type) {
		case ir.Constant:
			instY.Values = attr.Values
		case ir.Indices:
			instY.Indices = attr.Values
		}
		fnY.Body = append(fnY.Body, instY)
	}
	for _, id := range fn.Returns {
		fnY.Return = append(fnY.Return, names[id])
	}
	return fnY, nil
}
