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

// Package iryaml loads and stores programs in a YAML format.
//
// A program file looks like:
//
//	version: v1.0.0
//	functions:
//	  - name: dot
//	    args:
//	      - {name: a, type: tensor<3xeint<7>>}
//	      - {name: b, type: tensor<3xi8>}
//	    body:
//	      - op: fhelinalg.dot_eint_int
//	        operands: [a, b]
//	        results: [{name: r, type: eint<7>}]
//	        loc: dot.mlir:3:10
//	    return: [r]
//
// Operation names are the mnemonics printed by the IR. The dialect prefix
// can be omitted when the name is not ambiguous. Loop nests have no YAML form:
// the format describes programs before lowering.
package iryaml

import (
	"strconv"
	"strings"

	"github.com/gx-org/fhelinalg/build/ir"
	"github.com/pkg/errors"
	"golang.org/x/mod/semver"
)

// Version of the format written by Store.
const Version = "v1.0.0"

type (
	file struct {
		Version   string     `yaml:"version"`
		Functions []function `yaml:"functions"`
	}

	function struct {
		Name   string        `yaml:"name"`
		Loc    string        `yaml:"loc,omitempty"`
		Args   []value       `yaml:"args,omitempty"`
		Body   []instruction `yaml:"body,omitempty"`
		Return []string      `yaml:"return,flow,omitempty"`
	}

	value struct {
		Name string `yaml:"name"`
		Type string `yaml:"type"`
	}

	instruction struct {
		Op       string   `yaml:"op"`
		Operands []string `yaml:"operands,flow,omitempty"`
		Results  []value  `yaml:"results,omitempty"`
		Values   []int64  `yaml:"values,flow,omitempty"`
		Indices  []int    `yaml:"indices,flow,omitempty"`
		Loc      string   `yaml:"loc,omitempty"`
	}
)

func checkVersion(v string) error {
	if v == "" {
		return errors.Errorf("missing format version")
	}
	if !semver.IsValid(v) {
		return errors.Errorf("invalid format version %q", v)
	}
	if want := semver.Major(Version); semver.Major(v) != want {
		return errors.Errorf("unsupported format version %s: want %s.x.x", v, want)
	}
	if semver.Compare(v, Version) > 0 {
		return errors.Errorf("format version %s is newer than %s", v, Version)
	}
	return nil
}

// ParseLoc parses a location printed as file:line:col.
// The column, then the line, can be omitted.
func ParseLoc(s string) (ir.Loc, error) {
	if s == "" {
		return ir.Loc{}, nil
	}
	parts := strings.Split(s, ":")
	var nums []int
	for len(parts) > 1 && len(nums) < 2 {
		n, err := strconv.Atoi(parts[len(parts)-1])
		if err != nil {
			break
		}
		nums = append([]int{n}, nums...)
		parts = parts[:len(parts)-1]
	}
	loc := ir.Loc{File: strings.Join(parts, ":")}
	if len(nums) > 0 {
		loc.Line = nums[0]
	}
	if len(nums) > 1 {
		loc.Col = nums[1]
	}
	if loc.Line < 0 || loc.Col < 0 {
		return ir.Loc{}, errors.Errorf("invalid location %q", s)
	}
	return loc, nil
}

func formatLoc(loc ir.Loc) string {
	if !loc.IsValid() {
		return ""
	}
	return loc.String()
}
