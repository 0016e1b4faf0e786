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

package driver

import (
	"github.com/gx-org/fhelinalg/api/options"
	"github.com/gx-org/fhelinalg/base/sync"
	"github.com/gx-org/fhelinalg/build/fmterr"
	"github.com/gx-org/fhelinalg/build/ir"
	"github.com/gx-org/fhelinalg/build/lower/rules"
	"go.uber.org/multierr"
)

type (
	// ProgramStats are the statistics of the lowering of a program.
	ProgramStats struct {
		Stats
		// Functions are the statistics per function, in the order of the program.
		Functions []FunctionStats
	}

	// FunctionStats are the statistics of the lowering of a function.
	FunctionStats struct {
		Name  string
		Stats *Stats
	}
)

type funcResult struct {
	fn    *ir.Function
	stats *Stats
	err   error
}

// LowerProgram lowers all the functions of a program independently.
// Functions failing to lower are returned unmodified and their errors
// combined into the returned error.
func LowerProgram(prog *ir.Program, reg *rules.Registry, target *Target, opts ...options.PassOption) (*ir.Program, *ProgramStats, error) {
	cfg, err := NewConfig(PassName, opts)
	if err != nil {
		return nil, nil, err
	}
	return RunProgram(prog, reg, target, cfg)
}

// RunProgram lowers all the functions of a program given a configuration.
func RunProgram(prog *ir.Program, reg *rules.Registry, target *Target, cfg *Config) (*ir.Program, *ProgramStats, error) {
	results := make([]funcResult, len(prog.Functions))
	lowerFunc := func(i int) {
		fn := prog.Functions[i]
		lowered, stats, err := Run(fn, reg, target, cfg)
		if err != nil {
			err = fmterr.PrefixWith("function %s: ", fn.Name)(err)
		}
		results[i] = funcResult{fn: lowered, stats: stats, err: err}
	}
	if cfg.Parallel {
		sync.ForEach(len(prog.Functions), cfg.Workers, lowerFunc)
	} else {
		for i := range prog.Functions {
			lowerFunc(i)
		}
	}

	out := &ir.Program{Functions: make([]*ir.Function, len(prog.Functions))}
	stats := &ProgramStats{}
	var errs error
	for i, fn := range prog.Functions {
		res := results[i]
		stats.Functions = append(stats.Functions, FunctionStats{Name: fn.Name, Stats: res.stats})
		if res.stats != nil {
			stats.add(res.stats)
		}
		if res.err != nil {
			errs = multierr.Append(errs, res.err)
			out.Functions[i] = fn.Clone()
			continue
		}
		out.Functions[i] = res.fn
	}
	return out, stats, errs
}
