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

package fhelower

import (
	"fmt"
	"io"

	gxfmt "github.com/gx-org/fhelinalg/base/fmt"
	"github.com/gx-org/fhelinalg/build/ir"
	"github.com/gx-org/fhelinalg/build/ir/iryaml"
	"github.com/gx-org/fhelinalg/interp/cleartext"
	"github.com/gx-org/fhelinalg/tools/fheflag"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func (a *app) lowerCmd() *cobra.Command {
	flags := &lowerFlags{}
	var number bool
	cmd := &cobra.Command{
		Use:   "lower [flags] program.yaml",
		Short: "lower a program and print its IR.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := iryaml.LoadFile(args[0])
			if err != nil {
				return err
			}
			lowered, err := a.lower(prog, flags)
			if err != nil {
				return err
			}
			text := lowered.String()
			if number {
				text = gxfmt.Number(text)
			}
			_, err = io.WriteString(cmd.OutOrStdout(), text)
			return err
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVarP(&number, "number", "n", false, "prefix each line with its number")
	return cmd
}

func (a *app) fmtCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fmt program.yaml",
		Short: "print a program in its canonical YAML form.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := iryaml.LoadFile(args[0])
			if err != nil {
				return err
			}
			return iryaml.Store(cmd.OutOrStdout(), prog)
		},
	}
}

func (a *app) evalCmd() *cobra.Command {
	flags := &lowerFlags{}
	var (
		fnName   string
		argsData [][]int64
		lower    bool
		reverse  bool
		shapes   bool
	)
	cmd := &cobra.Command{
		Use:   "eval [flags] program.yaml",
		Short: "evaluate a function on cleartext values.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := iryaml.LoadFile(args[0])
			if err != nil {
				return err
			}
			if lower {
				if prog, err = a.lower(prog, flags); err != nil {
					return err
				}
			}
			fn, err := findFunction(prog, fnName)
			if err != nil {
				return err
			}
			values, err := arguments(fn, argsData)
			if err != nil {
				return err
			}
			var opts []cleartext.Option
			if reverse {
				opts = append(opts, cleartext.ReverseReductions())
			}
			results, err := cleartext.Eval(fn, values, opts...)
			if err != nil {
				return err
			}
			for _, res := range results {
				line := res.String()
				if shapes {
					sh := res.Shape()
					line = fmt.Sprintf("%s %dB %s", sh, sh.ByteSize(), line)
				}
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), line); err != nil {
					return err
				}
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&fnName, "func", "", "function to evaluate (default: the only function of the program)")
	cmd.Flags().VarP(fheflag.Int64Lists(&argsData), "arg", "a", "values of the next argument, separated by commas")
	cmd.Flags().BoolVar(&lower, "lower", false, "lower the program before evaluating it")
	cmd.Flags().BoolVar(&reverse, "reverse-reductions", false, "visit reduction dimensions in reverse order")
	cmd.Flags().BoolVar(&shapes, "shapes", false, "prefix each result with its backend shape and size in bytes")
	return cmd
}

func findFunction(prog *ir.Program, name string) (*ir.Function, error) {
	if name != "" {
		fn := prog.Function(name)
		if fn == nil {
			return nil, errors.Errorf("function %s not found", name)
		}
		return fn, nil
	}
	if len(prog.Functions) != 1 {
		return nil, errors.Errorf("program has %d functions: use --func to select one", len(prog.Functions))
	}
	return prog.Functions[0], nil
}

func arguments(fn *ir.Function, data [][]int64) ([]*cleartext.Array, error) {
	if len(data) != len(fn.Args) {
		return nil, errors.Errorf("function %s takes %d arguments but %d given", fn.Name, len(fn.Args), len(data))
	}
	values := make([]*cleartext.Array, len(data))
	for i, arg := range fn.Args {
		var err error
		if values[i], err = cleartext.NewArray(arg.Type, data[i]); err != nil {
			return nil, errors.WithMessagef(err, "argument %d", i)
		}
	}
	return values, nil
}
