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

// Package fhelower implements the fhelower command.
//
// fhelower loads a program stored in YAML, lowers its tensor operations
// into loop nests and prints the result:
//
//	fhelower lower --tfhe program.yaml
//	fhelower eval --arg 1,2,3 --arg 4,5,6 --lower program.yaml
//	fhelower fmt program.yaml
package fhelower

import (
	"fmt"
	"io"
	"os"

	"github.com/gx-org/fhelinalg/api/options"
	"github.com/gx-org/fhelinalg/build/ir"
	"github.com/gx-org/fhelinalg/build/lower/driver"
	"github.com/gx-org/fhelinalg/build/lower/fhetotfhe"
	"github.com/gx-org/fhelinalg/build/lower/rules"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Color modes of the logs.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

type app struct {
	verbose bool
	color   string
	logger  *logrus.Logger
}

// New returns the root command of fhelower.
func New() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "fhelower",
		Short:         "Lower FHE tensor operations into loop nests.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setupLogger(cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log each round and rewrite of the lowering")
	root.PersistentFlags().StringVar(&a.color, "color", ColorAuto, "colorize logs: auto, always, or never")
	root.AddCommand(a.lowerCmd(), a.evalCmd(), a.fmtCmd())
	return root
}

// Execute runs the command with the arguments of the process.
func Execute() int {
	cmd := New()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "%+v\n", err)
		return 1
	}
	return 0
}

func useColors(mode string, w io.Writer) (bool, error) {
	switch mode {
	case ColorAlways:
		return true, nil
	case ColorNever:
		return false, nil
	case ColorAuto:
		f, ok := w.(*os.File)
		return ok && term.IsTerminal(int(f.Fd())), nil
	}
	return false, errors.Errorf("invalid color mode %q", mode)
}

func (a *app) setupLogger(w io.Writer) error {
	colors, err := useColors(a.color, w)
	if err != nil {
		return err
	}
	a.logger = logrus.New()
	a.logger.SetOutput(w)
	a.logger.SetFormatter(&logrus.TextFormatter{
		ForceColors:   colors,
		DisableColors: !colors,
	})
	a.logger.SetLevel(logrus.WarnLevel)
	if a.verbose {
		a.logger.SetLevel(logrus.DebugLevel)
	}
	return nil
}

type lowerFlags struct {
	maxRounds    int
	workers      int
	verifyNests  bool
	tfhe         bool
	lweDimension int
}

func (f *lowerFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.maxRounds, "max-rounds", driver.DefaultMaxRounds, "maximum number of lowering rounds")
	cmd.Flags().IntVar(&f.workers, "parallel", 0, "number of functions lowered concurrently (0: sequential)")
	cmd.Flags().BoolVar(&f.verifyNests, "verify-nests", false, "verify every loop nest after each round")
	cmd.Flags().BoolVar(&f.tfhe, "tfhe", false, "lower encrypted types into LWE ciphertexts")
	cmd.Flags().IntVar(&f.lweDimension, "lwe-dimension", fhetotfhe.DefaultLWEDimension, "LWE dimension of the ciphertexts")
}

func (f *lowerFlags) options(logger *logrus.Logger) []options.PassOption {
	opts := []options.PassOption{
		options.MaxRounds{N: f.maxRounds},
		options.Logger{Entry: logrus.NewEntry(logger)},
	}
	if f.workers > 0 {
		opts = append(opts, options.Parallel{Workers: f.workers})
	}
	if f.verifyNests {
		opts = append(opts, options.VerifyNests{})
	}
	if f.tfhe {
		opts = append(opts, options.TFHEParameters{LWEDimension: f.lweDimension})
	}
	return opts
}

func (a *app) lower(prog *ir.Program, flags *lowerFlags) (*ir.Program, error) {
	opts := flags.options(a.logger)
	lowered, stats, err := driver.LowerProgram(prog, rules.Default(), driver.LinalgTarget(), opts...)
	if err != nil {
		return nil, err
	}
	a.logStats(driver.PassName, stats)
	if !flags.tfhe {
		return lowered, nil
	}
	lowered, stats, err = fhetotfhe.Lower(lowered, fhetotfhe.DefaultParameters(), opts...)
	if err != nil {
		return nil, err
	}
	a.logStats(options.TFHEPass, stats)
	return lowered, nil
}

func (a *app) logStats(pass string, stats *driver.ProgramStats) {
	for _, fnStats := range stats.Functions {
		a.logger.WithFields(logrus.Fields{
			"pass": pass,
			"func": fnStats.Name,
		}).Info(fnStats.Stats)
	}
}
