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

// Package options specifies options for compiler passes.
package options

import (
	"github.com/sirupsen/logrus"
)

// AllPasses is the name returned by options applying to every pass.
const AllPasses = ""

type (
	// PassOption is an option of a compiler pass.
	PassOption interface {
		// Pass returns the name of the pass the option is specific to
		// or AllPasses.
		Pass() string
	}

	// MaxRounds sets the maximum number of rewriting rounds of a function.
	// A tensor operation lowered into other tensor operations requires
	// one additional round per nesting level.
	MaxRounds struct {
		N int
	}

	// Parallel lowers the functions of a program concurrently.
	// Workers is the maximum number of functions lowered at the same time.
	// Zero means no limit.
	Parallel struct {
		Workers int
	}

	// Logger sets the logger used by a pass.
	Logger struct {
		Entry *logrus.Entry
	}

	// VerifyNests verifies the function, including the bounds of the loop nests,
	// after every round.
	VerifyNests struct{}

	// TFHEParameters sets the parameters of the ciphertexts for a parameter token.
	// An empty token sets the parameters used for types without token.
	TFHEParameters struct {
		Token        string
		LWEDimension int
	}
)

var (
	_ PassOption = MaxRounds{}
	_ PassOption = Parallel{}
	_ PassOption = Logger{}
	_ PassOption = VerifyNests{}
	_ PassOption = TFHEParameters{}
)

// Pass for which the option has been built.
func (MaxRounds) Pass() string { return AllPasses }

// Pass for which the option has been built.
func (Parallel) Pass() string { return AllPasses }

// Pass for which the option has been built.
func (Logger) Pass() string { return AllPasses }

// Pass for which the option has been built.
func (VerifyNests) Pass() string { return AllPasses }

// TFHEPass is the name of the pass lowering encrypted integers to ciphertexts.
const TFHEPass = "fhe-to-tfhe"

// Pass for which the option has been built.
func (TFHEParameters) Pass() string { return TFHEPass }
