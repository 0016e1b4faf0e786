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

package fmterr

import (
	"fmt"

	"github.com/gx-org/fhelinalg/build/ir"
	"github.com/pkg/errors"
)

type (
	// ErrorWithPos is an error attached to a location in the source program.
	ErrorWithPos interface {
		error
		Loc() ir.Loc
		Err() error
	}

	errorWithPos struct {
		loc ir.Loc
		err error
	}
)

// Position adds location information to an error.
// An error already positioned is returned as is.
func Position(loc ir.Loc, err error) error {
	if err == nil {
		return nil
	}
	var pos ErrorWithPos
	if errors.As(err, &pos) {
		return err
	}
	return errorWithPos{loc: loc, err: err}
}

// Errorf returns a formatted compiler error for the user.
func Errorf(loc ir.Loc, format string, a ...any) error {
	return Position(loc, errors.Errorf(format, a...))
}

// Internal marks an error as internal, potentially adding additional information.
func Internal(err error) error {
	return fmt.Errorf("fhelinalg internal error. This is a bug in the lowering. Please report it. Error:\n%+v", err)
}

// Internalf returns a formatted internal error.
func Internalf(loc ir.Loc, format string, a ...any) error {
	return Internal(Errorf(loc, format, a...))
}

// Error returns a string description of the error.
func (err errorWithPos) Error() string {
	if !err.loc.IsValid() {
		return err.err.Error()
	}
	return PosString(err.loc) + " " + err.err.Error()
}

// Unwrap the error.
func (err errorWithPos) Unwrap() error {
	return err.err
}

// Format writes the error into the state of the formatter.
func (err errorWithPos) Format(s fmt.State, verb rune) {
	format(err, s, verb)
}

func (err errorWithPos) Loc() ir.Loc {
	return err.loc
}

func (err errorWithPos) Err() error {
	return err.err
}

// PosString returns a location as a string that can be used for an error.
func PosString(loc ir.Loc) string {
	if !loc.IsValid() {
		return ""
	}
	return loc.String() + ":"
}
