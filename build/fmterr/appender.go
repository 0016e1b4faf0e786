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
	"github.com/gx-org/fhelinalg/build/ir"
	"github.com/pkg/errors"
)

type (
	contextError struct {
		f      func(error) error
		errors Errors
	}

	// Appender appends errors to a set within a stack of contexts.
	// Errors appended while a context is pushed are transformed by the
	// context function when the context is popped.
	Appender struct {
		stack  []contextError
		errors *Errors
	}
)

// NewAppender returns a new appender collecting errors into errs.
func NewAppender(errs *Errors) *Appender {
	return &Appender{errors: errs}
}

// Push a new context in the error stack.
func (app *Appender) Push(f func(error) error) {
	app.stack = append(app.stack, contextError{f: f})
}

// Pop removes the last error context in the stack.
func (app *Appender) Pop() {
	last := app.stack[len(app.stack)-1]
	app.stack = app.stack[:len(app.stack)-1]
	for _, err := range last.errors.errs {
		app.Append(last.f(err))
	}
}

// Append an error to the list of errors.
func (app *Appender) Append(err error) bool {
	if len(app.stack) == 0 {
		return app.errors.Append(err)
	}
	return app.stack[len(app.stack)-1].errors.Append(err)
}

// AppendAt appends an existing error at a given location.
func (app *Appender) AppendAt(loc ir.Loc, err error) bool {
	return app.Append(Position(loc, err))
}

// Appendf appends an error at a location.
func (app *Appender) Appendf(loc ir.Loc, format string, a ...any) bool {
	return app.Append(Errorf(loc, format, a...))
}

// AppendInternalf appends an internal error at a location.
func (app *Appender) AppendInternalf(loc ir.Loc, format string, a ...any) bool {
	return app.Append(Internalf(loc, format, a...))
}

// Errors returns the set of errors or nil if no errors has been appended.
func (app *Appender) Errors() *Errors {
	if len(app.stack) > 0 {
		var errs Errors
		errs.Append(Internal(errors.New("cannot fetch errors while the context stack is non-empty")))
		return &errs
	}
	if app.errors.Empty() {
		return nil
	}
	return app.errors
}

// Empty returns true if no errors has been appended.
func (app *Appender) Empty() bool {
	if !app.errors.Empty() {
		return false
	}
	for _, ctx := range app.stack {
		if !ctx.errors.Empty() {
			return false
		}
	}
	return true
}

// String representation of the errors.
func (app *Appender) String() string {
	return app.errors.String()
}
