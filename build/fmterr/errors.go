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
	"strings"
)

// Errors is a set of errors.
type Errors struct {
	errs []error
}

// Append an error to the list of errors.
// Always returns false so that callers can append and return in one statement.
func (errs *Errors) Append(err error) bool {
	if err != nil {
		errs.errs = append(errs.errs, err)
	}
	return false
}

// Empty returns true if no error has been declared.
func (errs *Errors) Empty() bool {
	return errs == nil || len(errs.errs) == 0
}

// Len returns the number of errors in the set.
func (errs *Errors) Len() int {
	if errs == nil {
		return 0
	}
	return len(errs.errs)
}

// Error returns the current set of errors as a string.
func (errs *Errors) Error() string {
	ss := make([]string, len(errs.errs))
	for i, err := range errs.errs {
		ss[i] = err.Error()
	}
	return strings.Join(ss, "\n")
}

// Errors returns the list of all collected errors.
func (errs *Errors) Errors() []error {
	if errs == nil {
		return nil
	}
	return append([]error{}, errs.errs...)
}

// Unwrap returns the errors of the set so that they can be inspected
// with errors.Is and errors.As.
func (errs *Errors) Unwrap() []error {
	return errs.Errors()
}

// ToError returns the errors as an error interface.
func (errs *Errors) ToError() error {
	if errs.Empty() {
		return nil
	}
	if len(errs.errs) == 1 {
		return errs.errs[0]
	}
	return errs
}

// Transform the set of errors into a new set.
// Errors for which f returns nil are dropped.
func (errs *Errors) Transform(f func(error) error) *Errors {
	if errs == nil {
		return nil
	}
	nw := &Errors{}
	for _, err := range errs.errs {
		nw.Append(f(err))
	}
	if nw.Empty() {
		return nil
	}
	return nw
}

// Format writes the error into the state of the formatter.
func (errs *Errors) Format(s fmt.State, verb rune) {
	flag := ""
	if s.Flag('+') {
		flag = "+"
	}
	format := fmt.Sprintf("%%%s%s", flag, string(verb))
	for i, e := range errs.errs {
		if i > 0 {
			fmt.Fprint(s, "\n")
		}
		fmt.Fprintf(s, format, e)
	}
}

// String representation of the error.
func (errs *Errors) String() string {
	return errs.Error()
}
