// Copyright 2025 Google LLC
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

type (
	contextError struct {
		f      func(error) error
		errors Errors
	}

	// Errors is a set of errors.
	Errors struct {
		stack []contextError
		errs  []error
	}
)

// Push a new context in the error stack.
// Errors appended until the matching Pop are transformed by f.
func (errs *Errors) Push(f func(error) error) {
	errs.stack = append(errs.stack, contextError{f: f})
}

// Pop removes the last error context in the stack.
func (errs *Errors) Pop() {
	last := errs.stack[len(errs.stack)-1]
	errs.stack = errs.stack[:len(errs.stack)-1]
	if last.errors.Empty() {
		return
	}
	errs.Append(last.f(&last.errors))
}

// Append an error to the list of errors.
// It always returns false so that it can be used in return statements of checks.
func (errs *Errors) Append(err error) bool {
	if err == nil {
		return false
	}
	if len(errs.stack) == 0 {
		errs.errs = append(errs.errs, err)
	} else {
		errs.stack[len(errs.stack)-1].errors.Append(err)
	}
	return false
}

// Appendf appends a formatted error of a given kind.
func (errs *Errors) Appendf(kind Kind, node fmt.Stringer, format string, a ...any) bool {
	return errs.Append(Errorf(kind, node, format, a...))
}

// Empty returns true if no error has been declared.
func (errs *Errors) Empty() bool {
	if len(errs.errs) > 0 {
		return false
	}
	for _, st := range errs.stack {
		if !st.errors.Empty() {
			return false
		}
	}
	return true
}

// Error returns the current set of errors as a string.
func (errs *Errors) Error() string {
	var ss []string
	for _, err := range errs.Errors() {
		ss = append(ss, err.Error())
	}
	return strings.Join(ss, "\n")
}

// Errors returns the list of all collected errors.
func (errs *Errors) Errors() []error {
	all := append([]error{}, errs.errs...)
	for _, st := range errs.stack {
		if st.errors.Empty() {
			continue
		}
		all = append(all, st.f(&st.errors))
	}
	return all
}

// ToError returns the errors as an error interface.
// A set with a single error returns that error unchanged.
func (errs *Errors) ToError() error {
	if errs == nil || errs.Empty() {
		return nil
	}
	all := errs.Errors()
	if len(all) == 1 {
		return all[0]
	}
	return errs
}

// Unwrap returns the errors of the set so that errors.Is and errors.As
// inspect all of them.
func (errs *Errors) Unwrap() []error {
	return errs.Errors()
}

// Format writes the error into the state of the formatter.
func (errs *Errors) Format(s fmt.State, verb rune) {
	flag := ""
	if s.Flag('+') {
		flag = "+"
	}
	for _, e := range errs.Errors() {
		format := fmt.Sprintf("%%%s%s\n", flag, string(verb))
		fmt.Fprintf(s, format, e)
	}
}

// String representation of the error.
func (errs *Errors) String() string {
	return errs.Error()
}
