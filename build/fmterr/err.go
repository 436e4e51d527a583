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
	"runtime/debug"
	"strings"

	"github.com/pkg/errors"
)

// Error is an error attached to an IR node.
type Error struct {
	Kind Kind
	// Node is the IR node at the origin of the error. It can be nil.
	Node fmt.Stringer
	Err  error
}

var _ error = (*Error)(nil)

// Errorf returns a formatted compiler error of a given kind.
func Errorf(kind Kind, node fmt.Stringer, format string, a ...any) error {
	return &Error{Kind: kind, Node: node, Err: errors.Errorf(format, a...)}
}

// Wrap attaches a kind and a node to an existing error.
func Wrap(kind Kind, node fmt.Stringer, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Node: node, Err: err}
}

// Internalf returns an internal compiler error.
func Internalf(node fmt.Stringer, format string, a ...any) error {
	return Errorf(Internal, node, format, a...)
}

// Is returns true if an error, or an error it wraps, is of a given kind.
// Kinds match their parent: an Arity error is also a TypeInference error.
func Is(err error, kind Kind) bool {
	if cErr, ok := err.(*Error); ok {
		if cErr.Kind == kind {
			return true
		}
		if parent, ok := cErr.Kind.Parent(); ok && parent == kind {
			return true
		}
	}
	switch wrapped := err.(type) {
	case interface{ Unwrap() error }:
		return Is(wrapped.Unwrap(), kind)
	case interface{ Unwrap() []error }:
		for _, err := range wrapped.Unwrap() {
			if Is(err, kind) {
				return true
			}
		}
	}
	return false
}

// KindOf returns the kind of the outermost compiler error in a chain.
func KindOf(err error) (Kind, bool) {
	var cErr *Error
	if !errors.As(err, &cErr) {
		return Internal, false
	}
	return cErr.Kind, true
}

const maxNodeLen = 80

func nodeString(node fmt.Stringer) string {
	s := node.String()
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i] + " ..."
	}
	if len(s) > maxNodeLen {
		s = s[:maxNodeLen] + "..."
	}
	return s
}

// Error returns a string description of the error.
func (err *Error) Error() (s string) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		s = fmt.Sprintf("recovered from panic when building error message: %T:\n%v", err.Err, string(debug.Stack()))
	}()
	var b strings.Builder
	b.WriteString(err.Kind.String())
	if err.Kind == Internal {
		b.WriteString(" (this is a bug in the compiler)")
	}
	if err.Node != nil {
		b.WriteString(" in ")
		b.WriteString(nodeString(err.Node))
	}
	b.WriteString(": ")
	b.WriteString(err.Err.Error())
	return b.String()
}

// Unwrap the error.
func (err *Error) Unwrap() error {
	return err.Err
}

// Format writes the error into the state of the formatter.
func (err *Error) Format(s fmt.State, verb rune) {
	format(err, s, verb)
}
