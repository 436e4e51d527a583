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

package fmterr_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/gx-org/graphc/build/fmterr"
	"github.com/pkg/errors"
)

type node string

func (n node) String() string { return string(n) }

func TestIs(t *testing.T) {
	tests := []struct {
		err  error
		kind fmterr.Kind
		want bool
	}{
		{
			err:  fmterr.Errorf(fmterr.Arity, node("add(%x)"), "want 2 arguments"),
			kind: fmterr.Arity,
			want: true,
		},
		{
			err:  fmterr.Errorf(fmterr.Arity, node("add(%x)"), "want 2 arguments"),
			kind: fmterr.TypeInference,
			want: true,
		},
		{
			err:  fmterr.Errorf(fmterr.TypeInference, nil, "mismatch"),
			kind: fmterr.Arity,
			want: false,
		},
		{
			err:  errors.Wrap(fmterr.Errorf(fmterr.DeviceConflict, nil, "cpu vs gpu"), "pass ContextAnalysis"),
			kind: fmterr.DeviceConflict,
			want: true,
		},
		{
			err:  fmterr.Wrap(fmterr.Partition, nil, fmterr.Errorf(fmterr.UnknownOperator, nil, "foo")),
			kind: fmterr.UnknownOperator,
			want: true,
		},
		{
			err:  errors.New("plain"),
			kind: fmterr.Internal,
			want: false,
		},
	}
	for i, test := range tests {
		if got := fmterr.Is(test.err, test.kind); got != test.want {
			t.Errorf("test %d: Is(%v, %v) = %v but want %v", i, test.err, test.kind, got, test.want)
		}
	}
}

func TestErrorMessage(t *testing.T) {
	err := fmterr.Errorf(fmterr.NoGradientRule, node("foo(%x)\nmore"), "operator %s", "foo")
	got := err.Error()
	want := "no gradient rule in foo(%x) ...: operator foo"
	if got != want {
		t.Errorf("got %q but want %q", got, want)
	}
	if !strings.Contains(fmt.Sprintf("%+v", err), "operator foo") {
		t.Errorf("verbose format %+v does not contain the message", err)
	}
}

func TestErrors(t *testing.T) {
	var errs fmterr.Errors
	if errs.ToError() != nil {
		t.Fatalf("empty set returned a non-nil error")
	}
	first := fmterr.Errorf(fmterr.Partition, nil, "first")
	errs.Append(first)
	if got := errs.ToError(); got != first {
		t.Errorf("a set with a single error should return the error unchanged: got %v", got)
	}
	errs.Push(fmterr.PrefixWith("function main: "))
	errs.Appendf(fmterr.LivenessViolation, nil, "second")
	errs.Pop()
	all := errs.Errors()
	if len(all) != 2 {
		t.Fatalf("got %d errors but want 2: %v", len(all), all)
	}
	if !strings.HasPrefix(all[1].Error(), "function main: ") {
		t.Errorf("error %q has not been prefixed", all[1].Error())
	}
	if !fmterr.Is(errs.ToError(), fmterr.LivenessViolation) {
		t.Errorf("set does not expose its liveness violation error")
	}
}
