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

package graphcflag_test

import (
	"flag"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gx-org/graphc/build/ir"
	"github.com/gx-org/graphc/tools/graphcflag"
)

func TestFlags(t *testing.T) {
	tests := []struct {
		args []string
		list []string
		dev  ir.Device
	}{
		{
			args: nil,
			dev:  ir.CPU(0),
		},
		{
			args: []string{"--wrt=x, y", "--wrt", "z", "--device=cuda(1)"},
			list: []string{"x", "y", "z"},
			dev:  ir.CUDA(1),
		},
		{
			args: []string{"--wrt=,,a", "--device=gpu"},
			list: []string{"a"},
			dev:  ir.CUDA(0),
		},
	}
	for i, test := range tests {
		fs := flag.NewFlagSet("test", flag.ContinueOnError)
		list := graphcflag.StringListVar(fs, "wrt", "")
		dev := graphcflag.DeviceVar(fs, "device", ir.CPU(0), "")
		if err := fs.Parse(test.args); err != nil {
			t.Errorf("test %d: %v", i, err)
			continue
		}
		if diff := cmp.Diff(*list, test.list); diff != "" {
			t.Errorf("test %d: unexpected list:\n%s", i, diff)
		}
		if *dev != test.dev {
			t.Errorf("test %d: got device %s but want %s", i, *dev, test.dev)
		}
	}
}

func TestDeviceError(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	graphcflag.DeviceVar(fs, "device", ir.CPU(0), "")
	if err := fs.Parse([]string{"--device=tpu"}); err == nil {
		t.Errorf("expected an error for an unknown device")
	}
}
