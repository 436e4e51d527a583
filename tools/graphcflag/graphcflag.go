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

// Package graphcflag provides flag types for graphc tools.
package graphcflag

import (
	"flag"
	"strings"

	"github.com/gx-org/graphc/build/ir"
)

type stringList struct {
	list *[]string
}

func (sl *stringList) String() string {
	if sl.list == nil {
		return ""
	}
	return strings.Join(*sl.list, ",")
}

func (sl *stringList) Set(values string) error {
	for _, value := range strings.Split(values, ",") {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		*sl.list = append(*sl.list, value)
	}
	return nil
}

// StringListVar defines a flag to pass a list of strings from the command line.
// Values are separated by commas and the flag can be repeated.
func StringListVar(fs *flag.FlagSet, name, doc string) *[]string {
	var list []string
	fs.Var(&stringList{&list}, name, doc)
	return &list
}

// StringList defines a string list flag in the command line flag set.
func StringList(name, doc string) *[]string {
	return StringListVar(flag.CommandLine, name, doc)
}

type deviceFlag struct {
	dev *ir.Device
}

func (d *deviceFlag) String() string {
	if d.dev == nil {
		return ""
	}
	return d.dev.String()
}

func (d *deviceFlag) Set(value string) error {
	dev, err := ir.ParseDevice(value)
	if err != nil {
		return err
	}
	*d.dev = dev
	return nil
}

// DeviceVar defines a flag to select a device, for example cpu(0) or cuda(1).
func DeviceVar(fs *flag.FlagSet, name string, value ir.Device, doc string) *ir.Device {
	dev := value
	fs.Var(&deviceFlag{&dev}, name, doc)
	return &dev
}

// Device defines a device flag in the command line flag set.
func Device(name string, value ir.Device, doc string) *ir.Device {
	return DeviceVar(flag.CommandLine, name, value, doc)
}
