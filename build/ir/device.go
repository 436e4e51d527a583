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

package ir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// DeviceKind is a kind of device.
type DeviceKind int

// Kinds of devices.
const (
	CPUKind DeviceKind = iota
	CUDAKind
)

var deviceKindNames = map[DeviceKind]string{
	CPUKind:  "cpu",
	CUDAKind: "cuda",
}

func (k DeviceKind) String() string {
	if s, ok := deviceKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("device%d", int(k))
}

// Device on which a computation runs and its data lives.
type Device struct {
	Kind DeviceKind
	ID   int
}

// CPU returns a CPU device.
func CPU(id int) Device {
	return Device{Kind: CPUKind, ID: id}
}

// CUDA returns a CUDA device.
func CUDA(id int) Device {
	return Device{Kind: CUDAKind, ID: id}
}

func (d Device) String() string {
	return fmt.Sprintf("%s(%d)", d.Kind, d.ID)
}

// ParseDevice parses a device from its string representation,
// for example "cpu", "cuda(1)" or "gpu".
func ParseDevice(s string) (Device, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	name, id := s, 0
	if open := strings.IndexByte(s, '('); open >= 0 {
		if !strings.HasSuffix(s, ")") {
			return Device{}, errors.Errorf("invalid device %q", s)
		}
		var err error
		if id, err = strconv.Atoi(s[open+1 : len(s)-1]); err != nil {
			return Device{}, errors.Errorf("invalid device id in %q: %v", s, err)
		}
		name = s[:open]
	}
	switch name {
	case "cpu":
		return CPU(id), nil
	case "cuda", "gpu":
		return CUDA(id), nil
	}
	return Device{}, errors.Errorf("unknown device %q", s)
}
