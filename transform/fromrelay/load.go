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

package fromrelay

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Load decodes a graph from YAML.
// Unknown fields are rejected.
func Load(r io.Reader) (*Graph, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	g := &Graph{}
	if err := dec.Decode(g); err != nil {
		return nil, errors.Wrap(err, "cannot decode graph")
	}
	return g, nil
}

// LoadFile decodes a graph from a YAML file.
func LoadFile(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()
	g, err := Load(f)
	if err != nil {
		return nil, errors.WithMessagef(err, "file %s", path)
	}
	return g, nil
}
