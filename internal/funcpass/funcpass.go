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

// Package funcpass runs function-local passes on all the functions of a
// module concurrently.
package funcpass

import (
	"runtime"
	"sync"

	"github.com/gx-org/graphc/build/ir"
	"go.uber.org/multierr"
)

// Func rewrites a function of a module.
// It must not access other functions of the module.
type Func func(name string, fn *ir.Function) (*ir.Function, error)

type job struct {
	index int
	name  string
	fn    *ir.Function
}

type config struct {
	numWorkers int
}

// Option configures how functions are processed.
type Option func(*config)

// Workers sets the number of goroutines processing functions.
// The number of CPUs is used if n is not positive.
func Workers(n int) Option {
	return func(cfg *config) {
		cfg.numWorkers = n
	}
}

// Run applies f to every function of a module.
// It returns a new module with the rewritten functions in the same order.
// Errors of all the functions are combined in function order.
func Run(mod *ir.Module, f Func, opts ...Option) (*ir.Module, error) {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	numWorkers := cfg.numWorkers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	var jobs []job
	for name, fn := range mod.Funcs() {
		jobs = append(jobs, job{index: len(jobs), name: name, fn: fn})
	}
	results := make([]*ir.Function, len(jobs))
	errs := make([]error, len(jobs))

	var wg sync.WaitGroup
	toWorker := make(chan job)
	for range min(numWorkers, max(len(jobs), 1)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range toWorker {
				results[j.index], errs[j.index] = f(j.name, j.fn)
			}
		}()
	}
	for _, j := range jobs {
		toWorker <- j
	}
	close(toWorker)
	wg.Wait()

	if err := multierr.Combine(errs...); err != nil {
		return nil, err
	}
	out := mod.Clone()
	for _, j := range jobs {
		out.Add(j.name, results[j.index])
	}
	return out, nil
}
