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

// Package memshare reuses the storages released by a program for later allocations.
package memshare

import (
	"github.com/dustin/go-humanize"
	"github.com/gx-org/graphc/build/ir"
	"github.com/gx-org/graphc/build/ops"
	"github.com/gx-org/graphc/transform/manifest"
	"k8s.io/klog/v2"
)

// MemShare replaces the allocation of a storage by a storage previously
// freed on the same device with enough capacity. The free of the reused
// storage is removed. The resulting allocations are verified: an unsound
// reuse is reported as a liveness violation.
func MemShare(mod *ir.Module) (*ir.Module, error) {
	out := mod.WithTypes(nil)
	for name, fn := range mod.Funcs() {
		if fn.Attrs.Primitive || fn.Attrs.Compiler != "" {
			continue
		}
		body, err := block(fn.Body)
		if err != nil {
			return nil, err
		}
		out.Add(name, fn.WithBody(body))
	}
	if klog.V(1).Enabled() {
		klog.Infof("memory sharing: peak allocation %s -> %s", humanize.Bytes(PeakBytes(mod)), humanize.Bytes(PeakBytes(out)))
	}
	return out, nil
}

// pooled is a freed storage available for reuse.
type pooled struct {
	storage *ir.Var
	size    int
	device  ir.Device
	free    int
}

func block(e ir.Expr) (ir.Expr, error) {
	bindings, result := ir.Bindings(e)
	nestedBindings := make([]ir.Binding, len(bindings))
	changed := false
	for i, b := range bindings {
		value, err := nested(b.Value)
		if err != nil {
			return nil, err
		}
		changed = changed || value != b.Value
		nestedBindings[i] = ir.Binding{Var: b.Var, Value: value}
	}
	if changed {
		e = ir.Rebuild(nestedBindings, result)
	}
	l := manifest.Analyze(e)

	var pool []pooled
	reused := make(map[*ir.Var]pooled)
	drop := make(map[int]bool)
	subst := make(map[*ir.Var]ir.Expr)
	for i, b := range l.Bindings {
		name, _ := ir.OpName(b.Value)
		switch name {
		case ops.Free:
			arg, ok := b.Value.(*ir.Call).Args[0].(*ir.Var)
			if !ok {
				continue
			}
			s, ok := l.Storage(arg)
			if !ok || len(s.Frees) != 1 {
				continue
			}
			p := pooled{storage: s.Var, size: s.Size, device: s.Device, free: i}
			if r, ok := reused[s.Var]; ok {
				p.storage, p.size = r.storage, r.size
			}
			pool = append(pool, p)
		case ops.AllocStorage:
			s, _ := l.Storage(b.Var)
			best := -1
			for k, p := range pool {
				if p.device != s.Device || p.size < s.Size {
					continue
				}
				if best < 0 || p.size < pool[best].size {
					best = k
				}
			}
			if best < 0 {
				continue
			}
			p := pool[best]
			pool = append(pool[:best], pool[best+1:]...)
			reused[b.Var] = p
			subst[b.Var] = p.storage
			drop[i] = true
			drop[p.free] = true
		}
	}
	if len(subst) == 0 {
		return e, nil
	}
	var kept []ir.Binding
	for i, b := range l.Bindings {
		if drop[i] {
			continue
		}
		kept = append(kept, ir.Binding{Var: b.Var, Value: ir.Substitute(b.Value, subst)})
	}
	out := ir.Rebuild(kept, ir.Substitute(l.Result, subst))
	if err := manifest.Analyze(out).Verify(); err != nil {
		return nil, err
	}
	return out, nil
}

func nested(e ir.Expr) (ir.Expr, error) {
	switch eT := e.(type) {
	case *ir.Function:
		body, err := block(eT.Body)
		if err != nil {
			return nil, err
		}
		if body == eT.Body {
			return e, nil
		}
		return eT.WithBody(body), nil
	case *ir.If:
		then, err := block(eT.Then)
		if err != nil {
			return nil, err
		}
		els, err := block(eT.Else)
		if err != nil {
			return nil, err
		}
		return &ir.If{Cond: eT.Cond, Then: then, Else: els}, nil
	}
	return e, nil
}

// PeakBytes returns the maximum number of bytes allocated at the same time
// by any function of a module.
func PeakBytes(mod *ir.Module) uint64 {
	var peak uint64
	for _, fn := range mod.Funcs() {
		peak = max(peak, peakOf(fn.Body))
	}
	return peak
}

func peakOf(e ir.Expr) uint64 {
	l := manifest.Analyze(e)
	allocs := make(map[int]uint64)
	frees := make(map[int]uint64)
	for _, s := range l.Storages {
		allocs[s.Alloc] += uint64(s.Size)
		for _, i := range s.Frees {
			frees[i] += uint64(s.Size)
		}
	}
	var cur, peak uint64
	for i, b := range l.Bindings {
		cur += allocs[i]
		var inner uint64
		switch value := b.Value.(type) {
		case *ir.Function:
			inner = peakOf(value.Body)
		case *ir.If:
			inner = max(peakOf(value.Then), peakOf(value.Else))
		}
		peak = max(peak, cur+inner)
		cur -= frees[i]
	}
	return peak
}
