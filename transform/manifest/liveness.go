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

package manifest

import (
	"slices"

	"github.com/gx-org/graphc/build/fmterr"
	"github.com/gx-org/graphc/build/ir"
	"github.com/gx-org/graphc/build/ops"
)

// Tensor is a tensor allocated in a storage.
type Tensor struct {
	Var     *ir.Var
	Storage *ir.Var
	Offset  int
	Size    int
	// Alloc is the index of the alloc_tensor binding.
	Alloc int
}

// Storage is a storage allocated by alloc_storage.
type Storage struct {
	Var    *ir.Var
	Size   int
	Device ir.Device
	// Alloc is the index of the alloc_storage binding.
	Alloc int
	// Frees are the indices of the free bindings releasing the storage.
	Frees   []int
	Tensors []*Tensor
}

// Liveness is the lifetime of the storages and tensors allocated in a let-chain.
// A value referencing a tensor, like a tuple or the result of invoke_op,
// keeps the tensor alive.
type Liveness struct {
	Bindings []ir.Binding
	Result   ir.Expr

	// Storages in allocation order.
	Storages []*Storage

	storages map[*ir.Var]*Storage
	tensors  map[*ir.Var]*Tensor
	// aliases maps a variable to the storage and tensor variables it may reference.
	aliases map[*ir.Var][]*ir.Var
	lastUse map[*ir.Var]int
	escapes map[*ir.Var]bool
}

// Analyze computes the liveness of the allocations of a let-chain.
func Analyze(e ir.Expr) *Liveness {
	bindings, result := ir.Bindings(e)
	l := &Liveness{
		Bindings: bindings,
		Result:   result,
		storages: make(map[*ir.Var]*Storage),
		tensors:  make(map[*ir.Var]*Tensor),
		aliases:  make(map[*ir.Var][]*ir.Var),
		lastUse:  make(map[*ir.Var]int),
		escapes:  make(map[*ir.Var]bool),
	}
	for i, b := range bindings {
		l.binding(i, b)
	}
	for _, v := range ir.FreeVars(result) {
		for _, res := range l.aliases[v] {
			l.escapes[res] = true
		}
	}
	return l
}

func intArg(call *ir.Call, i int) (int, bool) {
	c, ok := call.Args[i].(*ir.Constant)
	if !ok {
		return 0, false
	}
	ints, ok := c.Value.(*ir.IntsValue)
	if !ok || len(ints.Vals) != 1 {
		return 0, false
	}
	return ints.Vals[0], true
}

func (l *Liveness) binding(i int, b ir.Binding) {
	call, _ := b.Value.(*ir.Call)
	name, _ := ir.OpName(b.Value)
	switch name {
	case ops.AllocStorage:
		s := &Storage{Var: b.Var, Alloc: i}
		s.Size, _ = intArg(call, 0)
		if c, ok := call.Args[2].(*ir.Constant); ok {
			if dev, ok := c.Value.(*ir.DeviceValue); ok {
				s.Device = dev.Device
			}
		}
		l.Storages = append(l.Storages, s)
		l.storages[b.Var] = s
		l.aliases[b.Var] = []*ir.Var{b.Var}
		return
	case ops.Free:
		for _, v := range ir.FreeVars(b.Value) {
			if s, ok := l.storages[v]; ok {
				s.Frees = append(s.Frees, i)
			}
		}
		return
	case ops.AllocTensor:
		l.use(i, call.Args[0])
		t := &Tensor{Var: b.Var, Alloc: i}
		if s, ok := call.Args[0].(*ir.Var); ok {
			t.Storage = s
			if storage, ok := l.storages[s]; ok {
				storage.Tensors = append(storage.Tensors, t)
			}
		}
		t.Offset, _ = intArg(call, 1)
		t.Size = tensorSize(call)
		l.tensors[b.Var] = t
		l.aliases[b.Var] = []*ir.Var{b.Var}
		return
	case ops.InvokeOp:
		l.use(i, b.Value)
		l.aliases[b.Var] = l.aliasesOf(call.Args[2])
		return
	}
	l.use(i, b.Value)
	l.aliases[b.Var] = l.aliasesOf(b.Value)
}

func tensorSize(call *ir.Call) int {
	dims, ok := call.Args[2].(*ir.Constant)
	if !ok {
		return 0
	}
	dt, ok := call.Args[3].(*ir.Constant)
	if !ok {
		return 0
	}
	ints, ok := dims.Value.(*ir.IntsValue)
	if !ok {
		return 0
	}
	dtv, ok := dt.Value.(*ir.DTypeValue)
	if !ok {
		return 0
	}
	size, _ := ir.Tensor(dtv.DType, ints.Vals...).ByteSize()
	return size
}

func (l *Liveness) aliasesOf(e ir.Expr) []*ir.Var {
	var out []*ir.Var
	for _, v := range ir.FreeVars(e) {
		for _, res := range l.aliases[v] {
			if !slices.Contains(out, res) {
				out = append(out, res)
			}
		}
	}
	return out
}

func (l *Liveness) use(i int, e ir.Expr) {
	for _, res := range l.aliasesOf(e) {
		l.lastUse[res] = i
	}
}

// Escapes returns true if a storage, or one of its tensors, is referenced by the result.
func (l *Liveness) Escapes(s *Storage) bool {
	if l.escapes[s.Var] {
		return true
	}
	for _, t := range s.Tensors {
		if l.escapes[t.Var] {
			return true
		}
	}
	return false
}

// LastUse returns the index of the last binding using a storage or one of its tensors.
func (l *Liveness) LastUse(s *Storage) int {
	last := s.Alloc
	if i, ok := l.lastUse[s.Var]; ok {
		last = max(last, i)
	}
	for _, t := range s.Tensors {
		last = max(last, l.TensorLastUse(t))
	}
	return last
}

// TensorLastUse returns the index of the last binding using a tensor.
// Tensors referenced by the result are alive until the end of the chain.
func (l *Liveness) TensorLastUse(t *Tensor) int {
	if l.escapes[t.Var] {
		return len(l.Bindings)
	}
	if i, ok := l.lastUse[t.Var]; ok {
		return max(i, t.Alloc)
	}
	return t.Alloc
}

// Storage returns the storage allocated by a variable.
func (l *Liveness) Storage(v *ir.Var) (*Storage, bool) {
	s, ok := l.storages[v]
	return s, ok
}

// Tensor returns the tensor allocated by a variable.
func (l *Liveness) Tensor(v *ir.Var) (*Tensor, bool) {
	t, ok := l.tensors[v]
	return t, ok
}

// Aliases returns the storage and tensor variables a variable may reference.
func (l *Liveness) Aliases(v *ir.Var) []*ir.Var {
	return l.aliases[v]
}

// Verify checks that no storage is used after being freed and that two
// tensors alive at the same time do not overlap in the same storage.
func (l *Liveness) Verify() error {
	for _, s := range l.Storages {
		if len(s.Frees) > 1 {
			return fmterr.Errorf(fmterr.LivenessViolation, s.Var, "storage %s freed %d times", s.Var, len(s.Frees))
		}
		if len(s.Frees) == 0 {
			continue
		}
		if l.Escapes(s) {
			return fmterr.Errorf(fmterr.LivenessViolation, s.Var, "storage %s is freed but escapes", s.Var)
		}
		if last := l.LastUse(s); last > s.Frees[0] {
			return fmterr.Errorf(fmterr.LivenessViolation, l.Bindings[last].Value, "storage %s used after being freed", s.Var)
		}
	}
	for _, s := range l.Storages {
		for i, x := range s.Tensors {
			for _, y := range s.Tensors[i+1:] {
				if !l.overlap(x, y) {
					continue
				}
				return fmterr.Errorf(fmterr.LivenessViolation, y.Var, "tensors %s and %s are alive at the same time in storage %s", x.Var, y.Var, s.Var)
			}
		}
	}
	return nil
}

// overlap returns true if two tensors share bytes of a storage while both are alive.
func (l *Liveness) overlap(x, y *Tensor) bool {
	if x.Offset+x.Size <= y.Offset || y.Offset+y.Size <= x.Offset {
		return false
	}
	return x.Alloc <= l.TensorLastUse(y) && y.Alloc <= l.TensorLastUse(x)
}
