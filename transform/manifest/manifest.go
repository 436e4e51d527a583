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

// Package manifest makes the memory allocations of a program explicit.
//
// Each call producing tensors is replaced by:
//
//	let %storage = alloc_storage([size], [alignment], device, dtype);
//	let %tensor = alloc_tensor(%storage, [0], [dims...], dtype);
//	let %ins = (args...);
//	let %outs = (%tensor, ...);
//	let %res = invoke_op(callee, %ins, %outs);
//
// followed by free(%storage) after the last use of the tensors of the
// storage. Storages referenced by the result of their scope are not freed.
// The tensors produced by a conditional are allocated before it, and each
// branch copies its result into them.
package manifest

import (
	"github.com/gx-org/graphc/build/fmterr"
	"github.com/gx-org/graphc/build/ir"
	"github.com/gx-org/graphc/build/ops"
	"github.com/gx-org/graphc/transform/devctx"
)

// Alignment of the storages in bytes.
const Alignment = 64

// ManifestAlloc makes the memory allocations of a typed module explicit.
// Storages are allocated on the device computed by the context analysis.
// Values missing from the analysis are allocated on the default device.
// The returned module has no types.
func ManifestAlloc(reg *ops.Registry, mod *ir.Module, devices *devctx.Result, defaultDevice ir.Device) (*ir.Module, error) {
	if mod.Types() == nil {
		return nil, fmterr.Internalf(nil, "cannot manifest the allocations of an untyped module")
	}
	m := &manifester{
		reg:           reg,
		mod:           mod,
		devices:       devices,
		defaultDevice: defaultDevice,
	}
	out := mod.WithTypes(nil)
	for name, fn := range mod.Funcs() {
		if fn.Attrs.Primitive || fn.Attrs.Compiler != "" {
			continue
		}
		body, err := m.block(fn.Body)
		if err != nil {
			return nil, err
		}
		out.Add(name, fn.WithBody(body))
	}
	return out, nil
}

type manifester struct {
	reg           *ops.Registry
	mod           *ir.Module
	devices       *devctx.Result
	defaultDevice ir.Device
}

// kernel returns true if the callee of a call is compiled into a kernel
// writing its results into allocated tensors.
func (m *manifester) kernel(call *ir.Call) bool {
	switch op := call.Op.(type) {
	case *ir.OpRef:
		if op.Name == ops.DeviceCopy || op.Name == ops.AllReduce {
			return true
		}
		meta, err := m.reg.Lookup(op.Name)
		return err == nil && meta.Pattern != ops.Opaque
	case *ir.GlobalVar:
		fn, ok := m.mod.Lookup(op.Name)
		return ok && (fn.Attrs.Primitive || fn.Attrs.Compiler != "")
	}
	return false
}

// outputs returns the types of the tensors produced by a call.
// It returns false if the call does not produce tensors.
func outputs(typ ir.Type) ([]*ir.TensorType, bool) {
	switch typT := typ.(type) {
	case *ir.TensorType:
		return []*ir.TensorType{typT}, true
	case *ir.TupleType:
		var tensors []*ir.TensorType
		for _, field := range typT.Fields {
			tensor, ok := field.(*ir.TensorType)
			if !ok {
				return nil, false
			}
			tensors = append(tensors, tensor)
		}
		return tensors, len(tensors) > 0
	}
	return nil, false
}

func (m *manifester) device(v *ir.Var) ir.Device {
	if m.devices == nil {
		return m.defaultDevice
	}
	dev, ok := m.devices.Device(v)
	if !ok {
		return m.defaultDevice
	}
	return dev
}

func (m *manifester) block(e ir.Expr) (ir.Expr, error) {
	lets, result, err := m.lower(e)
	if err != nil {
		return nil, err
	}
	return insertFrees(lets.Wrap(result)), nil
}

// lower returns the bindings of a let-chain with explicit allocations.
func (m *manifester) lower(e ir.Expr) (*ir.LetList, ir.Expr, error) {
	bindings, result := ir.Bindings(e)
	lets := &ir.LetList{}
	for _, b := range bindings {
		if cond, ok := b.Value.(*ir.If); ok {
			tensors, single, ok := m.outputsOf(b.Var)
			if ok {
				if err := m.branches(lets, b.Var, cond, tensors, single); err != nil {
					return nil, nil, err
				}
				continue
			}
		}
		value, err := m.nested(b.Value)
		if err != nil {
			return nil, nil, err
		}
		call, ok := value.(*ir.Call)
		if !ok || !m.kernel(call) {
			lets.PushVar(b.Var, value)
			continue
		}
		tensors, single, ok := m.outputsOf(b.Var)
		if !ok {
			lets.PushVar(b.Var, value)
			continue
		}
		if err := m.invoke(lets, b.Var, call, tensors, single); err != nil {
			return nil, nil, err
		}
	}
	return lets, result, nil
}

// outputsOf returns the tensors bound to a variable.
// single is true when the variable is a tensor instead of a tuple.
func (m *manifester) outputsOf(v *ir.Var) (tensors []*ir.TensorType, single, ok bool) {
	typ, ok := m.mod.TypeOf(v)
	if !ok {
		return nil, false, false
	}
	tensors, ok = outputs(typ)
	_, single = typ.(*ir.TensorType)
	return tensors, single, ok
}

// branches allocates the result of a conditional in the enclosing scope.
// Each branch copies its result into the allocated tensors, so the storages
// allocated in a branch do not escape it and are freed there.
func (m *manifester) branches(lets *ir.LetList, v *ir.Var, cond *ir.If, tensors []*ir.TensorType, single bool) error {
	outs, err := m.alloc(lets, v, cond, tensors)
	if err != nil {
		return err
	}
	then, err := m.branch(cond.Then, outs, single)
	if err != nil {
		return err
	}
	els, err := m.branch(cond.Else, outs, single)
	if err != nil {
		return err
	}
	lets.PushVar(v, &ir.If{Cond: cond.Cond, Then: then, Else: els})
	return nil
}

func (m *manifester) branch(e ir.Expr, outs []ir.Expr, single bool) (ir.Expr, error) {
	lets, result, err := m.lower(e)
	if err != nil {
		return nil, err
	}
	fields := []ir.Expr{result}
	if !single {
		fields = make([]ir.Expr, len(outs))
		for i := range outs {
			fields[i] = lets.Push("field", &ir.TupleGetItem{Tuple: result, Index: i})
		}
	}
	copies := make([]ir.Expr, len(outs))
	for i, out := range outs {
		ins := lets.Push("ins", &ir.Tuple{Fields: []ir.Expr{fields[i]}})
		outsVar := lets.Push("outs", &ir.Tuple{Fields: []ir.Expr{out}})
		res := lets.Push("res", ir.CallOp(ops.InvokeOp, ir.Op(ops.Copy), ins, outsVar))
		copies[i] = lets.Push("copy", &ir.TupleGetItem{Tuple: res, Index: 0})
	}
	var res ir.Expr = &ir.Tuple{Fields: copies}
	if single {
		res = copies[0]
	}
	return insertFrees(lets.Wrap(res)), nil
}

func (m *manifester) nested(e ir.Expr) (ir.Expr, error) {
	switch eT := e.(type) {
	case *ir.Function:
		body, err := m.block(eT.Body)
		if err != nil {
			return nil, err
		}
		return eT.WithBody(body), nil
	case *ir.If:
		then, err := m.block(eT.Then)
		if err != nil {
			return nil, err
		}
		els, err := m.block(eT.Else)
		if err != nil {
			return nil, err
		}
		return &ir.If{Cond: eT.Cond, Then: then, Else: els}, nil
	}
	return e, nil
}

func dtypeConst(tt *ir.TensorType) *ir.Constant {
	return ir.Const(&ir.DTypeValue{DType: tt.DType})
}

// alloc allocates a storage and a tensor for each output of an expression bound to v.
func (m *manifester) alloc(lets *ir.LetList, v *ir.Var, node ir.Expr, tensors []*ir.TensorType) ([]ir.Expr, error) {
	dev := ir.Const(&ir.DeviceValue{Device: m.device(v)})
	outs := make([]ir.Expr, len(tensors))
	for i, tt := range tensors {
		dims, ok := tt.Static()
		if !ok {
			return nil, fmterr.Errorf(fmterr.TypeInference, node, "cannot allocate a tensor of dynamic shape %s", tt)
		}
		size, _ := tt.ByteSize()
		storage := lets.Push("storage", ir.CallOp(ops.AllocStorage,
			ir.Const(ir.Ints(size)),
			ir.Const(ir.Ints(Alignment)),
			dev,
			dtypeConst(tt),
		))
		outs[i] = lets.Push("tensor", ir.CallOp(ops.AllocTensor,
			storage,
			ir.Const(ir.Ints(0)),
			ir.Const(ir.Ints(dims...)),
			dtypeConst(tt),
		))
	}
	return outs, nil
}

// invoke allocates the outputs of a call and replaces the call by invoke_op.
// single is true when the call returns a tensor instead of a tuple.
func (m *manifester) invoke(lets *ir.LetList, v *ir.Var, call *ir.Call, tensors []*ir.TensorType, single bool) error {
	outs, err := m.alloc(lets, v, call, tensors)
	if err != nil {
		return err
	}
	ins := lets.Push("ins", &ir.Tuple{Fields: call.Args})
	outsVar := lets.Push("outs", &ir.Tuple{Fields: outs})
	res := lets.Push("res", ir.CallOp(ops.InvokeOp, call.Op, ins, outsVar))
	if single {
		lets.PushVar(v, &ir.TupleGetItem{Tuple: res, Index: 0})
		return nil
	}
	lets.PushVar(v, res)
	return nil
}

// insertFrees frees the storages of a let-chain after their last use.
func insertFrees(e ir.Expr) ir.Expr {
	l := Analyze(e)
	frees := make(map[int][]*ir.Var)
	for _, s := range l.Storages {
		if l.Escapes(s) || len(s.Frees) > 0 {
			continue
		}
		last := l.LastUse(s)
		frees[last] = append(frees[last], s.Var)
	}
	if len(frees) == 0 {
		return e
	}
	var lets ir.LetList
	for i, b := range l.Bindings {
		lets.PushVar(b.Var, b.Value)
		for _, s := range frees[i] {
			lets.Push("free", ir.CallOp(ops.Free, s))
		}
	}
	return lets.Wrap(l.Result)
}
