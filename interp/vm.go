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

package interp

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/gx-org/graphc/build/fmterr"
	"github.com/gx-org/graphc/build/ir"
	"github.com/gx-org/graphc/build/ops"
	"github.com/pkg/errors"
)

// StorageValue is a buffer allocated by alloc_storage.
// Tensors allocated in a storage are zero-initialized host tensors:
// the interpreter only checks that storages are used while they are alive.
type StorageValue struct {
	Size   int
	Device ir.Device
	freed  bool
}

var _ ir.Value = (*StorageValue)(nil)

// Type of the storage.
func (s *StorageValue) Type() ir.Type {
	return ir.Opaque(ir.StorageTypeName)
}

// Equal returns true if other is the same storage.
func (s *StorageValue) Equal(other ir.Value) bool {
	return s == other
}

// Freed returns true if the storage has been freed.
func (s *StorageValue) Freed() bool {
	return s.freed
}

func (s *StorageValue) String() string {
	return fmt.Sprintf("storage(%s, %s)", humanize.Bytes(uint64(s.Size)), s.Device)
}

func storageArg(args []ir.Value) (*StorageValue, error) {
	s, ok := args[0].(*StorageValue)
	if !ok {
		return nil, errors.Errorf("%s is not a storage", args[0])
	}
	if s.freed {
		return nil, errors.Errorf("%s used after being freed", s)
	}
	return s, nil
}

func (itp *Interpreter) allocStorage(args []ir.Value) (ir.Value, error) {
	size, ok := args[0].(*ir.IntsValue)
	if !ok || len(size.Vals) != 1 {
		return nil, errors.Errorf("invalid storage size %s", args[0])
	}
	dev, ok := args[2].(*ir.DeviceValue)
	if !ok {
		return nil, errors.Errorf("invalid device %s", args[2])
	}
	return &StorageValue{Size: size.Vals[0], Device: dev.Device}, nil
}

func (itp *Interpreter) allocTensor(args []ir.Value) (ir.Value, error) {
	s, err := storageArg(args)
	if err != nil {
		return nil, err
	}
	offset, ok := args[1].(*ir.IntsValue)
	if !ok || len(offset.Vals) != 1 {
		return nil, errors.Errorf("invalid offset %s", args[1])
	}
	dims, ok := args[2].(*ir.IntsValue)
	if !ok {
		return nil, errors.Errorf("invalid shape %s", args[2])
	}
	dt, ok := args[3].(*ir.DTypeValue)
	if !ok {
		return nil, errors.Errorf("invalid data type %s", args[3])
	}
	size, _ := ir.Tensor(dt.DType, dims.Vals...).ByteSize()
	if offset.Vals[0]+size > s.Size {
		return nil, errors.Errorf("tensor of %s at offset %d does not fit in %s", humanize.Bytes(uint64(size)), offset.Vals[0], s)
	}
	zeros, err := itp.reg.Lookup(ops.Zeros)
	if err != nil {
		return nil, err
	}
	return zeros.Eval([]ir.Value{dims, dt})
}

func (itp *Interpreter) free(args []ir.Value) (ir.Value, error) {
	s, err := storageArg(args)
	if err != nil {
		return nil, err
	}
	s.freed = true
	return &ir.TupleValue{}, nil
}

// invoke calls the callee of invoke_op with the input tuple.
// The result is returned as a tuple matching the output tensors.
func (itp *Interpreter) invoke(fr *frame, call *ir.Call) (ir.Value, error) {
	if len(call.Args) != 3 {
		return nil, fmterr.Errorf(fmterr.Arity, call, "%s expects 3 arguments but got %d", ops.InvokeOp, len(call.Args))
	}
	args, err := itp.evalAll(fr, call.Args[1:])
	if err != nil {
		return nil, err
	}
	ins, ok := args[0].(*ir.TupleValue)
	if !ok {
		return nil, errors.Errorf("inputs %s are not a tuple", args[0])
	}
	outs, ok := args[1].(*ir.TupleValue)
	if !ok {
		return nil, errors.Errorf("outputs %s are not a tuple", args[1])
	}
	var result ir.Value
	if op, isOp := call.Args[0].(*ir.OpRef); isOp {
		result, err = itp.callOp(&ir.Call{Op: op, Args: call.Args[1:]}, op.Name, ins.Fields)
	} else {
		var callee ir.Value
		if callee, err = itp.eval(fr, call.Args[0]); err != nil {
			return nil, err
		}
		result, err = itp.Apply(callee, ins.Fields...)
	}
	if err != nil {
		return nil, err
	}
	tpl, ok := result.(*ir.TupleValue)
	if !ok {
		tpl = &ir.TupleValue{Fields: []ir.Value{result}}
	}
	if len(tpl.Fields) != len(outs.Fields) {
		return nil, errors.Errorf("%s returned %d values but %d outputs have been allocated", call.Args[0], len(tpl.Fields), len(outs.Fields))
	}
	for i, field := range tpl.Fields {
		if !field.Type().Equal(outs.Fields[i].Type()) {
			return nil, errors.Errorf("output %d of %s: got %s but allocated %s", i, call.Args[0], field.Type(), outs.Fields[i].Type())
		}
	}
	return tpl, nil
}
