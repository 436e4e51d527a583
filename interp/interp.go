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

// Package interp evaluates IR programs.
//
// The interpreter is a reference implementation of the semantics of the IR:
// operators are evaluated with their constant evaluator, functions and
// closures are first-class values. Passes are tested by checking that the
// programs they produce compute the same values as their input.
package interp

import (
	"github.com/gx-org/graphc/build/fmterr"
	"github.com/gx-org/graphc/build/ir"
	"github.com/gx-org/graphc/build/ops"
	"github.com/pkg/errors"
)

// Interpreter runs the functions of a module.
type Interpreter struct {
	reg *ops.Registry
	mod *ir.Module
}

// New returns a new interpreter for a module.
func New(reg *ops.Registry, mod *ir.Module) *Interpreter {
	return &Interpreter{reg: reg, mod: mod}
}

// Run calls the entry function of the module.
func (itp *Interpreter) Run(args ...ir.Value) (ir.Value, error) {
	return itp.Call(itp.mod.Entry, args...)
}

// Call a global function given its name.
func (itp *Interpreter) Call(name string, args ...ir.Value) (ir.Value, error) {
	fn, err := itp.global(name, nil)
	if err != nil {
		return nil, err
	}
	return itp.Apply(fn, args...)
}

// Apply calls a function value.
func (itp *Interpreter) Apply(fn ir.Value, args ...ir.Value) (ir.Value, error) {
	fnV, ok := fn.(*FuncValue)
	if !ok {
		return nil, errors.Errorf("cannot call %s: not a function", fn)
	}
	return itp.apply(fnV, args)
}

// EvalExpr evaluates an expression without free variables.
func (itp *Interpreter) EvalExpr(e ir.Expr) (ir.Value, error) {
	return itp.eval(newFrame(nil), e)
}

func (itp *Interpreter) global(name string, node ir.Expr) (*FuncValue, error) {
	fn, ok := itp.mod.Lookup(name)
	if !ok {
		return nil, fmterr.Errorf(fmterr.TypeInference, node, "undefined global function @%s", name)
	}
	return &FuncValue{Fn: fn, Name: name}, nil
}

func (itp *Interpreter) apply(fn *FuncValue, args []ir.Value) (ir.Value, error) {
	args = append(append([]ir.Value{}, args...), fn.Bound...)
	if len(args) != len(fn.Fn.Params) {
		return nil, fmterr.Errorf(fmterr.Arity, fn.Fn, "function %s expects %d arguments but got %d", fn, len(fn.Fn.Params), len(args))
	}
	fr := newFrame(fn.Env)
	for i, param := range fn.Fn.Params {
		fr.define(param, args[i])
	}
	return itp.eval(fr, fn.Fn.Body)
}

func (itp *Interpreter) evalAll(fr *frame, es []ir.Expr) ([]ir.Value, error) {
	vals := make([]ir.Value, len(es))
	for i, e := range es {
		v, err := itp.eval(fr, e)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

func (itp *Interpreter) eval(fr *frame, e ir.Expr) (ir.Value, error) {
	// Let chains are evaluated in a loop.
	// Variables are unique: bindings are defined in the frame of the function.
	for {
		let, ok := e.(*ir.Let)
		if !ok {
			break
		}
		val, err := itp.eval(fr, let.Value)
		if err != nil {
			return nil, err
		}
		fr.define(let.Var, val)
		e = let.Body
	}
	switch eT := e.(type) {
	case *ir.Var:
		v, ok := fr.find(eT)
		if !ok {
			return nil, errors.Errorf("undefined variable %s", eT)
		}
		return v, nil
	case *ir.GlobalVar:
		return itp.global(eT.Name, eT)
	case *ir.OpRef:
		return nil, errors.Errorf("operator %s cannot be used as a value", eT.Name)
	case *ir.Constant:
		return eT.Value, nil
	case *ir.Function:
		return &FuncValue{Fn: eT, Env: fr}, nil
	case *ir.Call:
		return itp.call(fr, eT)
	case *ir.Tuple:
		fields, err := itp.evalAll(fr, eT.Fields)
		if err != nil {
			return nil, err
		}
		return &ir.TupleValue{Fields: fields}, nil
	case *ir.TupleGetItem:
		v, err := itp.eval(fr, eT.Tuple)
		if err != nil {
			return nil, err
		}
		tpl, ok := v.(*ir.TupleValue)
		if !ok {
			return nil, errors.Errorf("cannot project %s: not a tuple", v)
		}
		if eT.Index < 0 || eT.Index >= len(tpl.Fields) {
			return nil, errors.Errorf("index %d out of range for %s", eT.Index, v)
		}
		return tpl.Fields[eT.Index], nil
	case *ir.If:
		cond, err := itp.eval(fr, eT.Cond)
		if err != nil {
			return nil, err
		}
		b, err := Truth(cond)
		if err != nil {
			return nil, err
		}
		if b {
			return itp.eval(fr, eT.Then)
		}
		return itp.eval(fr, eT.Else)
	}
	return nil, errors.Errorf("expression %T not supported", e)
}

func (itp *Interpreter) call(fr *frame, call *ir.Call) (ir.Value, error) {
	if ir.IsOpCall(call, ops.InvokeOp) {
		return itp.invoke(fr, call)
	}
	args, err := itp.evalAll(fr, call.Args)
	if err != nil {
		return nil, err
	}
	op, isOp := call.Op.(*ir.OpRef)
	if !isOp {
		callee, err := itp.eval(fr, call.Op)
		if err != nil {
			return nil, err
		}
		return itp.Apply(callee, args...)
	}
	if vmOp, ok := vmOps[op.Name]; ok {
		meta, err := itp.reg.Lookup(op.Name)
		if err != nil {
			return nil, err
		}
		if err := meta.CheckArity(call, len(args)); err != nil {
			return nil, err
		}
		return vmOp(itp, args)
	}
	return itp.callOp(call, op.Name, args)
}

// vmOps are the operators evaluated by the interpreter itself.
var vmOps = map[string]func(*Interpreter, []ir.Value) (ir.Value, error){
	ops.MakeClosure: func(_ *Interpreter, args []ir.Value) (ir.Value, error) {
		return makeClosure(args)
	},
	ops.AllocStorage: (*Interpreter).allocStorage,
	ops.AllocTensor:  (*Interpreter).allocTensor,
	ops.Free:         (*Interpreter).free,
}

func (itp *Interpreter) callOp(call *ir.Call, name string, args []ir.Value) (ir.Value, error) {
	meta, err := itp.reg.Lookup(name)
	if err != nil {
		return nil, err
	}
	if err := meta.CheckArity(call, len(args)); err != nil {
		return nil, err
	}
	if meta.Eval == nil {
		return nil, errors.Errorf("operator %s cannot be evaluated", name)
	}
	out, err := meta.Eval(args)
	if err != nil {
		return nil, errors.WithMessagef(err, "evaluating %s", call)
	}
	return out, nil
}

func makeClosure(args []ir.Value) (ir.Value, error) {
	fn, ok := args[0].(*FuncValue)
	if !ok {
		return nil, errors.Errorf("cannot make a closure from %s: not a function", args[0])
	}
	env, ok := args[1].(*ir.TupleValue)
	if !ok {
		return nil, errors.Errorf("cannot make a closure with %s: not a tuple", args[1])
	}
	closure := *fn
	closure.Bound = append(append([]ir.Value{}, fn.Bound...), env.Fields...)
	return &closure, nil
}

// Truth returns the boolean value of a scalar.
func Truth(v ir.Value) (bool, error) {
	tv, ok := v.(*ir.TensorValue)
	if !ok {
		return false, errors.Errorf("condition %s is not a tensor", v)
	}
	atom, err := tv.Array.ToAtom()
	if err != nil {
		return false, err
	}
	switch atomT := atom.(type) {
	case bool:
		return atomT, nil
	case float32:
		return atomT != 0, nil
	case float64:
		return atomT != 0, nil
	case int32:
		return atomT != 0, nil
	case int64:
		return atomT != 0, nil
	}
	return false, errors.Errorf("condition of type %T not supported", atom)
}
