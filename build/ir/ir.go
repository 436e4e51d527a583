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

// Package ir is the intermediate representation (IR) of tensor programs.
//
// Programs are functional: a module maps global names to functions, and
// function bodies are expressions. After normalization, bodies are in
// A-normal form (ANF): every intermediate result is bound by a Let to a
// variable and the arguments of calls are atomic expressions.
//
// Nodes are never mutated after construction. Passes rebuild the nodes they
// change and share the others.
package ir

import "fmt"

// ----------------------------------------------------------------------------
// Types of node in the tree.
type (
	// Node in the tree.
	Node interface {
		// node marks a structure as a node structure.
		// It prevents external implementations of the interface.
		node()
	}

	// Expr is an expression.
	Expr interface {
		Node
		fmt.Stringer
		expr()
	}
)

// ----------------------------------------------------------------------------
// Expressions.
type (
	// Var is a local variable. It is either a function parameter or bound by a Let.
	// Two variables are the same variable only if they are the same pointer.
	Var struct {
		Name string
		// Annot is an optional type annotation given when the variable is created.
		Annot Type
	}

	// GlobalVar references a function of the module.
	GlobalVar struct {
		Name string
	}

	// OpRef references an operator of the registry.
	OpRef struct {
		Name string
	}

	// Constant is a literal value.
	Constant struct {
		Value Value
	}

	// Call applies a callee to arguments.
	// The callee is an operator, a global function, a variable bound to a
	// function value or a function literal.
	Call struct {
		Op   Expr
		Args []Expr
	}

	// Function is a function literal.
	// A function with captured variables is a closure.
	Function struct {
		Params   []*Var
		Body     Expr
		Captures []*Var
		Attrs    FuncAttrs
	}

	// Let binds the result of Value to Var in Body.
	Let struct {
		Var   *Var
		Value Expr
		Body  Expr
	}

	// Tuple groups expressions.
	Tuple struct {
		Fields []Expr
	}

	// TupleGetItem projects a field of a tuple.
	TupleGetItem struct {
		Tuple Expr
		Index int
	}

	// If evaluates Then or Else depending on Cond.
	If struct {
		Cond, Then, Else Expr
	}
)

// FuncAttrs are attributes attached to a function.
type FuncAttrs struct {
	// Primitive marks a function produced by operator fusion.
	// It is compiled as a single kernel.
	Primitive bool
	// FusedOps lists the operators of a primitive function in program order.
	FusedOps []string
	// Compiler is the external backend compiling the function.
	// Empty when the function is compiled by the default backend.
	Compiler string
}

func (*Var) node()          {}
func (*Var) expr()          {}
func (*GlobalVar) node()    {}
func (*GlobalVar) expr()    {}
func (*OpRef) node()        {}
func (*OpRef) expr()        {}
func (*Constant) node()     {}
func (*Constant) expr()     {}
func (*Call) node()         {}
func (*Call) expr()         {}
func (*Function) node()     {}
func (*Function) expr()     {}
func (*Let) node()          {}
func (*Let) expr()          {}
func (*Tuple) node()        {}
func (*Tuple) expr()        {}
func (*TupleGetItem) node() {}
func (*TupleGetItem) expr() {}
func (*If) node()           {}
func (*If) expr()           {}

// NewVar returns a new variable.
func NewVar(name string, annot Type) *Var {
	return &Var{Name: name, Annot: annot}
}

// Op returns a reference to an operator.
func Op(name string) *OpRef {
	return &OpRef{Name: name}
}

// Global returns a reference to a global function.
func Global(name string) *GlobalVar {
	return &GlobalVar{Name: name}
}

// Const returns a constant expression.
func Const(v Value) *Constant {
	return &Constant{Value: v}
}

// CallOp returns a call to an operator.
func CallOp(name string, args ...Expr) *Call {
	return &Call{Op: Op(name), Args: args}
}

// NewFunc returns a function that does not capture any variable.
func NewFunc(params []*Var, body Expr) *Function {
	return &Function{Params: params, Body: body}
}

// Closure returns a function capturing its free variables.
func Closure(params []*Var, body Expr) *Function {
	fn := &Function{Params: params, Body: body}
	fn.Captures = FreeVars(fn)
	return fn
}

// IsClosure returns true if the function captures variables.
func (f *Function) IsClosure() bool {
	return len(f.Captures) > 0
}

// WithBody returns a copy of the function with a new body.
// Captures are recomputed for closures.
func (f *Function) WithBody(body Expr) *Function {
	ext := *f
	ext.Body = body
	if f.IsClosure() {
		ext.Captures = FreeVars(&Function{Params: f.Params, Body: body})
	}
	return &ext
}

// IsAtomic returns true if the expression is a variable, a global,
// an operator reference or a constant.
func IsAtomic(e Expr) bool {
	switch e.(type) {
	case *Var, *GlobalVar, *OpRef, *Constant:
		return true
	}
	return false
}

// OpName returns the name of the operator called by a call.
// It returns false if the callee is not an operator.
func OpName(e Expr) (string, bool) {
	call, ok := e.(*Call)
	if !ok {
		return "", false
	}
	op, ok := call.Op.(*OpRef)
	if !ok {
		return "", false
	}
	return op.Name, true
}

// IsOpCall returns true if the expression is a call to a given operator.
func IsOpCall(e Expr, name string) bool {
	got, ok := OpName(e)
	return ok && got == name
}
