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

// Package ops is the registry of operators.
//
// The registry maps an operator name to its metadata: arity, fusion pattern,
// purity, and the optional rules used by the passes (shape inference,
// constant evaluation, and gradient).
package ops

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gx-org/graphc/build/fmterr"
	"github.com/gx-org/graphc/build/ir"
	"github.com/pkg/errors"
)

// PatternKind classifies operators for fusion.
// Kinds are ordered: a fused group has the kind of its highest member.
type PatternKind int

// Operator pattern kinds.
const (
	// ElemWise operators map each element of the input to an element of the output.
	ElemWise PatternKind = iota
	// Broadcast operators are element-wise with broadcasting.
	Broadcast
	// Injective operators map each output element to one input element (reshape, transpose).
	Injective
	// Reduce operators reduce axes of their input.
	Reduce
	// OutEWiseFusable operators (matmul, convolution) can be fused with the element-wise operators consuming their output.
	OutEWiseFusable
	// Opaque operators are never fused.
	Opaque
)

var patternNames = map[PatternKind]string{
	ElemWise:        "ElemWise",
	Broadcast:       "Broadcast",
	Injective:       "Injective",
	Reduce:          "Reduce",
	OutEWiseFusable: "OutEWiseFusable",
	Opaque:          "Opaque",
}

func (k PatternKind) String() string {
	if s, ok := patternNames[k]; ok {
		return s
	}
	return fmt.Sprintf("PatternKind(%d)", int(k))
}

// Variadic is the arity of operators accepting any number of arguments.
const Variadic = -1

type (
	// ShapeArgs are the arguments given to a shape rule.
	ShapeArgs struct {
		// Call being typed.
		Call *ir.Call
		// Types of the arguments.
		Types []ir.Type
		// Values of the arguments that are constants. nil for other arguments.
		Values []ir.Value
	}

	// ShapeRule computes the type of the result of an operator.
	ShapeRule func(ShapeArgs) (ir.Type, error)

	// ConstEval evaluates an operator given the values of its arguments.
	ConstEval func(args []ir.Value) (ir.Value, error)

	// GradRule returns the gradient of each argument of a call given the
	// gradient of its result. A nil gradient means no contribution.
	// The rule binds the expressions it needs in the let list of the
	// arguments so that the returned expressions are atomic.
	GradRule func(*GradArgs) ([]ir.Expr, error)

	// Meta is the metadata of an operator.
	Meta struct {
		Name string
		// Arity is the number of arguments or Variadic.
		Arity   int
		Pattern PatternKind
		// Pure operators have no side effect: calls can be removed or reordered.
		Pure bool
		// NonDifferentiable operators have a zero gradient.
		NonDifferentiable bool

		Infer ShapeRule
		Eval  ConstEval
		Grad  GradRule
	}
)

// GradArgs are the arguments given to a gradient rule.
type GradArgs struct {
	// Call to differentiate. Its arguments are atomic.
	Call *ir.Call
	// Out is the variable bound to the result of the call.
	Out *ir.Var
	// DOut is the gradient of the result.
	DOut ir.Expr
	// ArgTypes and OutType are the types of the arguments and of the result.
	ArgTypes []ir.Type
	OutType  ir.Type
	// Lets receives the bindings computing the gradients.
	Lets *ir.LetList
}

// Node returns the call being typed as an error location.
func (a ShapeArgs) Node() fmt.Stringer {
	if a.Call == nil {
		return nil
	}
	return a.Call
}

// Errorf returns a type inference error located at the call being typed.
func (a ShapeArgs) Errorf(format string, args ...any) error {
	return fmterr.Errorf(fmterr.TypeInference, a.Node(), format, args...)
}

// Arg returns the ith argument of the call.
func (g *GradArgs) Arg(i int) ir.Expr {
	return g.Call.Args[i]
}

// Bind binds a call to an operator and returns the bound variable.
func (g *GradArgs) Bind(op string, args ...ir.Expr) *ir.Var {
	return g.Lets.Push("g", ir.CallOp(op, args...))
}

// CheckArity returns an error if a number of arguments does not match the arity of the operator.
func (m *Meta) CheckArity(node fmt.Stringer, n int) error {
	if m.Arity == Variadic || m.Arity == n {
		return nil
	}
	return fmterr.Errorf(fmterr.Arity, node, "operator %s expects %d arguments but got %d", m.Name, m.Arity, n)
}

// Registry maps operator names to their metadata.
// A registry is safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]*Meta
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]*Meta)}
}

// Register operators. It is an error to register the same name twice.
func (r *Registry) Register(metas ...*Meta) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range metas {
		if m.Name == "" {
			return errors.Errorf("cannot register an operator without name")
		}
		if _, ok := r.ops[m.Name]; ok {
			return errors.Errorf("operator %s already registered", m.Name)
		}
		r.ops[m.Name] = m
	}
	return nil
}

// Lookup returns the metadata of an operator.
func (r *Registry) Lookup(name string) (*Meta, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.ops[name]
	if !ok {
		return nil, fmterr.Errorf(fmterr.UnknownOperator, nil, "operator %q not registered", name)
	}
	return m, nil
}

// Names returns the sorted names of all registered operators.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsPure returns true if evaluating an expression has no side effect.
// Calls to functions that are not operators are assumed to have side effects.
func (r *Registry) IsPure(e ir.Expr) bool {
	pure := true
	ir.Walk(e, func(e ir.Expr) bool {
		if !pure {
			return false
		}
		switch eT := e.(type) {
		case *ir.Function:
			// Creating a function value has no effect.
			return false
		case *ir.Call:
			op, ok := eT.Op.(*ir.OpRef)
			if !ok {
				pure = false
				return false
			}
			m, err := r.Lookup(op.Name)
			if err != nil || !m.Pure {
				pure = false
				return false
			}
		}
		return true
	})
	return pure
}
