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
	"encoding/binary"
	"hash/fnv"
	"slices"
)

// StructuralEqual returns true if two expressions are equal up to the
// renaming of their variables (alpha-equivalence).
// Globals and operators are compared by name, constants by value.
func StructuralEqual(x, y Expr) bool {
	eq := equaler{
		xToY: make(map[*Var]*Var),
		yToX: make(map[*Var]*Var),
	}
	return eq.expr(x, y)
}

// ModuleEqual returns true if two modules have the same entry point and
// structurally equal functions with the same names.
func ModuleEqual(x, y *Module) bool {
	if x.Entry != y.Entry || x.Len() != y.Len() {
		return false
	}
	for name, xFn := range x.Funcs() {
		yFn, ok := y.Lookup(name)
		if !ok || !StructuralEqual(xFn, yFn) {
			return false
		}
	}
	return true
}

type equaler struct {
	xToY, yToX map[*Var]*Var
}

func (eq *equaler) define(x, y *Var) bool {
	if (x.Annot == nil) != (y.Annot == nil) {
		return false
	}
	if x.Annot != nil && !x.Annot.Equal(y.Annot) {
		return false
	}
	eq.xToY[x] = y
	eq.yToX[y] = x
	return true
}

func (eq *equaler) varRef(x, y *Var) bool {
	if mapped, ok := eq.xToY[x]; ok {
		return mapped == y
	}
	if _, ok := eq.yToX[y]; ok {
		return false
	}
	// Free variables are matched on first reference.
	return eq.define(x, y)
}

func (eq *equaler) exprs(xs, ys []Expr) bool {
	if len(xs) != len(ys) {
		return false
	}
	for i, x := range xs {
		if !eq.expr(x, ys[i]) {
			return false
		}
	}
	return true
}

func attrsEqual(x, y FuncAttrs) bool {
	return x.Primitive == y.Primitive &&
		x.Compiler == y.Compiler &&
		slices.Equal(x.FusedOps, y.FusedOps)
}

func (eq *equaler) expr(x, y Expr) bool {
	switch xT := x.(type) {
	case *Var:
		yT, ok := y.(*Var)
		return ok && eq.varRef(xT, yT)
	case *GlobalVar:
		yT, ok := y.(*GlobalVar)
		return ok && xT.Name == yT.Name
	case *OpRef:
		yT, ok := y.(*OpRef)
		return ok && xT.Name == yT.Name
	case *Constant:
		yT, ok := y.(*Constant)
		return ok && xT.Value.Equal(yT.Value)
	case *Call:
		yT, ok := y.(*Call)
		return ok && eq.expr(xT.Op, yT.Op) && eq.exprs(xT.Args, yT.Args)
	case *Function:
		yT, ok := y.(*Function)
		if !ok || len(xT.Params) != len(yT.Params) || len(xT.Captures) != len(yT.Captures) {
			return false
		}
		if !attrsEqual(xT.Attrs, yT.Attrs) {
			return false
		}
		for i, p := range xT.Params {
			if !eq.define(p, yT.Params[i]) {
				return false
			}
		}
		return eq.expr(xT.Body, yT.Body)
	case *Let:
		yT, ok := y.(*Let)
		if !ok || !eq.expr(xT.Value, yT.Value) {
			return false
		}
		if !eq.define(xT.Var, yT.Var) {
			return false
		}
		return eq.expr(xT.Body, yT.Body)
	case *Tuple:
		yT, ok := y.(*Tuple)
		return ok && eq.exprs(xT.Fields, yT.Fields)
	case *TupleGetItem:
		yT, ok := y.(*TupleGetItem)
		return ok && xT.Index == yT.Index && eq.expr(xT.Tuple, yT.Tuple)
	case *If:
		yT, ok := y.(*If)
		return ok && eq.expr(xT.Cond, yT.Cond) && eq.expr(xT.Then, yT.Then) && eq.expr(xT.Else, yT.Else)
	}
	return false
}

// StructuralHash returns a hash of an expression consistent with StructuralEqual:
// two structurally equal expressions have the same hash.
func StructuralHash(e Expr) uint64 {
	h := hasher{ids: make(map[*Var]int)}
	h.expr(e)
	return h.sum
}

type hasher struct {
	ids  map[*Var]int
	next int
	sum  uint64
}

func (h *hasher) mix(parts ...any) {
	f := fnv.New64a()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], h.sum)
	f.Write(buf[:])
	for _, p := range parts {
		switch pT := p.(type) {
		case string:
			f.Write([]byte(pT))
		case int:
			binary.LittleEndian.PutUint64(buf[:], uint64(pT))
			f.Write(buf[:])
		case bool:
			if pT {
				f.Write([]byte{1})
			} else {
				f.Write([]byte{0})
			}
		}
		f.Write([]byte{0xff})
	}
	h.sum = f.Sum64()
}

func (h *hasher) define(v *Var) {
	h.ids[v] = h.next
	h.next++
	annot := ""
	if v.Annot != nil {
		annot = v.Annot.String()
	}
	h.mix("def", annot)
}

func (h *hasher) expr(e Expr) {
	switch eT := e.(type) {
	case *Var:
		id, ok := h.ids[eT]
		if !ok {
			h.define(eT)
			id = h.ids[eT]
		}
		h.mix("var", id)
	case *GlobalVar:
		h.mix("global", eT.Name)
	case *OpRef:
		h.mix("op", eT.Name)
	case *Constant:
		h.mix("const", eT.Value.Type().String(), eT.Value.String())
	case *Call:
		h.mix("call", len(eT.Args))
		h.expr(eT.Op)
		for _, arg := range eT.Args {
			h.expr(arg)
		}
	case *Function:
		h.mix("fn", len(eT.Params), len(eT.Captures), eT.Attrs.Primitive, eT.Attrs.Compiler)
		for _, op := range eT.Attrs.FusedOps {
			h.mix(op)
		}
		for _, p := range eT.Params {
			h.define(p)
		}
		h.expr(eT.Body)
	case *Let:
		h.mix("let")
		h.expr(eT.Value)
		h.define(eT.Var)
		h.expr(eT.Body)
	case *Tuple:
		h.mix("tuple", len(eT.Fields))
		for _, f := range eT.Fields {
			h.expr(f)
		}
	case *TupleGetItem:
		h.mix("tgi", eT.Index)
		h.expr(eT.Tuple)
	case *If:
		h.mix("if")
		h.expr(eT.Cond)
		h.expr(eT.Then)
		h.expr(eT.Else)
	}
}
