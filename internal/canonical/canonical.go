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

// Package canonical represents integer expressions over symbols in a canonical form.
//
// Expressions are used for tensor dimensions that are not known at compile time.
// Two expressions are equal if their canonical forms are equal.
package canonical

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type (
	// Expr is an integer expression in canonical form.
	Expr interface {
		fmt.Stringer
		// Compare returns true if two expressions are equal.
		Compare(Expr) bool
		// Value returns the integer value of the expression if it does not depend on any symbol.
		Value() (int, bool)
	}

	intExpr struct {
		val int
	}

	symbol struct {
		name string
	}

	// pExpr is a prefixed expression with its arguments sorted by their string representation.
	pExpr struct {
		op    string
		exprs []Expr
		str   string
	}
)

// Int returns a constant expression.
func Int(v int) Expr {
	return intExpr{val: v}
}

// Symbol returns a symbolic expression.
func Symbol(name string) Expr {
	return symbol{name: name}
}

func (e intExpr) Compare(other Expr) bool {
	o, ok := other.(intExpr)
	return ok && o.val == e.val
}

func (e intExpr) Value() (int, bool) {
	return e.val, true
}

func (e intExpr) String() string {
	return strconv.Itoa(e.val)
}

func (e symbol) Compare(other Expr) bool {
	o, ok := other.(symbol)
	return ok && o.name == e.name
}

func (e symbol) Value() (int, bool) {
	return 0, false
}

func (e symbol) String() string {
	return e.name
}

func prefixed(op string, xs ...Expr) *pExpr {
	sorted := append([]Expr{}, xs...)
	strs := make([]string, len(sorted))
	for i, x := range sorted {
		strs[i] = x.String()
	}
	idx := make([]int, len(sorted))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return strs[idx[i]] < strs[idx[j]]
	})
	exprs := make([]Expr, len(sorted))
	sortedStrs := make([]string, len(sorted))
	for i, j := range idx {
		exprs[i] = sorted[j]
		sortedStrs[i] = strs[j]
	}
	return &pExpr{
		op:    op,
		exprs: exprs,
		str:   fmt.Sprintf("(%s %s)", op, strings.Join(sortedStrs, " ")),
	}
}

func (e *pExpr) Compare(other Expr) bool {
	o, ok := other.(*pExpr)
	if !ok || o.op != e.op || len(o.exprs) != len(e.exprs) {
		return false
	}
	for i, x := range e.exprs {
		if !x.Compare(o.exprs[i]) {
			return false
		}
	}
	return true
}

func (e *pExpr) Value() (int, bool) {
	return 0, false
}

func (e *pExpr) String() string {
	return e.str
}

func flatten(op string, xs []Expr) []Expr {
	var r []Expr
	for _, x := range xs {
		if p, ok := x.(*pExpr); ok && p.op == op {
			r = append(r, p.exprs...)
			continue
		}
		r = append(r, x)
	}
	return r
}

// Add returns the canonical sum of expressions.
func Add(xs ...Expr) Expr {
	sum := 0
	var syms []Expr
	for _, x := range flatten("+", xs) {
		if v, ok := x.Value(); ok {
			sum += v
			continue
		}
		syms = append(syms, x)
	}
	if len(syms) == 0 {
		return Int(sum)
	}
	if sum != 0 {
		syms = append(syms, Int(sum))
	}
	if len(syms) == 1 {
		return syms[0]
	}
	return prefixed("+", syms...)
}

// Mul returns the canonical product of expressions.
func Mul(xs ...Expr) Expr {
	prod := 1
	var syms []Expr
	for _, x := range flatten("*", xs) {
		if v, ok := x.Value(); ok {
			prod *= v
			continue
		}
		syms = append(syms, x)
	}
	if len(syms) == 0 || prod == 0 {
		return Int(prod)
	}
	if prod != 1 {
		syms = append(syms, Int(prod))
	}
	if len(syms) == 1 {
		return syms[0]
	}
	return prefixed("*", syms...)
}

// Sub returns x-y.
func Sub(x, y Expr) Expr {
	return Add(x, Mul(Int(-1), y))
}

// FloorDiv returns the floor division of x by y.
// The order of the arguments is significant: the expression is not sorted.
func FloorDiv(x, y Expr) Expr {
	xv, xok := x.Value()
	yv, yok := y.Value()
	if yok && yv == 1 {
		return x
	}
	if xok && yok && yv != 0 {
		q := xv / yv
		if (xv%yv != 0) && ((xv < 0) != (yv < 0)) {
			q--
		}
		return Int(q)
	}
	return &pExpr{
		op:    "/",
		exprs: []Expr{x, y},
		str:   fmt.Sprintf("(/ %s %s)", x.String(), y.String()),
	}
}

// Symbols returns the names of the symbols an expression depends on.
func Symbols(x Expr) []string {
	var names []string
	var rec func(Expr)
	rec = func(x Expr) {
		switch xT := x.(type) {
		case symbol:
			names = append(names, xT.name)
		case *pExpr:
			for _, arg := range xT.exprs {
				rec(arg)
			}
		}
	}
	rec(x)
	return names
}
