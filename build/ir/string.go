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
	"fmt"
	"strings"
)

func (v *Var) String() string {
	return "%" + v.Name
}

func (v *GlobalVar) String() string {
	return "@" + v.Name
}

func (op *OpRef) String() string {
	return op.Name
}

func (c *Constant) String() string {
	tv, ok := c.Value.(*TensorValue)
	if !ok {
		return c.Value.String()
	}
	if tv.Array.Shape().Size() > 1 {
		return fmt.Sprintf("const<%s>", tv.Type())
	}
	return tv.String()
}

func joinExprs(es []Expr) string {
	ss := make([]string, len(es))
	for i, e := range es {
		ss[i] = e.String()
	}
	return strings.Join(ss, ", ")
}

func (c *Call) String() string {
	op := c.Op.String()
	if _, isFn := c.Op.(*Function); isFn {
		op = "(" + op + ")"
	}
	return fmt.Sprintf("%s(%s)", op, joinExprs(c.Args))
}

func paramString(v *Var) string {
	if v.Annot == nil {
		return v.String()
	}
	return v.String() + ": " + v.Annot.String()
}

// header returns the signature of a function.
// Literals start with "fn", global functions with "def @name".
func (f *Function) header(name string) string {
	var b strings.Builder
	if name == "" {
		b.WriteString("fn")
	} else {
		b.WriteString("def @" + name)
	}
	var attrs []string
	if f.Attrs.Primitive {
		attrs = append(attrs, "primitive")
	}
	if f.Attrs.Compiler != "" {
		attrs = append(attrs, "compiler="+f.Attrs.Compiler)
	}
	if len(attrs) > 0 {
		b.WriteString("[" + strings.Join(attrs, ", ") + "]")
	}
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = paramString(p)
	}
	if name == "" {
		b.WriteString(" ")
	}
	b.WriteString("(" + strings.Join(params, ", ") + ")")
	if f.IsClosure() {
		captures := make([]string, len(f.Captures))
		for i, c := range f.Captures {
			captures[i] = c.String()
		}
		b.WriteString(" capture(" + strings.Join(captures, ", ") + ")")
	}
	return b.String()
}

func (f *Function) String() string {
	return f.format("")
}

func (f *Function) format(name string) string {
	return fmt.Sprintf("%s {\n%s\n}", f.header(name), indent(f.Body.String()))
}

func (l *Let) String() string {
	var b strings.Builder
	bindings, body := Bindings(l)
	for _, binding := range bindings {
		fmt.Fprintf(&b, "let %s = %s;\n", binding.Var.String(), binding.Value.String())
	}
	b.WriteString(body.String())
	return b.String()
}

func (t *Tuple) String() string {
	if len(t.Fields) == 1 {
		return "(" + t.Fields[0].String() + ",)"
	}
	return "(" + joinExprs(t.Fields) + ")"
}

func (t *TupleGetItem) String() string {
	return fmt.Sprintf("%s.%d", t.Tuple.String(), t.Index)
}

func (e *If) String() string {
	return fmt.Sprintf("if (%s) {\n%s\n} else {\n%s\n}",
		e.Cond.String(),
		indent(e.Then.String()),
		indent(e.Else.String()),
	)
}

// String returns the text representation of the module.
func (m *Module) String() string {
	var ss []string
	for name, fn := range m.Funcs() {
		ss = append(ss, fn.format(name))
	}
	return strings.Join(ss, "\n\n")
}

// indent prefixes every line with a tabulation.
func indent(s string) string {
	var b strings.Builder
	for line := range strings.Lines(s) {
		b.WriteString("\t")
		b.WriteString(line)
	}
	return b.String()
}
