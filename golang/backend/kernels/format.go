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

package kernels

import (
	"fmt"
	"strings"
)

// format returns the Go literal of an array, for example [2]float32{1, 2}.
// Scalars are printed as conversions: float32(1).
func format[T element](values []T, dims []int) string {
	var b strings.Builder
	size := 1
	for _, d := range dims {
		fmt.Fprintf(&b, "[%d]", d)
		size *= d
	}
	if size != len(values) {
		return fmt.Sprintf("invalid array: %d values for axes %v", len(values), dims)
	}
	fmt.Fprintf(&b, "%T", *new(T))
	if len(dims) == 0 {
		fmt.Fprintf(&b, "(%s)", formatValue(values[0]))
		return b.String()
	}
	formatAxis(&b, values, dims, "")
	return b.String()
}

func formatAxis[T element](b *strings.Builder, values []T, dims []int, indent string) {
	if len(dims) == 1 {
		vals := make([]string, len(values))
		for i, v := range values {
			vals[i] = formatValue(v)
		}
		fmt.Fprintf(b, "{%s}", strings.Join(vals, ", "))
		return
	}
	if dims[0] == 0 {
		b.WriteString("{}")
		return
	}
	b.WriteString("{\n")
	stride := len(values) / dims[0]
	for i := range dims[0] {
		b.WriteString(indent + "\t")
		formatAxis(b, values[i*stride:(i+1)*stride], dims[1:], indent+"\t")
		b.WriteString(",\n")
	}
	b.WriteString(indent + "}")
}

func formatValue[T element](x T) string {
	var s string
	switch xT := any(x).(type) {
	case float32:
		s = fmt.Sprintf("%.6f", xT)
	case float64:
		s = fmt.Sprintf("%.10f", xT)
	default:
		return fmt.Sprint(x)
	}
	// Trailing zeros after the decimal point are dropped.
	if strings.ContainsRune(s, '.') {
		s = strings.TrimSuffix(strings.TrimRight(s, "0"), ".")
	}
	return s
}
