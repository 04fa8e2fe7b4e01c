package autodiff

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Describe renders a human-readable summary: the variables, the formulas,
// their values and the Jacobian.
func (r *Result) Describe() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Mode: %s\n", r.Mode)
	sb.WriteString("Variables:\n")
	for _, b := range r.Variables {
		fmt.Fprintf(&sb, "  %s = %g\n", b.Name, b.Value)
	}
	sb.WriteString("Formulas:\n")
	for i, f := range r.Formulas {
		fmt.Fprintf(&sb, "  f%d = %s\n", i, f)
	}
	sb.WriteString("Function evaluations:\n")
	for i, v := range r.Values {
		fmt.Fprintf(&sb, "  f%d = %g\n", i, v)
	}
	sb.WriteString("Jacobian:\n")
	d := r.Dense()
	if d == nil {
		sb.WriteString("  (no variables)\n")
		return sb.String()
	}
	fmt.Fprintf(&sb, "  %v\n", mat.Formatted(d, mat.Prefix("  "), mat.Squeeze()))
	return sb.String()
}

func (r *Result) String() string { return r.Describe() }
