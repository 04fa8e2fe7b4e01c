package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/njchilds90/autodiff"
	"github.com/njchilds90/autodiff/internal/style"
)

func formatNumber(v float64) string { return strconv.FormatFloat(v, 'g', 8, 64) }

func writeResult(w io.Writer, res *autodiff.Result, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case "plain":
		_, err := io.WriteString(w, res.Describe())
		return err
	case "latex":
		return writeLaTeX(w, res)
	case "table":
		return writeTable(w, res)
	}
	return fmt.Errorf("unknown output format %q", format)
}

// writeTable prints one row per formula: its value, then one column per
// variable holding the partial derivative.
func writeTable(w io.Writer, res *autodiff.Result) error {
	cols := []style.Column{
		{Name: "formula"},
		{Name: "value", Align: style.AlignRight},
	}
	for _, b := range res.Variables {
		cols = append(cols, style.Column{Name: "∂/∂" + b.Name, Align: style.AlignRight})
	}
	tbl := style.NewTable(cols...)
	for i, f := range res.Formulas {
		row := []string{f, formatNumber(res.Values[i])}
		for _, d := range res.Jacobian[i] {
			row = append(row, formatNumber(d))
		}
		tbl.AddRow(row...)
	}
	fmt.Fprintf(w, "%s %s  %s %s\n",
		style.Dim.Render("mode"), style.Info.Render(res.Mode.String()),
		style.Dim.Render("at"), res.Variables.String())
	_, err := io.WriteString(w, tbl.Render())
	return err
}

func writeLaTeX(w io.Writer, res *autodiff.Result) error {
	var sb strings.Builder
	sb.WriteString(`J = \begin{pmatrix}` + "\n")
	for i, row := range res.Jacobian {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = formatNumber(v)
		}
		sb.WriteString("  " + strings.Join(cells, " & "))
		if i < len(res.Jacobian)-1 {
			sb.WriteString(` \\`)
		}
		sb.WriteString("\n")
	}
	sb.WriteString(`\end{pmatrix}` + "\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

func writeValues(w io.Writer, formulas []string, vals []float64, format string) error {
	switch format {
	case "json":
		return json.NewEncoder(w).Encode(map[string]interface{}{"formulas": formulas, "func_evals": autodiff.Floats(vals)})
	case "table":
		tbl := style.NewTable(style.Column{Name: "formula"}, style.Column{Name: "value", Align: style.AlignRight})
		for i, f := range formulas {
			tbl.AddRow(f, formatNumber(vals[i]))
		}
		_, err := io.WriteString(w, tbl.Render())
		return err
	case "plain", "latex":
		for _, v := range vals {
			fmt.Fprintln(w, formatNumber(v))
		}
		return nil
	}
	return fmt.Errorf("unknown output format %q", format)
}
