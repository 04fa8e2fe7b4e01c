package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/njchilds90/autodiff"
	"github.com/njchilds90/autodiff/internal/style"
)

func (a *app) newParseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "parse FORMULA",
		Short: "Show the canonical form, LaTeX, expression tree and variables of a formula",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := autodiff.Parse(args[0], a.parseOptions()...)
			if err != nil {
				return err
			}
			syms := autodiff.FreeSymbols(e)
			if a.outputFormat() == "json" {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]interface{}{
					"string":       e.String(),
					"latex":        e.LaTeX(),
					"tree":         autodiff.JSONValue(e),
					"free_symbols": syms,
				})
			}
			tree, err := autodiff.ToJSON(e)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s %s\n", style.Bold.Render("canonical:"), e.String())
			fmt.Fprintf(a.out, "%s %s\n", style.Bold.Render("latex:    "), e.LaTeX())
			fmt.Fprintf(a.out, "%s %s\n", style.Bold.Render("variables:"), strings.Join(syms, ", "))
			fmt.Fprintf(a.out, "%s %s\n", style.Bold.Render("tree:     "), tree)
			return nil
		},
	}
}

func (a *app) newGraphCommand() *cobra.Command {
	var (
		pf       problemFlags
		validate bool
	)
	cmd := &cobra.Command{
		Use:   "graph FORMULA",
		Short: "Print the reverse-mode computation graph of a formula in Graphviz DOT",
		Example: `  autodiff graph -v x=1 -v y=2 'x*y + sin(x)' | dot -Tsvg > graph.svg`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := pf.load(args)
			if err != nil {
				return err
			}
			if len(p.Formulas) != 1 {
				return fmt.Errorf("graph takes exactly one formula, got %d", len(p.Formulas))
			}
			opts, err := a.options()
			if err != nil {
				return err
			}
			g, out, err := autodiff.BuildGraph(p.Variables, p.Formulas[0], opts...)
			if err != nil {
				return err
			}
			if validate {
				if err := g.Validate(); err != nil {
					return err
				}
				fmt.Fprintf(a.errOut, "%s graph is acyclic\n", style.Success.Render("ok"))
			}
			dot, err := g.DOT("formula")
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, dot)
			fmt.Fprintf(a.errOut, "%s nodes=%d edges=%d output=n%d value=%g\n",
				style.Dim.Render("#"), g.Len(), g.Edges(), out, g.Value(out))
			return nil
		},
	}
	pf.bind(cmd)
	cmd.Flags().BoolVar(&validate, "validate", false, "check that the graph is acyclic before printing it")
	return cmd
}

func (a *app) newFunctionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "functions",
		Short: "List the functions formulas may call",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names := autodiff.FunctionNames(a.v.GetBool("extended"))
			if a.outputFormat() == "json" {
				return json.NewEncoder(a.out).Encode(names)
			}
			tbl := style.NewTable(
				style.Column{Name: "function", Style: style.Info},
				style.Column{Name: "arguments"},
			)
			for _, name := range names {
				args := "1"
				if name == "log" {
					args = "1 or 2 (x, base)"
				}
				tbl.AddRow(name, args)
			}
			fmt.Fprintln(a.out, style.Heading.Render("Formula functions"))
			fmt.Fprint(a.out, tbl.Render())
			return nil
		},
	}
}
