package cmd

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/njchilds90/autodiff"
	"github.com/njchilds90/autodiff/internal/problem"
)

// problemFlags are shared by the commands that evaluate formulas.
type problemFlags struct {
	vars     []string
	formulas []string
	file     string
}

func (f *problemFlags) bind(cmd *cobra.Command) {
	fl := cmd.Flags()
	// StringArray, not StringSlice: formulas such as log(x, 2) contain commas.
	fl.StringArrayVarP(&f.vars, "var", "v", nil, "variable binding name=value (repeatable, in column order)")
	fl.StringArrayVarP(&f.formulas, "formula", "f", nil, "formula (repeatable, in row order)")
	fl.StringVar(&f.file, "file", "", "problem file (.toml, .yaml, .yml or .json)")
}

// load merges the problem file, if any, with the command line. Command line
// variables override file variables of the same name; command line formulas
// are appended.
func (f *problemFlags) load(args []string) (*problem.Problem, error) {
	p := &problem.Problem{}
	if f.file != "" {
		var err error
		if p, err = problem.Load(f.file); err != nil {
			return nil, err
		}
	}
	for _, kv := range f.vars {
		b, err := parseBinding(kv)
		if err != nil {
			return nil, err
		}
		replaced := false
		for i := range p.Variables {
			if p.Variables[i].Name == b.Name {
				p.Variables[i].Value = b.Value
				replaced = true
			}
		}
		if !replaced {
			p.Variables = append(p.Variables, b)
		}
	}
	p.Formulas = append(p.Formulas, f.formulas...)
	p.Formulas = append(p.Formulas, args...)
	if len(p.Formulas) == 0 {
		return nil, errors.Wrap(autodiff.ErrInvalidInput, "no formulas: pass --formula, a positional formula or --file")
	}
	return p, nil
}

func parseBinding(kv string) (autodiff.Binding, error) {
	name, value, ok := strings.Cut(kv, "=")
	if !ok {
		return autodiff.Binding{}, errors.Wrapf(autodiff.ErrInvalidInput, "variable %q: expected name=value", kv)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return autodiff.Binding{}, errors.Wrapf(autodiff.ErrInvalidInput, "variable %q: value %q is not numeric", name, value)
	}
	return autodiff.Binding{Name: strings.TrimSpace(name), Value: v}, nil
}

func (a *app) newJacobianCommand() *cobra.Command {
	var pf problemFlags
	cmd := &cobra.Command{
		Use:     "jacobian [FORMULA...]",
		Aliases: []string{"jac", "diff"},
		Short:   "Evaluate formulas and compute their Jacobian",
		Long: `Evaluate formulas and compute their Jacobian.

Rows follow formula order and columns follow variable order. Without --mode
forward mode is used when there are no more variables than formulas.

Examples:
  autodiff jacobian -v x=1 -v y=1 -f 'x**2 + y**2' -f 'exp(x + y)'
  autodiff jacobian --file problem.toml -o json
  autodiff jacobian --mode reverse -v x=0.5 -v y=4 'cos(x)+y**2'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := pf.load(args)
			if err != nil {
				return err
			}
			opts, err := a.options()
			if err != nil {
				return err
			}
			if p.Mode != autodiff.ModeAuto && !cmd.Flags().Changed("mode") {
				opts = append(opts, autodiff.WithMode(p.Mode))
			}
			if p.Extended {
				opts = append(opts, autodiff.WithExtendedFunctions())
			}
			res, err := autodiff.Differentiate(p.Variables, p.Formulas, opts...)
			if err != nil {
				return err
			}
			return writeResult(a.out, res, a.outputFormat())
		},
	}
	pf.bind(cmd)
	cmd.Flags().String("mode", "auto", "engine: auto, forward or reverse")
	cmd.Flags().Int("workers", 1, "independent passes to run concurrently")
	return cmd
}

func (a *app) newEvalCommand() *cobra.Command {
	var pf problemFlags
	cmd := &cobra.Command{
		Use:   "eval [FORMULA...]",
		Short: "Evaluate formulas without derivatives",
		Example: `  autodiff eval -v x=2 'x**3 - 1' 'log(x, 2)'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := pf.load(args)
			if err != nil {
				return err
			}
			opts, err := a.options()
			if err != nil {
				return err
			}
			if p.Extended {
				opts = append(opts, autodiff.WithExtendedFunctions())
			}
			vals, err := autodiff.Values(p.Variables, p.Formulas, opts...)
			if err != nil {
				return err
			}
			return writeValues(a.out, p.Formulas, vals, a.outputFormat())
		},
	}
	pf.bind(cmd)
	return cmd
}
