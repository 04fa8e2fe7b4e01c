package autodiff

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// runReverse builds one graph per formula with a fresh leaf per variable,
// records the output value, and reads one Jacobian row off the graph.
func runReverse(p *compiled, o options) (*Result, error) {
	res := p.result(ModeReverse)
	row := func(j int) error {
		f := p.formulas[j]
		g, out, leaves, err := record(f, p.vars)
		if err != nil {
			return errors.Wrapf(err, "formula %d", j)
		}
		res.Values[j] = g.Value(out)
		copy(res.Jacobian[j], g.Gradient(out, leaves))
		o.logger.WithFields(logrus.Fields{
			"formula": j,
			"nodes":   g.Len(),
			"edges":   g.Edges(),
		}).Debug("reverse pass done")
		return nil
	}
	if err := parallel(o.workers, len(p.formulas), row); err != nil {
		return nil, err
	}
	return res, nil
}

// record evaluates f on a new Graph whose first len(vars) nodes are the
// variable leaves, in order.
func record(f *Formula, vars Bindings) (*Graph, Node, []Node, error) {
	g := NewGraph()
	leaves := make([]Node, len(vars))
	env := make(map[string]Node, len(vars))
	for i, b := range vars {
		leaves[i] = g.Var(b.Value)
		env[b.Name] = leaves[i]
	}
	out, err := Evaluate(f.Expr, g.Algebra(), env)
	if err != nil {
		return nil, -1, nil, withFormula(err, f.Source)
	}
	if err := g.CheckExponents(leaves); err != nil {
		return nil, -1, nil, withFormula(err, f.Source)
	}
	return g, out, leaves, nil
}

// BuildGraph records formula at vars and returns the graph and its output
// node, for inspection or export.
func BuildGraph(vars Bindings, formula string, opts ...Option) (*Graph, Node, error) {
	o := buildOptions(opts)
	p, err := compileProblem(vars, []string{formula}, o)
	if err != nil {
		return nil, -1, err
	}
	g, out, _, err := record(p.formulas[0], vars)
	if err != nil {
		return nil, -1, err
	}
	return g, out, nil
}
