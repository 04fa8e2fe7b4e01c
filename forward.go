package autodiff

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// runForward fills column i of the Jacobian from a dual-number pass in which
// variable i carries tangent 1 and every other variable tangent 0. Primal
// values are the same in every pass and are taken from the first one. With
// no variables a single scalar pass produces the values.
func runForward(p *compiled, o options) (*Result, error) {
	res := p.result(ModeForward)
	if len(p.vars) == 0 {
		for j, f := range p.formulas {
			v, err := f.EvalFloat(p.vars)
			if err != nil {
				return nil, errors.Wrapf(err, "formula %d", j)
			}
			res.Values[j] = v
		}
		return res, nil
	}

	pass := func(i int) error {
		env := make(map[string]Dual, len(p.vars))
		for k, b := range p.vars {
			if k == i {
				env[b.Name] = NewDual(b.Value)
			} else {
				env[b.Name] = Constant(b.Value)
			}
		}
		for j, f := range p.formulas {
			d, err := Evaluate[Dual](f.Expr, Duals{}, env)
			if err != nil {
				return errors.Wrapf(withFormula(err, f.Source), "formula %d", j)
			}
			if i == 0 {
				res.Values[j] = d.Real
			}
			res.Jacobian[j][i] = d.Dual
		}
		o.logger.WithFields(logrus.Fields{"pass": i, "seed": p.vars[i].Name}).Debug("forward pass done")
		return nil
	}
	if err := parallel(o.workers, len(p.vars), pass); err != nil {
		return nil, err
	}
	return res, nil
}

// parallel calls fn(0) .. fn(n-1), on up to workers goroutines. The first
// error stops new calls from being scheduled and is returned.
func parallel(workers, n int, fn func(i int) error) error {
	if workers < 2 || n < 2 {
		for i := 0; i < n; i++ {
			if err := fn(i); err != nil {
				return err
			}
		}
		return nil
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		g.Go(func() error { return fn(i) })
	}
	return g.Wait()
}
