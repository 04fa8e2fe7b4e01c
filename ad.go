// Package autodiff computes values and Jacobians of formula strings by
// automatic differentiation.
//
// Formulas use a small language: decimal literals, variable names,
// + - * / ** with unary minus, parentheses, and calls to sqrt, exp, log,
// sin, cos, tan, arcsin, arccos, arctan, sinh, cosh and tanh. log takes an
// optional second argument, the base.
//
// Two engines are available. Forward mode seeds one dual-number pass per
// variable; reverse mode records one computation graph per formula and
// accumulates derivatives backwards from its output. Differentiate picks
// forward mode when there are no more variables than formulas, and reverse
// mode otherwise. Both produce the same Jacobian.
//
// Example:
//
//	vars, _ := autodiff.Vars("x", 1, "y", 1)
//	res, err := autodiff.Differentiate(vars, []string{"x**2 + y**2", "exp(x + y)"})
//	// res.Values   == [2, 7.389...]
//	// res.Jacobian == [[2, 2], [7.389..., 7.389...]]
package autodiff

import (
	"encoding/json"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// ============================================================
// Mode
// ============================================================

// Mode selects the differentiation engine.
type Mode int

const (
	ModeAuto Mode = iota
	ModeForward
	ModeReverse
)

func (m Mode) String() string {
	switch m {
	case ModeForward:
		return "forward"
	case ModeReverse:
		return "reverse"
	}
	return "auto"
}

// ParseMode accepts "auto" (or ""), "forward" and "reverse", case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ModeAuto, nil
	case "forward":
		return ModeForward, nil
	case "reverse":
		return ModeReverse, nil
	}
	return ModeAuto, newError(ErrInvalidInput, "", s, "unknown mode %q", s)
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// SelectMode is the default engine choice: forward when there are no more
// variables than formulas, reverse otherwise.
func SelectMode(nVars, nFormulas int) Mode {
	if nVars <= nFormulas {
		return ModeForward
	}
	return ModeReverse
}

// ============================================================
// Options
// ============================================================

// Option configures Differentiate, Forward and Reverse.
type Option func(*options)

type options struct {
	mode     Mode
	logger   logrus.FieldLogger
	workers  int
	extended bool
}

// WithMode forces an engine. ModeAuto restores the default selection.
func WithMode(m Mode) Option { return func(o *options) { o.mode = m } }

// WithLogger routes engine logging to l. By default nothing is logged.
func WithLogger(l logrus.FieldLogger) Option { return func(o *options) { o.logger = l } }

// WithWorkers runs up to n independent passes concurrently. Values below 2
// keep everything on the calling goroutine.
func WithWorkers(n int) Option { return func(o *options) { o.workers = n } }

// WithExtendedFunctions also accepts abs and sigmoid in formulas.
func WithExtendedFunctions() Option { return func(o *options) { o.extended = true } }

func buildOptions(opts []Option) options {
	o := options{workers: 1}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		o.logger = l
	}
	return o
}

func (o options) parseOptions() []ParseOption {
	if o.extended {
		return []ParseOption{AllowExtended()}
	}
	return nil
}

// ============================================================
// Result
// ============================================================

// Result holds the primal values and the Jacobian of a formula set. Row i of
// Jacobian belongs to Formulas[i]; column j to Variables[j].
type Result struct {
	Mode      Mode        `json:"mode"`
	Variables Bindings    `json:"variables"`
	Formulas  []string    `json:"formulas"`
	Values    []float64   `json:"func_evals"`
	Jacobian  [][]float64 `json:"jacobian"`
}

// Floats encodes to JSON like []float64, except that NaN and ±Inf become
// the strings "NaN", "+Inf" and "-Inf". A zero base raised to a power below
// one legitimately yields an infinite partial.
type Floats []float64

func (f Floats) MarshalJSON() ([]byte, error) {
	if f == nil {
		return []byte("null"), nil
	}
	b := []byte{'['}
	for i, v := range f {
		if i > 0 {
			b = append(b, ',')
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			b = strconv.AppendQuote(b, strconv.FormatFloat(v, 'g', -1, 64))
			continue
		}
		num, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		b = append(b, num...)
	}
	return append(b, ']'), nil
}

func (f *Floats) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*f = nil
		return nil
	}
	out := make(Floats, len(raw))
	for i, r := range raw {
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return errors.Wrapf(err, "element %d", i)
			}
			out[i] = v
			continue
		}
		if err := json.Unmarshal(r, &out[i]); err != nil {
			return errors.Wrapf(err, "element %d", i)
		}
	}
	*f = out
	return nil
}

type resultJSON struct {
	Mode      Mode     `json:"mode"`
	Variables Bindings `json:"variables"`
	Formulas  []string `json:"formulas"`
	Values    Floats   `json:"func_evals"`
	Jacobian  []Floats `json:"jacobian"`
}

func (r Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{
		Mode:      r.Mode,
		Variables: r.Variables,
		Formulas:  r.Formulas,
		Values:    Floats(r.Values),
	}
	if r.Jacobian != nil {
		out.Jacobian = make([]Floats, len(r.Jacobian))
		for i, row := range r.Jacobian {
			out.Jacobian[i] = Floats(row)
		}
	}
	return json.Marshal(out)
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var in resultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = Result{Mode: in.Mode, Variables: in.Variables, Formulas: in.Formulas, Values: in.Values}
	if in.Jacobian != nil {
		r.Jacobian = make([][]float64, len(in.Jacobian))
		for i, row := range in.Jacobian {
			r.Jacobian[i] = row
		}
	}
	return nil
}

// Dense returns the Jacobian as a gonum matrix, or nil when there are no
// variables.
func (r *Result) Dense() *mat.Dense {
	m, n := len(r.Jacobian), len(r.Variables)
	if m == 0 || n == 0 {
		return nil
	}
	data := make([]float64, 0, m*n)
	for _, row := range r.Jacobian {
		data = append(data, row...)
	}
	return mat.NewDense(m, n, data)
}

// Partial returns d Formulas[row] / d name.
func (r *Result) Partial(row int, name string) (float64, bool) {
	if row < 0 || row >= len(r.Jacobian) {
		return 0, false
	}
	for j, b := range r.Variables {
		if b.Name == name {
			return r.Jacobian[row][j], true
		}
	}
	return 0, false
}

// ============================================================
// Entry points
// ============================================================

// Differentiate evaluates formulas at vars and computes their Jacobian with
// the engine chosen by SelectMode, unless WithMode overrides it. Any error
// aborts the whole computation.
func Differentiate(vars Bindings, formulas []string, opts ...Option) (*Result, error) {
	o := buildOptions(opts)
	mode := o.mode
	if mode == ModeAuto {
		mode = SelectMode(len(vars), len(formulas))
		if mode == ModeForward {
			o.logger.WithFields(logrus.Fields{"variables": len(vars), "formulas": len(formulas)}).
				Info("number of variables <= number of formulas; using forward mode")
		} else {
			o.logger.WithFields(logrus.Fields{"variables": len(vars), "formulas": len(formulas)}).
				Info("number of variables > number of formulas; using reverse mode")
		}
	}
	p, err := compileProblem(vars, formulas, o)
	if err != nil {
		return nil, err
	}
	switch mode {
	case ModeForward:
		return runForward(p, o)
	case ModeReverse:
		return runReverse(p, o)
	}
	return nil, newError(ErrInvalidInput, "", mode, "unknown mode")
}

// Forward differentiates with one dual-number pass per variable.
func Forward(vars Bindings, formulas []string, opts ...Option) (*Result, error) {
	return Differentiate(vars, formulas, append(opts, WithMode(ModeForward))...)
}

// Reverse differentiates with one computation graph per formula.
func Reverse(vars Bindings, formulas []string, opts ...Option) (*Result, error) {
	return Differentiate(vars, formulas, append(opts, WithMode(ModeReverse))...)
}

// Gradient returns the value of a single formula and its partial derivatives
// in variable order.
func Gradient(vars Bindings, formula string, opts ...Option) (float64, []float64, error) {
	res, err := Differentiate(vars, []string{formula}, opts...)
	if err != nil {
		return 0, nil, err
	}
	return res.Values[0], res.Jacobian[0], nil
}

// Values evaluates formulas at vars without computing derivatives.
func Values(vars Bindings, formulas []string, opts ...Option) ([]float64, error) {
	o := buildOptions(opts)
	p, err := compileProblem(vars, formulas, o)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(p.formulas))
	for i, f := range p.formulas {
		v, err := f.EvalFloat(vars)
		if err != nil {
			return nil, errors.Wrapf(err, "formula %d", i)
		}
		out[i] = v
	}
	return out, nil
}

// ============================================================
// Problem compilation
// ============================================================

type compiled struct {
	vars     Bindings
	formulas []*Formula
}

func compileProblem(vars Bindings, formulas []string, o options) (*compiled, error) {
	if len(formulas) == 0 {
		return nil, newError(ErrInvalidInput, "", nil, "no formulas given")
	}
	if err := vars.Validate(); err != nil {
		return nil, err
	}
	p := &compiled{vars: vars, formulas: make([]*Formula, len(formulas))}
	for i, src := range formulas {
		f, err := Compile(src, o.parseOptions()...)
		if err != nil {
			return nil, errors.Wrapf(err, "formula %d", i)
		}
		if err := f.checkBound(vars); err != nil {
			return nil, errors.Wrapf(err, "formula %d", i)
		}
		p.formulas[i] = f
	}
	return p, nil
}

func (p *compiled) result(mode Mode) *Result {
	src := make([]string, len(p.formulas))
	for i, f := range p.formulas {
		src[i] = f.Source
	}
	jac := make([][]float64, len(p.formulas))
	for i := range jac {
		jac[i] = make([]float64, len(p.vars))
	}
	return &Result{
		Mode:      mode,
		Variables: p.vars,
		Formulas:  src,
		Values:    make([]float64, len(p.formulas)),
		Jacobian:  jac,
	}
}
