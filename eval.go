package autodiff

import (
	"math"
)

// ============================================================
// Algebra: numeric representation strategy
// ============================================================

// Algebra is the arithmetic a formula is evaluated in. One implementation
// exists per representation (float64 scalars, Dual numbers, graph Nodes);
// the evaluator picks one per pass and never inspects values directly.
type Algebra[T any] interface {
	Const(v float64) T
	Value(x T) float64
	Add(a, b T) (T, error)
	Sub(a, b T) (T, error)
	Mul(a, b T) (T, error)
	Div(a, b T) (T, error)
	Pow(a, b T) (T, error)
	Neg(x T) (T, error)
	Apply(f *Function, x T) (T, error)
}

// Scalars evaluates formulas on plain float64 values.
type Scalars struct{}

func (Scalars) Const(v float64) float64           { return v }
func (Scalars) Value(x float64) float64           { return x }
func (Scalars) Add(a, b float64) (float64, error) { return a + b, nil }
func (Scalars) Sub(a, b float64) (float64, error) { return a - b, nil }
func (Scalars) Mul(a, b float64) (float64, error) { return a * b, nil }
func (Scalars) Neg(x float64) (float64, error)    { return -x, nil }
func (Scalars) Pow(a, b float64) (float64, error) { return math.Pow(a, b), nil }

func (Scalars) Div(a, b float64) (float64, error) {
	if b == 0 {
		return 0, divisionByZero("/")
	}
	return a / b, nil
}

func (Scalars) Apply(f *Function, x float64) (float64, error) {
	return f.Apply(x)
}

// Duals evaluates formulas on dual numbers.
type Duals struct{}

func (Duals) Const(v float64) Dual        { return Constant(v) }
func (Duals) Value(x Dual) float64        { return x.Real }
func (Duals) Add(a, b Dual) (Dual, error) { return a.Add(b), nil }
func (Duals) Sub(a, b Dual) (Dual, error) { return a.Sub(b), nil }
func (Duals) Mul(a, b Dual) (Dual, error) { return a.Mul(b), nil }
func (Duals) Div(a, b Dual) (Dual, error) { return a.Div(b) }
func (Duals) Pow(a, b Dual) (Dual, error) { return a.Pow(b) }
func (Duals) Neg(x Dual) (Dual, error)    { return x.Neg(), nil }

func (Duals) Apply(f *Function, x Dual) (Dual, error) {
	return f.ApplyDual(x)
}

// ============================================================
// Evaluator
// ============================================================

// Evaluate computes e in alg with the given variable bindings. Unbound
// variables are ErrUnknownIdentifier. A two-argument log is evaluated as
// ln(x)/ln(base) so the base may itself depend on variables.
func Evaluate[T any](e Expr, alg Algebra[T], env map[string]T) (T, error) {
	var zero T
	switch v := e.(type) {
	case *Num:
		return alg.Const(v.val), nil
	case *Sym:
		x, ok := env[v.name]
		if !ok {
			return zero, newError(ErrUnknownIdentifier, "", v.name, "unbound variable %q", v.name)
		}
		return x, nil
	case *Neg:
		x, err := Evaluate(v.x, alg, env)
		if err != nil {
			return zero, err
		}
		return alg.Neg(x)
	case *BinOp:
		l, err := Evaluate(v.l, alg, env)
		if err != nil {
			return zero, err
		}
		r, err := Evaluate(v.r, alg, env)
		if err != nil {
			return zero, err
		}
		switch v.op {
		case OpAdd:
			return alg.Add(l, r)
		case OpSub:
			return alg.Sub(l, r)
		case OpMul:
			return alg.Mul(l, r)
		case OpDiv:
			return alg.Div(l, r)
		case OpPow:
			return alg.Pow(l, r)
		}
		return zero, newError(ErrSyntax, v.op.String(), nil, "unknown operator")
	case *Call:
		return evalCall(v, alg, env)
	}
	return zero, newError(ErrInvalidInput, "", e, "unsupported expression node %T", e)
}

func evalCall[T any](c *Call, alg Algebra[T], env map[string]T) (T, error) {
	var zero T
	f, ok := functions[c.name]
	if !ok {
		return zero, newError(ErrUnknownIdentifier, "", c.name, "unknown function %q", c.name)
	}
	if len(c.args) == 0 || len(c.args) > 2 || (len(c.args) == 2 && f != FuncLog) {
		return zero, newError(ErrTypeMismatch, c.name, nil, "wrong number of arguments: %d", len(c.args))
	}
	x, err := Evaluate(c.args[0], alg, env)
	if err != nil {
		return zero, err
	}
	if len(c.args) == 1 {
		return alg.Apply(f, x)
	}
	base, err := Evaluate(c.args[1], alg, env)
	if err != nil {
		return zero, err
	}
	if err := checkLogBase(alg.Value(base)); err != nil {
		return zero, err
	}
	num, err := alg.Apply(FuncLog, x)
	if err != nil {
		return zero, err
	}
	den, err := alg.Apply(FuncLog, base)
	if err != nil {
		return zero, err
	}
	return alg.Div(num, den)
}

// ============================================================
// Formula: compiled formula text
// ============================================================

// Formula is a parsed formula together with its source and free symbols.
type Formula struct {
	Source  string
	Expr    Expr
	Symbols []string
}

// Compile parses src once so it can be evaluated under many bindings.
func Compile(src string, opts ...ParseOption) (*Formula, error) {
	e, err := Parse(src, opts...)
	if err != nil {
		return nil, err
	}
	return &Formula{Source: src, Expr: e, Symbols: FreeSymbols(e)}, nil
}

func (f *Formula) String() string { return f.Source }

// EvalFloat evaluates the formula on plain scalars.
func (f *Formula) EvalFloat(vars Bindings) (float64, error) {
	env := make(map[string]float64, len(vars))
	for _, b := range vars {
		env[b.Name] = b.Value
	}
	v, err := Evaluate[float64](f.Expr, Scalars{}, env)
	if err != nil {
		return 0, withFormula(err, f.Source)
	}
	return v, nil
}

// checkBound reports the first free symbol of f that vars does not bind.
func (f *Formula) checkBound(vars Bindings) error {
	for _, s := range f.Symbols {
		if _, ok := vars.Lookup(s); !ok {
			e := newError(ErrUnknownIdentifier, "", s, "variable %q is not bound", s)
			e.Formula = f.Source
			return e
		}
	}
	return nil
}
