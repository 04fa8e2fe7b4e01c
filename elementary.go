package autodiff

import (
	"math"
	"sort"
)

// ============================================================
// Elementary function table
// ============================================================

// Function is one elementary function: its primal, its derivative and its
// domain guard. The same entry drives scalar, dual-number and graph
// evaluation so every derivative rule is written once.
type Function struct {
	Name   string
	Eval   func(x float64) float64
	Deriv  func(x float64) float64
	Domain func(x float64) error // nil when defined everywhere

	// Extended functions are only accepted in formulas when the extended
	// vocabulary is enabled.
	Extended bool
}

// tanPoleTolerance bounds |cos(x)| below which x is taken to be an odd
// multiple of π/2.
const tanPoleTolerance = 1e-12

var (
	FuncSqrt = &Function{
		Name:  "sqrt",
		Eval:  math.Sqrt,
		Deriv: func(x float64) float64 { return 1 / (2 * math.Sqrt(x)) },
		Domain: func(x float64) error {
			if x <= 0 {
				return domainError("sqrt", x, "argument must be positive")
			}
			return nil
		},
	}
	FuncExp = &Function{Name: "exp", Eval: math.Exp, Deriv: math.Exp}
	FuncLog = &Function{
		Name:   "log",
		Eval:   math.Log,
		Deriv:  func(x float64) float64 { return 1 / x },
		Domain: positive("log"),
	}
	FuncSin = &Function{Name: "sin", Eval: math.Sin, Deriv: math.Cos}
	FuncCos = &Function{
		Name:  "cos",
		Eval:  math.Cos,
		Deriv: func(x float64) float64 { return -math.Sin(x) },
	}
	FuncTan = &Function{
		Name: "tan",
		Eval: math.Tan,
		Deriv: func(x float64) float64 {
			c := math.Cos(x)
			return 1 / (c * c)
		},
		Domain: func(x float64) error {
			if math.Abs(math.Cos(x)) < tanPoleTolerance {
				return domainError("tan", x, "undefined at odd multiples of pi/2")
			}
			return nil
		},
	}
	FuncArcsin = &Function{
		Name:   "arcsin",
		Eval:   math.Asin,
		Deriv:  func(x float64) float64 { return 1 / math.Sqrt(1-x*x) },
		Domain: openUnitInterval("arcsin"),
	}
	FuncArccos = &Function{
		Name:   "arccos",
		Eval:   math.Acos,
		Deriv:  func(x float64) float64 { return -1 / math.Sqrt(1-x*x) },
		Domain: openUnitInterval("arccos"),
	}
	FuncArctan = &Function{
		Name:  "arctan",
		Eval:  math.Atan,
		Deriv: func(x float64) float64 { return 1 / (1 + x*x) },
	}
	FuncSinh = &Function{Name: "sinh", Eval: math.Sinh, Deriv: math.Cosh}
	FuncCosh = &Function{Name: "cosh", Eval: math.Cosh, Deriv: math.Sinh}
	FuncTanh = &Function{
		Name: "tanh",
		Eval: math.Tanh,
		Deriv: func(x float64) float64 {
			t := math.Tanh(x)
			return 1 - t*t
		},
	}

	// FuncAbs uses sign(x) as its derivative, so the kink at 0 gets slope 0.
	FuncAbs = &Function{
		Name: "abs",
		Eval: math.Abs,
		Deriv: func(x float64) float64 {
			switch {
			case x > 0:
				return 1
			case x < 0:
				return -1
			}
			return 0
		},
		Extended: true,
	}
	FuncSigmoid = &Function{
		Name: "sigmoid",
		Eval: sigmoid,
		Deriv: func(x float64) float64 {
			s := sigmoid(x)
			return s * (1 - s)
		},
		Extended: true,
	}
)

var functions = map[string]*Function{}

func init() {
	for _, f := range []*Function{
		FuncSqrt, FuncExp, FuncLog, FuncSin, FuncCos, FuncTan,
		FuncArcsin, FuncArccos, FuncArctan, FuncSinh, FuncCosh, FuncTanh,
		FuncAbs, FuncSigmoid,
	} {
		functions[f.Name] = f
	}
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

func positive(name string) func(float64) error {
	return func(x float64) error {
		if x <= 0 {
			return domainError(name, x, "argument must be positive")
		}
		return nil
	}
}

func openUnitInterval(name string) func(float64) error {
	return func(x float64) error {
		if math.Abs(x) >= 1 {
			return domainError(name, x, "argument must lie strictly between -1 and 1")
		}
		return nil
	}
}

// LookupFunction returns the table entry for name, including extended ones.
func LookupFunction(name string) (*Function, bool) {
	f, ok := functions[name]
	return f, ok
}

// FunctionNames lists the formula vocabulary in sorted order.
func FunctionNames(extended bool) []string {
	names := make([]string, 0, len(functions))
	for name, f := range functions {
		if f.Extended && !extended {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f *Function) check(x float64) error {
	if f.Domain == nil {
		return nil
	}
	return f.Domain(x)
}

// Apply evaluates f at a scalar.
func (f *Function) Apply(x float64) (float64, error) {
	if err := f.check(x); err != nil {
		return 0, err
	}
	return f.Eval(x), nil
}

// ApplyDual evaluates f at a dual number: primal f(real), tangent
// f'(real)·dual.
func (f *Function) ApplyDual(d Dual) (Dual, error) {
	if err := f.check(d.Real); err != nil {
		return Dual{}, err
	}
	out := Dual{Real: f.Eval(d.Real)}
	if d.Dual != 0 {
		out.Dual = f.Deriv(d.Real) * d.Dual
	}
	return out, nil
}

// ============================================================
// Logarithm base
// ============================================================

func checkLogBase(base float64) error {
	if base <= 0 || base == 1 || math.IsNaN(base) {
		return domainError("log", base, "base must be positive and different from 1")
	}
	return nil
}

// ============================================================
// Scalar path
// ============================================================

func Sqrt(x float64) (float64, error)   { return FuncSqrt.Apply(x) }
func Exp(x float64) (float64, error)    { return FuncExp.Apply(x) }
func Ln(x float64) (float64, error)     { return FuncLog.Apply(x) }
func Sin(x float64) (float64, error)    { return FuncSin.Apply(x) }
func Cos(x float64) (float64, error)    { return FuncCos.Apply(x) }
func Tan(x float64) (float64, error)    { return FuncTan.Apply(x) }
func Arcsin(x float64) (float64, error) { return FuncArcsin.Apply(x) }
func Arccos(x float64) (float64, error) { return FuncArccos.Apply(x) }
func Arctan(x float64) (float64, error) { return FuncArctan.Apply(x) }
func Sinh(x float64) (float64, error)   { return FuncSinh.Apply(x) }
func Cosh(x float64) (float64, error)   { return FuncCosh.Apply(x) }
func Tanh(x float64) (float64, error)   { return FuncTanh.Apply(x) }

// Log returns the logarithm of x in the given base. Use math.E for the
// natural logarithm, or Ln.
func Log(x, base float64) (float64, error) {
	if err := checkLogBase(base); err != nil {
		return 0, err
	}
	v, err := FuncLog.Apply(x)
	if err != nil {
		return 0, err
	}
	return v / math.Log(base), nil
}

// ============================================================
// Dual path
// ============================================================

func (d Dual) Sqrt() (Dual, error)   { return FuncSqrt.ApplyDual(d) }
func (d Dual) Exp() (Dual, error)    { return FuncExp.ApplyDual(d) }
func (d Dual) Ln() (Dual, error)     { return FuncLog.ApplyDual(d) }
func (d Dual) Sin() (Dual, error)    { return FuncSin.ApplyDual(d) }
func (d Dual) Cos() (Dual, error)    { return FuncCos.ApplyDual(d) }
func (d Dual) Tan() (Dual, error)    { return FuncTan.ApplyDual(d) }
func (d Dual) Arcsin() (Dual, error) { return FuncArcsin.ApplyDual(d) }
func (d Dual) Arccos() (Dual, error) { return FuncArccos.ApplyDual(d) }
func (d Dual) Arctan() (Dual, error) { return FuncArctan.ApplyDual(d) }
func (d Dual) Sinh() (Dual, error)   { return FuncSinh.ApplyDual(d) }
func (d Dual) Cosh() (Dual, error)   { return FuncCosh.ApplyDual(d) }
func (d Dual) Tanh() (Dual, error)   { return FuncTanh.ApplyDual(d) }

// Log returns log_base(d); the derivative is dual/(real·ln(base)).
func (d Dual) Log(base float64) (Dual, error) {
	if err := checkLogBase(base); err != nil {
		return Dual{}, err
	}
	l, err := FuncLog.ApplyDual(d)
	if err != nil {
		return Dual{}, err
	}
	return l.DivScalar(math.Log(base))
}
