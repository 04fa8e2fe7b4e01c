package autodiff

import (
	"fmt"
	"math"
)

// ============================================================
// Dual: (primal, tangent) pair for forward mode
// ============================================================

// Dual is a dual number a + bε with ε² = 0. Real is the primal value and Dual
// the tangent along whichever single seed direction produced it. A plain
// scalar behaves as a Dual with a zero tangent. Values are immutable; every
// operation returns a new Dual.
type Dual struct {
	Real float64 `json:"real"`
	Dual float64 `json:"dual"`
}

// NewDual returns a variable seeded with tangent 1.
func NewDual(real float64) Dual { return Dual{Real: real, Dual: 1} }

// Seed returns a Dual with an explicit tangent.
func Seed(real, dual float64) Dual { return Dual{Real: real, Dual: dual} }

// Constant returns a Dual with a zero tangent.
func Constant(v float64) Dual { return Dual{Real: v} }

// Lift converts a Dual or any Go integer or floating-point value to a Dual.
// Scalars become constants. Anything else is ErrInvalidInput.
func Lift(v interface{}) (Dual, error) {
	switch x := v.(type) {
	case Dual:
		return x, nil
	case *Dual:
		if x == nil {
			return Dual{}, newError(ErrInvalidInput, "lift", nil, "nil *Dual")
		}
		return *x, nil
	}
	f, ok := toFloat(v)
	if !ok {
		return Dual{}, newError(ErrInvalidInput, "lift", v, "unsupported operand type %T", v)
	}
	return Constant(f), nil
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	}
	return 0, false
}

func (d Dual) String() string { return fmt.Sprintf("Dual(%g, %g)", d.Real, d.Dual) }

func (d Dual) Neg() Dual { return Dual{Real: -d.Real, Dual: -d.Dual} }

func (d Dual) Add(o Dual) Dual         { return Dual{Real: d.Real + o.Real, Dual: d.Dual + o.Dual} }
func (d Dual) AddScalar(s float64) Dual { return Dual{Real: d.Real + s, Dual: d.Dual} }

func (d Dual) Sub(o Dual) Dual         { return Dual{Real: d.Real - o.Real, Dual: d.Dual - o.Dual} }
func (d Dual) SubScalar(s float64) Dual { return Dual{Real: d.Real - s, Dual: d.Dual} }

// RSub returns s - d.
func (d Dual) RSub(s float64) Dual { return Dual{Real: s - d.Real, Dual: -d.Dual} }

// Mul applies the product rule.
func (d Dual) Mul(o Dual) Dual {
	return Dual{Real: d.Real * o.Real, Dual: d.Real*o.Dual + o.Real*d.Dual}
}

func (d Dual) MulScalar(s float64) Dual { return Dual{Real: d.Real * s, Dual: d.Dual * s} }

// Div applies the quotient rule.
func (d Dual) Div(o Dual) (Dual, error) {
	if o.Real == 0 {
		return Dual{}, divisionByZero("/")
	}
	return Dual{
		Real: d.Real / o.Real,
		Dual: (d.Dual*o.Real - d.Real*o.Dual) / (o.Real * o.Real),
	}, nil
}

func (d Dual) DivScalar(s float64) (Dual, error) {
	if s == 0 {
		return Dual{}, divisionByZero("/")
	}
	return Dual{Real: d.Real / s, Dual: d.Dual / s}, nil
}

// RDiv returns s / d.
func (d Dual) RDiv(s float64) (Dual, error) {
	if d.Real == 0 {
		return Dual{}, divisionByZero("/")
	}
	return Dual{Real: s / d.Real, Dual: -s / (d.Real * d.Real) * d.Dual}, nil
}

// PowScalar returns d**k. A zero base with k < 1 yields Inf or NaN tangents,
// which are returned as computed.
func (d Dual) PowScalar(k float64) Dual {
	out := Dual{Real: math.Pow(d.Real, k)}
	if d.Dual != 0 {
		out.Dual = k * math.Pow(d.Real, k-1) * d.Dual
	}
	return out
}

// Pow returns d**o using the two-variable chain rule
//
//	(r1^r2)' = r2·r1^(r2-1)·d1 + ln(r1)·r1^r2·d2
//
// The log term needs r1 > 0. With a non-positive base the exponent must be
// constant (o.Dual == 0) and only the first term applies; a varying exponent
// is ErrDomain.
func (d Dual) Pow(o Dual) (Dual, error) {
	out := d.PowScalar(o.Real)
	if o.Dual == 0 {
		return out, nil
	}
	if d.Real <= 0 {
		return Dual{}, domainError("**", d.Real, "non-positive base with a varying exponent")
	}
	out.Dual += math.Log(d.Real) * out.Real * o.Dual
	return out, nil
}

// RPow returns base**d.
func (d Dual) RPow(base float64) (Dual, error) {
	p := math.Pow(base, d.Real)
	if d.Dual == 0 {
		return Dual{Real: p}, nil
	}
	if base <= 0 {
		return Dual{}, domainError("**", base, "non-positive base with a varying exponent")
	}
	return Dual{Real: p, Dual: math.Log(base) * p * d.Dual}, nil
}

// Equal reports whether both parts match.
func (d Dual) Equal(o Dual) bool { return d.Real == o.Real && d.Dual == o.Dual }

// EqualScalar reports whether d is the constant s.
func (d Dual) EqualScalar(s float64) bool { return d.Real == s && d.Dual == 0 }

// Compare orders by primal value only.
func (d Dual) Compare(o Dual) int {
	switch {
	case d.Real < o.Real:
		return -1
	case d.Real > o.Real:
		return 1
	}
	return 0
}

func (d Dual) Less(o Dual) bool    { return d.Real < o.Real }
func (d Dual) Greater(o Dual) bool { return d.Real > o.Real }
