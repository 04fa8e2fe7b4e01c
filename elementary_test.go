package autodiff_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/njchilds90/autodiff"
)

// centralDiff approximates f'(x) numerically.
func centralDiff(f func(float64) float64, x float64) float64 {
	const h = 1e-6
	return (f(x+h) - f(x-h)) / (2 * h)
}

// ============================================================
// Derivative rules against finite differences
// ============================================================

func TestElementary_TangentMatchesDerivative(t *testing.T) {
	points := []float64{-0.7, -0.2, 0.3, 0.9}
	for _, name := range autodiff.FunctionNames(true) {
		f, ok := autodiff.LookupFunction(name)
		require.True(t, ok)
		for _, x := range points {
			if name == "sqrt" || name == "log" {
				x = math.Abs(x) + 0.5
			}
			d, err := f.ApplyDual(autodiff.NewDual(x))
			require.NoError(t, err, "%s(%g)", name, x)
			assert.InDelta(t, f.Eval(x), d.Real, 1e-12, "%s(%g) value", name, x)
			assert.InDelta(t, centralDiff(f.Eval, x), d.Dual, 1e-6, "%s'(%g)", name, x)
		}
	}
}

func TestElementary_ChainRuleScalesTangent(t *testing.T) {
	d, err := autodiff.Seed(0, 3).Sin()
	require.NoError(t, err)
	assert.InDelta(t, 3, d.Dual, 1e-15)

	d, err = autodiff.Constant(2).Exp()
	require.NoError(t, err)
	assert.Equal(t, 0.0, d.Dual)
}

func TestElementary_SinAtZero(t *testing.T) {
	d, err := autodiff.NewDual(0).Sin()
	require.NoError(t, err)
	assert.Equal(t, 1.0, d.Dual)
}

// ============================================================
// Domains
// ============================================================

func TestElementary_DomainErrors(t *testing.T) {
	cases := []struct {
		name string
		fn   func(float64) (float64, error)
		x    float64
	}{
		{"sqrt(-1)", autodiff.Sqrt, -1},
		{"sqrt(0)", autodiff.Sqrt, 0},
		{"ln(0)", autodiff.Ln, 0},
		{"ln(-2)", autodiff.Ln, -2},
		{"arcsin(2)", autodiff.Arcsin, 2},
		{"arcsin(1)", autodiff.Arcsin, 1},
		{"arccos(-1)", autodiff.Arccos, -1},
		{"tan(pi/2)", autodiff.Tan, math.Pi / 2},
		{"tan(-3pi/2)", autodiff.Tan, -3 * math.Pi / 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.fn(tc.x)
			require.Error(t, err)
			assert.True(t, errors.Is(err, autodiff.ErrDomain))

			var e *autodiff.Error
			require.True(t, errors.As(err, &e))
			assert.Equal(t, tc.x, e.Value)
		})
	}
}

func TestElementary_DualDomainErrors(t *testing.T) {
	_, err := autodiff.NewDual(-1).Sqrt()
	assert.True(t, errors.Is(err, autodiff.ErrDomain))
	_, err = autodiff.NewDual(0).Ln()
	assert.True(t, errors.Is(err, autodiff.ErrDomain))
	_, err = autodiff.NewDual(2).Arccos()
	assert.True(t, errors.Is(err, autodiff.ErrDomain))
}

func TestElementary_NoDomainRestriction(t *testing.T) {
	for _, fn := range []func(float64) (float64, error){
		autodiff.Exp, autodiff.Sin, autodiff.Cos, autodiff.Arctan,
		autodiff.Sinh, autodiff.Cosh, autodiff.Tanh,
	} {
		for _, x := range []float64{-5, 0, 5} {
			_, err := fn(x)
			assert.NoError(t, err)
		}
	}
}

// ============================================================
// Logarithm base
// ============================================================

func TestLog_Base(t *testing.T) {
	v, err := autodiff.Log(8, 2)
	require.NoError(t, err)
	assert.InDelta(t, 3, v, 1e-12)

	v, err = autodiff.Log(math.E, math.E)
	require.NoError(t, err)
	assert.InDelta(t, 1, v, 1e-15)

	d, err := autodiff.NewDual(8).Log(2)
	require.NoError(t, err)
	assert.InDelta(t, 3, d.Real, 1e-12)
	assert.InDelta(t, 1/(8*math.Ln2), d.Dual, 1e-12)

	for _, base := range []float64{0, -2, 1, math.NaN()} {
		_, err := autodiff.Log(3, base)
		assert.True(t, errors.Is(err, autodiff.ErrDomain), "base %g", base)
	}
}

func TestFunctionNames(t *testing.T) {
	assert.Equal(t, []string{
		"arccos", "arcsin", "arctan", "cos", "cosh", "exp",
		"log", "sin", "sinh", "sqrt", "tan", "tanh",
	}, autodiff.FunctionNames(false))
	assert.Len(t, autodiff.FunctionNames(true), 14)
}

func TestAbs_KinkHasZeroSlope(t *testing.T) {
	d, err := autodiff.FuncAbs.ApplyDual(autodiff.NewDual(0))
	require.NoError(t, err)
	assert.Equal(t, autodiff.Seed(0, 0), d)

	d, err = autodiff.FuncAbs.ApplyDual(autodiff.NewDual(-2))
	require.NoError(t, err)
	assert.Equal(t, autodiff.Seed(2, -1), d)
}
