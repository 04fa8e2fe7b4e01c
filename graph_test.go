package autodiff_test

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/njchilds90/autodiff"
)

// ============================================================
// Construction and accumulation
// ============================================================

func TestGraph_Partial(t *testing.T) {
	g := autodiff.NewGraph()
	x := g.Var(2)
	y := g.Var(3)
	z := g.Var(5) // never used
	p := g.Mul(x, y)
	s := g.Add(p, x) // x*y + x

	assert.Equal(t, 8.0, g.Value(s))
	assert.Equal(t, 4.0, g.Partial(s, x))
	assert.Equal(t, 2.0, g.Partial(s, y))
	assert.Equal(t, 0.0, g.Partial(s, z))
	assert.Equal(t, 1.0, g.Partial(s, s))
	assert.Equal(t, 1.0, g.Partial(s, p))
}

func TestGraph_NodesAfterRootAreZero(t *testing.T) {
	g := autodiff.NewGraph()
	x := g.Var(1)
	s := g.Add(x, x)
	later := g.Mul(x, s)

	assert.Equal(t, 2.0, g.Partial(s, x))
	assert.Equal(t, 0.0, g.Partial(s, later))
	// the memo grows with the arena and keeps earlier results
	extra := g.Neg(later)
	assert.Equal(t, 0.0, g.Partial(s, extra))
	assert.Equal(t, 2.0, g.Partial(s, x))
}

func TestGraph_Idempotent(t *testing.T) {
	g := autodiff.NewGraph()
	x := g.Var(0.3)
	a, err := g.Apply(autodiff.FuncSin, x)
	require.NoError(t, err)
	out := g.Mul(a, a) // shared operand: sin(x)**2

	nodes, edges := g.Len(), g.Edges()
	first := g.Partial(out, x)
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, g.Partial(out, x))
	}
	assert.Equal(t, nodes, g.Len())
	assert.Equal(t, edges, g.Edges())
	assert.InDelta(t, 2*math.Sin(0.3)*math.Cos(0.3), first, 1e-15)
}

func TestGraph_SwitchingRoots(t *testing.T) {
	g := autodiff.NewGraph()
	x := g.Var(2)
	y := g.Var(3)
	p := g.Mul(x, y)
	s := g.Add(p, x)

	assert.Equal(t, 4.0, g.Partial(s, x))
	assert.Equal(t, 3.0, g.Partial(p, x))
	assert.Equal(t, 4.0, g.Partial(s, x))
	assert.Equal(t, []float64{4, 2}, g.Gradient(s, []autodiff.Node{x, y}))
}

func TestGraph_DeepChain(t *testing.T) {
	const depth = 50000
	g := autodiff.NewGraph()
	x := g.Var(1)
	n := x
	for i := 0; i < depth; i++ {
		n = g.Add(n, x)
	}
	assert.Equal(t, float64(depth+1), g.Partial(n, x))
}

func TestGraph_ConcurrentQueries(t *testing.T) {
	g, out, err := autodiff.BuildGraph(mustVars(t, "x", 0.5, "y", 4), "cos(x)*y**2 + sqrt(x)/3")
	require.NoError(t, err)
	want := g.Gradient(out, []autodiff.Node{0, 1})

	var wg sync.WaitGroup
	results := make([][]float64, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = g.Gradient(out, []autodiff.Node{0, 1})
		}()
	}
	wg.Wait()
	for _, r := range results {
		assert.Equal(t, want, r)
	}
}

// ============================================================
// Operation rules
// ============================================================

func TestGraph_Div(t *testing.T) {
	g := autodiff.NewGraph()
	x := g.Var(1)
	y := g.Var(2)
	q, err := g.Div(x, y)
	require.NoError(t, err)
	assert.Equal(t, 0.5, g.Partial(q, x))
	assert.Equal(t, -0.25, g.Partial(q, y))

	_, err = g.Div(x, g.Const(0))
	assert.True(t, errors.Is(err, autodiff.ErrDivisionByZero))
}

func TestGraph_Pow(t *testing.T) {
	g := autodiff.NewGraph()
	x := g.Var(2)
	y := g.Var(3)
	p, err := g.Pow(x, y)
	require.NoError(t, err)
	assert.Equal(t, 8.0, g.Value(p))
	assert.InDelta(t, 12, g.Partial(p, x), 1e-12)
	assert.InDelta(t, 8*math.Ln2, g.Partial(p, y), 1e-12)

	neg := g.Var(-2)
	c, err := g.Pow(neg, g.Const(3))
	require.NoError(t, err)
	assert.Equal(t, 12.0, g.Partial(c, neg))

	// the exponent edge needs ln(base); rejected once y can move it
	bad, err := g.Pow(neg, y)
	require.NoError(t, err)
	assert.Equal(t, -8.0, g.Value(bad))
	err = g.CheckExponents([]autodiff.Node{x, y, neg})
	assert.True(t, errors.Is(err, autodiff.ErrDomain))
}

func TestGraph_PowFrozenExponent(t *testing.T) {
	g := autodiff.NewGraph()
	x := g.Var(-2)
	y := g.Var(7)
	p, err := g.Pow(x, g.Mul(y, g.Const(0))) // x**(y*0)
	require.NoError(t, err)
	require.NoError(t, g.CheckExponents([]autodiff.Node{x, y}))
	assert.Equal(t, 1.0, g.Value(p))
	assert.Equal(t, []float64{0, 0}, g.Gradient(p, []autodiff.Node{x, y}))

	// only the exponent's own inputs matter
	z := g.Var(3)
	_, err = g.Pow(x, z)
	require.NoError(t, err)
	require.NoError(t, g.CheckExponents([]autodiff.Node{x, y}))
	assert.True(t, errors.Is(g.CheckExponents([]autodiff.Node{z}), autodiff.ErrDomain))
}

func TestGraph_ApplyAndLog(t *testing.T) {
	g := autodiff.NewGraph()
	x := g.Var(8)
	l, err := g.Log(x, 2)
	require.NoError(t, err)
	assert.InDelta(t, 3, g.Value(l), 1e-12)
	assert.InDelta(t, 1/(8*math.Ln2), g.Partial(l, x), 1e-15)

	_, err = g.Log(x, 1)
	assert.True(t, errors.Is(err, autodiff.ErrDomain))
	_, err = g.Log(g.Var(-1), 10)
	assert.True(t, errors.Is(err, autodiff.ErrDomain))
	_, err = g.Apply(autodiff.FuncArcsin, g.Var(1))
	assert.True(t, errors.Is(err, autodiff.ErrDomain))

	// abs records (result, sign(x)) like every other rule
	v := g.Var(-3)
	a, err := g.Apply(autodiff.FuncAbs, v)
	require.NoError(t, err)
	assert.Equal(t, 3.0, g.Value(a))
	assert.Equal(t, -1.0, g.Partial(a, v))
}

func TestGraph_ConstantsGetNoDerivative(t *testing.T) {
	g := autodiff.NewGraph()
	c := g.Const(0.5)
	x := g.Var(2)
	s, err := g.Apply(autodiff.FuncSin, c)
	require.NoError(t, err)
	out := g.Mul(s, x)
	assert.Equal(t, 0.0, g.Partial(out, c))
	assert.InDelta(t, math.Sin(0.5), g.Partial(out, x), 1e-15)
}

// ============================================================
// Export
// ============================================================

func TestGraph_ValidateAndDOT(t *testing.T) {
	g, out, err := autodiff.BuildGraph(mustVars(t, "x", 1, "y", 2), "x*y + exp(x)")
	require.NoError(t, err)
	require.NoError(t, g.Validate())
	assert.Equal(t, 5, g.Len())
	assert.Equal(t, 5, g.Edges())
	assert.InDelta(t, 2+math.E, g.Value(out), 1e-12)

	dot, err := g.DOT("f")
	require.NoError(t, err)
	assert.Contains(t, dot, "digraph f")
	assert.Contains(t, dot, `"var = 1"`)
	assert.Contains(t, dot, "n0 -> n2")
}

func TestGraph_AlgebraMatchesScalars(t *testing.T) {
	e, err := autodiff.Parse("x**2 * log(y, 3) - tanh(x / y)")
	require.NoError(t, err)

	g := autodiff.NewGraph()
	env := map[string]autodiff.Node{"x": g.Var(1.5), "y": g.Var(2)}
	n, err := autodiff.Evaluate(e, g.Algebra(), env)
	require.NoError(t, err)

	v, err := autodiff.Evaluate[float64](e, autodiff.Scalars{}, map[string]float64{"x": 1.5, "y": 2})
	require.NoError(t, err)
	assert.InDelta(t, v, g.Value(n), 1e-12)
}
