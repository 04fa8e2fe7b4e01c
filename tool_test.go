package autodiff_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/njchilds90/autodiff"
)

func call(tool string, params map[string]interface{}) autodiff.ToolResponse {
	return autodiff.HandleToolCall(autodiff.ToolRequest{Tool: tool, Params: params})
}

// ============================================================
// Differentiation tools
// ============================================================

func TestTool_Differentiate(t *testing.T) {
	resp := call("differentiate", map[string]interface{}{
		"vars":     map[string]interface{}{"y": 1.0, "x": 1.0},
		"formulas": []interface{}{"x**2 + 3*y", "exp(x + y)"},
		"mode":     "reverse",
	})
	require.Empty(t, resp.Error)

	res, ok := resp.Result.(*autodiff.Result)
	require.True(t, ok)
	assert.Equal(t, autodiff.ModeReverse, res.Mode)
	assert.Equal(t, []string{"x", "y"}, res.Variables.Names())
	assert.Equal(t, []float64{2, 3}, res.Jacobian[0])
	assert.InDelta(t, math.Exp(2), res.Values[1], 1e-12)
	assert.Contains(t, resp.LaTeX, `\begin{pmatrix} 2 & 3 \\`)
	assert.Contains(t, resp.String, "Mode: reverse")
}

func TestTool_DifferentiateBindingShapes(t *testing.T) {
	shapes := []interface{}{
		[]interface{}{
			map[string]interface{}{"name": "b", "value": 2.0},
			map[string]interface{}{"name": "a", "value": 1},
		},
		[]interface{}{[]interface{}{"b", 2.0}, []interface{}{"a", 1.0}},
	}
	for _, vars := range shapes {
		resp := call("differentiate", map[string]interface{}{"vars": vars, "formulas": "a - b"})
		require.Empty(t, resp.Error)
		res := resp.Result.(*autodiff.Result)
		// arrays keep their order
		assert.Equal(t, []string{"b", "a"}, res.Variables.Names())
		assert.Equal(t, []float64{-1, 1}, res.Jacobian[0])
	}

	for _, vars := range []interface{}{
		"x=1",
		[]interface{}{[]interface{}{"x"}},
		[]interface{}{3.0},
		[]interface{}{map[string]interface{}{"name": 1.0, "value": 1.0}},
		map[string]interface{}{"x": true},
	} {
		resp := call("differentiate", map[string]interface{}{"vars": vars, "formulas": "x"})
		assert.Equal(t, "invalid input", resp.Kind, "%v", vars)
	}
}

func TestTool_Gradient(t *testing.T) {
	resp := call("gradient", map[string]interface{}{
		"vars":    map[string]interface{}{"x": 2.0, "y": 3.0},
		"formula": "x * y",
	})
	require.Empty(t, resp.Error)
	result := resp.Result.(map[string]interface{})
	assert.Equal(t, 6.0, result["value"])
	assert.Equal(t, autodiff.Floats{3, 2}, result["gradient"])
	assert.Equal(t, map[string]float64{"x": 3, "y": 2}, result["by_name"])
	assert.Equal(t, "d/dx = 3, d/dy = 2", resp.String)
}

func TestTool_Evaluate(t *testing.T) {
	resp := call("evaluate", map[string]interface{}{
		"vars":     map[string]interface{}{"x": 4.0},
		"formulas": []interface{}{"sqrt(x)", "x / 8"},
	})
	require.Empty(t, resp.Error)
	assert.Equal(t, autodiff.Floats{2, 0.5}, resp.Result)
	assert.Equal(t, "2, 0.5", resp.String)
}

// ============================================================
// Expression tools
// ============================================================

func TestTool_ParseAndLaTeX(t *testing.T) {
	resp := call("parse", map[string]interface{}{"formula": "x/2"})
	require.Empty(t, resp.Error)
	assert.Equal(t, `\frac{x}{2}`, resp.LaTeX)
	assert.Equal(t, "x / 2", resp.String)
	tree := resp.Result.(map[string]interface{})
	assert.Equal(t, "div", tree["type"])

	resp = call("to_latex", map[string]interface{}{"expr": map[string]interface{}{
		"type": "call", "name": "sqrt",
		"args": []interface{}{map[string]interface{}{"type": "sym", "name": "x"}},
	}})
	require.Empty(t, resp.Error)
	assert.Equal(t, `\sqrt{x}`, resp.LaTeX)

	resp = call("parse", map[string]interface{}{"formula": "abs(x)"})
	assert.Equal(t, "unknown identifier", resp.Kind)
	resp = call("parse", map[string]interface{}{"formula": "abs(x)", "extended": true})
	assert.Empty(t, resp.Error)

	resp = call("parse", map[string]interface{}{"formula": "x +"})
	assert.Equal(t, "syntax error", resp.Kind)
}

func TestTool_FreeSymbols(t *testing.T) {
	resp := call("free_symbols", map[string]interface{}{"formula": "b*sin(a) + b"})
	require.Empty(t, resp.Error)
	assert.Equal(t, []string{"a", "b"}, resp.Result)
	assert.Equal(t, "a, b", resp.String)
}

func TestTool_Graph(t *testing.T) {
	resp := call("graph", map[string]interface{}{
		"vars":    map[string]interface{}{"x": 1.0},
		"formula": "x * x",
	})
	require.Empty(t, resp.Error)
	result := resp.Result.(map[string]interface{})
	assert.Equal(t, 2, result["nodes"])
	assert.Equal(t, 2, result["edges"])
	assert.Equal(t, 1, result["output"])
	assert.Contains(t, resp.String, "digraph")
}

// ============================================================
// Catalogue and schema
// ============================================================

func TestTool_Functions(t *testing.T) {
	resp := call("functions", nil)
	assert.Len(t, resp.Result, 12)
	resp = call("functions", map[string]interface{}{"extended": true})
	assert.Contains(t, resp.Result, "sigmoid")
}

func TestTool_Spec(t *testing.T) {
	names := autodiff.ToolNames()
	assert.Equal(t, "differentiate", names[0])
	assert.Contains(t, names, "mcp_spec")

	desc, required, props, ok := autodiff.ToolSpec("gradient")
	require.True(t, ok)
	assert.NotEmpty(t, desc)
	assert.Equal(t, []string{"vars", "formula"}, required)
	assert.Equal(t, "string", props["formula"])
	_, _, _, ok = autodiff.ToolSpec("nope")
	assert.False(t, ok)

	resp := call("mcp_spec", nil)
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var spec struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(raw, &spec))
	assert.Len(t, spec.Tools, len(names))
}

// ============================================================
// Failures
// ============================================================

func TestTool_Errors(t *testing.T) {
	cases := []struct {
		tool   string
		params map[string]interface{}
		kind   string
	}{
		{"integrate", nil, "invalid input"},
		{"differentiate", map[string]interface{}{"formulas": "x"}, "invalid input"},
		{"differentiate", map[string]interface{}{"vars": map[string]interface{}{}, "formulas": 3.0}, "invalid input"},
		{"differentiate", map[string]interface{}{"vars": map[string]interface{}{"x": 1.0}, "formulas": "x", "mode": "up"}, "invalid input"},
		{"differentiate", map[string]interface{}{"vars": map[string]interface{}{"x": 0.0}, "formulas": []interface{}{"1/x"}}, "division by zero"},
		{"gradient", map[string]interface{}{"vars": map[string]interface{}{"x": 2.0}, "formula": "arcsin(x)"}, "domain error"},
		{"gradient", map[string]interface{}{"vars": map[string]interface{}{"x": 2.0}, "formula": 1.0}, "invalid input"},
		{"evaluate", map[string]interface{}{"vars": map[string]interface{}{}, "formulas": []interface{}{"y"}}, "unknown identifier"},
		{"evaluate", map[string]interface{}{"vars": map[string]interface{}{}, "formulas": []interface{}{"1", 2.0}}, "invalid input"},
		{"free_symbols", map[string]interface{}{}, "invalid input"},
	}
	for _, tc := range cases {
		resp := call(tc.tool, tc.params)
		assert.NotEmpty(t, resp.Error, "%s %v", tc.tool, tc.params)
		assert.Equal(t, tc.kind, resp.Kind, "%s %v: %s", tc.tool, tc.params, resp.Error)
		assert.Nil(t, resp.Result)
	}
}
