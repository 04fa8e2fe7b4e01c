package main

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testService() *service {
	l := log.New()
	l.SetOutput(io.Discard)
	return newService(l, 1)
}

func postTool(t *testing.T, h http.Handler, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tool", strings.NewReader(body)))
	resp := rec.Result()
	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestToolEndpoint_Differentiate(t *testing.T) {
	h := testService().handler(nil)
	resp, out := postTool(t, h, `{"tool": "differentiate", "params": {
		"vars": [["x", 1], ["y", 1]],
		"formulas": ["x**2 + y**2", "exp(x + y)"]}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, out["error"])

	result := out["result"].(map[string]interface{})
	assert.Equal(t, "forward", result["mode"])
	jac := result["jacobian"].([]interface{})
	row := jac[1].([]interface{})
	assert.InDelta(t, math.Exp(2), row[0].(float64), 1e-9)
}

func TestToolEndpoint_Errors(t *testing.T) {
	h := testService().handler(nil)

	resp, out := postTool(t, h, `{"tool": "differentiate", "params": {"vars": {"x": "a"}, "formulas": ["x"]}}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "invalid input", out["kind"])

	resp, _ = postTool(t, h, `{"tool": "x", "bogus": 1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = postTool(t, h, `{"tool": "functions"} {}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tool", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestToolEndpoint_NonFiniteJacobian(t *testing.T) {
	h := testService().handler(nil)
	// d/dx sqrt(x) at 0 is +Inf
	resp, out := postTool(t, h, `{"tool": "differentiate", "params": {"vars": [["x", 0]], "formulas": ["x**0.5"]}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, out)
	require.Empty(t, out["error"])

	result := out["result"].(map[string]interface{})
	assert.Equal(t, []interface{}{0.0}, result["func_evals"])
	assert.Equal(t, []interface{}{[]interface{}{"+Inf"}}, result["jacobian"])
}

func TestToolEndpoint_EncodeFailure(t *testing.T) {
	h := testService().handler(nil)
	resp, out := postTool(t, h, `{"tool": "to_latex", "params": {"expr": {"type": "num", "value": "NaN"}}}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Contains(t, out["error"], "encoding result")
}

func TestSchemaHealthMetrics(t *testing.T) {
	s := testService()
	h := s.handler(nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/schema", nil))
	assert.Contains(t, rec.Body.String(), `"differentiate"`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Contains(t, rec.Body.String(), `"ok"`)

	postTool(t, h, `{"tool": "evaluate", "params": {"vars": {"x": 2}, "formulas": ["x*x", "x+1"]}}`)
	postTool(t, h, `{"tool": "evaluate", "params": {"vars": {"x": -1}, "formulas": "sqrt(x)"}}`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `autodiff_tool_calls_total{tool="evaluate",transport="http"} 2`)
	assert.Contains(t, body, `autodiff_tool_errors_total{kind="domain error",tool="evaluate"} 1`)
	assert.Contains(t, body, `autodiff_formulas_per_call_count 2`)
}

func TestNewTool_Schema(t *testing.T) {
	tool := newTool("differentiate")
	assert.Equal(t, "differentiate", tool.Name)
	assert.ElementsMatch(t, []string{"vars", "formulas"}, tool.InputSchema.Required)
	assert.Contains(t, tool.InputSchema.Properties, "mode")
}

func TestToolHandler(t *testing.T) {
	s := testService()

	req := mcp.CallToolRequest{}
	req.Params.Name = "gradient"
	req.Params.Arguments = map[string]interface{}{
		"vars":    []interface{}{map[string]interface{}{"name": "x", "value": 3.0}},
		"formula": "x**2",
	}
	res, err := s.toolHandler("gradient")(context.Background(), req)
	require.NoError(t, err)
	require.False(t, res.IsError)
	text := res.Content[0].(mcp.TextContent).Text

	var out struct {
		Result struct {
			Value    float64   `json:"value"`
			Gradient []float64 `json:"gradient"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &out))
	assert.InDelta(t, 9, out.Result.Value, 1e-12)
	assert.InDeltaSlice(t, []float64{6}, out.Result.Gradient, 1e-12)

	req.Params.Arguments = map[string]interface{}{"vars": map[string]interface{}{"x": 0.0}, "formula": "1/x"}
	res, err = s.toolHandler("gradient")(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestMCPFlags_ToOptions(t *testing.T) {
	f := NewMCPFlags()
	o, err := f.ToOptions()
	require.NoError(t, err)
	assert.Equal(t, "stdio", o.Mode)

	f.Mode = "carrier-pigeon"
	_, err = f.ToOptions()
	assert.Error(t, err)

	f.Mode, f.LogLevel = "http", "loud"
	_, err = f.ToOptions()
	assert.Error(t, err)
}
