package autodiff

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ============================================================
// MCP Tool Interface
// ============================================================

type ToolRequest struct {
	Tool   string                 `json:"tool"`
	Params map[string]interface{} `json:"params"`
}

type ToolResponse struct {
	Result interface{} `json:"result,omitempty"`
	LaTeX  string      `json:"latex,omitempty"`
	String string      `json:"string,omitempty"`
	Error  string      `json:"error,omitempty"`
	Kind   string      `json:"kind,omitempty"`
}

// ToolNames lists the tools HandleToolCall understands, in schema order.
func ToolNames() []string {
	names := make([]string, len(toolSpecs))
	for i, t := range toolSpecs {
		names[i] = t["name"].(string)
	}
	return names
}

func toolError(err error) ToolResponse {
	resp := ToolResponse{Error: err.Error()}
	var e *Error
	if errors.As(err, &e) {
		resp.Kind = string(e.Kind)
	} else if k, ok := errors.Cause(err).(Kind); ok {
		resp.Kind = string(k)
	}
	return resp
}

// HandleToolCall dispatches one tool call. Failures are reported in the
// Error field, never as a panic.
func HandleToolCall(req ToolRequest) ToolResponse {
	params := toolParams(req.Params)

	ext, _ := params["extended"].(bool)
	var (
		opts  []Option
		popts []ParseOption
	)
	if ext {
		opts = append(opts, WithExtendedFunctions())
		popts = append(popts, AllowExtended())
	}
	if w, ok := toFloat(params["workers"]); ok {
		opts = append(opts, WithWorkers(int(w)))
	}

	switch req.Tool {
	case "differentiate":
		vars, err := params.bindings("vars")
		if err != nil {
			return toolError(err)
		}
		formulas, err := params.formulas("formulas")
		if err != nil {
			return toolError(err)
		}
		if s, ok := params["mode"].(string); ok {
			mode, err := ParseMode(s)
			if err != nil {
				return toolError(err)
			}
			opts = append(opts, WithMode(mode))
		}
		res, err := Differentiate(vars, formulas, opts...)
		if err != nil {
			return toolError(err)
		}
		return ToolResponse{Result: res, LaTeX: matrixLaTeX(res.Jacobian), String: res.Describe()}

	case "gradient":
		vars, err := params.bindings("vars")
		if err != nil {
			return toolError(err)
		}
		formula, err := params.str("formula")
		if err != nil {
			return toolError(err)
		}
		v, grad, err := Gradient(vars, formula, opts...)
		if err != nil {
			return toolError(err)
		}
		byName := make(map[string]float64, len(grad))
		parts := make([]string, len(grad))
		for i, b := range vars {
			byName[b.Name] = grad[i]
			parts[i] = "d/d" + b.Name + " = " + strconv.FormatFloat(grad[i], 'g', -1, 64)
		}
		return ToolResponse{
			Result: map[string]interface{}{"value": v, "gradient": Floats(grad), "by_name": byName},
			String: strings.Join(parts, ", "),
		}

	case "evaluate":
		vars, err := params.bindings("vars")
		if err != nil {
			return toolError(err)
		}
		formulas, err := params.formulas("formulas")
		if err != nil {
			return toolError(err)
		}
		vals, err := Values(vars, formulas, opts...)
		if err != nil {
			return toolError(err)
		}
		strs := make([]string, len(vals))
		for i, v := range vals {
			strs[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		return ToolResponse{Result: Floats(vals), String: strings.Join(strs, ", ")}

	case "parse", "to_latex":
		e, err := params.expr("formula", popts)
		if err != nil {
			return toolError(err)
		}
		return ToolResponse{Result: e.toJSON(), LaTeX: e.LaTeX(), String: e.String()}

	case "free_symbols":
		e, err := params.expr("formula", popts)
		if err != nil {
			return toolError(err)
		}
		syms := FreeSymbols(e)
		return ToolResponse{Result: syms, String: strings.Join(syms, ", ")}

	case "graph":
		vars, err := params.bindings("vars")
		if err != nil {
			return toolError(err)
		}
		formula, err := params.str("formula")
		if err != nil {
			return toolError(err)
		}
		g, out, err := BuildGraph(vars, formula, opts...)
		if err != nil {
			return toolError(err)
		}
		dot, err := g.DOT("formula")
		if err != nil {
			return toolError(err)
		}
		return ToolResponse{
			Result: map[string]interface{}{"nodes": g.Len(), "edges": g.Edges(), "output": int(out), "value": g.Value(out)},
			String: dot,
		}

	case "functions":
		names := FunctionNames(ext)
		return ToolResponse{Result: names, String: strings.Join(names, ", ")}

	case "mcp_spec":
		return ToolResponse{Result: json.RawMessage(MCPToolSpec())}
	}
	return ToolResponse{Error: fmt.Sprintf("unknown tool: %s", req.Tool), Kind: string(ErrInvalidInput)}
}

// ============================================================
// Parameter decoding
// ============================================================

type toolParams map[string]interface{}

func missing(key string) error {
	return newError(ErrInvalidInput, "", nil, "missing param: %s", key)
}

func (p toolParams) str(key string) (string, error) {
	v, ok := p[key]
	if !ok {
		return "", missing(key)
	}
	s, ok := v.(string)
	if !ok {
		return "", newError(ErrInvalidInput, "", v, "param %s must be a string", key)
	}
	return s, nil
}

// formulas accepts one string or an array of strings.
func (p toolParams) formulas(key string) ([]string, error) {
	v, ok := p[key]
	if !ok {
		return nil, missing(key)
	}
	switch raw := v.(type) {
	case string:
		return []string{raw}, nil
	case []interface{}:
		out := make([]string, len(raw))
		for i, r := range raw {
			s, ok := r.(string)
			if !ok {
				return nil, newError(ErrInvalidInput, "", r, "formula %d is not a string", i)
			}
			out[i] = s
		}
		return out, nil
	}
	return nil, newError(ErrInvalidInput, "", v, "param %s must be a string or an array of strings", key)
}

// bindings accepts [{"name": "x", "value": 1}, ...], [["x", 1], ...] or
// {"x": 1, ...}. Objects have no order, so their variables are sorted by
// name.
func (p toolParams) bindings(key string) (Bindings, error) {
	v, ok := p[key]
	if !ok {
		return nil, missing(key)
	}
	switch raw := v.(type) {
	case map[string]interface{}:
		names := make([]string, 0, len(raw))
		for name := range raw {
			names = append(names, name)
		}
		sort.Strings(names)
		out := make(Bindings, 0, len(raw))
		for _, name := range names {
			b, err := binding(name, raw[name])
			if err != nil {
				return nil, err
			}
			out = append(out, b)
		}
		return out, nil
	case []interface{}:
		out := make(Bindings, 0, len(raw))
		for i, item := range raw {
			var name, value interface{}
			switch it := item.(type) {
			case map[string]interface{}:
				name, value = it["name"], it["value"]
			case []interface{}:
				if len(it) != 2 {
					return nil, newError(ErrInvalidInput, "", it, "%s[%d] must be a [name, value] pair", key, i)
				}
				name, value = it[0], it[1]
			default:
				return nil, newError(ErrInvalidInput, "", item, "%s[%d] must be an object or a pair", key, i)
			}
			s, ok := name.(string)
			if !ok {
				return nil, newError(ErrInvalidInput, "", name, "%s[%d] name must be a string", key, i)
			}
			b, err := binding(s, value)
			if err != nil {
				return nil, err
			}
			out = append(out, b)
		}
		return out, nil
	}
	return nil, newError(ErrInvalidInput, "", v, "param %s must be an object or an array", key)
}

func binding(name string, v interface{}) (Binding, error) {
	f, ok := toFloat(v)
	if !ok {
		return Binding{}, newError(ErrInvalidInput, "", v, "value of %q must be numeric, got %T", name, v)
	}
	return Binding{Name: name, Value: f}, nil
}

// expr accepts formula text under key, or an expression object under "expr".
func (p toolParams) expr(key string, opts []ParseOption) (Expr, error) {
	if obj, ok := p["expr"].(map[string]interface{}); ok {
		return FromJSON(obj)
	}
	s, err := p.str(key)
	if err != nil {
		return nil, err
	}
	return Parse(s, opts...)
}

func matrixLaTeX(rows [][]float64) string {
	var sb strings.Builder
	sb.WriteString(`\begin{pmatrix}`)
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(` \\`)
		}
		for j, v := range row {
			if j > 0 {
				sb.WriteString(" &")
			}
			sb.WriteString(" ")
			sb.WriteString(strconv.FormatFloat(v, 'g', 6, 64))
		}
	}
	sb.WriteString(` \end{pmatrix}`)
	return sb.String()
}

// ============================================================
// Tool schema
// ============================================================

var toolSpecs = []map[string]interface{}{
	ts("differentiate", "Values and Jacobian of formulas at a point. vars is [{name,value}], [[name,value]] or {name:value}; optional mode (auto|forward|reverse)", []string{"vars", "formulas"}, map[string]string{"vars": "array", "formulas": "array", "mode": "string", "extended": "boolean", "workers": "integer"}),
	ts("gradient", "Value and gradient of one formula", []string{"vars", "formula"}, map[string]string{"vars": "array", "formula": "string", "extended": "boolean"}),
	ts("evaluate", "Evaluate formulas without derivatives", []string{"vars", "formulas"}, map[string]string{"vars": "array", "formulas": "array", "extended": "boolean"}),
	ts("parse", "Parse a formula into an expression object", []string{"formula"}, map[string]string{"formula": "string", "extended": "boolean"}),
	ts("to_latex", "Convert a formula or expression object to LaTeX", []string{}, map[string]string{"formula": "string", "expr": "object", "extended": "boolean"}),
	ts("free_symbols", "Return the variable names a formula uses", []string{}, map[string]string{"formula": "string", "expr": "object", "extended": "boolean"}),
	ts("graph", "Graphviz DOT of the reverse-mode computation graph", []string{"vars", "formula"}, map[string]string{"vars": "array", "formula": "string", "extended": "boolean"}),
	ts("functions", "List the functions formulas may call", []string{}, map[string]string{"extended": "boolean"}),
	ts("mcp_spec", "Return this tool schema", []string{}, map[string]string{}),
}

// ToolSpec returns the schema entry of one tool.
func ToolSpec(name string) (description string, required []string, props map[string]string, ok bool) {
	for _, t := range toolSpecs {
		if t["name"] != name {
			continue
		}
		schema := t["inputSchema"].(map[string]interface{})
		props = map[string]string{}
		for k, v := range schema["properties"].(map[string]interface{}) {
			props[k] = v.(map[string]interface{})["type"].(string)
		}
		return t["description"].(string), schema["required"].([]string), props, true
	}
	return "", nil, nil, false
}

func MCPToolSpec() string {
	spec := map[string]interface{}{"tools": toolSpecs}
	b, _ := json.MarshalIndent(spec, "", "  ")
	return string(b)
}

func ts(name, description string, required []string, props map[string]string) map[string]interface{} {
	properties := map[string]interface{}{}
	for k, typ := range props {
		properties[k] = map[string]interface{}{"type": typ}
	}
	return map[string]interface{}{
		"name":        name,
		"description": description,
		"inputSchema": map[string]interface{}{
			"type":       "object",
			"properties": properties,
			"required":   required,
		},
	}
}
