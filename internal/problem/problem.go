// Package problem loads a differentiation problem (variables, formulas and
// an optional mode) from TOML, YAML or JSON files. Variable order in the file
// is kept: it becomes the Jacobian column order.
package problem

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/njchilds90/autodiff"
)

// Problem is one Jacobian computation request.
type Problem struct {
	Variables autodiff.Bindings
	Formulas  []string
	Mode      autodiff.Mode
	Extended  bool
}

// Format identifies a problem file syntax.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// DetectFormat maps a file extension to a Format.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", errors.Errorf("unrecognised problem file extension %q", filepath.Ext(path))
}

// Load reads and parses the problem file at path.
func Load(path string) (*Problem, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	p, err := Parse(data, format)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	return p, nil
}

// Parse decodes data in the given format.
func Parse(data []byte, format Format) (*Problem, error) {
	var (
		p   *Problem
		err error
	)
	switch format {
	case FormatTOML:
		p, err = parseTOML(data)
	case FormatYAML, FormatJSON:
		// JSON documents are valid YAML flow mappings.
		p, err = parseYAML(data)
	default:
		return nil, errors.Errorf("unsupported format %q", format)
	}
	if err != nil {
		return nil, err
	}
	if len(p.Formulas) == 0 {
		return nil, errors.Wrap(autodiff.ErrInvalidInput, "problem has no formulas")
	}
	return p, nil
}

// ============================================================
// TOML
// ============================================================

type tomlProblem struct {
	Mode      string      `toml:"mode"`
	Extended  bool        `toml:"extended"`
	Formulas  interface{} `toml:"formulas"`
	Variables interface{} `toml:"variables"`
}

func parseTOML(data []byte) (*Problem, error) {
	var raw tomlProblem
	md, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, err
	}
	p := &Problem{Extended: raw.Extended}
	if p.Mode, err = autodiff.ParseMode(raw.Mode); err != nil {
		return nil, err
	}
	if p.Formulas, err = formulaList(raw.Formulas); err != nil {
		return nil, err
	}

	switch vars := raw.Variables.(type) {
	case nil:
	case map[string]interface{}:
		// Tables decode into maps; the metadata remembers the file order.
		for _, key := range md.Keys() {
			if len(key) != 2 || key[0] != "variables" {
				continue
			}
			b, err := binding(key[1], vars[key[1]])
			if err != nil {
				return nil, err
			}
			p.Variables = append(p.Variables, b)
		}
	case []map[string]interface{}:
		for i, item := range vars {
			name, _ := item["name"].(string)
			if name == "" {
				return nil, errors.Wrapf(autodiff.ErrInvalidInput, "variables[%d] has no name", i)
			}
			b, err := binding(name, item["value"])
			if err != nil {
				return nil, err
			}
			p.Variables = append(p.Variables, b)
		}
	default:
		return nil, errors.Wrapf(autodiff.ErrInvalidInput, "variables must be a table or an array of tables, got %T", raw.Variables)
	}
	return p, nil
}

func formulaList(v interface{}) ([]string, error) {
	switch f := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{f}, nil
	case []interface{}:
		out := make([]string, len(f))
		for i, item := range f {
			s, ok := item.(string)
			if !ok {
				return nil, errors.Wrapf(autodiff.ErrInvalidInput, "formula %d is not a string", i)
			}
			out[i] = s
		}
		return out, nil
	}
	return nil, errors.Wrapf(autodiff.ErrInvalidInput, "formulas must be a string or a list of strings, got %T", v)
}

func binding(name string, v interface{}) (autodiff.Binding, error) {
	switch x := v.(type) {
	case int64:
		return autodiff.Binding{Name: name, Value: float64(x)}, nil
	case float64:
		return autodiff.Binding{Name: name, Value: x}, nil
	}
	return autodiff.Binding{}, errors.Wrapf(autodiff.ErrInvalidInput, "variable %q: value %v is not numeric", name, v)
}

// ============================================================
// YAML / JSON
// ============================================================

func parseYAML(data []byte) (*Problem, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return nil, errors.Wrap(autodiff.ErrInvalidInput, "empty problem document")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, errors.Wrap(autodiff.ErrInvalidInput, "problem must be a mapping")
	}

	p := &Problem{}
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i].Value, root.Content[i+1]
		var err error
		switch key {
		case "mode":
			var s string
			if err = val.Decode(&s); err == nil {
				p.Mode, err = autodiff.ParseMode(s)
			}
		case "extended":
			err = val.Decode(&p.Extended)
		case "formulas":
			p.Formulas, err = yamlFormulas(val)
		case "variables":
			p.Variables, err = yamlVariables(val)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "line %d: %s", val.Line, key)
		}
	}
	return p, nil
}

func yamlFormulas(n *yaml.Node) ([]string, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		return []string{n.Value}, nil
	case yaml.SequenceNode:
		out := make([]string, len(n.Content))
		for i, item := range n.Content {
			if item.Kind != yaml.ScalarNode || item.Tag != "!!str" {
				return nil, errors.Wrapf(autodiff.ErrInvalidInput, "formula %d is not a string", i)
			}
			out[i] = item.Value
		}
		return out, nil
	}
	return nil, errors.Wrap(autodiff.ErrInvalidInput, "formulas must be a string or a list of strings")
}

func yamlVariables(n *yaml.Node) (autodiff.Bindings, error) {
	var out autodiff.Bindings
	switch n.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			b, err := yamlBinding(n.Content[i].Value, n.Content[i+1])
			if err != nil {
				return nil, err
			}
			out = append(out, b)
		}
		return out, nil
	case yaml.SequenceNode:
		for i, item := range n.Content {
			var entry struct {
				Name  string    `yaml:"name"`
				Value yaml.Node `yaml:"value"`
			}
			if err := item.Decode(&entry); err != nil || entry.Name == "" {
				return nil, errors.Wrapf(autodiff.ErrInvalidInput, "variables[%d] must be {name, value}", i)
			}
			b, err := yamlBinding(entry.Name, &entry.Value)
			if err != nil {
				return nil, err
			}
			out = append(out, b)
		}
		return out, nil
	}
	return nil, errors.Wrap(autodiff.ErrInvalidInput, "variables must be a mapping or a list")
}

func yamlBinding(name string, n *yaml.Node) (autodiff.Binding, error) {
	if n.Kind != yaml.ScalarNode || (n.Tag != "!!int" && n.Tag != "!!float") {
		return autodiff.Binding{}, errors.Wrapf(autodiff.ErrInvalidInput, "variable %q: value %q is not numeric", name, n.Value)
	}
	var v float64
	if err := n.Decode(&v); err != nil {
		return autodiff.Binding{}, errors.Wrapf(autodiff.ErrInvalidInput, "variable %q: %v", name, err)
	}
	return autodiff.Binding{Name: name, Value: v}, nil
}
