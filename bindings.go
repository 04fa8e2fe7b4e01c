package autodiff

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/multierr"
)

// ============================================================
// Bindings: ordered variable assignments
// ============================================================

// Binding assigns a value to one variable.
type Binding struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Bindings is an ordered list of variable assignments. Its order is the
// column order of every Jacobian computed from it.
type Bindings []Binding

// Vars builds Bindings from alternating name, value pairs:
//
//	Vars("x", 1.0, "y", 2)
func Vars(kv ...interface{}) (Bindings, error) {
	if len(kv)%2 != 0 {
		return nil, newError(ErrInvalidInput, "", nil, "odd number of arguments to Vars")
	}
	out := make(Bindings, 0, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		name, ok := kv[i].(string)
		if !ok {
			return nil, newError(ErrInvalidInput, "", kv[i], "variable name must be a string, got %T", kv[i])
		}
		v, ok := toFloat(kv[i+1])
		if !ok {
			return nil, newError(ErrInvalidInput, "", kv[i+1], "value of %q must be numeric, got %T", name, kv[i+1])
		}
		out = append(out, Binding{Name: name, Value: v})
	}
	return out, nil
}

// FromMap builds Bindings from a map, ordered by name.
func FromMap(m map[string]float64) Bindings {
	out := make(Bindings, 0, len(m))
	for name, v := range m {
		out = append(out, Binding{Name: name, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (b Bindings) Names() []string {
	out := make([]string, len(b))
	for i, v := range b {
		out[i] = v.Name
	}
	return out
}

func (b Bindings) Values() []float64 {
	out := make([]float64, len(b))
	for i, v := range b {
		out[i] = v.Value
	}
	return out
}

// Lookup returns the value bound to name.
func (b Bindings) Lookup(name string) (float64, bool) {
	for _, v := range b {
		if v.Name == name {
			return v.Value, true
		}
	}
	return 0, false
}

// Validate reports every malformed, duplicate, reserved or non-finite
// binding at once.
func (b Bindings) Validate() error {
	var errs error
	seen := make(map[string]bool, len(b))
	for _, v := range b {
		switch {
		case !isIdentifier(v.Name):
			errs = multierr.Append(errs, newError(ErrInvalidInput, "", v.Name, "%q is not a valid variable name", v.Name))
			continue
		case seen[v.Name]:
			errs = multierr.Append(errs, newError(ErrInvalidInput, "", v.Name, "variable %q bound twice", v.Name))
			continue
		}
		seen[v.Name] = true
		if _, ok := functions[v.Name]; ok {
			errs = multierr.Append(errs, newError(ErrInvalidInput, "", v.Name, "%q is a function name", v.Name))
		}
		if math.IsNaN(v.Value) || math.IsInf(v.Value, 0) {
			errs = multierr.Append(errs, newError(ErrInvalidInput, "", v.Value, "value of %q is not finite", v.Name))
		}
	}
	return errs
}

func (b Bindings) String() string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = v.Name + "=" + strconv.FormatFloat(v.Value, 'g', -1, 64)
	}
	return strings.Join(parts, ", ")
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '_' || isLetter(c) || (i > 0 && isDigit(c)) {
			continue
		}
		return false
	}
	return true
}
