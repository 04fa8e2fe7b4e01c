package autodiff

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ============================================================
// Core Interface
// ============================================================

// Expr is a parsed formula. Nodes are immutable and can be evaluated any
// number of times under any Algebra.
type Expr interface {
	String() string
	LaTeX() string
	Equal(other Expr) bool
	exprType() string
	toJSON() map[string]interface{}
}

// Op is a binary operator.
type Op byte

const (
	OpAdd Op = '+'
	OpSub Op = '-'
	OpMul Op = '*'
	OpDiv Op = '/'
	OpPow Op = '^'
)

func (o Op) String() string {
	if o == OpPow {
		return "**"
	}
	return string(o)
}

func (o Op) name() string {
	switch o {
	case OpAdd:
		return "add"
	case OpSub:
		return "sub"
	case OpMul:
		return "mul"
	case OpDiv:
		return "div"
	case OpPow:
		return "pow"
	}
	return "?"
}

// precedence levels used for printing
const (
	precAdd = iota + 1
	precMul
	precUnary
	precPow
	precAtom
)

func (o Op) prec() int {
	switch o {
	case OpAdd, OpSub:
		return precAdd
	case OpMul, OpDiv:
		return precMul
	}
	return precPow
}

func precOf(e Expr) int {
	switch v := e.(type) {
	case *BinOp:
		return v.op.prec()
	case *Neg:
		return precUnary
	case *Num:
		if v.val < 0 {
			return precUnary
		}
	}
	return precAtom
}

func wrap(s string, paren bool) string {
	if paren {
		return "(" + s + ")"
	}
	return s
}

// ============================================================
// Num: numeric literal
// ============================================================

type Num struct{ val float64 }

func N(v float64) *Num { return &Num{val: v} }

func (n *Num) Value() float64   { return n.val }
func (n *Num) String() string   { return strconv.FormatFloat(n.val, 'g', -1, 64) }
func (n *Num) LaTeX() string    { return n.String() }
func (n *Num) exprType() string { return "num" }
func (n *Num) Equal(other Expr) bool {
	o, ok := other.(*Num)
	return ok && n.val == o.val
}
func (n *Num) toJSON() map[string]interface{} {
	return map[string]interface{}{"type": "num", "value": n.val}
}

// ============================================================
// Sym: variable reference
// ============================================================

type Sym struct{ name string }

func S(name string) *Sym { return &Sym{name: name} }

func (s *Sym) Name() string     { return s.name }
func (s *Sym) String() string   { return s.name }
func (s *Sym) LaTeX() string    { return s.name }
func (s *Sym) exprType() string { return "sym" }
func (s *Sym) Equal(other Expr) bool {
	o, ok := other.(*Sym)
	return ok && s.name == o.name
}
func (s *Sym) toJSON() map[string]interface{} {
	return map[string]interface{}{"type": "sym", "name": s.name}
}

// ============================================================
// Neg: unary minus
// ============================================================

type Neg struct{ x Expr }

func NegOf(x Expr) *Neg { return &Neg{x: x} }

func (n *Neg) Operand() Expr    { return n.x }
func (n *Neg) exprType() string { return "neg" }
func (n *Neg) String() string {
	return "-" + wrap(n.x.String(), precOf(n.x) < precPow)
}
func (n *Neg) LaTeX() string {
	return "-" + wrap(n.x.LaTeX(), precOf(n.x) < precPow)
}
func (n *Neg) Equal(other Expr) bool {
	o, ok := other.(*Neg)
	return ok && n.x.Equal(o.x)
}
func (n *Neg) toJSON() map[string]interface{} {
	return map[string]interface{}{"type": "neg", "x": n.x.toJSON()}
}

// ============================================================
// BinOp: + - * / **
// ============================================================

type BinOp struct {
	op   Op
	l, r Expr
}

func binOf(op Op, l, r Expr) *BinOp { return &BinOp{op: op, l: l, r: r} }

func AddOf(l, r Expr) *BinOp { return binOf(OpAdd, l, r) }
func SubOf(l, r Expr) *BinOp { return binOf(OpSub, l, r) }
func MulOf(l, r Expr) *BinOp { return binOf(OpMul, l, r) }
func DivOf(l, r Expr) *BinOp { return binOf(OpDiv, l, r) }
func PowOf(l, r Expr) *BinOp { return binOf(OpPow, l, r) }

func (b *BinOp) Op() Op           { return b.op }
func (b *BinOp) Left() Expr       { return b.l }
func (b *BinOp) Right() Expr      { return b.r }
func (b *BinOp) exprType() string { return b.op.name() }

// operand parenthesisation: left-associative operators need parens on a
// right operand of equal precedence, ** is right-associative.
func (b *BinOp) parens() (left, right bool) {
	p := b.op.prec()
	lp, rp := precOf(b.l), precOf(b.r)
	if b.op == OpPow {
		return lp <= precPow, rp < precUnary
	}
	return lp < p, rp <= p
}

func (b *BinOp) String() string {
	lp, rp := b.parens()
	sep := " " + b.op.String() + " "
	if b.op == OpPow {
		sep = "**"
	}
	return wrap(b.l.String(), lp) + sep + wrap(b.r.String(), rp)
}

func (b *BinOp) LaTeX() string {
	switch b.op {
	case OpDiv:
		return "\\frac{" + b.l.LaTeX() + "}{" + b.r.LaTeX() + "}"
	case OpPow:
		return wrapLaTeX(b.l.LaTeX(), precOf(b.l) <= precPow) + "^{" + b.r.LaTeX() + "}"
	case OpMul:
		lp, rp := b.parens()
		return wrapLaTeX(b.l.LaTeX(), lp) + " \\cdot " + wrapLaTeX(b.r.LaTeX(), rp)
	}
	lp, rp := b.parens()
	return wrapLaTeX(b.l.LaTeX(), lp) + " " + b.op.String() + " " + wrapLaTeX(b.r.LaTeX(), rp)
}

func wrapLaTeX(s string, paren bool) string {
	if paren {
		return "\\left(" + s + "\\right)"
	}
	return s
}

func (b *BinOp) Equal(other Expr) bool {
	o, ok := other.(*BinOp)
	return ok && b.op == o.op && b.l.Equal(o.l) && b.r.Equal(o.r)
}

func (b *BinOp) toJSON() map[string]interface{} {
	return map[string]interface{}{"type": b.op.name(), "left": b.l.toJSON(), "right": b.r.toJSON()}
}

// ============================================================
// Call: function application
// ============================================================

type Call struct {
	name string
	args []Expr
}

func CallOf(name string, args ...Expr) *Call { return &Call{name: name, args: args} }

func (c *Call) FuncName() string { return c.name }
func (c *Call) Args() []Expr     { return c.args }
func (c *Call) exprType() string { return "call" }

func (c *Call) String() string {
	parts := make([]string, len(c.args))
	for i, a := range c.args {
		parts[i] = a.String()
	}
	return c.name + "(" + strings.Join(parts, ", ") + ")"
}

func (c *Call) LaTeX() string {
	arg := func(i int) string {
		if i < len(c.args) {
			return c.args[i].LaTeX()
		}
		return ""
	}
	switch c.name {
	case "sqrt":
		return "\\sqrt{" + arg(0) + "}"
	case "exp":
		return "e^{" + arg(0) + "}"
	case "log":
		if len(c.args) == 2 {
			return "\\log_{" + arg(1) + "}\\left(" + arg(0) + "\\right)"
		}
		return "\\ln\\left(" + arg(0) + "\\right)"
	case "sin", "cos", "tan", "arcsin", "arccos", "arctan", "sinh", "cosh", "tanh":
		return "\\" + c.name + "\\left(" + arg(0) + "\\right)"
	case "abs":
		return "\\left|" + arg(0) + "\\right|"
	}
	return "\\operatorname{" + c.name + "}\\left(" + arg(0) + "\\right)"
}

func (c *Call) Equal(other Expr) bool {
	o, ok := other.(*Call)
	if !ok || c.name != o.name || len(c.args) != len(o.args) {
		return false
	}
	for i := range c.args {
		if !c.args[i].Equal(o.args[i]) {
			return false
		}
	}
	return true
}

func (c *Call) toJSON() map[string]interface{} {
	args := make([]interface{}, len(c.args))
	for i, a := range c.args {
		args[i] = a.toJSON()
	}
	return map[string]interface{}{"type": "call", "name": c.name, "args": args}
}

// ============================================================
// Free Symbols
// ============================================================

// FreeSymbols returns the variable names referenced by e, sorted.
func FreeSymbols(e Expr) []string {
	seen := map[string]struct{}{}
	collectSymbols(e, seen)
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func collectSymbols(e Expr, out map[string]struct{}) {
	switch v := e.(type) {
	case *Sym:
		out[v.name] = struct{}{}
	case *Neg:
		collectSymbols(v.x, out)
	case *BinOp:
		collectSymbols(v.l, out)
		collectSymbols(v.r, out)
	case *Call:
		for _, a := range v.args {
			collectSymbols(a, out)
		}
	}
}

// ============================================================
// JSON Serialization
// ============================================================

func ToJSON(e Expr) (string, error) {
	b, err := json.Marshal(e.toJSON())
	return string(b), err
}

// JSONValue returns the generic JSON tree of e.
func JSONValue(e Expr) map[string]interface{} { return e.toJSON() }

func FromJSON(data map[string]interface{}) (Expr, error) {
	if data == nil {
		return nil, fmt.Errorf("expression must be an object")
	}
	typAny, ok := data["type"]
	if !ok {
		return nil, fmt.Errorf("missing 'type' field")
	}
	typ, ok := typAny.(string)
	if !ok || typ == "" {
		return nil, fmt.Errorf("field 'type' must be a non-empty string")
	}

	subObj := func(field string) (Expr, error) {
		v, ok := data[field]
		if !ok {
			return nil, fmt.Errorf("%s: missing %q", typ, field)
		}
		m, ok := v.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%s: %q must be an object", typ, field)
		}
		return FromJSON(m)
	}

	subString := func(field string) (string, error) {
		v, ok := data[field]
		if !ok {
			return "", fmt.Errorf("%s: missing %q", typ, field)
		}
		s, ok := v.(string)
		if !ok || s == "" {
			return "", fmt.Errorf("%s: %q must be a non-empty string", typ, field)
		}
		return s, nil
	}

	binary := func(op Op) (Expr, error) {
		l, err := subObj("left")
		if err != nil {
			return nil, err
		}
		r, err := subObj("right")
		if err != nil {
			return nil, err
		}
		return binOf(op, l, r), nil
	}

	switch typ {
	case "num":
		switch v := data["value"].(type) {
		case float64:
			return N(v), nil
		case json.Number:
			f, err := v.Float64()
			if err != nil {
				return nil, fmt.Errorf("num: %v", err)
			}
			return N(f), nil
		case string:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("num: invalid value %q", v)
			}
			return N(f), nil
		}
		if f, ok := toFloat(data["value"]); ok {
			return N(f), nil
		}
		return nil, fmt.Errorf("num: 'value' must be a number")
	case "sym":
		name, err := subString("name")
		if err != nil {
			return nil, err
		}
		return S(name), nil
	case "neg":
		x, err := subObj("x")
		if err != nil {
			return nil, err
		}
		return NegOf(x), nil
	case "add":
		return binary(OpAdd)
	case "sub":
		return binary(OpSub)
	case "mul":
		return binary(OpMul)
	case "div":
		return binary(OpDiv)
	case "pow":
		return binary(OpPow)
	case "call":
		name, err := subString("name")
		if err != nil {
			return nil, err
		}
		raw, ok := data["args"].([]interface{})
		if !ok {
			return nil, fmt.Errorf("call: 'args' must be an array")
		}
		args := make([]Expr, len(raw))
		for i, it := range raw {
			m, ok := it.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("call: 'args'[%d] must be an object", i)
			}
			a, err := FromJSON(m)
			if err != nil {
				return nil, err
			}
			args[i] = a
		}
		return CallOf(name, args...), nil
	}
	return nil, fmt.Errorf("unknown expression type %q", typ)
}
