package autodiff

import (
	"strconv"
	"unicode"
	"unicode/utf8"
)

// ============================================================
// Lexer
// ============================================================

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNum
	tokIdent
	tokOp // + - * / **
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokenKind
	text string
	pos  int
	num  float64
}

type lexer struct {
	src string
	pos int
}

func (l *lexer) syntaxError(pos int, format string, args ...interface{}) *Error {
	e := newError(ErrSyntax, "", nil, format, args...)
	e.Formula = l.src
	e.Pos = pos
	return e
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) {
		r, size := utf8.DecodeRuneInString(l.src[l.pos:])
		if !unicode.IsSpace(r) {
			break
		}
		l.pos += size
	}
	start := l.pos
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: start}, nil
	}
	c := l.src[l.pos]
	switch {
	case c == '(':
		l.pos++
		return token{kind: tokLParen, text: "(", pos: start}, nil
	case c == ')':
		l.pos++
		return token{kind: tokRParen, text: ")", pos: start}, nil
	case c == ',':
		l.pos++
		return token{kind: tokComma, text: ",", pos: start}, nil
	case c == '+' || c == '-' || c == '/':
		l.pos++
		return token{kind: tokOp, text: string(c), pos: start}, nil
	case c == '*':
		l.pos++
		if l.pos < len(l.src) && l.src[l.pos] == '*' {
			l.pos++
			return token{kind: tokOp, text: "**", pos: start}, nil
		}
		return token{kind: tokOp, text: "*", pos: start}, nil
	case isDigit(c) || c == '.':
		return l.number()
	case c == '_' || isLetter(c):
		for l.pos < len(l.src) && (l.src[l.pos] == '_' || isLetter(l.src[l.pos]) || isDigit(l.src[l.pos])) {
			l.pos++
		}
		return token{kind: tokIdent, text: l.src[start:l.pos], pos: start}, nil
	}
	r, _ := utf8.DecodeRuneInString(l.src[l.pos:])
	return token{}, l.syntaxError(start, "unexpected character %q", r)
}

// number scans digits [. digits] [(e|E) [+|-] digits].
func (l *lexer) number() (token, error) {
	start := l.pos
	digits := 0
	for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
		l.pos++
		digits++
	}
	if l.pos < len(l.src) && l.src[l.pos] == '.' {
		l.pos++
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
			digits++
		}
	}
	if digits == 0 {
		return token{}, l.syntaxError(start, "malformed number")
	}
	if l.pos < len(l.src) && (l.src[l.pos] == 'e' || l.src[l.pos] == 'E') {
		l.pos++
		if l.pos < len(l.src) && (l.src[l.pos] == '+' || l.src[l.pos] == '-') {
			l.pos++
		}
		expDigits := 0
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
			expDigits++
		}
		if expDigits == 0 {
			return token{}, l.syntaxError(start, "malformed exponent in number")
		}
	}
	text := l.src[start:l.pos]
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return token{}, l.syntaxError(start, "invalid number %q", text)
	}
	return token{kind: tokNum, text: text, pos: start, num: v}, nil
}

func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
func isLetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

// ============================================================
// Parser
// ============================================================

// ParseOption configures Parse.
type ParseOption func(*parseConfig)

type parseConfig struct {
	extended bool
}

// AllowExtended accepts the extended function vocabulary (abs, sigmoid).
func AllowExtended() ParseOption {
	return func(c *parseConfig) { c.extended = true }
}

type parser struct {
	lex *lexer
	tok token
	cfg parseConfig
}

// Parse turns a formula into an expression tree.
//
//	expr    := term (('+' | '-') term)*
//	term    := unary (('*' | '/') unary)*
//	unary   := '-' unary | power
//	power   := primary ('**' unary)?
//	primary := number | ident | ident '(' expr (',' expr)* ')' | '(' expr ')'
//
// so -x**2 is -(x**2) and 2**-x**2 is 2**(-(x**2)).
func Parse(src string, opts ...ParseOption) (Expr, error) {
	p := &parser{lex: &lexer{src: src}}
	for _, opt := range opts {
		opt(&p.cfg)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.tok.kind == tokEOF {
		return nil, p.lex.syntaxError(0, "empty formula")
	}
	e, err := p.expr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, p.lex.syntaxError(p.tok.pos, "unexpected %q", p.tok.text)
	}
	return e, nil
}

func (p *parser) advance() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *parser) isOp(text string) bool { return p.tok.kind == tokOp && p.tok.text == text }

func (p *parser) expr() (Expr, error) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}
	for p.isOp("+") || p.isOp("-") {
		op := Op(p.tok.text[0])
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.term()
		if err != nil {
			return nil, err
		}
		left = binOf(op, left, right)
	}
	return left, nil
}

func (p *parser) term() (Expr, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.isOp("*") || p.isOp("/") {
		op := Op(p.tok.text[0])
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = binOf(op, left, right)
	}
	return left, nil
}

func (p *parser) unary() (Expr, error) {
	if p.isOp("-") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return NegOf(x), nil
	}
	return p.power()
}

func (p *parser) power() (Expr, error) {
	base, err := p.primary()
	if err != nil {
		return nil, err
	}
	if !p.isOp("**") {
		return base, nil
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	exp, err := p.unary()
	if err != nil {
		return nil, err
	}
	return PowOf(base, exp), nil
}

func (p *parser) primary() (Expr, error) {
	t := p.tok
	switch t.kind {
	case tokNum:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return N(t.num), nil
	case tokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		e, err := p.expr()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRParen {
			return nil, p.lex.syntaxError(p.tok.pos, "expected ')'")
		}
		return e, p.advance()
	case tokIdent:
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind == tokLParen {
			return p.call(t)
		}
		if f, ok := p.lookup(t.text); ok {
			return nil, p.typeMismatch(t, "function %s used as a value", f.Name)
		}
		return S(t.text), nil
	case tokEOF:
		return nil, p.lex.syntaxError(t.pos, "unexpected end of formula")
	}
	return nil, p.lex.syntaxError(t.pos, "unexpected %q", t.text)
}

func (p *parser) call(name token) (Expr, error) {
	f, ok := p.lookup(name.text)
	if !ok {
		e := newError(ErrUnknownIdentifier, "", name.text, "unknown function %q", name.text)
		e.Formula, e.Pos = p.lex.src, name.pos
		return nil, e
	}
	if err := p.advance(); err != nil { // consume '('
		return nil, err
	}
	var args []Expr
	if p.tok.kind != tokRParen {
		for {
			a, err := p.expr()
			if err != nil {
				return nil, err
			}
			args = append(args, a)
			if p.tok.kind != tokComma {
				break
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	if p.tok.kind != tokRParen {
		return nil, p.lex.syntaxError(p.tok.pos, "expected ')' or ','")
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	lo, hi := 1, 1
	if f == FuncLog {
		hi = 2
	}
	if len(args) < lo || len(args) > hi {
		return nil, p.typeMismatch(name, "%s expects %s, got %d", f.Name, arity(lo, hi), len(args))
	}
	return CallOf(f.Name, args...), nil
}

func (p *parser) lookup(name string) (*Function, bool) {
	f, ok := functions[name]
	if !ok || (f.Extended && !p.cfg.extended) {
		return nil, false
	}
	return f, true
}

func (p *parser) typeMismatch(t token, format string, args ...interface{}) *Error {
	e := newError(ErrTypeMismatch, t.text, nil, format, args...)
	e.Formula, e.Pos = p.lex.src, t.pos
	return e
}

func arity(lo, hi int) string {
	if lo == hi {
		return strconv.Itoa(lo) + " argument"
	}
	return strconv.Itoa(lo) + " or " + strconv.Itoa(hi) + " arguments"
}
