package autodiff

import (
	"fmt"
	"strings"
)

// ============================================================
// Error taxonomy
// ============================================================

// Kind classifies a failure. Every error returned by this package matches
// exactly one Kind through errors.Is, however deeply it has been wrapped.
type Kind string

func (k Kind) Error() string { return string(k) }

const (
	ErrInvalidInput      Kind = "invalid input"
	ErrDomain            Kind = "domain error"
	ErrDivisionByZero    Kind = "division by zero"
	ErrSyntax            Kind = "syntax error"
	ErrUnknownIdentifier Kind = "unknown identifier"
	ErrTypeMismatch      Kind = "type mismatch"
)

// Error carries the offending value or formula text of a failed computation.
type Error struct {
	Kind    Kind
	Op      string      // operation or function name, e.g. "sqrt", "/"
	Value   interface{} // offending operand, if any
	Formula string      // formula source, if known
	Pos     int         // byte offset into Formula, -1 when unknown
	Msg     string
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Kind))
	if e.Op != "" {
		sb.WriteString(" in ")
		sb.WriteString(e.Op)
	}
	if e.Msg != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Msg)
	}
	if e.Value != nil {
		fmt.Fprintf(&sb, " (value %v)", e.Value)
	}
	if e.Formula != "" {
		if e.Pos >= 0 {
			fmt.Fprintf(&sb, " at offset %d of %q", e.Pos, e.Formula)
		} else {
			fmt.Fprintf(&sb, " in %q", e.Formula)
		}
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind Kind, op string, value interface{}, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Value: value, Pos: -1, Msg: fmt.Sprintf(format, args...)}
}

func domainError(op string, x float64, format string, args ...interface{}) *Error {
	return newError(ErrDomain, op, x, format, args...)
}

func divisionByZero(op string) *Error {
	return newError(ErrDivisionByZero, op, nil, "divisor has a zero real part")
}

// withFormula attaches the formula text to err when it is an *Error that does
// not carry one yet.
func withFormula(err error, src string) error {
	if e, ok := err.(*Error); ok && e.Formula == "" {
		c := *e
		c.Formula = src
		return &c
	}
	return err
}
