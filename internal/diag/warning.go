// Package diag holds the non-fatal diagnostics an evaluation produces.
package diag

import (
	"fmt"
	"slices"
)

// Kind classifies why a node evaluated to Undefined.
type Kind string

const (
	DivisionByZero      Kind = "DivisionByZero"
	ModuloByZero        Kind = "ModuloByZero"
	NegativeShiftCount  Kind = "NegativeShiftCount"
	ZeroToNegativePower Kind = "ZeroToNegativePower"
	BitwiseOnNonInteger Kind = "BitwiseOnNonInteger"
	NumericOverflow     Kind = "NumericOverflow"
	NonRealPower        Kind = "NonRealPower"
)

// Pos locates a warning inside the evaluated expression text.
type Pos struct {
	Offset int `json:"offset"`
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Warning is one non-fatal diagnostic. Warnings never alter control flow.
type Warning struct {
	Kind     Kind   `json:"kind"`
	Operands string `json:"operands"`
	Message  string `json:"message"`
	Pos      Pos    `json:"pos"`
	Skipped  bool   `json:"skipped,omitempty"`
}

func (w Warning) String() string {
	return w.Message
}

// New builds a warning with the canonical message for its kind.
// detail is the offending operand (shift count, exponent, operand type).
func New(kind Kind, operands, detail string) *Warning {
	return &Warning{Kind: kind, Operands: operands, Message: message(kind, detail)}
}

func message(kind Kind, detail string) string {
	switch kind {
	case DivisionByZero:
		return "Division by 0"
	case ModuloByZero:
		return "Taking modulo by 0"
	case NegativeShiftCount:
		return fmt.Sprintf("Shifting by negative number (%s)", detail)
	case ZeroToNegativePower:
		return fmt.Sprintf("0 cannot be raised to a negative power (%s)", detail)
	case BitwiseOnNonInteger:
		return fmt.Sprintf("Bitwise operation on non-integer operand (%s)", detail)
	case NumericOverflow:
		return fmt.Sprintf("Numeric result out of range (%s)", detail)
	case NonRealPower:
		return fmt.Sprintf("Negative number cannot be raised to a fractional power (%s)", detail)
	}
	return string(kind)
}

// Sink accumulates the warnings of one evaluation. It is append-only and
// not safe for concurrent use; each evaluation owns its own Sink. A nil
// *Sink discards everything.
type Sink struct {
	warnings []Warning
}

// NewSink returns an empty sink.
func NewSink() *Sink {
	return &Sink{}
}

// Add appends w.
func (s *Sink) Add(w Warning) {
	if s == nil {
		return
	}
	s.warnings = append(s.warnings, w)
}

// Absorb appends every warning of other, marking them skipped when asked.
func (s *Sink) Absorb(other *Sink, skipped bool) {
	if s == nil || other == nil {
		return
	}
	for _, w := range other.warnings {
		if skipped {
			w.Skipped = true
		}
		s.warnings = append(s.warnings, w)
	}
}

// Len returns the number of warnings recorded so far.
func (s *Sink) Len() int {
	if s == nil {
		return 0
	}
	return len(s.warnings)
}

// Warnings returns a copy of the recorded warnings in emission order.
func (s *Sink) Warnings() []Warning {
	if s == nil {
		return nil
	}
	return slices.Clone(s.warnings)
}

// HasKind reports whether a warning of the given kind was recorded.
func (s *Sink) HasKind(kind Kind) bool {
	if s == nil {
		return false
	}
	return slices.ContainsFunc(s.warnings, func(w Warning) bool { return w.Kind == kind })
}
