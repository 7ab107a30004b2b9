// Package ops is the operator table: pure functions implementing every
// arithmetic, bitwise, comparison and logical operator over value.Value.
// Operations Python would abort on return Undefined together with exactly
// one warning instead.
package ops

import (
	"fmt"

	"github.com/rendis/pyconst/internal/ast"
	"github.com/rendis/pyconst/internal/diag"
	"github.com/rendis/pyconst/internal/value"
	"github.com/rendis/pyconst/pkg/schema"
)

// DefaultMaxIntBits bounds integer results (about 315k decimal digits).
const DefaultMaxIntBits = 1 << 20

// Limits bounds the size of computed integers.
type Limits struct {
	MaxIntBits int `json:"max_int_bits"`
}

func (l Limits) maxBits() int {
	if l.MaxIntBits <= 0 {
		return DefaultMaxIntBits
	}
	return l.MaxIntBits
}

// Outcome is the result of applying one operator. Warning is nil unless the
// operation was undefined for its operands.
type Outcome struct {
	Value   value.Value
	Warning *diag.Warning
}

// Table applies operators under a set of limits. The zero Table uses
// default limits. A Table holds no mutable state and is safe to share.
type Table struct {
	limits Limits
}

// NewTable returns an operator table enforcing the given limits.
func NewTable(limits Limits) *Table {
	return &Table{limits: limits}
}

type binaryFunc func(t *Table, op ast.BinaryOp, x, y value.Value) Outcome

var binaryTable = map[ast.BinaryOp]binaryFunc{
	ast.Add:      (*Table).arith,
	ast.Sub:      (*Table).arith,
	ast.Mul:      (*Table).arith,
	ast.Div:      (*Table).trueDiv,
	ast.FloorDiv: (*Table).floorDiv,
	ast.Mod:      (*Table).mod,
	ast.Pow:      (*Table).pow,
	ast.BitAnd:   (*Table).bitwise,
	ast.BitOr:    (*Table).bitwise,
	ast.BitXor:   (*Table).bitwise,
	ast.Shl:      (*Table).shift,
	ast.Shr:      (*Table).shift,
}

// Binary applies an arithmetic or bitwise operator. An unknown operator is
// a programming error and panics with a MALFORMED_TREE PyconstError.
func (t *Table) Binary(op ast.BinaryOp, x, y value.Value) Outcome {
	fn, ok := binaryTable[op]
	if !ok {
		panic(schema.NewErrorf(schema.ErrCodeMalformedTree, "unknown binary operator %d", op))
	}
	return fn(t, op, x, y)
}

// Unary applies +, - or ~.
func (t *Table) Unary(op ast.UnaryOp, x value.Value) Outcome {
	switch op {
	case ast.Plus:
		return defined(x.ToInt())
	case ast.Minus:
		return t.negate(x)
	case ast.Invert:
		return t.invert(x)
	}
	panic(schema.NewErrorf(schema.ErrCodeMalformedTree, "unknown unary operator %d", op))
}

func defined(v value.Value) Outcome {
	return Outcome{Value: v}
}

func undefined() Outcome {
	return Outcome{Value: value.Undefined()}
}

func warn(kind diag.Kind, operands, detail string) Outcome {
	return Outcome{Value: value.Undefined(), Warning: diag.New(kind, operands, detail)}
}

func describe(x value.Value, op fmt.Stringer, y value.Value) string {
	return fmt.Sprintf("%s %s %s", x, op, y)
}
