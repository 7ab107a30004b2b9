// Package ast defines the expression tree the evaluator walks.
package ast

import (
	"math/big"
)

// Pos is a location in the source text. Line and Column are 1-based.
type Pos struct {
	Offset int
	Line   int
	Column int
}

// Span is embedded in every node and records its extent.
type Span struct {
	Start Pos
	Stop  Pos
}

// Pos returns the position of the node's first character.
func (s Span) Pos() Pos { return s.Start }

// End returns the position just past the node's last character.
func (s Span) End() Pos { return s.Stop }

// Expr is an expression node.
type Expr interface {
	Pos() Pos
	End() Pos
	exprNode()
}

// BinaryOp enumerates arithmetic and bitwise binary operators.
type BinaryOp uint8

const (
	Add BinaryOp = iota + 1
	Sub
	Mul
	Div
	FloorDiv
	Mod
	Pow
	BitAnd
	BitOr
	BitXor
	Shl
	Shr
)

var binaryOpText = map[BinaryOp]string{
	Add: "+", Sub: "-", Mul: "*", Div: "/", FloorDiv: "//", Mod: "%", Pow: "**",
	BitAnd: "&", BitOr: "|", BitXor: "^", Shl: "<<", Shr: ">>",
}

func (op BinaryOp) String() string {
	if s, ok := binaryOpText[op]; ok {
		return s
	}
	return "?"
}

// Bitwise reports whether op requires integer operands.
func (op BinaryOp) Bitwise() bool {
	switch op {
	case BitAnd, BitOr, BitXor, Shl, Shr:
		return true
	}
	return false
}

// UnaryOp enumerates prefix arithmetic operators. Logical not is a
// separate node.
type UnaryOp uint8

const (
	Plus UnaryOp = iota + 1
	Minus
	Invert
)

func (op UnaryOp) String() string {
	switch op {
	case Plus:
		return "+"
	case Minus:
		return "-"
	case Invert:
		return "~"
	}
	return "?"
}

// CompareOp enumerates relational operators.
type CompareOp uint8

const (
	Lt CompareOp = iota + 1
	Le
	Gt
	Ge
	Eq
	Ne
)

func (op CompareOp) String() string {
	switch op {
	case Lt:
		return "<"
	case Le:
		return "<="
	case Gt:
		return ">"
	case Ge:
		return ">="
	case Eq:
		return "=="
	case Ne:
		return "!="
	}
	return "?"
}

// LogicalOp enumerates the short-circuit operators.
type LogicalOp uint8

const (
	And LogicalOp = iota + 1
	Or
)

func (op LogicalOp) String() string {
	switch op {
	case And:
		return "and"
	case Or:
		return "or"
	}
	return "?"
}

type (
	// IntLit is an integer literal.
	IntLit struct {
		Span
		Value *big.Int
		Raw   string
	}

	// FloatLit is a float literal.
	FloatLit struct {
		Span
		Value float64
		Raw   string
	}

	// BoolLit is True or False.
	BoolLit struct {
		Span
		Value bool
	}

	// Name is an identifier, resolved through the evaluator's bindings.
	Name struct {
		Span
		Name string
	}

	// Opaque is a sub-expression whose value is never known statically:
	// calls such as int(input()), attribute access, subscripts, strings.
	Opaque struct {
		Span
		Text string
	}

	// Paren is a parenthesized expression.
	Paren struct {
		Span
		X Expr
	}

	// Unary is +x, -x or ~x.
	Unary struct {
		Span
		Op UnaryOp
		X  Expr
	}

	// Binary is an arithmetic or bitwise operation.
	Binary struct {
		Span
		Op   BinaryOp
		X, Y Expr
	}

	// Logical is x and y, x or y.
	Logical struct {
		Span
		Op   LogicalOp
		X, Y Expr
	}

	// Not is not x.
	Not struct {
		Span
		X Expr
	}

	// Compare is a comparison chain: Left Ops[0] Rights[0] Ops[1] Rights[1] ...
	Compare struct {
		Span
		Left   Expr
		Ops    []CompareOp
		Rights []Expr
	}
)

func (*IntLit) exprNode()   {}
func (*FloatLit) exprNode() {}
func (*BoolLit) exprNode()  {}
func (*Name) exprNode()     {}
func (*Opaque) exprNode()   {}
func (*Paren) exprNode()    {}
func (*Unary) exprNode()    {}
func (*Binary) exprNode()   {}
func (*Logical) exprNode()  {}
func (*Not) exprNode()      {}
func (*Compare) exprNode()  {}

// Unparen strips any number of enclosing parentheses.
func Unparen(e Expr) Expr {
	for {
		p, ok := e.(*Paren)
		if !ok {
			return e
		}
		e = p.X
	}
}
