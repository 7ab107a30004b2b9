package ast

import (
	"strconv"
	"strings"
)

// Format renders e as canonical Python source with single spaces around
// binary operators.
func Format(e Expr) string {
	var b strings.Builder
	format(&b, e)
	return b.String()
}

func format(b *strings.Builder, e Expr) {
	switch n := e.(type) {
	case nil:
		b.WriteString("<nil>")
	case *IntLit:
		if n.Raw != "" {
			b.WriteString(n.Raw)
		} else if n.Value != nil {
			b.WriteString(n.Value.String())
		}
	case *FloatLit:
		if n.Raw != "" {
			b.WriteString(n.Raw)
		} else {
			b.WriteString(strconv.FormatFloat(n.Value, 'g', -1, 64))
		}
	case *BoolLit:
		if n.Value {
			b.WriteString("True")
		} else {
			b.WriteString("False")
		}
	case *Name:
		b.WriteString(n.Name)
	case *Opaque:
		b.WriteString(n.Text)
	case *Paren:
		b.WriteByte('(')
		format(b, n.X)
		b.WriteByte(')')
	case *Unary:
		b.WriteString(n.Op.String())
		format(b, n.X)
	case *Not:
		b.WriteString("not ")
		format(b, n.X)
	case *Binary:
		format(b, n.X)
		b.WriteString(" " + n.Op.String() + " ")
		format(b, n.Y)
	case *Logical:
		format(b, n.X)
		b.WriteString(" " + n.Op.String() + " ")
		format(b, n.Y)
	case *Compare:
		format(b, n.Left)
		for i, op := range n.Ops {
			b.WriteString(" " + op.String() + " ")
			if i < len(n.Rights) {
				format(b, n.Rights[i])
			}
		}
	default:
		b.WriteString("<?>")
	}
}

// Walk visits e and its children depth-first in evaluation order. When fn
// returns false the children of that node are skipped.
func Walk(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch n := e.(type) {
	case *Paren:
		Walk(n.X, fn)
	case *Unary:
		Walk(n.X, fn)
	case *Not:
		Walk(n.X, fn)
	case *Binary:
		Walk(n.X, fn)
		Walk(n.Y, fn)
	case *Logical:
		Walk(n.X, fn)
		Walk(n.Y, fn)
	case *Compare:
		Walk(n.Left, fn)
		for _, r := range n.Rights {
			Walk(r, fn)
		}
	}
}
