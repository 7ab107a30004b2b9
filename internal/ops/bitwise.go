package ops

import (
	"math/big"

	"github.com/rendis/pyconst/internal/ast"
	"github.com/rendis/pyconst/internal/diag"
	"github.com/rendis/pyconst/internal/value"
)

// bitwise implements &, | and ^. Two Bools yield a Bool; any other
// integral pair yields an Int.
func (t *Table) bitwise(op ast.BinaryOp, x, y value.Value) Outcome {
	if x.IsFloat() || y.IsFloat() {
		return warn(diag.BitwiseOnNonInteger, describe(x, op, y), "float")
	}
	if !x.IsDefined() || !y.IsDefined() {
		return undefined()
	}

	if x.IsBool() && y.IsBool() {
		a, b := x.BoolValue(), y.BoolValue()
		switch op {
		case ast.BitAnd:
			return defined(value.Bool(a && b))
		case ast.BitOr:
			return defined(value.Bool(a || b))
		default:
			return defined(value.Bool(a != b))
		}
	}

	a, b := x.BigInt(), y.BigInt()
	switch op {
	case ast.BitAnd:
		a.And(a, b)
	case ast.BitOr:
		a.Or(a, b)
	default:
		a.Xor(a, b)
	}
	return defined(value.Int(a))
}

// shift implements << and >>. A negative count warns even when the left
// operand is Undefined.
func (t *Table) shift(op ast.BinaryOp, x, y value.Value) Outcome {
	if x.IsFloat() || y.IsFloat() {
		return warn(diag.BitwiseOnNonInteger, describe(x, op, y), "float")
	}
	if y.IsDefined() && y.Sign() < 0 {
		return warn(diag.NegativeShiftCount, describe(x, op, y), y.String())
	}
	if !x.IsDefined() || !y.IsDefined() {
		return undefined()
	}

	a, n := x.BigInt(), y.BigInt()
	if a.Sign() == 0 {
		return defined(value.IntFrom(0))
	}

	if op == ast.Shl {
		if !n.IsInt64() || int64(a.BitLen())+n.Int64() > int64(t.limits.maxBits()) {
			return warn(diag.NumericOverflow, describe(x, op, y), "integer result too large")
		}
		return defined(value.Int(a.Lsh(a, uint(n.Int64()))))
	}

	if !n.IsInt64() || n.Int64() >= int64(a.BitLen()) {
		// Every significant bit shifted out: floor leaves 0 or -1.
		if a.Sign() < 0 {
			return defined(value.IntFrom(-1))
		}
		return defined(value.IntFrom(0))
	}
	return defined(value.Int(new(big.Int).Rsh(a, uint(n.Int64()))))
}

func (t *Table) invert(x value.Value) Outcome {
	switch {
	case x.IsFloat():
		return warn(diag.BitwiseOnNonInteger, "~"+x.String(), "float")
	case !x.IsDefined():
		return undefined()
	}
	a := x.BigInt()
	return defined(value.Int(a.Not(a)))
}
