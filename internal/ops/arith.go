package ops

import (
	"math"
	"math/big"

	"github.com/rendis/pyconst/internal/ast"
	"github.com/rendis/pyconst/internal/diag"
	"github.com/rendis/pyconst/internal/value"
)

const tooLargeForFloat = "int too large to convert to float"

func (t *Table) arith(op ast.BinaryOp, x, y value.Value) Outcome {
	if !x.IsDefined() || !y.IsDefined() {
		return undefined()
	}

	if x.IsIntegral() && y.IsIntegral() {
		a, b := x.BigInt(), y.BigInt()
		switch op {
		case ast.Add:
			a.Add(a, b)
		case ast.Sub:
			a.Sub(a, b)
		case ast.Mul:
			if a.BitLen()+b.BitLen() > t.limits.maxBits()+1 {
				return warn(diag.NumericOverflow, describe(x, op, y), "integer result too large")
			}
			a.Mul(a, b)
		}
		return t.intResult(a, describe(x, op, y))
	}

	fx, fy, out, ok := floats(x, op, y)
	if !ok {
		return out
	}
	switch op {
	case ast.Add:
		return defined(value.Float(fx + fy))
	case ast.Sub:
		return defined(value.Float(fx - fy))
	default:
		return defined(value.Float(fx * fy))
	}
}

// trueDiv implements /. The result is always a Float; Int / Int is
// correctly rounded through an exact rational.
func (t *Table) trueDiv(op ast.BinaryOp, x, y value.Value) Outcome {
	if y.IsZero() {
		return warn(diag.DivisionByZero, describe(x, op, y), "")
	}
	if !x.IsDefined() || !y.IsDefined() {
		return undefined()
	}

	if x.IsIntegral() && y.IsIntegral() {
		f, _ := new(big.Rat).SetFrac(x.BigInt(), y.BigInt()).Float64()
		if math.IsInf(f, 0) {
			return warn(diag.NumericOverflow, describe(x, op, y), "integer division result too large for a float")
		}
		return defined(value.Float(f))
	}

	fx, fy, out, ok := floats(x, op, y)
	if !ok {
		return out
	}
	return defined(value.Float(fx / fy))
}

func (t *Table) floorDiv(op ast.BinaryOp, x, y value.Value) Outcome {
	if y.IsZero() {
		return warn(diag.DivisionByZero, describe(x, op, y), "")
	}
	if !x.IsDefined() || !y.IsDefined() {
		return undefined()
	}

	if x.IsIntegral() && y.IsIntegral() {
		q, _ := FloorDivMod(x.BigInt(), y.BigInt())
		return defined(value.Int(q))
	}

	fx, fy, out, ok := floats(x, op, y)
	if !ok {
		return out
	}
	q, _ := FloatDivMod(fx, fy)
	return defined(value.Float(q))
}

func (t *Table) mod(op ast.BinaryOp, x, y value.Value) Outcome {
	if y.IsZero() {
		return warn(diag.ModuloByZero, describe(x, op, y), "")
	}
	if !x.IsDefined() || !y.IsDefined() {
		return undefined()
	}

	if x.IsIntegral() && y.IsIntegral() {
		_, r := FloorDivMod(x.BigInt(), y.BigInt())
		return defined(value.Int(r))
	}

	fx, fy, out, ok := floats(x, op, y)
	if !ok {
		return out
	}
	_, r := FloatDivMod(fx, fy)
	return defined(value.Float(r))
}

// FloorDivMod returns the quotient rounded toward negative infinity and the
// remainder carrying the divisor's sign, so a == q*b + r. b must be nonzero.
func FloorDivMod(a, b *big.Int) (q, r *big.Int) {
	q, r = new(big.Int).QuoRem(a, b, new(big.Int))
	if r.Sign() != 0 && (r.Sign() < 0) != (b.Sign() < 0) {
		q.Sub(q, big.NewInt(1))
		r.Add(r, b)
	}
	return q, r
}

// FloatDivMod mirrors CPython's float divmod: the remainder takes the sign
// of the divisor and the quotient is floored, then nudged to the nearest
// integer to absorb fmod rounding. b must be nonzero.
func FloatDivMod(a, b float64) (div, mod float64) {
	mod = math.Mod(a, b)
	div = (a - mod) / b
	if mod != 0 {
		if (b < 0) != (mod < 0) {
			mod += b
			div -= 1.0
		}
	} else {
		mod = math.Copysign(0, b)
	}

	if div != 0 {
		floor := math.Floor(div)
		if div-floor > 0.5 {
			floor += 1.0
		}
		return floor, mod
	}
	return math.Copysign(0, a/b), mod
}

func (t *Table) pow(op ast.BinaryOp, x, y value.Value) Outcome {
	if x.IsZero() && y.IsDefined() && y.Sign() < 0 && !isInf(y) {
		return warn(diag.ZeroToNegativePower, describe(x, op, y), y.String())
	}
	if !x.IsDefined() || !y.IsDefined() {
		return undefined()
	}

	if x.IsIntegral() && y.IsIntegral() && y.Sign() >= 0 {
		base, exp := x.BigInt(), y.BigInt()
		if base.CmpAbs(big.NewInt(1)) > 0 {
			if !exp.IsInt64() || float64(base.BitLen()-1)*float64(exp.Int64()) > float64(t.limits.maxBits()) {
				return warn(diag.NumericOverflow, describe(x, op, y), "integer result too large")
			}
		}
		return t.intResult(new(big.Int).Exp(base, exp, nil), describe(x, op, y))
	}

	fx, fy, out, ok := floats(x, op, y)
	if !ok {
		return out
	}
	if fx < 0 && !math.IsInf(fx, 0) && !math.IsInf(fy, 0) && !math.IsNaN(fy) && fy != math.Trunc(fy) {
		return warn(diag.NonRealPower, describe(x, op, y), y.String())
	}
	r := math.Pow(fx, fy)
	if math.IsInf(r, 0) && !math.IsInf(fx, 0) && !math.IsInf(fy, 0) {
		return warn(diag.NumericOverflow, describe(x, op, y), "float power result too large")
	}
	return defined(value.Float(r))
}

func (t *Table) negate(x value.Value) Outcome {
	switch {
	case !x.IsDefined():
		return undefined()
	case x.IsFloat():
		f, _ := x.Float64()
		return defined(value.Float(-f))
	}
	i := x.BigInt()
	return defined(value.Int(i.Neg(i)))
}

// intResult enforces the integer size limit.
func (t *Table) intResult(i *big.Int, operands string) Outcome {
	if i.BitLen() > t.limits.maxBits() {
		return warn(diag.NumericOverflow, operands, "integer result too large")
	}
	return defined(value.Int(i))
}

// floats converts both operands to float64. When an integer operand does
// not fit a double the returned Outcome carries the overflow warning.
func floats(x value.Value, op ast.BinaryOp, y value.Value) (fx, fy float64, out Outcome, ok bool) {
	fx, okx := x.Float64()
	fy, oky := y.Float64()
	if !okx || !oky {
		return 0, 0, warn(diag.NumericOverflow, describe(x, op, y), tooLargeForFloat), false
	}
	return fx, fy, Outcome{}, true
}

func isInf(v value.Value) bool {
	if !v.IsFloat() {
		return false
	}
	f, _ := v.Float64()
	return math.IsInf(f, 0)
}
