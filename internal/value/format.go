package value

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// String renders v the way Python's repr would: integers in decimal,
// booleans as True/False, floats in shortest round-trip form.
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return v.i.String()
	case KindFloat:
		return FormatFloat(v.f)
	case KindBool:
		if v.b {
			return "True"
		}
		return "False"
	}
	return "undefined"
}

// FormatFloat renders f like Python's float repr: fixed notation with a
// trailing ".0" for decimal exponents in [-4, 16), scientific notation with
// at least two exponent digits otherwise.
func FormatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}

	s := strconv.FormatFloat(f, 'e', -1, 64)
	mant, expStr, _ := strings.Cut(s, "e")
	exp, _ := strconv.Atoi(expStr)

	neg := strings.HasPrefix(mant, "-")
	digits := strings.Replace(strings.TrimPrefix(mant, "-"), ".", "", 1)

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}

	switch {
	case exp < -4 || exp >= 16:
		b.WriteString(digits[:1])
		if len(digits) > 1 {
			b.WriteByte('.')
			b.WriteString(digits[1:])
		}
		sign := '+'
		if exp < 0 {
			sign = '-'
			exp = -exp
		}
		fmt.Fprintf(&b, "e%c%02d", sign, exp)
	case exp < 0:
		b.WriteString("0.")
		b.WriteString(strings.Repeat("0", -exp-1))
		b.WriteString(digits)
	default:
		intLen := exp + 1
		if len(digits) <= intLen {
			b.WriteString(digits)
			b.WriteString(strings.Repeat("0", intLen-len(digits)))
			b.WriteString(".0")
		} else {
			b.WriteString(digits[:intLen])
			b.WriteByte('.')
			b.WriteString(digits[intLen:])
		}
	}
	return b.String()
}

// TypeName returns the Python type name of v, used in warning operand
// descriptions.
func (v Value) TypeName() string {
	return v.kind.String()
}
