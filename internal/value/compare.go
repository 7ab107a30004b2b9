package value

import (
	"math"
	"math/big"
)

// Compare orders x and y numerically across kinds. An Int is compared
// against a Float exactly, without rounding the Int first. ok is false when
// either side is Undefined or the pair is unordered (NaN).
func Compare(x, y Value) (cmp int, ok bool) {
	if !x.IsDefined() || !y.IsDefined() {
		return 0, false
	}

	if x.IsIntegral() && y.IsIntegral() {
		return x.intRef().Cmp(y.intRef()), true
	}

	if x.IsFloat() && y.IsFloat() {
		return compareFloats(x.f, y.f)
	}

	if x.IsFloat() {
		c, ok := compareIntFloat(y.intRef(), x.f)
		return -c, ok
	}
	return compareIntFloat(x.intRef(), y.f)
}

// Equal implements Python ==. ok is false when either side is Undefined.
// NaN is never equal to anything.
func Equal(x, y Value) (eq bool, ok bool) {
	if !x.IsDefined() || !y.IsDefined() {
		return false, false
	}
	c, ordered := Compare(x, y)
	return ordered && c == 0, true
}

// Identical reports structural identity, including kind. Used by tests and
// by callers that need True to differ from 1.
func Identical(x, y Value) bool {
	if x.kind != y.kind {
		return false
	}
	switch x.kind {
	case KindInt:
		return x.i.Cmp(y.i) == 0
	case KindFloat:
		if math.IsNaN(x.f) {
			return math.IsNaN(y.f)
		}
		return x.f == y.f && math.Signbit(x.f) == math.Signbit(y.f)
	case KindBool:
		return x.b == y.b
	}
	return true
}

func compareFloats(a, b float64) (int, bool) {
	switch {
	case math.IsNaN(a) || math.IsNaN(b):
		return 0, false
	case a < b:
		return -1, true
	case a > b:
		return 1, true
	}
	return 0, true
}

func compareIntFloat(i *big.Int, f float64) (int, bool) {
	switch {
	case math.IsNaN(f):
		return 0, false
	case math.IsInf(f, 1):
		return -1, true
	case math.IsInf(f, -1):
		return 1, true
	}
	fr := new(big.Rat).SetFloat64(f)
	ir := new(big.Rat).SetInt(i)
	return ir.Cmp(fr), true
}

// intRef returns the integer payload without copying. Callers must not
// mutate the result.
func (v Value) intRef() *big.Int {
	switch v.kind {
	case KindInt:
		return v.i
	case KindBool:
		if v.b {
			return bigOne
		}
		return bigZero
	}
	return nil
}
