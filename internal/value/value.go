// Package value implements the numeric tower the evaluator computes over:
// arbitrary-precision integers, IEEE-754 doubles, booleans and the
// distinguished Undefined marker.
package value

import (
	"math"
	"math/big"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindInt
	KindFloat
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	default:
		return "undefined"
	}
}

// Truth is the tri-state truthiness of a Value.
type Truth int8

const (
	TruthUnknown Truth = iota
	TruthFalse
	TruthTrue
)

func (t Truth) String() string {
	switch t {
	case TruthTrue:
		return "true"
	case TruthFalse:
		return "false"
	default:
		return "unknown"
	}
}

// TruthOf converts a Go bool into a determined Truth.
func TruthOf(b bool) Truth {
	if b {
		return TruthTrue
	}
	return TruthFalse
}

// Value is an immutable numeric value. The zero Value is Undefined.
type Value struct {
	kind Kind
	i    *big.Int
	f    float64
	b    bool
}

var (
	bigZero = big.NewInt(0)
	bigOne  = big.NewInt(1)
)

// Int wraps x. The Value takes ownership of x; callers must not mutate it
// afterwards.
func Int(x *big.Int) Value {
	if x == nil {
		x = new(big.Int)
	}
	return Value{kind: KindInt, i: x}
}

// IntFrom builds an Int from a machine integer.
func IntFrom(n int64) Value {
	return Value{kind: KindInt, i: big.NewInt(n)}
}

// Float builds a Float.
func Float(f float64) Value {
	return Value{kind: KindFloat, f: f}
}

// Bool builds a Bool.
func Bool(b bool) Value {
	return Value{kind: KindBool, b: b}
}

// Undefined returns the Undefined marker.
func Undefined() Value {
	return Value{}
}

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsDefined reports whether v carries a number.
func (v Value) IsDefined() bool { return v.kind != KindUndefined }

// IsNumber reports whether v is an Int or a Float.
func (v Value) IsNumber() bool { return v.kind == KindInt || v.kind == KindFloat }

// IsIntegral reports whether v is an Int or a Bool.
func (v Value) IsIntegral() bool { return v.kind == KindInt || v.kind == KindBool }

// IsFloat reports whether v is a Float.
func (v Value) IsFloat() bool { return v.kind == KindFloat }

// IsBool reports whether v is a Bool.
func (v Value) IsBool() bool { return v.kind == KindBool }

// BoolValue returns the payload of a Bool; false for every other kind.
func (v Value) BoolValue() bool { return v.kind == KindBool && v.b }

// BigInt returns a fresh copy of the integer payload. Booleans map to 0/1;
// Floats and Undefined return nil.
func (v Value) BigInt() *big.Int {
	switch v.kind {
	case KindInt:
		return new(big.Int).Set(v.i)
	case KindBool:
		if v.b {
			return new(big.Int).Set(bigOne)
		}
		return new(big.Int)
	default:
		return nil
	}
}

// Sign returns -1, 0 or +1 for numbers, 0 for Undefined and NaN.
func (v Value) Sign() int {
	switch v.kind {
	case KindInt:
		return v.i.Sign()
	case KindBool:
		if v.b {
			return 1
		}
		return 0
	case KindFloat:
		switch {
		case v.f > 0:
			return 1
		case v.f < 0:
			return -1
		}
	}
	return 0
}

// IsZero reports whether v is a defined zero (0, 0.0, -0.0 or False).
func (v Value) IsZero() bool {
	switch v.kind {
	case KindInt:
		return v.i.Sign() == 0
	case KindBool:
		return !v.b
	case KindFloat:
		return v.f == 0
	}
	return false
}

// Float64 converts v the way Python's float() does. ok is false for
// Undefined and for integers whose magnitude does not fit a double.
func (v Value) Float64() (f float64, ok bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	case KindInt:
		if v.i.IsInt64() {
			n := v.i.Int64()
			if n >= -1<<53 && n <= 1<<53 {
				return float64(n), true
			}
		}
		f, _ = new(big.Float).SetInt(v.i).Float64()
		if math.IsInf(f, 0) {
			return f, false
		}
		return f, true
	}
	return 0, false
}

// Truth returns the Python truthiness of v. Undefined is TruthUnknown.
func (v Value) Truth() Truth {
	if v.kind == KindUndefined {
		return TruthUnknown
	}
	if v.kind == KindFloat && math.IsNaN(v.f) {
		return TruthTrue
	}
	return TruthOf(!v.IsZero())
}

// ToInt drops the Bool identity, returning an Int for Int and Bool values
// and v unchanged otherwise.
func (v Value) ToInt() Value {
	if v.kind == KindBool {
		return Int(v.BigInt())
	}
	return v
}
