package value

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// FromAny converts a Go value supplied by a caller (CLI flag, MCP argument,
// decoded JSON) into a Value. Strings are parsed as Python numeric or
// boolean literals.
func FromAny(x any) (Value, error) {
	switch n := x.(type) {
	case nil:
		return Undefined(), nil
	case Value:
		return n, nil
	case bool:
		return Bool(n), nil
	case int:
		return IntFrom(int64(n)), nil
	case int32:
		return IntFrom(int64(n)), nil
	case int64:
		return IntFrom(n), nil
	case uint:
		return Int(new(big.Int).SetUint64(uint64(n))), nil
	case uint64:
		return Int(new(big.Int).SetUint64(n)), nil
	case float32:
		return Float(float64(n)), nil
	case float64:
		return Float(n), nil
	case *big.Int:
		if n == nil {
			return Undefined(), nil
		}
		return Int(new(big.Int).Set(n)), nil
	case json.Number:
		return Parse(string(n))
	case string:
		return Parse(n)
	}
	return Undefined(), fmt.Errorf("unsupported value type %T", x)
}

// Parse reads a literal: True/False, a Python integer (decimal, 0x, 0o, 0b,
// underscores allowed) or a float. Signs are accepted.
func Parse(s string) (Value, error) {
	t := strings.TrimSpace(s)
	switch t {
	case "True", "true":
		return Bool(true), nil
	case "False", "false":
		return Bool(false), nil
	}

	if i, ok := ParseInt(t); ok {
		return Int(i), nil
	}

	if t == "" || strings.Contains(t, "__") || strings.HasPrefix(t, "_") || strings.HasSuffix(t, "_") {
		return Undefined(), fmt.Errorf("invalid numeric literal %q", s)
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(t, "_", ""), 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); !ok || ne.Err != strconv.ErrRange {
			return Undefined(), fmt.Errorf("invalid numeric literal %q", s)
		}
	}
	return Float(f), nil
}

// ParseInt parses a Python integer literal with an optional sign.
func ParseInt(s string) (*big.Int, bool) {
	body := s
	neg := false
	if strings.HasPrefix(body, "-") || strings.HasPrefix(body, "+") {
		neg = body[0] == '-'
		body = body[1:]
	}
	if body == "" || strings.HasPrefix(body, "_") || strings.HasSuffix(body, "_") || strings.Contains(body, "__") {
		return nil, false
	}

	base := 10
	if len(body) > 2 && body[0] == '0' {
		switch body[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 10 {
			body = strings.TrimPrefix(body[2:], "_")
		}
	}

	digits := strings.ReplaceAll(body, "_", "")
	if base == 10 && len(digits) > 1 && strings.TrimLeft(digits, "0") != "" && digits[0] == '0' {
		// Python rejects leading zeros on non-zero decimal literals.
		return nil, false
	}

	i, ok := new(big.Int).SetString(digits, base)
	if !ok {
		return nil, false
	}
	if neg {
		i.Neg(i)
	}
	return i, true
}

// Native returns a plain Go representation: int64 when the integer fits,
// *big.Int otherwise, float64, bool, or nil for Undefined.
func (v Value) Native() any {
	switch v.kind {
	case KindInt:
		if v.i.IsInt64() {
			return v.i.Int64()
		}
		return new(big.Int).Set(v.i)
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	}
	return nil
}
