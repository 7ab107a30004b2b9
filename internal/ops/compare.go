package ops

import (
	"github.com/rendis/pyconst/internal/ast"
	"github.com/rendis/pyconst/internal/value"
	"github.com/rendis/pyconst/pkg/schema"
)

// Compare applies a single relational operator. The result is a Bool, or
// Undefined when either side is Undefined. Comparisons never warn. NaN is
// unordered: every ordering test and == is false, != is true.
func Compare(op ast.CompareOp, x, y value.Value) value.Value {
	if !x.IsDefined() || !y.IsDefined() {
		return value.Undefined()
	}

	switch op {
	case ast.Eq, ast.Ne:
		eq, _ := value.Equal(x, y)
		return value.Bool(eq == (op == ast.Eq))
	}

	c, ok := value.Compare(x, y)
	if !ok {
		return value.Bool(false)
	}
	switch op {
	case ast.Lt:
		return value.Bool(c < 0)
	case ast.Le:
		return value.Bool(c <= 0)
	case ast.Gt:
		return value.Bool(c > 0)
	case ast.Ge:
		return value.Bool(c >= 0)
	}
	panic(schema.NewErrorf(schema.ErrCodeMalformedTree, "unknown comparison operator %d", op))
}

// Not negates the truthiness of x. not Undefined is Undefined.
func Not(x value.Value) value.Value {
	switch x.Truth() {
	case value.TruthTrue:
		return value.Bool(false)
	case value.TruthFalse:
		return value.Bool(true)
	}
	return value.Undefined()
}
