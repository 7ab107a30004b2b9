package eval

import (
	"github.com/rendis/pyconst/internal/ast"
	"github.com/rendis/pyconst/internal/diag"
	"github.com/rendis/pyconst/internal/value"
)

// logical returns an operand, not a Bool, matching Python. An unknown left
// operand still evaluates the right one so its warnings surface.
func (e *Evaluator) logical(n *ast.Logical, sink *diag.Sink) value.Value {
	if n.Op != ast.And && n.Op != ast.Or {
		malformed("unknown logical operator %d", n.Op)
	}

	x := e.eval(n.X, sink)
	switch x.Truth() {
	case value.TruthUnknown:
		e.eval(n.Y, sink)
		return value.Undefined()
	case value.TruthFalse:
		if n.Op == ast.And {
			e.skip(n.Y, sink)
			return x
		}
	case value.TruthTrue:
		if n.Op == ast.Or {
			e.skip(n.Y, sink)
			return x
		}
	}
	return e.eval(n.Y, sink)
}
