package eval

import (
	"github.com/rendis/pyconst/internal/ast"
	"github.com/rendis/pyconst/internal/diag"
	"github.com/rendis/pyconst/internal/ops"
	"github.com/rendis/pyconst/internal/value"
)

// chain folds a0 op1 a1 ... opN aN. Each operand is evaluated at most once;
// the first definitely false link ends the chain. Unknown links do not.
func (e *Evaluator) chain(n *ast.Compare, sink *diag.Sink) value.Value {
	if len(n.Ops) == 0 || len(n.Ops) != len(n.Rights) {
		malformed("comparison chain with %d operators and %d operands", len(n.Ops), len(n.Rights))
	}

	left := e.eval(n.Left, sink)
	unknown := false
	for i, op := range n.Ops {
		right := e.eval(n.Rights[i], sink)
		switch ops.Compare(op, left, right).Truth() {
		case value.TruthUnknown:
			unknown = true
		case value.TruthFalse:
			for _, rest := range n.Rights[i+1:] {
				e.skip(rest, sink)
			}
			return value.Bool(false)
		}
		left = right
	}

	if unknown {
		return value.Undefined()
	}
	return value.Bool(true)
}
