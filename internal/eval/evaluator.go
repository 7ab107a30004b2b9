// Package eval folds an expression tree to a value.Value, following Python
// semantics for numbers, chained comparisons and short-circuit logic.
package eval

import (
	"math/big"

	"github.com/rendis/pyconst/internal/ast"
	"github.com/rendis/pyconst/internal/diag"
	"github.com/rendis/pyconst/internal/ops"
	"github.com/rendis/pyconst/internal/parser"
	"github.com/rendis/pyconst/internal/value"
	"github.com/rendis/pyconst/pkg/schema"
)

// Bindings supplies known values for names. Unbound names are Undefined.
type Bindings map[string]value.Value

// Options configures an Evaluator.
type Options struct {
	Limits ops.Limits
	// ScanSkipped walks operands skipped by short circuit in a detached sink
	// and reports their warnings with Skipped set. Their values are dropped.
	ScanSkipped bool
	Bindings    Bindings
}

// Result is the folded value together with every warning raised.
type Result struct {
	Value    value.Value
	Warnings []diag.Warning
}

// Verdict maps the value's truthiness to a report verdict.
func (r Result) Verdict() schema.Verdict {
	switch r.Value.Truth() {
	case value.TruthTrue:
		return schema.VerdictTrue
	case value.TruthFalse:
		return schema.VerdictFalse
	}
	return schema.VerdictUndefined
}

// Evaluator folds expressions. It holds no per-call state and may be used
// from multiple goroutines.
type Evaluator struct {
	opts  Options
	table *ops.Table
}

// New creates an Evaluator.
func New(opts Options) *Evaluator {
	return &Evaluator{opts: opts, table: ops.NewTable(opts.Limits)}
}

// Evaluate folds expr. A malformed tree panics with a *schema.PyconstError
// of code MALFORMED_TREE.
func (e *Evaluator) Evaluate(expr ast.Expr) Result {
	sink := diag.NewSink()
	v := e.eval(expr, sink)
	return Result{Value: v, Warnings: sink.Warnings()}
}

// SafeEvaluate is Evaluate with malformed trees reported as errors.
func (e *Evaluator) SafeEvaluate(expr ast.Expr) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			pe, ok := r.(*schema.PyconstError)
			if !ok {
				panic(r)
			}
			res, err = Result{}, pe
		}
	}()
	return e.Evaluate(expr), nil
}

// EvaluateSource parses src and folds it.
func (e *Evaluator) EvaluateSource(src string) (Result, error) {
	expr, err := parser.Parse(src)
	if err != nil {
		return Result{}, err
	}
	return e.SafeEvaluate(expr)
}

func malformed(format string, args ...any) {
	panic(schema.NewErrorf(schema.ErrCodeMalformedTree, format, args...))
}

func (e *Evaluator) eval(node ast.Expr, sink *diag.Sink) value.Value {
	switch n := node.(type) {
	case nil:
		malformed("nil expression")
	case *ast.IntLit:
		if n.Value == nil {
			malformed("integer literal without a value")
		}
		return value.Int(new(big.Int).Set(n.Value))
	case *ast.FloatLit:
		return value.Float(n.Value)
	case *ast.BoolLit:
		return value.Bool(n.Value)
	case *ast.Name:
		if v, ok := e.opts.Bindings[n.Name]; ok {
			return v
		}
		return value.Undefined()
	case *ast.Opaque:
		return value.Undefined()
	case *ast.Paren:
		return e.eval(n.X, sink)
	case *ast.Unary:
		x := e.eval(n.X, sink)
		return e.record(e.table.Unary(n.Op, x), n, sink)
	case *ast.Binary:
		x := e.eval(n.X, sink)
		y := e.eval(n.Y, sink)
		return e.record(e.table.Binary(n.Op, x, y), n, sink)
	case *ast.Not:
		return ops.Not(e.eval(n.X, sink))
	case *ast.Logical:
		return e.logical(n, sink)
	case *ast.Compare:
		return e.chain(n, sink)
	default:
		malformed("unknown expression node %T", node)
	}
	return value.Undefined()
}

func (e *Evaluator) record(out ops.Outcome, at ast.Expr, sink *diag.Sink) value.Value {
	if out.Warning != nil {
		w := *out.Warning
		p := at.Pos()
		w.Pos = diag.Pos{Offset: p.Offset, Line: p.Line, Column: p.Column}
		sink.Add(w)
	}
	return out.Value
}

// skip handles an operand short circuit did not evaluate.
func (e *Evaluator) skip(node ast.Expr, sink *diag.Sink) {
	if !e.opts.ScanSkipped {
		return
	}
	detached := diag.NewSink()
	e.eval(node, detached)
	sink.Absorb(detached, true)
}
