package expressions

import (
	"context"
	"sync"

	"github.com/rendis/pyconst/internal/ast"
	"github.com/rendis/pyconst/internal/eval"
	"github.com/rendis/pyconst/internal/ops"
	"github.com/rendis/pyconst/internal/parser"
	"github.com/rendis/pyconst/internal/value"
	"github.com/rendis/pyconst/pkg/schema"
)

// PythonEngine folds Python numeric expressions. Data entries become name
// bindings; values must be ints, floats, bools or numeric literal strings.
// Parsed trees are cached and reused across goroutines.
type PythonEngine struct {
	opts eval.Options

	mu    sync.RWMutex
	cache map[string]ast.Expr
}

// NewPythonEngine creates an engine enforcing limits. scanSkipped reports
// warnings from operands skipped by short circuit.
func NewPythonEngine(limits ops.Limits, scanSkipped bool) *PythonEngine {
	return &PythonEngine{
		opts:  eval.Options{Limits: limits, ScanSkipped: scanSkipped},
		cache: make(map[string]ast.Expr),
	}
}

// Name returns the engine identifier.
func (e *PythonEngine) Name() string {
	return "python"
}

// Evaluate folds expression and returns a map with keys value, kind,
// truth and warnings.
func (e *PythonEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	res, err := e.Fold(ctx, expression, data)
	if err != nil {
		return nil, err
	}
	warnings := make([]map[string]any, 0, len(res.Warnings))
	for _, w := range res.Warnings {
		warnings = append(warnings, map[string]any{
			"kind":    string(w.Kind),
			"message": w.Message,
			"column":  w.Pos.Column,
			"skipped": w.Skipped,
		})
	}
	return map[string]any{
		"value":    res.Value.String(),
		"kind":     res.Value.TypeName(),
		"truth":    res.Value.Truth().String(),
		"warnings": warnings,
	}, nil
}

// Fold is Evaluate returning the evaluator's Result.
func (e *PythonEngine) Fold(ctx context.Context, expression string, data map[string]any) (eval.Result, error) {
	if expression == "" {
		return eval.Result{}, schema.NewError(schema.ErrCodeValidation, "empty python expression")
	}
	if err := ctx.Err(); err != nil {
		return eval.Result{}, err
	}

	tree, err := e.getOrParse(expression)
	if err != nil {
		return eval.Result{}, err
	}
	bindings, err := Bindings(data)
	if err != nil {
		return eval.Result{}, err
	}

	opts := e.opts
	opts.Bindings = bindings
	return eval.New(opts).SafeEvaluate(tree)
}

// Bindings converts caller data into evaluator bindings.
func Bindings(data map[string]any) (eval.Bindings, error) {
	if len(data) == 0 {
		return nil, nil
	}
	out := make(eval.Bindings, len(data))
	for name, raw := range data {
		v, err := value.FromAny(raw)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "binding %q: %s", name, err.Error()).
				WithCause(err).
				WithDetails(map[string]any{"name": name})
		}
		out[name] = v
	}
	return out, nil
}

func (e *PythonEngine) getOrParse(expression string) (ast.Expr, error) {
	e.mu.RLock()
	if tree, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return tree, nil
	}
	e.mu.RUnlock()

	tree, err := parser.Parse(expression)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if cached, ok := e.cache[expression]; ok {
		return cached, nil
	}
	e.cache[expression] = tree
	return tree, nil
}

var _ Engine = (*PythonEngine)(nil)
