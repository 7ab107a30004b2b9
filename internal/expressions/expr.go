package expressions

import (
	"context"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/rendis/pyconst/pkg/schema"
)

// ExprEngine evaluates run-level gates (check --fail-on) such as
// `summary.warnings > 0` or `any(findings, .verdict == "false")`.
// Compiled programs are cached and reused across goroutines.
type ExprEngine struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewExprEngine creates an expr engine.
func NewExprEngine() *ExprEngine {
	return &ExprEngine{
		cache: make(map[string]*vm.Program),
	}
}

// Name returns the engine identifier.
func (e *ExprEngine) Name() string {
	return "expr"
}

// Evaluate runs expression with data as its environment.
func (e *ExprEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty expr expression")
	}
	if data == nil {
		data = map[string]any{}
	}

	prg, err := e.getOrCompile(expression, data)
	if err != nil {
		return nil, err
	}

	out, err := vm.Run(prg, data)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"expr evaluation failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}
	return out, nil
}

// Gate evaluates expression over the report's findings and summary and
// reports whether the run should fail.
func (e *ExprEngine) Gate(ctx context.Context, expression string, report *schema.Report) (bool, error) {
	out, err := e.Evaluate(ctx, expression, GateData(report))
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeValidation,
			"gate %q must return bool, got %T", expression, out).
			WithDetails(map[string]any{"expression": expression})
	}
	return b, nil
}

// CheckGate compiles a gate expression without running it.
func (e *ExprEngine) CheckGate(expression string) error {
	if expression == "" {
		return schema.NewError(schema.ErrCodeValidation, "empty expr expression")
	}
	_, err := e.getOrCompile(expression, GateData(&schema.Report{}))
	return err
}

// GateData is the environment a gate expression sees.
func GateData(report *schema.Report) map[string]any {
	all := report.Findings()
	findings := make([]any, 0, len(all))
	for _, f := range all {
		findings = append(findings, FindingData(f))
	}
	return map[string]any{
		"run_id":   report.RunID,
		"findings": findings,
		"summary":  SummaryData(report.Summary),
	}
}

func (e *ExprEngine) getOrCompile(expression string, env map[string]any) (*vm.Program, error) {
	e.mu.RLock()
	if prg, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prg, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if prg, ok := e.cache[expression]; ok {
		return prg, nil
	}

	prg, err := expr.Compile(expression,
		expr.Env(env),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"expr compile error in %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	e.cache[expression] = prg
	return prg, nil
}

var _ Engine = (*ExprEngine)(nil)
