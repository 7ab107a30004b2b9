package expressions

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rendis/pyconst/pkg/schema"
)

// CELEngine evaluates per-finding predicates (check --where). The
// environment exposes finding (map) and file (string). Compiled programs
// are cached and reused across goroutines.
type CELEngine struct {
	env *cel.Env

	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewCELEngine creates a CEL engine with the finding environment.
func NewCELEngine() (*CELEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("finding", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("file", cel.StringType),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return &CELEngine{
		env:   env,
		cache: make(map[string]cel.Program),
	}, nil
}

// Name returns the engine identifier.
func (e *CELEngine) Name() string {
	return "cel"
}

// Evaluate runs expression with data supplying finding and file. Missing
// keys default to empty values.
func (e *CELEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty CEL expression")
	}

	prg, err := e.getOrCompile(expression)
	if err != nil {
		return nil, err
	}

	out, _, err := prg.ContextEval(ctx, buildActivation(data))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"CEL evaluation failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}
	return out.Value(), nil
}

// Match reports whether the finding satisfies expression, which must
// produce a bool.
func (e *CELEngine) Match(ctx context.Context, expression string, f schema.Finding) (bool, error) {
	out, err := e.Evaluate(ctx, expression, map[string]any{"finding": FindingData(f), "file": f.File})
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeValidation,
			"CEL filter %q must return bool, got %T", expression, out).
			WithDetails(map[string]any{"expression": expression})
	}
	return b, nil
}

// Filter keeps the findings matching expression and recomputes the summary.
func (e *CELEngine) Filter(ctx context.Context, expression string, report *schema.Report) (*schema.Report, error) {
	return filterReport(report, func(f schema.Finding) (bool, error) {
		return e.Match(ctx, expression, f)
	})
}

func (e *CELEngine) getOrCompile(expression string) (cel.Program, error) {
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

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"CEL compile error in %q: %s", expression, issues.Err().Error()).
			WithCause(issues.Err()).
			WithDetails(map[string]any{"expression": expression})
	}

	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"CEL program error for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	e.cache[expression] = prg
	return prg, nil
}

func buildActivation(data map[string]any) map[string]any {
	activation := map[string]any{"finding": map[string]any{}, "file": ""}
	for _, key := range []string{"finding", "file"} {
		if v, ok := data[key]; ok && v != nil {
			activation[key] = v
		}
	}
	return activation
}

var _ Engine = (*CELEngine)(nil)
