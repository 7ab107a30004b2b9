// Package expressions hosts the expression engines used around a report:
// Python constant folding, CEL finding predicates, expr run gates and jq
// transforms.
package expressions

import (
	"context"
	"encoding/json"
	"fmt"
)

// Engine evaluates an expression against named data.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// jsonValue converts v into the generic JSON shape (map[string]any, []any,
// float64, string, bool, nil) so reports are addressed by their JSON field
// names in every engine.
func jsonValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode expression data: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode expression data: %w", err)
	}
	return out, nil
}

func jsonMap(v any) (map[string]any, error) {
	out, err := jsonValue(v)
	if err != nil {
		return nil, err
	}
	m, ok := out.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expression data is %T, not an object", out)
	}
	return m, nil
}
