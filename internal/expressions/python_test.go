package expressions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/pyconst/internal/ops"
	"github.com/rendis/pyconst/pkg/schema"
)

func TestPythonEngine_Evaluate(t *testing.T) {
	e := NewPythonEngine(ops.Limits{}, true)
	assert.Equal(t, "python", e.Name())

	cases := []struct {
		expr  string
		data  map[string]any
		value string
		kind  string
		truth string
	}{
		{"-7 // 2", nil, "-4", "int", "true"},
		{"7 / 2", nil, "3.5", "float", "true"},
		{"True & True", nil, "True", "bool", "true"},
		{"a * 2 < b", map[string]any{"a": 3, "b": "0x10"}, "True", "bool", "true"},
		{"x + 1", nil, "undefined", "undefined", "unknown"},
		{"n % 3 == 0", map[string]any{"n": 9.0}, "True", "bool", "true"},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			out, err := e.Evaluate(context.Background(), tc.expr, tc.data)
			require.NoError(t, err)
			m := out.(map[string]any)
			assert.Equal(t, tc.value, m["value"])
			assert.Equal(t, tc.kind, m["kind"])
			assert.Equal(t, tc.truth, m["truth"])
		})
	}
}

func TestPythonEngine_Warnings(t *testing.T) {
	e := NewPythonEngine(ops.Limits{}, true)

	out, err := e.Evaluate(context.Background(), "True or 1 // 0", nil)
	require.NoError(t, err)
	m := out.(map[string]any)
	assert.Equal(t, "True", m["value"])
	warnings := m["warnings"].([]map[string]any)
	require.Len(t, warnings, 1)
	assert.Equal(t, "Division by 0", warnings[0]["message"])
	assert.Equal(t, true, warnings[0]["skipped"])

	res, err := NewPythonEngine(ops.Limits{}, false).Fold(context.Background(), "True or 1 // 0", nil)
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
}

func TestPythonEngine_Errors(t *testing.T) {
	e := NewPythonEngine(ops.Limits{}, false)

	_, err := e.Evaluate(context.Background(), "", nil)
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))

	_, err = e.Evaluate(context.Background(), "1 +", nil)
	assert.True(t, schema.HasCode(err, schema.ErrCodeParse))

	_, err = e.Evaluate(context.Background(), "a", map[string]any{"a": []int{1}})
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Evaluate(ctx, "1", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPythonEngine_CachesTrees(t *testing.T) {
	e := NewPythonEngine(ops.Limits{}, false)
	for i := 0; i < 3; i++ {
		_, err := e.Evaluate(context.Background(), "a + 1", map[string]any{"a": i})
		require.NoError(t, err)
	}
	assert.Len(t, e.cache, 1)
}
