package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rendis/pyconst/internal/store"
	"github.com/rendis/pyconst/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock Store ---

type mockStore struct {
	store.Store // embed for unimplemented methods

	runs     []*store.Run
	reports  []*schema.Report
	metas    []store.RunMeta
	findings map[string][]schema.Finding

	lastRunFilter     store.RunFilter
	lastFindingFilter store.FindingFilter
}

func newMockStore() *mockStore {
	return &mockStore{findings: make(map[string][]schema.Finding)}
}

func (m *mockStore) SaveRun(_ context.Context, report *schema.Report, meta store.RunMeta) error {
	m.reports = append(m.reports, report)
	m.metas = append(m.metas, meta)
	return nil
}

func (m *mockStore) GetRun(_ context.Context, id string) (*store.Run, error) {
	for _, r := range m.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, schema.NewError(schema.ErrCodeNotFound, "run not found")
}

func (m *mockStore) ListRuns(_ context.Context, filter store.RunFilter) ([]*store.Run, error) {
	m.lastRunFilter = filter
	result := make([]*store.Run, 0)
	for _, r := range m.runs {
		if filter.Source != "" && r.Source != filter.Source {
			continue
		}
		result = append(result, r)
	}
	return result, nil
}

func (m *mockStore) ListFindings(_ context.Context, runID string, filter store.FindingFilter) ([]schema.Finding, error) {
	m.lastFindingFilter = filter
	result := make([]schema.Finding, 0)
	for _, f := range m.findings[runID] {
		if filter.Verdict != "" && string(f.Verdict) != filter.Verdict {
			continue
		}
		result = append(result, f)
	}
	return result, nil
}

// --- Helpers ---

func newTestServer(t *testing.T, st store.Store) *Server {
	t.Helper()
	s, err := NewServer(ServerDeps{Store: st})
	require.NoError(t, err)
	return s
}

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

func extractText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	return mcp.GetTextFromContent(result.Content[0])
}

func unmarshalResult(t *testing.T, result *mcp.CallToolResult, target any) {
	t.Helper()
	text := extractText(t, result)
	require.NoError(t, json.Unmarshal([]byte(text), target))
}

const sampleSource = "if 1 < 2:\n    pass\nelif 1 / 0:\n    pass\n"

// --- pyconst.evaluate ---

func TestEvaluateTool(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name     string
		args     map[string]any
		value    string
		kind     string
		truth    string
		warnings int
	}{
		{"constant", map[string]any{"expression": "2 ** 10 // 3"}, "341", "int", "true", 0},
		{"integral json number binds an int", map[string]any{"expression": "n * 2", "bindings": map[string]any{"n": 21}}, "42", "int", "true", 0},
		{"fractional binding", map[string]any{"expression": "x + 1", "bindings": map[string]any{"x": 1.5}}, "2.5", "float", "true", 0},
		{"string literal binding", map[string]any{"expression": "x", "bindings": map[string]any{"x": "0.0"}}, "0.0", "float", "false", 0},
		{"division by zero", map[string]any{"expression": "10 // 3 > 2 and 1 / 0"}, "", "undefined", "unknown", 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := s.handleEvaluate(context.Background(), buildRequest("pyconst.evaluate", tc.args))
			require.NoError(t, err)
			require.False(t, result.IsError, extractText(t, result))

			var out struct {
				Expression string           `json:"expression"`
				Value      string           `json:"value"`
				Kind       string           `json:"kind"`
				Truth      string           `json:"truth"`
				Warnings   []map[string]any `json:"warnings"`
			}
			unmarshalResult(t, result, &out)
			assert.Equal(t, tc.args["expression"], out.Expression)
			if tc.value != "" {
				assert.Equal(t, tc.value, out.Value)
			}
			assert.Equal(t, tc.kind, out.Kind)
			assert.Equal(t, tc.truth, out.Truth)
			assert.Len(t, out.Warnings, tc.warnings)
		})
	}
}

func TestEvaluateToolRejectsBadInput(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing expression", map[string]any{}},
		{"empty expression", map[string]any{"expression": ""}},
		{"bad binding name", map[string]any{"expression": "1", "bindings": map[string]any{"1x": 1}}},
		{"bad binding value", map[string]any{"expression": "x", "bindings": map[string]any{"x": []any{1}}}},
		{"unparsable binding literal", map[string]any{"expression": "x", "bindings": map[string]any{"x": "abc"}}},
		{"syntax error", map[string]any{"expression": "1 +"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := s.handleEvaluate(context.Background(), buildRequest("pyconst.evaluate", tc.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
		})
	}
}

// --- pyconst.inspect ---

func TestInspectTool(t *testing.T) {
	s := newTestServer(t, nil)

	req := buildRequest("pyconst.inspect", map[string]any{"source": sampleSource, "name": "sample.py"})
	result, err := s.handleInspect(context.Background(), req)
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))

	var report schema.Report
	unmarshalResult(t, result, &report)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, []string{"sample.py"}, report.Paths)
	require.Len(t, report.Files, 1)
	assert.Equal(t, "sample.py", report.Files[0].File)
	assert.Equal(t, 2, report.Summary.Conditions)
	assert.Equal(t, 1, report.Summary.True)
	assert.Equal(t, 1, report.Summary.Undefined)
	assert.Equal(t, 1, report.Summary.Warnings)
}

func TestInspectToolWhereFilter(t *testing.T) {
	s := newTestServer(t, nil)

	req := buildRequest("pyconst.inspect", map[string]any{
		"source": sampleSource,
		"where":  "finding.verdict == 'undefined'",
	})
	result, err := s.handleInspect(context.Background(), req)
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))

	var report schema.Report
	unmarshalResult(t, result, &report)
	findings := report.Findings()
	require.Len(t, findings, 1)
	assert.Equal(t, defaultSourceName, findings[0].File)
	assert.Equal(t, schema.VerdictUndefined, findings[0].Verdict)
	assert.Equal(t, 1, report.Summary.Conditions)

	req = buildRequest("pyconst.inspect", map[string]any{"source": sampleSource, "where": "finding.line"})
	result, err = s.handleInspect(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestInspectToolRecord(t *testing.T) {
	ms := newMockStore()
	s := newTestServer(t, ms)

	req := buildRequest("pyconst.inspect", map[string]any{"source": sampleSource, "record": true})
	result, err := s.handleInspect(context.Background(), req)
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))

	require.Len(t, ms.reports, 1)
	assert.Equal(t, store.SourceMCP, ms.metas[0].Source)
	assert.Equal(t, 2, ms.reports[0].Summary.Conditions)
}

func TestInspectToolRecordWithoutStore(t *testing.T) {
	s := newTestServer(t, nil)

	req := buildRequest("pyconst.inspect", map[string]any{"source": sampleSource, "record": true})
	result, err := s.handleInspect(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "history database")
}

func TestInspectToolMissingSource(t *testing.T) {
	s := newTestServer(t, nil)

	result, err := s.handleInspect(context.Background(), buildRequest("pyconst.inspect", map[string]any{"name": "x.py"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// --- pyconst.history ---

func seededStore() *mockStore {
	ms := newMockStore()
	now := time.Now().UTC()
	ms.runs = []*store.Run{
		{ID: "run-1", Source: store.SourceCLI, Paths: []string{"a.py"}, StartedAt: now, FinishedAt: now},
		{ID: "run-2", Source: store.SourceWatch, JobID: "job-1", Paths: []string{"b.py"}, StartedAt: now, FinishedAt: now},
	}
	ms.findings["run-1"] = []schema.Finding{
		{File: "a.py", Line: 1, Condition: "1 < 2", Verdict: schema.VerdictTrue, Value: "True"},
		{File: "a.py", Line: 3, Condition: "1 / 0", Verdict: schema.VerdictUndefined},
	}
	return ms
}

func TestHistoryToolListsRuns(t *testing.T) {
	ms := seededStore()
	s := newTestServer(t, ms)

	result, err := s.handleHistory(context.Background(), buildRequest("pyconst.history", map[string]any{}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out struct {
		Runs  []store.Run `json:"runs"`
		Total int         `json:"total"`
	}
	unmarshalResult(t, result, &out)
	assert.Equal(t, 2, out.Total)
	assert.Equal(t, defaultHistoryLimit, ms.lastRunFilter.Limit)

	result, err = s.handleHistory(context.Background(), buildRequest("pyconst.history", map[string]any{
		"source": store.SourceWatch,
		"limit":  float64(5000),
	}))
	require.NoError(t, err)
	unmarshalResult(t, result, &out)
	require.Equal(t, 1, out.Total)
	assert.Equal(t, "run-2", out.Runs[0].ID)
	assert.Equal(t, maxHistoryLimit, ms.lastRunFilter.Limit)
}

func TestHistoryToolRunFindings(t *testing.T) {
	ms := seededStore()
	s := newTestServer(t, ms)

	result, err := s.handleHistory(context.Background(), buildRequest("pyconst.history", map[string]any{
		"run_id":  "run-1",
		"verdict": "undefined",
		"limit":   float64(10),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out struct {
		Run      store.Run        `json:"run"`
		Findings []schema.Finding `json:"findings"`
		Total    int              `json:"total"`
	}
	unmarshalResult(t, result, &out)
	assert.Equal(t, "run-1", out.Run.ID)
	require.Equal(t, 1, out.Total)
	assert.Equal(t, "1 / 0", out.Findings[0].Condition)
	assert.Equal(t, 10, ms.lastFindingFilter.Limit)
}

func TestHistoryToolErrors(t *testing.T) {
	result, err := newTestServer(t, nil).handleHistory(context.Background(), buildRequest("pyconst.history", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = newTestServer(t, seededStore()).handleHistory(context.Background(),
		buildRequest("pyconst.history", map[string]any{"run_id": "missing"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "run not found")
}

func TestJSONBindings(t *testing.T) {
	out := jsonBindings(map[string]any{"a": float64(3), "b": 2.5, "c": "7", "d": true, "e": 1e300})
	assert.Equal(t, int64(3), out["a"])
	assert.Equal(t, 2.5, out["b"])
	assert.Equal(t, "7", out["c"])
	assert.Equal(t, true, out["d"])
	assert.Equal(t, 1e300, out["e"])
	assert.Nil(t, jsonBindings(nil))
}
