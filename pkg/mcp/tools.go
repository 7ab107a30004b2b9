package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rendis/pyconst/internal/store"
	"github.com/rendis/pyconst/pkg/schema"
)

const (
	defaultSourceName   = "<mcp>"
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

var evaluateInputSchema = []byte(`{
	"type": "object",
	"required": ["expression"],
	"properties": {
		"expression": {"type": "string", "minLength": 1},
		"bindings": {
			"type": "object",
			"propertyNames": {"pattern": "^[A-Za-z_][A-Za-z0-9_]*$"},
			"additionalProperties": {"type": ["number", "boolean", "string"]}
		}
	}
}`)

var inspectInputSchema = []byte(`{
	"type": "object",
	"required": ["source"],
	"properties": {
		"source": {"type": "string"},
		"name": {"type": "string", "minLength": 1},
		"where": {"type": "string"},
		"record": {"type": "boolean"}
	}
}`)

// handleEvaluate folds one expression.
func (s *Server) handleEvaluate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	if err := s.validator.ValidateInput(args, evaluateInputSchema); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	expression, err := req.RequireString("expression")
	if err != nil {
		return mcp.NewToolResultError("expression is required"), nil
	}
	bindings := jsonBindings(mcp.ParseStringMap(req, "bindings", nil))

	out, err := s.python.Evaluate(ctx, expression, bindings)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("evaluation failed: %v", err)), nil
	}
	result := out.(map[string]any)
	result["expression"] = expression
	return marshalResult(result)
}

// handleInspect inspects source text and optionally records the run.
func (s *Server) handleInspect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.validator.ValidateInput(req.GetArguments(), inspectInputSchema); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError("source is required"), nil
	}
	name := req.GetString("name", defaultSourceName)
	where := req.GetString("where", "")
	record := req.GetBool("record", false)

	if record && s.store == nil {
		return mcp.NewToolResultError("recording requires a history database"), nil
	}

	started := time.Now().UTC()
	fr, err := s.inspector.InspectSource(ctx, name, source)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("inspection failed: %v", err)), nil
	}
	report := &schema.Report{
		RunID:      uuid.New().String(),
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
		Paths:      []string{name},
		Files:      []*schema.FileReport{fr},
	}
	report.Summary.Add(fr)

	if record {
		if err := s.store.SaveRun(ctx, report, store.RunMeta{Source: store.SourceMCP}); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to record run: %v", err)), nil
		}
		s.logger.InfoContext(ctx, "mcp run recorded", "run_id", report.RunID, "conditions", report.Summary.Conditions)
	}

	if where != "" {
		report, err = s.cel.Filter(ctx, where, report)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid where filter: %v", err)), nil
		}
	}
	return marshalResult(report)
}

// handleHistory lists runs, or the findings of one run.
func (s *Server) handleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return mcp.NewToolResultError("history requires a history database"), nil
	}
	limit := extractLimit(req.GetFloat("limit", defaultHistoryLimit))

	if runID := req.GetString("run_id", ""); runID != "" {
		run, err := s.store.GetRun(ctx, runID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("run lookup failed: %v", err)), nil
		}
		findings, err := s.store.ListFindings(ctx, runID, store.FindingFilter{
			Verdict: req.GetString("verdict", ""),
			Limit:   limit,
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list findings: %v", err)), nil
		}
		return marshalResult(map[string]any{
			"run":      run,
			"findings": findings,
			"total":    len(findings),
		})
	}

	runs, err := s.store.ListRuns(ctx, store.RunFilter{
		Source: req.GetString("source", ""),
		Limit:  limit,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list runs: %v", err)), nil
	}
	return marshalResult(map[string]any{
		"runs":  runs,
		"total": len(runs),
	})
}

// --- Helpers ---

// jsonBindings maps JSON numbers without a fractional part to ints, since
// JSON carries no int/float distinction. Floats that happen to be integral
// can be passed as strings such as "3.0".
func jsonBindings(raw map[string]any) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		if f, ok := v.(float64); ok && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			out[k] = int64(f)
			continue
		}
		out[k] = v
	}
	return out
}

func extractLimit(v float64) int {
	n := int(v)
	switch {
	case n <= 0:
		return defaultHistoryLimit
	case n > maxHistoryLimit:
		return maxHistoryLimit
	}
	return n
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
