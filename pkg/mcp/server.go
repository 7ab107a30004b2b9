// Package mcp exposes pyconst over the Model Context Protocol so agents can
// fold expressions, inspect source text and browse recorded runs.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rendis/pyconst/internal/expressions"
	"github.com/rendis/pyconst/internal/inspect"
	"github.com/rendis/pyconst/internal/logging"
	"github.com/rendis/pyconst/internal/ops"
	"github.com/rendis/pyconst/internal/store"
	"github.com/rendis/pyconst/internal/validation"
)

// ServerDeps holds the dependencies for creating a Server. Store may be nil,
// in which case history is unavailable and inspect cannot record runs.
type ServerDeps struct {
	Python    *expressions.PythonEngine
	Inspector *inspect.Inspector
	Store     store.Store
	Validator *validation.JSONSchemaValidator
	Logger    *slog.Logger
	Version   string
}

// Server wraps an MCP server with pyconst tool handlers.
type Server struct {
	python    *expressions.PythonEngine
	inspector *inspect.Inspector
	store     store.Store
	validator *validation.JSONSchemaValidator
	cel       *expressions.CELEngine
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a Server with all tools registered.
func NewServer(deps ServerDeps) (*Server, error) {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	python := deps.Python
	if python == nil {
		python = expressions.NewPythonEngine(ops.Limits{}, true)
	}
	in := deps.Inspector
	if in == nil {
		in = inspect.New(inspect.Config{}, logger, nil)
	}
	validator := deps.Validator
	if validator == nil {
		v, err := validation.NewJSONSchemaValidator()
		if err != nil {
			return nil, err
		}
		validator = v
	}
	celEngine, err := expressions.NewCELEngine()
	if err != nil {
		return nil, err
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		python:    python,
		inspector: in,
		store:     deps.Store,
		validator: validator,
		cel:       celEngine,
		logger:    logger,
	}

	mcpSrv := server.NewMCPServer(
		"pyconst",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("pyconst folds Python numeric expressions at analysis time. Use pyconst.evaluate to fold one expression, pyconst.inspect to find constant if/elif conditions in source text, and pyconst.history to browse recorded inspection runs."),
	)
	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s, nil
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: evaluateTool(), Handler: s.handleEvaluate},
		{Tool: inspectTool(), Handler: s.handleInspect},
		{Tool: historyTool(), Handler: s.handleHistory},
	}
}

// --- Tool definitions ---

func evaluateTool() mcp.Tool {
	return mcp.NewTool("pyconst.evaluate",
		mcp.WithDescription("Fold a Python numeric expression to a constant"),
		mcp.WithString("expression", mcp.Required(), mcp.Description("Python expression, e.g. '10 // 3 > 2 and 1 / 0'")),
		mcp.WithObject("bindings", mcp.Description("Names bound to int, float, bool or numeric literal string values")),
	)
}

func inspectTool() mcp.Tool {
	return mcp.NewTool("pyconst.inspect",
		mcp.WithDescription("Report the constant if/elif conditions of Python source text"),
		mcp.WithString("source", mcp.Required(), mcp.Description("Python source text")),
		mcp.WithString("name", mcp.Description("File name used in findings (default: <mcp>)")),
		mcp.WithString("where", mcp.Description("CEL filter over each finding, e.g. finding.verdict == 'undefined'")),
		mcp.WithBoolean("record", mcp.Description("Persist the run to history")),
	)
}

func historyTool() mcp.Tool {
	return mcp.NewTool("pyconst.history",
		mcp.WithDescription("List recorded inspection runs, or the findings of one run"),
		mcp.WithString("run_id", mcp.Description("Run to list findings for; omit to list runs")),
		mcp.WithString("verdict",
			mcp.Enum("true", "false", "undefined", "unsupported"),
			mcp.Description("Only findings with this verdict"),
		),
		mcp.WithString("source",
			mcp.Enum(store.SourceCLI, store.SourceWatch, store.SourceMCP),
			mcp.Description("Only runs from this source"),
		),
		mcp.WithNumber("limit", mcp.Description("Maximum number of rows (default: 20)")),
	)
}
