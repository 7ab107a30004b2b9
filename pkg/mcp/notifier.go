package mcp

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/rendis/pyconst/internal/store"
	"github.com/rendis/pyconst/pkg/schema"
)

// RunNotificationMethod is the MCP notification sent after each watch run.
const RunNotificationMethod = "notifications/message"

// notificationSink is the subset of server.MCPServer used for pushes.
type notificationSink interface {
	SendNotificationToAllClients(method string, params map[string]any)
}

// RunNotifier pushes watch run outcomes to every connected client.
type RunNotifier struct {
	sink notificationSink
}

// NewRunNotifier creates a notifier that broadcasts over mcpServer.
func NewRunNotifier(mcpServer *server.MCPServer) *RunNotifier {
	return &RunNotifier{sink: mcpServer}
}

// OnRun matches scheduler.RunHook. report is nil when the run failed before
// producing one.
func (n *RunNotifier) OnRun(job *store.WatchJob, report *schema.Report, status string) {
	data := map[string]any{
		"job":    job.Name,
		"job_id": job.ID,
		"status": status,
	}
	if report != nil {
		data["run_id"] = report.RunID
		data["summary"] = report.Summary
	}
	level := "info"
	if status != store.StatusOK {
		level = "warning"
	}
	n.sink.SendNotificationToAllClients(RunNotificationMethod, map[string]any{
		"level":  level,
		"logger": "pyconst.watch",
		"data":   data,
	})
}

// Notifier returns a RunNotifier broadcasting over this server.
func (s *Server) Notifier() *RunNotifier {
	return NewRunNotifier(s.mcpServer)
}
