package store

import (
	"time"

	"github.com/rendis/pyconst/pkg/schema"
)

// Run sources.
const (
	SourceCLI   = "cli"
	SourceWatch = "watch"
	SourceMCP   = "mcp"
)

// Watch job run statuses.
const (
	StatusOK    = "ok"    // inspected, gate (if any) passed
	StatusGated = "gated" // inspected, fail_on gate tripped
	StatusError = "error" // inspection or persistence failed
)

// RunMeta describes where a run came from.
type RunMeta struct {
	Source string `json:"source"`
	JobID  string `json:"job_id,omitempty"`
}

// Run is the stored header of an inspection run.
type Run struct {
	ID         string         `json:"id"`
	JobID      string         `json:"job_id,omitempty"`
	Source     string         `json:"source"`
	Paths      []string       `json:"paths"`
	Summary    schema.Summary `json:"summary"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// WatchJob re-inspects a set of paths on a cron schedule.
type WatchJob struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	CronExpression string     `json:"cron_expression"`
	Paths          []string   `json:"paths"`
	FailOn         string     `json:"fail_on,omitempty"` // expr gate over the run report
	Enabled        bool       `json:"enabled"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time `json:"next_run_at,omitempty"`
	LastRunStatus  string     `json:"last_run_status,omitempty"`
	LastRunID      string     `json:"last_run_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// --- Filter and update types ---

// RunFilter specifies criteria for listing runs, newest first.
type RunFilter struct {
	JobID  string     `json:"job_id,omitempty"`
	Source string     `json:"source,omitempty"`
	Since  *time.Time `json:"since,omitempty"`
	Limit  int        `json:"limit,omitempty"`
}

// FindingFilter narrows the findings of one run.
type FindingFilter struct {
	Verdict string `json:"verdict,omitempty"`
	File    string `json:"file,omitempty"`
	// WithWarnings keeps only findings that raised at least one warning.
	WithWarnings bool `json:"with_warnings,omitempty"`
	Limit        int  `json:"limit,omitempty"`
}

// WatchJobUpdate specifies mutable fields of a watch job.
type WatchJobUpdate struct {
	Enabled       *bool      `json:"enabled,omitempty"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	NextRunAt     *time.Time `json:"next_run_at,omitempty"`
	LastRunStatus string     `json:"last_run_status,omitempty"`
	LastRunID     string     `json:"last_run_id,omitempty"`
}

// WatchJobFilter specifies criteria for listing watch jobs.
type WatchJobFilter struct {
	Enabled *bool `json:"enabled,omitempty"`
	Limit   int   `json:"limit,omitempty"`
}
