// Package store persists inspection runs, their findings and scheduled
// watch jobs.
package store

import (
	"context"
	"time"

	"github.com/rendis/pyconst/pkg/schema"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Runs
	SaveRun(ctx context.Context, report *schema.Report, meta RunMeta) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)
	LoadReport(ctx context.Context, runID string) (*schema.Report, error)
	ListFindings(ctx context.Context, runID string, filter FindingFilter) ([]schema.Finding, error)
	DeleteRun(ctx context.Context, id string) error
	PruneRuns(ctx context.Context, before time.Time) (int64, error)

	// Watch jobs
	CreateWatchJob(ctx context.Context, job *WatchJob) error
	GetWatchJob(ctx context.Context, idOrName string) (*WatchJob, error)
	UpdateWatchJob(ctx context.Context, id string, update WatchJobUpdate) error
	ListWatchJobs(ctx context.Context, filter WatchJobFilter) ([]*WatchJob, error)
	DeleteWatchJob(ctx context.Context, id string) error

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
