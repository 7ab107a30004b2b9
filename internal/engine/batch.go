// Package engine runs inspections over many files: a bounded worker pool,
// the batch runner built on it, retry policies for store writes and
// per-job circuit breakers for scheduled watches.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/pyconst/internal/inspect"
	"github.com/rendis/pyconst/internal/logging"
	"github.com/rendis/pyconst/internal/telemetry"
	"github.com/rendis/pyconst/pkg/schema"
)

// ProgressFunc is called after each file completes. Calls are serialized.
type ProgressFunc func(done, total int, file string)

// Batch inspects file sets on a bounded pool.
type Batch struct {
	inspector *inspect.Inspector
	poolSize  int
	logger    *slog.Logger
	rec       *telemetry.Recorder
	progress  ProgressFunc
}

// BatchOption configures a Batch.
type BatchOption func(*Batch)

// WithPoolSize bounds the number of files inspected concurrently.
func WithPoolSize(n int) BatchOption {
	return func(b *Batch) {
		if n > 0 {
			b.poolSize = n
		}
	}
}

// WithProgress installs a per-file progress callback.
func WithProgress(fn ProgressFunc) BatchOption {
	return func(b *Batch) { b.progress = fn }
}

// NewBatch creates a batch runner. A nil logger or recorder disables that
// output.
func NewBatch(in *inspect.Inspector, logger *slog.Logger, rec *telemetry.Recorder, opts ...BatchOption) *Batch {
	if logger == nil {
		logger = logging.Discard()
	}
	if rec == nil {
		rec = telemetry.Noop()
	}
	b := &Batch{
		inspector: in,
		poolSize:  runtime.GOMAXPROCS(0),
		logger:    logger,
		rec:       rec,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Run expands paths to Python files and inspects them. Files that cannot be
// read are reported with FileReport.Error and counted in the summary; only
// a bad path argument or cancellation fails the run. Reports keep the
// sorted file order regardless of completion order.
func (b *Batch) Run(ctx context.Context, paths []string) (*schema.Report, error) {
	files, err := inspect.CollectFiles(paths)
	if err != nil {
		return nil, err
	}

	report := &schema.Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Paths:     paths,
		Files:     make([]*schema.FileReport, len(files)),
	}
	ctx = logging.WithRunID(ctx, report.RunID)
	ctx, span := b.rec.StartRun(ctx, report.RunID, len(files))
	log := logging.LogWith(ctx, b.logger)
	log.InfoContext(ctx, "run started", slog.Int("files", len(files)))

	pool := NewWorkerPool(b.poolSize)
	var (
		mu   sync.Mutex
		done int
	)
	var submitErr error
	for i, file := range files {
		submitErr = pool.Submit(ctx, func(ctx context.Context) error {
			fr, err := b.inspector.InspectFile(ctx, file)
			if err != nil {
				if ctx.Err() != nil {
					return err
				}
				log.WarnContext(ctx, "file failed", slog.String("file", file), slog.String("error", err.Error()))
				fr = &schema.FileReport{File: file, Findings: []schema.Finding{}, Error: err.Error()}
			}
			report.Files[i] = fr

			mu.Lock()
			done++
			if b.progress != nil {
				b.progress(done, len(files), file)
			}
			mu.Unlock()
			return nil
		})
		if submitErr != nil {
			break
		}
	}
	waitErr := pool.Wait()
	pool.Shutdown()

	if err := errors.Join(submitErr, waitErr, ctx.Err()); err != nil {
		telemetry.End(span, err)
		return nil, schema.NewError(schema.ErrCodeExecution, "inspection run aborted").WithCause(err)
	}

	for _, fr := range report.Files {
		report.Summary.Add(fr)
	}
	report.FinishedAt = time.Now().UTC()
	telemetry.End(span, nil)
	log.InfoContext(ctx, "run finished",
		slog.Int("conditions", report.Summary.Conditions),
		slog.Int("warnings", report.Summary.Warnings),
		slog.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}
