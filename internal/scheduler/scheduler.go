// Package scheduler re-inspects watched paths on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/rendis/pyconst/internal/engine"
	"github.com/rendis/pyconst/internal/expressions"
	"github.com/rendis/pyconst/internal/logging"
	"github.com/rendis/pyconst/internal/store"
	"github.com/rendis/pyconst/pkg/schema"
)

// DefaultInterval is how often the store is polled for due jobs.
const DefaultInterval = 15 * time.Second

// Runner inspects a set of paths. Satisfied by *engine.Batch.
type Runner interface {
	Run(ctx context.Context, paths []string) (*schema.Report, error)
}

// RunHook observes every completed job run. report is nil when the
// inspection itself failed.
type RunHook func(job *store.WatchJob, report *schema.Report, status string)

// Options tunes a Scheduler. Zero values select defaults.
type Options struct {
	Interval time.Duration
	Retry    engine.RetryPolicy
	Breaker  engine.BreakerConfig
	OnRun    RunHook
}

// Scheduler polls the store for due watch jobs and runs them.
type Scheduler struct {
	store    store.Store
	runner   Runner
	gate     *expressions.ExprEngine
	breakers *engine.JobBreakers
	parser   cron.Parser
	logger   *slog.Logger
	opts     Options
	now      func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex

	inflightMu sync.Mutex
	inflight   map[string]struct{} // job IDs currently executing (dedup)
}

// NewScheduler creates a new Scheduler.
func NewScheduler(s store.Store, runner Runner, logger *slog.Logger, opts Options) *Scheduler {
	if logger == nil {
		logger = logging.Discard()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Retry.Attempts == 0 {
		opts.Retry = engine.DefaultRetryPolicy()
	}
	if opts.Breaker.FailureThreshold == 0 {
		opts.Breaker = engine.DefaultBreakerConfig()
	}
	return &Scheduler{
		store:    s,
		runner:   runner,
		gate:     expressions.NewExprEngine(),
		breakers: engine.NewJobBreakers(opts.Breaker),
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		logger:   logger,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
		inflight: make(map[string]struct{}),
	}
}

// AddJob validates and stores a new enabled job whose first run is the
// next cron activation.
func (s *Scheduler) AddJob(ctx context.Context, name, cronExpr string, paths []string, failOn string) (*store.WatchJob, error) {
	if name == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "watch job needs a name")
	}
	if len(paths) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "watch job needs at least one path")
	}
	now := s.now()
	next, err := s.CalculateNextRun(cronExpr, now)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, err.Error()).WithCause(err)
	}
	if failOn != "" {
		if err := s.gate.CheckGate(failOn); err != nil {
			return nil, err
		}
	}

	job := &store.WatchJob{
		ID:             uuid.NewString(),
		Name:           name,
		CronExpression: cronExpr,
		Paths:          paths,
		FailOn:         failOn,
		Enabled:        true,
		NextRunAt:      &next,
		CreatedAt:      now,
	}
	if err := s.store.CreateWatchJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// RemoveJob deletes a job and forgets its failure state.
func (s *Scheduler) RemoveJob(ctx context.Context, idOrName string) error {
	job, err := s.store.GetWatchJob(ctx, idOrName)
	if err != nil {
		return err
	}
	if err := s.store.DeleteWatchJob(ctx, job.ID); err != nil {
		return err
	}
	s.breakers.Forget(job.ID)
	return nil
}

// Start launches the background scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started", slog.Duration("interval", s.opts.Interval))
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs every enabled job whose next run is due.
func (s *Scheduler) tick(ctx context.Context) {
	enabled := true
	jobs, err := s.store.ListWatchJobs(ctx, store.WatchJobFilter{Enabled: &enabled})
	if err != nil {
		s.logger.Error("failed to list watch jobs", slog.String("error", err.Error()))
		return
	}

	now := s.now()
	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		if job.NextRunAt != nil && job.NextRunAt.After(now) {
			continue
		}
		if !s.tryAcquire(job.ID) {
			continue
		}
		if err := s.runJob(ctx, job, now); err != nil {
			s.logger.Error("failed to run watch job",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
		}
		s.releaseJob(job.ID)
	}
}

// RunNow runs one job immediately regardless of its schedule.
func (s *Scheduler) RunNow(ctx context.Context, idOrName string) (*store.WatchJob, error) {
	job, err := s.store.GetWatchJob(ctx, idOrName)
	if err != nil {
		return nil, err
	}
	if !s.tryAcquire(job.ID) {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "watch job %s is already running", job.Name)
	}
	defer s.releaseJob(job.ID)

	if err := s.runJob(ctx, job, s.now()); err != nil {
		return nil, err
	}
	return s.store.GetWatchJob(ctx, job.ID)
}

// runJob inspects the job's paths, stores the run, applies the job's gate
// and records status and next run.
func (s *Scheduler) runJob(ctx context.Context, job *store.WatchJob, now time.Time) error {
	ctx = logging.WithJobID(ctx, job.ID)
	log := logging.LogWith(ctx, s.logger)

	if err := s.breakers.Allow(job.ID); err != nil {
		log.WarnContext(ctx, "watch job suspended", slog.String("job", job.Name), slog.String("reason", err.Error()))
		return s.advance(ctx, job, now)
	}

	log.InfoContext(ctx, "running watch job", slog.String("job", job.Name), slog.Any("paths", job.Paths))
	report, status, err := s.execute(ctx, job)
	if err != nil {
		log.ErrorContext(ctx, "watch job failed", slog.String("job", job.Name), slog.String("error", err.Error()))
	}
	if status == store.StatusError {
		if s.breakers.Failure(job.ID) == engine.BreakerOpen {
			log.WarnContext(ctx, "watch job suspended after repeated failures", slog.String("job", job.Name))
		}
	} else {
		s.breakers.Success(job.ID)
	}

	if s.opts.OnRun != nil {
		s.opts.OnRun(job, report, status)
	}

	runID := ""
	if report != nil {
		runID = report.RunID
	}
	return s.updateJobStatus(ctx, job, now, status, runID)
}

func (s *Scheduler) execute(ctx context.Context, job *store.WatchJob) (*schema.Report, string, error) {
	report, err := s.runner.Run(ctx, job.Paths)
	if err != nil {
		return nil, store.StatusError, err
	}

	save := func(ctx context.Context) error {
		return s.store.SaveRun(ctx, report, store.RunMeta{Source: store.SourceWatch, JobID: job.ID})
	}
	if err := engine.Retry(ctx, s.opts.Retry, save); err != nil {
		return report, store.StatusError, fmt.Errorf("save run: %w", err)
	}

	if sum := report.Summary; sum.Files > 0 && sum.Errors == sum.Files {
		return report, store.StatusError, schema.NewErrorf(schema.ErrCodeExecution, "no file of job %s could be read", job.Name)
	}

	if job.FailOn != "" {
		tripped, err := s.gate.Gate(ctx, job.FailOn, report)
		if err != nil {
			return report, store.StatusError, err
		}
		if tripped {
			return report, store.StatusGated, nil
		}
	}
	return report, store.StatusOK, nil
}

func (s *Scheduler) updateJobStatus(ctx context.Context, job *store.WatchJob, now time.Time, status, runID string) error {
	nextRun, err := s.CalculateNextRun(job.CronExpression, now)
	if err != nil {
		return fmt.Errorf("calculate next run for job %q: %w", job.ID, err)
	}
	return engine.Retry(ctx, s.opts.Retry, func(ctx context.Context) error {
		return s.store.UpdateWatchJob(ctx, job.ID, store.WatchJobUpdate{
			LastRunAt:     &now,
			NextRunAt:     &nextRun,
			LastRunStatus: status,
			LastRunID:     runID,
		})
	})
}

// advance moves a suspended job's next run forward without running it.
func (s *Scheduler) advance(ctx context.Context, job *store.WatchJob, now time.Time) error {
	nextRun, err := s.CalculateNextRun(job.CronExpression, now)
	if err != nil {
		return fmt.Errorf("calculate next run for job %q: %w", job.ID, err)
	}
	return s.store.UpdateWatchJob(ctx, job.ID, store.WatchJobUpdate{NextRunAt: &nextRun})
}

// tryAcquire returns true and marks the job as in-flight if it is not already running.
func (s *Scheduler) tryAcquire(jobID string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[jobID]; ok {
		return false
	}
	s.inflight[jobID] = struct{}{}
	return true
}

func (s *Scheduler) releaseJob(jobID string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, jobID)
}

// CalculateNextRun computes the next activation of a standard 5-field cron
// expression or a descriptor such as @hourly or @every 30s.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// JobState reports the circuit state of a job.
func (s *Scheduler) JobState(jobID string) engine.BreakerState {
	return s.breakers.State(jobID)
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}

// RecoverMissed runs, once, every enabled job whose next run passed while
// the scheduler was down.
func (s *Scheduler) RecoverMissed(ctx context.Context) error {
	enabled := true
	jobs, err := s.store.ListWatchJobs(ctx, store.WatchJobFilter{Enabled: &enabled})
	if err != nil {
		return fmt.Errorf("list missed jobs: %w", err)
	}

	now := s.now()
	recovered := 0
	for _, job := range jobs {
		if job.NextRunAt == nil || !job.NextRunAt.Before(now) {
			continue
		}
		if !s.tryAcquire(job.ID) {
			continue
		}
		err := s.runJob(ctx, job, now)
		s.releaseJob(job.ID)
		if err != nil {
			s.logger.Error("failed to recover missed job",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		recovered++
	}

	if recovered > 0 {
		s.logger.Info("recovered missed jobs", slog.Int("count", recovered))
	}
	return nil
}
