package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rendis/pyconst/internal/engine"
	"github.com/rendis/pyconst/internal/store"
	"github.com/rendis/pyconst/pkg/schema"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// mockStore satisfies store.Store for scheduler tests.
type mockStore struct {
	store.Store
	mu       sync.Mutex
	jobs     map[string]*store.WatchJob
	runs     []*schema.Report
	saveErrs []error
}

func newMockStore() *mockStore {
	return &mockStore{jobs: make(map[string]*store.WatchJob)}
}

func (m *mockStore) CreateWatchJob(_ context.Context, job *store.WatchJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.Name == job.Name {
			return schema.NewErrorf(schema.ErrCodeValidation, "watch job %q already exists", job.Name)
		}
	}
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *mockStore) GetWatchJob(_ context.Context, idOrName string) (*store.WatchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.ID == idOrName || j.Name == idOrName {
			cp := *j
			return &cp, nil
		}
	}
	return nil, schema.NewErrorf(schema.ErrCodeNotFound, "watch job %q not found", idOrName)
}

func (m *mockStore) UpdateWatchJob(_ context.Context, id string, update store.WatchJobUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "watch job %q not found", id)
	}
	if update.Enabled != nil {
		j.Enabled = *update.Enabled
	}
	if update.LastRunAt != nil {
		j.LastRunAt = update.LastRunAt
	}
	if update.NextRunAt != nil {
		j.NextRunAt = update.NextRunAt
	}
	if update.LastRunStatus != "" {
		j.LastRunStatus = update.LastRunStatus
	}
	if update.LastRunID != "" {
		j.LastRunID = update.LastRunID
	}
	return nil
}

func (m *mockStore) ListWatchJobs(_ context.Context, filter store.WatchJobFilter) ([]*store.WatchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*store.WatchJob
	for _, j := range m.jobs {
		if filter.Enabled != nil && j.Enabled != *filter.Enabled {
			continue
		}
		cp := *j
		result = append(result, &cp)
	}
	return result, nil
}

func (m *mockStore) DeleteWatchJob(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
	return nil
}

func (m *mockStore) SaveRun(_ context.Context, report *schema.Report, _ store.RunMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saveErrs) > 0 {
		err := m.saveErrs[0]
		m.saveErrs = m.saveErrs[1:]
		return err
	}
	m.runs = append(m.runs, report)
	return nil
}

func (m *mockStore) job(t *testing.T, id string) *store.WatchJob {
	t.Helper()
	j, err := m.GetWatchJob(context.Background(), id)
	require.NoError(t, err)
	return j
}

// mockRunner returns a canned report per call.
type mockRunner struct {
	mu     sync.Mutex
	calls  [][]string
	err    error
	report schema.Report
}

func (r *mockRunner) Run(_ context.Context, paths []string) (*schema.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, paths)
	if r.err != nil {
		return nil, r.err
	}
	rep := r.report
	rep.RunID = "run-" + time.Now().Format("150405.000000000")
	return &rep, nil
}

func (r *mockRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func cleanReport() schema.Report {
	return schema.Report{Summary: schema.Summary{Files: 2, Conditions: 3, True: 1, Undefined: 2}}
}

func fastRetry() engine.RetryPolicy {
	return engine.RetryPolicy{Attempts: 3, Delay: time.Millisecond}
}

func newTestScheduler(s store.Store, runner Runner) *Scheduler {
	return NewScheduler(s, runner, nil, Options{Retry: fastRetry()})
}

func addDueJob(t *testing.T, ms *mockStore, id, failOn string) {
	t.Helper()
	past := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, ms.CreateWatchJob(context.Background(), &store.WatchJob{
		ID:             id,
		Name:           id,
		CronExpression: "0 * * * *",
		Paths:          []string{"src"},
		FailOn:         failOn,
		Enabled:        true,
		NextRunAt:      &past,
	}))
}

// --- Tests ---

func TestCalculateNextRun(t *testing.T) {
	sched := newTestScheduler(newMockStore(), &mockRunner{})
	from := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		expr string
		want time.Time
	}{
		{"0 * * * *", time.Date(2026, 2, 10, 13, 0, 0, 0, time.UTC)},
		{"*/15 * * * *", time.Date(2026, 2, 10, 12, 15, 0, 0, time.UTC)},
		{"0 0 * * *", time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC)},
		{"@hourly", time.Date(2026, 2, 10, 13, 0, 0, 0, time.UTC)},
		{"@every 30s", from.Add(30 * time.Second)},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			next, err := sched.CalculateNextRun(tc.expr, from)
			require.NoError(t, err)
			assert.Equal(t, tc.want, next)
		})
	}

	_, err := sched.CalculateNextRun("invalid cron", from)
	require.Error(t, err)
}

func TestAddJob(t *testing.T) {
	ms := newMockStore()
	sched := newTestScheduler(ms, &mockRunner{})
	ctx := context.Background()

	job, err := sched.AddJob(ctx, "nightly", "0 2 * * *", []string{"src"}, "summary.warnings > 0")
	require.NoError(t, err)
	assert.True(t, job.Enabled)
	require.NotNil(t, job.NextRunAt)
	assert.True(t, job.NextRunAt.After(time.Now().UTC()))

	_, err = sched.AddJob(ctx, "bad-cron", "every day", []string{"src"}, "")
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))

	_, err = sched.AddJob(ctx, "bad-gate", "@daily", []string{"src"}, "summary.warnings >")
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))

	_, err = sched.AddJob(ctx, "no-paths", "@daily", nil, "")
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))

	require.NoError(t, sched.RemoveJob(ctx, "nightly"))
	assert.True(t, schema.HasCode(sched.RemoveJob(ctx, "nightly"), schema.ErrCodeNotFound))
}

func TestTickRunsDueJobs(t *testing.T) {
	ms := newMockStore()
	runner := &mockRunner{report: cleanReport()}
	var hooked []string
	sched := NewScheduler(ms, runner, nil, Options{
		Retry: fastRetry(),
		OnRun: func(job *store.WatchJob, report *schema.Report, status string) {
			hooked = append(hooked, job.ID+":"+status)
		},
	})
	addDueJob(t, ms, "job-1", "")

	sched.tick(context.Background())

	assert.Equal(t, 1, runner.callCount())
	got := ms.job(t, "job-1")
	assert.Equal(t, store.StatusOK, got.LastRunStatus)
	assert.NotEmpty(t, got.LastRunID)
	require.NotNil(t, got.NextRunAt)
	assert.True(t, got.NextRunAt.After(time.Now().UTC()))
	assert.Len(t, ms.runs, 1)
	assert.Equal(t, []string{"job-1:ok"}, hooked)
}

func TestTickSkipsNotDueAndDisabledJobs(t *testing.T) {
	ms := newMockStore()
	runner := &mockRunner{report: cleanReport()}
	sched := newTestScheduler(ms, runner)
	ctx := context.Background()

	future := time.Now().UTC().Add(time.Hour)
	past := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, ms.CreateWatchJob(ctx, &store.WatchJob{ID: "future", Name: "future", CronExpression: "@hourly", Paths: []string{"a"}, Enabled: true, NextRunAt: &future}))
	require.NoError(t, ms.CreateWatchJob(ctx, &store.WatchJob{ID: "off", Name: "off", CronExpression: "@hourly", Paths: []string{"a"}, Enabled: false, NextRunAt: &past}))

	sched.tick(ctx)
	assert.Zero(t, runner.callCount())
}

func TestTickWithNilNextRunAt(t *testing.T) {
	ms := newMockStore()
	runner := &mockRunner{report: cleanReport()}
	sched := newTestScheduler(ms, runner)
	require.NoError(t, ms.CreateWatchJob(context.Background(), &store.WatchJob{
		ID: "fresh", Name: "fresh", CronExpression: "@hourly", Paths: []string{"a"}, Enabled: true,
	}))

	sched.tick(context.Background())
	assert.Equal(t, 1, runner.callCount())
}

func TestGateStatus(t *testing.T) {
	ms := newMockStore()
	report := cleanReport()
	report.Summary.Warnings = 2
	sched := newTestScheduler(ms, &mockRunner{report: report})
	addDueJob(t, ms, "gated", "summary.warnings > 0")
	addDueJob(t, ms, "passing", `summary["false"] > 0 || summary.errors > 0`)

	sched.tick(context.Background())

	assert.Equal(t, store.StatusGated, ms.job(t, "gated").LastRunStatus)
	assert.Equal(t, store.StatusOK, ms.job(t, "passing").LastRunStatus)
}

func TestRunFailureOpensBreaker(t *testing.T) {
	ms := newMockStore()
	runner := &mockRunner{err: errors.New("path vanished")}
	sched := NewScheduler(ms, runner, nil, Options{
		Retry:   fastRetry(),
		Breaker: engine.BreakerConfig{FailureThreshold: 2, Cooldown: time.Hour},
	})
	ctx := context.Background()
	addDueJob(t, ms, "flaky", "")

	for i := 0; i < 4; i++ {
		_, err := sched.RunNow(ctx, "flaky")
		require.NoError(t, err)
	}

	assert.Equal(t, 2, runner.callCount(), "suspended after two failures")
	assert.Equal(t, engine.BreakerOpen, sched.JobState("flaky"))
	assert.Equal(t, store.StatusError, ms.job(t, "flaky").LastRunStatus)
}

func TestAllFilesUnreadableIsError(t *testing.T) {
	ms := newMockStore()
	sched := newTestScheduler(ms, &mockRunner{report: schema.Report{Summary: schema.Summary{Files: 2, Errors: 2}}})
	addDueJob(t, ms, "gone", "")

	sched.tick(context.Background())
	assert.Equal(t, store.StatusError, ms.job(t, "gone").LastRunStatus)
}

func TestSaveRetriesLockedDatabase(t *testing.T) {
	ms := newMockStore()
	ms.saveErrs = []error{
		schema.NewError(schema.ErrCodeStore, "insert run: database is locked"),
		errors.New("database is locked"),
	}
	sched := newTestScheduler(ms, &mockRunner{report: cleanReport()})
	addDueJob(t, ms, "job-1", "")

	sched.tick(context.Background())

	assert.Len(t, ms.runs, 1)
	assert.Equal(t, store.StatusOK, ms.job(t, "job-1").LastRunStatus)
}

func TestSavePermanentFailure(t *testing.T) {
	ms := newMockStore()
	ms.saveErrs = []error{schema.NewError(schema.ErrCodeStore, "no such table: runs")}
	sched := newTestScheduler(ms, &mockRunner{report: cleanReport()})
	addDueJob(t, ms, "job-1", "")

	sched.tick(context.Background())

	assert.Empty(t, ms.runs)
	assert.Equal(t, store.StatusError, ms.job(t, "job-1").LastRunStatus)
}

func TestMissedRecovery(t *testing.T) {
	ms := newMockStore()
	runner := &mockRunner{report: cleanReport()}
	sched := newTestScheduler(ms, runner)
	addDueJob(t, ms, "missed", "")

	require.NoError(t, sched.RecoverMissed(context.Background()))

	assert.Equal(t, 1, runner.callCount())
	got := ms.job(t, "missed")
	assert.Equal(t, store.StatusOK, got.LastRunStatus)
	assert.True(t, got.NextRunAt.After(time.Now().UTC()))
}

func TestDedupPreventsDoubleRun(t *testing.T) {
	ms := newMockStore()
	runner := &mockRunner{report: cleanReport()}
	sched := newTestScheduler(ms, runner)
	addDueJob(t, ms, "job-dedup", "")

	require.True(t, sched.tryAcquire("job-dedup"))
	sched.tick(context.Background())
	assert.Zero(t, runner.callCount())

	_, err := sched.RunNow(context.Background(), "job-dedup")
	assert.True(t, schema.HasCode(err, schema.ErrCodeExecution))

	sched.releaseJob("job-dedup")
	sched.tick(context.Background())
	assert.Equal(t, 1, runner.callCount())
}

func TestStartStop(t *testing.T) {
	ms := newMockStore()
	runner := &mockRunner{report: cleanReport()}
	sched := NewScheduler(ms, runner, nil, Options{Interval: 10 * time.Millisecond, Retry: fastRetry()})
	addDueJob(t, ms, "job-1", "")

	ctx := context.Background()
	require.NoError(t, sched.Start(ctx))

	err := sched.Start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")

	assert.Eventually(t, func() bool { return runner.callCount() >= 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, sched.Stop())
	require.NoError(t, sched.Stop())
}
