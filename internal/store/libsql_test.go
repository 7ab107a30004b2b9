package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/pyconst/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	s, err := NewLibSQLStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleReport(started time.Time) *schema.Report {
	files := []*schema.FileReport{
		{
			File: "app/a.py",
			Findings: []schema.Finding{
				{File: "app/a.py", Line: 3, Column: 4, Keyword: "if", Condition: "2 > 1",
					Verdict: schema.VerdictTrue, Value: "True", Message: "The condition is always true"},
				{File: "app/a.py", Line: 9, Column: 6, Keyword: "elif", Condition: "1 // 0 > 2",
					Verdict: schema.VerdictUndefined,
					Warnings: []schema.WarningRecord{{Kind: "DivisionByZero", Message: "Division by 0", Operands: "1 // 0", Line: 9, Column: 6}}},
			},
		},
		{File: "app/gone.py", Findings: []schema.Finding{}, Error: "[NOT_FOUND] app/gone.py: cannot read source"},
		{
			File: "app/b.py",
			Findings: []schema.Finding{
				{File: "app/b.py", Line: 1, Column: 4, Keyword: "if", Condition: "3 < 2",
					Verdict: schema.VerdictFalse, Value: "False", Message: "The condition is always false"},
			},
		},
	}
	r := &schema.Report{
		RunID:      uuid.NewString(),
		StartedAt:  started,
		FinishedAt: started.Add(time.Second),
		Paths:      []string{"app"},
		Files:      files,
	}
	for _, f := range files {
		r.Summary.Add(f)
	}
	return r
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))

	var version int
	require.NoError(t, s.DB().QueryRow(`SELECT MAX(version) FROM schema_version`).Scan(&version))
	assert.Equal(t, len(migrations), version)
}

func TestSaveAndLoadReport(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	report := sampleReport(started)

	require.NoError(t, s.SaveRun(ctx, report, RunMeta{Source: SourceCLI}))

	run, err := s.GetRun(ctx, report.RunID)
	require.NoError(t, err)
	assert.Equal(t, SourceCLI, run.Source)
	assert.Equal(t, []string{"app"}, run.Paths)
	assert.Equal(t, report.Summary, run.Summary)
	assert.True(t, run.StartedAt.Equal(started))

	loaded, err := s.LoadReport(ctx, report.RunID)
	require.NoError(t, err)
	require.Len(t, loaded.Files, 3)
	assert.Equal(t, "app/a.py", loaded.Files[0].File)
	assert.Equal(t, report.Files[0].Findings, loaded.Files[0].Findings)
	assert.Equal(t, report.Files[1].Error, loaded.Files[1].Error)
	assert.Empty(t, loaded.Files[1].Findings)
	assert.Equal(t, report.Files[2].Findings, loaded.Files[2].Findings)
	assert.Equal(t, report.Summary, loaded.Summary)
}

func TestSaveRunRejectsMissingID(t *testing.T) {
	s := newTestStore(t)
	err := s.SaveRun(context.Background(), &schema.Report{}, RunMeta{})
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))
}

func TestSaveRunDuplicateIsStoreError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	report := sampleReport(time.Now())
	require.NoError(t, s.SaveRun(ctx, report, RunMeta{}))

	err := s.SaveRun(ctx, report, RunMeta{})
	assert.True(t, schema.HasCode(err, schema.ErrCodeStore))
}

func TestListFindingsFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	report := sampleReport(time.Now())
	require.NoError(t, s.SaveRun(ctx, report, RunMeta{}))

	all, err := s.ListFindings(ctx, report.RunID, FindingFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	falses, err := s.ListFindings(ctx, report.RunID, FindingFilter{Verdict: "false"})
	require.NoError(t, err)
	require.Len(t, falses, 1)
	assert.Equal(t, "3 < 2", falses[0].Condition)

	warned, err := s.ListFindings(ctx, report.RunID, FindingFilter{WithWarnings: true})
	require.NoError(t, err)
	require.Len(t, warned, 1)
	assert.Equal(t, "Division by 0", warned[0].Warnings[0].Message)

	inFile, err := s.ListFindings(ctx, report.RunID, FindingFilter{File: "app/a.py", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, inFile, 1)

	_, err = s.ListFindings(ctx, "missing", FindingFilter{})
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
}

func TestListRunsAndPrune(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	old := sampleReport(base)
	mid := sampleReport(base.Add(24 * time.Hour))
	recent := sampleReport(base.Add(48 * time.Hour))
	require.NoError(t, s.SaveRun(ctx, old, RunMeta{Source: SourceCLI}))
	require.NoError(t, s.SaveRun(ctx, mid, RunMeta{Source: SourceWatch, JobID: "job-1"}))
	require.NoError(t, s.SaveRun(ctx, recent, RunMeta{Source: SourceWatch, JobID: "job-1"}))

	runs, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, recent.RunID, runs[0].ID, "newest first")

	byJob, err := s.ListRuns(ctx, RunFilter{JobID: "job-1", Limit: 1})
	require.NoError(t, err)
	require.Len(t, byJob, 1)
	assert.Equal(t, recent.RunID, byJob[0].ID)

	since := base.Add(time.Hour)
	recentRuns, err := s.ListRuns(ctx, RunFilter{Since: &since, Source: SourceWatch})
	require.NoError(t, err)
	assert.Len(t, recentRuns, 2)

	n, err := s.PruneRuns(ctx, base.Add(36*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = s.GetRun(ctx, old.RunID)
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))

	var orphans int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM findings WHERE run_id = ?`, old.RunID).Scan(&orphans))
	assert.Zero(t, orphans, "findings cascade with their run")
}

func TestDeleteRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	report := sampleReport(time.Now())
	require.NoError(t, s.SaveRun(ctx, report, RunMeta{}))

	require.NoError(t, s.DeleteRun(ctx, report.RunID))
	err := s.DeleteRun(ctx, report.RunID)
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
}

func TestWatchJobCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job := &WatchJob{
		ID:             uuid.NewString(),
		Name:           "nightly",
		CronExpression: "0 2 * * *",
		Paths:          []string{"src", "lib/util.py"},
		FailOn:         "summary.warnings > 0",
		Enabled:        true,
	}
	require.NoError(t, s.CreateWatchJob(ctx, job))

	err := s.CreateWatchJob(ctx, &WatchJob{ID: uuid.NewString(), Name: "nightly", CronExpression: "@hourly", Paths: []string{"x"}})
	assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))

	byName, err := s.GetWatchJob(ctx, "nightly")
	require.NoError(t, err)
	assert.Equal(t, job.ID, byName.ID)
	assert.Equal(t, job.Paths, byName.Paths)
	assert.Equal(t, job.FailOn, byName.FailOn)
	assert.True(t, byName.Enabled)
	assert.Nil(t, byName.NextRunAt)

	next := time.Date(2026, 5, 1, 2, 0, 0, 0, time.UTC)
	last := next.Add(-24 * time.Hour)
	disabled := false
	require.NoError(t, s.UpdateWatchJob(ctx, job.ID, WatchJobUpdate{
		Enabled:       &disabled,
		LastRunAt:     &last,
		NextRunAt:     &next,
		LastRunStatus: StatusGated,
		LastRunID:     "run-9",
	}))

	got, err := s.GetWatchJob(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	require.NotNil(t, got.NextRunAt)
	assert.True(t, got.NextRunAt.Equal(next))
	assert.True(t, got.LastRunAt.Equal(last))
	assert.Equal(t, StatusGated, got.LastRunStatus)
	assert.Equal(t, "run-9", got.LastRunID)

	enabled := true
	jobs, err := s.ListWatchJobs(ctx, WatchJobFilter{Enabled: &enabled})
	require.NoError(t, err)
	assert.Empty(t, jobs)

	jobs, err = s.ListWatchJobs(ctx, WatchJobFilter{})
	require.NoError(t, err)
	assert.Len(t, jobs, 1)

	require.NoError(t, s.DeleteWatchJob(ctx, job.ID))
	_, err = s.GetWatchJob(ctx, job.ID)
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
	assert.True(t, schema.HasCode(s.UpdateWatchJob(ctx, job.ID, WatchJobUpdate{LastRunStatus: StatusOK}), schema.ErrCodeNotFound))
}

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   []string
	}{
		{
			name:   "comments",
			script: "-- header\nCREATE TABLE a (x INT);\n\n-- only a comment;\nCREATE INDEX i ON a(x);",
			want:   []string{"-- header\nCREATE TABLE a (x INT)", "-- only a comment;\nCREATE INDEX i ON a(x)"},
		},
		{
			name:   "quoted semicolons",
			script: "INSERT INTO a VALUES ('x;y', 'it''s;');\nCREATE TABLE \"b;c\" (x INT)",
			want:   []string{"INSERT INTO a VALUES ('x;y', 'it''s;')", "CREATE TABLE \"b;c\" (x INT)"},
		},
		{
			name:   "block comment",
			script: "/* a; b */ CREATE TABLE a (x INT);;  -- trailing;",
			want:   []string{"/* a; b */ CREATE TABLE a (x INT)"},
		},
		{
			name:   "only comments",
			script: "-- nothing here;\n/* or; here */",
			want:   nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitStatements(tt.script))
		})
	}
}

func TestSplitStatementsInitialSchema(t *testing.T) {
	stmts := splitStatements(initialSchema)
	require.NotEmpty(t, stmts)
	for _, stmt := range stmts {
		assert.NotContains(t, stmt, ";")
	}
}

func TestMigrateFailureIsStoreError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	steps := append(append([]migration{}, migrations...),
		migration{Version: 2, Name: "add_tags", SQL: "CREATE TABLE tags (name TEXT);\nCREATE TABLE broken ("},
	)
	err := applyMigrations(ctx, s.DB(), steps)
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeStore))

	var perr *schema.PyconstError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 2, perr.Details["version"])
	assert.Equal(t, "add_tags", perr.Details["name"])
	assert.Equal(t, 2, perr.Details["statement"])
	assert.NotNil(t, perr.Cause)

	// the failed step rolls back as a whole
	version, err := schemaVersion(ctx, s.DB())
	require.NoError(t, err)
	assert.Equal(t, 1, version)
	var n int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = 'tags'`).Scan(&n))
	assert.Zero(t, n)
}

func TestVacuum(t *testing.T) {
	assert.NoError(t, newTestStore(t).Vacuum(context.Background()))
}
