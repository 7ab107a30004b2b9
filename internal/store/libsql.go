package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/pyconst/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/pyconst.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	if !strings.HasPrefix(dbPath, "file:") && !strings.Contains(dbPath, "://") {
		dbPath = "file:" + dbPath
	}
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "open libsql").WithCause(err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return applyMigrations(ctx, s.db, migrations)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return storeErr("vacuum", err)
}

// --- Runs ---

// SaveRun stores the run header, its file list and every finding in one
// transaction.
func (s *LibSQLStore) SaveRun(ctx context.Context, report *schema.Report, meta RunMeta) error {
	if report == nil || report.RunID == "" {
		return schema.NewError(schema.ErrCodeValidation, "report has no run id")
	}
	paths, err := json.Marshal(orEmpty(report.Paths))
	if err != nil {
		return fmt.Errorf("marshal paths: %w", err)
	}
	summary, err := json.Marshal(report.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	source := meta.Source
	if source == "" {
		source = SourceCLI
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin save run", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, job_id, source, paths, summary, started_at, finished_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		report.RunID, nullStr(meta.JobID), source, string(paths), string(summary),
		timeOrNow(report.StartedAt), timeOrNow(report.FinishedAt),
	); err != nil {
		return storeErr("insert run", err)
	}

	for seq, fr := range report.Files {
		if fr == nil {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_files (run_id, seq, file, error) VALUES (?, ?, ?, ?)`,
			report.RunID, seq, fr.File, nullStr(fr.Error),
		); err != nil {
			return storeErr("insert run file", err)
		}
		for _, f := range fr.Findings {
			warnings, err := nullableJSON(f.Warnings)
			if err != nil {
				return fmt.Errorf("marshal warnings: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO findings (run_id, file_seq, file, line_no, col_no, keyword, cond_text, verdict, value_text, message, warnings, error)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				report.RunID, seq, f.File, f.Line, f.Column, f.Keyword, f.Condition, string(f.Verdict),
				nullStr(f.Value), nullStr(f.Message), warnings, nullStr(f.Error),
			); err != nil {
				return storeErr("insert finding", err)
			}
		}
	}
	return storeErr("commit save run", tx.Commit())
}

const runColumns = `id, job_id, source, paths, summary, started_at, finished_at`

// GetRun returns one run header.
func (s *LibSQLStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("run", id)
	}
	if err != nil {
		return nil, storeErr("get run", err)
	}
	return r, nil
}

// ListRuns returns runs newest first.
func (s *LibSQLStore) ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	var args []any
	if filter.JobID != "" {
		query += ` AND job_id = ?`
		args = append(args, filter.JobID)
	}
	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, filter.Source)
	}
	if filter.Since != nil {
		query += ` AND started_at >= ?`
		args = append(args, filter.Since.UTC())
	}
	query += ` ORDER BY started_at DESC, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list runs", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, storeErr("scan run", err)
		}
		runs = append(runs, r)
	}
	return runs, storeErr("list runs", rows.Err())
}

// LoadReport rebuilds the full report of a stored run.
func (s *LibSQLStore) LoadReport(ctx context.Context, runID string) (*schema.Report, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	report := &schema.Report{
		RunID:      run.ID,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Paths:      run.Paths,
		Summary:    run.Summary,
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, file, error FROM run_files WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, storeErr("list run files", err)
	}
	bySeq := map[int]*schema.FileReport{}
	for rows.Next() {
		var (
			seq     int
			file    string
			errText sql.NullString
		)
		if err := rows.Scan(&seq, &file, &errText); err != nil {
			rows.Close()
			return nil, storeErr("scan run file", err)
		}
		fr := &schema.FileReport{File: file, Findings: []schema.Finding{}, Error: errText.String}
		bySeq[seq] = fr
		report.Files = append(report.Files, fr)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, storeErr("list run files", err)
	}

	frows, err := s.db.QueryContext(ctx,
		`SELECT file_seq, `+findingColumns+` FROM findings WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, storeErr("list findings", err)
	}
	defer frows.Close()
	for frows.Next() {
		var seq int
		f, err := scanFinding(frows, &seq)
		if err != nil {
			return nil, storeErr("scan finding", err)
		}
		if fr, ok := bySeq[seq]; ok {
			fr.Findings = append(fr.Findings, f)
		}
	}
	return report, storeErr("list findings", frows.Err())
}

const findingColumns = `file, line_no, col_no, keyword, cond_text, verdict, value_text, message, warnings, error`

// ListFindings returns the findings of a run in report order.
func (s *LibSQLStore) ListFindings(ctx context.Context, runID string, filter FindingFilter) ([]schema.Finding, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	query := `SELECT file_seq, ` + findingColumns + ` FROM findings WHERE run_id = ?`
	args := []any{runID}
	if filter.Verdict != "" {
		query += ` AND verdict = ?`
		args = append(args, filter.Verdict)
	}
	if filter.File != "" {
		query += ` AND file = ?`
		args = append(args, filter.File)
	}
	if filter.WithWarnings {
		query += ` AND warnings IS NOT NULL`
	}
	query += ` ORDER BY id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list findings", err)
	}
	defer rows.Close()

	findings := []schema.Finding{}
	for rows.Next() {
		var seq int
		f, err := scanFinding(rows, &seq)
		if err != nil {
			return nil, storeErr("scan finding", err)
		}
		findings = append(findings, f)
	}
	return findings, storeErr("list findings", rows.Err())
}

// DeleteRun removes a run and, through cascades, its files and findings.
func (s *LibSQLStore) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return storeErr("delete run", err)
	}
	return checkRowsAffected(res, "run", id)
}

// PruneRuns deletes runs started before the cutoff and returns how many
// were removed.
func (s *LibSQLStore) PruneRuns(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, before.UTC())
	if err != nil {
		return 0, storeErr("prune runs", err)
	}
	n, err := res.RowsAffected()
	return n, storeErr("prune runs", err)
}

// --- Watch jobs ---

// CreateWatchJob inserts a job. Names are unique.
func (s *LibSQLStore) CreateWatchJob(ctx context.Context, job *WatchJob) error {
	paths, err := json.Marshal(orEmpty(job.Paths))
	if err != nil {
		return fmt.Errorf("marshal paths: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO watch_jobs (id, name, cron_expression, paths, fail_on, enabled, last_run_at, next_run_at, last_run_status, last_run_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Name, job.CronExpression, string(paths), nullStr(job.FailOn), job.Enabled,
		nullTime(job.LastRunAt), nullTime(job.NextRunAt), nullStr(job.LastRunStatus), nullStr(job.LastRunID),
		timeOrNow(job.CreatedAt),
	)
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "unique") {
		return schema.NewErrorf(schema.ErrCodeValidation, "watch job %q already exists", job.Name).WithCause(err)
	}
	return storeErr("create watch job", err)
}

const jobColumns = `id, name, cron_expression, paths, fail_on, enabled, last_run_at, next_run_at, last_run_status, last_run_id, created_at`

// GetWatchJob looks a job up by id or by name.
func (s *LibSQLStore) GetWatchJob(ctx context.Context, idOrName string) (*WatchJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM watch_jobs WHERE id = ? OR name = ? LIMIT 1`, idOrName, idOrName)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("watch job", idOrName)
	}
	if err != nil {
		return nil, storeErr("get watch job", err)
	}
	return j, nil
}

// UpdateWatchJob applies the non-empty fields of update.
func (s *LibSQLStore) UpdateWatchJob(ctx context.Context, id string, update WatchJobUpdate) error {
	var sets []string
	var args []any
	if update.Enabled != nil {
		sets = append(sets, "enabled = ?")
		args = append(args, *update.Enabled)
	}
	if update.LastRunAt != nil {
		sets = append(sets, "last_run_at = ?")
		args = append(args, update.LastRunAt.UTC())
	}
	if update.NextRunAt != nil {
		sets = append(sets, "next_run_at = ?")
		args = append(args, update.NextRunAt.UTC())
	}
	if update.LastRunStatus != "" {
		sets = append(sets, "last_run_status = ?")
		args = append(args, update.LastRunStatus)
	}
	if update.LastRunID != "" {
		sets = append(sets, "last_run_id = ?")
		args = append(args, update.LastRunID)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE watch_jobs SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return storeErr("update watch job", err)
	}
	return checkRowsAffected(res, "watch job", id)
}

// ListWatchJobs returns jobs ordered by name.
func (s *LibSQLStore) ListWatchJobs(ctx context.Context, filter WatchJobFilter) ([]*WatchJob, error) {
	query := `SELECT ` + jobColumns + ` FROM watch_jobs WHERE 1=1`
	var args []any
	if filter.Enabled != nil {
		query += ` AND enabled = ?`
		args = append(args, *filter.Enabled)
	}
	query += ` ORDER BY name`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list watch jobs", err)
	}
	defer rows.Close()

	var jobs []*WatchJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, storeErr("scan watch job", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, storeErr("list watch jobs", rows.Err())
}

// DeleteWatchJob removes a job. Its past runs are kept.
func (s *LibSQLStore) DeleteWatchJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM watch_jobs WHERE id = ?`, id)
	if err != nil {
		return storeErr("delete watch job", err)
	}
	return checkRowsAffected(res, "watch job", id)
}

// --- Scanning ---

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	r := &Run{}
	var (
		jobID                sql.NullString
		pathsJSON, summaryJS string
	)
	if err := row.Scan(&r.ID, &jobID, &r.Source, &pathsJSON, &summaryJS, &r.StartedAt, &r.FinishedAt); err != nil {
		return nil, err
	}
	r.JobID = jobID.String
	if err := json.Unmarshal([]byte(pathsJSON), &r.Paths); err != nil {
		return nil, fmt.Errorf("decode run paths: %w", err)
	}
	if err := json.Unmarshal([]byte(summaryJS), &r.Summary); err != nil {
		return nil, fmt.Errorf("decode run summary: %w", err)
	}
	return r, nil
}

func scanFinding(row scanner, seq *int) (schema.Finding, error) {
	var (
		f                                 schema.Finding
		verdict                           string
		value, message, warnings, errText sql.NullString
	)
	if err := row.Scan(seq, &f.File, &f.Line, &f.Column, &f.Keyword, &f.Condition, &verdict,
		&value, &message, &warnings, &errText); err != nil {
		return f, err
	}
	f.Verdict = schema.Verdict(verdict)
	f.Value = value.String
	f.Message = message.String
	f.Error = errText.String
	if warnings.Valid && warnings.String != "" {
		if err := json.Unmarshal([]byte(warnings.String), &f.Warnings); err != nil {
			return f, fmt.Errorf("decode warnings: %w", err)
		}
	}
	return f, nil
}

func scanJob(row scanner) (*WatchJob, error) {
	j := &WatchJob{}
	var (
		pathsJSON                 string
		failOn, status, lastRunID sql.NullString
		lastRun, nextRun          sql.NullTime
	)
	if err := row.Scan(&j.ID, &j.Name, &j.CronExpression, &pathsJSON, &failOn, &j.Enabled,
		&lastRun, &nextRun, &status, &lastRunID, &j.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(pathsJSON), &j.Paths); err != nil {
		return nil, fmt.Errorf("decode job paths: %w", err)
	}
	j.FailOn = failOn.String
	j.LastRunStatus = status.String
	j.LastRunID = lastRunID.String
	if lastRun.Valid {
		t := lastRun.Time
		j.LastRunAt = &t
	}
	if nextRun.Valid {
		t := nextRun.Time
		j.NextRunAt = &t
	}
	return j, nil
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.PyconstError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

// storeErr wraps a driver error as STORE_ERROR. It passes nil and
// PyconstErrors through.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *schema.PyconstError
	if errors.As(err, &pe) {
		return err
	}
	return schema.NewErrorf(schema.ErrCodeStore, "%s: %s", op, err.Error()).WithCause(err)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("rows affected", err)
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableJSON[T any](items []T) (any, error) {
	if len(items) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var _ Store = (*LibSQLStore)(nil)
