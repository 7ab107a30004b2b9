package store

import (
	"context"
	"database/sql"
	_ "embed"
	"strings"

	"github.com/rendis/pyconst/pkg/schema"
)

//go:embed migrations/001_initial_schema.sql
var initialSchema string

// migration is one versioned schema step. Steps apply in slice order and
// each one runs inside its own transaction.
type migration struct {
	Version int
	Name    string
	SQL     string
}

var migrations = []migration{
	{Version: 1, Name: "initial_schema", SQL: initialSchema},
}

const createVersionTable = `CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`

// applyMigrations brings db up to the last version in steps. Failures are
// STORE_ERROR values naming the step that broke.
func applyMigrations(ctx context.Context, db *sql.DB, steps []migration) error {
	if _, err := db.ExecContext(ctx, createVersionTable); err != nil {
		return schema.NewError(schema.ErrCodeStore, "create schema_version table").WithCause(err)
	}

	current, err := schemaVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range steps {
		if m.Version <= current {
			continue
		}
		if err := applyStep(ctx, db, m); err != nil {
			return err
		}
		current = m.Version
	}
	return nil
}

func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&v); err != nil {
		return 0, schema.NewError(schema.ErrCodeStore, "read schema version").WithCause(err)
	}
	return v, nil
}

func applyStep(ctx context.Context, db *sql.DB, m migration) (err error) {
	fail := func(msg string, cause error, stmt int) error {
		details := map[string]any{"version": m.Version, "name": m.Name}
		if stmt > 0 {
			details["statement"] = stmt
		}
		return schema.NewErrorf(schema.ErrCodeStore, "migration %d (%s): %s", m.Version, m.Name, msg).
			WithCause(cause).WithDetails(details)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fail("begin", err, 0)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for i, stmt := range splitStatements(m.SQL) {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fail("exec", err, i+1)
		}
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO schema_version (version, name) VALUES (?, ?)`, m.Version, m.Name); err != nil {
		return fail("record version", err, 0)
	}
	if err = tx.Commit(); err != nil {
		return fail("commit", err, 0)
	}
	return nil
}

// splitStatements cuts a script at top-level semicolons. Semicolons inside
// quoted literals, identifiers and comments do not end a statement, and
// statements holding only comments are dropped.
func splitStatements(script string) []string {
	var (
		stmts   []string
		start   int
		hasCode bool
	)
	flush := func(end int) {
		if s := strings.TrimSpace(script[start:end]); s != "" && hasCode {
			stmts = append(stmts, s)
		}
		hasCode = false
	}

	for i := 0; i < len(script); i++ {
		switch c := script[i]; {
		case c == '-' && i+1 < len(script) && script[i+1] == '-':
			for i < len(script) && script[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(script) && script[i+1] == '*':
			end := strings.Index(script[i+2:], "*/")
			if end < 0 {
				i = len(script)
			} else {
				i += end + 3
			}
		case c == '\'' || c == '"' || c == '`':
			hasCode = true
			for i++; i < len(script); i++ {
				if script[i] != c {
					continue
				}
				// a doubled quote is an escaped quote
				if i+1 < len(script) && script[i+1] == c {
					i++
					continue
				}
				break
			}
		case c == ';':
			flush(i)
			start = i + 1
		case c != ' ' && c != '\t' && c != '\n' && c != '\r':
			hasCode = true
		}
	}
	flush(len(script))
	return stmts
}
