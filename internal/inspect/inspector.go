// Package inspect folds the if/elif conditions of Python source files and
// reports the ones that are constant.
package inspect

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/rendis/pyconst/internal/eval"
	"github.com/rendis/pyconst/internal/logging"
	"github.com/rendis/pyconst/internal/ops"
	"github.com/rendis/pyconst/internal/telemetry"
	"github.com/rendis/pyconst/pkg/schema"
)

// Config tunes condition evaluation.
type Config struct {
	Limits   ops.Limits
	Bindings eval.Bindings
	// HideSkipped drops warnings raised inside short-circuited operands.
	HideSkipped bool
	// NoScanSkipped leaves short-circuited operands unevaluated, so they
	// raise no warnings at all.
	NoScanSkipped bool
}

// Inspector scans and folds conditions. It is safe for concurrent use.
type Inspector struct {
	cfg    Config
	eval   *eval.Evaluator
	logger *slog.Logger
	rec    *telemetry.Recorder
}

// New creates an Inspector. A nil logger or recorder disables that output.
func New(cfg Config, logger *slog.Logger, rec *telemetry.Recorder) *Inspector {
	if logger == nil {
		logger = logging.Discard()
	}
	if rec == nil {
		rec = telemetry.Noop()
	}
	return &Inspector{
		cfg:    cfg,
		eval:   eval.New(eval.Options{Limits: cfg.Limits, ScanSkipped: !cfg.NoScanSkipped, Bindings: cfg.Bindings}),
		logger: logger,
		rec:    rec,
	}
}

// InspectFile reads and inspects one file.
func (in *Inspector) InspectFile(ctx context.Context, path string) (*schema.FileReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		code := schema.ErrCodeExecution
		if errors.Is(err, fs.ErrNotExist) {
			code = schema.ErrCodeNotFound
		}
		return nil, schema.NewError(code, "cannot read source").WithFile(path).WithCause(err)
	}
	return in.InspectSource(ctx, path, string(data))
}

// InspectSource inspects src, reporting findings under name.
func (in *Inspector) InspectSource(ctx context.Context, name, src string) (*schema.FileReport, error) {
	ctx = logging.WithFile(ctx, name)
	ctx, span := in.rec.StartFile(ctx, name)
	start := time.Now()

	report := &schema.FileReport{File: name, Findings: []schema.Finding{}}
	var err error
	for _, c := range Scan(src) {
		if err = ctx.Err(); err != nil {
			break
		}
		report.Findings = append(report.Findings, in.Condition(ctx, name, c))
	}

	in.rec.FileDone(ctx, span, time.Since(start), len(report.Findings), err)
	if err != nil {
		return nil, err
	}
	in.logger.DebugContext(ctx, "file inspected", slog.Int("conditions", len(report.Findings)))
	return report, nil
}

// Condition folds a single scanned condition.
func (in *Inspector) Condition(ctx context.Context, file string, c Condition) schema.Finding {
	f := schema.Finding{File: file, Line: c.Line, Column: c.Column, Keyword: c.Keyword, Condition: c.Text}

	res, err := in.eval.EvaluateSource(c.Text)
	if err != nil {
		f.Verdict = schema.VerdictUnsupported
		f.Error = err.Error()
		in.logger.DebugContext(ctx, "condition not supported",
			slog.Int("line", c.Line),
			slog.String("error", err.Error()),
		)
		in.rec.Condition(ctx, string(f.Verdict), nil)
		return f
	}

	f.Verdict = res.Verdict()
	if res.Value.IsDefined() {
		f.Value = res.Value.String()
	}
	if f.Verdict.Determined() {
		f.Message = "The condition is always " + string(f.Verdict)
	}

	var kinds []string
	for _, w := range res.Warnings {
		if w.Skipped && in.cfg.HideSkipped {
			continue
		}
		line, col := c.Line+w.Pos.Line-1, w.Pos.Column
		if w.Pos.Line <= 1 {
			col = c.Column + w.Pos.Column - 1
		}
		f.Warnings = append(f.Warnings, schema.WarningRecord{
			Kind:     string(w.Kind),
			Message:  w.Message,
			Operands: w.Operands,
			Line:     line,
			Column:   col,
			Skipped:  w.Skipped,
		})
		kinds = append(kinds, string(w.Kind))
	}
	in.rec.Condition(ctx, string(f.Verdict), kinds)
	return f
}
