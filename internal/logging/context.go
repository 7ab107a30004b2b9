package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	runIDKey ctxKey = iota
	fileKey
	jobIDKey
)

// WithRunID returns a context with the inspection run ID set.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// WithFile returns a context with the file under inspection set.
func WithFile(ctx context.Context, file string) context.Context {
	return context.WithValue(ctx, fileKey, file)
}

// WithJobID returns a context with the watch job ID set.
func WithJobID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, jobIDKey, id)
}

// RunID extracts the run ID from the context, or "" if absent.
func RunID(ctx context.Context) string {
	v, _ := ctx.Value(runIDKey).(string)
	return v
}

// File extracts the file from the context, or "" if absent.
func File(ctx context.Context) string {
	v, _ := ctx.Value(fileKey).(string)
	return v
}

// JobID extracts the watch job ID from the context, or "" if absent.
func JobID(ctx context.Context) string {
	v, _ := ctx.Value(jobIDKey).(string)
	return v
}

// WithIDs sets the run and job correlation IDs on the context at once.
func WithIDs(ctx context.Context, runID, jobID string) context.Context {
	ctx = WithRunID(ctx, runID)
	ctx = WithJobID(ctx, jobID)
	return ctx
}

func correlationAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	if v := RunID(ctx); v != "" {
		attrs = append(attrs, slog.String("run_id", v))
	}
	if v := File(ctx); v != "" {
		attrs = append(attrs, slog.String("file", v))
	}
	if v := JobID(ctx); v != "" {
		attrs = append(attrs, slog.String("job_id", v))
	}
	return attrs
}

// LogWith returns a logger enriched with correlation IDs from the context.
// Only non-empty values are added as attributes.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	for _, a := range correlationAttrs(ctx) {
		logger = logger.With(a)
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler, automatically injecting
// correlation IDs from the context into every log record.
// Use with slog.New(NewCorrelationHandler(inner)) so callers can use
// logger.InfoContext(ctx, ...) and IDs appear automatically.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with automatic correlation ID injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(correlationAttrs(ctx)...)
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
