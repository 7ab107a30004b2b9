// Package telemetry records inspection spans and counters through
// OpenTelemetry. Without configured providers the global no-op
// implementations are used.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/rendis/pyconst"

// Recorder owns the tracer and instruments used by the inspector.
type Recorder struct {
	tracer       trace.Tracer
	conditions   metric.Int64Counter
	warnings     metric.Int64Counter
	fileDuration metric.Float64Histogram
}

// New creates a Recorder from explicit providers.
func New(tp trace.TracerProvider, mp metric.MeterProvider) (*Recorder, error) {
	meter := mp.Meter(instrumentationName)

	conditions, err := meter.Int64Counter("pyconst.conditions",
		metric.WithDescription("Number of inspected conditions by verdict"),
	)
	if err != nil {
		return nil, err
	}

	warnings, err := meter.Int64Counter("pyconst.warnings",
		metric.WithDescription("Number of evaluation warnings by kind"),
	)
	if err != nil {
		return nil, err
	}

	fileDuration, err := meter.Float64Histogram("pyconst.file.duration",
		metric.WithDescription("Duration of a file inspection in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Recorder{
		tracer:       tp.Tracer(instrumentationName),
		conditions:   conditions,
		warnings:     warnings,
		fileDuration: fileDuration,
	}, nil
}

// Global creates a Recorder on the process-wide providers, falling back to
// no-op instruments if the meter rejects them.
func Global() *Recorder {
	r, err := New(otel.GetTracerProvider(), otel.GetMeterProvider())
	if err != nil {
		return Noop()
	}
	return r
}

// Noop returns a Recorder that records nothing.
func Noop() *Recorder {
	r, _ := New(tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())
	return r
}

// StartFile opens the span covering one file inspection.
func (r *Recorder) StartFile(ctx context.Context, file string) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, "pyconst.inspect_file",
		trace.WithAttributes(attribute.String("pyconst.file", file)),
	)
}

// StartRun opens the span covering a multi-file run.
func (r *Recorder) StartRun(ctx context.Context, runID string, files int) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, "pyconst.run",
		trace.WithAttributes(
			attribute.String("pyconst.run_id", runID),
			attribute.Int("pyconst.files", files),
		),
	)
}

// Condition counts one folded condition and its warnings.
func (r *Recorder) Condition(ctx context.Context, verdict string, warningKinds []string) {
	r.conditions.Add(ctx, 1, metric.WithAttributes(attribute.String("verdict", verdict)))
	for _, kind := range warningKinds {
		r.warnings.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
}

// FileDone records the file duration and closes its span.
func (r *Recorder) FileDone(ctx context.Context, span trace.Span, elapsed time.Duration, conditions int, err error) {
	r.fileDuration.Record(ctx, elapsed.Seconds())
	span.SetAttributes(attribute.Int("pyconst.conditions", conditions))
	End(span, err)
}

// End closes span, marking it failed when err is non-nil.
func End(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
