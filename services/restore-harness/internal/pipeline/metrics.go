package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the harness instruments. They record into the global meter provider, which
// is a no-op unless the process installs one.
type Metrics struct {
	Runs           metric.Int64Counter
	StepDuration   metric.Float64Histogram
	RecordsDrained metric.Int64Counter
}

func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("restore-harness")

	runs, err := meter.Int64Counter("restorecheck.runs",
		metric.WithDescription("Completed harness runs by verdict"),
	)
	if err != nil {
		return nil, err
	}

	stepDuration, err := meter.Float64Histogram("restorecheck.step.duration_seconds",
		metric.WithDescription("Wall time per pipeline step"),
	)
	if err != nil {
		return nil, err
	}

	drained, err := meter.Int64Counter("restorecheck.records.drained",
		metric.WithDescription("Records read back from the restored topic"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{Runs: runs, StepDuration: stepDuration, RecordsDrained: drained}, nil
}

func (m *Metrics) RecordRun(ctx context.Context, passed bool, failedStep Step) {
	m.Runs.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("passed", passed),
		attribute.String("failed_step", string(failedStep)),
	))
}

func (m *Metrics) RecordStep(ctx context.Context, step Step, d time.Duration, ok bool) {
	m.StepDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("step", string(step)),
		attribute.Bool("ok", ok),
	))
}

func (m *Metrics) RecordDrained(ctx context.Context, n int) {
	m.RecordsDrained.Add(ctx, int64(n))
}
