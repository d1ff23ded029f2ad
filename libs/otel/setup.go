package otelx

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/restorecheck/libs/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

type Config struct {
	Enabled       bool
	ServiceName   string
	OTLPEndpoint  string // host:port, e.g. otel-collector:4317
	SampleRatio   float64
	ExportTimeout time.Duration
	// Environment ends up as deployment.environment on every span.
	Environment string
}

type Shutdown func(context.Context) error

// ConfigFromEnv reads the OTEL_* variables. Tracing is off unless OTEL_ENABLED is set;
// the harness is a one-shot job and usually runs without a collector.
func ConfigFromEnv(serviceName string) Config {
	timeout, err := config.Duration("OTEL_EXPORT_TIMEOUT", 3*time.Second)
	if err != nil || timeout <= 0 {
		timeout = 3 * time.Second
	}
	return Config{
		Enabled:       config.Bool("OTEL_ENABLED", false),
		ServiceName:   serviceName,
		OTLPEndpoint:  strings.TrimSpace(config.String("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")),
		SampleRatio:   sampleRatio(config.String("OTEL_SAMPLING_RATIO", "1")),
		ExportTimeout: timeout,
		Environment:   config.String("RESTORECHECK_ENV", "local"),
	}
}

func sampleRatio(raw string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || f < 0 || f > 1 {
		return 1
	}
	return f
}

// Setup installs the propagators and, when enabled, a batching OTLP tracer provider.
// The returned Shutdown flushes buffered spans and must run before exit.
func Setup(ctx context.Context, cfg Config) (Shutdown, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	timeout := cfg.ExportTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithTimeout(timeout),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			attribute.String("deployment.environment", cfg.Environment),
		),
		resource.WithHost(),
		resource.WithProcessPID(),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
