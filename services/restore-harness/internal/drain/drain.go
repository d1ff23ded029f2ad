// Package drain reads a topic from the earliest offset until it has gone quiet, with an
// overall deadline for a bus that never does.
package drain

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/restorecheck/libs/kafkax"
	"github.com/md-rashed-zaman/restorecheck/services/restore-harness/internal/dataset"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Message is one raw record fetched from the bus.
type Message struct {
	Key       []byte
	Value     []byte
	Headers   []kafka.Header
	Partition int
	Offset    int64
}

// Source is a subscription positioned at the earliest offset.
// Poll returns ok=false with a nil error when nothing arrived within timeout.
type Source interface {
	Poll(ctx context.Context, timeout time.Duration) (msg Message, ok bool, err error)
	Close() error
}

// Opener subscribes to topic. An error here means the drain never started.
type Opener func(ctx context.Context, topic string) (Source, error)

type StopReason string

const (
	StopIdle     StopReason = "idle"
	StopTimeout  StopReason = "timeout"
	StopCanceled StopReason = "canceled"
)

type Result struct {
	Records        []dataset.Record
	Polls          int
	IdlePolls      int
	DecodeErrors   int
	ConsumerErrors int
	// Duplicates counts keys seen more than once; every copy is still kept in Records.
	Duplicates int
	// ForeignRuns counts records stamped with a different run id.
	ForeignRuns int
	// Traced counts records that carried the producer's trace context.
	Traced  int
	Reason  StopReason
	Elapsed time.Duration
}

type Drainer struct {
	open        Opener
	pollTimeout time.Duration
	runID       string
	logger      *slog.Logger
	now         func() time.Time
}

// New builds a Drainer. runID may be empty to skip the foreign-record check.
func New(logger *slog.Logger, open Opener, pollTimeout time.Duration, runID string) *Drainer {
	if pollTimeout <= 0 {
		pollTimeout = time.Second
	}
	return &Drainer{open: open, pollTimeout: pollTimeout, runID: runID, logger: logger, now: time.Now}
}

// Drain polls topic until idleThreshold consecutive polls return nothing or overall has
// elapsed since subscribing. Decode failures are logged and skipped without touching the
// idle counter; consumer errors count as idle polls. The returned error is non-nil only
// when the subscription fails or ctx is cancelled; in the latter case the partial Result
// is returned alongside it.
func (d *Drainer) Drain(ctx context.Context, topic string, overall time.Duration, idleThreshold int) (Result, error) {
	if overall <= 0 {
		return Result{}, fmt.Errorf("drain %s: overall timeout must be positive", topic)
	}
	if idleThreshold <= 0 {
		return Result{}, fmt.Errorf("drain %s: idle threshold must be positive", topic)
	}

	start := d.now()
	src, err := d.open(ctx, topic)
	if err != nil {
		return Result{}, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			d.logger.Warn("closing drain source failed", "topic", topic, "err", err)
		}
	}()
	d.logger.Info("draining topic", "topic", topic, "overall_timeout", overall, "idle_threshold", idleThreshold, "poll_timeout", d.pollTimeout)

	var (
		res  Result
		idle int
		seen = make(map[string]struct{})
	)
	finish := func(reason StopReason) Result {
		res.Reason = reason
		res.Elapsed = d.now().Sub(start)
		return res
	}

	for {
		remaining := overall - d.now().Sub(start)
		if remaining <= 0 {
			return finish(StopTimeout), nil
		}
		wait := min(d.pollTimeout, remaining)

		msg, ok, err := src.Poll(ctx, wait)
		res.Polls++
		if ctx.Err() != nil {
			return finish(StopCanceled), ctx.Err()
		}

		switch {
		case err != nil:
			res.ConsumerErrors++
			res.IdlePolls++
			idle++
			d.logger.Warn("consumer error", "topic", topic, "err", err, "idle", idle)
		case !ok:
			res.IdlePolls++
			idle++
		default:
			rec, err := dataset.Decode(msg.Value)
			if err != nil {
				res.DecodeErrors++
				d.logger.Warn("discarding undecodable record", "topic", topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
				break
			}
			producer := trace.SpanContextFromContext(kafkax.ExtractTraceContext(ctx, msg.Headers))
			if producer.IsValid() {
				res.Traced++
			}
			if d.runID != "" {
				if id := kafkax.HeaderValue(msg.Headers, kafkax.HeaderRunID); id != "" && id != d.runID {
					res.ForeignRuns++
					d.logger.Warn("record from another run", "topic", topic, "key", rec.Key, "run_id", id, "producer_trace_id", traceID(producer))
					trace.SpanFromContext(ctx).AddEvent("foreign record", trace.WithAttributes(
						attribute.String("record.key", rec.Key),
						attribute.String("record.run_id", id),
						attribute.String("producer.trace_id", traceID(producer)),
					))
				}
			}
			if _, dup := seen[rec.Key]; dup {
				res.Duplicates++
			}
			seen[rec.Key] = struct{}{}
			res.Records = append(res.Records, rec)
			idle = 0
		}

		if idle >= idleThreshold {
			return finish(StopIdle), nil
		}
		if d.now().Sub(start) >= overall {
			return finish(StopTimeout), nil
		}
	}
}

func traceID(sc trace.SpanContext) string {
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
