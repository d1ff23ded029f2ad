// Package producer publishes a generated batch to Kafka and tracks one delivery outcome per
// record.
package producer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/restorecheck/libs/kafkax"
	"github.com/md-rashed-zaman/restorecheck/services/restore-harness/internal/dataset"
	"github.com/segmentio/kafka-go"
)

// Outcome is the resolved delivery result of one record.
type Outcome struct {
	Key       string
	Delivered bool
	Err       error
}

// Delivery summarizes a Flush. Pending counts records with no outcome when the deadline hit.
type Delivery struct {
	Enqueued  int
	Delivered int
	Pending   int
	TimedOut  bool
	Failed    []Outcome
}

func (d Delivery) Complete() bool {
	return d.Enqueued > 0 && d.Delivered == d.Enqueued
}

type Config struct {
	Brokers          []string
	Topic            string
	RunID            string
	BatchTimeout     time.Duration
	WriteTimeout     time.Duration
	AutoCreateTopics bool
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var ErrAlreadyPublished = errors.New("producer: batch already published")

// Producer publishes a single batch. The writer's completion callback runs on kafka-go's
// goroutines and hands outcomes to Flush through acks, which is sized to the batch so the
// callback never blocks.
type Producer struct {
	writer messageWriter
	logger *slog.Logger
	runID  string

	acks      chan Outcome
	enqueued  int
	delivered int
	resolved  int
	failed    []Outcome
}

func New(logger *slog.Logger, cfg Config) *Producer {
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	p := &Producer{logger: logger, runID: cfg.RunID}
	p.writer = &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Async:                  true,
		BatchTimeout:           cfg.BatchTimeout,
		WriteTimeout:           cfg.WriteTimeout,
		AllowAutoTopicCreation: cfg.AutoCreateTopics,
		Completion:             p.complete,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
			logger.Debug("kafka writer", "detail", fmt.Sprintf(msg, args...))
		}),
	}
	return p
}

func newWithWriter(logger *slog.Logger, runID string, w messageWriter) *Producer {
	return &Producer{writer: w, logger: logger, runID: runID}
}

// Publish enqueues every record keyed by its Key and returns without waiting for acks.
// A rejected enqueue resolves those records as failed immediately.
func (p *Producer) Publish(ctx context.Context, records []dataset.Record) error {
	if p.acks != nil {
		return ErrAlreadyPublished
	}
	p.acks = make(chan Outcome, len(records))

	msgs := make([]kafka.Message, 0, len(records))
	for _, r := range records {
		payload, err := dataset.Encode(r)
		if err != nil {
			p.acks <- Outcome{Key: r.Key, Err: fmt.Errorf("encode: %w", err)}
			p.enqueued++
			continue
		}
		headers := []kafka.Header{
			{Key: kafkax.HeaderRunID, Value: []byte(p.runID)},
			{Key: kafkax.HeaderSource, Value: []byte("restore-harness")},
		}
		msgs = append(msgs, kafka.Message{
			Key:     []byte(r.Key),
			Value:   payload,
			Headers: kafkax.InjectTraceHeaders(ctx, headers),
		})
	}
	if len(msgs) == 0 {
		return nil
	}

	p.enqueued += len(msgs)
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.logger.Error("enqueue rejected", "err", err, "records", len(msgs))
		for _, m := range msgs {
			p.acks <- Outcome{Key: string(m.Key), Err: err}
		}
		return fmt.Errorf("enqueue %d records: %w", len(msgs), err)
	}
	return nil
}

func (p *Producer) complete(messages []kafka.Message, err error) {
	for _, m := range messages {
		p.acks <- Outcome{Key: string(m.Key), Delivered: err == nil, Err: err}
	}
}

// Flush blocks until every enqueued record has an outcome or timeout elapses, and reports
// what is confirmed so far. It never treats a shortfall as an error; callers decide.
func (p *Producer) Flush(timeout time.Duration) Delivery {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	timedOut := false
	for p.resolved < p.enqueued && !timedOut {
		select {
		case o := <-p.acks:
			p.resolved++
			if o.Delivered {
				p.delivered++
				continue
			}
			p.failed = append(p.failed, o)
			p.logger.Warn("delivery failed", "key", o.Key, "err", o.Err)
		case <-deadline.C:
			timedOut = true
		}
	}

	return Delivery{
		Enqueued:  p.enqueued,
		Delivered: p.delivered,
		Pending:   p.enqueued - p.resolved,
		TimedOut:  timedOut,
		Failed:    append([]Outcome(nil), p.failed...),
	}
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
