package drain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/restorecheck/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

type KafkaConfig struct {
	Brokers []string
	// GroupPrefix is suffixed with a fresh uuid per subscription so every drain starts from
	// the earliest offset with no committed position.
	GroupPrefix string
	MaxWait     time.Duration
}

type kafkaSource struct {
	reader *kafka.Reader
}

// KafkaOpener returns an Opener backed by a kafka-go consumer-group Reader. It checks the
// topic exists first so a missing topic fails the subscription instead of idling out.
func KafkaOpener(logger *slog.Logger, client *kafka.Client, cfg KafkaConfig) Opener {
	if cfg.GroupPrefix == "" {
		cfg.GroupPrefix = "restore-harness"
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 500 * time.Millisecond
	}
	return func(ctx context.Context, topic string) (Source, error) {
		state, err := kafkax.DescribeTopic(ctx, client, topic)
		if err != nil {
			return nil, fmt.Errorf("describe topic: %w", err)
		}
		if !state.Exists {
			return nil, fmt.Errorf("topic %s does not exist", topic)
		}

		group := cfg.GroupPrefix + "-" + uuid.NewString()
		logger.Debug("subscribing", "topic", topic, "group_id", group, "partitions", state.Partitions)
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			GroupID:     group,
			Topic:       topic,
			StartOffset: kafka.FirstOffset,
			MinBytes:    1,
			MaxBytes:    10e6,
			MaxWait:     cfg.MaxWait,
			ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
				logger.Debug("kafka reader", "detail", fmt.Sprintf(msg, args...))
			}),
		})
		return &kafkaSource{reader: reader}, nil
	}
}

// Poll fetches without committing; the group is discarded after the drain.
func (s *kafkaSource) Poll(ctx context.Context, timeout time.Duration) (Message, bool, error) {
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	m, err := s.reader.FetchMessage(pollCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return Message{}, false, nil
		}
		return Message{}, false, err
	}
	return Message{
		Key:       m.Key,
		Value:     m.Value,
		Headers:   m.Headers,
		Partition: m.Partition,
		Offset:    m.Offset,
	}, true, nil
}

func (s *kafkaSource) Close() error {
	return s.reader.Close()
}
