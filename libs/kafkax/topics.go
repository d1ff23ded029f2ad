package kafkax

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
)

// TopicState is a point-in-time view of one topic in cluster metadata.
type TopicState struct {
	Exists     bool
	Partitions int
	Leaderless int
}

// Ready reports whether the topic exists with the expected partition count and every
// partition has a leader.
func (s TopicState) Ready(partitions int) bool {
	return s.Exists && s.Partitions == partitions && s.Leaderless == 0
}

func NewClient(brokers []string, timeout time.Duration) *kafka.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &kafka.Client{
		Addr:    kafka.TCP(brokers...),
		Timeout: timeout,
	}
}

// DescribeTopic reads the full topic list rather than naming the topic in the request so a
// broker with auto.create.topics.enable never recreates a topic we just deleted.
func DescribeTopic(ctx context.Context, client *kafka.Client, topic string) (TopicState, error) {
	resp, err := client.Metadata(ctx, &kafka.MetadataRequest{})
	if err != nil {
		return TopicState{}, err
	}
	for _, t := range resp.Topics {
		if t.Name != topic {
			continue
		}
		if t.Error != nil {
			if errors.Is(t.Error, kafka.UnknownTopicOrPartition) {
				return TopicState{}, nil
			}
			return TopicState{}, t.Error
		}
		state := TopicState{Exists: true, Partitions: len(t.Partitions)}
		for _, p := range t.Partitions {
			if p.Error != nil || p.Leader.Host == "" {
				state.Leaderless++
			}
		}
		return state, nil
	}
	return TopicState{}, nil
}
