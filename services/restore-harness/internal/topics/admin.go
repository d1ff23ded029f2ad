// Package topics deletes and recreates the source topic between backup and restore.
package topics

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/md-rashed-zaman/restorecheck/libs/kafkax"
	"github.com/md-rashed-zaman/restorecheck/services/restore-harness/internal/toolrunner"
	"github.com/segmentio/kafka-go"
)

// Admin performs the two topic administration operations the reset needs.
type Admin interface {
	DeleteTopic(ctx context.Context, topic string) error
	CreateTopic(ctx context.Context, topic string, partitions, replication int) error
}

// ToolError carries the captured result of a failed admin CLI invocation.
type ToolError struct {
	Op     string
	Result toolrunner.Result
}

func (e *ToolError) Error() string {
	return e.Op + ": " + e.Result.Summary()
}

// CLIAdmin drives kafka-topics.sh (or a wrapper around it) through the tool runner.
type CLIAdmin struct {
	exec      toolrunner.Executor
	command   string
	prefix    []string
	bootstrap string
	timeout   time.Duration
}

// NewCLIAdmin accepts a command line such as
// "docker compose --profile tools run --rm kafka-cli kafka-topics.sh".
func NewCLIAdmin(exec toolrunner.Executor, commandLine, bootstrap string, timeout time.Duration) (*CLIAdmin, error) {
	command, prefix, err := toolrunner.SplitCommand(commandLine)
	if err != nil {
		return nil, fmt.Errorf("topics command: %w", err)
	}
	if bootstrap == "" {
		return nil, errors.New("topics command: bootstrap server is required")
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &CLIAdmin{exec: exec, command: command, prefix: prefix, bootstrap: bootstrap, timeout: timeout}, nil
}

func (a *CLIAdmin) DeleteTopic(ctx context.Context, topic string) error {
	return a.run(ctx, "delete topic", "--delete", "--topic", topic)
}

func (a *CLIAdmin) CreateTopic(ctx context.Context, topic string, partitions, replication int) error {
	return a.run(ctx, "create topic",
		"--create", "--topic", topic,
		"--partitions", strconv.Itoa(partitions),
		"--replication-factor", strconv.Itoa(replication),
	)
}

func (a *CLIAdmin) run(ctx context.Context, op string, args ...string) error {
	argv := append(append([]string{}, a.prefix...), "--bootstrap-server", a.bootstrap)
	argv = append(argv, args...)
	res := a.exec.Run(ctx, a.command, argv, a.timeout)
	if !res.Succeeded() {
		return &ToolError{Op: op, Result: res}
	}
	return nil
}

// KafkaAdmin issues DeleteTopics/CreateTopics directly with kafka-go.
type KafkaAdmin struct {
	client *kafka.Client
}

func NewKafkaAdmin(client *kafka.Client) *KafkaAdmin {
	return &KafkaAdmin{client: client}
}

func (a *KafkaAdmin) DeleteTopic(ctx context.Context, topic string) error {
	resp, err := a.client.DeleteTopics(ctx, &kafka.DeleteTopicsRequest{Topics: []string{topic}})
	if err != nil {
		return fmt.Errorf("delete topic: %w", err)
	}
	if err := resp.Errors[topic]; err != nil {
		return fmt.Errorf("delete topic: %w", err)
	}
	return nil
}

func (a *KafkaAdmin) CreateTopic(ctx context.Context, topic string, partitions, replication int) error {
	resp, err := a.client.CreateTopics(ctx, &kafka.CreateTopicsRequest{
		Topics: []kafka.TopicConfig{{
			Topic:             topic,
			NumPartitions:     partitions,
			ReplicationFactor: replication,
		}},
	})
	if err != nil {
		return fmt.Errorf("create topic: %w", err)
	}
	if err := resp.Errors[topic]; err != nil {
		return fmt.Errorf("create topic: %w", err)
	}
	return nil
}

// Watcher reads topic state from cluster metadata.
type Watcher interface {
	DescribeTopic(ctx context.Context, topic string) (kafkax.TopicState, error)
}

type MetadataWatcher struct {
	client *kafka.Client
}

func NewMetadataWatcher(client *kafka.Client) *MetadataWatcher {
	return &MetadataWatcher{client: client}
}

func (w *MetadataWatcher) DescribeTopic(ctx context.Context, topic string) (kafkax.TopicState, error) {
	return kafkax.DescribeTopic(ctx, w.client, topic)
}
