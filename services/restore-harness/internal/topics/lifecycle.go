package topics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/restorecheck/libs/kafkax"
)

// Settle controls how the manager waits out metadata propagation after each admin call.
// With a Watcher the manager polls metadata until the expected state shows up, bounded by
// WaitTimeout; without one it sleeps AfterDelete/AfterCreate.
type Settle struct {
	AfterDelete  time.Duration
	AfterCreate  time.Duration
	WaitTimeout  time.Duration
	PollInterval time.Duration
}

func DefaultSettle() Settle {
	return Settle{
		AfterDelete:  3 * time.Second,
		AfterCreate:  2 * time.Second,
		WaitTimeout:  30 * time.Second,
		PollInterval: 250 * time.Millisecond,
	}
}

type Manager struct {
	admin   Admin
	watcher Watcher
	settle  Settle
	logger  *slog.Logger
	sleep   func(context.Context, time.Duration) error
}

// NewManager builds a reset manager. watcher may be nil to fall back to fixed sleeps.
func NewManager(logger *slog.Logger, admin Admin, watcher Watcher, settle Settle) *Manager {
	def := DefaultSettle()
	if settle.WaitTimeout <= 0 {
		settle.WaitTimeout = def.WaitTimeout
	}
	if settle.PollInterval <= 0 {
		settle.PollInterval = def.PollInterval
	}
	return &Manager{admin: admin, watcher: watcher, settle: settle, logger: logger, sleep: Sleep}
}

// ResetTopic deletes topic and recreates it empty. Any failure is returned as-is; the
// topic may be left absent, and nothing is rolled back.
func (m *Manager) ResetTopic(ctx context.Context, topic string, partitions, replication int) error {
	if partitions <= 0 || replication <= 0 {
		return fmt.Errorf("reset topic %s: partitions and replication must be positive (got %d/%d)", topic, partitions, replication)
	}

	m.logger.Info("deleting topic", "topic", topic)
	if err := m.admin.DeleteTopic(ctx, topic); err != nil {
		return fmt.Errorf("reset topic %s: %w", topic, err)
	}
	if err := m.settleAfter(ctx, topic, "delete", m.settle.AfterDelete, func(s kafkax.TopicState) bool {
		return !s.Exists
	}); err != nil {
		return fmt.Errorf("reset topic %s: %w", topic, err)
	}

	m.logger.Info("creating topic", "topic", topic, "partitions", partitions, "replication_factor", replication)
	if err := m.admin.CreateTopic(ctx, topic, partitions, replication); err != nil {
		return fmt.Errorf("reset topic %s: %w", topic, err)
	}
	if err := m.settleAfter(ctx, topic, "create", m.settle.AfterCreate, func(s kafkax.TopicState) bool {
		return s.Ready(partitions)
	}); err != nil {
		return fmt.Errorf("reset topic %s: %w", topic, err)
	}
	return nil
}

func (m *Manager) settleAfter(ctx context.Context, topic, op string, fixed time.Duration, done func(kafkax.TopicState) bool) error {
	if m.watcher == nil {
		m.logger.Debug("settling", "op", op, "delay", fixed)
		return m.sleep(ctx, fixed)
	}

	deadline := time.Now().Add(m.settle.WaitTimeout)
	var last kafkax.TopicState
	for {
		state, err := m.watcher.DescribeTopic(ctx, topic)
		if err != nil {
			m.logger.Warn("topic metadata read failed", "topic", topic, "err", err)
		} else {
			last = state
			if done(state) {
				m.logger.Debug("topic settled", "op", op, "topic", topic, "partitions", state.Partitions)
				return nil
			}
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("topic did not settle after %s within %s (exists=%t partitions=%d leaderless=%d)",
				op, m.settle.WaitTimeout, last.Exists, last.Partitions, last.Leaderless)
		}
		if err := m.sleep(ctx, m.settle.PollInterval); err != nil {
			return err
		}
	}
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
