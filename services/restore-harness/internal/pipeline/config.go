package pipeline

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/md-rashed-zaman/restorecheck/services/restore-harness/internal/backupconf"
	"github.com/md-rashed-zaman/restorecheck/services/restore-harness/internal/compare"
	"github.com/md-rashed-zaman/restorecheck/services/restore-harness/internal/toolrunner"
)

type Config struct {
	Brokers           []string
	Topic             string
	Count             int
	Seed              *int64
	KeyPrefix         string
	Partitions        int
	ReplicationFactor int
	FlushTimeout      time.Duration

	// ToolCommand is the backup tool invocation prefix; the subcommand and --config are
	// appended.
	ToolCommand string
	ToolTimeout time.Duration
	// BackupConfig and RestoreConfig, when set, are passed to the tool verbatim instead of
	// generated documents.
	BackupConfig  string
	RestoreConfig string
	// ConfigDir is where generated documents are written; ToolConfigDir is the same
	// directory as the tool sees it (a container mount), defaulting to ConfigDir.
	ConfigDir     string
	ToolConfigDir string
	// ToolBrokers are the bootstrap servers written into the documents, for tools that
	// resolve brokers by a different name than the harness does.
	ToolBrokers []string
	BackupID    string
	Storage     backupconf.Storage
	Compression string
	// VerifyBackup lists <Storage.Prefix>/<backup id>/ after the backup step.
	VerifyBackup bool

	SettleRestore time.Duration
	DrainTimeout  time.Duration
	IdlePolls     int
	PollTimeout   time.Duration
	CompareFields []compare.Field
}

func DefaultConfig() Config {
	return Config{
		Brokers:           []string{"localhost:9092"},
		Topic:             "orders",
		Count:             50,
		Partitions:        3,
		ReplicationFactor: 1,
		FlushTimeout:      10 * time.Second,
		ToolTimeout:       120 * time.Second,
		ConfigDir:         "/tmp/restorecheck",
		Storage: backupconf.Storage{
			Backend: backupconf.BackendS3,
			Bucket:  "kafka-backups",
			Region:  "us-east-1",
			Prefix:  "restorecheck",
		},
		Compression:   "zstd",
		SettleRestore: 2 * time.Second,
		DrainTimeout:  30 * time.Second,
		IdlePolls:     10,
		PollTimeout:   time.Second,
	}
}

// Validate reports every problem at once. It never touches the network or the filesystem.
func (c Config) Validate() error {
	var errs []error
	if len(c.Brokers) == 0 {
		errs = append(errs, errors.New("at least one broker is required"))
	}
	if strings.TrimSpace(c.Topic) == "" {
		errs = append(errs, errors.New("topic is required"))
	}
	if c.Count <= 0 {
		errs = append(errs, fmt.Errorf("count must be positive (got %d)", c.Count))
	}
	if c.Partitions <= 0 {
		errs = append(errs, fmt.Errorf("partitions must be positive (got %d)", c.Partitions))
	}
	if c.ReplicationFactor <= 0 {
		errs = append(errs, fmt.Errorf("replication factor must be positive (got %d)", c.ReplicationFactor))
	}
	if c.FlushTimeout <= 0 {
		errs = append(errs, errors.New("flush timeout must be positive"))
	}
	if _, _, err := toolrunner.SplitCommand(c.ToolCommand); err != nil {
		errs = append(errs, fmt.Errorf("tool command: %w", err))
	}
	if c.ToolTimeout <= 0 {
		errs = append(errs, errors.New("tool timeout must be positive"))
	}
	if (c.BackupConfig == "" || c.RestoreConfig == "") && strings.TrimSpace(c.ConfigDir) == "" {
		errs = append(errs, errors.New("config dir is required when tool configs are generated"))
	}
	if c.VerifyBackup {
		if c.Storage.Backend != backupconf.BackendS3 {
			errs = append(errs, fmt.Errorf("verify-backup needs the s3 storage backend (got %q)", c.Storage.Backend))
		}
		// A supplied backup document names its own backup id, which the harness cannot see.
		if c.BackupConfig != "" && strings.TrimSpace(c.BackupID) == "" {
			errs = append(errs, errors.New("verify-backup with a supplied backup config requires an explicit backup id"))
		}
	}
	if c.SettleRestore < 0 {
		errs = append(errs, errors.New("restore settle must not be negative"))
	}
	if c.DrainTimeout <= 0 {
		errs = append(errs, errors.New("drain timeout must be positive"))
	}
	if c.IdlePolls <= 0 {
		errs = append(errs, fmt.Errorf("idle polls must be positive (got %d)", c.IdlePolls))
	}
	if c.PollTimeout <= 0 {
		errs = append(errs, errors.New("poll timeout must be positive"))
	}
	return errors.Join(errs...)
}

func (c Config) toolBrokers() []string {
	if len(c.ToolBrokers) > 0 {
		return c.ToolBrokers
	}
	return c.Brokers
}

// toolPath maps a file written under ConfigDir to the path the tool sees.
func (c Config) toolPath(name string) string {
	if c.ToolConfigDir == "" {
		return path.Join(c.ConfigDir, name)
	}
	return path.Join(c.ToolConfigDir, name)
}
