package main

import (
	"errors"
	"os"
	"time"

	"github.com/md-rashed-zaman/restorecheck/libs/config"
	"github.com/md-rashed-zaman/restorecheck/libs/kafkax"
	"github.com/md-rashed-zaman/restorecheck/services/restore-harness/internal/backupconf"
	"github.com/md-rashed-zaman/restorecheck/services/restore-harness/internal/compare"
	"github.com/md-rashed-zaman/restorecheck/services/restore-harness/internal/pipeline"
	"github.com/md-rashed-zaman/restorecheck/services/restore-harness/internal/topics"
	"github.com/spf13/pflag"
)

const (
	adminCLI   = "cli"
	adminKafka = "kafka"
)

// runOptions are the flag values of the run command. Defaults come from the environment.
type runOptions struct {
	brokers      string
	topic        string
	count        int
	seed         int64
	keyPrefix    string
	partitions   int
	replication  int
	flushTimeout time.Duration

	toolCommand   string
	toolTimeout   time.Duration
	backupConfig  string
	restoreConfig string
	configDir     string
	toolConfigDir string
	toolBrokers   string
	backupID      string
	compression   string

	storageBackend  string
	bucket          string
	region          string
	prefix          string
	endpoint        string
	pathStyle       bool
	accessKeyID     string
	secretAccessKey string
	storagePath     string
	verifyBackup    bool

	topicAdmin    string
	topicsCommand string
	adminTimeout  time.Duration
	settleDelete  time.Duration
	settleCreate  time.Duration
	settleRestore time.Duration
	settleTimeout time.Duration
	waitMetadata  bool

	drainTimeout  time.Duration
	idlePolls     int
	pollTimeout   time.Duration
	compareFields string

	databaseURL      string
	redisAddr        string
	redisPassword    string
	redisDB          int
	lockTTL          time.Duration
	preflightTimeout time.Duration
}

func envDefaults() (runOptions, error) {
	def := pipeline.DefaultConfig()
	settle := topics.DefaultSettle()
	var errs []error
	intVar := func(key string, fallback int) int {
		v, err := config.Int(key, fallback)
		errs = append(errs, err)
		return v
	}
	durVar := func(key string, fallback time.Duration) time.Duration {
		v, err := config.Duration(key, fallback)
		errs = append(errs, err)
		return v
	}

	o := runOptions{
		brokers:      config.String("KAFKA_BROKERS", "localhost:9092"),
		topic:        config.String("RESTORE_TOPIC", def.Topic),
		count:        intVar("RESTORE_COUNT", def.Count),
		keyPrefix:    config.String("RESTORE_KEY_PREFIX", ""),
		partitions:   intVar("RESTORE_PARTITIONS", def.Partitions),
		replication:  intVar("RESTORE_REPLICATION_FACTOR", def.ReplicationFactor),
		flushTimeout: durVar("RESTORE_FLUSH_TIMEOUT", def.FlushTimeout),

		toolCommand:   config.String("BACKUP_TOOL_COMMAND", ""),
		toolTimeout:   durVar("BACKUP_TOOL_TIMEOUT", def.ToolTimeout),
		backupConfig:  config.String("BACKUP_CONFIG", ""),
		restoreConfig: config.String("RESTORE_CONFIG", ""),
		configDir:     config.String("RESTORE_CONFIG_DIR", def.ConfigDir),
		toolConfigDir: config.String("TOOL_CONFIG_DIR", ""),
		toolBrokers:   config.String("TOOL_KAFKA_BROKERS", ""),
		backupID:      config.String("BACKUP_ID", ""),
		compression:   config.String("BACKUP_COMPRESSION", def.Compression),

		storageBackend:  config.String("STORAGE_BACKEND", def.Storage.Backend),
		bucket:          config.String("S3_BUCKET", def.Storage.Bucket),
		region:          config.String("S3_REGION", def.Storage.Region),
		prefix:          config.String("S3_PREFIX", def.Storage.Prefix),
		endpoint:        config.String("S3_ENDPOINT", ""),
		pathStyle:       config.Bool("S3_PATH_STYLE", false),
		accessKeyID:     config.String("S3_ACCESS_KEY_ID", ""),
		secretAccessKey: config.String("S3_SECRET_ACCESS_KEY", ""),
		storagePath:     config.String("STORAGE_PATH", ""),
		verifyBackup:    config.Bool("VERIFY_BACKUP", false),

		topicAdmin:    config.String("TOPIC_ADMIN", adminCLI),
		topicsCommand: config.String("TOPICS_COMMAND", "kafka-topics.sh"),
		adminTimeout:  durVar("TOPIC_ADMIN_TIMEOUT", time.Minute),
		settleDelete:  durVar("SETTLE_AFTER_DELETE", settle.AfterDelete),
		settleCreate:  durVar("SETTLE_AFTER_CREATE", settle.AfterCreate),
		settleRestore: durVar("SETTLE_AFTER_RESTORE", def.SettleRestore),
		settleTimeout: durVar("SETTLE_TIMEOUT", settle.WaitTimeout),
		waitMetadata:  config.Bool("WAIT_METADATA", true),

		drainTimeout:  durVar("DRAIN_TIMEOUT", def.DrainTimeout),
		idlePolls:     intVar("DRAIN_IDLE_POLLS", def.IdlePolls),
		pollTimeout:   durVar("DRAIN_POLL_TIMEOUT", def.PollTimeout),
		compareFields: config.String("COMPARE_FIELDS", ""),

		databaseURL:      config.String("DATABASE_URL", ""),
		redisAddr:        config.String("REDIS_ADDR", ""),
		redisPassword:    config.String("REDIS_PASSWORD", ""),
		redisDB:          intVar("REDIS_DB", 0),
		lockTTL:          durVar("RUN_LOCK_TTL", 15*time.Minute),
		preflightTimeout: durVar("PREFLIGHT_TIMEOUT", 5*time.Second),
	}
	if _, ok := os.LookupEnv("RESTORE_SEED"); ok {
		seed, err := config.Int("RESTORE_SEED", 0)
		errs = append(errs, err)
		o.seed = int64(seed)
	}
	return o, errors.Join(errs...)
}

func (o *runOptions) bind(flags *pflag.FlagSet) {
	flags.StringVar(&o.brokers, "brokers", o.brokers, "comma separated Kafka bootstrap servers")
	flags.StringVar(&o.topic, "topic", o.topic, "topic under test")
	flags.IntVar(&o.count, "count", o.count, "number of records to generate")
	flags.Int64Var(&o.seed, "seed", o.seed, "random seed for reproducible record content")
	flags.StringVar(&o.keyPrefix, "key-prefix", o.keyPrefix, "record key prefix")
	flags.IntVar(&o.partitions, "partitions", o.partitions, "partition count of the recreated topic")
	flags.IntVar(&o.replication, "replication-factor", o.replication, "replication factor of the recreated topic")
	flags.DurationVar(&o.flushTimeout, "flush-timeout", o.flushTimeout, "how long to wait for delivery acknowledgements")

	flags.StringVar(&o.toolCommand, "tool-command", o.toolCommand, "backup tool invocation prefix, e.g. \"docker compose --profile tools run --rm kafka-backup\"")
	flags.DurationVar(&o.toolTimeout, "tool-timeout", o.toolTimeout, "hard limit per backup/restore invocation")
	flags.StringVar(&o.backupConfig, "backup-config", o.backupConfig, "existing backup config path passed to the tool as-is")
	flags.StringVar(&o.restoreConfig, "restore-config", o.restoreConfig, "existing restore config path passed to the tool as-is")
	flags.StringVar(&o.configDir, "config-dir", o.configDir, "directory generated tool configs are written to")
	flags.StringVar(&o.toolConfigDir, "tool-config-dir", o.toolConfigDir, "config-dir as seen by the tool (container mount)")
	flags.StringVar(&o.toolBrokers, "tool-brokers", o.toolBrokers, "bootstrap servers written into tool configs (default --brokers)")
	flags.StringVar(&o.backupID, "backup-id", o.backupID, "backup id (default derived from the run id)")
	flags.StringVar(&o.compression, "compression", o.compression, "backup compression")

	flags.StringVar(&o.storageBackend, "storage-backend", o.storageBackend, "backup storage backend (s3|filesystem)")
	flags.StringVar(&o.bucket, "s3-bucket", o.bucket, "backup bucket")
	flags.StringVar(&o.region, "s3-region", o.region, "backup bucket region")
	flags.StringVar(&o.prefix, "s3-prefix", o.prefix, "object prefix inside the bucket")
	flags.StringVar(&o.endpoint, "s3-endpoint", o.endpoint, "custom S3 endpoint (MinIO, LocalStack)")
	flags.BoolVar(&o.pathStyle, "s3-path-style", o.pathStyle, "use path-style bucket addressing")
	flags.StringVar(&o.accessKeyID, "s3-access-key-id", o.accessKeyID, "static access key id")
	flags.StringVar(&o.secretAccessKey, "s3-secret-access-key", o.secretAccessKey, "static secret access key")
	flags.StringVar(&o.storagePath, "storage-path", o.storagePath, "backup directory for the filesystem backend")
	flags.BoolVar(&o.verifyBackup, "verify-backup", o.verifyBackup, "list the backup prefix in S3 before deleting the topic")

	flags.StringVar(&o.topicAdmin, "topic-admin", o.topicAdmin, "how topics are deleted and created (cli|kafka)")
	flags.StringVar(&o.topicsCommand, "topics-command", o.topicsCommand, "kafka-topics.sh invocation used by --topic-admin=cli")
	flags.DurationVar(&o.adminTimeout, "admin-timeout", o.adminTimeout, "hard limit per topic admin operation")
	flags.DurationVar(&o.settleDelete, "settle-delete", o.settleDelete, "fixed wait after delete when not watching metadata")
	flags.DurationVar(&o.settleCreate, "settle-create", o.settleCreate, "fixed wait after create when not watching metadata")
	flags.DurationVar(&o.settleRestore, "settle-restore", o.settleRestore, "wait after restore before draining")
	flags.DurationVar(&o.settleTimeout, "settle-timeout", o.settleTimeout, "limit on waiting for topic metadata to settle")
	flags.BoolVar(&o.waitMetadata, "wait-metadata", o.waitMetadata, "poll topic metadata instead of sleeping after delete/create")

	flags.DurationVar(&o.drainTimeout, "drain-timeout", o.drainTimeout, "overall limit on draining the restored topic")
	flags.IntVar(&o.idlePolls, "idle-polls", o.idlePolls, "consecutive empty polls that end the drain")
	flags.DurationVar(&o.pollTimeout, "poll-timeout", o.pollTimeout, "wait per poll")
	flags.StringVar(&o.compareFields, "compare-fields", o.compareFields, "extra fields to compare (group,label,timestamp)")

	flags.StringVar(&o.databaseURL, "database-url", o.databaseURL, "Postgres URL for run history (optional)")
	flags.StringVar(&o.redisAddr, "redis-addr", o.redisAddr, "Redis address for the per-topic run lock (optional)")
	flags.StringVar(&o.redisPassword, "redis-password", o.redisPassword, "Redis password")
	flags.IntVar(&o.redisDB, "redis-db", o.redisDB, "Redis database")
	flags.DurationVar(&o.lockTTL, "lock-ttl", o.lockTTL, "run lock expiry")
	flags.DurationVar(&o.preflightTimeout, "preflight-timeout", o.preflightTimeout, "limit per dependency check before the run")
}

// pipelineConfig converts flag values into the orchestrator's typed configuration.
func (o runOptions) pipelineConfig(seedSet bool) (pipeline.Config, error) {
	fields, err := compare.ParseFields(o.compareFields)
	if err != nil {
		return pipeline.Config{}, err
	}
	switch o.topicAdmin {
	case adminCLI, adminKafka:
	default:
		return pipeline.Config{}, errors.New("--topic-admin must be cli or kafka")
	}

	cfg := pipeline.Config{
		Brokers:           kafkax.SplitBrokers(o.brokers),
		Topic:             o.topic,
		Count:             o.count,
		KeyPrefix:         o.keyPrefix,
		Partitions:        o.partitions,
		ReplicationFactor: o.replication,
		FlushTimeout:      o.flushTimeout,
		ToolCommand:       o.toolCommand,
		ToolTimeout:       o.toolTimeout,
		BackupConfig:      o.backupConfig,
		RestoreConfig:     o.restoreConfig,
		ConfigDir:         o.configDir,
		ToolConfigDir:     o.toolConfigDir,
		ToolBrokers:       kafkax.SplitBrokers(o.toolBrokers),
		BackupID:          o.backupID,
		VerifyBackup:      o.verifyBackup,
		Compression:       o.compression,
		Storage: backupconf.Storage{
			Backend:         o.storageBackend,
			Bucket:          o.bucket,
			Region:          o.region,
			Prefix:          o.prefix,
			Endpoint:        o.endpoint,
			PathStyle:       o.pathStyle,
			AccessKeyID:     o.accessKeyID,
			SecretAccessKey: o.secretAccessKey,
			Path:            o.storagePath,
		},
		SettleRestore: o.settleRestore,
		DrainTimeout:  o.drainTimeout,
		IdlePolls:     o.idlePolls,
		PollTimeout:   o.pollTimeout,
		CompareFields: fields,
	}
	if seedSet {
		seed := o.seed
		cfg.Seed = &seed
	}
	return cfg, cfg.Validate()
}

func (o runOptions) settle() topics.Settle {
	return topics.Settle{
		AfterDelete: o.settleDelete,
		AfterCreate: o.settleCreate,
		WaitTimeout: o.settleTimeout,
	}
}
