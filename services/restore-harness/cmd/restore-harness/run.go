package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/md-rashed-zaman/restorecheck/libs/db"
	"github.com/md-rashed-zaman/restorecheck/libs/kafkax"
	otelx "github.com/md-rashed-zaman/restorecheck/libs/otel"
	"github.com/md-rashed-zaman/restorecheck/libs/runtime"
	"github.com/md-rashed-zaman/restorecheck/services/restore-harness/internal/artifacts"
	"github.com/md-rashed-zaman/restorecheck/services/restore-harness/internal/drain"
	"github.com/md-rashed-zaman/restorecheck/services/restore-harness/internal/history"
	"github.com/md-rashed-zaman/restorecheck/services/restore-harness/internal/pipeline"
	"github.com/md-rashed-zaman/restorecheck/services/restore-harness/internal/producer"
	"github.com/md-rashed-zaman/restorecheck/services/restore-harness/internal/runlock"
	"github.com/md-rashed-zaman/restorecheck/services/restore-harness/internal/toolrunner"
	"github.com/md-rashed-zaman/restorecheck/services/restore-harness/internal/topics"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	opts, envErr := envDefaults()
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate, publish, back up, delete, restore, drain and compare one dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if envErr != nil {
				return fmt.Errorf("environment: %w", envErr)
			}
			_, seedFromEnv := os.LookupEnv("RESTORE_SEED")
			return runHarness(cmd, &opts, seedFromEnv || cmd.Flags().Changed("seed"))
		},
	}
	opts.bind(cmd.Flags())
	return cmd
}

func runHarness(cmd *cobra.Command, opts *runOptions, seedSet bool) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	logger, err := loggerFor(cmd)
	if err != nil {
		return err
	}
	cfg, err := opts.pipelineConfig(seedSet)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx := cmd.Context()
	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(serviceName))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	w, err := buildDeps(ctx, logger, cfg, opts)
	if err != nil {
		return err
	}
	defer w.close()

	if err := w.start(ctx, opts.preflightTimeout); err != nil {
		return err
	}

	orch, err := pipeline.New(logger, cfg, w.deps)
	if err != nil {
		return err
	}
	res := orch.Run(ctx)

	if err := render(cmd.OutOrStdout(), format, res); err != nil {
		return err
	}
	if !res.Passed {
		return errRunFailed
	}
	return nil
}

// wiring is the result of buildDeps. checks run as preflight before any side effect;
// prepare runs only once every check passed, since it may change external state.
type wiring struct {
	deps    pipeline.Deps
	checks  []runtime.ReadyCheck
	prepare []func(context.Context) error
	closers []func()
}

// start runs the preflight checks and then the prepare hooks.
func (w *wiring) start(ctx context.Context, timeout time.Duration) error {
	if err := runtime.Preflight(ctx, timeout, w.checks...); err != nil {
		return fmt.Errorf("preflight: %w", err)
	}
	for _, prepare := range w.prepare {
		if err := prepare(ctx); err != nil {
			return err
		}
	}
	return nil
}

// addHistory records runs in store; its schema is created only after preflight.
func (w *wiring) addHistory(store historyStore, check func(context.Context) error) {
	w.deps.History = store
	w.checks = append(w.checks, runtime.ReadyCheck{Name: "postgres", Check: check})
	w.prepare = append(w.prepare, func(ctx context.Context) error {
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("history schema: %w", err)
		}
		return nil
	})
}

type historyStore interface {
	pipeline.HistoryRecorder
	EnsureSchema(ctx context.Context) error
}

func (w *wiring) close() {
	for i := len(w.closers) - 1; i >= 0; i-- {
		w.closers[i]()
	}
}

// buildDeps wires the Kafka, tool, storage and optional Redis/Postgres collaborators.
func buildDeps(ctx context.Context, logger *slog.Logger, cfg pipeline.Config, opts *runOptions) (*wiring, error) {
	w := &wiring{}
	fail := func(err error) (*wiring, error) {
		w.close()
		return nil, err
	}

	client := kafkax.NewClient(cfg.Brokers, opts.adminTimeout)
	exec := toolrunner.New(logger.With("component", "toolrunner"), toolrunner.Options{})

	var admin topics.Admin
	if opts.topicAdmin == adminKafka {
		admin = topics.NewKafkaAdmin(client)
	} else {
		bootstrap := cfg.Brokers[0]
		if len(cfg.ToolBrokers) > 0 {
			bootstrap = cfg.ToolBrokers[0]
		}
		cli, err := topics.NewCLIAdmin(exec, opts.topicsCommand, bootstrap, opts.adminTimeout)
		if err != nil {
			return fail(err)
		}
		admin = cli
	}
	var watcher topics.Watcher
	if opts.waitMetadata {
		watcher = topics.NewMetadataWatcher(client)
	}

	metrics, err := pipeline.NewMetrics()
	if err != nil {
		return fail(fmt.Errorf("metrics: %w", err))
	}

	w.deps = pipeline.Deps{
		Exec: exec,
		NewPublisher: func(runID string) pipeline.Publisher {
			return producer.New(logger.With("component", "producer"), producer.Config{
				Brokers: cfg.Brokers,
				Topic:   cfg.Topic,
				RunID:   runID,
			})
		},
		Topics: topics.NewManager(logger.With("component", "topics"), admin, watcher, opts.settle()),
		NewDrainer: func(runID string) pipeline.Drainer {
			dl := logger.With("component", "drain")
			opener := drain.KafkaOpener(dl, client, drain.KafkaConfig{Brokers: cfg.Brokers, GroupPrefix: serviceName})
			return drain.New(dl, opener, cfg.PollTimeout, runID)
		},
		Metrics: metrics,
	}
	w.checks = []runtime.ReadyCheck{{Name: "kafka", Check: kafkax.ReadyCheck(cfg.Brokers)}}

	if cfg.VerifyBackup {
		checker, err := artifacts.New(ctx, artifacts.Config{
			Bucket:          cfg.Storage.Bucket,
			Prefix:          cfg.Storage.Prefix,
			Region:          cfg.Storage.Region,
			Endpoint:        cfg.Storage.Endpoint,
			PathStyle:       cfg.Storage.PathStyle,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
		})
		if err != nil {
			return fail(err)
		}
		w.deps.Artifacts = checker
	}

	if opts.redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     opts.redisAddr,
			Password: opts.redisPassword,
			DB:       opts.redisDB,
		})
		w.closers = append(w.closers, func() { _ = rdb.Close() })
		locker := runlock.New(rdb, serviceName+":lock", opts.lockTTL)
		w.deps.Lock = func(ctx context.Context, topic, owner string) (func(context.Context) error, error) {
			lease, err := locker.Acquire(ctx, topic, owner)
			if err != nil {
				return nil, err
			}
			return func(ctx context.Context) error {
				ok, err := lease.Release(ctx)
				if err == nil && !ok {
					logger.Warn("run lock expired before release", "key", lease.Key)
				}
				return err
			}, nil
		}
		w.checks = append(w.checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	if opts.databaseURL != "" {
		pool, err := db.Open(ctx, opts.databaseURL)
		if err != nil {
			return fail(fmt.Errorf("history db: %w", err))
		}
		w.closers = append(w.closers, pool.Close)
		w.addHistory(history.NewRepository(pool), db.ReadyCheck(pool))
	}

	return w, nil
}
