// Package pipeline runs one backup/restore integrity check end to end: generate, publish,
// back up, destroy the topic, restore, drain and compare, stopping at the first failure.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	otelx "github.com/md-rashed-zaman/restorecheck/libs/otel"
	"github.com/md-rashed-zaman/restorecheck/services/restore-harness/internal/artifacts"
	"github.com/md-rashed-zaman/restorecheck/services/restore-harness/internal/backupconf"
	"github.com/md-rashed-zaman/restorecheck/services/restore-harness/internal/compare"
	"github.com/md-rashed-zaman/restorecheck/services/restore-harness/internal/dataset"
	"github.com/md-rashed-zaman/restorecheck/services/restore-harness/internal/drain"
	"github.com/md-rashed-zaman/restorecheck/services/restore-harness/internal/history"
	"github.com/md-rashed-zaman/restorecheck/services/restore-harness/internal/producer"
	"github.com/md-rashed-zaman/restorecheck/services/restore-harness/internal/toolrunner"
	"github.com/md-rashed-zaman/restorecheck/services/restore-harness/internal/topics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Publisher interface {
	Publish(ctx context.Context, records []dataset.Record) error
	Flush(timeout time.Duration) producer.Delivery
	Close() error
}

type TopicResetter interface {
	ResetTopic(ctx context.Context, topic string, partitions, replication int) error
}

type Drainer interface {
	Drain(ctx context.Context, topic string, overall time.Duration, idleThreshold int) (drain.Result, error)
}

type ArtifactChecker interface {
	Check(ctx context.Context, backupID string) (artifacts.Summary, error)
}

type HistoryRecorder interface {
	Record(ctx context.Context, run history.Run) error
}

// LockFunc takes an exclusive lock on topic for owner and returns its release.
type LockFunc func(ctx context.Context, topic, owner string) (release func(context.Context) error, err error)

// Deps are the collaborators of a run. Artifacts, Lock, History and Metrics are optional.
type Deps struct {
	Exec         toolrunner.Executor
	NewPublisher func(runID string) Publisher
	Topics       TopicResetter
	NewDrainer   func(runID string) Drainer
	Artifacts    ArtifactChecker
	Lock         LockFunc
	History      HistoryRecorder
	Metrics      *Metrics
}

type Orchestrator struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
	tracer trace.Tracer

	newID func() string
	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

func New(logger *slog.Logger, cfg Config, deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Exec == nil:
		return nil, errors.New("pipeline: executor is required")
	case deps.NewPublisher == nil:
		return nil, errors.New("pipeline: publisher is required")
	case deps.Topics == nil:
		return nil, errors.New("pipeline: topic resetter is required")
	case deps.NewDrainer == nil:
		return nil, errors.New("pipeline: drainer is required")
	}
	return &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		tracer: otel.Tracer("restore-harness"),
		newID:  uuid.NewString,
		now:    time.Now,
		sleep:  topics.Sleep,
	}, nil
}

// run carries the state of a single Run call.
type run struct {
	o      *Orchestrator
	ctx    context.Context
	logger *slog.Logger
	res    *Result
}

// Run executes every step in order. It never returns an error; the outcome, including
// which step failed and why, is in the Result.
func (o *Orchestrator) Run(ctx context.Context) Result {
	runID := o.newID()
	ctx, span := o.tracer.Start(ctx, "restorecheck.run", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.String("topic", o.cfg.Topic),
	))
	defer span.End()

	res := Result{
		RunID:     runID,
		BackupID:  o.backupID(runID),
		Topic:     o.cfg.Topic,
		StartedAt: o.now(),
		TraceID:   otelx.TraceID(ctx),
	}
	r := &run{o: o, ctx: ctx, logger: o.logger.With("run_id", runID, "topic", o.cfg.Topic), res: &res}

	if serr := r.execute(); serr != nil {
		res.Failure = serr
		span.SetStatus(codes.Error, serr.Error())
	} else {
		res.Passed = true
	}
	res.FinishedAt = o.now()
	span.SetAttributes(attribute.Bool("passed", res.Passed))

	r.finish()
	return res
}

func (o *Orchestrator) backupID(runID string) string {
	if o.cfg.BackupID != "" {
		return o.cfg.BackupID
	}
	short := runID
	if len(short) > 8 {
		short = short[:8]
	}
	return "restorecheck-" + short
}

func (r *run) execute() *StepError {
	cfg := r.o.cfg
	deps := r.o.deps

	var backupPath, restorePath string
	if serr := r.step(StepValidate, func(context.Context) *StepError {
		if err := cfg.Validate(); err != nil {
			return fail(StepValidate, ClassConfig, err)
		}
		var err error
		backupPath, restorePath, err = r.o.toolConfigs(r.res.BackupID)
		if err != nil {
			return fail(StepValidate, ClassConfig, err)
		}
		return nil
	}); serr != nil {
		return serr
	}

	if deps.Lock != nil {
		var release func(context.Context) error
		if serr := r.step(StepLock, func(ctx context.Context) *StepError {
			var err error
			release, err = deps.Lock(ctx, cfg.Topic, r.res.RunID)
			if err != nil {
				return fail(StepLock, ClassInfrastructure, err)
			}
			return nil
		}); serr != nil {
			return serr
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), 5*time.Second)
			defer cancel()
			if err := release(ctx); err != nil {
				r.logger.Warn("releasing run lock failed", "err", err)
			}
		}()
	}

	var records []dataset.Record
	if serr := r.step(StepGenerate, func(context.Context) *StepError {
		var err error
		records, err = dataset.Generate(cfg.Count, dataset.Options{KeyPrefix: cfg.KeyPrefix, Seed: cfg.Seed})
		if err != nil {
			return fail(StepGenerate, ClassConfig, err)
		}
		r.res.Counts.Generated = len(records)
		first := records[0]
		r.logger.Info("sample record", "key", first.Key, "group", first.Group, "label", first.Label, "amount", first.Amount.StringFixed(2))
		return nil
	}); serr != nil {
		return serr
	}

	if serr := r.step(StepPublish, func(ctx context.Context) *StepError {
		return r.publish(ctx, records)
	}); serr != nil {
		return serr
	}

	if serr := r.step(StepBackup, func(ctx context.Context) *StepError {
		return r.runTool(ctx, StepBackup, backupconf.ModeBackup, backupPath)
	}); serr != nil {
		return serr
	}

	if deps.Artifacts != nil {
		if serr := r.step(StepVerifyBackup, func(ctx context.Context) *StepError {
			sum, err := deps.Artifacts.Check(ctx, r.res.BackupID)
			r.res.Artifacts = &sum
			if err != nil {
				return fail(StepVerifyBackup, ClassExternalTool, err)
			}
			r.logger.Info("backup artifacts found", "objects", sum.Objects, "bytes", sum.Bytes, "prefix", sum.Prefix)
			return nil
		}); serr != nil {
			return serr
		}
	}

	if serr := r.step(StepResetTopic, func(ctx context.Context) *StepError {
		err := deps.Topics.ResetTopic(ctx, cfg.Topic, cfg.Partitions, cfg.ReplicationFactor)
		if err == nil {
			return nil
		}
		serr := fail(StepResetTopic, ClassTopicAdmin, err)
		var toolErr *topics.ToolError
		if errors.As(err, &toolErr) {
			serr.Tool = &toolErr.Result
		}
		return serr
	}); serr != nil {
		return serr
	}

	if serr := r.step(StepRestore, func(ctx context.Context) *StepError {
		if serr := r.runTool(ctx, StepRestore, backupconf.ModeRestore, restorePath); serr != nil {
			return serr
		}
		if cfg.SettleRestore > 0 {
			r.logger.Info("waiting for restored data to settle", "delay", cfg.SettleRestore)
			if err := r.o.sleep(ctx, cfg.SettleRestore); err != nil {
				return fail(StepRestore, ClassExternalTool, fmt.Errorf("interrupted after restore: %w", err))
			}
		}
		return nil
	}); serr != nil {
		return serr
	}

	var restored []dataset.Record
	if serr := r.step(StepDrain, func(ctx context.Context) *StepError {
		res, err := deps.NewDrainer(r.res.RunID).Drain(ctx, cfg.Topic, cfg.DrainTimeout, cfg.IdlePolls)
		r.res.Drain = statsOf(res)
		restored = res.Records
		r.res.Counts.Restored = len(restored)
		if deps.Metrics != nil {
			deps.Metrics.RecordDrained(ctx, len(restored))
		}
		if err != nil {
			return fail(StepDrain, ClassBus, err)
		}
		if res.Duplicates > 0 || res.ForeignRuns > 0 {
			r.logger.Warn("drained unexpected records", "duplicates", res.Duplicates, "foreign_runs", res.ForeignRuns)
		}
		r.logger.Info("drain finished", "records", len(restored), "polls", res.Polls, "reason", res.Reason, "elapsed", res.Elapsed)
		return nil
	}); serr != nil {
		return serr
	}

	return r.step(StepCompare, func(context.Context) *StepError {
		report := compare.Compare(records, restored, compare.Options{Fields: cfg.CompareFields})
		r.res.Comparison = &report
		if report.CountMatch {
			r.res.Counts.Compared = report.ExpectedCount
		}
		if !report.Verdict {
			return fail(StepCompare, ClassIntegrity, errors.New(report.Summary()))
		}
		return nil
	})
}

func (r *run) step(name Step, fn func(context.Context) *StepError) *StepError {
	ctx, span := r.o.tracer.Start(r.ctx, "restorecheck."+string(name))
	defer span.End()

	r.logger.Info("step started", "step", name)
	start := r.o.now()
	serr := fn(ctx)
	elapsed := r.o.now().Sub(start)
	r.res.Steps = append(r.res.Steps, StepTiming{Step: name, Duration: elapsed})
	if m := r.o.deps.Metrics; m != nil {
		m.RecordStep(ctx, name, elapsed, serr == nil)
	}

	if serr != nil {
		span.RecordError(serr.Err)
		span.SetStatus(codes.Error, serr.Err.Error())
		r.logger.Error("step failed", "step", name, "class", serr.Class, "err", serr.Err, "duration", elapsed)
		return serr
	}
	r.logger.Info("step finished", "step", name, "duration", elapsed)
	return nil
}

func (r *run) publish(ctx context.Context, records []dataset.Record) *StepError {
	pub := r.o.deps.NewPublisher(r.res.RunID)
	defer func() {
		if err := pub.Close(); err != nil {
			r.logger.Warn("closing producer failed", "err", err)
		}
	}()

	if err := pub.Publish(ctx, records); err != nil {
		r.logger.Warn("publish reported an error, collecting outcomes", "err", err)
	}
	d := pub.Flush(r.o.cfg.FlushTimeout)
	r.res.Counts.Produced = d.Delivered
	if d.Complete() && d.Enqueued == len(records) {
		r.logger.Info("all records delivered", "delivered", d.Delivered)
		return nil
	}

	err := fmt.Errorf("delivered %d of %d records (pending %d, failed %d, flush timed out %t)",
		d.Delivered, len(records), d.Pending, len(d.Failed), d.TimedOut)
	if len(d.Failed) > 0 {
		err = fmt.Errorf("%w: first failure %s: %v", err, d.Failed[0].Key, d.Failed[0].Err)
	}
	return fail(StepPublish, ClassDelivery, err)
}

func (r *run) runTool(ctx context.Context, step Step, subcommand, configPath string) *StepError {
	command, prefix, err := toolrunner.SplitCommand(r.o.cfg.ToolCommand)
	if err != nil {
		return fail(step, ClassConfig, err)
	}
	args := append(prefix, subcommand, "--config", configPath)
	res := r.o.deps.Exec.Run(ctx, command, args, r.o.cfg.ToolTimeout)
	if !res.Succeeded() {
		return toolFailure(step, res)
	}
	r.logger.Info("tool finished", "subcommand", subcommand, "duration", res.Duration)
	return nil
}

// toolConfigs returns the config paths handed to the tool, generating documents for any
// that were not supplied.
func (o *Orchestrator) toolConfigs(backupID string) (backupPath, restorePath string, err error) {
	params := backupconf.Params{
		BackupID:    backupID,
		Brokers:     o.cfg.toolBrokers(),
		Topic:       o.cfg.Topic,
		Storage:     o.cfg.Storage,
		Compression: o.cfg.Compression,
	}

	backupPath = o.cfg.BackupConfig
	if backupPath == "" {
		name := "backup-" + backupID + ".yaml"
		if _, err := backupconf.Write(o.cfg.ConfigDir, name, backupconf.Backup(params)); err != nil {
			return "", "", err
		}
		backupPath = o.cfg.toolPath(name)
	}

	restorePath = o.cfg.RestoreConfig
	if restorePath == "" {
		name := "restore-" + backupID + ".yaml"
		if _, err := backupconf.Write(o.cfg.ConfigDir, name, backupconf.Restore(params)); err != nil {
			return "", "", err
		}
		restorePath = o.cfg.toolPath(name)
	}
	return backupPath, restorePath, nil
}

func (r *run) finish() {
	res := r.res
	var failedStep Step
	if res.Failure != nil {
		failedStep = res.Failure.Step
	}
	if m := r.o.deps.Metrics; m != nil {
		m.RecordRun(r.ctx, res.Passed, failedStep)
	}

	if h := r.o.deps.History; h != nil {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), 5*time.Second)
		defer cancel()
		traceparent, _ := otelx.TraceContextStrings(r.ctx)
		run := history.Run{
			RunID:       res.RunID,
			Topic:       res.Topic,
			Passed:      res.Passed,
			Generated:   res.Counts.Generated,
			Produced:    res.Counts.Produced,
			Restored:    res.Counts.Restored,
			Traceparent: traceparent,
			StartedAt:   res.StartedAt,
			FinishedAt:  res.FinishedAt,
		}
		if res.Failure != nil {
			run.FailedStep = string(res.Failure.Step)
			run.FailureClass = string(res.Failure.Class)
			run.Detail = res.Failure.Err.Error()
		}
		if res.Comparison != nil {
			run.Mismatches = len(res.Comparison.Mismatches)
		}
		if err := h.Record(ctx, run); err != nil {
			r.logger.Warn("recording run history failed", "err", err)
		}
	}

	if res.Passed {
		r.logger.Info("run passed", "generated", res.Counts.Generated, "produced", res.Counts.Produced,
			"restored", res.Counts.Restored, "compared", res.Counts.Compared)
		return
	}
	r.logger.Error("run failed", "step", failedStep, "class", res.Failure.Class, "err", res.Failure.Err)
}
