package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/md-rashed-zaman/restorecheck/services/restore-harness/internal/artifacts"
	"github.com/md-rashed-zaman/restorecheck/services/restore-harness/internal/dataset"
	"github.com/md-rashed-zaman/restorecheck/services/restore-harness/internal/drain"
	"github.com/md-rashed-zaman/restorecheck/services/restore-harness/internal/history"
	"github.com/md-rashed-zaman/restorecheck/services/restore-harness/internal/producer"
	"github.com/md-rashed-zaman/restorecheck/services/restore-harness/internal/toolrunner"
	"github.com/md-rashed-zaman/restorecheck/services/restore-harness/internal/topics"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type toolCall struct {
	command string
	args    []string
}

type fakeExec struct {
	calls   []toolCall
	results map[string]toolrunner.Result
}

func (f *fakeExec) Run(_ context.Context, command string, args []string, _ time.Duration) toolrunner.Result {
	f.calls = append(f.calls, toolCall{command: command, args: slices.Clone(args)})
	sub := ""
	for _, a := range args {
		if a == "backup" || a == "restore" {
			sub = a
		}
	}
	if res, ok := f.results[sub]; ok {
		return res
	}
	return toolrunner.Result{Command: command, ExitCode: 0, Duration: time.Millisecond}
}

type fakePublisher struct {
	published []dataset.Record
	deliver   int // -1 delivers everything
	enqueue   int // >0 accepts only this many records, then Publish fails
	closed    bool
}

func (f *fakePublisher) Publish(_ context.Context, records []dataset.Record) error {
	if f.enqueue > 0 && f.enqueue < len(records) {
		f.published = slices.Clone(records[:f.enqueue])
		return errors.New("kafka: writer closed")
	}
	f.published = slices.Clone(records)
	return nil
}

func (f *fakePublisher) Flush(time.Duration) producer.Delivery {
	n := len(f.published)
	if f.deliver >= 0 && f.deliver < n {
		return producer.Delivery{Enqueued: n, Delivered: f.deliver, Pending: n - f.deliver, TimedOut: true}
	}
	return producer.Delivery{Enqueued: n, Delivered: n}
}

func (f *fakePublisher) Close() error {
	f.closed = true
	return nil
}

type fakeTopics struct {
	calls int
	err   error
}

func (f *fakeTopics) ResetTopic(context.Context, string, int, int) error {
	f.calls++
	return f.err
}

type fakeDrainer struct {
	calls  int
	mutate func([]dataset.Record) []dataset.Record
	source *fakePublisher
	err    error
}

func (f *fakeDrainer) Drain(context.Context, string, time.Duration, int) (drain.Result, error) {
	f.calls++
	recs := slices.Clone(f.source.published)
	slices.Reverse(recs)
	if f.mutate != nil {
		recs = f.mutate(recs)
	}
	return drain.Result{Records: recs, Polls: len(recs) + 10, IdlePolls: 10, Reason: drain.StopIdle}, f.err
}

type fakeArtifacts struct {
	sum artifacts.Summary
	err error
}

func (f *fakeArtifacts) Check(context.Context, string) (artifacts.Summary, error) {
	return f.sum, f.err
}

type fakeHistory struct {
	runs []history.Run
}

func (f *fakeHistory) Record(_ context.Context, run history.Run) error {
	f.runs = append(f.runs, run)
	return nil
}

type harness struct {
	cfg     Config
	exec    *fakeExec
	pub     *fakePublisher
	topics  *fakeTopics
	drainer *fakeDrainer
	history *fakeHistory
	deps    Deps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ToolCommand = "docker compose run --rm kafka-backup"
	cfg.ConfigDir = t.TempDir()
	seed := int64(7)
	cfg.Seed = &seed

	h := &harness{
		cfg:     cfg,
		exec:    &fakeExec{results: map[string]toolrunner.Result{}},
		pub:     &fakePublisher{deliver: -1},
		topics:  &fakeTopics{},
		history: &fakeHistory{},
	}
	h.drainer = &fakeDrainer{source: h.pub}
	h.deps = Deps{
		Exec:         h.exec,
		NewPublisher: func(string) Publisher { return h.pub },
		Topics:       h.topics,
		NewDrainer:   func(string) Drainer { return h.drainer },
		History:      h.history,
	}
	return h
}

func (h *harness) run(t *testing.T) Result {
	t.Helper()
	o, err := New(slog.New(slog.NewTextHandler(io.Discard, nil)), h.cfg, h.deps)
	require.NoError(t, err)
	o.newID = func() string { return "0badc0de-run" }
	o.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return o.Run(context.Background())
}

func stepsOf(res Result) []Step {
	var out []Step
	for _, s := range res.Steps {
		out = append(out, s.Step)
	}
	return out
}

func TestRunPasses(t *testing.T) {
	h := newHarness(t)
	res := h.run(t)

	require.Nil(t, res.Failure)
	assert.True(t, res.Passed)
	assert.Equal(t, Counts{Generated: 50, Produced: 50, Restored: 50, Compared: 50}, res.Counts)
	assert.Equal(t, []Step{StepValidate, StepGenerate, StepPublish, StepBackup, StepResetTopic, StepRestore, StepDrain, StepCompare}, stepsOf(res))
	assert.Equal(t, "restorecheck-0badc0de", res.BackupID)
	assert.True(t, h.pub.closed)

	require.Len(t, h.exec.calls, 2)
	backupArgs := h.exec.calls[0].args
	assert.Equal(t, "docker", h.exec.calls[0].command)
	assert.Equal(t, []string{"compose", "run", "--rm", "kafka-backup", "backup", "--config",
		filepath.Join(h.cfg.ConfigDir, "backup-restorecheck-0badc0de.yaml")}, backupArgs)
	assert.Equal(t, "restore", h.exec.calls[1].args[4])

	_, err := os.Stat(filepath.Join(h.cfg.ConfigDir, "restore-restorecheck-0badc0de.yaml"))
	assert.NoError(t, err)

	require.Len(t, h.history.runs, 1)
	assert.True(t, h.history.runs[0].Passed)
	assert.Equal(t, 50, h.history.runs[0].Restored)
}

func TestRunBackupFailureAbortsBeforeReset(t *testing.T) {
	h := newHarness(t)
	h.exec.results["backup"] = toolrunner.Result{Command: "docker", ExitCode: 1, Stderr: "storage unreachable\n"}

	res := h.run(t)
	require.NotNil(t, res.Failure)
	assert.False(t, res.Passed)
	assert.Equal(t, StepBackup, res.Failure.Step)
	assert.Equal(t, ClassExternalTool, res.Failure.Class)
	require.NotNil(t, res.Failure.Tool)
	assert.Equal(t, 1, res.Failure.Tool.ExitCode)
	assert.Contains(t, res.Failure.Error(), "storage unreachable")

	assert.Zero(t, h.topics.calls)
	assert.Zero(t, h.drainer.calls)
	assert.Len(t, h.exec.calls, 1)
	assert.False(t, res.Ran(StepDrain))
	assert.False(t, res.Ran(StepCompare))
	require.Len(t, h.history.runs, 1)
	assert.Equal(t, "backup", h.history.runs[0].FailedStep)
}

func TestRunDeliveryShortfallFailsBeforeBackup(t *testing.T) {
	h := newHarness(t)
	h.pub.deliver = 49

	res := h.run(t)
	require.NotNil(t, res.Failure)
	assert.Equal(t, StepPublish, res.Failure.Step)
	assert.Equal(t, ClassDelivery, res.Failure.Class)
	assert.Contains(t, res.Failure.Err.Error(), "delivered 49 of 50")
	assert.Equal(t, 49, res.Counts.Produced)
	assert.Empty(t, h.exec.calls)
}

func TestRunPartialEnqueueIsDeliveryShortfall(t *testing.T) {
	h := newHarness(t)
	h.pub.enqueue = 40

	res := h.run(t)
	require.NotNil(t, res.Failure)
	assert.Equal(t, StepPublish, res.Failure.Step)
	assert.Equal(t, ClassDelivery, res.Failure.Class)
	assert.Contains(t, res.Failure.Err.Error(), "delivered 40 of 50")
	assert.Empty(t, h.exec.calls)
}

func TestRunCountMismatchIsIntegrityFailure(t *testing.T) {
	h := newHarness(t)
	h.drainer.mutate = func(recs []dataset.Record) []dataset.Record { return recs[1:] }

	res := h.run(t)
	require.NotNil(t, res.Failure)
	assert.Equal(t, StepCompare, res.Failure.Step)
	assert.Equal(t, ClassIntegrity, res.Failure.Class)
	require.NotNil(t, res.Comparison)
	assert.False(t, res.Comparison.CountMatch)
	assert.Empty(t, res.Comparison.Mismatches)
	assert.Equal(t, 49, res.Counts.Restored)
	assert.Zero(t, res.Counts.Compared)
}

func TestRunAmountMismatch(t *testing.T) {
	h := newHarness(t)
	h.drainer.mutate = func(recs []dataset.Record) []dataset.Record {
		recs[3].Amount = recs[3].Amount.Add(decimal.RequireFromString("0.01"))
		return recs
	}

	res := h.run(t)
	require.NotNil(t, res.Failure)
	require.Len(t, res.Comparison.Mismatches, 1)
	assert.Equal(t, "amount", string(res.Comparison.Mismatches[0].Field))
	assert.Equal(t, 1, h.history.runs[0].Mismatches)
}

func TestRunInvalidConfigHasNoSideEffects(t *testing.T) {
	h := newHarness(t)
	h.cfg.Count = 0
	published := false
	h.deps.NewPublisher = func(string) Publisher { published = true; return h.pub }

	res := h.run(t)
	require.NotNil(t, res.Failure)
	assert.Equal(t, StepValidate, res.Failure.Step)
	assert.Equal(t, ClassConfig, res.Failure.Class)
	assert.False(t, published)
	assert.Empty(t, h.exec.calls)
	assert.Zero(t, h.topics.calls)
}

func TestRunResetFailureCarriesToolResult(t *testing.T) {
	h := newHarness(t)
	h.topics.err = &topics.ToolError{Op: "delete topic", Result: toolrunner.Result{Command: "kafka-topics.sh", ExitCode: 1}}

	res := h.run(t)
	require.NotNil(t, res.Failure)
	assert.Equal(t, StepResetTopic, res.Failure.Step)
	assert.Equal(t, ClassTopicAdmin, res.Failure.Class)
	require.NotNil(t, res.Failure.Tool)
	assert.Equal(t, "kafka-topics.sh", res.Failure.Tool.Command)
	assert.Len(t, h.exec.calls, 1)
	assert.Zero(t, h.drainer.calls)
}

func TestRunDrainSubscribeFailure(t *testing.T) {
	h := newHarness(t)
	h.drainer.err = errors.New("subscribe orders: topic orders does not exist")

	res := h.run(t)
	require.NotNil(t, res.Failure)
	assert.Equal(t, StepDrain, res.Failure.Step)
	assert.Equal(t, ClassBus, res.Failure.Class)
	assert.False(t, res.Ran(StepCompare))
}

func TestRunLockHeld(t *testing.T) {
	h := newHarness(t)
	h.deps.Lock = func(context.Context, string, string) (func(context.Context) error, error) {
		return nil, errors.New("run lock held by another run")
	}

	res := h.run(t)
	require.NotNil(t, res.Failure)
	assert.Equal(t, StepLock, res.Failure.Step)
	assert.Equal(t, ClassInfrastructure, res.Failure.Class)
	assert.False(t, res.Ran(StepGenerate))
}

func TestRunReleasesLock(t *testing.T) {
	h := newHarness(t)
	var owner string
	released := false
	h.deps.Lock = func(_ context.Context, _ string, o string) (func(context.Context) error, error) {
		owner = o
		return func(context.Context) error { released = true; return nil }, nil
	}

	res := h.run(t)
	assert.True(t, res.Passed)
	assert.Equal(t, "0badc0de-run", owner)
	assert.True(t, released)
}

func TestRunVerifyBackup(t *testing.T) {
	h := newHarness(t)
	h.deps.Artifacts = &fakeArtifacts{sum: artifacts.Summary{Prefix: "restorecheck/x/"}, err: artifacts.ErrNoArtifacts}

	res := h.run(t)
	require.NotNil(t, res.Failure)
	assert.Equal(t, StepVerifyBackup, res.Failure.Step)
	assert.ErrorIs(t, res.Failure, artifacts.ErrNoArtifacts)
	assert.Zero(t, h.topics.calls)

	h = newHarness(t)
	h.deps.Artifacts = &fakeArtifacts{sum: artifacts.Summary{Objects: 4, Bytes: 2048}}
	res = h.run(t)
	assert.True(t, res.Passed)
	assert.Equal(t, 4, res.Artifacts.Objects)
	assert.True(t, res.Ran(StepVerifyBackup))
}

func TestRunUsesSuppliedConfigsAndToolDir(t *testing.T) {
	h := newHarness(t)
	h.cfg.BackupConfig = "/config/backup-basic.yaml"
	h.cfg.ToolConfigDir = "/config/generated"

	res := h.run(t)
	require.True(t, res.Passed)
	assert.Equal(t, "/config/backup-basic.yaml", h.exec.calls[0].args[6])
	assert.Equal(t, "/config/generated/restore-restorecheck-0badc0de.yaml", h.exec.calls[1].args[6])
	_, err := os.Stat(filepath.Join(h.cfg.ConfigDir, "backup-restorecheck-0badc0de.yaml"))
	assert.True(t, os.IsNotExist(err))
}

func TestResultJSON(t *testing.T) {
	h := newHarness(t)
	h.exec.results["restore"] = toolrunner.Result{Command: "docker", ExitCode: toolrunner.ExitTimeout, TimedOut: true, Duration: 2 * time.Minute}

	res := h.run(t)
	raw, err := json.Marshal(res)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	failure := doc["failure"].(map[string]any)
	assert.Equal(t, "restore", failure["step"])
	assert.Equal(t, "external-tool", failure["class"])
	assert.Equal(t, true, failure["tool"].(map[string]any)["timed_out"])
	assert.Equal(t, false, doc["passed"])
}
