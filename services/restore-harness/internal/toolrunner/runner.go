// Package toolrunner executes out-of-process tools (the backup tool, topic admin CLIs) with a
// hard wall-clock limit and bounded output capture. It never retries and never parses output.
package toolrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

const (
	// ExitTimeout is the synthetic exit code reported when the limit killed the process.
	ExitTimeout = 124
	// ExitNotStarted is reported when the process could not be spawned at all.
	ExitNotStarted = 127
	// ExitCanceled is reported when the caller's context was cancelled (e.g. SIGINT).
	ExitCanceled = 130

	DefaultOutputLimit = 8 << 10 // 8 KiB per stream
)

// Result is the immutable outcome of one invocation.
type Result struct {
	Command   string
	ExitCode  int
	Stdout    string
	Stderr    string
	TimedOut  bool
	Truncated bool
	Duration  time.Duration
}

func (r Result) Succeeded() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// Summary is a one-line diagnostic suitable for a failure report.
func (r Result) Summary() string {
	switch {
	case r.TimedOut:
		return fmt.Sprintf("%s: timed out after %s", r.Command, r.Duration.Round(time.Millisecond))
	case r.ExitCode == 0:
		return fmt.Sprintf("%s: ok", r.Command)
	}
	detail := lastLine(r.Stderr)
	if detail == "" {
		detail = lastLine(r.Stdout)
	}
	if detail == "" {
		return fmt.Sprintf("%s: exit %d", r.Command, r.ExitCode)
	}
	return fmt.Sprintf("%s: exit %d: %s", r.Command, r.ExitCode, detail)
}

// Executor is the capability the pipeline depends on; tests substitute a fake.
type Executor interface {
	Run(ctx context.Context, command string, args []string, timeout time.Duration) Result
}

type Options struct {
	OutputLimit int
	Env         []string
	Dir         string
}

type Runner struct {
	logger *slog.Logger
	opts   Options
}

func New(logger *slog.Logger, opts Options) *Runner {
	if opts.OutputLimit <= 0 {
		opts.OutputLimit = DefaultOutputLimit
	}
	return &Runner{logger: logger, opts: opts}
}

func (r *Runner) Run(ctx context.Context, command string, args []string, timeout time.Duration) Result {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, command, args...) // argv passed separately; no shell
	cmd.Dir = r.opts.Dir
	if r.opts.Env != nil {
		cmd.Env = r.opts.Env
	}
	configureProcessGroup(cmd)
	// Children that inherited our pipes must not keep Wait blocked after the kill.
	cmd.WaitDelay = 2 * time.Second

	stdout := newCappedBuffer(r.opts.OutputLimit)
	stderr := newCappedBuffer(r.opts.OutputLimit)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	res := Result{Command: cmd.String()}
	r.logger.Info("running external command", "cmd", res.Command, "timeout", timeout)

	start := time.Now()
	err := cmd.Run()
	res.Duration = time.Since(start)
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	res.Truncated = stdout.Truncated() || stderr.Truncated()

	switch {
	case err == nil:
		res.ExitCode = 0
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		res.TimedOut = true
		res.ExitCode = ExitTimeout
	case ctx.Err() != nil:
		res.ExitCode = ExitCanceled
		res.Stderr = appendLine(res.Stderr, "canceled: "+ctx.Err().Error())
	case cmd.ProcessState != nil:
		// The process ran; its own status decides, even when a leftover child kept the
		// output pipes open past WaitDelay.
		res.ExitCode = exitStatus(cmd.ProcessState)
		if errors.Is(err, exec.ErrWaitDelay) {
			res.Truncated = true
			res.Stderr = appendLine(res.Stderr, "output incomplete: a child process still held stdout/stderr after exit")
		}
	default:
		res.ExitCode = ExitNotStarted
		res.Stderr = appendLine(res.Stderr, err.Error())
	}

	if res.Succeeded() {
		r.logger.Info("external command finished", "cmd", res.Command, "duration", res.Duration)
	} else {
		r.logger.Warn("external command failed",
			"cmd", res.Command,
			"exit_code", res.ExitCode,
			"timed_out", res.TimedOut,
			"duration", res.Duration,
			"stderr", lastLine(res.Stderr),
		)
	}
	return res
}

func exitStatus(ps *os.ProcessState) int {
	if code := ps.ExitCode(); code >= 0 {
		return code
	}
	// Killed by a signal we did not send.
	return 1
}

// SplitCommand turns a configured command line such as
// "docker compose --profile tools run --rm kafka-backup" into a binary and its leading args.
func SplitCommand(raw string) (string, []string, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return "", nil, errors.New("empty command")
	}
	return fields[0], fields[1:], nil
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\n")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}

func appendLine(s, line string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s + line
	}
	return s + "\n" + line
}
