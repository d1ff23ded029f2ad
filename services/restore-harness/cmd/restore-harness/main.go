package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/md-rashed-zaman/restorecheck/libs/runtime"
)

// errRunFailed marks a completed run whose verdict was false; the result has already been
// printed, so main only sets the exit code.
var errRunFailed = errors.New("run failed")

func main() {
	ctx, stop := runtime.SignalContext(context.Background())
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	os.Exit(exitCode(err, os.Stderr))
}

func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return 0
	}
	if !errors.Is(err, errRunFailed) {
		fmt.Fprintf(stderr, "error: %v\n", err)
	}
	return 1
}
