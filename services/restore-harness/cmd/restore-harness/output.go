package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/md-rashed-zaman/restorecheck/services/restore-harness/internal/pipeline"
)

const maxListedMismatches = 10

func render(w io.Writer, format string, res pipeline.Result) error {
	if format == formatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	renderPretty(w, res)
	return nil
}

func renderPretty(w io.Writer, res pipeline.Result) {
	fmt.Fprintf(w, "run %s  topic %s  backup %s\n", res.RunID, res.Topic, res.BackupID)
	for _, s := range res.Steps {
		mark := "✓"
		if res.Failure != nil && res.Failure.Step == s.Step {
			mark = "✗"
		}
		fmt.Fprintf(w, "  %s %-14s %s\n", mark, s.Step, s.Duration.Round(time.Millisecond))
	}
	if d := res.Drain; d != nil {
		fmt.Fprintf(w, "  drain: %d polls, %d idle, %d decode errors, %d consumer errors, stopped on %s\n",
			d.Polls, d.IdlePolls, d.DecodeErrors, d.ConsumerErrors, d.Reason)
	}
	fmt.Fprintln(w)

	c := res.Counts
	if res.Passed {
		fmt.Fprintf(w, "✓ PASS  generated %d, produced %d, restored %d, compared %d\n",
			c.Generated, c.Produced, c.Restored, c.Compared)
		return
	}

	f := res.Failure
	fmt.Fprintf(w, "✗ FAIL  step %s (%s): %v\n", f.Step, f.Class, f.Err)
	if f.Tool != nil {
		if tail := lastLines(f.Tool.Stderr, 5); tail != "" {
			fmt.Fprintf(w, "  stderr:\n%s\n", indent(tail, "    "))
		}
		if f.Tool.Truncated {
			fmt.Fprintln(w, "  (tool output truncated)")
		}
	}
	if cmp := res.Comparison; cmp != nil && len(cmp.Mismatches) > 0 {
		fmt.Fprintf(w, "  mismatches (%d):\n", len(cmp.Mismatches))
		for i, m := range cmp.Mismatches {
			if i == maxListedMismatches {
				fmt.Fprintf(w, "    ... %d more\n", len(cmp.Mismatches)-maxListedMismatches)
				break
			}
			fmt.Fprintf(w, "    %s %s: expected %q, got %q\n", m.Key, m.Field, m.Expected, m.Actual)
		}
	}
	fmt.Fprintf(w, "  generated %d, produced %d, restored %d\n", c.Generated, c.Produced, c.Restored)
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func indent(s, prefix string) string {
	return prefix + strings.ReplaceAll(s, "\n", "\n"+prefix)
}
