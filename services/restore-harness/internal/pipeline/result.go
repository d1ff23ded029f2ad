package pipeline

import (
	"time"

	"github.com/md-rashed-zaman/restorecheck/services/restore-harness/internal/artifacts"
	"github.com/md-rashed-zaman/restorecheck/services/restore-harness/internal/compare"
	"github.com/md-rashed-zaman/restorecheck/services/restore-harness/internal/drain"
)

type Counts struct {
	Generated int `json:"generated"`
	Produced  int `json:"produced"`
	Restored  int `json:"restored"`
	Compared  int `json:"compared"`
}

type StepTiming struct {
	Step     Step          `json:"step"`
	Duration time.Duration `json:"duration_ns"`
}

// DrainStats is the drain result without the records themselves.
type DrainStats struct {
	Polls          int              `json:"polls"`
	IdlePolls      int              `json:"idle_polls"`
	DecodeErrors   int              `json:"decode_errors"`
	ConsumerErrors int              `json:"consumer_errors"`
	Duplicates     int              `json:"duplicates"`
	ForeignRuns    int              `json:"foreign_runs"`
	Traced         int              `json:"traced"`
	Reason         drain.StopReason `json:"reason"`
	Elapsed        time.Duration    `json:"elapsed_ns"`
}

type Result struct {
	RunID      string             `json:"run_id"`
	BackupID   string             `json:"backup_id"`
	Topic      string             `json:"topic"`
	Passed     bool               `json:"passed"`
	Failure    *StepError         `json:"failure,omitempty"`
	Counts     Counts             `json:"counts"`
	Steps      []StepTiming       `json:"steps"`
	Drain      *DrainStats        `json:"drain,omitempty"`
	Artifacts  *artifacts.Summary `json:"artifacts,omitempty"`
	Comparison *compare.Report    `json:"comparison,omitempty"`
	TraceID    string             `json:"trace_id,omitempty"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
}

// Ran reports whether step was started during the run.
func (r Result) Ran(step Step) bool {
	for _, s := range r.Steps {
		if s.Step == step {
			return true
		}
	}
	return false
}

func statsOf(res drain.Result) *DrainStats {
	return &DrainStats{
		Polls:          res.Polls,
		IdlePolls:      res.IdlePolls,
		DecodeErrors:   res.DecodeErrors,
		ConsumerErrors: res.ConsumerErrors,
		Duplicates:     res.Duplicates,
		ForeignRuns:    res.ForeignRuns,
		Traced:         res.Traced,
		Reason:         res.Reason,
		Elapsed:        res.Elapsed,
	}
}
