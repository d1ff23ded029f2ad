package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/md-rashed-zaman/restorecheck/services/restore-harness/internal/toolrunner"
)

type Step string

const (
	StepValidate     Step = "validate"
	StepLock         Step = "lock"
	StepGenerate     Step = "generate"
	StepPublish      Step = "publish"
	StepBackup       Step = "backup"
	StepVerifyBackup Step = "verify-backup"
	StepResetTopic   Step = "reset-topic"
	StepRestore      Step = "restore"
	StepDrain        Step = "drain"
	StepCompare      Step = "compare"
)

type Class string

const (
	ClassConfig         Class = "config"
	ClassInfrastructure Class = "infrastructure"
	ClassDelivery       Class = "delivery"
	ClassExternalTool   Class = "external-tool"
	ClassTopicAdmin     Class = "topic-admin"
	ClassBus            Class = "bus"
	ClassIntegrity      Class = "integrity"
)

// StepError identifies the step that stopped a run. Tool is set when an external command
// produced the failure.
type StepError struct {
	Step  Step
	Class Class
	Err   error
	Tool  *toolrunner.Result
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Step, e.Class, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

func (e *StepError) MarshalJSON() ([]byte, error) {
	type tool struct {
		Command   string `json:"command"`
		ExitCode  int    `json:"exit_code"`
		TimedOut  bool   `json:"timed_out"`
		Truncated bool   `json:"truncated"`
		Stdout    string `json:"stdout,omitempty"`
		Stderr    string `json:"stderr,omitempty"`
		Duration  string `json:"duration"`
	}
	out := struct {
		Step   Step   `json:"step"`
		Class  Class  `json:"class"`
		Detail string `json:"detail"`
		Tool   *tool  `json:"tool,omitempty"`
	}{Step: e.Step, Class: e.Class, Detail: e.Err.Error()}
	if e.Tool != nil {
		out.Tool = &tool{
			Command:   e.Tool.Command,
			ExitCode:  e.Tool.ExitCode,
			TimedOut:  e.Tool.TimedOut,
			Truncated: e.Tool.Truncated,
			Stdout:    e.Tool.Stdout,
			Stderr:    e.Tool.Stderr,
			Duration:  e.Tool.Duration.String(),
		}
	}
	return json.Marshal(out)
}

func fail(step Step, class Class, err error) *StepError {
	return &StepError{Step: step, Class: class, Err: err}
}

func toolFailure(step Step, res toolrunner.Result) *StepError {
	return &StepError{Step: step, Class: ClassExternalTool, Err: errors.New(res.Summary()), Tool: &res}
}
