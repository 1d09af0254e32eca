package promotion

import (
	"errors"
	"fmt"
	"strings"
)

// Stage names one step of a promotion.
type Stage string

const (
	StageFetch  Stage = "fetch"
	StageGrant  Stage = "grant"
	StageRevoke Stage = "revoke"
	StageRename Stage = "rename"
)

// StepError is one failed mutation.
type StepError struct {
	Stage Stage
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// PartialError reports the mutations that failed while the others were
// still applied. Nothing is rolled back.
type PartialError struct {
	Steps []*StepError
	err   error
}

func newPartialError(steps []*StepError) *PartialError {
	errs := make([]error, len(steps))
	for i, s := range steps {
		errs[i] = s
	}
	return &PartialError{Steps: steps, err: errors.Join(errs...)}
}

func (e *PartialError) Error() string {
	stages := make([]string, len(e.Steps))
	for i, s := range e.Steps {
		stages[i] = string(s.Stage)
	}
	return fmt.Sprintf("partial promotion (failed: %s): %s",
		strings.Join(stages, ", "),
		strings.ReplaceAll(e.err.Error(), "\n", "; "),
	)
}

func (e *PartialError) Unwrap() error {
	return e.err
}

// Failed reports whether stage is among the failed steps.
func (e *PartialError) Failed(stage Stage) bool {
	for _, s := range e.Steps {
		if s.Stage == stage {
			return true
		}
	}
	return false
}
