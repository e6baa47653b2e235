package setup

import (
	"errors"
	"fmt"

	"conductor/internal/process"
)

// ErrSkipped marks setup work that never ran because the run was cancelled.
var ErrSkipped = errors.New("skipped")

// AcquisitionError reports that a component's repository could not be made
// available at its target path.
type AcquisitionError struct {
	Component string
	URL       string // with credentials removed
	Path      string
	Err       error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("cannot acquire %s from %s into %s: %v", e.Component, e.URL, e.Path, e.Err)
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

// InitStepError reports the init command that failed. Step is 1-based.
type InitStepError struct {
	Component string
	Step      int
	Command   string
	Status    process.ExitStatus
	// Err is set when the step could not be started at all.
	Err error
}

func (e *InitStepError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("init step %d of %s (%s): %v", e.Step, e.Component, e.Command, e.Err)
	}
	return fmt.Sprintf("init step %d of %s (%s) failed: %s", e.Step, e.Component, e.Command, e.Status)
}

func (e *InitStepError) Unwrap() error {
	return e.Err
}
