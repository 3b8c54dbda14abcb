package lifecycle

import (
	"errors"
	"fmt"
)

// ErrAcquire is matched by every error returned from Manager.Acquire.
var ErrAcquire = errors.New("lifecycle: acquisition failed")

// AcquireError reports the step that failed and the outcome of the rollback.
type AcquireError struct {
	Step          string
	Err           error
	ReleaseErrors []*ReleaseError
}

func (e *AcquireError) Error() string {
	msg := fmt.Sprintf("%s: %s: %v", ErrAcquire, e.Step, e.Err)
	if n := len(e.ReleaseErrors); n > 0 {
		msg += fmt.Sprintf(" (%d release action(s) also failed)", n)
	}
	return msg
}

// Unwrap exposes both the sentinel and the step error.
func (e *AcquireError) Unwrap() []error {
	return []error{ErrAcquire, e.Err}
}

// ReleaseError records a release action that failed.
type ReleaseError struct {
	Step string
	Err  error
}

func (e *ReleaseError) Error() string {
	return fmt.Sprintf("releasing %s: %v", e.Step, e.Err)
}

func (e *ReleaseError) Unwrap() error {
	return e.Err
}
