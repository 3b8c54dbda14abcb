package sysexec

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors for host tool execution.
var (
	// ErrCommandFailed is returned when a tool exits non-zero or cannot start.
	ErrCommandFailed = errors.New("command failed")

	// ErrTimeout is returned when a tool runs past its timeout.
	ErrTimeout = errors.New("command timed out")
)

// CommandError describes a failed tool invocation. It matches
// ErrCommandFailed and the underlying cause with errors.Is.
type CommandError struct {
	Command  string // command line as run, including any sudo prefix
	ExitCode int    // -1 when the process did not exit normally
	Output   string // stderr, or stdout when stderr was empty
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Command, e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += fmt.Sprintf(" (output: %s)", out)
	}
	return msg
}

// Unwrap exposes both the sentinel and the cause.
func (e *CommandError) Unwrap() []error {
	return []error{ErrCommandFailed, e.Err}
}
