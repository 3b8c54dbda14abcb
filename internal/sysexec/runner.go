// Package sysexec runs the privileged host tools the launcher depends on.
//
// Every invocation goes through a Runner so that tests can replace the host
// with a recording fake, and so that all tools share one timeout and one
// optional sudo prefix.
package sysexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds a single tool invocation.
const DefaultTimeout = 60 * time.Second

// Runner runs a host command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// Logger defines the logging interface used by ExecRunner.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures an ExecRunner.
type Options struct {
	// Sudo prefixes every command with "sudo -n".
	Sudo bool

	// Timeout per invocation. Zero means DefaultTimeout.
	Timeout time.Duration
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	opts   Options
	logger Logger
}

// NewExecRunner creates a runner.
func NewExecRunner(opts Options) *ExecRunner {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &ExecRunner{opts: opts, logger: noopLogger{}}
}

// SetLogger sets the logger for the runner.
func (r *ExecRunner) SetLogger(logger Logger) {
	r.logger = logger
}

// Run executes name with args and waits for it to finish.
//
// A non-zero exit, a start failure, a timeout or cancellation of ctx all
// return a *CommandError carrying the tool's output.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	argv := append([]string{name}, args...)
	if r.opts.Sudo {
		argv = append([]string{"sudo", "-n"}, argv...)
	}
	cmdline := strings.Join(argv, " ")

	runCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...) //nolint:gosec // tool paths come from launcher settings
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("running host tool", "command", cmdline)
	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err == nil {
		r.logger.Debug("host tool finished", "command", cmdline, "duration", elapsed)
		return stdout.String(), nil
	}

	cmdErr := &CommandError{Command: cmdline, ExitCode: -1, Output: stderr.String(), Err: err}
	if cmdErr.Output == "" {
		cmdErr.Output = stdout.String()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		cmdErr.ExitCode = exitErr.ExitCode()
	}
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		cmdErr.Err = fmt.Errorf("%w after %v", ErrTimeout, r.opts.Timeout)
	case ctx.Err() != nil:
		cmdErr.Err = fmt.Errorf("cancelled: %w", ctx.Err())
	}

	r.logger.Debug("host tool failed", "command", cmdline, "exit_code", cmdErr.ExitCode, "duration", elapsed)
	return stdout.String(), cmdErr
}
