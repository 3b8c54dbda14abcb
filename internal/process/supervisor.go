package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Status represents the state of the supervised child.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusExited  Status = "exited"
	StatusFailed  Status = "failed"
)

// ExitCodeStartFailure is returned by Run when the child cannot be started.
const ExitCodeStartFailure = 1

// ErrStart is returned when the child could not be started.
var ErrStart = errors.New("process: start failed")

// Config describes the child to run.
type Config struct {
	// Name is a human-readable identifier for logging.
	Name string

	// Binary is the path to the executable.
	Binary string

	// Args are command-line arguments to pass to the binary.
	Args []string

	// Env are additional environment variables (key=value format),
	// appended to the launcher's own environment.
	Env []string

	// WorkDir is the working directory for the child.
	// If empty, inherits from the launcher.
	WorkDir string

	// Stdin, Stdout and Stderr default to the launcher's own streams.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Logger defines the logging interface for the supervisor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Stats is a snapshot of the supervised child.
type Stats struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	PID       int           `json:"pid,omitempty"`
	ExitCode  int           `json:"exit_code"`
	Forwarded int           `json:"forwarded_signals"`
	Runtime   time.Duration `json:"runtime"`
}

// Supervisor runs one child to completion.
type Supervisor struct {
	config  Config
	logger  Logger
	signals SignalNotifier

	forwarded atomic.Int64

	mu        sync.RWMutex
	status    Status
	pid       int
	exitCode  int
	startTime time.Time
	endTime   time.Time
}

// NewSupervisor creates a supervisor that listens for real interrupts.
func NewSupervisor(cfg Config) *Supervisor {
	return &Supervisor{
		config:  cfg,
		logger:  noopLogger{},
		signals: OSSignals{},
		status:  StatusIdle,
	}
}

// SetLogger sets the logger for the supervisor.
func (s *Supervisor) SetLogger(logger Logger) {
	s.logger = logger
}

// SetSignalNotifier replaces the source of interrupt signals.
func (s *Supervisor) SetSignalNotifier(n SignalNotifier) {
	s.signals = n
}

// Run starts the child and blocks until it exits, however long that takes.
//
// While the child runs, every SIGINT received by the launcher is forwarded
// to it; the launcher itself is not interrupted. Cancelling ctx counts as
// one interrupt. The handler is removed when the child exits.
//
// The returned code is the child's exit status, or 128+N when it was
// killed by signal N. A child that cannot be started returns
// ExitCodeStartFailure and an error wrapping ErrStart.
func (s *Supervisor) Run(ctx context.Context) (int, error) {
	cmd := exec.Command(s.config.Binary, s.config.Args...) //nolint:gosec // Binary is the operator's application

	// New process group: terminal interrupts reach the child only through us.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Env = append(os.Environ(), s.config.Env...)
	if s.config.WorkDir != "" {
		cmd.Dir = s.config.WorkDir
	}
	cmd.Stdin = orReader(s.config.Stdin, os.Stdin)
	cmd.Stdout = orWriter(s.config.Stdout, os.Stdout)
	cmd.Stderr = orWriter(s.config.Stderr, os.Stderr)

	sigCh := make(chan os.Signal, 8)
	s.signals.Notify(sigCh, os.Interrupt)
	defer s.signals.Stop(sigCh)

	s.logger.Info("starting process",
		"name", s.config.Name,
		"binary", s.config.Binary,
		"args", s.config.Args,
	)

	if err := cmd.Start(); err != nil {
		s.setFinished(StatusFailed, ExitCodeStartFailure)
		return ExitCodeStartFailure, fmt.Errorf("%w: %s: %w", ErrStart, s.config.Binary, err)
	}

	s.mu.Lock()
	s.status = StatusRunning
	s.pid = cmd.Process.Pid
	s.startTime = time.Now()
	s.mu.Unlock()

	s.logger.Info("process started", "name", s.config.Name, "pid", cmd.Process.Pid)

	exited := make(chan struct{})
	forwarderDone := make(chan struct{})
	go func() {
		defer close(forwarderDone)
		s.forward(ctx, cmd.Process, sigCh, exited)
	}()

	waitErr := cmd.Wait()
	close(exited)
	<-forwarderDone

	code, err := exitStatus(cmd.ProcessState, waitErr)
	s.setFinished(StatusExited, code)

	s.logger.Info("process exited",
		"name", s.config.Name,
		"exit_code", code,
		"forwarded_signals", s.forwarded.Load(),
		"runtime", s.Runtime(),
	)
	return code, err
}

// forward relays interrupts until the child has been reaped. It is the
// only code that touches the child while it runs.
func (s *Supervisor) forward(ctx context.Context, proc *os.Process, sigCh <-chan os.Signal, exited <-chan struct{}) {
	cancelled := ctx.Done()
	for {
		select {
		case sig := <-sigCh:
			s.send(proc, sig)
		case <-cancelled:
			cancelled = nil
			s.send(proc, os.Interrupt)
		case <-exited:
			return
		}
	}
}

func (s *Supervisor) send(proc *os.Process, sig os.Signal) {
	if err := proc.Signal(sig); err != nil {
		s.logger.Debug("forwarding signal failed", "name", s.config.Name, "signal", sig, "error", err)
		return
	}
	n := s.forwarded.Add(1)
	s.logger.Info("forwarded signal to process", "name", s.config.Name, "signal", sig, "count", n)
}

func (s *Supervisor) setFinished(status Status, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.exitCode = code
	s.endTime = time.Now()
}

// exitStatus converts the wait result into a shell-style exit code.
func exitStatus(state *os.ProcessState, waitErr error) (int, error) {
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		// Wait failed for a reason other than the exit status, e.g. copying
		// output. The state still holds the real status when available.
		if state == nil {
			return ExitCodeStartFailure, fmt.Errorf("waiting for process: %w", waitErr)
		}
		code, _ := exitStatus(state, nil)
		return code, fmt.Errorf("waiting for process: %w", waitErr)
	}

	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal()), nil
	}
	return state.ExitCode(), nil
}

// Status returns the current state of the child.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// PID returns the child's process ID, or 0 before it started.
func (s *Supervisor) PID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pid
}

// Forwarded returns how many signals were delivered to the child.
func (s *Supervisor) Forwarded() int {
	return int(s.forwarded.Load())
}

// Runtime returns how long the child ran, or has been running.
func (s *Supervisor) Runtime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case s.startTime.IsZero():
		return 0
	case s.endTime.IsZero():
		return time.Since(s.startTime)
	default:
		return s.endTime.Sub(s.startTime)
	}
}

// Stats returns a snapshot of the child's state.
func (s *Supervisor) Stats() Stats {
	runtime := s.Runtime()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Name:      s.config.Name,
		Status:    s.status,
		PID:       s.pid,
		ExitCode:  s.exitCode,
		Forwarded: int(s.forwarded.Load()),
		Runtime:   runtime,
	}
}

func orReader(r, fallback io.Reader) io.Reader {
	if r != nil {
		return r
	}
	return fallback
}

func orWriter(w, fallback io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return fallback
}
