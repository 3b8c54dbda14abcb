// Package lock keeps two launchers from preparing the same host at once.
//
// The lock is a PID file created with O_EXCL. A file left behind by a
// launcher that has exited is detected and replaced.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Default lock locations.
const (
	DefaultPath = "/var/run/pvrun.lock"

	// fileMode is the permission mode for the lock file.
	fileMode = 0o600

	// maxRetries bounds stale-file replacement attempts.
	maxRetries = 3
)

// ErrLocked is returned when another live launcher holds the lock.
var ErrLocked = errors.New("lock: another launcher is running")

// Logger defines the logging interface used by the lock.
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

// Lock is a held lock file.
type Lock struct {
	path   string
	logger Logger
}

// Options configures Acquire.
type Options struct {
	// Path of the lock file. Empty means DefaultPath, falling back to the
	// temp directory when its directory is not writable.
	Path string

	Logger Logger
}

// Acquire takes the lock for the current process.
func Acquire(opts Options) (*Lock, error) {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	path := opts.Path
	if path == "" {
		path = defaultPath()
	}

	l := &Lock{path: path, logger: logger}
	if err := l.acquire(os.Getpid(), 0); err != nil {
		return nil, err
	}
	return l, nil
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// Release removes the lock file. Releasing twice is harmless.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing lock file %s: %w", l.path, err)
	}
	l.logger.Debug("released lock", "path", l.path)
	return nil
}

// defaultPath prefers /var/run and falls back to the temp directory when
// /var/run cannot be written, e.g. when running unprivileged for a dry run.
func defaultPath() string {
	if unix.Access(filepath.Dir(DefaultPath), unix.W_OK) == nil {
		return DefaultPath
	}
	return filepath.Join(os.TempDir(), filepath.Base(DefaultPath))
}

func (l *Lock) acquire(pid, attempt int) error {
	if attempt >= maxRetries {
		return fmt.Errorf("acquiring lock file %s: gave up after %d attempts", l.path, maxRetries)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, fileMode)
	if err == nil {
		defer f.Close() //nolint:errcheck // Content already written or file removed
		if _, writeErr := fmt.Fprintf(f, "%d\n", pid); writeErr != nil {
			os.Remove(l.path) //nolint:errcheck // Best effort cleanup on error path
			return fmt.Errorf("writing lock file: %w", writeErr)
		}
		l.logger.Debug("acquired lock", "path", l.path, "pid", pid)
		return nil
	}
	if !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("creating lock file %s: %w", l.path, err)
	}

	data, readErr := os.ReadFile(l.path)
	if readErr != nil {
		os.Remove(l.path) //nolint:errcheck // Retry handles a remaining file
		return l.acquire(pid, attempt+1)
	}

	content := strings.TrimSpace(string(data))
	holder, parseErr := strconv.Atoi(content)
	if parseErr != nil || holder <= 0 {
		l.logger.Warn("removing invalid lock file", "path", l.path, "content", content)
		os.Remove(l.path) //nolint:errcheck // Retry handles a remaining file
		return l.acquire(pid, attempt+1)
	}

	if holder != pid && !isLauncherAlive(holder) {
		l.logger.Info("removing stale lock file", "path", l.path, "stale_pid", holder)
		os.Remove(l.path) //nolint:errcheck // Retry handles a remaining file
		return l.acquire(pid, attempt+1)
	}

	return fmt.Errorf("%w (PID %d, file %s)", ErrLocked, holder, l.path)
}

// isLauncherAlive reports whether pid is a running process with the same
// command name as this one.
func isLauncherAlive(pid int) bool {
	if err := unix.Kill(pid, 0); err != nil && !errors.Is(err, unix.EPERM) {
		return false
	}

	theirs, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid))
	if err != nil {
		// Alive but unverifiable, keep the lock.
		return true
	}
	ours, err := os.ReadFile("/proc/self/comm")
	if err != nil {
		return true
	}
	return strings.TrimSpace(string(theirs)) == strings.TrimSpace(string(ours))
}
