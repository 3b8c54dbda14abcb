package lifecycle

import (
	"context"
	"time"
)

// Logger defines the logging interface used by the Manager.
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

// Observer is notified of every step transition. Implementations must not
// block; they are called inline.
type Observer interface {
	StepAcquired(name string, elapsed time.Duration)
	StepFailed(name string, elapsed time.Duration, err error)
	StepReleased(name string, elapsed time.Duration, err error)
}

type noopObserver struct{}

func (noopObserver) StepAcquired(string, time.Duration)        {}
func (noopObserver) StepFailed(string, time.Duration, error)   {}
func (noopObserver) StepReleased(string, time.Duration, error) {}

// Step is one resource acquisition. Acquire returns the action that undoes
// it, or nil when the step leaves nothing to undo.
type Step struct {
	Name    string
	Acquire func(ctx context.Context) (ReleaseFunc, error)
}

// Manager runs acquisition sequences.
type Manager struct {
	logger   Logger
	observer Observer
}

// NewManager creates a manager with no logging and no observer.
func NewManager() *Manager {
	return &Manager{logger: noopLogger{}, observer: noopObserver{}}
}

// SetLogger sets the logger used for the manager and its stacks.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// SetObserver sets the observer notified of step transitions.
func (m *Manager) SetObserver(observer Observer) {
	m.observer = observer
}

// Acquire runs steps in order.
//
// On success the returned Stack holds one release action per step that
// registered one, and the caller must Release it. On failure the steps
// acquired so far have already been released in reverse order, using a
// context that ignores cancellation of ctx, and the error is an
// *AcquireError.
func (m *Manager) Acquire(ctx context.Context, steps []Step) (*Stack, error) {
	stack := &Stack{logger: m.logger, observer: m.observer}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, m.rollback(ctx, stack, step.Name, err)
		}

		m.logger.Info("acquiring", "step", step.Name)
		start := time.Now()
		release, err := step.Acquire(ctx)
		elapsed := time.Since(start)
		if err != nil {
			m.logger.Error("acquisition failed", "step", step.Name, "error", err)
			m.observer.StepFailed(step.Name, elapsed, err)
			return nil, m.rollback(ctx, stack, step.Name, err)
		}

		m.observer.StepAcquired(step.Name, elapsed)
		if release != nil {
			stack.Push(step.Name, release)
		}
	}
	return stack, nil
}

func (m *Manager) rollback(ctx context.Context, stack *Stack, step string, cause error) error {
	if stack.Len() > 0 {
		m.logger.Warn("rolling back acquired resources", "count", stack.Len())
	}
	failures := stack.Release(context.WithoutCancel(ctx))
	return &AcquireError{Step: step, Err: cause, ReleaseErrors: failures}
}
