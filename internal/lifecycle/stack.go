package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ReleaseFunc undoes one acquired resource.
type ReleaseFunc func(ctx context.Context) error

type action struct {
	name string
	fn   ReleaseFunc
}

// Stack is the ordered record of release actions for one run.
//
// Actions run in reverse order of Push, each exactly once, on the first
// call to Release. Later calls return nil and do nothing.
type Stack struct {
	mu       sync.Mutex
	actions  []action
	released bool

	logger   Logger
	observer Observer
}

// NewStack returns an empty stack.
func NewStack() *Stack {
	return &Stack{logger: noopLogger{}, observer: noopObserver{}}
}

// Push records a release action. Pushing onto a released stack runs the
// action immediately so nothing is leaked.
func (s *Stack) Push(name string, fn ReleaseFunc) {
	s.mu.Lock()
	if !s.released {
		s.actions = append(s.actions, action{name: name, fn: fn})
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.logger.Warn("release action pushed after release, running now", "step", name)
	s.run(context.Background(), action{name: name, fn: fn})
}

// Len returns the number of pending release actions.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.actions)
}

// Names returns the pending action names in acquisition order.
func (s *Stack) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, len(s.actions))
	for i, a := range s.actions {
		names[i] = a.name
	}
	return names
}

// Release runs every pending action, newest first, and returns the ones
// that failed. The stack is empty afterwards.
func (s *Stack) Release(ctx context.Context) []*ReleaseError {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return nil
	}
	s.released = true
	actions := s.actions
	s.actions = nil
	s.mu.Unlock()

	var failures []*ReleaseError
	for i := len(actions) - 1; i >= 0; i-- {
		if err := s.run(ctx, actions[i]); err != nil {
			failures = append(failures, err)
		}
	}
	return failures
}

// run executes one action, converting a panic into a ReleaseError so the
// remaining actions still run.
func (s *Stack) run(ctx context.Context, a action) (relErr *ReleaseError) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			relErr = &ReleaseError{Step: a.name, Err: fmt.Errorf("panic: %v", r)}
		}
		var err error
		if relErr != nil {
			err = relErr.Err
			s.logger.Error("release action failed", "step", a.name, "error", err)
		} else {
			s.logger.Info("released", "step", a.name)
		}
		s.observer.StepReleased(a.name, time.Since(start), err)
	}()

	if err := a.fn(ctx); err != nil {
		return &ReleaseError{Step: a.name, Err: err}
	}
	return nil
}
