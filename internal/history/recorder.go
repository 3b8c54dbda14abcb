package history

import (
	"sync"
	"time"
)

// Recorder collects lifecycle step transitions in memory so they can be
// stored with the run once it finishes. It satisfies lifecycle.Observer.
type Recorder struct {
	mu    sync.Mutex
	now   func() time.Time
	steps []Step
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{now: func() time.Time { return time.Now().UTC() }}
}

func (r *Recorder) StepAcquired(name string, elapsed time.Duration) {
	r.add(name, PhaseAcquire, elapsed, nil)
}

func (r *Recorder) StepFailed(name string, elapsed time.Duration, err error) {
	r.add(name, PhaseAcquire, elapsed, err)
}

func (r *Recorder) StepReleased(name string, elapsed time.Duration, err error) {
	r.add(name, PhaseRelease, elapsed, err)
}

func (r *Recorder) add(name, phase string, elapsed time.Duration, err error) {
	s := Step{Name: name, Phase: phase, OK: err == nil, Elapsed: elapsed}
	if err != nil {
		s.Error = err.Error()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	s.At = r.now()
	r.steps = append(r.steps, s)
}

// Steps returns a copy of the recorded steps in arrival order.
func (r *Recorder) Steps() []Step {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Step(nil), r.steps...)
}
