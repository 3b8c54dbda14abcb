package launcher

import (
	"context"
	"time"

	"github.com/nerrad567/pvrun/internal/device"
	"github.com/nerrad567/pvrun/internal/lifecycle"
)

// RunInfo describes one launch as it progresses.
type RunInfo struct {
	ID            string
	App           string
	Args          []string
	ConfigPath    string
	DryRun        bool
	Devices       []device.Descriptor
	HugepageBytes int64

	StartedAt  time.Time
	FinishedAt time.Time

	// Launched is true once the child has been started.
	Launched      bool
	ExitCode      int
	Err           error
	ReleaseErrors []*lifecycle.ReleaseError
}

// Recorder observes launches. Step callbacks come from lifecycle.Observer
// and refer to the run most recently passed to RunStarted.
type Recorder interface {
	lifecycle.Observer
	RunStarted(ctx context.Context, run *RunInfo)
	RunFinished(ctx context.Context, run *RunInfo)
	Close() error
}

// Recorders fans every notification out to each member in order.
type Recorders []Recorder

func (rs Recorders) RunStarted(ctx context.Context, run *RunInfo) {
	for _, r := range rs {
		r.RunStarted(ctx, run)
	}
}

func (rs Recorders) RunFinished(ctx context.Context, run *RunInfo) {
	for _, r := range rs {
		r.RunFinished(ctx, run)
	}
}

func (rs Recorders) StepAcquired(name string, elapsed time.Duration) {
	for _, r := range rs {
		r.StepAcquired(name, elapsed)
	}
}

func (rs Recorders) StepFailed(name string, elapsed time.Duration, err error) {
	for _, r := range rs {
		r.StepFailed(name, elapsed, err)
	}
}

func (rs Recorders) StepReleased(name string, elapsed time.Duration, err error) {
	for _, r := range rs {
		r.StepReleased(name, elapsed, err)
	}
}

// Close closes every member and returns the first error.
func (rs Recorders) Close() error {
	var first error
	for _, r := range rs {
		if err := r.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func pciAddresses(devices []device.Descriptor) []string {
	out := make([]string, len(devices))
	for i, d := range devices {
		out[i] = d.PCIAddress
	}
	return out
}
