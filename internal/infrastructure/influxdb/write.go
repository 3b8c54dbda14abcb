package influxdb

import (
	"path/filepath"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementRun  = "pvrun_run"
	MeasurementStep = "pvrun_step"
)

// RunMetric summarises one finished launch.
type RunMetric struct {
	App           string
	Host          string
	ExitCode      int
	Failed        bool // setup failed before the application started
	HugepageBytes int64
	Devices       int
	ReleaseErrors int
	Duration      time.Duration
	At            time.Time
}

// StepMetric is the timing of one resource acquisition or release.
type StepMetric struct {
	App     string
	Host    string
	Step    string
	Phase   string
	OK      bool
	Elapsed time.Duration
	At      time.Time
}

// WriteRun records a finished launch. The write is non-blocking.
func (c *Client) WriteRun(m RunMetric) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(runPoint(m))
}

// WriteStep records a lifecycle step. The write is non-blocking.
func (c *Client) WriteStep(m StepMetric) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(stepPoint(m))
}

func runPoint(m RunMetric) *write.Point {
	return write.NewPoint(
		MeasurementRun,
		map[string]string{
			"app":  appTag(m.App),
			"host": m.Host,
		},
		map[string]any{
			"exit_code":      m.ExitCode,
			"failed":         m.Failed,
			"hugepage_bytes": m.HugepageBytes,
			"devices":        m.Devices,
			"release_errors": m.ReleaseErrors,
			"duration_ms":    m.Duration.Milliseconds(),
		},
		orNow(m.At),
	)
}

func stepPoint(m StepMetric) *write.Point {
	return write.NewPoint(
		MeasurementStep,
		map[string]string{
			"app":   appTag(m.App),
			"host":  m.Host,
			"step":  m.Step,
			"phase": m.Phase,
		},
		map[string]any{
			"ok":         m.OK,
			"elapsed_us": m.Elapsed.Microseconds(),
		},
		orNow(m.At),
	)
}

// appTag keeps tag cardinality low by using the binary name only.
func appTag(app string) string {
	if app == "" {
		return "unknown"
	}
	return filepath.Base(app)
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
