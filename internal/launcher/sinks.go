package launcher

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/nerrad567/pvrun/internal/history"
	"github.com/nerrad567/pvrun/internal/infrastructure/config"
	"github.com/nerrad567/pvrun/internal/infrastructure/database"
	"github.com/nerrad567/pvrun/internal/infrastructure/influxdb"
	"github.com/nerrad567/pvrun/internal/infrastructure/mqtt"
	"github.com/nerrad567/pvrun/migrations"
)

// sinkTimeout bounds each history write.
const sinkTimeout = 5 * time.Second

// OpenRecorders connects every enabled sink. A sink that cannot be opened
// is logged and left out.
func OpenRecorders(ctx context.Context, cfg *config.Config, logger Logger) Recorders {
	var rs Recorders

	if cfg.History.Enabled {
		if r, err := OpenHistory(ctx, cfg.History, logger); err != nil {
			logger.Warn("run history disabled", "error", err)
		} else {
			rs = append(rs, r)
		}
	}

	if cfg.MQTT.Enabled {
		client, err := mqtt.Connect(cfg.MQTT)
		if err != nil {
			logger.Warn("MQTT events disabled", "error", err)
		} else {
			client.SetLogger(logger)
			rs = append(rs, NewEventRecorder(client, logger))
		}
	}

	if cfg.InfluxDB.Enabled {
		client, err := influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			logger.Warn("InfluxDB metrics disabled", "error", err)
		} else {
			client.SetOnError(func(err error) {
				logger.Warn("InfluxDB write failed", "error", err)
			})
			logger.Info("InfluxDB metrics enabled", "url", cfg.InfluxDB.URL, "flush_interval", cfg.GetFlushInterval())
			rs = append(rs, NewMetricsRecorder(client, hostname()))
		}
	}

	return rs
}

// HistoryRecorder stores runs and their steps in the SQLite run history.
type HistoryRecorder struct {
	db     *database.DB
	repo   history.Repository
	logger Logger

	mu   sync.Mutex
	rec  *history.Recorder
	run  *history.Run
	skip bool
}

// OpenHistory opens and migrates the history database.
func OpenHistory(ctx context.Context, cfg config.HistoryConfig, logger Logger) (*HistoryRecorder, error) {
	db, err := OpenHistoryDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	r := NewHistoryRecorder(history.NewSQLiteRepository(db.DB), logger)
	r.db = db
	return r, nil
}

// OpenHistoryDB opens the history database and applies pending migrations.
func OpenHistoryDB(ctx context.Context, cfg config.HistoryConfig) (*database.DB, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, err
	}
	return db, nil
}

// OpenHistoryReader opens the history database read-only for listing. It
// returns an error matching database.ErrNotFound when no run was ever
// recorded.
func OpenHistoryReader(ctx context.Context, cfg config.HistoryConfig) (*database.DB, error) {
	return database.Open(ctx, database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
		ReadOnly:    true,
	})
}

// NewHistoryRecorder records into repo.
func NewHistoryRecorder(repo history.Repository, logger Logger) *HistoryRecorder {
	return &HistoryRecorder{repo: repo, logger: logger, rec: history.NewRecorder()}
}

func (h *HistoryRecorder) RunStarted(ctx context.Context, run *RunInfo) {
	hr := &history.Run{
		ID:            run.ID,
		App:           run.App,
		Args:          run.Args,
		ConfigPath:    run.ConfigPath,
		HugepageBytes: run.HugepageBytes,
		Devices:       pciAddresses(run.Devices),
		DryRun:        run.DryRun,
		StartedAt:     run.StartedAt,
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.run = hr
	h.rec = history.NewRecorder()
	if err := h.repo.Create(ctx, hr); err != nil {
		h.skip = true
		h.logger.Warn("recording run start failed", "error", err)
	}
}

func (h *HistoryRecorder) RunFinished(ctx context.Context, run *RunInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.run == nil || h.skip {
		return
	}

	finished := run.FinishedAt
	h.run.FinishedAt = &finished
	h.run.HugepageBytes = run.HugepageBytes
	if run.Launched || run.Err != nil {
		code := run.ExitCode
		h.run.ExitCode = &code
	}
	if run.Err != nil {
		h.run.Error = run.Err.Error()
	}
	h.run.ReleaseErrors = len(run.ReleaseErrors)
	h.run.Steps = h.rec.Steps()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()
	if err := h.repo.Finish(ctx, h.run); err != nil {
		h.logger.Warn("recording run result failed", "error", err)
	}
}

func (h *HistoryRecorder) StepAcquired(name string, elapsed time.Duration) {
	h.recorder().StepAcquired(name, elapsed)
}

func (h *HistoryRecorder) StepFailed(name string, elapsed time.Duration, err error) {
	h.recorder().StepFailed(name, elapsed, err)
}

func (h *HistoryRecorder) StepReleased(name string, elapsed time.Duration, err error) {
	h.recorder().StepReleased(name, elapsed, err)
}

func (h *HistoryRecorder) recorder() *history.Recorder {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rec
}

// Close closes the database when the recorder opened it.
func (h *HistoryRecorder) Close() error {
	if h.db == nil {
		return nil
	}
	return h.db.Close()
}

// Event types published on the MQTT events topic.
const (
	EventRunStarted   = "run.started"
	EventStepAcquired = "step.acquired"
	EventStepFailed   = "step.failed"
	EventStepReleased = "step.released"
	EventRunFinished  = "run.finished"
)

// Event is the JSON payload of a lifecycle event.
type Event struct {
	Type      string    `json:"type"`
	RunID     string    `json:"run_id"`
	App       string    `json:"app"`
	Step      string    `json:"step,omitempty"`
	ElapsedUS int64     `json:"elapsed_us,omitempty"`
	ExitCode  *int      `json:"exit_code,omitempty"`
	Error     string    `json:"error,omitempty"`
	Devices   []string  `json:"devices,omitempty"`
	Hugepages int64     `json:"hugepage_bytes,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventPublisher is the part of the MQTT client used for events.
type EventPublisher interface {
	PublishEvent(v any) error
	Close() error
}

// EventRecorder publishes lifecycle events.
type EventRecorder struct {
	pub    EventPublisher
	logger Logger

	mu    sync.Mutex
	runID string
	app   string
}

// NewEventRecorder publishes through pub.
func NewEventRecorder(pub EventPublisher, logger Logger) *EventRecorder {
	return &EventRecorder{pub: pub, logger: logger}
}

func (e *EventRecorder) RunStarted(_ context.Context, run *RunInfo) {
	e.mu.Lock()
	e.runID, e.app = run.ID, run.App
	e.mu.Unlock()

	e.publish(Event{
		Type:      EventRunStarted,
		Devices:   pciAddresses(run.Devices),
		Hugepages: run.HugepageBytes,
	})
}

func (e *EventRecorder) RunFinished(_ context.Context, run *RunInfo) {
	ev := Event{Type: EventRunFinished}
	if run.Launched || run.Err != nil {
		code := run.ExitCode
		ev.ExitCode = &code
	}
	if run.Err != nil {
		ev.Error = run.Err.Error()
	}
	e.publish(ev)
}

func (e *EventRecorder) StepAcquired(name string, elapsed time.Duration) {
	e.publish(Event{Type: EventStepAcquired, Step: name, ElapsedUS: elapsed.Microseconds()})
}

func (e *EventRecorder) StepFailed(name string, elapsed time.Duration, err error) {
	e.publish(Event{Type: EventStepFailed, Step: name, ElapsedUS: elapsed.Microseconds(), Error: err.Error()})
}

func (e *EventRecorder) StepReleased(name string, elapsed time.Duration, err error) {
	ev := Event{Type: EventStepReleased, Step: name, ElapsedUS: elapsed.Microseconds()}
	if err != nil {
		ev.Error = err.Error()
	}
	e.publish(ev)
}

func (e *EventRecorder) publish(ev Event) {
	e.mu.Lock()
	ev.RunID, ev.App = e.runID, e.app
	e.mu.Unlock()
	ev.Timestamp = time.Now().UTC()

	if err := e.pub.PublishEvent(ev); err != nil {
		e.logger.Warn("publishing event failed", "type", ev.Type, "error", err)
	}
}

// Close disconnects from the broker.
func (e *EventRecorder) Close() error {
	return e.pub.Close()
}

// MetricsWriter is the part of the InfluxDB client used for metrics.
type MetricsWriter interface {
	WriteRun(m influxdb.RunMetric)
	WriteStep(m influxdb.StepMetric)
	Close() error
}

// MetricsRecorder writes run and step metrics.
type MetricsRecorder struct {
	w    MetricsWriter
	host string

	mu  sync.Mutex
	app string
}

// NewMetricsRecorder writes through w, tagging points with host.
func NewMetricsRecorder(w MetricsWriter, host string) *MetricsRecorder {
	return &MetricsRecorder{w: w, host: host}
}

func (m *MetricsRecorder) RunStarted(_ context.Context, run *RunInfo) {
	m.mu.Lock()
	m.app = run.App
	m.mu.Unlock()
}

func (m *MetricsRecorder) RunFinished(_ context.Context, run *RunInfo) {
	m.w.WriteRun(influxdb.RunMetric{
		App:           run.App,
		Host:          m.host,
		ExitCode:      run.ExitCode,
		Failed:        !run.Launched,
		HugepageBytes: run.HugepageBytes,
		Devices:       len(run.Devices),
		ReleaseErrors: len(run.ReleaseErrors),
		Duration:      run.FinishedAt.Sub(run.StartedAt),
		At:            run.FinishedAt,
	})
}

func (m *MetricsRecorder) StepAcquired(name string, elapsed time.Duration) {
	m.step(name, history.PhaseAcquire, elapsed, true)
}

func (m *MetricsRecorder) StepFailed(name string, elapsed time.Duration, _ error) {
	m.step(name, history.PhaseAcquire, elapsed, false)
}

func (m *MetricsRecorder) StepReleased(name string, elapsed time.Duration, err error) {
	m.step(name, history.PhaseRelease, elapsed, err == nil)
}

func (m *MetricsRecorder) step(name, phase string, elapsed time.Duration, ok bool) {
	m.mu.Lock()
	app := m.app
	m.mu.Unlock()

	m.w.WriteStep(influxdb.StepMetric{
		App:     app,
		Host:    m.host,
		Step:    name,
		Phase:   phase,
		OK:      ok,
		Elapsed: elapsed,
	})
}

// Close flushes buffered points.
func (m *MetricsRecorder) Close() error {
	return m.w.Close()
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
