// Package history records launches and the host resource steps taken for
// them in the SQLite run history.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrRunNotFound is returned by Get for an unknown run ID.
var ErrRunNotFound = errors.New("history: run not found")

// Step phases.
const (
	PhaseAcquire = "acquire"
	PhaseRelease = "release"
)

// Run is one launch of an application.
type Run struct {
	ID            string     `json:"id"`
	App           string     `json:"app"`
	Args          []string   `json:"args"`
	ConfigPath    string     `json:"config_path"`
	HugepageBytes int64      `json:"hugepage_bytes"`
	Devices       []string   `json:"devices"`
	DryRun        bool       `json:"dry_run,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	ExitCode      *int       `json:"exit_code,omitempty"`
	Error         string     `json:"error,omitempty"`
	ReleaseErrors int        `json:"release_errors"`
	Steps         []Step     `json:"steps,omitempty"`
}

// Step is one acquisition or release of a host resource.
type Step struct {
	Name    string        `json:"name"`
	Phase   string        `json:"phase"`
	OK      bool          `json:"ok"`
	Error   string        `json:"error,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
	At      time.Time     `json:"at"`
}

// Filter controls which runs List returns.
type Filter struct {
	App    string // optional: exact application path
	Limit  int    // default 20, max 200
	Offset int
}

// ListResult contains a page of runs, most recent first.
type ListResult struct {
	Runs   []Run `json:"runs"`
	Total  int   `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

// Repository defines the run history operations.
type Repository interface {
	Create(ctx context.Context, run *Run) error
	Finish(ctx context.Context, run *Run) error
	Get(ctx context.Context, id string) (*Run, error)
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores runs in the runs and run_steps tables.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new run history repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a started run. The ID and StartedAt are generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	args, err := marshalList(run.Args)
	if err != nil {
		return fmt.Errorf("marshalling run args: %w", err)
	}
	devices, err := marshalList(run.Devices)
	if err != nil {
		return fmt.Errorf("marshalling run devices: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO runs (id, app, args, config_path, hugepage_bytes, devices, dry_run, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.App, args, run.ConfigPath, run.HugepageBytes, devices,
		boolInt(run.DryRun), run.StartedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// Finish records the outcome of a run and its steps in one transaction.
// FinishedAt is set to now if nil.
func (r *SQLiteRepository) Finish(ctx context.Context, run *Run) error {
	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	var exitCode any
	if run.ExitCode != nil {
		exitCode = *run.ExitCode
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE runs SET hugepage_bytes = ?, finished_at = ?, exit_code = ?, error = ?, release_errors = ?
		 WHERE id = ?`,
		run.HugepageBytes, run.FinishedAt.Format(time.RFC3339Nano), exitCode,
		nullableString(run.Error), run.ReleaseErrors, run.ID,
	)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finishing run %s: %w", run.ID, ErrRunNotFound)
	}

	for _, s := range run.Steps {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_steps (run_id, name, phase, ok, error, elapsed_us, at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.ID, s.Name, s.Phase, boolInt(s.OK), nullableString(s.Error),
			s.Elapsed.Microseconds(), s.At.Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("inserting step %s: %w", s.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run: %w", err)
	}
	return nil
}

const runColumns = "id, app, args, config_path, hugepage_bytes, devices, dry_run, started_at, finished_at, exit_code, error, release_errors"

// Get returns a run with its steps in recorded order.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Run, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT name, phase, ok, error, elapsed_us, at FROM run_steps WHERE run_id = ? ORDER BY id", id)
	if err != nil {
		return nil, fmt.Errorf("querying run steps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s Step
		var ok int
		var stepErr sql.NullString
		var elapsedUS int64
		var at string
		if err := rows.Scan(&s.Name, &s.Phase, &ok, &stepErr, &elapsedUS, &at); err != nil {
			return nil, fmt.Errorf("scanning run step: %w", err)
		}
		s.OK = ok != 0
		s.Error = stepErr.String
		s.Elapsed = time.Duration(elapsedUS) * time.Microsecond
		if s.At, err = parseTime(at); err != nil {
			return nil, err
		}
		run.Steps = append(run.Steps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating run steps: %w", err)
	}
	return run, nil
}

// List returns runs matching the filter, most recent first. Steps are not
// loaded.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	if filter.Limit > 200 { //nolint:mnd // max page size
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.App != "" {
		conditions = append(conditions, "app = ?")
		args = append(args, filter.App)
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM runs " + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting runs: %w", err)
	}

	query := "SELECT " + runColumns + " FROM runs " + where + " ORDER BY started_at DESC LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}

	return &ListResult{Runs: runs, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var run Run
	var args, devices, startedAt string
	var dryRun int
	var finishedAt, runErr sql.NullString
	var exitCode sql.NullInt64

	if err := s.Scan(&run.ID, &run.App, &args, &run.ConfigPath, &run.HugepageBytes, &devices,
		&dryRun, &startedAt, &finishedAt, &exitCode, &runErr, &run.ReleaseErrors); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning run: %w", err)
	}

	if err := json.Unmarshal([]byte(args), &run.Args); err != nil {
		return nil, fmt.Errorf("decoding run args: %w", err)
	}
	if err := json.Unmarshal([]byte(devices), &run.Devices); err != nil {
		return nil, fmt.Errorf("decoding run devices: %w", err)
	}
	run.DryRun = dryRun != 0
	run.Error = runErr.String

	var err error
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if finishedAt.Valid {
		t, err := parseTime(finishedAt.String)
		if err != nil {
			return nil, err
		}
		run.FinishedAt = &t
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		run.ExitCode = &code
	}
	return &run, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing run timestamp %q: %w", s, err)
	}
	return t, nil
}

func marshalList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	return string(b), err
}

// nullableString returns nil for empty strings so they are stored as NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
