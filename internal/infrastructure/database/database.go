package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	dirPermissions  = 0750
	filePermissions = 0600

	// pingTimeout bounds the connection check performed by Open.
	pingTimeout = 5 * time.Second
)

// ErrNotFound is returned when a read-only open finds no database file.
var ErrNotFound = errors.New("database: no database file")

// ErrReadOnly is returned by Migrate on a read-only handle.
var ErrReadOnly = errors.New("database: opened read-only")

// DB is the run history database handle. It embeds *sql.DB so the
// repository and migrations use the standard query methods directly.
type DB struct {
	*sql.DB
	path     string
	readOnly bool
}

// Config maps the history section of pvrun.yaml.
type Config struct {
	// Path of the SQLite file. Its directory is created on a writable open.
	Path string

	// WALMode lets "pvrun history" read while a launch is recording.
	WALMode bool

	// BusyTimeout is how long a statement waits for a lock, in seconds.
	BusyTimeout int

	// ReadOnly opens an existing file without creating, migrating or
	// locking it for writes.
	ReadOnly bool
}

// dsn builds the go-sqlite3 connection string.
// See: https://github.com/mattn/go-sqlite3#connection-string
func (c Config) dsn() string {
	q := url.Values{}
	q.Set("_busy_timeout", strconv.Itoa(c.BusyTimeout*1000))
	q.Set("_foreign_keys", "on")
	if c.ReadOnly {
		q.Set("mode", "ro")
		return "file:" + c.Path + "?" + q.Encode()
	}
	// Writers take the lock when the transaction begins, so a run and its
	// steps are stored without a mid-transaction busy upgrade.
	q.Set("_txlock", "immediate")
	if c.WALMode {
		q.Set("_journal_mode", "WAL")
		q.Set("_synchronous", "NORMAL")
	}
	return "file:" + c.Path + "?" + q.Encode()
}

// Open connects to the history database. A writable open creates the
// directory and the file (owner read/write only); a read-only open of a
// missing file returns ErrNotFound.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("opening database: empty path")
	}
	if cfg.ReadOnly {
		if _, err := os.Stat(cfg.Path); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, cfg.Path)
		}
	} else if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite3", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One launch writes one run; a single connection keeps SQLite's
	// per-connection pragmas consistent.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	if !cfg.ReadOnly {
		_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck // File may be created lazily on first write
	}

	return &DB{DB: sqlDB, path: cfg.Path, readOnly: cfg.ReadOnly}, nil
}

// Close closes the connection. Closing a zero DB is a no-op.
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database %s: %w", db.path, err)
	}
	return nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// ReadOnly reports whether the handle was opened read-only.
func (db *DB) ReadOnly() bool {
	return db.readOnly
}

// HealthCheck runs a trivial query.
func (db *DB) HealthCheck(ctx context.Context) error {
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}
