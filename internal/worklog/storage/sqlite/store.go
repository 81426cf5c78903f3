// Package sqlite provides SQLite-backed implementations of the work-log
// storage interfaces. The journal and the projections live in separate
// database files so a projection rebuild can never touch the source of truth.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/openclock/worklog/internal/platform/storage/sqlitemigrate"
	"github.com/openclock/worklog/internal/worklog/storage"
	"github.com/openclock/worklog/internal/worklog/storage/sqlite/migrations"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis reverses toMillis for persisted millisecond timestamps.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store provides a SQLite-backed store implementing the storage interfaces.
// An events store and a projections store are distinct *Store values opened
// against different files and migration sets.
type Store struct {
	sqlDB *sql.DB
	// tx is set on transaction-scoped clones produced by withTx. When set,
	// statements run against the transaction instead of the database handle.
	tx *sql.Tx

	outboxEnabled bool
}

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) q() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.sqlDB
}

func (s *Store) withTx(tx *sql.Tx) *Store {
	if s == nil || tx == nil {
		return s
	}
	cloned := *s
	cloned.tx = tx
	return &cloned
}

// OpenEventsOption configures event-store behavior.
type OpenEventsOption func(*Store)

// WithOutboxEnabled toggles enqueueing projection-apply work for appended
// events. Tests that drive projections directly keep it off.
func WithOutboxEnabled(enabled bool) OpenEventsOption {
	return func(s *Store) {
		s.outboxEnabled = enabled
	}
}

// OpenEvents opens a SQLite event journal store at the provided path.
func OpenEvents(path string, opts ...OpenEventsOption) (*Store, error) {
	store, err := openStore(path, migrations.EventsFS, "events")
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

// OpenProjections opens a SQLite projections store at the provided path.
func OpenProjections(path string) (*Store, error) {
	return openStore(path, migrations.ProjectionsFS, "projections")
}

// Close closes the underlying SQLite database.
//
// Close is intentionally nil-safe so callers can defer it in all startup paths.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// openStore boots a SQLite bundle for a domain purpose (events/projections)
// and applies embedded migrations before the store is handed to higher layers.
func openStore(path string, migrationFS fs.FS, migrationRoot string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	// _txlock=immediate takes the write lock at BEGIN so concurrent writers
	// queue on busy_timeout instead of deadlocking on lock upgrade.
	dsn := cleanPath + "?_txlock=immediate" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(ON)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrationFS, migrationRoot); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{sqlDB: sqlDB}, nil
}

// InTx runs fn against a transaction-scoped view of the store. The
// transaction commits when fn returns nil and rolls back otherwise.
func (s *Store) InTx(ctx context.Context, fn func(storage.ProjectionStore) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if fn == nil {
		return fmt.Errorf("transaction callback is required")
	}
	if s.tx != nil {
		// Already inside a transaction; nested callers share it.
		return fn(s)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(s.withTx(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isSQLiteBusyError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}

// busyAsConflict maps a busy/locked failure from a lost write race to the
// version-conflict sentinel so the engine reloads and retries instead of
// surfacing a storage failure.
func busyAsConflict(err error) error {
	if isSQLiteBusyError(err) {
		return fmt.Errorf("%v: %w", err, storage.ErrVersionConflict)
	}
	return err
}
