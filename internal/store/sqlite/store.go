// Package sqlite implements the store.Store interface backed by SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/alfredjeanlab/nari/internal/model"
	"github.com/alfredjeanlab/nari/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements store.Store backed by a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// Compile-time check that SQLiteStore implements store.Store.
var _ store.Store = (*SQLiteStore)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the SQLite database at path and applies embedded migrations.
// Transactions take the write lock up front, and the pool is limited to one
// connection so that writers queue instead of failing with SQLITE_BUSY.
func Open(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks that the database handle is usable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) GetBadge(ctx context.Context, memberID string) (*model.BadgeRecord, error) {
	return queryGetBadge(ctx, s.db, memberID)
}

func (s *SQLiteStore) CreateBadge(ctx context.Context, rec *model.BadgeRecord) error {
	return queryCreateBadge(ctx, s.db, rec)
}

func (s *SQLiteStore) DeleteBadge(ctx context.Context, memberID string) error {
	return queryDeleteBadge(ctx, s.db, memberID)
}

func (s *SQLiteStore) ListBadges(ctx context.Context) ([]*model.BadgeRecord, error) {
	return queryListBadges(ctx, s.db)
}

func (s *SQLiteStore) GetCounter(ctx context.Context) (int64, error) {
	return queryGetCounter(ctx, s.db)
}

func (s *SQLiteStore) IncrementCounter(ctx context.Context) (int64, error) {
	return queryIncrementCounter(ctx, s.db)
}

func (s *SQLiteStore) SetCounter(ctx context.Context, value int64) error {
	return querySetCounter(ctx, s.db, value)
}

func (s *SQLiteStore) RecordEvent(ctx context.Context, event *model.Event) error {
	return queryRecordEvent(ctx, s.db, event)
}

func (s *SQLiteStore) GetEvents(ctx context.Context, memberID string) ([]*model.Event, error) {
	return queryGetEvents(ctx, s.db, memberID)
}

func (s *SQLiteStore) ListEvents(ctx context.Context, limit int) ([]*model.Event, error) {
	return queryListEvents(ctx, s.db, limit)
}

// RunInTransaction begins an immediate transaction, calls fn with a store
// bound to it, and commits on success or rolls back on error.
func (s *SQLiteStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&txStore{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore implements store.Store using a *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

var _ store.Store = (*txStore)(nil)

func (s *txStore) GetBadge(ctx context.Context, memberID string) (*model.BadgeRecord, error) {
	return queryGetBadge(ctx, s.tx, memberID)
}

func (s *txStore) CreateBadge(ctx context.Context, rec *model.BadgeRecord) error {
	return queryCreateBadge(ctx, s.tx, rec)
}

func (s *txStore) DeleteBadge(ctx context.Context, memberID string) error {
	return queryDeleteBadge(ctx, s.tx, memberID)
}

func (s *txStore) ListBadges(ctx context.Context) ([]*model.BadgeRecord, error) {
	return queryListBadges(ctx, s.tx)
}

func (s *txStore) GetCounter(ctx context.Context) (int64, error) {
	return queryGetCounter(ctx, s.tx)
}

func (s *txStore) IncrementCounter(ctx context.Context) (int64, error) {
	return queryIncrementCounter(ctx, s.tx)
}

func (s *txStore) SetCounter(ctx context.Context, value int64) error {
	return querySetCounter(ctx, s.tx, value)
}

func (s *txStore) RecordEvent(ctx context.Context, event *model.Event) error {
	return queryRecordEvent(ctx, s.tx, event)
}

func (s *txStore) GetEvents(ctx context.Context, memberID string) ([]*model.Event, error) {
	return queryGetEvents(ctx, s.tx, memberID)
}

func (s *txStore) ListEvents(ctx context.Context, limit int) ([]*model.Event, error) {
	return queryListEvents(ctx, s.tx, limit)
}

// RunInTransaction on a txStore reuses the existing transaction.
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

func (s *txStore) Ping(context.Context) error { return nil }

// Close is a no-op; the parent store owns the connection.
func (s *txStore) Close() error { return nil }
