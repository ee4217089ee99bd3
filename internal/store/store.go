package store

import (
	"context"
	"errors"

	"github.com/alfredjeanlab/nari/internal/model"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when an insert collides with an existing
	// member or badge id.
	ErrAlreadyExists = errors.New("already exists")
)

// Store defines the persistence interface for the badge ledger.
type Store interface {
	// Badge records
	GetBadge(ctx context.Context, memberID string) (*model.BadgeRecord, error)
	CreateBadge(ctx context.Context, rec *model.BadgeRecord) error
	DeleteBadge(ctx context.Context, memberID string) error
	ListBadges(ctx context.Context) ([]*model.BadgeRecord, error)

	// Allocation counter. Inside RunInTransaction, GetCounter holds the
	// counter for the rest of the transaction where the backend supports it.
	GetCounter(ctx context.Context) (int64, error)
	IncrementCounter(ctx context.Context) (int64, error)
	SetCounter(ctx context.Context, value int64) error

	// Audit events
	RecordEvent(ctx context.Context, event *model.Event) error
	GetEvents(ctx context.Context, memberID string) ([]*model.Event, error)
	ListEvents(ctx context.Context, limit int) ([]*model.Event, error)

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}
