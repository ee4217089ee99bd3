// Package cache provides the read-through cache used for badge lookups.
package cache

import (
	"context"

	"github.com/alfredjeanlab/nari/internal/model"
)

// Cache stores badge records by member id. Misses and backend errors look the
// same to callers; the ledger store stays authoritative.
type Cache interface {
	GetBadge(ctx context.Context, memberID string) (*model.BadgeRecord, bool)
	SetBadge(ctx context.Context, rec *model.BadgeRecord)
	Invalidate(ctx context.Context, memberID string) error
	Ping(ctx context.Context) error
	Close() error
}

// Noop is a Cache that never holds anything (used when redis is not configured).
type Noop struct{}

func (Noop) GetBadge(context.Context, string) (*model.BadgeRecord, bool) { return nil, false }
func (Noop) SetBadge(context.Context, *model.BadgeRecord)                {}
func (Noop) Invalidate(context.Context, string) error                    { return nil }
func (Noop) Ping(context.Context) error                                  { return nil }
func (Noop) Close() error                                                { return nil }
