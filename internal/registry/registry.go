// Package registry approves and revokes membership badges against the ledger.
//
// Every mutation runs as one store transaction (lookup, allocate, write,
// audit row) under a process-wide mutex. Work that reaches outside the
// ledger, such as granting the verified role, invalidating the lookup cache
// and publishing events, happens after commit and is best-effort: a failure
// there is logged and never undoes the ledger write.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/nari/internal/allocator"
	"github.com/alfredjeanlab/nari/internal/cache"
	"github.com/alfredjeanlab/nari/internal/events"
	"github.com/alfredjeanlab/nari/internal/metrics"
	"github.com/alfredjeanlab/nari/internal/model"
	"github.com/alfredjeanlab/nari/internal/store"
)

// DefaultVerifiedRole is granted to members when their badge is issued.
const DefaultVerifiedRole = "Verified"

// RoleGateway grants and removes roles on the messaging platform.
type RoleGateway interface {
	AddRole(ctx context.Context, memberID, role, reason string) error
	RemoveRole(ctx context.Context, memberID, role, reason string) error
}

// Options configures a Registry. Store and Allocator are required.
type Options struct {
	Store        store.Store
	Allocator    *allocator.Allocator
	Roles        RoleGateway
	VerifiedRole string
	Cache        cache.Cache
	Publisher    events.Publisher
	Logger       *slog.Logger
	Now          func() time.Time
}

// Registry is the registration engine.
type Registry struct {
	mu sync.Mutex

	store        store.Store
	alloc        *allocator.Allocator
	roles        RoleGateway
	verifiedRole string
	cache        cache.Cache
	publisher    events.Publisher
	logger       *slog.Logger
	now          func() time.Time
}

// New returns a Registry. Optional collaborators left nil are replaced with
// no-op implementations.
func New(opts Options) (*Registry, error) {
	if opts.Store == nil {
		return nil, errors.New("registry: store is required")
	}
	if opts.Allocator == nil {
		return nil, errors.New("registry: allocator is required")
	}
	r := &Registry{
		store:        opts.Store,
		alloc:        opts.Allocator,
		roles:        opts.Roles,
		verifiedRole: opts.VerifiedRole,
		cache:        opts.Cache,
		publisher:    opts.Publisher,
		logger:       opts.Logger,
		now:          opts.Now,
	}
	if r.verifiedRole == "" {
		r.verifiedRole = DefaultVerifiedRole
	}
	if r.cache == nil {
		r.cache = cache.Noop{}
	}
	if r.publisher == nil {
		r.publisher = events.Discard{}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r, nil
}

// Prefix returns the badge prefix in use.
func (r *Registry) Prefix() string { return r.alloc.Prefix() }

// VerifiedRole returns the role granted alongside a badge.
func (r *Registry) VerifiedRole() string { return r.verifiedRole }

// Approve issues a badge to memberID. If the member already holds one, the
// existing record is returned together with an *model.AlreadyRegisteredError
// and the ledger is left untouched; the verified role grant is still
// attempted so that a member who lost the role gets it back.
func (r *Registry) Approve(ctx context.Context, memberID, actor string) (*model.BadgeRecord, error) {
	if memberID == "" {
		return nil, errors.New("member id is required")
	}

	var created, existing *model.BadgeRecord
	err := r.locked(func() error {
		return r.store.RunInTransaction(ctx, func(tx store.Store) error {
			rec, err := tx.GetBadge(ctx, memberID)
			if err == nil {
				existing = rec
				return nil
			}
			if !errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("check existing badge: %w", err)
			}

			badgeID, err := r.alloc.Next(ctx, tx)
			if err != nil {
				return err
			}
			rec = &model.BadgeRecord{
				MemberID:     memberID,
				BadgeID:      badgeID,
				RegisteredAt: r.now().UTC().Truncate(time.Millisecond),
			}
			if err := tx.CreateBadge(ctx, rec); err != nil {
				return err
			}
			if err := r.audit(ctx, tx, events.TopicBadgeApproved, memberID, actor, events.BadgeApproved{Record: rec, Actor: actor}); err != nil {
				return err
			}
			created = rec
			return nil
		})
	})

	// Another writer sharing the database won the insert.
	if errors.Is(err, store.ErrAlreadyExists) {
		rec, getErr := r.store.GetBadge(ctx, memberID)
		if getErr != nil {
			return nil, fmt.Errorf("approve %s: %w", memberID, err)
		}
		existing, err = rec, nil
	}
	if err != nil {
		return nil, fmt.Errorf("approve %s: %w", memberID, err)
	}

	r.grantVerified(ctx, memberID)

	if existing != nil {
		r.logger.Info("badge already issued", "member_id", memberID, "badge_id", existing.BadgeID)
		return existing, &model.AlreadyRegisteredError{Record: existing}
	}

	metrics.BadgesIssued.Inc()
	r.invalidate(ctx, memberID)
	r.publish(ctx, events.TopicBadgeApproved, memberID, events.BadgeApproved{Record: created, Actor: actor})
	r.logger.Info("badge issued", "member_id", memberID, "badge_id", created.BadgeID, "actor", actor)
	return created, nil
}

// Revoke deletes memberID's badge and returns the removed record. The badge
// number is not reused. Returns model.ErrNotRegistered, with no side
// effects, when the member holds no badge.
func (r *Registry) Revoke(ctx context.Context, memberID, actor string) (*model.BadgeRecord, error) {
	if memberID == "" {
		return nil, errors.New("member id is required")
	}

	var removed *model.BadgeRecord
	err := r.locked(func() error {
		return r.store.RunInTransaction(ctx, func(tx store.Store) error {
			rec, err := tx.GetBadge(ctx, memberID)
			if errors.Is(err, store.ErrNotFound) {
				return model.ErrNotRegistered
			}
			if err != nil {
				return fmt.Errorf("load badge: %w", err)
			}
			if err := tx.DeleteBadge(ctx, memberID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return model.ErrNotRegistered
				}
				return err
			}
			if err := r.audit(ctx, tx, events.TopicBadgeRevoked, memberID, actor, events.BadgeRevoked{Record: rec, Actor: actor}); err != nil {
				return err
			}
			removed = rec
			return nil
		})
	})
	if errors.Is(err, model.ErrNotRegistered) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("revoke %s: %w", memberID, err)
	}

	metrics.BadgesRevoked.Inc()
	if r.roles != nil {
		if err := r.roles.RemoveRole(ctx, memberID, r.verifiedRole, "badge revoked"); err != nil {
			r.logger.Warn("failed to remove verified role", "member_id", memberID, "role", r.verifiedRole, "err", err)
		}
	}
	r.invalidate(ctx, memberID)
	r.publish(ctx, events.TopicBadgeRevoked, memberID, events.BadgeRevoked{Record: removed, Actor: actor})
	r.logger.Info("badge revoked", "member_id", memberID, "badge_id", removed.BadgeID, "actor", actor)
	return removed, nil
}

// Lookup returns memberID's badge, or model.ErrNotRegistered. It performs
// no authorization; any caller may look up any member.
func (r *Registry) Lookup(ctx context.Context, memberID string) (*model.BadgeRecord, error) {
	if rec, ok := r.cache.GetBadge(ctx, memberID); ok {
		metrics.CacheOperations.WithLabelValues(metrics.ResultHit).Inc()
		return rec, nil
	}
	metrics.CacheOperations.WithLabelValues(metrics.ResultMiss).Inc()

	rec, err := r.store.GetBadge(ctx, memberID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, model.ErrNotRegistered
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", memberID, err)
	}
	r.cache.SetBadge(ctx, rec)
	return rec, nil
}

// List returns every issued badge ordered by badge id.
func (r *Registry) List(ctx context.Context) ([]*model.BadgeRecord, error) {
	return r.store.ListBadges(ctx)
}

func (r *Registry) locked(fn func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn()
}

func (r *Registry) audit(ctx context.Context, tx store.Store, topic, memberID, actor string, event any) error {
	rec, err := events.NewRecord(topic, memberID, actor, event)
	if err != nil {
		return err
	}
	rec.CreatedAt = r.now().UTC()
	if err := tx.RecordEvent(ctx, rec); err != nil {
		return fmt.Errorf("record %s: %w", topic, err)
	}
	return nil
}

func (r *Registry) grantVerified(ctx context.Context, memberID string) {
	if r.roles == nil {
		return
	}
	if err := r.roles.AddRole(ctx, memberID, r.verifiedRole, "membership approved"); err != nil {
		r.logger.Warn("failed to grant verified role", "member_id", memberID, "role", r.verifiedRole, "err", err)
	}
}

func (r *Registry) invalidate(ctx context.Context, memberID string) {
	if err := r.cache.Invalidate(ctx, memberID); err != nil {
		r.logger.Warn("failed to invalidate badge cache", "member_id", memberID, "err", err)
	}
}

func (r *Registry) publish(ctx context.Context, topic, memberID string, event any) {
	if err := r.publisher.Publish(ctx, topic, event); err != nil {
		r.logger.Warn("failed to publish event", "topic", topic, "member_id", memberID, "err", err)
	}
}
