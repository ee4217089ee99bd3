package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alfredjeanlab/nari/internal/model"
)

const (
	keyPrefix = "nari:badge:"

	// DefaultTTL bounds how long a stale entry can survive a missed invalidation.
	DefaultTTL = 10 * time.Minute
)

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(addr, password string, db int, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisCache{client: rdb, ttl: ttl}
}

func (r *RedisCache) GetBadge(ctx context.Context, memberID string) (*model.BadgeRecord, bool) {
	val, err := r.client.Get(ctx, keyPrefix+memberID).Bytes()
	if err != nil {
		return nil, false
	}
	var rec model.BadgeRecord
	if err := json.Unmarshal(val, &rec); err != nil {
		slog.Warn("dropping undecodable cache entry", "member_id", memberID, "err", err)
		_ = r.client.Del(ctx, keyPrefix+memberID).Err()
		return nil, false
	}
	return &rec, true
}

func (r *RedisCache) SetBadge(ctx context.Context, rec *model.BadgeRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, keyPrefix+rec.MemberID, data, r.ttl).Err(); err != nil {
		slog.Debug("cache set failed", "member_id", rec.MemberID, "err", err)
	}
}

// Invalidate deletes the cached entry.
func (r *RedisCache) Invalidate(ctx context.Context, memberID string) error {
	return r.client.Del(ctx, keyPrefix+memberID).Err()
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
