package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/alfredjeanlab/nari/internal/model"
)

func newTestRedis(t *testing.T, ttl time.Duration) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	c := NewRedisCache(mr.Addr(), "", 0, ttl)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestRedisCache_SetGet(t *testing.T) {
	c, _ := newTestRedis(t, time.Minute)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	c.SetBadge(ctx, &model.BadgeRecord{MemberID: "42", BadgeID: "NR-00001", RegisteredAt: now})

	got, ok := c.GetBadge(ctx, "42")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.BadgeID != "NR-00001" || !got.RegisteredAt.Equal(now) {
		t.Fatalf("got %+v", got)
	}

	if _, ok := c.GetBadge(ctx, "nonexistent"); ok {
		t.Fatal("expected miss for unknown member")
	}
}

func TestRedisCache_TTL(t *testing.T) {
	c, mr := newTestRedis(t, time.Minute)
	ctx := context.Background()

	c.SetBadge(ctx, &model.BadgeRecord{MemberID: "42", BadgeID: "NR-00001"})
	mr.FastForward(2 * time.Minute)

	if _, ok := c.GetBadge(ctx, "42"); ok {
		t.Fatal("expected entry to expire")
	}
}

func TestRedisCache_DefaultTTL(t *testing.T) {
	c, mr := newTestRedis(t, 0)
	c.SetBadge(context.Background(), &model.BadgeRecord{MemberID: "1", BadgeID: "NR-00001"})
	if ttl := mr.TTL(keyPrefix + "1"); ttl != DefaultTTL {
		t.Fatalf("TTL = %v, want %v", ttl, DefaultTTL)
	}
}

func TestRedisCache_Invalidate(t *testing.T) {
	c, _ := newTestRedis(t, time.Minute)
	ctx := context.Background()

	c.SetBadge(ctx, &model.BadgeRecord{MemberID: "42", BadgeID: "NR-00001"})

	if err := c.Invalidate(ctx, "42"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if _, ok := c.GetBadge(ctx, "42"); ok {
		t.Fatal("expected miss after invalidate")
	}
	if err := c.Invalidate(ctx, "never-cached"); err != nil {
		t.Fatalf("Invalidate of absent key: %v", err)
	}
}

func TestRedisCache_CorruptEntry(t *testing.T) {
	c, mr := newTestRedis(t, time.Minute)
	if err := mr.Set(keyPrefix+"42", "not json"); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.GetBadge(context.Background(), "42"); ok {
		t.Fatal("expected miss for corrupt entry")
	}
	if mr.Exists(keyPrefix + "42") {
		t.Fatal("corrupt entry was not deleted")
	}
}

func TestRedisCache_Ping(t *testing.T) {
	c, _ := newTestRedis(t, time.Minute)
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNoop(t *testing.T) {
	var c Cache = Noop{}
	ctx := context.Background()
	c.SetBadge(ctx, &model.BadgeRecord{MemberID: "1"})
	if _, ok := c.GetBadge(ctx, "1"); ok {
		t.Fatal("Noop cache should never hit")
	}
	if err := c.Invalidate(ctx, "1"); err != nil {
		t.Fatal(err)
	}
}
