package registry

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/nari/internal/allocator"
	"github.com/alfredjeanlab/nari/internal/events"
	"github.com/alfredjeanlab/nari/internal/model"
	"github.com/alfredjeanlab/nari/internal/store"
	"github.com/alfredjeanlab/nari/internal/store/sqlite"
)

type roleCall struct {
	op       string
	memberID string
	role     string
}

type fakeRoles struct {
	mu    sync.Mutex
	calls []roleCall
	err   error
}

func (f *fakeRoles) AddRole(_ context.Context, memberID, role, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, roleCall{"add", memberID, role})
	return f.err
}

func (f *fakeRoles) RemoveRole(_ context.Context, memberID, role, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, roleCall{"remove", memberID, role})
	return f.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type fixture struct {
	reg   *Registry
	store *sqlite.SQLiteStore
	roles *fakeRoles
	pub   *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "nari.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	alloc, err := allocator.New("NR")
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{store: s, roles: &fakeRoles{}, pub: &recordingPublisher{}}
	f.reg, err = New(Options{
		Store:     s,
		Allocator: alloc,
		Roles:     f.roles,
		Publisher: f.pub,
	})
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func (f *fixture) counter(t *testing.T) int64 {
	t.Helper()
	v, err := f.store.GetCounter(context.Background())
	if err != nil {
		t.Fatalf("GetCounter: %v", err)
	}
	return v
}

func TestNew_RequiresStoreAndAllocator(t *testing.T) {
	alloc, _ := allocator.New("")
	if _, err := New(Options{Allocator: alloc}); err == nil {
		t.Error("expected error without store")
	}
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "nari.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, err := New(Options{Store: s}); err == nil {
		t.Error("expected error without allocator")
	}
}

func TestApprove_LookupRevokeScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.reg.Approve(ctx, "42", "7")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if rec.BadgeID != "NR-00001" {
		t.Fatalf("first badge = %s, want NR-00001", rec.BadgeID)
	}

	got, err := f.reg.Lookup(ctx, "42")
	if err != nil || got.BadgeID != "NR-00001" {
		t.Fatalf("Lookup = %+v, %v", got, err)
	}

	again, err := f.reg.Approve(ctx, "42", "7")
	if !errors.Is(err, model.ErrAlreadyRegistered) {
		t.Fatalf("second Approve error = %v, want ErrAlreadyRegistered", err)
	}
	var are *model.AlreadyRegisteredError
	if !errors.As(err, &are) || are.Record.BadgeID != "NR-00001" {
		t.Fatalf("AlreadyRegisteredError record = %+v", are)
	}
	if again.BadgeID != "NR-00001" {
		t.Fatalf("second Approve returned %s", again.BadgeID)
	}
	if c := f.counter(t); c != 2 {
		t.Fatalf("counter = %d after duplicate approve, want 2", c)
	}

	removed, err := f.reg.Revoke(ctx, "42", "7")
	if err != nil || removed.BadgeID != "NR-00001" {
		t.Fatalf("Revoke = %+v, %v", removed, err)
	}
	if _, err := f.reg.Lookup(ctx, "42"); !errors.Is(err, model.ErrNotRegistered) {
		t.Fatalf("Lookup after revoke = %v, want ErrNotRegistered", err)
	}

	rec, err = f.reg.Approve(ctx, "42", "7")
	if err != nil {
		t.Fatalf("re-Approve: %v", err)
	}
	if rec.BadgeID != "NR-00002" {
		t.Fatalf("re-issued badge = %s, want NR-00002", rec.BadgeID)
	}
}

func TestApprove_SideEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.reg.Approve(ctx, "42", "7"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.reg.Approve(ctx, "42", "7"); !errors.Is(err, model.ErrAlreadyRegistered) {
		t.Fatal(err)
	}

	// The duplicate still re-grants the role but emits nothing.
	want := []roleCall{{"add", "42", DefaultVerifiedRole}, {"add", "42", DefaultVerifiedRole}}
	if fmt.Sprint(f.roles.calls) != fmt.Sprint(want) {
		t.Fatalf("role calls = %v, want %v", f.roles.calls, want)
	}
	if len(f.pub.topics) != 1 || f.pub.topics[0] != events.TopicBadgeApproved {
		t.Fatalf("published = %v", f.pub.topics)
	}

	evts, err := f.store.GetEvents(ctx, "42")
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 1 || evts[0].Topic != events.TopicBadgeApproved || evts[0].Actor != "7" {
		t.Fatalf("audit events = %+v", evts)
	}
}

func TestApprove_RoleFailureKeepsBadge(t *testing.T) {
	f := newFixture(t)
	f.roles.err = errors.New("gateway down")
	ctx := context.Background()

	rec, err := f.reg.Approve(ctx, "42", "7")
	if err != nil {
		t.Fatalf("Approve with failing gateway: %v", err)
	}
	if _, err := f.store.GetBadge(ctx, "42"); err != nil {
		t.Fatalf("badge %s not persisted: %v", rec.BadgeID, err)
	}
}

func TestApprove_EmptyMember(t *testing.T) {
	f := newFixture(t)
	if _, err := f.reg.Approve(context.Background(), "", "7"); err == nil {
		t.Fatal("expected error for empty member id")
	}
	if c := f.counter(t); c != 1 {
		t.Fatalf("counter = %d, want 1", c)
	}
}

func TestRevoke_NotRegistered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.reg.Revoke(ctx, "nobody", "7")
	if !errors.Is(err, model.ErrNotRegistered) {
		t.Fatalf("Revoke = %v, want ErrNotRegistered", err)
	}
	if len(f.roles.calls) != 0 || len(f.pub.topics) != 0 {
		t.Fatalf("unexpected side effects: roles=%v topics=%v", f.roles.calls, f.pub.topics)
	}
	if c := f.counter(t); c != 1 {
		t.Fatalf("counter = %d, want 1", c)
	}
}

func TestRevoke_NoReuse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, m := range []string{"a", "b", "c"} {
		if _, err := f.reg.Approve(ctx, m, ""); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := f.reg.Revoke(ctx, "c", ""); err != nil {
		t.Fatal(err)
	}
	rec, err := f.reg.Approve(ctx, "d", "")
	if err != nil {
		t.Fatal(err)
	}
	if rec.BadgeID != "NR-00004" {
		t.Fatalf("badge after revoke = %s, want NR-00004", rec.BadgeID)
	}
}

func TestApprove_DistinctIncreasing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var last int64
	for i := range 25 {
		rec, err := f.reg.Approve(ctx, fmt.Sprintf("m%d", i), "")
		if err != nil {
			t.Fatal(err)
		}
		seq, err := f.reg.alloc.Parse(rec.BadgeID)
		if err != nil {
			t.Fatal(err)
		}
		if seq <= last {
			t.Fatalf("sequence %d not greater than %d", seq, last)
		}
		last = seq
	}
}

func TestApprove_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const n = 32

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[string]string, n)
	)
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			member := fmt.Sprintf("member-%d", i)
			rec, err := f.reg.Approve(ctx, member, "")
			if err != nil {
				errs <- err
				return
			}
			mu.Lock()
			ids[rec.BadgeID] = member
			mu.Unlock()
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent Approve: %v", err)
	}

	if len(ids) != n {
		t.Fatalf("got %d distinct badge ids, want %d", len(ids), n)
	}
	if c := f.counter(t); c != 1+n {
		t.Fatalf("counter = %d, want %d", c, 1+n)
	}
	all, err := f.reg.List(ctx)
	if err != nil || len(all) != n {
		t.Fatalf("List = %d records, %v", len(all), err)
	}
}

func TestApprove_ConcurrentSameMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const n = 10

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		issued  int
		already int
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.reg.Approve(ctx, "42", "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				issued++
			case errors.Is(err, model.ErrAlreadyRegistered):
				already++
			default:
				t.Errorf("Approve: %v", err)
			}
		}()
	}
	wg.Wait()

	if issued != 1 || already != n-1 {
		t.Fatalf("issued=%d already=%d, want 1 and %d", issued, already, n-1)
	}
	if c := f.counter(t); c != 2 {
		t.Fatalf("counter = %d, want 2", c)
	}
}

func TestLookup_UsesCache(t *testing.T) {
	f := newFixture(t)
	mc := &mapCache{m: map[string]*model.BadgeRecord{}}
	f.reg.cache = mc
	ctx := context.Background()

	if _, err := f.reg.Approve(ctx, "42", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := f.reg.Lookup(ctx, "42"); err != nil {
		t.Fatal(err)
	}
	if _, ok := mc.m["42"]; !ok {
		t.Fatal("Lookup did not populate cache")
	}

	// Served from cache even when the store no longer has it.
	if err := f.store.DeleteBadge(ctx, "42"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.reg.Lookup(ctx, "42"); err != nil {
		t.Fatalf("cached Lookup: %v", err)
	}

	if _, err := f.reg.Approve(ctx, "42", ""); err != nil {
		t.Fatal(err)
	}
	if _, ok := mc.m["42"]; ok {
		t.Fatal("Approve did not invalidate cache")
	}
}

type mapCache struct {
	mu sync.Mutex
	m  map[string]*model.BadgeRecord
}

func (c *mapCache) GetBadge(_ context.Context, id string) (*model.BadgeRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.m[id]
	return rec, ok
}

func (c *mapCache) SetBadge(_ context.Context, rec *model.BadgeRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[rec.MemberID] = rec
}

func (c *mapCache) Invalidate(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, id)
	return nil
}

func (c *mapCache) Ping(context.Context) error { return nil }
func (c *mapCache) Close() error               { return nil }

func TestReconcile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A record written without advancing the counter leaves it behind.
	if err := f.store.CreateBadge(ctx, &model.BadgeRecord{MemberID: "x", BadgeID: "NR-00001", RegisteredAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := f.store.CreateBadge(ctx, &model.BadgeRecord{MemberID: "y", BadgeID: "NR-00005", RegisteredAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	// Allocation collides with the stray record and rolls back.
	if _, err := f.reg.Approve(ctx, "42", ""); !errors.Is(err, store.ErrAlreadyExists) {
		t.Fatalf("Approve before reconcile = %v, want ErrAlreadyExists", err)
	}
	if c := f.counter(t); c != 1 {
		t.Fatalf("counter = %d after failed approve, want 1", c)
	}

	report, err := f.reg.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !report.Adjusted || report.Previous != 1 || report.Counter != 6 || report.MaxSequence != 5 {
		t.Fatalf("report = %+v", report)
	}

	rec, err := f.reg.Approve(ctx, "42", "")
	if err != nil || rec.BadgeID != "NR-00006" {
		t.Fatalf("Approve after reconcile = %+v, %v", rec, err)
	}
}

func TestReconcile_NeverLowers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.reg.Approve(ctx, "a", ""); err != nil {
		t.Fatal(err)
	}
	if err := f.store.SetCounter(ctx, 50); err != nil {
		t.Fatal(err)
	}
	if err := f.store.CreateBadge(ctx, &model.BadgeRecord{MemberID: "legacy", BadgeID: "OLD-1", RegisteredAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	report, err := f.reg.Reconcile(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Adjusted || report.Counter != 50 {
		t.Fatalf("report = %+v, want untouched counter 50", report)
	}
	if len(report.Skipped) != 1 || report.Skipped[0] != "OLD-1" {
		t.Fatalf("skipped = %v", report.Skipped)
	}
	if c := f.counter(t); c != 50 {
		t.Fatalf("counter = %d, want 50", c)
	}
}
