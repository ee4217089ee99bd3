package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/alfredjeanlab/nari/internal/model"
	"github.com/alfredjeanlab/nari/internal/store"
)

// newMockDB creates a sqlmock database with automatic cleanup and expectation checking.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

var badgeRowColumns = []string{"member_id", "badge_id", "registered_at"}

var eventRowColumns = []string{"id", "topic", "member_id", "actor", "payload", "created_at"}

func TestQueryGetBadge(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	mock.ExpectQuery("SELECT .+ FROM users WHERE member_id = \\$1").WithArgs("42").
		WillReturnRows(sqlmock.NewRows(badgeRowColumns).AddRow("42", "NR-00001", now))

	rec, err := queryGetBadge(context.Background(), db, "42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.MemberID != "42" || rec.BadgeID != "NR-00001" {
		t.Fatalf("got member=%q badge=%q", rec.MemberID, rec.BadgeID)
	}
	if !rec.RegisteredAt.Equal(now) {
		t.Errorf("RegisteredAt = %v, want %v", rec.RegisteredAt, now)
	}
}

func TestQueryGetBadge_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT .+ FROM users WHERE member_id = \\$1").WithArgs("nobody").
		WillReturnError(sql.ErrNoRows)

	_, err := queryGetBadge(context.Background(), db, "nobody")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected store.ErrNotFound, got %v", err)
	}
}

func TestQueryCreateBadge(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	mock.ExpectExec("INSERT INTO users").
		WithArgs("42", "NR-00001", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := &model.BadgeRecord{MemberID: "42", BadgeID: "NR-00001", RegisteredAt: now}
	if err := queryCreateBadge(context.Background(), db, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestQueryCreateBadge_UniqueViolation(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("INSERT INTO users").
		WillReturnError(&pq.Error{Code: uniqueViolation, Message: "duplicate key value violates unique constraint"})

	rec := &model.BadgeRecord{MemberID: "42", BadgeID: "NR-00001", RegisteredAt: time.Now()}
	err := queryCreateBadge(context.Background(), db, rec)
	if !errors.Is(err, store.ErrAlreadyExists) {
		t.Fatalf("expected store.ErrAlreadyExists, got %v", err)
	}
}

func TestQueryCreateBadge_OtherError(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("INSERT INTO users").WillReturnError(errors.New("connection reset"))

	rec := &model.BadgeRecord{MemberID: "42", BadgeID: "NR-00001", RegisteredAt: time.Now()}
	err := queryCreateBadge(context.Background(), db, rec)
	if err == nil || errors.Is(err, store.ErrAlreadyExists) {
		t.Fatalf("expected a plain error, got %v", err)
	}
}

func TestQueryDeleteBadge(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("DELETE FROM users WHERE member_id = \\$1").WithArgs("42").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := queryDeleteBadge(context.Background(), db, "42"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestQueryDeleteBadge_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("DELETE FROM users WHERE member_id = \\$1").WithArgs("nobody").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := queryDeleteBadge(context.Background(), db, "nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected store.ErrNotFound, got %v", err)
	}
}

func TestQueryListBadges(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	mock.ExpectQuery("SELECT .+ FROM users ORDER BY badge_id ASC").
		WillReturnRows(sqlmock.NewRows(badgeRowColumns).
			AddRow("42", "NR-00001", now).
			AddRow("7", "NR-00002", now))

	recs, err := queryListBadges(context.Background(), db)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[1].MemberID != "7" || recs[1].BadgeID != "NR-00002" {
		t.Errorf("second record = %+v", recs[1])
	}
}

func TestQueryGetCounter(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT value FROM counter WHERE id = 1 FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(17))

	got, err := queryGetCounter(context.Background(), db)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 17 {
		t.Fatalf("counter = %d, want 17", got)
	}
}

func TestQueryIncrementCounter(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("UPDATE counter SET value = value \\+ 1 WHERE id = 1 RETURNING value").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(18))

	got, err := queryIncrementCounter(context.Background(), db)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 18 {
		t.Fatalf("counter = %d, want 18", got)
	}
}

func TestQuerySetCounter(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("UPDATE counter SET value = \\$1 WHERE id = 1").WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := querySetCounter(context.Background(), db, 9); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestQuerySetCounter_MissingRow(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("UPDATE counter SET value = \\$1 WHERE id = 1").WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := querySetCounter(context.Background(), db, 9); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected store.ErrNotFound, got %v", err)
	}
}

func TestQueryRecordEvent(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	payload := json.RawMessage(`{"badge_id":"NR-00001"}`)
	mock.ExpectQuery("INSERT INTO events").
		WithArgs("nari.badge.approved", "42", "officer", []byte(payload)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(5), now))

	e := &model.Event{Topic: "nari.badge.approved", MemberID: "42", Actor: "officer", Payload: payload}
	if err := queryRecordEvent(context.Background(), db, e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.ID != 5 || !e.CreatedAt.Equal(now) {
		t.Errorf("event id=%d created_at=%v", e.ID, e.CreatedAt)
	}
}

func TestQueryGetEvents(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	mock.ExpectQuery("SELECT .+ FROM events\\s+WHERE member_id = \\$1").WithArgs("42").
		WillReturnRows(sqlmock.NewRows(eventRowColumns).
			AddRow(int64(1), "nari.badge.approved", "42", "officer", []byte(`{}`), now).
			AddRow(int64(2), "nari.badge.revoked", "42", "officer", nil, now))

	evts, err := queryGetEvents(context.Background(), db, "42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(evts) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evts))
	}
	if evts[1].Payload != nil {
		t.Errorf("expected nil payload for NULL column, got %s", evts[1].Payload)
	}
}

func TestQueryListEvents_DefaultLimit(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT .+ FROM events\\s+ORDER BY id DESC\\s+LIMIT \\$1").WithArgs(100).
		WillReturnRows(sqlmock.NewRows(eventRowColumns))

	evts, err := queryListEvents(context.Background(), db, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(evts) != 0 {
		t.Fatalf("expected no events, got %d", len(evts))
	}
}

func TestRunInTransaction_Commit(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT value FROM counter WHERE id = 1 FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(1))
	mock.ExpectQuery("UPDATE counter SET value = value \\+ 1").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(2))
	mock.ExpectExec("INSERT INTO users").WithArgs("42", "NR-00001", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.RunInTransaction(context.Background(), func(tx store.Store) error {
		if _, err := tx.GetCounter(context.Background()); err != nil {
			return err
		}
		if _, err := tx.IncrementCounter(context.Background()); err != nil {
			return err
		}
		return tx.CreateBadge(context.Background(), &model.BadgeRecord{MemberID: "42", BadgeID: "NR-00001", RegisteredAt: now})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunInTransaction_RollbackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE counter SET value = value \\+ 1").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(2))
	mock.ExpectExec("INSERT INTO users").
		WillReturnError(&pq.Error{Code: uniqueViolation})
	mock.ExpectRollback()

	err := s.RunInTransaction(context.Background(), func(tx store.Store) error {
		if _, err := tx.IncrementCounter(context.Background()); err != nil {
			return err
		}
		return tx.CreateBadge(context.Background(), &model.BadgeRecord{MemberID: "42", BadgeID: "NR-00001", RegisteredAt: time.Now()})
	})
	if !errors.Is(err, store.ErrAlreadyExists) {
		t.Fatalf("expected store.ErrAlreadyExists, got %v", err)
	}
}

func TestRunInTransaction_Nested(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)

	mock.ExpectBegin()
	mock.ExpectCommit()

	var inner store.Store
	err := s.RunInTransaction(context.Background(), func(tx store.Store) error {
		return tx.RunInTransaction(context.Background(), func(tx2 store.Store) error {
			inner = tx2
			if tx2 != tx {
				t.Error("nested RunInTransaction should reuse the outer transaction")
			}
			return nil
		})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner == nil {
		t.Fatal("nested callback did not run")
	}
}

func TestJSONBBytes(t *testing.T) {
	if jsonbBytes(nil) != nil {
		t.Error("jsonbBytes(nil) should be nil")
	}
	if jsonbBytes(json.RawMessage{}) != nil {
		t.Error("jsonbBytes({}) should be nil")
	}
	if string(jsonbBytes(json.RawMessage(`{"a":1}`))) != `{"a":1}` {
		t.Error("jsonbBytes should pass through payload bytes")
	}
}
