package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/alfredjeanlab/nari/internal/model"
	"github.com/alfredjeanlab/nari/internal/store"
)

const badgeColumns = `member_id, badge_id, registered_at`

const eventColumns = `id, topic, member_id, actor, payload, created_at`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scannable interface {
	Scan(dest ...any) error
}

func queryGetBadge(ctx context.Context, db executor, memberID string) (*model.BadgeRecord, error) {
	row := db.QueryRowContext(ctx, `SELECT `+badgeColumns+` FROM users WHERE member_id = ?`, memberID)
	rec, err := scanBadge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get badge: %w", err)
	}
	return rec, nil
}

func queryCreateBadge(ctx context.Context, db executor, rec *model.BadgeRecord) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO users (member_id, badge_id, registered_at) VALUES (?, ?, ?)`,
		rec.MemberID, rec.BadgeID, toMillis(rec.RegisteredAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("badge for member %s: %w", rec.MemberID, store.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("create badge: %w", err)
	}
	return nil
}

func queryDeleteBadge(ctx context.Context, db executor, memberID string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM users WHERE member_id = ?`, memberID)
	if err != nil {
		return fmt.Errorf("delete badge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func queryListBadges(ctx context.Context, db executor) ([]*model.BadgeRecord, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+badgeColumns+` FROM users ORDER BY badge_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	defer rows.Close()

	var out []*model.BadgeRecord
	for rows.Next() {
		rec, err := scanBadge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan badge: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// queryGetCounter reads the counter. Transactions are opened with
// _txlock=immediate, so inside one the value cannot change underneath us.
func queryGetCounter(ctx context.Context, db executor) (int64, error) {
	var value int64
	if err := db.QueryRowContext(ctx, `SELECT value FROM counter WHERE id = 1`).Scan(&value); err != nil {
		return 0, fmt.Errorf("get counter: %w", err)
	}
	return value, nil
}

func queryIncrementCounter(ctx context.Context, db executor) (int64, error) {
	var value int64
	err := db.QueryRowContext(ctx, `UPDATE counter SET value = value + 1 WHERE id = 1 RETURNING value`).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("increment counter: %w", err)
	}
	return value, nil
}

func querySetCounter(ctx context.Context, db executor, value int64) error {
	res, err := db.ExecContext(ctx, `UPDATE counter SET value = ? WHERE id = 1`, value)
	if err != nil {
		return fmt.Errorf("set counter: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("set counter: %w", store.ErrNotFound)
	}
	return nil
}

func queryRecordEvent(ctx context.Context, db executor, e *model.Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	var payload []byte
	if len(e.Payload) > 0 {
		payload = []byte(e.Payload)
	}
	return db.QueryRowContext(ctx, `
		INSERT INTO events (topic, member_id, actor, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`,
		e.Topic, e.MemberID, e.Actor, payload, toMillis(e.CreatedAt),
	).Scan(&e.ID)
}

func queryGetEvents(ctx context.Context, db executor, memberID string) ([]*model.Event, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE member_id = ?
		ORDER BY created_at ASC, id ASC`, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func queryListEvents(ctx context.Context, db executor, limit int) ([]*model.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanBadge(row scannable) (*model.BadgeRecord, error) {
	var (
		rec          model.BadgeRecord
		registeredAt int64
	)
	if err := row.Scan(&rec.MemberID, &rec.BadgeID, &registeredAt); err != nil {
		return nil, err
	}
	rec.RegisteredAt = fromMillis(registeredAt)
	return &rec, nil
}

func scanEvents(rows *sql.Rows) ([]*model.Event, error) {
	var out []*model.Event
	for rows.Next() {
		var (
			e         model.Event
			payload   []byte
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.Topic, &e.MemberID, &e.Actor, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if len(payload) > 0 {
			e.Payload = json.RawMessage(payload)
		}
		e.CreatedAt = fromMillis(createdAt)
		out = append(out, &e)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
