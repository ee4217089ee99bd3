package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/nari/internal/model"
	"github.com/alfredjeanlab/nari/internal/store"
)

// badgeColumns is the column list used for SELECT statements on the users table.
const badgeColumns = `member_id, badge_id, registered_at`

// eventColumns is the column list used for SELECT statements on the events table.
const eventColumns = `id, topic, member_id, actor, payload, created_at`

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryGetBadge(ctx context.Context, db executor, memberID string) (*model.BadgeRecord, error) {
	row := db.QueryRowContext(ctx, `SELECT `+badgeColumns+` FROM users WHERE member_id = $1`, memberID)
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
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (member_id, badge_id, registered_at)
		VALUES ($1, $2, $3)`,
		rec.MemberID,
		rec.BadgeID,
		rec.RegisteredAt,
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
	res, err := db.ExecContext(ctx, `DELETE FROM users WHERE member_id = $1`, memberID)
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
	return scanBadges(rows)
}

// queryGetCounter locks the counter row until the enclosing transaction ends.
// Outside a transaction the lock is released as soon as the statement
// completes.
func queryGetCounter(ctx context.Context, db executor) (int64, error) {
	var value int64
	err := db.QueryRowContext(ctx, `SELECT value FROM counter WHERE id = 1 FOR UPDATE`).Scan(&value)
	if err != nil {
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
	res, err := db.ExecContext(ctx, `UPDATE counter SET value = $1 WHERE id = 1`, value)
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
	return db.QueryRowContext(ctx, `
		INSERT INTO events (topic, member_id, actor, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		e.Topic, e.MemberID, e.Actor, jsonbBytes(e.Payload),
	).Scan(&e.ID, &e.CreatedAt)
}

func queryGetEvents(ctx context.Context, db executor, memberID string) ([]*model.Event, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE member_id = $1
		ORDER BY created_at ASC, id ASC`,
		memberID,
	)
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
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
