package postgres

import (
	"encoding/json"

	"github.com/alfredjeanlab/nari/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// rowIterator is the subset of *sql.Rows used by the multi-row scanners.
type rowIterator interface {
	scannable
	Next() bool
	Err() error
}

// scanBadge scans a single row into a model.BadgeRecord.
// The row must contain columns in the order defined by badgeColumns.
func scanBadge(row scannable) (*model.BadgeRecord, error) {
	var rec model.BadgeRecord
	if err := row.Scan(&rec.MemberID, &rec.BadgeID, &rec.RegisteredAt); err != nil {
		return nil, err
	}
	rec.RegisteredAt = rec.RegisteredAt.UTC()
	return &rec, nil
}

func scanBadges(rows rowIterator) ([]*model.BadgeRecord, error) {
	var out []*model.BadgeRecord
	for rows.Next() {
		rec, err := scanBadge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// scanEvent scans a single row into a model.Event.
// The row must contain columns in the order defined by eventColumns.
func scanEvent(row scannable) (*model.Event, error) {
	var e model.Event
	var payload []byte
	if err := row.Scan(&e.ID, &e.Topic, &e.MemberID, &e.Actor, &payload, &e.CreatedAt); err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		e.Payload = json.RawMessage(payload)
	}
	return &e, nil
}

func scanEvents(rows rowIterator) ([]*model.Event, error) {
	var out []*model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// jsonbBytes returns nil for an empty payload so the column stores NULL.
func jsonbBytes(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
