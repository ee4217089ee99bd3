package sync

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/alfredjeanlab/nari/internal/model"
	"github.com/alfredjeanlab/nari/internal/store"
)

const formatVersion = "1"

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version    string    `json:"version"`
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	Counter    int64     `json:"counter"`
	BadgeCount int       `json:"badge_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ExportJSONL writes the allocation counter and every badge record from the
// store as JSONL to w. Both are read in one transaction so the counter is
// never behind the badges it covers. Badges are sorted by badge id.
func ExportJSONL(ctx context.Context, s store.Store, w io.Writer) error {
	var (
		counter int64
		badges  []*model.BadgeRecord
	)
	err := s.RunInTransaction(ctx, func(tx store.Store) error {
		var err error
		if counter, err = tx.GetCounter(ctx); err != nil {
			return fmt.Errorf("get counter: %w", err)
		}
		if badges, err = tx.ListBadges(ctx); err != nil {
			return fmt.Errorf("list badges: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	sort.Slice(badges, func(i, j int) bool {
		return badges[i].BadgeID < badges[j].BadgeID
	})

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:    formatVersion,
		Type:       "header",
		Timestamp:  time.Now().UTC(),
		Counter:    counter,
		BadgeCount: len(badges),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, b := range badges {
		data, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("encode badge %s: %w", b.BadgeID, err)
		}
		if err := enc.Encode(record{Type: "badge", Data: data}); err != nil {
			return fmt.Errorf("encode badge %s: %w", b.BadgeID, err)
		}
	}
	return nil
}

// ImportReport summarizes an ImportJSONL run.
type ImportReport struct {
	Imported int   `json:"imported"`
	Skipped  int   `json:"skipped"`
	Counter  int64 `json:"counter"`
}

// ImportJSONL restores an export into s in one transaction. Members that
// already hold a badge are skipped. The counter is raised to the exported
// value but never lowered; run registry.Reconcile afterwards if the target
// already held badges of its own.
func ImportJSONL(ctx context.Context, s store.Store, r io.Reader) (*ImportReport, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		return nil, errors.New("empty export")
	}
	var h header
	if err := json.Unmarshal(scanner.Bytes(), &h); err != nil || h.Type != "header" {
		return nil, errors.New("export does not start with a header record")
	}
	if h.Version != formatVersion {
		return nil, fmt.Errorf("unsupported export version %q", h.Version)
	}

	var badges []*model.BadgeRecord
	for line := 2; scanner.Scan(); line++ {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if rec.Type != "badge" {
			continue
		}
		var b model.BadgeRecord
		if err := json.Unmarshal(rec.Data, &b); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		badges = append(badges, &b)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}

	report := &ImportReport{}
	err := s.RunInTransaction(ctx, func(tx store.Store) error {
		for _, b := range badges {
			_, err := tx.GetBadge(ctx, b.MemberID)
			if err == nil {
				report.Skipped++
				continue
			}
			if !errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("get badge for %s: %w", b.MemberID, err)
			}
			if err := tx.CreateBadge(ctx, b); err != nil {
				return fmt.Errorf("create badge %s: %w", b.BadgeID, err)
			}
			report.Imported++
		}
		current, err := tx.GetCounter(ctx)
		if err != nil {
			return fmt.Errorf("get counter: %w", err)
		}
		report.Counter = max(current, h.Counter)
		if report.Counter != current {
			if err := tx.SetCounter(ctx, report.Counter); err != nil {
				return fmt.Errorf("set counter: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}
