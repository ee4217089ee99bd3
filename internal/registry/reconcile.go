package registry

import (
	"context"
	"fmt"

	"github.com/alfredjeanlab/nari/internal/store"
)

// ReconcileReport describes what Reconcile found.
type ReconcileReport struct {
	Badges      int      `json:"badges"`
	MaxSequence int64    `json:"max_sequence"`
	Counter     int64    `json:"counter"`
	Previous    int64    `json:"previous"`
	Adjusted    bool     `json:"adjusted"`
	Skipped     []string `json:"skipped,omitempty"`
}

// Reconcile raises the counter to one past the highest issued sequence when
// a partial failure left it behind the ledger. It never lowers the counter.
// Badge ids that do not parse under the current prefix are reported in
// Skipped and otherwise ignored.
func (r *Registry) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	report := &ReconcileReport{}
	err := r.locked(func() error {
		return r.store.RunInTransaction(ctx, func(tx store.Store) error {
			counter, err := tx.GetCounter(ctx)
			if err != nil {
				return fmt.Errorf("read counter: %w", err)
			}
			badges, err := tx.ListBadges(ctx)
			if err != nil {
				return fmt.Errorf("list badges: %w", err)
			}

			report.Badges = len(badges)
			report.Previous = counter
			report.Counter = counter
			for _, b := range badges {
				seq, err := r.alloc.Parse(b.BadgeID)
				if err != nil {
					report.Skipped = append(report.Skipped, b.BadgeID)
					continue
				}
				report.MaxSequence = max(report.MaxSequence, seq)
			}

			if counter > report.MaxSequence {
				return nil
			}
			report.Counter = report.MaxSequence + 1
			report.Adjusted = true
			return tx.SetCounter(ctx, report.Counter)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	if report.Adjusted {
		r.logger.Warn("badge counter was behind the ledger; raised",
			"previous", report.Previous, "counter", report.Counter, "max_sequence", report.MaxSequence)
	} else {
		r.logger.Info("badge counter consistent with ledger",
			"counter", report.Counter, "badges", report.Badges)
	}
	if len(report.Skipped) > 0 {
		r.logger.Warn("ledger holds badge ids outside the current prefix", "prefix", r.Prefix(), "count", len(report.Skipped))
	}
	return report, nil
}
