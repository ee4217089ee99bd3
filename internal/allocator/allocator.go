// Package allocator hands out sequential badge ids from the ledger counter.
package allocator

import (
	"context"
	"fmt"

	"github.com/alfredjeanlab/nari/internal/model"
	"github.com/alfredjeanlab/nari/internal/store"
)

// ErrSequenceExhausted is returned once the counter passes model.MaxSequence.
var ErrSequenceExhausted = model.ErrSequenceExhausted

// Allocator formats counter values as "<prefix>-NNNNN".
type Allocator struct {
	prefix string
}

// New returns an Allocator for prefix, or model.DefaultBadgePrefix when
// prefix is empty.
func New(prefix string) (*Allocator, error) {
	if prefix == "" {
		prefix = model.DefaultBadgePrefix
	}
	if err := model.ValidatePrefix(prefix); err != nil {
		return nil, err
	}
	return &Allocator{prefix: prefix}, nil
}

// Prefix returns the configured badge prefix.
func (a *Allocator) Prefix() string { return a.prefix }

// Next reserves the next badge id. tx must be the transaction that will also
// insert the badge record, so that the counter only advances when the record
// commits. The counter is left untouched when the id cannot be formatted.
func (a *Allocator) Next(ctx context.Context, tx store.Store) (string, error) {
	seq, err := tx.GetCounter(ctx)
	if err != nil {
		return "", fmt.Errorf("read counter: %w", err)
	}
	id, err := a.Format(seq)
	if err != nil {
		return "", err
	}
	next, err := tx.IncrementCounter(ctx)
	if err != nil {
		return "", fmt.Errorf("advance counter: %w", err)
	}
	if next != seq+1 {
		return "", fmt.Errorf("counter moved concurrently: read %d, incremented to %d", seq, next)
	}
	return id, nil
}

// Format renders seq under the allocator's prefix.
func (a *Allocator) Format(seq int64) (string, error) {
	return model.FormatBadgeID(a.prefix, seq)
}

// Parse extracts the sequence number from a badge id issued under the
// allocator's prefix.
func (a *Allocator) Parse(badgeID string) (int64, error) {
	return model.ParseBadgeSequence(a.prefix, badgeID)
}
