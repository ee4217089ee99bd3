package model

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultBadgePrefix is the prefix used when no prefix is configured.
const DefaultBadgePrefix = "NR"

// SequenceWidth is the fixed zero-padded width of the numeric badge suffix.
const SequenceWidth = 5

// MaxSequence is the largest sequence number that fits in SequenceWidth digits.
// Allocation beyond it fails with ErrSequenceExhausted rather than widening
// or wrapping the identifier.
const MaxSequence = 99999

// ErrSequenceExhausted is returned when the allocator counter has moved past
// MaxSequence.
var ErrSequenceExhausted = errors.New("badge sequence exhausted")

var prefixPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]{0,7}$`)

// BadgeRecord maps a member to the badge issued when their membership was
// approved.
type BadgeRecord struct {
	MemberID     string    `json:"member_id"`
	BadgeID      string    `json:"badge_id"`
	RegisteredAt time.Time `json:"registered_at"`
}

// ValidatePrefix reports whether prefix can be used for badge identifiers.
func ValidatePrefix(prefix string) error {
	if !prefixPattern.MatchString(prefix) {
		return fmt.Errorf("invalid badge prefix %q: want 1-8 upper-case letters or digits starting with a letter", prefix)
	}
	return nil
}

// FormatBadgeID renders seq as "<prefix>-NNNNN".
func FormatBadgeID(prefix string, seq int64) (string, error) {
	if seq < 1 {
		return "", fmt.Errorf("invalid badge sequence %d", seq)
	}
	if seq > MaxSequence {
		return "", fmt.Errorf("%w: %d > %d", ErrSequenceExhausted, seq, MaxSequence)
	}
	return fmt.Sprintf("%s-%0*d", prefix, SequenceWidth, seq), nil
}

// ParseBadgeSequence extracts the numeric sequence from a badge id issued
// under prefix.
func ParseBadgeSequence(prefix, badgeID string) (int64, error) {
	digits, ok := strings.CutPrefix(badgeID, prefix+"-")
	if !ok {
		return 0, fmt.Errorf("badge id %q does not carry prefix %q", badgeID, prefix)
	}
	if len(digits) != SequenceWidth {
		return 0, fmt.Errorf("badge id %q: want %d digits", badgeID, SequenceWidth)
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("badge id %q: invalid sequence", badgeID)
	}
	return n, nil
}
