package model

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRegistered is matched (via errors.Is) by *AlreadyRegisteredError.
	ErrAlreadyRegistered = errors.New("member already registered")

	// ErrNotRegistered is returned when a member has no badge on the ledger.
	ErrNotRegistered = errors.New("member has no badge")
)

// AlreadyRegisteredError carries the record that blocked a second approval.
type AlreadyRegisteredError struct {
	Record *BadgeRecord
}

func (e *AlreadyRegisteredError) Error() string {
	if e.Record == nil {
		return ErrAlreadyRegistered.Error()
	}
	return fmt.Sprintf("member %s already has badge %s", e.Record.MemberID, e.Record.BadgeID)
}

// Is lets errors.Is(err, ErrAlreadyRegistered) match.
func (e *AlreadyRegisteredError) Is(target error) bool {
	return target == ErrAlreadyRegistered
}
