// Package events defines the ledger and moderation events emitted on the
// message bus, and the publisher/subscriber interfaces used to carry them.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/alfredjeanlab/nari/internal/model"
)

// Event topic constants
const (
	TopicBadgeApproved = "nari.badge.approved"
	TopicBadgeRevoked  = "nari.badge.revoked"

	TopicMemberKicked = "nari.member.kicked"

	TopicRoleAdded   = "nari.role.added"
	TopicRoleRemoved = "nari.role.removed"

	TopicApplicationAccepted = "nari.application.accepted"
	TopicApplicationRejected = "nari.application.rejected"
)

// AllTopics matches every event the service publishes.
const AllTopics = "nari.>"

// Event types

type BadgeApproved struct {
	Record *model.BadgeRecord `json:"record"`
	Actor  string             `json:"actor,omitempty"`
}

type BadgeRevoked struct {
	Record *model.BadgeRecord `json:"record"`
	Actor  string             `json:"actor,omitempty"`
}

type MemberKicked struct {
	MemberID string `json:"member_id"`
	Reason   string `json:"reason,omitempty"`
	Actor    string `json:"actor,omitempty"`
}

type RoleAdded struct {
	MemberID string `json:"member_id"`
	Role     string `json:"role"`
	Actor    string `json:"actor,omitempty"`
}

type RoleRemoved struct {
	MemberID string `json:"member_id"`
	Role     string `json:"role"`
	Actor    string `json:"actor,omitempty"`
}

type ApplicationAccepted struct {
	MemberID string `json:"member_id"`
	Role     string `json:"role,omitempty"`
	Actor    string `json:"actor,omitempty"`
}

type ApplicationRejected struct {
	MemberID string `json:"member_id"`
	Actor    string `json:"actor,omitempty"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// IsLedgerTopic reports whether topic belongs to the badge ledger, as opposed
// to moderation actions that never touch it.
func IsLedgerTopic(topic string) bool {
	return strings.HasPrefix(topic, "nari.badge.")
}

// Fanout publishes every event to each publisher in order. All publishers are
// attempted; the first error is returned.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, topic string, event any) error {
	var first error
	for _, p := range f {
		if err := p.Publish(ctx, topic, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f Fanout) Close() error {
	var first error
	for _, p := range f {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NewRecord builds the audit row for an event about to be published.
func NewRecord(topic, memberID, actor string, event any) (*model.Event, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s payload: %w", topic, err)
	}
	return &model.Event{
		Topic:    topic,
		MemberID: memberID,
		Actor:    actor,
		Payload:  payload,
	}, nil
}
