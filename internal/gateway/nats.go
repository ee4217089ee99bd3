package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/alfredjeanlab/nari/internal/metrics"
)

// NATSGateway publishes actions for the platform-side gateway to carry out.
// Publishing is fire-and-forget; a nil error means the action was handed to
// NATS, not that the platform applied it.
type NATSGateway struct {
	conn *nats.Conn
	now  func() time.Time
}

func NewNATSGateway(nc *nats.Conn) *NATSGateway {
	return &NATSGateway{conn: nc, now: time.Now}
}

func (g *NATSGateway) AddRole(ctx context.Context, memberID, role, reason string) error {
	return g.send(SubjectAddRole, Action{Action: "add_role", MemberID: memberID, Role: role, Reason: reason})
}

func (g *NATSGateway) RemoveRole(ctx context.Context, memberID, role, reason string) error {
	return g.send(SubjectRemoveRole, Action{Action: "remove_role", MemberID: memberID, Role: role, Reason: reason})
}

func (g *NATSGateway) Kick(ctx context.Context, memberID, reason string) error {
	return g.send(SubjectKick, Action{Action: "kick", MemberID: memberID, Reason: reason})
}

func (g *NATSGateway) send(subject string, a Action) error {
	a.RequestedAt = g.now().UTC()
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshaling %s action: %w", a.Action, err)
	}
	err = g.conn.Publish(subject, data)
	metrics.GatewayActions.WithLabelValues(a.Action, metrics.Outcome(err)).Inc()
	if err != nil {
		return fmt.Errorf("publishing %s: %w", subject, err)
	}
	return nil
}
