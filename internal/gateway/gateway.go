// Package gateway talks to the messaging platform: it sends role and kick
// actions out over NATS and feeds inbound command invocations to the
// dispatcher.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subjects shared with the platform-side gateway process.
const (
	SubjectCommands   = "nari.commands"
	SubjectReplies    = "nari.replies"
	SubjectAddRole    = "nari.gateway.add_role"
	SubjectRemoveRole = "nari.gateway.remove_role"
	SubjectKick       = "nari.gateway.kick"
)

// Gateway performs moderation actions on the platform.
type Gateway interface {
	AddRole(ctx context.Context, memberID, role, reason string) error
	RemoveRole(ctx context.Context, memberID, role, reason string) error
	Kick(ctx context.Context, memberID, reason string) error
}

// Action is the message published for every gateway request.
type Action struct {
	Action      string    `json:"action"`
	MemberID    string    `json:"member_id"`
	Role        string    `json:"role,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// Connect dials NATS with the reconnect behaviour every long-lived
// connection in the service uses.
func Connect(url, name string, opts ...nats.Option) (*nats.Conn, error) {
	defaults := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "name", name, "err", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "name", name, "url", nc.ConnectedUrl())
		}),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// LogGateway only logs actions. It stands in when no NATS server is
// configured, so commands still complete locally.
type LogGateway struct {
	Logger *slog.Logger
}

func (g LogGateway) log() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

func (g LogGateway) AddRole(_ context.Context, memberID, role, reason string) error {
	g.log().Info("gateway action (not delivered)", "action", "add_role", "member_id", memberID, "role", role, "reason", reason)
	return nil
}

func (g LogGateway) RemoveRole(_ context.Context, memberID, role, reason string) error {
	g.log().Info("gateway action (not delivered)", "action", "remove_role", "member_id", memberID, "role", role, "reason", reason)
	return nil
}

func (g LogGateway) Kick(_ context.Context, memberID, reason string) error {
	g.log().Info("gateway action (not delivered)", "action", "kick", "member_id", memberID, "reason", reason)
	return nil
}
