// Package commands binds the moderation command table to the registry and
// the messaging gateway.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alfredjeanlab/nari/internal/authz"
	"github.com/alfredjeanlab/nari/internal/config"
	"github.com/alfredjeanlab/nari/internal/dispatch"
	"github.com/alfredjeanlab/nari/internal/events"
	"github.com/alfredjeanlab/nari/internal/gateway"
	"github.com/alfredjeanlab/nari/internal/model"
	"github.com/alfredjeanlab/nari/internal/registry"
	"github.com/alfredjeanlab/nari/internal/store"
)

// Deps are the collaborators command bodies use.
type Deps struct {
	Registry  *registry.Registry
	Gateway   gateway.Gateway
	Store     store.Store
	Publisher events.Publisher
	Policy    *config.Policy
	Logger    *slog.Logger
}

type service struct {
	Deps
	disp *dispatch.Dispatcher
}

// Register adds every command not disabled by the policy to d.
func Register(d *dispatch.Dispatcher, deps Deps) error {
	if deps.Registry == nil || deps.Gateway == nil || deps.Store == nil {
		return errors.New("commands: registry, gateway and store are required")
	}
	if deps.Policy == nil {
		deps.Policy = config.DefaultPolicy()
	}
	if deps.Publisher == nil {
		deps.Publisher = events.Discard{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &service{Deps: deps, disp: d}

	officers := authz.AnyRole(deps.Policy.OfficerRoles...)
	for _, h := range []*dispatch.Handler{
		{
			Name:        "visa",
			Aliases:     []string{"approve-membership"},
			Summary:     "Approve a membership and issue a badge",
			Requirement: officers,
			Args:        []dispatch.ArgSpec{dispatch.Literal("status", "done"), dispatch.Member("member")},
			Run:         s.visa,
		},
		{
			Name:    "badge",
			Aliases: []string{"check-badge"},
			Summary: "Show a member's badge",
			Args:    []dispatch.ArgSpec{dispatch.OptionalMember("member")},
			Run:     s.badge,
		},
		{
			Name:        "deletebadge",
			Aliases:     []string{"revoke-membership"},
			Summary:     "Revoke a member's badge",
			Requirement: officers,
			Args:        []dispatch.ArgSpec{dispatch.Member("member")},
			Run:         s.deleteBadge,
		},
		{
			Name:    "passport",
			Aliases: []string{"get-passport-info"},
			Summary: "Show a member's passport details",
			Args:    []dispatch.ArgSpec{dispatch.OptionalMember("member")},
			Run:     s.passport,
		},
		{
			Name:        "kick",
			Summary:     "Kick a member",
			Requirement: authz.HasPermission(model.PermKickMembers),
			Args:        []dispatch.ArgSpec{dispatch.Member("member"), dispatch.Rest("reason", false)},
			Run:         s.kick,
		},
		{
			Name:        "addrole",
			Aliases:     []string{"grant-role"},
			Summary:     "Give a member a role",
			Requirement: authz.HasPermission(model.PermManageRoles),
			Args:        []dispatch.ArgSpec{dispatch.Member("member"), dispatch.Role("role")},
			Run:         s.addRole,
		},
		{
			Name:        "removerole",
			Aliases:     []string{"revoke-role"},
			Summary:     "Take a role from a member",
			Requirement: authz.HasPermission(model.PermManageRoles),
			Args:        []dispatch.ArgSpec{dispatch.Member("member"), dispatch.Role("role")},
			Run:         s.removeRole,
		},
		{
			Name:        "accept",
			Aliases:     []string{"accept-application"},
			Summary:     "Accept a membership application",
			Requirement: authz.HasPermission(model.PermAdministrator),
			Args:        []dispatch.ArgSpec{dispatch.Member("member")},
			Run:         s.accept,
		},
		{
			Name:        "reject",
			Aliases:     []string{"reject-application"},
			Summary:     "Reject a membership application",
			Requirement: authz.HasPermission(model.PermAdministrator),
			Args:        []dispatch.ArgSpec{dispatch.Member("member")},
			Run:         s.reject,
		},
		{
			Name:    "cmdlist",
			Aliases: []string{"list-commands"},
			Summary: "List available commands",
			Run:     s.cmdlist,
		},
	} {
		override, ok := deps.Policy.Commands[h.Name]
		if ok && override.Disabled {
			continue
		}
		if ok {
			req, err := requirementFor(override, h.Requirement)
			if err != nil {
				return fmt.Errorf("policy for %s: %w", h.Name, err)
			}
			h.Requirement = req
		}
		if err := d.Register(h); err != nil {
			return err
		}
	}
	return nil
}

// requirementFor applies a policy override to a handler's built-in
// requirement. Only permission = "none" clears the gate; an override that
// names neither roles nor a permission leaves builtin in place.
func requirementFor(p config.CommandPolicy, builtin authz.Requirement) (authz.Requirement, error) {
	switch {
	case len(p.Roles) > 0:
		return authz.AnyRole(p.Roles...), nil
	case p.Permission == "none":
		return authz.None(), nil
	case p.Permission != "":
		perm := model.Permission(p.Permission)
		switch perm {
		case model.PermAdministrator, model.PermKickMembers, model.PermBanMembers,
			model.PermManageRoles, model.PermManageMessages:
			return authz.HasPermission(perm), nil
		}
		return authz.Requirement{}, fmt.Errorf("unknown permission %q", p.Permission)
	default:
		return builtin, nil
	}
}

// recordAndPublish persists an audit event and publishes it. Both are
// best-effort; the gateway action already happened.
func (s *service) recordAndPublish(ctx context.Context, topic, memberID, actor string, event any) {
	rec, err := events.NewRecord(topic, memberID, actor, event)
	if err != nil {
		s.Logger.Warn("failed to build event", "topic", topic, "member_id", memberID, "err", err)
		return
	}
	if err := s.Store.RecordEvent(ctx, rec); err != nil {
		s.Logger.Warn("failed to record event", "topic", topic, "member_id", memberID, "err", err)
	}
	if err := s.Publisher.Publish(ctx, topic, event); err != nil {
		s.Logger.Warn("failed to publish event", "topic", topic, "member_id", memberID, "err", err)
	}
}

func success(text string, data map[string]any) (*model.Response, error) {
	return &model.Response{Kind: model.KindSuccess, Text: text, Data: data}, nil
}

func reply(kind model.ResponseKind, text string) (*model.Response, error) {
	return &model.Response{Kind: kind, Text: text}, nil
}

func badgeData(rec *model.BadgeRecord) map[string]any {
	return map[string]any{
		"member_id":     rec.MemberID,
		"badge_id":      rec.BadgeID,
		"registered_at": rec.RegisteredAt,
	}
}

func defaultReason(reason string) string {
	if strings.TrimSpace(reason) == "" {
		return "none given"
	}
	return reason
}
