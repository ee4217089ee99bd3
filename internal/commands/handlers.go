package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alfredjeanlab/nari/internal/dispatch"
	"github.com/alfredjeanlab/nari/internal/events"
	"github.com/alfredjeanlab/nari/internal/model"
)

const registeredLayout = "2006-01-02 15:04:05"

func (s *service) visa(ctx context.Context, req *dispatch.Request) (*model.Response, error) {
	member := req.Args.Member("member")
	rec, err := s.Registry.Approve(ctx, member.ID, req.Principal.ID)
	var already *model.AlreadyRegisteredError
	if errors.As(err, &already) {
		resp, _ := reply(model.KindAlreadyExists, "⚠️ User already has badge: "+already.Record.BadgeID)
		resp.Data = badgeData(already.Record)
		return resp, nil
	}
	if err != nil {
		return nil, err
	}
	return success(
		fmt.Sprintf("✅ VISA Approved for %s\n🎖 Badge ID: **%s**", member.Mention(), rec.BadgeID),
		badgeData(rec),
	)
}

func (s *service) badge(ctx context.Context, req *dispatch.Request) (*model.Response, error) {
	member := req.Args.Member("member")
	rec, err := s.Registry.Lookup(ctx, member.ID)
	if errors.Is(err, model.ErrNotRegistered) {
		return reply(model.KindNotFound, "❌ No badge found.")
	}
	if err != nil {
		return nil, err
	}
	return success(fmt.Sprintf("🎖 %s Badge ID: **%s**", member.Mention(), rec.BadgeID), badgeData(rec))
}

func (s *service) deleteBadge(ctx context.Context, req *dispatch.Request) (*model.Response, error) {
	member := req.Args.Member("member")
	rec, err := s.Registry.Revoke(ctx, member.ID, req.Principal.ID)
	if errors.Is(err, model.ErrNotRegistered) {
		return reply(model.KindNotFound, "❌ This user does not have a badge.")
	}
	if err != nil {
		return nil, err
	}
	return success("🗑️ Badge deleted for "+member.Mention(), badgeData(rec))
}

func (s *service) passport(ctx context.Context, req *dispatch.Request) (*model.Response, error) {
	member := req.Args.Member("member")
	rec, err := s.Registry.Lookup(ctx, member.ID)
	if errors.Is(err, model.ErrNotRegistered) {
		return reply(model.KindNotFound, "❌ This user does not have a passport.")
	}
	if err != nil {
		return nil, err
	}
	registered := rec.RegisteredAt.UTC().Format(registeredLayout)
	text := strings.Join([]string{
		"🛂 Passport for " + member.Mention(),
		"Name: " + member.DisplayName(),
		"Badge ID: " + rec.BadgeID,
		"Registered: " + registered,
		"Citizen ID: " + member.ID,
		"Status: Verified member",
	}, "\n")
	data := badgeData(rec)
	data["name"] = member.DisplayName()
	data["status"] = "verified"
	return success(text, data)
}

func (s *service) kick(ctx context.Context, req *dispatch.Request) (*model.Response, error) {
	member := req.Args.Member("member")
	reason := req.Args.String("reason")
	if err := s.Gateway.Kick(ctx, member.ID, reason); err != nil {
		return nil, fmt.Errorf("kick %s: %w", member.ID, err)
	}
	s.recordAndPublish(ctx, events.TopicMemberKicked, member.ID, req.Principal.ID,
		events.MemberKicked{MemberID: member.ID, Reason: reason, Actor: req.Principal.ID})
	return success(
		fmt.Sprintf("👢 %s kicked. Reason: %s", member.DisplayName(), defaultReason(reason)),
		map[string]any{"member_id": member.ID, "reason": reason},
	)
}

func (s *service) addRole(ctx context.Context, req *dispatch.Request) (*model.Response, error) {
	member := req.Args.Member("member")
	role := req.Args.String("role")
	if err := s.Gateway.AddRole(ctx, member.ID, role, "requested by "+req.Principal.ID); err != nil {
		return nil, fmt.Errorf("add role %s to %s: %w", role, member.ID, err)
	}
	s.recordAndPublish(ctx, events.TopicRoleAdded, member.ID, req.Principal.ID,
		events.RoleAdded{MemberID: member.ID, Role: role, Actor: req.Principal.ID})
	return success(fmt.Sprintf("➕ Added %s to %s", role, member.Mention()),
		map[string]any{"member_id": member.ID, "role": role})
}

func (s *service) removeRole(ctx context.Context, req *dispatch.Request) (*model.Response, error) {
	member := req.Args.Member("member")
	role := req.Args.String("role")
	if err := s.Gateway.RemoveRole(ctx, member.ID, role, "requested by "+req.Principal.ID); err != nil {
		return nil, fmt.Errorf("remove role %s from %s: %w", role, member.ID, err)
	}
	s.recordAndPublish(ctx, events.TopicRoleRemoved, member.ID, req.Principal.ID,
		events.RoleRemoved{MemberID: member.ID, Role: role, Actor: req.Principal.ID})
	return success(fmt.Sprintf("➖ Removed %s from %s", role, member.Mention()),
		map[string]any{"member_id": member.ID, "role": role})
}

// accept grants the member role. The grant is best-effort, like the
// verified role on approval: the acceptance stands even if it fails.
func (s *service) accept(ctx context.Context, req *dispatch.Request) (*model.Response, error) {
	member := req.Args.Member("member")
	role := s.Policy.MemberRole
	if role != "" {
		if err := s.Gateway.AddRole(ctx, member.ID, role, "application accepted"); err != nil {
			s.Logger.Warn("failed to grant member role", "member_id", member.ID, "role", role, "err", err)
		}
	}
	s.recordAndPublish(ctx, events.TopicApplicationAccepted, member.ID, req.Principal.ID,
		events.ApplicationAccepted{MemberID: member.ID, Role: role, Actor: req.Principal.ID})
	return success("✅ Application accepted for "+member.Mention(), map[string]any{"member_id": member.ID})
}

func (s *service) reject(ctx context.Context, req *dispatch.Request) (*model.Response, error) {
	member := req.Args.Member("member")
	s.recordAndPublish(ctx, events.TopicApplicationRejected, member.ID, req.Principal.ID,
		events.ApplicationRejected{MemberID: member.ID, Actor: req.Principal.ID})
	return success("❌ Application rejected for "+member.Mention(), map[string]any{"member_id": member.ID})
}

func (s *service) cmdlist(_ context.Context, _ *dispatch.Request) (*model.Response, error) {
	handlers := s.disp.Handlers()
	lines := make([]string, 0, len(handlers)+1)
	lines = append(lines, "📜 **Available Commands:**")
	list := make([]map[string]any, 0, len(handlers))
	for _, h := range handlers {
		lines = append(lines, fmt.Sprintf("%s: %s", s.disp.Usage(h), h.Summary))
		list = append(list, map[string]any{
			"name":        h.Name,
			"aliases":     h.Aliases,
			"usage":       s.disp.Usage(h),
			"summary":     h.Summary,
			"requirement": h.Requirement.String(),
		})
	}
	return success(strings.Join(lines, "\n"), map[string]any{"commands": list})
}
