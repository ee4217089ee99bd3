package gateway

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/alfredjeanlab/nari/internal/model"
)

var (
	memberMention = regexp.MustCompile(`^<@!?(\d+)>$`)
	roleMention   = regexp.MustCompile(`^<@&(\d+)>$`)
	snowflake     = regexp.MustCompile(`^\d+$`)
)

// MentionResolver understands platform mention syntax. Members are
// "<@id>", "<@!id>", a bare numeric id, or a name listed in the
// invocation's Members map. Roles are "<@&id>" or a plain name.
type MentionResolver struct{}

func (MentionResolver) ResolveMember(token string, inv *model.Invocation) (model.Member, error) {
	token = strings.TrimSpace(token)
	if m := memberMention.FindStringSubmatch(token); m != nil {
		return model.Member{ID: m[1], Name: inv.Members[m[1]]}, nil
	}
	if snowflake.MatchString(token) {
		return model.Member{ID: token, Name: inv.Members[token]}, nil
	}
	name := strings.TrimPrefix(token, "@")
	if name == "" {
		return model.Member{}, fmt.Errorf("unknown member %q", token)
	}
	var matches []model.Member
	for id, n := range inv.Members {
		if strings.EqualFold(n, name) {
			matches = append(matches, model.Member{ID: id, Name: n})
		}
	}
	switch len(matches) {
	case 0:
		return model.Member{}, fmt.Errorf("unknown member %q", token)
	case 1:
		return matches[0], nil
	}
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	slices.Sort(ids)
	return model.Member{}, fmt.Errorf("ambiguous member %q matches %s", token, strings.Join(ids, ", "))
}

func (MentionResolver) ResolveRole(token string) (string, error) {
	token = strings.TrimSpace(token)
	if m := roleMention.FindStringSubmatch(token); m != nil {
		return m[1], nil
	}
	if token == "" || strings.ContainsAny(token, "<>@") {
		return "", fmt.Errorf("invalid role %q", token)
	}
	return token, nil
}
