package model

// Permission is a platform permission bit held by a principal.
type Permission string

const (
	PermAdministrator  Permission = "administrator"
	PermKickMembers    Permission = "kick_members"
	PermBanMembers     Permission = "ban_members"
	PermManageRoles    Permission = "manage_roles"
	PermManageMessages Permission = "manage_messages"
)

// String returns the string representation of the permission.
func (p Permission) String() string {
	return string(p)
}

// Principal is the capability snapshot of whoever invoked a command, as
// reported by the messaging gateway.
type Principal struct {
	ID          string       `json:"id"`
	Name        string       `json:"name,omitempty"`
	Roles       []string     `json:"roles,omitempty"`
	Permissions []Permission `json:"permissions,omitempty"`
}

// HasRole reports whether the principal holds a role with exactly this name.
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasPermission reports whether the principal holds perm. Administrator
// implies every permission.
func (p Principal) HasPermission(perm Permission) bool {
	for _, have := range p.Permissions {
		if have == perm || have == PermAdministrator {
			return true
		}
	}
	return false
}

// Member is a resolved reference to a community member.
type Member struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// DisplayName returns the member's name, falling back to the id.
func (m Member) DisplayName() string {
	if m.Name != "" {
		return m.Name
	}
	return m.ID
}

// Mention renders the member in platform mention syntax.
func (m Member) Mention() string {
	return "<@" + m.ID + ">"
}
