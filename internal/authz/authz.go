// Package authz decides whether a principal may run a command.
package authz

import (
	"fmt"
	"strings"

	"github.com/alfredjeanlab/nari/internal/model"
)

// Kind is the shape of a Requirement.
type Kind int

const (
	// KindNone is satisfied by every principal.
	KindNone Kind = iota
	// KindAnyRole requires at least one of the named roles.
	KindAnyRole
	// KindPermission requires a platform permission.
	KindPermission
)

// Requirement is attached to a command and checked before its body runs.
// The zero value requires nothing.
type Requirement struct {
	Kind       Kind
	Roles      []string
	Permission model.Permission
}

// None returns a requirement every principal satisfies.
func None() Requirement { return Requirement{} }

// AnyRole returns a requirement satisfied by holding any of roles.
func AnyRole(roles ...string) Requirement {
	return Requirement{Kind: KindAnyRole, Roles: roles}
}

// HasPermission returns a requirement satisfied by holding p (or administrator).
func HasPermission(p model.Permission) Requirement {
	return Requirement{Kind: KindPermission, Permission: p}
}

// String renders the requirement for help output.
func (r Requirement) String() string {
	switch r.Kind {
	case KindAnyRole:
		return "role: " + strings.Join(r.Roles, " | ")
	case KindPermission:
		return "permission: " + string(r.Permission)
	default:
		return "none"
	}
}

// Reason explains a denial.
type Reason string

const (
	ReasonMissingRole       Reason = "missing_role"
	ReasonMissingPermission Reason = "missing_permission"
)

// Decision is the outcome of Authorize.
type Decision struct {
	Allowed bool
	Reason  Reason
	// Missing lists the roles or the permission the principal lacked.
	Missing []string
}

func (d Decision) String() string {
	if d.Allowed {
		return "allowed"
	}
	return fmt.Sprintf("denied (%s: %s)", d.Reason, strings.Join(d.Missing, ", "))
}

// Authorize evaluates req against the principal's capability snapshot.
func Authorize(p model.Principal, req Requirement) Decision {
	switch req.Kind {
	case KindAnyRole:
		for _, role := range req.Roles {
			if p.HasRole(role) {
				return Decision{Allowed: true}
			}
		}
		return Decision{Reason: ReasonMissingRole, Missing: append([]string(nil), req.Roles...)}
	case KindPermission:
		if p.HasPermission(req.Permission) {
			return Decision{Allowed: true}
		}
		return Decision{Reason: ReasonMissingPermission, Missing: []string{string(req.Permission)}}
	default:
		return Decision{Allowed: true}
	}
}
