package dispatch

import (
	"fmt"
	"strings"

	"github.com/alfredjeanlab/nari/internal/model"
)

// ArgKind is the shape of one declared command argument.
type ArgKind int

const (
	// ArgLiteral must match one of ArgSpec.Choices, case-insensitively.
	ArgLiteral ArgKind = iota
	// ArgMember is a required member reference.
	ArgMember
	// ArgOptionalMember defaults to the invoker when omitted.
	ArgOptionalMember
	// ArgRole is a role reference. As the final argument it consumes the
	// remaining tokens, so role names may contain spaces.
	ArgRole
	// ArgRest joins all remaining tokens. It must be last.
	ArgRest
)

// ArgSpec declares one positional argument.
type ArgSpec struct {
	Name     string
	Kind     ArgKind
	Choices  []string
	Required bool
}

func Literal(name string, choices ...string) ArgSpec {
	return ArgSpec{Name: name, Kind: ArgLiteral, Choices: choices, Required: true}
}

func Member(name string) ArgSpec {
	return ArgSpec{Name: name, Kind: ArgMember, Required: true}
}

func OptionalMember(name string) ArgSpec {
	return ArgSpec{Name: name, Kind: ArgOptionalMember}
}

func Role(name string) ArgSpec {
	return ArgSpec{Name: name, Kind: ArgRole, Required: true}
}

func Rest(name string, required bool) ArgSpec {
	return ArgSpec{Name: name, Kind: ArgRest, Required: required}
}

func (s ArgSpec) usage() string {
	var u string
	switch s.Kind {
	case ArgLiteral:
		u = strings.Join(s.Choices, "|")
	case ArgMember, ArgOptionalMember:
		u = "@" + s.Name
	case ArgRest:
		u = s.Name + "..."
	default:
		u = s.Name
	}
	if s.Kind == ArgLiteral {
		return u
	}
	if s.Required {
		return "<" + u + ">"
	}
	return "[" + u + "]"
}

// Resolver turns argument tokens into platform references.
type Resolver interface {
	ResolveMember(token string, inv *model.Invocation) (model.Member, error)
	ResolveRole(token string) (string, error)
}

// Args holds parsed arguments by name.
type Args struct {
	values  map[string]string
	members map[string]model.Member
}

// String returns a literal, role, or rest-of-line argument.
func (a Args) String(name string) string { return a.values[name] }

// Member returns a member argument.
func (a Args) Member(name string) model.Member { return a.members[name] }

func parseArgs(specs []ArgSpec, tokens []string, inv *model.Invocation, r Resolver) (Args, error) {
	args := Args{values: map[string]string{}, members: map[string]model.Member{}}
	pos := 0
	for i, spec := range specs {
		last := i == len(specs)-1
		var tok string
		if pos < len(tokens) {
			tok = tokens[pos]
		}

		switch spec.Kind {
		case ArgLiteral:
			if tok == "" {
				return args, fmt.Errorf("missing %s", spec.Name)
			}
			matched := false
			for _, c := range spec.Choices {
				if strings.EqualFold(tok, c) {
					args.values[spec.Name] = c
					matched = true
					break
				}
			}
			if !matched {
				return args, fmt.Errorf("expected %s, got %q", strings.Join(spec.Choices, " or "), tok)
			}
			pos++

		case ArgMember, ArgOptionalMember:
			if tok == "" {
				if spec.Kind == ArgMember {
					return args, fmt.Errorf("missing %s", spec.Name)
				}
				args.members[spec.Name] = model.Member{ID: inv.Principal.ID, Name: inv.Principal.Name}
				continue
			}
			m, err := r.ResolveMember(tok, inv)
			if err != nil {
				return args, fmt.Errorf("%s: %w", spec.Name, err)
			}
			args.members[spec.Name] = m
			pos++

		case ArgRole:
			if tok == "" {
				return args, fmt.Errorf("missing %s", spec.Name)
			}
			if last {
				tok = strings.Join(tokens[pos:], " ")
				pos = len(tokens)
			} else {
				pos++
			}
			role, err := r.ResolveRole(tok)
			if err != nil {
				return args, fmt.Errorf("%s: %w", spec.Name, err)
			}
			args.values[spec.Name] = role

		case ArgRest:
			rest := strings.TrimSpace(strings.Join(tokens[min(pos, len(tokens)):], " "))
			if rest == "" && spec.Required {
				return args, fmt.Errorf("missing %s", spec.Name)
			}
			args.values[spec.Name] = rest
			pos = len(tokens)
		}
	}
	if pos < len(tokens) {
		return args, fmt.Errorf("unexpected argument %q", tokens[pos])
	}
	return args, nil
}
