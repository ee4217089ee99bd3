package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Policy is the command policy file. Every field is optional.
//
//	command_prefix  = ";"
//	unknown_command = "reply"
//	badge_prefix    = "NR"
//	verified_role   = "Verified"
//	member_role     = "Member"
//	officer_roles   = ["Visa Officer", "Admin"]
//
//	[commands.kick]
//	roles = ["Moderator"]
type Policy struct {
	CommandPrefix  string                   `toml:"command_prefix"`
	UnknownCommand string                   `toml:"unknown_command"`
	BadgePrefix    string                   `toml:"badge_prefix"`
	VerifiedRole   string                   `toml:"verified_role"`
	MemberRole     string                   `toml:"member_role"`
	OfficerRoles   []string                 `toml:"officer_roles"`
	Commands       map[string]CommandPolicy `toml:"commands"`
}

// CommandPolicy overrides one command's requirement. Roles takes precedence
// over Permission. Permission "none" clears the gate; an override naming
// neither keeps the built-in requirement.
type CommandPolicy struct {
	Roles      []string `toml:"roles"`
	Permission string   `toml:"permission"`
	Disabled   bool     `toml:"disabled"`
}

// DefaultPolicy returns the built-in policy.
func DefaultPolicy() *Policy {
	return &Policy{
		CommandPrefix:  ";",
		UnknownCommand: "silent",
		BadgePrefix:    "NR",
		VerifiedRole:   "Verified",
		MemberRole:     "Member",
		OfficerRoles:   []string{"Visa Officer", "Admin"},
	}
}

// LoadPolicy reads path over DefaultPolicy. An empty path returns the
// defaults.
func LoadPolicy(path string) (*Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}
	md, err := toml.Decode(string(data), p)
	if err != nil {
		return nil, fmt.Errorf("parsing policy file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("policy file %s: unknown keys %v", path, undecoded)
	}
	return p, nil
}

// ApplyEnv lets NARI_BADGE_PREFIX and NARI_UNKNOWN_COMMAND override the file.
func (p *Policy) ApplyEnv(c *Config) {
	if c.BadgePrefix != "" {
		p.BadgePrefix = c.BadgePrefix
	}
	if c.UnknownCommand != "" {
		p.UnknownCommand = c.UnknownCommand
	}
}
