package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/nari/internal/idgen"
	"github.com/alfredjeanlab/nari/internal/model"
)

var runMembers map[string]string

var runCmd = &cobra.Command{
	Use:     "run <command> [args...]",
	Short:   "Dispatch a raw command invocation",
	GroupID: "commands",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInvocation(cmd, args[0], args[1:]...)
	},
}

// runInvocation sends one invocation as the flag-selected principal and prints
// the reply.
func runInvocation(cmd *cobra.Command, command string, args ...string) error {
	id, err := idgen.InvocationID()
	if err != nil {
		return err
	}
	inv := &model.Invocation{
		ID:        id,
		Principal: principal(),
		Command:   command,
		Args:      args,
		Channel:   "cli",
		Members:   runMembers,
	}
	resp, err := commandClient.Dispatch(context.Background(), inv)
	if err != nil {
		return fmt.Errorf("dispatching %s: %w", command, err)
	}
	return printResponse(cmd.OutOrStdout(), resp)
}

// sugar maps a CLI subcommand onto a service command. build turns the
// positional arguments into invocation args.
type sugar struct {
	use   string
	short string
	args  cobra.PositionalArgs
	build func(args []string) []string
}

func verbatim(args []string) []string { return args }

var sugarTable = map[string]sugar{
	"visa": {
		use:   "visa <member>",
		short: "Approve a membership and issue a badge",
		args:  cobra.ExactArgs(1),
		build: func(args []string) []string { return []string{"done", args[0]} },
	},
	"badge": {
		use:   "badge [<member>]",
		short: "Show a member's badge id",
		args:  cobra.MaximumNArgs(1),
		build: verbatim,
	},
	"deletebadge": {
		use:   "deletebadge <member>",
		short: "Revoke a member's badge",
		args:  cobra.ExactArgs(1),
		build: verbatim,
	},
	"passport": {
		use:   "passport [<member>]",
		short: "Show a member's passport",
		args:  cobra.MaximumNArgs(1),
		build: verbatim,
	},
	"kick": {
		use:   "kick <member> [reason...]",
		short: "Kick a member",
		args:  cobra.MinimumNArgs(1),
		build: func(args []string) []string {
			if len(args) == 1 {
				return args
			}
			return []string{args[0], strings.Join(args[1:], " ")}
		},
	},
	"addrole": {
		use:   "addrole <member> <role>",
		short: "Grant a role to a member",
		args:  cobra.ExactArgs(2),
		build: verbatim,
	},
	"removerole": {
		use:   "removerole <member> <role>",
		short: "Remove a role from a member",
		args:  cobra.ExactArgs(2),
		build: verbatim,
	},
	"accept": {
		use:   "accept <member>",
		short: "Accept a membership application",
		args:  cobra.ExactArgs(1),
		build: verbatim,
	},
	"reject": {
		use:   "reject <member>",
		short: "Reject a membership application",
		args:  cobra.ExactArgs(1),
		build: verbatim,
	},
	"cmdlist": {
		use:   "cmdlist",
		short: "List the commands available in the channel",
		args:  cobra.NoArgs,
		build: verbatim,
	},
}

var sugarOrder = []string{"visa", "badge", "deletebadge", "passport", "kick", "addrole", "removerole", "accept", "reject", "cmdlist"}

func sugarCommands() []*cobra.Command {
	out := make([]*cobra.Command, 0, len(sugarOrder))
	for _, name := range sugarOrder {
		name, s := name, sugarTable[name]
		out = append(out, &cobra.Command{
			Use:     s.use,
			Short:   s.short,
			GroupID: "commands",
			Args:    s.args,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runInvocation(cmd, name, s.build(args)...)
			},
		})
	}
	return out
}

func init() {
	runCmd.Flags().StringToStringVar(&runMembers, "member", nil, "display name for a mentioned member id (id=name, repeatable)")
}
