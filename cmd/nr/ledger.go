package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/nari/internal/model"
)

var badgesCmd = &cobra.Command{
	Use:     "badges [<member-id>]",
	Short:   "List issued badges, or show one member's badge",
	GroupID: "ledger",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		w := cmd.OutOrStdout()

		if len(args) == 1 {
			rec, err := httpClient.GetBadge(ctx, args[0])
			if err != nil {
				return fmt.Errorf("getting badge: %w", err)
			}
			if jsonOutput {
				return printJSON(w, rec)
			}
			return printBadgesTable(w, []*model.BadgeRecord{rec})
		}

		resp, err := httpClient.ListBadges(ctx)
		if err != nil {
			return fmt.Errorf("listing badges: %w", err)
		}
		if jsonOutput {
			return printJSON(w, resp)
		}
		return printBadgesTable(w, resp.Badges)
	},
}

var eventsCmd = &cobra.Command{
	Use:     "events [<member-id>]",
	Short:   "Show the audit trail, newest first",
	GroupID: "ledger",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		limit, _ := cmd.Flags().GetInt("limit")

		var (
			evts []*model.Event
			err  error
		)
		if len(args) == 1 {
			evts, err = httpClient.GetMemberEvents(ctx, args[0])
		} else {
			evts, err = httpClient.ListEvents(ctx, limit)
		}
		if err != nil {
			return fmt.Errorf("listing events: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), evts)
		}
		return printEventsTable(cmd.OutOrStdout(), evts)
	},
}

var commandsCmd = &cobra.Command{
	Use:     "commands",
	Short:   "List the commands registered on the server",
	GroupID: "ledger",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmds, err := httpClient.ListCommands(context.Background())
		if err != nil {
			return fmt.Errorf("listing commands: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), cmds)
		}
		return printCommandsTable(cmd.OutOrStdout(), cmds)
	},
}

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the health of the nari service",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := commandClient.Health(context.Background())
		if err != nil {
			return fmt.Errorf("checking health: %w", err)
		}

		if jsonOutput {
			if err := printJSON(cmd.OutOrStdout(), map[string]string{"status": status}); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Health: %s\n", status)
		}

		if status != "ok" {
			return fmt.Errorf("unhealthy: %s", status)
		}
		return nil
	},
}

func init() {
	eventsCmd.Flags().Int("limit", 50, "maximum number of events to show")
}
