package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/nari/internal/client"
	"github.com/alfredjeanlab/nari/internal/model"
	"github.com/alfredjeanlab/nari/internal/ui"
)

var (
	serverURL  string
	grpcAddr   string
	useGRPC    bool
	authToken  string
	jsonOutput bool
	noColor    bool

	principalID    string
	principalName  string
	principalRoles []string
	principalPerms []string

	// httpClient serves the read-only ledger endpoints. commandClient is
	// httpClient unless --grpc is set.
	httpClient    *client.HTTPClient
	commandClient client.Client
)

func defaultServer() string {
	if s := os.Getenv("NARI_SERVER"); s != "" {
		return s
	}
	if u := activeRemoteURL(); u != "" {
		return u
	}
	return "http://localhost:8080"
}

func defaultGRPCAddr() string {
	if s := os.Getenv("NARI_GRPC_SERVER"); s != "" {
		return s
	}
	if a := activeRemoteGRPCAddr(); a != "" {
		return a
	}
	return "localhost:9090"
}

func defaultToken() string {
	if t := os.Getenv("NARI_TOKEN"); t != "" {
		return t
	}
	return activeRemoteToken()
}

func defaultPrincipal() string {
	if s := os.Getenv("NARI_ACTOR"); s != "" {
		return s
	}
	return "operator"
}

func splitEnv(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

var rootCmd = &cobra.Command{
	Use:          "nr <command>",
	Short:        "CLI for the nari badge ledger and moderation service",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor || !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
		httpClient = client.NewHTTPClient(serverURL, authToken)
		commandClient = httpClient
		if useGRPC {
			c, err := client.NewGRPCClient(grpcAddr, authToken)
			if err != nil {
				return fmt.Errorf("failed to connect to server: %w", err)
			}
			commandClient = c
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if commandClient != nil {
			commandClient.Close()
		}
	},
}

// localCmd skips client setup for subcommands that never talk to a server.
func localCmd(cmd *cobra.Command) *cobra.Command {
	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if noColor || !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
		return nil
	}
	cmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {}
	return cmd
}

// principal builds the invoking principal from the identity flags.
func principal() model.Principal {
	p := model.Principal{
		ID:    principalID,
		Name:  principalName,
		Roles: principalRoles,
	}
	for _, perm := range principalPerms {
		p.Permissions = append(p.Permissions, model.Permission(perm))
	}
	return p
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&serverURL, "server", defaultServer(), "HTTP server URL")
	pf.StringVar(&grpcAddr, "grpc-addr", defaultGRPCAddr(), "gRPC server address")
	pf.BoolVar(&useGRPC, "grpc", false, "send commands over gRPC instead of HTTP")
	pf.StringVar(&authToken, "token", defaultToken(), "bearer token")
	pf.BoolVar(&jsonOutput, "json", false, "output as JSON")
	pf.BoolVar(&noColor, "no-color", false, "disable colored output")

	pf.StringVar(&principalID, "as", defaultPrincipal(), "member id to invoke commands as")
	pf.StringVar(&principalName, "name", os.Getenv("NARI_ACTOR_NAME"), "display name of the invoking member")
	pf.StringSliceVar(&principalRoles, "role", splitEnv("NARI_ROLES"), "role held by the invoking member (repeatable)")
	pf.StringSliceVar(&principalPerms, "perm", splitEnv("NARI_PERMISSIONS"), "permission held by the invoking member (repeatable)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "commands", Title: "Commands:"},
		&cobra.Group{ID: "ledger", Title: "Ledger:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)
	cobra.EnableCommandSorting = false

	rootCmd.AddCommand(runCmd)
	for _, c := range sugarCommands() {
		rootCmd.AddCommand(c)
	}

	rootCmd.AddCommand(badgesCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(commandsCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(reconcileCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(remoteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
