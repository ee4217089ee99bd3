package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/nari/internal/registry"
	narisync "github.com/alfredjeanlab/nari/internal/sync"
)

var exportCmd = localCmd(&cobra.Command{
	Use:     "export",
	Short:   "Write the ledger as JSONL (reads NARI_DATABASE_URL directly)",
	GroupID: "ledger",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		var w io.Writer = cmd.OutOrStdout()
		if output != "" && output != "-" {
			f, err := os.OpenFile(output, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		if err := narisync.ExportJSONL(context.Background(), s, w); err != nil {
			return fmt.Errorf("exporting ledger: %w", err)
		}
		if output != "" && output != "-" {
			fmt.Fprintf(cmd.ErrOrStderr(), "ledger written to %s\n", output)
		}
		return nil
	},
})

var importCmd = localCmd(&cobra.Command{
	Use:     "import <file>",
	Short:   "Restore badges from a JSONL export (reads NARI_DATABASE_URL directly)",
	GroupID: "ledger",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, policy, err := loadConfig()
		if err != nil {
			return err
		}
		alloc, err := newAllocator(policy)
		if err != nil {
			return err
		}
		s, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		var r io.Reader = cmd.InOrStdin()
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}

		ctx := context.Background()
		report, err := narisync.ImportJSONL(ctx, s, r)
		if err != nil {
			return fmt.Errorf("importing ledger: %w", err)
		}

		// Imported ids may sit above the exported counter.
		reg, err := registry.New(registry.Options{Store: s, Allocator: alloc, Logger: newLogger()})
		if err != nil {
			return err
		}
		rec, err := reg.Reconcile(ctx)
		if err != nil {
			return fmt.Errorf("reconciling counter: %w", err)
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]any{"import": report, "reconcile": rec})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d badge(s), skipped %d existing; counter at %d\n",
			report.Imported, report.Skipped, rec.Counter)
		return nil
	},
})

var reconcileCmd = localCmd(&cobra.Command{
	Use:     "reconcile",
	Short:   "Repair the badge counter against the ledger (reads NARI_DATABASE_URL directly)",
	GroupID: "ledger",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, policy, err := loadConfig()
		if err != nil {
			return err
		}
		alloc, err := newAllocator(policy)
		if err != nil {
			return err
		}
		s, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		reg, err := registry.New(registry.Options{Store: s, Allocator: alloc, Logger: newLogger()})
		if err != nil {
			return err
		}
		report, err := reg.Reconcile(context.Background())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), report)
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "badges:       %d\n", report.Badges)
		fmt.Fprintf(w, "max sequence: %d\n", report.MaxSequence)
		if report.Adjusted {
			fmt.Fprintf(w, "counter:      %d (was %d)\n", report.Counter, report.Previous)
		} else {
			fmt.Fprintf(w, "counter:      %d (unchanged)\n", report.Counter)
		}
		for _, id := range report.Skipped {
			fmt.Fprintf(w, "skipped:      %s (foreign prefix)\n", id)
		}
		return nil
	},
})

func init() {
	exportCmd.Flags().StringP("output", "o", "", "write to file instead of stdout")
}
