package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/alfredjeanlab/nari/internal/client"
	"github.com/alfredjeanlab/nari/internal/model"
	"github.com/alfredjeanlab/nari/internal/ui"
)

const timeLayout = "2006-01-02 15:04:05"

// responseError makes a refused or failed command exit non-zero after its
// reply has been printed.
type responseError struct {
	kind model.ResponseKind
}

func (e *responseError) Error() string {
	return "command finished with " + e.kind.String()
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// printResponse writes the reply text (or the whole response with --json)
// and returns a responseError unless the command succeeded.
func printResponse(w io.Writer, resp *model.Response) error {
	if jsonOutput {
		if err := printJSON(w, resp); err != nil {
			return err
		}
	} else if resp.Silent {
		fmt.Fprintln(w, ui.RenderMuted("(no reply: "+resp.Kind.String()+")"))
	} else {
		fmt.Fprintln(w, ui.RenderKind(resp.Kind.String(), resp.Text))
	}
	if !resp.OK() {
		return &responseError{kind: resp.Kind}
	}
	return nil
}

func printBadgesTable(w io.Writer, badges []*model.BadgeRecord) error {
	if len(badges) == 0 {
		fmt.Fprintln(w, "no badges issued")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "BADGE\tMEMBER\tREGISTERED")
	for _, b := range badges {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", ui.RenderAccent(b.BadgeID), b.MemberID, b.RegisteredAt.Local().Format(timeLayout))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d badge(s)\n", len(badges))
	return nil
}

func printEventsTable(w io.Writer, events []*model.Event) error {
	if len(events) == 0 {
		fmt.Fprintln(w, "no events")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tTOPIC\tMEMBER\tACTOR")
	for _, e := range events {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", e.ID, e.CreatedAt.Local().Format(timeLayout), e.Topic, e.MemberID, e.Actor)
	}
	return tw.Flush()
}

func printCommandsTable(w io.Writer, cmds []client.CommandInfo) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "USAGE\tALIASES\tREQUIRES\tSUMMARY")
	for _, c := range cmds {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.Usage, strings.Join(c.Aliases, ","), c.Requirement, c.Summary)
	}
	return tw.Flush()
}
