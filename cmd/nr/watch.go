package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/nari/internal/client"
	"github.com/alfredjeanlab/nari/internal/events"
	"github.com/alfredjeanlab/nari/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Stream ledger and moderation events as they happen",
	GroupID: "ledger",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		topic, _ := cmd.Flags().GetString("topic")
		natsURL, _ := cmd.Flags().GetString("nats")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if natsURL != "" {
			return watchNATS(ctx, cmd.OutOrStdout(), natsURL, topic)
		}
		return watchSSE(ctx, cmd.OutOrStdout(), topic)
	},
}

func defaultWatchNATSURL() string {
	if s := os.Getenv("NARI_NATS_URL"); s != "" {
		return s
	}
	return activeRemoteNATSURL()
}

// watchNATS prints raw event payloads straight off the bus.
func watchNATS(ctx context.Context, w io.Writer, natsURL, topic string) error {
	sub, err := events.NewNATSSubscriber(natsURL,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats: disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			slog.Info("nats: reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer sub.Close()

	return events.Follow(ctx, sub, topic, func(data []byte) error {
		printWatchLine(w, time.Now(), "", data)
		return nil
	})
}

// watchSSE follows the server's event stream and reconnects with the last
// seen id when the connection drops.
func watchSSE(ctx context.Context, w io.Writer, topic string) error {
	var lastID int64
	backoff := time.Second
	for {
		err := httpClient.StreamEvents(ctx, topic, lastID, func(e client.StreamEvent) error {
			lastID = e.ID
			backoff = time.Second
			printWatchLine(w, time.Now(), e.Topic, e.Data)
			return nil
		})
		if ctx.Err() != nil {
			return nil
		}
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			return err
		}
		if err != nil {
			slog.Warn("event stream dropped", "err", err, "retry_in", backoff)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func printWatchLine(w io.Writer, at time.Time, topic string, data []byte) {
	if jsonOutput {
		fmt.Fprintln(w, string(data))
		return
	}
	var payload struct {
		MemberID string `json:"member_id"`
		Actor    string `json:"actor"`
		BadgeID  string `json:"-"`
		Role     string `json:"role"`
		Record   *struct {
			MemberID string `json:"member_id"`
			BadgeID  string `json:"badge_id"`
		} `json:"record"`
	}
	_ = json.Unmarshal(data, &payload)
	if payload.Record != nil {
		payload.MemberID = payload.Record.MemberID
		payload.BadgeID = payload.Record.BadgeID
	}

	line := ui.RenderMuted(at.Format("15:04:05"))
	if topic != "" {
		line += " " + topic
	}
	if payload.MemberID != "" {
		line += " member=" + payload.MemberID
	}
	if payload.BadgeID != "" {
		line += " badge=" + ui.RenderAccent(payload.BadgeID)
	}
	if payload.Role != "" {
		line += " role=" + payload.Role
	}
	if payload.Actor != "" {
		line += " by=" + payload.Actor
	}
	if payload.MemberID == "" {
		line += " " + string(data)
	}
	fmt.Fprintln(w, line)
}

func init() {
	watchCmd.Flags().String("topic", events.AllTopics, "topic filter (NATS wildcards; comma-separated over HTTP)")
	watchCmd.Flags().String("nats", defaultWatchNATSURL(), "read events from NATS instead of the server's SSE stream")
}
