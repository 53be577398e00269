package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/vizchat/internal/config"
	"github.com/MikeSquared-Agency/vizchat/internal/hermes"
)

const eventsLongDesc string = `Tail visualization outcome events from NATS.

Prints one line per finished visualization turn published by running
vizchat servers. Requires NATS_URL.`

type eventsCommander struct {
	failedOnly bool
	raw        bool
}

func newEventsCmd() *cobra.Command {
	cmder := &eventsCommander{}

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Tail visualization events",
		Long:  eventsLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd)
		},
	}

	cmd.Flags().BoolVar(&cmder.failedOnly, "failed", false, "Only show failed visualizations")
	cmd.Flags().BoolVar(&cmder.raw, "raw", false, "Print the raw JSON payloads")

	return cmd
}

func (c *eventsCommander) run(cmd *cobra.Command) error {
	cfg := config.Load()
	setupLogging(os.Stderr, cfg.LogLevel)
	if cfg.NatsURL == "" {
		return errors.New("NATS_URL is required")
	}

	client, err := hermes.NewClient(cfg.NatsURL, cfg.NatsToken, slog.Default())
	if err != nil {
		return err
	}
	defer client.Close()

	subject := hermes.SubjectVisualizationAll
	if c.failedOnly {
		subject = hermes.SubjectVisualizationFailed
	}

	out := cmd.OutOrStdout()
	lines := make(chan string, 64)
	err = client.Subscribe(subject, func(subject string, data []byte) {
		select {
		case lines <- c.format(subject, data):
		default:
			slog.Warn("event dropped, output is behind", "subject", subject)
		}
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for {
		select {
		case line := <-lines:
			fmt.Fprintln(out, line)
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *eventsCommander) format(subject string, data []byte) string {
	if c.raw {
		return string(data)
	}
	var evt hermes.VisualizationEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return fmt.Sprintf("%s: unreadable event: %v", subject, err)
	}
	return formatEvent(evt)
}

func formatEvent(evt hermes.VisualizationEvent) string {
	status := "ok"
	if !evt.Success {
		status = "FAILED"
	}
	line := fmt.Sprintf("%s %-6s attempts=%d %dms %q", evt.Timestamp, status, evt.Attempts, evt.DurationMS, evt.Task)
	if evt.LastError != "" {
		line += " error=" + lastLine(evt.LastError)
	}
	return line
}

// lastLine keeps the final line of a traceback, where Python puts the message.
func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
