package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/vizchat/internal/config"
)

const renderLongDesc string = `Generate a chart document for a task without the chat layer.

Runs the generate-execute loop once and prints the resulting Plotly JSON.
Exits non-zero when every attempt failed.

Examples:
  vizchat render "line chart of y=x^2 from 0 to 10"
  vizchat render --out squares.json --show-code "bar chart of the planets by mass"`

type renderCommander struct {
	outPath  string
	showCode bool
}

func newRenderCmd() *cobra.Command {
	cmder := &renderCommander{}

	cmd := &cobra.Command{
		Use:   "render <task>",
		Short: "Render a single visualization task to chart JSON",
		Long:  renderLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVarP(&cmder.outPath, "out", "o", "", "Write the chart JSON to this file instead of stdout")
	cmd.Flags().BoolVar(&cmder.showCode, "show-code", false, "Print each attempt's code to stderr")

	return cmd
}

func (c *renderCommander) run(cmd *cobra.Command, task string) error {
	cfg := config.Load()
	// Logs go to stderr so stdout stays a clean JSON document.
	setupLogging(os.Stderr, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.RequestTimeout)
		defer cancel()
	}

	_, _, loop, err := newPipeline(cfg)
	if err != nil {
		return err
	}

	outcome, err := loop.Run(ctx, task)
	if err != nil {
		return err
	}

	if c.showCode {
		for _, a := range outcome.History {
			fmt.Fprintf(cmd.ErrOrStderr(), "--- attempt %d ---\n%s\n", a.Number, a.Code)
			if a.Error != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "--- error ---\n%s\n", a.Error)
			}
		}
	}

	if !outcome.Succeeded() {
		return fmt.Errorf("failed to generate visualization after %d attempts: %s", outcome.Attempts, outcome.LastError)
	}

	if c.outPath != "" {
		if err := os.WriteFile(c.outPath, []byte(outcome.Result+"\n"), 0o644); err != nil {
			return fmt.Errorf("write chart: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%d attempts)\n", c.outPath, outcome.Attempts)
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), outcome.Result)
	return nil
}
