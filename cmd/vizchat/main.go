package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/vizchat/internal/anthropic"
	"github.com/MikeSquared-Agency/vizchat/internal/config"
	"github.com/MikeSquared-Agency/vizchat/internal/pyexec"
	"github.com/MikeSquared-Agency/vizchat/internal/viz"
)

func main() {
	root := &cobra.Command{
		Use:           "vizchat",
		Short:         "Chat backend that turns requests into interactive charts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newRenderCmd(), newEventsCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		slog.Error("vizchat failed", "error", err)
		os.Exit(1)
	}
}

func setupLogging(w io.Writer, level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}

// newPipeline builds the model client, interpreter runner and retry loop
// shared by serve and render.
func newPipeline(cfg config.Config) (*anthropic.Client, *pyexec.Runner, *viz.Loop, error) {
	if cfg.AnthropicAPIKey == "" {
		return nil, nil, nil, errors.New("ANTHROPIC_API_KEY is required")
	}
	llm := anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)

	runner := pyexec.NewRunner(pyexec.Config{
		Python:         cfg.PythonPath,
		WorkDir:        cfg.WorkDir,
		Timeout:        cfg.ExecTimeout,
		MaxConcurrent:  cfg.MaxConcurrentExec,
		MaxQueued:      cfg.MaxQueuedExec,
		MaxOutputBytes: cfg.MaxOutputBytes,
	}, slog.Default())

	loop := viz.NewLoop(llm, runner, cfg.MaxTokens, slog.Default())
	return llm, runner, loop, nil
}
