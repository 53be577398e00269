package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/vizchat/internal/api"
	"github.com/MikeSquared-Agency/vizchat/internal/config"
	"github.com/MikeSquared-Agency/vizchat/internal/hermes"
	"github.com/MikeSquared-Agency/vizchat/internal/viz"
)

const serveLongDesc string = `Run the HTTP API.

POST /api/chat takes {"messages":[{"role","content"}]} and answers with
{"response","visualizationData"}. Configuration comes from the environment
(VIZCHAT_*, ANTHROPIC_API_KEY, NATS_URL, LOG_LEVEL).`

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat HTTP API",
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(parent context.Context) error {
	cfg := config.Load()
	setupLogging(os.Stdout, cfg.LogLevel)

	slog.Info("vizchat starting", "port", cfg.Port)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	llm, runner, loop, err := newPipeline(cfg)
	if err != nil {
		return err
	}
	slog.Info("anthropic client ready", "model", cfg.AnthropicModel)

	// Run dirs older than one execution timeout cannot belong to a live run.
	if removed, err := runner.Sweep(cfg.ExecTimeout + time.Minute); err != nil {
		slog.Warn("failed to sweep stale run dirs", "error", err)
	} else if removed > 0 {
		slog.Info("removed stale run dirs", "count", removed)
	}
	slog.Info("interpreter runner ready", "python", cfg.PythonPath, "workdir", cfg.WorkDir, "timeout", cfg.ExecTimeout)

	// NATS is optional; events are informational only.
	var publisher viz.Publisher
	if cfg.NatsURL != "" {
		hermesClient, err := hermes.NewClient(cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			return err
		}
		defer hermesClient.Close()
		publisher = hermesClient
		slog.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		slog.Warn("NATS not configured, visualization events disabled")
	}

	dispatcher := viz.NewDispatcher(llm, loop, publisher, viz.DispatcherConfig{
		MaxTokens:      cfg.MaxTokens,
		RequestTimeout: cfg.RequestTimeout,
	}, slog.Default())

	srv := api.NewServer(api.Options{
		Port:      cfg.Port,
		Model:     cfg.AnthropicModel,
		Python:    cfg.PythonPath,
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
	}, dispatcher, runner, slog.Default())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	slog.Info("vizchat ready", "port", cfg.Port)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ExecTimeout+10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("graceful shutdown incomplete", "error", err)
	}
	slog.Info("vizchat stopped")
	return nil
}
