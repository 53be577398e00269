package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MikeSquared-Agency/vizchat/internal/viz"
)

// Responder answers one chat turn.
type Responder interface {
	Respond(ctx context.Context, conv viz.Conversation) (*viz.Reply, error)
}

type Options struct {
	Port      int
	Model     string
	Python    string
	RateLimit int
	RateBurst int
}

type Server struct {
	router    *chi.Mux
	opts      Options
	responder Responder
	runner    viz.Executor
	logger    *slog.Logger
	http      *http.Server
}

func NewServer(opts Options, responder Responder, runner viz.Executor, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:    router,
		opts:      opts,
		responder: responder,
		runner:    runner,
		logger:    logger,
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/vizchat/status", s.status)
	router.Get("/api/plot", s.plot)
	router.Group(func(r chi.Router) {
		if opts.RateLimit > 0 {
			r.Use(RateLimitMiddleware(opts.RateLimit, opts.RateBurst, logger))
		}
		r.Post("/api/chat", s.chat)
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

func (s *Server) Start() error {
	s.logger.Info("API server starting", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"agent":        "vizchat",
		"model":        s.opts.Model,
		"interpreter":  s.opts.Python,
		"max_attempts": viz.MaxAttempts,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
