// Package server exposes the debate pipeline over HTTP: start debates
// (buffered or streamed), browse stored transcripts, replay them with
// extra rounds, and score syntheses against reference answers.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/richardspicer/questionable-ai/internal/debate"
	"github.com/richardspicer/questionable-ai/internal/domain"
	"github.com/richardspicer/questionable-ai/internal/pkg/config"
	"github.com/richardspicer/questionable-ai/internal/scoring"
	"github.com/richardspicer/questionable-ai/internal/transcripts"
)

// Server is the HTTP front of the debate pipeline.
type Server struct {
	cfg      *config.Config
	orch     *debate.Orchestrator
	scorer   *scoring.Scorer
	registry *transcripts.Registry
	router   *chi.Mux
	logger   *slog.Logger
	addr     string
	httpSrv  *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used by the server and its middleware.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRegistry substitutes the transcript registry, mainly so tests can
// pre-seed it.
func WithRegistry(r *transcripts.Registry) Option {
	return func(s *Server) {
		if r != nil {
			s.registry = r
		}
	}
}

// WithAddr overrides the listen address derived from config.
func WithAddr(addr string) Option {
	return func(s *Server) {
		if addr != "" {
			s.addr = addr
		}
	}
}

// New builds the server around an orchestrator and scorer sharing one
// dispatcher.
func New(cfg *config.Config, orch *debate.Orchestrator, scorer *scoring.Scorer, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		orch:     orch,
		scorer:   scorer,
		registry: transcripts.NewRegistry(),
		router:   chi.NewRouter(),
		logger:   slog.Default(),
		addr:     fmt.Sprintf(":%d", cfg.Server.Port),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	timeout := time.Duration(s.cfg.Server.TimeoutSeconds) * time.Second
	limit := ConcurrencyLimit(s.cfg.Server.MaxConcurrent)

	s.router.Use(RequestIDMiddleware)
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "questionable-ai")
	})

	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/healthz", s.handleHealthz)

		r.Group(func(r chi.Router) {
			if s.cfg.Server.APIKey != "" {
				r.Use(BearerAuth(s.cfg.Server.APIKey))
			}
			r.Use(TimeoutMiddleware(timeout))

			r.Get("/panel", s.handlePanel)
			r.Get("/debates", s.handleListDebates)
			r.Get("/debates/{id}", s.handleGetDebate)

			r.Group(func(r chi.Router) {
				r.Use(limit)
				r.Post("/debates", s.handleCreateDebate)
				r.Post("/debates/stream", s.handleStreamDebate)
				r.Post("/debates/{id}/replay", s.handleReplayDebate)
				r.Post("/debates/{id}/score", s.handleScoreDebate)
			})
		})
	})
}

// ServeHTTP makes the server mountable and testable as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string { return s.addr }

// Start listens and serves until Shutdown is called. The write timeout
// leaves headroom above the request timeout so a full-length debate can
// still stream its response.
func (s *Server) Start() error {
	timeout := time.Duration(s.cfg.Server.TimeoutSeconds) * time.Second
	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      timeout + 30*time.Second,
	}

	s.logger.Info("server listening", slog.String("addr", s.addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	s.logger.Info("server shutting down")
	return s.httpSrv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// errorBody is the wire shape of one error inside the response envelope.
type errorBody struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	Vendor     string `json:"vendor,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// errorBodyOf maps a pipeline error onto an HTTP status and wire body.
// Unknown errors become opaque 500s.
func errorBodyOf(err error) (int, errorBody) {
	var de *domain.DebateError
	if errors.As(err, &de) {
		return de.HTTPStatusCode(), errorBody{
			Type:       string(de.Type),
			Message:    de.Message,
			Vendor:     string(de.Vendor),
			StatusCode: de.StatusCode,
		}
	}
	return http.StatusInternalServerError, errorBody{Type: "internal_error", Message: "Internal server error."}
}

func writeError(w http.ResponseWriter, err error) {
	status, body := errorBodyOf(err)
	writeJSON(w, status, errorEnvelope{Error: body})
}

func writeErrorStatus(w http.ResponseWriter, status int, typ, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{Type: typ, Message: message}})
}
