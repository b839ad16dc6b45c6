// Package runtime assembles the debate pipeline from configuration:
// opened backends, the dispatcher over them, the orchestrator and
// scorer, and the HTTP server. Both binaries build an App and pick the
// pieces they need.
package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/richardspicer/questionable-ai/internal/debate"
	"github.com/richardspicer/questionable-ai/internal/dispatch"
	"github.com/richardspicer/questionable-ai/internal/pkg/config"
	"github.com/richardspicer/questionable-ai/internal/scoring"
	"github.com/richardspicer/questionable-ai/internal/server"
	"github.com/richardspicer/questionable-ai/internal/transcripts"
)

// App is an assembled pipeline. Construct with New, release with Close
// (or Shutdown when the server was started).
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	addr       string
	dispatcher *dispatch.Dispatcher
	orch       *debate.Orchestrator
	scorer     *scoring.Scorer
	registry   *transcripts.Registry
	server     *server.Server
}

// Option configures an App before assembly.
type Option func(*App) error

// WithConfigFile loads configuration from a YAML file. A missing file
// falls back to defaults plus environment variables.
func WithConfigFile(path string) Option {
	return func(a *App) error {
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		a.cfg = cfg
		return nil
	}
}

// WithConfig uses an already-loaded configuration.
func WithConfig(cfg *config.Config) Option {
	return func(a *App) error {
		a.cfg = cfg
		return nil
	}
}

// WithLogger sets the logger shared across the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) error {
		if logger != nil {
			a.logger = logger
		}
		return nil
	}
}

// WithListenAddr overrides the server listen address from config.
func WithListenAddr(addr string) Option {
	return func(a *App) error {
		a.addr = addr
		return nil
	}
}

// New assembles the pipeline. Backends are opened for every
// credentialed vendor whose adapter is linked in; assembly fails only
// when a configured backend cannot be opened, not when credentials are
// simply absent.
func New(opts ...Option) (*App, error) {
	a := &App{logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}

	if a.cfg == nil {
		cfg, err := config.Load("")
		if err != nil {
			return nil, err
		}
		a.cfg = cfg
	}

	d, err := dispatch.FromConfig(a.cfg, dispatch.WithLogger(a.logger))
	if err != nil {
		return nil, fmt.Errorf("open backends: %w", err)
	}
	a.dispatcher = d

	a.orch = debate.New(a.cfg, d, debate.WithLogger(a.logger))
	a.scorer = scoring.New(d,
		scoring.WithTemplates(a.orch.Templates()),
		scoring.WithLogger(a.logger),
		scoring.WithMaxTokens(a.cfg.Debate.MaxTokens))
	a.registry = transcripts.NewRegistry()
	a.server = server.New(a.cfg, a.orch, a.scorer,
		server.WithLogger(a.logger),
		server.WithRegistry(a.registry),
		server.WithAddr(a.addr))

	return a, nil
}

// Config returns the effective configuration.
func (a *App) Config() *config.Config { return a.cfg }

// Orchestrator returns the assembled debate orchestrator.
func (a *App) Orchestrator() *debate.Orchestrator { return a.orch }

// Scorer returns the assembled ground-truth scorer.
func (a *App) Scorer() *scoring.Scorer { return a.scorer }

// Transcripts returns the transcript registry behind the server.
func (a *App) Transcripts() *transcripts.Registry { return a.registry }

// Start serves HTTP until Shutdown. It blocks.
func (a *App) Start() error {
	a.logger.Info("pipeline assembled",
		slog.Any("backends", a.dispatcher.Backends()),
		slog.String("addr", a.server.Addr()))
	return a.server.Start()
}

// Shutdown drains the server, then releases backends.
func (a *App) Shutdown(ctx context.Context) error {
	if err := a.server.Shutdown(ctx); err != nil {
		return err
	}
	return a.dispatcher.Close()
}

// Close releases backends without touching the server. CLI runs that
// never started the server use this.
func (a *App) Close() error {
	return a.dispatcher.Close()
}
