package debate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/richardspicer/questionable-ai/internal/domain"
	"github.com/richardspicer/questionable-ai/internal/pkg/config"
	"github.com/richardspicer/questionable-ai/internal/prompts"
	"github.com/richardspicer/questionable-ai/internal/tokens"
)

// Request describes one debate run. Zero fields fall back to the
// configured defaults.
type Request struct {
	// Query is the question put to the panel. Required.
	Query string

	// Panel lists aliases or full model IDs. Empty uses the configured
	// panel.
	Panel []string

	// Synthesizer is the alias or model ID that writes the final
	// answer. It does not have to sit on the panel.
	Synthesizer string

	// Rounds is the number of reflection rounds, 1 to 3.
	Rounds int

	// MaxTokens caps each response.
	MaxTokens int

	// PanelContext carries per-alias context prepended to every prompt
	// for that member, including synthesis.
	PanelContext map[string]string

	// Metadata is merged into the transcript metadata. Reserved keys
	// (version, panelist_context) are set by the orchestrator and win.
	Metadata map[string]any

	// Observer, when set, receives each completed round.
	Observer Observer
}

// Orchestrator validates debate requests, binds panels against the
// configuration, runs the engine, and assembles transcripts.
type Orchestrator struct {
	cfg       *config.Config
	engine    *Engine
	templates prompts.Templates
	counter   *tokens.Registry
	logger    *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger, shared with its engine.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithTokenRegistry overrides the token counter used to annotate
// results whose vendor reported no usage.
func WithTokenRegistry(r *tokens.Registry) Option {
	return func(o *Orchestrator) { o.counter = r }
}

// New creates an orchestrator over a dispatcher. Prompt template
// overrides from the configuration are applied here.
func New(cfg *config.Config, dispatcher Dispatcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:     cfg,
		counter: tokens.NewRegistry(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.templates = prompts.Defaults().Merge(prompts.Templates{
		Initial:    cfg.Prompts.Initial,
		Reflection: cfg.Prompts.Reflection,
		Synthesis:  cfg.Prompts.Synthesis,
		Scoring:    cfg.Prompts.Scoring,
	})
	o.engine = NewEngine(dispatcher,
		WithTemplates(o.templates),
		WithEngineLogger(o.logger),
	)
	return o
}

// Templates returns the effective prompt templates after configuration
// overrides.
func (o *Orchestrator) Templates() prompts.Templates { return o.templates }

// Run executes a debate and returns its transcript. Preconditions
// (empty query or panel, bad round count, unresolvable names, an
// unroutable synthesizer) fail before any dispatch; once rounds start,
// member failures are contained in their slots and the debate always
// completes unless the context is cancelled.
func (o *Orchestrator) Run(ctx context.Context, req *Request) (*domain.DebateTranscript, error) {
	plan, err := o.plan(req)
	if err != nil {
		return nil, err
	}

	t := o.newTranscript(plan.Query, plan, req.Metadata)
	if len(req.PanelContext) > 0 {
		t.Metadata["panelist_context"] = req.PanelContext
	}

	o.logger.Info("debate starting",
		"transcript_id", t.ShortID(),
		"panel", len(plan.Panel),
		"rounds", plan.Rounds,
		"synthesizer", plan.Synthesizer.ModelID)

	rounds, synthesis, err := o.engine.Run(ctx, plan)
	if err != nil {
		return nil, fmt.Errorf("debate interrupted: %w", err)
	}
	t.Rounds = rounds
	t.Synthesis = synthesis
	o.annotate(t)

	o.logger.Info("debate complete",
		"transcript_id", t.ShortID(),
		"rounds", len(t.Rounds),
		"synthesis_failed", synthesis.Failed())
	return t, nil
}

// plan validates a request and binds its panel and synthesizer.
func (o *Orchestrator) plan(req *Request) (*Plan, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, domain.ErrInvalidRequest("Query must not be empty.")
	}

	names := req.Panel
	if len(names) == 0 {
		names = o.cfg.Debate.Panel
	}
	if len(names) == 0 {
		return nil, domain.ErrInvalidRequest("Panel must not be empty.")
	}

	rounds := req.Rounds
	if rounds == 0 {
		rounds = o.cfg.Debate.Rounds
	}
	if rounds < 1 || rounds > config.MaxRounds {
		return nil, domain.ErrInvalidRequestf("Rounds must be between 1 and %d.", config.MaxRounds)
	}

	synName := req.Synthesizer
	if synName == "" {
		synName = o.cfg.Debate.Synthesizer
	}

	panel, err := BindPanel(o.cfg, names)
	if err != nil {
		return nil, err
	}
	syn, err := BindMember(o.cfg, o.cfg.Credentials(), synName)
	if err != nil {
		return nil, err
	}
	if syn.BindErr != nil {
		return nil, syn.BindErr
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = o.cfg.Debate.MaxTokens
	}

	return &Plan{
		Query:        query,
		Panel:        panel,
		Synthesizer:  syn,
		Rounds:       rounds,
		MaxTokens:    maxTokens,
		PanelContext: req.PanelContext,
		Observer:     req.Observer,
	}, nil
}

// newTranscript stamps identity, panel membership, and metadata.
// Caller metadata is merged first so reserved keys win.
func (o *Orchestrator) newTranscript(query string, plan *Plan, metadata map[string]any) *domain.DebateTranscript {
	meta := make(map[string]any, len(metadata)+2)
	for k, v := range metadata {
		meta[k] = v
	}
	meta["version"] = domain.Version

	return &domain.DebateTranscript{
		TranscriptID:  uuid.New().String(),
		Query:         query,
		Panel:         members(plan.Panel),
		SynthesizerID: plan.Synthesizer.ModelID,
		MaxRounds:     plan.Rounds,
		Rounds:        []*domain.DebateRound{},
		CreatedAt:     time.Now().UTC(),
		Metadata:      meta,
	}
}

// annotate backfills estimated token counts on results whose vendor
// reported no usage.
func (o *Orchestrator) annotate(t *domain.DebateTranscript) {
	for _, round := range t.Rounds {
		for _, r := range round.Responses {
			o.counter.Annotate(r)
		}
	}
	o.counter.Annotate(t.Synthesis)
}
