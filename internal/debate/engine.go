package debate

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/richardspicer/questionable-ai/internal/backend"
	"github.com/richardspicer/questionable-ai/internal/domain"
	"github.com/richardspicer/questionable-ai/internal/prompts"
)

// noResponsePlaceholder stands in for a member's own prior answer when
// the previous round errored for that seat.
const noResponsePlaceholder = "[No response available]"

// Plan is one fully-bound debate run. The engine treats it as
// immutable.
type Plan struct {
	Query        string
	Panel        []Panelist
	Synthesizer  Panelist
	Rounds       int
	MaxTokens    int
	PanelContext map[string]string
	Observer     Observer
}

// Engine drives the round state machine. Each round is a strict
// barrier: every panel request is dispatched concurrently, and the
// next round starts only after all slots have resolved to content or
// an error.
type Engine struct {
	dispatcher Dispatcher
	templates  prompts.Templates
	logger     *slog.Logger
	tracer     trace.Tracer
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithTemplates overrides the built-in prompt templates.
func WithTemplates(t prompts.Templates) EngineOption {
	return func(e *Engine) { e.templates = t }
}

// WithEngineLogger sets the engine logger.
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates an engine over a dispatcher.
func NewEngine(dispatcher Dispatcher, opts ...EngineOption) *Engine {
	e := &Engine{
		dispatcher: dispatcher,
		templates:  prompts.Defaults(),
		logger:     slog.Default(),
		tracer:     otel.Tracer("questionable-ai/debate"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the full pipeline for a plan: the initial round,
// plan.Rounds reflection rounds, then synthesis. Member failures are
// recorded in their slots and never abort the run; the only error
// returned is context cancellation, together with the rounds finished
// before the cut.
func (e *Engine) Run(ctx context.Context, plan *Plan) ([]*domain.DebateRound, *domain.RoundResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	initial := e.runRound(ctx, plan, 0, domain.RoundTypeInitial, e.initialPrompts(plan))
	rounds := []*domain.DebateRound{initial}
	e.notify(plan.Observer, initial)
	return e.Extend(ctx, plan, rounds, plan.Rounds)
}

// Extend continues a debate that already has rounds: it runs
// additional reflection rounds numbered from len(prior), then a fresh
// synthesis over the combined history. Replays are built on this.
func (e *Engine) Extend(ctx context.Context, plan *Plan, prior []*domain.DebateRound, additional int) ([]*domain.DebateRound, *domain.RoundResult, error) {
	rounds := prior
	for i := 0; i < additional; i++ {
		if err := ctx.Err(); err != nil {
			return rounds, nil, err
		}
		prev := rounds[len(rounds)-1]
		number := len(rounds)
		round := e.runRound(ctx, plan, number, domain.RoundTypeReflection, e.reflectionPrompts(plan, prev))
		rounds = append(rounds, round)
		e.notify(plan.Observer, round)
	}

	if err := ctx.Err(); err != nil {
		return rounds, nil, err
	}
	synthesis := e.synthesize(ctx, plan, rounds)
	synRound := &domain.DebateRound{
		RoundNumber: domain.RoundSynthesis,
		RoundType:   domain.RoundTypeSynthesis,
		Responses:   []*domain.RoundResult{synthesis},
	}
	e.notify(plan.Observer, synRound)
	return rounds, synthesis, nil
}

// runRound dispatches one numbered round and assembles its results in
// panel order. Seats with a bind error are filled without dispatching.
func (e *Engine) runRound(ctx context.Context, plan *Plan, number int, rtype domain.RoundType, roundPrompts []string) *domain.DebateRound {
	ctx, span := e.tracer.Start(ctx, "debate.round",
		trace.WithAttributes(
			attribute.Int("debate.round_number", number),
			attribute.String("debate.round_type", string(rtype)),
			attribute.Int("debate.panel_size", len(plan.Panel)),
		))
	defer span.End()

	start := time.Now()
	results := make([]*domain.RoundResult, len(plan.Panel))
	reqs := make([]*backend.Request, 0, len(plan.Panel))
	dispatched := make([]int, 0, len(plan.Panel))
	for i, p := range plan.Panel {
		req := &backend.Request{
			ModelID:   p.ModelID,
			Alias:     p.Alias,
			Round:     number,
			Role:      string(rtype),
			Prompt:    roundPrompts[i],
			MaxTokens: plan.MaxTokens,
			Routing:   p.Routing,
		}
		if p.BindErr != nil {
			results[i] = backend.FailedResult(req, p.BindErr)
			continue
		}
		reqs = append(reqs, req)
		dispatched = append(dispatched, i)
	}

	e.logger.Debug("dispatching round",
		"round", number, "type", rtype, "requests", len(reqs))
	out := e.dispatcher.Dispatch(ctx, reqs)
	for j, i := range dispatched {
		results[i] = out[j]
	}

	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
		}
	}
	span.SetAttributes(attribute.Int("debate.failed_slots", failed))
	if failed > 0 {
		e.logger.Warn("round completed with failures",
			"round", number, "type", rtype,
			"failed", failed, "panel", len(plan.Panel),
			"duration", time.Since(start))
	} else {
		e.logger.Info("round complete",
			"round", number, "type", rtype,
			"panel", len(plan.Panel),
			"duration", time.Since(start))
	}

	return &domain.DebateRound{RoundNumber: number, RoundType: rtype, Responses: results}
}

// synthesize sends the formatted debate history to the synthesizer and
// returns its result, errored or not.
func (e *Engine) synthesize(ctx context.Context, plan *Plan, rounds []*domain.DebateRound) *domain.RoundResult {
	ctx, span := e.tracer.Start(ctx, "debate.synthesis",
		trace.WithAttributes(
			attribute.String("debate.synthesizer", plan.Synthesizer.ModelID),
			attribute.Int("debate.rounds", len(rounds)),
		))
	defer span.End()

	prompt := e.templates.FormatSynthesis(plan.Query, prompts.FormatTranscript(transcriptSections(rounds)))
	prompt = withContext(plan.PanelContext, plan.Synthesizer.Alias, prompt)

	syn := plan.Synthesizer
	req := &backend.Request{
		ModelID:   syn.ModelID,
		Alias:     syn.Alias,
		Round:     domain.RoundSynthesis,
		Role:      string(domain.RoundTypeSynthesis),
		Prompt:    prompt,
		MaxTokens: plan.MaxTokens,
		Routing:   syn.Routing,
	}
	if syn.BindErr != nil {
		return backend.FailedResult(req, syn.BindErr)
	}

	res := e.dispatcher.Dispatch(ctx, []*backend.Request{req})[0]
	if res.Failed() {
		span.SetAttributes(attribute.Bool("debate.synthesis_failed", true))
		e.logger.Warn("synthesis failed", "model", syn.ModelID, "error", res.Error)
	}
	return res
}

// initialPrompts builds the round-0 prompt for every seat.
func (e *Engine) initialPrompts(plan *Plan) []string {
	out := make([]string, len(plan.Panel))
	for i, p := range plan.Panel {
		out[i] = withContext(plan.PanelContext, p.Alias, e.templates.FormatInitial(plan.Query))
	}
	return out
}

// reflectionPrompts builds each seat's reflection prompt from the
// previous round: its own prior answer plus every peer's successful
// answer. Errored peers are omitted; an errored own answer falls back
// to a placeholder so the member still participates.
func (e *Engine) reflectionPrompts(plan *Plan, prev *domain.DebateRound) []string {
	out := make([]string, len(plan.Panel))
	for i, p := range plan.Panel {
		own := noResponsePlaceholder
		if i < len(prev.Responses) && !prev.Responses[i].Failed() {
			own = prev.Responses[i].Content
		}
		others := make([]prompts.Entry, 0, len(prev.Responses))
		for j, r := range prev.Responses {
			if j == i || r.Failed() {
				continue
			}
			others = append(others, prompts.Entry{Alias: r.ModelAlias, Text: r.Content})
		}
		out[i] = withContext(plan.PanelContext, p.Alias, e.templates.FormatReflection(plan.Query, own, others))
	}
	return out
}

// transcriptSections collapses rounds into the alias/content sections
// the synthesizer reads. Errored slots are dropped; the round header
// stays even when every slot in it failed.
func transcriptSections(rounds []*domain.DebateRound) []prompts.RoundSection {
	sections := make([]prompts.RoundSection, 0, len(rounds))
	for _, round := range rounds {
		entries := make([]prompts.Entry, 0, len(round.Responses))
		for _, r := range round.Responses {
			if r.Failed() {
				continue
			}
			entries = append(entries, prompts.Entry{Alias: r.ModelAlias, Text: r.Content})
		}
		sections = append(sections, prompts.RoundSection{RoundType: round.RoundType, Entries: entries})
	}
	return sections
}

// withContext prepends a member's persistent context to its prompt.
func withContext(panelContext map[string]string, alias, prompt string) string {
	if c, ok := panelContext[alias]; ok && c != "" {
		return c + "\n\n" + prompt
	}
	return prompt
}

// notify delivers a finished round to the observer. Observer errors
// and panics are logged and contained; nothing an observer does can
// abort or corrupt the debate.
func (e *Engine) notify(obs Observer, round *domain.DebateRound) {
	if obs == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("on_round_complete callback failed",
				"round", round.RoundNumber, "type", round.RoundType, "panic", r)
		}
	}()
	if err := obs(round); err != nil {
		e.logger.Error("on_round_complete callback failed",
			"round", round.RoundNumber, "type", round.RoundType, "error", err)
	}
}
