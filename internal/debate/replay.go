package debate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/richardspicer/questionable-ai/internal/domain"
	"github.com/richardspicer/questionable-ai/internal/pkg/config"
)

// ReplayRequest reruns a recorded debate without repeating the rounds
// it already contains: the source rounds are copied verbatim, optional
// extra reflection rounds continue the numbering, and a fresh synthesis
// is computed over the combined history. With zero additional rounds
// and a synthesizer override this re-synthesizes an old debate through
// a different model.
type ReplayRequest struct {
	// Source is the finished transcript to continue from. Required,
	// with at least one round.
	Source *domain.DebateTranscript

	// AdditionalRounds is how many new reflection rounds to run, 0 to 3.
	AdditionalRounds int

	// Synthesizer optionally overrides the source synthesizer, as an
	// alias or full model ID.
	Synthesizer string

	// MaxTokens caps each new response.
	MaxTokens int

	// Observer, when set, receives each newly completed round. Copied
	// source rounds are not replayed through it.
	Observer Observer
}

// Replay executes a replay run and returns a new transcript linked to
// the source by metadata. The source transcript is never mutated.
func (o *Orchestrator) Replay(ctx context.Context, req *ReplayRequest) (*domain.DebateTranscript, error) {
	if req.Source == nil {
		return nil, domain.ErrInvalidRequest("Replay requires a source transcript.")
	}
	source := req.Source
	if len(source.Rounds) == 0 {
		return nil, domain.ErrInvalidRequest("Source transcript has no rounds to replay.")
	}
	if req.AdditionalRounds < 0 || req.AdditionalRounds > config.MaxRounds {
		return nil, domain.ErrInvalidRequestf("Additional rounds must be between 0 and %d.", config.MaxRounds)
	}

	creds := o.cfg.Credentials()
	panel := make([]Panelist, len(source.Panel))
	for i, m := range source.Panel {
		panel[i] = bindResolved(o.cfg, creds, m.Alias, m.ModelID)
	}

	synName := req.Synthesizer
	if synName == "" {
		synName = source.SynthesizerID
	}
	syn, err := BindMember(o.cfg, creds, synName)
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
	plan := &Plan{
		Query:       source.Query,
		Panel:       panel,
		Synthesizer: syn,
		MaxTokens:   maxTokens,
		Observer:    req.Observer,
	}

	var override any
	if req.Synthesizer != "" {
		override = req.Synthesizer
	}
	t := &domain.DebateTranscript{
		TranscriptID:  uuid.New().String(),
		Query:         source.Query,
		Panel:         members(panel),
		SynthesizerID: syn.ModelID,
		MaxRounds:     source.MaxRounds + req.AdditionalRounds,
		Rounds:        []*domain.DebateRound{},
		CreatedAt:     time.Now().UTC(),
		Metadata: map[string]any{
			"version":              domain.Version,
			"source_transcript_id": source.TranscriptID,
			"replay_config": map[string]any{
				"synthesizer_override": override,
				"additional_rounds":    req.AdditionalRounds,
			},
		},
	}

	prior := make([]*domain.DebateRound, len(source.Rounds))
	for i, round := range source.Rounds {
		prior[i] = round.Clone()
	}

	o.logger.Info("replay starting",
		"transcript_id", t.ShortID(),
		"source_transcript_id", source.ShortID(),
		"additional_rounds", req.AdditionalRounds,
		"synthesizer", syn.ModelID)

	rounds, synthesis, err := o.engine.Extend(ctx, plan, prior, req.AdditionalRounds)
	if err != nil {
		return nil, fmt.Errorf("replay interrupted: %w", err)
	}
	t.Rounds = rounds
	t.Synthesis = synthesis
	o.annotate(t)

	o.logger.Info("replay complete",
		"transcript_id", t.ShortID(),
		"rounds", len(t.Rounds),
		"synthesis_failed", synthesis.Failed())
	return t, nil
}
