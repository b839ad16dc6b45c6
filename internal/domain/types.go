package domain

import "time"

// Round number sentinels. Non-negative values are debate rounds (0 is the
// initial round, 1..N are reflections); synthesis and judge calls sit
// outside the numbered sequence.
const (
	RoundSynthesis = -1
	RoundJudge     = -2
)

// RoundType classifies a debate round.
type RoundType string

const (
	RoundTypeInitial    RoundType = "initial"
	RoundTypeReflection RoundType = "reflection"
	RoundTypeSynthesis  RoundType = "synthesis"
)

// Message is one chat message in the OpenAI-compatible shape every
// backend understands.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RoutingDecision records how one call was routed. Attached to every
// RoundResult for transcript provenance; never mutated after creation.
type RoutingDecision struct {
	// Vendor is the model's native vendor family, independent of which
	// backend actually carried the call.
	Vendor Vendor `json:"vendor"`
	// Mode is the routing mode in effect for the alias, after per-alias
	// overrides are applied.
	Mode RoutingMode `json:"mode"`
	// ViaOpenRouter is true when the aggregator carried the call,
	// including auto-mode fallbacks for uncredentialed vendors.
	ViaOpenRouter bool `json:"via_openrouter"`
}

// Backend returns the vendor that actually handles calls under this
// decision.
func (d RoutingDecision) Backend() Vendor {
	if d.ViaOpenRouter {
		return VendorOpenRouter
	}
	return d.Vendor
}

// PanelMember binds an alias to a resolved model ID and routing decision
// for the duration of one debate. Immutable once the panel is bound.
type PanelMember struct {
	Alias   string          `json:"alias"`
	ModelID string          `json:"model_id"`
	Routing RoutingDecision `json:"routing"`
}

// RoundResult is one model's output for one round. Content and Error are
// mutually exclusive: a result either succeeded with content or failed
// with an error description.
type RoundResult struct {
	ModelID      string           `json:"model_id"`
	ModelAlias   string           `json:"model_alias"`
	RoundNumber  int              `json:"round_number"`
	Content      string           `json:"content"`
	Timestamp    time.Time        `json:"timestamp"`
	TokenCount   *int             `json:"token_count"`
	InputTokens  *int             `json:"input_tokens"`
	OutputTokens *int             `json:"output_tokens"`
	LatencyMS    int64            `json:"latency_ms"`
	Error        string           `json:"error,omitempty"`
	Role         string           `json:"role"`
	Routing      *RoutingDecision `json:"routing,omitempty"`
	Analysis     map[string]any   `json:"analysis,omitempty"`
}

// Failed reports whether this result carries an error instead of content.
func (r *RoundResult) Failed() bool { return r.Error != "" }

// SetAnalysis stores a value in the free-form analysis bag, allocating it
// on first use.
func (r *RoundResult) SetAnalysis(key string, value any) {
	if r.Analysis == nil {
		r.Analysis = make(map[string]any)
	}
	r.Analysis[key] = value
}

// Clone returns a deep copy, so replays can annotate results without
// touching the source transcript.
func (r *RoundResult) Clone() *RoundResult {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Routing != nil {
		routing := *r.Routing
		cp.Routing = &routing
	}
	if r.Analysis != nil {
		cp.Analysis = make(map[string]any, len(r.Analysis))
		for k, v := range r.Analysis {
			cp.Analysis[k] = v
		}
	}
	return &cp
}

// DebateRound is the ordered set of results sharing one round number.
// Responses follow request submission order, not completion order, so a
// transcript is reproducible regardless of backend latencies.
type DebateRound struct {
	RoundNumber int            `json:"round_number"`
	RoundType   RoundType      `json:"round_type"`
	Responses   []*RoundResult `json:"responses"`
}

// Clone returns a deep copy of the round.
func (d *DebateRound) Clone() *DebateRound {
	if d == nil {
		return nil
	}
	responses := make([]*RoundResult, len(d.Responses))
	for i, r := range d.Responses {
		responses[i] = r.Clone()
	}
	return &DebateRound{RoundNumber: d.RoundNumber, RoundType: d.RoundType, Responses: responses}
}

// DebateTranscript is the complete record of one debate. The JSON field
// set is a stable contract consumed by persistence and display
// collaborators.
type DebateTranscript struct {
	TranscriptID  string         `json:"transcript_id"`
	Query         string         `json:"query"`
	Panel         []PanelMember  `json:"panel"`
	SynthesizerID string         `json:"synthesizer_id"`
	MaxRounds     int            `json:"max_rounds"`
	Rounds        []*DebateRound `json:"rounds"`
	Synthesis     *RoundResult   `json:"synthesis,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	Metadata      map[string]any `json:"metadata"`
}

// ShortID returns the first eight characters of the transcript ID for
// display.
func (t *DebateTranscript) ShortID() string {
	if len(t.TranscriptID) < 8 {
		return t.TranscriptID
	}
	return t.TranscriptID[:8]
}

// TokenTotal sums the reported token counts across all round responses
// and the synthesis. Results without token data contribute zero.
func (t *DebateTranscript) TokenTotal() int {
	total := 0
	for _, round := range t.Rounds {
		for _, res := range round.Responses {
			if res.TokenCount != nil {
				total += *res.TokenCount
			}
		}
	}
	if t.Synthesis != nil && t.Synthesis.TokenCount != nil {
		total += *t.Synthesis.TokenCount
	}
	return total
}

// ExperimentMetadata links a debate to a research experiment. Collaborators
// store it under Metadata["experiment"] to track cross-tool runs.
type ExperimentMetadata struct {
	ExperimentID string         `json:"experiment_id"`
	SourceTool   string         `json:"source_tool"`
	CampaignID   string         `json:"campaign_id,omitempty"`
	Condition    string         `json:"condition"`
	Variables    map[string]any `json:"variables"`
	FindingRef   string         `json:"finding_ref,omitempty"`
}

// IntPtr returns a pointer to n, for the optional token-count fields.
func IntPtr(n int) *int { return &n }
