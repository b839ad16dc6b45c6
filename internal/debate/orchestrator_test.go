package debate

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/richardspicer/questionable-ai/internal/domain"
	"github.com/richardspicer/questionable-ai/internal/pkg/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Debate: config.DebateConfig{
			Panel:       []string{"claude", "gpt"},
			Synthesizer: "claude",
			Rounds:      1,
			MaxTokens:   1024,
		},
		Aliases: map[string]string{
			"claude": "anthropic/claude-sonnet-4.5",
			"gpt":    "openai/gpt-5.2",
		},
		Routing: config.RoutingConfig{DefaultMode: string(domain.RouteAuto)},
		Backends: map[string]config.BackendConfig{
			"openrouter": {APIKey: "test-key"},
		},
	}
}

func newTestOrchestrator(cfg *config.Config, d Dispatcher) *Orchestrator {
	return New(cfg, d, WithLogger(quietLogger()))
}

func TestOrchestratorRun(t *testing.T) {
	d := &scriptedDispatcher{}
	o := newTestOrchestrator(testConfig(), d)

	transcript, err := o.Run(context.Background(), &Request{Query: "What is consensus?"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if transcript.TranscriptID == "" {
		t.Error("transcript ID must be set")
	}
	if transcript.Query != "What is consensus?" {
		t.Errorf("query = %q", transcript.Query)
	}
	if transcript.SynthesizerID != "anthropic/claude-sonnet-4.5" {
		t.Errorf("synthesizer ID = %q", transcript.SynthesizerID)
	}
	if transcript.MaxRounds != 1 {
		t.Errorf("max rounds = %d", transcript.MaxRounds)
	}
	if len(transcript.Rounds) != 2 {
		t.Fatalf("rounds = %d, want 2", len(transcript.Rounds))
	}
	if transcript.Synthesis == nil {
		t.Fatal("synthesis missing")
	}
	if transcript.CreatedAt.IsZero() || transcript.CreatedAt.Location() != time.UTC {
		t.Errorf("created at should be UTC, got %v", transcript.CreatedAt)
	}

	if len(transcript.Panel) != 2 {
		t.Fatalf("panel = %+v", transcript.Panel)
	}
	if transcript.Panel[0].Alias != "claude" || transcript.Panel[0].ModelID != "anthropic/claude-sonnet-4.5" {
		t.Errorf("panel[0] = %+v", transcript.Panel[0])
	}
	if !transcript.Panel[0].Routing.ViaOpenRouter {
		t.Errorf("with only an aggregator key, members route via openrouter: %+v", transcript.Panel[0].Routing)
	}

	if transcript.Metadata["version"] != domain.Version {
		t.Errorf("metadata version = %v", transcript.Metadata["version"])
	}
	if _, ok := transcript.Metadata["panelist_context"]; ok {
		t.Error("panelist_context must be absent when not provided")
	}
}

func TestOrchestratorValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *config.Config, req *Request)
		wantMsg string
	}{
		{
			name:    "empty query",
			mutate:  func(cfg *config.Config, req *Request) { req.Query = "   " },
			wantMsg: "Query must not be empty.",
		},
		{
			name: "empty panel",
			mutate: func(cfg *config.Config, req *Request) {
				cfg.Debate.Panel = nil
			},
			wantMsg: "Panel must not be empty.",
		},
		{
			name:    "too many rounds",
			mutate:  func(cfg *config.Config, req *Request) { req.Rounds = 4 },
			wantMsg: "Rounds must be between 1 and 3.",
		},
		{
			name:    "negative rounds",
			mutate:  func(cfg *config.Config, req *Request) { req.Rounds = -1 },
			wantMsg: "Rounds must be between 1 and 3.",
		},
		{
			name:    "unknown panel alias",
			mutate:  func(cfg *config.Config, req *Request) { req.Panel = []string{"claude", "mystery"} },
			wantMsg: "unknown model alias",
		},
		{
			name:    "unknown synthesizer alias",
			mutate:  func(cfg *config.Config, req *Request) { req.Synthesizer = "mystery" },
			wantMsg: "unknown model alias",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			req := &Request{Query: "What is consensus?"}
			tt.mutate(cfg, req)

			d := &scriptedDispatcher{}
			o := newTestOrchestrator(cfg, d)
			_, err := o.Run(context.Background(), req)
			if !domain.IsErrorType(err, domain.ErrorTypeInvalidRequest) {
				t.Fatalf("expected invalid_request, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q should mention %q", err, tt.wantMsg)
			}
			if d.batchCount() != 0 {
				t.Errorf("precondition failures must not dispatch, saw %d batches", d.batchCount())
			}
		})
	}
}

func TestOrchestratorUnroutableSynthesizerFailsFast(t *testing.T) {
	cfg := testConfig()
	cfg.Routing.Overrides = map[string]string{"claude": string(domain.RouteDirect)}

	d := &scriptedDispatcher{}
	o := newTestOrchestrator(cfg, d)

	_, err := o.Run(context.Background(), &Request{Query: "What is consensus?"})
	if !domain.IsErrorType(err, domain.ErrorTypeRoutingUnavailable) {
		t.Fatalf("expected routing_unavailable, got %v", err)
	}
	if d.batchCount() != 0 {
		t.Errorf("nothing should dispatch, saw %d batches", d.batchCount())
	}
}

func TestOrchestratorUnroutableMemberIsContained(t *testing.T) {
	cfg := testConfig()
	cfg.Routing.Overrides = map[string]string{"gpt": string(domain.RouteDirect)}

	d := &scriptedDispatcher{}
	o := newTestOrchestrator(cfg, d)

	transcript, err := o.Run(context.Background(), &Request{Query: "What is consensus?"})
	if err != nil {
		t.Fatalf("an unroutable member must not abort the debate: %v", err)
	}
	for _, round := range transcript.Rounds {
		if !round.Responses[1].Failed() {
			t.Errorf("round %d: gpt's slot should carry the routing error", round.RoundNumber)
		}
		if round.Responses[0].Failed() {
			t.Errorf("round %d: claude's slot should succeed", round.RoundNumber)
		}
	}
	if transcript.Synthesis.Failed() {
		t.Errorf("synthesis should still run: %s", transcript.Synthesis.Error)
	}
}

func TestOrchestratorPanelContextMetadata(t *testing.T) {
	d := &scriptedDispatcher{}
	o := newTestOrchestrator(testConfig(), d)

	ctx := map[string]string{"claude": "Persistent context"}
	transcript, err := o.Run(context.Background(), &Request{
		Query:        "What is consensus?",
		PanelContext: ctx,
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	stored, ok := transcript.Metadata["panelist_context"].(map[string]string)
	if !ok {
		t.Fatalf("panelist_context missing or wrong type: %T", transcript.Metadata["panelist_context"])
	}
	if stored["claude"] != "Persistent context" {
		t.Errorf("stored context = %+v", stored)
	}
}

func TestOrchestratorMetadataMerge(t *testing.T) {
	d := &scriptedDispatcher{}
	o := newTestOrchestrator(testConfig(), d)

	transcript, err := o.Run(context.Background(), &Request{
		Query: "What is consensus?",
		Metadata: map[string]any{
			"experiment": map[string]any{"experiment_id": "exp-1"},
			"version":    "forged",
		},
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if _, ok := transcript.Metadata["experiment"]; !ok {
		t.Error("caller metadata should be preserved")
	}
	if transcript.Metadata["version"] != domain.Version {
		t.Errorf("reserved keys win over caller metadata, got %v", transcript.Metadata["version"])
	}
}

func TestOrchestratorSynthesizerOffPanel(t *testing.T) {
	d := &scriptedDispatcher{}
	o := newTestOrchestrator(testConfig(), d)

	transcript, err := o.Run(context.Background(), &Request{
		Query:       "What is consensus?",
		Panel:       []string{"gpt"},
		Synthesizer: "claude",
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(transcript.Panel) != 1 || transcript.Panel[0].Alias != "gpt" {
		t.Errorf("panel = %+v", transcript.Panel)
	}
	if transcript.SynthesizerID != "anthropic/claude-sonnet-4.5" {
		t.Errorf("synthesizer = %q", transcript.SynthesizerID)
	}
	if transcript.Synthesis.ModelID != "anthropic/claude-sonnet-4.5" {
		t.Errorf("synthesis ran on %q", transcript.Synthesis.ModelID)
	}
}

func TestOrchestratorFullModelIDPassthrough(t *testing.T) {
	d := &scriptedDispatcher{}
	o := newTestOrchestrator(testConfig(), d)

	transcript, err := o.Run(context.Background(), &Request{
		Query: "What is consensus?",
		Panel: []string{"claude", "mistralai/mistral-large"},
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if transcript.Panel[1].ModelID != "mistralai/mistral-large" {
		t.Errorf("full IDs pass through verbatim, got %q", transcript.Panel[1].ModelID)
	}
	if transcript.Panel[1].Alias != "mistralai/mistral-large" {
		t.Errorf("full IDs double as their own alias, got %q", transcript.Panel[1].Alias)
	}
}

func TestOrchestratorAnnotatesEstimatedTokens(t *testing.T) {
	d := &scriptedDispatcher{}
	o := newTestOrchestrator(testConfig(), d)

	transcript, err := o.Run(context.Background(), &Request{Query: "What is consensus?"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	res := transcript.Rounds[0].Responses[0]
	if res.TokenCount != nil {
		t.Fatalf("stub results carry no vendor usage, got %v", *res.TokenCount)
	}
	n, ok := res.Analysis["estimated_tokens"].(int)
	if !ok || n <= 0 {
		t.Errorf("estimated_tokens = %v (%T)", res.Analysis["estimated_tokens"], res.Analysis["estimated_tokens"])
	}
}
