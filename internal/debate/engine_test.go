package debate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/richardspicer/questionable-ai/internal/backend"
	"github.com/richardspicer/questionable-ai/internal/domain"
)

// scriptedDispatcher answers every request through a reply function and
// records the batches it saw.
type scriptedDispatcher struct {
	mu      sync.Mutex
	batches [][]*backend.Request
	reply   func(req *backend.Request) *domain.RoundResult
}

func (d *scriptedDispatcher) Dispatch(ctx context.Context, reqs []*backend.Request) []*domain.RoundResult {
	d.mu.Lock()
	d.batches = append(d.batches, reqs)
	d.mu.Unlock()

	out := make([]*domain.RoundResult, len(reqs))
	for i, req := range reqs {
		if d.reply != nil {
			out[i] = d.reply(req)
			continue
		}
		res := backend.NewResult(req, req.Alias)
		res.Content = fmt.Sprintf("%s answer r%d", req.Alias, req.Round)
		out[i] = res
	}
	return out
}

func (d *scriptedDispatcher) batch(i int) []*backend.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.batches[i]
}

func (d *scriptedDispatcher) batchCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.batches)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func viaOpenRouter(modelID string) domain.RoutingDecision {
	return domain.RoutingDecision{
		Vendor:        domain.VendorOf(modelID),
		Mode:          domain.RouteAuto,
		ViaOpenRouter: true,
	}
}

func seat(alias, modelID string) Panelist {
	return Panelist{PanelMember: domain.PanelMember{
		Alias:   alias,
		ModelID: modelID,
		Routing: viaOpenRouter(modelID),
	}}
}

func testPlan(rounds int) *Plan {
	return &Plan{
		Query:       "What is consensus?",
		Panel:       []Panelist{seat("claude", "anthropic/claude-sonnet-4.5"), seat("gpt", "openai/gpt-5.2")},
		Synthesizer: seat("claude", "anthropic/claude-sonnet-4.5"),
		Rounds:      rounds,
		MaxTokens:   512,
	}
}

func TestEngineRunShape(t *testing.T) {
	d := &scriptedDispatcher{}
	e := NewEngine(d, WithEngineLogger(quietLogger()))

	rounds, synthesis, err := e.Run(context.Background(), testPlan(1))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(rounds) != 2 {
		t.Fatalf("expected 2 rounds (initial + 1 reflection), got %d", len(rounds))
	}
	if rounds[0].RoundNumber != 0 || rounds[0].RoundType != domain.RoundTypeInitial {
		t.Errorf("round 0 = %d/%s", rounds[0].RoundNumber, rounds[0].RoundType)
	}
	if rounds[1].RoundNumber != 1 || rounds[1].RoundType != domain.RoundTypeReflection {
		t.Errorf("round 1 = %d/%s", rounds[1].RoundNumber, rounds[1].RoundType)
	}
	for _, round := range rounds {
		if len(round.Responses) != 2 {
			t.Fatalf("round %d has %d responses", round.RoundNumber, len(round.Responses))
		}
		if round.Responses[0].ModelAlias != "claude" || round.Responses[1].ModelAlias != "gpt" {
			t.Errorf("round %d order = %s, %s", round.RoundNumber,
				round.Responses[0].ModelAlias, round.Responses[1].ModelAlias)
		}
	}

	if synthesis == nil || synthesis.Failed() {
		t.Fatalf("synthesis = %+v", synthesis)
	}
	if synthesis.RoundNumber != domain.RoundSynthesis {
		t.Errorf("synthesis round number = %d, want %d", synthesis.RoundNumber, domain.RoundSynthesis)
	}
	if synthesis.Role != string(domain.RoundTypeSynthesis) {
		t.Errorf("synthesis role = %q", synthesis.Role)
	}

	// Two panel batches plus one synthesis batch.
	if d.batchCount() != 3 {
		t.Fatalf("dispatcher saw %d batches, want 3", d.batchCount())
	}
	if len(d.batch(2)) != 1 {
		t.Errorf("synthesis batch has %d requests", len(d.batch(2)))
	}
}

func TestEngineReflectionPrompts(t *testing.T) {
	d := &scriptedDispatcher{}
	e := NewEngine(d, WithEngineLogger(quietLogger()))

	if _, _, err := e.Run(context.Background(), testPlan(1)); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	reflection := d.batch(1)
	claudePrompt := reflection[0].Prompt
	gptPrompt := reflection[1].Prompt

	if !strings.Contains(claudePrompt, "claude answer r0") {
		t.Errorf("claude's reflection prompt is missing its own prior answer:\n%s", claudePrompt)
	}
	if !strings.Contains(claudePrompt, "[gpt]:\ngpt answer r0") {
		t.Errorf("claude's reflection prompt is missing gpt's answer:\n%s", claudePrompt)
	}
	if strings.Contains(claudePrompt, "[claude]:") {
		t.Errorf("claude's peer section must not contain claude itself:\n%s", claudePrompt)
	}
	if !strings.Contains(gptPrompt, "[claude]:\nclaude answer r0") {
		t.Errorf("gpt's reflection prompt is missing claude's answer:\n%s", gptPrompt)
	}
	if !strings.Contains(claudePrompt, "What is consensus?") {
		t.Errorf("reflection prompt is missing the query:\n%s", claudePrompt)
	}
}

func TestEngineFailedMemberFallback(t *testing.T) {
	d := &scriptedDispatcher{
		reply: func(req *backend.Request) *domain.RoundResult {
			if req.Alias == "claude" && req.Round == 0 {
				return backend.FailedResult(req, errors.New("upstream exploded"))
			}
			res := backend.NewResult(req, req.Alias)
			res.Content = fmt.Sprintf("%s answer r%d", req.Alias, req.Round)
			return res
		},
	}
	e := NewEngine(d, WithEngineLogger(quietLogger()))

	rounds, synthesis, err := e.Run(context.Background(), testPlan(1))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !rounds[0].Responses[0].Failed() {
		t.Fatal("claude's round 0 slot should be errored")
	}

	reflection := d.batch(1)
	if len(reflection) != 2 {
		t.Fatalf("failed member must still get a reflection request, got %d", len(reflection))
	}
	claudePrompt := reflection[0].Prompt
	if !strings.Contains(claudePrompt, "[No response available]") {
		t.Errorf("claude's own-answer slot should fall back to the placeholder:\n%s", claudePrompt)
	}
	gptPrompt := reflection[1].Prompt
	if strings.Contains(gptPrompt, "[claude]:") {
		t.Errorf("errored peers must be omitted from the peer section:\n%s", gptPrompt)
	}

	synthesisPrompt := d.batch(2)[0].Prompt
	if strings.Contains(synthesisPrompt, "upstream exploded") {
		t.Errorf("errored content leaked into the synthesis transcript:\n%s", synthesisPrompt)
	}
	if synthesis.Failed() {
		t.Errorf("synthesis should succeed despite member failures: %s", synthesis.Error)
	}
}

func TestEngineSynthesisPrompt(t *testing.T) {
	d := &scriptedDispatcher{}
	e := NewEngine(d, WithEngineLogger(quietLogger()))

	if _, _, err := e.Run(context.Background(), testPlan(1)); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	prompt := d.batch(2)[0].Prompt
	for _, want := range []string{
		"=== INITIAL ROUND ===",
		"=== REFLECTION ROUND ===",
		"[claude]:\nclaude answer r0",
		"[gpt]:\ngpt answer r1",
		"What is consensus?",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("synthesis prompt is missing %q:\n%s", want, prompt)
		}
	}
}

func TestEngineObserverSequence(t *testing.T) {
	d := &scriptedDispatcher{}
	e := NewEngine(d, WithEngineLogger(quietLogger()))

	var received []*domain.DebateRound
	plan := testPlan(1)
	plan.Observer = func(round *domain.DebateRound) error {
		received = append(received, round)
		return nil
	}

	if _, _, err := e.Run(context.Background(), plan); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(received) != 3 {
		t.Fatalf("observer saw %d rounds, want 3", len(received))
	}
	wantTypes := []domain.RoundType{
		domain.RoundTypeInitial,
		domain.RoundTypeReflection,
		domain.RoundTypeSynthesis,
	}
	for i, want := range wantTypes {
		if received[i].RoundType != want {
			t.Errorf("observer round %d type = %s, want %s", i, received[i].RoundType, want)
		}
	}
	if received[2].RoundNumber != domain.RoundSynthesis || len(received[2].Responses) != 1 {
		t.Errorf("synthesis wrapper round = %+v", received[2])
	}
}

func TestEngineObserverFailuresAreContained(t *testing.T) {
	d := &scriptedDispatcher{}
	e := NewEngine(d, WithEngineLogger(quietLogger()))

	calls := 0
	plan := testPlan(1)
	plan.Observer = func(round *domain.DebateRound) error {
		calls++
		if calls == 1 {
			return errors.New("observer failed")
		}
		panic("observer panicked")
	}

	rounds, synthesis, err := e.Run(context.Background(), plan)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(rounds) != 2 || synthesis == nil {
		t.Fatalf("debate did not complete: %d rounds, synthesis %v", len(rounds), synthesis)
	}
	if calls != 3 {
		t.Errorf("observer calls = %d, want 3", calls)
	}
}

func TestEngineUnroutableSeat(t *testing.T) {
	d := &scriptedDispatcher{}
	e := NewEngine(d, WithEngineLogger(quietLogger()))

	plan := testPlan(1)
	plan.Panel[1].BindErr = domain.ErrRoutingUnavailable(domain.VendorOpenAI,
		"Direct routing for openai requires a credential")

	rounds, _, err := e.Run(context.Background(), plan)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	for _, round := range rounds {
		if len(round.Responses) != 2 {
			t.Fatalf("round %d has %d responses", round.RoundNumber, len(round.Responses))
		}
		if !round.Responses[1].Failed() {
			t.Errorf("round %d: unroutable seat should be errored", round.RoundNumber)
		}
		if !strings.Contains(round.Responses[1].Error, "requires a credential") {
			t.Errorf("round %d: slot error should carry the routing failure, got %q",
				round.RoundNumber, round.Responses[1].Error)
		}
		if round.Responses[0].Failed() {
			t.Errorf("round %d: routable seat should succeed", round.RoundNumber)
		}
	}

	// Only the routable seat reaches the dispatcher.
	if got := len(d.batch(0)); got != 1 {
		t.Errorf("initial batch size = %d, want 1", got)
	}
}

func TestEnginePanelContextInjection(t *testing.T) {
	d := &scriptedDispatcher{}
	e := NewEngine(d, WithEngineLogger(quietLogger()))

	plan := testPlan(1)
	plan.PanelContext = map[string]string{"claude": "Claude RAG context"}

	if _, _, err := e.Run(context.Background(), plan); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	for i := 0; i < 3; i++ {
		batch := d.batch(i)
		for _, req := range batch {
			hasContext := strings.HasPrefix(req.Prompt, "Claude RAG context\n\n")
			if req.Alias == "claude" && !hasContext {
				t.Errorf("batch %d: claude's prompt should start with its context:\n%s", i, req.Prompt)
			}
			if req.Alias == "gpt" && hasContext {
				t.Errorf("batch %d: gpt's prompt must not carry claude's context", i)
			}
		}
	}
}

func TestEngineCancelledContext(t *testing.T) {
	d := &scriptedDispatcher{}
	e := NewEngine(d, WithEngineLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	plan := testPlan(2)
	plan.Observer = func(round *domain.DebateRound) error {
		if round.RoundNumber == 0 {
			cancel()
		}
		return nil
	}

	rounds, synthesis, err := e.Run(ctx, plan)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(rounds) != 1 {
		t.Errorf("expected only the initial round before the cut, got %d", len(rounds))
	}
	if synthesis != nil {
		t.Errorf("no synthesis should run after cancellation")
	}
	cancel()
}
