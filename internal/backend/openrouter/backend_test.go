package openrouter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/richardspicer/questionable-ai/internal/backend"
	"github.com/richardspicer/questionable-ai/internal/domain"
	"github.com/richardspicer/questionable-ai/internal/testutil"
)

const completionBody = `{
  "id": "gen-42",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "anthropic/claude-sonnet-4.5",
  "choices": [
    {"index": 0, "message": {"role": "assistant", "content": "Routed answer"}, "finish_reason": "stop"}
  ],
  "usage": {"prompt_tokens": 12, "completion_tokens": 8, "total_tokens": 20}
}`

func testRequest(modelID, alias string) *backend.Request {
	return &backend.Request{
		ModelID: modelID,
		Alias:   alias,
		Round:   0,
		Role:    "panelist",
		Prompt:  "Hello",
		Routing: domain.RoutingDecision{
			Vendor:        domain.VendorOf(modelID),
			Mode:          domain.RouteOpenRouter,
			ViaOpenRouter: true,
		},
	}
}

func TestComplete(t *testing.T) {
	var rawReq map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("expected Authorization header, got %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("HTTP-Referer") != "https://richardspicer.io" {
			t.Errorf("expected HTTP-Referer attribution header, got %q", r.Header.Get("HTTP-Referer"))
		}
		if r.Header.Get("X-Title") != "Questionable AI" {
			t.Errorf("expected X-Title attribution header, got %q", r.Header.Get("X-Title"))
		}
		if err := json.NewDecoder(r.Body).Decode(&rawReq); err != nil {
			t.Fatalf("decoding request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintln(w, completionBody)
	}))
	defer ts.Close()

	b, err := New("test-key", WithBaseURL(ts.URL))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer b.Close()

	res, err := b.Complete(context.Background(), testRequest("anthropic/claude-sonnet-4.5", "claude"))
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}

	if rawReq["model"] != "anthropic/claude-sonnet-4.5" {
		t.Errorf("catalog model ID must pass through unchanged, got %v", rawReq["model"])
	}
	if _, present := rawReq["max_tokens"]; present {
		t.Error("aggregator payload should carry only model and messages")
	}

	if res.Failed() {
		t.Fatalf("unexpected error in result: %s", res.Error)
	}
	if res.Content != "Routed answer" {
		t.Errorf("unexpected content: %q", res.Content)
	}
	if res.ModelID != "anthropic/claude-sonnet-4.5" {
		t.Errorf("result must keep the catalog model ID, got %q", res.ModelID)
	}
	if res.TokenCount == nil || *res.TokenCount != 20 {
		t.Errorf("expected token_count 20, got %v", res.TokenCount)
	}
	if res.Routing == nil || !res.Routing.ViaOpenRouter {
		t.Errorf("routing decision not carried: %+v", res.Routing)
	}
}

func TestCompleteReplay(t *testing.T) {
	b, err := New("test-key", WithHTTPClient(testutil.Replay(t, "openrouter_complete")))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer b.Close()

	req := testRequest("anthropic/claude-sonnet-4.5", "claude")
	req.Prompt = "What is the capital of France?"

	res, err := b.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if res.Failed() {
		t.Fatalf("unexpected error in result: %s", res.Error)
	}
	if res.Content != "The capital of France is Paris." {
		t.Errorf("unexpected content: %q", res.Content)
	}
	if res.TokenCount == nil || *res.TokenCount != 23 {
		t.Errorf("expected token_count 23, got %v", res.TokenCount)
	}
}

func TestAliasDefaultsToModelName(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintln(w, completionBody)
	}))
	defer ts.Close()

	b, err := New("test-key", WithBaseURL(ts.URL))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer b.Close()

	tests := []struct {
		modelID string
		want    string
	}{
		{"x-ai/grok-4", "grok-4"},
		{"qwen-72b", "qwen-72b"},
	}
	for _, tt := range tests {
		res, err := b.Complete(context.Background(), testRequest(tt.modelID, ""))
		if err != nil {
			t.Fatalf("Complete returned error: %v", err)
		}
		if res.ModelAlias != tt.want {
			t.Errorf("alias for %q = %q, want %q", tt.modelID, res.ModelAlias, tt.want)
		}
	}
}

func TestCompleteAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		fmt.Fprintln(w, `{"error": {"message": "Insufficient credits", "type": "payment_error"}}`)
	}))
	defer ts.Close()

	b, err := New("test-key", WithBaseURL(ts.URL))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer b.Close()

	res, err := b.Complete(context.Background(), testRequest("anthropic/claude-sonnet-4.5", "claude"))
	if err != nil {
		t.Fatalf("expected failure encoded in result, got error: %v", err)
	}
	if res.Error != "HTTP 402: Insufficient credits" {
		t.Errorf("unexpected error string: %q", res.Error)
	}
}

func TestCompleteEmptyChoices(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintln(w, `{"id": "gen-1", "object": "chat.completion", "choices": []}`)
	}))
	defer ts.Close()

	b, err := New("test-key", WithBaseURL(ts.URL))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer b.Close()

	res, err := b.Complete(context.Background(), testRequest("anthropic/claude-sonnet-4.5", "claude"))
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if !strings.HasPrefix(res.Content, "[Failed to parse response:") {
		t.Errorf("expected parse-failure placeholder, got %q", res.Content)
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New("")
	if !domain.IsErrorType(err, domain.ErrorTypeRoutingUnavailable) {
		t.Fatalf("expected routing_unavailable error, got %v", err)
	}
	if !strings.Contains(err.Error(), "OPENROUTER_API_KEY") {
		t.Errorf("error should name the env var, got %q", err.Error())
	}
}
