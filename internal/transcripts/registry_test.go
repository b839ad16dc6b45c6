package transcripts

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/richardspicer/questionable-ai/internal/domain"
)

func storedTranscript(id, query string) *domain.DebateTranscript {
	return &domain.DebateTranscript{
		TranscriptID: id,
		Query:        query,
		Panel: []domain.PanelMember{
			{Alias: "claude", ModelID: "anthropic/claude-sonnet-4.5"},
			{Alias: "gpt", ModelID: "openai/gpt-5.2"},
		},
		SynthesizerID: "anthropic/claude-sonnet-4.5",
		MaxRounds:     1,
		Rounds: []*domain.DebateRound{
			{
				RoundNumber: 0,
				RoundType:   domain.RoundTypeInitial,
				Responses: []*domain.RoundResult{
					{ModelAlias: "claude", Content: "a", TokenCount: domain.IntPtr(10)},
					{ModelAlias: "gpt", Content: "b", TokenCount: domain.IntPtr(15)},
				},
			},
		},
		Synthesis: &domain.RoundResult{
			ModelAlias: "claude",
			Content:    "final",
			TokenCount: domain.IntPtr(5),
		},
		CreatedAt: time.Now().UTC(),
		Metadata:  map[string]any{"version": domain.Version},
	}
}

func TestRegistryPutAndGet(t *testing.T) {
	r := NewRegistry()
	first := storedTranscript("aaaa1111-0000-0000-0000-000000000001", "first question")
	second := storedTranscript("bbbb2222-0000-0000-0000-000000000002", "second question")

	if err := r.Put(first); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := r.Put(second); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if r.Len() != 2 {
		t.Fatalf("expected 2 stored, got %d", r.Len())
	}

	got, err := r.Get(first.TranscriptID)
	if err != nil {
		t.Fatalf("Get by full ID: %v", err)
	}
	if got.Query != "first question" {
		t.Errorf("wrong transcript: %q", got.Query)
	}

	got, err = r.Get("bbbb2222")
	if err != nil {
		t.Fatalf("Get by prefix: %v", err)
	}
	if got.TranscriptID != second.TranscriptID {
		t.Errorf("prefix matched wrong transcript: %s", got.TranscriptID)
	}
}

func TestRegistryDuplicatePut(t *testing.T) {
	r := NewRegistry()
	tr := storedTranscript("aaaa1111-0000-0000-0000-000000000001", "q")
	if err := r.Put(tr); err != nil {
		t.Fatalf("Put: %v", err)
	}
	err := r.Put(tr)
	if !domain.IsErrorType(err, domain.ErrorTypeInvalidRequest) {
		t.Fatalf("expected invalid_request for duplicate, got %v", err)
	}
}

func TestRegistryPrefixRules(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 2; i++ {
		id := fmt.Sprintf("cafe%04d-0000-0000-0000-00000000000%d", i, i)
		if err := r.Put(storedTranscript(id, "q")); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	tests := []struct {
		name     string
		id       string
		wantType domain.ErrorType
		wantMsg  string
	}{
		{"too short", "caf", domain.ErrorTypeInvalidRequest, "at least 4 characters"},
		{"no match", "dead0000", domain.ErrorTypeNotFound, "No transcript matches"},
		{"ambiguous", "cafe", domain.ErrorTypeInvalidRequest, "Use a longer prefix"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Get(tt.id)
			if !domain.IsErrorType(err, tt.wantType) {
				t.Fatalf("expected %s, got %v", tt.wantType, err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("message %q missing %q", err.Error(), tt.wantMsg)
			}
		})
	}

	if _, err := r.Get("cafe0001"); err != nil {
		t.Fatalf("longer prefix should disambiguate: %v", err)
	}
}

func TestRegistryEviction(t *testing.T) {
	r := NewRegistry(WithCapacity(2))
	ids := []string{
		"aaaa0000-0000-0000-0000-000000000000",
		"bbbb0000-0000-0000-0000-000000000000",
		"cccc0000-0000-0000-0000-000000000000",
	}
	for _, id := range ids {
		if err := r.Put(storedTranscript(id, "q")); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	if r.Len() != 2 {
		t.Fatalf("expected capacity 2, got %d", r.Len())
	}
	if _, err := r.Get(ids[0]); !domain.IsErrorType(err, domain.ErrorTypeNotFound) {
		t.Errorf("oldest transcript should be evicted, got %v", err)
	}
	for _, id := range ids[1:] {
		if _, err := r.Get(id); err != nil {
			t.Errorf("transcript %s should survive eviction: %v", id, err)
		}
	}
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	longQuery := strings.Repeat("does consensus scale ", 10)
	if err := r.Put(storedTranscript("aaaa0000-0000-0000-0000-000000000000", longQuery)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := r.Put(storedTranscript("bbbb0000-0000-0000-0000-000000000000", "short")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	summaries := r.List(0)
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}
	if summaries[0].ShortID != "bbbb0000" {
		t.Errorf("expected newest first, got %s", summaries[0].ShortID)
	}

	oldest := summaries[1]
	if len(oldest.Query) > 80 || !strings.HasSuffix(oldest.Query, "...") {
		t.Errorf("long query should be truncated with ellipsis, got %q", oldest.Query)
	}
	if oldest.Tokens != 30 {
		t.Errorf("expected token total 30, got %d", oldest.Tokens)
	}
	if len(oldest.Panel) != 2 || oldest.Panel[0] != "claude" {
		t.Errorf("unexpected panel summary: %v", oldest.Panel)
	}
	if oldest.Rounds != 1 {
		t.Errorf("expected 1 round, got %d", oldest.Rounds)
	}

	limited := r.List(1)
	if len(limited) != 1 || limited[0].ShortID != "bbbb0000" {
		t.Errorf("List(1) should return only the newest, got %v", limited)
	}
}

func TestRegistryListExperimentID(t *testing.T) {
	r := NewRegistry()
	tr := storedTranscript("aaaa0000-0000-0000-0000-000000000000", "q")
	tr.Metadata["experiment"] = domain.ExperimentMetadata{ExperimentID: "exp-42", SourceTool: "bench"}
	if err := r.Put(tr); err != nil {
		t.Fatalf("Put: %v", err)
	}

	decoded := storedTranscript("bbbb0000-0000-0000-0000-000000000000", "q")
	decoded.Metadata["experiment"] = map[string]any{"experiment_id": "exp-43"}
	if err := r.Put(decoded); err != nil {
		t.Fatalf("Put: %v", err)
	}

	summaries := r.List(0)
	if summaries[0].ExperimentID != "exp-43" || summaries[1].ExperimentID != "exp-42" {
		t.Errorf("experiment IDs not surfaced: %+v", summaries)
	}
}
