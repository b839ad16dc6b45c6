// Package transcripts keeps completed debates addressable by ID for the
// lifetime of one server process. The registry is bounded: once the
// capacity is reached the oldest transcript is evicted on insert.
package transcripts

import (
	"strings"
	"sync"
	"time"

	"github.com/richardspicer/questionable-ai/internal/domain"
)

// MinPrefixLen is the shortest transcript ID prefix accepted by Get.
const MinPrefixLen = 4

// DefaultCapacity bounds the registry when no capacity option is given.
const DefaultCapacity = 200

// Summary is the listing row for one stored transcript.
type Summary struct {
	ID           string    `json:"id"`
	ShortID      string    `json:"short_id"`
	CreatedAt    time.Time `json:"created_at"`
	Query        string    `json:"query"`
	Panel        []string  `json:"panel"`
	Synthesizer  string    `json:"synthesizer"`
	Rounds       int       `json:"rounds"`
	Tokens       int       `json:"tokens"`
	ExperimentID string    `json:"experiment_id,omitempty"`
}

// Registry is a concurrency-safe in-memory transcript store.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]*domain.DebateTranscript
	order []string
	limit int
}

// Option configures a Registry.
type Option func(*Registry)

// WithCapacity sets how many transcripts the registry retains before
// evicting the oldest. Values below one fall back to the default.
func WithCapacity(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.limit = n
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		byID:  make(map[string]*domain.DebateTranscript),
		limit: DefaultCapacity,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Put stores a transcript under its ID, evicting the oldest entry when
// the registry is full.
func (r *Registry) Put(t *domain.DebateTranscript) error {
	if t == nil || t.TranscriptID == "" {
		return domain.ErrInvalidRequest("Transcript must have an ID to be stored.")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[t.TranscriptID]; exists {
		return domain.ErrInvalidRequestf("Transcript %s is already stored.", t.ShortID())
	}

	r.byID[t.TranscriptID] = t
	r.order = append(r.order, t.TranscriptID)

	for len(r.order) > r.limit {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.byID, oldest)
	}
	return nil
}

// Get looks a transcript up by full ID or by a prefix of at least
// MinPrefixLen characters. A prefix matching more than one transcript is
// rejected so a caller never silently operates on the wrong debate.
func (r *Registry) Get(id string) (*domain.DebateTranscript, error) {
	if len(id) < MinPrefixLen {
		return nil, domain.ErrInvalidRequestf("Transcript ID prefix must be at least %d characters.", MinPrefixLen)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if t, exists := r.byID[id]; exists {
		return t, nil
	}

	var matches []*domain.DebateTranscript
	for _, fullID := range r.order {
		if strings.HasPrefix(fullID, id) {
			matches = append(matches, r.byID[fullID])
		}
	}

	switch len(matches) {
	case 0:
		return nil, domain.ErrNotFoundf("No transcript matches '%s'.", id)
	case 1:
		return matches[0], nil
	default:
		shorts := make([]string, len(matches))
		for i, m := range matches {
			shorts[i] = m.ShortID()
		}
		return nil, domain.ErrInvalidRequestf(
			"Ambiguous transcript ID '%s'. Matches: %s. Use a longer prefix.",
			id, strings.Join(shorts, ", "))
	}
}

// List returns summaries of stored transcripts, most recently stored
// first. A limit of zero or below returns everything.
func (r *Registry) List(limit int) []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	summaries := make([]Summary, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		if limit > 0 && len(summaries) >= limit {
			break
		}
		summaries = append(summaries, summarize(r.byID[r.order[i]]))
	}
	return summaries
}

// Len reports how many transcripts are stored.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func summarize(t *domain.DebateTranscript) Summary {
	panel := make([]string, len(t.Panel))
	for i, m := range t.Panel {
		panel[i] = m.Alias
	}
	return Summary{
		ID:           t.TranscriptID,
		ShortID:      t.ShortID(),
		CreatedAt:    t.CreatedAt,
		Query:        truncate(t.Query, 80),
		Panel:        panel,
		Synthesizer:  t.SynthesizerID,
		Rounds:       len(t.Rounds),
		Tokens:       t.TokenTotal(),
		ExperimentID: experimentID(t.Metadata),
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// experimentID digs the experiment ID out of transcript metadata, which
// holds either the typed struct or a decoded JSON map depending on where
// the transcript came from.
func experimentID(metadata map[string]any) string {
	raw, ok := metadata["experiment"]
	if !ok {
		return ""
	}
	switch exp := raw.(type) {
	case domain.ExperimentMetadata:
		return exp.ExperimentID
	case *domain.ExperimentMetadata:
		if exp != nil {
			return exp.ExperimentID
		}
	case map[string]any:
		if id, ok := exp["experiment_id"].(string); ok {
			return id
		}
	}
	return ""
}
