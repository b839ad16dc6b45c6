// Package tokens fills in token counts for vendors that omit usage
// data. Counts land in a result's analysis bag as estimates; the
// contract token fields only ever carry vendor-reported numbers.
package tokens

import (
	"strings"

	"github.com/richardspicer/questionable-ai/internal/domain"
)

// Counter counts tokens for models it recognizes.
type Counter interface {
	// CountText counts the tokens in a plain text string.
	CountText(model, text string) (int, error)

	// SupportsModel reports whether this counter covers the model.
	SupportsModel(model string) bool
}

// Estimator approximates token counts by character ratio. It is the
// fallback for models without a real tokenizer.
type Estimator struct {
	// CharsPerToken is the assumed average characters per token.
	CharsPerToken float64
}

// NewEstimator creates an estimator with the conventional 4:1 ratio.
func NewEstimator() *Estimator {
	return &Estimator{CharsPerToken: 4.0}
}

// CountText estimates the token count from the text length.
func (e *Estimator) CountText(model, text string) (int, error) {
	return int(float64(len(text)) / e.CharsPerToken), nil
}

// SupportsModel always reports true; the estimator backs every model.
func (e *Estimator) SupportsModel(model string) bool { return true }

// ModelMatcher matches model names against prefix and exact patterns.
type ModelMatcher struct {
	prefixes []string
	exact    []string
}

// NewModelMatcher creates a matcher over the given patterns.
func NewModelMatcher(prefixes, exact []string) *ModelMatcher {
	return &ModelMatcher{prefixes: prefixes, exact: exact}
}

// Matches reports whether the model matches any pattern.
func (m *ModelMatcher) Matches(model string) bool {
	for _, e := range m.exact {
		if model == e {
			return true
		}
	}
	for _, p := range m.prefixes {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

// Registry picks the right counter for each model: a real tokenizer
// when one covers the model, the character estimator otherwise.
type Registry struct {
	counters []Counter
	fallback Counter
}

// NewRegistry creates a registry with the tiktoken counter and the
// character-ratio fallback.
func NewRegistry() *Registry {
	r := &Registry{fallback: NewEstimator()}
	r.Register(NewTiktokenCounter())
	return r
}

// Register adds a counter. Counters are consulted in registration
// order; the first that supports the model wins.
func (r *Registry) Register(c Counter) {
	r.counters = append(r.counters, c)
}

// CountText counts tokens in text for a model, accepting both catalog
// IDs (vendor/model) and native IDs. The second return reports whether
// the count is a character-ratio estimate rather than a tokenizer count.
func (r *Registry) CountText(modelID, text string) (int, bool) {
	name := domain.NativeModelID(modelID)
	for _, c := range r.counters {
		if !c.SupportsModel(name) {
			continue
		}
		if n, err := c.CountText(name, text); err == nil {
			return n, false
		}
	}
	n, _ := r.fallback.CountText(name, text)
	return n, true
}

// Annotate records an estimated token count in the analysis bag of a
// successful result whose vendor reported no usage. Results that
// already carry a vendor count, failed, or have no content are left
// alone.
func (r *Registry) Annotate(res *domain.RoundResult) {
	if res == nil || res.TokenCount != nil || res.Failed() || res.Content == "" {
		return
	}
	n, _ := r.CountText(res.ModelID, res.Content)
	res.SetAnalysis("estimated_tokens", n)
}
