// Package scoring evaluates a debate's synthesized answer against a
// known-correct reference using a judge model. The judge returns
// structured ACCURACY and COMPLETENESS lines that are parsed, clamped
// to 1-5, and attached to the synthesis result's analysis bag.
package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/richardspicer/questionable-ai/internal/backend"
	"github.com/richardspicer/questionable-ai/internal/domain"
	"github.com/richardspicer/questionable-ai/internal/prompts"
)

// AnalysisKey is where the score lands in the synthesis result's
// analysis bag.
const AnalysisKey = "ground_truth_score"

// Dispatcher sends the single judge request.
type Dispatcher interface {
	Dispatch(ctx context.Context, reqs []*backend.Request) []*domain.RoundResult
}

// Score is the judge's verdict. Accuracy and Completeness are 1-5, or
// -1 when the judge's output could not be parsed; Overall is their
// average.
type Score struct {
	Accuracy     int     `json:"accuracy"`
	Completeness int     `json:"completeness"`
	Overall      float64 `json:"overall"`
	Explanation  string  `json:"explanation"`
	JudgeModel   string  `json:"judge_model"`
}

// Map renders the score for the analysis bag.
func (s Score) Map() map[string]any {
	return map[string]any{
		"accuracy":     s.Accuracy,
		"completeness": s.Completeness,
		"overall":      s.Overall,
		"explanation":  s.Explanation,
		"judge_model":  s.JudgeModel,
	}
}

var (
	accuracyPattern     = regexp.MustCompile(`(?i)accuracy\s*:\s*(\S+)`)
	completenessPattern = regexp.MustCompile(`(?i)completeness\s*:\s*(\S+)`)
	explanationPattern  = regexp.MustCompile(`(?is)explanation\s*:\s*(.*)`)
)

// Parse extracts the structured fields from a judge response.
// Case-insensitive and whitespace-tolerant; scores outside 1-5 are
// clamped. A missing or non-numeric score field yields the -1 error
// score with the raw content preserved in the explanation.
func Parse(content string) Score {
	accuracy, ok := matchScore(accuracyPattern, content)
	if !ok {
		return errorScore(content)
	}
	completeness, ok := matchScore(completenessPattern, content)
	if !ok {
		return errorScore(content)
	}

	explanation := ""
	if m := explanationPattern.FindStringSubmatch(content); m != nil {
		explanation = strings.TrimSpace(m[1])
	}

	return Score{
		Accuracy:     accuracy,
		Completeness: completeness,
		Overall:      float64(accuracy+completeness) / 2,
		Explanation:  explanation,
	}
}

func matchScore(pattern *regexp.Regexp, content string) (int, bool) {
	m := pattern.FindStringSubmatch(content)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return clamp(n), true
}

func clamp(n int) int {
	if n < 1 {
		return 1
	}
	if n > 5 {
		return 5
	}
	return n
}

func errorScore(content string) Score {
	return Score{
		Accuracy:     -1,
		Completeness: -1,
		Overall:      -1,
		Explanation:  fmt.Sprintf("Judge output could not be parsed: %s", content),
	}
}

// Scorer runs judge calls through a dispatcher.
type Scorer struct {
	dispatcher Dispatcher
	templates  prompts.Templates
	maxTokens  int
	logger     *slog.Logger
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithTemplates overrides the scoring prompt template.
func WithTemplates(t prompts.Templates) Option {
	return func(s *Scorer) { s.templates = t }
}

// WithMaxTokens caps the judge's response.
func WithMaxTokens(n int) Option {
	return func(s *Scorer) { s.maxTokens = n }
}

// WithLogger sets the scorer logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scorer) { s.logger = logger }
}

// New creates a scorer over a dispatcher.
func New(dispatcher Dispatcher, opts ...Option) *Scorer {
	s := &Scorer{
		dispatcher: dispatcher,
		templates:  prompts.Defaults(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Evaluate judges a transcript's synthesis against groundTruth and
// stores the verdict under the synthesis result's analysis bag. The
// judge call runs with round number -2, outside the debate sequence.
// A judge transport failure is returned as an error; a judge response
// that merely fails to parse still produces the -1 error score.
func (s *Scorer) Evaluate(ctx context.Context, t *domain.DebateTranscript, judge domain.PanelMember, groundTruth string) (*Score, error) {
	if t == nil || t.Synthesis == nil || t.Synthesis.Failed() {
		return nil, domain.ErrInvalidRequest("Transcript has no successful synthesis to score.")
	}
	if strings.TrimSpace(groundTruth) == "" {
		return nil, domain.ErrInvalidRequest("Ground truth must not be empty.")
	}

	req := &backend.Request{
		ModelID:   judge.ModelID,
		Alias:     judge.Alias,
		Round:     domain.RoundJudge,
		Role:      "judge",
		Prompt:    s.templates.FormatScoring(t.Query, groundTruth, t.Synthesis.Content),
		MaxTokens: s.maxTokens,
		Routing:   judge.Routing,
	}
	res := s.dispatcher.Dispatch(ctx, []*backend.Request{req})[0]
	if res.Failed() {
		return nil, domain.ErrTransport(judge.Routing.Backend(),
			fmt.Sprintf("Judge call failed: %s", res.Error))
	}

	score := Parse(res.Content)
	score.JudgeModel = judge.Alias
	if score.Accuracy < 0 {
		s.logger.Warn("judge output could not be parsed", "judge", judge.ModelID)
	}
	t.Synthesis.SetAnalysis(AnalysisKey, score.Map())
	return &score, nil
}
