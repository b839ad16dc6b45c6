// Package prompts holds the debate round templates and the transcript
// formatter. Templates are model-agnostic plain text with {name}
// placeholders; the placeholder names are part of the configuration
// contract, so operators can override any template without code changes.
package prompts

import (
	"fmt"
	"strings"

	"github.com/richardspicer/questionable-ai/internal/domain"
)

const defaultInitial = `You are participating in a multi-model panel discussion. Answer the following query to the best of your ability. Be thorough but concise.

Query: {query}`

const defaultReflection = `You previously answered a query as part of a multi-model panel. Below is your original response, followed by how other models on the panel responded.

Your previous response:
{own_response}

Other panel members' responses:
{other_responses}

Reflect on the other responses. Where do you agree? Where do you disagree? What did they identify that you missed? What did you get right that they missed? Provide your refined answer to the original query.

Original query: {query}`

const defaultSynthesis = `You are the designated synthesizer for a multi-model panel discussion. Below is the full debate transcript including initial responses and any reflection rounds from all panel members.

Original query: {query}

{formatted_transcript}

Synthesize the strongest elements from all panel members into a single, well-reasoned response. Note where the panel reached consensus and where significant disagreements remain. Do not simply concatenate — produce a coherent, unified answer.`

const defaultScoring = `You are evaluating a synthesized answer against a known-correct reference answer. Compare the candidate answer to the reference and score it.

Original query: {query}

Reference answer:
{ground_truth}

Candidate answer:
{synthesis}

Respond in exactly this format:
ACCURACY: <1-5>
COMPLETENESS: <1-5>
EXPLANATION: <brief justification for both scores>`

// Templates carries the four round templates. Zero-value fields fall
// back to the defaults, so a partially-populated override struct is
// safe to use directly.
type Templates struct {
	Initial    string
	Reflection string
	Synthesis  string
	Scoring    string
}

// Defaults returns the built-in templates.
func Defaults() Templates {
	return Templates{
		Initial:    defaultInitial,
		Reflection: defaultReflection,
		Synthesis:  defaultSynthesis,
		Scoring:    defaultScoring,
	}
}

// Merge overlays non-empty override fields onto t.
func (t Templates) Merge(o Templates) Templates {
	if o.Initial != "" {
		t.Initial = o.Initial
	}
	if o.Reflection != "" {
		t.Reflection = o.Reflection
	}
	if o.Synthesis != "" {
		t.Synthesis = o.Synthesis
	}
	if o.Scoring != "" {
		t.Scoring = o.Scoring
	}
	return t
}

// Entry is one panel member's contribution to a formatted block.
type Entry struct {
	Alias string
	Text  string
}

// RoundSection is one round of the transcript as seen by the
// synthesizer.
type RoundSection struct {
	RoundType domain.RoundType
	Entries   []Entry
}

// FormatInitial renders the first-round prompt.
func (t Templates) FormatInitial(query string) string {
	return expand(t.Initial, "{query}", query)
}

// FormatReflection renders a reflection prompt from the member's own
// previous answer and the peers' answers.
func (t Templates) FormatReflection(query, ownResponse string, others []Entry) string {
	return expand(t.Reflection,
		"{query}", query,
		"{own_response}", ownResponse,
		"{other_responses}", formatEntries(others),
	)
}

// FormatSynthesis renders the synthesis prompt around a pre-formatted
// transcript.
func (t Templates) FormatSynthesis(query, formattedTranscript string) string {
	return expand(t.Synthesis,
		"{query}", query,
		"{formatted_transcript}", formattedTranscript,
	)
}

// FormatScoring renders the judge prompt for ground-truth evaluation.
func (t Templates) FormatScoring(query, groundTruth, synthesis string) string {
	return expand(t.Scoring,
		"{query}", query,
		"{ground_truth}", groundTruth,
		"{synthesis}", synthesis,
	)
}

// FormatTranscript renders debate rounds into the transcript block the
// synthesizer sees. Round headers carry the round type, not the round
// number.
func FormatTranscript(rounds []RoundSection) string {
	sections := make([]string, 0, len(rounds))
	for _, r := range rounds {
		header := fmt.Sprintf("=== %s ROUND ===", strings.ToUpper(string(r.RoundType)))
		sections = append(sections, header+"\n\n"+formatEntries(r.Entries))
	}
	return strings.Join(sections, "\n\n")
}

func formatEntries(entries []Entry) string {
	blocks := make([]string, 0, len(entries))
	for _, e := range entries {
		blocks = append(blocks, fmt.Sprintf("[%s]:\n%s", e.Alias, e.Text))
	}
	return strings.Join(blocks, "\n\n")
}

// expand substitutes {name} placeholders in a single pass, so
// placeholder-like text inside substituted values is left alone.
func expand(template string, pairs ...string) string {
	return strings.NewReplacer(pairs...).Replace(template)
}
