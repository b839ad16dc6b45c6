// Package debate runs the multi-model debate pipeline: one query fans
// out to a panel of models, reflection rounds let each model revise its
// answer against its peers', and a designated synthesizer folds the
// whole exchange into a single response. The Engine drives the round
// state machine; the Orchestrator wraps it with validation, panel
// binding, and transcript assembly.
package debate

import (
	"context"

	"github.com/richardspicer/questionable-ai/internal/backend"
	"github.com/richardspicer/questionable-ai/internal/domain"
	"github.com/richardspicer/questionable-ai/internal/pkg/config"
	"github.com/richardspicer/questionable-ai/internal/routing"
)

// Dispatcher sends one batch of completion requests and returns results
// in submission order, one per request, errors encoded in the results.
type Dispatcher interface {
	Dispatch(ctx context.Context, reqs []*backend.Request) []*domain.RoundResult
}

// Observer receives each completed round, including the synthesis
// wrapped as a round with number -1. Observers run synchronously
// between round barriers; an error return or panic is logged and never
// interrupts the debate.
type Observer func(round *domain.DebateRound) error

// Panelist is one bound seat on the panel. When routing could not
// place the member, BindErr holds the reason and every round records
// an errored result for the seat instead of dispatching.
type Panelist struct {
	domain.PanelMember
	BindErr error
}

// BindPanel resolves aliases (or full model IDs) into panelists against
// one snapshot of the configuration. Routing failures are carried on
// the panelist rather than returned, so one uncredentialed member does
// not block the rest of the panel; only an unresolvable name fails the
// bind.
func BindPanel(cfg *config.Config, names []string) ([]Panelist, error) {
	creds := cfg.Credentials()
	panel := make([]Panelist, len(names))
	for i, name := range names {
		p, err := BindMember(cfg, creds, name)
		if err != nil {
			return nil, err
		}
		panel[i] = p
	}
	return panel, nil
}

// BindMember resolves a single alias or model ID into a panelist.
func BindMember(cfg *config.Config, creds domain.CredentialSet, name string) (Panelist, error) {
	modelID, err := cfg.ResolveModel(name)
	if err != nil {
		return Panelist{}, err
	}
	return bindResolved(cfg, creds, name, modelID), nil
}

// bindResolved routes an already-resolved model ID. A failed resolution
// still records the attempted vendor and mode for provenance.
func bindResolved(cfg *config.Config, creds domain.CredentialSet, alias, modelID string) Panelist {
	mode := cfg.ModeFor(alias)
	decision, err := routing.Resolve(modelID, mode, creds)
	if err != nil {
		decision = domain.RoutingDecision{Vendor: domain.VendorOf(modelID), Mode: mode}
	}
	return Panelist{
		PanelMember: domain.PanelMember{Alias: alias, ModelID: modelID, Routing: decision},
		BindErr:     err,
	}
}

// members strips bind state for the transcript's panel listing.
func members(panel []Panelist) []domain.PanelMember {
	out := make([]domain.PanelMember, len(panel))
	for i, p := range panel {
		out[i] = p.PanelMember
	}
	return out
}
