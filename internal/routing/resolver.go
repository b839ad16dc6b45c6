// Package routing decides which backend carries each panel member's
// calls. Resolution is a pure function over the model ID, the routing
// mode in effect, and the credential set; it performs no I/O and holds
// no state, so identical inputs always produce identical decisions.
package routing

import (
	"fmt"

	"github.com/richardspicer/questionable-ai/internal/domain"
)

// Resolve maps a fully-qualified model ID to a routing decision.
//
// Modes:
//   - openrouter: the aggregator carries the call unconditionally.
//   - direct: the native vendor carries the call; a missing credential
//     is a RoutingUnavailable error, never a silent fallback.
//   - auto: the native vendor when credentialed, the aggregator
//     otherwise, with the fallback recorded on the decision.
//
// The decision's Vendor is always the model's native vendor, whichever
// backend carries the call. Whether the chosen backend is actually
// reachable is the dispatcher's concern: auto and openrouter modes
// select the aggregator without checking its credential, and dispatch
// reports a missing backend per result slot.
func Resolve(modelID string, mode domain.RoutingMode, creds domain.CredentialSet) (domain.RoutingDecision, error) {
	vendor := domain.VendorOf(modelID)

	switch mode {
	case domain.RouteOpenRouter:
		return domain.RoutingDecision{Vendor: vendor, Mode: mode, ViaOpenRouter: true}, nil

	case domain.RouteDirect:
		if !creds.Has(vendor) {
			return domain.RoutingDecision{}, domain.ErrRoutingUnavailable(vendor,
				fmt.Sprintf("direct routing requested for %s but no %s credential is configured", modelID, vendor))
		}
		return domain.RoutingDecision{Vendor: vendor, Mode: mode}, nil

	case domain.RouteAuto:
		return domain.RoutingDecision{Vendor: vendor, Mode: mode, ViaOpenRouter: !creds.Has(vendor)}, nil

	default:
		return domain.RoutingDecision{}, domain.ErrInvalidRequestf("invalid routing mode %q", mode)
	}
}
