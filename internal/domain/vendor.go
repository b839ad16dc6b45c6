// Package domain defines the core data model shared across the debate
// pipeline: panel membership, per-round results, transcripts, and the
// routing provenance attached to every backend call.
package domain

import "strings"

// Vendor identifies an inference provider family.
type Vendor string

const (
	VendorAnthropic  Vendor = "anthropic"
	VendorOpenAI     Vendor = "openai"
	VendorGoogle     Vendor = "google"
	VendorXAI        Vendor = "xai"
	VendorGroq       Vendor = "groq"
	VendorOpenRouter Vendor = "openrouter"
	VendorOllama     Vendor = "ollama"
)

// Vendors lists every supported vendor, aggregator included.
var Vendors = []Vendor{
	VendorAnthropic,
	VendorOpenAI,
	VendorGoogle,
	VendorXAI,
	VendorGroq,
	VendorOpenRouter,
	VendorOllama,
}

// modelPrefixes maps the vendor prefix of a fully-qualified model ID
// (e.g. "x-ai/grok-4") to its vendor. Prefixes follow the aggregator's
// catalog naming, which is the canonical form used in configuration and
// transcripts.
var modelPrefixes = map[string]Vendor{
	"anthropic": VendorAnthropic,
	"openai":    VendorOpenAI,
	"google":    VendorGoogle,
	"x-ai":      VendorXAI,
	"groq":      VendorGroq,
	"ollama":    VendorOllama,
}

// VendorOf extracts the native vendor from a fully-qualified model ID.
// Model IDs without a recognized vendor prefix only exist in the
// aggregator's catalog and report VendorOpenRouter.
func VendorOf(modelID string) Vendor {
	prefix, _, ok := strings.Cut(modelID, "/")
	if !ok {
		return VendorOpenRouter
	}
	if v, found := modelPrefixes[prefix]; found {
		return v
	}
	return VendorOpenRouter
}

// NativeModelID strips the vendor prefix from a fully-qualified model ID,
// yielding the identifier a vendor's own API expects.
func NativeModelID(modelID string) string {
	if _, suffix, ok := strings.Cut(modelID, "/"); ok {
		return suffix
	}
	return modelID
}

// RoutingMode selects how a panel member's calls reach a backend.
type RoutingMode string

const (
	// RouteAuto prefers the native vendor when a credential exists and
	// falls back to the aggregator otherwise.
	RouteAuto RoutingMode = "auto"
	// RouteDirect requires the native vendor; a missing credential is an
	// error, never a silent fallback.
	RouteDirect RoutingMode = "direct"
	// RouteOpenRouter always sends through the aggregator.
	RouteOpenRouter RoutingMode = "openrouter"
)

// Valid reports whether m is a recognized routing mode.
func (m RoutingMode) Valid() bool {
	switch m {
	case RouteAuto, RouteDirect, RouteOpenRouter:
		return true
	}
	return false
}

// CredentialSet records which vendors have usable credentials. It is
// built once from configuration and read-only for the duration of a
// debate run.
type CredentialSet map[Vendor]bool

// Has reports whether a usable credential exists for v.
func (c CredentialSet) Has(v Vendor) bool { return c[v] }

// Any reports whether any vendor has a usable credential.
func (c CredentialSet) Any() bool {
	for _, ok := range c {
		if ok {
			return true
		}
	}
	return false
}
