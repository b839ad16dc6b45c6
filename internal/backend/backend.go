// Package backend defines the vendor client abstraction the debate
// engine dispatches against. A Backend owns one upstream connection
// (direct vendor API or the OpenRouter aggregator), normalizes
// responses into round results, and encodes upstream failures in the
// result rather than returning them, so one slow or broken model never
// takes down a round.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/richardspicer/questionable-ai/internal/domain"
)

// Request is a single completion request. Exactly one of Messages or
// Prompt must be set; Prompt is shorthand for a single user message.
type Request struct {
	// ModelID is the fully-qualified catalog ID (vendor/model). Direct
	// backends translate it to their native form.
	ModelID string

	// Alias is the short display name recorded on the result. Backends
	// fall back to a vendor-appropriate default when empty.
	Alias string

	// Round is the debate round number. Negative rounds are reserved
	// for synthesis (-1) and judging (-2).
	Round int

	// Role labels the result (initial, reflection, synthesis, judge).
	Role string

	Messages []domain.Message
	Prompt   string

	// MaxTokens caps the response where the API requires or accepts it.
	MaxTokens int

	// Routing is the decision that selected this backend; it is
	// recorded on the result for provenance.
	Routing domain.RoutingDecision
}

// Validate enforces the Messages/Prompt exclusivity rule.
func (r *Request) Validate() error {
	if r.Messages != nil && r.Prompt != "" {
		return domain.ErrInvalidRequest("Provide either 'messages' or 'prompt', not both.")
	}
	if r.Messages == nil && r.Prompt == "" {
		return domain.ErrInvalidRequest("Provide either 'messages' or 'prompt'.")
	}
	return nil
}

// ResolveMessages normalizes the request into a message list, wrapping
// Prompt in a single user message when Messages is unset.
func (r *Request) ResolveMessages() []domain.Message {
	if r.Messages != nil {
		return r.Messages
	}
	return []domain.Message{{Role: "user", Content: r.Prompt}}
}

// Backend is a connection to one completion vendor.
type Backend interface {
	// Vendor identifies which upstream this backend talks to.
	Vendor() domain.Vendor

	// Complete sends one request. Upstream failures (timeouts, HTTP
	// errors) are encoded in the result's Error field; the error return
	// is reserved for invalid requests.
	Complete(ctx context.Context, req *Request) (*domain.RoundResult, error)

	// MaxConcurrent is the fan-out cap for this backend, 0 for
	// unlimited.
	MaxConcurrent() int

	// Close releases the underlying connections.
	Close() error
}

// NewResult builds the result skeleton every backend fills in.
func NewResult(req *Request, alias string) *domain.RoundResult {
	routing := req.Routing
	return &domain.RoundResult{
		ModelID:     req.ModelID,
		ModelAlias:  alias,
		RoundNumber: req.Round,
		Role:        req.Role,
		Timestamp:   time.Now().UTC(),
		Routing:     &routing,
	}
}

// FailedResult builds an errored result slot for a request that never
// reached a backend.
func FailedResult(req *Request, err error) *domain.RoundResult {
	res := NewResult(req, req.Alias)
	res.Error = err.Error()
	return res
}

// IsTimeout reports whether err is a client-side deadline or transport
// timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// TimeoutMessage is the canonical timeout error recorded on results.
func TimeoutMessage(timeout time.Duration) string {
	return fmt.Sprintf("Request timed out after %gs", timeout.Seconds())
}
