// Package openrouter implements the aggregated backend. OpenRouter
// fronts every catalog model behind one OpenAI-compatible endpoint, so
// this backend passes catalog IDs through unchanged and serves as the
// fallback route for vendors without direct credentials.
package openrouter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openaiapi "github.com/richardspicer/questionable-ai/internal/api/openai"
	"github.com/richardspicer/questionable-ai/internal/backend"
	"github.com/richardspicer/questionable-ai/internal/domain"
	"github.com/richardspicer/questionable-ai/internal/pkg/config"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	defaultTimeout = 120 * time.Second

	// Optional attribution headers OpenRouter uses for rankings.
	siteURL = "https://richardspicer.io"
	appName = "Questionable AI"
)

func init() {
	backend.RegisterFactory(backend.Factory{
		Vendor:      domain.VendorOpenRouter,
		Description: "OpenRouter aggregated API (any catalog model)",
		Create:      NewFromConfig,
	})
}

// Option configures the backend.
type Option func(*Backend)

// WithBaseURL points the backend at a different endpoint.
func WithBaseURL(baseURL string) Option {
	return func(b *Backend) { b.baseURL = baseURL }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(b *Backend) { b.timeout = timeout }
}

// WithMaxConcurrent caps parallel fan-out against this backend.
func WithMaxConcurrent(n int) Option {
	return func(b *Backend) { b.maxConcurrent = n }
}

// WithHTTPClient substitutes the HTTP client, used by replay tests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(b *Backend) { b.httpClient = httpClient }
}

// Backend is a connection to the OpenRouter API.
type Backend struct {
	client        *openaiapi.Client
	httpClient    *http.Client
	baseURL       string
	timeout       time.Duration
	maxConcurrent int
}

// New creates an OpenRouter backend. The API key is required.
func New(apiKey string, opts ...Option) (*Backend, error) {
	if apiKey == "" {
		return nil, domain.ErrRoutingUnavailable(domain.VendorOpenRouter,
			"OpenRouter API key is required. Set OPENROUTER_API_KEY or add backends.openrouter.api_key to config.yaml")
	}

	b := &Backend{
		baseURL: defaultBaseURL,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.httpClient == nil {
		b.httpClient = &http.Client{Timeout: b.timeout}
	}
	b.client = openaiapi.NewClient(apiKey,
		openaiapi.WithBaseURL(b.baseURL),
		openaiapi.WithHTTPClient(b.httpClient),
		openaiapi.WithHeader("HTTP-Referer", siteURL),
		openaiapi.WithHeader("X-Title", appName),
	)
	return b, nil
}

// NewFromConfig creates an OpenRouter backend from configuration.
func NewFromConfig(cfg config.BackendConfig) (backend.Backend, error) {
	var opts []Option
	if cfg.BaseURL != "" {
		opts = append(opts, WithBaseURL(cfg.BaseURL))
	}
	if cfg.TimeoutSeconds > 0 {
		opts = append(opts, WithTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second))
	}
	if cfg.MaxConcurrent > 0 {
		opts = append(opts, WithMaxConcurrent(cfg.MaxConcurrent))
	}
	return New(cfg.APIKey, opts...)
}

// Vendor identifies this backend.
func (b *Backend) Vendor() domain.Vendor { return domain.VendorOpenRouter }

// MaxConcurrent is the fan-out cap, 0 for unlimited.
func (b *Backend) MaxConcurrent() int { return b.maxConcurrent }

// Close releases idle connections.
func (b *Backend) Close() error {
	b.httpClient.CloseIdleConnections()
	return nil
}

// Complete sends one completion through OpenRouter.
func (b *Backend) Complete(ctx context.Context, req *backend.Request) (*domain.RoundResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	alias := req.Alias
	if alias == "" {
		alias = req.ModelID[strings.LastIndex(req.ModelID, "/")+1:]
	}

	messages := req.ResolveMessages()
	apiReq := &openaiapi.ChatCompletionRequest{
		Model:    req.ModelID,
		Messages: toWire(messages),
	}

	start := time.Now()
	resp, err := b.client.CreateChatCompletion(ctx, apiReq)

	res := backend.NewResult(req, alias)
	res.LatencyMS = time.Since(start).Milliseconds()

	if err != nil {
		res.Error = classifyError(err, b.timeout)
		return res, nil
	}

	if len(resp.Choices) == 0 {
		res.Content = fmt.Sprintf("[Failed to parse response: %s]", resp.Raw)
		return res, nil
	}
	res.Content = resp.Choices[0].Message.Content
	if resp.Usage != nil && resp.Usage.TotalTokens != nil {
		res.TokenCount = resp.Usage.TotalTokens
		res.InputTokens = resp.Usage.PromptTokens
		res.OutputTokens = resp.Usage.CompletionTokens
	}
	return res, nil
}

func toWire(messages []domain.Message) []openaiapi.Message {
	out := make([]openaiapi.Message, len(messages))
	for i, m := range messages {
		out[i] = openaiapi.Message{Role: m.Role, Content: m.Content}
	}
	return out
}

func classifyError(err error, timeout time.Duration) string {
	var apiErr *openaiapi.APIError
	switch {
	case backend.IsTimeout(err):
		return backend.TimeoutMessage(timeout)
	case errors.As(err, &apiErr):
		return fmt.Sprintf("HTTP %d: %s", apiErr.StatusCode, apiErr.Message)
	default:
		return err.Error()
	}
}
