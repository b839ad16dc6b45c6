// Package anthropic implements the direct Anthropic backend. It
// translates catalog model IDs to Anthropic's native form, hoists
// system messages into the Messages API's top-level system field, and
// normalizes content blocks and usage into round results.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	anthropicapi "github.com/richardspicer/questionable-ai/internal/api/anthropic"
	"github.com/richardspicer/questionable-ai/internal/backend"
	"github.com/richardspicer/questionable-ai/internal/domain"
	"github.com/richardspicer/questionable-ai/internal/pkg/config"
)

const (
	defaultTimeout   = 120 * time.Second
	defaultMaxTokens = 4096
)

// nativeModels maps catalog model names to Anthropic's dated release
// IDs. Names not listed fall back to a dots-to-dashes rewrite.
var nativeModels = map[string]string{
	"claude-sonnet-4.5": "claude-sonnet-4-5-20250929",
}

func init() {
	backend.RegisterFactory(backend.Factory{
		Vendor:      domain.VendorAnthropic,
		Description: "Anthropic Messages API (Claude models)",
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

// WithMaxTokens sets the max_tokens sent with every request.
func WithMaxTokens(maxTokens int) Option {
	return func(b *Backend) { b.maxTokens = maxTokens }
}

// WithMaxConcurrent caps parallel fan-out against this backend.
func WithMaxConcurrent(n int) Option {
	return func(b *Backend) { b.maxConcurrent = n }
}

// WithHTTPClient substitutes the HTTP client, used by replay tests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(b *Backend) { b.httpClient = httpClient }
}

// Backend is a direct connection to the Anthropic API.
type Backend struct {
	client        *anthropicapi.Client
	httpClient    *http.Client
	baseURL       string
	timeout       time.Duration
	maxTokens     int
	maxConcurrent int
}

// New creates an Anthropic backend. The API key is required.
func New(apiKey string, opts ...Option) (*Backend, error) {
	if apiKey == "" {
		return nil, domain.ErrRoutingUnavailable(domain.VendorAnthropic,
			"Anthropic API key is required. Set ANTHROPIC_API_KEY or add backends.anthropic.api_key to config.yaml")
	}

	b := &Backend{
		timeout:   defaultTimeout,
		maxTokens: defaultMaxTokens,
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.httpClient == nil {
		b.httpClient = &http.Client{Timeout: b.timeout}
	}
	clientOpts := []anthropicapi.ClientOption{
		anthropicapi.WithHTTPClient(b.httpClient),
	}
	if b.baseURL != "" {
		clientOpts = append(clientOpts, anthropicapi.WithBaseURL(b.baseURL))
	}
	b.client = anthropicapi.NewClient(apiKey, clientOpts...)
	return b, nil
}

// NewFromConfig creates an Anthropic backend from configuration.
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
func (b *Backend) Vendor() domain.Vendor { return domain.VendorAnthropic }

// MaxConcurrent is the fan-out cap, 0 for unlimited.
func (b *Backend) MaxConcurrent() int { return b.maxConcurrent }

// Close releases idle connections.
func (b *Backend) Close() error {
	b.httpClient.CloseIdleConnections()
	return nil
}

// Complete sends one completion to the Messages API.
func (b *Backend) Complete(ctx context.Context, req *backend.Request) (*domain.RoundResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	native := NativeModel(req.ModelID)
	alias := req.Alias
	if alias == "" {
		alias = native
	}

	system, messages := hoistSystem(req.ResolveMessages())
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = b.maxTokens
	}
	apiReq := &anthropicapi.MessagesRequest{
		Model:     native,
		Messages:  messages,
		MaxTokens: maxTokens,
		System:    system,
	}

	start := time.Now()
	resp, err := b.client.CreateMessage(ctx, apiReq)

	res := backend.NewResult(req, alias)
	res.ModelID = native
	res.LatencyMS = time.Since(start).Milliseconds()

	if err != nil {
		res.Error = classifyError(err, b.timeout)
		return res, nil
	}

	res.Content = extractContent(resp)
	if in, out := resp.Usage.InputTokens, resp.Usage.OutputTokens; in != nil && out != nil {
		res.TokenCount = domain.IntPtr(*in + *out)
		res.InputTokens = in
		res.OutputTokens = out
	}
	return res, nil
}

// NativeModel translates a catalog ID like anthropic/claude-sonnet-4.5
// to Anthropic's native model ID.
func NativeModel(modelID string) string {
	name := domain.NativeModelID(modelID)
	if native, ok := nativeModels[name]; ok {
		return native
	}
	return strings.ReplaceAll(name, ".", "-")
}

// hoistSystem pulls system messages out of the chat and joins them into
// the top-level system string, preserving the order of the rest.
func hoistSystem(messages []domain.Message) (string, []anthropicapi.Message) {
	var system []string
	chat := make([]anthropicapi.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		chat = append(chat, anthropicapi.Message{Role: m.Role, Content: m.Content})
	}
	return strings.Join(system, "\n\n"), chat
}

// extractContent flattens the response content blocks into text.
// Responses with no content field at all report a parse failure;
// responses whose blocks carry no text get a placeholder so downstream
// rounds have something to quote.
func extractContent(resp *anthropicapi.MessagesResponse) string {
	if resp.Content == nil {
		return fmt.Sprintf("[Failed to parse response: %s]", resp.Raw)
	}
	var parts []string
	for _, block := range resp.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	if parts == nil {
		return "[No text content in response]"
	}
	return strings.Join(parts, "")
}

func classifyError(err error, timeout time.Duration) string {
	var apiErr *anthropicapi.APIError
	switch {
	case backend.IsTimeout(err):
		return backend.TimeoutMessage(timeout)
	case errors.As(err, &apiErr):
		return fmt.Sprintf("HTTP %d: %s", apiErr.StatusCode, apiErr.Message)
	default:
		return err.Error()
	}
}
