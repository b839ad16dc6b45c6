// Package openaicompat implements direct backends for every vendor that
// exposes an OpenAI-compatible chat completions endpoint: OpenAI itself,
// xAI, Groq, Google's compatibility surface, and local Ollama daemons.
// One Backend type serves all five; the factory registrations differ only
// in vendor identity and default endpoint.
package openaicompat

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

const defaultTimeout = 120 * time.Second

// vendorInfo carries the per-vendor constants: the public endpoint, the
// environment variable named in credential errors, and whether the
// vendor accepts unauthenticated requests (only Ollama does).
type vendorInfo struct {
	display string
	envVar  string
	baseURL string
	keyless bool
}

var vendors = map[domain.Vendor]vendorInfo{
	domain.VendorOpenAI: {
		display: "OpenAI",
		envVar:  "OPENAI_API_KEY",
		baseURL: "https://api.openai.com/v1",
	},
	domain.VendorXAI: {
		display: "xAI",
		envVar:  "XAI_API_KEY",
		baseURL: "https://api.x.ai/v1",
	},
	domain.VendorGroq: {
		display: "Groq",
		envVar:  "GROQ_API_KEY",
		baseURL: "https://api.groq.com/openai/v1",
	},
	domain.VendorGoogle: {
		display: "Google",
		envVar:  "GOOGLE_API_KEY",
		baseURL: "https://generativelanguage.googleapis.com/v1beta/openai",
	},
	domain.VendorOllama: {
		display: "Ollama",
		baseURL: "http://localhost:11434/v1",
		keyless: true,
	},
}

func init() {
	for v := range vendors {
		vendor := v
		backend.RegisterFactory(backend.Factory{
			Vendor:      vendor,
			Description: fmt.Sprintf("%s chat completions API", vendors[vendor].display),
			Create: func(cfg config.BackendConfig) (backend.Backend, error) {
				return NewFromConfig(vendor, cfg)
			},
		})
	}
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

// WithMaxTokens sets a completion cap sent when the request carries none.
func WithMaxTokens(n int) Option {
	return func(b *Backend) { b.maxTokens = n }
}

// WithMaxConcurrent caps parallel fan-out against this backend.
func WithMaxConcurrent(n int) Option {
	return func(b *Backend) { b.maxConcurrent = n }
}

// WithHTTPClient substitutes the HTTP client, used by replay tests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(b *Backend) { b.httpClient = httpClient }
}

// Backend is a connection to one OpenAI-compatible vendor API.
type Backend struct {
	vendor        domain.Vendor
	client        *openaiapi.Client
	httpClient    *http.Client
	baseURL       string
	timeout       time.Duration
	maxTokens     int
	maxConcurrent int
}

// New creates a backend for one of the compatible vendors. The API key
// is required for every vendor except Ollama.
func New(vendor domain.Vendor, apiKey string, opts ...Option) (*Backend, error) {
	info, ok := vendors[vendor]
	if !ok {
		return nil, domain.ErrInvalidRequestf("vendor %q does not speak the OpenAI-compatible API", vendor)
	}
	if apiKey == "" && !info.keyless {
		return nil, domain.ErrRoutingUnavailable(vendor,
			fmt.Sprintf("%s API key is required. Set %s or add backends.%s.api_key to config.yaml",
				info.display, info.envVar, vendor))
	}

	b := &Backend{
		vendor:  vendor,
		baseURL: info.baseURL,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.baseURL = normalizeBaseURL(b.baseURL)

	if b.httpClient == nil {
		b.httpClient = &http.Client{Timeout: b.timeout}
	}
	b.client = openaiapi.NewClient(apiKey,
		openaiapi.WithBaseURL(b.baseURL),
		openaiapi.WithHTTPClient(b.httpClient),
	)
	return b, nil
}

// NewFromConfig creates a backend for vendor from configuration.
func NewFromConfig(vendor domain.Vendor, cfg config.BackendConfig) (backend.Backend, error) {
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
	return New(vendor, cfg.APIKey, opts...)
}

// normalizeBaseURL appends the /v1 path segment when it is missing, so
// OLLAMA_HOST values like "http://localhost:11434" work unchanged.
func normalizeBaseURL(baseURL string) string {
	trimmed := strings.TrimRight(baseURL, "/")
	if strings.HasSuffix(trimmed, "/v1") || strings.Contains(trimmed, "/v1beta") {
		return trimmed
	}
	return trimmed + "/v1"
}

// Vendor identifies this backend.
func (b *Backend) Vendor() domain.Vendor { return b.vendor }

// MaxConcurrent is the fan-out cap, 0 for unlimited.
func (b *Backend) MaxConcurrent() int { return b.maxConcurrent }

// Close releases idle connections.
func (b *Backend) Close() error {
	b.httpClient.CloseIdleConnections()
	return nil
}

// Complete sends one completion to the vendor's native endpoint.
func (b *Backend) Complete(ctx context.Context, req *backend.Request) (*domain.RoundResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	native := domain.NativeModelID(req.ModelID)
	alias := req.Alias
	if alias == "" {
		alias = native
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = b.maxTokens
	}
	apiReq := &openaiapi.ChatCompletionRequest{
		Model:     native,
		Messages:  toWire(req.ResolveMessages()),
		MaxTokens: maxTokens,
	}

	start := time.Now()
	resp, err := b.client.CreateChatCompletion(ctx, apiReq)

	res := backend.NewResult(req, alias)
	res.ModelID = native
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
