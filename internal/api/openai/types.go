// Package openai provides the HTTP client and wire types for
// OpenAI-compatible chat completion APIs. OpenRouter, Groq, xAI, Gemini
// (compatibility endpoint), and Ollama all speak this shape, so one
// client covers every aggregated and direct backend except Anthropic.
package openai

import (
	"encoding/json"
	"fmt"
)

// ChatCompletionRequest represents a chat completion request.
type ChatCompletionRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

// Message is one turn in the conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionResponse represents a chat completion response. Raw
// holds the undecoded body for callers that need to report unexpected
// shapes.
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// Choice is one completion choice.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage represents token usage in the response. Pointer fields
// distinguish absent counters from zero.
type Usage struct {
	PromptTokens     *int `json:"prompt_tokens"`
	CompletionTokens *int `json:"completion_tokens"`
	TotalTokens      *int `json:"total_tokens"`
}

// ErrorResponse represents an API error body.
type ErrorResponse struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code,omitempty"`
	} `json:"error"`
}

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s: %s", e.Type, e.Message)
	}
	return e.Message
}

// ParseErrorResponse builds an *APIError from a non-2xx response body,
// falling back to the raw body when it isn't the documented error shape.
func ParseErrorResponse(statusCode int, body []byte) *APIError {
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != nil {
		return &APIError{
			StatusCode: statusCode,
			Type:       errResp.Error.Type,
			Message:    errResp.Error.Message,
		}
	}
	return &APIError{StatusCode: statusCode, Message: string(body)}
}
