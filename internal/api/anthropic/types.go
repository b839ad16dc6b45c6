// Package anthropic provides the HTTP client and wire types for the
// Anthropic Messages API. Only the text-completion subset the debate
// engine needs is modeled here.
package anthropic

import (
	"encoding/json"
	"fmt"
)

// MessagesRequest represents an Anthropic Messages API request.
type MessagesRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
}

// Message is one turn in the conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// MessagesResponse represents an Anthropic Messages API response. A nil
// Content slice means the body had no content field at all; an empty
// one means it was present but empty. Raw holds the undecoded body for
// callers that need to report unexpected shapes.
type MessagesResponse struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Role       string            `json:"role"`
	Content    []ResponseContent `json:"content"`
	Model      string            `json:"model"`
	StopReason string            `json:"stop_reason"`
	Usage      MessagesUsage     `json:"usage"`

	Raw json.RawMessage `json:"-"`
}

// ResponseContent is one block of response content. Non-text blocks are
// carried but ignored by Text().
type ResponseContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// MessagesUsage represents token usage in the response. Pointer fields
// distinguish absent counters from zero.
type MessagesUsage struct {
	InputTokens  *int `json:"input_tokens"`
	OutputTokens *int `json:"output_tokens"`
}

// Text concatenates the text blocks of the response.
func (r *MessagesResponse) Text() string {
	var out string
	for _, block := range r.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	return out
}

// ErrorResponse represents an Anthropic API error body.
type ErrorResponse struct {
	Type  string `json:"type"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
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
