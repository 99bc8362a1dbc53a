// Package llm holds the request and response types shared by every model provider,
// plus the retry, usage recording and structured-output helpers they have in common.
package llm

import "context"

// ChatRequest represents a high-level request to the AI
type ChatRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  *float64 // Override default temperature
	MaxTokens    *int     // Override default max tokens
	Model        *string  // Override default model

	// ResponseFields asks for a JSON object with these string fields.
	// Providers with native structured output pass a schema; others are instructed in the system prompt.
	ResponseFields []string

	// Operation and RunID are recorded with usage rows
	Operation string
	RunID     string
}

// ChatResponse represents the AI response
type ChatResponse struct {
	Content string
	Model   string
	Usage   Usage
}

// Usage represents token usage information
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Client is implemented by every provider
type Client interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Structured reports whether the request asks for JSON fields
func (r ChatRequest) Structured() bool {
	return len(r.ResponseFields) > 0
}

// Resolve applies per-request overrides to the client defaults
func (r ChatRequest) Resolve(model string, temperature float64, maxTokens int) (string, float64, int) {
	if r.Model != nil && *r.Model != "" {
		model = *r.Model
	}
	if r.Temperature != nil {
		temperature = *r.Temperature
	}
	if r.MaxTokens != nil {
		maxTokens = *r.MaxTokens
	}
	return model, temperature, maxTokens
}
