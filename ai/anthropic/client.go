package anthropic

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/shopper/ai/llm"
	"github.com/teranos/shopper/errors"
	"github.com/teranos/shopper/internal/httpclient"
	"github.com/teranos/shopper/internal/util"
)

const (
	// DefaultModel is the default Claude model
	DefaultModel = "claude-3-5-haiku-latest"

	// DefaultBaseURL is the Anthropic API endpoint
	DefaultBaseURL = "https://api.anthropic.com/v1"

	// APIVersion is the required Anthropic API version header
	APIVersion = "2023-06-01"

	providerName = "anthropic"
)

// Client represents an Anthropic API client
type Client struct {
	baseURL    string
	httpClient *httpclient.SaferClient
	config     Config
	usage      *llm.Recorder
	logger     *zap.SugaredLogger
}

// Config holds Anthropic client configuration
type Config struct {
	APIKey      string
	Model       string
	Temperature *float64 // nil = 0.2
	MaxTokens   *int     // nil = 1000; the Messages API requires a value
	BaseURL     string
	Timeout     time.Duration
	Retry       llm.RetryPolicy
	Logger      *zap.SugaredLogger
	DB          *sql.DB // Database for automatic cost/usage tracking
}

// NewClient creates a new Anthropic API client
func NewClient(config Config) *Client {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Temperature == nil {
		config.Temperature = util.Ptr(0.2)
	}
	if config.MaxTokens == nil || *config.MaxTokens <= 0 {
		config.MaxTokens = util.Ptr(1000)
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Retry.Attempts == 0 {
		config.Retry = llm.DefaultRetryPolicy()
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: httpclient.New(config.Timeout),
		config:     config,
		usage:      llm.NewRecorder(config.DB, providerName, logger),
		logger:     logger,
	}
}

// MessagesRequest represents a request to the Anthropic Messages API
type MessagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Messages    []Message `json:"messages"`
	System      string    `json:"system,omitempty"`
	Temperature float64   `json:"temperature"`
}

// Message represents a message in the conversation
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// MessagesResponse represents the response from the Messages API
type MessagesResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Content    []ContentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

// ContentBlock represents a content block in the response
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Usage represents token usage information
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Text concatenates the text blocks of a response
func (r *MessagesResponse) Text() string {
	var content strings.Builder
	for _, block := range r.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	return content.String()
}

// Chat implements llm.Client for Anthropic.
// Requested response fields are described in the system prompt since the
// Messages API has no JSON schema mode.
func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if c.config.APIKey == "" {
		return nil, errors.WithHint(
			errors.Wrap(errors.ErrUnauthorized, "Anthropic API key not configured"),
			"set SHOPPER_ANTHROPIC_API_KEY or anthropic.api_key",
		)
	}

	model, temperature, maxTokens := req.Resolve(c.config.Model, *c.config.Temperature, *c.config.MaxTokens)

	c.logger.Debugw("Anthropic chat request",
		"model", model,
		"temperature", temperature,
		"max_tokens", maxTokens,
		"structured", req.Structured(),
	)

	anthropicReq := MessagesRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		System:      llm.WithFieldsInstruction(req.SystemPrompt, req.ResponseFields),
		Messages: []Message{
			{Role: "user", Content: req.UserPrompt},
		},
	}

	call := llm.Call{Request: req, Model: model, Temperature: temperature, MaxTokens: maxTokens, Started: time.Now()}

	var resp *MessagesResponse
	err := c.config.Retry.Do(ctx, c.logger, providerName, func(ctx context.Context) error {
		var err error
		resp, err = c.createMessages(ctx, anthropicReq)
		return err
	})
	if err != nil {
		c.usage.Failure(ctx, call, err)
		return nil, err
	}

	usage := llm.Usage{
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}
	call.Usage = usage
	call.Cost = CalculateCost(model, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	c.usage.Success(ctx, call)

	content := resp.Text()
	c.logger.Debugw("Anthropic response",
		"stop_reason", resp.StopReason,
		"content_length", len(content),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	)

	return &llm.ChatResponse{
		Content: strings.TrimSpace(content),
		Model:   model,
		Usage:   usage,
	}, nil
}

// createMessages sends a request to the Anthropic Messages API
func (c *Client) createMessages(ctx context.Context, req MessagesRequest) (*MessagesResponse, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(reqBody))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.config.APIKey)
	httpReq.Header.Set("anthropic-version", APIVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, llm.StatusError(resp.StatusCode, respBody)
	}

	var messagesResp MessagesResponse
	if err := json.Unmarshal(respBody, &messagesResp); err != nil {
		return nil, errors.Wrapf(errors.ErrMalformedResponse, "failed to unmarshal response: %v", err)
	}

	return &messagesResp, nil
}

// IsConfigured returns true if the client has a valid API key
func (c *Client) IsConfigured() bool {
	return c.config.APIKey != ""
}

// SetHTTPClient allows overriding the HTTP client for testing
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = httpclient.Wrap(client)
}
