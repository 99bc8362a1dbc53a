package openrouter

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
	// DefaultModel is the fallback model when none is specified.
	// Should match the default in am/defaults.go.
	DefaultModel = "mistralai/mistral-7b-instruct"

	// DefaultBaseURL is the OpenRouter API root
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	providerName = "openrouter"
)

// Client represents an OpenRouter.ai API client
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *httpclient.SaferClient
	config     Config
	usage      *llm.Recorder
	logger     *zap.SugaredLogger
}

// Config holds AI client configuration
type Config struct {
	APIKey      string
	Model       string
	Temperature *float64 // nil = use default (0.2)
	MaxTokens   *int     // nil = use default (1000)
	BaseURL     string   // empty = DefaultBaseURL
	Timeout     time.Duration
	Retry       llm.RetryPolicy    // zero value = llm.DefaultRetryPolicy()
	Logger      *zap.SugaredLogger // Structured logger (nil = nop logger)
	DB          *sql.DB            // Database for automatic cost/usage tracking (nil = no tracking)
}

// NewClient creates a new OpenRouter.ai client with defaults applied
func NewClient(config Config) *Client {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Temperature == nil {
		config.Temperature = util.Ptr(0.2)
	}
	if config.MaxTokens == nil {
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
		apiKey:     config.APIKey,
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: httpclient.New(config.Timeout),
		config:     config,
		usage:      llm.NewRecorder(config.DB, providerName, logger),
		logger:     logger,
	}
}

// ChatCompletionRequest represents a request to the chat completions endpoint
type ChatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// ResponseFormat requests structured output
type ResponseFormat struct {
	Type       string      `json:"type"` // "json_schema"
	JSONSchema *JSONSchema `json:"json_schema,omitempty"`
}

// JSONSchema names the schema a structured response must follow
type JSONSchema struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

// Message represents a message in a chat completion
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionResponse represents the response from chat completions
type ChatCompletionResponse struct {
	ID      string    `json:"id"`
	Model   string    `json:"model"`
	Choices []Choice  `json:"choices"`
	Usage   llm.Usage `json:"usage"`
}

// Choice represents a completion choice
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// CreateChatCompletion sends a single chat completion request to OpenRouter
func (c *Client) CreateChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	// X-Title shows up in the OpenRouter dashboard
	httpReq.Header.Set("X-Title", "shopper")

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

	var chatResp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, errors.Wrapf(errors.ErrMalformedResponse, "failed to unmarshal response: %v", err)
	}

	return &chatResp, nil
}

// Chat sends a chat completion request with retries and usage tracking
func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if c.config.APIKey == "" {
		return nil, errors.WithHint(
			errors.Wrap(errors.ErrUnauthorized, "OpenRouter API key not configured"),
			"set SHOPPER_OPENROUTER_API_KEY or openrouter.api_key",
		)
	}

	model, temperature, maxTokens := req.Resolve(c.config.Model, *c.config.Temperature, *c.config.MaxTokens)

	c.logger.Debugw("AI Chat Request",
		"model", model,
		"temperature", temperature,
		"max_tokens", maxTokens,
		"structured", req.Structured(),
		"user_prompt", req.UserPrompt,
	)

	messages := []Message{{Role: "user", Content: req.UserPrompt}}
	if req.SystemPrompt != "" {
		messages = append([]Message{{Role: "system", Content: req.SystemPrompt}}, messages...)
	}

	openrouterReq := ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	if req.Structured() {
		openrouterReq.ResponseFormat = &ResponseFormat{
			Type: "json_schema",
			JSONSchema: &JSONSchema{
				Name:   "response",
				Strict: true,
				Schema: llm.JSONSchema(req.ResponseFields),
			},
		}
	}

	call := llm.Call{Request: req, Model: model, Temperature: temperature, MaxTokens: maxTokens, Started: time.Now()}

	var resp *ChatCompletionResponse
	err := c.config.Retry.Do(ctx, c.logger, providerName, func(ctx context.Context) error {
		var err error
		resp, err = c.CreateChatCompletion(ctx, openrouterReq)
		return err
	})
	if err == nil && len(resp.Choices) == 0 {
		err = errors.NewMalformedResponseError("no response choices from OpenRouter")
	}
	if err != nil {
		c.usage.Failure(ctx, call, err)
		return nil, err
	}

	content := resp.Choices[0].Message.Content

	c.logger.Debugw("OpenRouter response",
		"content_length", len(content),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)

	call.Usage = resp.Usage
	call.Cost = CalculateCost(model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	c.usage.Success(ctx, call)

	return &llm.ChatResponse{
		Content: strings.TrimSpace(content),
		Model:   model,
		Usage:   resp.Usage,
	}, nil
}

// IsConfigured returns true if the client has a valid API key
func (c *Client) IsConfigured() bool {
	return c.config.APIKey != ""
}

// SetHTTPClient allows overriding the HTTP client for testing.
// Production code should use the default SSRF-safer client.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = httpclient.Wrap(client)
}
