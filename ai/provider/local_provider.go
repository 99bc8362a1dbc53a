package provider

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
)

const localProviderName = "local"

// LocalClientConfig holds configuration for the local inference client
type LocalClientConfig struct {
	BaseURL        string // e.g. http://localhost:11434
	Model          string
	TimeoutSeconds int
	Temperature    float64
	MaxTokens      int
	Retry          llm.RetryPolicy
	Logger         *zap.SugaredLogger
	DB             *sql.DB
}

// LocalClient talks to Ollama, LocalAI, or any OpenAI-compatible local server
type LocalClient struct {
	baseURL    string
	httpClient *httpclient.SaferClient
	config     LocalClientConfig
	usage      *llm.Recorder
	logger     *zap.SugaredLogger
}

// NewLocalClient creates a local inference client.
// Private and loopback addresses are allowed since local servers live there.
func NewLocalClient(cfg LocalClientConfig) *LocalClient {
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.2
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1000
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = llm.DefaultRetryPolicy()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second

	return &LocalClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpclient.NewWithOptions(timeout, httpclient.Options{AllowPrivate: true}),
		config:     cfg,
		usage:      llm.NewRecorder(cfg.DB, localProviderName, logger),
		logger:     logger,
	}
}

// ChatCompletionRequest matches the OpenAI API format (Ollama is compatible)
type ChatCompletionRequest struct {
	Model          string               `json:"model"`
	Messages       []ChatMessage        `json:"messages"`
	Stream         bool                 `json:"stream"`
	Temperature    float64              `json:"temperature"`
	MaxTokens      int                  `json:"max_tokens,omitempty"`
	ResponseFormat *LocalResponseFormat `json:"response_format,omitempty"`
}

// LocalResponseFormat asks for JSON mode
type LocalResponseFormat struct {
	Type string `json:"type"`
}

// ChatMessage is one chat turn
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionResponse matches the OpenAI API format
type ChatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int         `json:"index"`
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage *llm.Usage `json:"usage,omitempty"`
}

// Chat implements llm.Client for local inference.
// Response fields are requested through JSON mode plus a system prompt instruction.
func (lc *LocalClient) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if lc.baseURL == "" {
		return nil, errors.WithHint(
			errors.Wrap(errors.ErrInvalidRequest, "local inference base URL not configured"),
			"set local_inference.base_url (e.g. http://localhost:11434)",
		)
	}

	model, temperature, maxTokens := req.Resolve(lc.config.Model, lc.config.Temperature, lc.config.MaxTokens)

	var messages []ChatMessage
	if system := llm.WithFieldsInstruction(req.SystemPrompt, req.ResponseFields); system != "" {
		messages = append(messages, ChatMessage{Role: "system", Content: system})
	}
	messages = append(messages, ChatMessage{Role: "user", Content: req.UserPrompt})

	body := ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	if req.Structured() {
		body.ResponseFormat = &LocalResponseFormat{Type: "json_object"}
	}

	call := llm.Call{Request: req, Model: model, Temperature: temperature, MaxTokens: maxTokens, Started: time.Now()}

	var completion *ChatCompletionResponse
	err := lc.config.Retry.Do(ctx, lc.logger, localProviderName, func(ctx context.Context) error {
		var err error
		completion, err = lc.complete(ctx, body)
		return err
	})
	if err == nil && len(completion.Choices) == 0 {
		err = errors.NewMalformedResponseError("no completion choices returned")
	}
	if err != nil {
		lc.usage.Failure(ctx, call, err)
		return nil, err
	}

	// Not every local server reports usage
	var usage llm.Usage
	if completion.Usage != nil {
		usage = *completion.Usage
	}
	call.Usage = usage
	lc.usage.Success(ctx, call)

	return &llm.ChatResponse{
		Content: strings.TrimSpace(completion.Choices[0].Message.Content),
		Model:   model,
		Usage:   usage,
	}, nil
}

func (lc *LocalClient) complete(ctx context.Context, body ChatCompletionRequest) (*ChatCompletionResponse, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	endpoint := lc.baseURL + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := lc.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, llm.StatusError(resp.StatusCode, respBody)
	}

	var completion ChatCompletionResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return nil, errors.Wrapf(errors.ErrMalformedResponse, "failed to decode response: %v", err)
	}
	return &completion, nil
}

// GetModelName returns the configured local model name
func (lc *LocalClient) GetModelName() string {
	return lc.config.Model
}
