// Package gemini talks to Google Gemini through the genai SDK.
// It provides a chat client for the generation stages and an embedder for
// the embedding classifier.
package gemini

import (
	"context"
	"database/sql"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/teranos/shopper/ai/llm"
	"github.com/teranos/shopper/errors"
	"github.com/teranos/shopper/internal/util"
)

const (
	// DefaultModel is the default chat model
	DefaultModel = "gemini-2.5-flash"

	// DefaultEmbeddingModel is the default embedding model
	DefaultEmbeddingModel = "gemini-embedding-001"

	providerName = "gemini"
)

// Config holds Gemini client configuration
type Config struct {
	APIKey      string
	Model       string
	Temperature *float64 // nil = 0.2
	MaxTokens   *int     // nil = 1000
	// BaseURL overrides the API endpoint (tests, proxies)
	BaseURL    string
	HTTPClient *http.Client
	Retry      llm.RetryPolicy
	Logger     *zap.SugaredLogger
	DB         *sql.DB
}

// Client implements llm.Client on top of genai
type Client struct {
	genai  *genai.Client
	config Config
	usage  *llm.Recorder
	logger *zap.SugaredLogger
}

// NewClient creates a Gemini chat client
func NewClient(ctx context.Context, config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, errors.WithHint(
			errors.Wrap(errors.ErrUnauthorized, "Gemini API key not configured"),
			"set SHOPPER_GEMINI_API_KEY or gemini.api_key",
		)
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Temperature == nil {
		config.Temperature = util.Ptr(0.2)
	}
	if config.MaxTokens == nil {
		config.MaxTokens = util.Ptr(1000)
	}
	if config.Retry.Attempts == 0 {
		config.Retry = llm.DefaultRetryPolicy()
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	client, err := newGenAI(ctx, config.APIKey, config.BaseURL, config.HTTPClient)
	if err != nil {
		return nil, err
	}

	return &Client{
		genai:  client,
		config: config,
		usage:  llm.NewRecorder(config.DB, providerName, logger),
		logger: logger,
	}, nil
}

func newGenAI(ctx context.Context, apiKey, baseURL string, httpClient *http.Client) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Gemini client")
	}
	return client, nil
}

// Chat implements llm.Client. Response fields become a native response schema.
func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	model, temperature, maxTokens := req.Resolve(c.config.Model, *c.config.Temperature, *c.config.MaxTokens)

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(temperature)),
		MaxOutputTokens: int32(maxTokens),
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if req.Structured() {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = responseSchema(req.ResponseFields)
	}

	c.logger.Debugw("Gemini chat request",
		"model", model,
		"temperature", temperature,
		"max_tokens", maxTokens,
		"structured", req.Structured(),
	)

	call := llm.Call{Request: req, Model: model, Temperature: temperature, MaxTokens: maxTokens, Started: time.Now()}

	var resp *genai.GenerateContentResponse
	err := c.config.Retry.Do(ctx, c.logger, providerName, func(ctx context.Context) error {
		var err error
		resp, err = c.genai.Models.GenerateContent(ctx, model, genai.Text(req.UserPrompt), cfg)
		return classify(err)
	})
	if err == nil && len(resp.Candidates) == 0 {
		err = errors.NewMalformedResponseError("no candidates from Gemini")
	}
	if err != nil {
		c.usage.Failure(ctx, call, err)
		return nil, err
	}

	var usage llm.Usage
	if md := resp.UsageMetadata; md != nil {
		usage = llm.Usage{
			PromptTokens:     int(md.PromptTokenCount),
			CompletionTokens: int(md.CandidatesTokenCount),
			TotalTokens:      int(md.TotalTokenCount),
		}
	}
	call.Usage = usage
	call.Cost = CalculateCost(model, usage.PromptTokens, usage.CompletionTokens)
	c.usage.Success(ctx, call)

	return &llm.ChatResponse{
		Content: strings.TrimSpace(resp.Text()),
		Model:   model,
		Usage:   usage,
	}, nil
}

func responseSchema(fields []string) *genai.Schema {
	properties := make(map[string]*genai.Schema, len(fields))
	for _, f := range fields {
		properties[f] = &genai.Schema{Type: genai.TypeString}
	}
	return &genai.Schema{
		Type:       genai.TypeObject,
		Properties: properties,
		Required:   fields,
	}
}

// classify maps genai API errors onto the shared sentinels so retries and
// exit codes treat every provider alike
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return errors.Wrapf(errors.FromHTTPStatus(apiErr.Code), "Gemini API error %d %s: %s", apiErr.Code, apiErr.Status, apiErr.Message)
	}
	return err
}

// ModelPricing is USD per million tokens
type ModelPricing struct {
	InputPrice  float64
	OutputPrice float64
}

var modelPricing = map[string]ModelPricing{
	"gemini-2.5-flash":      {InputPrice: 0.30, OutputPrice: 2.50},
	"gemini-2.5-flash-lite": {InputPrice: 0.10, OutputPrice: 0.40},
	"gemini-2.5-pro":        {InputPrice: 1.25, OutputPrice: 10.00},
	"gemini-2.0-flash":      {InputPrice: 0.10, OutputPrice: 0.40},
}

// DefaultPricingFallback is the cost charged per request when model pricing is unknown
const DefaultPricingFallback = 0.01

// CalculateCost computes the cost of a call in USD
func CalculateCost(model string, inputTokens, outputTokens int) float64 {
	pricing, found := modelPricing[model]
	if !found {
		return DefaultPricingFallback
	}
	return float64(inputTokens)/1_000_000.0*pricing.InputPrice +
		float64(outputTokens)/1_000_000.0*pricing.OutputPrice
}
