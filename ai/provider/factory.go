// Package provider selects and builds the chat client for a run.
package provider

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/shopper/ai/anthropic"
	"github.com/teranos/shopper/ai/gemini"
	"github.com/teranos/shopper/ai/llm"
	"github.com/teranos/shopper/ai/openrouter"
	"github.com/teranos/shopper/am"
)

// AIClient is the interface every provider implements
type AIClient = llm.Client

// Options carries what every provider client shares
type Options struct {
	// Provider overrides cfg.Provider (e.g. from a --provider flag)
	Provider string
	DB       *sql.DB
	Logger   *zap.SugaredLogger
	Retry    llm.RetryPolicy
}

// NewAIClient creates the chat client for cfg.
// Priority when no provider is named: local (if enabled) → Anthropic → Gemini → OpenRouter.
func NewAIClient(ctx context.Context, cfg *am.Config, opts Options) (AIClient, Provider, error) {
	p, err := Determine(cfg, opts.Provider)
	if err != nil {
		return nil, "", err
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	opts.Logger.Debugw("Selected provider", "provider", p)

	client, err := NewAIClientWithProvider(ctx, cfg, p, opts)
	if err != nil {
		return nil, "", err
	}
	return client, p, nil
}

// NewAIClientWithProvider creates an AI client for a specific provider
func NewAIClientWithProvider(ctx context.Context, cfg *am.Config, p Provider, opts Options) (AIClient, error) {
	timeout := time.Duration(cfg.Pipeline.RequestTimeoutSeconds) * time.Second

	switch p {
	case ProviderLocal:
		local := NewLocalClient(LocalClientConfig{
			BaseURL:        cfg.LocalInference.BaseURL,
			Model:          cfg.LocalInference.Model,
			TimeoutSeconds: cfg.LocalInference.TimeoutSeconds,
			Retry:          opts.Retry,
			Logger:         opts.Logger,
			DB:             opts.DB,
		})
		return local, nil

	case ProviderAnthropic:
		return anthropic.NewClient(anthropic.Config{
			APIKey:      cfg.Anthropic.APIKey,
			Model:       cfg.Anthropic.Model,
			Temperature: cfg.Anthropic.Temperature,
			MaxTokens:   cfg.Anthropic.MaxTokens,
			Timeout:     timeout,
			Retry:       opts.Retry,
			Logger:      opts.Logger,
			DB:          opts.DB,
		}), nil

	case ProviderGemini:
		return gemini.NewClient(ctx, gemini.Config{
			APIKey:      cfg.Gemini.APIKey,
			Model:       cfg.Gemini.Model,
			Temperature: cfg.Gemini.Temperature,
			MaxTokens:   cfg.Gemini.MaxTokens,
			Retry:       opts.Retry,
			Logger:      opts.Logger,
			DB:          opts.DB,
		})

	default:
		return openrouter.NewClient(openrouter.Config{
			APIKey:      cfg.OpenRouter.APIKey,
			Model:       cfg.OpenRouter.Model,
			Temperature: cfg.OpenRouter.Temperature,
			MaxTokens:   cfg.OpenRouter.MaxTokens,
			Timeout:     timeout,
			Retry:       opts.Retry,
			Logger:      opts.Logger,
			DB:          opts.DB,
		}), nil
	}
}

// Verify interfaces are implemented
var _ AIClient = (*openrouter.Client)(nil)
var _ AIClient = (*anthropic.Client)(nil)
var _ AIClient = (*gemini.Client)(nil)
var _ AIClient = (*LocalClient)(nil)
