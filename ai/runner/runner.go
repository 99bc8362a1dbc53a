// Package runner sends batches of prompts to a chat provider.
//
// Requests within a batch run concurrently, bounded by Config.Concurrency and a
// shared requests-per-minute limiter. Completions come back in prompt order.
// The first failed request cancels the rest of the batch.
package runner

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/teranos/shopper/ai/llm"
	"github.com/teranos/shopper/errors"
	"github.com/teranos/shopper/logger"
	"github.com/teranos/shopper/prompt"
)

// DefaultConcurrency bounds parallel requests within one batch
const DefaultConcurrency = 4

// Config controls fan-out
type Config struct {
	Concurrency       int     // 0 = DefaultConcurrency
	RequestsPerMinute float64 // 0 = unlimited
	Model             string  // overrides the provider's default model when set
}

// Request is one batch of prompts that share a system prompt and output schema
type Request struct {
	// Operation names the calling stage in usage rows
	Operation    string
	SystemPrompt string
	Prompts      []string
	// Fields, when set, asks for a JSON object with these string fields per prompt
	Fields      []string
	Temperature *float64
	MaxTokens   *int
}

// Completion is the answer to one prompt
type Completion struct {
	Output string
	// Fields holds the parsed structured answer when the request named fields
	Fields map[string]string
}

// Runner fans a batch out to a provider
type Runner struct {
	client      llm.Client
	concurrency int
	limiter     *rate.Limiter
	model       *string
	log         *zap.SugaredLogger
}

// New creates a Runner over client
func New(client llm.Client, cfg Config) *Runner {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	r := &Runner{
		client:      client,
		concurrency: concurrency,
		log:         logger.ComponentLogger("runner"),
	}
	if cfg.Model != "" {
		model := cfg.Model
		r.model = &model
	}
	if cfg.RequestsPerMinute > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60.0), 1)
	}
	return r
}

// Run sends every prompt and returns one completion per prompt, in prompt order.
func (r *Runner) Run(ctx context.Context, req Request) ([]Completion, error) {
	if len(req.Prompts) == 0 {
		return nil, nil
	}

	runID := logger.RunIDFromContext(ctx)
	log := logger.ChildLogger(r.log, logger.FieldsFromContext(ctx)...)
	start := time.Now()

	results := make([]Completion, len(req.Prompts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, p := range req.Prompts {
		g.Go(func() error {
			if r.limiter != nil {
				if err := r.limiter.Wait(gctx); err != nil {
					return errors.Wrap(err, "rate limiter")
				}
			}

			resp, err := r.client.Chat(gctx, llm.ChatRequest{
				SystemPrompt:   req.SystemPrompt,
				UserPrompt:     p,
				Temperature:    req.Temperature,
				MaxTokens:      req.MaxTokens,
				Model:          r.model,
				ResponseFields: req.Fields,
				Operation:      req.Operation,
				RunID:          runID,
			})
			if err != nil {
				return errors.Wrapf(err, "prompt %d", i)
			}

			completion := Completion{Output: resp.Content}
			if len(req.Fields) > 0 {
				fields, err := llm.ParseFields(resp.Content, req.Fields)
				if err != nil {
					return errors.Wrapf(err, "prompt %d", i)
				}
				completion.Fields = fields
			}
			results[i] = completion
			return nil
		})
	}

	// The first failure cancels the batch so nothing partial is returned
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Debugw("Batch completed",
		"operation", req.Operation,
		logger.FieldBatchSize, len(req.Prompts),
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
	)
	return results, nil
}

// RunPrompt renders p once per value set and runs the batch with p's system prompt,
// output fields and sampling overrides.
func (r *Runner) RunPrompt(ctx context.Context, p *prompt.Prompt, values []prompt.Values) ([]Completion, error) {
	return r.RunPromptWithSystem(ctx, p, p.System, values)
}

// RunPromptWithSystem is RunPrompt with system replacing p's system prompt.
// An empty system sends no system prompt.
func (r *Runner) RunPromptWithSystem(ctx context.Context, p *prompt.Prompt, system string, values []prompt.Values) ([]Completion, error) {
	prompts := make([]string, len(values))
	for i, v := range values {
		rendered, err := p.Render(v)
		if err != nil {
			return nil, err
		}
		prompts[i] = rendered
	}

	return r.Run(ctx, Request{
		Operation:    p.Name,
		SystemPrompt: system,
		Prompts:      prompts,
		Fields:       p.Output,
		Temperature:  p.Temperature,
		MaxTokens:    p.MaxTokens,
	})
}
