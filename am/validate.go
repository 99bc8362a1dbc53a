package am

import "github.com/teranos/shopper/errors"

// Validate checks that the configuration is valid.
// Every problem is reported, not just the first one.
func (c *Config) Validate() error {
	var errs []error

	switch c.Provider {
	case "", ProviderOpenRouter, ProviderAnthropic, ProviderLocal, ProviderGemini:
	default:
		errs = append(errs, errors.Newf("provider must be one of openrouter, anthropic, local, gemini; got %q", c.Provider))
	}

	if c.Pipeline.BatchSize <= 0 {
		errs = append(errs, errors.Newf("pipeline.batch_size must be > 0, got %d", c.Pipeline.BatchSize))
	}
	// Limit: 0 = no limit, negative = invalid
	if c.Pipeline.Limit < 0 {
		errs = append(errs, errors.Newf("pipeline.limit must be >= 0, got %d", c.Pipeline.Limit))
	}
	if c.Pipeline.Sentences <= 0 {
		errs = append(errs, errors.Newf("pipeline.sentences must be > 0, got %d", c.Pipeline.Sentences))
	}
	if c.Pipeline.Concurrency <= 0 {
		errs = append(errs, errors.Newf("pipeline.concurrency must be > 0, got %d", c.Pipeline.Concurrency))
	}
	// Requests per minute: 0 = unlimited, negative = invalid
	if c.Pipeline.RequestsPerMinute < 0 {
		errs = append(errs, errors.Newf("pipeline.requests_per_minute must be >= 0, got %f", c.Pipeline.RequestsPerMinute))
	}
	if c.Pipeline.RequestTimeoutSeconds < 0 {
		errs = append(errs, errors.Newf("pipeline.request_timeout_seconds must be >= 0, got %d", c.Pipeline.RequestTimeoutSeconds))
	}

	if c.LocalInference.Enabled || c.Provider == ProviderLocal {
		if c.LocalInference.BaseURL == "" {
			errs = append(errs, errors.New("local_inference.base_url cannot be empty when enabled"))
		}
		if c.LocalInference.Model == "" {
			errs = append(errs, errors.New("local_inference.model cannot be empty when enabled"))
		}
		if c.LocalInference.TimeoutSeconds <= 0 {
			errs = append(errs, errors.Newf("local_inference.timeout_seconds must be > 0, got %d", c.LocalInference.TimeoutSeconds))
		}
	}

	for name, temp := range map[string]*float64{
		"openrouter.temperature": c.OpenRouter.Temperature,
		"anthropic.temperature":  c.Anthropic.Temperature,
		"gemini.temperature":     c.Gemini.Temperature,
	} {
		if temp != nil && (*temp < 0 || *temp > 2) {
			errs = append(errs, errors.Newf("%s must be between 0.0 and 2.0, got %f", name, *temp))
		}
	}

	switch c.Classifier.Backend {
	case ClassifierEmbedding:
	case ClassifierService:
		if c.Classifier.URL == "" {
			errs = append(errs, errors.WithHint(
				errors.New("classifier.url cannot be empty for the service backend"),
				"set classifier.url or switch classifier.backend to embedding",
			))
		}
	default:
		errs = append(errs, errors.Newf("classifier.backend must be service or embedding, got %q", c.Classifier.Backend))
	}
	if c.Classifier.TopK < 0 {
		errs = append(errs, errors.Newf("classifier.top_k must be >= 0, got %d", c.Classifier.TopK))
	}

	return errors.Join(errs...)
}
