package openrouter

// ModelPricing contains per-token pricing information for OpenRouter models
// Prices are in USD per million tokens
type ModelPricing struct {
	PromptPrice     float64 // USD per 1M prompt tokens
	CompletionPrice float64 // USD per 1M completion tokens
}

// modelPricing covers the instruction models the pipeline is usually run against.
// TODO: pull live prices from the OpenRouter /models endpoint when the table is stale.
var modelPricing = map[string]ModelPricing{
	// Mistral models (default generation model)
	"mistralai/mistral-7b-instruct": {
		PromptPrice:     0.028,
		CompletionPrice: 0.054,
	},
	"mistralai/mixtral-8x7b-instruct": {
		PromptPrice:     0.54,
		CompletionPrice: 0.54,
	},
	"mistralai/mistral-small": {
		PromptPrice:     0.20,
		CompletionPrice: 0.60,
	},

	// OpenAI models via OpenRouter
	"openai/gpt-4o": {
		PromptPrice:     2.50,
		CompletionPrice: 10.00,
	},
	"openai/gpt-4o-mini": {
		PromptPrice:     0.15,
		CompletionPrice: 0.60,
	},
	"openai/gpt-3.5-turbo": {
		PromptPrice:     0.50,
		CompletionPrice: 1.50,
	},

	// Anthropic models via OpenRouter
	"anthropic/claude-3.5-sonnet": {
		PromptPrice:     3.00,
		CompletionPrice: 15.00,
	},
	"anthropic/claude-3-haiku": {
		PromptPrice:     0.25,
		CompletionPrice: 1.25,
	},

	// Google models via OpenRouter
	"google/gemini-flash-1.5": {
		PromptPrice:     0.075,
		CompletionPrice: 0.30,
	},

	// Meta models via OpenRouter
	"meta-llama/llama-3.1-70b-instruct": {
		PromptPrice:     0.52,
		CompletionPrice: 0.75,
	},
	"meta-llama/llama-3.1-8b-instruct": {
		PromptPrice:     0.055,
		CompletionPrice: 0.055,
	},
}

// DefaultPricingFallback is the cost charged per request when model pricing is unknown.
// One cent per request overestimates most small models.
const DefaultPricingFallback = 0.01

// CalculateCost computes the cost of an API call based on token usage
// Returns cost in USD
func CalculateCost(model string, promptTokens, completionTokens int) float64 {
	pricing, found := modelPricing[model]
	if !found {
		return DefaultPricingFallback
	}

	promptCost := (float64(promptTokens) / 1_000_000.0) * pricing.PromptPrice
	completionCost := (float64(completionTokens) / 1_000_000.0) * pricing.CompletionPrice

	return promptCost + completionCost
}

// GetPricing returns pricing information for a model, if available
func GetPricing(model string) (ModelPricing, bool) {
	pricing, found := modelPricing[model]
	return pricing, found
}
