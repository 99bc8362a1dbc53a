package provider

import (
	"strings"

	"github.com/teranos/shopper/am"
	"github.com/teranos/shopper/errors"
)

// Provider represents an LLM provider type
type Provider string

const (
	// ProviderLocal uses local inference (Ollama, LocalAI, vLLM)
	ProviderLocal Provider = am.ProviderLocal
	// ProviderOpenRouter uses the OpenRouter.ai API
	ProviderOpenRouter Provider = am.ProviderOpenRouter
	// ProviderAnthropic uses the Anthropic Messages API
	ProviderAnthropic Provider = am.ProviderAnthropic
	// ProviderGemini uses Google Gemini through genai
	ProviderGemini Provider = am.ProviderGemini
	// ProviderAuto selects from whichever credentials are present
	ProviderAuto Provider = "auto"
)

// priority is the auto-selection order
var priority = []Provider{ProviderLocal, ProviderAnthropic, ProviderGemini, ProviderOpenRouter}

// ParseProvider converts a string to a Provider
func ParseProvider(s string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local", "ollama", "localai":
		return ProviderLocal, nil
	case "openrouter", "or":
		return ProviderOpenRouter, nil
	case "anthropic", "claude":
		return ProviderAnthropic, nil
	case "gemini", "google":
		return ProviderGemini, nil
	case "auto", "":
		return ProviderAuto, nil
	default:
		return "", errors.NewInvalidRequestError("unknown provider: %s (valid: local, openrouter, anthropic, gemini, auto)", s)
	}
}

// Available returns the providers the configuration can reach, in auto-selection order
func Available(cfg *am.Config) []Provider {
	var providers []Provider
	for _, p := range priority {
		if configured(cfg, p) {
			providers = append(providers, p)
		}
	}
	return providers
}

// Determine resolves the provider to use.
// An explicit choice wins, then cfg.Provider, then the first configured provider.
// OpenRouter is the fallback when nothing is configured so the missing key is reported by name.
func Determine(cfg *am.Config, explicit string) (Provider, error) {
	for _, choice := range []string{explicit, cfg.Provider} {
		p, err := ParseProvider(choice)
		if err != nil {
			return "", err
		}
		if p != ProviderAuto {
			return p, nil
		}
	}
	if available := Available(cfg); len(available) > 0 {
		return available[0], nil
	}
	return ProviderOpenRouter, nil
}

func configured(cfg *am.Config, p Provider) bool {
	switch p {
	case ProviderLocal:
		return cfg.LocalInference.Enabled && cfg.LocalInference.BaseURL != ""
	case ProviderAnthropic:
		return cfg.Anthropic.APIKey != ""
	case ProviderGemini:
		return cfg.Gemini.APIKey != ""
	case ProviderOpenRouter:
		return cfg.OpenRouter.APIKey != ""
	}
	return false
}
