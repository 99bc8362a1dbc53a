package am

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"
)

// Pipeline defaults
const (
	DefaultBatchSize = 20
	DefaultSeed      = 42
	DefaultLimit     = 100
	DefaultSentences = 3
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// OpenRouter defaults
	v.SetDefault("openrouter.model", "mistralai/mistral-7b-instruct")
	v.SetDefault("openrouter.temperature", 0.2)
	v.SetDefault("openrouter.max_tokens", 1000)

	// Anthropic defaults
	v.SetDefault("anthropic.model", "claude-3-5-haiku-latest")
	v.SetDefault("anthropic.max_tokens", 1000)

	// Local Inference (Ollama) defaults
	v.SetDefault("local_inference.enabled", false)
	v.SetDefault("local_inference.base_url", "http://localhost:11434")
	v.SetDefault("local_inference.model", "mistral")
	v.SetDefault("local_inference.timeout_seconds", 300)

	// Gemini defaults
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("gemini.embedding_model", "gemini-embedding-001")

	// Pipeline defaults
	v.SetDefault("pipeline.batch_size", DefaultBatchSize)
	v.SetDefault("pipeline.seed", DefaultSeed)
	v.SetDefault("pipeline.limit", DefaultLimit)
	v.SetDefault("pipeline.sentences", DefaultSentences)
	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("pipeline.requests_per_minute", 0)
	v.SetDefault("pipeline.request_timeout_seconds", 120)
	v.SetDefault("pipeline.fail_fast", false)

	// Classifier defaults
	v.SetDefault("classifier.backend", ClassifierEmbedding)
	v.SetDefault("classifier.model_path", "models/classifier.json")
	v.SetDefault("classifier.top_k", 3)

	// Training defaults
	v.SetDefault("training.base_model", "mistralai/Mistral-7B-Instruct-v0.1")

	// Database defaults
	v.SetDefault("database.path", "shopper.db")
	v.SetDefault("database.track_usage", true)

	// Paths defaults
	v.SetDefault("paths.data_dir", "data")
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("openrouter.api_key", "SHOPPER_OPENROUTER_API_KEY", "OPENROUTER_API_KEY")
	v.BindEnv("anthropic.api_key", "SHOPPER_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	v.BindEnv("gemini.api_key", "SHOPPER_GEMINI_API_KEY", "GEMINI_API_KEY")
	v.BindEnv("classifier.api_key", "SHOPPER_CLASSIFIER_API_KEY")
	v.BindEnv("training.api_key", "SHOPPER_TRAINING_API_KEY")
}

// DataPath joins name onto the configured data directory.
// Absolute names are returned unchanged.
func (c *Config) DataPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	dir := c.Paths.DataDir
	if dir == "" {
		dir = "data"
	}
	return filepath.Join(dir, name)
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "shopper.db"
	}
	return c.Database.Path
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Provider: %q, Pipeline: {BatchSize: %d, Seed: %d, Limit: %d}, Classifier: %s}",
		c.Provider, c.Pipeline.BatchSize, c.Pipeline.Seed, c.Pipeline.Limit, c.Classifier.Backend)
}
