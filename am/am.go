package am

// Config represents the shopper configuration
type Config struct {
	// Provider selects the chat backend: openrouter, anthropic, local, gemini.
	// Empty auto-selects from whichever credentials are present.
	Provider       string               `mapstructure:"provider"`
	OpenRouter     OpenRouterConfig     `mapstructure:"openrouter"`
	Anthropic      AnthropicConfig      `mapstructure:"anthropic"`
	LocalInference LocalInferenceConfig `mapstructure:"local_inference"`
	Gemini         GeminiConfig         `mapstructure:"gemini"`
	Pipeline       PipelineConfig       `mapstructure:"pipeline"`
	Classifier     ClassifierConfig     `mapstructure:"classifier"`
	Training       TrainingConfig       `mapstructure:"training"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Metrics        MetricsConfig        `mapstructure:"metrics"`
	Paths          PathsConfig          `mapstructure:"paths"`
}

// OpenRouterConfig configures OpenRouter.ai API access
type OpenRouterConfig struct {
	APIKey      string   `mapstructure:"api_key"`     // OpenRouter API key
	Model       string   `mapstructure:"model"`       // Default model (e.g., "mistralai/mistral-7b-instruct")
	Temperature *float64 `mapstructure:"temperature"` // Sampling temperature (nil = default 0.2)
	MaxTokens   *int     `mapstructure:"max_tokens"`  // Maximum tokens per request (nil = default 1000)
}

// AnthropicConfig configures direct Anthropic Messages API access
type AnthropicConfig struct {
	APIKey      string   `mapstructure:"api_key"`
	Model       string   `mapstructure:"model"`
	Temperature *float64 `mapstructure:"temperature"`
	MaxTokens   *int     `mapstructure:"max_tokens"`
}

// LocalInferenceConfig configures an OpenAI-compatible local server (Ollama, LocalAI, vLLM)
type LocalInferenceConfig struct {
	Enabled        bool   `mapstructure:"enabled"`         // Prefer local inference over cloud APIs
	BaseURL        string `mapstructure:"base_url"`        // e.g., "http://localhost:11434" for Ollama
	Model          string `mapstructure:"model"`           // e.g., "mistral"
	TimeoutSeconds int    `mapstructure:"timeout_seconds"` // Request timeout in seconds
}

// GeminiConfig configures Google Gemini access for chat and embeddings
type GeminiConfig struct {
	APIKey         string   `mapstructure:"api_key"`
	Model          string   `mapstructure:"model"`           // Chat model (e.g., "gemini-2.5-flash")
	EmbeddingModel string   `mapstructure:"embedding_model"` // Embedding model (e.g., "gemini-embedding-001")
	Temperature    *float64 `mapstructure:"temperature"`
	MaxTokens      *int     `mapstructure:"max_tokens"`
}

// PipelineConfig configures how stages load, batch and send records
type PipelineConfig struct {
	BatchSize             int     `mapstructure:"batch_size"`              // Records per remote batch (default 20)
	Seed                  int64   `mapstructure:"seed"`                    // Catalog shuffle seed (default 42)
	Limit                 int     `mapstructure:"limit"`                   // Records per run (default 100)
	Sentences             int     `mapstructure:"sentences"`               // Sentences kept from each completion (default 3)
	Concurrency           int     `mapstructure:"concurrency"`             // Parallel requests within a batch (default 4)
	RequestsPerMinute     float64 `mapstructure:"requests_per_minute"`     // 0 = unlimited
	RequestTimeoutSeconds int     `mapstructure:"request_timeout_seconds"` // Per-request HTTP timeout
	FailFast              bool    `mapstructure:"fail_fast"`               // Abort on first failed batch instead of reporting it
}

// ClassifierConfig configures product matching
type ClassifierConfig struct {
	Backend   string `mapstructure:"backend"`    // "service" or "embedding"
	URL       string `mapstructure:"url"`        // Classifier service base URL
	APIKey    string `mapstructure:"api_key"`    // Classifier service key
	ModelPath string `mapstructure:"model_path"` // Local file describing the trained classifier
	TopK      int    `mapstructure:"top_k"`      // Predictions kept per text
}

// TrainingConfig configures the remote fine-tuning service
type TrainingConfig struct {
	URL       string `mapstructure:"url"`
	APIKey    string `mapstructure:"api_key"`
	BaseModel string `mapstructure:"base_model"`
}

// DatabaseConfig configures the SQLite usage database
type DatabaseConfig struct {
	Path       string `mapstructure:"path"`
	TrackUsage bool   `mapstructure:"track_usage"`
}

// MetricsConfig configures run metrics export
type MetricsConfig struct {
	// Textfile is a node_exporter textfile collector path; empty disables export.
	Textfile string `mapstructure:"textfile"`
}

// PathsConfig configures where stage inputs and outputs live
type PathsConfig struct {
	DataDir    string `mapstructure:"data_dir"`    // Default directory for catalog and generated JSONL
	PromptsDir string `mapstructure:"prompts_dir"` // Optional directory of prompt overrides
}

// Provider names accepted in the provider key
const (
	ProviderOpenRouter = "openrouter"
	ProviderAnthropic  = "anthropic"
	ProviderLocal      = "local"
	ProviderGemini     = "gemini"
)

// Classifier backends
const (
	ClassifierService   = "service"
	ClassifierEmbedding = "embedding"
)

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)
