package am

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func TestLoad_Defaults(t *testing.T) {
	// Isolated viper instance without user/system config
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	if err != nil {
		t.Fatalf("LoadWithViper() failed: %v", err)
	}

	if cfg.Pipeline.BatchSize != 20 {
		t.Errorf("expected default batch size 20, got %d", cfg.Pipeline.BatchSize)
	}
	if cfg.Pipeline.Seed != 42 {
		t.Errorf("expected default seed 42, got %d", cfg.Pipeline.Seed)
	}
	if cfg.Pipeline.Limit != 100 {
		t.Errorf("expected default limit 100, got %d", cfg.Pipeline.Limit)
	}
	if cfg.Pipeline.Sentences != 3 {
		t.Errorf("expected default sentences 3, got %d", cfg.Pipeline.Sentences)
	}
	if cfg.LocalInference.BaseURL != "http://localhost:11434" {
		t.Errorf("expected default local inference URL, got %q", cfg.LocalInference.BaseURL)
	}
	if cfg.OpenRouter.Temperature == nil || *cfg.OpenRouter.Temperature != 0.2 {
		t.Errorf("expected default openrouter temperature 0.2, got %v", cfg.OpenRouter.Temperature)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		v := viper.New()
		SetDefaults(v)
		cfg, err := LoadWithViper(v)
		if err != nil {
			t.Fatalf("LoadWithViper() failed: %v", err)
		}
		return *cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "zero limit is valid (unlimited)",
			mutate: func(c *Config) { c.Pipeline.Limit = 0 },
		},
		{
			name:    "negative limit is invalid",
			mutate:  func(c *Config) { c.Pipeline.Limit = -1 },
			wantErr: "pipeline.limit",
		},
		{
			name:    "zero batch size is invalid",
			mutate:  func(c *Config) { c.Pipeline.BatchSize = 0 },
			wantErr: "pipeline.batch_size",
		},
		{
			name:   "zero rate limit is valid (unlimited)",
			mutate: func(c *Config) { c.Pipeline.RequestsPerMinute = 0 },
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Provider = "lamini" },
			wantErr: "provider must be one of",
		},
		{
			name:    "service classifier needs url",
			mutate:  func(c *Config) { c.Classifier.Backend = ClassifierService },
			wantErr: "classifier.url",
		},
		{
			name: "local provider needs a model",
			mutate: func(c *Config) {
				c.Provider = ProviderLocal
				c.LocalInference.Model = ""
			},
			wantErr: "local_inference.model",
		},
		{
			name: "temperature out of range",
			mutate: func(c *Config) {
				temp := 2.5
				c.Gemini.Temperature = &temp
			},
			wantErr: "gemini.temperature",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Config{Classifier: ClassifierConfig{Backend: ClassifierEmbedding}}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors for zero config")
	}
	for _, key := range []string{"pipeline.batch_size", "pipeline.sentences", "pipeline.concurrency"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("expected error to mention %s, got %v", key, err)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shopper.toml")
	content := `
provider = "gemini"

[pipeline]
batch_size = 5
limit = 10

[paths]
data_dir = "/srv/shopper"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() failed: %v", err)
	}

	if cfg.Provider != ProviderGemini {
		t.Errorf("expected provider gemini, got %q", cfg.Provider)
	}
	if cfg.Pipeline.BatchSize != 5 {
		t.Errorf("expected batch size 5, got %d", cfg.Pipeline.BatchSize)
	}
	// Untouched keys keep their defaults
	if cfg.Pipeline.Seed != 42 {
		t.Errorf("expected default seed 42, got %d", cfg.Pipeline.Seed)
	}
	if got := cfg.DataPath("products.jsonl"); got != "/srv/shopper/products.jsonl" {
		t.Errorf("DataPath() = %q", got)
	}
	if got := cfg.DataPath("/tmp/out.jsonl"); got != "/tmp/out.jsonl" {
		t.Errorf("DataPath() should keep absolute paths, got %q", got)
	}
}

func TestMergeConfigFiles_LaterFilesWin(t *testing.T) {
	dir := t.TempDir()
	user := filepath.Join(dir, "user.toml")
	project := filepath.Join(dir, "project.toml")

	os.WriteFile(user, []byte("[pipeline]\nbatch_size = 7\nlimit = 70\n"), 0644)
	os.WriteFile(project, []byte("[pipeline]\nlimit = 3\n"), 0644)

	v := viper.New()
	SetDefaults(v)
	if err := mergeConfigFiles(v, []string{filepath.Join(dir, "missing.toml"), user, project}); err != nil {
		t.Fatalf("mergeConfigFiles() failed: %v", err)
	}

	cfg, err := LoadWithViper(v)
	if err != nil {
		t.Fatalf("LoadWithViper() failed: %v", err)
	}
	if cfg.Pipeline.BatchSize != 7 {
		t.Errorf("expected batch size from user file, got %d", cfg.Pipeline.BatchSize)
	}
	if cfg.Pipeline.Limit != 3 {
		t.Errorf("expected limit from project file, got %d", cfg.Pipeline.Limit)
	}
}

func TestMergeConfigFiles_MissingExplicitFile(t *testing.T) {
	defer Reset()

	missing := filepath.Join(t.TempDir(), "nope.toml")
	SetConfigFile(missing)

	v := viper.New()
	if err := mergeConfigFiles(v, []string{missing}); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}
