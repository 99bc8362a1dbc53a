package prompt

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/teranos/shopper/errors"
)

// Document is a prompt file: YAML frontmatter plus a template body
type Document struct {
	Metadata Metadata
	Body     string
}

// Metadata holds configuration from YAML frontmatter
type Metadata struct {
	// Name is the prompt identifier stages look it up by
	Name string `yaml:"name"`

	// Description explains what the prompt is for
	Description string `yaml:"description"`

	// System is sent as the system prompt alongside every rendered body
	System string `yaml:"system,omitempty"`

	// Sentences is how many sentences of the completion a stage keeps (0 = stage default)
	Sentences int `yaml:"sentences,omitempty"`

	// Output lists string fields the model must return as a JSON object.
	// Empty means a free-text completion.
	Output []string `yaml:"output,omitempty"`

	// Temperature controls randomness (0.0-2.0, provider-dependent)
	Temperature *float64 `yaml:"temperature,omitempty"`

	// MaxTokens limits response length
	MaxTokens *int `yaml:"max_tokens,omitempty"`
}

// ParseDocument extracts YAML frontmatter and body from a prompt document
// Expected format:
//
//	---
//	name: describe
//	system: "You are an expert on grocery products."
//	sentences: 3
//	---
//	Product: {{product_name}}
//
// A document without frontmatter is all body.
func ParseDocument(content string) (*Document, error) {
	trimmed := strings.TrimLeft(content, " \t\r\n")
	if !strings.HasPrefix(trimmed, "---") {
		return &Document{Body: strings.TrimSpace(content)}, nil
	}

	parts := strings.SplitN(trimmed, "---", 3)
	if len(parts) < 3 {
		return nil, errors.New("unterminated frontmatter")
	}

	var metadata Metadata
	if fm := strings.TrimSpace(parts[1]); fm != "" {
		if err := yaml.Unmarshal([]byte(fm), &metadata); err != nil {
			return nil, errors.Wrap(err, "failed to parse frontmatter YAML")
		}
	}

	if err := validateMetadata(&metadata); err != nil {
		return nil, errors.Wrap(err, "invalid frontmatter")
	}

	return &Document{Metadata: metadata, Body: strings.TrimSpace(parts[2])}, nil
}

// validateMetadata checks that optional numeric fields are in range
func validateMetadata(m *Metadata) error {
	if m.Temperature != nil && (*m.Temperature < 0.0 || *m.Temperature > 2.0) {
		return errors.Newf("temperature must be between 0.0 and 2.0, got %f", *m.Temperature)
	}
	if m.MaxTokens != nil && *m.MaxTokens < 1 {
		return errors.Newf("max_tokens must be positive, got %d", *m.MaxTokens)
	}
	if m.Sentences < 0 {
		return errors.Newf("sentences must be >= 0, got %d", m.Sentences)
	}
	seen := map[string]bool{}
	for _, field := range m.Output {
		if field == "" {
			return errors.New("output field names cannot be empty")
		}
		if seen[field] {
			return errors.Newf("duplicate output field %q", field)
		}
		seen[field] = true
	}
	return nil
}
