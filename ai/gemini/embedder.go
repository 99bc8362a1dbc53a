package gemini

import (
	"context"
	"net/http"

	"google.golang.org/genai"

	"github.com/teranos/shopper/errors"
)

// maxEmbedBatch is the Gemini API limit on contents per embed request
const maxEmbedBatch = 100

// Embedder generates embeddings using Google's Gemini API
type Embedder struct {
	client   *genai.Client
	model    string
	taskType string
}

// EmbedderConfig configures an Embedder
type EmbedderConfig struct {
	APIKey string
	Model  string
	// TaskType is a Gemini embedding task such as SEMANTIC_SIMILARITY or CLASSIFICATION
	TaskType   string
	BaseURL    string
	HTTPClient *http.Client
}

// NewEmbedder creates a Gemini embedder
func NewEmbedder(ctx context.Context, cfg EmbedderConfig) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.WithHint(
			errors.Wrap(errors.ErrUnauthorized, "Gemini API key is required for embeddings"),
			"set SHOPPER_GEMINI_API_KEY or gemini.api_key",
		)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultEmbeddingModel
	}
	if cfg.TaskType == "" {
		cfg.TaskType = "SEMANTIC_SIMILARITY"
	}

	client, err := newGenAI(ctx, cfg.APIKey, cfg.BaseURL, cfg.HTTPClient)
	if err != nil {
		return nil, err
	}
	return &Embedder{client: client, model: cfg.Model, taskType: cfg.TaskType}, nil
}

// Embed returns one vector per text, in order
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxEmbedBatch {
		end := min(start+maxEmbedBatch, len(texts))

		contents := make([]*genai.Content, 0, end-start)
		for _, text := range texts[start:end] {
			contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
		}

		result, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
			TaskType: e.taskType,
		})
		if err != nil {
			return nil, errors.Wrap(classify(err), "Gemini embed failed")
		}
		if len(result.Embeddings) != len(contents) {
			return nil, errors.NewCountMismatchError(len(contents), len(result.Embeddings))
		}
		for _, emb := range result.Embeddings {
			vectors = append(vectors, emb.Values)
		}
	}
	return vectors, nil
}

// Name returns the engine name
func (e *Embedder) Name() string {
	return "genai:" + e.model
}
