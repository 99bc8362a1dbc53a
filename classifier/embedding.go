package classifier

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/teranos/shopper/am"
	"github.com/teranos/shopper/errors"
	"github.com/teranos/shopper/logger"
)

// Embedding classifies by cosine similarity between a text's embedding and each
// class's mean example embedding
type Embedding struct {
	embedder Embedder
	topK     int
	log      *zap.SugaredLogger

	order    []string
	examples map[string][]string
	vectors  map[string][]float32
}

// NewEmbedding creates an untrained embedding classifier
func NewEmbedding(embedder Embedder, topK int) *Embedding {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Embedding{
		embedder: embedder,
		topK:     topK,
		log:      logger.ComponentLogger("classifier"),
		examples: make(map[string][]string),
		vectors:  make(map[string][]float32),
	}
}

// AddClass adds examples to a class, creating it on first use
func (e *Embedding) AddClass(name string, examples ...string) {
	if _, ok := e.examples[name]; !ok {
		e.order = append(e.order, name)
	}
	e.examples[name] = append(e.examples[name], examples...)
}

// Classes returns class names in the order they were added
func (e *Embedding) Classes() []string {
	return append([]string(nil), e.order...)
}

// Train embeds every example and stores each class's mean vector
func (e *Embedding) Train(ctx context.Context) error {
	var texts []string
	var owners []string
	for _, name := range e.order {
		examples := e.examples[name]
		if len(examples) == 0 {
			examples = []string{name}
		}
		for _, ex := range examples {
			texts = append(texts, ex)
			owners = append(owners, name)
		}
	}
	if len(texts) == 0 {
		return errors.NewInvalidRequestError("classifier has no classes to train")
	}

	vectors, err := e.embedder.Embed(ctx, texts)
	if err != nil {
		return errors.Wrap(err, "embed training examples")
	}
	if len(vectors) != len(texts) {
		return errors.NewCountMismatchError(len(texts), len(vectors))
	}

	sums := make(map[string][]float32, len(e.order))
	counts := make(map[string]int, len(e.order))
	for i, v := range vectors {
		name := owners[i]
		sum := sums[name]
		if sum == nil {
			sum = make([]float32, len(v))
			sums[name] = sum
		}
		if len(v) != len(sum) {
			return errors.Newf("embedding dimension changed from %d to %d", len(sum), len(v))
		}
		for j := range v {
			sum[j] += v[j]
		}
		counts[name]++
	}
	for name, sum := range sums {
		for j := range sum {
			sum[j] /= float32(counts[name])
		}
		e.vectors[name] = sum
	}

	e.log.Infow("Trained embedding classifier", "classes", len(e.order), "examples", len(texts))
	return nil
}

// Classify ranks classes for each text by cosine similarity
func (e *Embedding) Classify(ctx context.Context, texts []string) ([][]Prediction, error) {
	if len(e.vectors) == 0 {
		return nil, errors.WithHint(
			errors.NewInvalidRequestError("embedding classifier is not trained"),
			"run `shopper classifier train` first",
		)
	}
	if len(texts) == 0 {
		return nil, nil
	}

	queries, err := e.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, errors.Wrap(err, "embed texts")
	}
	if len(queries) != len(texts) {
		return nil, errors.NewCountMismatchError(len(texts), len(queries))
	}

	results := make([][]Prediction, len(texts))
	for i, q := range queries {
		preds := make([]Prediction, 0, len(e.order))
		for _, name := range e.order {
			vec, ok := e.vectors[name]
			if !ok {
				continue
			}
			score, err := CosineSimilarity(q, vec)
			if err != nil {
				return nil, errors.Wrapf(err, "class %q", name)
			}
			preds = append(preds, Prediction{ClassName: name, Score: score})
		}
		results[i] = sortPredictions(preds, e.topK)
	}
	return results, nil
}

type embeddingFile struct {
	Kind    string           `json:"kind"`
	Classes []embeddingClass `json:"classes"`
}

type embeddingClass struct {
	Name   string    `json:"name"`
	Vector []float32 `json:"vector"`
}

const embeddingKind = "embedding"

// Save writes the trained class vectors as JSON
func (e *Embedding) Save(path string) error {
	file := embeddingFile{Kind: embeddingKind}
	for _, name := range e.order {
		if vec, ok := e.vectors[name]; ok {
			file.Classes = append(file.Classes, embeddingClass{Name: name, Vector: vec})
		}
	}
	return writeJSON(path, file)
}

// LoadEmbedding reads a classifier written by Save
func LoadEmbedding(path string, embedder Embedder, topK int) (*Embedding, error) {
	var file embeddingFile
	if err := readJSON(path, embeddingKind, &file); err != nil {
		return nil, err
	}

	e := NewEmbedding(embedder, topK)
	for _, c := range file.Classes {
		e.order = append(e.order, c.Name)
		e.vectors[c.Name] = c.Vector
	}
	return e, nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode classifier")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, am.DefaultDirPermissions); err != nil {
			return errors.Wrapf(err, "create %s", dir)
		}
	}
	if err := os.WriteFile(path, data, am.DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "write classifier %s", path)
	}
	return nil
}

// readJSON checks the file's kind before decoding the rest into v,
// since each kind lays out its classes differently.
func readJSON(path, kind string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.WithHint(
				errors.Wrapf(errors.ErrNotFound, "classifier file %s", path),
				"run `shopper classifier train` to create it",
			)
		}
		return errors.Wrapf(err, "read classifier %s", path)
	}
	var header struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return errors.Wrapf(err, "decode classifier %s", path)
	}
	if header.Kind != kind {
		return errors.NewInvalidRequestError("%s holds a %q classifier, not %q", path, header.Kind, kind)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "decode classifier %s", path)
	}
	return nil
}
