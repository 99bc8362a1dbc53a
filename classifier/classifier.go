// Package classifier maps free text to catalog product names.
//
// Two backends share the Classifier interface: a remote classifier service and an
// embedding classifier that ranks classes by cosine similarity to a mean example vector.
package classifier

import (
	"context"
	"math"
	"sort"

	"github.com/teranos/shopper/errors"
)

// DefaultTopK is how many predictions are kept per text
const DefaultTopK = 3

// Prediction is one candidate class for a text
type Prediction struct {
	ClassName string  `json:"class_name"`
	Score     float64 `json:"score"`
}

// Classifier predicts classes for texts.
// The result holds one slice per text, sorted by descending score.
type Classifier interface {
	Classify(ctx context.Context, texts []string) ([][]Prediction, error)
}

// Trainable is a classifier that learns from labelled examples and can be persisted
type Trainable interface {
	Classifier
	AddClass(name string, examples ...string)
	Train(ctx context.Context) error
	Save(path string) error
}

// Embedder turns texts into vectors, one per text in order
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Best returns the top prediction of each result
func Best(results [][]Prediction) ([]Prediction, error) {
	best := make([]Prediction, len(results))
	for i, preds := range results {
		if len(preds) == 0 {
			return nil, errors.Wrapf(errors.ErrMalformedResponse, "no prediction for text %d", i)
		}
		best[i] = preds[0]
	}
	return best, nil
}

func sortPredictions(preds []Prediction, topK int) []Prediction {
	sort.SliceStable(preds, func(i, j int) bool {
		return preds[i].Score > preds[j].Score
	})
	if topK > 0 && len(preds) > topK {
		preds = preds[:topK]
	}
	return preds
}

// CosineSimilarity returns a value between -1 and 1; zero vectors score 0
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, errors.Newf("vectors must have the same length: %d != %d", len(a), len(b))
	}

	var dot, aMag, bMag float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		aMag += float64(a[i]) * float64(a[i])
		bMag += float64(b[i]) * float64(b[i])
	}
	if aMag == 0 || bMag == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(aMag) * math.Sqrt(bMag)), nil
}
