// Package tune builds fine-tuning datasets from stage output and submits them to the
// remote training service.
package tune

import (
	"bufio"
	"io"
	"math/rand"
	"strings"

	"github.com/teranos/shopper/errors"
	"github.com/teranos/shopper/generate"
	"github.com/teranos/shopper/pipeline"
	"github.com/teranos/shopper/prompt"
)

// Example is one fine-tuning example
type Example struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// Dataset kinds accepted by Build
const (
	KindRecommendations = "recommendations"
	KindDescriptions    = "descriptions"
	KindRaw             = "raw"
)

// Kinds lists every dataset kind
var Kinds = []string{KindRecommendations, KindDescriptions, KindRaw}

// Recommendations pairs "What would go well with <product>?" with each formatted
// recommendation, stopping after limit examples (0 = no limit).
func Recommendations(lib *prompt.Library, recs []generate.FormattedRecommendation, limit int) ([]Example, error) {
	user, err := lib.Get(prompt.TuneUser)
	if err != nil {
		return nil, err
	}

	var out []Example
	for _, r := range recs {
		if limit > 0 && len(out) >= limit {
			break
		}
		input, err := user.Render(r.Product.Product)
		if err != nil {
			return nil, errors.Wrapf(err, "product %s", r.Product.Product.ID())
		}
		out = append(out, Example{Input: input, Output: r.Recommendation})
	}
	return out, nil
}

// Descriptions renders a product knowledge passage per described product and splits it
// at a random character into input and output, so the model learns to continue it.
// The split points come from a generator seeded with seed.
func Descriptions(lib *prompt.Library, products []generate.DescribedProduct, seed int64, limit int) ([]Example, error) {
	passage, err := lib.Get(prompt.TuneDescribe)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(seed))
	var out []Example
	for _, p := range products {
		if limit > 0 && len(out) >= limit {
			break
		}
		text, err := passage.Render(prompt.Merge{prompt.Vars{"description": p.Descriptions}, p.Product})
		if err != nil {
			return nil, errors.Wrapf(err, "product %s", p.ID())
		}
		runes := []rune(text)
		if len(runes) == 0 {
			continue
		}
		split := rng.Intn(len(runes))
		out = append(out, Example{Input: string(runes[:split]), Output: string(runes[split:])})
	}
	return out, nil
}

// Raw turns each line of a catalog file into an example with an empty input,
// stopping after limit examples (0 = no limit). Header lines are kept.
func Raw(r io.Reader, limit int) ([]Example, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var out []Example
	for scanner.Scan() {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, Example{Input: "", Output: strings.TrimSpace(scanner.Text())})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read raw catalog")
	}
	return out, nil
}

// Write replaces path with one JSON example per line
func Write(path string, examples []Example) error {
	sink, err := pipeline.OpenSink(path, false)
	if err != nil {
		return err
	}
	for _, ex := range examples {
		if _, err := sink.Write(ex); err != nil {
			sink.Close()
			return err
		}
	}
	return sink.Close()
}
