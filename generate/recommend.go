package generate

import (
	"context"

	"github.com/teranos/shopper/catalog"
	"github.com/teranos/shopper/classifier"
	"github.com/teranos/shopper/errors"
	"github.com/teranos/shopper/logger"
	"github.com/teranos/shopper/pipeline"
	"github.com/teranos/shopper/prompt"
)

// sample is the set of described products drawn for one recommend step
type sample struct {
	seed     int64
	products []DescribedProduct
}

// suggestion is a generic product the model recommended for a catalog product
type suggestion struct {
	product DescribedProduct
	simple  string
}

// Samples draws the recommend inputs: one sample of batchSize products per step
// i = 0, batchSize, 2*batchSize, ... below limit, seeded with i.
func Samples(products []DescribedProduct, batchSize, limit int) [][]DescribedProduct {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	var out [][]DescribedProduct
	for i := 0; i < limit; i += batchSize {
		out = append(out, catalog.Sample(products, batchSize, int64(i)))
	}
	return out
}

// Recommend asks for three generic products to pair with each sampled described product,
// describes each suggestion, and classifies the description back to a catalog product.
// It writes up to opts.Limit Recommendations.
func (g *Generator) Recommend(ctx context.Context, products []DescribedProduct, opts Output) (pipeline.Summary, error) {
	if g.Classifier == nil {
		return pipeline.Summary{}, errors.WithHint(
			errors.NewInvalidRequestError("recommend needs a product classifier"),
			"run `shopper classifier train` first",
		)
	}
	recommend, err := g.prompt(prompt.Recommend)
	if err != nil {
		return pipeline.Summary{}, err
	}
	expand, err := g.prompt(prompt.Expand)
	if err != nil {
		return pipeline.Summary{}, err
	}
	if len(recommend.Output) == 0 {
		return pipeline.Summary{}, errors.NewInvalidRequestError("prompt %s must declare output fields", recommend.Name)
	}

	byName := make(map[string]DescribedProduct, len(products))
	for _, p := range products {
		byName[p.Name()] = p
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	opts.Limit = limit

	var samples []sample
	for i, s := range Samples(products, g.batchSize(), limit) {
		samples = append(samples, sample{seed: int64(i * g.batchSize()), products: s})
	}

	// Each sample is its own batch so a failure drops one sample
	stage := &pipeline.Stage[sample, Recommendation]{
		Name:      "recommend",
		BatchSize: 1,
		RecordIDs: func(s sample) []string {
			ids := make([]string, len(s.products))
			for i, p := range s.products {
				ids[i] = p.ID()
			}
			return ids
		},
		Process: func(ctx context.Context, batch []sample) ([]Recommendation, error) {
			var out []Recommendation
			for _, s := range batch {
				recs, err := g.recommendSample(ctx, s, recommend, expand, byName)
				if err != nil {
					return nil, errors.Wrapf(err, "sample seed %d", s.seed)
				}
				out = append(out, recs...)
			}
			return out, nil
		},
	}

	return run(ctx, g, opts, stage, samples)
}

func (g *Generator) recommendSample(ctx context.Context, s sample, recommend, expand *prompt.Prompt, byName map[string]DescribedProduct) ([]Recommendation, error) {
	log := logger.LoggerFromContext(ctx)

	values := make([]prompt.Values, len(s.products))
	for i, p := range s.products {
		values[i] = p.Product
	}
	answers, err := g.Runner.RunPrompt(ctx, recommend, values)
	if err != nil {
		return nil, errors.Wrap(err, "recommend")
	}

	var suggestions []suggestion
	for i, a := range answers {
		for _, field := range recommend.Output {
			simple := pipeline.Simplify(a.Fields[field])
			log.Debugw("Recommended product", "for", s.products[i].Name(), "recommended", simple)
			suggestions = append(suggestions, suggestion{product: s.products[i], simple: simple})
		}
	}

	expandValues := make([]prompt.Values, len(suggestions))
	for i, sg := range suggestions {
		expandValues[i] = prompt.Merge{prompt.Vars{"recommended_product": sg.simple}, sg.product.Product}
	}
	expanded, err := g.Runner.RunPrompt(ctx, expand, expandValues)
	if err != nil {
		return nil, errors.Wrap(err, "expand")
	}

	keep := g.sentences(expand)
	descriptions := make([]string, len(expanded))
	for i, e := range expanded {
		descriptions[i] = pipeline.TruncateSentences(e.Output, keep)
	}

	matches, err := g.classify(ctx, descriptions)
	if err != nil {
		return nil, err
	}

	out := make([]Recommendation, len(suggestions))
	for i, sg := range suggestions {
		matched, ok := byName[matches[i].ClassName]
		if !ok {
			return nil, errors.Wrapf(errors.ErrNotFound, "classifier class %q is not a described product", matches[i].ClassName)
		}
		log.Debugw("Classified recommendation",
			"for", sg.product.Name(),
			"recommended", sg.simple,
			"match", matched.Name(),
			"match_id", matched.ID(),
			"score", matches[i].Score,
		)
		out[i] = Recommendation{
			Product: sg.product,
			RecommendedProduct: RecommendedProduct{
				RealProductID: sg.simple,
				ProductName:   matched,
			},
		}
	}
	return out, nil
}

func (g *Generator) classify(ctx context.Context, texts []string) ([]classifier.Prediction, error) {
	results, err := g.Classifier.Classify(ctx, texts)
	if err != nil {
		return nil, errors.Wrap(err, "classify")
	}
	if len(results) != len(texts) {
		return nil, errors.NewCountMismatchError(len(texts), len(results))
	}
	return classifier.Best(results)
}
