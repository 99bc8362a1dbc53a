package generate

import (
	"context"
	"fmt"
	"strings"

	"github.com/teranos/shopper/pipeline"
	"github.com/teranos/shopper/prompt"
)

// recommendationsPerPrompt caps how many recommendations a formatted explanation names
const recommendationsPerPrompt = 2

// GroupRecommendations collects recommendations by product id, in first-seen order
func GroupRecommendations(recs []Recommendation) []ProductRecommendations {
	index := make(map[string]int)
	var groups []ProductRecommendations
	for _, r := range recs {
		id := r.Product.ID()
		i, ok := index[id]
		if !ok {
			i = len(groups)
			index[id] = i
			groups = append(groups, ProductRecommendations{Product: r.Product.Product})
		}
		groups[i].Recommendations = append(groups[i].Recommendations, r.RecommendedProduct)
	}
	return groups
}

// recommendationList renders the numbered list the format prompt cites
func recommendationList(recs []RecommendedProduct) string {
	var b strings.Builder
	for i, r := range recs {
		if i == recommendationsPerPrompt {
			break
		}
		fmt.Fprintf(&b, "%d. %s (product id: %s), ", i+1, pipeline.Simplify(r.RealProductID), r.ProductName.ID())
	}
	return b.String()
}

// Format writes a customer-facing explanation for each product's recommendations
func (g *Generator) Format(ctx context.Context, recs []Recommendation, opts Output) (pipeline.Summary, error) {
	p, err := g.prompt(prompt.Format)
	if err != nil {
		return pipeline.Summary{}, err
	}
	keep := g.sentences(p)

	stage := &pipeline.Stage[ProductRecommendations, FormattedRecommendation]{
		Name:     "format",
		OneToOne: true,
		RecordID: func(pr ProductRecommendations) string { return pr.Product.ID() },
		Process: func(ctx context.Context, batch []ProductRecommendations) ([]FormattedRecommendation, error) {
			values := make([]prompt.Values, len(batch))
			for i, pr := range batch {
				values[i] = prompt.Merge{
					prompt.Vars{"recommendations": recommendationList(pr.Recommendations)},
					pr.Product,
				}
			}
			completions, err := g.Runner.RunPrompt(ctx, p, values)
			if err != nil {
				return nil, err
			}

			out := make([]FormattedRecommendation, len(completions))
			for i, c := range completions {
				out[i] = FormattedRecommendation{
					Product:        batch[i],
					Recommendation: pipeline.TruncateSentences(c.Output, keep),
				}
			}
			return out, nil
		},
	}
	return run(ctx, g, opts, stage, GroupRecommendations(recs))
}
