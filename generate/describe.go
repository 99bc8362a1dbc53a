package generate

import (
	"context"

	"github.com/teranos/shopper/catalog"
	"github.com/teranos/shopper/pipeline"
	"github.com/teranos/shopper/prompt"
)

// DescribeOptions selects the description prompt
type DescribeOptions struct {
	Output
	// Long asks for 3 to 5 sentences instead of 3
	Long bool
}

// Describe writes one DescribedProduct per catalog record.
// The caller shuffles and limits products; Describe keeps their order so a resumed
// run fast-forwards past exactly the records the previous run wrote.
func (g *Generator) Describe(ctx context.Context, products []catalog.Record, opts DescribeOptions) (pipeline.Summary, error) {
	name := prompt.Describe
	if opts.Long {
		name = prompt.DescribeLong
	}
	p, err := g.prompt(name)
	if err != nil {
		return pipeline.Summary{}, err
	}
	keep := g.sentences(p)

	stage := &pipeline.Stage[catalog.Record, DescribedProduct]{
		Name:     "describe",
		OneToOne: true,
		RecordID: catalog.Record.ID,
		Process: func(ctx context.Context, batch []catalog.Record) ([]DescribedProduct, error) {
			values := make([]prompt.Values, len(batch))
			for i, r := range batch {
				values[i] = r
			}
			completions, err := g.Runner.RunPrompt(ctx, p, values)
			if err != nil {
				return nil, err
			}

			out := make([]DescribedProduct, len(completions))
			for i, c := range completions {
				out[i] = DescribedProduct{
					Product:      batch[i],
					Descriptions: pipeline.TruncateSentences(c.Output, keep),
				}
			}
			return out, nil
		},
	}
	return run(ctx, g, opts.Output, stage, products)
}
