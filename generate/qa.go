package generate

import (
	"context"
	"strings"

	"github.com/teranos/shopper/catalog"
	"github.com/teranos/shopper/errors"
	"github.com/teranos/shopper/pipeline"
	"github.com/teranos/shopper/prompt"
)

// DefaultQALimit is how many catalog products qa draws from
const DefaultQALimit = 3

// QA writes question/answer pairs. For each product it asks for three pairing products,
// classifies them to catalog products, describes each match as the answer, and asks for
// the customer question that would have led to that answer.
func (g *Generator) QA(ctx context.Context, products []catalog.Record, opts Output) (pipeline.Summary, error) {
	if g.Classifier == nil {
		return pipeline.Summary{}, errors.NewInvalidRequestError("qa needs a product classifier")
	}
	recommend, err := g.prompt(prompt.Recommend)
	if err != nil {
		return pipeline.Summary{}, err
	}
	expand, err := g.prompt(prompt.Expand)
	if err != nil {
		return pipeline.Summary{}, err
	}
	question, err := g.prompt(prompt.Question)
	if err != nil {
		return pipeline.Summary{}, err
	}

	byName := make(map[string]catalog.Record, len(products))
	for _, p := range products {
		byName[p.Name()] = p
	}

	stage := &pipeline.Stage[catalog.Record, QAPair]{
		Name:     "qa",
		RecordID: catalog.Record.ID,
		Process: func(ctx context.Context, batch []catalog.Record) ([]QAPair, error) {
			values := make([]prompt.Values, len(batch))
			for i, r := range batch {
				values[i] = r
			}
			answers, err := g.Runner.RunPrompt(ctx, recommend, values)
			if err != nil {
				return nil, errors.Wrap(err, "recommend")
			}

			var texts []string
			var owners []catalog.Record
			for i, a := range answers {
				for _, field := range recommend.Output {
					texts = append(texts, a.Fields[field])
					owners = append(owners, batch[i])
				}
			}
			matches, err := g.classify(ctx, texts)
			if err != nil {
				return nil, err
			}

			answerValues := make([]prompt.Values, len(matches))
			for i, m := range matches {
				matched, ok := byName[m.ClassName]
				if !ok {
					return nil, errors.Wrapf(errors.ErrNotFound, "classifier class %q is not a catalog product", m.ClassName)
				}
				answerValues[i] = prompt.Merge{prompt.Vars{"recommended_product": matched.Name()}, owners[i]}
			}
			described, err := g.Runner.RunPrompt(ctx, expand, answerValues)
			if err != nil {
				return nil, errors.Wrap(err, "answers")
			}

			questionValues := make([]prompt.Values, len(described))
			for i, d := range described {
				questionValues[i] = prompt.Vars{"answer": strings.TrimSpace(d.Output)}
			}
			asked, err := g.Runner.RunPrompt(ctx, question, questionValues)
			if err != nil {
				return nil, errors.Wrap(err, "questions")
			}

			keep := g.sentences(question)
			out := make([]QAPair, len(asked))
			for i := range asked {
				out[i] = QAPair{
					Question: pipeline.TruncateSentences(asked[i].Output, keep),
					Answer:   strings.TrimSpace(described[i].Output),
				}
			}
			return out, nil
		},
	}
	return run(ctx, g, opts, stage, products)
}

// QAProducts turns catalog records into classifier training input with no descriptions
func QAProducts(records []catalog.Record) []DescribedProduct {
	out := make([]DescribedProduct, len(records))
	for i, r := range records {
		out[i] = DescribedProduct{Product: r}
	}
	return out
}
