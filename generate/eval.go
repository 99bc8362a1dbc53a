package generate

import (
	"context"

	"github.com/teranos/shopper/errors"
	"github.com/teranos/shopper/prompt"
)

// EvalQuestions are asked of a tuned model to compare prompting styles
var EvalQuestions = []string{
	"I'm planning a romantic dinner for my anniversary, what should I add to my cart?",
	"What kind of snacks should I get for a kids' birthday party?",
	"Can you suggest some vegan options for a plant-based picnic?",
	"I'm grilling this weekend, what sides would complement BBQ ribs?",
	"What are some essential ingredients for a traditional Thanksgiving dinner?",
}

// Eval runs two passes over the questions: unchanged, then with the request to cite
// product ids. Each pass is asked without a system prompt and with the product-expert
// system prompt of the engineered prompt.
func (g *Generator) Eval(ctx context.Context, questions []string) ([]EvalResult, error) {
	if g.Runner == nil {
		return nil, errors.AssertionFailedf("generator has no runner")
	}
	if len(questions) == 0 {
		questions = EvalQuestions
	}
	plain, err := g.prompt(prompt.EvalPlain)
	if err != nil {
		return nil, err
	}
	engineered, err := g.prompt(prompt.EvalEngineered)
	if err != nil {
		return nil, err
	}

	values := make([]prompt.Values, len(questions))
	for i, q := range questions {
		values[i] = prompt.Vars{"question": q}
	}

	plainAnswers, err := g.evalPass(ctx, plain, engineered.System, values)
	if err != nil {
		return nil, errors.Wrap(err, "plain pass")
	}
	engineeredAnswers, err := g.evalPass(ctx, engineered, engineered.System, values)
	if err != nil {
		return nil, errors.Wrap(err, "engineered pass")
	}

	results := make([]EvalResult, len(questions))
	for i, q := range questions {
		results[i] = EvalResult{
			Question:   q,
			Plain:      plainAnswers[i],
			Engineered: engineeredAnswers[i],
		}
	}
	return results, nil
}

// evalPass asks every rendered question without a system prompt, then with system
func (g *Generator) evalPass(ctx context.Context, p *prompt.Prompt, system string, values []prompt.Values) ([]EvalAnswers, error) {
	without, err := g.Runner.RunPromptWithSystem(ctx, p, "", values)
	if err != nil {
		return nil, errors.Wrap(err, "without system prompt")
	}
	with, err := g.Runner.RunPromptWithSystem(ctx, p, system, values)
	if err != nil {
		return nil, errors.Wrap(err, "with system prompt")
	}

	out := make([]EvalAnswers, len(values))
	for i := range out {
		out[i] = EvalAnswers{WithoutSystem: without[i].Output, WithSystem: with[i].Output}
	}
	return out, nil
}
