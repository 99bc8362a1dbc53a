package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/shopper/am"
	"github.com/teranos/shopper/errors"
	"github.com/teranos/shopper/generate"
	"github.com/teranos/shopper/pipeline"
)

// EvalCmd compares a tuned model's answers with and without prompt engineering
var EvalCmd = &cobra.Command{
	Use:   "eval [question...]",
	Short: "Ask evaluation questions with and without prompt engineering",
	Long: `Ask each evaluation question in two passes, as-is and with a request to
cite product ids. Each pass is asked without a system prompt and with the
product expert system prompt. Without arguments the built-in grocery
questions are used.

Examples:
  shopper eval --model my-tuned-model
  shopper eval "What goes well with salmon?" -o data/eval.jsonl`,
	RunE: runEval,
}

func init() {
	EvalCmd.Flags().StringP("output", "o", "", "Also write results as JSONL")
	EvalCmd.Flags().String("provider", "", "Chat provider: openrouter, anthropic, gemini, local")
	EvalCmd.Flags().String("model", "", "Tuned model to evaluate")
}

func runEval(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	flags := readStageFlags(cmd, cfg, "")
	output, _ := cmd.Flags().GetString("output")

	s, err := openSession(ctx, cmd, cfg, flags)
	if err != nil {
		return err
	}
	defer s.Close()

	results, err := s.gen.Eval(ctx, args)
	if err != nil {
		return err
	}

	for _, r := range results {
		pterm.DefaultSection.Println(r.Question)
		printAnswers("Without prompt engineering", r.Plain)
		printAnswers("With prompt engineering", r.Engineered)
	}

	if output == "" {
		return nil
	}
	return writeJSONL(output, results)
}

func printAnswers(pass string, a generate.EvalAnswers) {
	pterm.Info.Println(pass + ", without system prompt")
	pterm.Println(a.WithoutSystem)
	pterm.Info.Println(pass + ", with system prompt")
	pterm.Println(a.WithSystem)
}

// writeJSONL replaces path with one JSON value per line
func writeJSONL[T any](path string, items []T) error {
	sink, err := pipeline.OpenSink(path, false)
	if err != nil {
		return err
	}
	for _, item := range items {
		if _, err := sink.Write(item); err != nil {
			sink.Close()
			return err
		}
	}
	return sink.Close()
}
