package commands

import (
	"github.com/spf13/cobra"

	"github.com/teranos/shopper/am"
	"github.com/teranos/shopper/errors"
	"github.com/teranos/shopper/generate"
)

// FormatCmd turns recommendations into customer-facing explanations
var FormatCmd = &cobra.Command{
	Use:   "format [recommendations.jsonl]",
	Short: "Write recommendation explanations that cite product ids",
	Long: `Group recommend output by product and ask for a three sentence
explanation naming up to two recommended products with their product ids.

Examples:
  shopper format
  shopper format data/recommendations.jsonl --limit 50`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFormat,
}

func init() {
	addStageFlags(FormatCmd, 0)
}

func runFormat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	flags := readStageFlags(cmd, cfg, formattedRecs)

	recs, err := readJSONL[generate.Recommendation](ctx, inputArg(args, cfg, recommendations))
	if err != nil {
		return err
	}

	s, err := openSession(ctx, cmd, cfg, flags)
	if err != nil {
		return err
	}
	defer s.Close()

	_, err = s.gen.Format(ctx, recs, generate.Output{Path: flags.output, Limit: flags.limit})
	return err
}
