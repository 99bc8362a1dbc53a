package commands

import (
	"github.com/spf13/cobra"

	"github.com/teranos/shopper/am"
	"github.com/teranos/shopper/catalog"
	"github.com/teranos/shopper/errors"
	"github.com/teranos/shopper/generate"
)

// DescribeCmd writes a short description for each catalog product
var DescribeCmd = &cobra.Command{
	Use:   "describe [catalog]",
	Short: "Generate product descriptions from a catalog",
	Long: `Generate a short description for each catalog product.

The catalog (CSV with a header row, JSONL or XLSX; local path or go-getter URL)
is shuffled with the configured seed and truncated to --limit. Descriptions are
appended to the output; an interrupted run resumes where it stopped unless
--restart is given.

Examples:
  shopper describe                                # data/products.csv -> data/products.jsonl
  shopper describe catalog.xlsx --limit 500
  shopper describe --long -o data/train-products.jsonl
  shopper describe https://example.com/products.csv`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDescribe,
}

func init() {
	addStageFlags(DescribeCmd, 0)
	DescribeCmd.Flags().Bool("long", false, "Ask for 3 to 5 sentences (classifier training data)")
	DescribeCmd.Flags().Bool("restart", false, "Truncate the output instead of resuming")
}

func runDescribe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	flags := readStageFlags(cmd, cfg, productsJSONL)
	long, _ := cmd.Flags().GetBool("long")
	restart, _ := cmd.Flags().GetBool("restart")

	records, err := catalog.Load(ctx, inputArg(args, cfg, productsCSV))
	if err != nil {
		return err
	}
	records = catalog.Select(records, flags.seed, flags.limit)

	s, err := openSession(ctx, cmd, cfg, flags)
	if err != nil {
		return err
	}
	defer s.Close()

	_, err = s.gen.Describe(ctx, records, generate.DescribeOptions{
		Output: generate.Output{Path: flags.output, Resume: !restart},
		Long:   long,
	})
	return err
}
